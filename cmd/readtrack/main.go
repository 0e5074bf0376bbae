package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/jessevdk/go-flags"
	"github.com/readtrack/profilesync/internal"
	"github.com/readtrack/profilesync/internal/config"
	"github.com/readtrack/profilesync/internal/log"
)

var BuildVersion = "dev"

// Options are shared by every subcommand
type Options struct {
	Config string `short:"c" long:"config" env:"READTRACK_CONFIG" description:"path to config file"`
}

var options Options

func generateDefaultConfig(path string) error {
	defaultConfig := map[string]any{
		"version": config.VersionPrefix,
		"backend": map[string]any{
			"baseURL": "https://api.readtrack.example",
			"timeout": "15s",
		},
		"session": map[string]any{
			"kind": "stored",
			"oauth2": map[string]any{
				"grant":        "password",
				"tokenURL":     "https://api.readtrack.example/oauth/token",
				"clientId":     "readtrack-cli",
				"clientSecret": map[string]string{"$env": "READTRACK_CLIENT_SECRET"},
				"username":     "alice",
				"password":     map[string]string{"$env": "READTRACK_PASSWORD"},
				"scopes":       []string{"profile"},
			},
		},
		"storage": map[string]any{
			"kind":          "sqlite",
			"path":          "readtrack.db",
			"encryptionKey": map[string]string{"$env": "READTRACK_ENCRYPTION_KEY"},
		},
		"sync": map[string]any{
			"onSaveFailure": "keep",
		},
		"log": map[string]any{
			"level":  "info",
			"format": "text",
		},
	}

	data, err := json.MarshalIndent(defaultConfig, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

func validateConfig(path string) error {
	result, err := config.ValidateFile(path)
	if err != nil {
		return fmt.Errorf("error during validation: %w", err)
	}

	fmt.Printf("Validating: %s\n", path)

	if len(result.Errors) > 0 {
		fmt.Printf("\nErrors (%d):\n", len(result.Errors))
		for _, err := range result.Errors {
			if err.Path != "" {
				fmt.Printf("  - %s: %s\n", err.Path, err.Message)
			} else {
				fmt.Printf("  - %s\n", err.Message)
			}
		}
	}

	if len(result.Warnings) > 0 {
		fmt.Printf("\nWarnings (%d):\n", len(result.Warnings))
		for _, warn := range result.Warnings {
			if warn.Path != "" {
				fmt.Printf("  - %s: %s\n", warn.Path, warn.Message)
			} else {
				fmt.Printf("  - %s\n", warn.Message)
			}
		}
	}

	fmt.Println()
	if len(result.Errors) == 0 && len(result.Warnings) == 0 {
		fmt.Println("Result: PASS")
	} else if len(result.Errors) == 0 {
		fmt.Println("Result: FAIL (warnings present)")
	} else {
		fmt.Println("Result: FAIL")
	}

	if len(result.Errors) > 0 || len(result.Warnings) > 0 {
		return fmt.Errorf("validation failed: %d error(s), %d warning(s)", len(result.Errors), len(result.Warnings))
	}
	return nil
}

// loadApp reads the config named by --config and builds the application
func loadApp(ctx context.Context) (*internal.App, error) {
	if options.Config == "" {
		return nil, fmt.Errorf("--config is required")
	}
	cfg, err := config.Load(options.Config)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := log.Configure(cfg.Log.Level, cfg.Log.Format); err != nil {
		return nil, fmt.Errorf("log config: %w", err)
	}

	log.LogDebugWithFields("main", "Starting readtrack", map[string]any{
		"version": BuildVersion,
		"config":  options.Config,
	})
	return internal.NewApp(ctx, cfg)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	parser := flags.NewParser(&options, flags.Default)
	parser.CommandHandler = func(cmd flags.Commander, args []string) error {
		if cmd == nil {
			return nil
		}
		if c, ok := cmd.(contextCommander); ok {
			return c.run(ctx, args)
		}
		return cmd.Execute(args)
	}

	mustAddCommand(parser, "show", "Fetch and print the profile", "Fetches the signed-in reader's profile and prints it with its sync state.", &showCommand{})
	mustAddCommand(parser, "save", "Save profile changes", "Shows the edit immediately, sends it, then re-fetches what the server kept.", &saveCommand{})
	mustAddCommand(parser, "logout", "Forget the stored credential and profile", "Deletes the persisted credential and the last confirmed profile.", &logoutCommand{})
	mustAddCommand(parser, "config-init", "Write a default config file", "Writes a default config file to the given path.", &configInitCommand{})
	mustAddCommand(parser, "validate", "Validate the config file", "Checks the config file named by --config and lists errors and warnings.", &validateCommand{})
	mustAddCommand(parser, "version", "Print the version", "Prints the build version.", &versionCommand{})

	// flags.Default prints parse and command errors itself
	if _, err := parser.Parse(); err != nil {
		var flagsErr *flags.Error
		if errors.As(err, &flagsErr) && flagsErr.Type == flags.ErrHelp {
			return
		}
		stop()
		os.Exit(1)
	}
}

func mustAddCommand(parser *flags.Parser, name, short, long string, data any) {
	if _, err := parser.AddCommand(name, short, long, data); err != nil {
		panic(err)
	}
}
