package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jessevdk/go-flags"
	"github.com/readtrack/profilesync/internal/crypto"
	"github.com/readtrack/profilesync/internal/devbackend"
	"github.com/readtrack/profilesync/internal/log"
	"github.com/readtrack/profilesync/internal/server"
)

var BuildVersion = "dev"

// Options configure the development backend
type Options struct {
	Addr           string        `short:"a" long:"addr" default:"127.0.0.1:8000" description:"listen address"`
	ClientID       string        `long:"client-id" default:"readtrack-cli" description:"OAuth2 client ID"`
	ClientSecret   string        `long:"client-secret" env:"READTRACK_DEV_CLIENT_SECRET" description:"OAuth2 client secret, generated when empty"`
	Users          []string      `short:"u" long:"user" description:"username:password for the password grant (repeatable)"`
	TokenTTL       time.Duration `long:"token-ttl" default:"1h" description:"access token lifetime"`
	Latency        time.Duration `long:"latency" description:"delay added to every profile request"`
	AllowedOrigins []string      `long:"allow-origin" description:"CORS origin to allow (repeatable)"`
	LogLevel       string        `long:"log-level" env:"LOG_LEVEL" description:"error, warn, info, debug or trace"`
	Version        bool          `long:"version" description:"print version and exit"`
}

func parseUsers(specs []string) (map[string]string, error) {
	if len(specs) == 0 {
		specs = []string{"alice:wonderland"}
	}
	users := make(map[string]string, len(specs))
	for _, spec := range specs {
		name, password, ok := strings.Cut(spec, ":")
		if !ok || name == "" || password == "" {
			return nil, fmt.Errorf("invalid --user %q, want username:password", spec)
		}
		users[name] = password
	}
	return users, nil
}

func run(opts *Options) error {
	if opts.LogLevel != "" {
		if err := log.SetLogLevel(opts.LogLevel); err != nil {
			return err
		}
	}

	users, err := parseUsers(opts.Users)
	if err != nil {
		return err
	}

	if opts.ClientSecret == "" {
		secret, err := crypto.GenerateSecureToken()
		if err != nil {
			return fmt.Errorf("failed to generate client secret: %w", err)
		}
		opts.ClientSecret = secret
		// Printed, not logged: the reader needs it to configure the client
		fmt.Fprintf(os.Stderr, "Generated client secret for %s: %s\n", opts.ClientID, secret)
	}

	dev, err := devbackend.New(devbackend.Config{
		ClientID:       opts.ClientID,
		ClientSecret:   opts.ClientSecret,
		Users:          users,
		TokenTTL:       opts.TokenTTL,
		Latency:        opts.Latency,
		AllowedOrigins: opts.AllowedOrigins,
	})
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	httpServer := server.NewHTTPServer(dev.Handler(), opts.Addr)
	errChan := make(chan error, 1)
	go func() {
		errChan <- httpServer.Start()
	}()

	log.LogInfoWithFields("main", "Dev backend listening", map[string]any{
		"version": BuildVersion,
		"addr":    opts.Addr,
	})

	var serveErr error
	select {
	case <-ctx.Done():
	case serveErr = <-errChan:
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Stop(shutdownCtx); err != nil {
		return errors.Join(serveErr, err)
	}
	return serveErr
}

func main() {
	opts := &Options{}
	if _, err := flags.Parse(opts); err != nil {
		var flagsErr *flags.Error
		if errors.As(err, &flagsErr) && flagsErr.Type == flags.ErrHelp {
			return
		}
		os.Exit(1)
	}
	if opts.Version {
		fmt.Println(BuildVersion)
		return
	}

	if err := run(opts); err != nil {
		log.LogError("Dev backend failed: %v", err)
		os.Exit(1)
	}
}
