package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/readtrack/profilesync/internal/profile"
)

// contextCommander is a command that honors interrupt signals
type contextCommander interface {
	run(ctx context.Context, args []string) error
}

type showCommand struct {
	JSON bool `long:"json" description:"print as JSON"`
}

func (c *showCommand) Execute(args []string) error {
	return c.run(context.Background(), args)
}

func (c *showCommand) run(ctx context.Context, _ []string) error {
	app, err := loadApp(ctx)
	if err != nil {
		return err
	}
	defer app.Close()

	s, err := app.OpenSession(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	fetchErr := s.Controller.FetchProfile(ctx)
	if err := printSnapshot(os.Stdout, s.Store.Snapshot(), c.JSON); err != nil {
		return err
	}
	return fetchErr
}

type saveCommand struct {
	DisplayName *string `long:"display-name" description:"new display name"`
	Bio         *string `long:"bio" description:"new bio"`
	Watch       bool    `short:"w" long:"watch" description:"print every state change to stderr"`
	JSON        bool    `long:"json" description:"print the final state as JSON"`
}

func (c *saveCommand) Execute(args []string) error {
	return c.run(context.Background(), args)
}

func (c *saveCommand) run(ctx context.Context, _ []string) error {
	if c.DisplayName == nil && c.Bio == nil {
		return fmt.Errorf("nothing to save: pass --display-name and/or --bio")
	}

	app, err := loadApp(ctx)
	if err != nil {
		return err
	}
	defer app.Close()

	s, err := app.OpenSession(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	if c.Watch {
		updates, unsubscribe := s.Store.Subscribe()
		defer unsubscribe()
		go func() {
			for snap := range updates {
				fmt.Fprintf(os.Stderr, "  %-13s %q / %q%s\n", snap.State, snap.Data.DisplayName, snap.Data.Bio, flagsFor(snap))
			}
		}()
	}

	// Fields left off the command line keep their server values
	if err := s.Controller.FetchProfile(ctx); err != nil && !s.Store.Snapshot().HasConfirmed {
		return fmt.Errorf("cannot load the current profile: %w", err)
	}

	next := s.Store.Data()
	if c.DisplayName != nil {
		next.DisplayName = *c.DisplayName
	}
	if c.Bio != nil {
		next.Bio = *c.Bio
	}

	saveErr := s.Controller.SaveProfile(ctx, next)
	if err := printSnapshot(os.Stdout, s.Store.Snapshot(), c.JSON); err != nil {
		return err
	}
	return saveErr
}

type logoutCommand struct{}

func (c *logoutCommand) Execute(args []string) error {
	return c.run(context.Background(), args)
}

func (c *logoutCommand) run(ctx context.Context, _ []string) error {
	app, err := loadApp(ctx)
	if err != nil {
		return err
	}
	defer app.Close()

	s, err := app.OpenSession(ctx)
	if err != nil {
		return err
	}
	if err := s.Logout(ctx); err != nil {
		return err
	}
	fmt.Println("Logged out")
	return nil
}

type configInitCommand struct {
	Args struct {
		Path string `positional-arg-name:"PATH" required:"true"`
	} `positional-args:"true"`
}

func (c *configInitCommand) Execute(_ []string) error {
	if err := generateDefaultConfig(c.Args.Path); err != nil {
		return err
	}
	fmt.Printf("Generated default config at: %s\n", c.Args.Path)
	return nil
}

type validateCommand struct{}

func (c *validateCommand) Execute(_ []string) error {
	if options.Config == "" {
		return fmt.Errorf("--config is required for validation")
	}
	return validateConfig(options.Config)
}

type versionCommand struct{}

func (c *versionCommand) Execute(_ []string) error {
	fmt.Println(BuildVersion)
	return nil
}

type snapshotOutput struct {
	DisplayName string `json:"displayName"`
	Bio         string `json:"bio"`
	State       string `json:"state"`
	Unsynced    bool   `json:"unsynced"`
	Restored    bool   `json:"restored"`
	Error       string `json:"error,omitempty"`
}

func printSnapshot(w io.Writer, snap profile.Snapshot, asJSON bool) error {
	out := snapshotOutput{
		DisplayName: snap.Data.DisplayName,
		Bio:         snap.Data.Bio,
		State:       snap.State.String(),
		Unsynced:    snap.Unsynced,
		Restored:    snap.Restored,
	}
	if snap.LastError != nil {
		out.Error = snap.LastError.Error()
	}

	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	}

	fmt.Fprintf(w, "Display name: %s\n", out.DisplayName)
	fmt.Fprintf(w, "Bio:          %s\n", out.Bio)
	fmt.Fprintf(w, "State:        %s%s\n", out.State, flagsFor(snap))
	if out.Error != "" {
		fmt.Fprintf(w, "Error:        %s\n", out.Error)
	}
	return nil
}

func flagsFor(snap profile.Snapshot) string {
	switch {
	case snap.Unsynced:
		return " (unsynced)"
	case snap.Restored:
		return " (from last session)"
	default:
		return ""
	}
}
