package cli

import (
	"context"
	"errors"
	"io"
	"os"
)

// CommandConfig configures one client command invocation.
type CommandConfig[C io.Closer] struct {
	// Name identifies the command in errors.
	Name     string
	Settings ClientSettings
	// Connect opens the client. Tests substitute a mock here.
	Connect func(ctx context.Context, s ClientSettings) (C, error)
	// Run is the command's business logic.
	Run func(ctx context.Context, c C, out *Output) error
	// Stream disables the settings timeout for long-lived commands.
	Stream bool
	// Writer defaults to stdout.
	Writer io.Writer
}

// RunCommand connects, applies the timeout, runs the command and closes the
// client.
func RunCommand[C io.Closer](ctx context.Context, cfg CommandConfig[C]) error {
	if cfg.Name == "" {
		return errors.New("command name required")
	}
	if cfg.Connect == nil || cfg.Run == nil {
		return errors.New(cfg.Name + ": connect and run functions required")
	}

	if cfg.Settings.Timeout > 0 && !cfg.Stream {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.Settings.Timeout)
		defer cancel()
	}

	c, err := cfg.Connect(ctx, cfg.Settings)
	if err != nil {
		return err
	}
	defer func() { _ = c.Close() }()

	w := cfg.Writer
	if w == nil {
		w = os.Stdout
	}
	return cfg.Run(ctx, c, NewOutput(cfg.Settings.Output, w))
}
