package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/urfave/cli/v3"

	"github.com/florianilch/ccauth/internal/app"
)

// serveCommand returns the 'serve' subcommand.
func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run a reverse proxy that authorizes every forwarded request",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "listen",
				Usage: "listen address (default: 127.0.0.1:4180)",
			},
			&cli.StringFlag{
				Name:  "upstream",
				Usage: "upstream base URL requests are forwarded to",
			},
		},
		Action: serveAction,
	}
}

func serveAction(ctx context.Context, cmd *cli.Command) error {
	cfg, cleanup, err := setup(ctx, cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	if cfg.Serve.Upstream == "" {
		return errors.New("upstream is required (--upstream or serve.upstream)")
	}

	authorizer, err := newAuthorizer(ctx, cmd, cfg)
	if err != nil {
		return err
	}

	application, err := app.New(authorizer, app.Settings{
		ListenAddr:      cfg.Serve.Listen,
		Upstream:        cfg.Serve.Upstream,
		MaxRequestBytes: cfg.Serve.MaxRequestBytes,
	})
	if err != nil {
		return fmt.Errorf("failed to create app: %w", err)
	}

	slog.InfoContext(ctx, "starting", "upstream", cfg.Serve.Upstream)

	if err := application.Start(ctx); err != nil {
		return fmt.Errorf("app failed to start: %w", err)
	}

	slog.InfoContext(ctx, "stopped gracefully")
	return nil
}
