package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/florianilch/ccauth/internal/clientcredentials"
	"github.com/florianilch/ccauth/internal/config"
	"github.com/florianilch/ccauth/internal/observability"
	"github.com/florianilch/ccauth/internal/secretstore"
)

// flagKeys maps command-line flags to configuration keys. Only flags the
// user set explicitly override file and environment values.
var flagKeys = map[string]string{
	"client-id":            "client_id",
	"client-secret":        "client_secret",
	"token-endpoint":       "token_endpoint",
	"token-request-type":   "token_request_type",
	"scope":                "scope",
	"print-token-response": "print_token_response",
	"secret-storage":       "secret_storage",
	"timeout":              "timeout",
	"log-level":            "log.level",
	"log-format":           "log.format",
	"log-exporter":         "log.exporter",
	"listen":               "serve.listen",
	"upstream":             "serve.upstream",
}

// Execute runs the root command with the given context and arguments.
func Execute(ctx context.Context, args []string, version string) error {
	return newRootCommand(version).Run(ctx, args)
}

func newRootCommand(version string) *cli.Command {
	return &cli.Command{
		Name:    "ccauth",
		Usage:   "Authorize HTTP requests with OAuth 2.0 client credentials",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Usage:   "path to a TOML config file",
				Sources: cli.EnvVars("CCAUTH_CONFIG"),
			},
			&cli.StringFlag{
				Name:  "client-id",
				Usage: "OAuth 2.0 client identifier",
			},
			&cli.StringFlag{
				Name:  "client-secret",
				Usage: "OAuth 2.0 client secret (prefer CCAUTH_CLIENT_SECRET or the keyring)",
			},
			&cli.StringFlag{
				Name:  "token-endpoint",
				Usage: "OAuth 2.0 token endpoint URL",
			},
			&cli.StringFlag{
				Name:  "token-request-type",
				Usage: "token request type (basic|form|json) (default: basic)",
			},
			&cli.StringFlag{
				Name:  "scope",
				Usage: "OAuth 2.0 scope",
			},
			&cli.BoolFlag{
				Name:  "print-token-response",
				Usage: "print the token response (stdout) and token errors (stderr)",
			},
			&cli.StringFlag{
				Name:  "secret-storage",
				Usage: "where to look up the client secret (config|keyring) (default: config)",
			},
			&cli.DurationFlag{
				Name:  "timeout",
				Usage: "timeout for each HTTP exchange, 0 disables (default: 30s)",
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "log level (debug|info|warn|error) (default: info)",
			},
			&cli.StringFlag{
				Name:  "log-format",
				Usage: "log format (text|json) (default: text)",
			},
			&cli.StringFlag{
				Name:  "log-exporter",
				Usage: "OpenTelemetry log exporter (none|stdout|otlp-http|otlp-grpc) (default: none)",
			},
		},
		Commands: []*cli.Command{
			tokenCommand(),
			requestCommand(),
			serveCommand(),
			secretCommand(),
		},
	}
}

// loadConfig loads configuration from defaults, path, environ and the flags
// set on cmd or any of its parents.
func loadConfig(path string, cmd *cli.Command, environ func() []string) (*config.Config, error) {
	flags := make(map[string]any)
	for name, key := range flagKeys {
		if cmd.IsSet(name) {
			flags[key] = cmd.Value(name)
		}
	}
	return config.Load(path, flags, environ)
}

// setup loads the configuration and installs logging. The returned cleanup
// flushes exported logs and must be called before the command returns.
func setup(ctx context.Context, cmd *cli.Command) (*config.Config, func(), error) {
	cfg, err := loadConfig(cmd.String("config"), cmd, os.Environ)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	settings, err := cfg.LogSettings()
	if err != nil {
		return nil, nil, err
	}
	settings.Output = cmd.Root().ErrWriter

	shutdown, err := observability.Instrument(ctx, settings)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to set up observability layer: %w", err)
	}

	cleanup := func() {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := shutdown(shutdownCtx); err != nil {
			slog.WarnContext(ctx, "failed to flush logs", "error", err)
		}
	}

	return cfg, cleanup, nil
}

// newAuthorizer resolves the client secret and validates the token request
// inputs. Invalid input fails here, before any network activity.
func newAuthorizer(ctx context.Context, cmd *cli.Command, cfg *config.Config) (*clientcredentials.Authorizer, error) {
	if cfg.SecretStorage == config.SecretStorageKeyring {
		if err := cfg.ResolveSecret(ctx, secretstore.NewKeyringStore("")); err != nil {
			return nil, err
		}
	}

	creds, opts, err := cfg.ClientCredentials()
	if err != nil {
		return nil, err
	}

	return clientcredentials.New(creds, opts,
		clientcredentials.WithHTTPClient(cfg.HTTPClient()),
		clientcredentials.WithDiagnostics(cmd.Root().Writer, cmd.Root().ErrWriter),
	)
}
