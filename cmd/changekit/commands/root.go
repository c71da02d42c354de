package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/florianilch/changekit/internal/app"
	"github.com/florianilch/changekit/internal/observability"
)

// Execute runs the root command with the given context and arguments.
func Execute(ctx context.Context, args []string) error {
	cmd := &cli.Command{
		Name:  "changekit",
		Usage: "ChangeTip API client",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "path to config file (TOML)",
			},
			&cli.StringFlag{
				Name:  "env-file",
				Usage: "path to a .env file with CHANGEKIT_* variables",
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "log level (debug|info|warn|error)",
				Value: slog.LevelInfo.String(),
			},
			&cli.StringFlag{
				Name:  "log-format",
				Usage: "log format (text|json)",
				Value: string(app.DefaultConfigLogFormat),
			},
			&cli.StringFlag{
				Name:  "log-exporter",
				Usage: "OpenTelemetry log exporter (stdout|otlphttp|otlpgrpc), empty for plain slog",
			},
			&cli.StringFlag{
				Name:  "api--base-url",
				Usage: "ChangeTip API base URL",
				Value: app.DefaultConfigAPIBaseURL,
			},
			&cli.DurationFlag{
				Name:  "api--timeout",
				Usage: "timeout for each API and token request",
				Value: app.DefaultConfigAPITimeout,
			},
			&cli.StringFlag{
				Name:  "oauth--client-id",
				Usage: "OAuth2 client ID",
			},
			&cli.StringFlag{
				Name:  "oauth--client-secret",
				Usage: "OAuth2 client secret",
			},
			&cli.StringSliceFlag{
				Name:  "oauth--scopes",
				Usage: "OAuth2 scopes to request",
			},
			&cli.StringFlag{
				Name:  "oauth--redirect-uri",
				Usage: "redirect URI registered with ChangeTip",
				Value: app.DefaultConfigOAuthRedirectURI,
			},
			&cli.StringFlag{
				Name:  "auth--storage",
				Usage: "credential storage (file|keyring|sqlite|env)",
				Value: string(app.DefaultConfigAuthStorage),
			},
			&cli.StringFlag{
				Name:  "auth--file",
				Usage: "credentials file for file storage",
			},
			&cli.StringFlag{
				Name:  "auth--keyring-user",
				Usage: "keyring user for keyring storage",
			},
			&cli.StringFlag{
				Name:  "auth--sqlite-path",
				Usage: "database file for sqlite storage",
			},
		},
		Commands: append([]*cli.Command{
			loginCommand(),
			authorizeCommand(),
			refreshCommand(),
			logoutCommand(),
			statusCommand(),
			callCommand(),
		}, operationCommands()...),
	}

	return cmd.Run(ctx, args)
}

// withApp loads configuration, sets up logging and runs fn against a fresh App.
func withApp(ctx context.Context, cmd *cli.Command, fn func(context.Context, *app.App) error) error {
	cfg, err := loadConfig(cmd.String("config"), cmd.String("env-file"), cmd, os.Environ)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// Set up observability before creating app
	shutdown, err := observability.Instrument(ctx, cfg.ObservabilityOptions())
	if err != nil {
		return fmt.Errorf("failed to set up observability layer: %w", err)
	}
	defer func() {
		if err := shutdown(context.WithoutCancel(ctx)); err != nil {
			_, _ = fmt.Fprintf(os.Stderr, "flushing logs: %v\n", err)
		}
	}()

	application, err := app.New(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to create app: %w", err)
	}
	defer func() { _ = application.Close() }()

	return fn(ctx, application)
}
