package commands

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/florianilch/changekit/internal/app"
)

func loginCommand() *cli.Command {
	return &cli.Command{
		Name:  "login",
		Usage: "authorize changekit with your ChangeTip account",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "no-listen",
				Usage: "only print the authorization URL; finish with `changekit authorize`",
			},
			&cli.DurationFlag{
				Name:  "callback--timeout",
				Usage: "how long to wait for the browser redirect",
				Value: app.DefaultConfigCallbackTimeout,
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return withApp(ctx, cmd, func(ctx context.Context, a *app.App) error {
				return a.Login(ctx, cmd.Root().Writer, !cmd.Bool("no-listen"))
			})
		},
	}
}

func authorizeCommand() *cli.Command {
	return &cli.Command{
		Name:      "authorize",
		Usage:     "complete authorization from the redirect URL",
		ArgsUsage: "<redirect-url>",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if cmd.NArg() != 1 {
				return fmt.Errorf("expected exactly one redirect URL")
			}
			return withApp(ctx, cmd, func(ctx context.Context, a *app.App) error {
				if err := a.Authorize(ctx, cmd.Args().First()); err != nil {
					return err
				}
				_, _ = fmt.Fprintln(cmd.Root().Writer, "Authorization complete.")
				return nil
			})
		},
	}
}

func refreshCommand() *cli.Command {
	return &cli.Command{
		Name:  "refresh",
		Usage: "obtain a new access token using the stored refresh token",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return withApp(ctx, cmd, func(ctx context.Context, a *app.App) error {
				if err := a.Refresh(ctx); err != nil {
					return err
				}
				_, _ = fmt.Fprintln(cmd.Root().Writer, "Access token refreshed.")
				return nil
			})
		},
	}
}

func logoutCommand() *cli.Command {
	return &cli.Command{
		Name:  "logout",
		Usage: "remove stored credentials",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return withApp(ctx, cmd, func(ctx context.Context, a *app.App) error {
				return a.Logout(ctx)
			})
		},
	}
}

func statusCommand() *cli.Command {
	return &cli.Command{
		Name:  "status",
		Usage: "show whether credentials are stored",
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return withApp(ctx, cmd, func(ctx context.Context, a *app.App) error {
				state, err := a.Status(ctx)
				if err != nil {
					return err
				}
				_, _ = fmt.Fprintln(cmd.Root().Writer, state)
				return nil
			})
		},
	}
}
