package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/tidwall/pretty"
	"github.com/urfave/cli/v3"
	"golang.org/x/term"

	"github.com/florianilch/changekit/internal/app"
	"github.com/florianilch/changekit/internal/changetip"
)

func callCommand() *cli.Command {
	return &cli.Command{
		Name:      "call",
		Usage:     "perform an authenticated request against any API endpoint",
		ArgsUsage: "<endpoint>",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "method",
				Usage: "HTTP method (GET|POST)",
				Value: http.MethodGet,
				Validator: func(method string) error {
					switch strings.ToUpper(method) {
					case http.MethodGet, http.MethodPost:
						return nil
					}
					return fmt.Errorf("unsupported method %q", method)
				},
			},
			&cli.StringSliceFlag{
				Name:    "param",
				Aliases: []string{"p"},
				Usage:   "request parameter as key=value, repeatable",
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if cmd.NArg() != 1 {
				return fmt.Errorf("expected exactly one endpoint, e.g. v2/me")
			}
			params, err := parseParams(cmd.StringSlice("param"))
			if err != nil {
				return err
			}
			req := changetip.Request{
				Endpoint: cmd.Args().First(),
				Method:   strings.ToUpper(cmd.String("method")),
				Params:   params,
			}
			return withApp(ctx, cmd, func(ctx context.Context, a *app.App) error {
				object, err := a.Call(ctx, req)
				return printResult(cmd.Root().Writer, object, err)
			})
		},
	}
}

// operationCommands builds one command per entry of the operations table.
func operationCommands() []*cli.Command {
	commands := make([]*cli.Command, 0, len(changetip.Operations))
	for _, op := range changetip.Operations {
		flags := make([]cli.Flag, 0, len(op.Params))
		for _, p := range op.Params {
			usage := p.Usage
			if p.Required {
				usage += " (required)"
			}
			flags = append(flags, &cli.StringFlag{Name: p.Name, Usage: usage})
		}

		commands = append(commands, &cli.Command{
			Name:  op.Name,
			Usage: op.Description,
			Flags: flags,
			Action: func(ctx context.Context, cmd *cli.Command) error {
				params := make(map[string]string, len(op.Params))
				for _, p := range op.Params {
					if cmd.IsSet(p.Name) {
						params[p.Name] = cmd.String(p.Name)
					}
				}
				return withApp(ctx, cmd, func(ctx context.Context, a *app.App) error {
					object, err := a.Invoke(ctx, op.Name, params)
					return printResult(cmd.Root().Writer, object, err)
				})
			},
		})
	}
	return commands
}

// parseParams turns key=value pairs into a parameter map.
func parseParams(pairs []string) (map[string]string, error) {
	params := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid parameter %q, expected key=value", pair)
		}
		params[key] = value
	}
	return params, nil
}

// printResult writes object as indented JSON, colorized when out is a terminal.
func printResult(out io.Writer, object map[string]any, callErr error) error {
	if callErr != nil {
		if changetip.IsUnauthorized(callErr) {
			return fmt.Errorf("%w (access token rejected, try `changekit refresh`)", callErr)
		}
		return callErr
	}

	raw, err := json.Marshal(object)
	if err != nil {
		return fmt.Errorf("encoding result: %w", err)
	}

	formatted := pretty.Pretty(raw)
	if isTerminal(out) {
		formatted = pretty.Color(formatted, nil)
	}
	_, err = out.Write(formatted)
	return err
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}
