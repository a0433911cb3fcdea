package commands

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/urfave/cli/v3"
)

// requestCommand returns the 'request' subcommand.
func requestCommand() *cli.Command {
	return &cli.Command{
		Name:      "request",
		Usage:     "Send an HTTP request authorized with a fresh access token",
		ArgsUsage: "[METHOD] URL",
		Flags: []cli.Flag{
			&cli.StringSliceFlag{
				Name:    "header",
				Aliases: []string{"H"},
				Usage:   "extra request header as Name:Value (repeatable)",
			},
			&cli.StringFlag{
				Name:    "data",
				Aliases: []string{"d"},
				Usage:   "request body",
			},
		},
		Action: requestAction,
	}
}

func requestAction(ctx context.Context, cmd *cli.Command) error {
	method, target, err := parseRequestArgs(cmd.Args().Slice())
	if err != nil {
		return err
	}

	cfg, cleanup, err := setup(ctx, cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	authorizer, err := newAuthorizer(ctx, cmd, cfg)
	if err != nil {
		return err
	}

	var body io.Reader
	if cmd.IsSet("data") {
		body = strings.NewReader(cmd.String("data"))
	}

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	for _, h := range cmd.StringSlice("header") {
		name, value, ok := strings.Cut(h, ":")
		if !ok || strings.TrimSpace(name) == "" {
			return fmt.Errorf("invalid header %q: expected Name:Value", h)
		}
		req.Header.Add(strings.TrimSpace(name), strings.TrimSpace(value))
	}
	if body != nil && req.Header.Get("Content-Type") == "" {
		if json.Valid([]byte(cmd.String("data"))) {
			req.Header.Set("Content-Type", "application/json")
		} else {
			req.Header.Set("Content-Type", "text/plain; charset=utf-8")
		}
	}

	if err := authorizer.Authorize(ctx, req); err != nil {
		return fmt.Errorf("authorization failed: %w", err)
	}

	resp, err := cfg.HTTPClient().Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	w := cmd.Root().Writer
	if _, err := fmt.Fprintf(w, "%s %s\n", resp.Proto, resp.Status); err != nil {
		return err
	}
	if _, err := io.Copy(w, resp.Body); err != nil {
		return fmt.Errorf("reading response: %w", err)
	}
	return nil
}

// parseRequestArgs accepts "URL" (GET) or "METHOD URL".
func parseRequestArgs(args []string) (method, target string, err error) {
	switch len(args) {
	case 1:
		return http.MethodGet, args[0], nil
	case 2:
		return strings.ToUpper(args[0]), args[1], nil
	default:
		return "", "", errors.New("expected [METHOD] URL")
	}
}
