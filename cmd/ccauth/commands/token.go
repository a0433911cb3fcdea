package commands

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"
)

// tokenCommand returns the 'token' subcommand.
func tokenCommand() *cli.Command {
	return &cli.Command{
		Name:  "token",
		Usage: "Request an access token and print the Authorization header",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "raw",
				Usage: "print the token response body instead of the header",
			},
			&cli.BoolFlag{
				Name:  "value-only",
				Usage: "print only the header value",
			},
		},
		Action: tokenAction,
	}
}

func tokenAction(ctx context.Context, cmd *cli.Command) error {
	cfg, cleanup, err := setup(ctx, cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	authorizer, err := newAuthorizer(ctx, cmd, cfg)
	if err != nil {
		return err
	}

	tok, err := authorizer.Token(ctx)
	if err != nil {
		return fmt.Errorf("token request failed: %w", err)
	}

	w := cmd.Root().Writer
	switch {
	case cmd.Bool("raw"):
		_, err = fmt.Fprintf(w, "%s\n", tok.Body)
	case cmd.Bool("value-only"):
		_, err = fmt.Fprintln(w, tok.AuthorizationValue())
	default:
		_, err = fmt.Fprintf(w, "Authorization: %s\n", tok.AuthorizationValue())
	}
	return err
}
