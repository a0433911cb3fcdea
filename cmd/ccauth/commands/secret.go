package commands

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/urfave/cli/v3"
	"golang.org/x/term"
)

// secretCommand returns the 'secret' subcommand for managing stored client secrets.
func secretCommand() *cli.Command {
	return &cli.Command{
		Name:  "secret",
		Usage: "Manage the client secret in the OS keyring",
		Commands: []*cli.Command{
			{
				Name:   "set",
				Usage:  "Store the client secret for the configured client ID",
				Action: secretSetAction,
			},
			{
				Name:   "delete",
				Usage:  "Remove the stored client secret for the configured client ID",
				Action: secretDeleteAction,
			},
		},
	}
}

func secretSetAction(ctx context.Context, cmd *cli.Command) error {
	cfg, cleanup, err := setup(ctx, cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	if cfg.ClientID == "" {
		return errors.New("client ID is required (--client-id or client_id)")
	}

	store, err := cfg.NewSecretStore()
	if err != nil {
		return fmt.Errorf("failed to create secret store: %w", err)
	}

	secret, err := readSecret(ctx, cmd.Root().Reader, cmd.Root().Writer, "Client secret: ")
	if err != nil {
		return err
	}
	if secret == "" {
		return errors.New("client secret cannot be empty")
	}

	if err := store.Write(ctx, cfg.ClientID, secret); err != nil {
		return fmt.Errorf("failed to write secret: %w", err)
	}

	_, err = fmt.Fprintf(cmd.Root().Writer, "Secret stored for client %q\n", cfg.ClientID)
	return err
}

func secretDeleteAction(ctx context.Context, cmd *cli.Command) error {
	cfg, cleanup, err := setup(ctx, cmd)
	if err != nil {
		return err
	}
	defer cleanup()

	if cfg.ClientID == "" {
		return errors.New("client ID is required (--client-id or client_id)")
	}

	store, err := cfg.NewSecretStore()
	if err != nil {
		return fmt.Errorf("failed to create secret store: %w", err)
	}

	// Clear via empty write to maintain storage abstraction
	if err := store.Write(ctx, cfg.ClientID, ""); err != nil {
		return fmt.Errorf("failed to delete secret: %w", err)
	}

	_, err = fmt.Fprintf(cmd.Root().Writer, "Secret removed for client %q\n", cfg.ClientID)
	return err
}

// readSecret reads a secret from a terminal without echo, or a single line
// from any other reader (pipes, tests).
func readSecret(ctx context.Context, in io.Reader, out io.Writer, prompt string) (string, error) {
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		return readSecureInput(ctx, f, out, prompt)
	}

	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("failed to read input: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

// readSecureInput reads user input with hidden display and context cancellation support.
// Goroutine+select pattern required because term.ReadPassword has no native context support.
func readSecureInput(ctx context.Context, f *os.File, out io.Writer, prompt string) (string, error) {
	_, _ = fmt.Fprint(out, prompt)
	defer func() { _, _ = fmt.Fprintln(out) }()

	type result struct {
		value string
		err   error
	}
	resultCh := make(chan result, 1)

	go func() {
		inputBytes, err := term.ReadPassword(int(f.Fd()))
		resultCh <- result{value: string(inputBytes), err: err}
	}()

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res := <-resultCh:
		if res.err != nil {
			return "", fmt.Errorf("failed to read input: %w", res.err)
		}
		return res.value, nil
	}
}
