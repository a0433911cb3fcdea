// Package secretstore keeps client secrets in the operating system keyring so
// they do not have to live in configuration files or shell history.
package secretstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/zalando/go-keyring"
)

// DefaultService is the keyring service name secrets are stored under.
const DefaultService = "ccauth"

// ErrNotFound is returned when no secret is stored for a client ID.
var ErrNotFound = errors.New("secret not found")

// Store reads and writes client secrets keyed by client ID.
type Store interface {
	Read(ctx context.Context, clientID string) (string, error)
	// Write stores secret for clientID. An empty secret removes the entry.
	Write(ctx context.Context, clientID, secret string) error
}

// KeyringStore is a Store backed by the OS keyring (Keychain, Secret Service,
// Windows Credential Manager).
type KeyringStore struct {
	service string
}

// Compile-time check that KeyringStore implements Store
var _ Store = (*KeyringStore)(nil)

// NewKeyringStore creates a KeyringStore using service as the keyring service
// name. An empty service selects DefaultService.
func NewKeyringStore(service string) *KeyringStore {
	if service == "" {
		service = DefaultService
	}
	return &KeyringStore{service: service}
}

// Read returns the secret stored for clientID.
func (s *KeyringStore) Read(ctx context.Context, clientID string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if clientID == "" {
		return "", errors.New("client ID cannot be empty")
	}

	secret, err := keyring.Get(s.service, clientID)
	if errors.Is(err, keyring.ErrNotFound) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("reading secret from keyring: %w", err)
	}
	return secret, nil
}

// Write stores secret for clientID, or deletes the entry when secret is empty.
// Deleting a missing entry is not an error.
func (s *KeyringStore) Write(ctx context.Context, clientID, secret string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if clientID == "" {
		return errors.New("client ID cannot be empty")
	}

	if secret == "" {
		if err := keyring.Delete(s.service, clientID); err != nil && !errors.Is(err, keyring.ErrNotFound) {
			return fmt.Errorf("deleting secret from keyring: %w", err)
		}
		return nil
	}

	if err := keyring.Set(s.service, clientID, secret); err != nil {
		return fmt.Errorf("writing secret to keyring: %w", err)
	}
	return nil
}
