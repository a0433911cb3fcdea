package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/zalando/go-keyring"

	"github.com/florianilch/ccauth/internal/clientcredentials"
	"github.com/florianilch/ccauth/internal/secretstore"
)

func noEnv() []string { return nil }

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("", nil, noEnv)
	require.NoError(t, err)

	require.Equal(t, "basic", cfg.TokenRequestType)
	require.False(t, cfg.PrintTokenResponse)
	require.Equal(t, SecretStorageConfig, cfg.SecretStorage)
	require.Equal(t, 30*time.Second, cfg.Timeout)
	require.Equal(t, "info", cfg.Log.Level)
	require.Equal(t, "text", cfg.Log.Format)
	require.Equal(t, "127.0.0.1:4180", cfg.Serve.Listen)
}

func TestLoad_Precedence(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ccauth.toml")
	err := os.WriteFile(path, []byte(`
client_id = "file-client"
client_secret = "file-secret"
token_endpoint = "https://auth.example.com/token"
token_request_type = "form"
scope = "read"
timeout = "5s"

[log]
level = "debug"

[serve]
upstream = "https://api.example.com"
`), 0o600)
	require.NoError(t, err)

	environ := func() []string {
		return []string{
			"CCAUTH_CLIENT_ID=env-client",
			"CCAUTH_PRINT_TOKEN_RESPONSE=true",
			"CCAUTH_LOG__FORMAT=json",
			"UNRELATED=1",
		}
	}
	flags := map[string]any{
		"scope":              "write",
		"token_request_type": "json",
	}

	cfg, err := Load(path, flags, environ)
	require.NoError(t, err)

	require.Equal(t, "env-client", cfg.ClientID)
	require.Equal(t, "file-secret", cfg.ClientSecret)
	require.Equal(t, "https://auth.example.com/token", cfg.TokenEndpoint)
	require.Equal(t, "json", cfg.TokenRequestType)
	require.Equal(t, "write", cfg.Scope)
	require.True(t, cfg.PrintTokenResponse)
	require.Equal(t, 5*time.Second, cfg.Timeout)
	require.Equal(t, "debug", cfg.Log.Level)
	require.Equal(t, "json", cfg.Log.Format)
	require.Equal(t, "https://api.example.com", cfg.Serve.Upstream)
}

func TestLoad_Invalid(t *testing.T) {
	_, err := Load("", map[string]any{"log.level": "loud"}, noEnv)
	require.ErrorContains(t, err, "Level")

	_, err = Load("", map[string]any{"secret_storage": "vault"}, noEnv)
	require.ErrorContains(t, err, "SecretStorage")

	_, err = Load(filepath.Join(t.TempDir(), "missing.toml"), nil, noEnv)
	require.Error(t, err)
}

func TestConfig_ClientCredentials(t *testing.T) {
	cfg := &Config{
		ClientID:           "client",
		ClientSecret:       "secret",
		TokenEndpoint:      "https://auth.example.com/token",
		TokenRequestType:   "form",
		Scope:              "read",
		PrintTokenResponse: true,
	}

	creds, opts, err := cfg.ClientCredentials()
	require.NoError(t, err)
	require.Equal(t, clientcredentials.Credentials{ClientID: "client", ClientSecret: "secret"}, creds)
	require.Equal(t, clientcredentials.ModeForm, opts.Mode)
	require.True(t, opts.Verbose)

	cfg.TokenRequestType = "xml"
	_, _, err = cfg.ClientCredentials()
	var cfgErr *clientcredentials.ConfigurationError
	require.True(t, errors.As(err, &cfgErr))
}

func TestConfig_ResolveSecret(t *testing.T) {
	keyring.MockInit()
	ctx := context.Background()
	store := secretstore.NewKeyringStore("")
	require.NoError(t, store.Write(ctx, "client", "from-keyring"))

	cfg := &Config{ClientID: "client", SecretStorage: SecretStorageKeyring}
	require.NoError(t, cfg.ResolveSecret(ctx, store))
	require.Equal(t, "from-keyring", cfg.ClientSecret)

	// Configured secrets win over the keyring.
	cfg = &Config{ClientID: "client", ClientSecret: "explicit", SecretStorage: SecretStorageKeyring}
	require.NoError(t, cfg.ResolveSecret(ctx, store))
	require.Equal(t, "explicit", cfg.ClientSecret)

	// Missing entries leave the secret empty.
	cfg = &Config{ClientID: "other", SecretStorage: SecretStorageKeyring}
	require.NoError(t, cfg.ResolveSecret(ctx, store))
	require.Empty(t, cfg.ClientSecret)

	// Config storage never consults the keyring.
	cfg = &Config{ClientID: "client", SecretStorage: SecretStorageConfig}
	require.NoError(t, cfg.ResolveSecret(ctx, store))
	require.Empty(t, cfg.ClientSecret)
}

func TestConfig_NewSecretStore(t *testing.T) {
	_, err := (&Config{SecretStorage: SecretStorageConfig}).NewSecretStore()
	require.Error(t, err)

	store, err := (&Config{SecretStorage: SecretStorageKeyring}).NewSecretStore()
	require.NoError(t, err)
	require.NotNil(t, store)
}
