// Package config loads ccauth settings from defaults, an optional TOML file,
// CCAUTH_* environment variables and command-line flags, in that order of
// precedence (later sources win).
package config

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/toml/v2"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"

	"github.com/florianilch/ccauth/internal/clientcredentials"
	"github.com/florianilch/ccauth/internal/observability"
	"github.com/florianilch/ccauth/internal/secretstore"
)

// EnvPrefix prefixes every environment variable. Nested keys use a double
// underscore: CCAUTH_LOG__LEVEL sets log.level.
const EnvPrefix = "CCAUTH_"

// SecretStorageType selects where the client secret comes from.
type SecretStorageType string

const (
	// SecretStorageConfig reads the secret from configuration only.
	SecretStorageConfig SecretStorageType = "config"
	// SecretStorageKeyring falls back to the OS keyring when no secret is configured.
	SecretStorageKeyring SecretStorageType = "keyring"
)

// Config is the complete ccauth configuration.
type Config struct {
	ClientID           string            `koanf:"client_id"`
	ClientSecret       string            `koanf:"client_secret"`
	TokenEndpoint      string            `koanf:"token_endpoint"`
	TokenRequestType   string            `koanf:"token_request_type"`
	Scope              string            `koanf:"scope"`
	PrintTokenResponse bool              `koanf:"print_token_response"`
	SecretStorage      SecretStorageType `koanf:"secret_storage" validate:"oneof=config keyring"`
	// Timeout bounds each HTTP exchange made by the CLI; zero disables it.
	Timeout time.Duration `koanf:"timeout" validate:"gte=0"`

	Log   LogConfig   `koanf:"log"`
	Serve ServeConfig `koanf:"serve"`
}

// LogConfig configures the logging pipeline.
type LogConfig struct {
	Level    string `koanf:"level" validate:"oneof=debug info warn error"`
	Format   string `koanf:"format" validate:"oneof=text json"`
	Exporter string `koanf:"exporter" validate:"oneof=none stdout otlp-http otlp-grpc"`
}

// ServeConfig configures the authenticating reverse proxy.
type ServeConfig struct {
	Listen          string `koanf:"listen" validate:"hostname_port"`
	Upstream        string `koanf:"upstream" validate:"omitempty,url"`
	MaxRequestBytes int64  `koanf:"max_request_bytes" validate:"gt=0"`
}

// Defaults returns the built-in configuration values.
func Defaults() map[string]any {
	return map[string]any{
		"token_request_type":      "basic",
		"print_token_response":    false,
		"secret_storage":          string(SecretStorageConfig),
		"timeout":                 30 * time.Second,
		"log.level":               "info",
		"log.format":              "text",
		"log.exporter":            "none",
		"serve.listen":            "127.0.0.1:4180",
		"serve.max_request_bytes": int64(10 << 20),
	}
}

// Load assembles the configuration. path may be empty. flags holds only the
// command-line values the user set explicitly, keyed by configuration key.
// environ supplies the environment, usually os.Environ.
func Load(path string, flags map[string]any, environ func() []string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(confmap.Provider(Defaults(), "."), nil); err != nil {
		return nil, fmt.Errorf("loading defaults: %w", err)
	}

	if path != "" {
		if err := k.Load(file.Provider(path), toml.Parser()); err != nil {
			return nil, fmt.Errorf("loading config file %s: %w", path, err)
		}
	}

	envProvider := env.Provider(".", env.Opt{
		Prefix: EnvPrefix,
		TransformFunc: func(key, value string) (string, any) {
			key = strings.ToLower(strings.TrimPrefix(key, EnvPrefix))
			return strings.ReplaceAll(key, "__", "."), value
		},
		EnvironFunc: environ,
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("loading environment: %w", err)
	}

	if len(flags) > 0 {
		if err := k.Load(confmap.Provider(flags, "."), nil); err != nil {
			return nil, fmt.Errorf("loading flags: %w", err)
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks the ambient settings. Credentials and the token endpoint
// are validated when the token request is built.
func (c *Config) Validate() error {
	err := validate.Struct(c)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("invalid config: %w", err)
	}

	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s: failed %q validation (value %v)", fe.Namespace(), fe.Tag(), fe.Value()))
	}
	return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
}

// ClientCredentials converts the configuration into token request inputs.
func (c *Config) ClientCredentials() (clientcredentials.Credentials, clientcredentials.Options, error) {
	mode, err := clientcredentials.ParseRequestMode(c.TokenRequestType)
	if err != nil {
		return clientcredentials.Credentials{}, clientcredentials.Options{}, err
	}

	creds := clientcredentials.Credentials{
		ClientID:     c.ClientID,
		ClientSecret: c.ClientSecret,
	}
	opts := clientcredentials.Options{
		TokenEndpoint: c.TokenEndpoint,
		Mode:          mode,
		Scope:         c.Scope,
		Verbose:       c.PrintTokenResponse,
	}
	return creds, opts, nil
}

// HTTPClient returns the client used for token and resource requests.
func (c *Config) HTTPClient() *http.Client {
	return &http.Client{Timeout: c.Timeout}
}

// LogSettings returns the observability settings.
func (c *Config) LogSettings() (observability.Settings, error) {
	level, err := observability.ParseLevel(c.Log.Level)
	if err != nil {
		return observability.Settings{}, err
	}
	return observability.Settings{
		Level:    level,
		Format:   c.Log.Format,
		Exporter: c.Log.Exporter,
	}, nil
}

// NewSecretStore returns the writable secret store for this configuration.
func (c *Config) NewSecretStore() (secretstore.Store, error) {
	switch c.SecretStorage {
	case SecretStorageKeyring:
		return secretstore.NewKeyringStore(""), nil
	case SecretStorageConfig:
		return nil, errors.New("secret storage \"config\" is read-only; set secret_storage = \"keyring\"")
	default:
		return nil, fmt.Errorf("unknown secret storage %q", c.SecretStorage)
	}
}

// ResolveSecret fills ClientSecret from store when it is not configured and
// keyring storage is enabled. A missing entry is not an error: the empty
// secret is rejected later with a configuration error.
func (c *Config) ResolveSecret(ctx context.Context, store secretstore.Store) error {
	if c.ClientSecret != "" || c.ClientID == "" || c.SecretStorage != SecretStorageKeyring {
		return nil
	}

	secret, err := store.Read(ctx, c.ClientID)
	if errors.Is(err, secretstore.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("resolving client secret: %w", err)
	}

	c.ClientSecret = secret
	return nil
}
