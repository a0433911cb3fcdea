package clientcredentials

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// RequestMode selects how client credentials are presented to the token endpoint.
type RequestMode int

const (
	// ModeBasic sends the credentials as an HTTP Basic Authorization header
	// and only the grant parameters in a form-encoded body.
	ModeBasic RequestMode = iota
	// ModeForm sends the credentials as form-encoded body parameters.
	ModeForm
	// ModeJSON sends the credentials in a JSON object body.
	ModeJSON
)

// ParseRequestMode parses "basic", "form" or "json". An empty string selects ModeBasic.
func ParseRequestMode(s string) (RequestMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "basic":
		return ModeBasic, nil
	case "form":
		return ModeForm, nil
	case "json":
		return ModeJSON, nil
	default:
		return 0, &ConfigurationError{
			Field:  "token_request_type",
			Reason: fmt.Sprintf("has unsupported value %q (expected: basic, form, json)", s),
		}
	}
}

// String returns the configuration name of the mode.
func (m RequestMode) String() string {
	switch m {
	case ModeBasic:
		return "basic"
	case ModeForm:
		return "form"
	case ModeJSON:
		return "json"
	default:
		return fmt.Sprintf("RequestMode(%d)", int(m))
	}
}

// MarshalText implements encoding.TextMarshaler.
func (m RequestMode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (m *RequestMode) UnmarshalText(text []byte) error {
	mode, err := ParseRequestMode(string(text))
	if err != nil {
		return err
	}
	*m = mode
	return nil
}

// Credentials identify the client to the authorization server.
type Credentials struct {
	ClientID     string `name:"client_id" validate:"required"`
	ClientSecret string `name:"client_secret" validate:"required"`
}

// Options shape the token request.
type Options struct {
	// TokenEndpoint is the absolute URL of the authorization server's token endpoint.
	TokenEndpoint string `name:"token_endpoint" validate:"required,url"`
	Mode          RequestMode
	// Scope is sent as-is when non-empty.
	Scope string
	// Verbose enables the diagnostic sink for token responses and errors.
	Verbose bool
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		if name := f.Tag.Get("name"); name != "" {
			return name
		}
		return f.Name
	})
	return v
}

// validateInput checks credentials and options, returning a *ConfigurationError
// for the first offending field.
func validateInput(creds Credentials, opts Options) error {
	if err := validate.Struct(creds); err != nil {
		return toConfigurationError(err)
	}
	if err := validate.Struct(opts); err != nil {
		return toConfigurationError(err)
	}

	switch opts.Mode {
	case ModeBasic, ModeForm, ModeJSON:
		return nil
	default:
		return &ConfigurationError{Field: "token_request_type", Reason: fmt.Sprintf("has unsupported value %s", opts.Mode)}
	}
}

func toConfigurationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return &ConfigurationError{Reason: err.Error()}
	}

	fe := verrs[0]
	reason := fmt.Sprintf("failed %q validation", fe.Tag())
	switch fe.Tag() {
	case "required":
		reason = "is required"
	case "url":
		reason = fmt.Sprintf("%q is not an absolute URL", fe.Value())
	}
	return &ConfigurationError{Field: fe.Field(), Reason: reason}
}
