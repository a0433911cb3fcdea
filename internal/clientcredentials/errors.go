package clientcredentials

import (
	"encoding/json"
	"fmt"
)

// ConfigurationError reports missing or invalid input. It is returned before
// any request is sent to the token endpoint.
type ConfigurationError struct {
	Field  string
	Reason string
}

// Error implements the error interface.
func (e *ConfigurationError) Error() string {
	if e.Field == "" {
		return "clientcredentials: invalid configuration: " + e.Reason
	}
	return fmt.Sprintf("clientcredentials: %s %s", e.Field, e.Reason)
}

// TransportError reports a network-level failure talking to the token endpoint
// (connection refused, DNS failure, timeout, cancelled context, ...).
type TransportError struct {
	Endpoint string
	Err      error
}

// Error implements the error interface.
func (e *TransportError) Error() string {
	return fmt.Sprintf("clientcredentials: token request to %s failed: %v", e.Endpoint, e.Err)
}

// Unwrap returns the underlying transport failure.
func (e *TransportError) Unwrap() error {
	return e.Err
}

// TokenError is returned when the authorization server answers with a non-2xx
// status. Body holds the decoded JSON value when the response was JSON and the
// raw text otherwise.
type TokenError struct {
	StatusCode int
	Body       any
}

// Error implements the error interface.
func (e *TokenError) Error() string {
	if code := e.ErrorCode(); code != "" {
		return fmt.Sprintf("clientcredentials: token endpoint returned status %d: %s", e.StatusCode, code)
	}
	return fmt.Sprintf("clientcredentials: token endpoint returned status %d", e.StatusCode)
}

// JSON returns the error body as a JSON object, if it was one.
func (e *TokenError) JSON() (map[string]any, bool) {
	m, ok := e.Body.(map[string]any)
	return m, ok
}

// Text returns the error body as text. JSON bodies are re-encoded.
func (e *TokenError) Text() string {
	switch body := e.Body.(type) {
	case nil:
		return ""
	case string:
		return body
	default:
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Sprint(body)
		}
		return string(b)
	}
}

// ErrorCode returns the RFC 6749 section 5.2 "error" field, or "" when the body
// does not carry one.
func (e *TokenError) ErrorCode() string {
	m, ok := e.JSON()
	if !ok {
		return ""
	}
	code, _ := m["error"].(string)
	return code
}

// MalformedResponseError is returned when a 2xx response does not carry a JSON
// object.
type MalformedResponseError struct {
	StatusCode int
	Body       []byte
	Err        error
}

// Error implements the error interface.
func (e *MalformedResponseError) Error() string {
	return fmt.Sprintf("clientcredentials: malformed token response (status %d): %v", e.StatusCode, e.Err)
}

// Unwrap returns the decoding failure.
func (e *MalformedResponseError) Unwrap() error {
	return e.Err
}
