package clientcredentials

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
)

const grantType = "client_credentials"

// TokenRequest is the wire-level token request. It is fully determined by the
// credentials and options it was built from and must not be modified.
type TokenRequest struct {
	Endpoint string
	Method   string
	Header   http.Header
	Body     []byte
	Mode     RequestMode
	Verbose  bool
}

// NewHTTPRequest materializes the token request. Each call returns a new
// *http.Request with its own header map and body reader.
func (r *TokenRequest) NewHTTPRequest(ctx context.Context) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, r.Method, r.Endpoint, bytes.NewReader(r.Body))
	if err != nil {
		return nil, fmt.Errorf("creating token request: %w", err)
	}
	req.Header = r.Header.Clone()
	return req, nil
}

// jsonTokenRequest is the body sent in ModeJSON. Field order is fixed so the
// encoding is deterministic.
type jsonTokenRequest struct {
	GrantType    string `json:"grant_type"`
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
	Scope        string `json:"scope,omitempty"`
}

// BuildRequest constructs the token request for the client credentials grant
// (RFC 6749 section 4.4). It performs no I/O and returns a *ConfigurationError
// for missing credentials, a missing or invalid endpoint, or an unknown mode.
func BuildRequest(creds Credentials, opts Options) (*TokenRequest, error) {
	if err := validateInput(creds, opts); err != nil {
		return nil, err
	}

	header := make(http.Header)
	header.Set("Accept", "application/json")

	var body []byte
	switch opts.Mode {
	case ModeBasic:
		header.Set("Content-Type", "application/x-www-form-urlencoded")
		header.Set("Authorization", "Basic "+basicAuth(creds.ClientID, creds.ClientSecret))
		form := url.Values{"grant_type": {grantType}}
		if opts.Scope != "" {
			form.Set("scope", opts.Scope)
		}
		body = []byte(form.Encode())

	case ModeForm:
		header.Set("Content-Type", "application/x-www-form-urlencoded")
		form := url.Values{
			"grant_type":    {grantType},
			"client_id":     {creds.ClientID},
			"client_secret": {creds.ClientSecret},
		}
		if opts.Scope != "" {
			form.Set("scope", opts.Scope)
		}
		body = []byte(form.Encode())

	case ModeJSON:
		header.Set("Content-Type", "application/json")
		encoded, err := json.Marshal(jsonTokenRequest{
			GrantType:    grantType,
			ClientID:     creds.ClientID,
			ClientSecret: creds.ClientSecret,
			Scope:        opts.Scope,
		})
		if err != nil {
			return nil, fmt.Errorf("marshaling token request: %w", err)
		}
		body = encoded

	default:
		// validateInput rejects unknown modes
		return nil, &ConfigurationError{Field: "token_request_type", Reason: fmt.Sprintf("has unsupported value %s", opts.Mode)}
	}

	return &TokenRequest{
		Endpoint: opts.TokenEndpoint,
		Method:   http.MethodPost,
		Header:   header,
		Body:     body,
		Mode:     opts.Mode,
		Verbose:  opts.Verbose,
	}, nil
}

func basicAuth(clientID, clientSecret string) string {
	return base64.StdEncoding.EncodeToString([]byte(clientID + ":" + clientSecret))
}
