package clientcredentials

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/tidwall/gjson"
	"golang.org/x/oauth2"
)

const defaultTokenType = "Bearer"

// TokenResponse is a parsed successful token endpoint response.
type TokenResponse struct {
	// TokenType defaults to "Bearer" when the server omits it.
	TokenType string
	// AccessToken is empty when the server omits it.
	AccessToken string
	// ExpiresIn is the advertised lifetime in seconds, 0 when absent.
	ExpiresIn int64
	// Raw holds every field of the response for diagnostics.
	Raw map[string]any
	// Body is the response body as received.
	Body       []byte
	ReceivedAt time.Time
}

// AuthorizationValue returns the value for the Authorization header.
func (t *TokenResponse) AuthorizationValue() string {
	return t.TokenType + " " + t.AccessToken
}

// Token converts the response to an *oauth2.Token. Raw fields are available
// through Token.Extra.
func (t *TokenResponse) Token() *oauth2.Token {
	tok := &oauth2.Token{
		AccessToken: t.AccessToken,
		TokenType:   t.TokenType,
		ExpiresIn:   t.ExpiresIn,
	}
	if t.ExpiresIn > 0 {
		tok.Expiry = t.ReceivedAt.Add(time.Duration(t.ExpiresIn) * time.Second)
	}
	return tok.WithExtra(t.Raw)
}

// Fetcher sends token requests. It holds no per-request state and is safe for
// concurrent use.
type Fetcher struct {
	client      *http.Client
	diagnostics *diagnostics
}

// NewFetcher creates a Fetcher. Without WithHTTPClient it uses http.DefaultClient.
func NewFetcher(opts ...Option) *Fetcher {
	s := newSettings(opts)
	return &Fetcher{
		client:      s.client,
		diagnostics: newDiagnostics(s.stdout, s.stderr),
	}
}

// Fetch performs exactly one round trip to the token endpoint.
//
// It returns a *TransportError when the endpoint cannot be reached, a
// *TokenError for non-2xx responses and a *MalformedResponseError when a 2xx
// body is not a JSON object.
func (f *Fetcher) Fetch(ctx context.Context, tr *TokenRequest) (*TokenResponse, error) {
	if tr == nil {
		return nil, errors.New("clientcredentials: nil token request")
	}

	req, err := tr.NewHTTPRequest(ctx)
	if err != nil {
		return nil, &ConfigurationError{Field: "token_endpoint", Reason: err.Error()}
	}

	slog.DebugContext(ctx, "requesting token", "endpoint", tr.Endpoint, "mode", tr.Mode.String())

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, &TransportError{Endpoint: tr.Endpoint, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &TransportError{Endpoint: tr.Endpoint, Err: fmt.Errorf("reading response body: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		tokenErr := f.tokenError(tr, resp.StatusCode, body)
		slog.DebugContext(ctx, "token request rejected", "status", resp.StatusCode, "error_code", tokenErr.ErrorCode())
		return nil, tokenErr
	}

	tok, err := parseTokenResponse(resp.StatusCode, body)
	if err != nil {
		return nil, err
	}
	if tr.Verbose {
		f.diagnostics.tokenResponse(body)
	}

	slog.DebugContext(ctx, "token obtained", "token_type", tok.TokenType, "expires_in", tok.ExpiresIn)
	return tok, nil
}

func (f *Fetcher) tokenError(tr *TokenRequest, status int, body []byte) *TokenError {
	tokenErr := &TokenError{StatusCode: status, Body: string(body)}

	var decoded any
	isJSON := gjson.ValidBytes(body) && json.Unmarshal(body, &decoded) == nil
	if isJSON {
		tokenErr.Body = decoded
	}
	if tr.Verbose {
		f.diagnostics.errorResponse(status, body, isJSON)
	}
	return tokenErr
}

func parseTokenResponse(status int, body []byte) (*TokenResponse, error) {
	if !gjson.ValidBytes(body) {
		return nil, &MalformedResponseError{StatusCode: status, Body: body, Err: errors.New("body is not valid JSON")}
	}
	parsed := gjson.ParseBytes(body)
	if !parsed.IsObject() {
		return nil, &MalformedResponseError{StatusCode: status, Body: body, Err: errors.New("body is not a JSON object")}
	}

	var raw map[string]any
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, &MalformedResponseError{StatusCode: status, Body: body, Err: err}
	}

	tok := &TokenResponse{
		TokenType:   defaultTokenType,
		AccessToken: parsed.Get("access_token").String(),
		ExpiresIn:   parsed.Get("expires_in").Int(),
		Raw:         raw,
		Body:        body,
		ReceivedAt:  time.Now(),
	}
	if tt := parsed.Get("token_type"); tt.Exists() && tt.Type != gjson.Null {
		tok.TokenType = tt.String()
	}
	return tok, nil
}
