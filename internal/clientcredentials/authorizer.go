package clientcredentials

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"golang.org/x/oauth2"
)

type settings struct {
	client *http.Client
	stdout io.Writer
	stderr io.Writer
}

// Option configures an Authorizer or Fetcher.
type Option func(*settings)

// WithHTTPClient sets the client used for token requests. Timeouts and
// transport-level policy belong to this client.
func WithHTTPClient(client *http.Client) Option {
	return func(s *settings) {
		s.client = client
	}
}

// WithDiagnostics redirects the verbose diagnostic output. Successful
// responses go to stdout, token endpoint errors to stderr. Nil writers keep
// the process streams.
func WithDiagnostics(stdout, stderr io.Writer) Option {
	return func(s *settings) {
		s.stdout = stdout
		s.stderr = stderr
	}
}

func newSettings(opts []Option) settings {
	var s settings
	for _, opt := range opts {
		opt(&s)
	}
	if s.client == nil {
		s.client = http.DefaultClient
	}
	return s
}

// Authorizer obtains a fresh access token for every call and attaches it to
// outgoing requests. Tokens are never cached.
type Authorizer struct {
	credentials Credentials
	options     Options
	fetcher     *Fetcher
}

// New validates credentials and options and returns an Authorizer. Invalid
// input yields a *ConfigurationError.
func New(creds Credentials, opts Options, options ...Option) (*Authorizer, error) {
	if err := validateInput(creds, opts); err != nil {
		return nil, err
	}

	return &Authorizer{
		credentials: creds,
		options:     opts,
		fetcher:     NewFetcher(options...),
	}, nil
}

// Token builds and sends one token request.
func (a *Authorizer) Token(ctx context.Context) (*TokenResponse, error) {
	tr, err := BuildRequest(a.credentials, a.options)
	if err != nil {
		return nil, err
	}
	return a.fetcher.Fetch(ctx, tr)
}

// Authorize obtains a token and sets the Authorization header on req. On
// error req is left untouched.
func (a *Authorizer) Authorize(ctx context.Context, req *http.Request) error {
	tok, err := a.Token(ctx)
	if err != nil {
		return err
	}
	Decorate(req, tok)
	return nil
}

// TokenSource returns an oauth2.TokenSource that fetches a new token on every
// Token call.
func (a *Authorizer) TokenSource(ctx context.Context) oauth2.TokenSource {
	return &tokenSource{ctx: ctx, authorizer: a}
}

type tokenSource struct {
	ctx        context.Context
	authorizer *Authorizer
}

func (ts *tokenSource) Token() (*oauth2.Token, error) {
	tok, err := ts.authorizer.Token(ts.ctx)
	if err != nil {
		return nil, err
	}
	return tok.Token(), nil
}

// Decorate sets "Authorization: <token_type> <access_token>" on req. An empty
// access token still produces the header.
func Decorate(req *http.Request, tok *TokenResponse) *http.Request {
	if req.Header == nil {
		req.Header = make(http.Header)
	}
	req.Header.Set("Authorization", tok.AuthorizationValue())
	return req
}

// Transport is an http.RoundTripper that authorizes every outgoing request
// with a freshly fetched token.
type Transport struct {
	// Base is the underlying transport. If nil, http.DefaultTransport is used.
	Base http.RoundTripper

	Authorizer *Authorizer
}

// NewTransport wraps base with token injection.
func NewTransport(a *Authorizer, base http.RoundTripper) *Transport {
	if base == nil {
		base = http.DefaultTransport
	}
	return &Transport{Base: base, Authorizer: a}
}

// RoundTrip implements http.RoundTripper. The original request is not modified.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	if t.Authorizer == nil {
		return nil, fmt.Errorf("clientcredentials: Transport has no Authorizer")
	}

	tok, err := t.Authorizer.Token(req.Context())
	if err != nil {
		// RoundTrippers must close the request body, even on errors.
		if req.Body != nil {
			_ = req.Body.Close()
		}
		return nil, err
	}

	reqClone := Decorate(req.Clone(req.Context()), tok)

	base := t.Base
	if base == nil {
		base = http.DefaultTransport
	}
	return base.RoundTrip(reqClone)
}
