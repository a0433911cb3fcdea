// Package proxy implements an authenticating reverse proxy: every request it
// forwards carries an Authorization header obtained with a fresh client
// credentials token request.
package proxy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/http/httputil"
	"net/url"
	"time"

	"github.com/florianilch/ccauth/internal/clientcredentials"
	"github.com/florianilch/ccauth/internal/observability/middleware"
)

const defaultMaxRequestBytes = 10 << 20

// Proxy forwards requests to a single upstream and authorizes each of them.
type Proxy struct {
	handler         http.Handler
	transport       http.RoundTripper
	maxRequestBytes int64

	server *http.Server
	addr   net.Addr
}

// Compile-time check to ensure Proxy implements http.Handler
var _ http.Handler = (*Proxy)(nil)

// Option configures a Proxy.
type Option func(*Proxy)

// WithTransport sets the transport used to reach the upstream. Token
// injection is layered on top of it.
func WithTransport(transport http.RoundTripper) Option {
	return func(p *Proxy) {
		p.transport = transport
	}
}

// WithMaxRequestBytes limits the size of forwarded request bodies.
func WithMaxRequestBytes(n int64) Option {
	return func(p *Proxy) {
		if n > 0 {
			p.maxRequestBytes = n
		}
	}
}

// New creates a Proxy forwarding to upstream.
func New(upstream string, authorizer *clientcredentials.Authorizer, health ReadinessChecker, opts ...Option) (*Proxy, error) {
	if authorizer == nil {
		return nil, errors.New("authorizer cannot be nil")
	}

	target, err := url.Parse(upstream)
	if err != nil {
		return nil, fmt.Errorf("invalid upstream URL: %w", err)
	}
	if target.Scheme == "" || target.Host == "" {
		return nil, fmt.Errorf("invalid upstream URL %q: scheme and host are required", upstream)
	}

	p := &Proxy{
		transport:       http.DefaultTransport,
		maxRequestBytes: defaultMaxRequestBytes,
	}
	for _, opt := range opts {
		opt(p)
	}

	reverseProxy := &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			pr.SetURL(target)
			pr.SetXForwarded()
		},
		Transport:    clientcredentials.NewTransport(authorizer, p.transport),
		ErrorHandler: errorHandler,
	}

	mux := http.NewServeMux()
	mux.Handle("GET /healthz", livenessHandler())
	mux.Handle("GET /readyz", readinessHandler(health))
	mux.Handle("/", reverseProxy)

	p.handler = applyMiddlewares(mux,
		Recovery,
		middleware.RequestID,
		middleware.TraceContextExtraction,
		middleware.Logging(slog.Default()),
		RequestSizeLimit(p.maxRequestBytes),
	)

	return p, nil
}

// ServeHTTP implements http.Handler.
func (p *Proxy) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	p.handler.ServeHTTP(w, r)
}

// Start listens on addr and serves in the background. The returned channel
// receives the terminal serve error (nil after a graceful Shutdown).
func (p *Proxy) Start(ctx context.Context, addr string) (<-chan error, error) {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	p.addr = ln.Addr()
	p.server = &http.Server{
		Handler:           p,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}

	errCh := make(chan error, 1)
	go func() {
		defer close(errCh)
		if err := p.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	slog.InfoContext(ctx, "proxy listening", "addr", p.addr.String())
	return errCh, nil
}

// Addr returns the listening address once Start succeeded.
func (p *Proxy) Addr() net.Addr {
	return p.addr
}

// Shutdown gracefully stops the server, waiting for in-flight requests.
func (p *Proxy) Shutdown(ctx context.Context) error {
	if p.server == nil {
		return nil
	}
	return p.server.Shutdown(ctx)
}

func errorHandler(w http.ResponseWriter, r *http.Request, err error) {
	ctx := r.Context()
	if errors.Is(err, context.Canceled) && ctx.Err() != nil {
		slog.DebugContext(ctx, "client disconnected before upstream response")
		return
	}

	var maxBytesErr *http.MaxBytesError
	if errors.As(err, &maxBytesErr) {
		slog.WarnContext(ctx, "request exceeds size limit", "limit_bytes", maxBytesErr.Limit)
		writeJSON(ctx, w, &ErrorResponse{Err: Error{
			Message: http.StatusText(http.StatusRequestEntityTooLarge),
			Type:    "invalid_request_error",
		}}, http.StatusRequestEntityTooLarge)
		return
	}

	errResp, status := toErrorResponse(err)
	slog.ErrorContext(ctx, "forwarding failed", "error", err, "type", errResp.Err.Type)
	middleware.SetLogAttrs(ctx, slog.String("error_type", errResp.Err.Type))
	writeJSON(ctx, w, errResp, status)
}
