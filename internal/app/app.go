package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/florianilch/ccauth/internal/clientcredentials"
	"github.com/florianilch/ccauth/internal/proxy"
)

const shutdownTimeout = 5 * time.Second

// App orchestrates the lifecycle of the authenticating proxy.
type App struct {
	proxy      *proxy.Proxy
	health     *Health
	listenAddr string
	started    chan struct{}
}

// Settings configures the App.
type Settings struct {
	ListenAddr      string
	Upstream        string
	MaxRequestBytes int64
}

// New creates an App forwarding to s.Upstream with tokens from authorizer.
func New(authorizer *clientcredentials.Authorizer, s Settings, opts ...proxy.Option) (*App, error) {
	if s.Upstream == "" {
		return nil, errors.New("upstream URL is required")
	}

	health := NewHealth()

	opts = append([]proxy.Option{proxy.WithMaxRequestBytes(s.MaxRequestBytes)}, opts...)
	proxyServer, err := proxy.New(s.Upstream, authorizer, health, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create proxy: %w", err)
	}

	return &App{
		proxy:      proxyServer,
		health:     health,
		listenAddr: s.ListenAddr,
		started:    make(chan struct{}),
	}, nil
}

// Started is closed once the proxy accepts connections.
func (a *App) Started() <-chan struct{} {
	return a.started
}

// Addr returns the proxy's listening address after Started is closed.
func (a *App) Addr() net.Addr {
	return a.proxy.Addr()
}

// Start starts all services and blocks until ctx is cancelled or a service fails.
// Uses errgroup for runtime error monitoring and shutdown function collection for coordinated cleanup.
func (a *App) Start(ctx context.Context) error {
	g, gCtx := errgroup.WithContext(ctx)

	var shutdownFuncs []func(context.Context) error

	slog.InfoContext(gCtx, "starting proxy server", "addr", a.listenAddr)
	proxyErrCh, err := a.proxy.Start(gCtx, a.listenAddr)
	if err != nil {
		return fmt.Errorf("proxy startup failed: %w", err)
	}
	shutdownFuncs = append(shutdownFuncs, a.proxy.Shutdown)

	a.health.SetReady(true)
	close(a.started)

	// Monitor runtime errors - errgroup cancels context on first error
	g.Go(func() error {
		select {
		case err := <-proxyErrCh:
			if err != nil {
				slog.ErrorContext(gCtx, "proxy runtime error", "error", err)
				return fmt.Errorf("proxy: %w", err)
			}
			return nil
		case <-gCtx.Done():
			return nil
		}
	})

	runtimeErr := g.Wait()

	a.health.SetReady(false)
	slog.InfoContext(gCtx, "shutting down services")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	var errs []error
	if runtimeErr != nil {
		errs = append(errs, fmt.Errorf("runtime: %w", runtimeErr))
	}

	for i := len(shutdownFuncs) - 1; i >= 0; i-- {
		if err := shutdownFuncs[i](shutdownCtx); err != nil {
			slog.ErrorContext(shutdownCtx, "service shutdown failed", "error", err)
			errs = append(errs, err)
		}
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	slog.Info("application stopped")
	return nil
}
