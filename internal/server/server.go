package server

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/MKhiriev/go-pos-sync/internal/config"
	"github.com/MKhiriev/go-pos-sync/internal/handler"
	"github.com/MKhiriev/go-pos-sync/internal/logger"
)

const defaultShutdownTimeout = 15 * time.Second

type App struct {
	servers         []Server
	runners         []Runner
	shutdownTimeout time.Duration
	logger          *logger.Logger
}

// NewServer builds a server per handler in handlers. runners are the
// background jobs that live as long as the servers.
func NewServer(handlers *handler.Handlers, cfg config.Server, logger *logger.Logger, runners ...Runner) (*App, error) {
	logger.Info().Msg("creating new server...")
	app := &App{
		runners:         runners,
		shutdownTimeout: cfg.ShutdownTimeout,
		logger:          logger,
	}
	if app.shutdownTimeout <= 0 {
		app.shutdownTimeout = defaultShutdownTimeout
	}

	if handlers.HTTP != nil && cfg.HTTPAddress != "" {
		app.servers = append(app.servers, newHTTPServer(handlers.HTTP.Init(), cfg, logger))
	}
	if handlers.GRPC != nil && cfg.GRPCAddress != "" {
		app.servers = append(app.servers, newGRPCServer(handlers.GRPC, cfg, logger))
	}

	if len(app.servers) == 0 {
		return nil, ErrNoListeners
	}
	return app, nil
}

// Run serves until SIGTERM, SIGINT or SIGQUIT.
func (a *App) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT, syscall.SIGQUIT)
	defer stop()

	return a.RunContext(ctx)
}

// RunContext serves until ctx is done or a server or runner fails, then
// shuts every server down within the shutdown timeout. It returns the first
// failure, or nil after a requested stop.
func (a *App) RunContext(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	for _, s := range a.servers {
		g.Go(s.RunServer)
	}
	for _, r := range a.runners {
		g.Go(func() error {
			return r.Run(gctx)
		})
	}

	g.Go(func() error {
		<-gctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), a.shutdownTimeout)
		defer cancel()

		var firstErr error
		for _, s := range a.servers {
			if err := s.Shutdown(shutdownCtx); err != nil && firstErr == nil {
				firstErr = err
			}
		}
		return firstErr
	})

	err := g.Wait()
	if err != nil {
		a.logger.Err(err).Msg("server stopped with error")
		return err
	}
	a.logger.Info().Msg("server shutdown gracefully")
	return nil
}
