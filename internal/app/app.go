package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/you-humble/pdftoxml/internal/health"

	"golang.org/x/sync/errgroup"
)

type app struct {
	di  *dependencyInjector
	srv *http.Server
}

func New(ctx context.Context, cfgPath string) *app {
	di := newDI(cfgPath)
	di.Logger()
	cfg := di.Config()

	return &app{
		di: di,
		srv: &http.Server{
			Addr:              cfg.HTTP.Addr,
			Handler:           di.Router(ctx),
			ReadHeaderTimeout: cfg.HTTP.ReadHeaderTimeout,
		},
	}
}

// Run serves HTTP, the optional gRPC health endpoint and the conversion
// workers until ctx is done, then shuts them down in that order.
func (a *app) Run(ctx context.Context) error {
	cfg := a.di.Config()

	if err := a.di.Migrate(ctx); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)

	dispatcher := a.di.Dispatcher(ctx)
	if err := dispatcher.Run(gctx); err != nil {
		return fmt.Errorf("dispatcher: %w", err)
	}
	a.di.Sweeper().StartCleanup(gctx)

	g.Go(func() error {
		slog.Info("starting server", slog.String("addr", a.srv.Addr))
		if err := a.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", slog.String("error", err.Error()))
			return err
		}
		return nil
	})

	if cfg.GRPC.Addr != "" {
		hs := health.NewServer(cfg.GRPC.Addr, 0, a.di.HealthChecker(), a.di.Logger())
		g.Go(func() error {
			return hs.Run(gctx)
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutdown signal received")

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cfg.HTTP.ShutdownTimeout)
		defer cancel()
		defer a.di.Close(shutdownCtx)

		var errs []error
		if err := a.srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
		if err := dispatcher.Stop(shutdownCtx); err != nil {
			slog.Error("dispatcher stop error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}

		if len(errs) == 0 {
			slog.Info("server gracefully stopped")
		}
		return errors.Join(errs...)
	})

	return g.Wait()
}

// Migrate creates the database schema and exits.
func Migrate(ctx context.Context, cfgPath string) error {
	di := newDI(cfgPath)
	di.Logger()
	defer di.Close(ctx)

	if err := di.Migrate(ctx); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	slog.Info("database schema is up to date", slog.String("driver", di.Config().Database.Driver))
	return nil
}
