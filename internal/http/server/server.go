package server

import (
	"context"
	"errors"
	"net/http"

	"golang.org/x/sync/errgroup"

	"github.com/dropDatabas3/accesscore/internal/config"
	"github.com/dropDatabas3/accesscore/internal/observability/logger"
)

// Run sirve app.Handler y el loop de purga hasta que ctx se cancele; después
// hace shutdown ordenado con server.shutdown_timeout.
func Run(ctx context.Context, cfg *config.Config, app *App) error {
	srv := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      app.Handler,
		ReadTimeout:  cfg.ReadTimeout(),
		WriteTimeout: cfg.WriteTimeout(),
	}
	log := logger.L().With(logger.Layer("server"))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("http server listening", logger.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		return PurgeLoop(gctx, app.Revocations, cfg.PurgeInterval())
	})
	g.Go(func() error {
		<-gctx.Done()
		shCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout())
		defer cancel()
		log.Info("shutting down")
		return srv.Shutdown(shCtx)
	})
	return g.Wait()
}
