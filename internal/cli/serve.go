package cli

import (
	"context"
	"log/slog"
	"time"

	"github.com/eshaffer321/receipt-reconciler/internal/api"
	"github.com/eshaffer321/receipt-reconciler/internal/infrastructure/config"
)

const shutdownTimeout = 30 * time.Second

// RunServe runs the API server, and the sweep scheduler unless disabled,
// until ctx is cancelled.
func RunServe(ctx context.Context, cfg *config.Config, app *App, flags ServeFlags) error {
	apiCfg := api.Config{
		Port:           cfg.API.Port,
		AllowedOrigins: cfg.API.AllowedOrigins,
	}
	if flags.Port != 0 {
		apiCfg.Port = flags.Port
	}

	server := api.NewServer(apiCfg, app.Store, app.Engine, app.Scheduler, app.Logger)

	if cfg.Scheduler.Enabled && !flags.NoScheduler {
		app.Scheduler.Start()
	} else {
		app.Logger.Info("periodic sweeps disabled; on-demand sweeps still available")
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	app.Logger.Info("received shutdown signal")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		app.Logger.Error("server shutdown error", slog.Any("error", err))
	}
	app.Scheduler.Stop()

	err := <-errCh
	app.Logger.Info("server stopped")
	return err
}
