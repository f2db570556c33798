package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-provider-link/adapters/gocommand"
	linkcommand "github.com/goliatone/go-provider-link/command"
	"github.com/goliatone/go-provider-link/server"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
)

const (
	flagAddress       = "address"
	flagPurgeInterval = "purge-interval"
	flagAutoMigrate   = "auto-migrate"

	shutdownTimeout = 30 * time.Second
)

func newServeCmd(rt *runtime) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the connect and callback endpoints",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return rt.serve(cmd.Context())
		},
	}
	addEngineFlags(cmd)
	cmd.Flags().String(flagAddress, ":1337", "Address to listen on")
	cmd.Flags().Duration(flagPurgeInterval, 10*time.Minute, "Purge expired temp tokens at this interval (0 disables)")
	cmd.Flags().Bool(flagAutoMigrate, false, "Apply pending migrations before serving")
	return cmd
}

func (rt *runtime) serve(ctx context.Context) error {
	if rt.v.GetBool(flagAutoMigrate) {
		if err := rt.migrate(ctx); err != nil {
			return err
		}
	}

	link, err := rt.buildEngine(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if err := link.Close(); err != nil {
			rt.logger.Warn("close runtime", "error", err)
		}
	}()

	release, err := link.registerCommands()
	if err != nil {
		return err
	}
	defer release()

	srv, err := server.New(link.engine,
		server.WithLogger(rt.logger.GetLogger("http")),
		server.WithHandler("/metrics", promhttp.HandlerFor(link.registry, promhttp.HandlerOpts{})),
	)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if link.worker != nil {
		go func() {
			if err := link.worker.Run(ctx); err != nil {
				rt.logger.Error("queue worker stopped", "error", err)
			}
		}()
	}
	if interval := rt.v.GetDuration(flagPurgeInterval); interval > 0 {
		go rt.purgeLoop(ctx, interval)
	}

	httpServer := &http.Server{
		Addr:              rt.v.GetString(flagAddress),
		Handler:           srv.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}

	errCh := make(chan error, 1)
	go func() {
		rt.logger.Info("listening", "address", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	rt.logger.Info("shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func (rt *runtime) purgeLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			purged, err := dispatchPurge(ctx)
			if err != nil {
				rt.logger.Warn("purge expired temp tokens", "error", err)
				continue
			}
			if purged > 0 {
				rt.logger.Debug("purged expired temp tokens", "count", purged)
			}
		}
	}
}

// dispatchPurge runs the purge command through the go-command dispatcher.
func dispatchPurge(ctx context.Context) (int, error) {
	collector := gocmd.NewResult[linkcommand.PurgeResult]()
	if err := gocommand.Dispatch(gocmd.ContextWithResult(ctx, collector), linkcommand.PurgeExpiredMessage{}); err != nil {
		return 0, err
	}
	result, _ := collector.Load()
	return result.Purged, nil
}
