// Command govcore-demo is a thin chi-routed HTTP shim wrapping turn
// ingestion, thread reset, and contradiction resolution. The HTTP surface
// is external plumbing: this exists only as a runnable example, not as
// part of the governed core's contract.
package main

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"groundedmemory/infrastructure/config"
	"groundedmemory/infrastructure/di"
	"groundedmemory/interfaces/http/rest"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("govcore-demo: load config: %v", err)
	}

	container, err := di.InitializeContainer(ctx, cfg)
	if err != nil {
		log.Fatalf("govcore-demo: initialize container: %v", err)
	}
	defer container.Logger.Sync()

	router := rest.NewRouter(container.Orchestrator, container.LedgerService, container.Logger, cfg.EnableCORS)

	srv := &http.Server{
		Addr:         cfg.ServerAddress,
		Handler:      router.Setup(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		container.Logger.Info("govcore-demo listening", zap.String("address", cfg.ServerAddress))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			container.Logger.Fatal("govcore-demo: server error", zap.Error(err))
		}
	}()

	<-ctx.Done()
	container.Logger.Info("govcore-demo shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		container.Logger.Error("govcore-demo: graceful shutdown failed", zap.Error(err))
	}
}
