package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"tenantguard/internal/platform/config"
	"tenantguard/internal/platform/logger"
)

// main builds the infrastructure, mounts the routes and owns the process
// lifecycle. Component construction lives in wiring.go.
func main() {
	cfg := config.FromEnv()
	log := logger.New(cfg.LogLevel)

	if cfg.SessionSigningKey == "" {
		log.Error("SESSION_SIGNING_KEY is required")
		os.Exit(1)
	}
	if cfg.AdminToken == "" {
		log.Warn("ADMIN_TOKEN is empty; admin routes will reject every request")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := build(ctx, cfg, log)
	if err != nil {
		log.Error("failed to initialize tenantguard", "error", err)
		os.Exit(1)
	}
	defer app.close()

	log.Info("initializing tenantguard",
		"addr", cfg.Addr,
		"postgres", app.infra.db != nil,
		"redis", app.infra.redis != nil,
		"kafka", app.infra.kafka != nil,
		"tables", len(app.registry.Names()),
	)

	go app.runBackground(ctx)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           app.router(cfg, log),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info("starting http server", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	log.Info("shutting down server gracefully")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", "error", err)
	}
	log.Info("server stopped")
}
