/*
Package main is the entry point for the Concord gateway.

It is responsible for loading configuration, initializing the global logging
system, connecting to PostgreSQL, wiring the gateway's injected state (hub,
voice tracker, stores), starting the HTTP server, and gracefully handling
operating system interrupt signals (SIGINT, SIGTERM).
*/
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"concord/internal/app/db"
	"concord/internal/app/gateway"
	"concord/internal/app/store"
	"concord/internal/configs"
	"concord/internal/handler"
	"concord/internal/pkg/auth/jwt"
	"concord/internal/pkg/logx"
)

func main() {
	// Load configuration from environment variables
	cfg, err := configs.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize global logger
	logx.InitGlobalLogger(cfg.Environment == "development")
	logx.Logger().Info().
		Str("environment", cfg.Environment).
		Int("port", cfg.Port).
		Strs("allowed_origins", cfg.AllowedOrigins).
		Msg("Configuration loaded successfully")

	// Create a context that listens for the interrupt signal from the OS.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Connect to PostgreSQL and run migrations
	pool, err := db.NewPool(cfg.DatabaseDSN)
	if err != nil {
		logx.Fatal(err, "Failed to connect to database")
	}
	defer pool.Close()

	pg := store.NewPostgres(pool)

	// Wire the gateway: hub and voice state are injected, not global, so
	// tests and future sharding can run isolated instances.
	gw := gateway.New(gateway.NewHub(), gateway.NewVoiceState(), gateway.Stores{
		Roles:         pg,
		Channels:      pg,
		Messages:      pg,
		Conversations: pg,
	})

	deps := &handler.AppDeps{
		Gateway:  gw,
		Config:   cfg,
		Verifier: jwt.NewVerifier(cfg.JWTSecret),
	}

	router := handler.Router(deps)

	serverAddr := fmt.Sprintf(":%d", cfg.Port)
	server := &http.Server{
		Addr:         serverAddr,
		Handler:      router,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logx.Info(fmt.Sprintf("Concord gateway starting on http://localhost%s", serverAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logx.Fatal(err, "Server failed to start")
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server with a timeout of 5 seconds.
	<-ctx.Done()
	logx.Info("Received shutdown signal. Starting graceful shutdown...")

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelShutdown()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logx.Fatal(err, "Server forced to shutdown")
	}

	logx.Info("Server gracefully stopped.")
}
