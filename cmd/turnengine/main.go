package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/reflective-resonance/turnengine/internal/app"
	"github.com/reflective-resonance/turnengine/internal/config"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	ctx, stopBuild := context.WithCancel(context.Background())
	built, err := app.Build(ctx, cfg)
	if err != nil {
		stopBuild()
		log.Fatalf("build failed: %v", err)
	}

	httpServer := &http.Server{
		Addr:    hostPort(cfg),
		Handler: built.API.Router(),
	}

	go func() {
		log.Printf("server listening on %s", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("listen error: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	log.Printf("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
		_ = httpServer.Close()
	}
	if err := built.Cleanup(shutdownCtx); err != nil {
		log.Printf("cleanup failed: %v", err)
	}
	stopBuild()

	log.Printf("shutdown complete")
}

func hostPort(cfg config.Config) string {
	host := cfg.Host
	if host == "" {
		host = "0.0.0.0"
	}
	port := cfg.Port
	if port <= 0 {
		port = 8080
	}
	return host + ":" + strconv.Itoa(port)
}
