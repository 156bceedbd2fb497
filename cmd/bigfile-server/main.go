package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/sir_venger/bigfile/internal/app/bigfilehttp"
	"github.com/sir_venger/bigfile/internal/config"
)

// main поднимает HTTP-сервис загрузки чанков и корректно завершает его по сигналу.
func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}
	if err := cfg.ConfigureLogging(); err != nil {
		log.Fatal(err)
	}

	handler, srv, err := bigfilehttp.NewServer(cfg)
	if err != nil {
		log.WithError(err).Fatal("open storage")
	}
	defer func() {
		if err := srv.Close(); err != nil {
			log.WithError(err).Warn("close storage")
		}
	}()

	// Фоновый GC незавершённых временных объектов.
	stopGC := srv.StartGC(cfg.GCInterval)
	defer stopGC()

	server := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Error("shutdown")
		}
	}()

	log.WithFields(log.Fields{
		"addr":      cfg.ListenAddr,
		"base_path": cfg.BasePath,
		"backend":   cfg.Backend,
		"gc_ttl":    cfg.GCTTL,
		"gc_every":  cfg.GCInterval,
	}).Info("bigfile listening")
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.WithError(err).Error("listen")
		return
	}
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.WithError(err).Error("final shutdown")
	}
}
