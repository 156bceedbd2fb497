package main

import (
	"context"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/sir_venger/bigfile/internal/blobstore"
	"github.com/sir_venger/bigfile/internal/config"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}
	if err := cfg.ConfigureLogging(); err != nil {
		log.Fatal(err)
	}

	if cfg.Backend != config.BackendPostgres {
		log.WithField("backend", cfg.Backend).Info("backend has no schema, skipping migrations")
		return
	}
	dsn := strings.TrimSpace(cfg.PostgresDSN)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := blobstore.ApplyMigrations(ctx, dsn); err != nil {
		log.WithError(err).Fatal("apply migrations")
	}

	log.Info("migrations applied")
}
