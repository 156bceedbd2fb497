package bigfilehttp

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	log "github.com/sirupsen/logrus"

	"github.com/sir_venger/bigfile/internal/blobstore"
	"github.com/sir_venger/bigfile/internal/config"
	meta "github.com/sir_venger/bigfile/internal/repo"
	"github.com/sir_venger/bigfile/internal/usecase/bigfile"
)

// Server serves the chunked upload HTTP API.
type Server struct {
	Uploads bigfile.Service
	Cfg     *config.Config

	blobs    blobstore.BlobStore
	maxChunk int64
	log      log.FieldLogger
	closers  []io.Closer
}

// NewServer конструктор: открывает хранилище по конфигурации и собирает роутер.
func NewServer(cfg *config.Config) (http.Handler, *Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}
	maxChunk, err := cfg.MaxChunkBytes()
	if err != nil {
		return nil, nil, err
	}

	logger := log.WithField("component", "bigfilehttp")
	ctx := context.Background()
	blobs, closer, err := openBlobStore(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}

	srv := &Server{
		Cfg:      cfg,
		blobs:    blobs,
		maxChunk: maxChunk,
		log:      logger,
	}
	if closer != nil {
		srv.closers = append(srv.closers, closer)
	}

	srv.Uploads = bigfile.New(bigfile.Deps{
		Blobs:            blobs,
		Logger:           log.WithField("component", "bigfile"),
		MergeParallelism: cfg.MergeParallelism,
		Manifests:        openManifestStore(blobs),
	})

	return srv.routes(), srv, nil
}

// openManifestStore держит манифесты в Postgres на пуле хранилища, если
// данные лежат там же, иначе рядом с объектами в самом хранилище.
func openManifestStore(blobs blobstore.BlobStore) meta.Store {
	if pg, ok := blobs.(*blobstore.PGStore); ok {
		return meta.NewPGStore(pg.Pool())
	}

	return meta.NewBlobStore(blobs)
}

// openBlobStore выбирает бэкенд хранилища.
func openBlobStore(ctx context.Context, cfg *config.Config) (blobstore.BlobStore, io.Closer, error) {
	switch cfg.Backend {
	case config.BackendFS:
		s, err := blobstore.NewFS(cfg.DataDir)
		return s, nil, err
	case config.BackendMemory:
		return blobstore.NewMemory(), nil, nil
	case config.BackendPostgres:
		s, err := blobstore.OpenPostgres(ctx, cfg.PostgresDSN)
		if err != nil {
			return nil, nil, err
		}
		return s, s, nil
	case config.BackendBadger:
		s, err := blobstore.OpenBadger(cfg.BadgerDir)
		if err != nil {
			return nil, nil, err
		}
		return s, s, nil
	default:
		return nil, nil, fmt.Errorf("unknown backend %q", cfg.Backend)
	}
}

// routes регистрирует обработчики API, здоровья и GC.
func (a *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(a.requestLogger)
	r.Use(middleware.Recoverer)

	api := func(ar chi.Router) {
		ar.Get("/chunk/{hash}/status", a.chunkStatus)
		ar.Post("/chunk/{hash}", a.uploadChunk)
		ar.Post("/merge", a.merge)
		ar.Get("/file/{id}", a.fetchFile)
		ar.Get("/file/{id}/manifest", a.fileManifest)
		// Старые клиенты скачивают файл прямо по {base}/{id}.
		ar.Get("/{id}", a.fetchFile)
	}
	if base := strings.TrimRight(a.Cfg.BasePath, "/"); base != "" {
		r.Route(base, api)
	} else {
		api(r)
	}

	r.Get("/health", a.health)
	r.Post("/admin/gc", a.gcOnce)
	r.Get("/admin/config", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(a.Cfg)
	})

	return r
}

// Close освобождает ресурсы хранилища.
func (a *Server) Close() error {
	var first error
	for _, c := range a.closers {
		if err := c.Close(); err != nil && first == nil {
			first = err
		}
	}
	a.closers = nil

	return first
}
