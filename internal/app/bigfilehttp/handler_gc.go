package bigfilehttp

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/sir_venger/bigfile/internal/blobstore"
)

const defaultGCTTL = 24 * time.Hour

// gcOnce вручную запускает сбор брошенных временных объектов.
func (a *Server) gcOnce(w http.ResponseWriter, r *http.Request) {
	if _, err := a.sweepOnce(r.Context(), a.gcTTL()); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// StartGC стартует периодическую очистку временных объектов.
// Размещённые объекты GC не трогает никогда.
func (a *Server) StartGC(every time.Duration) func() {
	ttl := a.gcTTL()
	if _, ok := a.blobs.(blobstore.TempSweeper); !ok || every <= 0 {
		return func() {}
	}

	ticker := time.NewTicker(every)
	stop := make(chan struct{})
	var once sync.Once
	go func() {
		for {
			select {
			case <-ticker.C:
				_, _ = a.sweepOnce(context.Background(), ttl)
			case <-stop:
				ticker.Stop()
				return
			}
		}
	}()

	return func() {
		once.Do(func() {
			close(stop)
		})
	}
}

func (a *Server) gcTTL() time.Duration {
	if a.Cfg.GCTTL > 0 {
		return a.Cfg.GCTTL
	}
	return defaultGCTTL
}

// sweepOnce удаляет временные объекты старше ttl, если бэкенд это поддерживает.
func (a *Server) sweepOnce(ctx context.Context, ttl time.Duration) (int, error) {
	sweeper, ok := a.blobs.(blobstore.TempSweeper)
	if !ok {
		return 0, nil
	}

	removed, err := sweeper.SweepTemp(ctx, ttl)
	if err != nil {
		a.log.WithError(err).Warn("temp sweep failed")
		return removed, err
	}
	if removed > 0 {
		a.log.WithField("removed", removed).Info("stale temp blobs removed")
	}

	return removed, nil
}
