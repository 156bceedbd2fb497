package bigfilehttp

import (
	"encoding/json"
	"net/http"

	"github.com/sir_venger/bigfile/internal/blobstore"
)

// healthStats: payload ответа /health.
type healthStats struct {
	OK         bool   `json:"ok"`
	Backend    string `json:"backend"`
	FreeBytes  int64  `json:"free_bytes"`
	TotalBytes int64  `json:"total_bytes"`
}

// health возвращает состояние хранилища. Ёмкость известна только бэкендам,
// которые умеют её посчитать (локальный диск).
func (a *Server) health(w http.ResponseWriter, r *http.Request) {
	stats := healthStats{OK: true, Backend: a.Cfg.Backend}

	if u, ok := a.blobs.(blobstore.UsageReporter); ok {
		usage, err := u.Usage(r.Context())
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		stats.FreeBytes = usage.FreeBytes
		stats.TotalBytes = usage.TotalBytes
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(stats); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
