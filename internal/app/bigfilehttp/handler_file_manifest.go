package bigfilehttp

import (
	"encoding/json"
	"net/http"

	"github.com/sir_venger/bigfile/pkg/bigfileproto"
	"github.com/sir_venger/bigfile/pkg/httperrors"
)

// fileManifest отдаёт список чанков, из которых собран файл.
func (a *Server) fileManifest(w http.ResponseWriter, r *http.Request) {
	id, ok := requireHash(w, r, "id", http.StatusNotFound)
	if !ok {
		return
	}

	m, err := a.Uploads.Manifest(r.Context(), id)
	if err != nil {
		httperrors.Write(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(bigfileproto.Manifest{
		FileID:    m.ID,
		Chunks:    m.Chunks,
		Size:      m.Size,
		CreatedAt: m.CreatedAt,
	})
}
