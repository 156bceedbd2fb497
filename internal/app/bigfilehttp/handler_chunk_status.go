package bigfilehttp

import (
	"encoding/json"
	"net/http"

	"github.com/sir_venger/bigfile/pkg/bigfileproto"
	"github.com/sir_venger/bigfile/pkg/httperrors"
)

// chunkStatus сообщает клиенту, загружен ли чанк.
func (a *Server) chunkStatus(w http.ResponseWriter, r *http.Request) {
	h, ok := requireHash(w, r, "hash", http.StatusBadRequest)
	if !ok {
		return
	}

	exists, err := a.Uploads.CheckChunk(r.Context(), h)
	if err != nil {
		httperrors.Write(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(bigfileproto.ChunkStatus{Exists: exists})
}
