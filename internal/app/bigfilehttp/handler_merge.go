package bigfilehttp

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/sir_venger/bigfile/pkg/bigfileproto"
	"github.com/sir_venger/bigfile/pkg/contenthash"
	"github.com/sir_venger/bigfile/pkg/httperrors"
)

// maxMergeBody ограничивает тело merge: ~240 тысяч хешей.
const maxMergeBody = 8 << 20

// merge склеивает чанки в порядке JSON-массива.
func (a *Server) merge(w http.ResponseWriter, r *http.Request) {
	var seq contenthash.Sequence
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxMergeBody))
	if err := dec.Decode(&seq); err != nil {
		http.Error(w, fmt.Sprintf("invalid merge request: %v", err), http.StatusBadRequest)
		return
	}
	// После массива допустимы только пробельные символы.
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		http.Error(w, "invalid merge request: unexpected data after JSON array", http.StatusBadRequest)
		return
	}
	if seq == nil {
		http.Error(w, "invalid merge request: expected JSON array of chunk hashes", http.StatusBadRequest)
		return
	}

	id, err := a.Uploads.Merge(r.Context(), seq)
	if err != nil {
		httperrors.Write(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(bigfileproto.MergeResult{FileID: id.String()})
}
