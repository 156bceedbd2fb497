// Package httperrors переводит доменные ошибки в HTTP-статусы.
package httperrors

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/sir_venger/bigfile/internal/models"
	"github.com/sir_venger/bigfile/pkg/bigfileproto"
)

// Status возвращает HTTP-статус для ошибки.
func Status(err error) int {
	switch {
	case errors.Is(err, models.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, models.ErrVerificationFailed), errors.Is(err, models.ErrInvalidHash):
		return http.StatusBadRequest
	case errors.Is(err, models.ErrChunkMissing):
		return http.StatusConflict
	case errors.Is(err, models.ErrChunkTooLarge):
		return http.StatusRequestEntityTooLarge
	default:
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return http.StatusRequestEntityTooLarge
		}
		return http.StatusInternalServerError
	}
}

// Write отвечает ошибкой; для пропущенного чанка тело содержит JSON с его хешем.
func Write(w http.ResponseWriter, err error) {
	var missing *models.ChunkMissingError
	if errors.As(err, &missing) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusConflict)
		_ = json.NewEncoder(w).Encode(bigfileproto.MergeConflict{Error: err.Error(), Missing: missing.Hash})
		return
	}

	http.Error(w, err.Error(), Status(err))
}
