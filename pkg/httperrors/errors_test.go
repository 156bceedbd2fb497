package httperrors

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sir_venger/bigfile/internal/models"
	"github.com/sir_venger/bigfile/pkg/bigfileproto"
)

func TestStatus(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("get: %w", models.ErrNotFound), http.StatusNotFound},
		{fmt.Errorf("%w: abc", models.ErrVerificationFailed), http.StatusBadRequest},
		{models.ErrInvalidHash, http.StatusBadRequest},
		{&models.ChunkMissingError{Hash: "x"}, http.StatusConflict},
		{fmt.Errorf("read: %w", &http.MaxBytesError{Limit: 10}), http.StatusRequestEntityTooLarge},
		{fmt.Errorf("receive: %w", models.ErrChunkTooLarge), http.StatusRequestEntityTooLarge},
		{errors.New("disk full"), http.StatusInternalServerError},
	}
	for _, c := range cases {
		if got := Status(c.err); got != c.want {
			t.Errorf("Status(%v) = %d, want %d", c.err, got, c.want)
		}
	}
}

func TestWriteMissingChunk(t *testing.T) {
	rec := httptest.NewRecorder()
	Write(rec, fmt.Errorf("merge: %w", &models.ChunkMissingError{Hash: "5d41402abc4b2a76b9719d911017c592"}))

	if rec.Code != http.StatusConflict {
		t.Fatalf("status %d", rec.Code)
	}
	var body bigfileproto.MergeConflict
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body.Missing != "5d41402abc4b2a76b9719d911017c592" {
		t.Fatalf("missing = %q", body.Missing)
	}
}
