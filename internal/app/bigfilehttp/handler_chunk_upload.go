package bigfilehttp

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"

	"github.com/sir_venger/bigfile/internal/models"
	"github.com/sir_venger/bigfile/pkg/bigfileproto"
	"github.com/sir_venger/bigfile/pkg/httperrors"
)

var errNoFileField = errors.New("multipart form has no file field")

// uploadChunk принимает чанк. Повторная загрузка того же чанка тоже 200.
func (a *Server) uploadChunk(w http.ResponseWriter, r *http.Request) {
	h, ok := requireHash(w, r, "hash", http.StatusBadRequest)
	if !ok {
		return
	}

	body, err := chunkBody(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if a.maxChunk > 0 {
		body = &chunkLimiter{r: body, n: a.maxChunk}
	}

	res, err := a.Uploads.UploadChunk(r.Context(), h, body)
	if err != nil {
		if errors.Is(err, models.ErrVerificationFailed) {
			a.log.WithField("hash", h).Warn("chunk rejected: content does not match hash")
		}
		httperrors.Write(w, err)
		return
	}

	w.Header().Set("X-Chunk-Result", res.String())
	w.WriteHeader(http.StatusOK)
}

// chunkBody достаёт тело чанка: поле file из multipart-формы либо сырое тело запроса.
// Форма читается потоково, без буферизации в памяти или во временных файлах.
func chunkBody(r *http.Request) (io.Reader, error) {
	mt, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil || mt != "multipart/form-data" {
		return r.Body, nil
	}

	mr, err := r.MultipartReader()
	if err != nil {
		return nil, fmt.Errorf("read multipart form: %w", err)
	}
	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			return nil, errNoFileField
		}
		if err != nil {
			return nil, fmt.Errorf("read multipart form: %w", err)
		}
		if part.FormName() == bigfileproto.FormFileField {
			return part, nil
		}
		_ = part.Close()
	}
}

// chunkLimiter обрывает чтение, если чанк длиннее n байт.
type chunkLimiter struct {
	r io.Reader
	n int64
}

func (l *chunkLimiter) Read(p []byte) (int, error) {
	if l.n <= 0 {
		var extra [1]byte
		n, err := l.r.Read(extra[:])
		if n > 0 {
			return 0, models.ErrChunkTooLarge
		}
		return 0, err
	}
	if int64(len(p)) > l.n {
		p = p[:l.n]
	}
	n, err := l.r.Read(p)
	l.n -= int64(n)

	return n, err
}
