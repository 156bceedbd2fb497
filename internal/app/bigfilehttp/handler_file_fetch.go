package bigfilehttp

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/sir_venger/bigfile/pkg/httperrors"
)

// fetchFile отдаёт объект целиком.
func (a *Server) fetchFile(w http.ResponseWriter, r *http.Request) {
	id, ok := requireHash(w, r, "id", http.StatusNotFound)
	if !ok {
		return
	}

	size, err := a.Uploads.Size(r.Context(), id)
	if err != nil {
		httperrors.Write(w, err)
		return
	}

	// Объекты неизменяемы: хеш годится как ETag.
	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("ETag", `"`+id.String()+`"`)
	w.Header().Set("Content-Length", strconv.FormatInt(size, 10))

	ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
	if err := a.Uploads.Stream(r.Context(), id, ww); err != nil {
		if ww.BytesWritten() == 0 {
			w.Header().Del("Content-Length")
			w.Header().Del("ETag")
			a.log.WithError(err).WithField("file_id", id).Debug("stream failed")
			httperrors.Write(w, err)
			return
		}

		// Статус и часть тела уже ушли: обрываем соединение, чтобы клиент
		// не принял усечённый ответ за целый файл.
		a.log.WithError(err).WithField("file_id", id).WithField("sent", ww.BytesWritten()).Error("stream aborted")
		panic(http.ErrAbortHandler)
	}
}
