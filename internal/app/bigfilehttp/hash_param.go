package bigfilehttp

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sir_venger/bigfile/pkg/contenthash"
)

// requireHash валидирует хеш из path-параметра. Невалидный хеш не может
// адресовать объект, поэтому вызывающий выбирает статус (400 или 404).
func requireHash(w http.ResponseWriter, r *http.Request, param string, status int) (contenthash.Hash, bool) {
	h, err := contenthash.Parse(chi.URLParam(r, param))
	if err != nil {
		http.Error(w, err.Error(), status)
		return "", false
	}

	return h, true
}
