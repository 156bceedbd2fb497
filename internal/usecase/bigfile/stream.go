package bigfile

import (
	"context"
	"fmt"
	"io"

	"github.com/sir_venger/bigfile/pkg/contenthash"
)

// Size сообщает длину файла до начала передачи, чтобы транспорт мог
// выставить Content-Length.
func (s *Uploads) Size(ctx context.Context, id contenthash.Hash) (int64, error) {
	return s.chunks.Size(ctx, id)
}

// Stream отдаёт объект целиком. До первой записи в w возвращает
// models.ErrNotFound, поэтому транспорт успевает выставить 404.
func (s *Uploads) Stream(ctx context.Context, id contenthash.Hash, w io.Writer) error {
	rc, err := s.chunks.Get(ctx, id)
	if err != nil {
		return err
	}
	defer rc.Close()

	if _, err = io.Copy(w, ctxReader{ctx: ctx, r: rc}); err != nil {
		return fmt.Errorf("stream %s: %w", id, err)
	}

	return nil
}
