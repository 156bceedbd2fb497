package bigfile

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/sir_venger/bigfile/internal/models"
	meta "github.com/sir_venger/bigfile/internal/repo"
	"github.com/sir_venger/bigfile/pkg/contenthash"
)

const defaultMergeParallelism = 8

// MergeEngine склеивает упорядоченную последовательность чанков в один объект.
type MergeEngine struct {
	chunks      *ChunkStore
	parallelism int
	log         logrus.FieldLogger
	// manifests необязателен: без него склейки просто не описываются.
	manifests meta.Store
}

// NewMergeEngine создаёт движок склейки. parallelism ограничивает число
// одновременных проверок существования чанков.
func NewMergeEngine(chunks *ChunkStore, parallelism int, logger logrus.FieldLogger) *MergeEngine {
	if parallelism <= 0 {
		parallelism = defaultMergeParallelism
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	return &MergeEngine{chunks: chunks, parallelism: parallelism, log: logger}
}

// Merge возвращает идентификатор склейки. Если объект уже собран, чанки не
// перечитываются. Если какого-то чанка нет, ничего не пишется.
func (e *MergeEngine) Merge(ctx context.Context, seq contenthash.Sequence) (contenthash.Hash, error) {
	id := contenthash.Composite(seq)

	exists, err := e.chunks.Exists(ctx, id)
	if err != nil {
		return "", err
	}
	if exists {
		return id, nil
	}

	if err = e.resolve(ctx, seq); err != nil {
		return "", err
	}

	tmp, err := e.chunks.blobs.CreateTemp(ctx)
	if err != nil {
		return "", fmt.Errorf("create temp for %s: %w", id, err)
	}

	var total int64
	for _, h := range seq {
		n, err := e.appendChunk(ctx, tmp, h)
		if err != nil {
			_ = tmp.Close()
			e.chunks.discard(ctx, tmp.Key())
			return "", err
		}
		total += n
	}
	if err = tmp.Close(); err != nil {
		e.chunks.discard(ctx, tmp.Key())
		return "", fmt.Errorf("finish %s: %w", id, err)
	}

	res, err := e.chunks.place(ctx, tmp.Key(), id)
	if err != nil {
		return "", err
	}

	e.log.WithFields(logrus.Fields{
		"file_id": id,
		"chunks":  len(seq),
		"size":    total,
		"result":  res.String(),
	}).Info("chunks merged")

	e.record(ctx, id, seq, total)

	return id, nil
}

// record сохраняет манифест склейки. Объект уже размещён и остаётся
// источником истины, так что ошибка здесь только логируется.
func (e *MergeEngine) record(ctx context.Context, id contenthash.Hash, seq contenthash.Sequence, size int64) {
	if e.manifests == nil {
		return
	}

	chunks := make([]string, len(seq))
	for i, h := range seq {
		chunks[i] = h.String()
	}
	err := e.manifests.Save(context.WithoutCancel(ctx), models.Manifest{
		ID:        id.String(),
		Chunks:    chunks,
		Size:      size,
		CreatedAt: time.Now().UTC(),
	})
	if err != nil {
		e.log.WithError(err).WithField("file_id", id).Warn("manifest not saved")
	}
}

// resolve проверяет наличие всех чанков до начала записи. Проверки идут
// параллельно, но о пропуске сообщается первым по порядку хешем.
func (e *MergeEngine) resolve(ctx context.Context, seq contenthash.Sequence) error {
	found := make([]bool, len(seq))

	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(e.parallelism)
	for i, h := range seq {
		i, h := i, h
		eg.Go(func() error {
			ok, err := e.chunks.Exists(egCtx, h)
			if err != nil {
				return err
			}
			found[i] = ok
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return err
	}

	for i, ok := range found {
		if !ok {
			return &models.ChunkMissingError{Hash: seq[i].String()}
		}
	}

	return nil
}

func (e *MergeEngine) appendChunk(ctx context.Context, w io.Writer, h contenthash.Hash) (int64, error) {
	rc, err := e.chunks.Get(ctx, h)
	if err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return 0, &models.ChunkMissingError{Hash: h.String()}
		}
		return 0, fmt.Errorf("open chunk %s: %w", h, err)
	}
	defer rc.Close()

	n, err := io.Copy(w, ctxReader{ctx: ctx, r: rc})
	if err != nil {
		return n, fmt.Errorf("copy chunk %s: %w", h, err)
	}

	return n, nil
}
