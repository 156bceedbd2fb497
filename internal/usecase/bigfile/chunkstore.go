package bigfile

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/sirupsen/logrus"

	"github.com/sir_venger/bigfile/internal/blobstore"
	"github.com/sir_venger/bigfile/internal/models"
	"github.com/sir_venger/bigfile/pkg/contenthash"
)

// ChunkStore: адресуемое по содержимому хранилище чанков и склеенных файлов.
type ChunkStore struct {
	blobs blobstore.BlobStore
	log   logrus.FieldLogger
}

// NewChunkStore создаёт хранилище поверх BlobStore.
func NewChunkStore(blobs blobstore.BlobStore, logger logrus.FieldLogger) *ChunkStore {
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	return &ChunkStore{blobs: blobs, log: logger}
}

// Exists сообщает, лежит ли объект по адресу хеша.
func (s *ChunkStore) Exists(ctx context.Context, h contenthash.Hash) (bool, error) {
	ok, err := s.blobs.Exists(ctx, LocationOf(h))
	if err != nil {
		return false, fmt.Errorf("stat %s: %w", h, err)
	}

	return ok, nil
}

// Put сохраняет чанк, если его ещё нет. Данные сначала пишутся во временный
// объект, дайджест считается в том же проходе, и только совпавший по хешу
// объект размещается под своим адресом.
func (s *ChunkStore) Put(ctx context.Context, h contenthash.Hash, r io.Reader) (models.PutResult, error) {
	exists, err := s.Exists(ctx, h)
	if err != nil {
		return 0, err
	}
	if exists {
		return models.PutAlreadyExists, nil
	}

	tmp, err := s.blobs.CreateTemp(ctx)
	if err != nil {
		return 0, fmt.Errorf("create temp for %s: %w", h, err)
	}

	ok, err := contenthash.Verify(io.TeeReader(ctxReader{ctx: ctx, r: r}, tmp), h)
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		s.discard(ctx, tmp.Key())
		return 0, fmt.Errorf("receive chunk %s: %w", h, err)
	}
	if !ok {
		s.discard(ctx, tmp.Key())
		return 0, fmt.Errorf("%w: %s", models.ErrVerificationFailed, h)
	}

	return s.place(ctx, tmp.Key(), h)
}

// Get открывает объект для чтения; models.ErrNotFound, если его нет.
func (s *ChunkStore) Get(ctx context.Context, h contenthash.Hash) (io.ReadCloser, error) {
	return s.blobs.Open(ctx, LocationOf(h))
}

// Size возвращает длину объекта; models.ErrNotFound, если его нет.
func (s *ChunkStore) Size(ctx context.Context, h contenthash.Hash) (int64, error) {
	return s.blobs.Size(ctx, LocationOf(h))
}

// place публикует временный объект. Проигравший гонку писатель получает
// PutAlreadyExists: содержимое по адресу то же самое.
func (s *ChunkStore) place(ctx context.Context, tempKey string, h contenthash.Hash) (models.PutResult, error) {
	if err := ctx.Err(); err != nil {
		s.discard(ctx, tempKey)
		return 0, err
	}

	err := s.blobs.AtomicPlace(ctx, tempKey, LocationOf(h))
	switch {
	case err == nil:
		s.log.WithField("hash", h).Debug("object placed")
		return models.PutCreated, nil
	case errors.Is(err, models.ErrAlreadyExists):
		return models.PutAlreadyExists, nil
	default:
		return 0, fmt.Errorf("place %s: %w", h, err)
	}
}

func (s *ChunkStore) discard(ctx context.Context, tempKey string) {
	if err := s.blobs.DiscardTemp(context.WithoutCancel(ctx), tempKey); err != nil {
		s.log.WithError(err).WithField("temp", tempKey).Warn("discard temp blob")
	}
}
