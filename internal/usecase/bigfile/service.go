package bigfile

import (
	"context"
	"io"

	"github.com/sirupsen/logrus"

	"github.com/sir_venger/bigfile/internal/blobstore"
	"github.com/sir_venger/bigfile/internal/models"
	meta "github.com/sir_venger/bigfile/internal/repo"
	"github.com/sir_venger/bigfile/pkg/contenthash"
)

type (
	// Service объединяет операции загрузки чанков, склейки и выдачи файлов.
	Service interface {
		CheckChunk(ctx context.Context, h contenthash.Hash) (bool, error)
		UploadChunk(ctx context.Context, h contenthash.Hash, r io.Reader) (models.PutResult, error)
		Merge(ctx context.Context, seq contenthash.Sequence) (contenthash.Hash, error)
		Size(ctx context.Context, id contenthash.Hash) (int64, error)
		Stream(ctx context.Context, id contenthash.Hash, w io.Writer) error
		Manifest(ctx context.Context, id contenthash.Hash) (models.Manifest, error)
	}
)

type Deps struct {
	Blobs            blobstore.BlobStore
	Logger           logrus.FieldLogger
	MergeParallelism int
	Manifests        meta.Store
}

type Uploads struct {
	Deps
	chunks *ChunkStore
	merger *MergeEngine
}

// New конструирует сервис загрузки с заданными зависимостями.
func New(deps Deps) *Uploads {
	if deps.Logger == nil {
		deps.Logger = logrus.StandardLogger()
	}

	chunks := NewChunkStore(deps.Blobs, deps.Logger)
	merger := NewMergeEngine(chunks, deps.MergeParallelism, deps.Logger)
	merger.manifests = deps.Manifests

	return &Uploads{
		Deps:   deps,
		chunks: chunks,
		merger: merger,
	}
}

var _ Service = (*Uploads)(nil)

// CheckChunk сообщает клиенту, можно ли пропустить загрузку чанка.
func (s *Uploads) CheckChunk(ctx context.Context, h contenthash.Hash) (bool, error) {
	return s.chunks.Exists(ctx, h)
}

// UploadChunk принимает чанк и проверяет его хеш.
func (s *Uploads) UploadChunk(ctx context.Context, h contenthash.Hash, r io.Reader) (models.PutResult, error) {
	res, err := s.chunks.Put(ctx, h, r)
	if err != nil {
		return 0, err
	}
	s.Logger.WithFields(logrus.Fields{"hash": h, "result": res.String()}).Debug("chunk stored")

	return res, nil
}

// Merge склеивает чанки в указанном порядке.
func (s *Uploads) Merge(ctx context.Context, seq contenthash.Sequence) (contenthash.Hash, error) {
	return s.merger.Merge(ctx, seq)
}

// Manifest возвращает описание склейки. Для простых чанков и склеек,
// собранных без хранилища манифестов, это models.ErrNotFound.
func (s *Uploads) Manifest(ctx context.Context, id contenthash.Hash) (models.Manifest, error) {
	if s.Manifests == nil {
		return models.Manifest{}, models.ErrNotFound
	}
	return s.Manifests.Get(ctx, id.String())
}
