package bigfile

import (
	"context"
	"io"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sir_venger/bigfile/internal/blobstore"
	meta "github.com/sir_venger/bigfile/internal/repo"
	"github.com/sir_venger/bigfile/pkg/contenthash"
)

const (
	helloHash contenthash.Hash = "5d41402abc4b2a76b9719d911017c592"
	worldHash contenthash.Hash = "7d793037a0760186574b0282f2f435e7"
)

// countingStore считает открытия объектов, чтобы видеть лишние чтения чанков.
type countingStore struct {
	blobstore.BlobStore
	opens atomic.Int64
}

func (c *countingStore) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	c.opens.Add(1)
	return c.BlobStore.Open(ctx, key)
}

func newService(t *testing.T) (*Uploads, *countingStore) {
	t.Helper()
	store := &countingStore{BlobStore: blobstore.NewMemory()}
	return New(Deps{Blobs: store, Manifests: meta.NewMemoryStore()}), store
}

func mustUpload(t *testing.T, s *Uploads, data string) contenthash.Hash {
	t.Helper()
	h := contenthash.DigestBytes([]byte(data))
	_, err := s.UploadChunk(context.Background(), h, strings.NewReader(data))
	require.NoError(t, err)
	return h
}

func fetch(t *testing.T, s *Uploads, id contenthash.Hash) string {
	t.Helper()
	var sb strings.Builder
	require.NoError(t, s.Stream(context.Background(), id, &sb))
	return sb.String()
}

func stringsReader(s string) io.Reader {
	return strings.NewReader(s)
}
