package bigfile

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sir_venger/bigfile/internal/blobstore"
	"github.com/sir_venger/bigfile/internal/models"
	"github.com/sir_venger/bigfile/pkg/contenthash"
)

func TestHelloScenario(t *testing.T) {
	ctx := context.Background()
	s, _ := newService(t)

	res, err := s.UploadChunk(ctx, helloHash, stringsReader("hello"))
	require.NoError(t, err)
	assert.Equal(t, models.PutCreated, res)

	res, err = s.UploadChunk(ctx, helloHash, stringsReader("hello"))
	require.NoError(t, err)
	assert.Equal(t, models.PutAlreadyExists, res)

	ok, err := s.CheckChunk(ctx, helloHash)
	require.NoError(t, err)
	assert.True(t, ok)

	id, err := s.Merge(ctx, contenthash.Sequence{helloHash})
	require.NoError(t, err)
	assert.Equal(t, contenthash.Hash("69a329523ce1ec88bf63061863d9cb14"), id)
	assert.Equal(t, "hello", fetch(t, s, id))

	size, err := s.Size(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, int64(5), size)

	_, err = s.Size(ctx, worldHash)
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestMergeIsIdempotent(t *testing.T) {
	ctx := context.Background()
	s, store := newService(t)
	h1 := mustUpload(t, s, "hello")
	h2 := mustUpload(t, s, "world")

	first, err := s.Merge(ctx, contenthash.Sequence{h1, h2})
	require.NoError(t, err)
	opens := store.opens.Load()
	assert.Equal(t, int64(2), opens)

	second, err := s.Merge(ctx, contenthash.Sequence{h1, h2})
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, opens, store.opens.Load(), "repeated merge must not re-read chunks")
	assert.Equal(t, "helloworld", fetch(t, s, first))
}

func TestMergeRespectsOrder(t *testing.T) {
	ctx := context.Background()
	s, _ := newService(t)
	h1 := mustUpload(t, s, "hello")
	h2 := mustUpload(t, s, "world")

	forward, err := s.Merge(ctx, contenthash.Sequence{h1, h2})
	require.NoError(t, err)
	backward, err := s.Merge(ctx, contenthash.Sequence{h2, h1})
	require.NoError(t, err)

	assert.Equal(t, contenthash.Hash("ae802c1f58f394d46485b7da18c56e9b"), forward)
	assert.Equal(t, contenthash.Hash("ecdec13e2f0fbcb4fa0a04896077a4ac"), backward)
	assert.Equal(t, "helloworld", fetch(t, s, forward))
	assert.Equal(t, "worldhello", fetch(t, s, backward))
}

func TestMergeEmptySequence(t *testing.T) {
	s, _ := newService(t)

	id, err := s.Merge(context.Background(), contenthash.Sequence{})
	require.NoError(t, err)
	assert.Equal(t, contenthash.Empty, id)
	assert.Equal(t, "", fetch(t, s, id))
}

func TestMergeDuplicateChunks(t *testing.T) {
	s, _ := newService(t)
	h1 := mustUpload(t, s, "ab")
	h2 := mustUpload(t, s, "-")

	id, err := s.Merge(context.Background(), contenthash.Sequence{h1, h2, h1, h1})
	require.NoError(t, err)
	assert.Equal(t, "ab-abab", fetch(t, s, id))
}

func TestMergeMissingChunk(t *testing.T) {
	ctx := context.Background()
	mem := blobstore.NewMemory()
	s := New(Deps{Blobs: mem})
	h2 := mustUpload(t, s, "world")
	before := mem.Len()

	seq := contenthash.Sequence{helloHash, h2}
	_, err := s.Merge(ctx, seq)
	require.ErrorIs(t, err, models.ErrChunkMissing)

	var missing *models.ChunkMissingError
	require.True(t, errors.As(err, &missing))
	assert.Equal(t, helloHash.String(), missing.Hash)

	ok, err := s.CheckChunk(ctx, contenthash.Composite(seq))
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, before, mem.Len())
	assert.Equal(t, 0, mem.TempLen())

	// После дозагрузки чанка повторная склейка проходит.
	mustUpload(t, s, "hello")
	id, err := s.Merge(ctx, seq)
	require.NoError(t, err)
	assert.Equal(t, "helloworld", fetch(t, s, id))
}

func TestMergeReportsFirstMissingInOrder(t *testing.T) {
	s, _ := newService(t)
	h := mustUpload(t, s, "present")

	_, err := s.Merge(context.Background(), contenthash.Sequence{h, worldHash, helloHash})
	var missing *models.ChunkMissingError
	require.True(t, errors.As(err, &missing))
	assert.Equal(t, worldHash.String(), missing.Hash)
}

func TestMergeCancelled(t *testing.T) {
	mem := blobstore.NewMemory()
	s := New(Deps{Blobs: mem})
	h1 := mustUpload(t, s, "hello")
	h2 := mustUpload(t, s, "world")
	before := mem.Len()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.Merge(ctx, contenthash.Sequence{h1, h2})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, before, mem.Len())
	assert.Equal(t, 0, mem.TempLen())
}

func TestMergeOnFilesystem(t *testing.T) {
	fsStore, err := blobstore.NewFS(t.TempDir())
	require.NoError(t, err)
	s := New(Deps{Blobs: fsStore, MergeParallelism: 2})

	var seq contenthash.Sequence
	want := ""
	for _, part := range []string{"alpha ", "beta ", "gamma ", "delta"} {
		seq = append(seq, mustUpload(t, s, part))
		want += part
	}

	id, err := s.Merge(context.Background(), seq)
	require.NoError(t, err)
	assert.Equal(t, want, fetch(t, s, id))
}

func TestMergeRecordsManifest(t *testing.T) {
	ctx := context.Background()
	s, _ := newService(t)
	h1 := mustUpload(t, s, "hello")
	h2 := mustUpload(t, s, "world")

	id, err := s.Merge(ctx, contenthash.Sequence{h1, h2, h1})
	require.NoError(t, err)

	m, err := s.Manifest(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, id.String(), m.ID)
	assert.Equal(t, []string{h1.String(), h2.String(), h1.String()}, m.Chunks)
	assert.Equal(t, int64(15), m.Size)
	assert.False(t, m.CreatedAt.IsZero())

	_, err = s.Manifest(ctx, h1)
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestMergeMissingChunkRecordsNoManifest(t *testing.T) {
	ctx := context.Background()
	s, _ := newService(t)
	h1 := mustUpload(t, s, "hello")
	seq := contenthash.Sequence{h1, worldHash}

	_, err := s.Merge(ctx, seq)
	require.ErrorIs(t, err, models.ErrChunkMissing)

	_, err = s.Manifest(ctx, contenthash.Composite(seq))
	assert.ErrorIs(t, err, models.ErrNotFound)
}

func TestManifestWithoutStore(t *testing.T) {
	s := New(Deps{Blobs: blobstore.NewMemory()})
	_, err := s.Manifest(context.Background(), helloHash)
	assert.ErrorIs(t, err, models.ErrNotFound)
}
