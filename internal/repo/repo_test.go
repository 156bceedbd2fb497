package meta

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sir_venger/bigfile/internal/blobstore"
	"github.com/sir_venger/bigfile/internal/models"
)

const postgresDSNEnv = "BIGFILE_TEST_POSTGRES_DSN"

func runStoreTests(t *testing.T, s Store) {
	ctx := context.Background()
	m := models.Manifest{
		ID:        "ae802c1f58f394d46485b7da18c56e9b",
		Chunks:    []string{"5d41402abc4b2a76b9719d911017c592", "7d793037a0760186574b0282f2f435e7"},
		Size:      10,
		CreatedAt: time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
	}

	t.Run("missing", func(t *testing.T) {
		_, err := s.Get(ctx, "d41d8cd98f00b204e9800998ecf8427e")
		assert.ErrorIs(t, err, models.ErrNotFound)
	})

	t.Run("save and get", func(t *testing.T) {
		require.NoError(t, s.Save(ctx, m))
		got, err := s.Get(ctx, m.ID)
		require.NoError(t, err)
		assert.Equal(t, m.Chunks, got.Chunks)
		assert.Equal(t, m.Size, got.Size)
		assert.True(t, m.CreatedAt.Equal(got.CreatedAt))
	})

	t.Run("second save keeps the first", func(t *testing.T) {
		other := m
		other.Size = 999
		require.NoError(t, s.Save(ctx, other))
		got, err := s.Get(ctx, m.ID)
		require.NoError(t, err)
		assert.Equal(t, m.Size, got.Size)
	})

	t.Run("empty sequence", func(t *testing.T) {
		empty := models.Manifest{ID: "74be16979710d4c4e7c6647856088456"}
		require.NoError(t, s.Save(ctx, empty))
		got, err := s.Get(ctx, empty.ID)
		require.NoError(t, err)
		assert.NotNil(t, got.Chunks)
		assert.Empty(t, got.Chunks)
	})
}

func TestMemoryStore(t *testing.T) {
	runStoreTests(t, NewMemoryStore())
}

func TestMemoryStoreReturnsCopies(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, s.Save(ctx, models.Manifest{ID: "x", Chunks: []string{"a"}}))

	got, err := s.Get(ctx, "x")
	require.NoError(t, err)
	got.Chunks[0] = "mutated"

	again, err := s.Get(ctx, "x")
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, again.Chunks)
}

func TestBlobStoreOnMemory(t *testing.T) {
	runStoreTests(t, NewBlobStore(blobstore.NewMemory()))
}

func TestBlobStoreOnFS(t *testing.T) {
	fs, err := blobstore.NewFS(t.TempDir())
	require.NoError(t, err)
	runStoreTests(t, NewBlobStore(fs))
}

func TestPGStore(t *testing.T) {
	dsn := os.Getenv(postgresDSNEnv)
	if dsn == "" {
		t.Skipf("%s is not set", postgresDSNEnv)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	require.NoError(t, blobstore.ApplyMigrations(ctx, dsn))

	blobs, err := blobstore.OpenPostgres(ctx, dsn)
	require.NoError(t, err)
	s := NewPGStore(blobs.Pool())
	assert.Same(t, blobs.Pool(), s.pool, "manifests share the blob store connections")

	_, err = s.pool.Exec(ctx, "TRUNCATE manifests")
	require.NoError(t, err)
	t.Cleanup(func() {
		_, _ = s.pool.Exec(context.Background(), "TRUNCATE manifests")
		_ = blobs.Close()
	})

	runStoreTests(t, s)
}
