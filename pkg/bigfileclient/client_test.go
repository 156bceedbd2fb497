package bigfileclient

import (
	"bytes"
	"context"
	"errors"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sir_venger/bigfile/internal/app/bigfilehttp"
	"github.com/sir_venger/bigfile/internal/config"
	"github.com/sir_venger/bigfile/internal/models"
	"github.com/sir_venger/bigfile/pkg/contenthash"
)

func newClient(t *testing.T, opts ...Option) *Client {
	t.Helper()
	cfg := config.Default()
	cfg.Backend = config.BackendMemory

	h, srv, err := bigfilehttp.NewServer(cfg)
	require.NoError(t, err)
	ts := httptest.NewServer(h)
	t.Cleanup(func() {
		ts.Close()
		_ = srv.Close()
	})

	return New(ts.URL, opts...)
}

func TestUploadDownload(t *testing.T) {
	ctx := context.Background()
	cl := newClient(t)
	data := randomBytes(3, 10*1024)

	res, err := cl.Upload(ctx, bytes.NewReader(data), int64(len(data)), UploadOptions{ChunkSize: 1024, Parallel: 3})
	require.NoError(t, err)
	assert.Len(t, res.Chunks, 10)
	assert.Equal(t, 10, res.Uploaded)
	assert.Equal(t, 0, res.Skipped)
	assert.Equal(t, int64(len(data)), res.Size)
	assert.Equal(t, contenthash.Composite(res.Chunks), res.FileID)

	var out bytes.Buffer
	n, err := cl.Download(ctx, res.FileID, &out)
	require.NoError(t, err)
	assert.Equal(t, int64(len(data)), n)
	assert.Equal(t, data, out.Bytes())
}

func TestUploadResumeSkipsExisting(t *testing.T) {
	ctx := context.Background()
	cl := newClient(t)
	data := randomBytes(4, 8*1024)
	opts := UploadOptions{ChunkSize: 2048}

	first, err := cl.Upload(ctx, bytes.NewReader(data), 0, opts)
	require.NoError(t, err)

	second, err := cl.Upload(ctx, bytes.NewReader(data), 0, opts)
	require.NoError(t, err)
	assert.Equal(t, first.FileID, second.FileID)
	assert.Equal(t, 0, second.Uploaded)
	assert.Equal(t, 4, second.Skipped)
}

func TestUploadDuplicateChunksSentOnce(t *testing.T) {
	cl := newClient(t)
	block := randomBytes(5, 1024)
	data := bytes.Repeat(block, 4)

	res, err := cl.Upload(context.Background(), bytes.NewReader(data), 0, UploadOptions{ChunkSize: 1024})
	require.NoError(t, err)
	assert.Len(t, res.Chunks, 4)
	assert.Equal(t, 1, res.Uploaded)
}

func TestUploadContentDefined(t *testing.T) {
	ctx := context.Background()
	cl := newClient(t)
	data := randomBytes(6, 2<<20)

	res, err := cl.Upload(ctx, bytes.NewReader(data), 0, UploadOptions{ContentDefined: true, ChunkSize: 1 << 20})
	require.NoError(t, err)

	var out bytes.Buffer
	_, err = cl.Download(ctx, res.FileID, &out)
	require.NoError(t, err)
	assert.Equal(t, data, out.Bytes())
}

func TestUploadEmpty(t *testing.T) {
	ctx := context.Background()
	cl := newClient(t)

	res, err := cl.Upload(ctx, bytes.NewReader(nil), 0, UploadOptions{})
	require.NoError(t, err)
	assert.Equal(t, contenthash.Empty, res.FileID)
	assert.Empty(t, res.Chunks)

	var out bytes.Buffer
	n, err := cl.Download(ctx, res.FileID, &out)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestMergeMissingChunk(t *testing.T) {
	cl := newClient(t)
	missing := contenthash.DigestBytes([]byte("never uploaded"))

	_, err := cl.Merge(context.Background(), contenthash.Sequence{missing})
	require.ErrorIs(t, err, models.ErrChunkMissing)

	var cme *models.ChunkMissingError
	require.True(t, errors.As(err, &cme))
	assert.Equal(t, missing.String(), cme.Hash)
}

func TestUploadChunkMismatch(t *testing.T) {
	cl := newClient(t)
	h := contenthash.DigestBytes([]byte("hello"))

	err := cl.UploadChunk(context.Background(), h, []byte("HELLO"))
	require.ErrorIs(t, err, models.ErrVerificationFailed)

	exists, err := cl.ChunkExists(context.Background(), h)
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestDownloadNotFound(t *testing.T) {
	cl := newClient(t)
	_, err := cl.Download(context.Background(), contenthash.DigestBytes([]byte("nope")), &bytes.Buffer{})
	require.ErrorIs(t, err, models.ErrNotFound)
}

func TestUploadProgress(t *testing.T) {
	var progress bytes.Buffer
	cl := newClient(t, WithProgress(&progress))
	data := randomBytes(7, 4096)

	_, err := cl.Upload(context.Background(), bytes.NewReader(data), int64(len(data)), UploadOptions{ChunkSize: 1024})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(progress.String(), "\rUploading"))
	assert.Contains(t, progress.String(), "100%")
	assert.Contains(t, progress.String(), "✓")
}

func TestManifestAfterUpload(t *testing.T) {
	ctx := context.Background()
	cl := newClient(t)
	data := randomBytes(8, 3000)

	res, err := cl.Upload(ctx, bytes.NewReader(data), 0, UploadOptions{ChunkSize: 1000})
	require.NoError(t, err)

	m, err := cl.Manifest(ctx, res.FileID)
	require.NoError(t, err)
	assert.Equal(t, res.FileID.String(), m.FileID)
	assert.Equal(t, int64(3000), m.Size)
	require.Len(t, m.Chunks, 3)
	for i, h := range res.Chunks {
		assert.Equal(t, h.String(), m.Chunks[i])
	}
}
