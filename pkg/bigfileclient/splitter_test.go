package bigfileclient

import (
	"bytes"
	"errors"
	"io"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sir_venger/bigfile/pkg/contenthash"
)

func drain(t *testing.T, s Splitter) []Chunk {
	t.Helper()
	var out []Chunk
	for {
		c, err := s.Next()
		if errors.Is(err, io.EOF) {
			return out
		}
		require.NoError(t, err)
		out = append(out, c)
	}
}

func randomBytes(seed int64, n int) []byte {
	b := make([]byte, n)
	_, _ = rand.New(rand.NewSource(seed)).Read(b)
	return b
}

func TestFixedSplitter(t *testing.T) {
	data := []byte("0123456789")
	chunks := drain(t, NewFixedSplitter(bytes.NewReader(data), 4))

	require.Len(t, chunks, 3)
	assert.Equal(t, []byte("0123"), chunks[0].Data)
	assert.Equal(t, []byte("4567"), chunks[1].Data)
	assert.Equal(t, []byte("89"), chunks[2].Data)
	assert.Equal(t, int64(8), chunks[2].Offset)
	for _, c := range chunks {
		assert.Equal(t, contenthash.DigestBytes(c.Data), c.Hash)
	}
}

func TestFixedSplitterExactMultiple(t *testing.T) {
	chunks := drain(t, NewFixedSplitter(bytes.NewReader([]byte("abcdefgh")), 4))
	require.Len(t, chunks, 2)
	assert.Equal(t, []byte("efgh"), chunks[1].Data)
}

func TestFixedSplitterEmpty(t *testing.T) {
	assert.Empty(t, drain(t, NewFixedSplitter(bytes.NewReader(nil), 4)))
}

func TestCDCSplitterReassembles(t *testing.T) {
	data := randomBytes(1, 3<<20)
	const maxSize = 1 << 20

	chunks := drain(t, NewCDCSplitter(bytes.NewReader(data), 0, maxSize))
	require.NotEmpty(t, chunks)

	var joined []byte
	for _, c := range chunks {
		assert.LessOrEqual(t, len(c.Data), maxSize)
		assert.Equal(t, int64(len(joined)), c.Offset)
		assert.Equal(t, contenthash.DigestBytes(c.Data), c.Hash)
		joined = append(joined, c.Data...)
	}
	assert.Equal(t, data, joined)
}

func TestCDCSplitterDeterministic(t *testing.T) {
	data := randomBytes(2, 2<<20)

	first := drain(t, NewCDCSplitter(bytes.NewReader(data), 0, 0))
	second := drain(t, NewCDCSplitter(bytes.NewReader(data), 0, 0))

	require.Equal(t, len(first), len(second))
	for i := range first {
		assert.Equal(t, first[i].Hash, second[i].Hash)
	}
}
