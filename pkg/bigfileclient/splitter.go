package bigfileclient

import (
	"errors"
	"fmt"
	"io"

	"github.com/restic/chunker"

	"github.com/sir_venger/bigfile/pkg/contenthash"
)

// cdcPolynomial фиксирован: один и тот же файл должен резаться одинаково
// при каждой загрузке, иначе дедупликация между загрузками не работает.
const cdcPolynomial = chunker.Pol(0x3DA3358B4DC173)

// DefaultChunkSize: размер чанка по умолчанию для фиксированной нарезки.
const DefaultChunkSize = 4 << 20

// Chunk: очередной кусок файла вместе с его адресом.
type Chunk struct {
	Hash   contenthash.Hash
	Offset int64
	Data   []byte
}

// Splitter выдаёт чанки по порядку. После последнего чанка возвращает io.EOF.
type Splitter interface {
	Next() (Chunk, error)
}

type fixedSplitter struct {
	r      io.Reader
	size   int
	offset int64
	done   bool
}

// NewFixedSplitter режет поток на чанки ровно по size байт, последний
// может быть короче.
func NewFixedSplitter(r io.Reader, size int) Splitter {
	if size <= 0 {
		size = DefaultChunkSize
	}
	return &fixedSplitter{r: r, size: size}
}

func (s *fixedSplitter) Next() (Chunk, error) {
	if s.done {
		return Chunk{}, io.EOF
	}

	buf := make([]byte, s.size)
	n, err := io.ReadFull(s.r, buf)
	switch {
	case errors.Is(err, io.EOF):
		s.done = true
		return Chunk{}, io.EOF
	case errors.Is(err, io.ErrUnexpectedEOF):
		s.done = true
	case err != nil:
		return Chunk{}, fmt.Errorf("read chunk at %d: %w", s.offset, err)
	}

	c := Chunk{
		Hash:   contenthash.DigestBytes(buf[:n]),
		Offset: s.offset,
		Data:   buf[:n],
	}
	s.offset += int64(n)

	return c, nil
}

type cdcSplitter struct {
	c   *chunker.Chunker
	max uint
}

// NewCDCSplitter режет поток по содержимому (Rabin fingerprint), так что
// вставка в середину файла меняет только соседние чанки.
func NewCDCSplitter(r io.Reader, minSize, maxSize uint) Splitter {
	if minSize == 0 {
		minSize = chunker.MinSize
	}
	if maxSize == 0 {
		maxSize = chunker.MaxSize
	}
	if maxSize < minSize {
		maxSize = minSize
	}
	return &cdcSplitter{
		c:   chunker.NewWithBoundaries(r, cdcPolynomial, minSize, maxSize),
		max: maxSize,
	}
}

func (s *cdcSplitter) Next() (Chunk, error) {
	// Data чанка ссылается на buf, поэтому буфер свой на каждый чанк.
	buf := make([]byte, s.max)
	ch, err := s.c.Next(buf)
	if errors.Is(err, io.EOF) {
		return Chunk{}, io.EOF
	}
	if err != nil {
		return Chunk{}, fmt.Errorf("cdc split: %w", err)
	}

	return Chunk{
		Hash:   contenthash.DigestBytes(ch.Data),
		Offset: int64(ch.Start),
		Data:   ch.Data,
	}, nil
}
