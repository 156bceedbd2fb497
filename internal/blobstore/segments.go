package blobstore

import (
	"bytes"
	"context"
	"fmt"
	"io"
)

// segmentSize: размер сегмента, которым объекты пишутся в Postgres и Badger.
// Ни одна новая запись в базе не превышает его, поэтому размер объекта ограничен
// только носителем.
const segmentSize = 1 << 20

// segmentWriter режет поток на сегменты segmentSize и отдаёт их put по
// порядку, начиная с нуля. Пустой поток тоже получает один сегмент, иначе
// его нельзя отличить от незафиксированного.
type segmentWriter struct {
	key    string
	buf    bytes.Buffer
	seq    int
	size   int64
	closed bool

	put    func(seq int, segment []byte, size int64) error
	commit func(segments int, size int64) error
}

func (t *segmentWriter) Key() string {
	return t.key
}

func (t *segmentWriter) Write(p []byte) (int, error) {
	if t.closed {
		return 0, fmt.Errorf("write to closed temp blob %s", t.key)
	}
	n, _ := t.buf.Write(p)
	for t.buf.Len() >= segmentSize {
		if err := t.flush(t.buf.Next(segmentSize)); err != nil {
			return 0, err
		}
	}

	return n, nil
}

func (t *segmentWriter) Close() error {
	if t.closed {
		return nil
	}
	t.closed = true

	if t.buf.Len() > 0 || t.seq == 0 {
		if err := t.flush(t.buf.Next(t.buf.Len())); err != nil {
			return err
		}
	}
	if t.commit == nil {
		return nil
	}

	return t.commit(t.seq, t.size)
}

func (t *segmentWriter) flush(segment []byte) error {
	if segment == nil {
		segment = []byte{}
	}
	if err := t.put(t.seq, segment, t.size+int64(len(segment))); err != nil {
		return err
	}
	t.seq++
	t.size += int64(len(segment))

	return nil
}

// segmentReader отдаёт объект, подгружая сегменты по одному, так что в
// памяти одновременно лежит не больше одного сегмента.
type segmentReader struct {
	ctx   context.Context
	key   string
	count int
	next  int
	cur   []byte
	fetch func(ctx context.Context, seq int) ([]byte, error)
}

func (r *segmentReader) Read(p []byte) (int, error) {
	for len(r.cur) == 0 {
		if r.next >= r.count {
			return 0, io.EOF
		}
		seg, err := r.fetch(r.ctx, r.next)
		if err != nil {
			return 0, fmt.Errorf("read segment %d of %s: %w", r.next, r.key, err)
		}
		r.cur = seg
		r.next++
	}

	n := copy(p, r.cur)
	r.cur = r.cur[n:]

	return n, nil
}

func (r *segmentReader) Close() error {
	r.cur = nil
	r.next = r.count
	return nil
}
