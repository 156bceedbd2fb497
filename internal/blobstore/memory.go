package blobstore

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/sir_venger/bigfile/internal/models"
)

// Memory хранит объекты только в оперативной памяти; удобно для тестов.
// Объём данных ограничен памятью процесса.
type Memory struct {
	mu      sync.RWMutex
	objects map[string][]byte
	temps   map[string]memoryTempEntry
}

type memoryTempEntry struct {
	data    []byte
	created time.Time
}

var (
	_ BlobStore   = (*Memory)(nil)
	_ TempSweeper = (*Memory)(nil)
)

// NewMemory создаёт пустое in-memory хранилище.
func NewMemory() *Memory {
	return &Memory{
		objects: map[string][]byte{},
		temps:   map[string]memoryTempEntry{},
	}
}

func (s *Memory) Exists(_ context.Context, key string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.objects[key]
	return ok, nil
}

func (s *Memory) Open(_ context.Context, key string) (io.ReadCloser, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.objects[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", models.ErrNotFound, key)
	}

	// Объекты неизменяемы, поэтому срез можно отдавать без копирования.
	return io.NopCloser(bytes.NewReader(b)), nil
}

func (s *Memory) Size(_ context.Context, key string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.objects[key]
	if !ok {
		return 0, fmt.Errorf("%w: %s", models.ErrNotFound, key)
	}

	return int64(len(b)), nil
}

func (s *Memory) CreateTemp(_ context.Context) (TempBlob, error) {
	return &memoryTemp{store: s, key: tempPrefix + uuid.NewString()}, nil
}

func (s *Memory) AtomicPlace(_ context.Context, tempKey, finalKey string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tmp, ok := s.temps[tempKey]
	if !ok {
		return fmt.Errorf("temp blob %s is not committed", tempKey)
	}
	delete(s.temps, tempKey)

	if _, exists := s.objects[finalKey]; exists {
		return fmt.Errorf("%w: %s", models.ErrAlreadyExists, finalKey)
	}
	s.objects[finalKey] = tmp.data

	return nil
}

func (s *Memory) DiscardTemp(_ context.Context, tempKey string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.temps, tempKey)
	return nil
}

func (s *Memory) SweepTemp(_ context.Context, olderThan time.Duration) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	now := time.Now()
	for k, t := range s.temps {
		if now.Sub(t.created) >= olderThan {
			delete(s.temps, k)
			removed++
		}
	}

	return removed, nil
}

// Len возвращает число размещённых объектов.
func (s *Memory) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.objects)
}

// TempLen возвращает число зафиксированных, но не размещённых временных объектов.
func (s *Memory) TempLen() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.temps)
}

// memoryTemp копит данные в буфере и становится видимым для AtomicPlace
// только после Close.
type memoryTemp struct {
	store  *Memory
	key    string
	buf    bytes.Buffer
	closed bool
}

func (t *memoryTemp) Key() string {
	return t.key
}

func (t *memoryTemp) Write(p []byte) (int, error) {
	if t.closed {
		return 0, fmt.Errorf("write to closed temp blob %s", t.key)
	}
	return t.buf.Write(p)
}

func (t *memoryTemp) Close() error {
	if t.closed {
		return nil
	}
	t.closed = true

	t.store.mu.Lock()
	t.store.temps[t.key] = memoryTempEntry{data: t.buf.Bytes(), created: time.Now()}
	t.store.mu.Unlock()

	return nil
}
