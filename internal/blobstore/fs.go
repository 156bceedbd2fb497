package blobstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shirou/gopsutil/disk"
	log "github.com/sirupsen/logrus"

	"github.com/sir_venger/bigfile/internal/models"
)

// FS хранит объекты файлами под корневым каталогом.
// Временные файлы лежат в root/tmp, то есть на том же томе, что и
// окончательные, поэтому размещение не копирует данные.
type FS struct {
	root string
}

var (
	_ BlobStore     = (*FS)(nil)
	_ TempSweeper   = (*FS)(nil)
	_ UsageReporter = (*FS)(nil)
)

// NewFS открывает (и при необходимости создаёт) хранилище в каталоге root.
func NewFS(root string) (*FS, error) {
	root = filepath.Clean(root)
	if err := os.MkdirAll(filepath.Join(root, strings.TrimSuffix(tempPrefix, "/")), 0o755); err != nil {
		return nil, fmt.Errorf("create storage root: %w", err)
	}

	log.Infof("Opened filesystem blob store at %s", root)

	return &FS{root: root}, nil
}

func (s *FS) path(key string) string {
	return filepath.Join(s.root, filepath.FromSlash(key))
}

func (s *FS) Exists(_ context.Context, key string) (bool, error) {
	fi, err := os.Stat(s.path(key))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, err
	}

	return fi.Mode().IsRegular(), nil
}

func (s *FS) Open(_ context.Context, key string) (io.ReadCloser, error) {
	f, err := os.Open(s.path(key))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", models.ErrNotFound, key)
		}
		return nil, err
	}

	return f, nil
}

func (s *FS) Size(_ context.Context, key string) (int64, error) {
	fi, err := os.Stat(s.path(key))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return 0, fmt.Errorf("%w: %s", models.ErrNotFound, key)
		}
		return 0, err
	}
	if !fi.Mode().IsRegular() {
		return 0, fmt.Errorf("%w: %s", models.ErrNotFound, key)
	}

	return fi.Size(), nil
}

func (s *FS) CreateTemp(_ context.Context) (TempBlob, error) {
	key := tempPrefix + uuid.NewString()
	f, err := os.OpenFile(s.path(key), os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("create temp blob: %w", err)
	}

	return &fsTemp{File: f, key: key}, nil
}

// AtomicPlace публикует временный файл жёсткой ссылкой: link(2) не
// перезаписывает существующий путь, так что под ключом оказывается ровно
// одна запись. Там, где жёсткие ссылки не поддерживаются, используется rename(2).
func (s *FS) AtomicPlace(_ context.Context, tempKey, finalKey string) error {
	tmp := s.path(tempKey)
	dst := s.path(finalKey)
	defer os.Remove(tmp)

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("create object dir: %w", err)
	}

	err := os.Link(tmp, dst)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, fs.ErrExist):
		return fmt.Errorf("%w: %s", models.ErrAlreadyExists, finalKey)
	}

	log.WithError(err).Debugf("hard link unavailable, falling back to rename for %s", finalKey)
	if _, statErr := os.Stat(dst); statErr == nil {
		return fmt.Errorf("%w: %s", models.ErrAlreadyExists, finalKey)
	}
	if err = os.Rename(tmp, dst); err != nil {
		return fmt.Errorf("place object: %w", err)
	}

	return nil
}

func (s *FS) DiscardTemp(_ context.Context, tempKey string) error {
	if !strings.HasPrefix(tempKey, tempPrefix) {
		return fmt.Errorf("not a temp key: %s", tempKey)
	}
	if err := os.Remove(s.path(tempKey)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}

	return nil
}

// SweepTemp удаляет временные файлы, которые не менялись дольше olderThan.
func (s *FS) SweepTemp(ctx context.Context, olderThan time.Duration) (int, error) {
	dir := s.path(strings.TrimSuffix(tempPrefix, "/"))
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, err
	}

	now := time.Now()
	removed := 0
	for _, e := range entries {
		if ctx.Err() != nil {
			return removed, ctx.Err()
		}
		if e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		if now.Sub(info.ModTime()) < olderThan {
			continue
		}
		if err := os.Remove(filepath.Join(dir, e.Name())); err == nil {
			removed++
		}
	}

	return removed, nil
}

// Usage отдаёт ёмкость тома, на котором лежит корень хранилища.
func (s *FS) Usage(ctx context.Context) (Usage, error) {
	st, err := disk.UsageWithContext(ctx, s.root)
	if err != nil {
		return Usage{}, err
	}

	return Usage{
		TotalBytes: int64(st.Total),
		FreeBytes:  int64(st.Free),
		UsedBytes:  int64(st.Used),
	}, nil
}

// fsTemp синхронизирует данные на диск при закрытии, чтобы после
// размещения объект не оказался пустым при падении машины.
type fsTemp struct {
	*os.File
	key string
}

func (t *fsTemp) Key() string {
	return t.key
}

func (t *fsTemp) Close() error {
	if err := t.File.Sync(); err != nil {
		_ = t.File.Close()
		return err
	}

	return t.File.Close()
}
