// Package blobstore реализует хранилища неизменяемых объектов с двухфазной
// записью: данные пишутся во временный blob, а затем атомарно размещаются
// под окончательным ключом. Читатель никогда не видит недописанный объект.
package blobstore

import (
	"context"
	"io"
	"time"
)

// tempPrefix: пространство ключей временных объектов. Ключи данных
// начинаются с hex-символа, манифесты лежат под manifest/, пересечений нет.
const tempPrefix = "tmp/"

type (
	// BlobStore: хранилище, в которое объекты только добавляются.
	BlobStore interface {
		// Exists сообщает, размещён ли объект под ключом.
		Exists(ctx context.Context, key string) (bool, error)
		// Open открывает размещённый объект; models.ErrNotFound, если его нет.
		Open(ctx context.Context, key string) (io.ReadCloser, error)
		// Size возвращает длину размещённого объекта; models.ErrNotFound, если его нет.
		Size(ctx context.Context, key string) (int64, error)
		// CreateTemp создаёт приватный временный объект для записи.
		CreateTemp(ctx context.Context) (TempBlob, error)
		// AtomicPlace переносит закрытый временный объект под finalKey одним шагом.
		// Если finalKey уже занят, возвращает models.ErrAlreadyExists.
		// Временный объект расходуется в любом случае.
		AtomicPlace(ctx context.Context, tempKey, finalKey string) error
		// DiscardTemp удаляет временный объект, который не будет размещён.
		DiscardTemp(ctx context.Context, tempKey string) error
	}

	// TempBlob: временный объект. Close фиксирует данные перед AtomicPlace.
	TempBlob interface {
		io.WriteCloser
		Key() string
	}

	// TempSweeper удаляет брошенные временные объекты (оборванные загрузки).
	TempSweeper interface {
		SweepTemp(ctx context.Context, olderThan time.Duration) (int, error)
	}

	// UsageReporter отдаёт данные о ёмкости носителя для health-check'ов.
	UsageReporter interface {
		Usage(ctx context.Context) (Usage, error)
	}
)

// Usage: ёмкость носителя в байтах.
type Usage struct {
	TotalBytes int64
	FreeBytes  int64
	UsedBytes  int64
}
