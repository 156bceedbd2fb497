// Package meta хранит манифесты склеенных файлов.
//
// Манифест пишется после того, как объект размещён, и не меняется: его
// идентификатор выводится из тех же хешей, что в нём перечислены.
package meta

import (
	"context"

	"github.com/sir_venger/bigfile/internal/models"
)

// Store: хранилище манифестов.
type Store interface {
	// Get возвращает манифест; models.ErrNotFound, если его нет.
	Get(ctx context.Context, id string) (models.Manifest, error)
	// Save записывает манифест. Повторная запись того же id не ошибка.
	Save(ctx context.Context, m models.Manifest) error
}
