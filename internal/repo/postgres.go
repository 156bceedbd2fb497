package meta

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sir_venger/bigfile/internal/models"
)

const manifestsTable = "manifests"

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// PGStore сохраняет манифесты в Postgres.
type PGStore struct {
	pool *pgxpool.Pool
}

var _ Store = (*PGStore)(nil)

// NewPGStore работает поверх уже открытого пула, обычно общего с хранилищем
// объектов. Пул закрывает его владелец. Таблицу создают миграции.
func NewPGStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{pool: pool}
}

// Get возвращает манифест по идентификатору файла.
func (s *PGStore) Get(ctx context.Context, id string) (models.Manifest, error) {
	if strings.TrimSpace(id) == "" {
		return models.Manifest{}, fmt.Errorf("file id is empty")
	}

	sqlStr, args, err := psql.
		Select("chunks", "size", "created_at").
		From(manifestsTable).
		Where(sq.Eq{"id": id}).
		Limit(1).
		ToSql()
	if err != nil {
		return models.Manifest{}, fmt.Errorf("build select: %w", err)
	}

	var (
		chunksRaw []byte
		size      int64
		createdAt time.Time
	)
	if err = s.pool.QueryRow(ctx, sqlStr, args...).Scan(&chunksRaw, &size, &createdAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Manifest{}, models.ErrNotFound
		}
		return models.Manifest{}, fmt.Errorf("scan manifest row: %w", err)
	}

	var chunks []string
	if err := json.Unmarshal(chunksRaw, &chunks); err != nil {
		return models.Manifest{}, fmt.Errorf("unmarshal chunks: %w", err)
	}
	if chunks == nil {
		chunks = []string{}
	}

	return models.Manifest{
		ID:        id,
		Chunks:    chunks,
		Size:      size,
		CreatedAt: createdAt.UTC(),
	}, nil
}

// Save записывает манифест. Существующая запись не перезаписывается.
func (s *PGStore) Save(ctx context.Context, m models.Manifest) error {
	if strings.TrimSpace(m.ID) == "" {
		return fmt.Errorf("file id is empty")
	}
	chunks := m.Chunks
	if chunks == nil {
		chunks = []string{}
	}
	chunksJSON, err := json.Marshal(chunks)
	if err != nil {
		return fmt.Errorf("marshal chunks: %w", err)
	}
	createdAt := m.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	sqlStr, args, err := psql.
		Insert(manifestsTable).
		Columns("id", "chunks", "size", "created_at").
		Values(m.ID, chunksJSON, m.Size, createdAt).
		Suffix("ON CONFLICT (id) DO NOTHING").
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}

	if _, err = s.pool.Exec(ctx, sqlStr, args...); err != nil {
		return fmt.Errorf("insert manifest: %w", err)
	}

	return nil
}
