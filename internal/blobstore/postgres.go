package blobstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	log "github.com/sirupsen/logrus"

	"github.com/sir_venger/bigfile/internal/models"
)

const (
	blobsTable        = "blobs"
	blobSegmentsTable = "blob_segments"
	blobPartsTable    = "blob_parts"

	// moveSegmentsSQL переносит сегменты временного объекта под ключ объекта.
	moveSegmentsSQL = `
INSERT INTO blob_segments(key, seq, data)
SELECT $1, seq, data
FROM blob_parts
WHERE tmp_key = $2`

	// sweepPartsSQL удаляет временные объекты целиком: возраст считается по
	// самому свежему сегменту, так что идущая запись не теряет начало.
	sweepPartsSQL = `
WITH stale AS (
    SELECT tmp_key
    FROM blob_parts
    GROUP BY tmp_key
    HAVING max(created_at) < $1
), removed AS (
    DELETE FROM blob_parts p
    USING stale s
    WHERE p.tmp_key = s.tmp_key
    RETURNING p.tmp_key
)
SELECT count(DISTINCT tmp_key) FROM removed`
)

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// PGStore хранит объекты в Postgres сегментами по segmentSize: ни запрос,
// ни ответ не держит объект целиком.
type PGStore struct {
	pool *pgxpool.Pool
}

var (
	_ BlobStore   = (*PGStore)(nil)
	_ TempSweeper = (*PGStore)(nil)
)

// OpenPostgres создаёт пул подключений к Postgres. Схема создаётся отдельно (ApplyMigrations).
func OpenPostgres(ctx context.Context, dsn string) (*PGStore, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, fmt.Errorf("postgres dsn is empty")
	}

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	if err = pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	log.Info("Opened postgres blob store")

	return &PGStore{pool: pool}, nil
}

// Pool отдаёт пул подключений, чтобы соседние таблицы (манифесты) жили
// на тех же соединениях. Закрывает пул только PGStore.Close.
func (s *PGStore) Pool() *pgxpool.Pool {
	return s.pool
}

func (s *PGStore) Exists(ctx context.Context, key string) (bool, error) {
	_, _, err := s.head(ctx, key)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, models.ErrNotFound):
		return false, nil
	default:
		return false, err
	}
}

func (s *PGStore) Size(ctx context.Context, key string) (int64, error) {
	size, _, err := s.head(ctx, key)
	return size, err
}

// Open возвращает читатель, который запрашивает сегменты по одному.
func (s *PGStore) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	_, segments, err := s.head(ctx, key)
	if err != nil {
		return nil, err
	}

	return &segmentReader{ctx: ctx, key: key, count: segments, fetch: func(ctx context.Context, seq int) ([]byte, error) {
		return s.segment(ctx, key, seq)
	}}, nil
}

// head читает размер и число сегментов объекта.
func (s *PGStore) head(ctx context.Context, key string) (int64, int, error) {
	sqlStr, args, err := psql.Select("size", "segments").From(blobsTable).Where(sq.Eq{"key": key}).ToSql()
	if err != nil {
		return 0, 0, fmt.Errorf("build select: %w", err)
	}

	var (
		size     int64
		segments int
	)
	if err = s.pool.QueryRow(ctx, sqlStr, args...).Scan(&size, &segments); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, 0, fmt.Errorf("%w: %s", models.ErrNotFound, key)
		}
		return 0, 0, fmt.Errorf("scan blob row: %w", err)
	}

	return size, segments, nil
}

func (s *PGStore) segment(ctx context.Context, key string, seq int) ([]byte, error) {
	sqlStr, args, err := psql.Select("data").From(blobSegmentsTable).
		Where(sq.Eq{"key": key, "seq": seq}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select: %w", err)
	}

	var data []byte
	if err = s.pool.QueryRow(ctx, sqlStr, args...).Scan(&data); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errors.New("segment is missing")
		}
		return nil, err
	}

	return data, nil
}

func (s *PGStore) CreateTemp(ctx context.Context) (TempBlob, error) {
	key := tempPrefix + uuid.NewString()
	return &segmentWriter{key: key, put: func(seq int, segment []byte, _ int64) error {
		return s.putPart(ctx, key, seq, segment)
	}}, nil
}

func (s *PGStore) putPart(ctx context.Context, tempKey string, seq int, segment []byte) error {
	sqlStr, args, err := psql.Insert(blobPartsTable).
		Columns("tmp_key", "seq", "data").
		Values(tempKey, seq, segment).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}

	if _, err = s.pool.Exec(ctx, sqlStr, args...); err != nil {
		return fmt.Errorf("insert temp segment: %w", err)
	}

	return nil
}

// AtomicPlace проверяет, что сегменты идут подряд с нуля, и переносит их
// под ключ объекта одной транзакцией. Строки временного объекта блокируются,
// поэтому параллельная очистка не удалит их посреди переноса.
func (s *PGStore) AtomicPlace(ctx context.Context, tempKey, finalKey string) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	segments, size, err := lockParts(ctx, tx, tempKey)
	if err != nil {
		return err
	}

	insSQL, args, err := psql.Insert(blobsTable).
		Columns("key", "size", "segments").
		Values(finalKey, size, segments).
		Suffix("ON CONFLICT (key) DO NOTHING").
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}
	tag, err := tx.Exec(ctx, insSQL, args...)
	if err != nil {
		return fmt.Errorf("place blob: %w", err)
	}
	placed := tag.RowsAffected() == 1

	if placed {
		if _, err = tx.Exec(ctx, moveSegmentsSQL, finalKey, tempKey); err != nil {
			return fmt.Errorf("move segments: %w", err)
		}
	}

	delSQL, args, err := psql.Delete(blobPartsTable).Where(sq.Eq{"tmp_key": tempKey}).ToSql()
	if err != nil {
		return fmt.Errorf("build delete: %w", err)
	}
	if _, err = tx.Exec(ctx, delSQL, args...); err != nil {
		return fmt.Errorf("delete temp segments: %w", err)
	}

	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit placement: %w", err)
	}

	if !placed {
		return fmt.Errorf("%w: %s", models.ErrAlreadyExists, finalKey)
	}

	return nil
}

// lockParts блокирует сегменты временного объекта и возвращает их число и
// суммарный размер. Пропуск в нумерации означает, что часть данных потеряна.
func lockParts(ctx context.Context, tx pgx.Tx, tempKey string) (int, int64, error) {
	sqlStr, args, err := psql.Select("seq", "octet_length(data)").From(blobPartsTable).
		Where(sq.Eq{"tmp_key": tempKey}).
		OrderBy("seq").
		Suffix("FOR UPDATE").
		ToSql()
	if err != nil {
		return 0, 0, fmt.Errorf("build select: %w", err)
	}

	rows, err := tx.Query(ctx, sqlStr, args...)
	if err != nil {
		return 0, 0, fmt.Errorf("lock temp segments: %w", err)
	}
	defer rows.Close()

	var (
		count int
		size  int64
	)
	for rows.Next() {
		var (
			seq int
			n   int64
		)
		if err = rows.Scan(&seq, &n); err != nil {
			return 0, 0, fmt.Errorf("scan temp segment: %w", err)
		}
		if seq != count {
			return 0, 0, fmt.Errorf("temp blob %s: segment %d is missing", tempKey, count)
		}
		count++
		size += n
	}
	if err = rows.Err(); err != nil {
		return 0, 0, fmt.Errorf("read temp segments: %w", err)
	}
	if count == 0 {
		return 0, 0, fmt.Errorf("temp blob %s is not committed", tempKey)
	}

	return count, size, nil
}

func (s *PGStore) DiscardTemp(ctx context.Context, tempKey string) error {
	sqlStr, args, err := psql.Delete(blobPartsTable).Where(sq.Eq{"tmp_key": tempKey}).ToSql()
	if err != nil {
		return fmt.Errorf("build delete: %w", err)
	}
	_, err = s.pool.Exec(ctx, sqlStr, args...)
	return err
}

// SweepTemp удаляет временные объекты, в которые не писали дольше olderThan,
// и возвращает их число.
func (s *PGStore) SweepTemp(ctx context.Context, olderThan time.Duration) (int, error) {
	var removed int
	if err := s.pool.QueryRow(ctx, sweepPartsSQL, time.Now().Add(-olderThan)).Scan(&removed); err != nil {
		return 0, fmt.Errorf("sweep temp segments: %w", err)
	}

	return removed, nil
}

// Close освобождает подключения пула.
func (s *PGStore) Close() error {
	if s.pool != nil {
		s.pool.Close()
	}
	return nil
}
