package blobstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/sir_venger/bigfile/internal/models"
)

const (
	badgerObjectPrefix  = "obj/"
	badgerSegmentPrefix = "seg/"

	badgerPlaceRetries = 8
)

// Badger хранит объекты во встроенной KV-базе. Данные лежат сегментами
// под seg/<id>/<n>; запись obj/<key> или tmp/<id> ссылается на них.
// Размещение переписывает только эти короткие записи.
type Badger struct {
	db *badger.DB
}

var (
	_ BlobStore   = (*Badger)(nil)
	_ TempSweeper = (*Badger)(nil)
)

// badgerObject: запись размещённого объекта.
type badgerObject struct {
	ID       string `json:"id"`
	Segments int    `json:"segments"`
	Size     int64  `json:"size"`
}

// badgerTemp: запись временного объекта, обновляется вместе с каждым сегментом.
type badgerTemp struct {
	badgerObject
	Updated time.Time `json:"updated"`
	Closed  bool      `json:"closed"`
}

// OpenBadger открывает (или создаёт) базу в каталоге dir.
func OpenBadger(dir string) (*Badger, error) {
	opts := badger.DefaultOptions(dir).WithLogger(log.WithField("component", "badger"))
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger: %w", err)
	}

	log.Infof("Opened badger blob store at %s", dir)

	return &Badger{db: db}, nil
}

func objectKey(key string) []byte {
	return []byte(badgerObjectPrefix + key)
}

func segmentPrefix(id string) []byte {
	return []byte(badgerSegmentPrefix + id + "/")
}

func segmentKey(id string, seq int) []byte {
	return []byte(fmt.Sprintf("%s%s/%010d", badgerSegmentPrefix, id, seq))
}

func getJSON(txn *badger.Txn, key []byte, v any) error {
	item, err := txn.Get(key)
	if err != nil {
		return err
	}
	return item.Value(func(b []byte) error {
		return json.Unmarshal(b, v)
	})
}

func setJSON(txn *badger.Txn, key []byte, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return txn.Set(key, b)
}

func (s *Badger) object(key string) (badgerObject, error) {
	var obj badgerObject
	err := s.db.View(func(txn *badger.Txn) error {
		return getJSON(txn, objectKey(key), &obj)
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return obj, fmt.Errorf("%w: %s", models.ErrNotFound, key)
	}

	return obj, err
}

func (s *Badger) Exists(_ context.Context, key string) (bool, error) {
	_, err := s.object(key)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, models.ErrNotFound):
		return false, nil
	default:
		return false, err
	}
}

func (s *Badger) Size(_ context.Context, key string) (int64, error) {
	obj, err := s.object(key)
	return obj.Size, err
}

// Open возвращает читатель, который достаёт сегменты по одному.
func (s *Badger) Open(ctx context.Context, key string) (io.ReadCloser, error) {
	obj, err := s.object(key)
	if err != nil {
		return nil, err
	}

	return &segmentReader{ctx: ctx, key: key, count: obj.Segments, fetch: func(ctx context.Context, seq int) ([]byte, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		var data []byte
		err := s.db.View(func(txn *badger.Txn) error {
			item, err := txn.Get(segmentKey(obj.ID, seq))
			if err != nil {
				return err
			}
			data, err = item.ValueCopy(nil)
			return err
		})
		return data, err
	}}, nil
}

func (s *Badger) CreateTemp(_ context.Context) (TempBlob, error) {
	id := uuid.NewString()
	key := tempPrefix + id

	return &segmentWriter{
		key: key,
		put: func(seq int, segment []byte, size int64) error {
			return s.putSegment(key, id, seq, segment, size)
		},
		commit: func(int, int64) error {
			return s.closeTemp(key)
		},
	}, nil
}

// putSegment пишет сегмент и обновляет запись временного объекта одной
// транзакцией. Если очистка успела удалить запись, сегмент не пишется.
func (s *Badger) putSegment(tempKey, id string, seq int, segment []byte, size int64) error {
	return s.db.Update(func(txn *badger.Txn) error {
		rec := badgerTemp{badgerObject: badgerObject{ID: id}}
		if seq > 0 {
			if err := getJSON(txn, []byte(tempKey), &rec); err != nil {
				if errors.Is(err, badger.ErrKeyNotFound) {
					return fmt.Errorf("temp blob %s was swept", tempKey)
				}
				return err
			}
		}
		if err := txn.Set(segmentKey(id, seq), segment); err != nil {
			return err
		}
		rec.Segments = seq + 1
		rec.Size = size
		rec.Updated = time.Now()

		return setJSON(txn, []byte(tempKey), rec)
	})
}

func (s *Badger) closeTemp(tempKey string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		var rec badgerTemp
		if err := getJSON(txn, []byte(tempKey), &rec); err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return fmt.Errorf("temp blob %s was swept", tempKey)
			}
			return err
		}
		rec.Closed = true
		rec.Updated = time.Now()

		return setJSON(txn, []byte(tempKey), rec)
	})
}

// AtomicPlace переносит запись временного объекта под ключ одной
// транзакцией; сегменты остаются на месте. При конфликте с параллельной
// транзакцией попытка повторяется: следующая увидит уже размещённый объект
// и вернёт ErrAlreadyExists.
func (s *Badger) AtomicPlace(ctx context.Context, tempKey, finalKey string) error {
	var err error
	for attempt := 0; attempt < badgerPlaceRetries; attempt++ {
		err = s.db.Update(func(txn *badger.Txn) error {
			var rec badgerTemp
			if err := getJSON(txn, []byte(tempKey), &rec); err != nil {
				if errors.Is(err, badger.ErrKeyNotFound) {
					return fmt.Errorf("temp blob %s is not committed", tempKey)
				}
				return err
			}
			if !rec.Closed {
				return fmt.Errorf("temp blob %s is not committed", tempKey)
			}

			_, err := txn.Get(objectKey(finalKey))
			switch {
			case err == nil:
				return fmt.Errorf("%w: %s", models.ErrAlreadyExists, finalKey)
			case !errors.Is(err, badger.ErrKeyNotFound):
				return err
			}

			if err = txn.Delete([]byte(tempKey)); err != nil {
				return err
			}
			return setJSON(txn, objectKey(finalKey), rec.badgerObject)
		})
		if !errors.Is(err, badger.ErrConflict) {
			break
		}
	}

	if errors.Is(err, models.ErrAlreadyExists) {
		// Транзакция откатилась, временный объект убираем отдельно.
		_ = s.DiscardTemp(context.WithoutCancel(ctx), tempKey)
	}

	return err
}

// DiscardTemp удаляет запись временного объекта, затем его сегменты.
// Без записи сегменты не трогаются: они могут принадлежать размещённому объекту.
func (s *Badger) DiscardTemp(_ context.Context, tempKey string) error {
	id, ok := strings.CutPrefix(tempKey, tempPrefix)
	if !ok {
		return fmt.Errorf("not a temp key: %s", tempKey)
	}
	err := s.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get([]byte(tempKey)); err != nil {
			return err
		}
		return txn.Delete([]byte(tempKey))
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	return s.deleteSegments(id)
}

// SweepTemp удаляет временные объекты, в которые не писали дольше olderThan.
// Запись, обновлённая писателем во время очистки, даёт конфликт транзакции
// и остаётся до следующего прохода.
func (s *Badger) SweepTemp(ctx context.Context, olderThan time.Duration) (int, error) {
	cutoff := time.Now().Add(-olderThan)

	var stale []string
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(tempPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			var rec badgerTemp
			if err := it.Item().Value(func(b []byte) error { return json.Unmarshal(b, &rec) }); err != nil {
				return err
			}
			if rec.Updated.Before(cutoff) {
				stale = append(stale, string(it.Item().KeyCopy(nil)))
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	removed := 0
	for _, key := range stale {
		if ctx.Err() != nil {
			return removed, ctx.Err()
		}

		err := s.db.Update(func(txn *badger.Txn) error {
			var rec badgerTemp
			if err := getJSON(txn, []byte(key), &rec); err != nil {
				return err
			}
			if !rec.Updated.Before(cutoff) {
				return errTempActive
			}
			return txn.Delete([]byte(key))
		})
		switch {
		case err == nil:
		case errors.Is(err, badger.ErrConflict), errors.Is(err, badger.ErrKeyNotFound), errors.Is(err, errTempActive):
			continue
		default:
			return removed, err
		}

		if err = s.deleteSegments(strings.TrimPrefix(key, tempPrefix)); err != nil {
			return removed, err
		}
		removed++
	}

	return removed, nil
}

var errTempActive = errors.New("temp blob is still being written")

func (s *Badger) deleteSegments(id string) error {
	var keys [][]byte
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = segmentPrefix(id)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			keys = append(keys, it.Item().KeyCopy(nil))
		}
		return nil
	})
	if err != nil {
		return err
	}

	wb := s.db.NewWriteBatch()
	defer wb.Cancel()
	for _, k := range keys {
		if err := wb.Delete(k); err != nil {
			return err
		}
	}

	return wb.Flush()
}

// Close закрывает базу.
func (s *Badger) Close() error {
	return s.db.Close()
}
