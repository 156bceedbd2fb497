package meta

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/sir_venger/bigfile/internal/blobstore"
	"github.com/sir_venger/bigfile/internal/models"
)

const manifestPrefix = "manifest/"

// BlobStore кладёт манифесты JSON-объектами рядом с данными, в том же
// хранилище и с той же двухфазной записью.
type BlobStore struct {
	blobs blobstore.BlobStore
}

var _ Store = (*BlobStore)(nil)

func NewBlobStore(blobs blobstore.BlobStore) *BlobStore {
	return &BlobStore{blobs: blobs}
}

func (s *BlobStore) Get(ctx context.Context, id string) (models.Manifest, error) {
	rc, err := s.blobs.Open(ctx, manifestPrefix+id)
	if err != nil {
		return models.Manifest{}, err
	}
	defer rc.Close()

	var m models.Manifest
	if err := json.NewDecoder(rc).Decode(&m); err != nil {
		return models.Manifest{}, fmt.Errorf("decode manifest %s: %w", id, err)
	}
	if m.Chunks == nil {
		m.Chunks = []string{}
	}

	return m, nil
}

func (s *BlobStore) Save(ctx context.Context, m models.Manifest) error {
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	if m.Chunks == nil {
		m.Chunks = []string{}
	}

	tmp, err := s.blobs.CreateTemp(ctx)
	if err != nil {
		return err
	}
	if err = json.NewEncoder(tmp).Encode(m); err != nil {
		_ = tmp.Close()
		_ = s.blobs.DiscardTemp(context.WithoutCancel(ctx), tmp.Key())
		return fmt.Errorf("encode manifest %s: %w", m.ID, err)
	}
	if err = tmp.Close(); err != nil {
		_ = s.blobs.DiscardTemp(context.WithoutCancel(ctx), tmp.Key())
		return err
	}

	err = s.blobs.AtomicPlace(ctx, tmp.Key(), manifestPrefix+m.ID)
	if errors.Is(err, models.ErrAlreadyExists) {
		return nil
	}

	return err
}
