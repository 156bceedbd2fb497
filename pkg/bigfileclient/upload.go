package bigfileclient

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/sir_venger/bigfile/pkg/contenthash"
)

const defaultParallel = 4

// UploadOptions задаёт нарезку и параллельность загрузки.
type UploadOptions struct {
	// ChunkSize для фиксированной нарезки. Для CDC это верхняя граница чанка.
	ChunkSize int
	// ContentDefined включает нарезку по содержимому.
	ContentDefined bool
	// Parallel: сколько чанков грузится одновременно.
	Parallel int
}

// UploadResult: итог загрузки.
type UploadResult struct {
	FileID   contenthash.Hash
	Chunks   contenthash.Sequence
	Size     int64
	Uploaded int
	Skipped  int
}

func (o UploadOptions) splitter(r io.Reader) Splitter {
	if o.ContentDefined {
		var maxSize uint
		if o.ChunkSize > 0 {
			maxSize = uint(o.ChunkSize)
		}
		return NewCDCSplitter(r, 0, maxSize)
	}
	return NewFixedSplitter(r, o.ChunkSize)
}

// UploadFile загружает файл с диска.
func (h *Client) UploadFile(ctx context.Context, path string, opts UploadOptions) (UploadResult, error) {
	f, err := os.Open(path)
	if err != nil {
		return UploadResult{}, err
	}
	defer f.Close()

	st, err := f.Stat()
	if err != nil {
		return UploadResult{}, err
	}

	return h.Upload(ctx, f, st.Size(), opts)
}

// Upload режет r на чанки, грузит те, которых нет на сервере, и склеивает их.
// size нужен только для индикатора, 0 если неизвестен.
//
// Повторная загрузка того же файла ничего не передаёт, кроме запросов
// статуса: уже лежащие на сервере чанки пропускаются.
func (h *Client) Upload(ctx context.Context, r io.Reader, size int64, opts UploadOptions) (UploadResult, error) {
	parallel := opts.Parallel
	if parallel <= 0 {
		parallel = defaultParallel
	}

	bar := newProgressBar(h.progress, "Uploading", size)

	var (
		res      UploadResult
		uploaded atomic.Int64
		skipped  atomic.Int64
		seen     = make(map[contenthash.Hash]struct{})
	)
	res.Chunks = contenthash.Sequence{}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(parallel)

	split := opts.splitter(r)
	for {
		ch, err := split.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			_ = g.Wait()
			bar.Fail(err)
			return res, err
		}
		if gctx.Err() != nil {
			break
		}

		res.Chunks = append(res.Chunks, ch.Hash)
		res.Size += int64(len(ch.Data))
		if _, dup := seen[ch.Hash]; dup {
			bar.AddBytes(int64(len(ch.Data)))
			continue
		}
		seen[ch.Hash] = struct{}{}

		g.Go(func() error {
			defer bar.AddBytes(int64(len(ch.Data)))

			exists, err := h.ChunkExists(gctx, ch.Hash)
			if err != nil {
				return err
			}
			if exists {
				skipped.Add(1)
				return nil
			}
			if err := h.UploadChunk(gctx, ch.Hash, ch.Data); err != nil {
				return err
			}
			uploaded.Add(1)

			return nil
		})
	}

	if err := g.Wait(); err != nil {
		bar.Fail(err)
		return res, err
	}
	if err := ctx.Err(); err != nil {
		bar.Fail(err)
		return res, err
	}
	res.Uploaded = int(uploaded.Load())
	res.Skipped = int(skipped.Load())

	id, err := h.Merge(ctx, res.Chunks)
	if err != nil {
		bar.Fail(err)
		return res, err
	}
	if want := contenthash.Composite(res.Chunks); id != want {
		err = fmt.Errorf("server returned file id %s, expected %s", id, want)
		bar.Fail(err)
		return res, err
	}
	res.FileID = id
	bar.Finish()

	return res, nil
}
