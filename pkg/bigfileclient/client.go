// Package bigfileclient реализует клиент протокола загрузки больших файлов по чанкам.
// Уже загруженные чанки при повторной загрузке пропускаются.
package bigfileclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	"github.com/sir_venger/bigfile/internal/models"
	"github.com/sir_venger/bigfile/pkg/bigfileproto"
	"github.com/sir_venger/bigfile/pkg/contenthash"
)

type Client struct {
	c        *http.Client
	base     string
	progress io.Writer
}

// Option настраивает клиента.
type Option func(*Client)

// WithHTTPClient подменяет HTTP-клиент по умолчанию.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) { cl.c = c }
}

// WithBasePath задаёт base_path сервера (по умолчанию /api/big-file).
func WithBasePath(p string) Option {
	return func(cl *Client) { cl.base = strings.TrimRight(p, "/") }
}

// WithProgress включает индикатор выполнения в out.
func WithProgress(out io.Writer) Option {
	return func(cl *Client) { cl.progress = out }
}

// New создаёт клиента для сервера serverURL.
func New(serverURL string, opts ...Option) *Client {
	cl := &Client{
		c:    &http.Client{},
		base: bigfileproto.DefaultBasePath,
	}
	for _, o := range opts {
		o(cl)
	}
	cl.base = strings.TrimRight(serverURL, "/") + cl.base

	return cl
}

// ChunkExists спрашивает сервер, загружен ли чанк.
func (h *Client) ChunkExists(ctx context.Context, hash contenthash.Hash) (bool, error) {
	u := fmt.Sprintf(bigfileproto.ChunkStatusPathFormat, h.base, hash)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return false, err
	}

	resp, err := h.c.Do(req)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false, statusError("chunk status", resp)
	}

	var st bigfileproto.ChunkStatus
	if err = json.NewDecoder(resp.Body).Decode(&st); err != nil {
		return false, fmt.Errorf("decode chunk status: %w", err)
	}

	return st.Exists, nil
}

// UploadChunk отправляет чанк multipart-формой с полем file.
func (h *Client) UploadChunk(ctx context.Context, hash contenthash.Hash, data []byte) error {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	fw, err := mw.CreateFormFile(bigfileproto.FormFileField, hash.String())
	if err != nil {
		return err
	}
	if _, err = fw.Write(data); err != nil {
		return err
	}
	if err = mw.Close(); err != nil {
		return err
	}

	u := fmt.Sprintf(bigfileproto.ChunkPathFormat, h.base, hash)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, &body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := h.c.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return statusError("upload chunk "+hash.String(), resp)
	}
	_, _ = io.Copy(io.Discard, resp.Body)

	return nil
}

// Merge просит сервер склеить чанки. Пропущенный чанк возвращается как
// *models.ChunkMissingError.
func (h *Client) Merge(ctx context.Context, seq contenthash.Sequence) (contenthash.Hash, error) {
	if seq == nil {
		seq = contenthash.Sequence{}
	}
	payload, err := json.Marshal(seq)
	if err != nil {
		return "", err
	}

	u := fmt.Sprintf(bigfileproto.MergePathFormat, h.base)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := h.c.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusConflict:
		var conflict bigfileproto.MergeConflict
		if err := json.NewDecoder(resp.Body).Decode(&conflict); err != nil {
			return "", fmt.Errorf("merge: %w", models.ErrChunkMissing)
		}
		return "", &models.ChunkMissingError{Hash: conflict.Missing}
	default:
		return "", statusError("merge", resp)
	}

	var res bigfileproto.MergeResult
	if err = json.NewDecoder(resp.Body).Decode(&res); err != nil {
		return "", fmt.Errorf("decode merge result: %w", err)
	}

	return contenthash.Parse(res.FileID)
}

// Download скачивает объект в w и возвращает число байт.
func (h *Client) Download(ctx context.Context, id contenthash.Hash, w io.Writer) (int64, error) {
	u := fmt.Sprintf(bigfileproto.FilePathFormat, h.base, id)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return 0, err
	}

	resp, err := h.c.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, statusError("download "+id.String(), resp)
	}

	var body io.Reader = resp.Body
	bar := newProgressBar(h.progress, fmt.Sprintf("Downloading %s", id), resp.ContentLength)
	if bar != nil {
		body = io.TeeReader(resp.Body, progressWriter{bar: bar})
	}

	n, err := io.Copy(w, body)
	if err != nil {
		bar.Fail(err)
		return n, err
	}
	bar.Finish()

	return n, nil
}

// Manifest возвращает список чанков, из которых собран файл.
func (h *Client) Manifest(ctx context.Context, id contenthash.Hash) (bigfileproto.Manifest, error) {
	u := fmt.Sprintf(bigfileproto.ManifestPathFormat, h.base, id)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return bigfileproto.Manifest{}, err
	}

	resp, err := h.c.Do(req)
	if err != nil {
		return bigfileproto.Manifest{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return bigfileproto.Manifest{}, statusError("manifest "+id.String(), resp)
	}

	var m bigfileproto.Manifest
	if err = json.NewDecoder(resp.Body).Decode(&m); err != nil {
		return bigfileproto.Manifest{}, fmt.Errorf("decode manifest: %w", err)
	}

	return m, nil
}

// statusError переводит HTTP-статус обратно в доменную ошибку.
func statusError(op string, resp *http.Response) error {
	msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
	detail := strings.TrimSpace(string(msg))

	var sentinel error
	switch resp.StatusCode {
	case http.StatusNotFound:
		sentinel = models.ErrNotFound
	case http.StatusBadRequest:
		if strings.Contains(detail, models.ErrVerificationFailed.Error()) {
			sentinel = models.ErrVerificationFailed
		} else {
			sentinel = models.ErrInvalidHash
		}
	case http.StatusRequestEntityTooLarge:
		sentinel = models.ErrChunkTooLarge
	}
	if sentinel != nil {
		return fmt.Errorf("%s: %w (%s)", op, sentinel, detail)
	}

	return errors.New(op + " failed: " + resp.Status + ": " + detail)
}
