// Package bigfileproto описывает HTTP-протокол загрузки больших файлов по чанкам.
package bigfileproto

import "time"

// Пути относительно base_path сервиса.
const (
	DefaultBasePath = "/api/big-file"

	ChunkStatusPathFormat = "%s/chunk/%s/status"
	ChunkPathFormat       = "%s/chunk/%s"
	MergePathFormat       = "%s/merge"
	FilePathFormat        = "%s/file/%s"
	ManifestPathFormat    = "%s/file/%s/manifest"

	// FormFileField: имя поля multipart-формы с телом чанка.
	FormFileField = "file"
)

// ChunkStatus: ответ GET .../chunk/{hash}/status.
type ChunkStatus struct {
	Exists bool `json:"exists"`
}

// MergeResult: ответ POST .../merge.
type MergeResult struct {
	FileID string `json:"fileId"`
}

// MergeConflict: тело ответа 409 на merge с незагруженным чанком.
type MergeConflict struct {
	Error   string `json:"error"`
	Missing string `json:"missing"`
}

// Manifest: ответ GET .../file/{id}/manifest.
type Manifest struct {
	FileID    string    `json:"fileId"`
	Chunks    []string  `json:"chunks"`
	Size      int64     `json:"size"`
	CreatedAt time.Time `json:"createdAt"`
}
