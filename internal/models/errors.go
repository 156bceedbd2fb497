package models

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound           = errors.New("object not found")
	ErrVerificationFailed = errors.New("content hash verification failed")
	ErrChunkMissing       = errors.New("chunk missing")
	ErrInvalidHash        = errors.New("invalid content hash")
	ErrAlreadyExists      = errors.New("object already exists")
	ErrChunkTooLarge      = errors.New("chunk exceeds size limit")
)

// ChunkMissingError сообщает, какой именно чанк из последовательности не загружен.
type ChunkMissingError struct {
	Hash string
}

func (e *ChunkMissingError) Error() string {
	return fmt.Sprintf("chunk missing: %s", e.Hash)
}

func (e *ChunkMissingError) Is(target error) bool {
	return target == ErrChunkMissing
}
