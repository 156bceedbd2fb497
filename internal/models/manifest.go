package models

import "time"

// Manifest описывает склеенный файл: из каких чанков и в каком порядке он собран.
type Manifest struct {
	ID        string    `json:"fileId"`
	Chunks    []string  `json:"chunks"`
	Size      int64     `json:"size"`
	CreatedAt time.Time `json:"createdAt"`
}

// Clone возвращает копию, не разделяющую срез чанков с оригиналом.
func (m Manifest) Clone() Manifest {
	out := m
	out.Chunks = make([]string, len(m.Chunks))
	copy(out.Chunks, m.Chunks)
	return out
}
