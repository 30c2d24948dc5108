package store

import (
	"context"
	"errors"
	"time"
)

const (
	DefaultListLimit = 50
	MaxListLimit     = 200
)

// ErrEmptyImage is returned by Save when there is nothing to write.
var ErrEmptyImage = errors.New("image data is empty")

// Store persists generated images.
type Store interface {
	// Save writes one image and returns where it can be found again:
	// a URL for remote stores, a URL or file:// path for the local one.
	Save(ctx context.Context, data []byte, mimeType string) (string, error)

	// List returns up to limit saved images, newest first.
	List(ctx context.Context, limit int) ([]Entry, error)
}

// Entry describes one saved image.
type Entry struct {
	Key      string    `json:"key"`
	Location string    `json:"location"`
	Size     int64     `json:"size"`
	ModTime  time.Time `json:"mod_time"`
}

// NormalizeLimit clamps limit into [1, MaxListLimit]; zero or negative
// values mean DefaultListLimit.
func NormalizeLimit(limit int) int {
	if limit <= 0 {
		return DefaultListLimit
	}
	if limit > MaxListLimit {
		return MaxListLimit
	}
	return limit
}
