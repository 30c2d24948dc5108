package store

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"imagen-mcp/common"
	"imagen-mcp/internal/utils"
)

const keyPrefix = "images/"

// LocalStore keeps images in a directory on the local disk. Keys have the
// form images/yyyy-MM-dd/{name}; the images/ prefix maps onto the root.
type LocalStore struct {
	root    string
	baseURL string
	now     func() time.Time
}

// NewLocalStore creates root if needed. When baseURL is set (for example
// http://127.0.0.1:9981) locations are URLs under baseURL/images/, otherwise
// they are file:// paths.
func NewLocalStore(root, baseURL string) (*LocalStore, error) {
	if root == "" {
		return nil, fmt.Errorf("image directory is required")
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve image directory: %w", err)
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create image directory: %w", err)
	}

	return &LocalStore{
		root:    abs,
		baseURL: strings.TrimRight(baseURL, "/"),
		now:     time.Now,
	}, nil
}

// Root returns the absolute directory images are written to.
func (s *LocalStore) Root() string {
	return s.root
}

// Save writes data under a new dated key and returns its HTTP URL when a
// base URL is set, or a file:// URL otherwise. The file only appears under
// its final name once fully written.
func (s *LocalStore) Save(ctx context.Context, data []byte, mimeType string) (string, error) {
	if len(data) == 0 {
		return "", ErrEmptyImage
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	now := s.now()
	key := utils.GenerateImagePath(now) + utils.GenerateImageFileName(now, mimeType)
	path := s.pathFor(key)

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("failed to create image directory: %w", err)
	}

	// Readers of the HTTP listing never see a half-written file.
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write image: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return "", fmt.Errorf("failed to write image: %w", err)
	}

	location := s.location(key, path)
	common.WithFields(map[string]interface{}{
		"key":      key,
		"size":     len(data),
		"location": location,
	}).Info("Image saved to local store")

	return location, nil
}

// List returns up to limit saved images, newest first.
func (s *LocalStore) List(ctx context.Context, limit int) ([]Entry, error) {
	limit = NormalizeLimit(limit)

	var entries []Entry
	err := filepath.WalkDir(s.root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if d.IsDir() || strings.HasSuffix(d.Name(), ".tmp") || strings.HasPrefix(d.Name(), ".") {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(s.root, path)
		if err != nil {
			return err
		}

		key := keyPrefix + filepath.ToSlash(rel)
		entries = append(entries, Entry{
			Key:      key,
			Location: s.location(key, path),
			Size:     info.Size(),
			ModTime:  info.ModTime(),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list images: %w", err)
	}

	sortNewestFirst(entries)
	if len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}

func (s *LocalStore) pathFor(key string) string {
	return filepath.Join(s.root, filepath.FromSlash(strings.TrimPrefix(key, keyPrefix)))
}

func (s *LocalStore) location(key, path string) string {
	if s.baseURL != "" {
		return s.baseURL + "/" + key
	}
	return "file://" + filepath.ToSlash(path)
}

// sortNewestFirst orders by modification time, then key, both descending.
// Keys embed the date and a unix timestamp so the tie-break is stable.
func sortNewestFirst(entries []Entry) {
	sort.Slice(entries, func(i, j int) bool {
		if !entries[i].ModTime.Equal(entries[j].ModTime) {
			return entries[i].ModTime.After(entries[j].ModTime)
		}
		return entries[i].Key > entries[j].Key
	})
}
