// Package media implements the object-storage collaborator: binary payloads go
// in, a serving URL and an opaque deletion key come out. Callers are allowed
// to ignore Delete errors.
package media

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/trakline/trakline/internal/config"
)

// Asset references one stored object.
type Asset struct {
	URL       string
	DeleteKey string
}

// Store uploads and deletes binary payloads.
type Store interface {
	Upload(ctx context.Context, data []byte, folder string) (Asset, error)
	Delete(ctx context.Context, deleteKey string) error
}

// DiskStore keeps objects under a local directory, one file per asset keyed by
// a random name. The deletion key is the relative path.
type DiskStore struct {
	dir     string
	baseURL string
}

// NewDiskStore builds a disk-backed media store.
func NewDiskStore(cfg config.MediaConfig) *DiskStore {
	return &DiskStore{dir: cfg.Dir, baseURL: strings.TrimRight(cfg.BaseURL, "/")}
}

// Upload writes the payload and returns its URL and deletion key.
func (d *DiskStore) Upload(ctx context.Context, data []byte, folder string) (Asset, error) {
	if err := ctx.Err(); err != nil {
		return Asset{}, err
	}
	folder = sanitizeFolder(folder)
	dir := filepath.Join(d.dir, folder)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Asset{}, err
	}
	name := uuid.NewString()
	if err := os.WriteFile(filepath.Join(dir, name), data, 0o600); err != nil {
		return Asset{}, err
	}
	key := path.Join(folder, name)
	return Asset{URL: d.baseURL + "/" + key, DeleteKey: key}, nil
}

// Delete removes the object behind the deletion key.
func (d *DiskStore) Delete(ctx context.Context, deleteKey string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	key := path.Clean(strings.TrimSpace(deleteKey))
	if key == "" || key == "." || strings.HasPrefix(key, "..") || path.IsAbs(key) {
		return fmt.Errorf("invalid delete key %q", deleteKey)
	}
	err := os.Remove(filepath.Join(d.dir, filepath.FromSlash(key)))
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return err
}

func sanitizeFolder(folder string) string {
	folder = strings.Trim(path.Clean("/"+folder), "/")
	if folder == "" {
		return "misc"
	}
	return folder
}
