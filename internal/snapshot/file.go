package snapshot

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/worldlyfantasy/priospace-sub000/internal/models"
)

// FileStore keeps the snapshot as one pretty-printed JSON document on disk.
// The file doubles as the export format: anything the store writes can be
// imported by another instance as-is.
type FileStore struct {
	Path string
}

// NewFileStore creates a store backed by the given path.
func NewFileStore(path string) *FileStore {
	return &FileStore{Path: path}
}

// Load reads and validates the snapshot. A missing file yields an empty
// snapshot rather than an error, so a fresh device can join a sync
// immediately.
func (fs *FileStore) Load(ctx context.Context) (*models.Snapshot, error) {
	data, err := os.ReadFile(fs.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return Empty(), nil
		}
		return nil, err
	}
	return Decode(data)
}

// Save writes the snapshot atomically: a temp file in the same directory is
// renamed over the target so a crash never leaves a torn document.
func (fs *FileStore) Save(ctx context.Context, snap *models.Snapshot) error {
	out := snap.Clone()
	out.ExportDate = time.Now().UTC().Format(time.RFC3339)
	if out.Version == "" {
		out.Version = CurrentVersion
	}

	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return err
	}

	dir := filepath.Dir(fs.Path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".snapshot-*.json")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	if err := os.Rename(tmp.Name(), fs.Path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("replace snapshot file: %w", err)
	}
	return nil
}
