package memory

import (
	"encoding/gob"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"ermtutor/internal/domain"
)

const snapshotVersion = 1

type snapshot struct {
	Version   int
	Model     string
	Dimension int
	Records   []domain.EmbeddingRecord
}

// writeSnapshot encodes to a temp file and renames it over path.
func writeSnapshot(path string, snap snapshot) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create snapshot dir: %w", err)
	}
	tmp := path + ".tmp"
	file, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("create snapshot: %w", err)
	}
	if err := gob.NewEncoder(file).Encode(snap); err != nil {
		file.Close()
		os.Remove(tmp)
		return fmt.Errorf("encode snapshot: %w", err)
	}
	if err := file.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("close snapshot: %w", err)
	}
	return os.Rename(tmp, path)
}

func readSnapshot(path string) (snapshot, error) {
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return snapshot{}, domain.ErrSnapshotNotFound
		}
		return snapshot{}, fmt.Errorf("open snapshot: %w: %w", domain.ErrStoreCorrupt, err)
	}
	defer file.Close()

	var snap snapshot
	if err := gob.NewDecoder(file).Decode(&snap); err != nil {
		return snapshot{}, fmt.Errorf("decode snapshot: %w: %w", domain.ErrStoreCorrupt, err)
	}
	return snap, nil
}
