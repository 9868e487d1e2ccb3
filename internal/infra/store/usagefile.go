package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	domain "daybrief/internal/domain/budget"
)

// UsageFile is the append-only usage history: one JSON array, bounded to
// keep entries, oldest dropped first
type UsageFile struct {
	mu   sync.Mutex
	path string
	keep int
}

func NewUsageFile(path string, keep int) (*UsageFile, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create usage directory: %w", err)
	}
	if keep <= 0 {
		keep = 10000
	}
	return &UsageFile{path: path, keep: keep}, nil
}

func (f *UsageFile) Append(u domain.UsageRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	records, err := f.load()
	if err != nil {
		return err
	}
	records = append(records, u)
	if len(records) > f.keep {
		records = records[len(records)-f.keep:]
	}
	return writeJSON(f.path, records)
}

// Recent returns up to limit newest records; limit <= 0 returns everything
func (f *UsageFile) Recent(limit int) ([]domain.UsageRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	records, err := f.load()
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(records) > limit {
		records = records[len(records)-limit:]
	}
	return records, nil
}

func (f *UsageFile) load() ([]domain.UsageRecord, error) {
	data, err := os.ReadFile(f.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var records []domain.UsageRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("decode usage history: %w", err)
	}
	return records, nil
}
