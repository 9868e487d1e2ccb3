// Package store provides the file-backed persistence for budget state,
// usage history and the error log: plain JSON files, rewritten atomically.
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

// BudgetFile keeps the single budget state record in one JSON file,
// rewritten on every save
type BudgetFile struct {
	mu   sync.Mutex
	path string
}

func NewBudgetFile(path string) (*BudgetFile, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create state directory: %w", err)
	}
	return &BudgetFile{path: path}, nil
}

// Load returns nil without error when no state has been persisted yet
func (f *BudgetFile) Load() (*domain.State, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := os.ReadFile(f.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var state domain.State
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("decode budget state: %w", err)
	}
	return &state, nil
}

func (f *BudgetFile) Save(s *domain.State) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return writeJSON(f.path, s)
}

// writeJSON rewrites path via a temp file so readers never observe a
// partial record
func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
