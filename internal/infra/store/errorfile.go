package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	domain "daybrief/internal/domain/faults"
)

// ErrorFile is the append-only persisted error log, bounded to keep
// entries, oldest dropped first
type ErrorFile struct {
	mu   sync.Mutex
	path string
	keep int
}

func NewErrorFile(path string, keep int) (*ErrorFile, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create error log directory: %w", err)
	}
	if keep <= 0 {
		keep = 1000
	}
	return &ErrorFile{path: path, keep: keep}, nil
}

func (f *ErrorFile) Append(e domain.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	events, err := f.load()
	if err != nil {
		return err
	}
	events = append(events, e)
	if len(events) > f.keep {
		events = events[len(events)-f.keep:]
	}
	return writeJSON(f.path, events)
}

// Recent returns up to limit newest events; limit <= 0 returns everything
func (f *ErrorFile) Recent(limit int) ([]domain.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	events, err := f.load()
	if err != nil {
		return nil, err
	}
	if limit > 0 && len(events) > limit {
		events = events[len(events)-limit:]
	}
	return events, nil
}

func (f *ErrorFile) load() ([]domain.Event, error) {
	data, err := os.ReadFile(f.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var events []domain.Event
	if err := json.Unmarshal(data, &events); err != nil {
		return nil, fmt.Errorf("decode error log: %w", err)
	}
	return events, nil
}
