package store

import (
	"errors"

	"daybrief/internal/domain/faults"
)

// MultiEventStore fans Append out to several stores. Recent reads from the
// first store only; the rest are write-behind mirrors.
type MultiEventStore struct {
	stores []faults.EventStore
}

func NewMultiEventStore(stores ...faults.EventStore) *MultiEventStore {
	kept := make([]faults.EventStore, 0, len(stores))
	for _, s := range stores {
		if s != nil {
			kept = append(kept, s)
		}
	}
	return &MultiEventStore{stores: kept}
}

func (m *MultiEventStore) Append(e faults.Event) error {
	var errs []error
	for _, s := range m.stores {
		if err := s.Append(e); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m *MultiEventStore) Recent(limit int) ([]faults.Event, error) {
	if len(m.stores) == 0 {
		return nil, nil
	}
	return m.stores[0].Recent(limit)
}
