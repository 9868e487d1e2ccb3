package budget

// StateStore persists the single budget state record, rewritten on every
// successful reservation
type StateStore interface {
	Load() (*State, error)
	Save(s *State) error
}

// UsageStore persists the append-only usage history (bounded, oldest-dropped)
type UsageStore interface {
	Append(u UsageRecord) error
	Recent(limit int) ([]UsageRecord, error)
}
