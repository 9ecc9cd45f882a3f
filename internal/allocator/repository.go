package allocator

// State is the full persistable ledger, keyed by bucket id.
type State struct {
	Buckets map[string]*bucket `json:"buckets"`
}

// Repository persists allocator state across restarts. Reconciling the
// restored ledger against the broker's live positions is the caller's job.
type Repository interface {
	Load() (State, bool, error)
	Save(State) error
}

// MemoryRepository keeps state in-process, for tests and dry runs.
type MemoryRepository struct {
	state State
	saved bool
}

func NewMemoryRepository() *MemoryRepository { return &MemoryRepository{} }

func (r *MemoryRepository) Load() (State, bool, error) {
	return r.state, r.saved, nil
}

func (r *MemoryRepository) Save(s State) error {
	r.state = s
	r.saved = true
	return nil
}
