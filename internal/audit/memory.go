package audit

import "sync"

// MemoryRecorder keeps events in a ring for tests and dry runs.
type MemoryRecorder struct {
	mu     sync.Mutex
	events []Event
	max    int
}

func NewMemoryRecorder(max int) *MemoryRecorder {
	if max <= 0 {
		max = 1000
	}
	return &MemoryRecorder{max: max}
}

func (r *MemoryRecorder) Record(ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	if len(r.events) > r.max {
		r.events = r.events[len(r.events)-r.max:]
	}
}

func (r *MemoryRecorder) Recent(limit int) ([]Event, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if limit <= 0 || limit > len(r.events) {
		limit = len(r.events)
	}
	out := make([]Event, limit)
	for i := 0; i < limit; i++ {
		out[i] = r.events[len(r.events)-1-i]
	}
	return out, nil
}

func (r *MemoryRecorder) Close() error { return nil }
