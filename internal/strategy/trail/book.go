package trail

import (
	"sort"
	"sync"
	"time"
)

// Book holds the live ratchet records, one per ticker. The execution loop
// is the only writer; the admin API reads snapshots.
type Book struct {
	mu      sync.RWMutex
	records map[string]Record
}

func NewBook() *Book {
	return &Book{records: make(map[string]Record)}
}

// Track starts (or replaces) the record for a ticker.
func (b *Book) Track(ticker string, entryPrice float64, cfg PhaseConfig, now time.Time) Record {
	rec := Init(ticker, entryPrice, cfg, now)
	b.mu.Lock()
	b.records[ticker] = rec
	b.mu.Unlock()
	return rec
}

// Advance feeds one price into a ticker's record and stores the result.
// ok is false when the ticker is not tracked.
func (b *Book) Advance(ticker string, price float64, now time.Time) (Record, []Change, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	rec, ok := b.records[ticker]
	if !ok {
		return Record{}, nil, false
	}
	next, changes := Update(rec, price, now)
	b.records[ticker] = next
	return next, changes, true
}

// Drop discards a record once the position closes. Closing is terminal;
// a re-entry starts a fresh record via Track.
func (b *Book) Drop(ticker string) {
	b.mu.Lock()
	delete(b.records, ticker)
	b.mu.Unlock()
}

func (b *Book) Get(ticker string) (Record, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	rec, ok := b.records[ticker]
	return rec, ok
}

// Snapshot returns all records ordered by ticker.
func (b *Book) Snapshot() []Record {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]Record, 0, len(b.records))
	for _, rec := range b.records {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Ticker < out[j].Ticker })
	return out
}

// Restore reinstates a persisted record, used at startup reconciliation.
func (b *Book) Restore(rec Record) {
	b.mu.Lock()
	b.records[rec.Ticker] = rec
	b.mu.Unlock()
}
