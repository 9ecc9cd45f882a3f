package scorer

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/tidwall/gjson"

	"tiller/internal/logger"
)

// FileFeed reads ranked candidates from a JSON document produced by the
// scoring pipeline and reloads it whenever the file changes. The document is
// an array (or an object with a "candidates" array) of rows:
//
//	{"ticker":"XLE","entry_price":54.33,"qty":100,"stop_loss":51.6,
//	 "score":72.5,"structure":"Breakout","sector":"Energy",
//	 "flow_conviction":"whale","passes_gate":true,"is_etf":true}
type FileFeed struct {
	path     string
	maxRows  int
	minScore float64

	mu      sync.RWMutex
	ranked  []Candidate
	byTick  map[string]Candidate
	watcher *fsnotify.Watcher
}

func NewFileFeed(path string, maxRows int, minScore float64) (*FileFeed, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("scorer feed: path cannot be empty")
	}
	f := &FileFeed{path: path, maxRows: maxRows, minScore: minScore}
	if err := f.reload(); err != nil {
		return nil, err
	}
	return f, nil
}

// Watch starts reloading the feed on file change events until ctx ends.
func (f *FileFeed) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("scorer feed: watcher: %w", err)
	}
	if err := watcher.Add(filepath.Dir(f.path)); err != nil {
		watcher.Close()
		return fmt.Errorf("scorer feed: watch %s: %w", f.path, err)
	}
	f.watcher = watcher
	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case evt, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(evt.Name) != filepath.Clean(f.path) {
					continue
				}
				if evt.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				if err := f.reload(); err != nil {
					logger.Errorf("scorer feed reload failed: %v", err)
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.Warnf("scorer feed watcher: %v", err)
			}
		}
	}()
	return nil
}

func (f *FileFeed) RankedCandidates(ctx context.Context) ([]Candidate, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([]Candidate, 0, len(f.ranked))
	for _, c := range f.ranked {
		if !c.PassesGate {
			continue
		}
		out = append(out, c)
	}
	return out, nil
}

func (f *FileFeed) Lookup(ticker string) (Candidate, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	c, ok := f.byTick[strings.ToUpper(ticker)]
	return c, ok
}

func (f *FileFeed) reload() error {
	raw, err := os.ReadFile(f.path)
	if os.IsNotExist(err) {
		// The scanner may not have produced a file yet. Serve an empty
		// watchlist until the watcher sees one appear.
		logger.Warnf("scorer feed: %s not found, watchlist empty", f.path)
		f.mu.Lock()
		f.ranked = nil
		f.byTick = map[string]Candidate{}
		f.mu.Unlock()
		return nil
	}
	if err != nil {
		return fmt.Errorf("scorer feed: read %s: %w", f.path, err)
	}
	if !gjson.ValidBytes(raw) {
		return fmt.Errorf("scorer feed: %s is not valid JSON", f.path)
	}
	doc := gjson.ParseBytes(raw)
	rows := doc
	if doc.IsObject() {
		rows = doc.Get("candidates")
	}
	if !rows.IsArray() {
		return fmt.Errorf("scorer feed: expected a candidate array in %s", f.path)
	}

	var parsed []Candidate
	byTick := make(map[string]Candidate)
	rows.ForEach(func(_, row gjson.Result) bool {
		c, err := parseRow(row)
		if err != nil {
			logger.Warnf("scorer feed: skipping row: %v", err)
			return true
		}
		byTick[c.Ticker] = c
		if c.Score >= f.minScore {
			parsed = append(parsed, c)
		}
		return true
	})

	// Whale flow outranks raw score, matching how the pipeline prioritizes
	// conviction over marginal score differences.
	sort.SliceStable(parsed, func(i, j int) bool {
		wi, wj := parsed[i].Flow == FlowWhale, parsed[j].Flow == FlowWhale
		if wi != wj {
			return wi
		}
		return parsed[i].Score > parsed[j].Score
	})
	if f.maxRows > 0 && len(parsed) > f.maxRows {
		parsed = parsed[:f.maxRows]
	}

	f.mu.Lock()
	f.ranked = parsed
	f.byTick = byTick
	f.mu.Unlock()
	logger.Infof("scorer feed: loaded %d candidates (%d ranked) from %s", len(byTick), len(parsed), f.path)
	return nil
}

func parseRow(row gjson.Result) (Candidate, error) {
	ticker := strings.ToUpper(strings.TrimSpace(row.Get("ticker").String()))
	if ticker == "" {
		return Candidate{}, fmt.Errorf("missing ticker")
	}
	entry := row.Get("entry_price").Float()
	if entry <= 0 {
		return Candidate{}, fmt.Errorf("%s: entry_price must be positive", ticker)
	}
	c := Candidate{
		Ticker:     ticker,
		EntryPrice: entry,
		Qty:        int(row.Get("qty").Int()),
		StopLoss:   row.Get("stop_loss").Float(),
		Target1:    row.Get("target_1").Float(),
		Target2:    row.Get("target_2").Float(),
		Score:      row.Get("score").Float(),
		Structure:  row.Get("structure").String(),
		Sector:     row.Get("sector").String(),
		Flow:       normalizeFlow(row.Get("flow_conviction").String()),
		PassesGate: row.Get("passes_gate").Bool(),
		IsETF:      row.Get("is_etf").Bool(),
	}
	return c, nil
}

func normalizeFlow(raw string) FlowConviction {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "whale":
		return FlowWhale
	case "moderate":
		return FlowModerate
	default:
		return FlowLight
	}
}

// Static is a fixed candidate list, used by tests and one-shot runs.
type Static struct {
	Candidates []Candidate
}

func (s *Static) RankedCandidates(ctx context.Context) ([]Candidate, error) {
	out := make([]Candidate, 0, len(s.Candidates))
	for _, c := range s.Candidates {
		if c.PassesGate {
			out = append(out, c)
		}
	}
	return out, nil
}

func (s *Static) Lookup(ticker string) (Candidate, bool) {
	for _, c := range s.Candidates {
		if strings.EqualFold(c.Ticker, ticker) {
			return c, true
		}
	}
	return Candidate{}, false
}
