package scorer

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFeed(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "scores.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestFileFeedParsesAndRanks(t *testing.T) {
	path := writeFeed(t, `[
		{"ticker":"aapl","entry_price":100,"qty":50,"stop_loss":95,"score":90,"passes_gate":true},
		{"ticker":"XLE","entry_price":54.33,"qty":100,"stop_loss":51.6,"score":72.5,
		 "flow_conviction":"whale","sector":"Energy","passes_gate":true,"is_etf":true},
		{"ticker":"MSFT","entry_price":300,"qty":10,"score":85,"passes_gate":false}
	]`)
	feed, err := NewFileFeed(path, 0, 60)
	require.NoError(t, err)

	ranked, err := feed.RankedCandidates(context.Background())
	require.NoError(t, err)
	require.Len(t, ranked, 2, "gate failures are never entry candidates")

	// Whale conviction outranks a higher raw score.
	assert.Equal(t, "XLE", ranked[0].Ticker)
	assert.Equal(t, FlowWhale, ranked[0].Flow)
	assert.True(t, ranked[0].IsETF)
	assert.Equal(t, "AAPL", ranked[1].Ticker)
}

func TestFileFeedLookupIncludesGateFailures(t *testing.T) {
	path := writeFeed(t, `[
		{"ticker":"MSFT","entry_price":300,"qty":10,"score":85,"passes_gate":false}
	]`)
	feed, err := NewFileFeed(path, 0, 60)
	require.NoError(t, err)

	c, ok := feed.Lookup("msft")
	require.True(t, ok)
	assert.False(t, c.PassesGate)

	_, ok = feed.Lookup("TSLA")
	assert.False(t, ok)
}

func TestFileFeedMinScoreAndMaxRows(t *testing.T) {
	path := writeFeed(t, `{"candidates":[
		{"ticker":"A","entry_price":10,"qty":1,"score":95,"passes_gate":true},
		{"ticker":"B","entry_price":10,"qty":1,"score":80,"passes_gate":true},
		{"ticker":"C","entry_price":10,"qty":1,"score":40,"passes_gate":true}
	]}`)
	feed, err := NewFileFeed(path, 1, 60)
	require.NoError(t, err)

	ranked, err := feed.RankedCandidates(context.Background())
	require.NoError(t, err)
	require.Len(t, ranked, 1)
	assert.Equal(t, "A", ranked[0].Ticker)

	// Below-threshold rows stay visible to Lookup.
	_, ok := feed.Lookup("C")
	assert.True(t, ok)
}

func TestFileFeedMissingFileServesEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "absent.json")
	feed, err := NewFileFeed(path, 0, 60)
	require.NoError(t, err)

	ranked, err := feed.RankedCandidates(context.Background())
	require.NoError(t, err)
	assert.Empty(t, ranked)
}

func TestFileFeedRejectsMalformedDocument(t *testing.T) {
	path := writeFeed(t, `{"not":"an array"}`)
	_, err := NewFileFeed(path, 0, 60)
	require.Error(t, err)
}

func TestFileFeedSkipsBadRows(t *testing.T) {
	path := writeFeed(t, `[
		{"ticker":"","entry_price":10,"qty":1,"score":90,"passes_gate":true},
		{"ticker":"OK","entry_price":0,"qty":1,"score":90,"passes_gate":true},
		{"ticker":"GOOD","entry_price":20,"qty":5,"score":90,"passes_gate":true}
	]`)
	feed, err := NewFileFeed(path, 0, 60)
	require.NoError(t, err)

	ranked, err := feed.RankedCandidates(context.Background())
	require.NoError(t, err)
	require.Len(t, ranked, 1)
	assert.Equal(t, "GOOD", ranked[0].Ticker)
}

func TestStaticScorer(t *testing.T) {
	s := &Static{Candidates: []Candidate{
		{Ticker: "AAPL", EntryPrice: 100, Qty: 50, PassesGate: true},
		{Ticker: "MSFT", EntryPrice: 300, Qty: 10, PassesGate: false},
	}}

	ranked, err := s.RankedCandidates(context.Background())
	require.NoError(t, err)
	require.Len(t, ranked, 1)

	c, ok := s.Lookup("msft")
	require.True(t, ok)
	assert.False(t, c.PassesGate)
	assert.Equal(t, 5000.0, ranked[0].Notional())
}
