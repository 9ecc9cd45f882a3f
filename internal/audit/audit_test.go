package audit

import (
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSQLiteRecorderAppendsAndReads(t *testing.T) {
	r, err := OpenSQLite(filepath.Join(t.TempDir(), "audit.db"))
	require.NoError(t, err)
	defer r.Close()

	base := time.Date(2026, 3, 4, 10, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		r.Record(NewEvent(KindEntry, "AAPL", fmt.Sprintf("entry %d", i), base.Add(time.Duration(i)*time.Minute)))
	}
	r.Record(NewEvent(KindHalt, "", "daily loss limit", base.Add(time.Hour)))

	recent, err := r.Recent(3)
	require.NoError(t, err)
	require.Len(t, recent, 3)
	assert.Equal(t, KindHalt, recent[0].Kind, "newest first")
	assert.Equal(t, "entry 4", recent[1].Detail)

	all, err := r.Recent(0)
	require.NoError(t, err)
	assert.Len(t, all, 6)
}

func TestMemoryRecorderRing(t *testing.T) {
	r := NewMemoryRecorder(3)
	now := time.Now()
	for i := 0; i < 5; i++ {
		r.Record(NewEvent(KindNote, "", fmt.Sprintf("n%d", i), now))
	}
	recent, err := r.Recent(10)
	require.NoError(t, err)
	require.Len(t, recent, 3, "ring keeps only the newest")
	assert.Equal(t, "n4", recent[0].Detail)
	assert.Equal(t, "n2", recent[2].Detail)
}
