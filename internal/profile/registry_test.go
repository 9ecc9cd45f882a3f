package profile

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleFile = `
buckets:
  short_momentum:
    name: Short-Term Momentum
    capital: 12000
    max_positions: 3
    max_position_pct: 35
    max_risk_pct: 2
    max_hold: 48h
    reinvest: true
    min_score: 75
    whale_only: true
    allowed_structures: [Momentum, Breakout]
    trail_profile: tight
  sector_etf:
    capital: 8000
    max_positions: 2
    max_position_pct: 50
    etf_only: true
trail_profiles:
  tight:
    initial_stop_pct: 3
    t1_pct: 2
    t2_pct: 4
`

func writeProfileFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "buckets.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadFromFile(t *testing.T) {
	r, err := NewRegistry(writeProfileFile(t, sampleFile))
	require.NoError(t, err)

	profiles := r.Profiles()
	require.Len(t, profiles, 2)

	momentum := profiles[1]
	assert.Equal(t, "short_momentum", momentum.ID)
	assert.Equal(t, "Short-Term Momentum", momentum.Name)
	assert.Equal(t, 12000.0, momentum.Capital)
	assert.Equal(t, 48*time.Hour, momentum.MaxHold)
	assert.True(t, momentum.WhaleOnly)
	assert.Equal(t, []string{"Momentum", "Breakout"}, momentum.AllowedStructures)

	etf := profiles[0]
	assert.Equal(t, "sector_etf", etf.ID, "name defaults to the id")
	assert.Equal(t, "sector_etf", etf.Name)
	assert.True(t, etf.ETFOnly)
	assert.Empty(t, etf.AllowedStructures, "no filter means any structure")
}

func TestTrailConfigResolution(t *testing.T) {
	r, err := NewRegistry(writeProfileFile(t, sampleFile))
	require.NoError(t, err)

	tight := r.TrailConfig("tight")
	assert.Equal(t, 3.0, tight.InitialStopPct)
	assert.Equal(t, 2.0, tight.T1Pct)
	assert.Equal(t, 0.5, tight.T2TrailFrac, "unset fields keep defaults")

	fallback := r.TrailConfig("missing")
	assert.Equal(t, 5.0, fallback.InitialStopPct)
}

func TestSchemaRejectsBadFile(t *testing.T) {
	bad := `
buckets:
  broken:
    capital: -5
`
	_, err := NewRegistry(writeProfileFile(t, bad))
	require.Error(t, err)

	unknownKey := `
buckets:
  broken:
    capital: 1000
    not_a_field: true
`
	_, err = NewRegistry(writeProfileFile(t, unknownKey))
	require.Error(t, err)
}

func TestEmptyPathServesDefaults(t *testing.T) {
	r, err := NewRegistry("")
	require.NoError(t, err)

	profiles := r.Profiles()
	require.Len(t, profiles, len(DefaultProfiles))
	ids := make(map[string]bool)
	for _, p := range profiles {
		ids[p.ID] = true
		assert.Greater(t, p.Capital, 0.0, p.ID)
	}
	assert.True(t, ids["short_momentum"])
	assert.True(t, ids["pipeline_swing"])
	assert.True(t, ids["sector_etf"])
}
