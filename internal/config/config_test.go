package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadWithDefaults(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "config.yaml", `
broker:
  starting_equity: 50000
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "paper", cfg.Broker.Driver)
	assert.Equal(t, 50000.0, cfg.Broker.StartingEquity)
	assert.Equal(t, 3.0, cfg.Risk.DailyLossHaltPct)
	assert.Equal(t, 30*time.Second, cfg.Loop.Interval)
	assert.Equal(t, "America/New_York", cfg.Session.Timezone)
	assert.Equal(t, "info", cfg.Log.Level)
}

func TestIncludeMerge(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "base.yaml", `
risk:
  max_positions: 5
  min_notional: 1000
log:
  level: debug
`)
	main := writeFile(t, dir, "config.yaml", `
include:
  - base.yaml
risk:
  max_positions: 3
`)
	cfg, err := Load(main)
	require.NoError(t, err)

	assert.Equal(t, 3, cfg.Risk.MaxPositions, "including file overrides the included one")
	assert.Equal(t, 1000.0, cfg.Risk.MinNotional, "untouched keys survive the merge")
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestIncludeCycle(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.yaml", "include: [b.yaml]\n")
	pathA := filepath.Join(dir, "a.yaml")
	writeFile(t, dir, "b.yaml", "include: [a.yaml]\n")

	_, err := Load(pathA)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cycle")
}

func TestDurationParsing(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "config.yaml", `
loop:
  interval: 10s
  closed_interval: 2m
pattern:
  enabled: true
  ticker: SPY
  reference_low: 590
  acceptance_bar: 90s
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 10*time.Second, cfg.Loop.Interval)
	assert.Equal(t, 2*time.Minute, cfg.Loop.ClosedInterval)
	assert.Equal(t, 90*time.Second, cfg.Pattern.AcceptanceBar)
}

func TestValidation(t *testing.T) {
	dir := t.TempDir()

	badDriver := writeFile(t, dir, "driver.yaml", "broker:\n  driver: robinhood\n")
	_, err := Load(badDriver)
	require.Error(t, err)

	patternNoTicker := writeFile(t, dir, "pattern.yaml", "pattern:\n  enabled: true\n")
	_, err = Load(patternNoTicker)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ticker")
}
