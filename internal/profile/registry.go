// Package profile loads bucket profiles and trailing-phase geometry from a
// YAML file, validates them against a schema, and hot-reloads on change so
// operators can retune buckets without a restart.
package profile

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"

	"tiller/internal/allocator"
	"tiller/internal/logger"
	"tiller/internal/strategy/trail"
)

// FileConfig maps the profile file.
type FileConfig struct {
	Buckets map[string]BucketSpec `mapstructure:"buckets" yaml:"buckets"`
	Trails  map[string]TrailSpec  `mapstructure:"trail_profiles" yaml:"trail_profiles"`
}

// BucketSpec is one bucket entry as written in the file.
type BucketSpec struct {
	Name              string   `mapstructure:"name" yaml:"name"`
	Capital           float64  `mapstructure:"capital" yaml:"capital"`
	MaxPositions      int      `mapstructure:"max_positions" yaml:"max_positions"`
	MaxPositionPct    float64  `mapstructure:"max_position_pct" yaml:"max_position_pct"`
	MaxRiskPct        float64  `mapstructure:"max_risk_pct" yaml:"max_risk_pct"`
	MaxHold           string   `mapstructure:"max_hold" yaml:"max_hold"`
	Reinvest          bool     `mapstructure:"reinvest" yaml:"reinvest"`
	MinScore          float64  `mapstructure:"min_score" yaml:"min_score"`
	WhaleOnly         bool     `mapstructure:"whale_only" yaml:"whale_only"`
	ETFOnly           bool     `mapstructure:"etf_only" yaml:"etf_only"`
	AllowedStructures []string `mapstructure:"allowed_structures" yaml:"allowed_structures"`
	TrailProfile      string   `mapstructure:"trail_profile" yaml:"trail_profile"`
}

// TrailSpec mirrors trail.PhaseConfig in file form.
type TrailSpec struct {
	InitialStopPct   float64 `mapstructure:"initial_stop_pct" yaml:"initial_stop_pct"`
	T1Pct            float64 `mapstructure:"t1_pct" yaml:"t1_pct"`
	T2Pct            float64 `mapstructure:"t2_pct" yaml:"t2_pct"`
	BreakevenBufPct  float64 `mapstructure:"breakeven_buf_pct" yaml:"breakeven_buf_pct"`
	T2TrailFrac      float64 `mapstructure:"t2_trail_frac" yaml:"t2_trail_frac"`
	RunawayTrailFrac float64 `mapstructure:"runaway_trail_frac" yaml:"runaway_trail_frac"`
	RunawayMult      float64 `mapstructure:"runaway_mult" yaml:"runaway_mult"`
}

// Snapshot is one loaded generation of the file.
type Snapshot struct {
	Version  int64
	LoadedAt time.Time
	Profiles map[string]allocator.Profile
	Trails   map[string]trail.PhaseConfig
}

// ChangeListener fires after a successful hot reload.
type ChangeListener func(Snapshot)

type Registry struct {
	path string
	v    *viper.Viper

	mu        sync.RWMutex
	snapshot  Snapshot
	listeners []ChangeListener
}

// NewRegistry reads the profile file and watches it for changes. An empty
// path yields a registry serving the built-in defaults with no watcher.
func NewRegistry(path string) (*Registry, error) {
	r := &Registry{path: strings.TrimSpace(path)}
	if r.path == "" {
		r.snapshot = defaultSnapshot()
		logger.Infof("profile registry using %d built-in bucket profiles", len(r.snapshot.Profiles))
		return r, nil
	}

	v := viper.New()
	v.SetConfigFile(r.path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("profile: read %s: %w", r.path, err)
	}
	r.v = v
	if err := r.reload(); err != nil {
		return nil, err
	}
	v.OnConfigChange(func(fsnotify.Event) {
		if err := r.reload(); err != nil {
			logger.Errorf("profile reload failed, keeping previous generation: %v", err)
			return
		}
		r.notifyListeners()
	})
	v.WatchConfig()
	return r, nil
}

func (r *Registry) reload() error {
	if err := validateSettings(r.v.AllSettings()); err != nil {
		return fmt.Errorf("profile: validate %s: %w", r.path, err)
	}
	var cfg FileConfig
	if err := r.v.Unmarshal(&cfg); err != nil {
		return fmt.Errorf("profile: parse %s: %w", r.path, err)
	}

	profiles := make(map[string]allocator.Profile, len(cfg.Buckets))
	for id, spec := range cfg.Buckets {
		p, err := spec.toProfile(id)
		if err != nil {
			return err
		}
		profiles[id] = p
	}
	trails := make(map[string]trail.PhaseConfig, len(cfg.Trails))
	for name, spec := range cfg.Trails {
		trails[name] = spec.toPhaseConfig()
	}
	if _, ok := trails["default"]; !ok {
		trails["default"] = trail.DefaultPhaseConfig()
	}

	r.mu.Lock()
	r.snapshot = Snapshot{
		Version:  r.snapshot.Version + 1,
		LoadedAt: time.Now(),
		Profiles: profiles,
		Trails:   trails,
	}
	r.mu.Unlock()
	logger.Infof("profile registry loaded %d buckets, %d trail profiles", len(profiles), len(trails))
	return nil
}

// Snapshot returns the current generation.
func (r *Registry) Snapshot() Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return cloneSnapshot(r.snapshot)
}

// Profiles returns the bucket profiles ordered by id.
func (r *Registry) Profiles() []allocator.Profile {
	snap := r.Snapshot()
	out := make([]allocator.Profile, 0, len(snap.Profiles))
	for _, p := range snap.Profiles {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// TrailConfig resolves a named trail profile, falling back to the default.
func (r *Registry) TrailConfig(name string) trail.PhaseConfig {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if cfg, ok := r.snapshot.Trails[strings.TrimSpace(name)]; ok {
		return cfg
	}
	if cfg, ok := r.snapshot.Trails["default"]; ok {
		return cfg
	}
	return trail.DefaultPhaseConfig()
}

// OnChange registers a listener for hot reloads.
func (r *Registry) OnChange(fn ChangeListener) {
	r.mu.Lock()
	r.listeners = append(r.listeners, fn)
	r.mu.Unlock()
}

func (r *Registry) notifyListeners() {
	r.mu.RLock()
	snap := cloneSnapshot(r.snapshot)
	listeners := append([]ChangeListener(nil), r.listeners...)
	r.mu.RUnlock()
	for _, fn := range listeners {
		if fn == nil {
			continue
		}
		go func(cb ChangeListener) {
			defer func() {
				if rec := recover(); rec != nil {
					logger.Errorf("profile listener panic: %v", rec)
				}
			}()
			cb(snap)
		}(fn)
	}
}

func (s BucketSpec) toProfile(id string) (allocator.Profile, error) {
	p := allocator.Profile{
		ID:             id,
		Name:           strings.TrimSpace(s.Name),
		Capital:        s.Capital,
		MaxPositions:   s.MaxPositions,
		MaxPositionPct: s.MaxPositionPct,
		MaxRiskPct:     s.MaxRiskPct,
		Reinvest:       s.Reinvest,
		MinScore:       s.MinScore,
		WhaleOnly:      s.WhaleOnly,
		ETFOnly:        s.ETFOnly,
		TrailProfile:   s.TrailProfile,
	}
	if len(s.AllowedStructures) > 0 {
		p.AllowedStructures = append([]string(nil), s.AllowedStructures...)
	}
	if p.Name == "" {
		p.Name = id
	}
	if s.MaxHold != "" {
		d, err := time.ParseDuration(s.MaxHold)
		if err != nil {
			return allocator.Profile{}, fmt.Errorf("profile: bucket %s max_hold %q: %w", id, s.MaxHold, err)
		}
		p.MaxHold = d
	}
	return p, nil
}

func (s TrailSpec) toPhaseConfig() trail.PhaseConfig {
	cfg := trail.DefaultPhaseConfig()
	if s.InitialStopPct > 0 {
		cfg.InitialStopPct = s.InitialStopPct
	}
	if s.T1Pct > 0 {
		cfg.T1Pct = s.T1Pct
	}
	if s.T2Pct > 0 {
		cfg.T2Pct = s.T2Pct
	}
	if s.BreakevenBufPct > 0 {
		cfg.BreakevenBufPct = s.BreakevenBufPct
	}
	if s.T2TrailFrac > 0 {
		cfg.T2TrailFrac = s.T2TrailFrac
	}
	if s.RunawayTrailFrac > 0 {
		cfg.RunawayTrailFrac = s.RunawayTrailFrac
	}
	if s.RunawayMult > 0 {
		cfg.RunawayMult = s.RunawayMult
	}
	return cfg
}

func cloneSnapshot(src Snapshot) Snapshot {
	dst := Snapshot{
		Version:  src.Version,
		LoadedAt: src.LoadedAt,
		Profiles: make(map[string]allocator.Profile, len(src.Profiles)),
		Trails:   make(map[string]trail.PhaseConfig, len(src.Trails)),
	}
	for id, p := range src.Profiles {
		dst.Profiles[id] = p
	}
	for name, t := range src.Trails {
		dst.Trails[name] = t
	}
	return dst
}

func defaultSnapshot() Snapshot {
	profiles := make(map[string]allocator.Profile, len(DefaultProfiles))
	for _, p := range DefaultProfiles {
		profiles[p.ID] = p
	}
	return Snapshot{
		Version:  1,
		LoadedAt: time.Now(),
		Profiles: profiles,
		Trails:   map[string]trail.PhaseConfig{"default": trail.DefaultPhaseConfig()},
	}
}
