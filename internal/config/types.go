package config

import "time"

// Config is the full runtime configuration, assembled from one or more YAML
// files merged in include order.
type Config struct {
	Include []string `yaml:"include"`

	Log      LogConfig         `yaml:"log"`
	Broker   BrokerConfig      `yaml:"broker"`
	Scorer   ScorerConfig      `yaml:"scorer"`
	Risk     RiskConfig        `yaml:"risk"`
	Session  SessionConfig     `yaml:"session"`
	Loop     LoopConfig        `yaml:"loop"`
	Buckets  BucketsConfig     `yaml:"buckets"`
	Pattern  PatternConfig     `yaml:"pattern"`
	Store    StoreConfig       `yaml:"store"`
	Admin    AdminConfig       `yaml:"admin"`
	Telegram TelegramConfig    `yaml:"telegram"`
	Sectors  map[string]string `yaml:"sectors"`
}

type LogConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

type BrokerConfig struct {
	// Driver selects the brokerage adapter; "paper" runs the in-memory
	// simulator.
	Driver         string  `yaml:"driver"`
	StartingEquity float64 `yaml:"starting_equity"`
}

type ScorerConfig struct {
	// FeedPath points at the JSON file the external scanner writes.
	FeedPath string  `yaml:"feed_path"`
	MinScore float64 `yaml:"min_score"`
	MaxRows  int     `yaml:"max_rows"`
}

type RiskConfig struct {
	DailyLossHaltPct     float64 `yaml:"daily_loss_halt_pct"`
	MaxPositions         int     `yaml:"max_positions"`
	MaxPositionPctEquity float64 `yaml:"max_position_pct_equity"`
	MaxPositionDollars   float64 `yaml:"max_position_dollars"`
	ScaleInThresholdPct  float64 `yaml:"scale_in_threshold_pct"`
	DefaultStopPct       float64 `yaml:"default_stop_pct"`
	BuyingPowerFrac      float64 `yaml:"buying_power_frac"`
	MinNotional          float64 `yaml:"min_notional"`
	MaxSectorPct         float64 `yaml:"max_sector_pct"`
}

type SessionConfig struct {
	Timezone         string `yaml:"timezone"`
	NoEntryOpenMins  int    `yaml:"no_entry_open_mins"`
	NoEntryCloseMins int    `yaml:"no_entry_close_mins"`
	PrimaryStartHour int    `yaml:"primary_start_hour"`
	ChopStartHour    int    `yaml:"chop_start_hour"`
	ChopEndHour      int    `yaml:"chop_end_hour"`
	EntryCutoffHour  int    `yaml:"entry_cutoff_hour"`
	ForceExitHour    int    `yaml:"force_exit_hour"`
	ForceExitMinute  int    `yaml:"force_exit_minute"`
}

type LoopConfig struct {
	Interval       time.Duration `yaml:"interval"`
	ClosedInterval time.Duration `yaml:"closed_interval"`
	StaleOrderAge  time.Duration `yaml:"stale_order_age"`
	MaxBackoff     time.Duration `yaml:"max_backoff"`
	// DailyResetCron fires the session rollover, exchange-local time.
	DailyResetCron string `yaml:"daily_reset_cron"`
}

type BucketsConfig struct {
	// ProfileFile overrides the built-in bucket lineup; empty uses defaults.
	ProfileFile string `yaml:"profile_file"`
}

type PatternConfig struct {
	Enabled         bool    `yaml:"enabled"`
	Ticker          string  `yaml:"ticker"`
	ReferenceLow    float64 `yaml:"reference_low"`
	NearLevelBuffer float64 `yaml:"near_level_buffer"`
	MinFlush        float64 `yaml:"min_flush"`
	DeepThreshold   float64 `yaml:"deep_threshold"`
	MaxFlush        float64 `yaml:"max_flush"`
	StopBuffer      float64 `yaml:"stop_buffer"`
	RipThreshold    float64 `yaml:"rip_threshold"`
	MinRewardRisk   float64 `yaml:"min_reward_risk"`
	Tier1ExitPct    float64 `yaml:"tier1_exit_pct"`
	Tier1TargetMult float64 `yaml:"tier1_target_mult"`
	RiskPerTrade    float64 `yaml:"risk_per_trade"`

	AcceptanceShallow int           `yaml:"acceptance_shallow"`
	AcceptanceDeep    int           `yaml:"acceptance_deep"`
	AcceptanceBar     time.Duration `yaml:"acceptance_bar"`
	MaxTradesPerDay   int           `yaml:"max_trades_per_day"`
}

type StoreConfig struct {
	StatePath string `yaml:"state_path"`
	AuditPath string `yaml:"audit_path"`
}

type AdminConfig struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen"`
}

type TelegramConfig struct {
	BotToken string `yaml:"bot_token"`
	ChatID   string `yaml:"chat_id"`
}
