package breakdown

// State is the pattern machine's current stage.
type State string

const (
	StateIdle           State = "IDLE"
	StateNearLevel      State = "NEAR_LEVEL"
	StateFlushDetected  State = "FLUSH_DETECTED"
	StateAcceptanceWait State = "ACCEPTANCE_WAIT"
	StateEntered        State = "ENTERED"
	StateTier1Hit       State = "TIER1_HIT"
	StateExited         State = "EXITED"
)

// Status is a read-only snapshot for the admin API and logs.
type Status struct {
	Ticker         string  `json:"ticker"`
	State          State   `json:"state"`
	ReferenceLow   float64 `json:"reference_low"`
	FlushLow       float64 `json:"flush_low,omitempty"`
	AcceptCount    int     `json:"accept_count"`
	AcceptRequired int     `json:"accept_required"`
	EntryPrice     float64 `json:"entry_price,omitempty"`
	StopPrice      float64 `json:"stop_price,omitempty"`
	TargetPrice    float64 `json:"target_price,omitempty"`
	Qty            int     `json:"qty,omitempty"`
	RunnerQty      int     `json:"runner_qty,omitempty"`
	TradesToday    int     `json:"trades_today"`
	FatalToday     bool    `json:"fatal_today"`
}
