package risk

import "tiller/internal/scorer"

// Action tags what kind of order an approved candidate should become.
type Action string

const (
	// ActionEnter opens a fresh position.
	ActionEnter Action = "enter"
	// ActionScaleIn adds to an existing position in the same ticker.
	ActionScaleIn Action = "scale_in"
)

// Adjustment records one field the gate changed on its copy of the candidate.
type Adjustment struct {
	Field  string
	Old    float64
	New    float64
	Reason string
}

// CheckResult is the outcome of one gate evaluation. Candidate is the gate's
// own copy with any adjustments applied; the caller's candidate is untouched.
type CheckResult struct {
	Approved    bool
	Action      Action
	Candidate   scorer.Candidate
	Reasons     []string
	Adjustments []Adjustment

	// TripsBreaker is set when the daily-loss check failed. The execution
	// loop owns the breaker and decides what to do with this signal.
	TripsBreaker bool
}

func (r *CheckResult) reject(reason string) {
	r.Approved = false
	r.Reasons = append(r.Reasons, reason)
}

func (r *CheckResult) adjust(field string, old, val float64, reason string) {
	r.Adjustments = append(r.Adjustments, Adjustment{Field: field, Old: old, New: val, Reason: reason})
}
