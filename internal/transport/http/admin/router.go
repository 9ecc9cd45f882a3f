// Package adminhttp exposes the operator API: read-only views of the
// account, buckets, positions and audit trail, plus the one mutating
// endpoint that clears the circuit-breaker halt.
package adminhttp

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"tiller/internal/allocator"
	"tiller/internal/audit"
	"tiller/internal/engine"
	"tiller/internal/logger"
	"tiller/internal/pkg/circuit"
	"tiller/internal/scorer"
	"tiller/internal/strategy/trail"
)

type Router struct {
	Engine   *engine.Engine
	Alloc    *allocator.Allocator
	Book     *trail.Book
	Breaker  *circuit.Breaker
	Recorder audit.Recorder
	Scorer   scorer.Scorer
}

// Register mounts the /api routes on the given group.
func (r *Router) Register(group *gin.RouterGroup) {
	if group == nil {
		return
	}
	group.GET("/status", r.handleStatus)
	group.GET("/buckets", r.handleBuckets)
	group.GET("/positions", r.handlePositions)
	group.GET("/watchlist", r.handleWatchlist)
	group.GET("/audit", r.handleAudit)
	group.POST("/breaker/reset", r.handleBreakerReset)
}

func (r *Router) handleStatus(c *gin.Context) {
	acct := r.Engine.Account()
	reason, at := r.Breaker.Reason()
	resp := gin.H{
		"account": gin.H{
			"equity":       acct.Equity,
			"cash":         acct.Cash,
			"buying_power": acct.BuyingPower,
			"day_pnl":      acct.DayPnL,
			"day_pnl_pct":  acct.DayPnLPct,
		},
		"halted":        r.Breaker.Tripped(),
		"halt_reason":   reason,
		"health":        r.Engine.Health(),
		"last_cycle_at": r.Engine.LastCycleAt(),
	}
	if !at.IsZero() {
		resp["halted_at"] = at
	}
	if status, ok := r.Engine.PatternStatus(); ok {
		resp["pattern"] = status
	}
	c.JSON(http.StatusOK, resp)
}

func (r *Router) handleBuckets(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"buckets": r.Alloc.Report()})
}

func (r *Router) handlePositions(c *gin.Context) {
	type row struct {
		allocator.TrackedPosition
		Phase string  `json:"phase,omitempty"`
		Stop  float64 `json:"stop,omitempty"`
	}
	positions := r.Alloc.OpenPositions()
	out := make([]row, 0, len(positions))
	for _, pos := range positions {
		item := row{TrackedPosition: pos}
		if rec, ok := r.Book.Get(pos.Ticker); ok {
			item.Phase = string(rec.Phase)
			item.Stop = rec.Stop
		}
		out = append(out, item)
	}
	c.JSON(http.StatusOK, gin.H{"positions": out})
}

func (r *Router) handleWatchlist(c *gin.Context) {
	candidates, err := r.Scorer.RankedCandidates(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"watchlist": candidates})
}

func (r *Router) handleAudit(c *gin.Context) {
	limit := 100
	if raw := c.Query("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}
	events, err := r.Recorder.Recent(limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"events": events})
}

func (r *Router) handleBreakerReset(c *gin.Context) {
	var body struct {
		Operator string `json:"operator"`
	}
	if err := c.ShouldBindJSON(&body); err != nil || body.Operator == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "operator name required"})
		return
	}
	if !r.Breaker.Tripped() {
		c.JSON(http.StatusConflict, gin.H{"error": "breaker is not tripped"})
		return
	}
	r.Engine.ResumeTrading(body.Operator)
	logger.Warnf("admin: breaker reset by %s", body.Operator)
	c.JSON(http.StatusOK, gin.H{"halted": false, "reset_at": time.Now().UTC()})
}
