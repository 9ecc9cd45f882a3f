// Package broker defines the capability surface the trading core consumes
// from a brokerage. The core never speaks a venue protocol directly; it talks
// to this interface and treats the broker as the source of truth for account,
// position and order state.
package broker

import (
	"context"
	"time"
)

type Side string

const (
	SideBuy  Side = "buy"
	SideSell Side = "sell"
)

type OrderType string

const (
	OrderTypeMarket       OrderType = "market"
	OrderTypeLimit        OrderType = "limit"
	OrderTypeTrailingStop OrderType = "trailing_stop"
)

// AccountSnapshot is a point-in-time view of the account, refreshed once per
// cycle by the execution loop and read-only everywhere else.
type AccountSnapshot struct {
	Equity         float64
	Cash           float64
	BuyingPower    float64
	DayPnL         float64
	DayPnLPct      float64
	TradingBlocked bool
}

// Position is the broker-reported view of one open holding.
type Position struct {
	Ticker           string
	Qty              int
	Side             Side
	AvgEntryPrice    float64
	CurrentPrice     float64
	MarketValue      float64
	UnrealizedPnL    float64
	UnrealizedPnLPct float64
}

type Order struct {
	ID          string
	Ticker      string
	Side        Side
	Type        OrderType
	Qty         int
	LimitPrice  float64
	TrailAmount float64
	SubmittedAt time.Time
}

type Broker interface {
	Name() string

	GetAccount(ctx context.Context) (AccountSnapshot, error)

	GetPositions(ctx context.Context) ([]Position, error)

	GetOpenOrders(ctx context.Context) ([]Order, error)

	SubmitMarketOrder(ctx context.Context, ticker string, qty int, side Side) (Order, error)

	SubmitLimitOrder(ctx context.Context, ticker string, qty int, side Side, limitPrice float64) (Order, error)

	// SubmitTrailingStop submits a sell order that trails the high-water mark
	// by trailAmount dollars.
	SubmitTrailingStop(ctx context.Context, ticker string, qty int, trailAmount float64) (Order, error)

	CancelOrder(ctx context.Context, orderID string) error

	ClosePosition(ctx context.Context, ticker string) error

	GetLatestPrice(ctx context.Context, ticker string) (float64, error)

	IsMarketOpen(ctx context.Context) (bool, error)
}
