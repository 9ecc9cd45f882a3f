package broker

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"tiller/internal/pkg/prices"
)

// Paper is an in-memory broker used for dry-run mode and tests. Market orders
// fill immediately at the last set price; limit and trailing-stop orders rest
// until MarkFilled or FillCrossedLimits is called. It never touches a venue.
type Paper struct {
	mu sync.Mutex

	equity       float64
	cash         float64
	dayPnL       float64
	equityPnLPct float64
	blocked      bool
	marketOpen   bool
	lastPrices   map[string]float64
	positions    map[string]*Position
	openOrders   map[string]Order
	filledNotes  []Order

	nowFn func() time.Time
}

func NewPaper(startingEquity float64) *Paper {
	return &Paper{
		equity:     startingEquity,
		cash:       startingEquity,
		marketOpen: true,
		lastPrices: make(map[string]float64),
		positions:  make(map[string]*Position),
		openOrders: make(map[string]Order),
		nowFn:      time.Now,
	}
}

func (p *Paper) Name() string { return "paper" }

// SetPrice updates the simulated last trade price and revalues any position.
func (p *Paper) SetPrice(ticker string, price float64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.lastPrices[ticker] = price
	if pos, ok := p.positions[ticker]; ok {
		pos.CurrentPrice = price
		pos.MarketValue = prices.Notional(pos.Qty, price)
		pos.UnrealizedPnL = prices.Notional(pos.Qty, price) - prices.Notional(pos.Qty, pos.AvgEntryPrice)
		if pos.AvgEntryPrice > 0 {
			pos.UnrealizedPnLPct = (price - pos.AvgEntryPrice) / pos.AvgEntryPrice * 100
		}
	}
}

func (p *Paper) SetDayPnL(pnl, pct float64) {
	p.mu.Lock()
	p.dayPnL = pnl
	p.equityPnLPct = pct
	p.mu.Unlock()
}

func (p *Paper) SetBlocked(blocked bool) {
	p.mu.Lock()
	p.blocked = blocked
	p.mu.Unlock()
}

func (p *Paper) SetMarketOpen(open bool) {
	p.mu.Lock()
	p.marketOpen = open
	p.mu.Unlock()
}

func (p *Paper) GetAccount(ctx context.Context) (AccountSnapshot, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return AccountSnapshot{
		Equity:         p.equity,
		Cash:           p.cash,
		BuyingPower:    p.cash,
		DayPnL:         p.dayPnL,
		DayPnLPct:      p.equityPnLPct,
		TradingBlocked: p.blocked,
	}, nil
}

func (p *Paper) GetPositions(ctx context.Context) ([]Position, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Position, 0, len(p.positions))
	for _, pos := range p.positions {
		out = append(out, *pos)
	}
	return out, nil
}

func (p *Paper) GetOpenOrders(ctx context.Context) ([]Order, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Order, 0, len(p.openOrders))
	for _, o := range p.openOrders {
		out = append(out, o)
	}
	return out, nil
}

func (p *Paper) SubmitMarketOrder(ctx context.Context, ticker string, qty int, side Side) (Order, error) {
	if qty <= 0 {
		return Order{}, Reject("market order", ticker, "quantity must be positive")
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	price := p.lastPrices[ticker]
	if price <= 0 {
		return Order{}, Reject("market order", ticker, "no price available")
	}
	order := Order{
		ID:          uuid.New().String(),
		Ticker:      ticker,
		Side:        side,
		Type:        OrderTypeMarket,
		Qty:         qty,
		SubmittedAt: p.nowFn(),
	}
	p.fill(order, price)
	p.filledNotes = append(p.filledNotes, order)
	return order, nil
}

func (p *Paper) SubmitLimitOrder(ctx context.Context, ticker string, qty int, side Side, limitPrice float64) (Order, error) {
	if qty <= 0 {
		return Order{}, Reject("limit order", ticker, "quantity must be positive")
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	order := Order{
		ID:          uuid.New().String(),
		Ticker:      ticker,
		Side:        side,
		Type:        OrderTypeLimit,
		Qty:         qty,
		LimitPrice:  limitPrice,
		SubmittedAt: p.nowFn(),
	}
	p.openOrders[order.ID] = order
	return order, nil
}

func (p *Paper) SubmitTrailingStop(ctx context.Context, ticker string, qty int, trailAmount float64) (Order, error) {
	if qty <= 0 {
		return Order{}, Reject("trailing stop", ticker, "quantity must be positive")
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	order := Order{
		ID:          uuid.New().String(),
		Ticker:      ticker,
		Side:        SideSell,
		Type:        OrderTypeTrailingStop,
		Qty:         qty,
		TrailAmount: trailAmount,
		SubmittedAt: p.nowFn(),
	}
	p.openOrders[order.ID] = order
	return order, nil
}

func (p *Paper) CancelOrder(ctx context.Context, orderID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.openOrders[orderID]; !ok {
		return Reject("cancel", "", "unknown order id "+orderID)
	}
	delete(p.openOrders, orderID)
	return nil
}

func (p *Paper) ClosePosition(ctx context.Context, ticker string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	pos, ok := p.positions[ticker]
	if !ok {
		return Reject("close", ticker, "no open position")
	}
	price := p.lastPrices[ticker]
	p.cash += prices.Notional(pos.Qty, price)
	delete(p.positions, ticker)
	return nil
}

func (p *Paper) GetLatestPrice(ctx context.Context, ticker string) (float64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	price, ok := p.lastPrices[ticker]
	if !ok || price <= 0 {
		return 0, Transient("latest price", errNoQuote{ticker})
	}
	return price, nil
}

func (p *Paper) IsMarketOpen(ctx context.Context) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.marketOpen, nil
}

// Fills returns every market order executed so far, oldest first.
func (p *Paper) Fills() []Order {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Order, len(p.filledNotes))
	copy(out, p.filledNotes)
	return out
}

// MarkFilled removes a resting order as if the venue filled it, applying the
// fill to the simulated position. Tests use this to drive tier-1/runner fills.
func (p *Paper) MarkFilled(orderID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	order, ok := p.openOrders[orderID]
	if !ok {
		return false
	}
	delete(p.openOrders, orderID)
	price := order.LimitPrice
	if price <= 0 {
		price = p.lastPrices[order.Ticker]
	}
	p.fill(order, price)
	return true
}

// fill applies an executed order to cash and positions. Caller holds p.mu.
func (p *Paper) fill(order Order, price float64) {
	notional := prices.Notional(order.Qty, price)
	switch order.Side {
	case SideBuy:
		p.cash -= notional
		pos, ok := p.positions[order.Ticker]
		if !ok {
			p.positions[order.Ticker] = &Position{
				Ticker:        order.Ticker,
				Qty:           order.Qty,
				Side:          "long",
				AvgEntryPrice: price,
				CurrentPrice:  price,
				MarketValue:   notional,
			}
			return
		}
		total := prices.Notional(pos.Qty, pos.AvgEntryPrice) + notional
		pos.Qty += order.Qty
		pos.AvgEntryPrice = total / float64(pos.Qty)
		pos.MarketValue = prices.Notional(pos.Qty, price)
	case SideSell:
		p.cash += notional
		if pos, ok := p.positions[order.Ticker]; ok {
			pos.Qty -= order.Qty
			if pos.Qty <= 0 {
				delete(p.positions, order.Ticker)
			} else {
				pos.MarketValue = prices.Notional(pos.Qty, price)
			}
		}
	}
}

type errNoQuote struct{ ticker string }

func (e errNoQuote) Error() string { return "no quote for " + e.ticker }
