package engine

import (
	"context"
	"sync"

	"tiller/internal/broker"
)

// PatternExecutor adapts the broker to the breakdown machine's order port.
// It remembers which order ids belong to the pattern so the stale-order
// sweep leaves them alone, and answers fill polls by checking whether an
// order is still resting.
type PatternExecutor struct {
	brk broker.Broker

	mu   sync.Mutex
	mine map[string]bool
}

func NewPatternExecutor(brk broker.Broker) *PatternExecutor {
	return &PatternExecutor{brk: brk, mine: make(map[string]bool)}
}

func (x *PatternExecutor) owns(orderID string) bool {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.mine[orderID]
}

func (x *PatternExecutor) remember(orderID string) {
	if orderID == "" {
		return
	}
	x.mu.Lock()
	x.mine[orderID] = true
	x.mu.Unlock()
}

func (x *PatternExecutor) BuyMarket(ctx context.Context, ticker string, qty int) (string, error) {
	order, err := x.brk.SubmitMarketOrder(ctx, ticker, qty, broker.SideBuy)
	if err != nil {
		return "", err
	}
	x.remember(order.ID)
	return order.ID, nil
}

func (x *PatternExecutor) SellMarket(ctx context.Context, ticker string, qty int) (string, error) {
	order, err := x.brk.SubmitMarketOrder(ctx, ticker, qty, broker.SideSell)
	if err != nil {
		return "", err
	}
	x.remember(order.ID)
	return order.ID, nil
}

func (x *PatternExecutor) SellLimit(ctx context.Context, ticker string, qty int, limitPrice float64) (string, error) {
	order, err := x.brk.SubmitLimitOrder(ctx, ticker, qty, broker.SideSell, limitPrice)
	if err != nil {
		return "", err
	}
	x.remember(order.ID)
	return order.ID, nil
}

func (x *PatternExecutor) SellTrailing(ctx context.Context, ticker string, qty int, trailAmount float64) (string, error) {
	order, err := x.brk.SubmitTrailingStop(ctx, ticker, qty, trailAmount)
	if err != nil {
		return "", err
	}
	x.remember(order.ID)
	return order.ID, nil
}

func (x *PatternExecutor) Cancel(ctx context.Context, orderID string) error {
	err := x.brk.CancelOrder(ctx, orderID)
	x.mu.Lock()
	delete(x.mine, orderID)
	x.mu.Unlock()
	return err
}

// OrderFilled reports a fill when the order no longer appears among resting
// orders. Cancelled orders are removed from tracking before this is polled,
// so absence means filled.
func (x *PatternExecutor) OrderFilled(ctx context.Context, orderID string) (bool, error) {
	orders, err := x.brk.GetOpenOrders(ctx)
	if err != nil {
		return false, err
	}
	for _, o := range orders {
		if o.ID == orderID {
			return false, nil
		}
	}
	x.mu.Lock()
	delete(x.mine, orderID)
	x.mu.Unlock()
	return true, nil
}
