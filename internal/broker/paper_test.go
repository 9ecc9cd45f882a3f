package broker

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPaperMarketOrderFillsImmediately(t *testing.T) {
	p := NewPaper(100000)
	p.SetPrice("AAPL", 100)

	order, err := p.SubmitMarketOrder(context.Background(), "AAPL", 50, SideBuy)
	require.NoError(t, err)
	assert.NotEmpty(t, order.ID)

	acct, err := p.GetAccount(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 95000.0, acct.Cash)

	positions, err := p.GetPositions(context.Background())
	require.NoError(t, err)
	require.Len(t, positions, 1)
	assert.Equal(t, 50, positions[0].Qty)
	assert.Equal(t, 100.0, positions[0].AvgEntryPrice)
}

func TestPaperMarketOrderWithoutQuoteRejected(t *testing.T) {
	p := NewPaper(100000)

	_, err := p.SubmitMarketOrder(context.Background(), "AAPL", 50, SideBuy)
	require.Error(t, err)
	assert.True(t, IsRejection(err))
	assert.False(t, IsTransient(err))
}

func TestPaperAveragesScaleIns(t *testing.T) {
	p := NewPaper(100000)
	p.SetPrice("AAPL", 100)
	_, err := p.SubmitMarketOrder(context.Background(), "AAPL", 100, SideBuy)
	require.NoError(t, err)

	p.SetPrice("AAPL", 110)
	_, err = p.SubmitMarketOrder(context.Background(), "AAPL", 100, SideBuy)
	require.NoError(t, err)

	positions, _ := p.GetPositions(context.Background())
	require.Len(t, positions, 1)
	assert.Equal(t, 200, positions[0].Qty)
	assert.Equal(t, 105.0, positions[0].AvgEntryPrice)
}

func TestPaperRestingOrdersAndCancel(t *testing.T) {
	p := NewPaper(100000)
	p.SetPrice("SPY", 590)

	limit, err := p.SubmitLimitOrder(context.Background(), "SPY", 100, SideSell, 596.25)
	require.NoError(t, err)
	trail, err := p.SubmitTrailingStop(context.Background(), "SPY", 45, 2.75)
	require.NoError(t, err)

	open, err := p.GetOpenOrders(context.Background())
	require.NoError(t, err)
	assert.Len(t, open, 2)

	require.NoError(t, p.CancelOrder(context.Background(), limit.ID))
	require.Error(t, p.CancelOrder(context.Background(), limit.ID))

	open, _ = p.GetOpenOrders(context.Background())
	require.Len(t, open, 1)
	assert.Equal(t, trail.ID, open[0].ID)
	assert.Equal(t, OrderTypeTrailingStop, open[0].Type)
}

func TestPaperMarkFilledAppliesFill(t *testing.T) {
	p := NewPaper(100000)
	p.SetPrice("SPY", 590.75)
	_, err := p.SubmitMarketOrder(context.Background(), "SPY", 181, SideBuy)
	require.NoError(t, err)

	limit, err := p.SubmitLimitOrder(context.Background(), "SPY", 136, SideSell, 596.25)
	require.NoError(t, err)
	require.True(t, p.MarkFilled(limit.ID))
	require.False(t, p.MarkFilled(limit.ID))

	positions, _ := p.GetPositions(context.Background())
	require.Len(t, positions, 1)
	assert.Equal(t, 45, positions[0].Qty)
}

func TestPaperClosePositionSettlesAtLastPrice(t *testing.T) {
	p := NewPaper(100000)
	p.SetPrice("AAPL", 100)
	_, err := p.SubmitMarketOrder(context.Background(), "AAPL", 100, SideBuy)
	require.NoError(t, err)

	p.SetPrice("AAPL", 110)
	require.NoError(t, p.ClosePosition(context.Background(), "AAPL"))

	acct, _ := p.GetAccount(context.Background())
	assert.Equal(t, 101000.0, acct.Cash)

	require.Error(t, p.ClosePosition(context.Background(), "AAPL"))
}

func TestPaperLatestPriceIsTransientWhenMissing(t *testing.T) {
	p := NewPaper(100000)

	_, err := p.GetLatestPrice(context.Background(), "TSLA")
	require.Error(t, err)
	assert.True(t, IsTransient(err))
}

func TestPaperRevaluesOnPriceUpdate(t *testing.T) {
	p := NewPaper(100000)
	p.SetPrice("AAPL", 100)
	_, err := p.SubmitMarketOrder(context.Background(), "AAPL", 50, SideBuy)
	require.NoError(t, err)

	p.SetPrice("AAPL", 95)
	positions, _ := p.GetPositions(context.Background())
	require.Len(t, positions, 1)
	assert.Equal(t, -250.0, positions[0].UnrealizedPnL)
	assert.InDelta(t, -5.0, positions[0].UnrealizedPnLPct, 1e-9)
}
