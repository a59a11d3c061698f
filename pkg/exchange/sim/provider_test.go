package sim

import (
	"context"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"perpdesk/pkg/exchange"
)

func parseDecimal(t *testing.T, s string) float64 {
	t.Helper()
	f, err := strconv.ParseFloat(s, 64)
	require.NoError(t, err, "string should parse as float")
	return f
}

func TestSimProvider_GetAssetIndex(t *testing.T) {
	p := New()
	ctx := context.Background()

	t.Run("new_coin", func(t *testing.T) {
		index, err := p.GetAssetIndex(ctx, "BTC")
		assert.NoError(t, err)
		assert.Equal(t, 1, index)
	})

	t.Run("existing_coin", func(t *testing.T) {
		index, err := p.GetAssetIndex(ctx, "BTC")
		assert.NoError(t, err)
		assert.Equal(t, 1, index)
	})

	t.Run("different_coin", func(t *testing.T) {
		index, err := p.GetAssetIndex(ctx, "ETH")
		assert.NoError(t, err)
		assert.Equal(t, 2, index)
	})

	t.Run("canonicalization", func(t *testing.T) {
		index1, err := p.GetAssetIndex(ctx, "btc")
		assert.NoError(t, err)
		index2, err := p.GetAssetIndex(ctx, "BTC")
		assert.NoError(t, err)
		assert.Equal(t, index1, index2)
	})
}

func TestSimProvider_BasicFlow(t *testing.T) {
	p := New()
	ctx := context.Background()

	asset, err := p.GetAssetIndex(ctx, "BTC")
	require.NoError(t, err)

	require.NoError(t, p.UpdateLeverage(ctx, asset, true, 10))

	_, err = p.PlaceOrder(ctx, exchange.Order{Asset: asset, IsBuy: true, LimitPx: "50000", Sz: "0.01"})
	require.NoError(t, err)

	pos, err := p.GetPositions(ctx)
	require.NoError(t, err)
	require.Len(t, pos, 1)
	assert.Equal(t, "0.01", pos[0].Szi)
	assert.Equal(t, "50000", pos[0].EntryPx)

	resp, err := p.ClosePosition(ctx, "BTC")
	require.NoError(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, "ok", resp.Status)

	pos, err = p.GetPositions(ctx)
	require.NoError(t, err)
	assert.Len(t, pos, 0)

	// Nothing left to close.
	resp, err = p.ClosePosition(ctx, "BTC")
	require.NoError(t, err)
	assert.Nil(t, resp)
}

func TestSimProvider_PlaceOrderBySymbol(t *testing.T) {
	p := New()
	ctx := context.Background()

	_, err := p.PlaceOrder(ctx, exchange.Order{Symbol: "eth", IsBuy: true, LimitPx: "3000", Sz: "1"})
	require.NoError(t, err)

	pos, err := p.GetPositions(ctx)
	require.NoError(t, err)
	require.Len(t, pos, 1)
	assert.Equal(t, "ETH", pos[0].Coin)
}

func TestSimProvider_ReduceOnlyClamp(t *testing.T) {
	p := New()
	ctx := context.Background()

	asset, err := p.GetAssetIndex(ctx, "BTC")
	require.NoError(t, err)

	_, err = p.PlaceOrder(ctx, exchange.Order{Asset: asset, IsBuy: true, LimitPx: "50000", Sz: "1"})
	require.NoError(t, err)

	resp, err := p.PlaceOrder(ctx, exchange.Order{Asset: asset, IsBuy: false, LimitPx: "50000", Sz: "2", ReduceOnly: true})
	require.NoError(t, err)
	require.NotNil(t, resp.Response.Data.Statuses[0].Filled)
	assert.Equal(t, "1", resp.Response.Data.Statuses[0].Filled.TotalSz)

	positions, err := p.GetPositions(ctx)
	require.NoError(t, err)
	assert.Len(t, positions, 0, "position should close without flipping direction")
}

func TestSimProvider_RealizedPnlFlowsToCollateral(t *testing.T) {
	p := New()
	ctx := context.Background()

	asset, err := p.GetAssetIndex(ctx, "BTC")
	require.NoError(t, err)

	_, err = p.PlaceOrder(ctx, exchange.Order{Asset: asset, IsBuy: true, LimitPx: "50000", Sz: "1"})
	require.NoError(t, err)
	_, err = p.PlaceOrder(ctx, exchange.Order{Asset: asset, IsBuy: false, LimitPx: "51000", Sz: "1"})
	require.NoError(t, err)

	collateral, err := p.GetCollateral(ctx)
	require.NoError(t, err)
	assert.InDelta(t, defaultInitialEquity+1000, parseDecimal(t, collateral), 1e-6)
}

func TestSimProvider_TransferCollateral(t *testing.T) {
	p := New()
	ctx := context.Background()

	require.NoError(t, p.TransferCollateral(ctx, false, "250"))
	collateral, err := p.GetCollateral(ctx)
	require.NoError(t, err)
	assert.InDelta(t, defaultInitialEquity-250, parseDecimal(t, collateral), 1e-6)

	require.NoError(t, p.TransferCollateral(ctx, true, "250"))
	collateral, err = p.GetCollateral(ctx)
	require.NoError(t, err)
	assert.InDelta(t, defaultInitialEquity, parseDecimal(t, collateral), 1e-6)

	err = p.TransferCollateral(ctx, true, "1")
	assert.ErrorIs(t, err, exchange.ErrTransfer, "spot side is empty again")

	for _, amount := range []string{"", "0", "-5", "abc"} {
		err := p.TransferCollateral(ctx, false, amount)
		assert.ErrorIs(t, err, exchange.ErrTransfer, "amount %q", amount)
	}
}

func TestSimProvider_MarkPrice(t *testing.T) {
	p := New()
	ctx := context.Background()

	px, err := p.GetMarkPrice(ctx, "ETH")
	require.NoError(t, err)
	assert.Equal(t, "100", px, "fallback before any mark is set")

	require.NoError(t, p.SetMarkPrice(ctx, "ETH", 3889.65))
	px, err = p.GetMarkPrice(ctx, "eth")
	require.NoError(t, err)
	assert.Equal(t, "3889.65", px)

	assert.Error(t, p.SetMarkPrice(ctx, "ETH", 0))
}

func TestSimProvider_GetAssetMeta(t *testing.T) {
	p := New()
	ctx := context.Background()

	require.NoError(t, p.SetMarkPrice(ctx, "BTC", 50000))
	meta, err := p.GetAssetMeta(ctx, "btc")
	require.NoError(t, err)
	assert.Equal(t, "BTC", meta.Symbol)
	assert.Equal(t, 8, meta.SzDecimals)
	assert.Equal(t, "50000", meta.MarkPx)
	assert.NotZero(t, meta.AssetID)
}

func TestSimProvider_AccountState(t *testing.T) {
	p := New()
	ctx := context.Background()

	asset, err := p.GetAssetIndex(ctx, "BTC")
	require.NoError(t, err)
	require.NoError(t, p.UpdateLeverage(ctx, asset, true, 10))

	_, err = p.PlaceOrder(ctx, exchange.Order{Asset: asset, IsBuy: true, LimitPx: "50000", Sz: "1"})
	require.NoError(t, err)
	require.NoError(t, p.SetMarkPrice(ctx, "BTC", 51000))

	state, err := p.GetAccountState(ctx)
	require.NoError(t, err)
	assert.InDelta(t, defaultInitialEquity+1000, parseDecimal(t, state.MarginSummary.AccountValue), 1e-6)
	assert.InDelta(t, 51000.0, parseDecimal(t, state.MarginSummary.TotalNtlPos), 1e-6)
	assert.InDelta(t, 5100.0, parseDecimal(t, state.MarginSummary.TotalMarginUsed), 1e-6)
	require.Len(t, state.AssetPositions, 1)
	assert.InDelta(t, 1000.0, parseDecimal(t, state.AssetPositions[0].UnrealizedPnl), 1e-6)
}
