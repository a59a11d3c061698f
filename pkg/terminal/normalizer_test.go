package terminal

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"perpdesk/pkg/exchange"
)

func marketSnap(mut func(*CardSnapshot)) CardSnapshot {
	snap := CardSnapshot{
		Exchange:  "hl-main",
		Symbol:    "BTC",
		Quantity:  "0.5",
		OrderType: OrderTypeMarket,
		State:     StateLongPending,
		Visible:   true,
	}
	if mut != nil {
		mut(&snap)
	}
	return snap
}

func btcMeta() *exchange.AssetMeta {
	return &exchange.AssetMeta{Symbol: "BTC", AssetID: 3, SzDecimals: 3, MarkPx: "50000"}
}

func TestNormalize_MarketOrder(t *testing.T) {
	n := NewNormalizer(0.01)

	t.Run("buy pads reference up", func(t *testing.T) {
		order, err := n.Normalize(marketSnap(nil), NormalizeInput{Meta: btcMeta(), RefPrice: "50000"})
		require.NoError(t, err)
		assert.Equal(t, 3, order.Asset)
		assert.Equal(t, "BTC", order.Symbol)
		assert.True(t, order.IsBuy)
		assert.Equal(t, "50500", order.LimitPx)
		assert.Equal(t, "0.5", order.Sz)
		require.NotNil(t, order.OrderType.Limit)
		assert.Equal(t, "Ioc", order.OrderType.Limit.TIF)
	})

	t.Run("sell pads reference down", func(t *testing.T) {
		snap := marketSnap(func(s *CardSnapshot) { s.State = StateShortPending })
		order, err := n.Normalize(snap, NormalizeInput{Meta: btcMeta(), RefPrice: "50000"})
		require.NoError(t, err)
		assert.False(t, order.IsBuy)
		assert.Equal(t, "49500", order.LimitPx)
	})

	t.Run("falls back to mark price", func(t *testing.T) {
		order, err := n.Normalize(marketSnap(nil), NormalizeInput{Meta: btcMeta()})
		require.NoError(t, err)
		assert.Equal(t, "50500", order.LimitPx)
	})

	t.Run("no reference at all", func(t *testing.T) {
		meta := btcMeta()
		meta.MarkPx = ""
		_, err := n.Normalize(marketSnap(nil), NormalizeInput{Meta: meta})
		assert.ErrorIs(t, err, exchange.ErrInvalidPrice)
	})

	t.Run("user price ignored for market", func(t *testing.T) {
		snap := marketSnap(func(s *CardSnapshot) { s.Price = "12345" })
		order, err := n.Normalize(snap, NormalizeInput{Meta: btcMeta(), RefPrice: "50000"})
		require.NoError(t, err)
		assert.Equal(t, "50500", order.LimitPx)
	})
}

func TestNormalize_LimitOrder(t *testing.T) {
	n := NewNormalizer(0.01)
	snap := marketSnap(func(s *CardSnapshot) {
		s.OrderType = OrderTypeLimit
		s.Price = "49000"
	})

	order, err := n.Normalize(snap, NormalizeInput{Meta: btcMeta()})
	require.NoError(t, err)
	assert.Equal(t, "49000", order.LimitPx)
	require.NotNil(t, order.OrderType.Limit)
	assert.Equal(t, "Gtc", order.OrderType.Limit.TIF)

	snap.Price = ""
	_, err = n.Normalize(snap, NormalizeInput{Meta: btcMeta()})
	assert.ErrorIs(t, err, exchange.ErrInvalidPrice)

	snap.Price = "-5"
	_, err = n.Normalize(snap, NormalizeInput{Meta: btcMeta()})
	assert.ErrorIs(t, err, exchange.ErrInvalidPrice)
}

func TestNormalize_PriceRounding(t *testing.T) {
	n := NewNormalizer(0.01)

	tests := []struct {
		name       string
		price      string
		szDecimals int
		want       string
	}{
		// 6-szDecimals decimal places, then 5 significant digits.
		{"five sig figs above one", "2000.123456789", 1, "2000.1"},
		{"decimal cap below sig figs", "0.0123456", 0, "0.012346"},
		{"integer result unconstrained", "123456.789", 2, "123460"},
		{"sub one price", "0.123456", 0, "0.12346"},
		{"exact integer passes through", "97000", 3, "97000"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			snap := marketSnap(func(s *CardSnapshot) {
				s.OrderType = OrderTypeLimit
				s.Price = tc.price
			})
			meta := btcMeta()
			meta.SzDecimals = tc.szDecimals
			order, err := n.Normalize(snap, NormalizeInput{Meta: meta})
			require.NoError(t, err)
			assert.Equal(t, tc.want, order.LimitPx)
		})
	}
}

func TestNormalize_MarketPriceFiveSigFigs(t *testing.T) {
	n := NewNormalizer(0.01)
	meta := &exchange.AssetMeta{Symbol: "ETH", AssetID: 1, SzDecimals: 4, MarkPx: "3889.65"}

	// 3889.65 * 1.01 = 3928.5465, capped to 2 decimals then 5 significant
	// digits.
	order, err := n.Normalize(marketSnap(func(s *CardSnapshot) { s.Symbol = "ETH" }), NormalizeInput{Meta: meta})
	require.NoError(t, err)
	assert.Equal(t, "3928.6", order.LimitPx)
}

func TestNormalize_Quantity(t *testing.T) {
	n := NewNormalizer(0.01)

	t.Run("rounds to size decimals", func(t *testing.T) {
		snap := marketSnap(func(s *CardSnapshot) { s.Quantity = "0.123456789" })
		order, err := n.Normalize(snap, NormalizeInput{Meta: btcMeta(), RefPrice: "50000"})
		require.NoError(t, err)
		assert.Equal(t, "0.123", order.Sz)
	})

	t.Run("rejects when rounding to zero", func(t *testing.T) {
		snap := marketSnap(func(s *CardSnapshot) { s.Quantity = "0.0001" })
		_, err := n.Normalize(snap, NormalizeInput{Meta: btcMeta(), RefPrice: "50000"})
		assert.ErrorIs(t, err, exchange.ErrInvalidQuantity)
	})

	t.Run("rejects garbage", func(t *testing.T) {
		for _, raw := range []string{"", "abc", "-1", "0"} {
			snap := marketSnap(func(s *CardSnapshot) { s.Quantity = raw })
			_, err := n.Normalize(snap, NormalizeInput{Meta: btcMeta(), RefPrice: "50000"})
			assert.ErrorIs(t, err, exchange.ErrInvalidQuantity, "quantity %q", raw)
		}
	})
}

func TestNormalize_Rejections(t *testing.T) {
	n := NewNormalizer(0.01)

	_, err := n.Normalize(marketSnap(nil), NormalizeInput{})
	assert.ErrorIs(t, err, exchange.ErrInvalidInput)

	snap := marketSnap(func(s *CardSnapshot) { s.State = StateOff })
	_, err = n.Normalize(snap, NormalizeInput{Meta: btcMeta()})
	assert.ErrorIs(t, err, exchange.ErrInvalidInput)

	snap = marketSnap(func(s *CardSnapshot) { s.OrderType = "stop" })
	_, err = n.Normalize(snap, NormalizeInput{Meta: btcMeta()})
	assert.ErrorIs(t, err, exchange.ErrInvalidInput)
}

func TestNormalize_BuilderAnnotation(t *testing.T) {
	n := NewNormalizer(0.01)
	pair := exchange.FeePair{Limit: 30, Market: 50}

	t.Run("market tier", func(t *testing.T) {
		order, err := n.Normalize(marketSnap(nil), NormalizeInput{
			Meta: btcMeta(), RefPrice: "50000",
			BuilderCode: "0xABCDEF", FeePair: pair, HasFeePair: true,
		})
		require.NoError(t, err)
		assert.Equal(t, "0xABCDEF", order.BuilderCode)
		assert.Equal(t, 50, order.BuilderFee)
	})

	t.Run("limit tier", func(t *testing.T) {
		snap := marketSnap(func(s *CardSnapshot) {
			s.OrderType = OrderTypeLimit
			s.Price = "49000"
		})
		order, err := n.Normalize(snap, NormalizeInput{
			Meta: btcMeta(), BuilderCode: "0xABCDEF", FeePair: pair, HasFeePair: true,
		})
		require.NoError(t, err)
		assert.Equal(t, 30, order.BuilderFee)
	})

	t.Run("zero tier drops annotation", func(t *testing.T) {
		order, err := n.Normalize(marketSnap(nil), NormalizeInput{
			Meta: btcMeta(), RefPrice: "50000",
			BuilderCode: "0xABCDEF", FeePair: exchange.FeePair{Limit: 30}, HasFeePair: true,
		})
		require.NoError(t, err)
		assert.Empty(t, order.BuilderCode)
		assert.Zero(t, order.BuilderFee)
	})

	t.Run("no code no annotation", func(t *testing.T) {
		order, err := n.Normalize(marketSnap(nil), NormalizeInput{
			Meta: btcMeta(), RefPrice: "50000", FeePair: pair, HasFeePair: true,
		})
		require.NoError(t, err)
		assert.Empty(t, order.BuilderCode)
	})
}

func TestNormalize_ClientOrderID(t *testing.T) {
	n := NewNormalizer(0.01)

	order, err := n.Normalize(marketSnap(nil), NormalizeInput{Meta: btcMeta(), RefPrice: "50000"})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(order.Cloid, "0x"))
	assert.Len(t, order.Cloid, 34)

	other, err := n.Normalize(marketSnap(nil), NormalizeInput{Meta: btcMeta(), RefPrice: "50000"})
	require.NoError(t, err)
	assert.NotEqual(t, order.Cloid, other.Cloid)
}
