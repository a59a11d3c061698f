package terminal

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"perpdesk/pkg/exchange"
)

func TestNewCard_SeedsFromDefaults(t *testing.T) {
	card := NewCard("hl-main", exchange.CardDefaults{
		Symbol:    " BTC ",
		Quantity:  "0.5",
		Price:     "50000",
		OrderType: "limit",
		Side:      "long",
		Group:     3,
	})

	snap := card.Snapshot()
	assert.Equal(t, "hl-main", snap.Exchange)
	assert.Equal(t, "BTC", snap.Symbol)
	assert.Equal(t, "0.5", snap.Quantity)
	assert.Equal(t, "50000", snap.Price)
	assert.Equal(t, OrderTypeLimit, snap.OrderType)
	assert.Equal(t, StateLongPending, snap.State)
	assert.Equal(t, 3, snap.Group)
	assert.True(t, snap.Visible)
}

func TestNewCard_EmptyDefaults(t *testing.T) {
	card := NewCard("paper", exchange.CardDefaults{})

	snap := card.Snapshot()
	assert.Equal(t, OrderTypeMarket, snap.OrderType)
	assert.Equal(t, StateOff, snap.State)
	assert.Equal(t, 0, snap.Group)
	assert.False(t, snap.Active())
}

func TestCard_MutatorsValidate(t *testing.T) {
	card := NewCard("hl-main", exchange.CardDefaults{Symbol: "BTC", Quantity: "1"})

	t.Run("symbol", func(t *testing.T) {
		require.NoError(t, card.SetSymbol("flx:DOGE"))
		assert.ErrorIs(t, card.SetSymbol("  "), exchange.ErrInvalidInput)
		assert.Equal(t, "flx:DOGE", card.Snapshot().Symbol)
	})

	t.Run("quantity", func(t *testing.T) {
		require.NoError(t, card.SetQuantity("2.25"))
		assert.ErrorIs(t, card.SetQuantity("0"), exchange.ErrInvalidInput)
		assert.ErrorIs(t, card.SetQuantity("-1"), exchange.ErrInvalidInput)
		assert.ErrorIs(t, card.SetQuantity("abc"), exchange.ErrInvalidInput)
		assert.Equal(t, "2.25", card.Snapshot().Quantity)
	})

	t.Run("price", func(t *testing.T) {
		require.NoError(t, card.SetPrice("123.45"))
		assert.ErrorIs(t, card.SetPrice("-5"), exchange.ErrInvalidInput)
		assert.Equal(t, "123.45", card.Snapshot().Price)
		require.NoError(t, card.SetPrice(""))
		assert.Equal(t, "", card.Snapshot().Price)
	})

	t.Run("order type", func(t *testing.T) {
		require.NoError(t, card.SetOrderType("LIMIT"))
		assert.Equal(t, OrderTypeLimit, card.Snapshot().OrderType)
		assert.ErrorIs(t, card.SetOrderType("stop"), exchange.ErrInvalidInput)
		assert.Equal(t, OrderTypeLimit, card.Snapshot().OrderType)
	})

	t.Run("group", func(t *testing.T) {
		require.NoError(t, card.SetGroup(5))
		assert.ErrorIs(t, card.SetGroup(6), exchange.ErrInvalidInput)
		assert.ErrorIs(t, card.SetGroup(-1), exchange.ErrInvalidInput)
		assert.Equal(t, 5, card.Group())
	})
}

func TestCard_DirectionTransitions(t *testing.T) {
	card := NewCard("hl-main", exchange.CardDefaults{Symbol: "BTC", Quantity: "1"})

	require.NoError(t, card.SetDirection("long"))
	assert.Equal(t, StateLongPending, card.State())
	assert.True(t, card.Snapshot().IsBuy())

	require.NoError(t, card.SetDirection("short"))
	assert.Equal(t, StateShortPending, card.State())
	assert.False(t, card.Snapshot().IsBuy())

	assert.ErrorIs(t, card.SetDirection("sideways"), exchange.ErrInvalidInput)
	assert.Equal(t, StateShortPending, card.State())

	card.SetOff()
	assert.Equal(t, StateOff, card.State())
	card.SetOff()
	assert.Equal(t, StateOff, card.State())
}

func TestCard_Reverse(t *testing.T) {
	card := NewCard("hl-main", exchange.CardDefaults{Symbol: "BTC", Quantity: "1", Side: "long"})

	card.Reverse()
	assert.Equal(t, StateShortPending, card.State())
	card.Reverse()
	assert.Equal(t, StateLongPending, card.State())

	card.SetOff()
	card.Reverse()
	assert.Equal(t, StateOff, card.State())
}

func TestCardSnapshot_Active(t *testing.T) {
	card := NewCard("hl-main", exchange.CardDefaults{Symbol: "BTC", Quantity: "1", Side: "long"})
	assert.True(t, card.Snapshot().Active())

	card.SetVisible(false)
	assert.False(t, card.Snapshot().Active())

	assert.True(t, card.ToggleVisible())
	card.SetOff()
	assert.False(t, card.Snapshot().Active())
}
