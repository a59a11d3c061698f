package terminal

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQuoteCache_SetAndGet(t *testing.T) {
	cache := NewQuoteCache()

	cache.Set("hl-main", "BTC", "50000")

	quote, ok := cache.Get("hl-main", "btc")
	require.True(t, ok)
	assert.Equal(t, "50000", quote.Price)
	assert.False(t, quote.FetchedAt.IsZero())

	_, ok = cache.Get("hl-main", "ETH")
	assert.False(t, ok)
}

func TestQuoteCache_Fresh(t *testing.T) {
	cache := NewQuoteCache()
	now := time.Now()
	cache.clock = func() time.Time { return now }

	cache.Set("hl-main", "flx:DOGE", "0.25")

	price, ok := cache.Fresh("hl-main", "FLX:doge", 5*time.Second)
	require.True(t, ok)
	assert.Equal(t, "0.25", price)

	now = now.Add(6 * time.Second)
	_, ok = cache.Fresh("hl-main", "flx:DOGE", 5*time.Second)
	assert.False(t, ok)

	// Zero max age disables staleness.
	price, ok = cache.Fresh("hl-main", "flx:DOGE", 0)
	require.True(t, ok)
	assert.Equal(t, "0.25", price)
}
