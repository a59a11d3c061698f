package terminal

import (
	"strings"
	"sync"
	"time"
)

// Quote is one cached reference price.
type Quote struct {
	Price     string
	FetchedAt time.Time
}

// QuoteCache is the shared reference-price store. The reconciler is its only
// writer (one representative fetch per poll tick); the normalizer and UI read
// from it. Keys are "exchange|symbol" with venue-routed symbols normalized
// case-insensitively.
type QuoteCache struct {
	mu     sync.RWMutex
	quotes map[string]Quote
	clock  func() time.Time
}

// NewQuoteCache builds an empty cache.
func NewQuoteCache() *QuoteCache {
	return &QuoteCache{
		quotes: make(map[string]Quote),
		clock:  time.Now,
	}
}

func quoteKey(exchangeName, symbol string) string {
	return strings.ToUpper(strings.TrimSpace(exchangeName)) + "|" + strings.ToUpper(strings.TrimSpace(symbol))
}

// Set stores the latest price for an exchange/symbol pair.
func (q *QuoteCache) Set(exchangeName, symbol, price string) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.quotes[quoteKey(exchangeName, symbol)] = Quote{Price: price, FetchedAt: q.clock()}
}

// Get returns the cached quote, if any.
func (q *QuoteCache) Get(exchangeName, symbol string) (Quote, bool) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	quote, ok := q.quotes[quoteKey(exchangeName, symbol)]
	return quote, ok
}

// Fresh returns the cached price when it is younger than maxAge.
func (q *QuoteCache) Fresh(exchangeName, symbol string, maxAge time.Duration) (string, bool) {
	quote, ok := q.Get(exchangeName, symbol)
	if !ok || quote.Price == "" {
		return "", false
	}
	if maxAge > 0 && q.clock().Sub(quote.FetchedAt) > maxAge {
		return "", false
	}
	return quote.Price, true
}
