package hyperliquid

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	mainnetWsURL = "wss://api.hyperliquid.xyz/ws"
	testnetWsURL = "wss://api.hyperliquid-testnet.xyz/ws"

	wsReconnectBase = time.Second
	wsReconnectMax  = 30 * time.Second
	wsPingInterval  = 50 * time.Second
	wsReadTimeout   = 70 * time.Second
)

// MidsFeed maintains a live mid-price cache from the allMids websocket
// subscription. One feed is shared across every native-family card so a
// single connection serves the whole terminal.
type MidsFeed struct {
	url    string
	logger *log.Logger

	mu      sync.RWMutex
	mids    map[string]string
	updated time.Time
}

// NewMidsFeed constructs a feed for the given network.
func NewMidsFeed(isTestnet bool, logger *log.Logger) *MidsFeed {
	url := mainnetWsURL
	if isTestnet {
		url = testnetWsURL
	}
	if logger == nil {
		logger = log.Default()
	}
	return &MidsFeed{
		url:    url,
		logger: logger,
		mids:   make(map[string]string),
	}
}

// Mid returns the latest mid for a coin and the time the cache was updated.
func (f *MidsFeed) Mid(coin string) (string, time.Time, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	mid, ok := f.mids[canonicalAssetKey(coin)]
	return mid, f.updated, ok
}

// Run keeps the subscription alive until the context is cancelled,
// reconnecting with capped exponential backoff.
func (f *MidsFeed) Run(ctx context.Context) {
	backoff := wsReconnectBase
	for {
		if ctx.Err() != nil {
			return
		}
		if err := f.runOnce(ctx); err != nil && ctx.Err() == nil {
			f.logger.Printf("hyperliquid: mids feed disconnected: %v (retry in %s)", err, backoff)
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > wsReconnectMax {
			backoff = wsReconnectMax
		}
	}
}

type wsSubscribeRequest struct {
	Method       string `json:"method"`
	Subscription struct {
		Type string `json:"type"`
	} `json:"subscription"`
}

type wsEnvelope struct {
	Channel string          `json:"channel"`
	Data    json.RawMessage `json:"data"`
}

type wsAllMids struct {
	Mids map[string]string `json:"mids"`
}

func (f *MidsFeed) runOnce(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, f.url, nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	sub := wsSubscribeRequest{Method: "subscribe"}
	sub.Subscription.Type = "allMids"
	if err := conn.WriteJSON(sub); err != nil {
		return err
	}

	done := make(chan struct{})
	defer close(done)
	go func() {
		ticker := time.NewTicker(wsPingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				conn.Close()
				return
			case <-ticker.C:
				_ = conn.WriteJSON(map[string]string{"method": "ping"})
			}
		}
	}()

	for {
		_ = conn.SetReadDeadline(time.Now().Add(wsReadTimeout))
		var envelope wsEnvelope
		if err := conn.ReadJSON(&envelope); err != nil {
			return err
		}
		if envelope.Channel != "allMids" {
			continue
		}
		var payload wsAllMids
		if err := json.Unmarshal(envelope.Data, &payload); err != nil {
			f.logger.Printf("hyperliquid: decode allMids: %v", err)
			continue
		}
		f.mu.Lock()
		for coin, mid := range payload.Mids {
			f.mids[canonicalAssetKey(coin)] = mid
		}
		f.updated = time.Now()
		f.mu.Unlock()
	}
}
