package hyperliquid

import (
	"context"
	"fmt"
	"time"

	"perpdesk/pkg/exchange"
)

// midsFreshFor bounds how old a websocket mid may be before the client falls
// back to the info endpoint.
const midsFreshFor = 5 * time.Second

// GetMarkPrice resolves the freshest reference price for a possibly
// venue-routed symbol: live websocket mid first, info snapshot otherwise.
func (c *Client) GetMarkPrice(ctx context.Context, symbol string) (string, error) {
	route, coin := exchange.SplitRoute(symbol)
	if c.mids != nil && route == "" {
		if mid, at, ok := c.mids.Mid(coin); ok && c.clock().Sub(at) < midsFreshFor {
			return mid, nil
		}
	}
	info, err := c.routeAssetInfo(ctx, route, canonicalAssetKey(coin))
	if err != nil {
		return "", err
	}
	px := firstNonEmpty(info.MarkPx, info.MidPx, info.OraclePx)
	if px == "" {
		return "", fmt.Errorf("hyperliquid: missing reference price for %s", symbol)
	}
	return px, nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if len(v) > 0 {
			return v
		}
	}
	return ""
}
