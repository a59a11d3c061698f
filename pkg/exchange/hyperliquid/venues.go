package hyperliquid

import (
	"context"
	"fmt"
	"strings"

	"perpdesk/pkg/exchange"
)

// Venue-routed asset identifiers. The main venue uses the raw universe
// index; spot pairs and builder-deployed perp venues live in disjoint id
// ranges derived from their directory position.
const (
	spotAssetOffset    = 10000
	builderAssetOffset = 100000
	builderDexStride   = 10000
)

const spotRoute = "spot"

func canonicalRoute(route string) string {
	return strings.ToLower(strings.TrimSpace(route))
}

func canonicalAssetKey(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}

// GetAssetMeta resolves a possibly venue-routed symbol ("xyz:ETH",
// "spot:PURR/USDC", or plain "BTC") into market metadata ready for
// normalization.
func (c *Client) GetAssetMeta(ctx context.Context, symbol string) (*exchange.AssetMeta, error) {
	route, coin := exchange.SplitRoute(symbol)
	key := canonicalAssetKey(coin)
	if key == "" {
		return nil, fmt.Errorf("%w: empty coin symbol", exchange.ErrInvalidInput)
	}

	if route == spotRoute {
		return c.spotAssetMeta(ctx, key)
	}

	info, err := c.routeAssetInfo(ctx, route, key)
	if err != nil {
		return nil, err
	}
	return &exchange.AssetMeta{
		Symbol:     info.Name,
		Route:      route,
		AssetID:    info.Index,
		SzDecimals: info.SzDecimals,
		MarkPx:     info.MarkPx,
		MidPx:      info.MidPx,
	}, nil
}

// GetAssetIndex resolves the venue-routed asset identifier for a symbol.
func (c *Client) GetAssetIndex(ctx context.Context, symbol string) (int, error) {
	meta, err := c.GetAssetMeta(ctx, symbol)
	if err != nil {
		return 0, err
	}
	return meta.AssetID, nil
}

func (c *Client) routeAssetInfo(ctx context.Context, route, key string) (AssetInfo, error) {
	if err := c.maybeRefreshAssetDirectory(ctx, route); err != nil {
		return AssetInfo{}, err
	}
	if info, ok := c.cachedAssetInfo(route, key); ok {
		return info, nil
	}
	if err := c.refreshAssetDirectory(ctx, route); err != nil {
		return AssetInfo{}, err
	}
	if info, ok := c.cachedAssetInfo(route, key); ok {
		return info, nil
	}
	if route != "" {
		return AssetInfo{}, fmt.Errorf("%w: asset %s not found on venue %q", exchange.ErrUnknownVenue, key, route)
	}
	return AssetInfo{}, fmt.Errorf("hyperliquid: asset %s not found", key)
}

func (c *Client) cachedAssetInfo(route, key string) (AssetInfo, bool) {
	c.assetMu.RLock()
	defer c.assetMu.RUnlock()
	dir, ok := c.dirs[route]
	if !ok {
		return AssetInfo{}, false
	}
	info, ok := dir.info[key]
	return info, ok
}

func (c *Client) maybeRefreshAssetDirectory(ctx context.Context, route string) error {
	if c.assetTTL <= 0 {
		return nil
	}
	c.assetMu.RLock()
	dir, ok := c.dirs[route]
	fresh := ok && c.clock().Sub(dir.lastRef) < c.assetTTL
	c.assetMu.RUnlock()
	if fresh {
		return nil
	}
	return c.refreshAssetDirectory(ctx, route)
}

// refreshAssetDirectory reloads the asset universe for one venue route.
// Builder-venue assets get identifiers offset by the venue's directory
// position so orders route without further translation.
func (c *Client) refreshAssetDirectory(ctx context.Context, route string) error {
	offset := 0
	if route != "" {
		dexIdx, err := c.resolveDexIndex(ctx, route)
		if err != nil {
			return err
		}
		offset = builderAssetOffset + dexIdx*builderDexStride
	}

	var resp MetaAndAssetCtxsResponse
	req := InfoRequest{Type: "metaAndAssetCtxs", Dex: route}
	if err := c.doInfoRequest(ctx, req, &resp); err != nil {
		return err
	}
	if len(resp.Universe) == 0 {
		if route != "" {
			return fmt.Errorf("%w: venue %q has no assets", exchange.ErrUnknownVenue, route)
		}
		return fmt.Errorf("hyperliquid: metaAndAssetCtxs response contained no assets")
	}

	dir := &assetDirectory{
		info:    make(map[string]AssetInfo, len(resp.Universe)),
		lastRef: c.clock(),
	}
	for idx, entry := range resp.Universe {
		key := canonicalAssetKey(entry.Name)
		if key == "" {
			continue
		}
		var ctxInfo AssetCtx
		if idx < len(resp.AssetCtxs) {
			ctxInfo = resp.AssetCtxs[idx]
		}
		dir.info[key] = AssetInfo{
			Name:         entry.Name,
			Route:        route,
			SzDecimals:   entry.SzDecimals,
			MaxLeverage:  entry.MaxLeverage,
			OnlyIsolated: entry.OnlyIsolated,
			IsDelisted:   entry.IsDelisted,
			Index:        offset + idx,
			MarkPx:       ctxInfo.MarkPx,
			MidPx:        ctxInfo.MidPx,
			OraclePx:     ctxInfo.OraclePx,
		}
	}

	c.assetMu.Lock()
	c.dirs[route] = dir
	c.assetMu.Unlock()
	return nil
}

// resolveDexIndex finds the directory position of a builder-deployed venue.
// Position zero is the main venue and is never a valid builder route.
func (c *Client) resolveDexIndex(ctx context.Context, route string) (int, error) {
	c.assetMu.RLock()
	idx, ok := c.dexIndex[route]
	c.assetMu.RUnlock()
	if ok {
		return idx, nil
	}

	var dexes []*PerpDexEntry
	if err := c.doInfoRequest(ctx, InfoRequest{Type: "perpDexs"}, &dexes); err != nil {
		return 0, err
	}
	index := make(map[string]int, len(dexes))
	for i, dex := range dexes {
		if dex == nil || i == 0 {
			continue
		}
		index[canonicalRoute(dex.Name)] = i
	}

	c.assetMu.Lock()
	c.dexIndex = index
	c.assetMu.Unlock()

	idx, ok = index[route]
	if !ok {
		return 0, fmt.Errorf("%w: venue %q not listed by perpDexs", exchange.ErrUnknownVenue, route)
	}
	return idx, nil
}

// spotAssetMeta resolves a spot pair ("PURR/USDC") into its offset asset id
// and the base token's size decimals.
func (c *Client) spotAssetMeta(ctx context.Context, pair string) (*exchange.AssetMeta, error) {
	c.assetMu.RLock()
	dir := c.spotDir
	c.assetMu.RUnlock()

	if dir == nil || (c.assetTTL > 0 && c.clock().Sub(dir.lastRef) >= c.assetTTL) {
		if err := c.refreshSpotDirectory(ctx); err != nil {
			return nil, err
		}
		c.assetMu.RLock()
		dir = c.spotDir
		c.assetMu.RUnlock()
	}
	if dir == nil {
		return nil, fmt.Errorf("%w: spot directory unavailable", exchange.ErrUnknownVenue)
	}
	info, ok := dir.info[pair]
	if !ok {
		return nil, fmt.Errorf("%w: spot pair %s not found", exchange.ErrUnknownVenue, pair)
	}
	return &exchange.AssetMeta{
		Symbol:     info.Name,
		Route:      spotRoute,
		AssetID:    info.Index,
		SzDecimals: info.SzDecimals,
		MarkPx:     info.MarkPx,
		MidPx:      info.MidPx,
	}, nil
}

func (c *Client) refreshSpotDirectory(ctx context.Context) error {
	var resp SpotMetaResponse
	if err := c.doInfoRequest(ctx, InfoRequest{Type: "spotMeta"}, &resp); err != nil {
		return err
	}
	tokensByIndex := make(map[int]SpotToken, len(resp.Tokens))
	for _, token := range resp.Tokens {
		tokensByIndex[token.Index] = token
	}

	dir := &assetDirectory{
		info:    make(map[string]AssetInfo, len(resp.Universe)),
		lastRef: c.clock(),
	}
	for _, pair := range resp.Universe {
		key := canonicalAssetKey(pair.Name)
		if key == "" {
			continue
		}
		szDecimals := 0
		if len(pair.Tokens) > 0 {
			if base, ok := tokensByIndex[pair.Tokens[0]]; ok {
				szDecimals = base.SzDecimals
			}
		}
		dir.info[key] = AssetInfo{
			Name:       pair.Name,
			Route:      spotRoute,
			SzDecimals: szDecimals,
			Index:      spotAssetOffset + pair.Index,
		}
	}

	c.assetMu.Lock()
	c.spotDir = dir
	c.assetMu.Unlock()
	return nil
}
