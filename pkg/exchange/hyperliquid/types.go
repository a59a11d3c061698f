package hyperliquid

import (
	"encoding/json"
	"fmt"

	"perpdesk/pkg/exchange"
)

// ActionType enumerates supported exchange actions.
type ActionType string

const (
	// ActionTypeOrder submits one or more orders.
	ActionTypeOrder ActionType = "order"
	// ActionTypeCancel cancels specific orders by oid.
	ActionTypeCancel ActionType = "cancel"
	// ActionTypeUsdClassTransfer moves collateral between spot and perp.
	ActionTypeUsdClassTransfer ActionType = "usdClassTransfer"
)

// Action encodes the payload sent to the exchange endpoint. Field order and
// the short msgpack tags are signing-relevant and must stay aligned with the
// venue's canonical serialization.
type Action struct {
	Type     ActionType      `json:"type" msgpack:"type"`
	Orders   []orderPayload  `json:"orders,omitempty" msgpack:"orders,omitempty"`
	Grouping string          `json:"grouping,omitempty" msgpack:"grouping,omitempty"`
	Builder  *builderPayload `json:"builder,omitempty" msgpack:"builder,omitempty"`
	Cancels  []cancelPayload `json:"cancels,omitempty" msgpack:"cancels,omitempty"`

	// usdClassTransfer fields.
	Amount string `json:"amount,omitempty" msgpack:"amount,omitempty"`
	ToPerp *bool  `json:"toPerp,omitempty" msgpack:"toPerp,omitempty"`
	Nonce  int64  `json:"nonce,omitempty" msgpack:"nonce,omitempty"`
}

type orderPayload struct {
	Asset      int              `json:"a" msgpack:"a"`
	IsBuy      bool             `json:"b" msgpack:"b"`
	LimitPx    string           `json:"p" msgpack:"p"`
	Sz         string           `json:"s" msgpack:"s"`
	ReduceOnly bool             `json:"r" msgpack:"r"`
	OrderType  orderTypePayload `json:"t" msgpack:"t"`
	Cloid      string           `json:"c,omitempty" msgpack:"c,omitempty"`
}

type orderTypePayload struct {
	Limit *limitOrderPayload `json:"limit,omitempty" msgpack:"limit,omitempty"`
}

type limitOrderPayload struct {
	TIF string `json:"tif" msgpack:"tif"`
}

// builderPayload annotates an order action with the builder address and the
// fee tier in tenths of a basis point.
type builderPayload struct {
	Builder string `json:"b" msgpack:"b"`
	Fee     int    `json:"f" msgpack:"f"`
}

// Cancel identifies an order to cancel (public API input).
type Cancel struct {
	Asset int
	Oid   int64
}

type cancelPayload struct {
	Asset int   `json:"a" msgpack:"a"`
	Oid   int64 `json:"o" msgpack:"o"`
}

// ExchangeRequest is the signed request envelope for exchange actions.
type ExchangeRequest struct {
	Action       Action    `json:"action"`
	Nonce        int64     `json:"nonce"`
	Signature    Signature `json:"signature"`
	VaultAddress string    `json:"vaultAddress,omitempty"`
}

// Signature represents an ECDSA signature.
type Signature struct {
	R string `json:"r"`
	S string `json:"s"`
	V int    `json:"v"`
}

// InfoRequest targets read-only endpoints that do not require signatures.
// Dex scopes universe/account queries to an auxiliary builder-deployed venue.
type InfoRequest struct {
	Type string `json:"type"`
	User string `json:"user,omitempty"`
	Dex  string `json:"dex,omitempty"`
}

// MetaAndAssetCtxsResponse includes universe meta plus per-asset context.
type MetaAndAssetCtxsResponse struct {
	Universe  []AssetUniverseEntry `json:"universe"`
	AssetCtxs []AssetCtx           `json:"assetCtxs"`
}

// UnmarshalJSON handles both the object payload and the legacy two-element
// array payload.
func (m *MetaAndAssetCtxsResponse) UnmarshalJSON(data []byte) error {
	type alias MetaAndAssetCtxsResponse
	var object alias
	if err := json.Unmarshal(data, &object); err == nil && (len(object.Universe) > 0 || len(object.AssetCtxs) > 0) {
		m.Universe = object.Universe
		m.AssetCtxs = object.AssetCtxs
		return nil
	}

	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("hyperliquid: metaAndAssetCtxs decode: %w", err)
	}
	if len(raw) == 0 {
		return fmt.Errorf("hyperliquid: metaAndAssetCtxs empty payload")
	}
	var universeHolder struct {
		Universe []AssetUniverseEntry `json:"universe"`
	}
	if err := json.Unmarshal(raw[0], &universeHolder); err != nil {
		return fmt.Errorf("hyperliquid: metaAndAssetCtxs universe: %w", err)
	}
	m.Universe = universeHolder.Universe

	if len(raw) > 1 {
		if err := json.Unmarshal(raw[1], &m.AssetCtxs); err != nil {
			return fmt.Errorf("hyperliquid: metaAndAssetCtxs assetCtxs: %w", err)
		}
	}
	return nil
}

// AssetUniverseEntry describes asset listing info from the meta endpoint.
type AssetUniverseEntry struct {
	Name         string  `json:"name"`
	SzDecimals   int     `json:"szDecimals"`
	MaxLeverage  float64 `json:"maxLeverage"`
	OnlyIsolated bool    `json:"onlyIsolated"`
	IsDelisted   bool    `json:"isDelisted"`
}

// AssetCtx provides contextual info such as funding and mark price.
type AssetCtx struct {
	Funding   string `json:"funding"`
	PrevDayPx string `json:"prevDayPx"`
	OraclePx  string `json:"oraclePx"`
	MarkPx    string `json:"markPx"`
	MidPx     string `json:"midPx"`
}

// AssetInfo aggregates convenience metadata for trading use cases. Index is
// already offset for the asset's venue route.
type AssetInfo struct {
	Name         string
	Route        string
	SzDecimals   int
	MaxLeverage  float64
	OnlyIsolated bool
	IsDelisted   bool
	Index        int
	MarkPx       string
	MidPx        string
	OraclePx     string
}

// PerpDexEntry describes one builder-deployed perp venue from the perpDexs
// info endpoint. The main venue appears as a null entry at position zero.
type PerpDexEntry struct {
	Name     string `json:"name"`
	FullName string `json:"full_name"`
	Deployer string `json:"deployer"`
}

// SpotMetaResponse carries the spot pair universe.
type SpotMetaResponse struct {
	Universe []SpotPairEntry `json:"universe"`
	Tokens   []SpotToken     `json:"tokens"`
}

// SpotPairEntry is one tradable spot pair.
type SpotPairEntry struct {
	Name   string `json:"name"`
	Index  int    `json:"index"`
	Tokens []int  `json:"tokens"`
}

// SpotToken describes one spot token, including its size decimals.
type SpotToken struct {
	Name       string `json:"name"`
	Index      int    `json:"index"`
	SzDecimals int    `json:"szDecimals"`
}

// clearinghouseStateResponse mirrors the wire shape of clearinghouseState,
// where each position sits under a typed wrapper entry.
type clearinghouseStateResponse struct {
	MarginSummary  exchange.MarginSummary `json:"marginSummary"`
	AssetPositions []assetPositionEntry   `json:"assetPositions"`
}

type assetPositionEntry struct {
	Type     string            `json:"type"`
	Position exchange.Position `json:"position"`
}
