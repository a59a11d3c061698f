package exchange

import "context"

// Core trading domain types shared across exchange implementations. Decimal
// values travel as strings end to end so no precision is lost between the
// normalizer and the wire.

// Family is the closed set of exchange platform families the terminal knows
// how to drive. The registry and the normalizer switch on this tag, never on
// provider name strings.
type Family string

const (
	// FamilyNative is the Hyperliquid-style platform: universe asset
	// indices, venue routing, builder-fee injection, vault and sub-account
	// signing.
	FamilyNative Family = "native"
	// FamilyAlternate is any independent backend reached through its own
	// SDK; no venue routing and no builder annotation.
	FamilyAlternate Family = "alternate"
)

// Visibility controls whether an exchange participates in polling and bulk
// actions.
type Visibility string

const (
	// VisibilityVisible exchanges are polled and act on bulk operations.
	VisibilityVisible Visibility = "visible"
	// VisibilityHidden exchanges keep their client but are excluded from
	// polling and "execute all" until shown again.
	VisibilityHidden Visibility = "hidden"
	// VisibilityDisabled exchanges never get a client instantiated.
	VisibilityDisabled Visibility = "disabled"
)

// OrderType captures optional order configuration such as limit parameters.
type OrderType struct {
	Limit *LimitOrderType `json:"limit,omitempty"`
}

// LimitOrderType defines limit order specific fields.
type LimitOrderType struct {
	TIF string `json:"tif"` // Valid values: "Alo", "Ioc", "Gtc"
}

// Order describes a normalized, submission-ready order request. Providers
// perform no further transformation on it.
type Order struct {
	Asset      int       `json:"asset"`           // Exchange-specific asset identifier.
	Symbol     string    `json:"symbol"`          // Resolved symbol, venue prefix stripped.
	IsBuy      bool      `json:"isBuy"`           // true for buy, false for sell.
	LimitPx    string    `json:"limitPx"`         // Limit price as string to avoid precision loss.
	Sz         string    `json:"sz"`              // Order size as string to avoid precision loss.
	ReduceOnly bool      `json:"reduceOnly"`      // Indicates whether the order only reduces position.
	OrderType  OrderType `json:"orderType"`       // Order execution parameters.
	Cloid      string    `json:"cloid,omitempty"` // Optional client order identifier.

	// Builder-fee annotation, honoured only by families that support
	// fee-tier injection. Fee is in tenths of a basis point.
	BuilderCode string `json:"builderCode,omitempty"`
	BuilderFee  int    `json:"builderFee,omitempty"`
}

// AssetMeta aggregates the market metadata the normalizer needs for one
// resolved symbol: the venue-routed asset identifier, the size-decimal count
// governing quantity and price rounding, and the latest reference prices.
type AssetMeta struct {
	Symbol     string // Canonical symbol without venue prefix.
	Route      string // Venue route the symbol resolved through ("" = main).
	AssetID    int
	SzDecimals int
	MarkPx     string
	MidPx      string
}

// AssetDirectory resolves venue-routed symbols into market metadata.
// Implemented by providers whose platform carries per-asset rounding rules.
type AssetDirectory interface {
	GetAssetMeta(ctx context.Context, symbol string) (*AssetMeta, error)
}

// Position captures live position details.
type Position struct {
	Coin           string   `json:"coin"`
	EntryPx        string   `json:"entryPx"`
	PositionValue  string   `json:"positionValue"`
	Szi            string   `json:"szi"`           // Signed position size.
	UnrealizedPnl  string   `json:"unrealizedPnl"` // Unrealised profit & loss.
	Leverage       Leverage `json:"leverage"`
	LiquidationPx  string   `json:"liquidationPx,omitempty"`
	ReturnOnEquity string   `json:"returnOnEquity,omitempty"`
}

// Leverage contains leverage settings for an instrument.
type Leverage struct {
	Type  string `json:"type"`  // "cross" or "isolated".
	Value int    `json:"value"` // Leverage multiplier.
}

// AccountState summarizes a trading account.
type AccountState struct {
	MarginSummary  MarginSummary `json:"marginSummary"`
	AssetPositions []Position    `json:"assetPositions"`
}

// MarginSummary consolidates margin metrics.
type MarginSummary struct {
	AccountValue    string `json:"accountValue"`
	TotalMarginUsed string `json:"totalMarginUsed"`
	TotalNtlPos     string `json:"totalNtlPos"`
	TotalRawUSD     string `json:"totalRawUsd"`
}

// OrderResponse captures the standard exchange response after an order
// submission.
type OrderResponse struct {
	Status   string            `json:"status"` // "ok" or "err".
	Response OrderResponseData `json:"response"`
}

// OrderResponseData wraps the response payload.
type OrderResponseData struct {
	Type string                  `json:"type"` // Typically "order".
	Data OrderResponseDataDetail `json:"data"`
}

// OrderResponseDataDetail contains the per-order statuses.
type OrderResponseDataDetail struct {
	Statuses []OrderStatusResponse `json:"statuses"`
}

// OrderStatusResponse tracks the status of an individual order request.
type OrderStatusResponse struct {
	Resting *RestingOrder `json:"resting,omitempty"`
	Filled  *FilledOrder  `json:"filled,omitempty"`
	Error   string        `json:"error,omitempty"`
}

// RestingOrder represents an order that is currently resting on the book.
type RestingOrder struct {
	Oid int64 `json:"oid"`
}

// FilledOrder represents a fully matched order.
type FilledOrder struct {
	TotalSz string `json:"totalSz"`
	AvgPx   string `json:"avgPx"`
	Oid     int64  `json:"oid"`
}
