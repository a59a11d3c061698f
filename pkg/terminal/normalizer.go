package terminal

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"perpdesk/pkg/exchange"
)

const defaultSlippage = 0.01

// Normalizer converts a card snapshot plus live market metadata into a
// submission-ready order. Providers perform no further transformation on its
// output. All arithmetic is exact decimal; rejection happens before any
// network call.
type Normalizer struct {
	slippage decimal.Decimal
}

// NewNormalizer builds a normalizer with the given market-order slippage
// fraction (0 uses the default).
func NewNormalizer(slippage float64) *Normalizer {
	if slippage <= 0 {
		slippage = defaultSlippage
	}
	return &Normalizer{slippage: decimal.NewFromFloat(slippage)}
}

// NormalizeInput carries everything one normalization needs beyond the card.
type NormalizeInput struct {
	Meta *exchange.AssetMeta

	// RefPrice is the reference price for market orders, sourced from the
	// shared quote cache. Empty falls back to Meta.MarkPx.
	RefPrice string

	// Builder-fee annotation for families that support it. Fee tiers are
	// "limit market" pairs in tenths of a basis point.
	BuilderCode string
	FeePair     exchange.FeePair
	HasFeePair  bool
}

// Normalize validates and rounds the card's quantity and price per the
// exchange's size-decimal contract and returns the order to submit.
func (n *Normalizer) Normalize(snap CardSnapshot, in NormalizeInput) (exchange.Order, error) {
	if in.Meta == nil {
		return exchange.Order{}, fmt.Errorf("%w: missing asset metadata", exchange.ErrInvalidInput)
	}
	if snap.State == StateOff {
		return exchange.Order{}, fmt.Errorf("%w: card %s has no direction selected", exchange.ErrInvalidInput, snap.Exchange)
	}

	qty, err := normalizeQuantity(snap.Quantity, in.Meta.SzDecimals)
	if err != nil {
		return exchange.Order{}, err
	}

	isBuy := snap.IsBuy()
	var px decimal.Decimal
	var tif string
	switch snap.OrderType {
	case OrderTypeLimit:
		tif = "Gtc"
		px, err = parsePositiveDecimal(snap.Price)
		if err != nil {
			return exchange.Order{}, fmt.Errorf("%w: limit price %q", exchange.ErrInvalidPrice, snap.Price)
		}
	case OrderTypeMarket:
		// User price ignored; backends need a slippage-bound limit even
		// for market semantics.
		tif = "Ioc"
		ref := strings.TrimSpace(in.RefPrice)
		if ref == "" {
			ref = strings.TrimSpace(in.Meta.MarkPx)
		}
		px, err = parsePositiveDecimal(ref)
		if err != nil {
			return exchange.Order{}, fmt.Errorf("%w: no reference price for %s", exchange.ErrInvalidPrice, snap.Symbol)
		}
		if isBuy {
			px = px.Mul(decimal.NewFromInt(1).Add(n.slippage))
		} else {
			px = px.Mul(decimal.NewFromInt(1).Sub(n.slippage))
		}
	default:
		return exchange.Order{}, fmt.Errorf("%w: order type %q", exchange.ErrInvalidInput, snap.OrderType)
	}

	px = normalizePrice(px, in.Meta.SzDecimals)
	if px.Sign() <= 0 {
		return exchange.Order{}, fmt.Errorf("%w: price rounds to zero", exchange.ErrInvalidPrice)
	}

	order := exchange.Order{
		Asset:   in.Meta.AssetID,
		Symbol:  in.Meta.Symbol,
		IsBuy:   isBuy,
		LimitPx: px.String(),
		Sz:      qty.String(),
		OrderType: exchange.OrderType{
			Limit: &exchange.LimitOrderType{TIF: tif},
		},
		Cloid: newCloid(),
	}
	if in.BuilderCode != "" && in.HasFeePair {
		tier := in.FeePair.Market
		if snap.OrderType == OrderTypeLimit {
			tier = in.FeePair.Limit
		}
		if tier > 0 {
			order.BuilderCode = in.BuilderCode
			order.BuilderFee = tier
		}
	}
	return order, nil
}

// normalizeQuantity rounds to the exchange's size-decimal count. A quantity
// that is non-positive, unparsable, or rounds to zero is rejected.
func normalizeQuantity(raw string, szDecimals int) (decimal.Decimal, error) {
	d, err := parsePositiveDecimal(raw)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("%w: quantity %q", exchange.ErrInvalidQuantity, raw)
	}
	if szDecimals < 0 {
		szDecimals = 0
	}
	rounded := d.Round(int32(szDecimals))
	if rounded.Sign() <= 0 {
		return decimal.Decimal{}, fmt.Errorf("%w: quantity %q rounds to zero at %d decimals", exchange.ErrInvalidQuantity, raw, szDecimals)
	}
	return rounded, nil
}

// normalizePrice applies the venue tick contract: at most 6-szDecimals
// decimal places, then at most 5 significant digits when the result is still
// fractional. Integer prices are unconstrained.
func normalizePrice(px decimal.Decimal, szDecimals int) decimal.Decimal {
	maxDec := 6 - szDecimals
	if maxDec < 0 {
		maxDec = 0
	}
	px = px.Round(int32(maxDec))
	if px.IsInteger() {
		return px
	}
	places := 4 - mostSignificantExp(px)
	if places < maxDec {
		px = px.Round(int32(places))
	}
	return px
}

// mostSignificantExp returns the base-10 exponent of the leading significant
// digit: 3 for 1234.5, -1 for 0.12, -4 for 0.00012.
func mostSignificantExp(d decimal.Decimal) int {
	s := d.Abs().String()
	if dot := strings.Index(s, "."); dot >= 0 {
		intPart := s[:dot]
		if intPart != "0" {
			return len(intPart) - 1
		}
		for i, r := range s[dot+1:] {
			if r != '0' {
				return -(i + 1)
			}
		}
		return 0
	}
	return len(s) - 1
}

func parsePositiveDecimal(raw string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return decimal.Decimal{}, err
	}
	if d.Sign() <= 0 {
		return decimal.Decimal{}, fmt.Errorf("non-positive value")
	}
	return d, nil
}

// newCloid produces a 128-bit hex client order id.
func newCloid() string {
	u := uuid.New()
	return "0x" + strings.ReplaceAll(u.String(), "-", "")
}
