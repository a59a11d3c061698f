package hyperliquid

import (
	"context"
	"math/big"
	"strings"

	"perpdesk/pkg/exchange"
)

// ClosePosition submits a reduce-only IOC order to flatten the specified
// coin. Venue-prefixed symbols ("xyz:ETH") are matched case-insensitively
// against merged positions. Returns nil when there is nothing to close.
func (c *Client) ClosePosition(ctx context.Context, coin string) (*exchange.OrderResponse, error) {
	positions, err := c.GetPositions(ctx)
	if err != nil {
		return nil, err
	}
	var target *exchange.Position
	for i := range positions {
		if strings.EqualFold(positions[i].Coin, coin) {
			target = &positions[i]
			break
		}
	}
	if target == nil {
		return nil, nil
	}

	meta, err := c.GetAssetMeta(ctx, coin)
	if err != nil {
		return nil, err
	}
	order, shouldExecute, err := buildCloseOrder(meta.AssetID, meta.MarkPx, meta.SzDecimals, *target)
	if err != nil {
		return nil, err
	}
	if !shouldExecute {
		return nil, nil
	}
	return c.PlaceOrder(ctx, order)
}

func buildCloseOrder(assetIdx int, markPx string, szDecimals int, pos exchange.Position) (exchange.Order, bool, error) {
	rawSize := strings.TrimSpace(pos.Szi)
	if rawSize == "" || isZeroDecimal(rawSize) {
		return exchange.Order{}, false, nil
	}

	isShort := strings.HasPrefix(rawSize, "-")
	size := trimSign(rawSize)
	if size == "" || isZeroDecimal(size) {
		return exchange.Order{}, false, nil
	}

	order := exchange.Order{
		Asset:      assetIdx,
		IsBuy:      isShort,
		LimitPx:    computeCloseLimit(markPx, isShort, szDecimals),
		Sz:         size,
		ReduceOnly: true,
		OrderType: exchange.OrderType{
			Limit: &exchange.LimitOrderType{TIF: "Ioc"},
		},
	}
	return order, true, nil
}

var (
	closeMultiplierBuy  = big.NewRat(1005, 1000)
	closeMultiplierSell = big.NewRat(995, 1000)
)

const closePriceSigFigs = 5

// computeCloseLimit derives a slippage-padded limit from the mark price so an
// IOC close crosses the book, rendered under the coin's tick contract. Falls
// back to an aggressive price when no mark is available.
func computeCloseLimit(mark string, isBuy bool, szDecimals int) string {
	trimmed := strings.TrimSpace(mark)
	if trimmed != "" && isPositiveDecimal(trimmed) {
		price := new(big.Rat)
		if _, ok := price.SetString(trimmed); ok && price.Sign() > 0 {
			multiplier := closeMultiplierSell
			if isBuy {
				multiplier = closeMultiplierBuy
			}
			result := new(big.Rat).Mul(price, multiplier)
			if result.Sign() > 0 {
				f, _ := result.Float64()
				if f > 0 && isFinite(f) {
					return formatPriceForDecimals(f, szDecimals, closePriceSigFigs)
				}
			}
		}
	}
	return aggressiveLimitPrice(isBuy)
}

func trimSign(value string) string {
	s := strings.TrimSpace(value)
	for len(s) > 0 {
		if s[0] == '+' || s[0] == '-' {
			s = strings.TrimSpace(s[1:])
			continue
		}
		break
	}
	return s
}
