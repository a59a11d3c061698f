package hyperliquid

import (
	"errors"
	"fmt"
	"math/big"
	"strings"

	"perpdesk/pkg/exchange"
)

const (
	defaultAggressiveBuyLimit  = "999999999"
	defaultAggressiveSellLimit = "0.00000001"
)

var (
	errInvalidAsset = errors.New("hyperliquid: asset index must be non-negative")
	errInvalidPrice = errors.New("hyperliquid: price must be positive")
	errInvalidSize  = errors.New("hyperliquid: size must be positive")
)

func buildPlaceOrderAction(orders []exchange.Order, defaultBuilder string) (Action, error) {
	payloads := make([]orderPayload, len(orders))
	var builder *builderPayload
	for i, order := range orders {
		if err := validateOrder(order); err != nil {
			return Action{}, fmt.Errorf("order[%d]: %w", i, err)
		}
		payloads[i] = convertOrder(order)
		if builder == nil && order.BuilderFee > 0 {
			code := order.BuilderCode
			if code == "" {
				code = defaultBuilder
			}
			if code != "" {
				builder = &builderPayload{
					Builder: strings.ToLower(code),
					Fee:     order.BuilderFee,
				}
			}
		}
	}
	return Action{
		Type:     ActionTypeOrder,
		Grouping: "na",
		Orders:   payloads,
		Builder:  builder,
	}, nil
}

func buildCancelAction(cancels []Cancel) Action {
	payloads := make([]cancelPayload, len(cancels))
	for i, cancel := range cancels {
		payloads[i] = cancelPayload{Asset: cancel.Asset, Oid: cancel.Oid}
	}
	return Action{
		Type:    ActionTypeCancel,
		Cancels: payloads,
	}
}

// validateOrder ensures order parameters meet basic venue constraints.
// Normalization has already happened upstream; this is the last guard before
// signing.
func validateOrder(order exchange.Order) error {
	if order.Asset < 0 {
		return errInvalidAsset
	}
	if strings.TrimSpace(order.Sz) == "" || !isPositiveDecimal(order.Sz) {
		return errInvalidSize
	}
	if strings.TrimSpace(order.LimitPx) == "" || !isPositiveDecimal(order.LimitPx) {
		return errInvalidPrice
	}
	if order.OrderType.Limit == nil {
		return fmt.Errorf("hyperliquid: order type must carry limit parameters")
	}
	if len(order.Cloid) > 128 {
		return fmt.Errorf("hyperliquid: cloid longer than 128 characters")
	}
	if order.BuilderFee < 0 {
		return fmt.Errorf("hyperliquid: builder fee must be non-negative")
	}
	return nil
}

func isPositiveDecimal(value string) bool {
	v := new(big.Rat)
	if _, ok := v.SetString(strings.TrimSpace(value)); !ok {
		return false
	}
	return v.Sign() > 0
}

func isZeroDecimal(value string) bool {
	s := strings.TrimSpace(value)
	if s == "" {
		return true
	}
	s = strings.TrimPrefix(s, "+")
	s = strings.TrimPrefix(s, "-")
	s = strings.ReplaceAll(s, ".", "")
	s = strings.TrimLeft(s, "0")
	return s == ""
}

func convertOrder(order exchange.Order) orderPayload {
	return orderPayload{
		Asset:      order.Asset,
		IsBuy:      order.IsBuy,
		LimitPx:    order.LimitPx,
		Sz:         order.Sz,
		ReduceOnly: order.ReduceOnly,
		OrderType: orderTypePayload{
			Limit: &limitOrderPayload{TIF: order.OrderType.Limit.TIF},
		},
		Cloid: order.Cloid,
	}
}

func aggressiveLimitPrice(isBuy bool) string {
	if isBuy {
		return defaultAggressiveBuyLimit
	}
	return defaultAggressiveSellLimit
}
