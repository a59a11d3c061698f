package hyperliquid

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"perpdesk/pkg/exchange"
)

// GetAccountState fetches the clearinghouse state for one venue route
// (empty route = main venue).
func (c *Client) GetAccountState(ctx context.Context, route string) (*exchange.AccountState, error) {
	infoAddr := c.getInfoAddress()
	if infoAddr == "" {
		return nil, fmt.Errorf("hyperliquid: client address unavailable")
	}
	var raw clearinghouseStateResponse
	if err := c.doInfoRequest(ctx, InfoRequest{
		Type: "clearinghouseState",
		User: infoAddr,
		Dex:  canonicalRoute(route),
	}, &raw); err != nil {
		return nil, err
	}
	if strings.TrimSpace(raw.MarginSummary.AccountValue) == "" && len(raw.AssetPositions) == 0 {
		return nil, fmt.Errorf("hyperliquid: clearinghouseState missing fields")
	}
	state := exchange.AccountState{MarginSummary: raw.MarginSummary}
	for _, entry := range raw.AssetPositions {
		state.AssetPositions = append(state.AssetPositions, entry.Position)
	}
	return &state, nil
}

// GetCollateral returns the account value summed across the main venue and
// every configured auxiliary route, as a decimal string.
func (c *Client) GetCollateral(ctx context.Context) (string, error) {
	total := new(big.Rat)
	routes := append([]string{""}, c.venueRoutes...)
	for _, route := range routes {
		state, err := c.GetAccountState(ctx, route)
		if err != nil {
			if route == "" {
				return "", err
			}
			// Auxiliary venues may simply have no account yet.
			c.logf("hyperliquid: collateral fetch for venue %q: %v", route, err)
			continue
		}
		raw := strings.TrimSpace(state.MarginSummary.AccountValue)
		if raw == "" {
			continue
		}
		value := new(big.Rat)
		if _, ok := value.SetString(raw); !ok {
			return "", fmt.Errorf("hyperliquid: parse account value %q", raw)
		}
		total.Add(total, value)
	}
	return trimTrailingZeros(total.FloatString(6)), nil
}

// GetPositions merges live positions across the main venue and every
// configured auxiliary route. Auxiliary positions carry a "route:" prefix on
// the coin so lookups stay unambiguous.
func (c *Client) GetPositions(ctx context.Context) ([]exchange.Position, error) {
	var out []exchange.Position
	routes := append([]string{""}, c.venueRoutes...)
	for _, route := range routes {
		state, err := c.GetAccountState(ctx, route)
		if err != nil {
			if route == "" {
				return nil, err
			}
			c.logf("hyperliquid: positions fetch for venue %q: %v", route, err)
			continue
		}
		for _, pos := range state.AssetPositions {
			if route != "" {
				pos.Coin = route + ":" + pos.Coin
			}
			out = append(out, pos)
		}
	}
	return out, nil
}

// TransferCollateral moves USD between the spot and perp balances of the
// account.
func (c *Client) TransferCollateral(ctx context.Context, toPerp bool, amount string) error {
	amount = strings.TrimSpace(amount)
	if amount == "" || !isPositiveDecimal(amount) {
		return fmt.Errorf("%w: amount %q", exchange.ErrTransfer, amount)
	}
	nonce := c.clock().UnixMilli()
	action := Action{
		Type:   ActionTypeUsdClassTransfer,
		Amount: amount,
		ToPerp: &toPerp,
		Nonce:  nonce,
	}
	if err := c.doExchangeRequest(ctx, action, nil); err != nil {
		return fmt.Errorf("%w: %v", exchange.ErrTransfer, err)
	}
	return nil
}
