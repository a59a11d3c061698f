package exchange

import "context"

// Provider exposes trading capabilities in an exchange-agnostic fashion.
// One instance exists per configured, non-disabled exchange; sessions are
// exclusively owned by the registry.
type Provider interface {
	// Order management.
	PlaceOrder(ctx context.Context, order Order) (*OrderResponse, error)
	CancelOrder(ctx context.Context, asset int, oid int64) error

	// Position management.
	GetPositions(ctx context.Context) ([]Position, error)
	ClosePosition(ctx context.Context, coin string) (*OrderResponse, error)

	// Account information.
	GetCollateral(ctx context.Context) (string, error)
	TransferCollateral(ctx context.Context, toPerp bool, amount string) error

	// Market data.
	GetMarkPrice(ctx context.Context, coin string) (string, error)
	GetAssetIndex(ctx context.Context, coin string) (int, error)
}
