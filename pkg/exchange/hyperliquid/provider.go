package hyperliquid

import (
	"context"
	"net/http"
	"time"

	"perpdesk/pkg/exchange"
)

// assetDirectoryTTL bounds how long cached universe metadata (szDecimals,
// asset ids) serves before a refresh.
const assetDirectoryTTL = 10 * time.Minute

// Provider wraps Client to satisfy the exchange.Provider interface.
type Provider struct {
	client *Client
}

// NewProvider constructs a native-family exchange provider.
func NewProvider(privateKeyHex string, isTestnet bool, opts ...ClientOption) (*Provider, error) {
	client, err := NewClient(privateKeyHex, isTestnet, opts...)
	if err != nil {
		return nil, err
	}
	return &Provider{client: client}, nil
}

// Client exposes the underlying client for feed wiring.
func (p *Provider) Client() *Client {
	return p.client
}

func init() {
	exchange.RegisterProvider("hyperliquid", exchange.FamilyNative, func(name string, cfg *exchange.ProviderConfig) (exchange.Provider, error) {
		if cfg.PrivateKey == "" {
			return nil, exchange.ConfigErrorf("provider %s requires private_key", name)
		}
		opts := []ClientOption{WithAssetCacheTTL(assetDirectoryTTL)}
		if cfg.Timeout > 0 {
			opts = append(opts, WithHTTPClient(&http.Client{Timeout: cfg.Timeout}))
		}
		if cfg.VaultAddress != "" {
			opts = append(opts, WithVaultAddress(cfg.VaultAddress))
		}
		if cfg.MainAddress != "" {
			opts = append(opts, WithMainAddress(cfg.MainAddress))
		}
		if cfg.BuilderCode != "" {
			opts = append(opts, WithBuilderCode(cfg.BuilderCode))
		}
		if len(cfg.VenueRoutes) > 0 {
			opts = append(opts, WithVenueRoutes(cfg.VenueRoutes))
		}
		return NewProvider(cfg.PrivateKey, cfg.Testnet, opts...)
	})
}

// PlaceOrder delegates to the underlying client.
func (p *Provider) PlaceOrder(ctx context.Context, order exchange.Order) (*exchange.OrderResponse, error) {
	return p.client.PlaceOrder(ctx, order)
}

// CancelOrder cancels a single order.
func (p *Provider) CancelOrder(ctx context.Context, asset int, oid int64) error {
	return p.client.CancelOrder(ctx, asset, oid)
}

// GetPositions fetches open positions merged across venue routes.
func (p *Provider) GetPositions(ctx context.Context) ([]exchange.Position, error) {
	return p.client.GetPositions(ctx)
}

// ClosePosition attempts to flatten an open position.
func (p *Provider) ClosePosition(ctx context.Context, coin string) (*exchange.OrderResponse, error) {
	return p.client.ClosePosition(ctx, coin)
}

// GetCollateral returns account value summed across venue routes.
func (p *Provider) GetCollateral(ctx context.Context) (string, error) {
	return p.client.GetCollateral(ctx)
}

// TransferCollateral moves USD between spot and perp balances.
func (p *Provider) TransferCollateral(ctx context.Context, toPerp bool, amount string) error {
	return p.client.TransferCollateral(ctx, toPerp, amount)
}

// GetMarkPrice resolves the freshest reference price for a symbol.
func (p *Provider) GetMarkPrice(ctx context.Context, coin string) (string, error) {
	return p.client.GetMarkPrice(ctx, coin)
}

// GetAssetIndex resolves the venue-routed asset identifier for a symbol.
func (p *Provider) GetAssetIndex(ctx context.Context, coin string) (int, error) {
	return p.client.GetAssetIndex(ctx, coin)
}

// GetAssetMeta resolves market metadata for the normalizer.
func (p *Provider) GetAssetMeta(ctx context.Context, symbol string) (*exchange.AssetMeta, error) {
	return p.client.GetAssetMeta(ctx, symbol)
}
