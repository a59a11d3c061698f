package binance

import (
	"context"
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/adshao/go-binance/v2/futures"

	"perpdesk/pkg/exchange"
)

const (
	defaultQuoteAsset = "USDT"
	symbolCacheTTL    = 10 * time.Minute
)

// Provider drives Binance USD-M futures as an alternate-family backend. The
// venue keys orders by pair symbol rather than asset index, so the provider
// keeps a local symbol table to satisfy the index-based surface.
type Provider struct {
	client *futures.Client
	quote  string

	mu        sync.Mutex
	nextID    int
	symbolIDs map[string]int // pair -> local id
	idSymbols map[int]string // local id -> pair

	symbols     map[string]futures.Symbol // pair -> exchange info entry
	symbolsAt   time.Time
	clock       func() time.Time
	markFetcher func(ctx context.Context, pair string) (string, error)
}

// Option customizes a Provider.
type Option func(*Provider)

// WithQuoteAsset overrides the quote currency appended to bare coin symbols.
func WithQuoteAsset(quote string) Option {
	return func(p *Provider) {
		if q := strings.ToUpper(strings.TrimSpace(quote)); q != "" {
			p.quote = q
		}
	}
}

// WithClock overrides the time source, used by tests to control cache expiry.
func WithClock(clock func() time.Time) Option {
	return func(p *Provider) {
		if clock != nil {
			p.clock = clock
		}
	}
}

// New constructs a futures provider from API credentials.
func New(apiKey, apiSecret string, testnet bool, opts ...Option) (*Provider, error) {
	if apiKey == "" || apiSecret == "" {
		return nil, fmt.Errorf("binance: api_key and api_secret are required")
	}
	futures.UseTestnet = testnet
	p := &Provider{
		client:    futures.NewClient(apiKey, apiSecret),
		quote:     defaultQuoteAsset,
		nextID:    1,
		symbolIDs: make(map[string]int),
		idSymbols: make(map[int]string),
		symbols:   make(map[string]futures.Symbol),
		clock:     time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	p.markFetcher = p.fetchMarkPrice
	return p, nil
}

// Client exposes the underlying futures client, used by tests to point the
// provider at a stub endpoint.
func (p *Provider) Client() *futures.Client {
	return p.client
}

func init() {
	exchange.RegisterProvider("binance", exchange.FamilyAlternate, func(name string, cfg *exchange.ProviderConfig) (exchange.Provider, error) {
		if cfg.APIKey == "" || cfg.APISecret == "" {
			return nil, exchange.ConfigErrorf("provider %s requires api_key and api_secret", name)
		}
		return New(cfg.APIKey, cfg.APISecret, cfg.Testnet)
	})
}

// pairFor maps a bare coin ("BTC") to the venue pair symbol ("BTCUSDT").
// Symbols already carrying the quote suffix pass through unchanged.
func (p *Provider) pairFor(coin string) string {
	c := strings.ToUpper(strings.TrimSpace(coin))
	if c == "" {
		return ""
	}
	if strings.HasSuffix(c, p.quote) {
		return c
	}
	return c + p.quote
}

func (p *Provider) coinFor(pair string) string {
	return strings.TrimSuffix(strings.ToUpper(pair), p.quote)
}

// GetAssetIndex resolves a stable local identifier for a coin.
func (p *Provider) GetAssetIndex(ctx context.Context, coin string) (int, error) {
	pair := p.pairFor(coin)
	if pair == "" {
		return 0, fmt.Errorf("%w: empty symbol", exchange.ErrInvalidInput)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if id, ok := p.symbolIDs[pair]; ok {
		return id, nil
	}
	id := p.nextID
	p.nextID++
	p.symbolIDs[pair] = id
	p.idSymbols[id] = pair
	return id, nil
}

// GetAssetMeta resolves precision and the latest mark price for a symbol.
func (p *Provider) GetAssetMeta(ctx context.Context, symbol string) (*exchange.AssetMeta, error) {
	pair := p.pairFor(symbol)
	if pair == "" {
		return nil, fmt.Errorf("%w: empty symbol", exchange.ErrInvalidInput)
	}
	info, err := p.symbolInfo(ctx, pair)
	if err != nil {
		return nil, err
	}
	id, err := p.GetAssetIndex(ctx, symbol)
	if err != nil {
		return nil, err
	}
	mark, err := p.markFetcher(ctx, pair)
	if err != nil {
		return nil, err
	}
	return &exchange.AssetMeta{
		Symbol:     p.coinFor(pair),
		AssetID:    id,
		SzDecimals: info.QuantityPrecision,
		MarkPx:     mark,
	}, nil
}

func (p *Provider) symbolInfo(ctx context.Context, pair string) (futures.Symbol, error) {
	p.mu.Lock()
	fresh := p.clock().Sub(p.symbolsAt) < symbolCacheTTL
	info, ok := p.symbols[pair]
	p.mu.Unlock()
	if ok && fresh {
		return info, nil
	}

	res, err := p.client.NewExchangeInfoService().Do(ctx)
	if err != nil {
		return futures.Symbol{}, fmt.Errorf("binance: exchange info: %w", err)
	}
	p.mu.Lock()
	p.symbols = make(map[string]futures.Symbol, len(res.Symbols))
	for _, s := range res.Symbols {
		p.symbols[s.Symbol] = s
	}
	p.symbolsAt = p.clock()
	info, ok = p.symbols[pair]
	p.mu.Unlock()
	if !ok {
		return futures.Symbol{}, fmt.Errorf("%w: symbol %s not listed", exchange.ErrUnknownVenue, pair)
	}
	return info, nil
}

// PlaceOrder submits a limit order. The normalizer always supplies a limit
// price, so market intent arrives as an IOC limit.
func (p *Provider) PlaceOrder(ctx context.Context, order exchange.Order) (*exchange.OrderResponse, error) {
	pair := p.pairForOrder(order)
	if pair == "" {
		return nil, fmt.Errorf("%w: order has no resolvable symbol", exchange.ErrInvalidInput)
	}
	if order.OrderType.Limit == nil {
		return nil, fmt.Errorf("%w: order type must carry limit parameters", exchange.ErrInvalidInput)
	}

	side := futures.SideTypeSell
	if order.IsBuy {
		side = futures.SideTypeBuy
	}
	tif, err := mapTIF(order.OrderType.Limit.TIF)
	if err != nil {
		return nil, err
	}

	svc := p.client.NewCreateOrderService().
		Symbol(pair).
		Side(side).
		Type(futures.OrderTypeLimit).
		TimeInForce(tif).
		Quantity(order.Sz).
		Price(order.LimitPx)
	if order.ReduceOnly {
		svc = svc.ReduceOnly(true)
	}
	if order.Cloid != "" {
		svc = svc.NewClientOrderID(order.Cloid)
	}

	res, err := svc.Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", exchange.ErrOrder, err)
	}
	return translateOrderResponse(res), nil
}

func (p *Provider) pairForOrder(order exchange.Order) string {
	if order.Symbol != "" {
		return p.pairFor(order.Symbol)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.idSymbols[order.Asset]
}

func mapTIF(tif string) (futures.TimeInForceType, error) {
	switch tif {
	case "Ioc":
		return futures.TimeInForceTypeIOC, nil
	case "Gtc":
		return futures.TimeInForceTypeGTC, nil
	case "Alo":
		return futures.TimeInForceTypeGTX, nil
	default:
		return "", fmt.Errorf("%w: unsupported time in force %q", exchange.ErrInvalidInput, tif)
	}
}

func translateOrderResponse(res *futures.CreateOrderResponse) *exchange.OrderResponse {
	status := exchange.OrderStatusResponse{}
	if res.Status == futures.OrderStatusTypeFilled || res.Status == futures.OrderStatusTypePartiallyFilled {
		status.Filled = &exchange.FilledOrder{
			TotalSz: res.ExecutedQuantity,
			AvgPx:   res.AvgPrice,
			Oid:     res.OrderID,
		}
	} else {
		status.Resting = &exchange.RestingOrder{Oid: res.OrderID}
	}
	return &exchange.OrderResponse{
		Status: "ok",
		Response: exchange.OrderResponseData{
			Type: "order",
			Data: exchange.OrderResponseDataDetail{
				Statuses: []exchange.OrderStatusResponse{status},
			},
		},
	}
}

// CancelOrder cancels a resting order previously placed through this provider.
func (p *Provider) CancelOrder(ctx context.Context, asset int, oid int64) error {
	p.mu.Lock()
	pair := p.idSymbols[asset]
	p.mu.Unlock()
	if pair == "" {
		return fmt.Errorf("%w: unknown asset index %d", exchange.ErrInvalidInput, asset)
	}
	if _, err := p.client.NewCancelOrderService().Symbol(pair).OrderID(oid).Do(ctx); err != nil {
		return fmt.Errorf("%w: cancel %s/%d: %v", exchange.ErrOrder, pair, oid, err)
	}
	return nil
}

// GetPositions returns all open positions with non-zero size.
func (p *Provider) GetPositions(ctx context.Context) ([]exchange.Position, error) {
	risks, err := p.client.NewGetPositionRiskService().Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("binance: position risk: %w", err)
	}
	var out []exchange.Position
	for _, r := range risks {
		if isZeroAmount(r.PositionAmt) {
			continue
		}
		lev, _ := strconv.Atoi(r.Leverage)
		levType := "cross"
		if r.MarginType == "isolated" {
			levType = "isolated"
		}
		out = append(out, exchange.Position{
			Coin:          p.coinFor(r.Symbol),
			EntryPx:       r.EntryPrice,
			Szi:           r.PositionAmt,
			UnrealizedPnl: r.UnRealizedProfit,
			LiquidationPx: r.LiquidationPrice,
			Leverage:      exchange.Leverage{Type: levType, Value: lev},
		})
	}
	return out, nil
}

// ClosePosition flattens the named coin with a reduce-only IOC order padded
// off the latest mark price. Returns nil when no position is open.
func (p *Provider) ClosePosition(ctx context.Context, coin string) (*exchange.OrderResponse, error) {
	positions, err := p.GetPositions(ctx)
	if err != nil {
		return nil, err
	}
	target := p.coinFor(p.pairFor(coin))
	for _, pos := range positions {
		if !strings.EqualFold(pos.Coin, target) {
			continue
		}
		size := strings.TrimPrefix(strings.TrimSpace(pos.Szi), "-")
		isBuy := strings.HasPrefix(strings.TrimSpace(pos.Szi), "-")
		pair := p.pairFor(pos.Coin)
		mark, err := p.markFetcher(ctx, pair)
		if err != nil {
			return nil, err
		}
		info, err := p.symbolInfo(ctx, pair)
		if err != nil {
			return nil, err
		}
		limit, err := paddedClosePrice(mark, isBuy, info.PricePrecision)
		if err != nil {
			return nil, err
		}
		return p.PlaceOrder(ctx, exchange.Order{
			Symbol:     pos.Coin,
			IsBuy:      isBuy,
			LimitPx:    limit,
			Sz:         size,
			ReduceOnly: true,
			OrderType:  exchange.OrderType{Limit: &exchange.LimitOrderType{TIF: "Ioc"}},
		})
	}
	return nil, nil
}

var (
	closePadBuy  = big.NewRat(1005, 1000)
	closePadSell = big.NewRat(995, 1000)
)

func paddedClosePrice(mark string, isBuy bool, pricePrecision int) (string, error) {
	price := new(big.Rat)
	if _, ok := price.SetString(strings.TrimSpace(mark)); !ok || price.Sign() <= 0 {
		return "", fmt.Errorf("%w: mark price %q", exchange.ErrInvalidPrice, mark)
	}
	pad := closePadSell
	if isBuy {
		pad = closePadBuy
	}
	padded := new(big.Rat).Mul(price, pad)
	if pricePrecision < 0 {
		pricePrecision = 0
	}
	return trimTrailingZeros(padded.FloatString(pricePrecision)), nil
}

// GetCollateral returns the quote-asset wallet balance plus cross unrealised
// PnL as a decimal string.
func (p *Provider) GetCollateral(ctx context.Context) (string, error) {
	balances, err := p.client.NewGetBalanceService().Do(ctx)
	if err != nil {
		return "", fmt.Errorf("binance: balance: %w", err)
	}
	total := new(big.Rat)
	for _, b := range balances {
		if !strings.EqualFold(b.Asset, p.quote) {
			continue
		}
		for _, raw := range []string{b.Balance, b.CrossUnPnl} {
			raw = strings.TrimSpace(raw)
			if raw == "" {
				continue
			}
			v := new(big.Rat)
			if _, ok := v.SetString(raw); !ok {
				return "", fmt.Errorf("binance: parse balance %q", raw)
			}
			total.Add(total, v)
		}
	}
	return trimTrailingZeros(total.FloatString(6)), nil
}

// TransferCollateral is not available through the futures API surface.
func (p *Provider) TransferCollateral(ctx context.Context, toPerp bool, amount string) error {
	return fmt.Errorf("%w: spot transfers not supported on this backend", exchange.ErrTransfer)
}

// GetMarkPrice returns the latest mark price for a coin.
func (p *Provider) GetMarkPrice(ctx context.Context, coin string) (string, error) {
	pair := p.pairFor(coin)
	if pair == "" {
		return "", fmt.Errorf("%w: empty symbol", exchange.ErrInvalidInput)
	}
	return p.markFetcher(ctx, pair)
}

func (p *Provider) fetchMarkPrice(ctx context.Context, pair string) (string, error) {
	res, err := p.client.NewPremiumIndexService().Symbol(pair).Do(ctx)
	if err != nil {
		return "", fmt.Errorf("binance: premium index: %w", err)
	}
	if len(res) == 0 {
		return "", fmt.Errorf("%w: no mark price for %s", exchange.ErrStaleData, pair)
	}
	return res[0].MarkPrice, nil
}

func isZeroAmount(raw string) bool {
	v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	return err != nil || v == 0
}

func trimTrailingZeros(s string) string {
	if !strings.Contains(s, ".") {
		return s
	}
	s = strings.TrimRight(s, "0")
	s = strings.TrimRight(s, ".")
	if s == "" || s == "-" {
		return "0"
	}
	return s
}
