package terminal

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/retrypolicy"
	"github.com/zeromicro/go-zero/core/logx"

	"perpdesk/pkg/exchange"
)

// Options tunes the terminal's execution behavior.
type Options struct {
	// Slippage fraction applied to market-order reference prices.
	Slippage float64
	// Stagger is the minimum spacing between order dispatches in one round.
	Stagger time.Duration
	// MaxWorkers bounds concurrent submissions in one round.
	MaxWorkers int
	// OrderTimeout bounds each capability-interface call.
	OrderTimeout time.Duration
	// QuoteMaxAge is how long a cached quote stays usable as a market-order
	// reference.
	QuoteMaxAge time.Duration
}

func (o *Options) applyDefaults() {
	if o.Stagger <= 0 {
		o.Stagger = 50 * time.Millisecond
	}
	if o.MaxWorkers <= 0 {
		o.MaxWorkers = 8
	}
	if o.OrderTimeout <= 0 {
		o.OrderTimeout = 10 * time.Second
	}
	if o.QuoteMaxAge <= 0 {
		o.QuoteMaxAge = 5 * time.Second
	}
}

// Terminal is the command surface the UI layers drive: per-card execution,
// group bulk actions, and repeat/burn campaigns. One card exists per
// configured exchange slot, created at startup and never destroyed.
type Terminal struct {
	registry  *exchange.Registry
	cards     map[string]*Card
	cardOrder []string

	normalizer *Normalizer
	quotes     *QuoteCache
	sink       *EventSink
	scheduler  *Scheduler
	opts       Options

	orderPipeline failsafe.Executor[*exchange.OrderResponse]
	closePipeline failsafe.Executor[*exchange.OrderResponse]
}

// New builds a terminal over a ready registry. Cards are seeded from each
// exchange's configured defaults.
func New(registry *exchange.Registry, quotes *QuoteCache, sink *EventSink, opts Options) *Terminal {
	opts.applyDefaults()
	if quotes == nil {
		quotes = NewQuoteCache()
	}
	if sink == nil {
		sink = NewEventSink(nil)
	}

	t := &Terminal{
		registry:   registry,
		cards:      make(map[string]*Card),
		normalizer: NewNormalizer(opts.Slippage),
		quotes:     quotes,
		sink:       sink,
		opts:       opts,
		orderPipeline: failsafe.With[*exchange.OrderResponse](
			retrypolicy.NewBuilder[*exchange.OrderResponse]().
				WithBackoff(200*time.Millisecond, 2*time.Second).
				WithMaxRetries(4).
				Build()),
		closePipeline: failsafe.With[*exchange.OrderResponse](
			retrypolicy.NewBuilder[*exchange.OrderResponse]().
				WithBackoff(200*time.Millisecond, 2*time.Second).
				WithMaxRetries(2).
				Build()),
	}
	for _, name := range registry.Names() {
		entry, _ := registry.Entry(name)
		card := NewCard(name, entry.Config.Defaults)
		card.SetVisible(registry.Visible(name))
		t.cards[name] = card
		t.cardOrder = append(t.cardOrder, name)
	}
	t.scheduler = newScheduler(t, opts)
	return t
}

// Card returns the card for an exchange slot.
func (t *Terminal) Card(name string) (*Card, bool) {
	card, ok := t.cards[name]
	return card, ok
}

// CardNames returns every card name in stable order.
func (t *Terminal) CardNames() []string {
	return append([]string(nil), t.cardOrder...)
}

// Events exposes the terminal's event stream.
func (t *Terminal) Events() <-chan Event {
	return t.sink.Events()
}

// Quotes exposes the shared quote cache for the reconciler to feed.
func (t *Terminal) Quotes() *QuoteCache {
	return t.quotes
}

// Scheduler exposes campaign state, mainly for status display.
func (t *Terminal) Scheduler() *Scheduler {
	return t.scheduler
}

// Close stops campaign workers.
func (t *Terminal) Close() {
	t.scheduler.close()
}

// ExecuteCard submits one order for a single card.
func (t *Terminal) ExecuteCard(ctx context.Context, name string) error {
	card, ok := t.cards[name]
	if !ok {
		return exchange.ConfigErrorf("unknown card %q", name)
	}
	return t.executeSnapshot(ctx, card.Snapshot())
}

// ExecuteGroup runs one "execute all active cards" round for a group. It is
// refused while the group's campaign is running.
func (t *Terminal) ExecuteGroup(ctx context.Context, group int) error {
	if err := validGroup(group); err != nil {
		return err
	}
	if t.scheduler.Running(group) {
		return fmt.Errorf("%w: group %d campaign in progress", exchange.ErrInvalidInput, group)
	}
	t.scheduler.executeRound(ctx, group)
	return nil
}

// ReverseGroup flips the direction of every active card in a group.
func (t *Terminal) ReverseGroup(group int) error {
	if err := validGroup(group); err != nil {
		return err
	}
	t.reverseGroupCards(group)
	return nil
}

func (t *Terminal) reverseGroupCards(group int) {
	for _, name := range t.cardOrder {
		card := t.cards[name]
		snap := card.Snapshot()
		if snap.Group != group || !snap.Active() {
			continue
		}
		card.Reverse()
	}
}

// CloseAllGroup flattens every open position behind the group's visible
// cards. Per-card failures are logged and skipped.
func (t *Terminal) CloseAllGroup(ctx context.Context, group int) error {
	if err := validGroup(group); err != nil {
		return err
	}
	for _, name := range t.cardOrder {
		snap := t.cards[name].Snapshot()
		if snap.Group != group || !snap.Visible {
			continue
		}
		if err := t.closeCard(ctx, snap); err != nil {
			logx.Errorf("terminal: close %s: %v", name, err)
		}
	}
	return nil
}

func (t *Terminal) closeCard(ctx context.Context, snap CardSnapshot) error {
	provider, err := t.registry.Get(snap.Exchange)
	if err != nil {
		t.sink.Publish(Event{
			Kind: EventOrderSkipped, Exchange: snap.Exchange, Card: snap.Exchange,
			Group: snap.Group, Action: "close", Reason: err.Error(),
		})
		return err
	}
	resp, err := t.closePipeline.GetWithExecution(func(exec failsafe.Execution[*exchange.OrderResponse]) (*exchange.OrderResponse, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		callCtx, cancel := context.WithTimeout(ctx, t.opts.OrderTimeout)
		defer cancel()
		return provider.ClosePosition(callCtx, snap.Symbol)
	})
	if err != nil {
		t.sink.Publish(Event{
			Kind: EventOrderFailed, Exchange: snap.Exchange, Card: snap.Exchange,
			Group: snap.Group, Action: "close", Reason: err.Error(),
		})
		ordersFailed.WithLabelValues(snap.Exchange).Inc()
		return fmt.Errorf("%w: close %s: %v", exchange.ErrOrder, snap.Symbol, err)
	}
	outcome := "closed"
	if resp == nil {
		outcome = "nothing to close"
	}
	t.sink.Publish(Event{
		Kind: EventOrderSubmitted, Exchange: snap.Exchange, Card: snap.Exchange,
		Group: snap.Group, Action: "close", Outcome: outcome,
	})
	return nil
}

// StartRepeat launches a repeat campaign for the group.
func (t *Terminal) StartRepeat(group, times int, minDelay, maxDelay time.Duration) error {
	return t.scheduler.StartRepeat(group, times, minDelay, maxDelay)
}

// StopRepeat cancels the group's running campaign, if any.
func (t *Terminal) StopRepeat(group int) bool {
	return t.scheduler.Stop(group)
}

// StartBurn launches a burn campaign for the group.
func (t *Terminal) StartBurn(group, rounds int, minDelay, maxDelay time.Duration) error {
	return t.scheduler.StartBurn(group, rounds, minDelay, maxDelay)
}

// StopBurn cancels the group's running campaign, if any.
func (t *Terminal) StopBurn(group int) bool {
	return t.scheduler.Stop(group)
}

// ToggleCardVisibility flips an exchange in and out of polling and bulk
// actions, returning the new visibility.
func (t *Terminal) ToggleCardVisibility(name string) (bool, error) {
	card, ok := t.cards[name]
	if !ok {
		return false, exchange.ConfigErrorf("unknown card %q", name)
	}
	visible, err := t.registry.ToggleVisible(name)
	if err != nil {
		return false, err
	}
	card.SetVisible(visible)
	return visible, nil
}

// groupSnapshots returns the active cards of one group, in display order.
func (t *Terminal) groupSnapshots(group int) []CardSnapshot {
	var out []CardSnapshot
	for _, name := range t.cardOrder {
		snap := t.cards[name].Snapshot()
		if snap.Group == group && snap.Active() {
			out = append(out, snap)
		}
	}
	return out
}

// executeSnapshot normalizes and submits one order for a card snapshot.
// Rejections happen before any network call; failures after retries are
// reported as OrderError. Events and counters are emitted here.
func (t *Terminal) executeSnapshot(ctx context.Context, snap CardSnapshot) error {
	name := snap.Exchange
	skip := func(reason string) {
		t.sink.Publish(Event{
			Kind: EventOrderSkipped, Exchange: name, Card: name,
			Group: snap.Group, Action: "order", Reason: reason,
		})
		ordersSkipped.WithLabelValues(name).Inc()
	}

	if !snap.Active() {
		err := fmt.Errorf("%w: card %s is off or hidden", exchange.ErrInvalidInput, name)
		skip(err.Error())
		return err
	}
	provider, err := t.registry.Get(name)
	if err != nil {
		skip(err.Error())
		return err
	}

	meta, err := t.resolveMeta(ctx, provider, snap.Symbol)
	if err != nil {
		skip(err.Error())
		return err
	}

	in := NormalizeInput{Meta: meta}
	if ref, ok := t.quotes.Fresh(name, snap.Symbol, t.opts.QuoteMaxAge); ok {
		in.RefPrice = ref
	}
	if t.registry.IsNativeFamily(name) {
		entry, _ := t.registry.Entry(name)
		if entry.Config.BuilderCode != "" {
			route, _ := exchange.SplitRoute(snap.Symbol)
			if pair, ok := t.registry.ResolveFeePair(name, route); ok {
				in.BuilderCode = entry.Config.BuilderCode
				in.FeePair = pair
				in.HasFeePair = true
			}
		}
	}

	order, err := t.normalizer.Normalize(snap, in)
	if err != nil {
		skip(err.Error())
		return err
	}

	resp, err := t.orderPipeline.GetWithExecution(func(exec failsafe.Execution[*exchange.OrderResponse]) (*exchange.OrderResponse, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		callCtx, cancel := context.WithTimeout(ctx, t.opts.OrderTimeout)
		defer cancel()
		return provider.PlaceOrder(callCtx, order)
	})
	if err == nil && resp != nil {
		if rejection := orderRejection(resp); rejection != "" {
			err = fmt.Errorf("%w: %s", exchange.ErrOrder, rejection)
		}
	}
	if err != nil {
		t.sink.Publish(Event{
			Kind: EventOrderFailed, Exchange: name, Card: name,
			Group: snap.Group, Action: "order", Reason: err.Error(),
		})
		ordersFailed.WithLabelValues(name).Inc()
		if errors.Is(err, exchange.ErrOrder) {
			return err
		}
		return fmt.Errorf("%w: %v", exchange.ErrOrder, err)
	}

	t.sink.Publish(Event{
		Kind: EventOrderSubmitted, Exchange: name, Card: name,
		Group: snap.Group, Action: "order",
		Outcome: fmt.Sprintf("%s %s %s @ %s", sideWord(order.IsBuy), order.Sz, snap.Symbol, order.LimitPx),
	})
	ordersSubmitted.WithLabelValues(name).Inc()
	return nil
}

// resolveMeta fetches market metadata through the provider's asset directory,
// falling back to index plus mark price for providers without one.
func (t *Terminal) resolveMeta(ctx context.Context, provider exchange.Provider, symbol string) (*exchange.AssetMeta, error) {
	if dir, ok := provider.(exchange.AssetDirectory); ok {
		return dir.GetAssetMeta(ctx, symbol)
	}
	id, err := provider.GetAssetIndex(ctx, symbol)
	if err != nil {
		return nil, err
	}
	mark, err := provider.GetMarkPrice(ctx, symbol)
	if err != nil {
		return nil, err
	}
	_, coin := exchange.SplitRoute(symbol)
	return &exchange.AssetMeta{Symbol: coin, AssetID: id, SzDecimals: 8, MarkPx: mark}, nil
}

func orderRejection(resp *exchange.OrderResponse) string {
	if resp.Status != "" && resp.Status != "ok" {
		return "status " + resp.Status
	}
	for _, st := range resp.Response.Data.Statuses {
		if st.Error != "" {
			return st.Error
		}
	}
	return ""
}

func sideWord(isBuy bool) string {
	if isBuy {
		return "buy"
	}
	return "sell"
}

func validGroup(group int) error {
	if group < 0 || group > 5 {
		return fmt.Errorf("%w: group %d out of range 0-5", exchange.ErrInvalidInput, group)
	}
	return nil
}
