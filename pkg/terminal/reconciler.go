package terminal

import (
	"context"
	"sync"
	"time"

	"github.com/zeromicro/go-zero/core/logx"

	"perpdesk/pkg/exchange"
)

// Intervals sets the per-family polling cadence. Native platforms are cheap
// to poll and get tight intervals; alternate backends are rate-limit bound.
type Intervals struct {
	NativeState         time.Duration
	NativePrice         time.Duration
	AlternateState      time.Duration
	AlternateCollateral time.Duration
	AlternatePrice      time.Duration
}

func (iv *Intervals) applyDefaults() {
	if iv.NativeState <= 0 {
		iv.NativeState = 500 * time.Millisecond
	}
	if iv.NativePrice <= 0 {
		iv.NativePrice = time.Second
	}
	if iv.AlternateState <= 0 {
		iv.AlternateState = 2 * time.Second
	}
	if iv.AlternateCollateral <= 0 {
		iv.AlternateCollateral = 5 * time.Second
	}
	if iv.AlternatePrice <= 0 {
		iv.AlternatePrice = 5 * time.Second
	}
}

// PositionSnapshot is the last successfully fetched position set for one
// exchange. Stale means the data outlived a full poll interval; it is a
// display hint only and never blocks trading.
type PositionSnapshot struct {
	Exchange  string
	Positions []exchange.Position
	FetchedAt time.Time
	Stale     bool
}

// CollateralSnapshot is the last successfully fetched collateral total for
// one exchange. Multi-venue totals are already summed by the provider.
type CollateralSnapshot struct {
	Exchange   string
	Collateral string
	FetchedAt  time.Time
	Stale      bool
}

// Reconciler keeps display state in sync with the exchanges: positions and
// collateral per visible exchange, and reference prices into the shared quote
// cache. Hidden exchanges are skipped; their last snapshot ages into
// staleness. Fetch failures keep the previous snapshot.
type Reconciler struct {
	term      *Terminal
	intervals Intervals
	clock     func() time.Time

	mu               sync.RWMutex
	positions        map[string]PositionSnapshot
	collateral       map[string]CollateralSnapshot
	stateMaxAge      map[string]time.Duration
	collateralMaxAge map[string]time.Duration
}

// NewReconciler builds a reconciler over the terminal's registry and quote
// cache.
func NewReconciler(t *Terminal, intervals Intervals) *Reconciler {
	intervals.applyDefaults()
	return &Reconciler{
		term:             t,
		intervals:        intervals,
		clock:            time.Now,
		positions:        make(map[string]PositionSnapshot),
		collateral:       make(map[string]CollateralSnapshot),
		stateMaxAge:      make(map[string]time.Duration),
		collateralMaxAge: make(map[string]time.Duration),
	}
}

// Run starts the poll loops and blocks until the context is cancelled.
func (r *Reconciler) Run(ctx context.Context) {
	var wg sync.WaitGroup
	registry := r.term.registry

	for _, name := range registry.Names() {
		entry, _ := registry.Entry(name)
		if entry.Provider == nil {
			continue
		}

		stateEvery := r.intervals.AlternateState
		collateralEvery := r.intervals.AlternateCollateral
		if entry.Family == exchange.FamilyNative {
			stateEvery = r.intervals.NativeState
			collateralEvery = stateEvery
		}
		r.mu.Lock()
		r.stateMaxAge[name] = stateEvery
		r.collateralMaxAge[name] = collateralEvery
		r.mu.Unlock()

		wg.Add(1)
		go func() {
			defer wg.Done()
			r.loop(ctx, stateEvery, func() { r.pollState(ctx, name, entry) })
		}()

		if entry.Family == exchange.FamilyNative {
			continue
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.loop(ctx, r.intervals.AlternateCollateral, func() { r.pollCollateral(ctx, name, entry) })
		}()
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.loop(ctx, r.intervals.AlternatePrice, func() { r.pollPrice(ctx, name, entry) })
		}()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		r.loop(ctx, r.intervals.NativePrice, func() { r.pollNativePrices(ctx) })
	}()

	wg.Wait()
}

func (r *Reconciler) loop(ctx context.Context, every time.Duration, tick func()) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	tick()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			tick()
		}
	}
}

// pollState refreshes positions for one exchange, and collateral too on
// native platforms where both come from the same account query cadence.
func (r *Reconciler) pollState(ctx context.Context, name string, entry *exchange.Entry) {
	if !r.term.registry.Visible(name) {
		return
	}
	positions, err := entry.Provider.GetPositions(ctx)
	if err != nil {
		logx.Errorf("reconciler: %s positions: %v", name, err)
	} else {
		r.mu.Lock()
		r.positions[name] = PositionSnapshot{Exchange: name, Positions: positions, FetchedAt: r.clock()}
		r.mu.Unlock()
	}
	if entry.Family == exchange.FamilyNative {
		r.pollCollateral(ctx, name, entry)
	}
}

func (r *Reconciler) pollCollateral(ctx context.Context, name string, entry *exchange.Entry) {
	if !r.term.registry.Visible(name) {
		return
	}
	collateral, err := entry.Provider.GetCollateral(ctx)
	if err != nil {
		logx.Errorf("reconciler: %s collateral: %v", name, err)
		return
	}
	r.mu.Lock()
	r.collateral[name] = CollateralSnapshot{Exchange: name, Collateral: collateral, FetchedAt: r.clock()}
	r.mu.Unlock()
}

// pollPrice refreshes the reference price for an alternate exchange's card
// symbol.
func (r *Reconciler) pollPrice(ctx context.Context, name string, entry *exchange.Entry) {
	if !r.term.registry.Visible(name) {
		return
	}
	card, ok := r.term.Card(name)
	if !ok {
		return
	}
	symbol := card.Snapshot().Symbol
	if symbol == "" {
		return
	}
	price, err := entry.Provider.GetMarkPrice(ctx, symbol)
	if err != nil {
		logx.Errorf("reconciler: %s mark price %s: %v", name, symbol, err)
		return
	}
	r.term.quotes.Set(name, symbol, price)
}

// pollNativePrices fetches each distinct symbol once through the first
// visible native exchange and fans the quote out to every visible native
// card using that symbol. Same-platform exchanges share one price feed.
func (r *Reconciler) pollNativePrices(ctx context.Context) {
	registry := r.term.registry
	source, ok := registry.FirstNative()
	if !ok {
		return
	}

	bySymbol := make(map[string][]string)
	for _, name := range registry.VisibleNames() {
		if !registry.IsNativeFamily(name) {
			continue
		}
		card, ok := r.term.Card(name)
		if !ok {
			continue
		}
		if symbol := card.Snapshot().Symbol; symbol != "" {
			bySymbol[symbol] = append(bySymbol[symbol], name)
		}
	}

	for symbol, names := range bySymbol {
		price, err := source.Provider.GetMarkPrice(ctx, symbol)
		if err != nil {
			logx.Errorf("reconciler: %s mark price %s: %v", source.Name, symbol, err)
			continue
		}
		for _, name := range names {
			r.term.quotes.Set(name, symbol, price)
		}
	}
}

// Positions returns the last position snapshot for an exchange, marking it
// stale once it outlives a full poll interval.
func (r *Reconciler) Positions(name string) (PositionSnapshot, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	snap, ok := r.positions[name]
	if !ok {
		return PositionSnapshot{}, false
	}
	snap.Stale = r.staleLocked(r.stateMaxAge, name, snap.FetchedAt)
	return snap, true
}

// Collateral returns the last collateral snapshot for an exchange.
func (r *Reconciler) Collateral(name string) (CollateralSnapshot, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	snap, ok := r.collateral[name]
	if !ok {
		return CollateralSnapshot{}, false
	}
	snap.Stale = r.staleLocked(r.collateralMaxAge, name, snap.FetchedAt)
	return snap, true
}

// staleLocked compares a snapshot's age against the poll interval of its own
// kind: collateral on alternate platforms runs a slower cadence than state.
func (r *Reconciler) staleLocked(maxAges map[string]time.Duration, name string, fetchedAt time.Time) bool {
	maxAge, ok := maxAges[name]
	if !ok || maxAge <= 0 {
		return false
	}
	return r.clock().Sub(fetchedAt) > maxAge
}
