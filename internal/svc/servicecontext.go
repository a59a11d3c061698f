package svc

import (
	"context"
	"fmt"
	"time"

	"github.com/zeromicro/go-zero/core/logx"

	"perpdesk/internal/config"
	"perpdesk/pkg/exchange"
	_ "perpdesk/pkg/exchange/binance"
	"perpdesk/pkg/exchange/hyperliquid"
	_ "perpdesk/pkg/exchange/sim"
	"perpdesk/pkg/journal"
	"perpdesk/pkg/terminal"
)

const midsBridgeInterval = 500 * time.Millisecond

// ServiceContext wires the terminal's runtime pieces: the provider registry,
// the command surface, the reconciler, the event journal and the shared
// native-platform mids feed.
type ServiceContext struct {
	Config         *config.Config
	ExchangeConfig *exchange.Config
	Registry       *exchange.Registry
	Journal        *journal.Writer
	Events         *terminal.EventSink
	Terminal       *terminal.Terminal
	Reconciler     *terminal.Reconciler
	MidsFeed       *hyperliquid.MidsFeed
}

func NewServiceContext(c *config.Config) (*ServiceContext, error) {
	exchangeCfg := c.Exchange.Value
	if exchangeCfg == nil {
		return nil, fmt.Errorf("svc: exchange configuration is required")
	}
	if c.IsTestEnv() {
		for _, provider := range exchangeCfg.Providers {
			provider.Testnet = true
		}
	}

	registry, err := exchange.BuildRegistry(exchangeCfg)
	if err != nil {
		return nil, fmt.Errorf("svc: build exchange registry: %w", err)
	}
	for _, name := range registry.Names() {
		if entry, _ := registry.Entry(name); entry.Err != nil {
			logx.Errorf("svc: exchange %s unavailable: %v", name, entry.Err)
		}
	}

	journalWriter, err := journal.Open(c.JournalDir)
	if err != nil {
		return nil, fmt.Errorf("svc: open journal: %w", err)
	}

	sink := terminal.NewEventSink(journalWriter)
	term := terminal.New(registry, terminal.NewQuoteCache(), sink, c.Terminal.Options())

	svc := &ServiceContext{
		Config:         c,
		ExchangeConfig: exchangeCfg,
		Registry:       registry,
		Journal:        journalWriter,
		Events:         sink,
		Terminal:       term,
		Reconciler:     terminal.NewReconciler(term, c.Poll.Intervals()),
	}

	// One websocket mids feed serves every native-family card.
	for _, name := range registry.Names() {
		if !registry.IsNativeFamily(name) {
			continue
		}
		entry, _ := registry.Entry(name)
		if entry.Provider == nil {
			continue
		}
		svc.MidsFeed = hyperliquid.NewMidsFeed(entry.Config.Testnet, nil)
		if p, ok := entry.Provider.(*hyperliquid.Provider); ok {
			p.Client().AttachMidsFeed(svc.MidsFeed)
		}
		break
	}
	return svc, nil
}

// Run starts the background loops and blocks until the context is cancelled.
func (s *ServiceContext) Run(ctx context.Context) {
	if s.MidsFeed != nil {
		go s.MidsFeed.Run(ctx)
		go s.bridgeMids(ctx)
	}
	s.Reconciler.Run(ctx)
}

// bridgeMids copies live mids from the shared feed into the quote cache for
// every visible native card.
func (s *ServiceContext) bridgeMids(ctx context.Context) {
	ticker := time.NewTicker(midsBridgeInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		for _, name := range s.Registry.VisibleNames() {
			if !s.Registry.IsNativeFamily(name) {
				continue
			}
			card, ok := s.Terminal.Card(name)
			if !ok {
				continue
			}
			symbol := card.Snapshot().Symbol
			if symbol == "" {
				continue
			}
			_, coin := exchange.SplitRoute(symbol)
			mid, updated, ok := s.MidsFeed.Mid(coin)
			if !ok || time.Since(updated) > 10*time.Second {
				continue
			}
			s.Terminal.Quotes().Set(name, symbol, mid)
		}
	}
}

// Close releases runtime resources.
func (s *ServiceContext) Close() {
	s.Terminal.Close()
	if err := s.Journal.Close(); err != nil {
		logx.Errorf("svc: close journal: %v", err)
	}
}
