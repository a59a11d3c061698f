package exchange

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// Entry is one exchange slot in the registry. Provider is nil when the
// exchange is disabled or its construction failed; Err then carries the
// ErrConfiguration detail.
type Entry struct {
	Name     string
	Config   *ProviderConfig
	Family   Family
	Provider Provider
	Err      error
}

// Registry owns one provider per configured, non-disabled exchange and the
// runtime visibility state of each slot. A misconfigured exchange is recorded
// as a no-client entry; it never blocks the others.
type Registry struct {
	cfg   *Config
	order []string

	mu      sync.RWMutex
	entries map[string]*Entry
	visible map[string]bool
}

// BuildRegistry instantiates providers for every configured exchange.
// Construction failures are isolated per name and surfaced on the entry.
func BuildRegistry(cfg *Config) (*Registry, error) {
	if cfg == nil || len(cfg.Providers) == 0 {
		return nil, fmt.Errorf("exchange registry: empty config")
	}

	names := make([]string, 0, len(cfg.Providers))
	for name := range cfg.Providers {
		names = append(names, name)
	}
	sort.Strings(names)

	reg := &Registry{
		cfg:     cfg,
		order:   names,
		entries: make(map[string]*Entry, len(names)),
		visible: make(map[string]bool, len(names)),
	}
	for _, name := range names {
		providerCfg := cfg.Providers[name]
		entry := &Entry{Name: name, Config: providerCfg}
		reg.entries[name] = entry
		reg.visible[name] = providerCfg.Visibility == VisibilityVisible

		if providerCfg.Visibility == VisibilityDisabled {
			entry.Err = ConfigErrorf("provider %s disabled by configuration", name)
			continue
		}
		regEntry, ok := lookupProviderEntry(providerCfg.Type)
		if !ok {
			entry.Err = ConfigErrorf("provider %s has unsupported type %q", name, providerCfg.Type)
			continue
		}
		entry.Family = regEntry.family
		provider, err := regEntry.builder(name, providerCfg)
		if err != nil {
			entry.Err = fmt.Errorf("%w: provider %s: %v", ErrConfiguration, name, err)
			continue
		}
		entry.Provider = provider
	}
	return reg, nil
}

// Names returns every configured exchange name in stable order.
func (r *Registry) Names() []string {
	return append([]string(nil), r.order...)
}

// VisibleNames returns the exchanges currently shown, in stable order.
func (r *Registry) VisibleNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.order))
	for _, name := range r.order {
		if r.visible[name] {
			out = append(out, name)
		}
	}
	return out
}

// Entry returns the registry slot for an exchange name.
func (r *Registry) Entry(name string) (*Entry, bool) {
	entry, ok := r.entries[name]
	return entry, ok
}

// Get returns a ready provider, or the entry's configuration error.
func (r *Registry) Get(name string) (Provider, error) {
	entry, ok := r.entries[name]
	if !ok {
		return nil, ConfigErrorf("unknown exchange %q", name)
	}
	if entry.Provider == nil {
		if entry.Err != nil {
			return nil, entry.Err
		}
		return nil, ConfigErrorf("exchange %s has no client", name)
	}
	return entry.Provider, nil
}

// IsNativeFamily reports whether the named exchange belongs to the
// native-perp platform family.
func (r *Registry) IsNativeFamily(name string) bool {
	entry, ok := r.entries[name]
	return ok && entry.Family == FamilyNative
}

// Visible reports the runtime visibility of one exchange.
func (r *Registry) Visible(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.visible[name]
}

// ToggleVisible flips the runtime visibility of one exchange and returns the
// new state. Disabled exchanges cannot be shown.
func (r *Registry) ToggleVisible(name string) (bool, error) {
	entry, ok := r.entries[name]
	if !ok {
		return false, ConfigErrorf("unknown exchange %q", name)
	}
	if entry.Config.Visibility == VisibilityDisabled {
		return false, ConfigErrorf("exchange %s is disabled", name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.visible[name] = !r.visible[name]
	return r.visible[name], nil
}

// ResolveFeePair resolves builder-fee tiers for an exchange and venue route.
func (r *Registry) ResolveFeePair(name, route string) (FeePair, bool) {
	return r.cfg.ResolveFeePair(name, route)
}

// Default returns the configured default exchange name, falling back to the
// first visible one.
func (r *Registry) Default() string {
	if r.cfg.Default != "" {
		return r.cfg.Default
	}
	if visible := r.VisibleNames(); len(visible) > 0 {
		return visible[0]
	}
	return ""
}

// FirstNative returns the first visible native-family exchange, used as the
// representative quote source shared across same-family cards.
func (r *Registry) FirstNative() (*Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, name := range r.order {
		if !r.visible[name] {
			continue
		}
		entry := r.entries[name]
		if entry.Family == FamilyNative && entry.Provider != nil {
			return entry, true
		}
	}
	return nil, false
}

// SplitRoute splits a "route:coin" symbol into its venue route and coin.
// Symbols without a route return an empty route.
func SplitRoute(symbol string) (route, coin string) {
	symbol = strings.TrimSpace(symbol)
	if idx := strings.Index(symbol, ":"); idx >= 0 {
		return strings.ToLower(strings.TrimSpace(symbol[:idx])), strings.TrimSpace(symbol[idx+1:])
	}
	return "", symbol
}
