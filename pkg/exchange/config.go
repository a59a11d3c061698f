package exchange

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// Config captures configuration for one or more exchange providers.
type Config struct {
	Default string `yaml:"default"`

	// FeeRate is the global builder-fee fallback, as "limit market"
	// integer tiers (tenths of a basis point). A single value applies to
	// both order kinds.
	FeeRate string `yaml:"fee_rate"`

	Providers map[string]*ProviderConfig `yaml:"providers"`
}

// CardDefaults seeds the initial trading card for one exchange.
type CardDefaults struct {
	Symbol    string `yaml:"symbol"`
	Quantity  string `yaml:"quantity"`
	Price     string `yaml:"price"`
	OrderType string `yaml:"order_type"` // "market" or "limit"
	Side      string `yaml:"side"`       // "long", "short" or "off"
	Group     int    `yaml:"group"`      // 0-5
}

// ProviderConfig describes how to construct a specific exchange provider
// instance plus the static card/fee parameters attached to it.
type ProviderConfig struct {
	Type       string     `yaml:"type"`
	Visibility Visibility `yaml:"visibility"`

	PrivateKey   string `yaml:"private_key"`
	APIKey       string `yaml:"api_key"`
	APISecret    string `yaml:"api_secret"`
	VaultAddress string `yaml:"vault_address"`
	MainAddress  string `yaml:"main_address"` // Main account address (for API wallet scenarios)
	Testnet      bool   `yaml:"testnet"`

	// Builder-fee schedule. FeeRate overrides the global default;
	// VenueFeeRates overrides per venue route (key = route name).
	BuilderCode   string            `yaml:"builder_code"`
	FeeRate       string            `yaml:"fee_rate"`
	VenueFeeRates map[string]string `yaml:"venue_fee_rates"`

	// VenueRoutes lists auxiliary venue routes sharing this account.
	// Their collateral is folded into the exchange's single total.
	VenueRoutes []string `yaml:"venue_routes"`

	Defaults CardDefaults `yaml:"defaults"`

	TimeoutRaw string        `yaml:"timeout"`
	Timeout    time.Duration `yaml:"-"`
}

// FeePair is a parsed "limit market" builder-fee tier pair.
type FeePair struct {
	Limit  int
	Market int
}

// ProviderBuilder constructs a Provider from configuration.
type ProviderBuilder func(name string, cfg *ProviderConfig) (Provider, error)

type providerEntry struct {
	family  Family
	builder ProviderBuilder
}

var (
	providerRegistry   = make(map[string]providerEntry)
	providerRegistryMu sync.RWMutex
)

// RegisterProvider associates a builder and its platform family with an
// exchange provider type.
func RegisterProvider(typeName string, family Family, builder ProviderBuilder) {
	providerRegistryMu.Lock()
	defer providerRegistryMu.Unlock()
	providerRegistry[strings.ToLower(strings.TrimSpace(typeName))] = providerEntry{
		family:  family,
		builder: builder,
	}
}

func lookupProviderEntry(typeName string) (providerEntry, bool) {
	providerRegistryMu.RLock()
	defer providerRegistryMu.RUnlock()
	entry, ok := providerRegistry[strings.ToLower(strings.TrimSpace(typeName))]
	return entry, ok
}

// FamilyOf reports the platform family registered for a provider type.
func FamilyOf(typeName string) (Family, bool) {
	entry, ok := lookupProviderEntry(typeName)
	if !ok {
		return "", false
	}
	return entry.family, true
}

// LoadConfig reads configuration from disk.
func LoadConfig(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open exchange config: %w", err)
	}
	defer file.Close()
	return LoadConfigFromReader(file)
}

// LoadConfigFromReader constructs a Config from an io.Reader.
func LoadConfigFromReader(r io.Reader) (*Config, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read exchange config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("unmarshal exchange config: %w", err)
	}
	if err := cfg.normalise(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) normalise() error {
	if c.Providers == nil {
		c.Providers = make(map[string]*ProviderConfig)
	}
	c.FeeRate = strings.TrimSpace(os.ExpandEnv(c.FeeRate))
	for name, provider := range c.Providers {
		if provider == nil {
			provider = &ProviderConfig{}
			c.Providers[name] = provider
		}
		provider.expandEnv()
		provider.applyDefaults()
		if err := provider.parseDurations(name); err != nil {
			return err
		}
	}
	return nil
}

func (p *ProviderConfig) expandEnv() {
	p.Type = strings.TrimSpace(os.ExpandEnv(p.Type))
	p.PrivateKey = strings.TrimSpace(os.ExpandEnv(p.PrivateKey))
	p.APIKey = strings.TrimSpace(os.ExpandEnv(p.APIKey))
	p.APISecret = strings.TrimSpace(os.ExpandEnv(p.APISecret))
	p.VaultAddress = strings.TrimSpace(os.ExpandEnv(p.VaultAddress))
	p.MainAddress = strings.TrimSpace(os.ExpandEnv(p.MainAddress))
	p.BuilderCode = strings.TrimSpace(os.ExpandEnv(p.BuilderCode))
	p.FeeRate = strings.TrimSpace(os.ExpandEnv(p.FeeRate))
	p.TimeoutRaw = strings.TrimSpace(os.ExpandEnv(p.TimeoutRaw))
	for route, pair := range p.VenueFeeRates {
		p.VenueFeeRates[route] = strings.TrimSpace(os.ExpandEnv(pair))
	}
}

func (p *ProviderConfig) applyDefaults() {
	if p.Visibility == "" {
		p.Visibility = VisibilityVisible
	}
	if p.Defaults.OrderType == "" {
		p.Defaults.OrderType = "market"
	}
	if p.Defaults.Side == "" {
		p.Defaults.Side = "off"
	}
}

func (p *ProviderConfig) parseDurations(name string) error {
	if p.TimeoutRaw == "" {
		p.Timeout = 0
		return nil
	}
	d, err := time.ParseDuration(p.TimeoutRaw)
	if err != nil {
		return fmt.Errorf("exchange provider %s: invalid timeout %q: %w", name, p.TimeoutRaw, err)
	}
	if d <= 0 {
		return fmt.Errorf("exchange provider %s: timeout must be positive, got %s", name, d)
	}
	p.Timeout = d
	return nil
}

// Validate ensures all providers have sane configuration. Credential checks
// are deliberately not performed here: a missing credential must disable one
// exchange at build time, not fail the whole load.
func (c *Config) Validate() error {
	if len(c.Providers) == 0 {
		return fmt.Errorf("exchange config: providers cannot be empty")
	}
	if c.Default != "" {
		if _, ok := c.Providers[c.Default]; !ok {
			return fmt.Errorf("exchange config: default provider %q not defined", c.Default)
		}
	}
	if c.FeeRate != "" {
		if _, err := ParseFeePair(c.FeeRate); err != nil {
			return fmt.Errorf("exchange config: global fee_rate: %w", err)
		}
	}

	for name, provider := range c.Providers {
		if strings.TrimSpace(name) == "" {
			return fmt.Errorf("exchange config: provider name cannot be empty")
		}
		if err := provider.validate(name); err != nil {
			return err
		}
	}
	return nil
}

func (p *ProviderConfig) validate(name string) error {
	if p == nil {
		return fmt.Errorf("exchange config: provider %s is nil", name)
	}
	if strings.TrimSpace(p.Type) == "" {
		return fmt.Errorf("exchange config: provider %s must specify type", name)
	}
	switch p.Visibility {
	case VisibilityVisible, VisibilityHidden, VisibilityDisabled:
	default:
		return fmt.Errorf("exchange config: provider %s has invalid visibility %q", name, p.Visibility)
	}
	if p.FeeRate != "" {
		if _, err := ParseFeePair(p.FeeRate); err != nil {
			return fmt.Errorf("exchange config: provider %s fee_rate: %w", name, err)
		}
	}
	for route, pair := range p.VenueFeeRates {
		if _, err := ParseFeePair(pair); err != nil {
			return fmt.Errorf("exchange config: provider %s venue_fee_rates[%s]: %w", name, route, err)
		}
	}
	if g := p.Defaults.Group; g < 0 || g > 5 {
		return fmt.Errorf("exchange config: provider %s default group %d out of range 0-5", name, g)
	}
	switch strings.ToLower(p.Defaults.OrderType) {
	case "market", "limit":
	default:
		return fmt.Errorf("exchange config: provider %s invalid default order_type %q", name, p.Defaults.OrderType)
	}
	switch strings.ToLower(p.Defaults.Side) {
	case "long", "short", "off":
	default:
		return fmt.Errorf("exchange config: provider %s invalid default side %q", name, p.Defaults.Side)
	}
	return nil
}

// ParseFeePair parses a "limit market" tier pair. A single value applies to
// both kinds.
func ParseFeePair(raw string) (FeePair, error) {
	fields := strings.Fields(strings.TrimSpace(raw))
	switch len(fields) {
	case 1:
		v, err := strconv.Atoi(fields[0])
		if err != nil || v < 0 {
			return FeePair{}, fmt.Errorf("invalid fee tier %q", fields[0])
		}
		return FeePair{Limit: v, Market: v}, nil
	case 2:
		limit, err := strconv.Atoi(fields[0])
		if err != nil || limit < 0 {
			return FeePair{}, fmt.Errorf("invalid limit fee tier %q", fields[0])
		}
		market, err := strconv.Atoi(fields[1])
		if err != nil || market < 0 {
			return FeePair{}, fmt.Errorf("invalid market fee tier %q", fields[1])
		}
		return FeePair{Limit: limit, Market: market}, nil
	default:
		return FeePair{}, fmt.Errorf("fee pair %q must be one or two integers", raw)
	}
}

// ResolveFeePair returns the builder-fee tiers for a provider and venue
// route. Precedence: venue-specific rate, provider default, global default.
func (c *Config) ResolveFeePair(name, route string) (FeePair, bool) {
	provider, ok := c.Providers[name]
	if !ok {
		return FeePair{}, false
	}
	if route != "" {
		if raw, ok := provider.VenueFeeRates[route]; ok {
			if pair, err := ParseFeePair(raw); err == nil {
				return pair, true
			}
		}
	}
	if provider.FeeRate != "" {
		if pair, err := ParseFeePair(provider.FeeRate); err == nil {
			return pair, true
		}
	}
	if c.FeeRate != "" {
		if pair, err := ParseFeePair(c.FeeRate); err == nil {
			return pair, true
		}
	}
	return FeePair{}, false
}
