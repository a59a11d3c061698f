package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/zeromicro/go-zero/core/conf"
	"github.com/zeromicro/go-zero/rest"

	"perpdesk/pkg/confkit"
	"perpdesk/pkg/exchange"
	"perpdesk/pkg/terminal"
)

// TerminalConf tunes order execution. Durations are parsed during Validate.
// A zero Slippage means unset and takes the 1% default.
type TerminalConf struct {
	Slippage     float64 `json:",default=0.01"`
	Stagger      string  `json:",default=50ms"`
	MaxWorkers   int     `json:",default=8"`
	OrderTimeout string  `json:",default=10s"`
	QuoteMaxAge  string  `json:",default=5s"`

	stagger      time.Duration
	orderTimeout time.Duration
	quoteMaxAge  time.Duration
}

// Options converts the section into terminal execution options.
func (t *TerminalConf) Options() terminal.Options {
	return terminal.Options{
		Slippage:     t.Slippage,
		Stagger:      t.stagger,
		MaxWorkers:   t.MaxWorkers,
		OrderTimeout: t.orderTimeout,
		QuoteMaxAge:  t.quoteMaxAge,
	}
}

// PollConf sets the reconciler cadence per platform family.
type PollConf struct {
	NativeState         string `json:",default=500ms"`
	NativePrice         string `json:",default=1s"`
	AlternateState      string `json:",default=2s"`
	AlternateCollateral string `json:",default=5s"`
	AlternatePrice      string `json:",default=5s"`

	intervals terminal.Intervals
}

// Intervals converts the section into reconciler intervals.
func (p *PollConf) Intervals() terminal.Intervals {
	return p.intervals
}

type Config struct {
	rest.RestConf
	// Env indicates the running environment: test | dev | prod.
	// Test mode forces every exchange provider onto testnet endpoints.
	Env        string `json:",default=test"`
	JournalDir string `json:",default=journal"`

	Terminal TerminalConf `json:",optional"`
	Poll     PollConf     `json:",optional"`

	Exchange confkit.Section[exchange.Config] `json:",optional"`

	mainPath string
	baseDir  string
}

func (c *Config) IsTestEnv() bool {
	return c.Env == "test" || c.Env == ""
}

func MustLoad(path string) *Config {
	cfg, err := Load(path)
	if err != nil {
		panic(err)
	}
	return cfg
}

func Load(path string) (*Config, error) {
	confkit.LoadDotenvOnce()

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve config path %s: %w", path, err)
	}

	var cfg Config
	if err := conf.Load(absPath, &cfg, conf.UseEnv()); err != nil {
		return nil, fmt.Errorf("load config %s: %w", absPath, err)
	}

	cfg.mainPath = absPath
	cfg.baseDir = filepath.Dir(absPath)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := cfg.hydrateSections(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// fillDefaults applies the documented section defaults. conf.Load skips the
// nested default tags when an optional parent section is absent from the
// yaml, so zero values here mean "not configured".
func (c *Config) fillDefaults() {
	t := &c.Terminal
	if t.Slippage == 0 {
		t.Slippage = 0.01
	}
	if strings.TrimSpace(t.Stagger) == "" {
		t.Stagger = "50ms"
	}
	if t.MaxWorkers == 0 {
		t.MaxWorkers = 8
	}
	if strings.TrimSpace(t.OrderTimeout) == "" {
		t.OrderTimeout = "10s"
	}
	if strings.TrimSpace(t.QuoteMaxAge) == "" {
		t.QuoteMaxAge = "5s"
	}

	p := &c.Poll
	if strings.TrimSpace(p.NativeState) == "" {
		p.NativeState = "500ms"
	}
	if strings.TrimSpace(p.NativePrice) == "" {
		p.NativePrice = "1s"
	}
	if strings.TrimSpace(p.AlternateState) == "" {
		p.AlternateState = "2s"
	}
	if strings.TrimSpace(p.AlternateCollateral) == "" {
		p.AlternateCollateral = "5s"
	}
	if strings.TrimSpace(p.AlternatePrice) == "" {
		p.AlternatePrice = "5s"
	}
}

func (c *Config) Validate() error {
	c.fillDefaults()
	switch strings.ToLower(strings.TrimSpace(c.Env)) {
	case "", "test", "dev", "prod":
		if strings.TrimSpace(c.Env) == "" {
			c.Env = "test"
		}
	default:
		return errors.New("config: env must be one of test|dev|prod")
	}
	if strings.TrimSpace(c.JournalDir) == "" {
		return errors.New("config: journalDir is required")
	}
	if c.Terminal.Slippage < 0 || c.Terminal.Slippage >= 1 {
		return errors.New("config: terminal.slippage must be in [0, 1)")
	}
	if err := c.parseDurations(); err != nil {
		return err
	}
	return nil
}

func (c *Config) parseDurations() error {
	parse := func(field, raw string, dst *time.Duration) error {
		if strings.TrimSpace(raw) == "" {
			return nil
		}
		d, err := time.ParseDuration(raw)
		if err != nil || d < 0 {
			return fmt.Errorf("config: %s %q is not a valid duration", field, raw)
		}
		*dst = d
		return nil
	}

	t := &c.Terminal
	if err := parse("terminal.stagger", t.Stagger, &t.stagger); err != nil {
		return err
	}
	if err := parse("terminal.orderTimeout", t.OrderTimeout, &t.orderTimeout); err != nil {
		return err
	}
	if err := parse("terminal.quoteMaxAge", t.QuoteMaxAge, &t.quoteMaxAge); err != nil {
		return err
	}

	p := &c.Poll
	pairs := []struct {
		field string
		raw   string
		dst   *time.Duration
	}{
		{"poll.nativeState", p.NativeState, &p.intervals.NativeState},
		{"poll.nativePrice", p.NativePrice, &p.intervals.NativePrice},
		{"poll.alternateState", p.AlternateState, &p.intervals.AlternateState},
		{"poll.alternateCollateral", p.AlternateCollateral, &p.intervals.AlternateCollateral},
		{"poll.alternatePrice", p.AlternatePrice, &p.intervals.AlternatePrice},
	}
	for _, pair := range pairs {
		if err := parse(pair.field, pair.raw, pair.dst); err != nil {
			return err
		}
	}
	return nil
}

func (c *Config) hydrateSections() error {
	if err := c.Exchange.Hydrate(c.baseDir, exchange.LoadConfig); err != nil {
		return fmt.Errorf("load exchange config: %w", err)
	}
	return nil
}

func (c *Config) MainPath() string {
	return c.mainPath
}

func (c *Config) BaseDir() string {
	return c.baseDir
}
