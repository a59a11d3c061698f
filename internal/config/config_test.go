package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	_ "perpdesk/pkg/exchange/sim"
)

func writeConfig(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_DefaultsAndSections(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "exchange.yaml", `
default: paper
providers:
  paper:
    type: sim
    visibility: visible
    defaults:
      symbol: BTC
      quantity: "0.1"
      side: long
`)
	path := writeConfig(t, dir, "perpdesk.yaml", `
Name: perpdesk
Host: 127.0.0.1
Port: 8901
Exchange:
  File: exchange.yaml
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "test", cfg.Env)
	assert.True(t, cfg.IsTestEnv())
	assert.Equal(t, "journal", cfg.JournalDir)
	assert.Equal(t, dir, cfg.BaseDir())

	opts := cfg.Terminal.Options()
	assert.Equal(t, 0.01, opts.Slippage)
	assert.Equal(t, 50*time.Millisecond, opts.Stagger)
	assert.Equal(t, 8, opts.MaxWorkers)
	assert.Equal(t, 10*time.Second, opts.OrderTimeout)
	assert.Equal(t, 5*time.Second, opts.QuoteMaxAge)

	intervals := cfg.Poll.Intervals()
	assert.Equal(t, 500*time.Millisecond, intervals.NativeState)
	assert.Equal(t, 5*time.Second, intervals.AlternatePrice)

	require.NotNil(t, cfg.Exchange.Value)
	assert.Equal(t, "paper", cfg.Exchange.Value.Default)
	require.Contains(t, cfg.Exchange.Value.Providers, "paper")
	assert.Equal(t, "BTC", cfg.Exchange.Value.Providers["paper"].Defaults.Symbol)
}

func TestLoad_Overrides(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, "perpdesk.yaml", `
Name: perpdesk
Host: 127.0.0.1
Port: 8901
Env: prod
JournalDir: /var/log/perpdesk
Terminal:
  Slippage: 0.02
  Stagger: 100ms
  OrderTimeout: 3s
Poll:
  NativeState: 250ms
`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "prod", cfg.Env)
	assert.False(t, cfg.IsTestEnv())
	assert.Equal(t, "/var/log/perpdesk", cfg.JournalDir)
	assert.Equal(t, 0.02, cfg.Terminal.Options().Slippage)
	assert.Equal(t, 100*time.Millisecond, cfg.Terminal.Options().Stagger)
	assert.Equal(t, 3*time.Second, cfg.Terminal.Options().OrderTimeout)
	assert.Equal(t, 250*time.Millisecond, cfg.Poll.Intervals().NativeState)
}

func TestLoad_Invalid(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name string
		body string
	}{
		{"bad env", "Name: perpdesk\nHost: 127.0.0.1\nPort: 8901\nEnv: staging\n"},
		{"bad stagger", "Name: perpdesk\nHost: 127.0.0.1\nPort: 8901\nTerminal:\n  Stagger: soon\n"},
		{"bad slippage", "Name: perpdesk\nHost: 127.0.0.1\nPort: 8901\nTerminal:\n  Slippage: 1.5\n"},
		{"bad poll", "Name: perpdesk\nHost: 127.0.0.1\nPort: 8901\nPoll:\n  NativePrice: fast\n"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			path := writeConfig(t, dir, "bad-"+tc.name+".yaml", tc.body)
			_, err := Load(path)
			assert.Error(t, err)
		})
	}
}

func TestLoad_MissingExchangeFile(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, "perpdesk.yaml", `
Name: perpdesk
Host: 127.0.0.1
Port: 8901
Exchange:
  File: nowhere.yaml
`)

	_, err := Load(path)
	assert.Error(t, err)
}
