package config

import (
	"fmt"
	"path/filepath"

	"perpdesk/pkg/exchange"
)

// MustLoadExchange loads etc/exchange.yaml from the project root and panics on
// error. It isolates exchange config so tests needing only the providers do
// not pull in the full app config.
func MustLoadExchange() *exchange.Config {
	root := MustProjectRoot()
	path := filepath.Join(root, "etc", "exchange.yaml")
	cfg, err := exchange.LoadConfig(path)
	if err != nil {
		panic(fmt.Errorf("load exchange config %s: %w", path, err))
	}
	return cfg
}

// MustBuildExchangeRegistry loads exchange config from the default path and
// builds the provider registry.
func MustBuildExchangeRegistry() *exchange.Registry {
	cfg := MustLoadExchange()
	registry, err := exchange.BuildRegistry(cfg)
	if err != nil {
		panic(err)
	}
	return registry
}
