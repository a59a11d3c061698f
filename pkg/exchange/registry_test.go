package exchange

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubProvider struct{ name string }

func (s *stubProvider) PlaceOrder(ctx context.Context, order Order) (*OrderResponse, error) {
	return &OrderResponse{Status: "ok"}, nil
}
func (s *stubProvider) CancelOrder(ctx context.Context, asset int, oid int64) error { return nil }
func (s *stubProvider) GetPositions(ctx context.Context) ([]Position, error)        { return nil, nil }
func (s *stubProvider) ClosePosition(ctx context.Context, coin string) (*OrderResponse, error) {
	return nil, nil
}
func (s *stubProvider) GetCollateral(ctx context.Context) (string, error) { return "0", nil }
func (s *stubProvider) TransferCollateral(ctx context.Context, toPerp bool, amount string) error {
	return nil
}
func (s *stubProvider) GetMarkPrice(ctx context.Context, coin string) (string, error) {
	return "0", nil
}
func (s *stubProvider) GetAssetIndex(ctx context.Context, coin string) (int, error) { return 0, nil }

func registerStubTypes(t *testing.T) {
	t.Helper()
	RegisterProvider("stub-native", FamilyNative, func(name string, cfg *ProviderConfig) (Provider, error) {
		if cfg.PrivateKey == "" {
			return nil, errors.New("missing private key")
		}
		return &stubProvider{name: name}, nil
	})
	RegisterProvider("stub-alt", FamilyAlternate, func(name string, cfg *ProviderConfig) (Provider, error) {
		return &stubProvider{name: name}, nil
	})
}

func registryConfig() *Config {
	return &Config{
		Default: "beta",
		FeeRate: "10",
		Providers: map[string]*ProviderConfig{
			"alpha":  {Type: "stub-native", Visibility: VisibilityVisible, PrivateKey: "0xabc"},
			"beta":   {Type: "stub-alt", Visibility: VisibilityVisible},
			"broken": {Type: "stub-native", Visibility: VisibilityVisible},
			"hidden": {Type: "stub-alt", Visibility: VisibilityHidden},
			"off":    {Type: "stub-alt", Visibility: VisibilityDisabled},
		},
	}
}

func TestBuildRegistry_FailureIsolation(t *testing.T) {
	registerStubTypes(t)

	reg, err := BuildRegistry(registryConfig())
	require.NoError(t, err)

	assert.Equal(t, []string{"alpha", "beta", "broken", "hidden", "off"}, reg.Names())

	// The broken exchange records its error without blocking the others.
	_, err = reg.Get("broken")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrConfiguration))

	provider, err := reg.Get("alpha")
	require.NoError(t, err)
	assert.NotNil(t, provider)

	provider, err = reg.Get("beta")
	require.NoError(t, err)
	assert.NotNil(t, provider)

	_, err = reg.Get("off")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrConfiguration))

	_, err = reg.Get("missing")
	assert.True(t, errors.Is(err, ErrConfiguration))
}

func TestBuildRegistry_UnsupportedType(t *testing.T) {
	registerStubTypes(t)

	reg, err := BuildRegistry(&Config{Providers: map[string]*ProviderConfig{
		"weird": {Type: "no-such-type", Visibility: VisibilityVisible},
	}})
	require.NoError(t, err)

	_, err = reg.Get("weird")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrConfiguration))
}

func TestRegistry_Visibility(t *testing.T) {
	registerStubTypes(t)

	reg, err := BuildRegistry(registryConfig())
	require.NoError(t, err)

	assert.Equal(t, []string{"alpha", "beta", "broken"}, reg.VisibleNames())
	assert.False(t, reg.Visible("hidden"))

	shown, err := reg.ToggleVisible("hidden")
	require.NoError(t, err)
	assert.True(t, shown)
	assert.Equal(t, []string{"alpha", "beta", "broken", "hidden"}, reg.VisibleNames())

	shown, err = reg.ToggleVisible("hidden")
	require.NoError(t, err)
	assert.False(t, shown)

	_, err = reg.ToggleVisible("off")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrConfiguration))
}

func TestRegistry_Families(t *testing.T) {
	registerStubTypes(t)

	reg, err := BuildRegistry(registryConfig())
	require.NoError(t, err)

	assert.True(t, reg.IsNativeFamily("alpha"))
	assert.False(t, reg.IsNativeFamily("beta"))

	entry, ok := reg.FirstNative()
	require.True(t, ok)
	assert.Equal(t, "alpha", entry.Name)
}

func TestRegistry_Default(t *testing.T) {
	registerStubTypes(t)

	reg, err := BuildRegistry(registryConfig())
	require.NoError(t, err)
	assert.Equal(t, "beta", reg.Default())

	cfg := registryConfig()
	cfg.Default = ""
	reg, err = BuildRegistry(cfg)
	require.NoError(t, err)
	assert.Equal(t, "alpha", reg.Default())
}
