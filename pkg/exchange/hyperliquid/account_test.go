package hyperliquid

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"perpdesk/pkg/exchange"
)

// newAccountServer varies clearinghouse responses by dex scope so multi-venue
// aggregation can be exercised against one endpoint.
func newAccountServer(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req InfoRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Equal(t, "clearinghouseState", req.Type)
		require.NotEmpty(t, req.User)
		w.WriteHeader(http.StatusOK)
		switch req.Dex {
		case "":
			w.Write([]byte(`{
				"marginSummary": {"accountValue": "1000.50", "totalMarginUsed": "120"},
				"assetPositions": [
					{"position": {"coin": "BTC", "szi": "0.5", "entryPx": "48000", "unrealizedPnl": "1000"}}
				]
			}`))
		case "flx":
			w.Write([]byte(`{
				"marginSummary": {"accountValue": "249.500000", "totalMarginUsed": "0"},
				"assetPositions": [
					{"position": {"coin": "DOGE", "szi": "-150", "entryPx": "0.25", "unrealizedPnl": "-2"}}
				]
			}`))
		default:
			w.WriteHeader(http.StatusBadRequest)
		}
	}))
}

func TestGetCollateral_SumsVenueRoutes(t *testing.T) {
	server := newAccountServer(t)
	defer server.Close()

	client, err := NewClient(testPrivateKey, false, WithVenueRoutes([]string{"flx"}))
	require.NoError(t, err)
	client.infoURL = server.URL

	total, err := client.GetCollateral(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "1250", total)
}

func TestGetCollateral_AuxiliaryVenueFailureSkipped(t *testing.T) {
	server := newAccountServer(t)
	defer server.Close()

	client, err := NewClient(testPrivateKey, false, WithVenueRoutes([]string{"flx", "broken"}))
	require.NoError(t, err)
	client.infoURL = server.URL

	total, err := client.GetCollateral(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "1250", total)
}

func TestGetCollateral_MainVenueFailureFatal(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	client, err := NewClient(testPrivateKey, false)
	require.NoError(t, err)
	client.infoURL = server.URL

	_, err = client.GetCollateral(context.Background())
	assert.Error(t, err)
}

func TestGetPositions_RoutePrefix(t *testing.T) {
	server := newAccountServer(t)
	defer server.Close()

	client, err := NewClient(testPrivateKey, false, WithVenueRoutes([]string{"flx"}))
	require.NoError(t, err)
	client.infoURL = server.URL

	positions, err := client.GetPositions(context.Background())
	require.NoError(t, err)
	require.Len(t, positions, 2)
	assert.Equal(t, "BTC", positions[0].Coin)
	assert.Equal(t, "0.5", positions[0].Szi)
	assert.Equal(t, "flx:DOGE", positions[1].Coin)
	assert.Equal(t, "-150", positions[1].Szi)
}

func TestTransferCollateral(t *testing.T) {
	var captured ExchangeRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status": "ok"}`))
	}))
	defer server.Close()

	client, err := NewClient(testPrivateKey, false)
	require.NoError(t, err)
	client.exchangeURL = server.URL

	require.NoError(t, client.TransferCollateral(context.Background(), true, "250.5"))
	assert.Equal(t, ActionTypeUsdClassTransfer, captured.Action.Type)
	assert.Equal(t, "250.5", captured.Action.Amount)
	require.NotNil(t, captured.Action.ToPerp)
	assert.True(t, *captured.Action.ToPerp)
	assert.NotZero(t, captured.Action.Nonce)
}

func TestTransferCollateral_InvalidAmount(t *testing.T) {
	client, err := NewClient(testPrivateKey, false)
	require.NoError(t, err)

	for _, amount := range []string{"", "0", "-5", "abc"} {
		err := client.TransferCollateral(context.Background(), false, amount)
		assert.ErrorIs(t, err, exchange.ErrTransfer, "amount %q", amount)
	}
}
