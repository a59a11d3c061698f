package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zeromicro/go-zero/rest/pathvar"

	"perpdesk/internal/config"
	"perpdesk/internal/svc"
	"perpdesk/pkg/confkit"
	"perpdesk/pkg/exchange"
)

func newTestSvc(t *testing.T) *svc.ServiceContext {
	t.Helper()
	cfg := &config.Config{
		Env:        "test",
		JournalDir: t.TempDir(),
		Exchange: confkit.Section[exchange.Config]{
			Value: &exchange.Config{
				Default: "paper",
				Providers: map[string]*exchange.ProviderConfig{
					"paper": {
						Type:       "sim",
						Visibility: exchange.VisibilityVisible,
						Defaults: exchange.CardDefaults{
							Symbol:    "BTC",
							Quantity:  "1",
							OrderType: "market",
							Side:      "long",
						},
					},
				},
			},
		},
	}
	svcCtx, err := svc.NewServiceContext(cfg)
	require.NoError(t, err)
	t.Cleanup(svcCtx.Close)
	return svcCtx
}

func doRequest(handler http.HandlerFunc, method, target string, vars map[string]string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, target, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if vars != nil {
		req = pathvar.WithVars(req, vars)
	}
	rec := httptest.NewRecorder()
	handler(rec, req)
	return rec
}

func TestStatusHandler(t *testing.T) {
	svcCtx := newTestSvc(t)

	rec := doRequest(statusHandler(svcCtx), http.MethodGet, "/api/status", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp statusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "paper", resp.Default)
	require.Len(t, resp.Cards, 1)
	assert.Equal(t, "paper", resp.Cards[0].Exchange)
	assert.Equal(t, "BTC", resp.Cards[0].Symbol)
	assert.Equal(t, "longPending", resp.Cards[0].State)
	assert.Equal(t, string(exchange.FamilyAlternate), resp.Cards[0].Family)
	assert.False(t, resp.Campaigns[0])
}

func TestExecuteCardHandler(t *testing.T) {
	svcCtx := newTestSvc(t)

	rec := doRequest(executeCardHandler(svcCtx), http.MethodPost,
		"/api/cards/paper/execute", map[string]string{"exchange": "paper"}, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	provider, err := svcCtx.Registry.Get("paper")
	require.NoError(t, err)
	positions, err := provider.GetPositions(context.Background())
	require.NoError(t, err)
	assert.Len(t, positions, 1)
}

func TestExecuteCardHandler_Unknown(t *testing.T) {
	svcCtx := newTestSvc(t)

	rec := doRequest(executeCardHandler(svcCtx), http.MethodPost,
		"/api/cards/ghost/execute", map[string]string{"exchange": "ghost"}, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestUpdateCardHandler(t *testing.T) {
	svcCtx := newTestSvc(t)

	rec := doRequest(updateCardHandler(svcCtx), http.MethodPatch,
		"/api/cards/paper", map[string]string{"exchange": "paper"},
		map[string]interface{}{"direction": "short", "quantity": "2.5", "group": 2})
	require.Equal(t, http.StatusOK, rec.Code)

	card, ok := svcCtx.Terminal.Card("paper")
	require.True(t, ok)
	snap := card.Snapshot()
	assert.Equal(t, "2.5", snap.Quantity)
	assert.Equal(t, 2, snap.Group)
	assert.False(t, snap.IsBuy())

	rec = doRequest(updateCardHandler(svcCtx), http.MethodPatch,
		"/api/cards/paper", map[string]string{"exchange": "paper"},
		map[string]interface{}{"quantity": "garbage"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "2.5", card.Snapshot().Quantity)

	rec = doRequest(updateCardHandler(svcCtx), http.MethodPatch,
		"/api/cards/paper", map[string]string{"exchange": "paper"},
		map[string]interface{}{"direction": "off"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "off", string(card.State()))
}

func TestToggleVisibilityHandler(t *testing.T) {
	svcCtx := newTestSvc(t)

	rec := doRequest(toggleVisibilityHandler(svcCtx), http.MethodPost,
		"/api/cards/paper/visibility/toggle", map[string]string{"exchange": "paper"}, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp okResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotNil(t, resp.Visible)
	assert.False(t, *resp.Visible)
	assert.False(t, svcCtx.Registry.Visible("paper"))
}

func TestGroupHandlers(t *testing.T) {
	svcCtx := newTestSvc(t)

	rec := doRequest(executeGroupHandler(svcCtx), http.MethodPost,
		"/api/groups/0/execute", map[string]string{"group": "0"}, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(executeGroupHandler(svcCtx), http.MethodPost,
		"/api/groups/9/execute", map[string]string{"group": "9"}, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(reverseGroupHandler(svcCtx), http.MethodPost,
		"/api/groups/0/reverse", map[string]string{"group": "0"}, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	card, _ := svcCtx.Terminal.Card("paper")
	assert.Equal(t, "shortPending", string(card.State()))

	rec = doRequest(closeGroupHandler(svcCtx), http.MethodPost,
		"/api/groups/0/close", map[string]string{"group": "0"}, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	provider, err := svcCtx.Registry.Get("paper")
	require.NoError(t, err)
	positions, err := provider.GetPositions(context.Background())
	require.NoError(t, err)
	assert.Empty(t, positions)
}

func TestCampaignHandlers(t *testing.T) {
	svcCtx := newTestSvc(t)

	rec := doRequest(startRepeatHandler(svcCtx), http.MethodPost,
		"/api/groups/0/repeat/start", map[string]string{"group": "0"},
		map[string]interface{}{"times": 1})
	require.Equal(t, http.StatusOK, rec.Code)

	require.Eventually(t, func() bool {
		return !svcCtx.Terminal.Scheduler().Running(0)
	}, 5*time.Second, 10*time.Millisecond)

	rec = doRequest(stopRepeatHandler(svcCtx), http.MethodPost,
		"/api/groups/0/repeat/stop", map[string]string{"group": "0"}, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var resp okResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotNil(t, resp.Stopped)
	assert.False(t, *resp.Stopped)

	rec = doRequest(startBurnHandler(svcCtx), http.MethodPost,
		"/api/groups/0/burn/start", map[string]string{"group": "0"},
		map[string]interface{}{"rounds": 0})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHealthHandler(t *testing.T) {
	rec := doRequest(healthHandler, http.MethodGet, "/healthz", nil, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
}
