package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/zeromicro/go-zero/rest"
	"github.com/zeromicro/go-zero/rest/httpx"

	"perpdesk/internal/svc"
	"perpdesk/pkg/exchange"
	"perpdesk/pkg/terminal"
)

// RegisterHandlers mounts the terminal's command surface on the rest server.
func RegisterHandlers(server *rest.Server, svcCtx *svc.ServiceContext) {
	server.AddRoutes([]rest.Route{
		{Method: http.MethodGet, Path: "/healthz", Handler: healthHandler},
		{Method: http.MethodGet, Path: "/api/status", Handler: statusHandler(svcCtx)},

		{Method: http.MethodPost, Path: "/api/cards/:exchange/execute", Handler: executeCardHandler(svcCtx)},
		{Method: http.MethodPatch, Path: "/api/cards/:exchange", Handler: updateCardHandler(svcCtx)},
		{Method: http.MethodPost, Path: "/api/cards/:exchange/visibility/toggle", Handler: toggleVisibilityHandler(svcCtx)},

		{Method: http.MethodPost, Path: "/api/groups/:group/execute", Handler: executeGroupHandler(svcCtx)},
		{Method: http.MethodPost, Path: "/api/groups/:group/reverse", Handler: reverseGroupHandler(svcCtx)},
		{Method: http.MethodPost, Path: "/api/groups/:group/close", Handler: closeGroupHandler(svcCtx)},
		{Method: http.MethodPost, Path: "/api/groups/:group/repeat/start", Handler: startRepeatHandler(svcCtx)},
		{Method: http.MethodPost, Path: "/api/groups/:group/repeat/stop", Handler: stopRepeatHandler(svcCtx)},
		{Method: http.MethodPost, Path: "/api/groups/:group/burn/start", Handler: startBurnHandler(svcCtx)},
		{Method: http.MethodPost, Path: "/api/groups/:group/burn/stop", Handler: stopBurnHandler(svcCtx)},
	})
}

type cardPathRequest struct {
	Exchange string `path:"exchange"`
}

type updateCardRequest struct {
	Exchange  string  `path:"exchange"`
	Symbol    *string `json:"symbol,optional"`
	Quantity  *string `json:"quantity,optional"`
	Price     *string `json:"price,optional"`
	OrderType *string `json:"orderType,optional"`
	Direction *string `json:"direction,optional"` // long | short | off
	Group     *int    `json:"group,optional"`
}

type groupPathRequest struct {
	Group int `path:"group"`
}

type campaignStartRequest struct {
	Group      int `path:"group"`
	Times      int `json:"times,optional"`
	Rounds     int `json:"rounds,optional"`
	MinDelayMs int `json:"minDelayMs,optional"`
	MaxDelayMs int `json:"maxDelayMs,optional"`
}

type cardStatus struct {
	Exchange   string              `json:"exchange"`
	Family     string              `json:"family"`
	Symbol     string              `json:"symbol"`
	Quantity   string              `json:"quantity"`
	Price      string              `json:"price,omitempty"`
	OrderType  string              `json:"orderType"`
	State      string              `json:"state"`
	Group      int                 `json:"group"`
	Visible    bool                `json:"visible"`
	Collateral string              `json:"collateral,omitempty"`
	Stale      bool                `json:"stale,omitempty"`
	Positions  []exchange.Position `json:"positions,omitempty"`
}

type statusResponse struct {
	Default   string       `json:"default"`
	Cards     []cardStatus `json:"cards"`
	Campaigns map[int]bool `json:"campaigns"`
}

type okResponse struct {
	Status  string `json:"status"`
	Visible *bool  `json:"visible,omitempty"`
	Stopped *bool  `json:"stopped,omitempty"`
}

func ok() okResponse { return okResponse{Status: "ok"} }

func healthHandler(w http.ResponseWriter, r *http.Request) {
	httpx.OkJson(w, map[string]string{"status": "ok"})
}

func statusHandler(svcCtx *svc.ServiceContext) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := statusResponse{
			Default:   svcCtx.Registry.Default(),
			Campaigns: make(map[int]bool),
		}
		for group := 0; group < 6; group++ {
			resp.Campaigns[group] = svcCtx.Terminal.Scheduler().Running(group)
		}
		for _, name := range svcCtx.Terminal.CardNames() {
			card, okCard := svcCtx.Terminal.Card(name)
			if !okCard {
				continue
			}
			snap := card.Snapshot()
			family := string(exchange.FamilyAlternate)
			if svcCtx.Registry.IsNativeFamily(name) {
				family = string(exchange.FamilyNative)
			}
			status := cardStatus{
				Exchange:  name,
				Family:    family,
				Symbol:    snap.Symbol,
				Quantity:  snap.Quantity,
				Price:     snap.Price,
				OrderType: snap.OrderType,
				State:     string(snap.State),
				Group:     snap.Group,
				Visible:   snap.Visible,
			}
			if coll, okColl := svcCtx.Reconciler.Collateral(name); okColl {
				status.Collateral = coll.Collateral
				status.Stale = coll.Stale
			}
			if pos, okPos := svcCtx.Reconciler.Positions(name); okPos {
				status.Positions = pos.Positions
				status.Stale = status.Stale || pos.Stale
			}
			resp.Cards = append(resp.Cards, status)
		}
		httpx.OkJson(w, resp)
	}
}

func executeCardHandler(svcCtx *svc.ServiceContext) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req cardPathRequest
		if err := httpx.Parse(r, &req); err != nil {
			writeError(r.Context(), w, err)
			return
		}
		if err := svcCtx.Terminal.ExecuteCard(r.Context(), req.Exchange); err != nil {
			writeError(r.Context(), w, err)
			return
		}
		httpx.OkJson(w, ok())
	}
}

func updateCardHandler(svcCtx *svc.ServiceContext) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req updateCardRequest
		if err := httpx.Parse(r, &req); err != nil {
			writeError(r.Context(), w, err)
			return
		}
		card, okCard := svcCtx.Terminal.Card(req.Exchange)
		if !okCard {
			writeError(r.Context(), w, exchange.ConfigErrorf("unknown card %q", req.Exchange))
			return
		}
		if err := applyCardUpdate(card, &req); err != nil {
			writeError(r.Context(), w, err)
			return
		}
		httpx.OkJson(w, ok())
	}
}

func applyCardUpdate(card *terminal.Card, req *updateCardRequest) error {
	if req.Symbol != nil {
		if err := card.SetSymbol(*req.Symbol); err != nil {
			return err
		}
	}
	if req.Quantity != nil {
		if err := card.SetQuantity(*req.Quantity); err != nil {
			return err
		}
	}
	if req.Price != nil {
		if err := card.SetPrice(*req.Price); err != nil {
			return err
		}
	}
	if req.OrderType != nil {
		if err := card.SetOrderType(*req.OrderType); err != nil {
			return err
		}
	}
	if req.Direction != nil {
		if *req.Direction == "off" {
			card.SetOff()
		} else if err := card.SetDirection(*req.Direction); err != nil {
			return err
		}
	}
	if req.Group != nil {
		if err := card.SetGroup(*req.Group); err != nil {
			return err
		}
	}
	return nil
}

func toggleVisibilityHandler(svcCtx *svc.ServiceContext) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req cardPathRequest
		if err := httpx.Parse(r, &req); err != nil {
			writeError(r.Context(), w, err)
			return
		}
		visible, err := svcCtx.Terminal.ToggleCardVisibility(req.Exchange)
		if err != nil {
			writeError(r.Context(), w, err)
			return
		}
		resp := ok()
		resp.Visible = &visible
		httpx.OkJson(w, resp)
	}
}

func executeGroupHandler(svcCtx *svc.ServiceContext) http.HandlerFunc {
	return groupAction(func(ctx context.Context, group int) error {
		return svcCtx.Terminal.ExecuteGroup(ctx, group)
	})
}

func reverseGroupHandler(svcCtx *svc.ServiceContext) http.HandlerFunc {
	return groupAction(func(ctx context.Context, group int) error {
		return svcCtx.Terminal.ReverseGroup(group)
	})
}

func closeGroupHandler(svcCtx *svc.ServiceContext) http.HandlerFunc {
	return groupAction(func(ctx context.Context, group int) error {
		return svcCtx.Terminal.CloseAllGroup(ctx, group)
	})
}

func groupAction(action func(ctx context.Context, group int) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req groupPathRequest
		if err := httpx.Parse(r, &req); err != nil {
			writeError(r.Context(), w, err)
			return
		}
		if err := action(r.Context(), req.Group); err != nil {
			writeError(r.Context(), w, err)
			return
		}
		httpx.OkJson(w, ok())
	}
}

func startRepeatHandler(svcCtx *svc.ServiceContext) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req campaignStartRequest
		if err := httpx.Parse(r, &req); err != nil {
			writeError(r.Context(), w, err)
			return
		}
		err := svcCtx.Terminal.StartRepeat(req.Group, req.Times,
			time.Duration(req.MinDelayMs)*time.Millisecond,
			time.Duration(req.MaxDelayMs)*time.Millisecond)
		if err != nil {
			writeError(r.Context(), w, err)
			return
		}
		httpx.OkJson(w, ok())
	}
}

func stopRepeatHandler(svcCtx *svc.ServiceContext) http.HandlerFunc {
	return stopCampaign(func(group int) bool { return svcCtx.Terminal.StopRepeat(group) })
}

func startBurnHandler(svcCtx *svc.ServiceContext) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req campaignStartRequest
		if err := httpx.Parse(r, &req); err != nil {
			writeError(r.Context(), w, err)
			return
		}
		err := svcCtx.Terminal.StartBurn(req.Group, req.Rounds,
			time.Duration(req.MinDelayMs)*time.Millisecond,
			time.Duration(req.MaxDelayMs)*time.Millisecond)
		if err != nil {
			writeError(r.Context(), w, err)
			return
		}
		httpx.OkJson(w, ok())
	}
}

func stopBurnHandler(svcCtx *svc.ServiceContext) http.HandlerFunc {
	return stopCampaign(func(group int) bool { return svcCtx.Terminal.StopBurn(group) })
}

func stopCampaign(stop func(group int) bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req groupPathRequest
		if err := httpx.Parse(r, &req); err != nil {
			writeError(r.Context(), w, err)
			return
		}
		stopped := stop(req.Group)
		resp := ok()
		resp.Stopped = &stopped
		httpx.OkJson(w, resp)
	}
}

// writeError maps the error taxonomy onto HTTP codes: user mistakes are 400s,
// unknown slots 404, venue rejections 502.
func writeError(ctx context.Context, w http.ResponseWriter, err error) {
	code := http.StatusInternalServerError
	switch {
	case errors.Is(err, exchange.ErrInvalidInput),
		errors.Is(err, exchange.ErrInvalidQuantity),
		errors.Is(err, exchange.ErrInvalidPrice),
		errors.Is(err, exchange.ErrUnknownVenue):
		code = http.StatusBadRequest
	case errors.Is(err, exchange.ErrConfiguration):
		code = http.StatusNotFound
	case errors.Is(err, exchange.ErrOrder), errors.Is(err, exchange.ErrTransfer):
		code = http.StatusBadGateway
	}
	httpx.WriteJsonCtx(ctx, w, code, map[string]string{"error": err.Error()})
}
