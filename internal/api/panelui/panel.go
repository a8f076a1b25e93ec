package panelui

import (
	"context"
	"errors"

	"github.com/danielgtaylor/huma/v2"
	"github.com/rs/zerolog"

	"github.com/joeblew999/plat-bcat/internal/humastar"
	"github.com/joeblew999/plat-bcat/internal/logger"
	"github.com/joeblew999/plat-bcat/internal/mapview"
	"github.com/joeblew999/plat-bcat/internal/panel"
	"github.com/joeblew999/plat-bcat/internal/templates"
)

// Signal names shared with the panel page.
const (
	SignalSession  = "session"
	SignalFeatures = "features"
)

// PanelHandler streams the data layer panel to the browser.
type PanelHandler struct {
	humastar.Handler
	registry *panel.Registry
	bus      *panel.Bus
	view     mapview.View
	log      *zerolog.Logger
}

func NewPanelHandler(registry *panel.Registry, bus *panel.Bus, view mapview.View, renderer *templates.Renderer, log *zerolog.Logger) *PanelHandler {
	return &PanelHandler{
		Handler:  humastar.Handler{Renderer: renderer},
		registry: registry,
		bus:      bus,
		view:     view,
		log:      log,
	}
}

func (h *PanelHandler) RegisterRoutes(api huma.API) {
	huma.Get(api, "/api/v1/panel/load", h.Load, huma.OperationTags("panel"))
	huma.Post(api, "/api/v1/panel/select", h.Select, huma.OperationTags("panel"))
	huma.Post(api, "/api/v1/panel/close", h.Close, huma.OperationTags("panel"))
	huma.Get(api, "/api/v1/panel/events", h.Events, huma.OperationTags("panel"))
}

func session(signals humastar.Signals) (string, error) {
	s := signals.String(SignalSession)
	if s == "" {
		return "", huma.Error400BadRequest("session signal is required")
	}
	return s, nil
}

// Load runs the panel's query on the stream's context. The page already
// shows the placeholder; on success it is replaced by the map and the
// layer set is handed to the engine. A failed query leaves the placeholder
// and raises the error signal.
func (h *PanelHandler) Load(ctx context.Context, input *humastar.SignalsQuery) (*huma.StreamResponse, error) {
	signals, err := input.MustParse()
	if err != nil {
		return nil, err
	}
	sid, err := session(signals)
	if err != nil {
		return nil, err
	}
	ctx = logger.WithSession(ctx, sid)
	p := h.registry.Open(sid)

	return h.Stream(func(sse humastar.SSE) {
		log := logger.FromContext(ctx, h.log)

		if err := p.Load(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}
			_ = sse.Error("Failed to load data: " + err.Error())
			return
		}

		layers, _ := p.Layers()
		html, err := h.Render("panel-map", map[string]any{"View": h.view})
		if err != nil {
			log.Error().Err(err).Msg("render panel map")
			_ = sse.Error("Failed to render map")
			return
		}
		_ = sse.Patch(html, "#panel")
		_ = sse.Signals(map[string]any{"error": ""})
		if err := sse.Event(EventLoaded, layers); err != nil {
			log.Warn().Err(err).Msg("send layers")
			return
		}

		if sel := p.Selection(); sel != nil {
			h.sendPopup(sse, log, sel)
		}
	}), nil
}

// Select receives the engine's hits for a click, topmost first.
func (h *PanelHandler) Select(ctx context.Context, input *humastar.SignalsInput) (*huma.StreamResponse, error) {
	signals, err := input.MustParse()
	if err != nil {
		return nil, err
	}
	sid, err := session(signals)
	if err != nil {
		return nil, err
	}
	p, ok := h.registry.Get(sid)
	if !ok {
		return nil, huma.Error404NotFound("session not found")
	}
	if p.State() == panel.Loading {
		if lerr := p.Err(); lerr != nil {
			return nil, huma.Error409Conflict("data failed to load: " + lerr.Error())
		}
		return nil, huma.Error409Conflict("data is still loading")
	}
	ids := signals.Ints(SignalFeatures)
	ctx = logger.WithSession(ctx, sid)

	return h.Stream(func(sse humastar.SSE) {
		log := logger.FromContext(ctx, h.log)

		sel, err := p.Select(ctx, ids, Camera{SSE: sse})
		switch {
		case errors.Is(err, panel.ErrNotLoaded):
			_ = sse.Error("Data is not loaded")
			return
		case err != nil:
			log.Warn().Err(err).Msg("camera")
		}
		if sel == nil {
			return
		}
		h.sendPopup(sse, log, sel)
	}), nil
}

// Close dismisses the popup.
func (h *PanelHandler) Close(ctx context.Context, input *humastar.SignalsInput) (*huma.StreamResponse, error) {
	signals, err := input.MustParse()
	if err != nil {
		return nil, err
	}
	sid, err := session(signals)
	if err != nil {
		return nil, err
	}
	p, ok := h.registry.Get(sid)
	if !ok {
		return nil, huma.Error404NotFound("session not found")
	}

	return h.Stream(func(sse humastar.SSE) {
		if p.Close() {
			_ = sse.Event(EventPopupClose, struct{}{})
		}
	}), nil
}

func (h *PanelHandler) sendPopup(sse humastar.SSE, log *zerolog.Logger, sel *panel.Selection) {
	if !sel.Valid() {
		log.Warn().Int("feature", sel.FeatureID).Msg("selection has no renderable popup")
		return
	}
	html, err := h.Render("popup", sel)
	if err != nil {
		log.Error().Err(err).Msg("render popup")
		return
	}
	_ = sse.Patch(html, "#popup-slot")
	_ = sse.Event(EventPopupOpen, newPopupEvent(sel))
}

// Events forwards selection changes made outside this tab's own requests,
// such as a DELETE on the REST selection resource, until the client
// disconnects.
func (h *PanelHandler) Events(ctx context.Context, input *humastar.SignalsQuery) (*huma.StreamResponse, error) {
	signals, err := input.MustParse()
	if err != nil {
		return nil, err
	}
	sid, err := session(signals)
	if err != nil {
		return nil, err
	}
	if h.bus == nil {
		return nil, huma.Error503ServiceUnavailable("events are not enabled")
	}

	return h.Stream(func(sse humastar.SSE) {
		ch := h.bus.Subscribe()
		defer h.bus.Unsubscribe(ch)

		for {
			select {
			case <-ctx.Done():
				return
			case ev := <-ch:
				if ev.Session != sid {
					continue
				}
				switch ev.Action {
				case "closed":
					_ = sse.Event(EventPopupClose, struct{}{})
				}
			}
		}
	}), nil
}
