// Package api defines the Huma API routes and handlers.
package api

import (
	"context"
	"errors"

	"github.com/danielgtaylor/huma/v2"

	"github.com/joeblew999/plat-bcat/internal/bcat"
	"github.com/joeblew999/plat-bcat/internal/config"
	"github.com/joeblew999/plat-bcat/internal/humastar"
	"github.com/joeblew999/plat-bcat/internal/mapview"
	"github.com/joeblew999/plat-bcat/internal/panel"
)

// Services holds the dependencies for API handlers.
type Services struct {
	Config   config.Config
	Source   bcat.Source
	Registry *panel.Registry
	Bus      *panel.Bus
	// Query is the panel's query; /api/v1/features falls back to it.
	Query bcat.Query
}

// Types

type HealthBody struct {
	Status  string `json:"status" doc:"Health status" example:"ok"`
	Version string `json:"version" doc:"Application version" example:"1.0.0"`
}

type MessageBody struct {
	Message string `json:"message" doc:"Result message"`
}

type FeaturesInput struct {
	Dataset     string `query:"dataset" doc:"GraphQL query field; empty for the panel's dataset" example:"county_broadband_farm_bill_eligibility_geojson"`
	Region      string `query:"region" doc:"State abbreviation; empty for the panel's region" example:"TN"`
	BypassCache bool   `query:"bypass_cache" doc:"Skip the server and upstream caches"`
}

type FeaturesOutput struct {
	ContentType string `header:"Content-Type"`
	Body        []byte
}

type SessionInput struct {
	Session string `path:"session" doc:"Panel session id" example:"9f86d081884c7d65"`
}

// SelectionBody is the selection of one panel session.
type SelectionBody struct {
	session   string
	State     string     `json:"state" enum:"loading,loaded-no-selection,loaded-with-selection" doc:"Panel state"`
	Selection *Selection `json:"selection,omitempty" doc:"Selected feature, absent when the popup is closed"`
}

type Selection struct {
	FeatureID int        `json:"featureId" doc:"Index of the feature in the collection"`
	Label     string     `json:"label" example:"Feature in TN"`
	Longitude float64    `json:"longitude" example:"-86.5"`
	Latitude  float64    `json:"latitude" example:"35.5"`
	BBox      [4]float64 `json:"bbox" doc:"minLng, minLat, maxLng, maxLat"`
}

var selectionActions = []humastar.ActionDef{
	{Rel: "close", Pattern: "/api/v1/panel/%s/selection", Method: "DELETE", Title: "Close popup"},
}

// Actions implements humastar.Actor.
func (b SelectionBody) Actions() []humastar.Action {
	if b.Selection == nil {
		return nil
	}
	return humastar.ActionsFor(b.session, selectionActions)
}

// APIHandler holds all REST API handlers. Methods named Register* are
// auto-discovered by huma.AutoRegister.
type APIHandler struct {
	svc *Services
}

func NewAPIHandler(svc *Services) *APIHandler {
	return &APIHandler{svc: svc}
}

// RegisterHealth registers health check routes.
func (h *APIHandler) RegisterHealth(api huma.API) {
	huma.Get(api, "/health", h.GetHealth, huma.OperationTags("health"))
}

// RegisterMap registers the map view and dataset routes.
func (h *APIHandler) RegisterMap(api huma.API) {
	huma.Get(api, "/api/v1/shell", h.GetShell, huma.OperationTags("map"))
	huma.Get(api, "/api/v1/datasets", h.GetDatasets, huma.OperationTags("map"))
	huma.Get(api, "/api/v1/features", h.GetFeatures, huma.OperationTags("map"))
}

// RegisterSelection registers the per-session selection routes.
func (h *APIHandler) RegisterSelection(api huma.API) {
	huma.Get(api, "/api/v1/panel/{session}/selection", h.GetSelection, huma.OperationTags("panel"))
	huma.Delete(api, "/api/v1/panel/{session}/selection", h.DeleteSelection, huma.OperationTags("panel"))
}

// Handlers

func (h *APIHandler) GetHealth(ctx context.Context, input *struct{}) (*struct{ Body HealthBody }, error) {
	return &struct{ Body HealthBody }{Body: HealthBody{Status: "ok", Version: h.svc.Config.AppVersion}}, nil
}

func (h *APIHandler) GetShell(ctx context.Context, input *struct{}) (*struct{ Body mapview.View }, error) {
	return &struct{ Body mapview.View }{Body: mapview.NewShell(h.svc.Config)}, nil
}

func (h *APIHandler) GetDatasets(ctx context.Context, input *struct{}) (*struct{ Body []bcat.DatasetInfo }, error) {
	return &struct{ Body []bcat.DatasetInfo }{Body: bcat.Datasets()}, nil
}

func (h *APIHandler) GetFeatures(ctx context.Context, input *FeaturesInput) (*FeaturesOutput, error) {
	if h.svc.Source == nil {
		return nil, huma.Error503ServiceUnavailable("no feature source configured")
	}
	q := h.svc.Query
	if input.Dataset != "" {
		d, err := bcat.ParseDataset(input.Dataset)
		if err != nil {
			return nil, huma.Error400BadRequest(err.Error())
		}
		q.Dataset = d
	}
	if input.Region != "" {
		q.RegionCode = input.Region
	}
	q.BypassCache = q.BypassCache || input.BypassCache

	fc, err := h.svc.Source.FeatureCollection(ctx, q)
	switch {
	case errors.Is(err, bcat.ErrUnknownDataset):
		return nil, huma.Error400BadRequest(err.Error())
	case err != nil:
		return nil, huma.Error502BadGateway("feature query failed", err)
	}
	b, err := fc.MarshalJSON()
	if err != nil {
		return nil, huma.Error500InternalServerError("encode features", err)
	}
	return &FeaturesOutput{ContentType: "application/geo+json", Body: b}, nil
}

func (h *APIHandler) panel(session string) (*panel.Panel, error) {
	if h.svc.Registry == nil {
		return nil, huma.Error404NotFound("session not found")
	}
	p, ok := h.svc.Registry.Get(session)
	if !ok {
		return nil, huma.Error404NotFound("session not found")
	}
	return p, nil
}

func (h *APIHandler) GetSelection(ctx context.Context, input *SessionInput) (*struct{ Body SelectionBody }, error) {
	p, err := h.panel(input.Session)
	if err != nil {
		return nil, err
	}
	body := SelectionBody{session: input.Session, State: p.State().String()}
	if sel := p.Selection(); sel != nil {
		body.Selection = &Selection{
			FeatureID: sel.FeatureID,
			Label:     sel.Label,
			Longitude: sel.Longitude(),
			Latitude:  sel.Latitude(),
			BBox:      sel.BBox(),
		}
	}
	return &struct{ Body SelectionBody }{Body: body}, nil
}

func (h *APIHandler) DeleteSelection(ctx context.Context, input *SessionInput) (*struct{ Body MessageBody }, error) {
	p, err := h.panel(input.Session)
	if err != nil {
		return nil, err
	}
	if !p.Close() {
		return &struct{ Body MessageBody }{Body: MessageBody{Message: "No selection"}}, nil
	}
	if h.svc.Bus != nil {
		h.svc.Bus.Publish(panel.Event{Session: input.Session, Action: "closed"})
	}
	return &struct{ Body MessageBody }{Body: MessageBody{Message: "Selection closed"}}, nil
}
