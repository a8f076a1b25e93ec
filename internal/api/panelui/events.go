// Package panelui contains the Datastar SSE handlers for the data layer panel.
package panelui

import (
	"context"

	"github.com/paulmach/orb"

	"github.com/joeblew999/plat-bcat/internal/humastar"
	"github.com/joeblew999/plat-bcat/internal/panel"
)

// Browser events dispatched on document; web/static/map.js listens for them.
const (
	EventLoaded     = "panel-loaded"
	EventFitBounds  = "map-fit-bounds"
	EventPopupOpen  = "map-popup-open"
	EventPopupClose = "map-popup-close"
)

// FitBoundsEvent is the detail of a map-fit-bounds event.
type FitBoundsEvent struct {
	Bounds   [2][2]float64 `json:"bounds"`
	Padding  int           `json:"padding"`
	Duration int64         `json:"duration"` // milliseconds
}

// PopupEvent is the detail of a map-popup-open event.
type PopupEvent struct {
	Longitude float64 `json:"longitude"`
	Latitude  float64 `json:"latitude"`
	Anchor    string  `json:"anchor"`
}

// PopupAnchor places the popup below its coordinate.
const PopupAnchor = "top"

// Camera drives the browser map over the SSE response of the request that
// triggered the move.
type Camera struct {
	SSE humastar.SSE
}

var _ panel.Camera = Camera{}

func (c Camera) FitBounds(ctx context.Context, b orb.Bound, opts panel.FitOptions) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return c.SSE.Event(EventFitBounds, NewFitBoundsEvent(b, opts))
}

func NewFitBoundsEvent(b orb.Bound, opts panel.FitOptions) FitBoundsEvent {
	return FitBoundsEvent{
		Bounds:   [2][2]float64{{b.Min.Lon(), b.Min.Lat()}, {b.Max.Lon(), b.Max.Lat()}},
		Padding:  opts.Padding,
		Duration: opts.Duration.Milliseconds(),
	}
}

func newPopupEvent(s *panel.Selection) PopupEvent {
	return PopupEvent{Longitude: s.Longitude(), Latitude: s.Latitude(), Anchor: PopupAnchor}
}
