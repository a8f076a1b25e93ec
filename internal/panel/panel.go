// Package panel holds the interaction state of the data layer panel: one
// feature collection query and at most one selected feature.
package panel

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/paulmach/orb/geojson"
	"github.com/rs/zerolog"

	"github.com/joeblew999/plat-bcat/internal/bcat"
	"github.com/joeblew999/plat-bcat/internal/logger"
	"github.com/joeblew999/plat-bcat/internal/mapview"
	"github.com/joeblew999/plat-bcat/internal/metrics"
)

// ErrNotLoaded is returned by Select before the query has resolved.
var ErrNotLoaded = errors.New("panel: feature collection not loaded")

// State is one of Loading, NoSelection and WithSelection. A failed query
// leaves the panel Loading.
type State int

const (
	Loading State = iota
	NoSelection
	WithSelection
)

func (s State) String() string {
	switch s {
	case NoSelection:
		return "loaded-no-selection"
	case WithSelection:
		return "loaded-with-selection"
	default:
		return "loading"
	}
}

// Panel is safe for concurrent use; each browser tab owns one.
type Panel struct {
	src     bcat.Source
	query   bcat.Query
	log     *zerolog.Logger
	metrics *metrics.Provider

	mu        sync.Mutex
	inflight  chan struct{}
	loadErr   error
	fc        *geojson.FeatureCollection
	layers    mapview.LayerSet
	selection *Selection
}

func New(src bcat.Source, q bcat.Query, log *zerolog.Logger, m *metrics.Provider) *Panel {
	return &Panel{src: src, query: q, log: log, metrics: m}
}

func (p *Panel) Query() bcat.Query { return p.query }

// Load issues the panel's single query. Once it has resolved, later calls
// return the recorded outcome without refetching. A load abandoned because
// ctx ended is not recorded, so the next mount tries again. Concurrent
// callers wait for the in-flight attempt.
func (p *Panel) Load(ctx context.Context) error {
	p.mu.Lock()
	switch {
	case p.fc != nil:
		p.mu.Unlock()
		return nil
	case p.loadErr != nil:
		err := p.loadErr
		p.mu.Unlock()
		return err
	case p.inflight != nil:
		ch := p.inflight
		p.mu.Unlock()
		select {
		case <-ch:
			return p.Load(ctx)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	ch := make(chan struct{})
	p.inflight = ch
	p.mu.Unlock()

	fc, err := p.src.FeatureCollection(ctx, p.query)
	if err == nil && fc == nil {
		err = bcat.ErrEmptyResponse
	}

	p.mu.Lock()
	p.inflight = nil
	switch {
	case err == nil:
		p.fc = fc
		p.layers = mapview.NewLayerSet(p.query.Dataset.Stem(), fc)
	case ctx.Err() == nil:
		p.loadErr = err
	}
	close(ch)
	p.mu.Unlock()

	log := logger.FromContext(ctx, p.log)
	if err != nil && ctx.Err() != nil {
		log.Debug().Err(err).Msg("feature collection query abandoned")
		return err
	}
	if err != nil {
		log.Error().Err(err).
			Str("dataset", string(p.query.Dataset)).
			Str("region", p.query.RegionCode).
			Msg("feature collection query failed")
		return err
	}
	log.Info().
		Str("dataset", string(p.query.Dataset)).
		Int("features", len(fc.Features)).
		Msg("panel loaded")
	return nil
}

func (p *Panel) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	switch {
	case p.fc == nil:
		return Loading
	case p.selection == nil:
		return NoSelection
	default:
		return WithSelection
	}
}

// Err is the recorded query failure, if any.
func (p *Panel) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.loadErr
}

// Layers returns the fill/line layer pair once the query has resolved.
func (p *Panel) Layers() (mapview.LayerSet, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fc == nil {
		return mapview.LayerSet{}, false
	}
	return p.layers, true
}

// Selection returns a copy of the current selection, or nil.
func (p *Panel) Selection() *Selection {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.selection == nil {
		return nil
	}
	s := *p.selection
	return &s
}

// Select handles a click. featureIDs are the engine's hits under the
// cursor, topmost first; the first one naming a feature with a usable
// bounding box replaces the current selection and the camera is fitted
// to it. With no usable hit nothing changes and nil is returned.
func (p *Panel) Select(ctx context.Context, featureIDs []int, cam Camera) (*Selection, error) {
	p.mu.Lock()
	if p.fc == nil {
		p.mu.Unlock()
		return nil, ErrNotLoaded
	}
	var (
		sel   Selection
		found bool
	)
	for _, id := range featureIDs {
		if id < 0 || id >= len(p.fc.Features) {
			continue
		}
		if sel, found = NewSelection(id, p.fc.Features[id]); found {
			break
		}
	}
	if !found {
		p.mu.Unlock()
		return nil, nil
	}
	p.selection = &sel
	p.mu.Unlock()

	p.metrics.ObserveSelection("select")
	logger.FromContext(ctx, p.log).Debug().
		Int("feature", sel.FeatureID).
		Str("label", sel.Label).
		Floats64("center", []float64{sel.Longitude(), sel.Latitude()}).
		Msg("feature selected")

	out := sel
	if cam == nil {
		return &out, nil
	}
	if err := cam.FitBounds(ctx, sel.Bound, SelectFit); err != nil {
		return &out, fmt.Errorf("fit bounds: %w", err)
	}
	return &out, nil
}

// Close dismisses the popup. It reports whether a selection was cleared.
func (p *Panel) Close() bool {
	p.mu.Lock()
	had := p.selection != nil
	p.selection = nil
	p.mu.Unlock()
	if had {
		p.metrics.ObserveSelection("close")
	}
	return had
}
