package panel

import (
	"context"
	"math"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// RegionProperty is the feature property the popup label is derived from.
const RegionProperty = "state_abbr"

const fallbackLabel = "Feature"

// FitOptions parameterizes a camera fit animation.
type FitOptions struct {
	Padding  int
	Duration time.Duration
}

// SelectFit is the animation issued for every selection.
var SelectFit = FitOptions{Padding: 40, Duration: 1000 * time.Millisecond}

// Camera is the map engine handle the panel drives. It is scoped to the
// response that carries the interaction back to the browser.
type Camera interface {
	FitBounds(ctx context.Context, b orb.Bound, opts FitOptions) error
}

// Selection is the feature the popup is showing.
type Selection struct {
	FeatureID int
	Feature   *geojson.Feature
	Bound     orb.Bound
	Center    orb.Point
	Label     string
}

func (s Selection) Longitude() float64 { return s.Center.Lon() }
func (s Selection) Latitude() float64  { return s.Center.Lat() }

// BBox is [minLng, minLat, maxLng, maxLat].
func (s Selection) BBox() [4]float64 {
	return [4]float64{s.Bound.Min.Lon(), s.Bound.Min.Lat(), s.Bound.Max.Lon(), s.Bound.Max.Lat()}
}

// Valid reports whether a popup may be rendered for s.
func (s Selection) Valid() bool {
	return s.Label != "" && finite(s.Center) && s.Bound.Contains(s.Center)
}

// NewSelection derives the selection for feature id of a collection. It
// fails for features without a usable bounding box.
func NewSelection(id int, f *geojson.Feature) (Selection, bool) {
	b, ok := featureBound(f)
	if !ok {
		return Selection{}, false
	}
	return Selection{
		FeatureID: id,
		Feature:   f,
		Bound:     b,
		Center:    b.Center(),
		Label:     Label(f.Properties),
	}, true
}

// Label is "Feature in <state_abbr>", or "Feature" when the property is
// missing, empty or not a string.
func Label(props geojson.Properties) string {
	if region := props.MustString(RegionProperty, ""); region != "" {
		return "Feature in " + region
	}
	return fallbackLabel
}

// featureBound prefers a valid GeoJSON bbox member over the geometry.
func featureBound(f *geojson.Feature) (orb.Bound, bool) {
	if f == nil {
		return orb.Bound{}, false
	}
	var b orb.Bound
	switch {
	case f.BBox.Valid():
		b = f.BBox.Bound()
	case f.Geometry != nil:
		b = f.Geometry.Bound()
	default:
		return orb.Bound{}, false
	}
	if !finite(b.Min) || !finite(b.Max) || b.Min[0] > b.Max[0] || b.Min[1] > b.Max[1] {
		return orb.Bound{}, false
	}
	return b, true
}

func finite(p orb.Point) bool {
	for _, v := range p {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}
