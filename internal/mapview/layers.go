package mapview

import "github.com/paulmach/orb/geojson"

type FillPaint struct {
	Color        string  `json:"fill-color"`
	Opacity      float64 `json:"fill-opacity"`
	OutlineColor string  `json:"fill-outline-color,omitempty"`
}

type LinePaint struct {
	Color string  `json:"line-color"`
	Width float64 `json:"line-width"`
}

// Paint values are fixed; they are never derived from feature data.
var (
	fillPaint = FillPaint{Color: "#00835D", Opacity: 0.35, OutlineColor: "#26535C"}
	linePaint = LinePaint{Color: "#26535C", Width: 1.5}
)

// Layer is one engine style layer bound to a GeoJSON source.
type Layer struct {
	ID     string `json:"id"`
	Type   string `json:"type"`
	Source string `json:"source"`
	Paint  any    `json:"paint"`
}

// LayerSet is a GeoJSON source plus the fill and line layer drawn from it.
type LayerSet struct {
	SourceID string                     `json:"sourceId"`
	Data     *geojson.FeatureCollection `json:"data"`
	Fill     Layer                      `json:"fill"`
	Line     Layer                      `json:"line"`
}

// NewLayerSet binds fc to exactly one fill and one line layer regardless of
// how many features it holds. Layer ids follow <stem>_fill_layer.
func NewLayerSet(stem string, fc *geojson.FeatureCollection) LayerSet {
	return LayerSet{
		SourceID: stem,
		Data:     fc,
		Fill:     Layer{ID: stem + "_fill_layer", Type: "fill", Source: stem, Paint: fillPaint},
		Line:     Layer{ID: stem + "_line_layer", Type: "line", Source: stem, Paint: linePaint},
	}
}

// Layers returns the layers in paint order.
func (ls LayerSet) Layers() []Layer {
	return []Layer{ls.Fill, ls.Line}
}

// InteractiveLayerIDs are the layers whose clicks reach the panel.
func (ls LayerSet) InteractiveLayerIDs() []string {
	return []string{ls.Fill.ID}
}
