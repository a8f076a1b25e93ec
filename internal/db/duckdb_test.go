package db

import (
	"testing"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

func TestRowFeature_SplitsGeometryAndProperties(t *testing.T) {
	row := map[string]any{
		"geom":       `{"type":"Point","coordinates":[-86.5,35.5]}`,
		"state_abbr": "TN",
		"county":     "Rutherford",
	}
	f, err := rowFeature(row, "geom")
	if err != nil {
		t.Fatalf("rowFeature: %v", err)
	}
	if p, ok := f.Geometry.(orb.Point); !ok || p != (orb.Point{-86.5, 35.5}) {
		t.Fatalf("geometry=%v", f.Geometry)
	}
	if _, ok := f.Properties["geom"]; ok {
		t.Fatal("geometry column leaked into properties")
	}
	if f.Properties["county"] != "Rutherford" {
		t.Fatalf("properties=%v", f.Properties)
	}
}

func TestRowFeature_NullGeometrySkipped(t *testing.T) {
	f, err := rowFeature(map[string]any{"geometry": nil}, "geometry")
	if err != nil || f != nil {
		t.Fatalf("f=%v err=%v", f, err)
	}
}

func TestRowFeature_BadGeometry(t *testing.T) {
	if _, err := rowFeature(map[string]any{"geom": 42}, "geom"); err == nil {
		t.Fatal("expected type error")
	}
	if _, err := rowFeature(map[string]any{"geom": "{not json"}, "geom"); err == nil {
		t.Fatal("expected decode error")
	}
}

func TestInRegion(t *testing.T) {
	tn := geojson.NewFeature(orb.Point{})
	tn.Properties["state_abbr"] = "TN"
	bare := geojson.NewFeature(orb.Point{})

	if !inRegion(tn, "tn") || inRegion(tn, "KY") {
		t.Fatal("region match is wrong")
	}
	if !inRegion(tn, "") || !inRegion(bare, "KY") {
		t.Fatal("unfiltered features dropped")
	}
}

func TestScanQuery_ByExtension(t *testing.T) {
	if q := scanQuery("blocks.geoparquet"); geomColumn("blocks.geoparquet") != "geometry" || q == scanQuery("blocks.geojson") {
		t.Fatalf("parquet query=%q", q)
	}
	if geomColumn("counties.GeoJSON") != "geom" {
		t.Fatal("geojson files use ST_Read's geom column")
	}
}
