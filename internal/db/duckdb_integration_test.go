//go:build integration

// Needs the DuckDB spatial extension (downloaded on first INSTALL).
//
// Run: go test -tags=integration ./internal/db/
package db

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/joeblew999/plat-bcat/internal/bcat"
)

const counties = `{"type":"FeatureCollection","features":[
 {"type":"Feature","geometry":{"type":"Polygon","coordinates":[[[-87,35],[-86,35],[-86,36],[-87,36],[-87,35]]]},"properties":{"state_abbr":"TN","name":"A"}},
 {"type":"Feature","geometry":{"type":"Point","coordinates":[-84.5,38.0]},"properties":{"state_abbr":"KY","name":"B"}}
]}`

func TestFileSource_ReadsAndFiltersGeoJSON(t *testing.T) {
	ctx := context.Background()
	conn, err := Open(ctx)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })

	path := filepath.Join(t.TempDir(), "counties.geojson")
	if err := os.WriteFile(path, []byte(counties), 0o644); err != nil {
		t.Fatal(err)
	}

	src, err := NewFileSource(conn, path, nil, nil)
	if err != nil {
		t.Fatal(err)
	}
	fc, err := src.FeatureCollection(ctx, bcat.Query{Dataset: bcat.DefaultDataset, RegionCode: "TN"})
	if err != nil {
		t.Fatalf("FeatureCollection: %v", err)
	}
	if len(fc.Features) != 1 || fc.Features[0].Properties["name"] != "A" {
		t.Fatalf("features=%+v", fc.Features)
	}
}
