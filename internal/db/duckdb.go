// Package db serves feature collections from local GeoJSON or GeoParquet
// files through DuckDB's spatial extension. It stands in for the BCAT API
// when developing offline.
package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/marcboeker/go-duckdb"
	"github.com/paulmach/orb/geojson"
	"github.com/rs/zerolog"

	"github.com/joeblew999/plat-bcat/internal/bcat"
	"github.com/joeblew999/plat-bcat/internal/logger"
	"github.com/joeblew999/plat-bcat/internal/metrics"
)

// Open returns an in-memory DuckDB with the spatial and parquet
// extensions loaded.
func Open(ctx context.Context) (*sql.DB, error) {
	conn, err := sql.Open("duckdb", "")
	if err != nil {
		return nil, fmt.Errorf("open duckdb: %w", err)
	}
	for _, ext := range []string{"spatial", "parquet"} {
		if _, err := conn.ExecContext(ctx, fmt.Sprintf("INSTALL %s; LOAD %s;", ext, ext)); err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("load duckdb %s extension: %w", ext, err)
		}
	}
	return conn, nil
}

// FileSource reads one file and filters it by the region property.
type FileSource struct {
	db      *sql.DB
	path    string
	log     *zerolog.Logger
	metrics *metrics.Provider
}

func NewFileSource(conn *sql.DB, path string, log *zerolog.Logger, m *metrics.Provider) (*FileSource, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("local source: %w", err)
	}
	return &FileSource{db: conn, path: path, log: log, metrics: m}, nil
}

// scanQuery selects every column with the geometry rewritten as GeoJSON
// text under geomColumn.
func scanQuery(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".parquet", ".geoparquet":
		return "SELECT * REPLACE (ST_AsGeoJSON(geometry)::VARCHAR AS geometry) FROM read_parquet(?)"
	default:
		return "SELECT * REPLACE (ST_AsGeoJSON(geom)::VARCHAR AS geom) FROM ST_Read(?)"
	}
}

func geomColumn(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".parquet", ".geoparquet":
		return "geometry"
	default:
		return "geom"
	}
}

func (s *FileSource) FeatureCollection(ctx context.Context, q bcat.Query) (*geojson.FeatureCollection, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}

	start := time.Now()
	fc, err := s.read(ctx, q.RegionCode)
	s.metrics.ObserveQuery(string(q.Dataset), err, time.Since(start))
	if err != nil {
		return nil, fmt.Errorf("local source %s: %w", filepath.Base(s.path), err)
	}
	logger.FromContext(ctx, s.log).Debug().
		Str("file", s.path).
		Str("region", q.RegionCode).
		Int("features", len(fc.Features)).
		Msg("local query done")
	return fc, nil
}

func (s *FileSource) read(ctx context.Context, region string) (*geojson.FeatureCollection, error) {
	rows, err := s.db.QueryContext(ctx, scanQuery(s.path), s.path)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	fc := geojson.NewFeatureCollection()
	gcol := geomColumn(s.path)
	for rows.Next() {
		values := make([]any, len(columns))
		valuePtrs := make([]any, len(columns))
		for i := range values {
			valuePtrs[i] = &values[i]
		}
		if err := rows.Scan(valuePtrs...); err != nil {
			return nil, err
		}

		row := make(map[string]any, len(columns))
		for i, col := range columns {
			row[col] = values[i]
		}
		f, err := rowFeature(row, gcol)
		if err != nil {
			return nil, err
		}
		if f != nil && inRegion(f, region) {
			fc.Append(f)
		}
	}
	return fc, rows.Err()
}

// rowFeature turns a scanned row into a feature. A NULL geometry yields nil.
func rowFeature(row map[string]any, gcol string) (*geojson.Feature, error) {
	var text []byte
	switch g := row[gcol].(type) {
	case nil:
		return nil, nil
	case string:
		text = []byte(g)
	case []byte:
		text = g
	default:
		return nil, fmt.Errorf("geometry column %q has type %T", gcol, g)
	}

	geom, err := geojson.UnmarshalGeometry(text)
	if err != nil {
		return nil, fmt.Errorf("decode geometry: %w", err)
	}
	if geom.Geometry() == nil {
		return nil, errors.New("decode geometry: empty")
	}

	f := geojson.NewFeature(geom.Geometry())
	for k, v := range row {
		if k != gcol {
			f.Properties[k] = v
		}
	}
	return f, nil
}

// inRegion keeps features whose region property matches; an empty region
// or a feature without the property is kept.
func inRegion(f *geojson.Feature, region string) bool {
	if region == "" {
		return true
	}
	v, ok := f.Properties["state_abbr"].(string)
	return !ok || strings.EqualFold(v, region)
}
