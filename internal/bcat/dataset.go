// Package bcat fetches BCAT GeoJSON feature collections.
package bcat

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/paulmach/orb/geojson"
)

var (
	ErrUnknownDataset = errors.New("bcat: unknown dataset")
	ErrEmptyResponse  = errors.New("bcat: empty feature collection response")
)

// Dataset names a GeoJSON query field on the BCAT API.
type Dataset string

const (
	CountyFarmBillEligibility  Dataset = "county_broadband_farm_bill_eligibility_geojson"
	BroadbandUnservedBlocks    Dataset = "broadband_unserved_blocks_geojson"
	IncumbentElectricProviders Dataset = "incumbent_electric_providers_geo_geojson"
)

// DefaultDataset is the collection the data layer panel loads.
const DefaultDataset = CountyFarmBillEligibility

// DefaultRegion is the state the panel shows when none is configured.
const DefaultRegion = "TN"

var datasets = []DatasetInfo{
	{Name: CountyFarmBillEligibility, Title: "County broadband Farm Bill eligibility"},
	{Name: BroadbandUnservedBlocks, Title: "Broadband unserved blocks"},
	{Name: IncumbentElectricProviders, Title: "Incumbent electric providers"},
}

type DatasetInfo struct {
	Name  Dataset `json:"name" doc:"GraphQL query field" example:"county_broadband_farm_bill_eligibility_geojson"`
	Title string  `json:"title" doc:"Display title"`
}

// Datasets lists the known datasets in display order.
func Datasets() []DatasetInfo {
	out := make([]DatasetInfo, len(datasets))
	copy(out, datasets)
	return out
}

func (d Dataset) Valid() bool {
	for _, info := range datasets {
		if info.Name == d {
			return true
		}
	}
	return false
}

// Stem drops the _geojson suffix; map source and layer ids derive from it.
func (d Dataset) Stem() string {
	return strings.TrimSuffix(string(d), "_geojson")
}

func ParseDataset(s string) (Dataset, error) {
	if s == "" {
		return DefaultDataset, nil
	}
	d := Dataset(s)
	if !d.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownDataset, s)
	}
	return d, nil
}

// Query is the parameter set of one feature collection fetch.
type Query struct {
	Dataset     Dataset
	RegionCode  string
	BypassCache bool
}

// DefaultQuery is what the data layer panel asks for: the default dataset
// for region, always fresh.
func DefaultQuery(region string) Query {
	return Query{Dataset: DefaultDataset, RegionCode: region, BypassCache: true}
}

// Normalize trims and upper-cases the region code. Sources and cache keys
// see the same region for "tn" and " TN ".
func (q Query) Normalize() Query {
	q.RegionCode = strings.ToUpper(strings.TrimSpace(q.RegionCode))
	return q
}

func (q Query) Validate() error {
	if !q.Dataset.Valid() {
		return fmt.Errorf("%w: %q", ErrUnknownDataset, q.Dataset)
	}
	return nil
}

// Source fetches a feature collection. Implementations: Client (GraphQL),
// the DuckDB file source and the cache decorator.
type Source interface {
	FeatureCollection(ctx context.Context, q Query) (*geojson.FeatureCollection, error)
}
