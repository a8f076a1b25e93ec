package api

import (
	"context"

	"github.com/danielgtaylor/huma/v2"

	"github.com/joeblew999/plat-bcat/internal/bcat"
)

type InfoHandler struct {
	version string
	source  string
	query   bcat.Query
}

// NewInfoHandler describes the running service; source names where
// features come from ("graphql" or "local").
func NewInfoHandler(version, source string, q bcat.Query) *InfoHandler {
	return &InfoHandler{version: version, source: source, query: q}
}

func (h *InfoHandler) RegisterRoutes(api huma.API) {
	huma.Get(api, "/api/v1/info", h.GetInfo, huma.OperationTags("health"))
}

type InfoBody struct {
	Name     string   `json:"name" doc:"Service name"`
	Version  string   `json:"version" doc:"Service version"`
	Source   string   `json:"source" doc:"Feature source" enum:"graphql,local"`
	Dataset  string   `json:"dataset" doc:"Dataset shown by the panel"`
	Region   string   `json:"region" doc:"Region shown by the panel"`
	Features []string `json:"features" doc:"Available features"`
}

func (h *InfoHandler) GetInfo(ctx context.Context, input *struct{}) (*struct{ Body InfoBody }, error) {
	return &struct{ Body InfoBody }{Body: InfoBody{
		Name:     "plat-bcat",
		Version:  h.version,
		Source:   h.source,
		Dataset:  string(h.query.Dataset),
		Region:   h.query.RegionCode,
		Features: []string{"geojson", "graphql", "datastar", "duckdb"},
	}}, nil
}
