package bcat

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/machinebox/graphql"
	"github.com/paulmach/orb/geojson"
	"github.com/rs/zerolog"

	"github.com/joeblew999/plat-bcat/internal/logger"
	"github.com/joeblew999/plat-bcat/internal/metrics"
)

const queryTemplate = `query %[1]s($state_abbr: String!, $skipCache: Boolean) {
  %[1]s(state_abbr: $state_abbr, skipCache: $skipCache) {
    type
    features {
      type
      id
      geometry
      properties
    }
  }
}`

// Document returns the GraphQL document for a dataset.
func Document(d Dataset) string {
	return fmt.Sprintf(queryTemplate, d)
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

func WithLogger(l *zerolog.Logger) Option {
	return func(c *Client) { c.log = l }
}

func WithMetrics(m *metrics.Provider) Option {
	return func(c *Client) { c.metrics = m }
}

// Client queries the BCAT GraphQL API.
type Client struct {
	endpoint   string
	httpClient *http.Client
	gql        *graphql.Client
	log        *zerolog.Logger
	metrics    *metrics.Provider
}

func NewClient(endpoint string, opts ...Option) *Client {
	c := &Client{
		endpoint:   endpoint,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
	for _, o := range opts {
		o(c)
	}
	c.gql = graphql.NewClient(endpoint, graphql.WithHTTPClient(c.httpClient))
	return c
}

// FeatureCollection runs one query. BypassCache is forwarded to the API
// as skipCache and also sent as a Cache-Control hint.
func (c *Client) FeatureCollection(ctx context.Context, q Query) (*geojson.FeatureCollection, error) {
	q = q.Normalize()
	if err := q.Validate(); err != nil {
		return nil, err
	}
	if c.endpoint == "" {
		return nil, errors.New("bcat: API URL is not configured")
	}

	req := graphql.NewRequest(Document(q.Dataset))
	req.Var("state_abbr", q.RegionCode)
	req.Var("skipCache", q.BypassCache)
	if q.BypassCache {
		req.Header.Set("Cache-Control", "no-cache")
	}
	if id := logger.RequestID(ctx); id != "" {
		req.Header.Set("X-Request-ID", id)
	}

	start := time.Now()
	fc, err := c.run(ctx, req, q.Dataset)
	c.metrics.ObserveQuery(string(q.Dataset), err, time.Since(start))
	if err != nil {
		return nil, fmt.Errorf("bcat %s(%s): %w", q.Dataset, q.RegionCode, err)
	}

	logger.FromContext(ctx, c.log).Debug().
		Str("dataset", string(q.Dataset)).
		Str("region", q.RegionCode).
		Int("features", len(fc.Features)).
		Dur("took", time.Since(start)).
		Msg("bcat query done")
	return fc, nil
}

func (c *Client) run(ctx context.Context, req *graphql.Request, d Dataset) (*geojson.FeatureCollection, error) {
	var resp map[string]json.RawMessage
	if err := c.gql.Run(ctx, req, &resp); err != nil {
		return nil, err
	}
	return decodeCollection(resp, d)
}

func decodeCollection(resp map[string]json.RawMessage, d Dataset) (*geojson.FeatureCollection, error) {
	raw, ok := resp[string(d)]
	if !ok || len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, ErrEmptyResponse
	}
	fc, err := geojson.UnmarshalFeatureCollection(raw)
	if err != nil {
		return nil, fmt.Errorf("decode geojson: %w", err)
	}
	return fc, nil
}
