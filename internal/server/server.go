// Package server is the composition root: it wires the feature source,
// cache, session registry, pages and API onto one chi router.
package server

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"net"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/joeblew999/plat-bcat/internal/api"
	"github.com/joeblew999/plat-bcat/internal/api/panelui"
	"github.com/joeblew999/plat-bcat/internal/bcat"
	"github.com/joeblew999/plat-bcat/internal/cache"
	"github.com/joeblew999/plat-bcat/internal/config"
	"github.com/joeblew999/plat-bcat/internal/db"
	"github.com/joeblew999/plat-bcat/internal/humastar"
	"github.com/joeblew999/plat-bcat/internal/logger"
	"github.com/joeblew999/plat-bcat/internal/mapview"
	"github.com/joeblew999/plat-bcat/internal/metrics"
	"github.com/joeblew999/plat-bcat/internal/middleware"
	"github.com/joeblew999/plat-bcat/internal/panel"
	"github.com/joeblew999/plat-bcat/internal/templates"
	"github.com/joeblew999/plat-bcat/web"
)

// Config holds the server configuration.
type Config struct {
	Host string
	Port int

	App config.Config
	// Query is what every panel loads. A zero Query means
	// bcat.DefaultQuery, which bypasses the caches.
	Query bcat.Query

	// LocalSource serves features from a GeoJSON or GeoParquet file
	// through DuckDB instead of the GraphQL API.
	LocalSource string

	// WebDir serves templates and static files from disk instead of the
	// embedded copy, and re-parses the templates on every page load.
	WebDir string

	RedisAddr  string
	CacheSize  int
	CacheTTL   time.Duration
	SessionTTL time.Duration
}

func (c Config) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// Server is the bcat HTTP server.
type Server struct {
	config   Config
	router   chi.Router
	humaAPI  huma.API
	log      *zerolog.Logger
	metrics  *metrics.Provider
	renderer *templates.Renderer
	webFS    fs.FS
	registry *panel.Registry
	bus      *panel.Bus
	source   bcat.Source
	kind     string
	closers  []io.Closer
}

// New creates the server. ctx bounds the startup work (loading the DuckDB
// extensions, pinging Redis).
func New(ctx context.Context, cfg Config, log *zerolog.Logger) (*Server, error) {
	if log == nil {
		nop := zerolog.Nop()
		log = &nop
	}
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = 64
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 10 * time.Minute
	}
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = 30 * time.Minute
	}
	if cfg.Query.Dataset == "" {
		cfg.Query = bcat.DefaultQuery(cmp.Or(cfg.Query.RegionCode, bcat.DefaultRegion))
	}
	cfg.Query = cfg.Query.Normalize()
	if err := cfg.Query.Validate(); err != nil {
		return nil, err
	}

	var webFS fs.FS = web.FS
	if cfg.WebDir != "" {
		webFS = os.DirFS(cfg.WebDir)
	}
	renderer, err := templates.New(webFS, web.TemplatePatterns...)
	if err != nil {
		return nil, fmt.Errorf("templates: %w", err)
	}

	s := &Server{
		config:   cfg,
		log:      log,
		metrics:  metrics.New(cfg.App.AppVersion),
		renderer: renderer,
		webFS:    webFS,
		bus:      panel.NewBus(),
	}
	if err := s.buildSource(ctx); err != nil {
		_ = s.Close()
		return nil, err
	}
	s.registry = panel.NewRegistry(0, cfg.SessionTTL, func() *panel.Panel {
		return panel.New(s.source, cfg.Query, s.log, s.metrics)
	}, s.metrics)

	s.router = chi.NewRouter()
	s.router.Use(middleware.Recover(log))
	s.router.Use(middleware.Logging(log))

	humaConfig := huma.DefaultConfig("plat-bcat API", cfg.App.AppVersion)
	humaConfig.Info.Description = "BCAT broadband map: GeoJSON layers, map views and the data layer panel."
	humaConfig.Servers = []*huma.Server{
		{URL: "http://" + cfg.Addr(), Description: "Local server"},
	}
	// Disable $schema property in responses (cleaner JSON)
	humaConfig.CreateHooks = []func(huma.Config) huma.Config{}
	humaConfig.Transformers = append(humaConfig.Transformers, humastar.LinkTransformer(api.Links))
	s.humaAPI = humachi.New(s.router, humaConfig)

	s.routes()
	return s, nil
}

func (s *Server) buildSource(ctx context.Context) error {
	var src bcat.Source
	if s.config.LocalSource != "" {
		conn, err := db.Open(ctx)
		if err != nil {
			return err
		}
		s.closers = append(s.closers, conn)
		local, err := db.NewFileSource(conn, s.config.LocalSource, s.log, s.metrics)
		if err != nil {
			return err
		}
		src, s.kind = local, "local"
	} else {
		src = bcat.NewClient(s.config.App.GraphQLEndpoint(),
			bcat.WithLogger(s.log),
			bcat.WithMetrics(s.metrics),
		)
		s.kind = "graphql"
	}

	var store cache.Store = cache.NewLRU(s.config.CacheSize, s.config.CacheTTL)
	if s.config.RedisAddr != "" {
		rdb, err := cache.NewRedis(ctx, s.config.RedisAddr)
		if err != nil {
			return err
		}
		s.closers = append(s.closers, rdb)
		store = cache.NewChain(store, rdb)
	}
	s.source = cache.NewSource(src, store, s.config.CacheTTL, s.log, s.metrics)
	return nil
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// OpenAPI returns the generated OpenAPI document.
func (s *Server) OpenAPI() *huma.OpenAPI {
	return s.humaAPI.OpenAPI()
}

// Source is the cached feature source the panels query.
func (s *Server) Source() bcat.Source {
	return s.source
}

// Close closes server resources.
func (s *Server) Close() error {
	var errs []error
	for _, c := range s.closers {
		errs = append(errs, c.Close())
	}
	s.closers = nil
	return errors.Join(errs...)
}

func (s *Server) routes() {
	svc := &api.Services{
		Config:   s.config.App,
		Source:   s.source,
		Registry: s.registry,
		Bus:      s.bus,
		Query:    s.config.Query,
	}
	huma.AutoRegister(s.humaAPI, api.NewAPIHandler(svc))
	api.NewInfoHandler(s.config.App.AppVersion, s.kind, s.config.Query).RegisterRoutes(s.humaAPI)
	panelui.NewPanelHandler(s.registry, s.bus, mapview.NewPanel(s.config.App), s.renderer, s.log).RegisterRoutes(s.humaAPI)

	s.router.Handle("/metrics", s.metrics.Handler())

	static, _ := fs.Sub(s.webFS, "static")
	s.router.Handle("/static/*", http.StripPrefix("/static/", http.FileServerFS(static)))

	// Page routes
	s.router.Get("/", s.handleShell)
	s.router.Get("/panel", s.handlePanel)
}

type pageData struct {
	View    mapview.View
	Signals map[string]any
}

func (s *Server) handleShell(w http.ResponseWriter, r *http.Request) {
	s.renderPage(w, r, "shell", pageData{View: mapview.NewShell(s.config.App)})
}

// handlePanel starts a new panel session; the data is fetched when the
// page's load stream connects.
func (s *Server) handlePanel(w http.ResponseWriter, r *http.Request) {
	s.renderPage(w, r, "panel", pageData{
		View: mapview.NewPanel(s.config.App),
		Signals: map[string]any{
			panelui.SignalSession:  logger.NewID(),
			panelui.SignalFeatures: []int{},
			"error":                "",
		},
	})
}

func (s *Server) renderPage(w http.ResponseWriter, r *http.Request, name string, data pageData) {
	log := logger.FromContext(r.Context(), s.log)
	if s.config.WebDir != "" {
		if err := s.renderer.Reload(); err != nil {
			log.Error().Err(err).Msg("reload templates")
			http.Error(w, "Template error", http.StatusInternalServerError)
			return
		}
	}
	html, err := s.renderer.Render(name, data)
	if err != nil {
		log.Error().Err(err).Str("page", name).Msg("render page")
		http.Error(w, "Template error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = io.WriteString(w, html)
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.config.Addr(),
		Handler:           s,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		// No WriteTimeout: /api/v1/panel/events stays open for the page's lifetime.
		IdleTimeout: 60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info().Str("addr", srv.Addr).Str("source", s.kind).Msg("http listen")
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}
