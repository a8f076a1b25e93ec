package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/danielgtaylor/huma/v2/humacli"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/joeblew999/plat-bcat/internal/bcat"
	"github.com/joeblew999/plat-bcat/internal/config"
	"github.com/joeblew999/plat-bcat/internal/logger"
	"github.com/joeblew999/plat-bcat/internal/server"
)

// Options defines all CLI flags and env vars for the bcat server.
// Flags: --host, --port, --region, --dataset, --local-source, ...
// Env vars: SERVICE_HOST, SERVICE_PORT, SERVICE_REGION, ...
type Options struct {
	Host        string `doc:"Host to bind to" default:"0.0.0.0"`
	Port        int    `doc:"Port to listen on" short:"p" default:"8087"`
	LogLevel    string `doc:"Log level (trace, debug, info, warn, error)" default:"info"`
	LogConsole  bool   `doc:"Human-readable console logs"`
	EnvFile     string `doc:"Optional .env file with BCAT_API_URL, MAPBOX_TOKEN, APP_VERSION" default:".env"`
	Region      string `doc:"State abbreviation the panel queries" default:"TN"`
	Dataset     string `doc:"GraphQL query field the panel shows" default:"county_broadband_farm_bill_eligibility_geojson"`
	BypassCache bool   `doc:"Ask for fresh data on every query (--bypass-cache=false enables the query cache)" default:"true"`
	LocalSource string `doc:"Serve features from a GeoJSON or GeoParquet file instead of the API"`
	WebDir      string `doc:"Serve templates and static files from this directory, re-reading templates on each page load"`
	RedisAddr   string `doc:"Redis address for a shared query cache"`
	CacheTTL    string `doc:"Query cache lifetime" default:"10m"`
	SessionTTL  string `doc:"Idle panel session lifetime" default:"30m"`
}

func (o *Options) serverConfig() (server.Config, error) {
	app, err := config.Load(o.EnvFile)
	if err != nil {
		return server.Config{}, err
	}
	dataset, err := bcat.ParseDataset(o.Dataset)
	if err != nil {
		return server.Config{}, err
	}
	cacheTTL, err := time.ParseDuration(o.CacheTTL)
	if err != nil {
		return server.Config{}, fmt.Errorf("cache-ttl: %w", err)
	}
	sessionTTL, err := time.ParseDuration(o.SessionTTL)
	if err != nil {
		return server.Config{}, fmt.Errorf("session-ttl: %w", err)
	}
	return server.Config{
		Host:        o.Host,
		Port:        o.Port,
		App:         app,
		Query:       bcat.Query{Dataset: dataset, RegionCode: o.Region, BypassCache: o.BypassCache},
		LocalSource: o.LocalSource,
		WebDir:      o.WebDir,
		RedisAddr:   o.RedisAddr,
		CacheTTL:    cacheTTL,
		SessionTTL:  sessionTTL,
	}, nil
}

func (o *Options) logger() zerolog.Logger {
	return logger.Build(logger.Config{Level: o.LogLevel, Console: o.LogConsole, Component: "bcat"}, os.Stderr)
}

func newServer(ctx context.Context, opts *Options, log *zerolog.Logger) (*server.Server, server.Config, error) {
	cfg, err := opts.serverConfig()
	if err != nil {
		return nil, cfg, err
	}
	srv, err := server.New(ctx, cfg, log)
	return srv, cfg, err
}

// exitOn logs err and exits. Callers return from the function that owns
// the server first, so its deferred Close has already run.
func exitOn(log *zerolog.Logger, err error, msg string) {
	if err == nil {
		return
	}
	log.Error().Err(err).Msg(msg)
	os.Exit(1)
}

func serve(ctx context.Context, opts *Options, log *zerolog.Logger) error {
	srv, cfg, err := newServer(ctx, opts, log)
	if err != nil {
		return fmt.Errorf("server setup: %w", err)
	}
	defer srv.Close()

	displayHost := opts.Host
	if displayHost == "0.0.0.0" {
		displayHost = "localhost"
	}
	baseURL := fmt.Sprintf("http://%s:%d", displayHost, opts.Port)

	fmt.Println()
	fmt.Printf("plat-bcat server starting...\n")
	fmt.Printf("  Server:  %s\n", baseURL)
	fmt.Printf("  Data:    %s (%s)\n", cfg.Query.Dataset, cfg.Query.RegionCode)
	fmt.Println()
	fmt.Printf("  Pages:   %s/, %s/panel\n", baseURL, baseURL)
	fmt.Printf("  Docs:    %s/docs\n", baseURL)
	fmt.Printf("  OpenAPI: %s/openapi.json\n", baseURL)
	fmt.Println()

	return srv.Run(ctx)
}

func writeSpec(ctx context.Context, opts *Options, useYAML bool) error {
	log := zerolog.Nop()
	srv, _, err := newServer(ctx, opts, &log)
	if err != nil {
		return err
	}
	defer srv.Close()
	spec := srv.OpenAPI()

	var output []byte
	if useYAML {
		output, err = yaml.Marshal(spec)
	} else {
		output, err = json.MarshalIndent(spec, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("marshal spec: %w", err)
	}
	fmt.Println(string(output))
	return nil
}

func fetch(ctx context.Context, opts *Options, log *zerolog.Logger, timeout time.Duration) error {
	srv, cfg, err := newServer(ctx, opts, log)
	if err != nil {
		return fmt.Errorf("server setup: %w", err)
	}
	defer srv.Close()

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	fc, err := srv.Source().FeatureCollection(ctx, cfg.Query)
	if err != nil {
		return err
	}
	out, err := fc.MarshalJSON()
	if err != nil {
		return fmt.Errorf("encode: %w", err)
	}
	fmt.Println(string(out))
	log.Info().Int("features", len(fc.Features)).Msg("fetched")
	return nil
}

func main() {
	cli := humacli.New(func(hooks humacli.Hooks, opts *Options) {
		ctx, cancel := context.WithCancel(context.Background())

		hooks.OnStart(func() {
			log := opts.logger()
			exitOn(&log, serve(ctx, opts, &log), "server error")
		})
		hooks.OnStop(cancel)
	})

	cli.Root().Use = "bcat"
	cli.Root().Short = "Broadband map server for BCAT GIS layers"
	cli.Root().Version = "0.1.0"

	// spec subcommand: export OpenAPI spec
	specCmd := &cobra.Command{
		Use:   "spec",
		Short: "Export OpenAPI spec (JSON by default, --yaml for YAML)",
		Run: humacli.WithOptions(func(cmd *cobra.Command, args []string, opts *Options) {
			useYAML, _ := cmd.Flags().GetBool("yaml")
			if err := writeSpec(cmd.Context(), opts, useYAML); err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}
		}),
	}
	specCmd.Flags().BoolP("yaml", "y", false, "Output as YAML instead of JSON")
	cli.Root().AddCommand(specCmd)

	// fetch subcommand: run the panel's query once and print the collection
	fetchCmd := &cobra.Command{
		Use:   "fetch",
		Short: "Run the feature query once and print the GeoJSON",
		Run: humacli.WithOptions(func(cmd *cobra.Command, args []string, opts *Options) {
			log := opts.logger()
			timeout, _ := cmd.Flags().GetDuration("timeout")
			exitOn(&log, fetch(cmd.Context(), opts, &log, timeout), "fetch")
		}),
	}
	fetchCmd.Flags().Duration("timeout", time.Minute, "Query timeout")
	cli.Root().AddCommand(fetchCmd)

	cli.Run()
}
