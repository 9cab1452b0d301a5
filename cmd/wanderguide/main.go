package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"slices"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"wanderguide/internal/api"
	"wanderguide/pkg/cache"
	"wanderguide/pkg/config"
	"wanderguide/pkg/conversation"
	"wanderguide/pkg/core"
	"wanderguide/pkg/db"
	"wanderguide/pkg/db/maintenance"
	"wanderguide/pkg/llm/gemini"
	"wanderguide/pkg/logging"
	"wanderguide/pkg/model"
	"wanderguide/pkg/notify"
	"wanderguide/pkg/places"
	"wanderguide/pkg/probe"
	"wanderguide/pkg/request"
	"wanderguide/pkg/session"
	"wanderguide/pkg/store"
	"wanderguide/pkg/tracker"
	"wanderguide/pkg/version"
	"wanderguide/pkg/watcher"
	"wanderguide/pkg/wikipedia"
)

const defaultConfigPath = "configs/wanderguide.yaml"

var initConfig = flag.Bool("init-config", false, "Generate default config file and exit")

func main() {
	flag.Parse()

	if *initConfig {
		if err := config.GenerateDefault(defaultConfigPath); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to generate config: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("Config file generated: " + defaultConfigPath)
		return
	}

	// Secrets may live in a local .env; a missing file is fine.
	_ = godotenv.Load()

	if err := run(context.Background(), defaultConfigPath); err != nil {
		fmt.Fprintf(os.Stderr, "CRITICAL ERROR: Application failed: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, configPath string) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	appCfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	cleanupLogs, err := logging.Init(&appCfg.Log)
	if err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	defer cleanupLogs()

	slog.Info("WanderGuide Started", "version", version.Version)

	dbConn, st, err := initDB(appCfg)
	if err != nil {
		return err
	}
	defer dbConn.Close()

	if err := maintenance.Run(ctx, st, appCfg.Places.CatalogPath, time.Duration(appCfg.Cache.HTTPTTL)); err != nil {
		slog.Error("Maintenance tasks failed", "error", err)
	}

	cfgProv := config.NewProvider(appCfg, st)
	tr := tracker.New()

	svcs, err := initCoreServices(ctx, appCfg, st, tr)
	if err != nil {
		return err
	}
	defer svcs.Close()

	if appCfg.Places.WatchCatalog {
		catalogWatcher := watchCatalog(ctx, appCfg.Places.CatalogPath, st, svcs.Catalog)
		if catalogWatcher != nil {
			defer catalogWatcher.Stop()
		}
	}

	channel, err := conversation.New(appCfg.Channel)
	if err != nil {
		return fmt.Errorf("failed to initialize channel: %w", err)
	}
	if c, ok := channel.(conversation.Closer); ok {
		defer c.Close()
	}

	bus := notify.NewBus()
	bus.LogEvents = true
	defer bus.Close()

	src, err := initLocationSource(appCfg)
	if err != nil {
		return fmt.Errorf("failed to initialize location source: %w", err)
	}
	defer func() {
		if err := src.Stop(); err != nil {
			slog.Warn("Failed to stop location source", "error", err)
		}
	}()

	dispatcher := core.NewDispatcher(core.Deps{
		Config:   cfgProv,
		Sessions: session.NewManager(session.DefaultLedgerConfig()),
		Lookup:   svcs.Lookup,
		Enricher: svcs.Enricher,
		Channel:  channel,
		Store:    st,
		Bus:      bus,
		Tracker:  tr,
	})
	defer dispatcher.Close()

	sched := setupScheduler(appCfg, cfgProv, src, dispatcher, bus, st, svcs)

	// Startup Probes
	results := probe.Run(ctx, startupProbes(appCfg, st, svcs))
	if err := probe.AnalyzeResults(results); err != nil {
		return fmt.Errorf("startup checks failed: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		// A denied permission ends the stream but the API keeps serving.
		if err := sched.Run(gctx); err != nil {
			slog.Error("Location scheduler stopped", "error", err)
		}
		return nil
	})
	g.Go(func() error {
		defer cancel()
		return runServer(gctx, appCfg, cfgProv, st, tr, svcs, src, dispatcher, bus)
	})
	return g.Wait()
}

func initDB(appCfg *config.Config) (*db.DB, *store.SQLiteStore, error) {
	dbConn, err := db.Init(appCfg.DB.Path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	return dbConn, store.NewSQLiteStore(dbConn), nil
}

// CoreServices are the lookup and enrichment stack shared by the engine and the API.
type CoreServices struct {
	ReqClient       *request.Client
	HTTPCache       *cache.Layered
	Catalog         *places.Catalog
	Lookup          places.Lookup
	Enricher        places.Enricher
	PlacesCache     *cache.Cache[string, []model.POI]
	EnrichCache     *cache.Cache[string, model.Enrichment]
	LLM             *gemini.Client
	PlacesHealthURL string // probed at startup; empty for offline providers
}

// Close releases clients that hold background workers.
func (s *CoreServices) Close() {
	s.ReqClient.Close()
	if s.LLM != nil {
		s.LLM.Close()
	}
}

func initCoreServices(ctx context.Context, cfg *config.Config, st *store.SQLiteStore, tr *tracker.Tracker) (*CoreServices, error) {
	cacheOpts := cache.Options{
		Capacity:    cfg.Cache.Capacity,
		PositiveTTL: time.Duration(cfg.Cache.PositiveTTL),
		NegativeTTL: time.Duration(cfg.Cache.NegativeTTL),
	}

	httpCache := cache.NewLayered(cache.New[string, []byte](cacheOpts), st)
	reqClient := request.New(httpCache, tr, request.Options{
		Timeout:     time.Duration(cfg.Request.Timeout),
		MaxAttempts: cfg.Request.Retries,
		BaseDelay:   time.Duration(cfg.Request.Backoff.BaseDelay),
		MaxDelay:    time.Duration(cfg.Request.Backoff.MaxDelay),
	})
	wpClient := wikipedia.NewClient(reqClient)

	catalog := places.NewCatalog(cfg.Places.H3Resolution, st)
	if n, err := catalog.LoadStore(ctx); err != nil {
		slog.Warn("Failed to load landmark catalog", "error", err)
	} else {
		slog.Info("Landmark catalog ready", "pois", n)
	}

	svcs := &CoreServices{
		ReqClient:   reqClient,
		HTTPCache:   httpCache,
		Catalog:     catalog,
		PlacesCache: cache.New[string, []model.POI](cacheOpts),
		EnrichCache: cache.New[string, model.Enrichment](cacheOpts),
	}

	var lookup places.Lookup
	switch cfg.Places.Provider {
	case "catalog":
		lookup = catalog
	case "http":
		lookup = places.NewHTTPLookup(reqClient, cfg.Places.Endpoint, cfg.Places.Key)
		svcs.PlacesHealthURL = cfg.Places.Endpoint
	case "wikipedia", "":
		lookup = places.NewWikipediaLookup(wpClient, cfg.Places.Language)
		svcs.PlacesHealthURL = wikipediaAPI(cfg.Places.Language)
	default:
		return nil, fmt.Errorf("unknown places provider %q", cfg.Places.Provider)
	}
	svcs.Lookup = places.NewCachedLookup(lookup, svcs.PlacesCache, cfg.Places.H3Resolution)

	if cfg.LLM.Provider == "gemini" {
		llmClient, err := gemini.NewClient(cfg.LLM, cfg.Log.Gemini.Path, tr)
		if err != nil {
			slog.Warn("LLM provider unavailable", "error", err)
		} else {
			svcs.LLM = llmClient
		}
	}

	lang := cfg.Enrichment.Language
	var chain []places.NamedEnricher
	for _, name := range cfg.Enrichment.Providers {
		var e places.Enricher
		switch name {
		case "catalog":
			e = catalog
		case "wikipedia":
			e = places.NewWikipediaEnricher(wpClient, lang)
		case "http":
			e = places.NewHTTPEnricher(reqClient, cfg.Places.Endpoint, cfg.Places.Key)
		case "llm":
			if svcs.LLM == nil {
				slog.Warn("Enrichment provider skipped: no LLM", "provider", name)
				continue
			}
			e = places.NewLLMEnricher(svcs.LLM, gemini.IntentEnrichment, lang)
		default:
			return nil, fmt.Errorf("unknown enrichment provider %q", name)
		}
		chain = append(chain, places.NamedEnricher{Name: name, Enricher: e})
	}
	enricher := places.NewChainEnricher(tr.TrackFallback, chain...)
	svcs.Enricher = places.NewCachedEnricher(enricher, svcs.EnrichCache)

	return svcs, nil
}

func wikipediaAPI(lang string) string {
	if lang == "" {
		lang = "en"
	}
	return fmt.Sprintf("https://%s.wikipedia.org/w/api.php", lang)
}

// watchCatalog re-imports the landmark file whenever it changes on disk.
func watchCatalog(ctx context.Context, path string, st maintenance.Store, catalog *places.Catalog) *watcher.Service {
	w, err := watcher.NewService([]string{path}, func(string) {
		n, err := maintenance.ImportCatalog(ctx, st, path)
		if err != nil {
			slog.Warn("Catalog re-import failed", "path", path, "error", err)
			return
		}
		if _, err := catalog.LoadStore(ctx); err != nil {
			slog.Warn("Catalog reload failed", "error", err)
			return
		}
		slog.Info("Catalog reloaded", "path", path, "imported", n, "pois", catalog.Len())
	})
	if err != nil {
		slog.Warn("Failed to initialize catalog watcher", "error", err)
		return nil
	}
	if err := w.Start(ctx); err != nil {
		slog.Warn("Failed to start catalog watcher", "error", err)
		return nil
	}
	return w
}

func setupScheduler(cfg *config.Config, prov config.Provider, src core.LocationSource, d *core.Dispatcher, bus *notify.Bus, st *store.SQLiteStore, svcs *CoreServices) *core.Scheduler {
	sched := core.NewScheduler(prov, src, d, bus)

	sched.AddJob(core.NewEvictionJob(
		time.Duration(cfg.Triggers.CleanupInterval),
		time.Duration(cfg.Cache.HTTPTTL),
		st,
		svcs.PlacesCache,
		svcs.EnrichCache,
		svcs.HTTPCache.Memory(),
	))
	sched.AddJob(core.NewPrefetchJob(cfg.Triggers.PrefetchDistance.Meters(), d))

	return sched
}

func startupProbes(cfg *config.Config, st *store.SQLiteStore, svcs *CoreServices) []probe.Probe {
	probes := []probe.Probe{probe.Database(st)}
	if svcs.PlacesHealthURL != "" {
		probes = append(probes, probe.Endpoint("places ("+cfg.Places.Provider+")", nil, svcs.PlacesHealthURL))
	}
	if slices.Contains(cfg.Enrichment.Providers, "llm") {
		// A nil *gemini.Client must reach the probe as a nil interface.
		var hc probe.HealthChecker
		if svcs.LLM != nil {
			hc = svcs.LLM
		}
		probes = append(probes, probe.LLM(hc))
	}
	return probes
}

func runServer(ctx context.Context, cfg *config.Config, prov config.Provider, st *store.SQLiteStore, tr *tracker.Tracker, svcs *CoreServices, src api.PositionSource, d *core.Dispatcher, bus *notify.Bus) error {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(quit)
	shutdownFunc := func() { quit <- syscall.SIGTERM }

	statsH := api.NewStatsHandler(tr, map[string]api.CacheStatter{
		"places":     svcs.PlacesCache,
		"enrichment": svcs.EnrichCache,
		"http":       svcs.HTTPCache.Memory(),
	}, d.Sessions())

	srv := api.NewServer(cfg.Server.Address, api.Handlers{
		Sessions:  api.NewSessionHandler(d),
		App:       api.NewAppHandler(d, bus),
		Location:  api.NewLocationHandler(src),
		Config:    api.NewConfigHandler(st, prov),
		Stats:     statsH,
		Events:    api.NewEventsHandler(bus),
		Landmarks: api.NewLandmarkHandler(st),
	}, shutdownFunc)

	srv.Handler = loggingMiddleware(srv.Handler)
	return runServerLifecycle(ctx, srv, quit)
}

func runServerLifecycle(ctx context.Context, srv *http.Server, quit chan os.Signal) error {
	slog.Info("Starting server", "addr", srv.Addr)
	serverErrors := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrors <- err
		}
	}()
	select {
	case <-quit:
		slog.Info("Shutting down server...")
	case <-ctx.Done():
		slog.Info("Context cancelled, shutting down...")
	case err := <-serverErrors:
		return fmt.Errorf("server failed: %w", err)
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		logging.RequestLogger.Info("Request Processed", "method", r.Method, "path", r.URL.Path, "duration", time.Since(start))
	})
}
