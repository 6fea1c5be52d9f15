package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gofrs/flock"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/neo-alexandria/neoalex/internal/ai"
	"github.com/neo-alexandria/neoalex/internal/api"
	"github.com/neo-alexandria/neoalex/internal/authority"
	"github.com/neo-alexandria/neoalex/internal/bus"
	"github.com/neo-alexandria/neoalex/internal/config"
	"github.com/neo-alexandria/neoalex/internal/ingest"
	"github.com/neo-alexandria/neoalex/internal/logging"
	"github.com/neo-alexandria/neoalex/internal/search"
	"github.com/neo-alexandria/neoalex/internal/store"
	"github.com/neo-alexandria/neoalex/internal/taxonomy"
	"github.com/neo-alexandria/neoalex/internal/telemetry"
	"github.com/neo-alexandria/neoalex/pkg/version"
)

// newServeCmd creates the serve command.
func newServeCmd() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the retrieval service",
		Long: `Start the HTTP gateway: search, authority, taxonomy and resource
endpoints over the data directory. The config file is watched and the
fusion weights reload without a restart.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context(), addr)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (overrides config)")

	return cmd
}

func runServe(ctx context.Context, addrOverride string) error {
	cfgPath := configPath
	if cfgPath == "" {
		dd := dataDir
		if dd == "" {
			dd = config.Default().DataDir
		}
		cfgPath = filepath.Join(dd, "config.yaml")
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return err
	}
	if dataDir != "" {
		cfg.DataDir = dataDir
	}
	if addrOverride != "" {
		cfg.Server.Addr = addrOverride
	}
	if debugMode {
		cfg.Logging.Level = "debug"
	}

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return fmt.Errorf("create data directory: %w", err)
	}

	logFile := cfg.Logging.File
	if logFile == "" {
		logFile = filepath.Join(cfg.DataDir, "logs", "neoalex.log")
	}
	logCleanup, err := logging.SetupDefault(logging.Config{
		Level:         cfg.Logging.Level,
		FilePath:      logFile,
		MaxSizeMB:     cfg.Logging.MaxSizeMB,
		MaxFiles:      cfg.Logging.MaxFiles,
		WriteToStderr: cfg.Logging.WriteToStderr,
	})
	if err != nil {
		return fmt.Errorf("setup logging: %w", err)
	}
	defer logCleanup()

	// One process per data directory. The HNSW index and the Bleve backend
	// cannot be shared across processes.
	lock := flock.New(filepath.Join(cfg.DataDir, ".neoalex.lock"))
	acquired, err := lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire data directory lock: %w", err)
	}
	if !acquired {
		return fmt.Errorf("data directory %s is in use by another neoalex process", cfg.DataDir)
	}
	defer func() { _ = lock.Unlock() }()

	slog.Info("starting neoalex",
		"version", version.Version,
		"data_dir", cfg.DataDir,
		"addr", cfg.Server.Addr)

	resources, err := store.NewSQLiteResourceStore(filepath.Join(cfg.DataDir, "catalog.db"))
	if err != nil {
		return fmt.Errorf("open resource store: %w", err)
	}
	defer func() { _ = resources.Close() }()

	lexical, err := store.NewLexicalIndex(filepath.Join(cfg.DataDir, "lexical"),
		store.DefaultLexicalConfig(), cfg.Search.LexicalBackend)
	if err != nil {
		return fmt.Errorf("open lexical index: %w", err)
	}
	defer func() { _ = lexical.Close() }()

	dense, err := store.NewHNSWDenseIndex(store.DefaultDenseConfig(cfg.AI.Dimensions))
	if err != nil {
		return fmt.Errorf("create dense index: %w", err)
	}
	densePath := filepath.Join(cfg.DataDir, "dense.hnsw")
	if _, err := os.Stat(densePath); err == nil {
		if err := dense.Load(densePath); err != nil {
			slog.Warn("dense index load failed, rebuilding", "error", err)
		}
	}

	sparse := store.NewMemSparseIndex()
	sparsePath := filepath.Join(cfg.DataDir, "sparse.idx")
	if _, err := os.Stat(sparsePath); err == nil {
		if err := sparse.Load(sparsePath); err != nil {
			slog.Warn("sparse index load failed, rebuilding", "error", err)
		}
	}

	var client ai.Client = ai.NewHTTPClient(ai.HTTPConfig{
		Endpoint:   cfg.AI.Endpoint,
		Dimensions: cfg.AI.Dimensions,
		Timeout:    cfg.AI.Timeout,
	})
	if cfg.AI.StaticFallback {
		client = ai.NewFallbackClient(client, nil)
	}
	defer func() { _ = client.Close() }()

	eventBus := bus.New(bus.Options{
		HistoryCapacity:      cfg.Bus.HistoryCapacity,
		SlowHandlerThreshold: cfg.Bus.SlowHandlerThreshold,
	})

	authStore, err := authority.NewStore(resources.DB())
	if err != nil {
		return fmt.Errorf("open authority store: %w", err)
	}
	authSvc := authority.NewService(authStore)

	taxSvc, err := taxonomy.NewService(resources.DB())
	if err != nil {
		return fmt.Errorf("open taxonomy store: %w", err)
	}

	coord := ingest.New(resources, lexical, dense, sparse, client, authSvc, eventBus)
	if dense.Count() == 0 || sparse.Count() == 0 {
		if err := coord.RebuildIndexes(ctx); err != nil {
			return fmt.Errorf("rebuild vector indexes: %w", err)
		}
	}
	slog.Info("indexes ready",
		"lexical", lexical.Count(),
		"dense", dense.Count(),
		"sparse", sparse.Count())

	engine := search.NewEngine(search.Config{
		LexicalWeight: cfg.Search.LexicalWeight,
		DenseWeight:   cfg.Search.DenseWeight,
		SparseWeight:  cfg.Search.SparseWeight,
		RRFConstant:   cfg.Search.RRFConstant,
		DefaultLimit:  cfg.Search.DefaultLimit,
		MaxLimit:      cfg.Search.MaxLimit,
		RerankTopKCap: cfg.Search.RerankTopKCap,
		RerankTimeout: cfg.Search.RerankTimeout,
		LegTimeout:    cfg.Search.LegTimeout,
	}, resources, lexical, dense, sparse, client)

	rerankCache, err := search.NewRerankCache(cfg.Search.RerankCacheSize)
	if err != nil {
		return fmt.Errorf("create rerank cache: %w", err)
	}

	server := api.NewServer(api.Options{
		Engine:      engine,
		RerankCache: rerankCache,
		Authority:   authSvc,
		Taxonomy:    taxSvc,
		Ingest:      coord,
		Telemetry:   telemetry.NewCollector(),
		Bus:         eventBus,
	})

	httpSrv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           server.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		slog.Info("listening", "addr", cfg.Server.Addr)
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		slog.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	})

	// Fusion weights reload live; everything else needs a restart.
	g.Go(func() error {
		err := config.Watch(ctx, cfgPath, func(next *config.Config) {
			engine.UpdateWeights(
				next.Search.LexicalWeight,
				next.Search.DenseWeight,
				next.Search.SparseWeight,
				next.Search.RRFConstant)
			slog.Info("search weights updated",
				"lexical", next.Search.LexicalWeight,
				"dense", next.Search.DenseWeight,
				"sparse", next.Search.SparseWeight,
				"rrf_constant", next.Search.RRFConstant)
		})
		if err != nil && !errors.Is(err, context.Canceled) {
			slog.Warn("config watcher stopped", "error", err)
		}
		return nil
	})

	err = g.Wait()

	if serr := dense.Save(densePath); serr != nil {
		slog.Warn("dense index save failed", "error", serr)
	}
	if serr := sparse.Save(sparsePath); serr != nil {
		slog.Warn("sparse index save failed", "error", serr)
	}

	slog.Info("stopped")
	return err
}
