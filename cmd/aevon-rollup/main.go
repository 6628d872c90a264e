package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	rollup "github.com/aevon-lab/aevon-rollup/internal/aggregation"
	corecfg "github.com/aevon-lab/aevon-rollup/internal/core/config"
	coreerr "github.com/aevon-lab/aevon-rollup/internal/core/errors"
	"github.com/aevon-lab/aevon-rollup/internal/core/storage"
	badgerstore "github.com/aevon-lab/aevon-rollup/internal/core/storage/badger"
	"github.com/aevon-lab/aevon-rollup/internal/core/storage/memory"
	"github.com/aevon-lab/aevon-rollup/internal/core/storage/postgres"
	"github.com/aevon-lab/aevon-rollup/internal/ingestion"
	"github.com/aevon-lab/aevon-rollup/internal/migrations"
	"github.com/aevon-lab/aevon-rollup/internal/projection"
	"github.com/aevon-lab/aevon-rollup/internal/server"
)

const badgerGCInterval = 10 * time.Minute

func main() {
	configPath := flag.String("config", "aevon.yaml", "Path to configuration file")
	flag.Parse()

	// 0. Initialize Logger
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	// 1. Load Configuration
	cfg, err := corecfg.Load(*configPath)
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}
	slog.Info("Loaded config",
		"database_type", cfg.Database.Type,
		"aggregations", len(cfg.Definitions),
		"late_policy", cfg.Aggregation.LatePolicy,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 2. Initialize Storage
	store, closeStore, err := openStore(cfg.Database)
	if err != nil {
		slog.Error("Failed to initialize bucket store", "type", cfg.Database.Type, "error", err)
		os.Exit(1)
	}
	defer closeStore()

	var bucketStore storage.BucketStore = store
	if cfg.Breaker.Enabled {
		bucketStore = storage.NewBreakerStore(store, storage.BreakerConfig{
			FailureThreshold: cfg.Breaker.FailureThreshold,
			Timeout:          cfg.Breaker.BreakerTimeout(),
			MaxRequests:      cfg.Breaker.MaxRequests,
		})
	}

	// 3. Build one chain per aggregation definition
	latePolicy, err := rollup.ParseLatePolicy(cfg.Aggregation.LatePolicy)
	if err != nil {
		slog.Error("Invalid late policy", "error", err)
		os.Exit(1)
	}
	var chains []*rollup.Chain
	if cfg.Aggregation.Enabled {
		for _, def := range cfg.Definitions {
			chains = append(chains, rollup.NewChain(def, bucketStore, rollup.Options{
				Shards:       cfg.Aggregation.Shards,
				LatePolicy:   latePolicy,
				SkipReplayed: cfg.Aggregation.SkipReplayed,
				Lookback:     cfg.Recovery.LookbackWindow(),
			}))
			slog.Info("Aggregation loaded",
				"aggregation", def.Name,
				"source_event", def.SourceEvent,
				"granularities", len(def.Granularities),
				"fingerprint", def.Fingerprint,
			)
		}
	} else {
		slog.Info("Aggregation disabled by config")
	}

	// 4. Recover open buckets before any ingest is accepted
	if err := rollup.NewCoordinator(chains...).Run(ctx); err != nil {
		if errors.Is(err, coreerr.ErrRecovery) {
			slog.Error("Recovery failed, refusing to start", "error", err)
		} else {
			slog.Error("Recovery stopped", "error", err)
		}
		closeStore()
		os.Exit(1)
	}

	// 5. Initialize Ingestion and Projection (query API)
	ingestionSvc := ingestion.NewService(chains, cfg.Server.MaxBodySizeMB)
	projectionSvc := projection.NewService(bucketStore, chains)

	// 6. Initialize Server
	var pinger storage.Pinger
	if p, ok := bucketStore.(storage.Pinger); ok {
		pinger = p
	}
	srv := server.New(cfg.Server.Addr(), pinger, cfg.Server.Mode, ingestionSvc, projectionSvc)

	// 7. Maintenance: idle sweep, retention, final flush on shutdown
	retentionInterval, maxAge, err := cfg.Retention.Policy()
	if err != nil {
		slog.Error("Invalid retention policy", "error", err)
		os.Exit(1)
	}
	scheduler := rollup.NewScheduler(chains, rollup.SchedulerOptions{
		SweepInterval: cfg.Aggregation.SweepEvery(),
		IdleAfter:     cfg.Aggregation.IdleAfter(),
		Retention: rollup.RetentionPolicy{
			Interval: retentionInterval,
			MaxAge:   maxAge,
		},
	})

	// Signal handler → triggers the shutdown sequence below.
	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
		<-quit
		slog.Info("Signal received, shutting down...")
		cancel()
	}()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return scheduler.Start(gctx)
	})
	g.Go(func() error {
		// HTTP server blocks until ctx is cancelled.
		return srv.Run(gctx)
	})
	if b, ok := store.(*badgerstore.Store); ok {
		g.Go(func() error {
			runBadgerGC(gctx, b)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		slog.Error("Service stopped with error", "error", err)
	}

	slog.Info("Shutdown complete")
}

// openStore selects the bucket store backend. The returned close func is safe to call twice.
func openStore(cfg corecfg.DatabaseConfig) (storage.BucketStore, func(), error) {
	switch cfg.Type {
	case "postgres":
		db, err := postgres.Open(cfg.DSN, cfg.MaxOpenConns, cfg.MaxIdleConns)
		if err != nil {
			return nil, nil, err
		}
		if err := migrations.RunMigrations(db, cfg.AutoMigrate); err != nil {
			db.Close()
			return nil, nil, err
		}
		return postgres.NewBucketAdapter(db), closeOnce(func() error { return db.Close() }), nil

	case "badger":
		s, err := badgerstore.New(badgerstore.Config{
			Path:        cfg.Path,
			InMemory:    cfg.InMemory,
			MaxMemoryMB: cfg.MaxMemoryMB,
		})
		if err != nil {
			return nil, nil, err
		}
		return s, closeOnce(s.Close), nil

	default:
		return memory.NewStore(), func() {}, nil
	}
}

func closeOnce(fn func() error) func() {
	done := false
	return func() {
		if done {
			return
		}
		done = true
		if err := fn(); err != nil && !errors.Is(err, sql.ErrConnDone) {
			slog.Error("Failed to close bucket store", "error", err)
		}
	}
}

func runBadgerGC(ctx context.Context, s *badgerstore.Store) {
	ticker := time.NewTicker(badgerGCInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.RunGC(0.5); err != nil {
				slog.Debug("[Badger] Value log GC skipped", "error", err)
			}
		}
	}
}
