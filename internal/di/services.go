package di

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/aristath/foresight/internal/clients/binance"
	"github.com/aristath/foresight/internal/clients/executor"
	"github.com/aristath/foresight/internal/clients/gamma"
	"github.com/aristath/foresight/internal/clients/marketws"
	"github.com/aristath/foresight/internal/clients/sentiment"
	"github.com/aristath/foresight/internal/config"
	"github.com/aristath/foresight/internal/domain"
	"github.com/aristath/foresight/internal/modules/admit"
	"github.com/aristath/foresight/internal/modules/detect"
	"github.com/aristath/foresight/internal/modules/engine"
	"github.com/aristath/foresight/internal/modules/history"
	"github.com/aristath/foresight/internal/modules/ledger"
	"github.com/aristath/foresight/internal/modules/lifecycle"
	"github.com/aristath/foresight/internal/modules/rank"
	"github.com/aristath/foresight/internal/modules/reference"
	"github.com/aristath/foresight/internal/modules/sizing"
	"github.com/aristath/foresight/internal/reliability"
)

// InitializeServices builds clients, shared pipeline stages and one trading
// stack per capital pool.
func InitializeServices(ctx context.Context, container *Container, cfg *config.Config, log zerolog.Logger) error {
	// External clients
	container.Gamma = gamma.NewClient(cfg.GammaBaseURL, log)
	container.Binance = binance.NewClient(cfg.BinanceBaseURL, log)
	if cfg.SentimentURL != "" {
		container.Sentiment = sentiment.NewClient(cfg.SentimentURL, log)
	}
	container.Venue = executor.NewPaper(0, log)
	if cfg.UseWebsocket {
		container.Stream = marketws.NewPriceFeed(cfg.MarketWSURL, cfg.WSStaleAfter, log)
	}

	// Shared pipeline stages
	container.Settings = config.NewSettings(cfg.Engine)
	container.Registry = detect.NewRegistry(log)
	container.Ranker = rank.NewRanker(log)
	container.Sizer = sizing.NewModel(log)
	container.Reference = reference.NewService(container.Binance, container.Klines, log)

	archive, err := history.NewArchive(container.ArchiveDB, log)
	if err != nil {
		return fmt.Errorf("failed to initialize cycle archive: %w", err)
	}
	container.Archive = archive

	if err := buildPools(container, cfg, log); err != nil {
		return err
	}

	if cfg.BackupEnabled {
		if err := initializeBackups(ctx, container, cfg, log); err != nil {
			return err
		}
	}

	return nil
}

// poolSpec names one capital pool and optionally pins it to a strategy.
type poolSpec struct {
	name string
	only *domain.Strategy
}

// poolSpecs derives the pool layout. A strategy filter always wins; isolated
// mode otherwise runs one pool per strategy for A/B comparison.
func poolSpecs(cfg *config.Config) ([]poolSpec, error) {
	if cfg.StrategyFilter != "" {
		only, err := domain.ParseStrategy(cfg.StrategyFilter)
		if err != nil {
			return nil, fmt.Errorf("STRATEGY_FILTER: %w", err)
		}
		return []poolSpec{{name: poolName(only), only: &only}}, nil
	}

	if cfg.PoolMode == "isolated" {
		strategies := domain.Strategies()
		specs := make([]poolSpec, 0, len(strategies))
		for _, s := range strategies {
			s := s
			specs = append(specs, poolSpec{name: poolName(s), only: &s})
		}
		return specs, nil
	}

	return []poolSpec{{name: "combined"}}, nil
}

func poolName(s domain.Strategy) string {
	return strings.ToLower(s.String())
}

// buildPools loads (or seeds) each pool's ledger and assembles its exit
// manager, admission filter and engine. Every pool gets its own stop
// tracker so lockouts never leak across pools.
func buildPools(container *Container, cfg *config.Config, log zerolog.Logger) error {
	specs, err := poolSpecs(cfg)
	if err != nil {
		return err
	}

	params := cfg.Engine
	stopWindow := time.Duration(params.StopWindowHours) * time.Hour
	cooldownWindow := time.Duration(params.MRCooldownHours) * time.Hour

	for _, spec := range specs {
		store := ledger.NewStore(filepath.Join(cfg.DataDir, "ledger-"+spec.name+".json"), log)
		pool, err := store.Load(spec.name, cfg.InitialBalance)
		if err != nil {
			return fmt.Errorf("failed to load %s ledger: %w", spec.name, err)
		}

		stopsPath := filepath.Join(cfg.DataDir, "stops-"+spec.name+".json")
		stops := lifecycle.NewStopTracker(stopsPath, stopWindow, log)
		cooldowns := lifecycle.NewCooldowns(cooldownWindow)

		// Interface fields stay untyped-nil when the client is absent.
		var exitStream lifecycle.StreamPrices
		if container.Stream != nil {
			exitStream = container.Stream
		}
		exits := lifecycle.NewManager(pool, store, container.Gamma, exitStream, cooldowns, stops, log)

		var screen admit.Screen
		if container.Sentiment != nil {
			screen = container.Sentiment
		}
		filter := admit.NewFilter(pool, stops, screen, log)

		var subscriber engine.Subscriber
		if container.Stream != nil {
			subscriber = container.Stream
		}
		eng := engine.New(engine.Deps{
			Pool:      pool,
			Store:     store,
			Scanner:   container.Gamma,
			Reference: container.Reference,
			Registry:  container.Registry,
			Ranker:    container.Ranker,
			Filter:    filter,
			Sizer:     container.Sizer,
			Venue:     container.Venue,
			Exits:     exits,
			Archive:   container.Archive,
			Settings:  container.Settings,
			Stream:    subscriber,
			Only:      spec.only,
		}, log)

		container.Pools = append(container.Pools, pool)
		container.Stores = append(container.Stores, store)
		container.Filters = append(container.Filters, filter)
		container.Engines = append(container.Engines, eng)
		container.StateFiles = append(container.StateFiles, store.Path(), stopsPath)
	}

	container.Supervisor = engine.NewSupervisor(container.Engines, log)

	log.Info().
		Int("pools", len(container.Pools)).
		Str("mode", cfg.PoolMode).
		Msg("Capital pools assembled")
	return nil
}

// initializeBackups wires the backup service over the S3 client and
// registers every state source: per-pool ledgers and stop trackers, plus
// the cycle archive. The kline store is excluded as rebuildable.
func initializeBackups(ctx context.Context, container *Container, cfg *config.Config, log zerolog.Logger) error {
	s3, err := reliability.NewS3Client(ctx, reliability.S3Config{
		Endpoint:        cfg.S3Endpoint,
		Region:          cfg.S3Region,
		Bucket:          cfg.S3Bucket,
		AccessKeyID:     cfg.S3AccessKeyID,
		SecretAccessKey: cfg.S3SecretAccessKey,
	}, log)
	if err != nil {
		return fmt.Errorf("failed to initialize backup storage client: %w", err)
	}

	backups := reliability.NewBackupService(s3, cfg.DataDir, log)
	for _, file := range container.StateFiles {
		backups.AddFile(file)
	}
	backups.AddDatabase(container.ArchiveDB)
	container.Backups = backups

	return nil
}
