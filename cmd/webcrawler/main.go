// Package main wires together the scrape engine service binary.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/scrape-engine/internal/api"
	"github.com/JakeFAU/scrape-engine/internal/clock/system"
	"github.com/JakeFAU/scrape-engine/internal/config"
	"github.com/JakeFAU/scrape-engine/internal/crawler"
	"github.com/JakeFAU/scrape-engine/internal/extract"
	collyfetcher "github.com/JakeFAU/scrape-engine/internal/fetcher/colly"
	headlessfetcher "github.com/JakeFAU/scrape-engine/internal/fetcher/headless"
	"github.com/JakeFAU/scrape-engine/internal/gate"
	"github.com/JakeFAU/scrape-engine/internal/id/uuid"
	"github.com/JakeFAU/scrape-engine/internal/jobs"
	"github.com/JakeFAU/scrape-engine/internal/logging"
	"github.com/JakeFAU/scrape-engine/internal/metrics"
	"github.com/JakeFAU/scrape-engine/internal/scraper"
	memoryStorage "github.com/JakeFAU/scrape-engine/internal/storage/memory"
	"github.com/JakeFAU/scrape-engine/internal/storage/postgres"
	redisStorage "github.com/JakeFAU/scrape-engine/internal/storage/redis"
)

const startupTimeout = 15 * time.Second

func main() {
	cfgPath := flag.String("config", "", "Path to config file")
	newKeyName := flag.String("create-api-key", "", "Create an API key with this name in the database and exit")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config failed: %v\n", err)
		os.Exit(1)
	}
	logger, err := logging.New(cfg.Logging.Development, cfg.Logging.Level)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init failed: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		if syncErr := logger.Sync(); syncErr != nil {
			fmt.Fprintf(os.Stderr, "logger sync failed: %v\n", syncErr)
		}
	}()
	zap.ReplaceGlobals(logger)

	if *newKeyName != "" {
		if err := createAPIKey(cfg, *newKeyName); err != nil {
			logger.Error("create api key failed", zap.Error(err))
			os.Exit(1)
		}
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, stop, cfg, logger); err != nil {
		logger.Error("service failed", zap.Error(err))
		os.Exit(1)
	}
}

func run(ctx context.Context, stop context.CancelFunc, cfg config.Config, logger *zap.Logger) error {
	metrics.Init()
	clock := system.New()

	startCtx, cancel := context.WithTimeout(ctx, startupTimeout)
	defer cancel()

	cache, pingCache, err := openCache(startCtx, cfg, clock, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := cache.Close(); err != nil {
			logger.Warn("close cache failed", zap.Error(err))
		}
	}()

	var (
		history crawler.HistoryStore
		hist    api.HistoryReader
		keys    api.KeyValidator
		db      *postgres.Store
	)
	if cfg.DB.DSN != "" {
		db, err = openDatabase(startCtx, cfg)
		if err != nil {
			return err
		}
		defer db.Close()
		history, hist, keys = db, db, db
		logger.Info("scrape history enabled", zap.String("table", cfg.DB.Table))
	}

	pages, err := newScraper(cfg, clock, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := pages.Close(); err != nil {
			logger.Warn("close fetchers failed", zap.Error(err))
		}
	}()

	manager, err := jobs.NewManager(
		jobs.Config{DefaultMaxPages: cfg.Crawler.MaxPagesDefault, CacheTTL: cfg.CacheTTL()},
		jobs.Dependencies{
			Store:   memoryStorage.NewJobStore(clock),
			Pages:   pages,
			Cache:   cache,
			History: history,
			IDs:     uuid.New(),
			Clock:   clock,
			Logger:  logger.Named("jobs"),
		},
	)
	if err != nil {
		return fmt.Errorf("build job manager: %w", err)
	}
	service := scraper.NewService(pages, cache, history, cfg.CacheTTL(), logger.Named("scraper"))

	apiServer := api.NewServer(api.Dependencies{
		Jobs:    manager,
		Scraper: service,
		History: hist,
		Keys:    keys,
		Ready: func(ctx context.Context) error {
			if pingCache != nil {
				if err := pingCache(ctx); err != nil {
					return err
				}
			}
			if db != nil {
				return db.Ping(ctx)
			}
			return nil
		},
		Logger: logger.Named("api"),
	}, cfg)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("http server started", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown initiated")

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), cfg.ShutdownTimeout())
	defer cancelShutdown()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", zap.Error(err))
	}
	if err := manager.Close(shutdownCtx); err != nil {
		logger.Error("job manager shutdown error", zap.Error(err))
	}
	logger.Info("shutdown complete")
	return nil
}

func openCache(
	ctx context.Context,
	cfg config.Config,
	clock crawler.Clock,
	logger *zap.Logger,
) (crawler.Cache, func(context.Context) error, error) {
	if cfg.Cache.RedisURL == "" {
		logger.Info("using in-process page cache")
		return memoryStorage.NewPageCache(clock), nil, nil
	}
	cache, err := redisStorage.Open(ctx, cfg.Cache.RedisURL, cfg.Cache.Prefix)
	if err != nil {
		return nil, nil, fmt.Errorf("open redis cache: %w", err)
	}
	logger.Info("using redis page cache", zap.String("prefix", cfg.Cache.Prefix))
	return cache, cache.Ping, nil
}

func openDatabase(ctx context.Context, cfg config.Config) (*postgres.Store, error) {
	db, err := postgres.New(ctx, postgres.Config{
		DSN:      cfg.DB.DSN,
		Table:    cfg.DB.Table,
		MaxConns: int32(cfg.DB.MaxConns),
	})
	if err != nil {
		return nil, fmt.Errorf("open history store: %w", err)
	}
	if err := db.EnsureSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	return db, nil
}

func newScraper(cfg config.Config, clock crawler.Clock, logger *zap.Logger) (*scraper.Scraper, error) {
	static := collyfetcher.New(collyfetcher.Config{
		UserAgent: cfg.Crawler.UserAgent,
		Timeout:   cfg.HTTPTimeout(),
	})

	var rendered crawler.Fetcher = headlessfetcher.NewNoop()
	if cfg.Headless.Enabled {
		headless, err := headlessfetcher.NewChromedp(headlessfetcher.Config{
			UserAgent:         cfg.Crawler.UserAgent,
			NavigationTimeout: time.Duration(cfg.Headless.NavTimeoutSec) * time.Second,
			IdleTimeout:       time.Duration(cfg.Headless.IdleTimeoutSec) * time.Second,
			SettleMin:         time.Duration(cfg.Headless.SettleMinMs) * time.Millisecond,
			SettleMax:         time.Duration(cfg.Headless.SettleMaxMs) * time.Millisecond,
			ExecPath:          cfg.Headless.ExecPath,
		}, logger.Named("headless"))
		if err != nil {
			logger.Warn("headless fetcher init failed", zap.Error(err))
		} else {
			rendered = headless
		}
	}

	pages, err := scraper.New(scraper.Options{
		Gate:      gate.New(cfg.Crawler.MaxConcurrency, metrics.SetFetchInFlight),
		Static:    static,
		Rendered:  rendered,
		Extractor: extract.New(crawler.ContentMode(cfg.Extract.ContentMode)),
		Clock:     clock,
		Logger:    logger.Named("scraper"),
	})
	if err != nil {
		return nil, fmt.Errorf("build scraper: %w", err)
	}
	return pages, nil
}

func createAPIKey(cfg config.Config, name string) error {
	if cfg.DB.DSN == "" {
		return errors.New("db.dsn is required to create API keys")
	}
	ctx, cancel := context.WithTimeout(context.Background(), startupTimeout)
	defer cancel()
	db, err := openDatabase(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	key, err := uuid.NewSecret()
	if err != nil {
		return fmt.Errorf("generate api key: %w", err)
	}
	if err := db.CreateAPIKey(ctx, key, name, ""); err != nil {
		return err
	}
	fmt.Fprintln(os.Stdout, key)
	return nil
}
