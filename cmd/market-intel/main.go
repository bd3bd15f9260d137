package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/nats-io/nats.go"

	"github.com/Checker-Finance/market-intel/internal/api"
	"github.com/Checker-Finance/market-intel/internal/cache"
	"github.com/Checker-Finance/market-intel/internal/coordinator"
	"github.com/Checker-Finance/market-intel/internal/httpclient"
	"github.com/Checker-Finance/market-intel/internal/inventory"
	"github.com/Checker-Finance/market-intel/internal/jobs"
	"github.com/Checker-Finance/market-intel/internal/market"
	"github.com/Checker-Finance/market-intel/internal/provider/brasilapi"
	"github.com/Checker-Finance/market-intel/internal/provider/mercadolivre"
	"github.com/Checker-Finance/market-intel/internal/provider/similar"
	"github.com/Checker-Finance/market-intel/internal/publisher"
	"github.com/Checker-Finance/market-intel/internal/rabbitmq"
	"github.com/Checker-Finance/market-intel/internal/rate"
	internalsecrets "github.com/Checker-Finance/market-intel/internal/secrets"
	"github.com/Checker-Finance/market-intel/internal/statusws"
	"github.com/Checker-Finance/market-intel/pkg/config"
	"github.com/Checker-Finance/market-intel/pkg/eventbus"
	"github.com/Checker-Finance/market-intel/pkg/logger"
	"github.com/Checker-Finance/market-intel/pkg/model"
	"github.com/Checker-Finance/market-intel/pkg/secrets"
	"github.com/Checker-Finance/market-intel/pkg/utils"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --- Load configuration ---
	cfg := config.Load()

	logger.Init(cfg.ServiceName, cfg.Env, cfg.LogLevel)
	defer logger.Sync()
	logg := logger.S()
	logg.Info("starting [market-intel]...")
	logg.Info("connection to DSN: ", utils.MaskDSN(cfg.DatabaseURL))

	// --- Marketplace token (AWS Secrets Manager or static) ---
	stopCleaner := make(chan struct{})
	token := staticToken(cfg.MarketplaceToken)
	var invalidateToken func()
	if cfg.SecretsEnabled {
		awsProvider, err := secrets.NewAWSProvider(ctx, cfg.AWSRegion)
		if err != nil {
			logg.Fatalw("failed to create AWS Secrets Manager provider", "error", err)
		}
		credCache := secrets.NewCache[internalsecrets.Credentials](cfg.CacheTTL)
		go credCache.StartCleaner(cfg.CleanupFreq, stopCleaner)

		resolver := internalsecrets.NewResolver(logger.Named("secrets"), cfg.Env, cfg.ServiceName, awsProvider, credCache)
		if providers, err := resolver.Configured(ctx); err != nil {
			logg.Warnw("failed to list provider secrets", "error", err)
		} else {
			logg.Infow("discovered provider credentials", "providers", providers)
		}
		token = resolver.TokenSource(mercadolivre.Name)
		invalidateToken = func() { resolver.Invalidate(mercadolivre.Name) }
	} else if cfg.MarketplaceToken != "" {
		logg.Infow("using static marketplace token", "token", utils.MaskToken(cfg.MarketplaceToken))
	}

	// --- Rate limiter + provider clients ---
	rateMgr := rate.NewManager(rate.Config{
		RequestsPerSecond: cfg.ProviderRPS,
		Burst:             cfg.ProviderBurst,
	})
	httpClient := &http.Client{Timeout: cfg.ProviderTimeout}
	newExecutor := func(provider string, onError func(int, []byte) error) *httpclient.Executor {
		return httpclient.New(logg.Desugar(), rateMgr, httpClient, cfg.ProviderRetryMax, cfg.ProviderBackoffBase, provider, onError)
	}

	mlLogger := logger.Named(mercadolivre.Name)
	mlClient := mercadolivre.NewClient(mlLogger,
		newExecutor(mercadolivre.Name, mercadolivre.ErrorHandler(mlLogger)),
		cfg.MarketplaceBaseURL, token)
	if invalidateToken != nil {
		mlClient.SetTokenInvalidator(invalidateToken)
	}
	holidayClient := brasilapi.NewClient(logg.Desugar(), newExecutor("brasilapi", nil), cfg.HolidaysBaseURL)
	similarClient := similar.NewClient(logg.Desugar(), newExecutor("similar", nil), cfg.SimilarBaseURL)

	// --- Redis result cache (optional) ---
	var resultCache market.ResultCache
	var cacheAdmin api.CacheAdmin
	checks := map[string]api.HealthChecker{}
	cacheStore, err := cache.Connect(ctx, cfg.RedisAddr, cfg.RedisDB, cfg.RedisPass, logg.Desugar())
	if err != nil {
		logg.Warnw("redis unavailable; result cache disabled", "addr", cfg.RedisAddr, "error", err)
	} else {
		resultCache = cacheStore
		cacheAdmin = cacheStore
		checks["redis"] = cacheStore
	}

	// --- NATS publisher (optional) ---
	var nc *nats.Conn
	var pub *publisher.Publisher
	var events market.EventPublisher
	if conn, err := nats.Connect(cfg.NATSURL); err != nil {
		logg.Warnw("nats unavailable; events disabled", "url", cfg.NATSURL, "error", err)
	} else if p, err := publisher.New(conn, cfg.EventsSubject, cfg.ServiceName); err != nil {
		logg.Warnw("failed to init publisher; events disabled", "error", err)
		conn.Close()
	} else {
		nc, pub, events = conn, p, p
	}

	// --- Coordinator + aggregator ---
	tracker := coordinator.NewTracker(eventbus.New[model.StatusEvent]())
	coord := coordinator.New(logg.Desugar(), coordinator.Config{
		MaxConcurrent: cfg.MaxConcurrent,
		CallTimeout:   cfg.AnalysisTimeout,
	}, tracker)

	agg := market.NewAggregator(logg.Desugar(), marketConfig(cfg), coord, market.Sources{
		Competitors: mlClient,
		Holidays:    holidayClient,
		Similar:     similarClient,
		Cache:       resultCache,
		Publisher:   events,
	})

	// --- Inventory (Postgres, falling back to memory) ---
	var repo inventory.Repository
	pg, err := inventory.NewPGStore(ctx, cfg.DatabaseURL, inventory.PGPoolConfig{
		MaxConns:          int32(cfg.PGMaxConns),
		MinConns:          int32(cfg.PGMinConns),
		MaxConnLifetime:   cfg.PGMaxConnLifetime,
		MaxConnIdleTime:   cfg.PGMaxConnIdleTime,
		HealthCheckPeriod: cfg.PGHealthCheckPeriod,
	}, logg.Desugar())
	if err != nil {
		logg.Warnw("postgres unavailable; inventory kept in memory", "error", err)
		repo = inventory.NewMemStore()
	} else {
		repo = pg
		checks["postgres"] = pg
	}

	inventoryEvents := eventbus.New[model.InventoryEvent]()
	amqpPub, err := rabbitmq.Dial(cfg.RabbitMQURL, cfg.InventoryQueue, inventoryEvents, logg.Desugar())
	if err != nil {
		logg.Warnw("rabbitmq unavailable; inventory events disabled", "error", err)
	}
	inventorySvc := inventory.NewService(logg.Desugar(), repo, inventoryEvents)

	// --- Holiday refresher ---
	var refresherEvents jobs.EventPublisher
	if pub != nil {
		refresherEvents = pub
	}
	refresher := jobs.NewHolidayRefresher(logger.Named("jobs"), agg.Calendar(), refresherEvents, cfg.HolidayRefreshPeriod)
	go refresher.Start(ctx)

	// --- Status stream ---
	statusSrv := statusws.NewServer(logger.Named("statusws"), tracker, cfg.StatusWSPort)
	go func() {
		if err := statusSrv.Start(); err != nil {
			logg.Fatalw("statusws.listen_failed", "error", err)
		}
	}()

	// --- Fiber HTTP Server ---
	app := fiber.New(fiber.Config{
		ReadTimeout:  cfg.HTTPReadTimeout,
		WriteTimeout: cfg.HTTPWriteTimeout,
		IdleTimeout:  cfg.HTTPIdleTimeout,
		BodyLimit:    cfg.HTTPBodyLimit,
	})

	marketHandler := api.NewMarketHandler(logg.Desugar(), agg, tracker, coord, cacheAdmin)
	inventoryHandler := api.NewInventoryHandler(logg.Desugar(), inventorySvc)
	api.RegisterRoutes(app, nc, checks, marketHandler, inventoryHandler)

	go func() {
		logg.Infof("HTTP API listening on :%d", cfg.Port)
		if err := app.Listen(fmt.Sprintf(":%d", cfg.Port)); err != nil {
			logg.Fatalw("fiber.listen_failed", "error", err)
		}
	}()

	// --- Main process stays alive until interrupted ---
	logg.Infow("[market-intel] running",
		"env", cfg.Env,
		"max_concurrent", cfg.MaxConcurrent,
		"nats", nc != nil,
		"redis", resultCache != nil,
		"postgres", pg != nil,
		"rabbitmq", amqpPub != nil)

	<-ctx.Done()
	logg.Info("shutting down [market-intel]...")

	close(stopCleaner)
	refresher.Stop()
	coord.Close()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		logg.Warnw("fiber.shutdown_failed", "error", err)
	}
	if err := statusSrv.Shutdown(shutdownCtx); err != nil {
		logg.Warnw("statusws.shutdown_failed", "error", err)
	}
	if amqpPub != nil {
		if err := amqpPub.Close(); err != nil {
			logg.Warnw("rabbitmq.close_failed", "error", err)
		}
	}
	if nc != nil {
		if err := nc.Drain(); err != nil {
			logg.Warnw("nats.drain_failed", "error", err)
		}
	}
	if cacheStore != nil {
		if err := cacheStore.Close(); err != nil {
			logg.Warnw("cache.close_failed", "error", err)
		}
	}
	if err := repo.Close(); err != nil {
		logg.Warnw("store.close_failed", "error", err)
	}
}

func staticToken(tok string) mercadolivre.TokenFunc {
	if tok == "" {
		return nil
	}
	return func(context.Context) (string, error) { return tok, nil }
}

func marketConfig(cfg *config.Config) market.Config {
	mc := market.DefaultConfig()
	mc.MaxCompetitors = cfg.MaxCompetitors
	mc.PriceBandPct = cfg.PriceBandPct
	mc.HighInterest = cfg.HighInterest
	mc.ModerateInterest = cfg.ModerateInterest
	mc.MaxEvents = cfg.MaxEvents
	mc.AnalysisTTL = cfg.AnalysisCacheTTL
	mc.SimilarTTL = cfg.SimilarCacheTTL
	mc.HolidayTTL = cfg.HolidayRefreshPeriod * 2
	mc.SimilarWorkers = cfg.BatchWorkers
	mc.EventsSubject = cfg.EventsSubject
	return mc
}
