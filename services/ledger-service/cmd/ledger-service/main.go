package main

import (
	"context"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/ledgerforge/ledgerforge/libs/config"
	"github.com/ledgerforge/ledgerforge/libs/db"
	"github.com/ledgerforge/ledgerforge/libs/httpx"
	"github.com/ledgerforge/ledgerforge/libs/kafkax"
	otelx "github.com/ledgerforge/ledgerforge/libs/otel"
	"github.com/ledgerforge/ledgerforge/libs/runtime"
	"github.com/ledgerforge/ledgerforge/services/ledger-service/internal/app"
	"github.com/ledgerforge/ledgerforge/services/ledger-service/internal/businessevent"
	"github.com/ledgerforge/ledgerforge/services/ledger-service/internal/eventconfig"
	"github.com/ledgerforge/ledgerforge/services/ledger-service/internal/handlers"
	"github.com/ledgerforge/ledgerforge/services/ledger-service/internal/ledger"
	"github.com/ledgerforge/ledgerforge/services/ledger-service/internal/message"
	"github.com/ledgerforge/ledgerforge/services/ledger-service/internal/metrics"
	"github.com/ledgerforge/ledgerforge/services/ledger-service/internal/publisher"
	"github.com/ledgerforge/ledgerforge/services/ledger-service/internal/purge"
	"github.com/ledgerforge/ledgerforge/services/ledger-service/internal/readmodel"
	"github.com/ledgerforge/ledgerforge/services/ledger-service/internal/store/postgres"
)

func main() {
	service := config.String("SERVICE_NAME", "ledger-service")
	port, err := config.Port("PORT", "8080")
	if err != nil {
		panic(err)
	}
	logger := runtime.NewLogger(service)

	ctx, stop := runtime.SignalContext(context.Background())
	defer stop()

	otelShutdown, err := otelx.Setup(ctx, otelx.ConfigFromEnv(service))
	if err != nil {
		logger.Error("otel setup failed", "err", err)
	} else {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = otelShutdown(shutdownCtx)
		}()
	}

	cfg, err := loadConfig()
	if err != nil {
		logger.Error("invalid configuration", "err", err)
		panic(err)
	}

	catalog := businessevent.DefaultCatalog()
	if cfg.CatalogFile != "" {
		if catalog, err = businessevent.LoadCatalog(cfg.CatalogFile); err != nil {
			logger.Error("event catalog load failed", "path", cfg.CatalogFile, "err", err)
			panic(err)
		}
	}

	pool, err := db.OpenWithConfig(ctx, cfg.DatabaseURL, db.PoolConfig{MaxConns: int32(cfg.DBMaxConns)})
	if err != nil {
		logger.Error("db connection failed", "err", err)
		panic(err)
	}
	defer pool.Close()

	outboxStore := postgres.New(pool)
	configRepo := eventconfig.NewRepository(pool, catalog)
	if err := outboxStore.Migrate(ctx); err != nil {
		logger.Error("outbox schema migration failed", "err", err)
		panic(err)
	}
	if err := configRepo.Migrate(ctx); err != nil {
		logger.Error("event configuration schema migration failed", "err", err)
		panic(err)
	}
	for _, tenant := range cfg.SeedTenants {
		if err := configRepo.Seed(ctx, tenant); err != nil {
			logger.Error("event configuration seed failed", "tenant_id", tenant, "err", err)
		}
	}

	gdb, err := db.OpenGorm(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("read model connection failed", "err", err)
		panic(err)
	}
	defer func() { _ = db.CloseGorm(gdb) }()

	var configStore eventconfig.Store = configRepo
	checks := []runtime.ReadyCheck{
		{Name: "db", Check: db.ReadyCheck(pool)},
		{Name: "kafka", Check: kafkax.ReadyCheck(cfg.KafkaBrokers)},
	}
	if cfg.RedisAddr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		defer func() { _ = rdb.Close() }()
		configStore = eventconfig.NewRedisCache(configRepo, rdb, cfg.ConfigCacheTTL, logger)
		checks = append(checks, runtime.ReadyCheck{Name: "redis", Check: func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		}})
		logger.Info("event configuration cache enabled (redis)", "redis_addr", cfg.RedisAddr, "ttl", cfg.ConfigCacheTTL)
	}

	m := metrics.New(nil)
	svc := app.New(app.Deps{
		Store:   outboxStore,
		Reader:  readmodel.NewGormRepository(gdb, logger),
		Config:  configStore,
		Logger:  logger,
		Metrics: m,
	})
	if brokers := kafkax.SplitBrokers(cfg.KafkaBrokers); len(brokers) == 0 {
		logger.Warn("outbox publisher disabled (no kafka brokers configured)")
	} else {
		writer := publisher.NewKafkaWriter(brokers)
		defer func() { _ = writer.Close() }()
		pub := publisher.New(outboxStore, writer, message.NewAssembler(), logger, m, publisher.Config{
			Topic:     cfg.KafkaTopic,
			PollEvery: cfg.PollEvery,
			BatchSize: cfg.BatchSize,
		})
		go pub.Run(ctx)
	}

	if cfg.PurgeEnabled {
		go purge.NewJob(outboxStore, cfg.PurgeRetention, cfg.PurgeEvery, logger, m).Run(ctx)
	} else {
		logger.Info("outbox purge disabled")
	}

	mux := runtime.NewBaseMuxWithReady(checks...)
	api := http.NewServeMux()
	handlers.New(configStore, logger).Register(api)
	handlers.NewLoanHandler(ledger.NewLoans(svc.UoW, ledger.PgLoanRepository{}), logger).Register(api)
	mux.Handle("/api/", httpx.Chain(api,
		httpx.WithBodyLimit(1<<20),
		httpx.WithTimeout(cfg.RequestTimeout),
		handlers.WithTenant(nil),
	))

	handler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithAccessLog(logger, httpx.HeaderField("tenant_id", handlers.HeaderTenantID)),
		httpx.WithRecover(logger),
	)
	handler = otelhttp.NewHandler(handler, "ledger")
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("http server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server error", "err", err)
		}
	}()

	if err := startGrpcServer(ctx, logger, cfg.GRPCPort); err != nil {
		logger.Error("grpc server failed to start", "err", err)
	}

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "err", err)
	}
	logger.Info("http server stopped")
}
