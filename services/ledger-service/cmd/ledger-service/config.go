package main

import (
	"strings"
	"time"

	"github.com/ledgerforge/ledgerforge/libs/config"
)

type serviceConfig struct {
	DatabaseURL    string
	DBMaxConns     int
	RequestTimeout time.Duration
	GRPCPort       string
	KafkaBrokers   string
	KafkaTopic     string
	RedisAddr      string
	RedisPassword  string
	RedisDB        int
	ConfigCacheTTL time.Duration
	CatalogFile    string
	SeedTenants    []string
	PollEvery      time.Duration
	BatchSize      int
	PurgeRetention time.Duration
	PurgeEvery     time.Duration
	PurgeEnabled   bool
}

func loadConfig() (serviceConfig, error) {
	var (
		c   serviceConfig
		err error
	)
	if c.DatabaseURL, err = config.RequiredString("DATABASE_URL"); err != nil {
		return c, err
	}
	if c.DBMaxConns, err = config.Int("DB_MAX_CONNS", 10); err != nil {
		return c, err
	}
	if c.RequestTimeout, err = config.Duration("HTTP_REQUEST_TIMEOUT", 15*time.Second); err != nil {
		return c, err
	}
	if c.GRPCPort, err = config.Port("GRPC_PORT", "9090"); err != nil {
		return c, err
	}
	c.KafkaBrokers = config.String("KAFKA_BROKERS", "")
	c.KafkaTopic = config.String("KAFKA_TOPIC", "ledger.external-events")
	c.RedisAddr = config.String("REDIS_ADDR", "")
	c.RedisPassword = config.String("REDIS_PASSWORD", "")
	if c.RedisDB, err = config.Int("REDIS_DB", 0); err != nil {
		return c, err
	}
	if c.ConfigCacheTTL, err = config.Duration("EVENT_CONFIG_CACHE_TTL", time.Minute); err != nil {
		return c, err
	}
	c.CatalogFile = config.String("EVENT_CATALOG_FILE", "")
	for _, t := range strings.Split(config.String("EVENT_CONFIG_SEED_TENANTS", "default"), ",") {
		if t = strings.TrimSpace(t); t != "" {
			c.SeedTenants = append(c.SeedTenants, t)
		}
	}
	if c.PollEvery, err = config.Duration("OUTBOX_POLL_EVERY", 2*time.Second); err != nil {
		return c, err
	}
	if c.BatchSize, err = config.Int("OUTBOX_BATCH_SIZE", 50); err != nil {
		return c, err
	}
	if c.PurgeRetention, err = config.Duration("PURGE_RETENTION", 30*24*time.Hour); err != nil {
		return c, err
	}
	if c.PurgeEvery, err = config.Duration("PURGE_EVERY", time.Hour); err != nil {
		return c, err
	}
	c.PurgeEnabled = config.Bool("PURGE_ENABLED", true)
	return c, nil
}
