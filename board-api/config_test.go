package main

import (
	"testing"
	"time"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost/boards")
	t.Setenv("LISTEN_ADDR", "")

	cfg, err := loadConfig()
	if err != nil {
		t.Fatalf("load config: %v", err)
	}
	if cfg.ListenAddr != ":8080" || cfg.DatabaseDriver != "postgres" || cfg.UpdatesChannel != "board-updates" {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
	if cfg.CacheTTL != 5*time.Minute || cfg.IdempotencyTTL != 24*time.Hour || cfg.RequestTimeout != 5*time.Second {
		t.Fatalf("unexpected durations %+v", cfg)
	}
	if cfg.OrgClaim != "org_id" {
		t.Fatalf("unexpected org claim %q", cfg.OrgClaim)
	}
}

func TestLoadConfigRejectsInvalidValues(t *testing.T) {
	t.Setenv("DATABASE_URL", "file.db")

	t.Setenv("DATABASE_DRIVER", "mysql")
	if _, err := loadConfig(); err == nil {
		t.Fatalf("expected invalid driver error")
	}

	t.Setenv("DATABASE_DRIVER", "sqlite")
	t.Setenv("CACHE_TTL", "soon")
	if _, err := loadConfig(); err == nil {
		t.Fatalf("expected invalid duration error")
	}

	t.Setenv("CACHE_TTL", "")
	t.Setenv("DEBUG", "maybe")
	if _, err := loadConfig(); err == nil {
		t.Fatalf("expected invalid bool error")
	}
}

func TestLoadConfigRequiresDatabase(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	if _, err := loadConfig(); err == nil {
		t.Fatalf("expected missing DATABASE_URL error")
	}
}

func TestRedisOptions(t *testing.T) {
	opts := redisOptions("redis://:secret@cache:6380/2")
	if opts.Addr != "cache:6380" || opts.Password != "secret" || opts.DB != 2 {
		t.Fatalf("unexpected url options %+v", opts)
	}

	opts = redisOptions("cache.example.net:6380,password=abc=,ssl=True,abortConnect=False")
	if opts.Addr != "cache.example.net:6380" || opts.Password != "abc=" || opts.TLSConfig == nil {
		t.Fatalf("unexpected connection string options %+v", opts)
	}
}
