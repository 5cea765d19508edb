package main

import (
	"crypto/tls"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Config is the service configuration read from the environment.
type Config struct {
	ListenAddr     string
	DatabaseDriver string
	DatabaseURL    string
	RedisConn      string
	CacheTTL       time.Duration
	IdempotencyTTL time.Duration
	UpdatesChannel string
	RequestTimeout time.Duration
	Auth0Domain    string
	Auth0Audience  string
	OrgClaim       string
	Debug          bool
	LogFile        string
}

func loadConfig() (Config, error) {
	var cfg Config
	var err error
	cfg.ListenAddr = envString("LISTEN_ADDR", ":8080")
	cfg.DatabaseDriver = envString("DATABASE_DRIVER", "postgres")
	cfg.DatabaseURL = envString("DATABASE_URL", "")
	cfg.RedisConn = envString("REDIS_CONNECTION_STRING", "")
	cfg.UpdatesChannel = envString("UPDATES_CHANNEL", "board-updates")
	cfg.Auth0Domain = envString("AUTH0_DOMAIN", "")
	cfg.Auth0Audience = envString("AUTH0_AUDIENCE", "")
	cfg.OrgClaim = envString("ORG_CLAIM", "org_id")
	cfg.LogFile = envString("LOG_FILE", "")

	if cfg.CacheTTL, err = envDur("CACHE_TTL", 5*time.Minute); err != nil {
		return cfg, err
	}
	if cfg.IdempotencyTTL, err = envDur("IDEMPOTENCY_TTL", 24*time.Hour); err != nil {
		return cfg, err
	}
	if cfg.RequestTimeout, err = envDur("REQUEST_TIMEOUT", 5*time.Second); err != nil {
		return cfg, err
	}
	if cfg.Debug, err = envBool("DEBUG", false); err != nil {
		return cfg, err
	}

	if cfg.DatabaseURL == "" {
		return cfg, fmt.Errorf("missing DATABASE_URL")
	}
	switch cfg.DatabaseDriver {
	case "postgres", "sqlite":
	default:
		return cfg, fmt.Errorf("invalid DATABASE_DRIVER %q", cfg.DatabaseDriver)
	}
	if cfg.RequestTimeout <= 0 {
		return cfg, fmt.Errorf("invalid REQUEST_TIMEOUT: must be greater than zero")
	}
	return cfg, nil
}

func envString(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}

func envDur(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("invalid %s: must not be negative", key)
	}
	return d, nil
}

func envBool(key string, def bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("invalid %s: %w", key, err)
	}
	return b, nil
}

// redisOptions accepts a redis:// URL or the "host:port,password=...,ssl=true"
// form used by managed Redis offerings.
func redisOptions(conn string) *redis.Options {
	if opts, err := redis.ParseURL(conn); err == nil {
		return opts
	}
	parts := strings.Split(conn, ",")
	opts := &redis.Options{Addr: strings.TrimSpace(parts[0])}
	for _, p := range parts[1:] {
		kv := strings.SplitN(p, "=", 2)
		if len(kv) != 2 {
			continue
		}
		switch strings.ToLower(strings.TrimSpace(kv[0])) {
		case "password":
			opts.Password = kv[1]
		case "ssl":
			if strings.EqualFold(kv[1], "true") {
				opts.TLSConfig = &tls.Config{}
			}
		case "db":
			if n, err := strconv.Atoi(kv[1]); err == nil {
				opts.DB = n
			}
		}
	}
	return opts
}
