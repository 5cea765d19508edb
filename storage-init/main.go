package main

import (
	"context"
	"errors"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"

	"prism-board/board-api/storage"
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.Warnf("load .env: %v", err)
	}
	if dbg, err := strconv.ParseBool(os.Getenv("DEBUG")); err == nil && dbg {
		log.SetLevel(log.DebugLevel)
	}
	log.Info("storage init starting")

	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		log.Fatal("missing DATABASE_URL")
	}
	driver := os.Getenv("DATABASE_DRIVER")
	if driver == "" {
		driver = "postgres"
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	db, err := openWithRetry(ctx, driver, dsn)
	if err != nil {
		log.Fatalf("open database: %v", err)
	}
	defer db.Close()

	if err := db.Migrate(ctx); err != nil {
		log.Fatalf("migrate: %v", err)
	}
	log.WithField("driver", driver).Info("storage init complete")
}

// openWithRetry waits for the database container to accept connections.
func openWithRetry(ctx context.Context, driver, dsn string) (*storage.Storage, error) {
	backoff := 500 * time.Millisecond
	for {
		db, err := storage.Open(driver, dsn)
		if err == nil {
			if err = db.Ping(ctx); err == nil {
				return db, nil
			}
			_ = db.Close()
		}
		log.WithError(err).Warn("database not ready")
		select {
		case <-ctx.Done():
			return nil, err
		case <-time.After(backoff):
		}
		if backoff < 5*time.Second {
			backoff *= 2
		}
	}
}
