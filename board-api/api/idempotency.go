package api

import (
	"bytes"
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
)

const (
	headerIdempotencyKey = "Idempotency-Key"
	headerReplayed       = "Idempotent-Replayed"
	maxIdempotencyKeyLen = 255
	pendingMarker        = "pending"
	defaultReserveTTL    = 30 * time.Second
)

// RedisIdempotency stores completed POST responses in Redis so a retried
// request is answered from the first attempt on every instance.
type RedisIdempotency struct {
	client     *redis.Client
	ttl        time.Duration
	reserveTTL time.Duration
}

// NewRedisIdempotency keeps responses for ttl.
func NewRedisIdempotency(client *redis.Client, ttl time.Duration) *RedisIdempotency {
	return &RedisIdempotency{client: client, ttl: ttl, reserveTTL: defaultReserveTTL}
}

func (r *RedisIdempotency) key(scope, key string) string {
	return "idem:" + scope + ":" + key
}

// Reserve claims the key with a short-lived marker. It returns the stored
// response when the key was already completed.
func (r *RedisIdempotency) Reserve(ctx context.Context, scope, key string) (*StoredResponse, bool, error) {
	k := r.key(scope, key)
	ok, err := r.client.SetNX(ctx, k, pendingMarker, r.reserveTTL).Result()
	if err != nil {
		return nil, false, err
	}
	if ok {
		return nil, true, nil
	}
	data, err := r.client.Get(ctx, k).Bytes()
	if err == redis.Nil || string(data) == pendingMarker {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	var stored StoredResponse
	if err := sonic.Unmarshal(data, &stored); err != nil {
		return nil, false, err
	}
	return &stored, false, nil
}

func (r *RedisIdempotency) Complete(ctx context.Context, scope, key string, resp StoredResponse) error {
	data, err := sonic.Marshal(resp)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, r.key(scope, key), data, r.ttl).Err()
}

// Release drops a reservation so the caller may retry after a failure.
func (r *RedisIdempotency) Release(ctx context.Context, scope, key string) error {
	return r.client.Del(ctx, r.key(scope, key)).Err()
}

type recordingWriter struct {
	http.ResponseWriter
	buf bytes.Buffer
}

func (w *recordingWriter) Write(p []byte) (int, error) {
	w.buf.Write(p)
	return w.ResponseWriter.Write(p)
}

// idempotent replays the stored response for a repeated Idempotency-Key.
// Keys are scoped to the organization and route. Storage failures fall back
// to running the request.
func idempotent(store IdempotencyStore, logger *log.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			key := strings.TrimSpace(c.Request().Header.Get(headerIdempotencyKey))
			if store == nil || key == "" {
				return next(c)
			}
			if len(key) > maxIdempotencyKeyLen {
				return c.String(http.StatusBadRequest, "idempotency key too long")
			}
			scope := identityFrom(c).OrgID + ":" + c.Path()
			ctx := c.Request().Context()

			stored, reserved, err := store.Reserve(ctx, scope, key)
			if err != nil {
				logger.WithError(err).Warn("idempotency lookup failed")
				return next(c)
			}
			if !reserved {
				if stored == nil {
					return c.String(http.StatusConflict, "request with this idempotency key is in progress")
				}
				metricsFrom(c).SetReplayed(true)
				c.Response().Header().Set(headerReplayed, "true")
				return c.Blob(stored.Status, stored.ContentType, stored.Body)
			}

			rec := &recordingWriter{ResponseWriter: c.Response().Writer}
			c.Response().Writer = rec
			err = next(c)
			status := c.Response().Status
			// Detach from the request so a client disconnect does not lose the result.
			saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Second)
			defer cancel()
			if err == nil && status >= 200 && status < 300 {
				resp := StoredResponse{
					Status:      status,
					ContentType: c.Response().Header().Get(echo.HeaderContentType),
					Body:        rec.buf.Bytes(),
				}
				if serr := store.Complete(saveCtx, scope, key, resp); serr != nil {
					logger.WithError(serr).Warn("idempotency store failed")
				}
			} else if rerr := store.Release(saveCtx, scope, key); rerr != nil {
				logger.WithError(rerr).Warn("idempotency release failed")
			}
			return err
		}
	}
}
