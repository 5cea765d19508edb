package storage

import (
	"context"
	"time"

	"github.com/bytedance/sonic"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"prism-board/domain"
)

var cacheLookups = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "board_cache_lookups_total",
		Help: "Board cache lookups partitioned by entry kind and result",
	},
	[]string{"entry", "result"},
)

var cacheFills = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "board_cache_fills_skipped_total",
		Help: "Cache fills dropped because a write evicted the entry during the read",
	},
	[]string{"reason"},
)

func init() {
	prometheus.MustRegister(cacheLookups, cacheFills)
}

type backend interface {
	ListBoards(ctx context.Context, orgID string) ([]domain.Board, error)
	GetBoard(ctx context.Context, orgID, id string) (domain.Board, error)
	CreateBoard(ctx context.Context, orgID string, in domain.NewBoard) (domain.Board, error)
	DeleteBoard(ctx context.Context, orgID, id string) error
	CreateColumn(ctx context.Context, orgID string, in domain.NewColumn) (domain.Column, error)
	UpdateColumn(ctx context.Context, orgID, id string, p domain.ColumnPatch) (domain.Column, error)
	DeleteColumn(ctx context.Context, orgID, id string) (string, error)
	CreateTask(ctx context.Context, orgID string, in domain.NewTask) (domain.Task, string, error)
	UpdateTask(ctx context.Context, orgID, id string, p domain.TaskPatch) (domain.Task, string, error)
	DeleteTask(ctx context.Context, orgID, id string) (string, error)
	Ping(ctx context.Context) error
}

// Cache wraps a backend with Redis-backed caching of board reads. Writes go
// straight to the backend and evict the entries they make stale. Every
// eviction bumps a generation counter next to the entry; a read only fills the
// cache if the generation it saw before querying the backend is unchanged.
type Cache struct {
	base  backend
	redis *redis.Client
	ttl   time.Duration
}

// NewCache creates a caching wrapper using the provided Redis client and TTL.
// A nil client disables caching.
func NewCache(base backend, client *redis.Client, ttl time.Duration) *Cache {
	if base == nil {
		panic("storage.NewCache: base storage is nil")
	}
	if ttl < 0 {
		ttl = 0
	}
	return &Cache{base: base, redis: client, ttl: ttl}
}

func (c *Cache) ListBoards(ctx context.Context, orgID string) ([]domain.Board, error) {
	var boards []domain.Board
	key := boardsCacheKey(orgID)
	if c.load(ctx, "list", key, &boards) {
		return boards, nil
	}
	gen := c.generation(ctx, key)
	boards, err := c.base.ListBoards(ctx, orgID)
	if err != nil {
		return nil, err
	}
	c.store(ctx, key, gen, boards)
	return boards, nil
}

func (c *Cache) GetBoard(ctx context.Context, orgID, id string) (domain.Board, error) {
	var board domain.Board
	key := boardCacheKey(orgID, id)
	if c.load(ctx, "board", key, &board) {
		return board, nil
	}
	gen := c.generation(ctx, key)
	board, err := c.base.GetBoard(ctx, orgID, id)
	if err != nil {
		return domain.Board{}, err
	}
	c.store(ctx, key, gen, board)
	return board, nil
}

func (c *Cache) CreateBoard(ctx context.Context, orgID string, in domain.NewBoard) (domain.Board, error) {
	b, err := c.base.CreateBoard(ctx, orgID, in)
	if err != nil {
		return domain.Board{}, err
	}
	c.evict(ctx, boardsCacheKey(orgID))
	return b, nil
}

func (c *Cache) DeleteBoard(ctx context.Context, orgID, id string) error {
	if err := c.base.DeleteBoard(ctx, orgID, id); err != nil {
		return err
	}
	c.evict(ctx, boardsCacheKey(orgID), boardCacheKey(orgID, id))
	return nil
}

func (c *Cache) CreateColumn(ctx context.Context, orgID string, in domain.NewColumn) (domain.Column, error) {
	col, err := c.base.CreateColumn(ctx, orgID, in)
	if err != nil {
		return domain.Column{}, err
	}
	c.evict(ctx, boardCacheKey(orgID, col.BoardID))
	return col, nil
}

func (c *Cache) UpdateColumn(ctx context.Context, orgID, id string, p domain.ColumnPatch) (domain.Column, error) {
	col, err := c.base.UpdateColumn(ctx, orgID, id, p)
	if err != nil {
		return domain.Column{}, err
	}
	c.evict(ctx, boardCacheKey(orgID, col.BoardID))
	return col, nil
}

func (c *Cache) DeleteColumn(ctx context.Context, orgID, id string) (string, error) {
	boardID, err := c.base.DeleteColumn(ctx, orgID, id)
	if err != nil {
		return "", err
	}
	c.evict(ctx, boardCacheKey(orgID, boardID))
	return boardID, nil
}

func (c *Cache) CreateTask(ctx context.Context, orgID string, in domain.NewTask) (domain.Task, string, error) {
	t, boardID, err := c.base.CreateTask(ctx, orgID, in)
	if err != nil {
		return domain.Task{}, "", err
	}
	c.evict(ctx, boardCacheKey(orgID, boardID))
	return t, boardID, nil
}

func (c *Cache) UpdateTask(ctx context.Context, orgID, id string, p domain.TaskPatch) (domain.Task, string, error) {
	t, boardID, err := c.base.UpdateTask(ctx, orgID, id, p)
	if err != nil {
		return domain.Task{}, "", err
	}
	c.evict(ctx, boardCacheKey(orgID, boardID))
	return t, boardID, nil
}

func (c *Cache) DeleteTask(ctx context.Context, orgID, id string) (string, error) {
	boardID, err := c.base.DeleteTask(ctx, orgID, id)
	if err != nil {
		return "", err
	}
	c.evict(ctx, boardCacheKey(orgID, boardID))
	return boardID, nil
}

// Ping checks the backend and, when configured, Redis.
func (c *Cache) Ping(ctx context.Context) error {
	if err := c.base.Ping(ctx); err != nil {
		return err
	}
	if c.redis == nil {
		return nil
	}
	return c.redis.Ping(ctx).Err()
}

func (c *Cache) load(ctx context.Context, entry, key string, dst any) bool {
	if c.redis == nil {
		return false
	}
	data, err := c.redis.Get(ctx, key).Bytes()
	if err != nil {
		if err != redis.Nil {
			// On redis errors fall back to the backing storage without failing.
			_ = c.redis.Del(ctx, key).Err()
		}
		cacheLookups.WithLabelValues(entry, "miss").Inc()
		return false
	}
	if err := sonic.Unmarshal(data, dst); err != nil {
		_ = c.redis.Del(ctx, key).Err()
		cacheLookups.WithLabelValues(entry, "miss").Inc()
		return false
	}
	cacheLookups.WithLabelValues(entry, "hit").Inc()
	return true
}

// generation returns the eviction counter of key. A missing counter reads as
// an empty string.
func (c *Cache) generation(ctx context.Context, key string) string {
	if c.redis == nil {
		return ""
	}
	gen, _ := c.redis.Get(ctx, generationKey(key)).Result()
	return gen
}

// store fills key unless an eviction happened since gen was read.
func (c *Cache) store(ctx context.Context, key, gen string, v any) {
	if c.redis == nil || c.ttl == 0 {
		return
	}
	data, err := sonic.Marshal(v)
	if err != nil {
		return
	}
	genKey := generationKey(key)
	err = c.redis.Watch(ctx, func(tx *redis.Tx) error {
		current, err := tx.Get(ctx, genKey).Result()
		if err != nil && err != redis.Nil {
			return err
		}
		if current != gen {
			cacheFills.WithLabelValues("stale").Inc()
			return nil
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, c.ttl)
			return nil
		})
		return err
	}, genKey)
	if err == redis.TxFailedErr {
		cacheFills.WithLabelValues("stale").Inc()
	}
}

func (c *Cache) evict(ctx context.Context, keys ...string) {
	if c.redis == nil {
		return
	}
	_, _ = c.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, key := range keys {
			pipe.Incr(ctx, generationKey(key))
			pipe.Expire(ctx, generationKey(key), c.generationTTL())
		}
		pipe.Del(ctx, keys...)
		return nil
	})
}

// generationTTL keeps counters around well past any read that could race
// with them.
func (c *Cache) generationTTL() time.Duration {
	return c.ttl + time.Hour
}

func generationKey(key string) string {
	return "gen:" + key
}

func boardsCacheKey(orgID string) string {
	return "boards:" + orgID
}

func boardCacheKey(orgID, boardID string) string {
	return "board:" + orgID + ":" + boardID
}
