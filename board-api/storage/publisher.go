package storage

import (
	"context"
	"time"

	"github.com/bytedance/sonic"
	"github.com/redis/go-redis/v9"

	"prism-board/domain"
)

// Publisher announces board changes on a Redis channel so every API instance
// can notify its stream subscribers.
type Publisher struct {
	client  *redis.Client
	channel string
}

func NewPublisher(client *redis.Client, channel string) *Publisher {
	return &Publisher{client: client, channel: channel}
}

func (p *Publisher) Publish(ctx context.Context, ev domain.BoardEvent) error {
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}
	data, err := sonic.Marshal(ev)
	if err != nil {
		return err
	}
	return p.client.Publish(ctx, p.channel, data).Err()
}
