package subscription

import (
	"context"
	"time"

	"github.com/bytedance/sonic"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"prism-board/domain"
)

// SubscribeUpdates listens for board events published by any API instance and
// hands them to broadcast. It reconnects when the subscription drops and
// returns once ctx is done.
func SubscribeUpdates(
	ctx context.Context,
	logger log.FieldLogger,
	rc *redis.Client,
	updatesChannel string,
	broadcast func(ev domain.BoardEvent),
) {
	for {
		sub := rc.Subscribe(ctx, updatesChannel)
		ch := sub.Channel()
	recv:
		for {
			select {
			case <-ctx.Done():
				_ = sub.Close()
				return
			case msg, ok := <-ch:
				if !ok {
					break recv
				}
				var ev domain.BoardEvent
				if err := sonic.UnmarshalString(msg.Payload, &ev); err != nil {
					logger.WithError(err).Error("unable to parse board update")
					continue
				}
				if ev.BoardID == "" {
					logger.Warn("board update without board id")
					continue
				}
				broadcast(ev)
			}
		}
		_ = sub.Close()
		if ctx.Err() != nil {
			return
		}
		logger.Error("pubsub channel closed, reconnecting")
		select {
		case <-ctx.Done():
			return
		case <-time.After(time.Second):
		}
	}
}
