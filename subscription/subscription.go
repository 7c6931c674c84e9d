package subscription

import (
	"context"
	"time"

	"github.com/bytedance/sonic"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"kanban-sync/domain"
)

const reconnectDelay = time.Second

// SubscribeUpdates listens for relayed change events and passes each one to
// handle until ctx is cancelled. A dropped subscription is re-established.
func SubscribeUpdates(
	ctx context.Context,
	logger *log.Logger,
	rc *redis.Client,
	channel string,
	handle func(domain.Event),
) {
	for {
		sub := rc.Subscribe(ctx, channel)
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
				var ev domain.Event
				if err := sonic.UnmarshalString(msg.Payload, &ev); err != nil {
					logger.WithError(err).WithField("channel", channel).Error("unable to parse change event")
					continue
				}
				handle(ev)
			}
		}
		_ = sub.Close()
		if ctx.Err() != nil {
			return
		}
		logger.WithField("channel", channel).Error("pubsub channel closed, reconnecting")
		select {
		case <-ctx.Done():
			return
		case <-time.After(reconnectDelay):
		}
	}
}
