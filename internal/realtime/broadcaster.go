package realtime

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"studyhub/pkg/logger"
	"studyhub/pkg/metrics"
)

// Broadcaster publishes group events on Redis Pub/Sub. Delivery is
// best-effort: viewers that are not subscribed at publish time miss the event.
type Broadcaster struct {
	rdb    redis.UniversalClient
	logger *zap.Logger
}

func NewBroadcaster(rdb redis.UniversalClient, logger *zap.Logger) *Broadcaster {
	return &Broadcaster{rdb: rdb, logger: logger}
}

func (b *Broadcaster) Publish(ctx context.Context, ev Event) error {
	body, err := json.Marshal(ev)
	if err != nil {
		metrics.IncrementRealtimePublish(string(ev.Type), "encode_error")
		return fmt.Errorf("failed to encode %s event: %w", ev.Type, err)
	}

	channel := ChannelName(ev.GroupID)
	receivers, err := b.rdb.Publish(ctx, channel, body).Result()
	if err != nil {
		metrics.IncrementRealtimePublish(string(ev.Type), "error")
		return fmt.Errorf("failed to publish %s on %s: %w", ev.Type, channel, err)
	}

	metrics.IncrementRealtimePublish(string(ev.Type), "success")
	logger.WithTrace(ctx, b.logger).Debug("Realtime event published",
		zap.String("channel", channel),
		zap.String("type", string(ev.Type)),
		zap.Int64("receivers", receivers),
	)
	return nil
}

// Subscribe relays raw event envelopes for groupID until ctx is done. The
// returned channel is closed on exit.
func (b *Broadcaster) Subscribe(ctx context.Context, groupID int64) (<-chan []byte, error) {
	sub := b.rdb.Subscribe(ctx, ChannelName(groupID))
	// Receive blocks until the subscription is confirmed.
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, fmt.Errorf("failed to subscribe to group %d: %w", groupID, err)
	}

	out := make(chan []byte, 16)
	go func() {
		defer close(out)
		defer sub.Close()

		msgs := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				select {
				case out <- []byte(msg.Payload):
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}
