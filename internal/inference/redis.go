package inference

import (
	"context"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/eleven-am/signstream/internal/transport"
)

// RedisWorker consumes frames from the shared frame channel and publishes
// each answer on the frame's reply channel.
type RedisWorker struct {
	redis        *redis.Client
	responder    *Responder
	frameChannel string
	logger       *slog.Logger
}

func NewRedisWorker(redisClient *redis.Client, responder *Responder, frameChannel string, logger *slog.Logger) *RedisWorker {
	if frameChannel == "" {
		frameChannel = transport.DefaultFrameChannel
	}
	return &RedisWorker{
		redis:        redisClient,
		responder:    responder,
		frameChannel: frameChannel,
		logger:       logger.With("component", "mock-redis", "channel", frameChannel),
	}
}

// Run blocks until ctx is done or the subscription fails. The subscription
// is confirmed before ready is closed.
func (w *RedisWorker) Run(ctx context.Context, ready chan<- struct{}) error {
	pubsub := w.redis.Subscribe(ctx, w.frameChannel)
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		return err
	}
	if ready != nil {
		close(ready)
	}
	w.logger.Info("worker subscribed")

	for {
		msg, err := pubsub.ReceiveMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}

		reply, replyTo := w.responder.Respond([]byte(msg.Payload))
		if replyTo == "" {
			w.logger.Debug("frame without reply channel dropped")
			continue
		}
		if err := w.redis.Publish(ctx, replyTo, reply).Err(); err != nil {
			w.logger.Warn("publish reply failed", "reply_to", replyTo, "error", err)
		}
	}
}
