package transport

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/eleven-am/signstream/internal/frame"
	"github.com/eleven-am/signstream/internal/shared"
)

const (
	DefaultFrameChannel = "signstream:frames"
	resultChannelFormat = "signstream:results:%s"
	publishTimeout      = 2 * time.Second
)

func ResultChannel(clientID string) string {
	return fmt.Sprintf(resultChannelFormat, clientID)
}

type RedisConfig struct {
	FrameChannel string
	ClientID     string
	QueueSize    int
	Backoff      shared.BackoffConfig
	Logger       *slog.Logger
}

// RedisChannel publishes frames to a shared request channel and receives
// results on a per-client reply channel.
type RedisChannel struct {
	dispatcher

	redis        *redis.Client
	frameChannel string
	replyChannel string
	clientID     string
	backoff      shared.BackoffConfig
	out          outbox

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
	closed bool
}

func NewRedisChannel(redisClient *redis.Client, cfg RedisConfig) *RedisChannel {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.FrameChannel == "" {
		cfg.FrameChannel = DefaultFrameChannel
	}

	return &RedisChannel{
		dispatcher:   dispatcher{logger: cfg.Logger.With("component", "redis-channel", "client_id", cfg.ClientID)},
		redis:        redisClient,
		frameChannel: cfg.FrameChannel,
		replyChannel: ResultChannel(cfg.ClientID),
		clientID:     cfg.ClientID,
		backoff:      cfg.Backoff.Normalize(),
		out:          newOutbox(cfg.QueueSize),
	}
}

func (c *RedisChannel) Open(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return shared.ErrClosed
	}
	if c.cancel != nil {
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel

	c.wg.Add(2)
	go c.subscribeLoop(ctx)
	go c.publishLoop(ctx)
	return nil
}

func (c *RedisChannel) Send(_ context.Context, unit frame.Unit) error {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return c.failSend(shared.ErrClosed)
	}
	if c.State() != StateConnected {
		return c.failSend(errOffline)
	}

	data, err := EncodeFrame(c.clientID, c.replyChannel, unit)
	if err != nil {
		return c.failSend(err)
	}
	if err := c.out.push(data); err != nil {
		return c.failSend(err)
	}
	c.sent.Add(1)
	return nil
}

func (c *RedisChannel) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	cancel := c.cancel
	c.mu.Unlock()

	if cancel != nil {
		cancel()
		c.wg.Wait()
	}
	c.setState(StateDisconnected)
	return nil
}

func (c *RedisChannel) publishLoop(ctx context.Context) {
	defer c.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case data := <-c.out.ch:
			pubCtx, cancel := context.WithTimeout(ctx, publishTimeout)
			err := c.redis.Publish(pubCtx, c.frameChannel, data).Err()
			cancel()
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				c.sendFailures.Add(1)
				c.logger.Warn("publish frame failed", "channel", c.frameChannel, "error", err)
			}
		}
	}
}

func (c *RedisChannel) subscribeLoop(ctx context.Context) {
	defer c.wg.Done()

	backoff := c.backoff.Initial
	attempts := 0

	for {
		c.setState(StateConnecting)
		err := c.subscribe(ctx)
		c.setState(StateDisconnected)
		if ctx.Err() != nil {
			return
		}

		if err == nil {
			backoff = c.backoff.Initial
			attempts = 0
		}
		attempts++
		if c.backoff.MaxAttempts > 0 && attempts >= c.backoff.MaxAttempts {
			c.logger.Error("giving up on result subscription", "attempts", attempts, "error", err)
			return
		}
		c.logger.Warn("result subscription lost", "retry_in", backoff, "error", err)

		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		backoff = c.backoff.Next(backoff)
	}
}

// subscribe blocks until the subscription fails or ctx is done. It returns
// nil if the subscription was established before failing.
func (c *RedisChannel) subscribe(ctx context.Context) error {
	pubsub := c.redis.Subscribe(ctx, c.replyChannel)
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe %s: %w", c.replyChannel, err)
	}

	if n := c.out.drain(); n > 0 {
		c.logger.Debug("dropped stale frames", "count", n)
	}
	c.setState(StateConnected)
	c.logger.Info("subscribed to results", "channel", c.replyChannel)

	for {
		msg, err := pubsub.ReceiveMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			c.logger.Error("receive result", "error", err)
			return nil
		}
		c.deliver([]byte(msg.Payload), time.Now())
	}
}
