package frame

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// StoredFrame is a frame as kept in Redis, scored by capture time.
type StoredFrame struct {
	Timestamp int64
	Data      []byte
}

// RedisStore keeps recent frames for one client in a sorted set.
type RedisStore struct {
	redis     *redis.Client
	key       string
	frameTTL  time.Duration
	maxFrames int64
}

func NewRedisStore(redisClient *redis.Client, key string, frameTTL time.Duration, maxFrames int64) *RedisStore {
	if frameTTL == 0 {
		frameTTL = 60 * time.Second
	}
	if maxFrames <= 0 {
		maxFrames = 30
	}
	return &RedisStore{
		redis:     redisClient,
		key:       key,
		frameTTL:  frameTTL,
		maxFrames: maxFrames,
	}
}

func FrameKey(clientID string) string {
	return fmt.Sprintf("signstream:frames:%s", clientID)
}

func (s *RedisStore) Key() string {
	return s.key
}

func (s *RedisStore) Append(ctx context.Context, frame StoredFrame) error {
	member := redis.Z{
		Score:  float64(frame.Timestamp),
		Member: frame.Data,
	}

	pipe := s.redis.Pipeline()
	pipe.ZAdd(ctx, s.key, member)
	pipe.ZRemRangeByRank(ctx, s.key, 0, -s.maxFrames-1)
	pipe.Expire(ctx, s.key, s.frameTTL)
	_, err := pipe.Exec(ctx)
	return err
}

func (s *RedisStore) Latest(ctx context.Context) (*StoredFrame, error) {
	results, err := s.redis.ZRevRangeWithScores(ctx, s.key, 0, 0).Result()
	if err != nil {
		return nil, err
	}
	if len(results) == 0 {
		return nil, nil
	}

	data, ok := results[0].Member.(string)
	if !ok {
		return nil, fmt.Errorf("invalid frame data type")
	}

	return &StoredFrame{
		Timestamp: int64(results[0].Score),
		Data:      []byte(data),
	}, nil
}

func (s *RedisStore) Delete(ctx context.Context) error {
	return s.redis.Del(ctx, s.key).Err()
}

// RedisSource serves the newest stored frame. A frame older than MaxAge
// means the producer stopped, so the source reports not ready.
type RedisSource struct {
	store   *RedisStore
	maxAge  time.Duration
	timeout time.Duration
	now     func() time.Time
}

func NewRedisSource(store *RedisStore, maxAge time.Duration) *RedisSource {
	if maxAge <= 0 {
		maxAge = 2 * time.Second
	}
	return &RedisSource{
		store:   store,
		maxAge:  maxAge,
		timeout: 250 * time.Millisecond,
		now:     time.Now,
	}
}

func (s *RedisSource) IsReady() bool {
	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()
	_, err := s.fresh(ctx)
	return err == nil
}

func (s *RedisSource) CaptureFrame(ctx context.Context) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	f, err := s.fresh(ctx)
	if err != nil {
		return nil, err
	}
	return f.Data, nil
}

var errNoFreshFrame = errors.New("no fresh frame")

func (s *RedisSource) fresh(ctx context.Context) (*StoredFrame, error) {
	f, err := s.store.Latest(ctx)
	if err != nil {
		return nil, err
	}
	if f == nil || len(f.Data) == 0 {
		return nil, errNoFreshFrame
	}
	if s.now().Sub(time.UnixMilli(f.Timestamp)) > s.maxAge {
		return nil, errNoFreshFrame
	}
	return f, nil
}
