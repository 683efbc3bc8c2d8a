// Command framefeed watches a directory for camera snapshots and appends each
// new one to the Redis frame store read by SOURCE=redis.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/eleven-am/signstream/internal/frame"
)

func main() {
	_ = godotenv.Load()

	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))

	clientID := os.Getenv("CLIENT_ID")
	if clientID == "" {
		fmt.Fprintln(os.Stderr, "CLIENT_ID env required")
		os.Exit(1)
	}
	key := getEnv("REDIS_FRAME_KEY", frame.FrameKey(clientID))
	dir := getEnv("SPOOL_DIR", "./frames")

	client := redis.NewClient(&redis.Options{
		Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
		Password: os.Getenv("REDIS_PASSWORD"),
	})
	defer client.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := client.Ping(ctx).Err(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to connect to redis: %v\n", err)
		os.Exit(1)
	}

	store := frame.NewRedisStore(client, key, 0, 0)
	spool := frame.NewSpoolSource(frame.SpoolConfig{Dir: dir, Logger: logger})

	paints := make(chan time.Time, 1)
	cancel := spool.OnPaint(func(at time.Time) {
		select {
		case paints <- at:
		default:
		}
	})
	defer cancel()

	if err := spool.Acquire(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to watch %s: %v\n", dir, err)
		os.Exit(1)
	}
	defer spool.Release()

	logger.Info("feeding frames", "dir", dir, "key", key)

	for {
		select {
		case <-ctx.Done():
			return
		case at := <-paints:
			data, err := spool.CaptureFrame(ctx)
			if err != nil {
				logger.Warn("capture failed", "error", err)
				continue
			}
			if err := store.Append(ctx, frame.StoredFrame{Timestamp: at.UnixMilli(), Data: data}); err != nil {
				logger.Warn("append failed", "error", err)
				continue
			}
			logger.Debug("frame appended", "bytes", len(data))
		}
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
