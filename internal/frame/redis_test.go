package frame

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func setupRedisStore(t *testing.T, maxFrames int64) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	return NewRedisStore(client, FrameKey("test-client"), time.Minute, maxFrames), mr
}

func TestRedisStore_AppendAndLatest(t *testing.T) {
	store, _ := setupRedisStore(t, 10)
	ctx := context.Background()

	now := time.Now().UnixMilli()
	store.Append(ctx, StoredFrame{Timestamp: now, Data: []byte("frame1")})
	store.Append(ctx, StoredFrame{Timestamp: now + 100, Data: []byte("frame2")})

	f, err := store.Latest(ctx)
	if err != nil {
		t.Fatalf("Latest failed: %v", err)
	}
	if f == nil || string(f.Data) != "frame2" {
		t.Fatalf("expected frame2, got %+v", f)
	}
	if f.Timestamp != now+100 {
		t.Errorf("expected timestamp %d, got %d", now+100, f.Timestamp)
	}
}

func TestRedisStore_TrimsOldFrames(t *testing.T) {
	store, mr := setupRedisStore(t, 3)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		store.Append(ctx, StoredFrame{Timestamp: int64(1000 + i), Data: []byte{byte('a' + i)}})
	}

	members, err := mr.ZMembers(store.Key())
	if err != nil {
		t.Fatalf("ZMembers failed: %v", err)
	}
	if len(members) != 3 {
		t.Errorf("expected 3 frames kept, got %d", len(members))
	}
	if ttl := mr.TTL(store.Key()); ttl != time.Minute {
		t.Errorf("expected ttl of one minute, got %v", ttl)
	}
}

func TestRedisStore_LatestEmpty(t *testing.T) {
	store, _ := setupRedisStore(t, 10)
	f, err := store.Latest(context.Background())
	if err != nil {
		t.Fatalf("Latest failed: %v", err)
	}
	if f != nil {
		t.Errorf("expected nil frame, got %+v", f)
	}
}

func TestRedisStore_Delete(t *testing.T) {
	store, mr := setupRedisStore(t, 10)
	ctx := context.Background()
	store.Append(ctx, StoredFrame{Timestamp: 1, Data: []byte("x")})

	if err := store.Delete(ctx); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if mr.Exists(store.Key()) {
		t.Error("key should be deleted")
	}
}

func TestRedisSource_Freshness(t *testing.T) {
	store, _ := setupRedisStore(t, 10)
	ctx := context.Background()

	now := time.Now()
	src := NewRedisSource(store, time.Second)
	src.now = func() time.Time { return now }

	if src.IsReady() {
		t.Error("source should not be ready without frames")
	}

	store.Append(ctx, StoredFrame{Timestamp: now.Add(-500 * time.Millisecond).UnixMilli(), Data: []byte("fresh")})
	if !src.IsReady() {
		t.Fatal("source should be ready with a fresh frame")
	}
	data, err := src.CaptureFrame(ctx)
	if err != nil {
		t.Fatalf("CaptureFrame failed: %v", err)
	}
	if string(data) != "fresh" {
		t.Errorf("expected fresh, got %q", data)
	}

	src.now = func() time.Time { return now.Add(5 * time.Second) }
	if src.IsReady() {
		t.Error("source should not be ready with a stale frame")
	}
}
