package session

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
)

// newRedisStore connects to REDIS_ADDR and skips the test when it is unset.
func newRedisStore(t *testing.T) *RedisStore {
	t.Helper()
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}
	rdb := redis.NewClient(&redis.Options{Addr: addr})
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		t.Skipf("redis unavailable: %v", err)
	}
	t.Cleanup(func() { _ = rdb.Close() })
	return NewRedisStore(rdb, time.Minute)
}

func TestRedisStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	st := newRedisStore(t)
	const chat = -424242
	t.Cleanup(func() { _ = st.Remove(ctx, chat) })

	if _, err := st.Get(ctx, chat); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get before Put: %v", err)
	}
	if err := st.Put(ctx, sampleSession(chat)); err != nil {
		t.Fatal(err)
	}
	got, err := st.Get(ctx, chat)
	if err != nil || got.URL != "https://example.com/watch?v=1" || len(got.Formats) != 1 {
		t.Fatalf("Get = %+v, %v", got, err)
	}
	if err := st.Remove(ctx, chat); err != nil {
		t.Fatal(err)
	}
	if _, err := st.Get(ctx, chat); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get after Remove: %v", err)
	}
}

func TestRedisManagerClaimRelease(t *testing.T) {
	ctx := context.Background()
	st := newRedisStore(t)
	const chat = -434343
	t.Cleanup(func() { _ = st.Remove(ctx, chat) })

	m := NewManager(st)
	s := openSample(t, m, chat)
	if _, _, err := m.Claim(ctx, chat, s.Token, 0); err != nil {
		t.Fatalf("Claim: %v", err)
	}
	if _, _, err := m.Claim(ctx, chat, s.Token, 0); !errors.Is(err, ErrBusy) {
		t.Fatalf("second Claim: %v", err)
	}
	if removed, err := m.Release(ctx, chat, s.Token); err != nil || !removed {
		t.Fatalf("Release: %v %v", removed, err)
	}
}
