package session

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"

	"ptw/cmd/identity"
)

// Integration tests are opt-in and require PTW_TEST_REDIS_ADDR.

func mustOpenTestRedis(t *testing.T) *redis.Client {
	t.Helper()

	addr := strings.TrimSpace(os.Getenv("PTW_TEST_REDIS_ADDR"))
	if addr == "" {
		t.Skip("integration test skipped: PTW_TEST_REDIS_ADDR is not set")
	}

	client := redis.NewClient(&redis.Options{Addr: addr})

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		t.Skipf("integration test skipped: Redis unreachable (PTW_TEST_REDIS_ADDR set): %v", err)
	}
	return client
}

func TestRedisStore_Lifecycle(t *testing.T) {
	client := mustOpenTestRedis(t)
	defer func() { _ = client.Close() }()

	s, err := NewRedisStore(client)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	sid := "it-" + time.Now().UTC().Format("150405.000000000")
	rec := Record{UserID: "u1", Role: identity.RoleApprover, CreatedAt: time.Now().UTC()}
	if err := s.Create(ctx, sid, rec, time.Minute); err != nil {
		t.Fatalf("create: %v", err)
	}
	t.Cleanup(func() { _ = s.Destroy(context.Background(), sid) })

	got, err := s.Get(ctx, sid)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.UserID != "u1" || got.Role != identity.RoleApprover {
		t.Fatalf("record mismatch: %+v", got)
	}
	if got.ExpiresAt.IsZero() {
		t.Fatalf("expected derived expiry from TTL")
	}

	if err := s.Touch(ctx, sid, 2*time.Minute); err != nil {
		t.Fatalf("touch: %v", err)
	}

	if err := s.Destroy(ctx, sid); err != nil {
		t.Fatalf("destroy: %v", err)
	}
	if _, err := s.Get(ctx, sid); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected not found after destroy, got %v", err)
	}
	if err := s.Touch(ctx, sid, time.Minute); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected not found touch, got %v", err)
	}
}
