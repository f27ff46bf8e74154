package cache

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/ghuser/farmstand/pkg/config"
)

// newTestConfig returns a config pointing to REDIS_URL env var, falling back to localhost.
func newTestConfig(url string) *config.Config {
	return &config.Config{
		RedisURL: url,
	}
}

func TestNewRedisClient_InvalidURL(t *testing.T) {
	_, err := NewRedisClient(newTestConfig("not-a-valid-url"))
	if err == nil {
		t.Fatal("expected error for invalid URL, got nil")
	}
}

func TestClientOptions(t *testing.T) {
	cfg := &config.Config{
		RedisURL:          "redis://localhost:6379/2",
		ServiceName:       "farmstand-test",
		RedisPoolSize:     25,
		RedisMinIdleConns: 5,
	}
	opts, err := clientOptions(cfg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if opts.ClientName != "farmstand-test" {
		t.Errorf("client name = %q", opts.ClientName)
	}
	if opts.PoolSize != 25 || opts.MinIdleConns != 5 {
		t.Errorf("pool = %d/%d, want 25/5", opts.PoolSize, opts.MinIdleConns)
	}
	if opts.DB != 2 {
		t.Errorf("db = %d, want 2", opts.DB)
	}
}

func TestClientOptions_ZeroPoolUsesDefaults(t *testing.T) {
	opts, err := clientOptions(newTestConfig("redis://localhost:6379"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if opts.PoolSize != 0 || opts.MinIdleConns != 0 {
		t.Errorf("expected go-redis defaults, got pool %d/%d", opts.PoolSize, opts.MinIdleConns)
	}
}

func TestNewRedisClient_UnreachableHost(t *testing.T) {
	_, err := NewRedisClient(newTestConfig("redis://localhost:19999"))
	if err == nil {
		t.Fatal("expected error when Redis is unreachable, got nil")
	}
}

// Integration tests are skipped unless REDIS_URL is set.
func TestRedisIntegration(t *testing.T) {
	redisURL := os.Getenv("REDIS_URL")
	if redisURL == "" {
		t.Skip("REDIS_URL not set; skipping integration tests")
	}

	t.Run("NewRedisClient_Success", func(t *testing.T) {
		rc, err := NewRedisClient(newTestConfig(redisURL))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		defer rc.Close() //nolint:errcheck
	})

	t.Run("Ping_Success", func(t *testing.T) {
		rc, err := NewRedisClient(newTestConfig(redisURL))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		defer rc.Close() //nolint:errcheck

		if err := rc.Ping(context.Background()); err != nil {
			t.Fatalf("Ping failed: %v", err)
		}
	})

	t.Run("Close_Idempotent", func(t *testing.T) {
		rc, err := NewRedisClient(newTestConfig(redisURL))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if err := rc.Close(); err != nil {
			t.Fatalf("first Close failed: %v", err)
		}
	})

	t.Run("Client_NotNil", func(t *testing.T) {
		rc, err := NewRedisClient(newTestConfig(redisURL))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		defer rc.Close() //nolint:errcheck

		if rc.Client() == nil {
			t.Fatal("expected non-nil underlying client")
		}
	})
}

func TestLeaseKey(t *testing.T) {
	if got := leaseKey("inventory:sweep"); got != "lease:inventory:sweep" {
		t.Fatalf("unexpected key %q", got)
	}
}

// Lease integration tests are skipped unless REDIS_URL is set.
func TestLeaseIntegration(t *testing.T) {
	redisURL := os.Getenv("REDIS_URL")
	if redisURL == "" {
		t.Skip("REDIS_URL not set; skipping integration tests")
	}

	rc, err := NewRedisClient(newTestConfig(redisURL))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer rc.Close() //nolint:errcheck

	ctx := context.Background()
	key := "test:" + uuid.NewString()

	t.Run("exclusive until released", func(t *testing.T) {
		release, ok, err := rc.TryLock(ctx, key, time.Minute)
		if err != nil || !ok {
			t.Fatalf("first TryLock: ok=%v err=%v", ok, err)
		}
		if _, ok, err := rc.TryLock(ctx, key, time.Minute); err != nil || ok {
			t.Fatalf("second TryLock should fail: ok=%v err=%v", ok, err)
		}
		if err := release(ctx); err != nil {
			t.Fatalf("release: %v", err)
		}
		release, ok, err = rc.TryLock(ctx, key, time.Minute)
		if err != nil || !ok {
			t.Fatalf("TryLock after release: ok=%v err=%v", ok, err)
		}
		_ = release(ctx)
	})

	t.Run("expired holder cannot release successor", func(t *testing.T) {
		stale, ok, err := rc.TryLock(ctx, key, 50*time.Millisecond)
		if err != nil || !ok {
			t.Fatalf("TryLock: ok=%v err=%v", ok, err)
		}
		time.Sleep(100 * time.Millisecond)

		fresh, ok, err := rc.TryLock(ctx, key, time.Minute)
		if err != nil || !ok {
			t.Fatalf("TryLock after expiry: ok=%v err=%v", ok, err)
		}
		if err := stale(ctx); !errors.Is(err, ErrLeaseLost) {
			t.Fatalf("expected ErrLeaseLost, got %v", err)
		}
		if _, ok, _ := rc.TryLock(ctx, key, time.Minute); ok {
			t.Fatal("stale release dropped the successor's lease")
		}
		_ = fresh(ctx)
	})

	t.Run("rejects non-positive ttl", func(t *testing.T) {
		if _, _, err := rc.TryLock(ctx, key, 0); err == nil {
			t.Fatal("expected error for zero ttl")
		}
	})
}
