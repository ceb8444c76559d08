package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/pagora/pagora/internal/config"
	"github.com/pagora/pagora/internal/repository"
	"github.com/pagora/pagora/internal/service"
)

func limiterConfig(max, windowMs int) *config.Config {
	cfg := &config.Config{}
	cfg.RateLimit.MaxRequests = max
	cfg.RateLimit.WindowMs = windowMs
	return cfg
}

func TestRateLimiter_AllowsUpToLimit(t *testing.T) {
	store := repository.NewMemoryCounterStore()
	rl := service.NewRateLimiter(limiterConfig(3, 60000), store)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		res := rl.Check(ctx, "tn_1", "POST /v1/payment_intents")
		if !res.Allowed {
			t.Fatalf("request %d should be allowed", i+1)
		}
		if res.Remaining != 3-(i+1) {
			t.Fatalf("request %d: expected remaining %d, got %d", i+1, 3-(i+1), res.Remaining)
		}
	}

	res := rl.Check(ctx, "tn_1", "POST /v1/payment_intents")
	if res.Allowed {
		t.Fatal("request over the limit must be rejected")
	}
	if res.Remaining != 0 {
		t.Fatalf("rejected request should report zero remaining, got %d", res.Remaining)
	}
}

func TestRateLimiter_WindowReset(t *testing.T) {
	store := repository.NewMemoryCounterStore()
	base := time.Unix(1700000000, 0)
	clock := base
	store.SetClock(func() time.Time { return clock })

	rl := service.NewRateLimiter(limiterConfig(1, 1000), store)
	ctx := context.Background()

	if !rl.Check(ctx, "tn_1", "r").Allowed {
		t.Fatal("first request must pass")
	}
	if rl.Check(ctx, "tn_1", "r").Allowed {
		t.Fatal("second request inside window must fail")
	}

	clock = base.Add(1500 * time.Millisecond)
	if !rl.Check(ctx, "tn_1", "r").Allowed {
		t.Fatal("request in next window must pass")
	}
}

func TestRateLimiter_ScopesPerTenantAndRoute(t *testing.T) {
	store := repository.NewMemoryCounterStore()
	rl := service.NewRateLimiter(limiterConfig(1, 60000), store)
	ctx := context.Background()

	if !rl.Check(ctx, "tn_1", "POST /v1/payment_intents").Allowed {
		t.Fatal("first request must pass")
	}
	if rl.Check(ctx, "tn_1", "POST /v1/payment_intents").Allowed {
		t.Fatal("same tenant+route must be limited")
	}
	if !rl.Check(ctx, "tn_2", "POST /v1/payment_intents").Allowed {
		t.Fatal("other tenant must have its own budget")
	}
	if !rl.Check(ctx, "tn_1", "POST /v1/refunds").Allowed {
		t.Fatal("other route must have its own budget")
	}
}

func TestRateLimiter_TenantOverride(t *testing.T) {
	cfg := limiterConfig(1, 60000)
	cfg.Tenants = []config.TenantConfig{{ID: "tn_big"}}
	cfg.Tenants[0].RateLimit.MaxRequests = 5

	rl := service.NewRateLimiter(cfg, repository.NewMemoryCounterStore())
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		if !rl.Check(ctx, "tn_big", "r").Allowed {
			t.Fatalf("override tenant request %d should pass", i+1)
		}
	}
	if rl.Check(ctx, "tn_big", "r").Allowed {
		t.Fatal("override tenant must still be limited at its own cap")
	}
}

type failingCounter struct{}

func (failingCounter) Hit(ctx context.Context, key string, limit int, window time.Duration) (*service.RateResult, error) {
	return nil, errors.New("store down")
}

func TestRateLimiter_FailOpen(t *testing.T) {
	rl := service.NewRateLimiter(limiterConfig(1, 60000), failingCounter{})
	if !rl.Check(context.Background(), "tn_1", "r").Allowed {
		t.Fatal("limiter must fail open when the store errors")
	}
}
