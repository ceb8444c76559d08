package service

import (
	"context"
	"time"

	"github.com/pagora/pagora/internal/config"
	"github.com/pagora/pagora/internal/pkg/logger"
)

// RateResult is the outcome of one admission check.
type RateResult struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
}

// CounterStore records one hit against a fixed window and reports quota. The
// Redis implementation is atomic; the Postgres fallback is check-then-insert
// and therefore permissive under concurrency.
type CounterStore interface {
	Hit(ctx context.Context, key string, limit int, window time.Duration) (*RateResult, error)
}

type tenantLimit struct {
	max    int
	window time.Duration
}

// RateLimiter bounds request volume per (tenant, method+path).
type RateLimiter struct {
	store     CounterStore
	max       int
	window    time.Duration
	overrides map[string]tenantLimit
}

func NewRateLimiter(cfg *config.Config, store CounterStore) *RateLimiter {
	max := 60
	window := 60 * time.Second
	if cfg != nil {
		if cfg.RateLimit.MaxRequests > 0 {
			max = cfg.RateLimit.MaxRequests
		}
		if cfg.RateLimit.WindowMs > 0 {
			window = time.Duration(cfg.RateLimit.WindowMs) * time.Millisecond
		}
	}
	rl := &RateLimiter{
		store:     store,
		max:       max,
		window:    window,
		overrides: make(map[string]tenantLimit),
	}
	if cfg != nil {
		for _, tc := range cfg.Tenants {
			if tc.RateLimit.MaxRequests > 0 {
				w := window
				if tc.RateLimit.WindowMs > 0 {
					w = time.Duration(tc.RateLimit.WindowMs) * time.Millisecond
				}
				rl.overrides[tc.ID] = tenantLimit{max: tc.RateLimit.MaxRequests, window: w}
			}
		}
	}
	return rl
}

// Check admits or rejects one request for the tenant+route. Fail-open when
// the counter store errors: availability over strictness for the edge.
func (rl *RateLimiter) Check(ctx context.Context, tenantID, routeKey string) *RateResult {
	max, window := rl.max, rl.window
	if o, ok := rl.overrides[tenantID]; ok {
		max, window = o.max, o.window
	}

	if rl.store == nil {
		return &RateResult{Allowed: true, Limit: max, Remaining: max, ResetAt: time.Now().Add(window)}
	}

	res, err := rl.store.Hit(ctx, tenantID+":"+routeKey, max, window)
	if err != nil {
		logger.Warn("rate counter store unavailable, admitting request", "tenant_id", tenantID, "error", err.Error())
		return &RateResult{Allowed: true, Limit: max, Remaining: max, ResetAt: time.Now().Add(window)}
	}
	return res
}
