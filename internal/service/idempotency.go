package service

import (
	"context"
	"time"

	"github.com/pagora/pagora/internal/model"
	"github.com/pagora/pagora/internal/pkg/logger"
)

// IdempotencyStore is one storage tier. GetOrLock atomically claims the key
// with a processing placeholder when absent; returns the existing record
// otherwise.
type IdempotencyStore interface {
	GetOrLock(ctx context.Context, key string, placeholder *model.IdempotencyRecord) (*model.IdempotencyRecord, bool, error)
	Complete(ctx context.Context, key string, rec *model.IdempotencyRecord) error
	Unlock(ctx context.Context, key string) error
}

// Coordinator layers a fast cache tier over a durable tier. The first write
// is a conditional claim on both tiers, so two concurrent requests with the
// same fresh key cannot both run the handler; the loser observes the
// in-flight placeholder.
type Coordinator struct {
	fast    IdempotencyStore
	durable IdempotencyStore
	ttl     time.Duration
}

func NewCoordinator(fast, durable IdempotencyStore, ttl time.Duration) *Coordinator {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Coordinator{fast: fast, durable: durable, ttl: ttl}
}

// BeginResult describes what the caller should do next. Exactly one of the
// fields is meaningful: Replay when a completed record matched, Conflict when
// the key was reused with a different body, InProgress when a concurrent
// request holds the claim, otherwise proceed and call Complete or Abort.
type BeginResult struct {
	Replay     *model.IdempotencyRecord
	Conflict   bool
	InProgress bool
}

func storageKey(tenantID, endpoint, idemKey string) string {
	return tenantID + ":" + endpoint + ":" + idemKey
}

func (c *Coordinator) Begin(ctx context.Context, tenantID, endpoint, idemKey, bodyHash string) (*BeginResult, error) {
	key := storageKey(tenantID, endpoint, idemKey)
	now := time.Now().UTC()
	placeholder := &model.IdempotencyRecord{
		TenantID:   tenantID,
		Endpoint:   endpoint,
		Key:        idemKey,
		BodyHash:   bodyHash,
		Processing: true,
		CreatedAt:  now,
		ExpiresAt:  now.Add(c.ttl),
	}

	if c.fast != nil {
		rec, found, err := c.fast.GetOrLock(ctx, key, placeholder)
		if err != nil {
			logger.Warn("idempotency fast tier unavailable", "error", err.Error())
		} else if found {
			return resolve(rec, bodyHash), nil
		}
		// We hold the fast-tier claim; the durable tier is still the source
		// of truth (the cache entry may have expired ahead of it).
	}

	if c.durable != nil {
		rec, found, err := c.durable.GetOrLock(ctx, key, placeholder)
		if err != nil {
			c.release(ctx, c.fast, key)
			return nil, err
		}
		if found {
			result := resolve(rec, bodyHash)
			if c.fast != nil {
				if result.Replay != nil {
					// Promote the durable record into the cache for the next retry.
					if err := c.fast.Complete(ctx, key, rec); err != nil {
						logger.Debug("idempotency promotion failed", "error", err.Error())
					}
				} else {
					// The durable tier owns this key (conflict or still in
					// flight). Drop our cache claim so a later retry resolves
					// against the durable record instead of the placeholder.
					c.release(ctx, c.fast, key)
				}
			}
			return result, nil
		}
	}

	return &BeginResult{}, nil
}

func resolve(rec *model.IdempotencyRecord, bodyHash string) *BeginResult {
	if rec.Processing {
		return &BeginResult{InProgress: true}
	}
	if rec.BodyHash != bodyHash {
		return &BeginResult{Conflict: true}
	}
	return &BeginResult{Replay: rec}
}

// Complete persists the outcome into both tiers. Only called for outcomes
// with status < 500.
func (c *Coordinator) Complete(ctx context.Context, tenantID, endpoint, idemKey string, rec *model.IdempotencyRecord) error {
	key := storageKey(tenantID, endpoint, idemKey)
	rec.Processing = false
	if c.durable != nil {
		if err := c.durable.Complete(ctx, key, rec); err != nil {
			return err
		}
	}
	if c.fast != nil {
		if err := c.fast.Complete(ctx, key, rec); err != nil {
			logger.Warn("idempotency fast tier save failed", "error", err.Error())
		}
	}
	return nil
}

// Abort releases the claim so the client may retry, used when the handler
// produced a 5xx outcome.
func (c *Coordinator) Abort(ctx context.Context, tenantID, endpoint, idemKey string) {
	key := storageKey(tenantID, endpoint, idemKey)
	c.release(ctx, c.fast, key)
	c.release(ctx, c.durable, key)
}

func (c *Coordinator) release(ctx context.Context, store IdempotencyStore, key string) {
	if store == nil {
		return
	}
	if err := store.Unlock(ctx, key); err != nil {
		logger.Warn("idempotency unlock failed", "key", key, "error", err.Error())
	}
}

// TTL exposes the configured record lifetime.
func (c *Coordinator) TTL() time.Duration {
	return c.ttl
}
