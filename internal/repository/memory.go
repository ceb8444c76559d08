package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/pagora/pagora/internal/model"
	"github.com/pagora/pagora/internal/service"
)

// In-memory store implementations. Injected when no external store is
// configured (development) and throughout the test suite. Not suitable for a
// correctness-sensitive deployment: state is per-process.

type MemoryIdempotencyStore struct {
	mu      sync.Mutex
	records map[string]*model.IdempotencyRecord
	now     func() time.Time
}

func NewMemoryIdempotencyStore() *MemoryIdempotencyStore {
	return &MemoryIdempotencyStore{
		records: make(map[string]*model.IdempotencyRecord),
		now:     time.Now,
	}
}

func (s *MemoryIdempotencyStore) GetOrLock(ctx context.Context, key string, placeholder *model.IdempotencyRecord) (*model.IdempotencyRecord, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rec, ok := s.records[key]; ok {
		if rec.ExpiresAt.IsZero() || rec.ExpiresAt.After(s.now()) {
			copied := *rec
			return &copied, true, nil
		}
		// Expired: fall through and reclaim.
	}
	copied := *placeholder
	s.records[key] = &copied
	return nil, false, nil
}

func (s *MemoryIdempotencyStore) Complete(ctx context.Context, key string, rec *model.IdempotencyRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *rec
	copied.Processing = false
	s.records[key] = &copied
	return nil
}

func (s *MemoryIdempotencyStore) Unlock(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, key)
	return nil
}

type memoryWindow struct {
	start time.Time
	count int
}

type MemoryCounterStore struct {
	mu      sync.Mutex
	windows map[string]*memoryWindow
	now     func() time.Time
}

func NewMemoryCounterStore() *MemoryCounterStore {
	return &MemoryCounterStore{
		windows: make(map[string]*memoryWindow),
		now:     time.Now,
	}
}

// SetClock overrides the time source, for tests exercising window expiry.
func (s *MemoryCounterStore) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

func (s *MemoryCounterStore) Hit(ctx context.Context, key string, limit int, window time.Duration) (*service.RateResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	w, ok := s.windows[key]
	if !ok || now.Sub(w.start) >= window {
		w = &memoryWindow{start: now}
		s.windows[key] = w
	}
	resetAt := w.start.Add(window)

	if w.count >= limit {
		return &service.RateResult{Allowed: false, Limit: limit, Remaining: 0, ResetAt: resetAt}, nil
	}
	w.count++
	return &service.RateResult{
		Allowed:   true,
		Limit:     limit,
		Remaining: limit - w.count,
		ResetAt:   resetAt,
	}, nil
}

type MemoryPaymentStore struct {
	mu       sync.RWMutex
	intents  map[string]*model.PaymentIntent
	charges  map[string]*model.Charge
	refunds  map[string]*model.Refund
	balances []*model.BalanceEntry
}

func NewMemoryPaymentStore() *MemoryPaymentStore {
	return &MemoryPaymentStore{
		intents: make(map[string]*model.PaymentIntent),
		charges: make(map[string]*model.Charge),
		refunds: make(map[string]*model.Refund),
	}
}

func (s *MemoryPaymentStore) CreateIntent(ctx context.Context, intent *model.PaymentIntent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *intent
	s.intents[intent.ID] = &copied
	return nil
}

func (s *MemoryPaymentStore) GetIntent(ctx context.Context, tenantID, id string) (*model.PaymentIntent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	intent, ok := s.intents[id]
	if !ok || intent.TenantID != tenantID {
		return nil, ErrNotFound
	}
	copied := *intent
	return &copied, nil
}

func (s *MemoryPaymentStore) UpdateIntent(ctx context.Context, intent *model.PaymentIntent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.intents[intent.ID]
	if !ok || existing.TenantID != intent.TenantID {
		return ErrNotFound
	}
	copied := *intent
	s.intents[intent.ID] = &copied
	return nil
}

func (s *MemoryPaymentStore) CreateCharge(ctx context.Context, charge *model.Charge) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *charge
	s.charges[charge.ID] = &copied
	return nil
}

func (s *MemoryPaymentStore) GetCharge(ctx context.Context, tenantID, id string) (*model.Charge, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	charge, ok := s.charges[id]
	if !ok || charge.TenantID != tenantID {
		return nil, ErrNotFound
	}
	copied := *charge
	return &copied, nil
}

func (s *MemoryPaymentStore) UpdateCharge(ctx context.Context, charge *model.Charge) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	existing, ok := s.charges[charge.ID]
	if !ok || existing.TenantID != charge.TenantID {
		return ErrNotFound
	}
	copied := *charge
	s.charges[charge.ID] = &copied
	return nil
}

func (s *MemoryPaymentStore) CreateRefund(ctx context.Context, refund *model.Refund) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *refund
	s.refunds[refund.ID] = &copied
	return nil
}

func (s *MemoryPaymentStore) CreateBalanceEntry(ctx context.Context, entry *model.BalanceEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *entry
	s.balances = append(s.balances, &copied)
	return nil
}

// ChargeCount reports how many charges exist for an intent. Test hook for
// duplicate-charge assertions.
func (s *MemoryPaymentStore) ChargeCount(intentID string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, c := range s.charges {
		if c.PaymentIntentID == intentID {
			n++
		}
	}
	return n
}

type MemoryWebhookStore struct {
	mu         sync.RWMutex
	endpoints  map[string]*model.WebhookEndpoint
	deliveries map[string]*model.WebhookDelivery
}

func NewMemoryWebhookStore() *MemoryWebhookStore {
	return &MemoryWebhookStore{
		endpoints:  make(map[string]*model.WebhookEndpoint),
		deliveries: make(map[string]*model.WebhookDelivery),
	}
}

func (s *MemoryWebhookStore) CreateEndpoint(ctx context.Context, ep *model.WebhookEndpoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *ep
	s.endpoints[ep.ID] = &copied
	return nil
}

func (s *MemoryWebhookStore) ListEndpoints(ctx context.Context, tenantID string) ([]*model.WebhookEndpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var results []*model.WebhookEndpoint
	for _, ep := range s.endpoints {
		if ep.TenantID == tenantID {
			copied := *ep
			results = append(results, &copied)
		}
	}
	sort.Slice(results, func(i, j int) bool { return results[i].CreatedAt.Before(results[j].CreatedAt) })
	return results, nil
}

func (s *MemoryWebhookStore) EndpointSecret(ctx context.Context, tenantID, endpointID string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ep, ok := s.endpoints[endpointID]
	if !ok || ep.TenantID != tenantID {
		return "", ErrNotFound
	}
	return ep.Secret, nil
}

func (s *MemoryWebhookStore) CreateDelivery(ctx context.Context, d *model.WebhookDelivery) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *d
	s.deliveries[d.ID] = &copied
	return nil
}

func (s *MemoryWebhookStore) ListPending(ctx context.Context, now time.Time, limit int) ([]*model.WebhookDelivery, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if limit <= 0 {
		limit = 50
	}
	var results []*model.WebhookDelivery
	for _, d := range s.deliveries {
		if d.Delivered || d.Attempt >= d.MaxAttempts {
			continue
		}
		if d.NextRetryAt != nil && d.NextRetryAt.After(now) {
			continue
		}
		copied := *d
		results = append(results, &copied)
	}
	sort.Slice(results, func(i, j int) bool { return results[i].CreatedAt.Before(results[j].CreatedAt) })
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

func (s *MemoryWebhookStore) ListDeliveries(ctx context.Context, tenantID string, limit int) ([]*model.WebhookDelivery, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if limit <= 0 {
		limit = 100
	}
	var results []*model.WebhookDelivery
	for _, d := range s.deliveries {
		if d.TenantID == tenantID {
			copied := *d
			results = append(results, &copied)
		}
	}
	sort.Slice(results, func(i, j int) bool { return results[i].CreatedAt.After(results[j].CreatedAt) })
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

func (s *MemoryWebhookStore) UpdateDelivery(ctx context.Context, d *model.WebhookDelivery) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.deliveries[d.ID]; !ok {
		return ErrNotFound
	}
	copied := *d
	s.deliveries[d.ID] = &copied
	return nil
}

// GetDelivery returns a delivery by id. Test hook.
func (s *MemoryWebhookStore) GetDelivery(id string) (*model.WebhookDelivery, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.deliveries[id]
	if !ok {
		return nil, false
	}
	copied := *d
	return &copied, true
}
