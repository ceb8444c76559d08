package acquirer

import (
	"errors"

	"github.com/pagora/pagora/internal/config"
	"github.com/pagora/pagora/internal/model"
)

var ErrNoAdapter = errors.New("no acquirer adapter available")

// RoutingConfig is the per-tenant (or global) routing policy.
type RoutingConfig struct {
	DefaultAdapter string
	Candidates     []string
	Strategy       model.RoutingStrategy
	Metadata       map[string]string
}

// Router selects one adapter per authorization and records why. Today only
// the manual strategy (configured default) is implemented; the candidate list
// is carried on every decision so smarter strategies can be introduced
// without a data migration.
type Router struct {
	registry *Registry
	global   RoutingConfig
	tenants  map[string]RoutingConfig
}

func NewRouter(cfg *config.Config, registry *Registry) *Router {
	router := &Router{
		registry: registry,
		global: RoutingConfig{
			DefaultAdapter: "simbank",
			Candidates:     []string{"simbank"},
			Strategy:       model.StrategyManual,
		},
		tenants: make(map[string]RoutingConfig),
	}
	if cfg != nil {
		if cfg.Acquirers.DefaultAdapter != "" {
			router.global.DefaultAdapter = cfg.Acquirers.DefaultAdapter
		}
		if len(cfg.Acquirers.Candidates) > 0 {
			router.global.Candidates = cfg.Acquirers.Candidates
		}
		if cfg.Acquirers.Strategy != "" {
			router.global.Strategy = model.RoutingStrategy(cfg.Acquirers.Strategy)
		}
		router.global.Metadata = cfg.Acquirers.Metadata
		for _, tc := range cfg.Tenants {
			if tc.Routing.DefaultAdapter == "" && len(tc.Routing.Candidates) == 0 {
				continue
			}
			rc := router.global
			if tc.Routing.DefaultAdapter != "" {
				rc.DefaultAdapter = tc.Routing.DefaultAdapter
			}
			if len(tc.Routing.Candidates) > 0 {
				rc.Candidates = tc.Routing.Candidates
			}
			if tc.Routing.Strategy != "" {
				rc.Strategy = model.RoutingStrategy(tc.Routing.Strategy)
			}
			router.tenants[tc.ID] = rc
		}
	}
	return router
}

// Route picks the adapter for a tenant and returns the immutable decision
// attached to the intent. Falls back to the first registered candidate when
// the default is not available.
func (r *Router) Route(tenantID string) (Adapter, *model.RoutingDecision, error) {
	rc, ok := r.tenants[tenantID]
	if !ok {
		rc = r.global
	}

	decision := &model.RoutingDecision{
		SelectedAdapter:   rc.DefaultAdapter,
		CandidateAdapters: append([]string(nil), rc.Candidates...),
		Strategy:          rc.Strategy,
		Metadata:          rc.Metadata,
	}

	if adapter, ok := r.registry.Get(rc.DefaultAdapter); ok {
		return adapter, decision, nil
	}

	for _, candidate := range rc.Candidates {
		if adapter, ok := r.registry.Get(candidate); ok {
			decision.SelectedAdapter = candidate
			decision.Strategy = model.StrategyFallback
			return adapter, decision, nil
		}
	}

	return nil, nil, ErrNoAdapter
}

// Adapter looks up a registered adapter by name, bypassing routing policy.
// Used for follow-up operations that must return to the authorizing acquirer.
func (r *Router) Adapter(name string) (Adapter, bool) {
	return r.registry.Get(name)
}
