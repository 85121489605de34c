// Package authz evaluates principals against the hierarchical resource ACLs.
package authz

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/tidemq/broker-core/internal/cache"
	"github.com/tidemq/broker-core/internal/metrics"
	"github.com/tidemq/broker-core/internal/policy"
	"github.com/tidemq/broker-core/pkg/types"
)

// ErrDenied is the forbidden outcome. Callers map it to 403; everything that
// is not ErrDenied, policy.ErrNotFound, or an authentication error is an
// internal failure and must never read as forbidden.
var ErrDenied = errors.New("permission denied")

// Config is the process-wide authorization snapshot. It is immutable;
// reconfiguration swaps in a new value atomically.
type Config struct {
	AuthorizationEnabled bool
	SuperUserRoles       []string
}

// IsSuperUser reports whether the role is in the superuser set.
func (c *Config) IsSuperUser(role string) bool {
	for _, r := range c.SuperUserRoles {
		if r == role {
			return true
		}
	}
	return false
}

// Engine evaluates {principal, action, resource} with strict precedence:
// superuser, then explicit grant (namespace before topic), then deny.
// A deny is never overridden by a looser later check.
type Engine struct {
	store   policy.Store
	cache   cache.DecisionCache
	metrics *metrics.Metrics
	logger  *zap.Logger
	cfg     atomic.Pointer[Config]
}

// New creates an engine. cache and m may be nil.
func New(cfg Config, store policy.Store, decisions cache.DecisionCache, m *metrics.Metrics, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	e := &Engine{
		store:   store,
		cache:   decisions,
		metrics: m,
		logger:  logger,
	}
	e.cfg.Store(&cfg)
	return e
}

// UpdateConfig atomically replaces the configuration snapshot. In-flight
// evaluations keep the snapshot they started with.
func (e *Engine) UpdateConfig(cfg Config) {
	e.cfg.Store(&cfg)
}

// Authorize evaluates a data-plane action on a topic. It returns nil on
// allow, ErrDenied on deny, a policy.ErrNotFound-wrapped error when the
// resource hierarchy is missing, and any other store failure unchanged.
func (e *Engine) Authorize(ctx context.Context, principal string, action types.Action, topic types.TopicName) error {
	start := time.Now()
	cfg := e.cfg.Load()

	if !cfg.AuthorizationEnabled {
		return nil
	}
	// The role resolver guarantees a principal; an empty one means the
	// caller skipped authentication, so fail closed.
	if principal == "" {
		return fmt.Errorf("%w: no principal", ErrDenied)
	}
	if cfg.IsSuperUser(principal) {
		e.record(true, start)
		return nil
	}

	key := cache.Key(principal, string(action), topic.String())
	if e.cache != nil {
		if allowed, ok := e.cache.Get(key); ok {
			if e.metrics != nil {
				e.metrics.RecordCacheHit()
			}
			e.record(allowed, start)
			if allowed {
				return nil
			}
			return ErrDenied
		}
		if e.metrics != nil {
			e.metrics.RecordCacheMiss()
		}
	}

	allowed, err := e.evaluate(ctx, principal, action, topic)
	if err != nil {
		// Not a decision: never cached, never counted as deny.
		return err
	}

	if e.cache != nil {
		e.cache.Set(key, allowed)
	}
	e.record(allowed, start)
	if allowed {
		return nil
	}
	e.logger.Debug("Authorization denied",
		zap.String("principal", principal),
		zap.String("action", string(action)),
		zap.String("topic", topic.String()))
	return ErrDenied
}

func (e *Engine) evaluate(ctx context.Context, principal string, action types.Action, topic types.TopicName) (bool, error) {
	// Resolve the hierarchy first so a dangling path reads as not-found,
	// not forbidden.
	if _, err := e.store.GetTenant(ctx, topic.Tenant); err != nil {
		return false, err
	}
	if _, err := e.store.GetNamespace(ctx, topic.Tenant, topic.Namespace); err != nil {
		return false, err
	}

	nsPerms, err := e.store.GetNamespacePermissions(ctx, topic.Tenant, topic.Namespace)
	if err != nil {
		return false, err
	}
	if nsPerms[principal].Has(action) {
		return true, nil
	}

	topicPerms, err := e.store.GetTopicPermissions(ctx, topic)
	if err != nil {
		return false, err
	}
	return topicPerms[principal].Has(action), nil
}

// AllowTenantOperation authorizes tenant administration: namespace
// create/alter/delete and permission management. Superusers and the tenant's
// admin roles qualify.
func (e *Engine) AllowTenantOperation(ctx context.Context, principal, tenantName string) error {
	cfg := e.cfg.Load()
	if !cfg.AuthorizationEnabled {
		return nil
	}
	if principal == "" {
		return fmt.Errorf("%w: no principal", ErrDenied)
	}
	if cfg.IsSuperUser(principal) {
		return nil
	}

	tenant, err := e.store.GetTenant(ctx, tenantName)
	if err != nil {
		return err
	}
	if tenant.HasAdminRole(principal) {
		return nil
	}
	return fmt.Errorf("%w: %s is not an admin of tenant %s", ErrDenied, principal, tenantName)
}

// AllowSuperUserOperation authorizes cluster and tenant lifecycle calls,
// which only superusers may perform.
func (e *Engine) AllowSuperUserOperation(principal string) error {
	cfg := e.cfg.Load()
	if !cfg.AuthorizationEnabled {
		return nil
	}
	if principal == "" || !cfg.IsSuperUser(principal) {
		return fmt.Errorf("%w: superuser access required", ErrDenied)
	}
	return nil
}

// CanProduce reports whether the principal may publish to the topic.
func (e *Engine) CanProduce(ctx context.Context, principal string, topic types.TopicName) error {
	return e.Authorize(ctx, principal, types.ActionProduce, topic)
}

// CanConsume reports whether the principal may subscribe to the topic.
func (e *Engine) CanConsume(ctx context.Context, principal string, topic types.TopicName) error {
	return e.Authorize(ctx, principal, types.ActionConsume, topic)
}

// CanLookup reports whether the principal may discover the topic's broker.
// Produce or consume permission implies lookup.
func (e *Engine) CanLookup(ctx context.Context, principal string, topic types.TopicName) error {
	if err := e.Authorize(ctx, principal, types.ActionLookup, topic); !errors.Is(err, ErrDenied) {
		return err
	}
	if err := e.Authorize(ctx, principal, types.ActionProduce, topic); !errors.Is(err, ErrDenied) {
		return err
	}
	return e.Authorize(ctx, principal, types.ActionConsume, topic)
}

// InvalidatePrincipal drops every cached decision for the principal. Called
// when a session is invalidated after a backend-trust failure.
func (e *Engine) InvalidatePrincipal(principal string) {
	if e.cache != nil {
		e.cache.DeletePrefix(principal + "|")
	}
}

// FlushCache drops all cached decisions. Called after grant/revoke so stale
// allows and denies do not outlive the policy change.
func (e *Engine) FlushCache() {
	if e.cache != nil {
		e.cache.Clear()
	}
}

func (e *Engine) record(allowed bool, start time.Time) {
	if e.metrics != nil {
		e.metrics.RecordAuthorization(allowed, time.Since(start).Seconds())
	}
}
