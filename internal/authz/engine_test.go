package authz

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/tidemq/broker-core/internal/cache"
	"github.com/tidemq/broker-core/internal/policy"
	"github.com/tidemq/broker-core/pkg/types"
)

func newTestStore(t *testing.T) (*policy.MemoryStore, types.TopicName) {
	t.Helper()
	ctx := context.Background()
	store := policy.NewMemoryStore()

	if err := store.CreateCluster(ctx, &types.ClusterRecord{Name: "test", ServiceURL: "http://localhost:8080"}); err != nil {
		t.Fatalf("create cluster: %v", err)
	}
	if err := store.CreateTenant(ctx, &types.TenantRecord{
		Name:            "my-tenant",
		AdminRoles:      []string{"appid1", "appid2"},
		AllowedClusters: []string{"test"},
	}); err != nil {
		t.Fatalf("create tenant: %v", err)
	}
	if err := store.CreateNamespace(ctx, &types.NamespaceRecord{
		Tenant: "my-tenant", Name: "my-ns", AllowedClusters: []string{"test"},
	}); err != nil {
		t.Fatalf("create namespace: %v", err)
	}

	topic, _ := types.ParseTopicName("persistent://my-tenant/my-ns/my-topic")
	return store, topic
}

func newTestEngine(store policy.Store, superusers ...string) *Engine {
	return New(Config{
		AuthorizationEnabled: true,
		SuperUserRoles:       superusers,
	}, store, nil, nil, nil)
}

func TestEngine_SuperUserBypassesGrants(t *testing.T) {
	store, topic := newTestStore(t)
	eng := newTestEngine(store, "superUser", "localhost")
	ctx := context.Background()

	// No explicit grants exist at all.
	for _, action := range types.AllActions() {
		if err := eng.Authorize(ctx, "superUser", action, topic); err != nil {
			t.Errorf("superuser must be allowed for %s: %v", action, err)
		}
	}

	// Even on a topic whose hierarchy does not exist.
	ghost, _ := types.ParseTopicName("persistent://ghost/ns/topic")
	if err := eng.Authorize(ctx, "superUser", types.ActionProduce, ghost); err != nil {
		t.Errorf("superuser short-circuits before hierarchy resolution: %v", err)
	}
}

func TestEngine_AnonymousRoleIsOrdinary(t *testing.T) {
	store, topic := newTestStore(t)
	eng := newTestEngine(store, "superUser")
	ctx := context.Background()

	// No grant: deny.
	if err := eng.Authorize(ctx, "anonymousUser", types.ActionConsume, topic); !errors.Is(err, ErrDenied) {
		t.Fatalf("expected ErrDenied, got %v", err)
	}

	if err := store.GrantTopicPermission(ctx, topic, "anonymousUser",
		types.NewActionSet(types.ActionProduce, types.ActionConsume)); err != nil {
		t.Fatalf("grant: %v", err)
	}

	if err := eng.Authorize(ctx, "anonymousUser", types.ActionConsume, topic); err != nil {
		t.Errorf("expected allow after grant: %v", err)
	}
}

func TestEngine_NamespaceGrantCoversTopics(t *testing.T) {
	store, topic := newTestStore(t)
	eng := newTestEngine(store)
	ctx := context.Background()

	if err := store.GrantNamespacePermission(ctx, "my-tenant", "my-ns", "consumer-app",
		types.NewActionSet(types.ActionConsume)); err != nil {
		t.Fatalf("grant: %v", err)
	}

	if err := eng.Authorize(ctx, "consumer-app", types.ActionConsume, topic); err != nil {
		t.Errorf("namespace grant must apply to topics in it: %v", err)
	}
	if err := eng.Authorize(ctx, "consumer-app", types.ActionProduce, topic); !errors.Is(err, ErrDenied) {
		t.Errorf("namespace grant must not widen to other actions: %v", err)
	}
}

func TestEngine_MissingHierarchyIsNotFoundNotDeny(t *testing.T) {
	store, _ := newTestStore(t)
	eng := newTestEngine(store)
	ctx := context.Background()

	ghost, _ := types.ParseTopicName("persistent://my-tenant/ghost-ns/topic")
	err := eng.Authorize(ctx, "client", types.ActionProduce, ghost)
	if !errors.Is(err, policy.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if errors.Is(err, ErrDenied) {
		t.Fatalf("not-found must be distinct from deny")
	}
}

func TestEngine_StoreFailurePropagatesUnchanged(t *testing.T) {
	backendErr := errors.New("metadata store unreachable")
	eng := newTestEngine(&policy.FaultyStore{Err: backendErr})
	topic, _ := types.ParseTopicName("persistent://my-tenant/my-ns/my-topic")

	err := eng.Authorize(context.Background(), "client", types.ActionProduce, topic)
	if !errors.Is(err, backendErr) {
		t.Fatalf("expected backend error to propagate, got %v", err)
	}
	if errors.Is(err, ErrDenied) {
		t.Fatalf("a backend failure must never read as deny")
	}
}

func TestEngine_EmptyPrincipalFailsClosed(t *testing.T) {
	store, topic := newTestStore(t)
	eng := newTestEngine(store)

	if err := eng.Authorize(context.Background(), "", types.ActionProduce, topic); !errors.Is(err, ErrDenied) {
		t.Fatalf("expected ErrDenied for empty principal, got %v", err)
	}
}

func TestEngine_DisabledAuthorizationAllowsAll(t *testing.T) {
	store, topic := newTestStore(t)
	eng := New(Config{AuthorizationEnabled: false}, store, nil, nil, nil)

	if err := eng.Authorize(context.Background(), "", types.ActionProduce, topic); err != nil {
		t.Fatalf("disabled authorization must allow: %v", err)
	}
}

func TestEngine_TenantOperation(t *testing.T) {
	store, _ := newTestStore(t)
	eng := newTestEngine(store, "superUser")
	ctx := context.Background()

	if err := eng.AllowTenantOperation(ctx, "appid1", "my-tenant"); err != nil {
		t.Errorf("tenant admin must be allowed: %v", err)
	}
	if err := eng.AllowTenantOperation(ctx, "superUser", "my-tenant"); err != nil {
		t.Errorf("superuser must be allowed: %v", err)
	}
	if err := eng.AllowTenantOperation(ctx, "stranger", "my-tenant"); !errors.Is(err, ErrDenied) {
		t.Errorf("expected ErrDenied for non-admin, got %v", err)
	}
	if err := eng.AllowTenantOperation(ctx, "appid1", "ghost-tenant"); !errors.Is(err, policy.ErrNotFound) {
		t.Errorf("expected ErrNotFound for unknown tenant, got %v", err)
	}
}

func TestEngine_SuperUserOperation(t *testing.T) {
	store, _ := newTestStore(t)
	eng := newTestEngine(store, "superUser")

	if err := eng.AllowSuperUserOperation("superUser"); err != nil {
		t.Errorf("superuser must be allowed: %v", err)
	}
	if err := eng.AllowSuperUserOperation("appid1"); !errors.Is(err, ErrDenied) {
		t.Errorf("expected ErrDenied, got %v", err)
	}
}

func TestEngine_LookupImpliedByProduceOrConsume(t *testing.T) {
	store, topic := newTestStore(t)
	eng := newTestEngine(store)
	ctx := context.Background()

	if err := store.GrantTopicPermission(ctx, topic, "producer-app",
		types.NewActionSet(types.ActionProduce)); err != nil {
		t.Fatalf("grant: %v", err)
	}

	if err := eng.CanLookup(ctx, "producer-app", topic); err != nil {
		t.Errorf("produce grant must imply lookup: %v", err)
	}
	if err := eng.CanLookup(ctx, "stranger", topic); !errors.Is(err, ErrDenied) {
		t.Errorf("expected ErrDenied, got %v", err)
	}
}

func TestEngine_CachedDecisionInvalidation(t *testing.T) {
	store, topic := newTestStore(t)
	decisions := cache.NewLRU(100, time.Minute)
	eng := New(Config{AuthorizationEnabled: true}, store, decisions, nil, nil)
	ctx := context.Background()

	if err := eng.Authorize(ctx, "client", types.ActionProduce, topic); !errors.Is(err, ErrDenied) {
		t.Fatalf("expected deny, got %v", err)
	}

	if err := store.GrantTopicPermission(ctx, topic, "client",
		types.NewActionSet(types.ActionProduce)); err != nil {
		t.Fatalf("grant: %v", err)
	}

	// The deny is cached until the cache is flushed.
	if err := eng.Authorize(ctx, "client", types.ActionProduce, topic); !errors.Is(err, ErrDenied) {
		t.Fatalf("expected cached deny, got %v", err)
	}

	eng.FlushCache()
	if err := eng.Authorize(ctx, "client", types.ActionProduce, topic); err != nil {
		t.Fatalf("expected allow after flush: %v", err)
	}

	// Session invalidation purges this principal's decisions only.
	if err := eng.Authorize(ctx, "other", types.ActionProduce, topic); !errors.Is(err, ErrDenied) {
		t.Fatalf("expected deny for other, got %v", err)
	}
	eng.InvalidatePrincipal("client")
	if _, ok := decisions.Get(cache.Key("client", string(types.ActionProduce), topic.String())); ok {
		t.Errorf("client decisions should be purged")
	}
	if _, ok := decisions.Get(cache.Key("other", string(types.ActionProduce), topic.String())); !ok {
		t.Errorf("other principals keep their cached decisions")
	}
}

func TestEngine_ConfigSwapTakesEffect(t *testing.T) {
	store, topic := newTestStore(t)
	eng := newTestEngine(store)
	ctx := context.Background()

	if err := eng.Authorize(ctx, "late-super", types.ActionProduce, topic); !errors.Is(err, ErrDenied) {
		t.Fatalf("expected deny before config swap, got %v", err)
	}

	eng.UpdateConfig(Config{
		AuthorizationEnabled: true,
		SuperUserRoles:       []string{"late-super"},
	})

	if err := eng.Authorize(ctx, "late-super", types.ActionProduce, topic); err != nil {
		t.Fatalf("expected allow after config swap: %v", err)
	}
}
