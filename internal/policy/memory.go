package policy

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/tidemq/broker-core/pkg/types"
)

// MemoryStore is the in-memory reference implementation. Permission maps are
// replaced copy-on-write so that a reader holding a map returned by a getter
// never observes a concurrent mutation.
type MemoryStore struct {
	mu         sync.RWMutex
	clusters   map[string]*types.ClusterRecord
	tenants    map[string]*types.TenantRecord
	namespaces map[string]*types.NamespaceRecord // keyed by tenant/namespace
	nsPerms    map[string]types.PermissionMap    // keyed by tenant/namespace
	topicPerms map[string]types.PermissionMap    // keyed by full topic name
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		clusters:   make(map[string]*types.ClusterRecord),
		tenants:    make(map[string]*types.TenantRecord),
		namespaces: make(map[string]*types.NamespaceRecord),
		nsPerms:    make(map[string]types.PermissionMap),
		topicPerms: make(map[string]types.PermissionMap),
	}
}

func (s *MemoryStore) GetCluster(ctx context.Context, name string) (*types.ClusterRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.clusters[name]
	if !ok {
		return nil, fmt.Errorf("%w: cluster %s", ErrNotFound, name)
	}
	out := *rec
	return &out, nil
}

func (s *MemoryStore) ListClusters(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return sortedKeys(s.clusters), nil
}

func (s *MemoryStore) CreateCluster(ctx context.Context, rec *types.ClusterRecord) error {
	if rec == nil || rec.Name == "" {
		return fmt.Errorf("%w: cluster name is required", ErrInvalidRecord)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.clusters[rec.Name]; ok {
		return fmt.Errorf("%w: cluster %s", ErrAlreadyExists, rec.Name)
	}
	out := *rec
	s.clusters[rec.Name] = &out
	return nil
}

func (s *MemoryStore) DeleteCluster(ctx context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.clusters[name]; !ok {
		return fmt.Errorf("%w: cluster %s", ErrNotFound, name)
	}
	delete(s.clusters, name)
	return nil
}

func (s *MemoryStore) GetTenant(ctx context.Context, name string) (*types.TenantRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.tenants[name]
	if !ok {
		return nil, fmt.Errorf("%w: tenant %s", ErrNotFound, name)
	}
	out := *rec
	out.AdminRoles = append([]string(nil), rec.AdminRoles...)
	out.AllowedClusters = append([]string(nil), rec.AllowedClusters...)
	return &out, nil
}

func (s *MemoryStore) ListTenants(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return sortedKeys(s.tenants), nil
}

func (s *MemoryStore) CreateTenant(ctx context.Context, rec *types.TenantRecord) error {
	if rec == nil || rec.Name == "" {
		return fmt.Errorf("%w: tenant name is required", ErrInvalidRecord)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.tenants[rec.Name]; ok {
		return fmt.Errorf("%w: tenant %s", ErrAlreadyExists, rec.Name)
	}
	// A tenant may only be homed on clusters that exist.
	for _, cluster := range rec.AllowedClusters {
		if _, ok := s.clusters[cluster]; !ok {
			return fmt.Errorf("%w: tenant %s references unknown cluster %s",
				ErrInvalidRecord, rec.Name, cluster)
		}
	}

	out := *rec
	out.AdminRoles = append([]string(nil), rec.AdminRoles...)
	out.AllowedClusters = append([]string(nil), rec.AllowedClusters...)
	s.tenants[rec.Name] = &out
	return nil
}

func (s *MemoryStore) DeleteTenant(ctx context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.tenants[name]; !ok {
		return fmt.Errorf("%w: tenant %s", ErrNotFound, name)
	}
	delete(s.tenants, name)
	return nil
}

func (s *MemoryStore) GetNamespace(ctx context.Context, tenant, name string) (*types.NamespaceRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.namespaces[tenant+"/"+name]
	if !ok {
		return nil, fmt.Errorf("%w: namespace %s/%s", ErrNotFound, tenant, name)
	}
	out := *rec
	out.AllowedClusters = append([]string(nil), rec.AllowedClusters...)
	return &out, nil
}

func (s *MemoryStore) ListNamespaces(ctx context.Context, tenant string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.tenants[tenant]; !ok {
		return nil, fmt.Errorf("%w: tenant %s", ErrNotFound, tenant)
	}

	var names []string
	for _, rec := range s.namespaces {
		if rec.Tenant == tenant {
			names = append(names, rec.Name)
		}
	}
	sort.Strings(names)
	return names, nil
}

func (s *MemoryStore) CreateNamespace(ctx context.Context, rec *types.NamespaceRecord) error {
	if rec == nil || rec.Tenant == "" || rec.Name == "" {
		return fmt.Errorf("%w: namespace tenant and name are required", ErrInvalidRecord)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tenant, ok := s.tenants[rec.Tenant]
	if !ok {
		return fmt.Errorf("%w: tenant %s", ErrNotFound, rec.Tenant)
	}
	if _, ok := s.namespaces[rec.Path()]; ok {
		return fmt.Errorf("%w: namespace %s", ErrAlreadyExists, rec.Path())
	}
	// Namespace clusters must be a subset of the tenant's allowed clusters.
	for _, cluster := range rec.AllowedClusters {
		if !tenant.AllowsCluster(cluster) {
			return fmt.Errorf("%w: cluster %s is not allowed for tenant %s",
				ErrInvalidRecord, cluster, rec.Tenant)
		}
	}

	out := *rec
	out.AllowedClusters = append([]string(nil), rec.AllowedClusters...)
	s.namespaces[rec.Path()] = &out
	return nil
}

func (s *MemoryStore) DeleteNamespace(ctx context.Context, tenant, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	path := tenant + "/" + name
	if _, ok := s.namespaces[path]; !ok {
		return fmt.Errorf("%w: namespace %s", ErrNotFound, path)
	}
	delete(s.namespaces, path)
	delete(s.nsPerms, path)
	return nil
}

func (s *MemoryStore) GetNamespacePermissions(ctx context.Context, tenant, namespace string) (types.PermissionMap, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	path := tenant + "/" + namespace
	if _, ok := s.namespaces[path]; !ok {
		return nil, fmt.Errorf("%w: namespace %s", ErrNotFound, path)
	}
	perms, ok := s.nsPerms[path]
	if !ok {
		return types.PermissionMap{}, nil
	}
	return perms, nil
}

func (s *MemoryStore) GrantNamespacePermission(ctx context.Context, tenant, namespace, role string, actions types.ActionSet) error {
	if role == "" {
		return fmt.Errorf("%w: role is required", ErrInvalidRecord)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	path := tenant + "/" + namespace
	if _, ok := s.namespaces[path]; !ok {
		return fmt.Errorf("%w: namespace %s", ErrNotFound, path)
	}
	s.nsPerms[path] = grantInto(s.nsPerms[path], role, actions)
	return nil
}

func (s *MemoryStore) RevokeNamespacePermission(ctx context.Context, tenant, namespace, role string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	path := tenant + "/" + namespace
	if _, ok := s.namespaces[path]; !ok {
		return fmt.Errorf("%w: namespace %s", ErrNotFound, path)
	}
	s.nsPerms[path] = revokeFrom(s.nsPerms[path], role)
	return nil
}

func (s *MemoryStore) GetTopicPermissions(ctx context.Context, topic types.TopicName) (types.PermissionMap, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	perms, ok := s.topicPerms[topic.String()]
	if !ok {
		return types.PermissionMap{}, nil
	}
	return perms, nil
}

func (s *MemoryStore) GrantTopicPermission(ctx context.Context, topic types.TopicName, role string, actions types.ActionSet) error {
	if role == "" {
		return fmt.Errorf("%w: role is required", ErrInvalidRecord)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.namespaces[topic.NamespacePath()]; !ok {
		return fmt.Errorf("%w: namespace %s", ErrNotFound, topic.NamespacePath())
	}
	key := topic.String()
	s.topicPerms[key] = grantInto(s.topicPerms[key], role, actions)
	return nil
}

func (s *MemoryStore) RevokeTopicPermission(ctx context.Context, topic types.TopicName, role string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.namespaces[topic.NamespacePath()]; !ok {
		return fmt.Errorf("%w: namespace %s", ErrNotFound, topic.NamespacePath())
	}
	key := topic.String()
	s.topicPerms[key] = revokeFrom(s.topicPerms[key], role)
	return nil
}

// Close implements Store. The memory store holds no external resources.
func (s *MemoryStore) Close() error {
	return nil
}

// grantInto merges actions into a fresh copy of the map so concurrent
// readers keep their snapshot. Granting the same actions twice is idempotent.
func grantInto(perms types.PermissionMap, role string, actions types.ActionSet) types.PermissionMap {
	out := perms.Clone()
	if out == nil {
		out = types.PermissionMap{}
	}
	merged := out[role]
	if merged == nil {
		merged = types.ActionSet{}
	}
	for a := range actions {
		merged.Add(a)
	}
	out[role] = merged
	return out
}

// revokeFrom drops the role from a fresh copy of the map. Revoking an absent
// grant is a no-op.
func revokeFrom(perms types.PermissionMap, role string) types.PermissionMap {
	if _, ok := perms[role]; !ok {
		return perms
	}
	out := perms.Clone()
	delete(out, role)
	return out
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
