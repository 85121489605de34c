package policy

import (
	"context"

	"github.com/tidemq/broker-core/pkg/types"
)

// FaultyStore fails every call with the configured error. It stands in for an
// unreachable metadata backend in boundary-classification tests.
type FaultyStore struct {
	Err error
}

func (f *FaultyStore) GetCluster(ctx context.Context, name string) (*types.ClusterRecord, error) {
	return nil, f.Err
}

func (f *FaultyStore) ListClusters(ctx context.Context) ([]string, error) { return nil, f.Err }

func (f *FaultyStore) CreateCluster(ctx context.Context, rec *types.ClusterRecord) error {
	return f.Err
}

func (f *FaultyStore) DeleteCluster(ctx context.Context, name string) error { return f.Err }

func (f *FaultyStore) GetTenant(ctx context.Context, name string) (*types.TenantRecord, error) {
	return nil, f.Err
}

func (f *FaultyStore) ListTenants(ctx context.Context) ([]string, error) { return nil, f.Err }

func (f *FaultyStore) CreateTenant(ctx context.Context, rec *types.TenantRecord) error {
	return f.Err
}

func (f *FaultyStore) DeleteTenant(ctx context.Context, name string) error { return f.Err }

func (f *FaultyStore) GetNamespace(ctx context.Context, tenant, name string) (*types.NamespaceRecord, error) {
	return nil, f.Err
}

func (f *FaultyStore) ListNamespaces(ctx context.Context, tenant string) ([]string, error) {
	return nil, f.Err
}

func (f *FaultyStore) CreateNamespace(ctx context.Context, rec *types.NamespaceRecord) error {
	return f.Err
}

func (f *FaultyStore) DeleteNamespace(ctx context.Context, tenant, name string) error {
	return f.Err
}

func (f *FaultyStore) GetNamespacePermissions(ctx context.Context, tenant, namespace string) (types.PermissionMap, error) {
	return nil, f.Err
}

func (f *FaultyStore) GrantNamespacePermission(ctx context.Context, tenant, namespace, role string, actions types.ActionSet) error {
	return f.Err
}

func (f *FaultyStore) RevokeNamespacePermission(ctx context.Context, tenant, namespace, role string) error {
	return f.Err
}

func (f *FaultyStore) GetTopicPermissions(ctx context.Context, topic types.TopicName) (types.PermissionMap, error) {
	return nil, f.Err
}

func (f *FaultyStore) GrantTopicPermission(ctx context.Context, topic types.TopicName, role string, actions types.ActionSet) error {
	return f.Err
}

func (f *FaultyStore) RevokeTopicPermission(ctx context.Context, topic types.TopicName, role string) error {
	return f.Err
}

func (f *FaultyStore) Close() error { return nil }
