// Package policy provides the access-control record store for clusters,
// tenants, namespaces, and topic permissions.
package policy

import (
	"context"
	"errors"

	"github.com/tidemq/broker-core/pkg/types"
)

var (
	// ErrNotFound is returned when a referenced cluster, tenant, namespace,
	// or permission record does not exist. Distinct from an empty result.
	ErrNotFound = errors.New("resource not found")

	// ErrAlreadyExists is returned when creating a record that exists.
	ErrAlreadyExists = errors.New("resource already exists")

	// ErrInvalidRecord is returned when a record fails validation, e.g. a
	// tenant referencing a nonexistent cluster.
	ErrInvalidRecord = errors.New("invalid resource record")
)

// Store holds the hierarchical access-control state. Implementations must
// return consistent read snapshots: a concurrent grant must never surface a
// half-applied permission map to a reader.
type Store interface {
	GetCluster(ctx context.Context, name string) (*types.ClusterRecord, error)
	ListClusters(ctx context.Context) ([]string, error)
	CreateCluster(ctx context.Context, rec *types.ClusterRecord) error
	DeleteCluster(ctx context.Context, name string) error

	GetTenant(ctx context.Context, name string) (*types.TenantRecord, error)
	ListTenants(ctx context.Context) ([]string, error)
	CreateTenant(ctx context.Context, rec *types.TenantRecord) error
	DeleteTenant(ctx context.Context, name string) error

	GetNamespace(ctx context.Context, tenant, name string) (*types.NamespaceRecord, error)
	ListNamespaces(ctx context.Context, tenant string) ([]string, error)
	CreateNamespace(ctx context.Context, rec *types.NamespaceRecord) error
	DeleteNamespace(ctx context.Context, tenant, name string) error

	// GetNamespacePermissions returns the namespace-level role grants. A
	// namespace with no grants yields an empty map, not ErrNotFound.
	GetNamespacePermissions(ctx context.Context, tenant, namespace string) (types.PermissionMap, error)
	GrantNamespacePermission(ctx context.Context, tenant, namespace, role string, actions types.ActionSet) error
	RevokeNamespacePermission(ctx context.Context, tenant, namespace, role string) error

	// GetTopicPermissions returns the topic-level role grants. A topic with
	// no grants yields an empty map, not ErrNotFound.
	GetTopicPermissions(ctx context.Context, topic types.TopicName) (types.PermissionMap, error)
	GrantTopicPermission(ctx context.Context, topic types.TopicName, role string, actions types.ActionSet) error
	RevokeTopicPermission(ctx context.Context, topic types.TopicName, role string) error

	Close() error
}
