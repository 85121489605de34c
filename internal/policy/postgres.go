package policy

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	"github.com/tidemq/broker-core/pkg/types"
)

// PostgresStore implements Store on PostgreSQL. Grants rely on upserts so a
// repeated grant is idempotent, and a permission update is a single statement
// so readers never see a half-applied action set.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore wraps an open database handle. Schema management lives in
// internal/db.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) GetCluster(ctx context.Context, name string) (*types.ClusterRecord, error) {
	query := `
		SELECT name, service_url, service_url_tls, broker_url, broker_url_tls
		FROM clusters
		WHERE name = $1
	`
	rec := &types.ClusterRecord{}
	err := s.db.QueryRowContext(ctx, query, name).Scan(
		&rec.Name, &rec.ServiceURL, &rec.ServiceURLTLS, &rec.BrokerURL, &rec.BrokerURLTLS)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: cluster %s", ErrNotFound, name)
	}
	if err != nil {
		return nil, fmt.Errorf("cluster query failed: %w", err)
	}
	return rec, nil
}

func (s *PostgresStore) ListClusters(ctx context.Context) ([]string, error) {
	return s.listNames(ctx, `SELECT name FROM clusters ORDER BY name`)
}

func (s *PostgresStore) CreateCluster(ctx context.Context, rec *types.ClusterRecord) error {
	if rec == nil || rec.Name == "" {
		return fmt.Errorf("%w: cluster name is required", ErrInvalidRecord)
	}

	query := `
		INSERT INTO clusters (name, service_url, service_url_tls, broker_url, broker_url_tls)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (name) DO NOTHING
	`
	res, err := s.db.ExecContext(ctx, query,
		rec.Name, rec.ServiceURL, rec.ServiceURLTLS, rec.BrokerURL, rec.BrokerURLTLS)
	if err != nil {
		return fmt.Errorf("failed to create cluster: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: cluster %s", ErrAlreadyExists, rec.Name)
	}
	return nil
}

func (s *PostgresStore) DeleteCluster(ctx context.Context, name string) error {
	return s.deleteOne(ctx, `DELETE FROM clusters WHERE name = $1`, "cluster "+name, name)
}

func (s *PostgresStore) GetTenant(ctx context.Context, name string) (*types.TenantRecord, error) {
	query := `
		SELECT name, admin_roles, allowed_clusters
		FROM tenants
		WHERE name = $1
	`
	rec := &types.TenantRecord{}
	err := s.db.QueryRowContext(ctx, query, name).Scan(
		&rec.Name, pq.Array(&rec.AdminRoles), pq.Array(&rec.AllowedClusters))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: tenant %s", ErrNotFound, name)
	}
	if err != nil {
		return nil, fmt.Errorf("tenant query failed: %w", err)
	}
	return rec, nil
}

func (s *PostgresStore) ListTenants(ctx context.Context) ([]string, error) {
	return s.listNames(ctx, `SELECT name FROM tenants ORDER BY name`)
}

func (s *PostgresStore) CreateTenant(ctx context.Context, rec *types.TenantRecord) error {
	if rec == nil || rec.Name == "" {
		return fmt.Errorf("%w: tenant name is required", ErrInvalidRecord)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, cluster := range rec.AllowedClusters {
		var exists bool
		if err := tx.QueryRowContext(ctx,
			`SELECT EXISTS (SELECT 1 FROM clusters WHERE name = $1)`, cluster).Scan(&exists); err != nil {
			return fmt.Errorf("cluster existence check failed: %w", err)
		}
		if !exists {
			return fmt.Errorf("%w: tenant %s references unknown cluster %s",
				ErrInvalidRecord, rec.Name, cluster)
		}
	}

	res, err := tx.ExecContext(ctx, `
		INSERT INTO tenants (name, admin_roles, allowed_clusters)
		VALUES ($1, $2, $3)
		ON CONFLICT (name) DO NOTHING
	`, rec.Name, pq.Array(rec.AdminRoles), pq.Array(rec.AllowedClusters))
	if err != nil {
		return fmt.Errorf("failed to create tenant: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: tenant %s", ErrAlreadyExists, rec.Name)
	}

	return tx.Commit()
}

func (s *PostgresStore) DeleteTenant(ctx context.Context, name string) error {
	return s.deleteOne(ctx, `DELETE FROM tenants WHERE name = $1`, "tenant "+name, name)
}

func (s *PostgresStore) GetNamespace(ctx context.Context, tenant, name string) (*types.NamespaceRecord, error) {
	query := `
		SELECT tenant, name, allowed_clusters
		FROM namespaces
		WHERE tenant = $1 AND name = $2
	`
	rec := &types.NamespaceRecord{}
	err := s.db.QueryRowContext(ctx, query, tenant, name).Scan(
		&rec.Tenant, &rec.Name, pq.Array(&rec.AllowedClusters))
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%w: namespace %s/%s", ErrNotFound, tenant, name)
	}
	if err != nil {
		return nil, fmt.Errorf("namespace query failed: %w", err)
	}
	return rec, nil
}

func (s *PostgresStore) ListNamespaces(ctx context.Context, tenant string) ([]string, error) {
	if _, err := s.GetTenant(ctx, tenant); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT name FROM namespaces WHERE tenant = $1 ORDER BY name`, tenant)
	if err != nil {
		return nil, fmt.Errorf("namespace list failed: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("namespace scan failed: %w", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

func (s *PostgresStore) CreateNamespace(ctx context.Context, rec *types.NamespaceRecord) error {
	if rec == nil || rec.Tenant == "" || rec.Name == "" {
		return fmt.Errorf("%w: namespace tenant and name are required", ErrInvalidRecord)
	}

	tenant, err := s.GetTenant(ctx, rec.Tenant)
	if err != nil {
		return err
	}
	for _, cluster := range rec.AllowedClusters {
		if !tenant.AllowsCluster(cluster) {
			return fmt.Errorf("%w: cluster %s is not allowed for tenant %s",
				ErrInvalidRecord, cluster, rec.Tenant)
		}
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO namespaces (tenant, name, allowed_clusters)
		VALUES ($1, $2, $3)
		ON CONFLICT (tenant, name) DO NOTHING
	`, rec.Tenant, rec.Name, pq.Array(rec.AllowedClusters))
	if err != nil {
		return fmt.Errorf("failed to create namespace: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: namespace %s", ErrAlreadyExists, rec.Path())
	}
	return nil
}

func (s *PostgresStore) DeleteNamespace(ctx context.Context, tenant, name string) error {
	return s.deleteOne(ctx,
		`DELETE FROM namespaces WHERE tenant = $1 AND name = $2`,
		fmt.Sprintf("namespace %s/%s", tenant, name), tenant, name)
}

func (s *PostgresStore) GetNamespacePermissions(ctx context.Context, tenant, namespace string) (types.PermissionMap, error) {
	if _, err := s.GetNamespace(ctx, tenant, namespace); err != nil {
		return nil, err
	}
	return s.readPermissions(ctx, `
		SELECT role, actions FROM namespace_permissions
		WHERE tenant = $1 AND namespace = $2
	`, tenant, namespace)
}

func (s *PostgresStore) GrantNamespacePermission(ctx context.Context, tenant, namespace, role string, actions types.ActionSet) error {
	if role == "" {
		return fmt.Errorf("%w: role is required", ErrInvalidRecord)
	}
	if _, err := s.GetNamespace(ctx, tenant, namespace); err != nil {
		return err
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO namespace_permissions (tenant, namespace, role, actions)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (tenant, namespace, role) DO UPDATE SET
			actions = (
				SELECT ARRAY(SELECT DISTINCT unnest(namespace_permissions.actions || EXCLUDED.actions))
			)
	`, tenant, namespace, role, pq.Array(actionStrings(actions)))
	if err != nil {
		return fmt.Errorf("failed to grant namespace permission: %w", err)
	}
	return nil
}

func (s *PostgresStore) RevokeNamespacePermission(ctx context.Context, tenant, namespace, role string) error {
	if _, err := s.GetNamespace(ctx, tenant, namespace); err != nil {
		return err
	}
	// Revoking an absent grant is a no-op.
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM namespace_permissions
		WHERE tenant = $1 AND namespace = $2 AND role = $3
	`, tenant, namespace, role)
	if err != nil {
		return fmt.Errorf("failed to revoke namespace permission: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetTopicPermissions(ctx context.Context, topic types.TopicName) (types.PermissionMap, error) {
	return s.readPermissions(ctx, `
		SELECT role, actions FROM topic_permissions
		WHERE topic = $1
	`, topic.String())
}

func (s *PostgresStore) GrantTopicPermission(ctx context.Context, topic types.TopicName, role string, actions types.ActionSet) error {
	if role == "" {
		return fmt.Errorf("%w: role is required", ErrInvalidRecord)
	}
	if _, err := s.GetNamespace(ctx, topic.Tenant, topic.Namespace); err != nil {
		return err
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO topic_permissions (topic, role, actions)
		VALUES ($1, $2, $3)
		ON CONFLICT (topic, role) DO UPDATE SET
			actions = (
				SELECT ARRAY(SELECT DISTINCT unnest(topic_permissions.actions || EXCLUDED.actions))
			)
	`, topic.String(), role, pq.Array(actionStrings(actions)))
	if err != nil {
		return fmt.Errorf("failed to grant topic permission: %w", err)
	}
	return nil
}

func (s *PostgresStore) RevokeTopicPermission(ctx context.Context, topic types.TopicName, role string) error {
	if _, err := s.GetNamespace(ctx, topic.Tenant, topic.Namespace); err != nil {
		return err
	}
	// Revoking an absent grant is a no-op.
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM topic_permissions WHERE topic = $1 AND role = $2
	`, topic.String(), role)
	if err != nil {
		return fmt.Errorf("failed to revoke topic permission: %w", err)
	}
	return nil
}

func (s *PostgresStore) Close() error {
	return s.db.Close()
}

func (s *PostgresStore) listNames(ctx context.Context, query string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list query failed: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("list scan failed: %w", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

func (s *PostgresStore) readPermissions(ctx context.Context, query string, args ...interface{}) (types.PermissionMap, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("permissions query failed: %w", err)
	}
	defer rows.Close()

	perms := types.PermissionMap{}
	for rows.Next() {
		var role string
		var actions []string
		if err := rows.Scan(&role, pq.Array(&actions)); err != nil {
			return nil, fmt.Errorf("permissions scan failed: %w", err)
		}
		set := types.ActionSet{}
		for _, a := range actions {
			set.Add(types.Action(a))
		}
		perms[role] = set
	}
	return perms, rows.Err()
}

func (s *PostgresStore) deleteOne(ctx context.Context, query, what string, args ...interface{}) error {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to delete %s: %w", what, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, what)
	}
	return nil
}

func actionStrings(actions types.ActionSet) []string {
	out := make([]string, 0, len(actions))
	for _, a := range actions.Slice() {
		out = append(out, string(a))
	}
	return out
}
