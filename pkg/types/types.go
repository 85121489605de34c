// Package types defines the resource addressing scheme and access-control
// records shared across the broker core.
package types

import "sort"

// Action is a permissible operation on a topic or namespace.
type Action string

const (
	ActionProduce   Action = "produce"
	ActionConsume   Action = "consume"
	ActionLookup    Action = "lookup"
	ActionFunctions Action = "functions"
)

// AllActions returns every data-plane action.
func AllActions() []Action {
	return []Action{ActionProduce, ActionConsume, ActionLookup, ActionFunctions}
}

// ActionSet is a set of granted actions.
type ActionSet map[Action]bool

// NewActionSet builds a set from a list of actions.
func NewActionSet(actions ...Action) ActionSet {
	s := make(ActionSet, len(actions))
	for _, a := range actions {
		s[a] = true
	}
	return s
}

// Has reports whether the action is in the set.
func (s ActionSet) Has(a Action) bool {
	return s[a]
}

// Add inserts an action. Adding an action twice is a no-op.
func (s ActionSet) Add(a Action) {
	s[a] = true
}

// Clone returns an independent copy of the set.
func (s ActionSet) Clone() ActionSet {
	out := make(ActionSet, len(s))
	for a := range s {
		out[a] = true
	}
	return out
}

// Slice returns the actions in sorted order, for stable serialization.
func (s ActionSet) Slice() []Action {
	out := make([]Action, 0, len(s))
	for a := range s {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// PermissionMap maps a role to its granted actions on a single resource.
// Absence of a role means no explicit grant.
type PermissionMap map[string]ActionSet

// Clone returns a deep copy. Mutations on the copy never reach the original,
// which is what lets the policy store hand out read snapshots.
func (m PermissionMap) Clone() PermissionMap {
	out := make(PermissionMap, len(m))
	for role, actions := range m {
		out[role] = actions.Clone()
	}
	return out
}

// ClusterRecord describes a reachable cluster. Tenants may only be homed on
// clusters that exist.
type ClusterRecord struct {
	Name          string `json:"name" yaml:"name"`
	ServiceURL    string `json:"serviceUrl" yaml:"serviceUrl"`
	ServiceURLTLS string `json:"serviceUrlTls,omitempty" yaml:"serviceUrlTls,omitempty"`
	BrokerURL     string `json:"brokerServiceUrl,omitempty" yaml:"brokerServiceUrl,omitempty"`
	BrokerURLTLS  string `json:"brokerServiceUrlTls,omitempty" yaml:"brokerServiceUrlTls,omitempty"`
}

// TenantRecord holds the tenant's admin roles and the clusters its
// namespaces may be created in.
type TenantRecord struct {
	Name            string   `json:"name"`
	AdminRoles      []string `json:"adminRoles"`
	AllowedClusters []string `json:"allowedClusters"`
}

// HasAdminRole reports whether role may manage this tenant's namespaces.
func (t *TenantRecord) HasAdminRole(role string) bool {
	for _, r := range t.AdminRoles {
		if r == role {
			return true
		}
	}
	return false
}

// AllowsCluster reports whether the tenant may use the named cluster.
func (t *TenantRecord) AllowsCluster(cluster string) bool {
	for _, c := range t.AllowedClusters {
		if c == cluster {
			return true
		}
	}
	return false
}

// NamespaceRecord is a namespace under a tenant, pinned to a subset of the
// tenant's allowed clusters.
type NamespaceRecord struct {
	Tenant          string   `json:"tenant"`
	Name            string   `json:"name"`
	AllowedClusters []string `json:"allowedClusters"`
}

// Path returns the qualified tenant/namespace name.
func (n *NamespaceRecord) Path() string {
	return n.Tenant + "/" + n.Name
}
