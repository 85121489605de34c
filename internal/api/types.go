package api

// ClusterData is the create-cluster request body.
type ClusterData struct {
	ServiceURL    string `json:"serviceUrl"`
	ServiceURLTLS string `json:"serviceUrlTls,omitempty"`
	BrokerURL     string `json:"brokerServiceUrl,omitempty"`
	BrokerURLTLS  string `json:"brokerServiceUrlTls,omitempty"`
}

// TenantInfo is the create-tenant request body.
type TenantInfo struct {
	AdminRoles      []string `json:"adminRoles"`
	AllowedClusters []string `json:"allowedClusters"`
}

// NamespacePolicy is the create-namespace request body.
type NamespacePolicy struct {
	AllowedClusters []string `json:"allowedClusters"`
}

// GrantRequest carries the actions to grant to the role named in the path.
type GrantRequest struct {
	Actions []string `json:"actions"`
}

// LookupResult points the client at the broker owning a topic.
type LookupResult struct {
	BrokerURL    string `json:"brokerUrl"`
	BrokerURLTLS string `json:"brokerUrlTls,omitempty"`
	HTTPURL      string `json:"httpUrl,omitempty"`
}

// PartitionedTopicMetadata reports the partition count of a topic; zero
// means non-partitioned.
type PartitionedTopicMetadata struct {
	Partitions int `json:"partitions"`
}

// ErrorResponse is the generic failure body.
type ErrorResponse struct {
	Reason string `json:"reason"`
}
