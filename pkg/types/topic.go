package types

import (
	"fmt"
	"strings"
)

// Topic domains.
const (
	DomainPersistent    = "persistent"
	DomainNonPersistent = "non-persistent"
)

// TopicName is the parsed form of a fully qualified topic,
// e.g. persistent://my-tenant/my-ns/my-topic.
type TopicName struct {
	Domain    string
	Tenant    string
	Namespace string
	Topic     string
}

// ParseTopicName parses a fully qualified topic name. A name without a
// domain prefix defaults to persistent.
func ParseTopicName(name string) (TopicName, error) {
	domain := DomainPersistent
	rest := name

	if idx := strings.Index(name, "://"); idx >= 0 {
		domain = name[:idx]
		rest = name[idx+3:]
		if domain != DomainPersistent && domain != DomainNonPersistent {
			return TopicName{}, fmt.Errorf("invalid topic domain %q in %q", domain, name)
		}
	}

	parts := strings.SplitN(rest, "/", 3)
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" || parts[2] == "" {
		return TopicName{}, fmt.Errorf("invalid topic name %q: expected tenant/namespace/topic", name)
	}

	return TopicName{
		Domain:    domain,
		Tenant:    parts[0],
		Namespace: parts[1],
		Topic:     parts[2],
	}, nil
}

// String returns the fully qualified topic name.
func (t TopicName) String() string {
	return t.Domain + "://" + t.Tenant + "/" + t.Namespace + "/" + t.Topic
}

// NamespacePath returns the tenant/namespace portion.
func (t TopicName) NamespacePath() string {
	return t.Tenant + "/" + t.Namespace
}
