package api

import (
	"net/http"

	"github.com/gorilla/mux"
)

// Topic lookup is the data-plane entry point: a client that cannot look up
// the topic cannot connect a producer or consumer to it.

func (s *Server) lookupTopicHandler(w http.ResponseWriter, r *http.Request) {
	topic := topicFromVars(mux.Vars(r))

	principal, sess, err := s.authenticate(r)
	if err != nil {
		s.respond(w, r, sess, nil, err)
		return
	}
	if err := s.engine.CanLookup(r.Context(), principal, topic); err != nil {
		s.respond(w, r, sess, nil, err)
		return
	}

	ns, err := s.store.GetNamespace(r.Context(), topic.Tenant, topic.Namespace)
	if err != nil {
		s.respond(w, r, sess, nil, err)
		return
	}

	// Single-cluster deployment: the owning broker is this cluster's broker.
	cluster := s.config.ClusterName
	for _, c := range ns.AllowedClusters {
		if c == s.config.ClusterName {
			cluster = c
			break
		}
	}
	rec, err := s.store.GetCluster(r.Context(), cluster)
	if err != nil {
		s.respond(w, r, sess, nil, err)
		return
	}

	s.respond(w, r, sess, LookupResult{
		BrokerURL:    rec.BrokerURL,
		BrokerURLTLS: rec.BrokerURLTLS,
		HTTPURL:      rec.ServiceURL,
	}, nil)
}

func (s *Server) partitionedTopicMetadataHandler(w http.ResponseWriter, r *http.Request) {
	topic := topicFromVars(mux.Vars(r))

	principal, sess, err := s.authenticate(r)
	if err != nil {
		s.respond(w, r, sess, nil, err)
		return
	}
	if err := s.engine.CanLookup(r.Context(), principal, topic); err != nil {
		s.respond(w, r, sess, nil, err)
		return
	}

	// Namespace existence gates metadata; the partition count itself lives
	// with the topic owner and is zero for non-partitioned topics.
	if _, err := s.store.GetNamespace(r.Context(), topic.Tenant, topic.Namespace); err != nil {
		s.respond(w, r, sess, nil, err)
		return
	}

	s.respond(w, r, sess, PartitionedTopicMetadata{Partitions: 0}, nil)
}
