package api

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/tidemq/broker-core/pkg/types"
)

// Namespace management is open to the owning tenant's admin roles.

func (s *Server) createNamespaceHandler(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	tenant, namespace := vars["tenant"], vars["namespace"]

	principal, sess, err := s.authenticate(r)
	if err != nil {
		s.respond(w, r, sess, nil, err)
		return
	}
	if err := s.engine.AllowTenantOperation(r.Context(), principal, tenant); err != nil {
		s.respond(w, r, sess, nil, err)
		return
	}

	var body NamespacePolicy
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			s.respond(w, r, sess, nil, errBadBody(err))
			return
		}
	}
	clusters := body.AllowedClusters
	if len(clusters) == 0 {
		clusters = []string{s.config.ClusterName}
	}

	rec := &types.NamespaceRecord{
		Tenant:          tenant,
		Name:            namespace,
		AllowedClusters: clusters,
	}
	err = s.store.CreateNamespace(r.Context(), rec)
	s.respond(w, r, sess, nil, err)
}

func (s *Server) getNamespaceHandler(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	tenant, namespace := vars["tenant"], vars["namespace"]

	principal, sess, err := s.authenticate(r)
	if err != nil {
		s.respond(w, r, sess, nil, err)
		return
	}
	if err := s.engine.AllowTenantOperation(r.Context(), principal, tenant); err != nil {
		s.respond(w, r, sess, nil, err)
		return
	}

	rec, err := s.store.GetNamespace(r.Context(), tenant, namespace)
	s.respond(w, r, sess, rec, err)
}

func (s *Server) deleteNamespaceHandler(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	tenant, namespace := vars["tenant"], vars["namespace"]

	principal, sess, err := s.authenticate(r)
	if err != nil {
		s.respond(w, r, sess, nil, err)
		return
	}
	if err := s.engine.AllowTenantOperation(r.Context(), principal, tenant); err != nil {
		s.respond(w, r, sess, nil, err)
		return
	}

	err = s.store.DeleteNamespace(r.Context(), tenant, namespace)
	s.respond(w, r, sess, nil, err)
}
