package api

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/tidemq/broker-core/pkg/types"
)

// Tenant creation and deletion are superuser operations; reads are open to
// the tenant's own admin roles as well.

func (s *Server) createTenantHandler(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["tenant"]

	principal, sess, err := s.authenticate(r)
	if err != nil {
		s.respond(w, r, sess, nil, err)
		return
	}
	if err := s.engine.AllowSuperUserOperation(principal); err != nil {
		s.respond(w, r, sess, nil, err)
		return
	}

	var body TenantInfo
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.respond(w, r, sess, nil, errBadBody(err))
		return
	}

	rec := &types.TenantRecord{
		Name:            name,
		AdminRoles:      body.AdminRoles,
		AllowedClusters: body.AllowedClusters,
	}
	err = s.store.CreateTenant(r.Context(), rec)
	s.respond(w, r, sess, nil, err)
}

func (s *Server) getTenantHandler(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["tenant"]

	principal, sess, err := s.authenticate(r)
	if err != nil {
		s.respond(w, r, sess, nil, err)
		return
	}
	if err := s.engine.AllowTenantOperation(r.Context(), principal, name); err != nil {
		s.respond(w, r, sess, nil, err)
		return
	}

	rec, err := s.store.GetTenant(r.Context(), name)
	s.respond(w, r, sess, rec, err)
}

func (s *Server) deleteTenantHandler(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["tenant"]

	principal, sess, err := s.authenticate(r)
	if err != nil {
		s.respond(w, r, sess, nil, err)
		return
	}
	if err := s.engine.AllowSuperUserOperation(principal); err != nil {
		s.respond(w, r, sess, nil, err)
		return
	}

	err = s.store.DeleteTenant(r.Context(), name)
	s.respond(w, r, sess, nil, err)
}
