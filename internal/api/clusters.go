package api

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/tidemq/broker-core/pkg/types"
)

// Cluster records are broker-level topology; only superusers may touch them.

func (s *Server) createClusterHandler(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["cluster"]

	principal, sess, err := s.authenticate(r)
	if err != nil {
		s.respond(w, r, sess, nil, err)
		return
	}
	if err := s.engine.AllowSuperUserOperation(principal); err != nil {
		s.respond(w, r, sess, nil, err)
		return
	}

	var body ClusterData
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.respond(w, r, sess, nil, errBadBody(err))
		return
	}

	rec := &types.ClusterRecord{
		Name:          name,
		ServiceURL:    body.ServiceURL,
		ServiceURLTLS: body.ServiceURLTLS,
		BrokerURL:     body.BrokerURL,
		BrokerURLTLS:  body.BrokerURLTLS,
	}
	err = s.store.CreateCluster(r.Context(), rec)
	s.respond(w, r, sess, nil, err)
}

func (s *Server) getClusterHandler(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["cluster"]

	principal, sess, err := s.authenticate(r)
	if err != nil {
		s.respond(w, r, sess, nil, err)
		return
	}
	if err := s.engine.AllowSuperUserOperation(principal); err != nil {
		s.respond(w, r, sess, nil, err)
		return
	}

	rec, err := s.store.GetCluster(r.Context(), name)
	s.respond(w, r, sess, rec, err)
}

func (s *Server) deleteClusterHandler(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["cluster"]

	principal, sess, err := s.authenticate(r)
	if err != nil {
		s.respond(w, r, sess, nil, err)
		return
	}
	if err := s.engine.AllowSuperUserOperation(principal); err != nil {
		s.respond(w, r, sess, nil, err)
		return
	}

	err = s.store.DeleteCluster(r.Context(), name)
	s.respond(w, r, sess, nil, err)
}
