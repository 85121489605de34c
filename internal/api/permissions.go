package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/tidemq/broker-core/internal/policy"
	"github.com/tidemq/broker-core/pkg/types"
)

// Permission grants and revocations flush the decision cache: a revoked role
// must not keep consuming on a stale cached allow.

func parseActions(names []string) (types.ActionSet, error) {
	if len(names) == 0 {
		return nil, fmt.Errorf("%w: at least one action is required", policy.ErrInvalidRecord)
	}
	valid := types.NewActionSet(types.AllActions()...)
	set := make(types.ActionSet, len(names))
	for _, n := range names {
		a := types.Action(n)
		if !valid.Has(a) {
			return nil, fmt.Errorf("%w: unknown action %q", policy.ErrInvalidRecord, n)
		}
		set.Add(a)
	}
	return set, nil
}

func topicFromVars(vars map[string]string) types.TopicName {
	return types.TopicName{
		Domain:    vars["domain"],
		Tenant:    vars["tenant"],
		Namespace: vars["namespace"],
		Topic:     vars["topic"],
	}
}

func (s *Server) grantNamespacePermissionHandler(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	tenant, namespace, role := vars["tenant"], vars["namespace"], vars["role"]

	principal, sess, err := s.authenticate(r)
	if err != nil {
		s.respond(w, r, sess, nil, err)
		return
	}
	if err := s.engine.AllowTenantOperation(r.Context(), principal, tenant); err != nil {
		s.respond(w, r, sess, nil, err)
		return
	}

	var body GrantRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.respond(w, r, sess, nil, errBadBody(err))
		return
	}
	actions, err := parseActions(body.Actions)
	if err != nil {
		s.respond(w, r, sess, nil, err)
		return
	}

	err = s.store.GrantNamespacePermission(r.Context(), tenant, namespace, role, actions)
	if err == nil {
		s.engine.FlushCache()
	}
	s.respond(w, r, sess, nil, err)
}

func (s *Server) revokeNamespacePermissionHandler(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	tenant, namespace, role := vars["tenant"], vars["namespace"], vars["role"]

	principal, sess, err := s.authenticate(r)
	if err != nil {
		s.respond(w, r, sess, nil, err)
		return
	}
	if err := s.engine.AllowTenantOperation(r.Context(), principal, tenant); err != nil {
		s.respond(w, r, sess, nil, err)
		return
	}

	err = s.store.RevokeNamespacePermission(r.Context(), tenant, namespace, role)
	if err == nil {
		s.engine.FlushCache()
	}
	s.respond(w, r, sess, nil, err)
}

func (s *Server) grantTopicPermissionHandler(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	topic := topicFromVars(vars)
	role := vars["role"]

	principal, sess, err := s.authenticate(r)
	if err != nil {
		s.respond(w, r, sess, nil, err)
		return
	}
	if err := s.engine.AllowTenantOperation(r.Context(), principal, topic.Tenant); err != nil {
		s.respond(w, r, sess, nil, err)
		return
	}

	var body GrantRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.respond(w, r, sess, nil, errBadBody(err))
		return
	}
	actions, err := parseActions(body.Actions)
	if err != nil {
		s.respond(w, r, sess, nil, err)
		return
	}

	err = s.store.GrantTopicPermission(r.Context(), topic, role, actions)
	if err == nil {
		s.engine.FlushCache()
	}
	s.respond(w, r, sess, nil, err)
}

func (s *Server) revokeTopicPermissionHandler(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	topic := topicFromVars(vars)
	role := vars["role"]

	principal, sess, err := s.authenticate(r)
	if err != nil {
		s.respond(w, r, sess, nil, err)
		return
	}
	if err := s.engine.AllowTenantOperation(r.Context(), principal, topic.Tenant); err != nil {
		s.respond(w, r, sess, nil, err)
		return
	}

	err = s.store.RevokeTopicPermission(r.Context(), topic, role)
	if err == nil {
		s.engine.FlushCache()
	}
	s.respond(w, r, sess, nil, err)
}
