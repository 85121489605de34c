// Package api exposes the administrative and topic-lookup REST surface and
// the boundary error classification around it.
package api

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/tidemq/broker-core/internal/audit"
	"github.com/tidemq/broker-core/internal/auth"
	"github.com/tidemq/broker-core/internal/authz"
	"github.com/tidemq/broker-core/internal/metrics"
	"github.com/tidemq/broker-core/internal/policy"
)

// Config configures the REST server.
type Config struct {
	ListenAddr   string
	ClusterName  string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration

	// Optional server TLS material; mutual TLS is enabled when set.
	TLSCertFile string
	TLSKeyFile  string
}

// DefaultConfig returns default server settings.
func DefaultConfig() Config {
	return Config{
		ListenAddr:   ":8080",
		ClusterName:  "standalone",
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

// Server wires every admin/lookup endpoint through the same pipeline:
// credential extraction, provider chain, role resolution, authorization,
// store operation, boundary classification.
type Server struct {
	config     Config
	router     *mux.Router
	httpServer *http.Server
	logger     *zap.Logger

	authn    *auth.Authenticator
	engine   *authz.Engine
	store    policy.Store
	sessions *SessionRegistry
	metrics  *metrics.Metrics
	audit    *audit.Logger
}

// New creates the server.
func New(cfg Config, authn *auth.Authenticator, engine *authz.Engine, store policy.Store,
	m *metrics.Metrics, auditLog *audit.Logger, logger *zap.Logger) (*Server, error) {
	if authn == nil {
		return nil, fmt.Errorf("authenticator is required")
	}
	if engine == nil {
		return nil, fmt.Errorf("authorization engine is required")
	}
	if store == nil {
		return nil, fmt.Errorf("policy store is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Server{
		config:  cfg,
		router:  mux.NewRouter(),
		logger:  logger,
		authn:   authn,
		engine:  engine,
		store:   store,
		metrics: m,
		audit:   auditLog,
	}
	s.sessions = NewSessionRegistry(logger, m, engine.InvalidatePrincipal)
	s.registerRoutes()

	s.httpServer = &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      s.router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
		ConnState:    s.connState,
	}
	if cfg.TLSCertFile != "" {
		// Peer certificates are requested but not verified here; the tls
		// authentication provider verifies them against its trust anchors.
		s.httpServer.TLSConfig = &tls.Config{
			ClientAuth: tls.RequestClientCert,
			MinVersion: tls.VersionTLS12,
		}
	}
	return s, nil
}

// Handler returns the routing tree, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Sessions exposes the session registry.
func (s *Server) Sessions() *SessionRegistry {
	return s.sessions
}

func (s *Server) registerRoutes() {
	s.router.Use(s.requestIDMiddleware)
	s.router.Use(s.loggingMiddleware)
	s.router.Use(s.recoveryMiddleware)

	s.router.HandleFunc("/health", s.healthHandler).Methods(http.MethodGet)
	if s.metrics != nil {
		s.router.Handle("/metrics", s.metrics.Handler()).Methods(http.MethodGet)
	}

	admin := s.router.PathPrefix("/admin/v2").Subrouter()

	admin.HandleFunc("/clusters/{cluster}", s.createClusterHandler).Methods(http.MethodPut)
	admin.HandleFunc("/clusters/{cluster}", s.getClusterHandler).Methods(http.MethodGet)
	admin.HandleFunc("/clusters/{cluster}", s.deleteClusterHandler).Methods(http.MethodDelete)

	admin.HandleFunc("/tenants/{tenant}", s.createTenantHandler).Methods(http.MethodPut)
	admin.HandleFunc("/tenants/{tenant}", s.getTenantHandler).Methods(http.MethodGet)
	admin.HandleFunc("/tenants/{tenant}", s.deleteTenantHandler).Methods(http.MethodDelete)

	admin.HandleFunc("/namespaces/{tenant}/{namespace}", s.createNamespaceHandler).Methods(http.MethodPut)
	admin.HandleFunc("/namespaces/{tenant}/{namespace}", s.getNamespaceHandler).Methods(http.MethodGet)
	admin.HandleFunc("/namespaces/{tenant}/{namespace}", s.deleteNamespaceHandler).Methods(http.MethodDelete)
	admin.HandleFunc("/namespaces/{tenant}/{namespace}/permissions/{role}", s.grantNamespacePermissionHandler).Methods(http.MethodPost)
	admin.HandleFunc("/namespaces/{tenant}/{namespace}/permissions/{role}", s.revokeNamespacePermissionHandler).Methods(http.MethodDelete)

	admin.HandleFunc("/{domain:persistent|non-persistent}/{tenant}/{namespace}/{topic}/permissions/{role}", s.grantTopicPermissionHandler).Methods(http.MethodPost)
	admin.HandleFunc("/{domain:persistent|non-persistent}/{tenant}/{namespace}/{topic}/permissions/{role}", s.revokeTopicPermissionHandler).Methods(http.MethodDelete)
	admin.HandleFunc("/{domain:persistent|non-persistent}/{tenant}/{namespace}/{topic}/partitions", s.partitionedTopicMetadataHandler).Methods(http.MethodGet)

	s.router.HandleFunc("/lookup/v2/topic/{domain:persistent|non-persistent}/{tenant}/{namespace}/{topic}", s.lookupTopicHandler).Methods(http.MethodGet)
}

// connState releases a connection's session when the connection goes away.
// Sessions are keyed by remote ip:port, so without this every one-shot
// connection would leave a registry entry behind forever.
func (s *Server) connState(conn net.Conn, state http.ConnState) {
	switch state {
	case http.StateClosed, http.StateHijacked:
		s.sessions.Remove(conn.RemoteAddr().String())
	}
}

// Start serves until Shutdown.
func (s *Server) Start() error {
	s.logger.Info("Starting admin/lookup server",
		zap.String("addr", s.config.ListenAddr),
		zap.Bool("tls", s.config.TLSCertFile != ""))
	var err error
	if s.config.TLSCertFile != "" {
		err = s.httpServer.ListenAndServeTLS(s.config.TLSCertFile, s.config.TLSKeyFile)
	} else {
		err = s.httpServer.ListenAndServe()
	}
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// authenticate runs the front half of the pipeline and drives the session
// state machine. Authentication happens-before any authorization decision on
// the same request.
func (s *Server) authenticate(r *http.Request) (string, *Session, error) {
	sess := s.sessions.Acquire(r.RemoteAddr)
	sess.beginAuth()

	cred := auth.FromRequest(r)
	principal, err := s.authn.Authenticate(r.Context(), cred)
	if s.metrics != nil {
		s.metrics.RecordAuthentication(string(cred.Scheme), err == nil)
	}
	if s.audit != nil {
		s.audit.Record(audit.Event{
			Type:       audit.EventAuthentication,
			Principal:  principal,
			Scheme:     string(cred.Scheme),
			Allowed:    err == nil,
			Reason:     reasonOf(err),
			RemoteAddr: r.RemoteAddr,
			RequestID:  RequestID(r.Context()),
		})
	}
	if err != nil {
		// A failed credential never reaches Authenticated state.
		sess.markUnauthenticated()
		return "", sess, err
	}

	sess.markAuthenticated(principal)
	return principal, sess, nil
}

// respond finishes the pipeline: classify, count, invalidate on internal
// failure, and write the response.
func (s *Server) respond(w http.ResponseWriter, r *http.Request, sess *Session, payload interface{}, err error) {
	class, status := Classify(err)
	if s.metrics != nil {
		s.metrics.RecordBoundaryResponse(string(class))
	}

	if class == ClassInternal {
		s.logger.Error("Request failed with internal error",
			zap.String("path", r.URL.Path),
			zap.String("request_id", RequestID(r.Context())),
			zap.Error(err))
		// Backend trust cannot be confirmed: discard the session's cached
		// decisions so the next request re-evaluates from scratch.
		if sess != nil {
			s.sessions.Invalidate(sess.ID)
		}
	} else if err != nil {
		s.logger.Warn("Request rejected",
			zap.String("path", r.URL.Path),
			zap.String("class", string(class)),
			zap.String("request_id", RequestID(r.Context())),
			zap.Error(err))
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err != nil {
		_ = json.NewEncoder(w).Encode(ErrorResponse{Reason: class.message()})
		return
	}
	if payload == nil {
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
		return
	}
	_ = json.NewEncoder(w).Encode(payload)
}

// writeInternalError is the recovery-path variant of respond: the panic has
// already destroyed the handler frame, so only the classification and the
// session invalidation remain to be done.
func (s *Server) writeInternalError(w http.ResponseWriter, r *http.Request) {
	if s.metrics != nil {
		s.metrics.RecordBoundaryResponse(string(ClassInternal))
	}
	s.sessions.Invalidate(r.RemoteAddr)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusInternalServerError)
	_ = json.NewEncoder(w).Encode(ErrorResponse{Reason: ClassInternal.message()})
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"status":   "ok",
		"cluster":  s.config.ClusterName,
		"sessions": s.sessions.Len(),
	})
}

func reasonOf(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
