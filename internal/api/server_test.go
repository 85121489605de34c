package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/tidemq/broker-core/internal/auth"
	"github.com/tidemq/broker-core/internal/authz"
	"github.com/tidemq/broker-core/internal/cache"
	"github.com/tidemq/broker-core/internal/policy"
	"github.com/tidemq/broker-core/pkg/types"
)

// stubProvider authenticates a fixed user set over basic credentials. The
// real htpasswd provider is covered in its own package.
type stubProvider struct {
	users map[string]string
}

func (p *stubProvider) Scheme() auth.Scheme { return auth.SchemeBasic }

func (p *stubProvider) Authenticate(_ context.Context, cred auth.Credential) (string, error) {
	pw, ok := p.users[cred.UserID]
	if !ok || pw != cred.Password {
		return "", auth.ErrInvalidCredentials
	}
	return cred.UserID, nil
}

func newTestServer(t *testing.T, store policy.Store, superusers []string, anonymousRole string) *Server {
	t.Helper()

	logger := zaptest.NewLogger(t)
	chain := auth.NewChain(logger, &stubProvider{users: map[string]string{
		"admin":      "admin-pass",
		"appid1":     "appid1-pass",
		"client-app": "client-pass",
	}})
	authn := auth.NewAuthenticator(true, chain, auth.NewRoleResolver(anonymousRole), logger)
	engine := authz.New(authz.Config{
		AuthorizationEnabled: true,
		SuperUserRoles:       superusers,
	}, store, cache.NewLRU(128, time.Minute), nil, logger)

	cfg := DefaultConfig()
	cfg.ClusterName = "test"

	srv, err := New(cfg, authn, engine, store, nil, nil, logger)
	require.NoError(t, err)
	return srv
}

func doRequest(t *testing.T, srv *Server, method, path string, body interface{}, user, pass string) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if user != "" {
		req.SetBasicAuth(user, pass)
	}
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)
	return w
}

func seedHierarchy(t *testing.T, store policy.Store) {
	t.Helper()
	ctx := context.Background()

	require.NoError(t, store.CreateCluster(ctx, &types.ClusterRecord{
		Name:       "test",
		ServiceURL: "http://localhost:8080",
		BrokerURL:  "tcp://localhost:6650",
	}))
	require.NoError(t, store.CreateTenant(ctx, &types.TenantRecord{
		Name:            "my-tenant",
		AdminRoles:      []string{"appid1"},
		AllowedClusters: []string{"test"},
	}))
	require.NoError(t, store.CreateNamespace(ctx, &types.NamespaceRecord{
		Tenant:          "my-tenant",
		Name:            "my-ns",
		AllowedClusters: []string{"test"},
	}))
}

func TestAdminProvisioningFlow(t *testing.T) {
	srv := newTestServer(t, policy.NewMemoryStore(), []string{"admin"}, "")

	w := doRequest(t, srv, http.MethodPut, "/admin/v2/clusters/test", ClusterData{
		ServiceURL: "http://localhost:8080",
		BrokerURL:  "tcp://localhost:6650",
	}, "admin", "admin-pass")
	assert.Equal(t, http.StatusOK, w.Code)

	// Creating the same cluster twice conflicts.
	w = doRequest(t, srv, http.MethodPut, "/admin/v2/clusters/test", ClusterData{
		ServiceURL: "http://localhost:8080",
	}, "admin", "admin-pass")
	assert.Equal(t, http.StatusConflict, w.Code)

	w = doRequest(t, srv, http.MethodPut, "/admin/v2/tenants/my-tenant", TenantInfo{
		AdminRoles:      []string{"appid1"},
		AllowedClusters: []string{"test"},
	}, "admin", "admin-pass")
	assert.Equal(t, http.StatusOK, w.Code)

	// The tenant admin can read its tenant and manage namespaces.
	w = doRequest(t, srv, http.MethodGet, "/admin/v2/tenants/my-tenant", nil, "appid1", "appid1-pass")
	assert.Equal(t, http.StatusOK, w.Code)
	var tenant types.TenantRecord
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &tenant))
	assert.Equal(t, []string{"appid1"}, tenant.AdminRoles)

	w = doRequest(t, srv, http.MethodPut, "/admin/v2/namespaces/my-tenant/my-ns", nil, "appid1", "appid1-pass")
	assert.Equal(t, http.StatusOK, w.Code)

	w = doRequest(t, srv, http.MethodGet, "/admin/v2/namespaces/my-tenant/my-ns", nil, "appid1", "appid1-pass")
	assert.Equal(t, http.StatusOK, w.Code)

	// A plain client is neither superuser nor tenant admin.
	w = doRequest(t, srv, http.MethodPut, "/admin/v2/namespaces/my-tenant/other-ns", nil, "client-app", "client-pass")
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = doRequest(t, srv, http.MethodPut, "/admin/v2/clusters/other", ClusterData{}, "client-app", "client-pass")
	assert.Equal(t, http.StatusForbidden, w.Code)

	// Unknown tenants read as not found, not as forbidden.
	w = doRequest(t, srv, http.MethodGet, "/admin/v2/tenants/missing", nil, "admin", "admin-pass")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestUnauthenticatedRequestsRejected(t *testing.T) {
	store := policy.NewMemoryStore()
	seedHierarchy(t, store)
	srv := newTestServer(t, store, []string{"admin"}, "")

	w := doRequest(t, srv, http.MethodGet, "/admin/v2/clusters/test", nil, "", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	var body ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "Authentication required", body.Reason)

	// A wrong password is an explicit failure, never anonymous access.
	w = doRequest(t, srv, http.MethodGet, "/admin/v2/clusters/test", nil, "admin", "wrong")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	// Failed auth leaves the session unauthenticated.
	sess := srv.Sessions().Get("192.0.2.1:1234")
	require.NotNil(t, sess)
	assert.Equal(t, StateUnauthenticated, sess.State())
}

func TestAnonymousDenyGrantAllow(t *testing.T) {
	store := policy.NewMemoryStore()
	seedHierarchy(t, store)
	srv := newTestServer(t, store, []string{"admin"}, "anonymousUser")

	const lookupPath = "/lookup/v2/topic/persistent/my-tenant/my-ns/my-topic"

	// The anonymous role is an ordinary role: no grant, no access.
	w := doRequest(t, srv, http.MethodGet, lookupPath, nil, "", "")
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = doRequest(t, srv, http.MethodPost,
		"/admin/v2/namespaces/my-tenant/my-ns/permissions/anonymousUser",
		GrantRequest{Actions: []string{"consume"}}, "appid1", "appid1-pass")
	require.Equal(t, http.StatusOK, w.Code)

	// Consume implies lookup.
	w = doRequest(t, srv, http.MethodGet, lookupPath, nil, "", "")
	assert.Equal(t, http.StatusOK, w.Code)

	var result LookupResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	assert.Equal(t, "tcp://localhost:6650", result.BrokerURL)

	// Revocation takes effect immediately despite the decision cache.
	w = doRequest(t, srv, http.MethodDelete,
		"/admin/v2/namespaces/my-tenant/my-ns/permissions/anonymousUser",
		nil, "appid1", "appid1-pass")
	require.Equal(t, http.StatusOK, w.Code)

	w = doRequest(t, srv, http.MethodGet, lookupPath, nil, "", "")
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestTopicPermissionGrant(t *testing.T) {
	store := policy.NewMemoryStore()
	seedHierarchy(t, store)
	srv := newTestServer(t, store, []string{"admin"}, "")

	const topicPath = "/admin/v2/persistent/my-tenant/my-ns/my-topic"

	w := doRequest(t, srv, http.MethodPost, topicPath+"/permissions/client-app",
		GrantRequest{Actions: []string{"produce"}}, "appid1", "appid1-pass")
	require.Equal(t, http.StatusOK, w.Code)

	// Produce implies lookup on that topic.
	w = doRequest(t, srv, http.MethodGet,
		"/lookup/v2/topic/persistent/my-tenant/my-ns/my-topic", nil, "client-app", "client-pass")
	assert.Equal(t, http.StatusOK, w.Code)

	// The grant is topic-scoped, not namespace-wide.
	w = doRequest(t, srv, http.MethodGet,
		"/lookup/v2/topic/persistent/my-tenant/my-ns/other-topic", nil, "client-app", "client-pass")
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestGrantValidation(t *testing.T) {
	store := policy.NewMemoryStore()
	seedHierarchy(t, store)
	srv := newTestServer(t, store, []string{"admin"}, "")

	w := doRequest(t, srv, http.MethodPost,
		"/admin/v2/namespaces/my-tenant/my-ns/permissions/client-app",
		GrantRequest{Actions: []string{"fly"}}, "appid1", "appid1-pass")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doRequest(t, srv, http.MethodPost,
		"/admin/v2/namespaces/my-tenant/my-ns/permissions/client-app",
		GrantRequest{}, "appid1", "appid1-pass")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestPartitionedTopicMetadata(t *testing.T) {
	store := policy.NewMemoryStore()
	seedHierarchy(t, store)
	srv := newTestServer(t, store, []string{"admin"}, "")

	w := doRequest(t, srv, http.MethodGet,
		"/admin/v2/persistent/my-tenant/my-ns/my-topic/partitions", nil, "appid1", "appid1-pass")

	// appid1 is tenant admin but holds no topic grant.
	assert.Equal(t, http.StatusForbidden, w.Code)

	require.NoError(t, store.GrantTopicPermission(context.Background(),
		types.TopicName{Domain: "persistent", Tenant: "my-tenant", Namespace: "my-ns", Topic: "my-topic"},
		"appid1", types.NewActionSet(types.ActionConsume)))

	w = doRequest(t, srv, http.MethodGet,
		"/admin/v2/persistent/my-tenant/my-ns/my-topic/partitions", nil, "appid1", "appid1-pass")
	require.Equal(t, http.StatusOK, w.Code)

	var meta PartitionedTopicMetadata
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &meta))
	assert.Equal(t, 0, meta.Partitions)
}

// A broken metadata backend must surface as an internal error on every
// endpoint, never as a missing or rejected credential.
func TestBackendFailureSurfacesAsInternal(t *testing.T) {
	faulty := &policy.FaultyStore{Err: errors.New("metadata store unreachable")}
	srv := newTestServer(t, faulty, []string{"admin"}, "")

	w := doRequest(t, srv, http.MethodPut, "/admin/v2/clusters/test", ClusterData{
		ServiceURL: "http://localhost:8080",
	}, "admin", "admin-pass")
	assert.Equal(t, http.StatusInternalServerError, w.Code)

	var body ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "Internal server error", body.Reason)
	assert.NotContains(t, w.Body.String(), "unreachable")

	// The internal failure invalidated the caller's session.
	sess := srv.Sessions().Get("192.0.2.1:1234")
	require.NotNil(t, sess)
	assert.Equal(t, StateInvalidated, sess.State())

	// A lookup that hits the backend inside the authorization check fails
	// the same way: the credential was valid and stays valid.
	w = doRequest(t, srv, http.MethodGet,
		"/lookup/v2/topic/persistent/my-tenant/my-ns/my-topic", nil, "appid1", "appid1-pass")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotEqual(t, http.StatusUnauthorized, w.Code)
}

// A caller abandoning its request is not a backend-trust failure: the
// session stays authenticated and no cached decisions are purged.
func TestCancelledRequestDoesNotInvalidateSession(t *testing.T) {
	srv := newTestServer(t, policy.NewMemoryStore(), []string{"admin"}, "")

	sess := srv.Sessions().Acquire("conn-1")
	sess.markAuthenticated("admin")

	req := httptest.NewRequest(http.MethodGet, "/admin/v2/clusters/test", nil)
	w := httptest.NewRecorder()
	srv.respond(w, req, sess, nil, context.Canceled)

	assert.Equal(t, http.StatusRequestTimeout, w.Code)
	assert.Equal(t, StateAuthenticated, sess.State())
	assert.Equal(t, "admin", sess.Principal())
}

func TestHealthAndRequestID(t *testing.T) {
	srv := newTestServer(t, policy.NewMemoryStore(), nil, "")

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Request-ID", "req-42")
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "req-42", w.Header().Get("X-Request-ID"))

	// Request IDs are generated when absent.
	w = doRequest(t, srv, http.MethodGet, "/health", nil, "", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
}

type fakeAddr string

func (a fakeAddr) Network() string { return "tcp" }
func (a fakeAddr) String() string  { return string(a) }

type fakeConn struct {
	net.Conn
	addr fakeAddr
}

func (c fakeConn) RemoteAddr() net.Addr { return c.addr }

func TestConnStateReleasesSession(t *testing.T) {
	srv := newTestServer(t, policy.NewMemoryStore(), []string{"admin"}, "")
	conn := fakeConn{addr: "10.0.0.1:5555"}

	srv.Sessions().Acquire("10.0.0.1:5555")
	require.Equal(t, 1, srv.Sessions().Len())

	// Idle keeps the session; only a closed connection releases it.
	srv.connState(conn, http.StateIdle)
	assert.Equal(t, 1, srv.Sessions().Len())

	srv.connState(conn, http.StateClosed)
	assert.Equal(t, 0, srv.Sessions().Len())

	srv.Sessions().Acquire("10.0.0.1:5555")
	srv.connState(conn, http.StateHijacked)
	assert.Equal(t, 0, srv.Sessions().Len())
}

// One-shot connections must not accumulate registry entries: each new source
// port creates a session, and connection close has to release it.
func TestSessionsReleasedOnConnectionClose(t *testing.T) {
	srv := newTestServer(t, policy.NewMemoryStore(), []string{"admin"}, "")

	ts := httptest.NewUnstartedServer(srv.Handler())
	ts.Config.ConnState = srv.connState
	ts.Start()
	defer ts.Close()

	for i := 0; i < 20; i++ {
		req, err := http.NewRequest(http.MethodGet, ts.URL+"/admin/v2/tenants/missing", nil)
		require.NoError(t, err)
		req.SetBasicAuth("admin", "admin-pass")
		req.Close = true
		resp, err := ts.Client().Do(req)
		require.NoError(t, err)
		resp.Body.Close()
	}

	// Requests with garbage credentials also create sessions; those must be
	// released the same way.
	for i := 0; i < 20; i++ {
		req, err := http.NewRequest(http.MethodGet, ts.URL+"/admin/v2/tenants/missing", nil)
		require.NoError(t, err)
		req.SetBasicAuth("admin", "wrong")
		req.Close = true
		resp, err := ts.Client().Do(req)
		require.NoError(t, err)
		resp.Body.Close()
	}

	// StateClosed fires after the response is consumed, so drain eventually.
	require.Eventually(t, func() bool {
		return srv.Sessions().Len() == 0
	}, 5*time.Second, 10*time.Millisecond)
}

func TestMalformedBodyRejected(t *testing.T) {
	store := policy.NewMemoryStore()
	srv := newTestServer(t, store, []string{"admin"}, "")

	req := httptest.NewRequest(http.MethodPut, "/admin/v2/clusters/test",
		bytes.NewBufferString("{not json"))
	req.SetBasicAuth("admin", "admin-pass")
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}
