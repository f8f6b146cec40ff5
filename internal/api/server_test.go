package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nerrad567/supermqtt/internal/auth"
	"github.com/nerrad567/supermqtt/internal/infrastructure/config"
	"github.com/nerrad567/supermqtt/internal/infrastructure/database"
	"github.com/nerrad567/supermqtt/internal/infrastructure/logging"
	"github.com/nerrad567/supermqtt/internal/infrastructure/mqtt"
	"github.com/nerrad567/supermqtt/internal/journal"
	"github.com/nerrad567/supermqtt/internal/pubsub"
	"github.com/nerrad567/supermqtt/internal/testutil"
	"github.com/nerrad567/supermqtt/migrations"
)

const testSecret = "bridge-test-secret"

type testEnv struct {
	broker  *testutil.Broker
	client  *pubsub.Client
	journal *journal.SQLiteRepository
	server  *Server
	http    *httptest.Server
}

type envOption func(*config.APIConfig)

func withSecret(cfg *config.APIConfig) { cfg.JWTSecret = testSecret }

func newTestEnv(t *testing.T, opts ...envOption) *testEnv {
	t.Helper()
	ctx := context.Background()

	broker := testutil.StartBroker(t)
	client := pubsub.New(pubsub.ConnectionConfig{Host: broker.Host, Port: broker.Port, CleanSession: true},
		pubsub.WithTransportFactory(pubsub.SessionTransport(mqtt.SessionConfig{
			ConnectTimeout:    3 * time.Second,
			OperationTimeout:  3 * time.Second,
			DisconnectQuiesce: 50,
		})))
	t.Cleanup(func() { client.Disconnect(context.Background()) })

	db, err := database.Open(ctx, database.Config{Path: filepath.Join(t.TempDir(), "j.db"), BusyTimeout: 5})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // Test cleanup
	require.NoError(t, db.Migrate(ctx, migrations.FS))
	repo := journal.NewSQLiteRepository(db.DB)

	var cfg config.APIConfig
	for _, o := range opts {
		o(&cfg)
	}

	srv, err := New(Deps{
		Config:  cfg,
		Logger:  logging.Nop(),
		Client:  client,
		Journal: repo,
		Checks:  map[string]HealthChecker{"journal": db},
		Version: "test",
	})
	require.NoError(t, err)
	hs := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		hs.Close()
		srv.Close() //nolint:errcheck // Test cleanup
	})

	return &testEnv{broker: broker, client: client, journal: repo, server: srv, http: hs}
}

func (e *testEnv) do(t *testing.T, method, path, token string, body any) (*http.Response, []byte) {
	t.Helper()

	var rdr *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		rdr = bytes.NewReader(b)
	} else {
		rdr = bytes.NewReader(nil)
	}

	req, err := http.NewRequest(method, e.http.URL+path, rdr)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var buf bytes.Buffer
	_, err = buf.ReadFrom(resp.Body)
	require.NoError(t, err)
	return resp, buf.Bytes()
}

// ============================================================================
// Construction
// ============================================================================

func TestNew_RequiresDeps(t *testing.T) {
	_, err := New(Deps{Client: pubsub.New(pubsub.ConnectionConfig{})})
	assert.ErrorContains(t, err, "logger")

	_, err = New(Deps{Logger: logging.Nop()})
	assert.ErrorContains(t, err, "client")
}

func TestStartAndClose(t *testing.T) {
	client := pubsub.New(pubsub.ConnectionConfig{Host: "127.0.0.1", Port: 1})
	srv, err := New(Deps{
		Config: config.APIConfig{Host: "127.0.0.1", Port: testutil.FreePort(t)},
		Logger: logging.Nop(),
		Client: client,
	})
	require.NoError(t, err)
	require.NoError(t, srv.Start(context.Background()))
	assert.NotEmpty(t, srv.Addr())

	resp, err := http.Get("http://" + srv.Addr() + "/api/v1/health")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	require.NoError(t, srv.Close())
	require.NoError(t, srv.Close())
}

// ============================================================================
// Routes
// ============================================================================

func TestHealth(t *testing.T) {
	env := newTestEnv(t)

	resp, body := env.do(t, http.MethodGet, "/api/v1/health", "", nil)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.Contains(t, string(body), `"degraded"`)
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))

	require.True(t, env.client.Connect(context.Background()).OK())

	resp, body = env.do(t, http.MethodGet, "/api/v1/health", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var h HealthResponse
	require.NoError(t, json.Unmarshal(body, &h))
	assert.Equal(t, HealthResponse{
		Status:     "ok",
		MQTT:       "connected",
		Components: map[string]string{"journal": "ok"},
		Version:    "test",
	}, h)
}

type failingCheck struct{ err error }

func (f failingCheck) HealthCheck(context.Context) error { return f.err }

func TestHealth_FailingComponent(t *testing.T) {
	broker := testutil.StartBroker(t)
	client := pubsub.New(pubsub.ConnectionConfig{Host: broker.Host, Port: broker.Port, CleanSession: true})
	t.Cleanup(func() { client.Disconnect(context.Background()) })
	require.True(t, client.Connect(context.Background()).OK())

	srv, err := New(Deps{
		Logger: logging.Nop(),
		Client: client,
		Checks: map[string]HealthChecker{
			"journal":  failingCheck{},
			"influxdb": failingCheck{err: errors.New("influxdb health check failed: connection refused")},
		},
		Version: "test",
	})
	require.NoError(t, err)
	t.Cleanup(func() { srv.Close() }) //nolint:errcheck // Test cleanup

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/health", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	var h HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &h))
	assert.Equal(t, "degraded", h.Status)
	assert.Equal(t, "connected", h.MQTT)
	assert.Equal(t, map[string]string{
		"journal":  "ok",
		"influxdb": "influxdb health check failed: connection refused",
	}, h.Components)
}

func TestPublishSubscribeStatus(t *testing.T) {
	env := newTestEnv(t)

	resp, body := env.do(t, http.MethodPost, "/api/v1/subscriptions", "", SubscriptionRequest{Topics: []string{"t/#"}, QoS: 1})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	assert.JSONEq(t, `{"result":"ok"}`, string(body))

	resp, body = env.do(t, http.MethodPost, "/api/v1/publish", "", PublishRequest{Topic: "t/1", Payload: "hello", QoS: 1})
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))

	resp, body = env.do(t, http.MethodGet, "/api/v1/status", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var st StatusResponse
	require.NoError(t, json.Unmarshal(body, &st))
	assert.True(t, st.Connected)
	assert.Equal(t, "connected", st.State)
	assert.NotEmpty(t, st.ClientID)

	resp, _ = env.do(t, http.MethodDelete, "/api/v1/subscriptions", "", SubscriptionRequest{Topics: []string{"t/#"}})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestPublish_BadRequests(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name       string
		body       string
		wantStatus int
	}{
		{"not json", "{", http.StatusBadRequest},
		{"unknown field", `{"topic":"a","colour":"red"}`, http.StatusBadRequest},
		{"missing topic", `{"payload":"x"}`, http.StatusBadRequest},
		{"wildcard topic", `{"topic":"a/#","payload":"x"}`, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, err := http.Post(env.http.URL+"/api/v1/publish", "application/json", strings.NewReader(tt.body))
			require.NoError(t, err)
			resp.Body.Close()
			assert.Equal(t, tt.wantStatus, resp.StatusCode)
		})
	}
}

func TestPublish_BrokerGone(t *testing.T) {
	env := newTestEnv(t)
	env.broker.Close()

	resp, body := env.do(t, http.MethodPost, "/api/v1/publish", "", PublishRequest{Topic: "t/1", Payload: "x"})
	assert.GreaterOrEqual(t, resp.StatusCode, 500, string(body))

	var rr resultResponse
	require.NoError(t, json.Unmarshal(body, &rr))
	assert.NotEqual(t, "ok", rr.Result)
	assert.NotEmpty(t, rr.Message)
}

func TestListFaults(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	require.NoError(t, env.journal.Create(ctx, &journal.Entry{Kind: journal.KindFault, Operation: "publish", Message: "boom"}))
	require.NoError(t, env.journal.Create(ctx, &journal.Entry{Kind: journal.KindDisconnected, Message: "EOF"}))

	resp, body := env.do(t, http.MethodGet, "/api/v1/faults?kind=fault&limit=10", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var page journal.ListResult
	require.NoError(t, json.Unmarshal(body, &page))
	require.Len(t, page.Entries, 1)
	assert.Equal(t, "boom", page.Entries[0].Message)
	assert.Equal(t, 10, page.Limit)

	resp, _ = env.do(t, http.MethodGet, "/api/v1/faults?kind=other", "", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp, _ = env.do(t, http.MethodGet, "/api/v1/faults?limit=ten", "", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestGetFault(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	entry := &journal.Entry{Kind: journal.KindFault, Operation: "subscribe", Message: "suback 0x80"}
	require.NoError(t, env.journal.Create(ctx, entry))

	resp, body := env.do(t, http.MethodGet, "/api/v1/faults/"+entry.ID, "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(body))
	var got journal.Entry
	require.NoError(t, json.Unmarshal(body, &got))
	assert.Equal(t, entry.ID, got.ID)
	assert.Equal(t, "subscribe", got.Operation)
	assert.Equal(t, "suback 0x80", got.Message)

	resp, body = env.do(t, http.MethodGet, "/api/v1/faults/does-not-exist", "", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Contains(t, string(body), ErrCodeNotFound)
}

func TestListFaults_JournalDisabled(t *testing.T) {
	client := pubsub.New(pubsub.ConnectionConfig{Host: "127.0.0.1", Port: 1})
	srv, err := New(Deps{Logger: logging.Nop(), Client: client})
	require.NoError(t, err)
	t.Cleanup(func() { srv.Close() }) //nolint:errcheck // Test cleanup

	for _, path := range []string{"/api/v1/faults", "/api/v1/faults/some-id"} {
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code, path)
	}
}

// ============================================================================
// Authentication
// ============================================================================

func TestAuth(t *testing.T) {
	env := newTestEnv(t, withSecret)

	read, err := auth.GenerateToken("viewer", auth.ScopeRead, testSecret, time.Minute)
	require.NoError(t, err)
	write, err := auth.GenerateToken("svc", auth.ScopeWrite, testSecret, time.Minute)
	require.NoError(t, err)
	foreign, err := auth.GenerateToken("svc", auth.ScopeWrite, "other-secret", time.Minute)
	require.NoError(t, err)

	pub := PublishRequest{Topic: "t/1", Payload: "x"}
	tests := []struct {
		name       string
		method     string
		path       string
		token      string
		body       any
		wantStatus int
	}{
		{"health is public", http.MethodGet, "/api/v1/health", "", nil, http.StatusServiceUnavailable},
		{"status without token", http.MethodGet, "/api/v1/status", "", nil, http.StatusUnauthorized},
		{"status with foreign token", http.MethodGet, "/api/v1/status", foreign, nil, http.StatusUnauthorized},
		{"status with read token", http.MethodGet, "/api/v1/status", read, nil, http.StatusOK},
		{"publish with read token", http.MethodPost, "/api/v1/publish", read, pub, http.StatusForbidden},
		{"publish with write token", http.MethodPost, "/api/v1/publish", write, pub, http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := env.do(t, tt.method, tt.path, tt.token, tt.body)
			assert.Equal(t, tt.wantStatus, resp.StatusCode, string(body))
		})
	}
}

func TestBearerToken(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/api/v1/stream?access_token=q", nil)
	assert.Empty(t, bearerToken(r), "query token only honoured for upgrades")

	r.Header.Set("Upgrade", "websocket")
	assert.Equal(t, "q", bearerToken(r))

	r.Header.Set("Authorization", "Bearer h")
	assert.Equal(t, "h", bearerToken(r))

	r.Header.Set("Authorization", "Basic abc")
	assert.Empty(t, bearerToken(r))
}

func TestResultStatus(t *testing.T) {
	tests := []struct {
		res  pubsub.Result
		want int
	}{
		{pubsub.Result{Kind: pubsub.KindOK}, http.StatusOK},
		{pubsub.Result{Kind: pubsub.KindNotConnected}, http.StatusServiceUnavailable},
		{pubsub.Result{Kind: pubsub.KindTimeout}, http.StatusGatewayTimeout},
		{pubsub.Result{Kind: pubsub.KindProtocolRejected, Code: 0x87}, http.StatusBadGateway},
		{pubsub.Result{Kind: pubsub.KindUnknown, Err: mqtt.ErrInvalidTopic}, http.StatusBadRequest},
		{pubsub.Result{Kind: pubsub.KindUnknown, Err: mqtt.ErrPayloadTooLarge}, http.StatusBadRequest},
		{pubsub.Result{Kind: pubsub.KindUnknown}, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, resultStatus(tt.res), tt.res.String())
	}
}
