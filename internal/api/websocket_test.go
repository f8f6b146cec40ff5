package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nerrad567/supermqtt/internal/auth"
)

func (e *testEnv) dialStream(t *testing.T, query url.Values) *websocket.Conn {
	t.Helper()
	u := "ws" + strings.TrimPrefix(e.http.URL, "http") + "/api/v1/stream"
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	conn, resp, err := websocket.DefaultDialer.Dial(u, nil)
	require.NoError(t, err)
	resp.Body.Close()
	t.Cleanup(func() { conn.Close() })

	require.Eventually(t, func() bool { return e.server.hub.ClientCount() > 0 }, 2*time.Second, 10*time.Millisecond)
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) StreamFrame {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var f StreamFrame
	require.NoError(t, json.Unmarshal(data, &f))
	return f
}

func TestStream_FilteredMessages(t *testing.T) {
	env := newTestEnv(t)
	require.True(t, env.client.Subscribe(context.Background(), "t/#").OK())

	conn := env.dialStream(t, url.Values{"filter": {"t/a"}})

	require.NoError(t, env.broker.Publish("t/b", []byte("skip"), false, 0))
	require.NoError(t, env.broker.Publish("t/a", []byte("keep"), false, 0))

	f := readFrame(t, conn)
	assert.Equal(t, EventMessage, f.Type)
	assert.Equal(t, "t/a", f.Topic)
	assert.Equal(t, []byte("keep"), f.Payload)
	assert.NotEmpty(t, f.Timestamp)
}

func TestStream_Faults(t *testing.T) {
	env := newTestEnv(t)
	conn := env.dialStream(t, nil)

	res := env.client.Publish(context.Background(), "bad/#", []byte("x"))
	require.False(t, res.OK())

	f := readFrame(t, conn)
	assert.Equal(t, EventFault, f.Type)
	assert.Contains(t, f.Error, "bad/#")
}

func TestStream_InvalidFilter(t *testing.T) {
	env := newTestEnv(t)
	u := "ws" + strings.TrimPrefix(env.http.URL, "http") + "/api/v1/stream?filter=" + url.QueryEscape("a/#/b")

	_, resp, err := websocket.DefaultDialer.Dial(u, nil)
	require.ErrorIs(t, err, websocket.ErrBadHandshake)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestStream_QueryToken(t *testing.T) {
	env := newTestEnv(t, withSecret)
	base := "ws" + strings.TrimPrefix(env.http.URL, "http") + "/api/v1/stream"

	_, resp, err := websocket.DefaultDialer.Dial(base, nil)
	require.Error(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	token, err := auth.GenerateToken("viewer", auth.ScopeRead, testSecret, time.Minute)
	require.NoError(t, err)
	env.dialStream(t, url.Values{"access_token": {token}})
	assert.Equal(t, 1, env.server.hub.ClientCount())
}

func TestHub_CloseAllDropsClients(t *testing.T) {
	env := newTestEnv(t)
	conn := env.dialStream(t, nil)

	require.NoError(t, env.server.Close())
	assert.Zero(t, env.server.hub.ClientCount())

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := conn.ReadMessage()
	assert.Error(t, err)
}

func TestWSClient_Wants(t *testing.T) {
	c := &WSClient{filters: []string{"sensors/+/temp", "alerts/#"}}
	assert.True(t, c.wants("sensors/kitchen/temp"))
	assert.True(t, c.wants("alerts/fire/floor1"))
	assert.False(t, c.wants("sensors/kitchen/humidity"))
}
