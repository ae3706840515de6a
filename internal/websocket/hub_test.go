package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conneroisu/codecraft/internal/notify"
	"github.com/conneroisu/codecraft/internal/sandbox"
)

type allowList map[string]bool

func (a allowList) IsAllowedOrigin(origin string) bool { return a[origin] }

func newTestHub(t *testing.T, opts Options) (*Hub, *httptest.Server) {
	t.Helper()
	hub := NewHub(allowList{"http://localhost:8080": true}, nil, opts)
	srv := httptest.NewServer(hub)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = hub.Shutdown(ctx)
		srv.Close()
	})
	return hub, srv
}

func dial(t *testing.T, srv *httptest.Server, origin string) (*websocket.Conn, *http.Response, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	header := http.Header{}
	if origin != "" {
		header.Set("Origin", origin)
	}
	return websocket.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http"), &websocket.DialOptions{HTTPHeader: header})
}

func readMessage(t *testing.T, conn *websocket.Conn) Message {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, data, err := conn.Read(ctx)
	require.NoError(t, err)
	var msg Message
	require.NoError(t, json.Unmarshal(data, &msg))
	return msg
}

func waitForClients(t *testing.T, hub *Hub, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return hub.Clients() == n }, 2*time.Second, 5*time.Millisecond)
}

func TestHub_RejectsDisallowedOrigin(t *testing.T) {
	_, srv := newTestHub(t, Options{})

	_, resp, err := dial(t, srv, "http://evil.example")
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestHub_PublishFrame(t *testing.T) {
	hub, srv := newTestHub(t, Options{})

	conn, _, err := dial(t, srv, "http://localhost:8080")
	require.NoError(t, err)
	defer conn.CloseNow()
	waitForClients(t, hub, 1)

	hub.PublishFrame(sandbox.Frame{Generation: 3, CreatedAt: time.Now()})
	msg := readMessage(t, conn)
	assert.Equal(t, TypeFrame, msg.Type)
	assert.Equal(t, uint64(3), msg.Generation)
}

func TestHub_NewClientReceivesLatestFrame(t *testing.T) {
	hub, srv := newTestHub(t, Options{})
	hub.PublishFrame(sandbox.Frame{Generation: 7})
	hub.PublishFrame(sandbox.Frame{Generation: 5})

	conn, _, err := dial(t, srv, "")
	require.NoError(t, err)
	defer conn.CloseNow()

	msg := readMessage(t, conn)
	assert.Equal(t, TypeFrame, msg.Type)
	assert.Equal(t, uint64(7), msg.Generation)
}

func TestHub_AttachFollowsSandbox(t *testing.T) {
	hub, srv := newTestHub(t, Options{})
	sb, err := sandbox.New(sandbox.DefaultPolicy())
	require.NoError(t, err)
	detach := hub.Attach(sb)
	defer detach()

	conn, _, err := dial(t, srv, "")
	require.NoError(t, err)
	defer conn.CloseNow()
	waitForClients(t, hub, 1)

	frame := sb.Render("<p>hi</p>")
	msg := readMessage(t, conn)
	assert.Equal(t, frame.Generation, msg.Generation)
}

func TestHub_Notify(t *testing.T) {
	hub, srv := newTestHub(t, Options{})

	conn, _, err := dial(t, srv, "")
	require.NoError(t, err)
	defer conn.CloseNow()
	waitForClients(t, hub, 1)

	var n notify.Notifier = hub
	n.Notify(context.Background(), notify.Success(notify.MsgProjectSaved))

	msg := readMessage(t, conn)
	assert.Equal(t, TypeNotification, msg.Type)
	assert.Equal(t, "success", msg.Level)
	assert.Equal(t, notify.MsgProjectSaved, msg.Message)
}

func TestHub_PingPong(t *testing.T) {
	hub, srv := newTestHub(t, Options{})

	conn, _, err := dial(t, srv, "")
	require.NoError(t, err)
	defer conn.CloseNow()
	waitForClients(t, hub, 1)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, conn.Write(ctx, websocket.MessageText, []byte(`{"type":"ping"}`)))
	assert.Equal(t, TypePong, readMessage(t, conn).Type)
}

func TestHub_InboundRateLimit(t *testing.T) {
	hub, srv := newTestHub(t, Options{InboundRate: 0.001, InboundBurst: 1})

	conn, _, err := dial(t, srv, "")
	require.NoError(t, err)
	defer conn.CloseNow()
	waitForClients(t, hub, 1)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	for i := 0; i < 3; i++ {
		_ = conn.Write(ctx, websocket.MessageText, []byte(`{"type":"noise"}`))
	}

	_, _, err = conn.Read(ctx)
	require.Error(t, err)
	assert.Equal(t, websocket.StatusPolicyViolation, websocket.CloseStatus(err))
	waitForClients(t, hub, 0)
}

func TestHub_Shutdown(t *testing.T) {
	hub, srv := newTestHub(t, Options{})

	conn, _, err := dial(t, srv, "")
	require.NoError(t, err)
	defer conn.CloseNow()
	waitForClients(t, hub, 1)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, hub.Shutdown(ctx))
	assert.True(t, hub.IsShutdown())
	assert.Equal(t, 0, hub.Clients())
	assert.NoError(t, hub.Shutdown(ctx), "second shutdown is a no-op")

	_, resp, err := dial(t, srv, "")
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestNewHub_RequiresValidator(t *testing.T) {
	assert.Panics(t, func() { NewHub(nil, nil, Options{}) })
}
