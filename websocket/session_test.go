package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phidinhthang/tiny-chat/auth"
	"github.com/phidinhthang/tiny-chat/config"
	"github.com/phidinhthang/tiny-chat/hub"
	"github.com/phidinhthang/tiny-chat/membership"
	"github.com/phidinhthang/tiny-chat/presence"
)

type testRig struct {
	hub    *hub.Hub
	server *httptest.Server
	url    string
}

func testConfig() *config.WebSocketConfig {
	return &config.WebSocketConfig{
		HeartbeatInterval: 1,
		ClientTimeout:     2,
		WriteTimeout:      2,
		MessageSizeLimit:  4096,
		OutboundBuffer:    64,
	}
}

type nullPresence struct{}

func (nullPresence) SetOnline(context.Context, uuid.UUID) error             { return nil }
func (nullPresence) SetOffline(context.Context, uuid.UUID, time.Time) error { return nil }
func (nullPresence) Get(context.Context, uuid.UUID) (*presence.Status, error) {
	return nil, nil
}

func newTestRig(t *testing.T, tokens map[string]uuid.UUID) *testRig {
	t.Helper()

	verifier := auth.VerifierFunc(func(_ context.Context, token string) (uuid.UUID, error) {
		if id, ok := tokens[token]; ok {
			return id, nil
		}
		return uuid.Nil, auth.ErrInvalidToken
	})
	resolver := membership.ResolverFunc(func(context.Context, uuid.UUID, *uuid.UUID) ([]uuid.UUID, error) {
		return nil, nil
	})

	h := hub.New(verifier, resolver, nullPresence{})
	go h.Run()

	handler := NewHandler(h, testConfig())
	srv := httptest.NewServer(http.HandlerFunc(handler.HandleWebSocket))

	t.Cleanup(func() {
		srv.Close()
		h.Shutdown(time.Second)
	})

	return &testRig{
		hub:    h,
		server: srv,
		url:    "ws" + strings.TrimPrefix(srv.URL, "http"),
	}
}

func dial(t *testing.T, rig *testRig) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(rig.url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

// readEnvelope reads frames until one parses as an envelope with the
// wanted op, failing on timeout.
func readEnvelope(t *testing.T, conn *websocket.Conn, wantOp string) hub.Envelope {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	require.NoError(t, conn.SetReadDeadline(deadline))

	for {
		_, data, err := conn.ReadMessage()
		require.NoError(t, err, "waiting for %q", wantOp)

		var env hub.Envelope
		if json.Unmarshal(data, &env) != nil {
			continue
		}
		if env.Op == wantOp {
			return env
		}
	}
}

func sessionCount(t *testing.T, h *hub.Hub) int {
	t.Helper()
	snap, err := h.Snapshot(context.Background())
	require.NoError(t, err)
	return len(snap.SessionIDs)
}

func writeEnvelope(t *testing.T, conn *websocket.Conn, op string, d interface{}) {
	t.Helper()
	env, err := hub.NewEnvelope(op, d)
	require.NoError(t, err)
	data, err := env.Encode()
	require.NoError(t, err)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, data))
}

func TestConnectDeliversVisitorTick(t *testing.T) {
	rig := newTestRig(t, nil)
	conn := dial(t, rig)

	env := readEnvelope(t, conn, hub.OpHi)
	var count uint64
	require.NoError(t, json.Unmarshal(env.D, &count))
	assert.Equal(t, uint64(1), count)
}

func TestAuthRoundTrip(t *testing.T) {
	userID := uuid.New()
	rig := newTestRig(t, map[string]uuid.UUID{"validtoken123": userID})

	watcher := dial(t, rig)
	readEnvelope(t, watcher, hub.OpHi)

	conn := dial(t, rig)
	readEnvelope(t, conn, hub.OpHi)

	writeEnvelope(t, conn, hub.OpAuth, "validtoken123")

	// user_online is broadcast before the auth-good reply is issued and
	// both traverse the same outbound handle, so order is fixed.
	online := readEnvelope(t, conn, hub.OpUserOnline)
	var announced uuid.UUID
	require.NoError(t, json.Unmarshal(online.D, &announced))
	assert.Equal(t, userID, announced)

	good := readEnvelope(t, conn, hub.OpAuthGood)
	var resolved uuid.UUID
	require.NoError(t, json.Unmarshal(good.D, &resolved))
	assert.Equal(t, userID, resolved)

	// The unauthenticated watcher sees the presence change too.
	watcherOnline := readEnvelope(t, watcher, hub.OpUserOnline)
	require.NoError(t, json.Unmarshal(watcherOnline.D, &announced))
	assert.Equal(t, userID, announced)
}

func TestAuthFailureRepliesNull(t *testing.T) {
	rig := newTestRig(t, nil)
	conn := dial(t, rig)
	readEnvelope(t, conn, hub.OpHi)

	writeEnvelope(t, conn, hub.OpAuth, "garbage")

	good := readEnvelope(t, conn, hub.OpAuthGood)
	assert.True(t, good.D == nil || string(good.D) == "null", "expected null payload, got %s", good.D)

	snap, err := rig.hub.Snapshot(context.Background())
	require.NoError(t, err)
	assert.Empty(t, snap.Online)
}

func TestUnknownOpGetsDiagnosticEcho(t *testing.T) {
	rig := newTestRig(t, nil)
	conn := dial(t, rig)
	readEnvelope(t, conn, hub.OpHi)

	writeEnvelope(t, conn, "hello", nil)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Contains(t, string(data), "unknown command")

	// Not a protocol error: the connection stays open.
	assert.Equal(t, 1, sessionCount(t, rig.hub))
}

func TestBinaryFramesAreIgnored(t *testing.T) {
	rig := newTestRig(t, nil)
	conn := dial(t, rig)
	readEnvelope(t, conn, hub.OpHi)

	require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, []byte{0x01, 0x02}))

	// The session is still alive and still speaks the protocol.
	writeEnvelope(t, conn, "ping-me", nil)
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Contains(t, string(data), "unknown command")
}

func TestMalformedFrameClosesSession(t *testing.T) {
	rig := newTestRig(t, nil)
	conn := dial(t, rig)
	readEnvelope(t, conn, hub.OpHi)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("not json")))

	assert.Eventually(t, func() bool {
		return sessionCount(t, rig.hub) == 0
	}, 3*time.Second, 50*time.Millisecond)
}

func TestClientCloseTriggersDisconnect(t *testing.T) {
	rig := newTestRig(t, nil)
	conn := dial(t, rig)
	readEnvelope(t, conn, hub.OpHi)
	require.Equal(t, 1, sessionCount(t, rig.hub))

	conn.Close()

	assert.Eventually(t, func() bool {
		return sessionCount(t, rig.hub) == 0
	}, 3*time.Second, 50*time.Millisecond)
}

func TestHeartbeatTimeoutReapsSilentSession(t *testing.T) {
	rig := newTestRig(t, nil)
	conn := dial(t, rig)

	// Swallow server pings so no pong ever refreshes the session.
	conn.SetPingHandler(func(string) error { return nil })

	readEnvelope(t, conn, hub.OpHi)

	// Keep reading so the ping handler keeps running; expect the server
	// to close on us once the timeout window passes.
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(6*time.Second)))
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}

	assert.Eventually(t, func() bool {
		return sessionCount(t, rig.hub) == 0
	}, 3*time.Second, 50*time.Millisecond)
}
