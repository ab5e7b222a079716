package signal

import (
	"context"
	"fmt"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/RoomRelay/internal/app"
	"github.com/dkeye/RoomRelay/internal/domain"
	"github.com/dkeye/RoomRelay/internal/store"
)

type testServer struct {
	srv  *httptest.Server
	orch *app.Orchestrator
}

func newTestServer(t *testing.T, opts Options) *testServer {
	t.Helper()
	return newTestServerWithStore(t, opts, store.Config{Driver: store.DriverSQLite, DSN: ":memory:"})
}

func newTestServerWithStore(t *testing.T, opts Options, cfg store.Config) *testServer {
	t.Helper()

	st, err := store.Open(cfg)
	require.NoError(t, err)
	orch := app.NewOrchestrator(st, nil)
	ctl := NewSignalWSController(orch, opts)

	gin.SetMode(gin.TestMode)
	r := gin.New()
	ctx, cancel := context.WithCancel(context.Background())
	r.GET("/ws", func(c *gin.Context) { ctl.HandleSignal(ctx, c) })
	srv := httptest.NewServer(r)

	t.Cleanup(func() {
		cancel()
		srv.Close()
		_ = st.Close()
	})
	return &testServer{srv: srv, orch: orch}
}

func (ts *testServer) dial(t *testing.T) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.srv.URL, "http") + "/ws"
	c, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })

	hello := readJSON(t, c)
	require.Equal(t, "connection", hello["type"])
	require.Equal(t, "Connected successfully", hello["message"])
	return c
}

// join identifies c and returns the room confirmation.
func (ts *testServer) join(t *testing.T, c *websocket.Conn, ident map[string]any) map[string]any {
	t.Helper()
	require.NoError(t, c.WriteJSON(ident))
	msg := readJSON(t, c)
	require.Equal(t, "room", msg["type"], "unexpected reply: %v", msg)
	return msg
}

func readJSON(t *testing.T, c *websocket.Conn) map[string]any {
	t.Helper()
	require.NoError(t, c.SetReadDeadline(time.Now().Add(2*time.Second)))
	var m map[string]any
	require.NoError(t, c.ReadJSON(&m))
	return m
}

func readRaw(t *testing.T, c *websocket.Conn) string {
	t.Helper()
	require.NoError(t, c.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := c.ReadMessage()
	require.NoError(t, err)
	return string(data)
}

func requireClosed(t *testing.T, c *websocket.Conn) {
	t.Helper()
	require.NoError(t, c.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := c.ReadMessage()
	require.Error(t, err)
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "got %v", err)
}

func TestSignal_TwoDevicesRelayAndQuery(t *testing.T) {
	ts := newTestServer(t, Options{})

	c1 := ts.dial(t)
	room := ts.join(t, c1, map[string]any{"identity": "phone", "device_id": "D1"})
	assert.Equal(t, "created_new", room["status"])
	roomID, _ := room["room_id"].(string)
	require.Len(t, roomID, domain.RoomIDLen)
	assert.Equal(t, "created_new: joined room "+roomID, room["message"])

	c2 := ts.dial(t)
	room2 := ts.join(t, c2, map[string]any{"identity": "tablet", "device_id": "D2", "room_id": roomID})
	assert.Equal(t, "joined_existing", room2["status"])
	assert.Equal(t, roomID, room2["room_id"])

	require.NoError(t, c1.WriteMessage(websocket.TextMessage, []byte(`{"type":"ping","content":"hi"}`)))
	assert.JSONEq(t,
		`{"type":"ping","content":"hi","from_device_id":"D1","message_type":"broadcast","timestamp":""}`,
		readRaw(t, c2))

	// The next frame c1 sees is the query answer, so the broadcast was not echoed.
	require.NoError(t, c1.WriteJSON(map[string]any{"type": "query_room"}))
	info := readJSON(t, c1)
	assert.Equal(t, "room_info", info["type"])
	assert.Equal(t, roomID, info["room_id"])
	assert.EqualValues(t, 2, info["total_clients"])
	clients, ok := info["clients"].([]any)
	require.True(t, ok)
	require.Len(t, clients, 1)
	assert.Equal(t, map[string]any{"device_id": "D2", "identity": "tablet"}, clients[0])
}

func TestSignal_ConcurrentJoinsOnFileStore(t *testing.T) {
	ts := newTestServerWithStore(t, Options{}, store.Config{
		Driver:       store.DriverSQLite,
		DSN:          filepath.Join(t.TempDir(), "relay.db"),
		MaxOpenConns: 5,
		MaxIdleConns: 5,
	})

	host := ts.dial(t)
	roomID := ts.join(t, host, map[string]any{"identity": "host", "device_id": "D0"})["room_id"].(string)

	const clients = 20
	url := "ws" + strings.TrimPrefix(ts.srv.URL, "http") + "/ws"
	statuses := make(chan string, clients)
	var wg sync.WaitGroup
	for i := 1; i <= clients; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			statuses <- joinOnce(url, map[string]any{
				"identity":  "guest",
				"device_id": fmt.Sprintf("D%d", i),
				"room_id":   roomID,
			})
		}()
	}
	wg.Wait()
	close(statuses)

	for st := range statuses {
		assert.Equal(t, "joined_existing", st)
	}
}

// joinOnce dials, identifies and reports the resulting status or the failure.
func joinOnce(url string, ident map[string]any) string {
	c, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		return "dial: " + err.Error()
	}
	defer c.Close()
	_ = c.SetReadDeadline(time.Now().Add(5 * time.Second))

	var hello, room map[string]any
	if err := c.ReadJSON(&hello); err != nil {
		return "read hello: " + err.Error()
	}
	if err := c.WriteJSON(ident); err != nil {
		return "write: " + err.Error()
	}
	if err := c.ReadJSON(&room); err != nil {
		return "read room: " + err.Error()
	}
	status, _ := room["status"].(string)
	if room["room_id"] != ident["room_id"] {
		return fmt.Sprintf("%s in room %v", status, room["room_id"])
	}
	return status
}

func TestSignal_DirectMessageAndErrors(t *testing.T) {
	ts := newTestServer(t, Options{})

	c1 := ts.dial(t)
	roomID := ts.join(t, c1, map[string]any{"identity": "phone", "device_id": "D1"})["room_id"]
	c2 := ts.dial(t)
	ts.join(t, c2, map[string]any{"identity": "tablet", "device_id": "D2", "room_id": roomID})

	require.NoError(t, c2.WriteJSON(map[string]any{"type": "answer", "content": map[string]any{"sdp": "x"}, "target_device_id": "D1"}))
	direct := readJSON(t, c1)
	assert.Equal(t, "direct", direct["message_type"])
	assert.Equal(t, "D2", direct["from_device_id"])

	require.NoError(t, c2.WriteJSON(map[string]any{"type": "answer", "content": "x", "target_device_id": "GHOST"}))
	e := readJSON(t, c2)
	assert.Equal(t, "error", e["type"])
	assert.Contains(t, e["message"], "target_not_found")

	require.NoError(t, c2.WriteJSON(map[string]any{"type": "answer"}))
	e = readJSON(t, c2)
	assert.Equal(t, "error", e["type"])
	assert.Equal(t, "invalid_message: missing required fields (type, content)", e["message"])

	require.NoError(t, c2.WriteMessage(websocket.TextMessage, []byte(`{broken`)))
	e = readJSON(t, c2)
	assert.Equal(t, map[string]any{"type": "error", "message": "Invalid JSON format"}, e)

	// still active
	require.NoError(t, c2.WriteJSON(map[string]any{"type": "query_room"}))
	assert.Equal(t, "room_info", readJSON(t, c2)["type"])
}

func TestSignal_IdentificationFailuresClose(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		want    string
	}{
		{name: "not json", payload: `hello`, want: "Invalid JSON format for identity"},
		{name: "not an object", payload: `[1,2]`, want: "Invalid JSON format for identity"},
		{name: "missing identity", payload: `{"device_id":"D1"}`, want: "Missing identity field"},
		{name: "missing device", payload: `{"identity":"phone"}`, want: "Missing device_id field"},
		{name: "unknown room", payload: `{"identity":"phone","device_id":"D1","room_id":"NOPE0000"}`, want: "Room NOPE0000 does not exist"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestServer(t, Options{})
			c := ts.dial(t)

			require.NoError(t, c.WriteMessage(websocket.TextMessage, []byte(tt.payload)))
			assert.Equal(t, map[string]any{"type": "error", "message": tt.want}, readJSON(t, c))
			requireClosed(t, c)

			assert.False(t, ts.orch.Rooms.RoomExists("NOPE0000"))
			assert.Eventually(t, func() bool { return ts.orch.Registry.Count() == 0 }, time.Second, 10*time.Millisecond)
		})
	}
}

func TestSignal_DisconnectLeavesRoom(t *testing.T) {
	ts := newTestServer(t, Options{})

	c1 := ts.dial(t)
	roomID := domain.RoomID(ts.join(t, c1, map[string]any{"identity": "phone", "device_id": "D1"})["room_id"].(string))
	c2 := ts.dial(t)
	ts.join(t, c2, map[string]any{"identity": "tablet", "device_id": "D2", "room_id": string(roomID)})
	require.Equal(t, 2, ts.orch.Rooms.MemberCount(roomID))

	require.NoError(t, c2.Close())

	assert.Eventually(t, func() bool { return ts.orch.Rooms.MemberCount(roomID) == 1 }, time.Second, 10*time.Millisecond)
	assert.Eventually(t, func() bool { return ts.orch.Registry.Count() == 1 }, time.Second, 10*time.Millisecond)
	assert.True(t, ts.orch.Rooms.RoomExists(roomID))

	require.NoError(t, c1.WriteJSON(map[string]any{"type": "query_room"}))
	info := readJSON(t, c1)
	assert.EqualValues(t, 1, info["total_clients"])
	assert.Equal(t, []any{}, info["clients"])
}

func TestSignal_ReconnectKeepsRoom(t *testing.T) {
	ts := newTestServer(t, Options{})

	c1 := ts.dial(t)
	roomID := ts.join(t, c1, map[string]any{"identity": "phone", "device_id": "D1"})["room_id"]
	require.NoError(t, c1.Close())

	again := ts.dial(t)
	room := ts.join(t, again, map[string]any{"identity": "phone v2", "device_id": "D1"})
	assert.Equal(t, "reconnected", room["status"])
	assert.Equal(t, roomID, room["room_id"])
}

func TestSignal_IdentifyTimeout(t *testing.T) {
	ts := newTestServer(t, Options{IdentifyTimeout: 50 * time.Millisecond})
	c := ts.dial(t)

	requireClosed(t, c)
	assert.Eventually(t, func() bool { return ts.orch.Registry.Count() == 0 }, time.Second, 10*time.Millisecond)
}

func TestSignal_RateLimit(t *testing.T) {
	ts := newTestServer(t, Options{RateLimit: 1, RateInterval: time.Minute})

	c := ts.dial(t)
	ts.join(t, c, map[string]any{"identity": "phone", "device_id": "D1"})

	require.NoError(t, c.WriteJSON(map[string]any{"type": "query_room"}))
	assert.Equal(t, "room_info", readJSON(t, c)["type"])

	require.NoError(t, c.WriteJSON(map[string]any{"type": "query_room"}))
	assert.Equal(t, map[string]any{"type": "error", "message": "rate limit exceeded"}, readJSON(t, c))
}

func TestWsSignalConn_Queue(t *testing.T) {
	c := newWsSignalConn(nil, 1)

	require.NoError(t, c.TrySend([]byte("a")))
	assert.ErrorIs(t, c.TrySend([]byte("b")), ErrBackpressure)

	c.Close()
	c.Close()
	assert.ErrorIs(t, c.TrySend([]byte("c")), ErrConnClosed)

	// queued frames survive Close for the write pump
	f, ok := <-c.send
	require.True(t, ok)
	assert.Equal(t, "a", string(f))
	_, ok = <-c.send
	assert.False(t, ok)
}

func TestRoomRateLimiter_Window(t *testing.T) {
	rl := NewRoomRateLimiter(2, time.Second)
	now := time.Unix(1000, 0)
	rl.now = func() time.Time { return now }

	assert.True(t, rl.Allow("D1"))
	assert.True(t, rl.Allow("D1"))
	assert.False(t, rl.Allow("D1"))
	assert.True(t, rl.Allow("D2"))

	now = now.Add(1500 * time.Millisecond)
	assert.True(t, rl.Allow("D1"))
}

func TestRoomRateLimiter_ForgetsIdleDevices(t *testing.T) {
	rl := NewRoomRateLimiter(2, time.Second)
	now := time.Unix(1000, 0)
	rl.now = func() time.Time { return now }

	for i := 0; i < 50; i++ {
		assert.True(t, rl.Allow(domain.DeviceID(fmt.Sprintf("D%d", i))))
	}
	assert.Len(t, rl.history, 50)

	now = now.Add(500 * time.Millisecond)
	assert.True(t, rl.Allow("D0"))
	assert.Len(t, rl.history, 50)

	now = now.Add(900 * time.Millisecond)
	assert.True(t, rl.Allow("late"))
	assert.Len(t, rl.history, 2)
	assert.Contains(t, rl.history, domain.DeviceID("D0"))
	assert.Contains(t, rl.history, domain.DeviceID("late"))
}
