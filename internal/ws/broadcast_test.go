package ws

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/skillsprint/backend/internal/progression"
)

// dialTestWS creates a test HTTP server that upgrades to WebSocket and
// returns both ends of the connection. The caller must close the server
// and the client-side connection.
func dialTestWS(t *testing.T) (*httptest.Server, *websocket.Conn, *websocket.Conn) {
	t.Helper()

	connCh := make(chan *websocket.Conn, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		connCh <- c
	}))

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	clientConn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		srv.Close()
		t.Fatalf("dial: %v", err)
	}

	select {
	case serverConn := <-connCh:
		return srv, serverConn, clientConn
	case <-time.After(2 * time.Second):
		srv.Close()
		t.Fatal("timed out waiting for server-side WebSocket connection")
		return nil, nil, nil
	}
}

// readMessage reads one message from the client side within the deadline.
func readMessage(t *testing.T, conn *websocket.Conn) Message {
	t.Helper()
	if err := conn.SetReadDeadline(time.Now().Add(2 * time.Second)); err != nil {
		t.Fatalf("set deadline: %v", err)
	}
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("unmarshal %q: %v", data, err)
	}
	return msg
}

// expectNoMessage asserts that nothing arrives on conn within the window.
func expectNoMessage(t *testing.T, conn *websocket.Conn, window time.Duration) {
	t.Helper()
	if err := conn.SetReadDeadline(time.Now().Add(window)); err != nil {
		t.Fatalf("set deadline: %v", err)
	}
	if _, data, err := conn.ReadMessage(); err == nil {
		t.Fatalf("unexpected message delivered: %s", data)
	}
}

func TestBroadcastUnlocks_PerUserFanOut(t *testing.T) {
	b := NewBroadcaster()

	srvA, serverA, clientA := dialTestWS(t)
	defer srvA.Close()
	defer clientA.Close()
	b.AddClient(serverA, "alice")

	srvB, serverB, clientB := dialTestWS(t)
	defer srvB.Close()
	defer clientB.Close()
	b.AddClient(serverB, "bob")

	unlocks := []progression.Unlock{
		{Kind: progression.UnlockAchievement, ID: "first-steps", Name: "First Steps", XP: 10},
	}
	b.BroadcastUnlocks("alice", unlocks, progression.XPSummary{TotalXP: 60})

	msg := readMessage(t, clientA)
	if msg.Type != MsgUnlocks {
		t.Errorf("type = %s, want %s", msg.Type, MsgUnlocks)
	}

	// Bob subscribed to a different learner and must not see Alice's unlock.
	expectNoMessage(t, clientB, 200*time.Millisecond)
}

func TestBroadcastUnlocks_AllClientsOfUser(t *testing.T) {
	b := NewBroadcaster()

	srv1, server1, client1 := dialTestWS(t)
	defer srv1.Close()
	defer client1.Close()
	b.AddClient(server1, "alice")

	srv2, server2, client2 := dialTestWS(t)
	defer srv2.Close()
	defer client2.Close()
	b.AddClient(server2, "alice")

	b.BroadcastUnlocks("alice", nil, progression.XPSummary{TotalXP: 10})

	for i, conn := range []*websocket.Conn{client1, client2} {
		msg := readMessage(t, conn)
		if msg.Type != MsgUnlocks {
			t.Errorf("client %d: type = %s, want %s", i, msg.Type, MsgUnlocks)
		}
	}
}

func TestBroadcastProgress_MessageShape(t *testing.T) {
	b := NewBroadcaster()

	srv, serverConn, clientConn := dialTestWS(t)
	defer srv.Close()
	defer clientConn.Close()
	b.AddClient(serverConn, "alice")

	view := progression.ProgressView{
		XP: progression.XPSummary{TotalXP: 120, LevelInfo: progression.LevelFromXP(120)},
	}
	b.BroadcastProgress("alice", view)

	msg := readMessage(t, clientConn)
	if msg.Type != MsgProgress {
		t.Fatalf("type = %s, want %s", msg.Type, MsgProgress)
	}
	payload, err := json.Marshal(msg.Payload)
	if err != nil {
		t.Fatal(err)
	}
	var got ProgressPayload
	if err := json.Unmarshal(payload, &got); err != nil {
		t.Fatalf("payload %s: %v", payload, err)
	}
	if got.Progress.XP.TotalXP != 120 {
		t.Errorf("TotalXP = %d, want 120", got.Progress.XP.TotalXP)
	}
}

func TestBroadcast_SlowClientDisconnected(t *testing.T) {
	b := NewBroadcaster()

	srv, serverConn, clientConn := dialTestWS(t)
	defer srv.Close()
	defer clientConn.Close()

	// Build the client directly with a full send queue and no write pump,
	// so the next broadcast hits the non-blocking send's default branch.
	c := &Client{
		conn:   serverConn,
		userID: "alice",
		send:   make(chan []byte, 1),
	}
	c.send <- []byte(`{}`)

	b.mu.Lock()
	b.clients[c] = true
	b.mu.Unlock()

	if got := b.ClientCount(); got != 1 {
		t.Fatalf("ClientCount = %d before broadcast, want 1", got)
	}

	b.BroadcastUnlocks("alice", nil, progression.XPSummary{})

	if got := b.ClientCount(); got != 0 {
		t.Errorf("ClientCount = %d after slow-client broadcast, want 0", got)
	}
}

func TestRemoveClient_Idempotent(t *testing.T) {
	b := NewBroadcaster()

	srv, serverConn, clientConn := dialTestWS(t)
	defer srv.Close()
	defer clientConn.Close()
	c := b.AddClient(serverConn, "alice")

	b.RemoveClient(c)
	// A second removal of the same client must be a no-op, not a panic on
	// the already-closed send channel.
	b.RemoveClient(c)

	if got := b.ClientCount(); got != 0 {
		t.Errorf("ClientCount = %d, want 0", got)
	}
}

func TestClientCount(t *testing.T) {
	b := NewBroadcaster()
	if got := b.ClientCount(); got != 0 {
		t.Fatalf("ClientCount = %d for empty broadcaster, want 0", got)
	}

	srv, serverConn, clientConn := dialTestWS(t)
	defer srv.Close()
	defer clientConn.Close()
	c := b.AddClient(serverConn, "alice")

	if got := b.ClientCount(); got != 1 {
		t.Errorf("ClientCount = %d, want 1", got)
	}
	b.RemoveClient(c)
	if got := b.ClientCount(); got != 0 {
		t.Errorf("ClientCount = %d after remove, want 0", got)
	}
}
