package remote

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/qrave1/PairCall/internal/application/config"
	"github.com/qrave1/PairCall/internal/domain/events"
	"github.com/qrave1/PairCall/internal/domain/pairing"
	"github.com/qrave1/PairCall/internal/domain/signaling"
	"github.com/qrave1/PairCall/internal/infra/adapters/memory"
	"github.com/qrave1/PairCall/internal/infra/ports/http/handlers"
	"github.com/qrave1/PairCall/internal/infra/ports/http/server"
	"github.com/qrave1/PairCall/internal/usecase"
)

var (
	testOffer  = signaling.SessionDescription{Type: signaling.SDPTypeOffer, SDP: "v=0 offer"}
	testAnswer = signaling.SessionDescription{Type: signaling.SDPTypeAnswer, SDP: "v=0 answer"}
)

func newTestServer(t *testing.T) string {
	t.Helper()

	srv := httptest.NewServer(newTestHandler())
	t.Cleanup(srv.Close)

	return srv.URL
}

func newTestHandler() http.Handler {
	cfg := &config.Config{
		Debug:       true,
		STUNServers: []string{"stun:stun.example.org:3478"},
	}

	rendezvousUsecase := usecase.NewRendezvousUsecase(memory.NewRendezvousStore(), nil)

	return server.New(
		cfg,
		handlers.NewRendezvousHandler(rendezvousUsecase),
		handlers.NewIceHandler(cfg),
		handlers.NewWatchHandler(cfg, rendezvousUsecase, memory.NewWSConnectionRepository()),
	)
}

func newTestClient(t *testing.T, url, identity string) *Client {
	t.Helper()

	c, err := New(url, identity)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	return c
}

func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}

	t.Fatalf("timed out waiting for %s", what)
}

func TestNew_RejectsScheme(t *testing.T) {
	if _, err := New("ftp://example.org", "alice"); err == nil {
		t.Fatalf("New with ftp scheme err=nil, want error")
	}
}

func TestClient_RoomLifecycle(t *testing.T) {
	url := newTestServer(t)
	ctx := context.Background()

	alice := newTestClient(t, url, "alice")
	bob := newTestClient(t, url, "bob")

	if _, err := alice.ReadRoom(ctx, "abc123"); !errors.Is(err, signaling.ErrRoomNotFound) {
		t.Fatalf("ReadRoom err=%v, want %v", err, signaling.ErrRoomNotFound)
	}

	if err := alice.CreateRoom(ctx, "abc123", testOffer, "ignored"); err != nil {
		t.Fatalf("CreateRoom: %v", err)
	}

	if err := bob.CreateRoom(ctx, "abc123", testOffer, ""); !errors.Is(err, signaling.ErrRoomConflict) {
		t.Fatalf("second CreateRoom err=%v, want %v", err, signaling.ErrRoomConflict)
	}

	if err := bob.SetAnswer(ctx, "abc123", testAnswer, ""); err != nil {
		t.Fatalf("SetAnswer: %v", err)
	}

	if err := alice.SetAnswer(ctx, "abc123", testAnswer, ""); !errors.Is(err, signaling.ErrAnswerAlreadySet) {
		t.Fatalf("second SetAnswer err=%v, want %v", err, signaling.ErrAnswerAlreadySet)
	}

	room, err := bob.ReadRoom(ctx, "abc123")
	if err != nil {
		t.Fatalf("ReadRoom: %v", err)
	}

	if room.Phase() != signaling.PhaseAnswered {
		t.Fatalf("phase=%v, want %v", room.Phase(), signaling.PhaseAnswered)
	}
	if room.CreatorRef != "alice" {
		t.Fatalf("CreatorRef=%q, want %q", room.CreatorRef, "alice")
	}
}

func TestClient_InvalidInput(t *testing.T) {
	url := newTestServer(t)
	ctx := context.Background()
	c := newTestClient(t, url, "alice")

	if _, err := c.ReadRoom(ctx, "a.b"); !errors.Is(err, signaling.ErrInvalidKey) {
		t.Fatalf("ReadRoom err=%v, want %v", err, signaling.ErrInvalidKey)
	}

	bad := signaling.SessionDescription{Type: signaling.SDPTypeAnswer, SDP: "v=0"}
	if err := c.CreateRoom(ctx, "abc123", bad, ""); !errors.Is(err, usecase.ErrInvalidDescription) {
		t.Fatalf("CreateRoom err=%v, want %v", err, usecase.ErrInvalidDescription)
	}

	if _, err := c.AppendMessage(ctx, "abc123", "   ", ""); !errors.Is(err, usecase.ErrInvalidMessage) {
		t.Fatalf("AppendMessage err=%v, want %v", err, usecase.ErrInvalidMessage)
	}
}

func TestClient_Unauthorized(t *testing.T) {
	url := newTestServer(t)
	c := newTestClient(t, url, "")

	_, err := c.PairingKey(context.Background())

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("err=%v, want *APIError", err)
	}
	if apiErr.Status != http.StatusUnauthorized {
		t.Fatalf("Status=%d, want %d", apiErr.Status, http.StatusUnauthorized)
	}
}

func TestClient_PairingKeyAndICE(t *testing.T) {
	url := newTestServer(t)
	ctx := context.Background()
	c := newTestClient(t, url, "alice")

	key, err := c.PairingKey(ctx)
	if err != nil {
		t.Fatalf("PairingKey: %v", err)
	}
	if len(key) != pairing.KeyLength || !pairing.Valid(key) {
		t.Fatalf("key=%q, want %d valid characters", key, pairing.KeyLength)
	}

	servers, err := c.ICEServers(ctx)
	if err != nil {
		t.Fatalf("ICEServers: %v", err)
	}
	if len(servers) != 1 || len(servers[0].URLs) != 1 || servers[0].URLs[0] != "stun:stun.example.org:3478" {
		t.Fatalf("servers=%+v, want the configured stun server only", servers)
	}
}

func TestClient_WatchCandidates(t *testing.T) {
	url := newTestServer(t)
	ctx := context.Background()
	c := newTestClient(t, url, "alice")

	publish := func(origin, cand string) {
		t.Helper()

		err := c.PublishCandidate(ctx, "abc123", origin, signaling.RoleInitiator, signaling.Candidate{Candidate: cand})
		if err != nil {
			t.Fatalf("PublishCandidate: %v", err)
		}
	}

	publish("o1", "candidate:1 1 udp 1 10.0.0.1 5000 typ host")
	publish("o2", "candidate:2 1 udp 1 10.0.0.2 5000 typ host")

	var (
		mu   sync.Mutex
		seen []signaling.CandidateRecord
	)

	sub, err := c.WatchCandidates(ctx, "abc123", func(rec signaling.CandidateRecord) {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, rec)
	})
	if err != nil {
		t.Fatalf("WatchCandidates: %v", err)
	}
	defer sub.Cancel()

	publish("o1", "candidate:3 1 udp 1 10.0.0.3 5000 typ host")

	eventually(t, "three candidates", func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(seen) == 3
	})

	mu.Lock()
	defer mu.Unlock()

	wantOrigins := []string{"o1", "o2", "o1"}
	for i, rec := range seen {
		if rec.Origin != wantOrigins[i] {
			t.Fatalf("seen[%d].Origin=%q, want %q", i, rec.Origin, wantOrigins[i])
		}
		if i > 0 && rec.Seq <= seen[i-1].Seq {
			t.Fatalf("seen[%d].Seq=%d not after %d", i, rec.Seq, seen[i-1].Seq)
		}
	}
}

func TestClient_WatchRoomAndMessages(t *testing.T) {
	url := newTestServer(t)
	ctx := context.Background()

	alice := newTestClient(t, url, "alice")
	bob := newTestClient(t, url, "bob")

	var (
		mu       sync.Mutex
		rooms    []signaling.Room
		snapshot []signaling.MessageRecord
	)

	roomSub, err := alice.WatchRoom(ctx, "abc123", func(room signaling.Room) {
		mu.Lock()
		defer mu.Unlock()
		rooms = append(rooms, room)
	})
	if err != nil {
		t.Fatalf("WatchRoom: %v", err)
	}
	defer roomSub.Cancel()

	msgSub, err := bob.WatchMessages(ctx, "abc123", func(msgs []signaling.MessageRecord) {
		mu.Lock()
		defer mu.Unlock()
		snapshot = msgs
	})
	if err != nil {
		t.Fatalf("WatchMessages: %v", err)
	}
	defer msgSub.Cancel()

	if err = alice.CreateRoom(ctx, "abc123", testOffer, ""); err != nil {
		t.Fatalf("CreateRoom: %v", err)
	}
	if err = bob.SetAnswer(ctx, "abc123", testAnswer, ""); err != nil {
		t.Fatalf("SetAnswer: %v", err)
	}

	eventually(t, "answered room", func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(rooms) > 0 && rooms[len(rooms)-1].Phase() == signaling.PhaseAnswered
	})

	if _, err = alice.AppendMessage(ctx, "abc123", "hi", ""); err != nil {
		t.Fatalf("AppendMessage: %v", err)
	}
	if _, err = bob.AppendMessage(ctx, "abc123", "hello", ""); err != nil {
		t.Fatalf("AppendMessage: %v", err)
	}

	eventually(t, "two messages", func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(snapshot) == 2
	})

	mu.Lock()
	defer mu.Unlock()

	if snapshot[0].Text != "hi" || snapshot[0].SenderRef != "alice" {
		t.Fatalf("snapshot[0]=%+v, want hi from alice", snapshot[0])
	}
	if snapshot[1].Text != "hello" || snapshot[1].SenderRef != "bob" {
		t.Fatalf("snapshot[1]=%+v, want hello from bob", snapshot[1])
	}
}

func TestClient_WatchUnknownTopic(t *testing.T) {
	url := newTestServer(t)
	c := newTestClient(t, url, "alice")

	_, err := c.watch(context.Background(), "abc123", "nope", func(events.Message) {})

	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("err=%v, want *APIError", err)
	}
	if apiErr.Status != http.StatusNotFound {
		t.Fatalf("Status=%d, want %d", apiErr.Status, http.StatusNotFound)
	}
}

// killableServer помнит все принятые соединения: захваченные websocket-ом srv.Close не закрывает
type killableServer struct {
	*httptest.Server

	mu    sync.Mutex
	conns []net.Conn
}

func newKillableServer(t *testing.T) *killableServer {
	t.Helper()

	ks := &killableServer{Server: httptest.NewUnstartedServer(newTestHandler())}
	ks.Config.ConnState = func(conn net.Conn, state http.ConnState) {
		if state == http.StateNew {
			ks.mu.Lock()
			ks.conns = append(ks.conns, conn)
			ks.mu.Unlock()
		}
	}
	ks.Start()
	t.Cleanup(ks.kill)

	return ks
}

func (ks *killableServer) kill() {
	ks.Close()

	ks.mu.Lock()
	defer ks.mu.Unlock()

	for _, conn := range ks.conns {
		_ = conn.Close()
	}
	ks.conns = nil
}

func TestClient_WatchGivesUpAfterOutage(t *testing.T) {
	ks := newKillableServer(t)

	c, err := New(ks.URL, "alice", WithReconnect(2, time.Millisecond))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	sub, err := c.WatchRoom(context.Background(), "abc123", func(signaling.Room) {})
	if err != nil {
		t.Fatalf("WatchRoom: %v", err)
	}
	defer sub.Cancel()

	ks.kill()

	select {
	case <-sub.Done():
	case <-time.After(3 * time.Second):
		t.Fatalf("subscription still alive after server went away")
	}

	if sub.Err() == nil {
		t.Fatalf("Err()=nil after reconnects were exhausted, want error")
	}
}

func TestClient_WatchCancelIsNotFailure(t *testing.T) {
	url := newTestServer(t)
	c := newTestClient(t, url, "alice")

	sub, err := c.WatchMessages(context.Background(), "abc123", func([]signaling.MessageRecord) {})
	if err != nil {
		t.Fatalf("WatchMessages: %v", err)
	}

	sub.Cancel()

	select {
	case <-sub.Done():
	case <-time.After(3 * time.Second):
		t.Fatalf("Done not closed after Cancel")
	}

	if err := sub.Err(); err != nil {
		t.Fatalf("Err()=%v after Cancel, want nil", err)
	}
}
