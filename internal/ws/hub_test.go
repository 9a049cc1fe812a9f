package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/tableflow/api/internal/auth"
)

func startHub(t *testing.T) (*Hub, context.CancelFunc) {
	t.Helper()
	hub := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)
	t.Cleanup(cancel)
	return hub, cancel
}

// collect subscribes to tenantID and funnels delivered events into a channel.
func collect(hub *Hub, tenantID uuid.UUID) (*Subscription, <-chan Event) {
	ch := make(chan Event, 64)
	sub := hub.Subscribe(tenantID, func(ev Event) { ch <- ev })
	return sub, ch
}

func next(t *testing.T, ch <-chan Event) Event {
	t.Helper()
	select {
	case ev := <-ch:
		return ev
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
		return Event{}
	}
}

func expectNone(t *testing.T, ch <-chan Event) {
	t.Helper()
	select {
	case ev := <-ch:
		t.Fatalf("unexpected event: %+v", ev)
	case <-time.After(50 * time.Millisecond):
	}
}

func waitDone(t *testing.T, sub *Subscription) {
	t.Helper()
	select {
	case <-sub.Done():
	case <-time.After(time.Second):
		t.Fatal("subscription did not end")
	}
}

func TestSubscribe_FirstEventIsSyncRequired(t *testing.T) {
	hub, _ := startHub(t)
	tenantID := uuid.New()

	_, ch := collect(hub, tenantID)
	ev := next(t, ch)
	if ev.Type != TypeSyncRequired || ev.Seq != 0 {
		t.Errorf("first event = %+v, want sync.required at seq 0", ev)
	}

	hub.Broadcast(tenantID, Event{Type: "orders.insert"})
	if ev := next(t, ch); ev.Type != "orders.insert" || ev.Seq != 1 {
		t.Errorf("event = %+v, want orders.insert at seq 1", ev)
	}
}

func TestBroadcast_TenantIsolation(t *testing.T) {
	hub, _ := startHub(t)
	tenantA, tenantB := uuid.New(), uuid.New()

	_, chA := collect(hub, tenantA)
	_, chB := collect(hub, tenantB)
	next(t, chA)
	next(t, chB)

	hub.Broadcast(tenantA, Event{Type: "orders.update"})

	if ev := next(t, chA); ev.Type != "orders.update" {
		t.Errorf("tenant A got %+v", ev)
	}
	expectNone(t, chB)
	if hub.Seq(tenantB) != 0 {
		t.Errorf("tenant B seq = %d, want 0", hub.Seq(tenantB))
	}
}

func TestBroadcast_SeqIsMonotonicAcrossEmptyRoom(t *testing.T) {
	hub, _ := startHub(t)
	tenantID := uuid.New()

	sub, ch := collect(hub, tenantID)
	next(t, ch)
	hub.Broadcast(tenantID, Event{Type: "a"})
	hub.Broadcast(tenantID, Event{Type: "b"})
	if ev := next(t, ch); ev.Seq != 1 {
		t.Errorf("seq = %d, want 1", ev.Seq)
	}
	if ev := next(t, ch); ev.Seq != 2 {
		t.Errorf("seq = %d, want 2", ev.Seq)
	}

	sub.Close()
	waitDone(t, sub)

	// Nobody listening, but the room still advances.
	hub.Broadcast(tenantID, Event{Type: "c"})

	_, ch2 := collect(hub, tenantID)
	ev := next(t, ch2)
	if ev.Type != TypeSyncRequired || ev.Seq != 3 {
		t.Errorf("first event after reconnect = %+v, want sync.required at seq 3", ev)
	}
	hub.Broadcast(tenantID, Event{Type: "d"})
	if ev := next(t, ch2); ev.Seq != 4 {
		t.Errorf("seq = %d, want 4", ev.Seq)
	}
}

func TestSubscribe_SyncSeqCoversEarlierBroadcasts(t *testing.T) {
	hub, _ := startHub(t)
	tenantID := uuid.New()

	var seq uint64
	for round := 0; round < 5; round++ {
		for i := 0; i < 20; i++ {
			hub.Broadcast(tenantID, Event{Type: "orders.update"})
		}
		seq += 20

		sub, ch := collect(hub, tenantID)
		if ev := next(t, ch); ev.Type != TypeSyncRequired || ev.Seq != seq {
			t.Fatalf("round %d: first event = %+v, want sync.required at seq %d", round, ev, seq)
		}
		expectNone(t, ch)

		hub.Broadcast(tenantID, Event{Type: "orders.insert"})
		seq++
		if ev := next(t, ch); ev.Seq != seq {
			t.Fatalf("round %d: seq = %d, want %d", round, ev.Seq, seq)
		}
		sub.Close()
		waitDone(t, sub)
	}
}

func TestBroadcastAll_ReachesEveryRoom(t *testing.T) {
	hub, _ := startHub(t)
	tenantA, tenantB := uuid.New(), uuid.New()

	_, chA := collect(hub, tenantA)
	_, chB := collect(hub, tenantB)
	next(t, chA)
	next(t, chB)

	hub.Broadcast(tenantA, Event{Type: "orders.insert"})
	next(t, chA)

	hub.BroadcastAll(Event{Type: TypeSyncRequired})

	if ev := next(t, chA); ev.Type != TypeSyncRequired || ev.Seq != 2 {
		t.Errorf("tenant A got %+v, want sync.required at seq 2", ev)
	}
	if ev := next(t, chB); ev.Type != TypeSyncRequired || ev.Seq != 1 {
		t.Errorf("tenant B got %+v, want sync.required at seq 1", ev)
	}
}

func TestSubscription_CloseIsIdempotent(t *testing.T) {
	hub, _ := startHub(t)
	tenantID := uuid.New()

	sub, ch := collect(hub, tenantID)
	next(t, ch)

	sub.Close()
	sub.Close()
	waitDone(t, sub)

	if sub.Dropped() {
		t.Error("closed subscription should not report dropped")
	}
	hub.Broadcast(tenantID, Event{Type: "orders.update"})
	expectNone(t, ch)
}

func TestSubscription_SlowSubscriberIsDropped(t *testing.T) {
	hub, _ := startHub(t)
	tenantID := uuid.New()

	release := make(chan struct{})
	defer close(release)
	sub := hub.Subscribe(tenantID, func(Event) { <-release })

	// The pump is stuck on the first event, so the buffer fills up.
	for i := 0; i < subscriptionBuffer+2; i++ {
		hub.Broadcast(tenantID, Event{Type: "orders.update"})
	}

	waitDone(t, sub)
	if !sub.Dropped() {
		t.Error("expected subscription to be dropped as stale")
	}
	if n := hub.Subscribers(tenantID); n != 0 {
		t.Errorf("subscribers = %d, want 0", n)
	}
}

func TestHub_StopEndsSubscriptions(t *testing.T) {
	hub, cancel := startHub(t)

	sub, ch := collect(hub, uuid.New())
	next(t, ch)

	cancel()
	waitDone(t, sub)
	if sub.Dropped() {
		t.Error("hub shutdown should not report dropped")
	}

	// Closing and broadcasting after shutdown must not block.
	sub.Close()
	hub.Broadcast(uuid.New(), Event{Type: "orders.update"})

	late := hub.Subscribe(uuid.New(), func(Event) {})
	waitDone(t, late)
}

func TestEvent_JSON(t *testing.T) {
	ev := Event{ID: 42, Seq: 7, Type: "orders.update", Payload: json.RawMessage(`{"status":"ready"}`)}
	data, err := json.Marshal(ev)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	// Snowflake ids are strings on the wire so JS clients keep every digit.
	want := `{"id":"42","seq":7,"type":"orders.update","payload":{"status":"ready"}}`
	if string(data) != want {
		t.Errorf("json = %s, want %s", data, want)
	}
}

func newWSServer(t *testing.T, hub *Hub, secret string) *httptest.Server {
	t.Helper()
	r := chi.NewRouter()
	r.Get("/ws/tenants/{tid}", func(w http.ResponseWriter, r *http.Request) {
		ServeWS(hub, secret, w, r)
	})
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func wsURL(srv *httptest.Server, tenantID uuid.UUID, token string) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/tenants/" + tenantID.String() + "?token=" + token
}

func TestServeWS_StreamsTenantEvents(t *testing.T) {
	const secret = "test-secret"
	hub, _ := startHub(t)
	srv := newWSServer(t, hub, secret)

	tenantID := uuid.New()
	token, _ := auth.GenerateToken(secret, uuid.New(), tenantID, "kitchen")

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv, tenantID, token), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))

	var ev Event
	if err := conn.ReadJSON(&ev); err != nil {
		t.Fatalf("read: %v", err)
	}
	if ev.Type != TypeSyncRequired {
		t.Fatalf("first frame type = %q, want %q", ev.Type, TypeSyncRequired)
	}

	hub.Broadcast(tenantID, Event{Type: "orders.insert", Payload: json.RawMessage(`{"id":"x"}`)})
	if err := conn.ReadJSON(&ev); err != nil {
		t.Fatalf("read: %v", err)
	}
	if ev.Type != "orders.insert" || ev.Seq != 1 {
		t.Errorf("event = %+v, want orders.insert at seq 1", ev)
	}
}

func TestServeWS_Rejections(t *testing.T) {
	const secret = "test-secret"
	hub, _ := startHub(t)
	srv := newWSServer(t, hub, secret)

	tenantID := uuid.New()
	otherTenant, _ := auth.GenerateToken(secret, uuid.New(), uuid.New(), "admin")

	tests := []struct {
		name  string
		token string
		want  int
	}{
		{"missing token", "", http.StatusUnauthorized},
		{"bad token", "nope", http.StatusUnauthorized},
		{"other tenant", otherTenant, http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, resp, err := websocket.DefaultDialer.Dial(wsURL(srv, tenantID, tt.token), nil)
			if err == nil {
				t.Fatal("expected dial to fail")
			}
			if resp == nil || resp.StatusCode != tt.want {
				t.Errorf("status = %v, want %d", resp, tt.want)
			}
		})
	}
}
