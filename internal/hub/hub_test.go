package hub

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"table1837/internal/domain"
	"table1837/internal/eightysix"
	"table1837/internal/realtime"
)

type memStore struct {
	mu   sync.Mutex
	msgs []domain.ChannelMessage
}

func (m *memStore) SaveChannelMessage(ctx context.Context, msg domain.ChannelMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.msgs = append(m.msgs, msg)
	return nil
}

func (m *memStore) len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.msgs)
}

type relayRecorder struct {
	mu     sync.Mutex
	events []string
}

func (r *relayRecorder) Publish(ctx context.Context, channel, event string, data []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, channel+"/"+event)
	return nil
}

type recordHandler struct {
	mu      sync.Mutex
	records []slog.Record
}

func (h *recordHandler) Enabled(context.Context, slog.Level) bool { return true }
func (h *recordHandler) WithAttrs([]slog.Attr) slog.Handler      { return h }
func (h *recordHandler) WithGroup(string) slog.Handler           { return h }

func (h *recordHandler) Handle(_ context.Context, r slog.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.records = append(h.records, r.Clone())
	return nil
}

func (h *recordHandler) has(level slog.Level, msg string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, r := range h.records {
		if r.Level == level && r.Message == msg {
			return true
		}
	}
	return false
}

func newTestHub(t *testing.T, opts Options) (*Hub, string) {
	t.Helper()
	h := New(opts)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h.ServeChannel(w, r, strings.TrimPrefix(r.URL.Path, "/ws/"))
	}))
	t.Cleanup(func() {
		h.Close()
		srv.Close()
	})
	return h, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dial(t *testing.T, base, channel string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(base+"/ws/"+channel, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readEnvelope(t *testing.T, conn *websocket.Conn) realtime.Envelope {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var env realtime.Envelope
	require.NoError(t, conn.ReadJSON(&env))
	return env
}

func waitSessions(t *testing.T, h *Hub, channel string, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return h.Sessions(channel) == n }, 2*time.Second, 10*time.Millisecond)
}

func TestNew86SessionReceivesFullSync(t *testing.T) {
	snapshot := func(ctx context.Context) (any, error) {
		return map[string]any{"type": "FULL_SYNC", "items": []any{}}, nil
	}
	_, base := newTestHub(t, Options{Snapshot: snapshot})

	conn := dial(t, base, realtime.Channel86List)
	env := readEnvelope(t, conn)
	assert.Equal(t, realtime.EventListUpdated, env.Event)
	assert.Equal(t, realtime.Channel86List, env.Channel)
	assert.JSONEq(t, `{"type":"FULL_SYNC","items":[]}`, string(env.Data))
}

func TestMessageBroadcastVerbatimAndPersisted(t *testing.T) {
	store := &memStore{}
	relay := &relayRecorder{}
	h, base := newTestHub(t, Options{Store: store, Relay: relay})

	a := dial(t, base, "reservations")
	b := dial(t, base, "reservations")
	other := dial(t, base, "alerts")
	waitSessions(t, h, "reservations", 2)
	waitSessions(t, h, "alerts", 1)

	payload := `{"guest":"Ada","party":4}`
	require.NoError(t, a.WriteMessage(websocket.TextMessage, []byte(`{"event":"message","data":`+payload+`}`)))

	for _, conn := range []*websocket.Conn{a, b} {
		env := readEnvelope(t, conn)
		assert.Equal(t, realtime.EventMessage, env.Event)
		assert.JSONEq(t, payload, string(env.Data))
	}
	require.Eventually(t, func() bool { return store.len() == 1 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, "reservations", store.msgs[0].Channel)
	assert.JSONEq(t, payload, string(store.msgs[0].Payload))

	relay.mu.Lock()
	assert.Equal(t, []string{"reservations/message"}, relay.events)
	relay.mu.Unlock()

	require.NoError(t, other.SetReadDeadline(time.Now().Add(100*time.Millisecond)))
	_, _, err := other.ReadMessage()
	assert.Error(t, err, "other channels receive nothing")
}

func TestUnsupportedEventsAndInvalidJSONDropped(t *testing.T) {
	store := &memStore{}
	h, base := newTestHub(t, Options{Store: store})
	conn := dial(t, base, "alerts")
	waitSessions(t, h, "alerts", 1)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"event":"low-margin","data":{}}`)))
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`not json`)))
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"event":"message"}`)))
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"event":"message","data":{"ok":true}}`)))

	env := readEnvelope(t, conn)
	assert.JSONEq(t, `{"ok":true}`, string(env.Data))
	require.Eventually(t, func() bool { return store.len() == 1 }, 2*time.Second, 10*time.Millisecond)
}

func TestBroadcastAndDeliver(t *testing.T) {
	store := &memStore{}
	h, base := newTestHub(t, Options{Store: store})
	conn := dial(t, base, "alerts")
	waitSessions(t, h, "alerts", 1)

	require.NoError(t, h.Broadcast(context.Background(), "alerts", realtime.EventLowMargin, map[string]float64{"margin": 60}))
	env := readEnvelope(t, conn)
	assert.Equal(t, realtime.EventLowMargin, env.Event)
	assert.JSONEq(t, `{"margin":60}`, string(env.Data))

	h.Deliver("alerts", realtime.EventVIPArrival, []byte(`{"guest":"Grace"}`))
	env = readEnvelope(t, conn)
	assert.Equal(t, realtime.EventVIPArrival, env.Event)
	assert.Equal(t, 1, store.len(), "relayed frames are not persisted again")
}

func TestClientReceivesHubBroadcasts(t *testing.T) {
	h, base := newTestHub(t, Options{})
	client, err := realtime.NewClient(strings.Replace(base, "ws", "http", 1), nil)
	require.NoError(t, err)
	defer client.Close()

	sub, err := client.Subscribe(context.Background(), realtime.ChannelAlerts)
	require.NoError(t, err)
	again, err := client.Subscribe(context.Background(), realtime.ChannelAlerts)
	require.NoError(t, err)
	assert.Same(t, sub, again)

	got := make(chan json.RawMessage, 1)
	client.OnEvent(sub, realtime.EventLowStock, func(data json.RawMessage) { got <- data })
	waitSessions(t, h, realtime.ChannelAlerts, 1)

	require.NoError(t, h.Broadcast(context.Background(), realtime.ChannelAlerts, realtime.EventLowStock, map[string]string{"item": "lime"}))
	select {
	case data := <-got:
		assert.JSONEq(t, `{"item":"lime"}`, string(data))
	case <-time.After(2 * time.Second):
		t.Fatal("no event delivered")
	}

	assert.ErrorIs(t, client.Publish(context.Background(), realtime.ChannelAlerts, realtime.EventLowStock, nil), realtime.ErrServerOnlyPublish)
	require.NoError(t, client.Unsubscribe(sub))
	waitSessions(t, h, realtime.ChannelAlerts, 0)
}

func TestRequestsConsumeMessages(t *testing.T) {
	store := &memStore{}
	var seen []string
	var mu sync.Mutex
	requests := func(ctx context.Context, channel string, data json.RawMessage) bool {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, string(data))
		return strings.Contains(string(data), "ADD_ITEM")
	}
	h, base := newTestHub(t, Options{Store: store, Requests: requests})
	conn := dial(t, base, "reservations")
	waitSessions(t, h, "reservations", 1)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"event":"message","data":{"type":"ADD_ITEM"}}`)))
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"event":"message","data":{"type":"NOTE"}}`)))

	env := readEnvelope(t, conn)
	assert.JSONEq(t, `{"type":"NOTE"}`, string(env.Data))
	mu.Lock()
	assert.Len(t, seen, 2)
	mu.Unlock()
	require.Eventually(t, func() bool { return store.len() == 1 }, 2*time.Second, 10*time.Millisecond)
}

func TestBroadcastDuringSnapshotFollowsFullSync(t *testing.T) {
	var h *Hub
	added := eightysix.Added(domain.EightySixItem{ID: "86-x", Name: "Oysters", Category: domain.CategoryFood, AddedBy: "Sam", AddedAt: time.Now()})
	snapshot := func(ctx context.Context) (any, error) {
		stale := eightysix.Sync(nil)
		assert.NoError(t, h.Broadcast(ctx, realtime.Channel86List, realtime.EventItemAdded, added))
		return stale, nil
	}
	var base string
	h, base = newTestHub(t, Options{Snapshot: snapshot})

	conn := dial(t, base, realtime.Channel86List)
	first := readEnvelope(t, conn)
	second := readEnvelope(t, conn)
	assert.Equal(t, realtime.EventListUpdated, first.Event)
	assert.Equal(t, realtime.EventItemAdded, second.Event)

	store := eightysix.NewStore(nil, nil)
	store.HandleMessage(first.Data)
	store.HandleMessage(second.Data)
	require.Len(t, store.Items(), 1)
	assert.Equal(t, "86-x", store.Items()[0].ID)
}

func TestResubscribeAfterSessionDropped(t *testing.T) {
	h, base := newTestHub(t, Options{})
	client, err := realtime.NewClient(strings.Replace(base, "ws", "http", 1), nil)
	require.NoError(t, err)
	defer client.Close()

	ctx := context.Background()
	sub, err := client.Subscribe(ctx, realtime.ChannelAlerts)
	require.NoError(t, err)
	waitSessions(t, h, realtime.ChannelAlerts, 1)

	h.mu.RLock()
	var dropped *session
	for _, s := range h.channels[realtime.ChannelAlerts] {
		dropped = s
	}
	h.mu.RUnlock()
	h.unregister(dropped)
	select {
	case <-sub.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("subscription did not end")
	}

	again, err := client.Subscribe(ctx, realtime.ChannelAlerts)
	require.NoError(t, err)
	assert.NotSame(t, sub, again)
	got := make(chan json.RawMessage, 1)
	client.OnEvent(again, realtime.EventLowStock, func(data json.RawMessage) { got <- data })
	waitSessions(t, h, realtime.ChannelAlerts, 1)

	require.NoError(t, h.Broadcast(ctx, realtime.ChannelAlerts, realtime.EventLowStock, map[string]string{"item": "mint"}))
	select {
	case data := <-got:
		assert.JSONEq(t, `{"item":"mint"}`, string(data))
	case <-time.After(2 * time.Second):
		t.Fatal("no event after resubscribe")
	}
}

func TestAbruptDisconnectLogsWarning(t *testing.T) {
	logs := &recordHandler{}
	h, base := newTestHub(t, Options{Logger: slog.New(logs)})
	conn := dial(t, base, realtime.ChannelAlerts)
	waitSessions(t, h, realtime.ChannelAlerts, 1)

	require.NoError(t, conn.UnderlyingConn().Close())
	waitSessions(t, h, realtime.ChannelAlerts, 0)
	assert.Eventually(t, func() bool { return logs.has(slog.LevelWarn, "session read failed") }, 2*time.Second, 10*time.Millisecond)
}
