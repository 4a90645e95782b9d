package notify_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"table1837/internal/config"
	"table1837/internal/db"
	"table1837/internal/domain"
	"table1837/internal/eightysix"
	"table1837/internal/engine"
	"table1837/internal/engine/auth"
	"table1837/internal/events"
	"table1837/internal/metrics"
	"table1837/internal/migrate"
	"table1837/internal/notify"
)

type hookServer struct {
	mu       sync.Mutex
	fail     int
	received []notify.Delivery
	headers  []http.Header
}

func (h *hookServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.fail > 0 {
		h.fail--
		http.Error(w, "try later", http.StatusServiceUnavailable)
		return
	}
	body, _ := io.ReadAll(r.Body)
	var d notify.Delivery
	if err := json.Unmarshal(body, &d); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	h.received = append(h.received, d)
	h.headers = append(h.headers, r.Header.Clone())
	w.WriteHeader(http.StatusNoContent)
}

func (h *hookServer) deliveries() []notify.Delivery {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]notify.Delivery(nil), h.received...)
}

var bartender = auth.Principal{ActorID: "sam", Name: "Sam", Roles: []string{"Bartender"}}

func setup(t *testing.T, hook *hookServer) (engine.Engine, *notify.Notifier) {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	srv := httptest.NewServer(hook)
	t.Cleanup(srv.Close)

	cfg := config.Default()
	cfg.Webhooks = []config.WebhookConfig{{URL: srv.URL, Events: []string{events.ItemAdded}, Secret: "s3cret"}}
	holder := config.NewHolder(cfg)
	eng := engine.New(conn, holder)
	n := notify.New(eng.Repo, holder, metrics.New(nil), nil)
	// Pins the cursor at the empty log head.
	n.DispatchAll(context.Background())
	return eng, n
}

func addItem(t *testing.T, eng engine.Engine, name string) domain.EightySixItem {
	t.Helper()
	item, err := eng.AddItem(context.Background(), engine.AddItemOptions{
		Draft: eightysix.Draft{Name: name, Category: domain.CategoryFood},
		Actor: bartender,
	})
	if err != nil {
		t.Fatalf("add %s: %v", name, err)
	}
	return item
}

func TestDeliversItemAddedNotification(t *testing.T) {
	hook := &hookServer{}
	eng, n := setup(t, hook)
	ctx := context.Background()

	item := addItem(t, eng, "Oysters")
	if _, err := eng.ResetChecklists(ctx, "", bartender); err != nil {
		t.Fatalf("reset: %v", err)
	}
	n.DispatchAll(ctx)

	got := hook.deliveries()
	if len(got) != 1 {
		t.Fatalf("expected one delivery, got %d", len(got))
	}
	d := got[0]
	if d.Type != events.ItemAdded || d.EntityID != item.ID {
		t.Fatalf("unexpected delivery %+v", d)
	}
	if d.Notification == nil {
		t.Fatalf("expected notification payload")
	}
	if d.Notification.Title != "86 List Update" || d.Notification.Body != "Oysters has been 86'd by Sam" || d.Notification.Tag != "86-update" {
		t.Fatalf("unexpected notification %+v", *d.Notification)
	}
	h := hook.headers[0]
	if h.Get("X-Table1837-Event") != events.ItemAdded || h.Get("X-Table1837-Secret") != "s3cret" || h.Get("X-Table1837-Delivery") == "" {
		t.Fatalf("unexpected headers %v", h)
	}

	n.DispatchAll(ctx)
	if len(hook.deliveries()) != 1 {
		t.Fatalf("event delivered twice")
	}
}

func TestFailedDeliveryIsRetried(t *testing.T) {
	hook := &hookServer{fail: 1}
	eng, n := setup(t, hook)
	ctx := context.Background()

	addItem(t, eng, "Lime")
	addItem(t, eng, "Mint")
	n.DispatchAll(ctx)
	if len(hook.deliveries()) != 0 {
		t.Fatalf("expected no accepted deliveries after failure")
	}
	n.DispatchAll(ctx)
	got := hook.deliveries()
	if len(got) != 2 {
		t.Fatalf("expected both events after retry, got %d", len(got))
	}
	if got[0].Notification.Body != "Lime has been 86'd by Sam" || got[1].Notification.Body != "Mint has been 86'd by Sam" {
		t.Fatalf("unexpected order: %+v %+v", got[0].Notification, got[1].Notification)
	}
}

func TestDisabledHookIsSkipped(t *testing.T) {
	hook := &hookServer{}
	eng, n := setup(t, hook)
	off := false
	cfg := *n.Config.Get()
	cfg.Webhooks = []config.WebhookConfig{{URL: cfg.Webhooks[0].URL, Enabled: &off}}
	n.Config.Set(&cfg)

	addItem(t, eng, "Basil")
	n.DispatchAll(context.Background())
	if len(hook.deliveries()) != 0 {
		t.Fatalf("disabled hook received deliveries")
	}
}
