package engine_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"table1837/internal/checklist"
	"table1837/internal/config"
	"table1837/internal/db"
	"table1837/internal/domain"
	"table1837/internal/eightysix"
	"table1837/internal/engine"
	"table1837/internal/engine/auth"
	"table1837/internal/events"
	"table1837/internal/hours"
	"table1837/internal/migrate"
	"table1837/internal/pourcost"
	"table1837/internal/realtime"
	"table1837/internal/repo"
)

type sent struct {
	Channel string
	Event   string
	Data    any
}

type recorder struct {
	mu   sync.Mutex
	sent []sent
}

func (r *recorder) Broadcast(ctx context.Context, channel, event string, data any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, sent{channel, event, data})
	return nil
}

type testEnv struct {
	Engine engine.Engine
	Hub    *recorder
	Ctx    context.Context
}

var (
	bartender = auth.Principal{ActorID: "sam", Name: "Sam", Roles: []string{"Bartender"}}
	server    = auth.Principal{ActorID: "alex", Roles: []string{"Server"}}
	owner     = auth.Principal{ActorID: "jo", Name: "Jo", Roles: []string{"Owner"}}
)

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	dir := t.TempDir()
	conn, err := db.Open(db.Config{Workspace: dir})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	eng := engine.New(conn, config.NewHolder(config.Default()))
	eng.Now = func() time.Time { return time.Date(2024, 1, 15, 7, 30, 0, 0, time.UTC) }
	hub := &recorder{}
	eng.Hub = hub
	return testEnv{Engine: eng, Hub: hub, Ctx: context.Background()}
}

func TestAddItemAssignsServerIDAndBroadcasts(t *testing.T) {
	env := newTestEnv(t)
	item, err := env.Engine.AddItem(env.Ctx, engine.AddItemOptions{
		Draft: eightysix.Draft{Name: "  Oysters ", Category: domain.CategoryFood, Reason: "sold out"},
		Actor: bartender,
	})
	if err != nil {
		t.Fatalf("add item: %v", err)
	}
	if item.Name != "Oysters" || item.AddedBy != "Sam" || len(item.ID) < 10 {
		t.Fatalf("unexpected item: %+v", item)
	}
	if len(env.Hub.sent) != 1 {
		t.Fatalf("expected one broadcast, got %d", len(env.Hub.sent))
	}
	got := env.Hub.sent[0]
	msg, ok := got.Data.(eightysix.Message)
	if got.Channel != realtime.Channel86List || got.Event != realtime.EventItemAdded || !ok || msg.Type != eightysix.ItemAdded || msg.Item.ID != item.ID {
		t.Fatalf("unexpected broadcast: %+v", got)
	}

	items, err := env.Engine.ListItems(env.Ctx)
	if err != nil || len(items) != 1 || items[0].ID != item.ID {
		t.Fatalf("list: %v %+v", err, items)
	}
	evts, err := env.Engine.LatestEvents(env.Ctx, repo.EventFilters{Type: events.ItemAdded})
	if err != nil || len(evts) != 1 || evts[0].EntityID != item.ID || evts[0].Channel != realtime.Channel86List {
		t.Fatalf("events: %v %+v", err, evts)
	}
}

func TestAddItemValidation(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.Engine.AddItem(env.Ctx, engine.AddItemOptions{Draft: eightysix.Draft{Name: "   ", Category: domain.CategoryFood}, Actor: bartender})
	if !errors.Is(err, eightysix.ErrNameRequired) {
		t.Fatalf("expected ErrNameRequired, got %v", err)
	}
	_, err = env.Engine.AddItem(env.Ctx, engine.AddItemOptions{Draft: eightysix.Draft{Name: "Kale", Category: "salad"}, Actor: bartender})
	if !errors.Is(err, eightysix.ErrInvalidCategory) {
		t.Fatalf("expected ErrInvalidCategory, got %v", err)
	}
	_, err = env.Engine.AddItem(env.Ctx, engine.AddItemOptions{Draft: eightysix.Draft{Name: "Kale", Category: domain.CategoryFood}, Actor: server})
	var forbidden auth.ForbiddenError
	if !errors.As(err, &forbidden) || forbidden.Capability != auth.Edit86 {
		t.Fatalf("expected forbidden, got %v", err)
	}
	if len(env.Hub.sent) != 0 {
		t.Fatalf("rejected adds must not broadcast")
	}
}

func TestRemoveItem(t *testing.T) {
	env := newTestEnv(t)
	item, err := env.Engine.AddItem(env.Ctx, engine.AddItemOptions{Draft: eightysix.Draft{Name: "Mezcal", Category: domain.CategorySpirit}, Actor: owner})
	if err != nil {
		t.Fatal(err)
	}
	if err := env.Engine.RemoveItem(env.Ctx, item.ID, bartender); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if err := env.Engine.RemoveItem(env.Ctx, item.ID, bartender); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	last := env.Hub.sent[len(env.Hub.sent)-1]
	msg := last.Data.(eightysix.Message)
	if last.Event != realtime.EventItemRemoved || msg.ItemID != item.ID || msg.RemovedBy != "Sam" {
		t.Fatalf("unexpected broadcast: %+v", last)
	}
	snap, err := env.Engine.FullSync(env.Ctx)
	if err != nil || snap.Type != eightysix.FullSync || len(snap.Items) != 0 {
		t.Fatalf("full sync: %v %+v", err, snap)
	}
}

func TestHandleLegacyRequests(t *testing.T) {
	env := newTestEnv(t)
	handled, err := env.Engine.HandleRequest(env.Ctx, bartender, []byte(`{"type":"ADD_ITEM","item":{"id":"86-1700000000000","name":"Lime","category":"food","addedBy":"spoofed"}}`))
	if !handled || err != nil {
		t.Fatalf("add request: %v %v", handled, err)
	}
	items, _ := env.Engine.ListItems(env.Ctx)
	if len(items) != 1 || items[0].ID == "86-1700000000000" || items[0].AddedBy != "Sam" {
		t.Fatalf("client id or name trusted: %+v", items)
	}
	handled, err = env.Engine.HandleRequest(env.Ctx, bartender, []byte(`{"type":"REMOVE_ITEM","itemId":"`+items[0].ID+`","removedBy":"Sam"}`))
	if !handled || err != nil {
		t.Fatalf("remove request: %v %v", handled, err)
	}
	handled, _ = env.Engine.HandleRequest(env.Ctx, bartender, []byte(`{"note":"hello"}`))
	if handled {
		t.Fatalf("unrelated payloads are not requests")
	}

	handled, err = env.Engine.HandleRequest(env.Ctx, bartender, []byte(`{"type":"ADD_ITEM","item":{"name":"Mint","category":"cocktail"}}`))
	if !handled || err != nil {
		t.Fatalf("add request without id: %v %v", handled, err)
	}
	items, _ = env.Engine.ListItems(env.Ctx)
	if len(items) != 1 || items[0].Name != "Mint" || items[0].ID == "" {
		t.Fatalf("add without id: %+v", items)
	}
	handled, err = env.Engine.HandleRequest(env.Ctx, bartender, []byte(`{"type":"REMOVE_ITEM"}`))
	if !handled || !errors.Is(err, eightysix.ErrMalformedMessage) {
		t.Fatalf("malformed request must be consumed: %v %v", handled, err)
	}
}

func TestToggleTaskGateAndPersistence(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.Engine.ToggleTask(env.Ctx, "opening-1", "o2", bartender)
	if !errors.Is(err, checklist.ErrDependenciesIncomplete) {
		t.Fatalf("expected gate, got %v", err)
	}
	for _, id := range []string{"o1", "o2", "o4"} {
		if _, err := env.Engine.ToggleTask(env.Ctx, "opening-1", id, bartender); err != nil {
			t.Fatalf("toggle %s: %v", id, err)
		}
	}
	cl, err := env.Engine.Checklist(env.Ctx, "opening-1")
	if err != nil {
		t.Fatalf("checklist: %v", err)
	}
	if cl.CompletionRate != 60 {
		t.Fatalf("completion rate = %v", cl.CompletionRate)
	}
	if cl.Items[0].CompletedBy != "Sam" || cl.Items[0].CompletedAt == nil {
		t.Fatalf("completion not persisted: %+v", cl.Items[0])
	}

	// reopening a prerequisite leaves its dependents completed
	cl, err = env.Engine.ToggleTask(env.Ctx, "opening-1", "o1", bartender)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if cl.Items[0].Completed() || !cl.Items[1].Completed() || cl.CompletionRate != 40 {
		t.Fatalf("unexpected state after reopen: %+v", cl)
	}

	if _, err := env.Engine.ToggleTask(env.Ctx, "opening-1", "o1", server); err == nil {
		t.Fatalf("server role must not toggle")
	}
	if _, err := env.Engine.ToggleTask(env.Ctx, "nope", "o1", bartender); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if _, err := env.Engine.ToggleTask(env.Ctx, "opening-1", "zz", bartender); !errors.Is(err, checklist.ErrTaskNotFound) {
		t.Fatalf("expected task not found, got %v", err)
	}

	n, err := env.Engine.ResetChecklists(env.Ctx, "opening-1", owner)
	if err != nil || n != 2 {
		t.Fatalf("reset = %d, %v", n, err)
	}
}

func TestChecklistsByHour(t *testing.T) {
	env := newTestEnv(t)
	all, err := env.Engine.Checklists(env.Ctx, -1)
	if err != nil || len(all) != 2 {
		t.Fatalf("all: %v %d", err, len(all))
	}
	morning, _ := env.Engine.Checklists(env.Ctx, 7)
	if len(morning) != 1 || morning[0].ID != "opening-1" {
		t.Fatalf("morning: %+v", morning)
	}
	evening, _ := env.Engine.Checklists(env.Ctx, 20)
	if len(evening) != 0 {
		t.Fatalf("evening: %+v", evening)
	}
}

func TestPourCostLowMarginAlert(t *testing.T) {
	env := newTestEnv(t)
	res, err := env.Engine.PourCost(env.Ctx, domain.Cocktail{
		ID:          "house-sour",
		Name:        "House Sour",
		Ingredients: []domain.Ingredient{{Quantity: 2, Unit: domain.UnitOunce, CostPerUnit: 5}},
		GarnishCost: 0.5,
		MenuPrice:   14,
	}, owner)
	if err != nil {
		t.Fatalf("pour cost: %v", err)
	}
	if res.Breakdown.Cost != 10.5 || res.Breakdown.Margin != 25 || !res.LowMargin {
		t.Fatalf("unexpected result: %+v", res)
	}
	if len(env.Hub.sent) != 1 || env.Hub.sent[0].Channel != realtime.ChannelAlerts || env.Hub.sent[0].Event != realtime.EventLowMargin {
		t.Fatalf("expected low-margin alert, got %+v", env.Hub.sent)
	}

	ok, err := env.Engine.CocktailPourCost(env.Ctx, "old-fashioned", owner)
	if err != nil || ok.LowMargin {
		t.Fatalf("old fashioned: %v %+v", err, ok)
	}
	if len(env.Hub.sent) != 1 {
		t.Fatalf("healthy margins must not alert")
	}

	if _, err := env.Engine.PourCost(env.Ctx, domain.Cocktail{MenuPrice: 0}, owner); !errors.Is(err, pourcost.ErrInvalidMenuPrice) {
		t.Fatalf("expected invalid price, got %v", err)
	}
	if _, err := env.Engine.PourCost(env.Ctx, domain.Cocktail{MenuPrice: 10}, bartender); err == nil {
		t.Fatalf("bartender must not see costs")
	}
	list, err := env.Engine.Cocktails(env.Ctx, owner)
	if err != nil || len(list.Cocktails) != 2 || list.AverageCostPercent <= 0 {
		t.Fatalf("cocktails: %v %+v", err, list)
	}
}

func TestAPIKeysAndPalette(t *testing.T) {
	env := newTestEnv(t)
	plain, key, err := env.Engine.CreateAPIKey(env.Ctx, "bar-tablet", "bar", []string{"Bartender"}, owner)
	if err != nil {
		t.Fatalf("create key: %v", err)
	}
	stored, err := env.Engine.Repo.GetAPIKeyByHash(env.Ctx, repo.HashAPIKey(plain))
	if err != nil || stored.ID != key.ID || stored.Roles != "Bartender" {
		t.Fatalf("stored key: %v %+v", err, stored)
	}
	if _, _, err := env.Engine.CreateAPIKey(env.Ctx, "x", "", nil, bartender); err == nil {
		t.Fatalf("bartender must not issue keys")
	}
	keys, err := env.Engine.APIKeys(env.Ctx, "bar-tablet", owner)
	if err != nil || len(keys) != 1 || keys[0].KeyHash != "" {
		t.Fatalf("list keys: %v %+v", err, keys)
	}
	if err := env.Engine.RevokeAPIKey(env.Ctx, key.ID, owner); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if err := env.Engine.RevokeAPIKey(env.Ctx, key.ID, owner); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("second revoke: %v", err)
	}
	if _, err := env.Engine.Repo.GetAPIKeyByHash(env.Ctx, repo.HashAPIKey(plain)); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("revoked key still resolves: %v", err)
	}

	cmds, err := env.Engine.Palette(server, "costs")
	if err != nil || len(cmds) != 0 {
		t.Fatalf("server palette: %v %+v", err, cmds)
	}
	cmds, _ = env.Engine.Palette(auth.Principal{Roles: []string{"Bartender", "Manager"}}, "costs")
	if len(cmds) != 1 || cmds[0].ID != "view-costs" {
		t.Fatalf("manager palette: %+v", cmds)
	}
	if !env.Engine.CanEdit([]string{"Kitchen"}) || env.Engine.CanEdit([]string{"Host"}) {
		t.Fatalf("CanEdit roles wrong")
	}
}

func TestServiceContext(t *testing.T) {
	env := newTestEnv(t)
	sc, err := env.Engine.Context(bartender)
	if err != nil {
		t.Fatalf("context: %v", err)
	}
	if sc.Hours.Shift != hours.Morning || sc.Hours.HappyHour || sc.Hours.ServiceOpen {
		t.Fatalf("unexpected hours %+v", sc.Hours)
	}
	if len(sc.Capabilities) != 2 || sc.Capabilities[0] != auth.Edit86 || sc.Capabilities[1] != auth.EditChecklists {
		t.Fatalf("unexpected capabilities %v", sc.Capabilities)
	}
	sc, _ = env.Engine.Context(server)
	if len(sc.Capabilities) != 0 {
		t.Fatalf("server should have no capabilities, got %v", sc.Capabilities)
	}
}
