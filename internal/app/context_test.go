package app

import (
	"context"
	"os"
	"testing"
	"time"

	"table1837/internal/config"
)

func TestOpenUsesWorkspaceConfig(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(config.Path(dir), []byte(config.GenerateDefault("annex")), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	a, err := Open(context.Background(), Options{Workspace: dir, Realtime: true})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer a.Close()
	if got := a.Config.Get().Venue.ID; got != "annex" {
		t.Fatalf("expected venue annex, got %q", got)
	}
	if a.Hub == nil || a.Engine.Hub == nil {
		t.Fatalf("expected hub wired into engine")
	}
	if a.Broker != nil {
		t.Fatalf("no broker expected without a nats url")
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Relay(ctx) }()
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("relay: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("relay did not stop")
	}
}

func TestOpenWithoutConfigFile(t *testing.T) {
	a, err := Open(context.Background(), Options{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer a.Close()
	if a.Hub != nil {
		t.Fatalf("hub built without realtime")
	}
	if len(a.Config.Get().Checklists) == 0 {
		t.Fatalf("expected default checklists")
	}
}
