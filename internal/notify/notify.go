// Package notify delivers audit events to the webhooks configured for the
// venue. Newly 86'd items carry the staff notification payload.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"table1837/internal/config"
	"table1837/internal/domain"
	"table1837/internal/eightysix"
	"table1837/internal/events"
	"table1837/internal/metrics"
	"table1837/internal/repo"
)

const (
	defaultInterval = 2 * time.Second
	defaultTimeout  = 5 * time.Second
	defaultBatch    = 100
)

// Notifier polls the event log and posts new events to each enabled hook.
// A hook's cursor only advances past events it accepted.
type Notifier struct {
	Repo     repo.Repo
	Config   *config.Holder
	Metrics  *metrics.Metrics
	Logger   *slog.Logger
	Interval time.Duration

	client  *http.Client
	mu      sync.Mutex
	cursors map[string]int64
}

func New(r repo.Repo, holder *config.Holder, m *metrics.Metrics, logger *slog.Logger) *Notifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Notifier{
		Repo:     r,
		Config:   holder,
		Metrics:  m,
		Logger:   logger.With("component", "notify"),
		Interval: defaultInterval,
		client:   &http.Client{Timeout: defaultTimeout},
		cursors:  make(map[string]int64),
	}
}

// Run dispatches on every tick until ctx is done.
func (n *Notifier) Run(ctx context.Context) error {
	interval := n.Interval
	if interval <= 0 {
		interval = defaultInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		n.DispatchAll(ctx)
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

func (n *Notifier) DispatchAll(ctx context.Context) {
	cfg := n.Config.Get()
	if cfg == nil {
		return
	}
	for _, hook := range cfg.Webhooks {
		if hook.Enabled != nil && !*hook.Enabled {
			continue
		}
		if strings.TrimSpace(hook.URL) == "" {
			continue
		}
		n.dispatch(ctx, hook)
	}
}

func (n *Notifier) dispatch(ctx context.Context, hook config.WebhookConfig) {
	cursor, err := n.cursorFor(ctx, hook.URL)
	if err != nil {
		n.Logger.Error("init cursor failed", "url", hook.URL, "err", err)
		return
	}
	evts, err := n.Repo.EventsAfter(ctx, defaultBatch, cursor)
	if err != nil {
		n.Logger.Error("fetch events failed", "err", err)
		return
	}
	filter := newEventFilter(hook.Events)
	for _, evt := range evts {
		if !filter.match(evt.Type) {
			n.setCursor(hook.URL, evt.ID)
			continue
		}
		if err := n.post(ctx, hook, evt); err != nil {
			n.observe("failed")
			n.Logger.Warn("delivery failed", "url", hook.URL, "event", evt.ID, "err", err)
			return
		}
		n.observe("delivered")
		n.setCursor(hook.URL, evt.ID)
	}
}

// cursorFor starts an unseen hook at the head of the log.
func (n *Notifier) cursorFor(ctx context.Context, url string) (int64, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if cur, ok := n.cursors[url]; ok {
		return cur, nil
	}
	cur, err := n.Repo.LatestEventID(ctx)
	if err != nil {
		return 0, err
	}
	n.cursors[url] = cur
	return cur, nil
}

func (n *Notifier) setCursor(url string, id int64) {
	n.mu.Lock()
	n.cursors[url] = id
	n.mu.Unlock()
}

func (n *Notifier) observe(outcome string) {
	if n.Metrics != nil {
		n.Metrics.Webhooks.WithLabelValues(outcome).Inc()
	}
}

// Delivery is the JSON body posted to a webhook.
type Delivery struct {
	ID           int64                   `json:"id"`
	Type         string                  `json:"type"`
	Channel      string                  `json:"channel,omitempty"`
	EntityKind   string                  `json:"entity_kind"`
	EntityID     string                  `json:"entity_id,omitempty"`
	ActorID      string                  `json:"actor_id"`
	TS           string                  `json:"ts"`
	Payload      json.RawMessage         `json:"payload"`
	Notification *eightysix.Notification `json:"notification,omitempty"`
}

func newDelivery(evt domain.Event) Delivery {
	payload := json.RawMessage("{}")
	if evt.Payload != "" && json.Valid([]byte(evt.Payload)) {
		payload = json.RawMessage(evt.Payload)
	}
	d := Delivery{
		ID:         evt.ID,
		Type:       evt.Type,
		Channel:    evt.Channel,
		EntityKind: evt.EntityKind,
		EntityID:   evt.EntityID,
		ActorID:    evt.ActorID,
		TS:         evt.TS,
		Payload:    payload,
	}
	if evt.Type == events.ItemAdded {
		var item struct {
			Name    string `json:"name"`
			AddedBy string `json:"added_by"`
		}
		if err := json.Unmarshal(payload, &item); err == nil {
			note := eightysix.NewNotification(domain.EightySixItem{ID: evt.EntityID, Name: item.Name, AddedBy: item.AddedBy})
			d.Notification = &note
		}
	}
	return d
}

func (n *Notifier) post(ctx context.Context, hook config.WebhookConfig, evt domain.Event) error {
	data, err := json.Marshal(newDelivery(evt))
	if err != nil {
		return err
	}
	client := n.client
	if hook.TimeoutSeconds > 0 {
		if timeout := time.Duration(hook.TimeoutSeconds) * time.Second; timeout != client.Timeout {
			client = &http.Client{Timeout: timeout}
		}
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, hook.URL, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Table1837-Event", evt.Type)
	req.Header.Set("X-Table1837-Delivery", fmt.Sprintf("%d", evt.ID))
	if strings.TrimSpace(hook.Secret) != "" {
		req.Header.Set("X-Table1837-Secret", hook.Secret)
	}
	res, err := client.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return fmt.Errorf("status %d: %s", res.StatusCode, strings.TrimSpace(string(body)))
	}
	return nil
}

type eventFilter struct {
	all bool
	set map[string]struct{}
}

func newEventFilter(types []string) eventFilter {
	set := make(map[string]struct{}, len(types))
	for _, t := range types {
		if key := strings.TrimSpace(t); key != "" {
			set[key] = struct{}{}
		}
	}
	if len(set) == 0 {
		return eventFilter{all: true}
	}
	return eventFilter{set: set}
}

func (f eventFilter) match(evtType string) bool {
	if f.all {
		return true
	}
	_, ok := f.set[evtType]
	return ok
}
