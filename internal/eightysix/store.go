package eightysix

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"table1837/internal/domain"
)

// Notifier receives the alert raised for every newly added item.
type Notifier interface {
	Notify(Notification)
}

type NotifierFunc func(Notification)

func (f NotifierFunc) Notify(n Notification) { f(n) }

// Store is the client-side 86-list. It only changes in response to channel
// messages, except for optimistic adds.
type Store struct {
	mu         sync.RWMutex
	items      []domain.EightySixItem
	lastUpdate time.Time

	notifier Notifier
	logger   *slog.Logger
	now      func() time.Time
}

// NewStore returns an empty store. A nil notifier means notifications are
// silently skipped.
func NewStore(logger *slog.Logger, notifier Notifier) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		items:    []domain.EightySixItem{},
		notifier: notifier,
		logger:   logger,
		now:      time.Now,
	}
}

// Items returns a copy of the current collection in arrival order.
func (s *Store) Items() []domain.EightySixItem {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.EightySixItem, len(s.items))
	copy(out, s.items)
	return out
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

func (s *Store) LastUpdate() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastUpdate
}

// Apply folds one decoded message into the store and reports whether the
// collection changed.
func (s *Store) Apply(msg Message) bool {
	s.mu.Lock()
	before := len(s.items)
	next := Apply(s.items, msg)
	changed := msg.Type == FullSync || len(next) != before
	s.items = next
	s.lastUpdate = s.now()
	s.mu.Unlock()

	if msg.Type == ItemAdded && changed && s.notifier != nil {
		s.notifier.Notify(NewNotification(*msg.Item))
	}
	return changed
}

// HandleMessage decodes a raw channel payload and applies it. Bad payloads
// are logged and dropped; the caller never sees an error.
func (s *Store) HandleMessage(data []byte) {
	msg, err := Decode(data)
	if err != nil {
		s.logger.Error("failed to parse 86-list message", "error", err)
		return
	}
	s.Apply(msg)
}

// AddOptimistic shows an item before the server confirms it. The temporary
// id is discarded by the server; a later FULL_SYNC reconciles. Nothing is
// rolled back if the server rejects the add.
func (s *Store) AddOptimistic(d Draft, addedBy string) (domain.EightySixItem, error) {
	item, err := NewItem(d, addedBy, s.now())
	if err != nil {
		return domain.EightySixItem{}, err
	}
	item.ID = "tmp-" + uuid.NewString()
	s.Apply(Added(item))
	return item, nil
}
