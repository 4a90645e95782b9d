// Package hub is the server side of the broadcast channels: it accepts
// websocket sessions per channel, broadcasts envelopes verbatim to every
// session of a channel and records each broadcast payload.
package hub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"table1837/internal/broker"
	"table1837/internal/domain"
	"table1837/internal/metrics"
	"table1837/internal/realtime"
)

const (
	sendBuffer   = 32
	writeTimeout = 10 * time.Second
	pingInterval = 30 * time.Second
)

// MessageStore persists broadcast payloads as opaque blobs.
type MessageStore interface {
	SaveChannelMessage(ctx context.Context, msg domain.ChannelMessage) error
}

// SnapshotFunc returns the data of the FULL_SYNC sent to new 86-list sessions.
type SnapshotFunc func(ctx context.Context) (any, error)

// RequestFunc may consume a session's message before it is broadcast
// verbatim. It reports whether it handled the payload.
type RequestFunc func(ctx context.Context, channel string, data json.RawMessage) bool

type Options struct {
	Store    MessageStore
	Snapshot SnapshotFunc
	Requests RequestFunc
	Relay    broker.Publisher
	Metrics  *metrics.Metrics
	Logger   *slog.Logger
	Now      func() time.Time
}

type Hub struct {
	store    MessageStore
	snapshot SnapshotFunc
	requests RequestFunc
	relay    broker.Publisher
	metrics  *metrics.Metrics
	logger   *slog.Logger
	now      func() time.Time
	upgrader websocket.Upgrader

	mu       sync.RWMutex
	channels map[string]map[string]*session
	closed   bool
}

type session struct {
	id      string
	channel string
	conn    *websocket.Conn
	send    chan []byte

	mu     sync.Mutex
	closed bool
	// pending sessions buffer broadcasts in backlog until activate.
	pending bool
	backlog [][]byte
}

func New(opts Options) *Hub {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	m := opts.Metrics
	if m == nil {
		m = metrics.New(nil)
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Hub{
		store:    opts.Store,
		snapshot: opts.Snapshot,
		requests: opts.Requests,
		relay:    opts.Relay,
		metrics:  m,
		logger:   logger,
		now:      now,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		channels: map[string]map[string]*session{},
	}
}

// ServeChannel upgrades the request and runs the session until the peer
// disconnects.
func (h *Hub) ServeChannel(w http.ResponseWriter, r *http.Request, channel string) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("failed to upgrade", "channel", channel, "err", err)
		return
	}
	s := &session{
		id:      uuid.NewString(),
		channel: channel,
		conn:    conn,
		send:    make(chan []byte, sendBuffer),
		pending: channel == realtime.Channel86List && h.snapshot != nil,
	}
	if !h.register(s) {
		_ = conn.Close()
		return
	}
	logger := h.logger.With("channel", channel, "session", s.id)
	logger.Info("session opened")
	go h.writeLoop(s, logger)

	// Broadcasts that race the snapshot are held back until it is queued.
	if s.pending {
		frame, err := h.snapshotFrame(r.Context(), channel)
		if err != nil {
			logger.Error("failed to send full sync", "err", err)
		}
		if !s.activate(frame) {
			h.metrics.Dropped.WithLabelValues("slow_session").Inc()
			logger.Warn("dropping session with full backlog")
			h.unregister(s)
		}
	}

	h.readLoop(r.Context(), s, logger)
	h.unregister(s)
	logger.Info("session closed")
}

// Broadcast delivers an envelope to every local session of channel, records
// it and forwards it to the relay.
func (h *Hub) Broadcast(ctx context.Context, channel, event string, data any) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("encode %s/%s: %w", channel, event, err)
	}
	return h.publish(ctx, channel, event, raw)
}

// Deliver fans a relayed envelope out to local sessions only. The
// originating instance has already recorded it.
func (h *Hub) Deliver(channel, event string, data []byte) {
	if !json.Valid(data) {
		h.metrics.Dropped.WithLabelValues("invalid_json").Inc()
		h.logger.Warn("dropping relayed frame with invalid json", "channel", channel, "event", event)
		return
	}
	h.fanout(channel, event, data)
}

// Sessions reports the number of open sessions on channel.
func (h *Hub) Sessions(channel string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.channels[channel])
}

// Close disconnects every session and refuses new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	var all []*session
	for _, sessions := range h.channels {
		for _, s := range sessions {
			all = append(all, s)
		}
	}
	h.mu.Unlock()
	for _, s := range all {
		s.stop()
	}
}

func (h *Hub) publish(ctx context.Context, channel, event string, raw []byte) error {
	h.fanout(channel, event, raw)
	var errs []error
	if h.store != nil {
		err := h.store.SaveChannelMessage(ctx, domain.ChannelMessage{
			Channel: channel,
			Event:   event,
			Payload: string(raw),
			TS:      h.now().UTC().Format(time.RFC3339Nano),
		})
		if err != nil {
			errs = append(errs, fmt.Errorf("persist %s/%s: %w", channel, event, err))
		}
	}
	if h.relay != nil {
		if err := h.relay.Publish(ctx, channel, event, raw); err != nil {
			errs = append(errs, fmt.Errorf("relay %s/%s: %w", channel, event, err))
		}
	}
	return errors.Join(errs...)
}

func (h *Hub) fanout(channel, event string, raw []byte) {
	frame, err := json.Marshal(realtime.Envelope{Event: event, Channel: channel, Data: raw})
	if err != nil {
		h.logger.Error("failed to encode envelope", "channel", channel, "event", event, "err", err)
		return
	}
	h.mu.RLock()
	targets := make([]*session, 0, len(h.channels[channel]))
	for _, s := range h.channels[channel] {
		targets = append(targets, s)
	}
	h.mu.RUnlock()

	h.metrics.Broadcasts.WithLabelValues(channel, event).Inc()
	for _, s := range targets {
		if !s.enqueue(frame) {
			h.metrics.Dropped.WithLabelValues("slow_session").Inc()
			h.logger.Warn("dropping slow session", "channel", channel, "session", s.id)
			h.unregister(s)
		}
	}
}

func (h *Hub) snapshotFrame(ctx context.Context, channel string) ([]byte, error) {
	data, err := h.snapshot(ctx)
	if err != nil {
		return nil, err
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(realtime.Envelope{Event: realtime.EventListUpdated, Channel: channel, Data: raw})
}

func (h *Hub) readLoop(ctx context.Context, s *session, logger *slog.Logger) {
	for {
		_, p, err := s.conn.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) && !errors.Is(err, websocket.ErrCloseSent) {
				logger.Warn("session read failed", "err", err)
			}
			return
		}
		var env realtime.Envelope
		if err := json.Unmarshal(p, &env); err != nil {
			h.metrics.Dropped.WithLabelValues("malformed").Inc()
			logger.Warn("dropping malformed frame", "err", err)
			continue
		}
		if env.Event != realtime.EventMessage {
			h.metrics.Dropped.WithLabelValues("event").Inc()
			logger.Warn("dropping frame with unsupported event", "event", env.Event)
			continue
		}
		if len(env.Data) == 0 || !json.Valid(env.Data) {
			h.metrics.Dropped.WithLabelValues("invalid_json").Inc()
			logger.Warn("dropping message with invalid json")
			continue
		}
		if h.requests != nil && h.requests(ctx, s.channel, env.Data) {
			continue
		}
		if err := h.publish(ctx, s.channel, realtime.EventMessage, env.Data); err != nil {
			logger.Error("failed to record message", "err", err)
		}
	}
}

func (h *Hub) writeLoop(s *session, logger *slog.Logger) {
	ping := time.NewTicker(pingInterval)
	defer ping.Stop()
	defer s.conn.Close()
	for {
		select {
		case frame, ok := <-s.send:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if !ok {
				_ = s.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := s.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				logger.Debug("write failed", "err", err)
				return
			}
		case <-ping.C:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (h *Hub) register(s *session) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return false
	}
	sessions, ok := h.channels[s.channel]
	if !ok {
		sessions = map[string]*session{}
		h.channels[s.channel] = sessions
	}
	sessions[s.id] = s
	h.metrics.Sessions.WithLabelValues(s.channel).Set(float64(len(sessions)))
	return true
}

func (h *Hub) unregister(s *session) {
	h.mu.Lock()
	if sessions, ok := h.channels[s.channel]; ok {
		if _, ok := sessions[s.id]; ok {
			delete(sessions, s.id)
			h.metrics.Sessions.WithLabelValues(s.channel).Set(float64(len(sessions)))
		}
		if len(sessions) == 0 {
			delete(h.channels, s.channel)
		}
	}
	h.mu.Unlock()
	s.stop()
}

// enqueue reports false when the session's queue is full.
func (s *session) enqueue(frame []byte) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return true
	}
	if s.pending {
		if len(s.backlog) >= sendBuffer-1 {
			return false
		}
		s.backlog = append(s.backlog, frame)
		return true
	}
	select {
	case s.send <- frame:
		return true
	default:
		return false
	}
}

// activate queues first (when non-nil) ahead of the backlog and switches
// the session to direct delivery.
func (s *session) activate(first []byte) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	frames := s.backlog
	if first != nil {
		frames = append([][]byte{first}, frames...)
	}
	s.pending = false
	s.backlog = nil
	if s.closed {
		return true
	}
	for _, frame := range frames {
		select {
		case s.send <- frame:
		default:
			return false
		}
	}
	return true
}

func (s *session) stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.send)
	}
}
