// Package realtime is the subscriber side of the hub's broadcast channels.
//
// A Client holds at most one Subscription per channel. Inbound envelopes are
// dispatched to the handlers bound for their event name on the connection's
// reader goroutine. Publishing is a server-only capability.
package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sync"

	"github.com/gorilla/websocket"
)

// Channel names.
const (
	Channel86List       = "86-list"
	ChannelReservations = "reservations"
	ChannelAlerts       = "alerts"
)

// Event names per channel.
const (
	EventItemAdded   = "item-added"
	EventItemRemoved = "item-removed"
	EventListUpdated = "list-updated"

	EventNewReservation       = "new-reservation"
	EventReservationUpdated   = "reservation-updated"
	EventReservationCancelled = "reservation-cancelled"

	EventLowStock   = "low-stock"
	EventLowMargin  = "low-margin"
	EventVIPArrival = "vip-arrival"

	// EventMessage is the only event a session may send to the hub.
	EventMessage = "message"
)

var ErrServerOnlyPublish = errors.New("publish is a server-only capability")

// Envelope is the frame exchanged on a channel socket.
type Envelope struct {
	Event   string          `json:"event"`
	Channel string          `json:"channel"`
	Data    json.RawMessage `json:"data"`
}

type Handler func(data json.RawMessage)

type Client struct {
	base   *url.URL
	dialer *websocket.Dialer
	logger *slog.Logger
	header http.Header

	mu   sync.Mutex
	subs map[string]*Subscription
}

// NewClient builds a client for the hub at baseURL (http, https, ws or wss).
func NewClient(baseURL string, logger *slog.Logger) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse realtime url: %w", err)
	}
	switch u.Scheme {
	case "http", "ws":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return nil, fmt.Errorf("unsupported realtime url scheme %q", u.Scheme)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		base:   u,
		dialer: websocket.DefaultDialer,
		logger: logger,
		header: http.Header{},
		subs:   map[string]*Subscription{},
	}, nil
}

// SetHeader adds a header, such as credentials, to future subscriptions.
func (c *Client) SetHeader(key, value string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.header.Set(key, value)
}

type Subscription struct {
	client  *Client
	channel string
	conn    *websocket.Conn
	logger  *slog.Logger

	mu       sync.RWMutex
	handlers map[string][]Handler
	closing  bool
	done     chan struct{}
}

func (s *Subscription) Channel() string { return s.channel }

// Done is closed once the subscription's reader goroutine has exited.
func (s *Subscription) Done() <-chan struct{} { return s.done }

// Subscribe opens the channel socket. Subscribing to a channel the client
// already follows returns the existing subscription.
func (c *Client) Subscribe(ctx context.Context, channel string) (*Subscription, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if sub, ok := c.subs[channel]; ok {
		return sub, nil
	}
	u := c.base.JoinPath("ws", channel)
	conn, _, err := c.dialer.DialContext(ctx, u.String(), c.header.Clone())
	if err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", channel, err)
	}
	sub := &Subscription{
		client:   c,
		channel:  channel,
		conn:     conn,
		logger:   c.logger.With("channel", channel),
		handlers: map[string][]Handler{},
		done:     make(chan struct{}),
	}
	c.subs[channel] = sub
	go sub.read()
	return sub, nil
}

// OnEvent binds handler to event on sub.
func (c *Client) OnEvent(sub *Subscription, event string, handler Handler) {
	sub.mu.Lock()
	defer sub.mu.Unlock()
	sub.handlers[event] = append(sub.handlers[event], handler)
}

// Unsubscribe unbinds every handler and releases the connection.
func (c *Client) Unsubscribe(sub *Subscription) error {
	c.forget(sub)
	return sub.close()
}

func (c *Client) forget(sub *Subscription) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.subs[sub.channel] == sub {
		delete(c.subs, sub.channel)
	}
}

// Publish never sends; clients reach the server out of band.
func (c *Client) Publish(ctx context.Context, channel, event string, data any) error {
	return ErrServerOnlyPublish
}

func (c *Client) Close() error {
	c.mu.Lock()
	subs := make([]*Subscription, 0, len(c.subs))
	for _, sub := range c.subs {
		subs = append(subs, sub)
	}
	c.subs = map[string]*Subscription{}
	c.mu.Unlock()

	var errs []error
	for _, sub := range subs {
		if err := sub.close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (s *Subscription) close() error {
	s.mu.Lock()
	if s.closing {
		s.mu.Unlock()
		<-s.done
		return nil
	}
	s.closing = true
	s.handlers = map[string][]Handler{}
	s.mu.Unlock()

	_ = s.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	err := s.conn.Close()
	<-s.done
	return err
}

// read delivers frames until the connection ends. A dead subscription is
// forgotten so the next Subscribe dials again.
func (s *Subscription) read() {
	defer close(s.done)
	defer s.client.forget(s)
	for {
		_, p, err := s.conn.ReadMessage()
		if err != nil {
			s.mu.RLock()
			closing := s.closing
			s.mu.RUnlock()
			if !closing && !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Error("realtime connection lost", "err", err)
			}
			return
		}
		var env Envelope
		if err := json.Unmarshal(p, &env); err != nil {
			s.logger.Warn("dropping malformed frame", "err", err)
			continue
		}
		s.mu.RLock()
		handlers := append([]Handler(nil), s.handlers[env.Event]...)
		s.mu.RUnlock()
		for _, h := range handlers {
			h(env.Data)
		}
	}
}
