// Package broker fans hub broadcasts out to other service instances over NATS.
package broker

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
)

const (
	SubjectPrefix = "table1837"

	HeaderOrigin = "T1837-Origin"
	HeaderEvent  = "T1837-Event"
)

type Message struct {
	Channel string
	Event   string
	Data    []byte
	Origin  string
}

type Handler func(ctx context.Context, msg Message)

type Publisher interface {
	Publish(ctx context.Context, channel, event string, data []byte) error
}

type Subscriber interface {
	Subscribe(ctx context.Context, handler Handler) error
}

func Subject(channel string) string {
	return SubjectPrefix + "." + channel
}

// NATS publishes and subscribes on table1837.<channel>. Every message carries
// the publishing instance's origin so an instance ignores its own traffic.
type NATS struct {
	conn   *nats.Conn
	origin string
	logger *slog.Logger
	subs   []*nats.Subscription
}

func NewNATS(url string, logger *slog.Logger) (*NATS, error) {
	conn, err := nats.Connect(url, nats.Name("table1837"))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &NATS{conn: conn, origin: uuid.NewString(), logger: logger}, nil
}

func (n *NATS) Origin() string { return n.origin }

func (n *NATS) Publish(ctx context.Context, channel, event string, data []byte) error {
	msg := newMsg(n.origin, channel, event, data)
	if err := n.conn.PublishMsg(msg); err != nil {
		return fmt.Errorf("publish %s: %w", msg.Subject, err)
	}
	return nil
}

func (n *NATS) Subscribe(ctx context.Context, handler Handler) error {
	sub, err := n.conn.Subscribe(SubjectPrefix+".>", func(m *nats.Msg) {
		msg, ok := decode(n.origin, m)
		if !ok {
			return
		}
		handler(ctx, msg)
	})
	if err != nil {
		return fmt.Errorf("subscribe %s.>: %w", SubjectPrefix, err)
	}
	n.subs = append(n.subs, sub)
	return nil
}

func (n *NATS) Close() error {
	for _, sub := range n.subs {
		if err := sub.Unsubscribe(); err != nil {
			n.logger.Warn("nats unsubscribe failed", "subject", sub.Subject, "err", err)
		}
	}
	n.conn.Close()
	return nil
}

func newMsg(origin, channel, event string, data []byte) *nats.Msg {
	msg := nats.NewMsg(Subject(channel))
	msg.Header.Set(HeaderOrigin, origin)
	msg.Header.Set(HeaderEvent, event)
	msg.Data = data
	return msg
}

// decode drops messages this instance published itself and ones without an
// event header.
func decode(self string, m *nats.Msg) (Message, bool) {
	origin := m.Header.Get(HeaderOrigin)
	if origin == self {
		return Message{}, false
	}
	event := m.Header.Get(HeaderEvent)
	channel := strings.TrimPrefix(m.Subject, SubjectPrefix+".")
	if event == "" || channel == "" || channel == m.Subject {
		return Message{}, false
	}
	return Message{Channel: channel, Event: event, Data: m.Data, Origin: origin}, true
}
