// Package eightysix holds the 86-list sync protocol: the wire messages, the
// pure reducer that applies them and the client-side item store.
package eightysix

import (
	"encoding/json"
	"errors"
	"fmt"

	"table1837/internal/domain"
)

type MessageType string

const (
	ItemAdded   MessageType = "ITEM_ADDED"
	ItemRemoved MessageType = "ITEM_REMOVED"
	FullSync    MessageType = "FULL_SYNC"

	// Legacy outbound requests from the raw socket variant.
	AddItemRequest    MessageType = "ADD_ITEM"
	RemoveItemRequest MessageType = "REMOVE_ITEM"
)

var (
	ErrMalformedMessage = errors.New("malformed 86-list message")
	ErrUnknownMessage   = errors.New("unknown 86-list message type")
)

// Message is the JSON envelope exchanged on the 86-list channel.
type Message struct {
	Type      MessageType            `json:"type"`
	Item      *domain.EightySixItem  `json:"item,omitempty"`
	ItemID    string                 `json:"itemId,omitempty"`
	Items     []domain.EightySixItem `json:"items,omitempty"`
	RemovedBy string                 `json:"removedBy,omitempty"`
}

func Added(item domain.EightySixItem) Message {
	return Message{Type: ItemAdded, Item: &item}
}

func Removed(itemID string) Message {
	return Message{Type: ItemRemoved, ItemID: itemID}
}

func Sync(items []domain.EightySixItem) Message {
	if items == nil {
		items = []domain.EightySixItem{}
	}
	return Message{Type: FullSync, Items: items}
}

// MarshalJSON keeps "items" on FULL_SYNC even when the list is empty, so a
// receiver can tell a clearing sync from a truncated one.
func (m Message) MarshalJSON() ([]byte, error) {
	type plain Message
	if m.Type != FullSync {
		return json.Marshal(plain(m))
	}
	items := m.Items
	if items == nil {
		items = []domain.EightySixItem{}
	}
	return json.Marshal(struct {
		Type  MessageType            `json:"type"`
		Items []domain.EightySixItem `json:"items"`
	}{Type: m.Type, Items: items})
}

// Decode parses and shape-checks a raw channel payload.
func Decode(data []byte) (Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return Message{}, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}
	if err := msg.check(); err != nil {
		return Message{}, err
	}
	return msg, nil
}

// IsRequest reports whether the payload claims to be a legacy request,
// whether or not it is well formed.
func IsRequest(data []byte) bool {
	var head struct {
		Type MessageType `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return false
	}
	return head.Type == AddItemRequest || head.Type == RemoveItemRequest
}

func (m Message) check() error {
	switch m.Type {
	case ItemAdded:
		if m.Item == nil || m.Item.ID == "" {
			return fmt.Errorf("%w: %s without item id", ErrMalformedMessage, m.Type)
		}
	case AddItemRequest:
		// Ids are server-assigned.
		if m.Item == nil {
			return fmt.Errorf("%w: %s without item", ErrMalformedMessage, m.Type)
		}
	case ItemRemoved, RemoveItemRequest:
		if m.ItemID == "" {
			return fmt.Errorf("%w: %s without itemId", ErrMalformedMessage, m.Type)
		}
	case FullSync:
		for _, it := range m.Items {
			if it.ID == "" {
				return fmt.Errorf("%w: FULL_SYNC item without id", ErrMalformedMessage)
			}
		}
	case "":
		return fmt.Errorf("%w: missing type", ErrMalformedMessage)
	default:
		return fmt.Errorf("%w: %s", ErrUnknownMessage, m.Type)
	}
	return nil
}
