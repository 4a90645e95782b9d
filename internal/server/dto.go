package server

import (
	"encoding/json"
	"time"

	"table1837/internal/domain"
)

// Request payloads

type AddItemRequest struct {
	Name            string          `json:"name"`
	Category        domain.Category `json:"category" enum:"food,cocktail,wine,beer,spirit"`
	Reason          string          `json:"reason,omitempty"`
	EstimatedReturn *time.Time      `json:"estimatedReturn,omitempty" format:"date-time"`
}

type ResetChecklistsRequest struct {
	ChecklistID string `json:"checklist_id,omitempty"`
}

type CreateAPIKeyRequest struct {
	ActorID string   `json:"actor_id"`
	Name    string   `json:"name,omitempty"`
	Roles   []string `json:"roles,omitempty"`
}

type DevLoginRequest struct {
	ActorID string   `json:"actor_id"`
	Name    string   `json:"name,omitempty"`
	Roles   []string `json:"roles,omitempty"`
}

// Responses

type HealthResponse struct {
	Status        string `json:"status" example:"ok"`
	SchemaVersion int    `json:"schema_version"`
}

type ItemsResponse struct {
	Items []domain.EightySixItem `json:"items"`
}

type ChecklistsResponse struct {
	Checklists []domain.Checklist `json:"checklists"`
}

type ResetChecklistsResponse struct {
	Cleared int64 `json:"cleared"`
}

type PaletteResponse struct {
	Commands []domain.Command `json:"commands"`
}

type CreateAPIKeyResponse struct {
	ID      string   `json:"id"`
	ActorID string   `json:"actor_id"`
	Name    string   `json:"name,omitempty"`
	Roles   []string `json:"roles"`
	Key     string   `json:"key"`
}

type DevLoginResponse struct {
	Token string `json:"token"`
}

type EventResponse struct {
	ID         int64          `json:"id"`
	TS         string         `json:"ts"`
	Type       string         `json:"type"`
	Channel    string         `json:"channel,omitempty"`
	EntityKind string         `json:"entity_kind"`
	EntityID   string         `json:"entity_id,omitempty"`
	ActorID    string         `json:"actor_id"`
	Payload    map[string]any `json:"payload"`
}

type paginatedEvents struct {
	Items      []EventResponse `json:"items"`
	NextCursor string          `json:"next_cursor,omitempty"`
}

type ChannelMessageResponse struct {
	ID      int64           `json:"id"`
	Channel string          `json:"channel"`
	Event   string          `json:"event"`
	TS      string          `json:"ts"`
	Data    json.RawMessage `json:"data"`
}

type ChannelMessagesResponse struct {
	Messages []ChannelMessageResponse `json:"messages"`
}

func eventResponse(e domain.Event) EventResponse {
	return EventResponse{
		ID:         e.ID,
		TS:         e.TS,
		Type:       e.Type,
		Channel:    e.Channel,
		EntityKind: e.EntityKind,
		EntityID:   e.EntityID,
		ActorID:    e.ActorID,
		Payload:    decodeJSONMap(e.Payload),
	}
}

func channelMessageResponse(m domain.ChannelMessage) ChannelMessageResponse {
	data := json.RawMessage(m.Payload)
	if !json.Valid(data) {
		data = json.RawMessage("null")
	}
	return ChannelMessageResponse{
		ID:      m.ID,
		Channel: m.Channel,
		Event:   m.Event,
		TS:      m.TS,
		Data:    data,
	}
}

func decodeJSONMap(raw string) map[string]any {
	if raw == "" {
		return map[string]any{}
	}
	var out map[string]any
	if err := json.Unmarshal([]byte(raw), &out); err != nil || out == nil {
		return map[string]any{}
	}
	return out
}

func nonNilSlice[T any](in []T) []T {
	if in == nil {
		return []T{}
	}
	return in
}
