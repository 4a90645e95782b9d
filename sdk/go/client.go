package table1837sdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a minimal Table 1837 staff API client. BaseURL includes the API
// base path, e.g. http://127.0.0.1:8080/v1.
type Client struct {
	BaseURL     string
	APIKey      string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL: baseURL,
		Timeout: 10 * time.Second,
	}
}

// Item is an 86'd menu item.
type Item struct {
	ID              string     `json:"id"`
	Name            string     `json:"name"`
	Category        string     `json:"category"`
	AddedBy         string     `json:"addedBy"`
	AddedAt         time.Time  `json:"addedAt"`
	Reason          string     `json:"reason,omitempty"`
	EstimatedReturn *time.Time `json:"estimatedReturn,omitempty"`
}

// NewItem is the add form.
type NewItem struct {
	Name            string     `json:"name"`
	Category        string     `json:"category"`
	Reason          string     `json:"reason,omitempty"`
	EstimatedReturn *time.Time `json:"estimatedReturn,omitempty"`
}

type Task struct {
	ID            string     `json:"id"`
	Task          string     `json:"task"`
	Category      string     `json:"category"`
	Priority      string     `json:"priority"`
	EstimatedTime int        `json:"estimatedTime"`
	Dependencies  []string   `json:"dependencies,omitempty"`
	CompletedBy   string     `json:"completedBy,omitempty"`
	CompletedAt   *time.Time `json:"completedAt,omitempty"`
}

type Checklist struct {
	ID             string  `json:"id"`
	Name           string  `json:"name"`
	Type           string  `json:"type"`
	Items          []Task  `json:"items"`
	CompletionRate float64 `json:"completionRate"`
}

// PourCost is a cocktail's cost breakdown.
type PourCost struct {
	Breakdown struct {
		Cost        float64 `json:"cost"`
		Profit      float64 `json:"profit"`
		Margin      float64 `json:"margin"`
		CostPercent float64 `json:"costPercent"`
		Status      string  `json:"status"`
	} `json:"breakdown"`
	LowMargin bool `json:"lowMargin"`
}

type Command struct {
	ID       string   `json:"id"`
	Label    string   `json:"label"`
	Category string   `json:"category"`
	Shortcut string   `json:"shortcut,omitempty"`
	Keywords []string `json:"keywords,omitempty"`
}

// Event represents an audit log entry.
type Event struct {
	ID         int64          `json:"id"`
	TS         string         `json:"ts"`
	Type       string         `json:"type"`
	Channel    string         `json:"channel,omitempty"`
	EntityID   string         `json:"entity_id"`
	EntityKind string         `json:"entity_kind"`
	ActorID    string         `json:"actor_id"`
	Payload    map[string]any `json:"payload"`
}

// PaginatedEvents wraps list responses with cursors.
type PaginatedEvents struct {
	Items      []Event `json:"items"`
	NextCursor string  `json:"next_cursor"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	Body       string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("api error: status=%d code=%s message=%s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// Items returns the current 86 list, oldest first.
func (c *Client) Items(ctx context.Context) ([]Item, error) {
	var resp struct {
		Items []Item `json:"items"`
	}
	err := c.do(ctx, http.MethodGet, "86-list/items", nil, &resp)
	return resp.Items, err
}

// AddItem 86es an item.
func (c *Client) AddItem(ctx context.Context, item NewItem) (Item, error) {
	var resp Item
	err := c.do(ctx, http.MethodPost, "86-list/items", item, &resp)
	return resp, err
}

// RemoveItem puts an item back on the menu.
func (c *Client) RemoveItem(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "86-list/items/"+url.PathEscape(id), nil, nil)
}

// Checklists returns the checklists active at hour, or all when hour < 0.
func (c *Client) Checklists(ctx context.Context, hour int) ([]Checklist, error) {
	var resp struct {
		Checklists []Checklist `json:"checklists"`
	}
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("checklists?hour=%d", hour), nil, &resp)
	return resp.Checklists, err
}

// ToggleTask completes or reopens a checklist task.
func (c *Client) ToggleTask(ctx context.Context, checklistID, taskID string) (Checklist, error) {
	var resp Checklist
	endpoint := fmt.Sprintf("checklists/%s/tasks/%s/toggle", url.PathEscape(checklistID), url.PathEscape(taskID))
	err := c.do(ctx, http.MethodPost, endpoint, nil, &resp)
	return resp, err
}

// CocktailPourCost prices a menu cocktail.
func (c *Client) CocktailPourCost(ctx context.Context, cocktailID string) (PourCost, error) {
	var resp PourCost
	err := c.do(ctx, http.MethodGet, fmt.Sprintf("cocktails/%s/pour-cost", url.PathEscape(cocktailID)), nil, &resp)
	return resp, err
}

// Palette searches the command palette.
func (c *Client) Palette(ctx context.Context, query string) ([]Command, error) {
	var resp struct {
		Commands []Command `json:"commands"`
	}
	err := c.do(ctx, http.MethodGet, "palette?q="+url.QueryEscape(query), nil, &resp)
	return resp.Commands, err
}

// Events returns recent events.
func (c *Client) Events(ctx context.Context, limit int) ([]Event, error) {
	page, err := c.EventsPage(ctx, limit, "")
	return page.Items, err
}

// EventsPage returns a paginated event listing.
func (c *Client) EventsPage(ctx context.Context, limit int, cursor string) (PaginatedEvents, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", fmt.Sprintf("%d", limit))
	}
	if cursor != "" {
		q.Set("cursor", cursor)
	}
	endpoint := "events"
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}
	var resp PaginatedEvents
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	target := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, target, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	switch {
	case c.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	case c.APIKey != "":
		req.Header.Set("X-Api-Key", c.APIKey)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		apiErr := &APIError{StatusCode: resp.StatusCode, Body: string(b)}
		var env struct {
			Error struct {
				Code    string `json:"code"`
				Message string `json:"message"`
			} `json:"error"`
		}
		if json.Unmarshal(b, &env) == nil {
			apiErr.Code = env.Error.Code
			apiErr.Message = env.Error.Message
		}
		return apiErr
	}
	if out != nil && resp.StatusCode != http.StatusNoContent {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
