package eightysix

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"table1837/internal/domain"
)

var (
	ErrNameRequired    = errors.New("item name is required")
	ErrInvalidCategory = errors.New("invalid item category")
)

// Draft is what a staff member submits from the add form.
type Draft struct {
	Name            string
	Category        domain.Category
	Reason          string
	EstimatedReturn *time.Time
}

func (d Draft) Validate() error {
	if strings.TrimSpace(d.Name) == "" {
		return ErrNameRequired
	}
	if !d.Category.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidCategory, d.Category)
	}
	return nil
}

// NewID returns a collision-resistant item identifier.
func NewID() string {
	return "86-" + uuid.NewString()
}

// NewItem builds a fresh item from a validated draft.
func NewItem(d Draft, addedBy string, now time.Time) (domain.EightySixItem, error) {
	if err := d.Validate(); err != nil {
		return domain.EightySixItem{}, err
	}
	return domain.EightySixItem{
		ID:              NewID(),
		Name:            strings.TrimSpace(d.Name),
		Category:        d.Category,
		AddedBy:         addedBy,
		AddedAt:         now.UTC(),
		Reason:          strings.TrimSpace(d.Reason),
		EstimatedReturn: d.EstimatedReturn,
	}, nil
}

// Notification is the local alert raised when an item is 86'd.
type Notification struct {
	Title string `json:"title"`
	Body  string `json:"body"`
	Tag   string `json:"tag"`
}

const (
	NotificationTitle = "86 List Update"
	NotificationTag   = "86-update"
)

func NewNotification(item domain.EightySixItem) Notification {
	return Notification{
		Title: NotificationTitle,
		Body:  fmt.Sprintf("%s has been 86'd by %s", item.Name, item.AddedBy),
		Tag:   NotificationTag,
	}
}
