package domain

import "time"

// Category is the closed set of menu categories an item can be 86'd from.
type Category string

const (
	CategoryFood     Category = "food"
	CategoryCocktail Category = "cocktail"
	CategoryWine     Category = "wine"
	CategoryBeer     Category = "beer"
	CategorySpirit   Category = "spirit"
)

// Categories lists every valid Category in display order.
var Categories = []Category{CategoryFood, CategoryCocktail, CategoryWine, CategoryBeer, CategorySpirit}

// Valid reports whether c belongs to the closed category set.
func (c Category) Valid() bool {
	for _, known := range Categories {
		if c == known {
			return true
		}
	}
	return false
}

// EightySixItem is a menu item currently marked unavailable.
type EightySixItem struct {
	ID              string     `json:"id"`
	Name            string     `json:"name"`
	Category        Category   `json:"category" enum:"food,cocktail,wine,beer,spirit"`
	AddedBy         string     `json:"addedBy"`
	AddedAt         time.Time  `json:"addedAt" format:"date-time"`
	Reason          string     `json:"reason,omitempty"`
	EstimatedReturn *time.Time `json:"estimatedReturn,omitempty" format:"date-time"`
}

type TaskCategory string

const (
	TaskCleaning  TaskCategory = "cleaning"
	TaskPrep      TaskCategory = "prep"
	TaskInventory TaskCategory = "inventory"
	TaskSafety    TaskCategory = "safety"
	TaskCustomer  TaskCategory = "customer"
)

type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

// ChecklistTask is one line of a shift checklist.
type ChecklistTask struct {
	ID            string       `json:"id" yaml:"id"`
	Task          string       `json:"task" yaml:"task"`
	Category      TaskCategory `json:"category" yaml:"category" enum:"cleaning,prep,inventory,safety,customer"`
	Priority      Priority     `json:"priority" yaml:"priority" enum:"high,medium,low"`
	EstimatedTime int          `json:"estimatedTime" yaml:"estimated_time"`
	Dependencies  []string     `json:"dependencies,omitempty" yaml:"dependencies"`
	CompletedBy   string       `json:"completedBy,omitempty" yaml:"-"`
	CompletedAt   *time.Time   `json:"completedAt,omitempty" yaml:"-" format:"date-time"`
	Notes         string       `json:"notes,omitempty" yaml:"notes"`
}

// Completed reports whether someone has signed the task off.
func (t ChecklistTask) Completed() bool {
	return t.CompletedBy != ""
}

type ChecklistType string

const (
	ChecklistOpening  ChecklistType = "opening"
	ChecklistMidShift ChecklistType = "mid-shift"
	ChecklistClosing  ChecklistType = "closing"
	ChecklistDaily    ChecklistType = "daily"
	ChecklistWeekly   ChecklistType = "weekly"
)

// TimeWindow is an HH:MM window during which a checklist is relevant.
type TimeWindow struct {
	Start string `json:"start" yaml:"start"`
	End   string `json:"end" yaml:"end"`
}

type Checklist struct {
	ID             string          `json:"id" yaml:"id"`
	Name           string          `json:"name" yaml:"name"`
	Type           ChecklistType   `json:"type" yaml:"type" enum:"opening,mid-shift,closing,daily,weekly"`
	ActiveTime     *TimeWindow     `json:"activeTime,omitempty" yaml:"active_time"`
	Items          []ChecklistTask `json:"items" yaml:"items"`
	CompletionRate float64         `json:"completionRate" yaml:"-"`
}

// TaskCompletion is the persisted sign-off of one checklist task.
type TaskCompletion struct {
	ChecklistID string    `json:"checklist_id"`
	TaskID      string    `json:"task_id"`
	CompletedBy string    `json:"completed_by"`
	CompletedAt time.Time `json:"completed_at" format:"date-time"`
}

type Unit string

const (
	UnitOunce      Unit = "oz"
	UnitMilliliter Unit = "ml"
	UnitDash       Unit = "dash"
	UnitSplash     Unit = "splash"
	UnitPiece      Unit = "piece"
)

type Ingredient struct {
	ID          string  `json:"id,omitempty" yaml:"id"`
	Name        string  `json:"name,omitempty" yaml:"name"`
	Quantity    float64 `json:"quantity" yaml:"quantity"`
	Unit        Unit    `json:"unit" yaml:"unit" enum:"oz,ml,dash,splash,piece"`
	CostPerUnit float64 `json:"costPerUnit" yaml:"cost_per_unit"`
}

type Cocktail struct {
	ID                string       `json:"id,omitempty" yaml:"id"`
	Name              string       `json:"name,omitempty" yaml:"name"`
	Ingredients       []Ingredient `json:"ingredients" yaml:"ingredients"`
	Glassware         string       `json:"glassware,omitempty" yaml:"glassware"`
	Garnish           string       `json:"garnish,omitempty" yaml:"garnish"`
	GarnishCost       float64      `json:"garnishCost,omitempty" yaml:"garnish_cost"`
	MenuPrice         float64      `json:"menuPrice" yaml:"menu_price"`
	TargetCostPercent float64      `json:"targetCostPercent,omitempty" yaml:"target_cost_percent"`
}

// Command is one entry of the staff command palette.
type Command struct {
	ID       string   `json:"id" yaml:"id"`
	Label    string   `json:"label" yaml:"label"`
	Category string   `json:"category" yaml:"category"`
	Shortcut string   `json:"shortcut,omitempty" yaml:"shortcut"`
	Keywords []string `json:"keywords,omitempty" yaml:"keywords"`
	Roles    []string `json:"roles,omitempty" yaml:"roles"`
}

type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	Channel    string `json:"channel,omitempty"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}

// ChannelMessage is a payload the hub broadcast, stored verbatim.
type ChannelMessage struct {
	ID      int64  `json:"id"`
	Channel string `json:"channel"`
	Event   string `json:"event"`
	Payload string `json:"payload_json"`
	TS      string `json:"ts" format:"date-time"`
}

type APIKey struct {
	ID        string `json:"id"`
	ActorID   string `json:"actor_id"`
	Name      string `json:"name,omitempty"`
	Roles     string `json:"roles,omitempty"`
	KeyHash   string `json:"key_hash"`
	CreatedAt string `json:"created_at" format:"date-time"`
}
