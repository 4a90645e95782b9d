package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"table1837/internal/checklist"
	"table1837/internal/domain"
	"table1837/internal/hours"
	"table1837/internal/palette"
)

const (
	FileName = "table1837.yml"

	DefaultLowMarginThreshold = 70.0
)

// Config models table1837.yml.
type Config struct {
	Venue struct {
		ID   string `yaml:"id"`
		Name string `yaml:"name"`
	} `yaml:"venue"`
	Roles struct {
		Edit  []string `yaml:"edit"`
		Admin []string `yaml:"admin"`
	} `yaml:"roles"`
	Hours      hours.Schedule     `yaml:"hours"`
	Checklists []domain.Checklist `yaml:"checklists"`
	Cocktails  []domain.Cocktail  `yaml:"cocktails"`
	Commands   []domain.Command   `yaml:"commands"`
	Alerts     struct {
		LowMarginThreshold float64 `yaml:"low_margin_threshold"`
	} `yaml:"alerts"`
	Webhooks []WebhookConfig `yaml:"webhooks"`
	Realtime struct {
		NATSURL string `yaml:"nats_url"`
	} `yaml:"realtime"`
}

type WebhookConfig struct {
	URL            string   `yaml:"url"`
	Events         []string `yaml:"events"`
	Secret         string   `yaml:"secret"`
	Enabled        *bool    `yaml:"enabled"`
	TimeoutSeconds int      `yaml:"timeout_seconds"`
}

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; create one with t1837 init", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// LoadOptional returns the default config if the file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	data, err := os.ReadFile(Path(workspace))
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Venue.ID) == "" {
		return fmt.Errorf("config.venue.id is required")
	}
	for _, role := range append(append([]string{}, c.Roles.Edit...), c.Roles.Admin...) {
		if strings.TrimSpace(role) == "" {
			return fmt.Errorf("config.roles contains empty role")
		}
	}
	if err := c.Hours.Open.Validate(); err != nil {
		return fmt.Errorf("config.hours.open: %w", err)
	}
	if err := c.Hours.HappyHour.Validate(); err != nil {
		return fmt.Errorf("config.hours.happy_hour: %w", err)
	}
	for shift, w := range c.Hours.Shifts {
		if err := w.Validate(); err != nil {
			return fmt.Errorf("config.hours.shifts.%s: %w", shift, err)
		}
	}

	seen := map[string]bool{}
	for _, cl := range c.Checklists {
		if cl.ID == "" {
			return fmt.Errorf("config.checklists contains a checklist without id")
		}
		if seen[cl.ID] {
			return fmt.Errorf("duplicate checklist id %s", cl.ID)
		}
		seen[cl.ID] = true
		if cl.ActiveTime != nil {
			if err := (hours.Window{Start: cl.ActiveTime.Start, End: cl.ActiveTime.End}).Validate(); err != nil {
				return fmt.Errorf("checklist %s active_time: %w", cl.ID, err)
			}
		}
		if err := checklist.Validate(cl); err != nil {
			return err
		}
	}

	seen = map[string]bool{}
	for _, ct := range c.Cocktails {
		if ct.ID == "" {
			return fmt.Errorf("config.cocktails contains a cocktail without id")
		}
		if seen[ct.ID] {
			return fmt.Errorf("duplicate cocktail id %s", ct.ID)
		}
		seen[ct.ID] = true
		if ct.MenuPrice <= 0 {
			return fmt.Errorf("cocktail %s menu_price must be greater than zero", ct.ID)
		}
	}

	seen = map[string]bool{}
	for _, cmd := range c.Commands {
		if cmd.ID == "" || cmd.Label == "" {
			return fmt.Errorf("config.commands entries need id and label")
		}
		if seen[cmd.ID] {
			return fmt.Errorf("duplicate command id %s", cmd.ID)
		}
		seen[cmd.ID] = true
	}

	if t := c.Alerts.LowMarginThreshold; t < 0 || t > 100 {
		return fmt.Errorf("config.alerts.low_margin_threshold must be within 0..100")
	}
	for i, hook := range c.Webhooks {
		u, err := url.Parse(strings.TrimSpace(hook.URL))
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("config.webhooks[%d].url must be an http(s) url", i)
		}
		if hook.TimeoutSeconds < 0 {
			return fmt.Errorf("config.webhooks[%d].timeout_seconds must not be negative", i)
		}
	}
	return nil
}

// CanEdit reports whether any of roles may change the 86 list and checklists.
func (c *Config) CanEdit(roles []string) bool {
	return anyRole(roles, c.Roles.Edit)
}

// IsAdmin reports whether any of roles may see costs and admin commands.
func (c *Config) IsAdmin(roles []string) bool {
	return anyRole(roles, c.Roles.Admin)
}

func (c *Config) Checklist(id string) (domain.Checklist, bool) {
	for _, cl := range c.Checklists {
		if cl.ID == id {
			return cl, true
		}
	}
	return domain.Checklist{}, false
}

func (c *Config) Cocktail(id string) (domain.Cocktail, bool) {
	for _, ct := range c.Cocktails {
		if ct.ID == id {
			return ct, true
		}
	}
	return domain.Cocktail{}, false
}

func anyRole(have, allowed []string) bool {
	for _, h := range have {
		for _, a := range allowed {
			if strings.EqualFold(strings.TrimSpace(h), a) {
				return true
			}
		}
	}
	return false
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, FileName)
}

// GenerateDefault returns default config YAML.
func GenerateDefault(venueID string) string {
	return fmt.Sprintf(defaultTemplate, venueID)
}

// Default returns the default Config struct.
func Default() *Config {
	cfg, err := FromYAML([]byte(GenerateDefault("table1837")))
	if err != nil {
		panic(fmt.Sprintf("default config invalid: %v", err))
	}
	return cfg
}

// FromYAML parses, fills defaults and validates config from raw YAML bytes.
func FromYAML(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

func (c *Config) applyDefaults() {
	if len(c.Roles.Edit) == 0 {
		c.Roles.Edit = []string{"Manager", "Owner", "Bartender", "Kitchen"}
	}
	if len(c.Roles.Admin) == 0 {
		c.Roles.Admin = []string{"Manager", "Owner"}
	}
	def := hours.DefaultSchedule()
	if c.Hours.Open == (hours.Window{}) {
		c.Hours.Open = def.Open
	}
	if c.Hours.HappyHour.Window == (hours.Window{}) {
		c.Hours.HappyHour = def.HappyHour
	}
	if len(c.Hours.Shifts) == 0 {
		c.Hours.Shifts = def.Shifts
	}
	if len(c.Commands) == 0 {
		c.Commands = palette.Defaults()
	}
	if c.Alerts.LowMarginThreshold == 0 {
		c.Alerts.LowMarginThreshold = DefaultLowMarginThreshold
	}
}

const defaultTemplate = `venue:
  id: %s
  name: Table 1837

roles:
  edit: [Manager, Owner, Bartender, Kitchen]
  admin: [Manager, Owner]

hours:
  open: {start: "11:00", end: "23:00"}
  happy_hour:
    start: "16:00"
    end: "18:00"
    days: [1, 2, 3, 4, 5]

alerts:
  low_margin_threshold: 70

checklists:
  - id: opening-1
    name: Opening Checklist
    type: opening
    active_time: {start: "06:00", end: "11:00"}
    items:
      - {id: o1, task: Unlock doors and disable alarm, category: safety, priority: high, estimated_time: 2}
      - {id: o2, task: Turn on all equipment and check temperatures, category: safety, priority: high, estimated_time: 5, dependencies: [o1]}
      - {id: o3, task: Stock bar with ice and garnishes, category: prep, priority: high, estimated_time: 15, dependencies: [o2]}
      - {id: o4, task: Review 86 list and update specials board, category: customer, priority: medium, estimated_time: 5}
      - {id: o5, task: Polish glassware and arrange bar tools, category: cleaning, priority: medium, estimated_time: 10}
  - id: mid-shift-1
    name: Mid-Shift Tasks
    type: mid-shift
    active_time: {start: "14:00", end: "16:00"}
    items:
      - {id: m1, task: Restock garnishes and napkins, category: prep, priority: medium, estimated_time: 10}
      - {id: m2, task: Update 86 list based on inventory, category: inventory, priority: high, estimated_time: 5}
      - {id: m3, task: Prep Happy Hour specials station, category: prep, priority: high, estimated_time: 15}

cocktails:
  - id: old-fashioned
    name: Old Fashioned
    glassware: rocks
    garnish: orange peel
    garnish_cost: 0.25
    menu_price: 14
    target_cost_percent: 20
    ingredients:
      - {id: bourbon, name: Bourbon, quantity: 2, unit: oz, cost_per_unit: 1.25}
      - {id: demerara, name: Demerara Syrup, quantity: 0.25, unit: oz, cost_per_unit: 0.2}
      - {id: angostura, name: Angostura Bitters, quantity: 2, unit: dash, cost_per_unit: 3.2}
  - id: negroni
    name: Negroni
    glassware: rocks
    garnish: orange wheel
    garnish_cost: 0.2
    menu_price: 13
    target_cost_percent: 22
    ingredients:
      - {id: gin, name: Gin, quantity: 30, unit: ml, cost_per_unit: 1.1}
      - {id: campari, name: Campari, quantity: 30, unit: ml, cost_per_unit: 1.3}
      - {id: vermouth, name: Sweet Vermouth, quantity: 30, unit: ml, cost_per_unit: 0.7}

realtime:
  nats_url: ""

webhooks: []
`
