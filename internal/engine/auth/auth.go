package auth

import (
	"fmt"
	"strings"

	"table1837/internal/config"
)

type Capability string

const (
	Edit86         Capability = "eightysix.edit"
	EditChecklists Capability = "checklist.edit"
	ViewCosts      Capability = "pourcost.view"
	ManageKeys     Capability = "auth.manage"
)

// ForbiddenError indicates a missing capability.
type ForbiddenError struct {
	Capability Capability
}

func (e ForbiddenError) Error() string {
	return fmt.Sprintf("capability %s required", e.Capability)
}

// Principal is the authenticated staff member behind a request.
type Principal struct {
	ActorID string   `json:"actor_id"`
	Name    string   `json:"name,omitempty"`
	Roles   []string `json:"roles"`
}

// DisplayName is what gets recorded as addedBy/completedBy.
func (p Principal) DisplayName() string {
	if strings.TrimSpace(p.Name) != "" {
		return p.Name
	}
	return p.ActorID
}

// PrimaryRole picks the role used for palette filtering: an admin role when
// the principal holds one, otherwise the first role.
func (p Principal) PrimaryRole(cfg *config.Config) string {
	if cfg != nil {
		for _, r := range p.Roles {
			if cfg.IsAdmin([]string{r}) {
				return r
			}
		}
	}
	if len(p.Roles) > 0 {
		return p.Roles[0]
	}
	return ""
}

// Service answers capability checks from the venue role lists.
type Service struct {
	Config *config.Config
}

func (s Service) Can(p Principal, c Capability) bool {
	if s.Config == nil {
		return false
	}
	switch c {
	case Edit86, EditChecklists:
		return s.Config.CanEdit(p.Roles)
	case ViewCosts, ManageKeys:
		return s.Config.IsAdmin(p.Roles)
	default:
		return false
	}
}

func (s Service) Require(p Principal, c Capability) error {
	if !s.Can(p, c) {
		return ForbiddenError{Capability: c}
	}
	return nil
}

// Capabilities lists what p may do, for the context endpoint.
func (s Service) Capabilities(p Principal) []Capability {
	var out []Capability
	for _, c := range []Capability{Edit86, EditChecklists, ViewCosts, ManageKeys} {
		if s.Can(p, c) {
			out = append(out, c)
		}
	}
	return out
}
