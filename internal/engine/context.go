package engine

import (
	"time"

	"table1837/internal/engine/auth"
	"table1837/internal/hours"
)

// ServiceContext is what a staff device shows in its header: the venue, the
// current shift and what the signed-in staff member may do.
type ServiceContext struct {
	VenueID      string            `json:"venue_id"`
	VenueName    string            `json:"venue_name"`
	ServerTime   time.Time         `json:"server_time" format:"date-time"`
	Hours        hours.Context     `json:"hours"`
	Principal    auth.Principal    `json:"principal"`
	Capabilities []auth.Capability `json:"capabilities"`
}

func (e Engine) Context(p auth.Principal) (ServiceContext, error) {
	cfg, err := e.cfg()
	if err != nil {
		return ServiceContext{}, err
	}
	now := e.now()
	caps := auth.Service{Config: cfg}.Capabilities(p)
	if caps == nil {
		caps = []auth.Capability{}
	}
	if p.Roles == nil {
		p.Roles = []string{}
	}
	return ServiceContext{
		VenueID:      cfg.Venue.ID,
		VenueName:    cfg.Venue.Name,
		ServerTime:   now,
		Hours:        cfg.Hours.At(now),
		Principal:    p,
		Capabilities: caps,
	}, nil
}
