package engine

import (
	"context"
	"database/sql"
	"fmt"

	"table1837/internal/domain"
	"table1837/internal/engine/auth"
	"table1837/internal/events"
	"table1837/internal/pourcost"
	"table1837/internal/realtime"
	"table1837/internal/repo"
)

type PourCostResult struct {
	Cocktail  domain.Cocktail    `json:"cocktail"`
	Breakdown pourcost.Breakdown `json:"breakdown"`
	LowMargin bool               `json:"lowMargin"`
}

// LowMarginAlert is the payload broadcast on the alerts channel.
type LowMarginAlert struct {
	CocktailID string  `json:"cocktailId,omitempty"`
	Name       string  `json:"name,omitempty"`
	Margin     float64 `json:"margin"`
	Threshold  float64 `json:"threshold"`
	MenuPrice  float64 `json:"menuPrice"`
	Cost       float64 `json:"cost"`
}

// PourCost prices a cocktail and raises a low-margin alert when its margin
// falls below the configured threshold.
func (e Engine) PourCost(ctx context.Context, c domain.Cocktail, actor auth.Principal) (PourCostResult, error) {
	if err := e.require(actor, auth.ViewCosts); err != nil {
		return PourCostResult{}, err
	}
	cfg, err := e.cfg()
	if err != nil {
		return PourCostResult{}, err
	}
	b, err := pourcost.Calculate(c)
	if err != nil {
		return PourCostResult{}, err
	}
	res := PourCostResult{Cocktail: c, Breakdown: b}
	threshold := cfg.Alerts.LowMarginThreshold
	if b.Margin >= threshold {
		return res, nil
	}
	res.LowMargin = true
	alert := LowMarginAlert{
		CocktailID: c.ID,
		Name:       c.Name,
		Margin:     b.Margin,
		Threshold:  threshold,
		MenuPrice:  c.MenuPrice,
		Cost:       b.Cost,
	}
	err = e.inTx(ctx, func(tx *sql.Tx) error {
		_, err := e.Events.Append(ctx, tx, events.LowMarginRaised, realtime.ChannelAlerts, "cocktail", c.ID, actor.ActorID, events.EventPayload{
			"name":      c.Name,
			"margin":    b.Margin,
			"threshold": threshold,
		})
		return err
	})
	if err != nil {
		return PourCostResult{}, err
	}
	e.Metrics.LowMargin.Inc()
	e.broadcast(ctx, realtime.ChannelAlerts, realtime.EventLowMargin, alert)
	return res, nil
}

// CocktailPourCost prices a configured cocktail by id.
func (e Engine) CocktailPourCost(ctx context.Context, id string, actor auth.Principal) (PourCostResult, error) {
	cfg, err := e.cfg()
	if err != nil {
		return PourCostResult{}, err
	}
	c, ok := cfg.Cocktail(id)
	if !ok {
		return PourCostResult{}, fmt.Errorf("cocktail %s: %w", id, repo.ErrNotFound)
	}
	return e.PourCost(ctx, c, actor)
}

type CocktailCost struct {
	domain.Cocktail
	Breakdown pourcost.Breakdown `json:"breakdown"`
}

type CocktailList struct {
	Cocktails          []CocktailCost `json:"cocktails"`
	AverageCostPercent float64        `json:"averageCostPercent"`
}

// Cocktails lists the configured cocktails with their breakdown. It does not
// raise alerts.
func (e Engine) Cocktails(ctx context.Context, actor auth.Principal) (CocktailList, error) {
	if err := e.require(actor, auth.ViewCosts); err != nil {
		return CocktailList{}, err
	}
	cfg, err := e.cfg()
	if err != nil {
		return CocktailList{}, err
	}
	out := CocktailList{Cocktails: []CocktailCost{}, AverageCostPercent: pourcost.AverageCostPercent(cfg.Cocktails)}
	for _, c := range cfg.Cocktails {
		b, err := pourcost.Calculate(c)
		if err != nil {
			return CocktailList{}, fmt.Errorf("cocktail %s: %w", c.ID, err)
		}
		out.Cocktails = append(out.Cocktails, CocktailCost{Cocktail: c, Breakdown: b})
	}
	return out, nil
}
