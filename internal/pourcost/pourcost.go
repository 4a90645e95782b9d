// Package pourcost computes drink cost, profit and margin from a recipe.
package pourcost

import (
	"errors"
	"fmt"

	"table1837/internal/domain"
)

// ErrInvalidMenuPrice is returned for a zero or negative menu price, which
// would otherwise produce non-finite ratios.
var ErrInvalidMenuPrice = errors.New("menu price must be greater than zero")

const mlPerOunce = 0.033814

// ToOunces converts a recipe quantity to fluid ounces. Dashes and splashes
// are fixed amounts regardless of quantity; pieces (garnish) carry no pour.
func ToOunces(quantity float64, unit domain.Unit) float64 {
	switch unit {
	case domain.UnitOunce:
		return quantity
	case domain.UnitMilliliter:
		return quantity * mlPerOunce
	case domain.UnitDash:
		return 1.0 / 32
	case domain.UnitSplash:
		return 0.25
	case domain.UnitPiece:
		return 0
	default:
		return quantity
	}
}

// TotalCost sums ingredient pours at their per-ounce cost plus the garnish.
func TotalCost(c domain.Cocktail) float64 {
	var sum float64
	for _, ing := range c.Ingredients {
		sum += ToOunces(ing.Quantity, ing.Unit) * ing.CostPerUnit
	}
	return sum + c.GarnishCost
}

type Breakdown struct {
	Cost        float64 `json:"cost"`
	Profit      float64 `json:"profit"`
	Margin      float64 `json:"margin"`
	CostPercent float64 `json:"costPercent"`
	Status      Status  `json:"status"`
}

func Calculate(c domain.Cocktail) (Breakdown, error) {
	if c.MenuPrice <= 0 {
		return Breakdown{}, fmt.Errorf("%w: %v", ErrInvalidMenuPrice, c.MenuPrice)
	}
	cost := TotalCost(c)
	profit := c.MenuPrice - cost
	b := Breakdown{
		Cost:        cost,
		Profit:      profit,
		Margin:      profit / c.MenuPrice * 100,
		CostPercent: cost / c.MenuPrice * 100,
	}
	b.Status = StatusFor(b.CostPercent, c.TargetCostPercent)
	return b, nil
}

type Status string

const (
	StatusGood    Status = "good"
	StatusWarning Status = "warning"
	StatusOver    Status = "over"
)

// StatusFor grades a cost percentage against its target, with a 10% band
// above target before it is flagged as over. A zero target is ungraded.
func StatusFor(costPercent, target float64) Status {
	switch {
	case target <= 0 || costPercent <= target:
		return StatusGood
	case costPercent <= target*1.1:
		return StatusWarning
	default:
		return StatusOver
	}
}

// AverageCostPercent averages cost% across cocktails, skipping ones whose
// price makes the ratio undefined.
func AverageCostPercent(cocktails []domain.Cocktail) float64 {
	var sum float64
	n := 0
	for _, c := range cocktails {
		b, err := Calculate(c)
		if err != nil {
			continue
		}
		sum += b.CostPercent
		n++
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}
