package pourcost

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"table1837/internal/domain"
)

func TestToOunces(t *testing.T) {
	assert.Equal(t, 2.0, ToOunces(2, domain.UnitOunce))
	assert.InDelta(t, 1.01442, ToOunces(30, domain.UnitMilliliter), 1e-9)
	assert.Equal(t, 1.0/32, ToOunces(3, domain.UnitDash))
	assert.Equal(t, 0.25, ToOunces(4, domain.UnitSplash))
	assert.Zero(t, ToOunces(1, domain.UnitPiece))
	assert.Equal(t, 1.5, ToOunces(1.5, "jigger"))
}

func TestCalculateScenario(t *testing.T) {
	b, err := Calculate(domain.Cocktail{
		Ingredients: []domain.Ingredient{{Quantity: 2, Unit: domain.UnitOunce, CostPerUnit: 5}},
		GarnishCost: 0.5,
		MenuPrice:   14,
	})
	require.NoError(t, err)
	assert.InDelta(t, 10.5, b.Cost, 1e-9)
	assert.InDelta(t, 3.5, b.Profit, 1e-9)
	assert.InDelta(t, 75.0, b.CostPercent, 1e-9)
	assert.InDelta(t, 25.0, b.Margin, 1e-9)
	assert.Equal(t, StatusGood, b.Status)
}

func TestCalculateRejectsZeroPrice(t *testing.T) {
	_, err := Calculate(domain.Cocktail{MenuPrice: 0})
	assert.ErrorIs(t, err, ErrInvalidMenuPrice)
	_, err = Calculate(domain.Cocktail{MenuPrice: -3})
	assert.ErrorIs(t, err, ErrInvalidMenuPrice)
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, StatusGood, StatusFor(20, 22))
	assert.Equal(t, StatusGood, StatusFor(22, 22))
	assert.Equal(t, StatusWarning, StatusFor(24, 22))
	assert.Equal(t, StatusOver, StatusFor(25, 22))
	assert.Equal(t, StatusGood, StatusFor(90, 0))
}

func TestAverageCostPercent(t *testing.T) {
	cocktails := []domain.Cocktail{
		{Ingredients: []domain.Ingredient{{Quantity: 2, Unit: domain.UnitOunce, CostPerUnit: 1}}, MenuPrice: 10},
		{Ingredients: []domain.Ingredient{{Quantity: 1, Unit: domain.UnitOunce, CostPerUnit: 3}}, MenuPrice: 10},
		{MenuPrice: 0},
	}
	assert.InDelta(t, 25.0, AverageCostPercent(cocktails), 1e-9)
	assert.Zero(t, AverageCostPercent(nil))
}
