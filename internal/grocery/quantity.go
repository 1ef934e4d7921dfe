package grocery

import (
	"math"

	"github.com/dukerupert/fampulse/internal/model"
)

// Step is the smallest quantity change for unit.
func Step(unit model.QuantityType) float64 {
	switch unit {
	case model.Kgs:
		return 0.25
	case model.Liters, model.Dozens:
		return 0.5
	default:
		return 1
	}
}

// DefaultQuantity pre-fills a new list entry when the item has no purchase
// history.
func DefaultQuantity(unit model.QuantityType) float64 {
	if unit == model.Dozens {
		return 0.5
	}
	return 1
}

// Adjust moves current by dir steps and snaps the result to a whole number
// of steps, never below one step.
func Adjust(unit model.QuantityType, current float64, dir int) float64 {
	step := Step(unit)
	n := math.Round(current/step) + float64(dir)
	if n < 1 {
		n = 1
	}
	return n * step
}
