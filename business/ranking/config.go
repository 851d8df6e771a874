package ranking

import (
	"fmt"
	"math"
)

// Weights is the configurable blend for the enhanced variant. The documented
// defaults favour vector similarity, with equal color/category boosts and a
// small text component.
type Weights struct {
	Vector   float64
	Color    float64
	Category float64
	Text     float64
}

const (
	defaultWVector   = 0.5
	defaultWColor    = 0.2
	defaultWCategory = 0.2
	defaultWText     = 0.1
)

func DefaultWeights() Weights {
	return Weights{
		Vector:   defaultWVector,
		Color:    defaultWColor,
		Category: defaultWCategory,
		Text:     defaultWText,
	}
}

func (w Weights) Validate() error {
	if w.Vector < 0 || w.Color < 0 || w.Category < 0 || w.Text < 0 {
		return fmt.Errorf("ranking weights must be non-negative")
	}
	sum := w.Vector + w.Color + w.Category + w.Text
	if math.Abs(sum-1.0) > 1e-9 {
		return fmt.Errorf("ranking weights must sum to 1.0, got %v", sum)
	}
	return nil
}
