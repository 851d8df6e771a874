package domain

import (
	"fmt"
	"time"
)

// Variant is a closed set of search algorithm configurations under comparison.
type Variant string

const (
	// VariantSearchV1 is the control: upstream vector similarity only.
	VariantSearchV1 Variant = "search_v1"
	// VariantSearchV2 is the enhanced path: vector + weighted re-ranking.
	VariantSearchV2 Variant = "search_v2"
)

// Variants lists every known variant, control first.
var Variants = []Variant{VariantSearchV1, VariantSearchV2}

func (v Variant) Valid() bool {
	switch v {
	case VariantSearchV1, VariantSearchV2:
		return true
	}
	return false
}

func (v Variant) String() string {
	return string(v)
}

// ParseVariant converts a wire string into a Variant, rejecting anything
// outside the closed set.
func ParseVariant(s string) (Variant, error) {
	v := Variant(s)
	if !v.Valid() {
		return "", fmt.Errorf("unknown variant: %q", s)
	}
	return v, nil
}

// UserAssignment records which variant a user was bucketed into.
// Immutable for a given (experiment, epoch, user) once written.
type UserAssignment struct {
	UserID       string    `json:"user_id"`
	ExperimentID string    `json:"experiment_id"`
	Variant      Variant   `json:"variant"`
	AssignedAt   time.Time `json:"assigned_at"`
}
