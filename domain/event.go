package domain

import (
	"fmt"
	"time"

	"gorm.io/datatypes"
)

// ClickSource is the closed set of surfaces a click can originate from.
type ClickSource string

const (
	SourceSearchResults   ClickSource = "search_results"
	SourceRecommendations ClickSource = "recommendations"
	SourceFeatured        ClickSource = "featured"
	SourceOther           ClickSource = "other"
)

func (s ClickSource) Valid() bool {
	switch s {
	case SourceSearchResults, SourceRecommendations, SourceFeatured, SourceOther:
		return true
	}
	return false
}

func ParseClickSource(s string) (ClickSource, error) {
	if s == "" {
		return SourceSearchResults, nil
	}
	cs := ClickSource(s)
	if !cs.Valid() {
		return "", fmt.Errorf("unknown click source: %q", s)
	}
	return cs, nil
}

// Impression is one recorded instance of a result set being shown to a user.
// Append-only; never mutated.
type Impression struct {
	ID             string            `gorm:"column:id;primaryKey" json:"id"`
	UserID         string            `gorm:"column:user_id;not null" json:"user_id"`
	Query          string            `gorm:"column:query;not null" json:"query"`
	Variant        Variant           `gorm:"column:variant;not null" json:"variant"`
	ResultsCount   int               `gorm:"column:results_count" json:"results_count"`
	ResponseTimeMs float64           `gorm:"column:response_time_ms" json:"response_time_ms"`
	SessionID      string            `gorm:"column:session_id" json:"session_id,omitempty"`
	Metadata       datatypes.JSONMap `gorm:"column:metadata;type:jsonb" json:"metadata,omitempty"`
	Timestamp      time.Time         `gorm:"column:timestamp;not null" json:"timestamp"`
}

// ClickEvent is one recorded click on a result. Rank is the zero-based
// position in the list at click time. Append-only; never mutated.
type ClickEvent struct {
	ID             string            `gorm:"column:id;primaryKey" json:"id"`
	UserID         string            `gorm:"column:user_id;not null" json:"user_id"`
	ProductID      string            `gorm:"column:product_id;not null" json:"product_id"`
	Rank           int               `gorm:"column:rank" json:"rank"`
	SearchQuery    string            `gorm:"column:search_query" json:"search_query"`
	Variant        Variant           `gorm:"column:variant;not null" json:"variant"`
	ResponseTimeMs float64           `gorm:"column:response_time_ms" json:"response_time_ms"`
	Source         ClickSource       `gorm:"column:source;not null" json:"source"`
	SessionID      string            `gorm:"column:session_id" json:"session_id,omitempty"`
	Metadata       datatypes.JSONMap `gorm:"column:metadata;type:jsonb" json:"metadata,omitempty"`
	Timestamp      time.Time         `gorm:"column:timestamp;not null" json:"timestamp"`
}
