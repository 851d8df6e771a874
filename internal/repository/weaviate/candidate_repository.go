package weaviate

import (
	"context"
	"fmt"

	"omnisearch/domain"

	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/filters"
	"github.com/weaviate/weaviate-go-client/v5/weaviate/graphql"
	"github.com/weaviate/weaviate/entities/models"
)

// CandidateRepository retrieves product candidates from a Weaviate class via
// nearText vector search. Attribute filters narrow the candidate pool before
// similarity ordering, so color and category constraints are hard filters.
type CandidateRepository struct {
	client    *weaviate.Client
	className string
}

func NewCandidateRepository(client *weaviate.Client, className string) *CandidateRepository {
	return &CandidateRepository{
		client:    client,
		className: className,
	}
}

// Retrieve returns up to topK candidates ordered by vector similarity to the
// query text. Results keep upstream order.
func (r *CandidateRepository) Retrieve(ctx context.Context, query domain.QueryContext, topK int) ([]domain.Candidate, error) {
	nearText := r.client.GraphQL().NearTextArgBuilder().
		WithConcepts([]string{query.Text})

	fields := []graphql.Field{
		{Name: "product_id"},
		{Name: "title"},
		{Name: "description"},
		{Name: "color"},
		{Name: "category"},
		{Name: "image_path"},
		{Name: "_additional", Fields: []graphql.Field{
			{Name: "certainty"},
			{Name: "distance"},
		}},
	}

	builder := r.client.GraphQL().Get().
		WithClassName(r.className).
		WithFields(fields...).
		WithNearText(nearText).
		WithLimit(topK)

	if where := buildAttributeFilter(query); where != nil {
		builder = builder.WithWhere(where)
	}

	result, err := builder.Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to query candidates: %w", err)
	}
	if len(result.Errors) > 0 {
		return nil, fmt.Errorf("candidate query error: %s", result.Errors[0].Message)
	}

	return r.parseCandidates(result), nil
}

// buildAttributeFilter combines the optional color and category constraints.
// Returns nil when the query carries neither.
func buildAttributeFilter(query domain.QueryContext) *filters.WhereBuilder {
	var operands []*filters.WhereBuilder

	if query.Color != "" {
		operands = append(operands, filters.Where().
			WithPath([]string{"color"}).
			WithOperator(filters.Equal).
			WithValueString(query.Color))
	}
	if query.Category != "" {
		operands = append(operands, filters.Where().
			WithPath([]string{"category"}).
			WithOperator(filters.Equal).
			WithValueString(query.Category))
	}

	switch len(operands) {
	case 0:
		return nil
	case 1:
		return operands[0]
	default:
		return filters.Where().
			WithOperator(filters.And).
			WithOperands(operands)
	}
}

func (r *CandidateRepository) parseCandidates(result *models.GraphQLResponse) []domain.Candidate {
	data, ok := result.Data["Get"].(map[string]interface{})
	if !ok {
		return []domain.Candidate{}
	}

	objects, ok := data[r.className].([]interface{})
	if !ok {
		return []domain.Candidate{}
	}

	candidates := make([]domain.Candidate, 0, len(objects))
	for _, obj := range objects {
		m, ok := obj.(map[string]interface{})
		if !ok {
			continue // skip malformed objects
		}

		candidate := domain.Candidate{
			ProductID:   getString(m, "product_id"),
			Title:       getString(m, "title"),
			Description: getString(m, "description"),
			Color:       getString(m, "color"),
			Category:    getString(m, "category"),
			ImagePath:   getString(m, "image_path"),
		}

		if additional, ok := m["_additional"].(map[string]interface{}); ok {
			if certainty, ok := additional["certainty"].(float64); ok {
				candidate.Similarity = certainty
			}
			if distance, ok := additional["distance"].(float64); ok {
				candidate.Distance = distance
			}
		}

		candidates = append(candidates, candidate)
	}

	return candidates
}

func getString(m map[string]interface{}, key string) string {
	if v, ok := m[key].(string); ok {
		return v
	}
	return ""
}
