package domain

// Candidate is a result already retrieved by the upstream vector search.
// Similarity is the upstream score mapped into [0,1].
type Candidate struct {
	ProductID   string  `json:"product_id"`
	Title       string  `json:"title"`
	Description string  `json:"description,omitempty"`
	Color       string  `json:"color,omitempty"`
	Category    string  `json:"category,omitempty"`
	ImagePath   string  `json:"image_path,omitempty"`
	Similarity  float64 `json:"similarity"`
	Distance    float64 `json:"distance,omitempty"`
}

// QueryContext carries the query attributes the ranking engine scores against.
type QueryContext struct {
	Text     string
	Color    string
	Category string
}

// ScoreBreakdown exposes the individual ranking components for debugging.
type ScoreBreakdown struct {
	VectorScore   float64 `json:"vector_score"`
	ColorScore    float64 `json:"color_score"`
	CategoryScore float64 `json:"category_score"`
	TextScore     float64 `json:"text_score"`
	FinalScore    float64 `json:"final_score"`
}

// RankedResult is a candidate with its final ranking score. DebugScores is
// populated only on debug requests.
type RankedResult struct {
	Candidate
	FinalScore  float64         `json:"final_score"`
	DebugScores *ScoreBreakdown `json:"debug_scores,omitempty"`
}
