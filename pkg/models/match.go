package models

// MatchType classifies how a dedupe candidate was found.
type MatchType string

const (
	MatchTypeExactEmail   MatchType = "exact_email"
	MatchTypeExactPhone   MatchType = "exact_phone"
	MatchTypeFuzzyName    MatchType = "fuzzy_name"
	MatchTypeExactAddress MatchType = "exact_address"
	MatchTypeExactPostal  MatchType = "exact_postal"
	MatchTypeFuzzyAddress MatchType = "fuzzy_address"
)

// SuggestedAction is the dedupe recommendation for the submitted record.
type SuggestedAction string

const (
	SuggestedActionMergeWith SuggestedAction = "merge_with"
	SuggestedActionReview    SuggestedAction = "review"
	SuggestedActionCreateNew SuggestedAction = "create_new"
)

// Match is a transient dedupe candidate. It is never persisted.
type Match struct {
	ID              string         `json:"id"`
	Data            map[string]any `json:"data"`
	SimilarityScore float64        `json:"similarity_score"`
	MatchType       MatchType      `json:"match_type"`
}

// DedupeResult is returned by both the customer and the address matcher.
type DedupeResult struct {
	Matches         []Match         `json:"matches"`
	SuggestedAction SuggestedAction `json:"suggested_action"`
	CanonicalID     *string         `json:"canonical_id"`
}
