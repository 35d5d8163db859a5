// Package dedupe finds existing customers and addresses that match a
// submitted record.
package dedupe

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/Gobusters/ectologger"

	"github.com/guillemso1er/orbitcheck-sub004/pkg/models"
	"github.com/guillemso1er/orbitcheck-sub004/pkg/normalizers"
	"github.com/guillemso1er/orbitcheck-sub004/pkg/similarity"
	"github.com/guillemso1er/orbitcheck-sub004/pkg/tracing"
)

// CustomerStore reads customer candidates
type CustomerStore interface {
	FindByEmail(ctx context.Context, projectID, normalizedEmail string) ([]models.Customer, error)
	FindByPhone(ctx context.Context, projectID, normalizedPhone string) ([]models.Customer, error)
	FindNameCandidates(ctx context.Context, projectID, firstName, lastName string) ([]models.Customer, error)
}

// AddressStore reads address candidates
type AddressStore interface {
	FindByHash(ctx context.Context, projectID, hash string) ([]models.AddressRecord, error)
	FindByPostal(ctx context.Context, projectID, country, postalCode string) ([]models.AddressRecord, error)
	FindLine1Candidates(ctx context.Context, projectID, country, city string) ([]models.AddressRecord, error)
}

// OrderHistory reads prior shipments for the returning customer check
type OrderHistory interface {
	PriorShipments(ctx context.Context, projectID, customerEmail string) ([]models.PriorShipment, error)
}

// Config contains matcher thresholds
type Config struct {
	NameFloor    float64 // minimum trigram score for fuzzy_name (default: 0.85)
	AddressFloor float64 // trigram score a fuzzy line1 must exceed (default: 0.6)
	MaxResults   int     // cap on fuzzy candidates per stage (default: 5)
	Exhaustive   bool    // keep running later stages after an exact hit
}

// DefaultConfig returns default matcher configuration
func DefaultConfig() Config {
	return Config{
		NameFloor:    0.85,
		AddressFloor: 0.6,
		MaxResults:   5,
	}
}

// Matcher implements customer and address dedupe
type Matcher struct {
	customers CustomerStore
	addresses AddressStore
	history   OrderHistory
	logger    ectologger.Logger
	config    Config
}

func NewMatcher(customers CustomerStore, addresses AddressStore, history OrderHistory, config Config, logger ectologger.Logger) *Matcher {
	defaults := DefaultConfig()
	if config.NameFloor <= 0 {
		config.NameFloor = defaults.NameFloor
	}
	if config.AddressFloor <= 0 {
		config.AddressFloor = defaults.AddressFloor
	}
	if config.MaxResults <= 0 {
		config.MaxResults = defaults.MaxResults
	}

	return &Matcher{
		customers: customers,
		addresses: addresses,
		history:   history,
		logger:    logger,
		config:    config,
	}
}

// DedupeCustomer matches by exact email, then exact phone, then fuzzy full name.
func (m *Matcher) DedupeCustomer(ctx context.Context, projectID string, input models.CustomerInput) (models.DedupeResult, error) {
	ctx, span := tracing.StartSpan(ctx, "dedupe.Matcher.DedupeCustomer")
	defer span.End()

	matches := []models.Match{}
	seen := map[string]struct{}{}
	if input.ID != "" {
		seen[input.ID] = struct{}{}
	}

	add := func(c models.Customer, score float64, matchType models.MatchType) {
		if _, dup := seen[c.ID]; dup {
			return
		}
		seen[c.ID] = struct{}{}
		matches = append(matches, customerMatch(c, score, matchType))
	}

	if email := normalizers.NormalizeEmail(input.Email); email != "" {
		found, err := m.customers.FindByEmail(ctx, projectID, email)
		if err != nil {
			return models.DedupeResult{}, fmt.Errorf("customer email lookup: %w", err)
		}
		for _, c := range found {
			add(c, 1.0, models.MatchTypeExactEmail)
		}
	}

	if phone := normalizers.NormalizePhone(input.Phone); phone != "" && m.continueAfter(matches) {
		found, err := m.customers.FindByPhone(ctx, projectID, phone)
		if err != nil {
			return models.DedupeResult{}, fmt.Errorf("customer phone lookup: %w", err)
		}
		for _, c := range found {
			add(c, 1.0, models.MatchTypeExactPhone)
		}
	}

	fullName := normalizers.NormalizeName(normalizers.BuildFullName(input.FirstName, input.LastName))
	if fullName != "" && m.continueAfter(matches) {
		candidates, err := m.customers.FindNameCandidates(ctx, projectID, input.FirstName, input.LastName)
		if err != nil {
			return models.DedupeResult{}, fmt.Errorf("customer name lookup: %w", err)
		}

		var fuzzy []scored[models.Customer]
		for _, c := range candidates {
			candidateName := normalizers.NormalizeName(normalizers.BuildFullName(c.FirstName, c.LastName))
			if candidateName == "" {
				continue
			}
			if score := similarity.Trigram(fullName, candidateName); score >= m.config.NameFloor {
				fuzzy = append(fuzzy, scored[models.Customer]{item: c, score: score})
			}
		}
		for _, s := range topN(fuzzy, m.config.MaxResults) {
			add(s.item, s.score, models.MatchTypeFuzzyName)
		}
	}

	return buildResult(matches), nil
}

// DedupeAddress matches by content hash, then postal code, then fuzzy line1.
func (m *Matcher) DedupeAddress(ctx context.Context, projectID string, addr models.Address) (models.DedupeResult, error) {
	ctx, span := tracing.StartSpan(ctx, "dedupe.Matcher.DedupeAddress")
	defer span.End()

	normalized := normalizers.NormalizeAddress(addr)
	hash := normalizers.AddressHash(normalized)

	matches := []models.Match{}
	seen := map[string]struct{}{}
	add := func(a models.AddressRecord, score float64, matchType models.MatchType) {
		if _, dup := seen[a.ID]; dup {
			return
		}
		seen[a.ID] = struct{}{}
		matches = append(matches, addressMatch(a, score, matchType))
	}

	found, err := m.addresses.FindByHash(ctx, projectID, hash)
	if err != nil {
		return models.DedupeResult{}, fmt.Errorf("address hash lookup: %w", err)
	}
	for _, a := range found {
		add(a, 1.0, models.MatchTypeExactAddress)
	}

	if normalized.PostalCode != "" && m.continueAfter(matches) {
		found, err := m.addresses.FindByPostal(ctx, projectID, normalized.Country, normalized.PostalCode)
		if err != nil {
			return models.DedupeResult{}, fmt.Errorf("address postal lookup: %w", err)
		}

		var byPostal []scored[models.AddressRecord]
		for _, a := range found {
			score := 1.0
			if normalizers.NormalizeStreet(a.Line1) != normalized.Line1 {
				score = similarity.Best(normalized.Line1, normalizers.NormalizeStreet(a.Line1))
			}
			byPostal = append(byPostal, scored[models.AddressRecord]{item: a, score: score})
		}
		for _, s := range topN(byPostal, m.config.MaxResults) {
			add(s.item, s.score, models.MatchTypeExactPostal)
		}
	}

	if normalized.Line1 != "" && m.continueAfter(matches) {
		candidates, err := m.addresses.FindLine1Candidates(ctx, projectID, normalized.Country, normalized.City)
		if err != nil {
			return models.DedupeResult{}, fmt.Errorf("address line1 lookup: %w", err)
		}

		var fuzzy []scored[models.AddressRecord]
		for _, a := range candidates {
			if ok, score := m.line1Matches(normalized.Line1, a.Line1); ok {
				fuzzy = append(fuzzy, scored[models.AddressRecord]{item: a, score: score})
			}
		}
		for _, s := range topN(fuzzy, m.config.MaxResults) {
			add(s.item, s.score, models.MatchTypeFuzzyAddress)
		}
	}

	return buildResult(matches), nil
}

// IsReturningCustomerAddress reports whether an earlier order placed with this
// email shipped to the same postal code and a line1 that differs at most by
// abbreviation or small typos.
func (m *Matcher) IsReturningCustomerAddress(ctx context.Context, projectID, email, postalCode, line1 string) (bool, error) {
	ctx, span := tracing.StartSpan(ctx, "dedupe.Matcher.IsReturningCustomerAddress")
	defer span.End()

	email = normalizers.NormalizeEmail(email)
	if email == "" || m.history == nil {
		return false, nil
	}

	shipments, err := m.history.PriorShipments(ctx, projectID, email)
	if err != nil {
		return false, fmt.Errorf("order history lookup: %w", err)
	}

	postalCode = normalizers.NormalizePostalCode(postalCode)
	line1 = normalizers.NormalizeStreet(line1)
	for _, s := range shipments {
		if normalizers.NormalizePostalCode(s.PostalCode) != postalCode {
			continue
		}
		if ok, _ := m.line1Matches(line1, s.Line1); ok {
			return true, nil
		}
	}
	return false, nil
}

// line1Matches compares a normalized line1 against a stored one: trigram
// similarity above the floor or case-insensitive equality.
func (m *Matcher) line1Matches(normalized, other string) (bool, float64) {
	otherNormalized := normalizers.NormalizeStreet(other)
	if normalized == otherNormalized || strings.EqualFold(strings.TrimSpace(other), normalized) {
		return true, 1.0
	}
	score := similarity.Trigram(normalized, otherNormalized)
	return score > m.config.AddressFloor, score
}

func (m *Matcher) continueAfter(matches []models.Match) bool {
	return len(matches) == 0 || m.config.Exhaustive
}

type scored[T any] struct {
	item  T
	score float64
}

// topN sorts by score descending and keeps at most n entries.
func topN[T any](items []scored[T], n int) []scored[T] {
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].score > items[j].score
	})
	if len(items) > n {
		items = items[:n]
	}
	return items
}

func buildResult(matches []models.Match) models.DedupeResult {
	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].SimilarityScore > matches[j].SimilarityScore
	})

	result := models.DedupeResult{
		Matches:         matches,
		SuggestedAction: models.SuggestedActionCreateNew,
	}
	if len(matches) == 0 {
		return result
	}

	if matches[0].SimilarityScore >= 1.0 {
		id := matches[0].ID
		result.SuggestedAction = models.SuggestedActionMergeWith
		result.CanonicalID = &id
		return result
	}

	result.SuggestedAction = models.SuggestedActionReview
	return result
}

func customerMatch(c models.Customer, score float64, matchType models.MatchType) models.Match {
	return models.Match{
		ID: c.ID,
		Data: map[string]any{
			"email":      c.Email,
			"phone":      c.Phone,
			"first_name": c.FirstName,
			"last_name":  c.LastName,
		},
		SimilarityScore: score,
		MatchType:       matchType,
	}
}

func addressMatch(a models.AddressRecord, score float64, matchType models.MatchType) models.Match {
	return models.Match{
		ID: a.ID,
		Data: map[string]any{
			"line1":       a.Line1,
			"line2":       a.Line2,
			"city":        a.City,
			"state":       a.State,
			"postal_code": a.PostalCode,
			"country":     a.Country,
		},
		SimilarityScore: score,
		MatchType:       matchType,
	}
}
