package domain

import (
	"strconv"
	"strings"
	"unicode/utf8"
)

const (
	minQueryLength = 2
	maxQueryLength = 2000
)

// ValidatePage checks the fields the store relies on for identity and filters.
func ValidatePage(p Page) error {
	if strings.TrimSpace(p.PageID) == "" {
		return NewValidationError("page_id", p.PageID, ErrInvalidPage)
	}
	if strings.TrimSpace(p.SpaceKey) == "" {
		return NewValidationError("space_key", p.SpaceKey, ErrInvalidPage)
	}
	if p.Version < 0 {
		return NewValidationError("version", strconv.Itoa(p.Version), ErrInvalidPage)
	}
	return nil
}

// ValidateQuery checks a free-text search query.
func ValidateQuery(q string) error {
	q = strings.TrimSpace(q)
	if q == "" {
		return NewValidationError("query", q, ErrInvalidQuery)
	}
	n := utf8.RuneCountInString(q)
	if n < minQueryLength {
		return NewValidationError("query", q, ErrQueryTooShort)
	}
	if n > maxQueryLength {
		return NewValidationError("query", q[:64]+"...", ErrQueryTooLong)
	}
	return nil
}

// Validate checks a SearchConfig for values the engine cannot honor.
func (c SearchConfig) Validate() error {
	if c.TopK <= 0 {
		return NewValidationError("top_k", strconv.Itoa(c.TopK), ErrInvalidConfig)
	}
	if c.MinScore < 0 || c.MinScore > 1 {
		return NewValidationError("min_score", strconv.FormatFloat(c.MinScore, 'f', -1, 64), ErrInvalidConfig)
	}
	if c.MaxCitationsPerResult < 0 {
		return NewValidationError("max_citations_per_result", strconv.Itoa(c.MaxCitationsPerResult), ErrInvalidConfig)
	}
	if c.CacheTTL < 0 {
		return NewValidationError("cache_ttl", c.CacheTTL.String(), ErrInvalidConfig)
	}
	return nil
}
