package domain

import (
	"slices"
	"time"
)

// Citation is a verbatim quote with provenance.
type Citation struct {
	Quote           string  `json:"quote"`
	PageTitle       string  `json:"page_title"`
	PageURL         string  `json:"page_url"`
	SpaceKey        string  `json:"space_key"`
	Section         *string `json:"section,omitempty"`
	ContextBefore   string  `json:"context_before"`
	ContextAfter    string  `json:"context_after"`
	ChunkID         string  `json:"chunk_id"`
	ConfidenceScore float64 `json:"confidence_score"`
}

// SearchResult is one ranked chunk with its citations.
type SearchResult struct {
	ChunkID        string     `json:"chunk_id"`
	Content        string     `json:"content"`
	RelevanceScore float64    `json:"relevance_score"`
	Citations      []Citation `json:"citations"`
	Page           Page       `json:"page"`
	ContextPath    []string   `json:"context_path"`
}

// SearchResponse wraps the results of one query.
type SearchResponse struct {
	Query        string         `json:"query"`
	Results      []SearchResult `json:"results"`
	TotalResults int            `json:"total_results"`
	SearchTimeMS float64        `json:"search_time_ms"`
}

// Clone returns a deep copy of c.
func (c Citation) Clone() Citation {
	if c.Section != nil {
		sec := *c.Section
		c.Section = &sec
	}
	return c
}

// Clone returns a deep copy of r.
func (r SearchResult) Clone() SearchResult {
	r.Page = r.Page.Clone()
	r.ContextPath = slices.Clone(r.ContextPath)
	if r.Citations != nil {
		cits := make([]Citation, len(r.Citations))
		for i, c := range r.Citations {
			cits[i] = c.Clone()
		}
		r.Citations = cits
	}
	return r
}

// Clone returns a deep copy of r that shares no slices with it.
func (r *SearchResponse) Clone() *SearchResponse {
	if r == nil {
		return nil
	}
	out := *r
	if r.Results != nil {
		out.Results = make([]SearchResult, len(r.Results))
		for i, res := range r.Results {
			out.Results[i] = res.Clone()
		}
	}
	return &out
}

// SearchConfig controls a single search call.
type SearchConfig struct {
	TopK                  int           `json:"top_k"`
	MinScore              float64       `json:"min_score"`
	IncludeCitations      bool          `json:"include_citations"`
	MaxCitationsPerResult int           `json:"max_citations_per_result"`
	UseCache              bool          `json:"use_cache"`
	CacheTTL              time.Duration `json:"-"`
	SpaceKeys             []string      `json:"space_keys,omitempty"`
	Labels                []string      `json:"labels,omitempty"`
	ChunkTypes            []ChunkType   `json:"chunk_types,omitempty"`
}

// DefaultSearchConfig returns the documented defaults.
func DefaultSearchConfig() SearchConfig {
	return SearchConfig{
		TopK:                  10,
		MinScore:              0.3,
		IncludeCitations:      true,
		MaxCitationsPerResult: 3,
		UseCache:              true,
		CacheTTL:              time.Hour,
	}
}

// SpaceSummary reports how much of a space is indexed.
type SpaceSummary struct {
	SpaceKey   string `json:"space_key"`
	ChunkCount int    `json:"chunk_count"`
	PageCount  int    `json:"page_count"`
}

// Stats reports the state of the vector collection.
type Stats struct {
	PointsCount uint64 `json:"points_count"`
	Status      string `json:"status"`
}

// SearchRequest is the wire form of a search call. Unset options take their
// DefaultSearchConfig values.
type SearchRequest struct {
	Query                 string      `json:"query"`
	TopK                  *int        `json:"top_k,omitempty"`
	MinScore              *float64    `json:"min_score,omitempty"`
	IncludeCitations      *bool       `json:"include_citations,omitempty"`
	MaxCitationsPerResult *int        `json:"max_citations_per_result,omitempty"`
	UseCache              *bool       `json:"use_cache,omitempty"`
	CacheTTLSeconds       *float64    `json:"cache_ttl_seconds,omitempty"`
	SpaceKeys             []string    `json:"space_keys,omitempty"`
	Labels                []string    `json:"labels,omitempty"`
	ChunkTypes            []ChunkType `json:"chunk_types,omitempty"`
}

// Config resolves the request options against the defaults.
func (r SearchRequest) Config() SearchConfig {
	cfg := DefaultSearchConfig()
	if r.TopK != nil {
		cfg.TopK = *r.TopK
	}
	if r.MinScore != nil {
		cfg.MinScore = *r.MinScore
	}
	if r.IncludeCitations != nil {
		cfg.IncludeCitations = *r.IncludeCitations
	}
	if r.CacheTTLSeconds != nil {
		cfg.CacheTTL = time.Duration(*r.CacheTTLSeconds * float64(time.Second))
	}
	if r.MaxCitationsPerResult != nil {
		cfg.MaxCitationsPerResult = *r.MaxCitationsPerResult
	}
	if r.UseCache != nil {
		cfg.UseCache = *r.UseCache
	}
	cfg.SpaceKeys = r.SpaceKeys
	cfg.Labels = r.Labels
	cfg.ChunkTypes = r.ChunkTypes
	return cfg
}
