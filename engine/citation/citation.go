// Package citation picks quotable sentences out of a retrieved chunk and
// scores them against the query.
package citation

import (
	"math"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/WessleyAI/docsearch/engine/chunker"
	"github.com/WessleyAI/docsearch/engine/domain"
	"github.com/pmezard/go-difflib/difflib"
)

const (
	// DefaultMaxCitations caps citations per chunk.
	DefaultMaxCitations = 3

	minQuoteChars       = 30
	maxQuoteChars       = 500
	contextChars        = 100
	similarityThreshold = 0.3
	ellipsis            = "…"
)

var stopWords = map[string]bool{
	"the": true, "a": true, "an": true, "is": true, "are": true,
	"was": true, "were": true, "be": true, "been": true, "being": true,
	"have": true, "has": true, "had": true, "do": true, "does": true,
	"did": true, "will": true, "would": true, "could": true, "should": true,
	"may": true, "might": true, "can": true, "shall": true, "to": true,
	"of": true, "in": true, "for": true, "on": true, "with": true,
	"at": true, "by": true, "from": true, "as": true, "into": true,
	"what": true, "where": true, "when": true, "how": true, "which": true,
	"who": true, "this": true, "that": true, "these": true, "those": true,
	"i": true, "me": true, "my": true, "it": true, "its": true,
	"and": true, "but": true, "or": true, "not": true,
}

// Extractor builds citations. The zero value is not usable; call New.
type Extractor struct {
	maxCitations int
}

// Option configures an Extractor.
type Option func(*Extractor)

// WithMaxCitations sets the per-chunk citation cap.
func WithMaxCitations(n int) Option {
	return func(e *Extractor) {
		if n >= 0 {
			e.maxCitations = n
		}
	}
}

// New creates an Extractor.
func New(opts ...Option) *Extractor {
	e := &Extractor{maxCitations: DefaultMaxCitations}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Extract returns the chunk's quotable sentences as citations, ordered by
// descending confidence and capped at the configured maximum.
func (e *Extractor) Extract(chunk domain.Chunk, page domain.Page, query string, relevance float64) []domain.Citation {
	return e.ExtractN(chunk, page, query, relevance, e.maxCitations)
}

// ExtractN is Extract with an explicit cap, which never exceeds the
// configured maximum.
func (e *Extractor) ExtractN(chunk domain.Chunk, page domain.Page, query string, relevance float64, limit int) []domain.Citation {
	if limit > e.maxCitations {
		limit = e.maxCitations
	}
	if limit <= 0 {
		return nil
	}
	source := chunk.OriginalContent
	if source == "" {
		source = chunk.Content
	}
	q := strings.ToLower(query)
	qWords := contentWords(q)
	section := Section(chunk)
	url := PageURL(page.URL, chunk.HeadingContext)

	var out []domain.Citation
	for _, s := range chunker.SplitSentences(source) {
		n := utf8.RuneCountInString(s)
		if n < minQuoteChars || n > maxQuoteChars {
			continue
		}
		lower := strings.ToLower(s)
		sim := Similarity(lower, q)
		if !overlaps(contentWords(lower), qWords) && sim <= similarityThreshold {
			continue
		}
		before, after := surrounding(source, s)
		out = append(out, domain.Citation{
			Quote:           s,
			PageTitle:       page.Title,
			PageURL:         url,
			SpaceKey:        page.SpaceKey,
			Section:         section,
			ContextBefore:   before,
			ContextAfter:    after,
			ChunkID:         chunk.ChunkID,
			ConfidenceScore: Confidence(relevance, sim, n),
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].ConfidenceScore > out[j].ConfidenceScore })
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

// Similarity is the character-level matching ratio of a and b in [0,1].
func Similarity(a, b string) float64 {
	if a == "" && b == "" {
		return 1
	}
	m := difflib.NewMatcher(strings.Split(a, ""), strings.Split(b, ""))
	return m.Ratio()
}

// Confidence blends chunk relevance, sentence similarity and sentence length
// into a score clamped to [0,1].
func Confidence(relevance, similarity float64, length int) float64 {
	score := 0.5*relevance + 0.3*similarity + 0.2*math.Min(float64(length)/200, 1)
	return math.Max(0, math.Min(1, score))
}

// Section is the chunk's heading, else the deepest heading of its context
// path, else nil.
func Section(c domain.Chunk) *string {
	if c.HeadingContext != "" {
		s := c.HeadingContext
		return &s
	}
	if len(c.ContextPath) > 2 {
		s := c.ContextPath[len(c.ContextPath)-1]
		return &s
	}
	return nil
}

// PageURL appends an anchor derived from heading to url.
func PageURL(url, heading string) string {
	if url == "" || heading == "" {
		return url
	}
	a := Anchor(heading)
	if a == "" {
		return url
	}
	return url + "#" + a
}

// Anchor lowercases heading, strips punctuation and joins words with hyphens.
func Anchor(heading string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(heading) {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r), r == '-', r == '_':
			b.WriteRune(r)
		case unicode.IsSpace(r):
			b.WriteRune(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), "-")
}

// surrounding returns up to contextChars characters on each side of the first
// occurrence of s in source, marking truncation with an ellipsis.
func surrounding(source, s string) (string, string) {
	i := strings.Index(source, s)
	if i < 0 {
		return "", ""
	}
	head, tail := source[:i], source[i+len(s):]

	before := strings.TrimSpace(head)
	if r := []rune(head); len(r) > contextChars {
		before = ellipsis + strings.TrimSpace(string(r[len(r)-contextChars:]))
	}
	after := strings.TrimSpace(tail)
	if r := []rune(tail); len(r) > contextChars {
		after = strings.TrimSpace(string(r[:contextChars])) + ellipsis
	}
	return before, after
}

func contentWords(s string) map[string]bool {
	out := map[string]bool{}
	for _, w := range strings.Fields(s) {
		w = strings.TrimFunc(w, func(r rune) bool { return !unicode.IsLetter(r) && !unicode.IsDigit(r) })
		if w == "" || stopWords[w] {
			continue
		}
		out[w] = true
	}
	return out
}

func overlaps(a, b map[string]bool) bool {
	for w := range a {
		if b[w] {
			return true
		}
	}
	return false
}
