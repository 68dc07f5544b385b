// Package chunker turns a page's structural nodes into token-bounded chunks
// annotated with their heading path and their location in the raw source.
package chunker

import (
	"strings"

	"github.com/WessleyAI/docsearch/engine/domain"
	"github.com/WessleyAI/docsearch/pkg/fn"
	"github.com/WessleyAI/docsearch/pkg/tokenizer"
)

const (
	// DefaultMaxTokens is the prose chunk budget.
	DefaultMaxTokens = 512
	// DefaultOverlapSentences is how many trailing sentences of a flushed
	// chunk seed the next one.
	DefaultOverlapSentences = 2
)

// rootDepth is the length of the fixed [space, title] context root.
const rootDepth = 2

// procedureMarkers flag code blocks that describe operational procedures.
var procedureMarkers = []string{
	"ssh ",
	"systemctl ",
	"kubectl ",
	"docker ",
	"ansible-playbook",
	"terraform ",
	"sudo ",
	"#!/bin/bash",
	"#!/bin/sh",
}

// Chunker splits pages into chunks. It is stateless between pages and safe for
// concurrent use when its Counter is.
type Chunker struct {
	maxTokens int
	overlap   int
	counter   tokenizer.Counter
}

// Option configures a Chunker.
type Option func(*Chunker)

// WithMaxTokens sets the prose token budget.
func WithMaxTokens(n int) Option {
	return func(c *Chunker) {
		if n > 0 {
			c.maxTokens = n
		}
	}
}

// WithOverlapSentences sets the number of sentences carried into the next
// chunk when prose is split.
func WithOverlapSentences(n int) Option {
	return func(c *Chunker) {
		if n >= 0 {
			c.overlap = n
		}
	}
}

// WithTokenizer sets the token counter.
func WithTokenizer(t tokenizer.Counter) Option {
	return func(c *Chunker) {
		if t != nil {
			c.counter = t
		}
	}
}

// New creates a Chunker. Without WithTokenizer tokens are approximated by
// word count.
func New(opts ...Option) *Chunker {
	c := &Chunker{
		maxTokens: DefaultMaxTokens,
		overlap:   DefaultOverlapSentences,
		counter:   tokenizer.Words{},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// MaxTokens returns the prose budget.
func (c *Chunker) MaxTokens() int { return c.maxTokens }

// walkState is the accumulator threaded through the node walk.
type walkState struct {
	heading  string
	context  []string
	position int
	chunks   []domain.Chunk
}

// ChunkPage walks nodes in document order and emits chunks. raw is the page's
// storage-format source used to locate text spans. A page without nodes yields
// no chunks.
func (c *Chunker) ChunkPage(page domain.Page, nodes []Node, raw string) []domain.Chunk {
	start := walkState{context: []string{page.SpaceKey, page.Title}}
	final := fn.Reduce(nodes, start, func(st walkState, n Node) walkState {
		return c.step(st, page, n, raw)
	})
	return final.chunks
}

// step folds one node into the walk state.
func (c *Chunker) step(st walkState, page domain.Page, n Node, raw string) walkState {
	var drafts []draft
	switch n := n.(type) {
	case Heading:
		return enterHeading(st, n)
	case Code:
		drafts = c.codeDrafts(n)
	case Table:
		drafts = c.tableDrafts(n)
	case Paragraph:
		drafts = c.proseDrafts(n.Text)
	case ListItem:
		drafts = c.proseDrafts(n.Text)
	}
	for _, d := range drafts {
		st.chunks = append(st.chunks, c.build(st, page, d, raw))
		st.position++
	}
	return st
}

// enterHeading updates the heading and truncates the context path to the
// heading's level before appending it.
func enterHeading(st walkState, h Heading) walkState {
	level := h.Level
	if level < 1 {
		level = 1
	}
	cut := rootDepth + level - 1
	if cut > len(st.context) {
		cut = len(st.context)
	}
	ctx := make([]string, cut, cut+1)
	copy(ctx, st.context[:cut])
	text := strings.TrimSpace(h.Text)
	st.context = append(ctx, text)
	st.heading = text
	return st
}

// draft is chunk text before it is placed on the page.
type draft struct {
	content  string
	original string
	kind     domain.ChunkType
	meta     map[string]any
}

func (c *Chunker) codeDrafts(n Code) []draft {
	if strings.TrimSpace(n.Text) == "" {
		return nil
	}
	meta := map[string]any{domain.MetaIsProcedure: isProcedure(n.Text)}
	if n.Language != "" {
		meta[domain.MetaLanguage] = n.Language
	}
	return []draft{{content: n.Text, original: n.Text, kind: domain.ChunkCode, meta: meta}}
}

func (c *Chunker) tableDrafts(n Table) []draft {
	text := serializeRows(n.Rows)
	if text == "" {
		text = strings.TrimSpace(n.Text)
	}
	if text == "" {
		return nil
	}
	original := n.Text
	if strings.TrimSpace(original) == "" {
		original = text
	}
	return []draft{{content: text, original: original, kind: domain.ChunkTable, meta: map[string]any{}}}
}

func (c *Chunker) build(st walkState, page domain.Page, d draft, raw string) domain.Chunk {
	ctx := make([]string, len(st.context))
	copy(ctx, st.context)
	ch := domain.Chunk{
		ChunkID:         domain.ChunkID(page.PageID, st.position),
		PageID:          page.PageID,
		Content:         d.content,
		OriginalContent: d.original,
		ContextPath:     ctx,
		ChunkType:       d.kind,
		TokenCount:      c.counter.Count(d.content),
		PositionInPage:  st.position,
		HeadingContext:  st.heading,
		Metadata:        d.meta,
	}
	if sp := LocateSpan(d.original, raw); sp != nil {
		ch.TextSpans = []domain.TextSpan{*sp}
	}
	return ch
}

func isProcedure(code string) bool {
	for _, m := range procedureMarkers {
		if strings.Contains(code, m) {
			return true
		}
	}
	return false
}

// serializeRows renders table rows as " | "-joined cells, one row per line.
func serializeRows(rows [][]string) string {
	lines := make([]string, 0, len(rows))
	for _, row := range rows {
		cells := make([]string, len(row))
		for i, cell := range row {
			cells[i] = NormalizeWhitespace(cell)
		}
		line := strings.Join(cells, " | ")
		if strings.Trim(line, " |") == "" {
			continue
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}
