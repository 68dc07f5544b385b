// Package domain defines the page, chunk and search types shared by the
// chunker, the vector store and the search engine, plus the validation gate
// used at their entry points.
package domain

import (
	"slices"
	"strconv"
	"time"
)

// Page is a denormalized view of a documentation page. The sync orchestrator
// owns the real page; the retrieval engine only sees copies embedded in chunk
// payloads.
type Page struct {
	PageID    string    `json:"page_id"`
	SpaceKey  string    `json:"space_key"`
	Title     string    `json:"title"`
	URL       string    `json:"url"`
	Labels    []string  `json:"labels"`
	Version   int       `json:"version"`
	UpdatedAt time.Time `json:"updated_at"`
	UpdatedBy string    `json:"updated_by,omitempty"`
	ParentID  string    `json:"parent_id,omitempty"`
	Ancestors []string  `json:"ancestors,omitempty"`
}

// Clone returns a copy of p that shares no slices with it.
func (p Page) Clone() Page {
	p.Labels = slices.Clone(p.Labels)
	p.Ancestors = slices.Clone(p.Ancestors)
	return p
}

// ChunkType classifies the content of a chunk.
type ChunkType string

const (
	ChunkProse ChunkType = "prose"
	ChunkCode  ChunkType = "code"
	ChunkTable ChunkType = "table"
)

// ParseChunkType maps a stored value to a ChunkType. Unknown values fall back
// to ChunkProse.
func ParseChunkType(s string) ChunkType {
	switch ChunkType(s) {
	case ChunkCode:
		return ChunkCode
	case ChunkTable:
		return ChunkTable
	default:
		return ChunkProse
	}
}

// Metadata keys set by the chunker.
const (
	MetaLanguage        = "language"
	MetaIsProcedure     = "is_procedure"
	MetaHasContinuation = "has_continuation"
)

// TextSpan locates chunk text inside the page's raw source. Offsets are byte
// offsets into the raw content.
type TextSpan struct {
	StartChar    int    `json:"start_char"`
	EndChar      int    `json:"end_char"`
	OriginalText string `json:"original_text"`
}

// Chunk is the atomic retrieval and embedding unit.
type Chunk struct {
	ChunkID         string         `json:"chunk_id"`
	PageID          string         `json:"page_id"`
	Content         string         `json:"content"`
	OriginalContent string         `json:"original_content"`
	ContextPath     []string       `json:"context_path"`
	ChunkType       ChunkType      `json:"chunk_type"`
	TokenCount      int            `json:"token_count"`
	PositionInPage  int            `json:"position_in_page"`
	HeadingContext  string         `json:"heading_context,omitempty"`
	TextSpans       []TextSpan     `json:"text_spans,omitempty"`
	Metadata        map[string]any `json:"metadata,omitempty"`
}

// Bool reads a boolean metadata flag.
func (c Chunk) Bool(key string) bool {
	v, _ := c.Metadata[key].(bool)
	return v
}

// ChunkID builds the chunk identifier "{page_id}-{position}".
func ChunkID(pageID string, position int) string {
	return pageID + "-" + strconv.Itoa(position)
}

// ChunkWithEmbedding pairs a chunk with its embedding right before upsert.
type ChunkWithEmbedding struct {
	Chunk
	Embedding []float32 `json:"-"`
}
