package semantic

import (
	"time"

	"github.com/WessleyAI/docsearch/engine/domain"
)

// Hit is a single similarity search result.
type Hit struct {
	ID      string         `json:"id"`
	Score   float32        `json:"score"`
	Payload map[string]any `json:"payload"`
}

// Point is a stored point returned without a score.
type Point struct {
	ID      string         `json:"id"`
	Payload map[string]any `json:"payload"`
}

// SearchParams restricts a similarity search. Empty filter slices are
// ignored; a zero ScoreThreshold disables the floor.
type SearchParams struct {
	Limit          int
	SpaceKeys      []string
	Labels         []string
	ChunkTypes     []domain.ChunkType
	ScoreThreshold float32
}

// Payload field names. They form the stored wire schema and must stay stable.
const (
	FieldChunkID         = "chunk_id"
	FieldPageID          = "page_id"
	FieldContent         = "content"
	FieldOriginalContent = "original_content"
	FieldContextPath     = "context_path"
	FieldChunkType       = "chunk_type"
	FieldTokenCount      = "token_count"
	FieldPosition        = "position_in_page"
	FieldHeadingContext  = "heading_context"
	FieldTextSpans       = "text_spans"
	FieldMetadata        = "metadata"
	FieldSpaceKey        = "space_key"
	FieldPageTitle       = "page_title"
	FieldPageURL         = "page_url"
	FieldLabels          = "labels"
	FieldVersion         = "version"
	FieldUpdatedAt       = "updated_at"
	FieldUpdatedBy       = "updated_by"
	FieldParentID        = "parent_id"
	FieldAncestors       = "ancestors"
	FieldIndexedAt       = "indexed_at"
)

// indexedFields get keyword payload indexes for filtering.
var indexedFields = []string{FieldPageID, FieldSpaceKey, FieldLabels, FieldChunkType}

const timeLayout = time.RFC3339Nano
