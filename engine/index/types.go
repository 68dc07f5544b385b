package index

import (
	"github.com/WessleyAI/docsearch/engine/chunker"
	"github.com/WessleyAI/docsearch/engine/domain"
)

// Request asks for one page revision to be indexed. Nodes is the structural
// parse of Raw produced upstream; Raw is kept so chunks can point back into
// the source.
type Request struct {
	Page  domain.Page       `json:"page"`
	Nodes []chunker.RawNode `json:"nodes"`
	Raw   string            `json:"raw,omitempty"`
	// Force reindexes even when the stored version is current.
	Force bool `json:"force,omitempty"`
}

// DeleteRequest asks for every chunk of a page to be removed.
type DeleteRequest struct {
	PageID string `json:"page_id"`
}

// Status is the result of indexing or deleting one page.
type Status string

const (
	StatusIndexed Status = "indexed"
	StatusSkipped Status = "skipped"
	StatusDeleted Status = "deleted"
	StatusFailed  Status = "failed"
)

// Outcome reports what happened to one page.
type Outcome struct {
	PageID string `json:"page_id"`
	Status Status `json:"status"`
	Chunks int    `json:"chunks"`
	Error  string `json:"error,omitempty"`
}

// Failure is published when a request could not be processed. The sync
// orchestrator owns any retry.
type Failure struct {
	Subject string `json:"subject"`
	PageID  string `json:"page_id"`
	Error   string `json:"error"`
}

// chunkedPage is a page after chunking.
type chunkedPage struct {
	Page   domain.Page
	Chunks []domain.Chunk
}

// embeddedPage is a chunked page with one embedding per chunk.
type embeddedPage struct {
	Page   domain.Page
	Chunks []domain.ChunkWithEmbedding
}
