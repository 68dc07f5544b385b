// Package graph records the page hierarchy of the indexed spaces in Neo4j so
// callers can walk from a page to its children and ancestors.
package graph

import "github.com/WessleyAI/docsearch/engine/domain"

// Node and relationship names.
const (
	PageLabel = "Page"
	ChildOf   = "CHILD_OF"
)

// PageNode is the stored form of a page in the hierarchy.
type PageNode struct {
	ID       string `json:"id"`
	SpaceKey string `json:"space_key"`
	Title    string `json:"title"`
	URL      string `json:"url,omitempty"`
	Version  int    `json:"version"`
	ParentID string `json:"parent_id,omitempty"`
}

// NodeFromPage projects a domain page onto its hierarchy node.
func NodeFromPage(p domain.Page) PageNode {
	return PageNode{
		ID:       p.PageID,
		SpaceKey: p.SpaceKey,
		Title:    p.Title,
		URL:      p.URL,
		Version:  p.Version,
		ParentID: p.ParentID,
	}
}
