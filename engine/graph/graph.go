package graph

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/WessleyAI/docsearch/engine/domain"
	"github.com/WessleyAI/docsearch/pkg/repo"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

// pageRepo is the repository surface the Store needs.
type pageRepo interface {
	Get(ctx context.Context, id string) (PageNode, error)
	List(ctx context.Context, opts repo.ListOpts) ([]PageNode, error)
	Merge(ctx context.Context, p PageNode) (PageNode, error)
	Delete(ctx context.Context, id string) (bool, error)
	Query(ctx context.Context, cypher string, params map[string]any) ([]PageNode, error)
	Exec(ctx context.Context, cypher string, params map[string]any) error
}

const (
	unlinkParentCypher = `MATCH (c:Page {id: $id})-[r:CHILD_OF]->() DELETE r`
	linkParentCypher   = `MATCH (c:Page {id: $id})
		MERGE (p:Page {id: $parent})
		MERGE (c)-[:CHILD_OF]->(p)`
	childrenCypher  = `MATCH (n:Page)-[:CHILD_OF]->(:Page {id: $id}) RETURN n ORDER BY n.title, n.id`
	ancestorsCypher = `MATCH path = (:Page {id: $id})-[:CHILD_OF*1..]->(n:Page) RETURN n ORDER BY length(path) DESC`
)

// Store keeps Page nodes and CHILD_OF edges.
type Store struct {
	pages pageRepo
	log   *slog.Logger
}

// New creates a Store on a Neo4j driver.
func New(driver neo4j.DriverWithContext, logger *slog.Logger) *Store {
	return newStore(newPageRepo(driver), logger)
}

func newStore(pages pageRepo, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{pages: pages, log: logger}
}

// SavePage upserts the page node and points its CHILD_OF edge at the current
// parent. A parent not yet indexed gets a placeholder node carrying only its id.
func (s *Store) SavePage(ctx context.Context, p domain.Page) error {
	if err := domain.ValidatePage(p); err != nil {
		return err
	}
	if _, err := s.pages.Merge(ctx, NodeFromPage(p)); err != nil {
		return fmt.Errorf("graph: save page %s: %w", p.PageID, err)
	}
	params := map[string]any{"id": p.PageID, "parent": p.ParentID}
	if err := s.pages.Exec(ctx, unlinkParentCypher, params); err != nil {
		return fmt.Errorf("graph: unlink page %s: %w", p.PageID, err)
	}
	if p.ParentID == "" || p.ParentID == p.PageID {
		return nil
	}
	if err := s.pages.Exec(ctx, linkParentCypher, params); err != nil {
		return fmt.Errorf("graph: link page %s to %s: %w", p.PageID, p.ParentID, err)
	}
	s.log.Debug("graph: page linked", "page_id", p.PageID, "parent_id", p.ParentID)
	return nil
}

// DeletePage removes the page node and its edges. Children stay in place
// without a parent edge.
func (s *Store) DeletePage(ctx context.Context, pageID string) error {
	if _, err := s.pages.Delete(ctx, pageID); err != nil {
		return fmt.Errorf("graph: delete page %s: %w", pageID, err)
	}
	return nil
}

// GetPage returns a page node. A missing page yields ok == false.
func (s *Store) GetPage(ctx context.Context, pageID string) (node PageNode, ok bool, err error) {
	node, err = s.pages.Get(ctx, pageID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return PageNode{}, false, nil
		}
		return PageNode{}, false, fmt.Errorf("graph: get page %s: %w", pageID, err)
	}
	return node, true, nil
}

// Children returns the direct children of a page ordered by title.
func (s *Store) Children(ctx context.Context, pageID string) ([]PageNode, error) {
	nodes, err := s.pages.Query(ctx, childrenCypher, map[string]any{"id": pageID})
	if err != nil {
		return nil, fmt.Errorf("graph: children of %s: %w", pageID, err)
	}
	if nodes == nil {
		nodes = []PageNode{}
	}
	return nodes, nil
}

// Ancestors returns the chain of parents of a page, root first.
func (s *Store) Ancestors(ctx context.Context, pageID string) ([]PageNode, error) {
	nodes, err := s.pages.Query(ctx, ancestorsCypher, map[string]any{"id": pageID})
	if err != nil {
		return nil, fmt.Errorf("graph: ancestors of %s: %w", pageID, err)
	}
	if nodes == nil {
		nodes = []PageNode{}
	}
	return nodes, nil
}

// SpacePages lists the pages recorded for a space.
func (s *Store) SpacePages(ctx context.Context, spaceKey string, offset, limit int) ([]PageNode, error) {
	nodes, err := s.pages.List(ctx, repo.ListOpts{
		Offset: offset,
		Limit:  limit,
		Filter: map[string]any{"space_key": spaceKey},
	})
	if err != nil {
		return nil, fmt.Errorf("graph: pages of %s: %w", spaceKey, err)
	}
	return nodes, nil
}
