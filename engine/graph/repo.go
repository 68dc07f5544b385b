package graph

import (
	"fmt"

	"github.com/WessleyAI/docsearch/pkg/repo"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j/dbtype"
)

// newPageRepo creates a Neo4j-backed repository for Page nodes.
func newPageRepo(driver neo4j.DriverWithContext) *repo.Neo4jRepo[PageNode, string] {
	return repo.NewNeo4jRepo[PageNode, string](
		driver,
		PageLabel,
		pageToMap,
		pageFromRecord,
	)
}

func pageToMap(p PageNode) map[string]any {
	return map[string]any{
		"id":        p.ID,
		"space_key": p.SpaceKey,
		"title":     p.Title,
		"url":       p.URL,
		"version":   int64(p.Version),
		"parent_id": p.ParentID,
	}
}

func pageFromRecord(rec *neo4j.Record) (PageNode, error) {
	raw, ok := rec.Get("n")
	if !ok {
		return PageNode{}, fmt.Errorf("graph: record has no node")
	}
	switch n := raw.(type) {
	case dbtype.Node:
		return pageFromProps(n.Props), nil
	case map[string]any:
		return pageFromProps(n), nil
	default:
		return PageNode{}, fmt.Errorf("graph: unexpected node type %T", raw)
	}
}

func pageFromProps(props map[string]any) PageNode {
	return PageNode{
		ID:       strProp(props, "id"),
		SpaceKey: strProp(props, "space_key"),
		Title:    strProp(props, "title"),
		URL:      strProp(props, "url"),
		Version:  int(intProp(props, "version")),
		ParentID: strProp(props, "parent_id"),
	}
}

func strProp(props map[string]any, key string) string {
	if s, ok := props[key].(string); ok {
		return s
	}
	return ""
}

func intProp(props map[string]any, key string) int64 {
	switch v := props[key].(type) {
	case int64:
		return v
	case int:
		return int64(v)
	case float64:
		return int64(v)
	}
	return 0
}
