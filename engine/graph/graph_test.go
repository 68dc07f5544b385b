package graph

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"testing"

	"github.com/WessleyAI/docsearch/engine/domain"
	"github.com/WessleyAI/docsearch/pkg/repo"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j/dbtype"
)

// fakeRepo keeps nodes and parent edges in memory and answers the Store's
// fixed queries.
type fakeRepo struct {
	nodes   map[string]PageNode
	parent  map[string]string
	execs   []string
	failOn  string
	lastOpt repo.ListOpts
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{nodes: map[string]PageNode{}, parent: map[string]string{}}
}

func (f *fakeRepo) fail(op string) error {
	if f.failOn == op {
		return errors.New("neo4j unavailable")
	}
	return nil
}

func (f *fakeRepo) Get(_ context.Context, id string) (PageNode, error) {
	if err := f.fail("get"); err != nil {
		return PageNode{}, err
	}
	n, ok := f.nodes[id]
	if !ok {
		return PageNode{}, fmt.Errorf("Page %s: %w", id, repo.ErrNotFound)
	}
	return n, nil
}

func (f *fakeRepo) List(_ context.Context, opts repo.ListOpts) ([]PageNode, error) {
	f.lastOpt = opts
	var out []PageNode
	for _, n := range f.nodes {
		if n.SpaceKey == opts.Filter["space_key"] {
			out = append(out, n)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (f *fakeRepo) Merge(_ context.Context, p PageNode) (PageNode, error) {
	if err := f.fail("merge"); err != nil {
		return PageNode{}, err
	}
	f.nodes[p.ID] = p
	return p, nil
}

func (f *fakeRepo) Delete(_ context.Context, id string) (bool, error) {
	if err := f.fail("delete"); err != nil {
		return false, err
	}
	_, ok := f.nodes[id]
	delete(f.nodes, id)
	delete(f.parent, id)
	for c, p := range f.parent {
		if p == id {
			delete(f.parent, c)
		}
	}
	return ok, nil
}

func (f *fakeRepo) Query(_ context.Context, cypher string, params map[string]any) ([]PageNode, error) {
	if err := f.fail("query"); err != nil {
		return nil, err
	}
	id := params["id"].(string)
	var out []PageNode
	switch cypher {
	case childrenCypher:
		for c, p := range f.parent {
			if p == id {
				out = append(out, f.nodes[c])
			}
		}
		sort.Slice(out, func(i, j int) bool { return out[i].Title < out[j].Title })
	case ancestorsCypher:
		for p, ok := f.parent[id]; ok; p, ok = f.parent[p] {
			out = append([]PageNode{f.nodes[p]}, out...)
		}
	default:
		return nil, fmt.Errorf("unexpected query %q", cypher)
	}
	return out, nil
}

func (f *fakeRepo) Exec(_ context.Context, cypher string, params map[string]any) error {
	if err := f.fail("exec"); err != nil {
		return err
	}
	f.execs = append(f.execs, cypher)
	id := params["id"].(string)
	switch cypher {
	case unlinkParentCypher:
		delete(f.parent, id)
	case linkParentCypher:
		parent := params["parent"].(string)
		if _, ok := f.nodes[parent]; !ok {
			f.nodes[parent] = PageNode{ID: parent}
		}
		f.parent[id] = parent
	default:
		return fmt.Errorf("unexpected exec %q", cypher)
	}
	return nil
}

func page(id, title, parent string) domain.Page {
	return domain.Page{PageID: id, SpaceKey: "OPS", Title: title, Version: 1, ParentID: parent}
}

func TestSavePageLinksParent(t *testing.T) {
	f := newFakeRepo()
	s := newStore(f, nil)
	ctx := context.Background()

	if err := s.SavePage(ctx, page("2", "Child", "1")); err != nil {
		t.Fatal(err)
	}
	if f.nodes["1"].ID != "1" || f.nodes["1"].Title != "" {
		t.Fatalf("expected placeholder parent, got %+v", f.nodes["1"])
	}
	if err := s.SavePage(ctx, page("1", "Root", "")); err != nil {
		t.Fatal(err)
	}
	if f.nodes["1"].Title != "Root" {
		t.Fatal("placeholder not filled in")
	}
	if f.parent["2"] != "1" {
		t.Fatalf("edge missing: %v", f.parent)
	}

	// Moving the page replaces the edge.
	if err := s.SavePage(ctx, page("2", "Child", "3")); err != nil {
		t.Fatal(err)
	}
	if f.parent["2"] != "3" {
		t.Fatalf("edge not moved: %v", f.parent)
	}
	if err := s.SavePage(ctx, page("2", "Child", "")); err != nil {
		t.Fatal(err)
	}
	if _, ok := f.parent["2"]; ok {
		t.Fatal("edge left behind after parent removed")
	}
}

func TestSavePageSelfParent(t *testing.T) {
	f := newFakeRepo()
	if err := newStore(f, nil).SavePage(context.Background(), page("1", "Loop", "1")); err != nil {
		t.Fatal(err)
	}
	if _, ok := f.parent["1"]; ok {
		t.Fatal("page linked to itself")
	}
}

func TestSavePageErrors(t *testing.T) {
	s := newStore(newFakeRepo(), nil)
	if err := s.SavePage(context.Background(), domain.Page{}); !errors.Is(err, domain.ErrInvalidPage) {
		t.Fatalf("expected ErrInvalidPage, got %v", err)
	}
	for _, op := range []string{"merge", "exec"} {
		f := newFakeRepo()
		f.failOn = op
		err := newStore(f, nil).SavePage(context.Background(), page("2", "Child", "1"))
		if err == nil || !strings.HasPrefix(err.Error(), "graph: ") {
			t.Fatalf("%s failure: got %v", op, err)
		}
	}
}

func TestChildrenAndAncestors(t *testing.T) {
	f := newFakeRepo()
	s := newStore(f, nil)
	ctx := context.Background()
	for _, p := range []domain.Page{
		page("1", "Root", ""),
		page("2", "Networking", "1"),
		page("3", "Deploys", "1"),
		page("4", "Firewall", "2"),
	} {
		if err := s.SavePage(ctx, p); err != nil {
			t.Fatal(err)
		}
	}

	kids, err := s.Children(ctx, "1")
	if err != nil {
		t.Fatal(err)
	}
	if len(kids) != 2 || kids[0].Title != "Deploys" || kids[1].Title != "Networking" {
		t.Fatalf("children = %+v", kids)
	}
	none, err := s.Children(ctx, "4")
	if err != nil || none == nil || len(none) != 0 {
		t.Fatalf("leaf children = %v, %v", none, err)
	}

	anc, err := s.Ancestors(ctx, "4")
	if err != nil {
		t.Fatal(err)
	}
	if len(anc) != 2 || anc[0].ID != "1" || anc[1].ID != "2" {
		t.Fatalf("ancestors = %+v", anc)
	}
}

func TestDeletePage(t *testing.T) {
	f := newFakeRepo()
	s := newStore(f, nil)
	ctx := context.Background()
	_ = s.SavePage(ctx, page("1", "Root", ""))
	_ = s.SavePage(ctx, page("2", "Child", "1"))

	if err := s.DeletePage(ctx, "1"); err != nil {
		t.Fatal(err)
	}
	if _, ok, _ := s.GetPage(ctx, "1"); ok {
		t.Fatal("page still present")
	}
	if _, ok, _ := s.GetPage(ctx, "2"); !ok {
		t.Fatal("child removed with parent")
	}
	if err := s.DeletePage(ctx, "missing"); err != nil {
		t.Fatalf("deleting a missing page: %v", err)
	}

	f.failOn = "delete"
	if err := s.DeletePage(ctx, "2"); err == nil {
		t.Fatal("expected error")
	}
}

func TestGetPage(t *testing.T) {
	f := newFakeRepo()
	s := newStore(f, nil)
	ctx := context.Background()
	_ = s.SavePage(ctx, page("1", "Root", ""))

	n, ok, err := s.GetPage(ctx, "1")
	if err != nil || !ok || n.Title != "Root" || n.SpaceKey != "OPS" {
		t.Fatalf("got %+v, %v, %v", n, ok, err)
	}
	if _, ok, err := s.GetPage(ctx, "nope"); ok || err != nil {
		t.Fatalf("missing page: %v, %v", ok, err)
	}
	f.failOn = "get"
	if _, _, err := s.GetPage(ctx, "1"); err == nil {
		t.Fatal("expected error")
	}
}

func TestSpacePages(t *testing.T) {
	f := newFakeRepo()
	s := newStore(f, nil)
	ctx := context.Background()
	_ = s.SavePage(ctx, page("1", "Root", ""))
	other := page("9", "Elsewhere", "")
	other.SpaceKey = "ENG"
	_ = s.SavePage(ctx, other)

	nodes, err := s.SpacePages(ctx, "OPS", 0, 10)
	if err != nil || len(nodes) != 1 || nodes[0].ID != "1" {
		t.Fatalf("got %+v, %v", nodes, err)
	}
	if f.lastOpt.Limit != 10 {
		t.Fatalf("limit not passed: %+v", f.lastOpt)
	}
}

func TestPageRecordDecoding(t *testing.T) {
	props := map[string]any{"id": "7", "space_key": "OPS", "title": "T", "version": int64(3), "parent_id": "1"}
	rec := &neo4j.Record{Keys: []string{"n"}, Values: []any{dbtype.Node{Labels: []string{PageLabel}, Props: props}}}
	n, err := pageFromRecord(rec)
	if err != nil {
		t.Fatal(err)
	}
	if n.ID != "7" || n.Version != 3 || n.ParentID != "1" {
		t.Fatalf("decoded %+v", n)
	}

	m := pageToMap(NodeFromPage(domain.Page{PageID: "7", SpaceKey: "OPS", Version: 3}))
	if m["version"] != int64(3) || m["id"] != "7" {
		t.Fatalf("encoded %v", m)
	}

	if _, err := pageFromRecord(&neo4j.Record{Keys: []string{"x"}, Values: []any{1}}); err == nil {
		t.Fatal("expected error for record without node")
	}
	if _, err := pageFromRecord(&neo4j.Record{Keys: []string{"n"}, Values: []any{"str"}}); err == nil {
		t.Fatal("expected error for non-node value")
	}
}
