package repo

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

// DefaultListLimit caps List when ListOpts.Limit is unset.
const DefaultListLimit = 100

// result is the minimal interface needed from a neo4j result.
type result interface {
	Next(ctx context.Context) bool
	Record() *neo4j.Record
	Err() error
}

// runner is the minimal interface needed from a neo4j session.
type runner interface {
	Run(ctx context.Context, cypher string, params map[string]any) (result, error)
	Close(ctx context.Context) error
}

// Neo4jRepo is a generic repository over nodes of one label. Records handed
// to fromRecord carry the node under the key "n".
type Neo4jRepo[T any, ID comparable] struct {
	driver     neo4j.DriverWithContext
	label      string
	idKey      string
	toMap      func(T) map[string]any
	fromRecord func(*neo4j.Record) (T, error)
	newSession func(ctx context.Context) runner // for testing
}

// Neo4jOption configures a Neo4jRepo.
type Neo4jOption[T any, ID comparable] func(*Neo4jRepo[T, ID])

// WithIDKey sets the property name used as the ID (default "id").
func WithIDKey[T any, ID comparable](key string) Neo4jOption[T, ID] {
	return func(r *Neo4jRepo[T, ID]) { r.idKey = key }
}

// NewNeo4jRepo creates a new Neo4j-backed repository.
func NewNeo4jRepo[T any, ID comparable](
	driver neo4j.DriverWithContext,
	label string,
	toMap func(T) map[string]any,
	fromRecord func(*neo4j.Record) (T, error),
	opts ...Neo4jOption[T, ID],
) *Neo4jRepo[T, ID] {
	r := &Neo4jRepo[T, ID]{
		driver:     driver,
		label:      label,
		idKey:      "id",
		toMap:      toMap,
		fromRecord: fromRecord,
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Compile-time interface check.
var _ Repository[any, string] = (*Neo4jRepo[any, string])(nil)

// neo4jSessionAdapter adapts neo4j.SessionWithContext to the runner interface.
type neo4jSessionAdapter struct {
	sess neo4j.SessionWithContext
}

func (a *neo4jSessionAdapter) Run(ctx context.Context, cypher string, params map[string]any) (result, error) {
	return a.sess.Run(ctx, cypher, params)
}

func (a *neo4jSessionAdapter) Close(ctx context.Context) error {
	return a.sess.Close(ctx)
}

func (r *Neo4jRepo[T, ID]) session(ctx context.Context) runner {
	if r.newSession != nil {
		return r.newSession(ctx)
	}
	return &neo4jSessionAdapter{sess: r.driver.NewSession(ctx, neo4j.SessionConfig{})}
}

// Label returns the node label the repository manages.
func (r *Neo4jRepo[T, ID]) Label() string { return r.label }

func (r *Neo4jRepo[T, ID]) Get(ctx context.Context, id ID) (T, error) {
	var zero T
	items, err := r.Query(ctx, fmt.Sprintf("MATCH (n:%s {%s: $id}) RETURN n", r.label, r.idKey), map[string]any{"id": id})
	if err != nil {
		return zero, err
	}
	if len(items) == 0 {
		return zero, fmt.Errorf("%s %v: %w", r.label, id, ErrNotFound)
	}
	return items[0], nil
}

// List returns nodes ordered by id. Filter keys must be plain property names.
func (r *Neo4jRepo[T, ID]) List(ctx context.Context, opts ListOpts) ([]T, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = DefaultListLimit
	}
	params := map[string]any{"offset": opts.Offset, "limit": limit}

	var where []string
	keys := make([]string, 0, len(opts.Filter))
	for k := range opts.Filter {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for i, k := range keys {
		if !validProperty(k) {
			return nil, fmt.Errorf("%s: invalid filter property %q", r.label, k)
		}
		p := fmt.Sprintf("f%d", i)
		where = append(where, fmt.Sprintf("n.%s = $%s", k, p))
		params[p] = opts.Filter[k]
	}

	var b strings.Builder
	fmt.Fprintf(&b, "MATCH (n:%s)", r.label)
	if len(where) > 0 {
		b.WriteString(" WHERE ")
		b.WriteString(strings.Join(where, " AND "))
	}
	fmt.Fprintf(&b, " RETURN n ORDER BY n.%s SKIP $offset LIMIT $limit", r.idKey)
	return r.Query(ctx, b.String(), params)
}

// Merge creates the node or updates its properties in place.
func (r *Neo4jRepo[T, ID]) Merge(ctx context.Context, entity T) (T, error) {
	var zero T
	props := r.toMap(entity)
	cypher := fmt.Sprintf("MERGE (n:%s {%s: $id}) SET n += $props RETURN n", r.label, r.idKey)
	items, err := r.Query(ctx, cypher, map[string]any{"id": props[r.idKey], "props": props})
	if err != nil {
		return zero, err
	}
	if len(items) == 0 {
		return zero, fmt.Errorf("failed to merge %s", r.label)
	}
	return items[0], nil
}

// Delete removes the node and its relationships. It reports whether a node
// existed.
func (r *Neo4jRepo[T, ID]) Delete(ctx context.Context, id ID) (bool, error) {
	sess := r.session(ctx)
	defer sess.Close(ctx)

	cypher := fmt.Sprintf("MATCH (n:%s {%s: $id}) DETACH DELETE n RETURN count(n) AS deleted", r.label, r.idKey)
	res, err := sess.Run(ctx, cypher, map[string]any{"id": id})
	if err != nil {
		return false, err
	}
	if !res.Next(ctx) {
		return false, res.Err()
	}
	n, _, err := neo4j.GetRecordValue[int64](res.Record(), "deleted")
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Query runs a read returning nodes bound to "n" and decodes each record.
func (r *Neo4jRepo[T, ID]) Query(ctx context.Context, cypher string, params map[string]any) ([]T, error) {
	sess := r.session(ctx)
	defer sess.Close(ctx)

	res, err := sess.Run(ctx, cypher, params)
	if err != nil {
		return nil, err
	}
	var items []T
	for res.Next(ctx) {
		item, err := r.fromRecord(res.Record())
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, res.Err()
}

// Exec runs a write whose result is not needed.
func (r *Neo4jRepo[T, ID]) Exec(ctx context.Context, cypher string, params map[string]any) error {
	sess := r.session(ctx)
	defer sess.Close(ctx)

	res, err := sess.Run(ctx, cypher, params)
	if err != nil {
		return err
	}
	for res.Next(ctx) {
	}
	return res.Err()
}

// validProperty reports whether s is safe to splice into Cypher as a
// property name.
func validProperty(s string) bool {
	if s == "" {
		return false
	}
	for i, c := range s {
		switch {
		case c == '_', c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z':
		case c >= '0' && c <= '9' && i > 0:
		default:
			return false
		}
	}
	return true
}
