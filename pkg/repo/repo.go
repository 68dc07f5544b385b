// Package repo defines the generic Repository interface and list options.
package repo

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Get when no entity has the id.
var ErrNotFound = errors.New("not found")

// Repository is a generic keyed store.
type Repository[T any, ID comparable] interface {
	Get(ctx context.Context, id ID) (T, error)
	List(ctx context.Context, opts ListOpts) ([]T, error)
	Merge(ctx context.Context, entity T) (T, error)
	Delete(ctx context.Context, id ID) (bool, error)
}

// ListOpts controls pagination and filtering for List operations. Filter
// matches properties by equality.
type ListOpts struct {
	Offset int
	Limit  int
	Filter map[string]any
}
