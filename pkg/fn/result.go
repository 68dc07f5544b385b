// Package fn holds the small generic toolkit the indexing pipeline is built
// from: Result values, composable Stages, bounded parallel maps and retry.
package fn

import "errors"

// ErrNilError replaces a nil error handed to Err so the Result stays failed.
var ErrNilError = errors.New("fn: Err called with nil error")

// Result carries either a value or an error through a pipeline. The zero
// Result is a successful zero value.
type Result[T any] struct {
	val T
	err error
}

// Ok creates a successful Result.
func Ok[T any](v T) Result[T] {
	return Result[T]{val: v}
}

// Err creates a failed Result.
func Err[T any](err error) Result[T] {
	if err == nil {
		err = ErrNilError
	}
	return Result[T]{err: err}
}

// FromPair adapts a (value, error) return.
func FromPair[T any](v T, err error) Result[T] {
	if err != nil {
		return Result[T]{err: err}
	}
	return Result[T]{val: v}
}

func (r Result[T]) IsOk() bool  { return r.err == nil }
func (r Result[T]) IsErr() bool { return r.err != nil }

// Err returns the failure, nil on success.
func (r Result[T]) Err() error { return r.err }

// Unwrap returns the value and error.
func (r Result[T]) Unwrap() (T, error) { return r.val, r.err }

// Collect gathers every value, or fails with all errors joined.
func Collect[T any](results []Result[T]) Result[[]T] {
	out := make([]T, 0, len(results))
	var errs []error
	for _, r := range results {
		if r.err != nil {
			errs = append(errs, r.err)
			continue
		}
		out = append(out, r.val)
	}
	if len(errs) > 0 {
		return Err[[]T](errors.Join(errs...))
	}
	return Ok(out)
}
