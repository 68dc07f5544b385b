package fn

// Map applies f to each element.
func Map[T, U any](items []T, f func(T) U) []U {
	out := make([]U, 0, len(items))
	for _, v := range items {
		out = append(out, f(v))
	}
	return out
}

// Reduce folds items into a single value, left to right.
func Reduce[T, Acc any](items []T, init Acc, f func(Acc, T) Acc) Acc {
	for _, v := range items {
		init = f(init, v)
	}
	return init
}

// Batches splits items into consecutive sub-slices of at most size elements.
// The sub-slices share items' backing array. A size below 1 yields a single
// batch.
func Batches[T any](items []T, size int) [][]T {
	if len(items) == 0 {
		return nil
	}
	if size < 1 || size >= len(items) {
		return [][]T{items}
	}
	out := make([][]T, 0, (len(items)+size-1)/size)
	for len(items) > size {
		out = append(out, items[:size:size])
		items = items[size:]
	}
	return append(out, items)
}
