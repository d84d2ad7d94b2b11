package analytics

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// Chunk splits items into fixed-size chunks, preserving order.
// The final chunk may be shorter. size <= 0 yields a single chunk.
func Chunk[T any](items []T, size int) [][]T {
	if len(items) == 0 {
		return nil
	}
	if size <= 0 || size >= len(items) {
		return [][]T{items}
	}
	chunks := make([][]T, 0, (len(items)+size-1)/size)
	for start := 0; start < len(items); start += size {
		end := start + size
		if end > len(items) {
			end = len(items)
		}
		chunks = append(chunks, items[start:end])
	}
	return chunks
}

// ProcessSequential applies handler to each chunk in order, folding every
// partial result into an accumulator via merge. merge receives the zero value
// of R for the first fold. Any handler error aborts the run with no partial
// result.
func ProcessSequential[T, R any](
	ctx context.Context,
	chunks [][]T,
	handler func(ctx context.Context, index int, chunk []T) (R, error),
	merge func(acc, partial R) R,
) (R, error) {
	var acc R
	for i, chunk := range chunks {
		partial, err := handler(ctx, i, chunk)
		if err != nil {
			var zero R
			return zero, err
		}
		acc = merge(acc, partial)
	}
	return acc, nil
}

// ProcessParallel runs all chunk handlers concurrently, waits for every one,
// then folds partial results in original chunk-index order. Concurrency moves
// *when* work happens, never the merge order, so the merged result is
// identical to ProcessSequential regardless of scheduling. One handler error
// fails the whole run.
func ProcessParallel[T, R any](
	ctx context.Context,
	chunks [][]T,
	handler func(ctx context.Context, index int, chunk []T) (R, error),
	merge func(acc, partial R) R,
) (R, error) {
	var zero R
	partials := make([]R, len(chunks))

	g, gctx := errgroup.WithContext(ctx)
	for i, chunk := range chunks {
		g.Go(func() error {
			partial, err := handler(gctx, i, chunk)
			if err != nil {
				return err
			}
			partials[i] = partial
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return zero, err
	}

	acc := zero
	for _, partial := range partials {
		acc = merge(acc, partial)
	}
	return acc, nil
}
