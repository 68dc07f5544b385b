package fn

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

const tracerName = "docsearch/pkg/fn"

// Stage transforms In to Out. A Stage should return promptly once ctx is done.
type Stage[In, Out any] func(context.Context, In) Result[Out]

// Then runs first, then second on its value. It stops at the first error and
// does not start second once ctx is done.
func Then[A, B, C any](first Stage[A, B], second Stage[B, C]) Stage[A, C] {
	return func(ctx context.Context, a A) Result[C] {
		b := first(ctx, a)
		if b.err != nil {
			return Result[C]{err: b.err}
		}
		if err := ctx.Err(); err != nil {
			return Result[C]{err: err}
		}
		return second(ctx, b.val)
	}
}

// TapStage passes its input through after calling f, e.g. for logging.
func TapStage[T any](f func(context.Context, T)) Stage[T, T] {
	return func(ctx context.Context, t T) Result[T] {
		f(ctx, t)
		return Ok(t)
	}
}

// TracedStage runs stage inside a span called name, recording its duration
// and marking the span failed when the stage fails.
func TracedStage[In, Out any](name string, stage Stage[In, Out]) Stage[In, Out] {
	return func(ctx context.Context, in In) Result[Out] {
		ctx, span := otel.Tracer(tracerName).Start(ctx, name)
		defer span.End()
		start := time.Now()
		res := stage(ctx, in)
		span.SetAttributes(
			attribute.String("fn.stage", name),
			attribute.Int64("fn.duration_ms", time.Since(start).Milliseconds()),
		)
		if res.err != nil {
			span.RecordError(res.err)
			span.SetStatus(codes.Error, res.err.Error())
		}
		return res
	}
}
