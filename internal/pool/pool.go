// Package pool runs a stage function over many items with bounded
// concurrency and per-item retry.
package pool

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/sells-group/address-resolver/internal/resilience"
)

// Policy configures one stage pool.
type Policy struct {
	// Stage names the pool in logs.
	Stage string
	// Workers bounds concurrent items. Default 1.
	Workers int
	// Retry controls per-item retries. Blocked and permanent errors are
	// never retried; rate-limited errors do not consume attempts.
	Retry resilience.RetryConfig
	// AttemptTimeout bounds each call to fn. Zero means no extra bound.
	AttemptTimeout time.Duration
	// RateLimit caps item starts per second across workers. Zero disables.
	RateLimit float64
}

// Result pairs an input with its outcome.
type Result[In, Out any] struct {
	Input  In
	Output Out
	Err    error
}

// Run calls fn for every item, at most p.Workers at a time, and returns the
// results in input order. A failing item never cancels its siblings. Items
// not yet started when ctx ends get ctx's error.
func Run[In, Out any](ctx context.Context, items []In, fn func(context.Context, In) (Out, error), p Policy) []Result[In, Out] {
	return RunEach(ctx, items, fn, nil, p)
}

// RunEach is Run with a callback invoked as each item finishes. onResult is
// called from worker goroutines and must be safe for concurrent use.
func RunEach[In, Out any](
	ctx context.Context,
	items []In,
	fn func(context.Context, In) (Out, error),
	onResult func(Result[In, Out]),
	p Policy,
) []Result[In, Out] {
	workers := p.Workers
	if workers <= 0 {
		workers = 1
	}
	retry := p.Retry
	if retry.OnRetry == nil && p.Stage != "" {
		retry.OnRetry = resilience.RetryLogger(p.Stage, "item")
	}

	var limiter *rate.Limiter
	if p.RateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(p.RateLimit), 1)
	}

	out := make([]Result[In, Out], len(items))
	var g errgroup.Group
	g.SetLimit(workers)

	for i, item := range items {
		if ctx.Err() != nil {
			out[i] = Result[In, Out]{Input: item, Err: ctx.Err()}
			if onResult != nil {
				onResult(out[i])
			}
			continue
		}
		g.Go(func() error {
			res := Result[In, Out]{Input: item}
			err := ctx.Err()
			if err == nil && limiter != nil {
				err = limiter.Wait(ctx)
			}
			if err != nil {
				res.Err = err
				out[i] = res
				if onResult != nil {
					onResult(res)
				}
				return nil
			}
			res.Output, res.Err = resilience.DoVal(ctx, retry, func(ctx context.Context) (Out, error) {
				if p.AttemptTimeout > 0 {
					var cancel context.CancelFunc
					ctx, cancel = context.WithTimeout(ctx, p.AttemptTimeout)
					defer cancel()
				}
				return fn(ctx, item)
			})
			if res.Err != nil {
				zap.L().Debug("pool: item failed",
					zap.String("stage", p.Stage),
					zap.String("class", resilience.ClassifyError(res.Err)),
					zap.Error(res.Err),
				)
			}
			out[i] = res
			if onResult != nil {
				onResult(res)
			}
			return nil
		})
	}
	_ = g.Wait()
	return out
}
