package fetcher

import (
	"context"
	"math/rand/v2"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Pacer spaces requests to the search source. One Pacer is shared by every
// worker in the process; its last-request timestamp is the only shared
// mutable state on the fetch path.
type Pacer struct {
	mu   sync.Mutex
	last time.Time

	minDelay time.Duration
	maxDelay time.Duration

	// scale widens the delay window after a 429 and decays back to 1
	// on successful requests.
	scale    float64
	maxScale float64

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// NewPacer creates a pacer that waits a uniform random duration in
// [minDelay, maxDelay] between consecutive requests.
func NewPacer(minDelay, maxDelay time.Duration) *Pacer {
	if maxDelay < minDelay {
		maxDelay = minDelay
	}
	return &Pacer{
		minDelay: minDelay,
		maxDelay: maxDelay,
		scale:    1,
		maxScale: 4,
		now:      time.Now,
		sleep:    sleepCtx,
	}
}

// Wait blocks until the next request slot. Slots are reserved under the
// lock, so concurrent callers are spaced from each other and not just from
// the last completed request.
func (p *Pacer) Wait(ctx context.Context) error {
	p.mu.Lock()
	delay := p.delay()
	now := p.now()
	next := p.last.Add(delay)
	if next.Before(now) {
		next = now
	}
	p.last = next
	p.mu.Unlock()

	return p.sleep(ctx, next.Sub(now))
}

// delay draws the next gap. Caller holds mu.
func (p *Pacer) delay() time.Duration {
	lo := float64(p.minDelay) * p.scale
	hi := float64(p.maxDelay) * p.scale
	if hi <= lo {
		return time.Duration(lo)
	}
	return time.Duration(lo + rand.Float64()*(hi-lo))
}

// OnRateLimit doubles the delay window, up to 4x the configured one.
func (p *Pacer) OnRateLimit() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.scale *= 2
	if p.scale > p.maxScale {
		p.scale = p.maxScale
	}
	zap.L().Warn("pacer: widening delay after 429", zap.Float64("scale", p.scale))
}

// OnSuccess shrinks the delay window by 20%, never below the configured one.
func (p *Pacer) OnSuccess() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.scale *= 0.8
	if p.scale < 1 {
		p.scale = 1
	}
}

// Scale returns the current delay multiplier.
func (p *Pacer) Scale() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.scale
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
