package fetcher

import (
	"context"

	"github.com/rotisserie/eris"
)

// Pool hands out workers so that no session is ever used by two goroutines
// at once. All workers share the pool's Pacer.
type Pool struct {
	pacer *Pacer
	idle  chan *Worker
}

// NewPool creates size workers sharing pacer. Sessions open lazily on each
// worker's first request.
func NewPool(size int, pacer *Pacer, opts Options) *Pool {
	if size <= 0 {
		size = 1
	}
	opts = opts.withDefaults()
	p := &Pool{pacer: pacer, idle: make(chan *Worker, size)}
	for i := 0; i < size; i++ {
		p.idle <- &Worker{opts: opts, pacer: pacer}
	}
	return p
}

// Acquire blocks until a worker is free or ctx is done.
func (p *Pool) Acquire(ctx context.Context) (*Worker, error) {
	select {
	case w := <-p.idle:
		return w, nil
	case <-ctx.Done():
		return nil, eris.Wrap(ctx.Err(), "fetcher: acquire worker")
	}
}

// Release returns w to the pool.
func (p *Pool) Release(w *Worker) {
	p.idle <- w
}

// Fetch acquires a worker for a single request.
func (p *Pool) Fetch(ctx context.Context, rawURL string) (*Response, error) {
	w, err := p.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer p.Release(w)
	return w.Fetch(ctx, rawURL)
}

// Pacer returns the shared pacer.
func (p *Pool) Pacer() *Pacer {
	return p.pacer
}
