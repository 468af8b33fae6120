package finance

import (
	"context"
	"errors"
	"sync"
)

// ErrStale is returned by a load that was overtaken by a newer one. Its
// result has been thrown away.
var ErrStale = errors.New("panel load superseded by a newer one")

type LoadFunc[T any] func(ctx context.Context) (T, error)

type Snapshot[T any] struct {
	Data       T      `json:"data"`
	Err        string `json:"error,omitempty"`
	Busy       bool   `json:"busy"`
	Generation uint64 `json:"generation"`
}

// Panel is one independently loaded part of the dashboard. Every Reload
// starts a new generation and cancels the one in flight; only the newest
// generation may store its result.
type Panel[T any] struct {
	mu     sync.Mutex
	load   LoadFunc[T]
	gen    uint64
	cancel context.CancelFunc

	data   T
	err    error
	busy   bool
	stored uint64
}

func NewPanel[T any](load LoadFunc[T]) *Panel[T] {
	return &Panel[T]{load: load}
}

func (p *Panel[T]) Reload(ctx context.Context) error {
	p.mu.Lock()
	if p.cancel != nil {
		p.cancel()
	}
	p.gen++
	gen := p.gen
	ctx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.busy = true
	p.mu.Unlock()
	defer cancel()

	data, err := p.load(ctx)

	p.mu.Lock()
	defer p.mu.Unlock()
	if gen != p.gen {
		return ErrStale
	}
	p.cancel = nil
	p.busy = false
	p.stored = gen
	if err != nil {
		p.err = err
		return err
	}
	p.data, p.err = data, nil
	return nil
}

// Snapshot returns the last stored result. A failed load keeps the data of
// the previous successful one next to the error.
func (p *Panel[T]) Snapshot() Snapshot[T] {
	p.mu.Lock()
	defer p.mu.Unlock()
	s := Snapshot[T]{Data: p.data, Busy: p.busy, Generation: p.stored}
	if p.err != nil {
		s.Err = p.err.Error()
	}
	return s
}
