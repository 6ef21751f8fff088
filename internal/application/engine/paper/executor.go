// Package paper simulates order execution for paper trading and replay.
package paper

import (
	"context"
	"fmt"
	"sync"

	"github.com/alejandrodnm/edgebot/internal/domain"
)

// Executor fills every valid order immediately at the requested price.
// Order IDs are sequential so a replay produces the same IDs on every run.
type Executor struct {
	mu     sync.Mutex
	seq    int64
	volume float64
}

// NewExecutor creates a paper executor.
func NewExecutor() *Executor {
	return &Executor{}
}

// PlaceOrder simulates a fill-or-kill order.
func (e *Executor) PlaceOrder(ctx context.Context, req domain.OrderRequest) (domain.Fill, error) {
	if err := ctx.Err(); err != nil {
		return domain.Fill{}, &domain.OrderError{Kind: domain.OrderErrorTransport, Ticker: req.Ticker, Err: err}
	}
	if err := validate(req); err != nil {
		return domain.Fill{}, &domain.OrderError{Kind: domain.OrderErrorRejected, Ticker: req.Ticker, Err: err}
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.seq++
	e.volume += req.Price * float64(req.Size)

	return domain.Fill{
		OrderID: fmt.Sprintf("paper-%06d", e.seq),
		Price:   req.Price,
		Size:    req.Size,
	}, nil
}

// Orders devuelve cuántas órdenes se han simulado.
func (e *Executor) Orders() int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.seq
}

// Volume devuelve el nocional total negociado.
func (e *Executor) Volume() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.volume
}

func validate(req domain.OrderRequest) error {
	switch {
	case !req.Side.Valid():
		return fmt.Errorf("invalid side %q", req.Side)
	case req.Size <= 0:
		return fmt.Errorf("invalid size %d", req.Size)
	case req.Price < 0 || req.Price > 1:
		return fmt.Errorf("price %.4f outside [0,1]", req.Price)
	}
	return nil
}
