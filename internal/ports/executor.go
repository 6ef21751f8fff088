package ports

import (
	"context"

	"github.com/alejandrodnm/edgebot/internal/domain"
)

// OrderExecutor places orders on the exchange (or simulates them in paper mode).
type OrderExecutor interface {
	// PlaceOrder submits the order and returns the confirmed fill.
	// Failures are *domain.OrderError, which match domain.ErrOrderRejected.
	PlaceOrder(ctx context.Context, req domain.OrderRequest) (domain.Fill, error)
}
