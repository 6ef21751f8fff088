package exchange

// orders.go: ejecución real de órdenes.
//
// Todas las órdenes son fill-or-kill: o se llenan completas al precio límite
// o no se llenan. El client_order_id hace idempotente el reintento.

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/alejandrodnm/edgebot/internal/domain"
	"github.com/google/uuid"
)

const (
	ordersPath = "/orders"

	codeInsufficientFunds = "insufficient_funds"
	statusFilled          = "filled"
)

// PlaceOrder envía una orden FOK y devuelve el fill confirmado.
// Todos los fallos son *domain.OrderError.
func (c *Client) PlaceOrder(ctx context.Context, req domain.OrderRequest) (domain.Fill, error) {
	if !req.Side.Valid() || req.Size <= 0 || req.Price <= 0 || req.Price >= 1 {
		return domain.Fill{}, &domain.OrderError{
			Kind:   domain.OrderErrorRejected,
			Ticker: req.Ticker,
			Err:    fmt.Errorf("invalid order %s %s %d @ %.4f", req.Action, req.Side, req.Size, req.Price),
		}
	}

	body := orderRequest{
		ClientOrderID: uuid.NewString(),
		Ticker:        req.Ticker,
		Side:          wireSide(req.Side),
		Action:        wireAction(req.Action),
		Price:         formatPrice(req.Price),
		Count:         req.Size,
		TimeInForce:   "fill_or_kill",
	}

	var resp orderResponse
	if err := c.post(ctx, ordersPath, body, &resp); err != nil {
		return domain.Fill{}, &domain.OrderError{Kind: classify(err), Ticker: req.Ticker, Err: err}
	}

	if resp.Status != statusFilled || resp.FilledCount != req.Size {
		reason := resp.RejectReason
		if reason == "" {
			reason = resp.Status
		}
		return domain.Fill{}, &domain.OrderError{
			Kind:   domain.OrderErrorRejected,
			Ticker: req.Ticker,
			Err:    fmt.Errorf("not filled (%s): %d/%d", reason, resp.FilledCount, req.Size),
		}
	}

	price, err := parsePrice(resp.AvgPrice)
	if err != nil || price <= 0 {
		// Sin precio legible usamos el límite: con FOK el fill no puede ser peor.
		price = req.Price
	}

	slog.Debug("order filled",
		"ticker", req.Ticker,
		"side", req.Side,
		"action", req.Action,
		"size", resp.FilledCount,
		"price", price,
		"order_id", resp.OrderID,
	)
	return domain.Fill{OrderID: resp.OrderID, Price: price, Size: resp.FilledCount}, nil
}

// classify mapea errores HTTP a OrderErrorKind.
func classify(err error) domain.OrderErrorKind {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return domain.OrderErrorTransport
	}
	switch {
	case apiErr.Code == codeInsufficientFunds || apiErr.Status == http.StatusPaymentRequired:
		return domain.OrderErrorInsufficient
	case apiErr.Status >= 500 || apiErr.Status == http.StatusTooManyRequests:
		return domain.OrderErrorTransport
	default:
		return domain.OrderErrorRejected
	}
}
