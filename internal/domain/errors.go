package domain

import (
	"errors"
	"fmt"
)

// Taxonomía de errores del motor. Los recuperables afectan a un solo ticker
// durante un ciclo; los fatales detienen el proceso.
var (
	// ErrSignalExpired: la señal ya no es válida. Se ignora, no es fatal.
	ErrSignalExpired = errors.New("signal expired")
	// ErrQuoteUnavailable: no hay cotización para el ticker (delisted o resuelto).
	ErrQuoteUnavailable = errors.New("quote unavailable")
	// ErrOrderRejected: el exchange rechazó la orden; se reintenta el próximo ciclo.
	ErrOrderRejected = errors.New("order rejected")
	// ErrStatePersist: fallo al guardar el estado. Fatal para el loop.
	ErrStatePersist = errors.New("state persist failure")
	// ErrConfigurationInvalid: configuración inválida al arrancar. Fatal.
	ErrConfigurationInvalid = errors.New("configuration invalid")
	// ErrStateCorrupt: el snapshot persistido no se puede interpretar o viola invariantes.
	ErrStateCorrupt = errors.New("state corrupt")
	// ErrInvariantViolated: el ledger en memoria quedó inconsistente.
	ErrInvariantViolated = errors.New("invariant violated")
)

// OrderErrorKind clasifica los fallos de ejecución.
type OrderErrorKind string

const (
	OrderErrorRejected     OrderErrorKind = "REJECTED"
	OrderErrorInsufficient OrderErrorKind = "INSUFFICIENT_FUNDS"
	OrderErrorTransport    OrderErrorKind = "TRANSPORT"
)

// OrderError es el error que devuelve un OrderExecutor.
// Todos los kinds se tratan como ErrOrderRejected por el motor.
type OrderError struct {
	Kind   OrderErrorKind
	Ticker string
	Err    error
}

func (e *OrderError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("order %s for %s", e.Kind, e.Ticker)
	}
	return fmt.Sprintf("order %s for %s: %v", e.Kind, e.Ticker, e.Err)
}

// Unwrap permite errors.Is(err, ErrOrderRejected) y llegar a la causa original.
func (e *OrderError) Unwrap() []error {
	if e.Err == nil {
		return []error{ErrOrderRejected}
	}
	return []error{ErrOrderRejected, e.Err}
}
