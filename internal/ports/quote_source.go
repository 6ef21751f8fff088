package ports

import (
	"context"

	"github.com/alejandrodnm/edgebot/internal/domain"
)

// QuoteSource obtiene cotizaciones en vivo.
type QuoteSource interface {
	// GetQuote devuelve la cotización actual del ticker.
	// Si el mercado ya no cotiza (delisted/resuelto) devuelve domain.ErrQuoteUnavailable;
	// cualquier otro error se trata como transitorio.
	GetQuote(ctx context.Context, ticker string) (domain.Quote, error)
}
