package exchange

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/alejandrodnm/edgebot/internal/domain"
)

const quotePath = "/markets/%s/quote"

// GetQuote devuelve la cotización actual del ticker. Un 404 o un mercado
// cerrado/resuelto es domain.ErrQuoteUnavailable; el resto es transitorio.
func (c *Client) GetQuote(ctx context.Context, ticker string) (domain.Quote, error) {
	var resp quoteResponse
	err := c.get(ctx, fmt.Sprintf(quotePath, url.PathEscape(ticker)), &resp)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound {
			return domain.Quote{}, fmt.Errorf("exchange.GetQuote %s: %w", ticker, domain.ErrQuoteUnavailable)
		}
		return domain.Quote{}, fmt.Errorf("exchange.GetQuote %s: %w", ticker, err)
	}
	if marketClosed(resp.Status) {
		return domain.Quote{}, fmt.Errorf("exchange.GetQuote %s: market %s: %w", ticker, resp.Status, domain.ErrQuoteUnavailable)
	}
	if resp.Ticker == "" {
		resp.Ticker = ticker
	}

	q, err := mapQuote(resp)
	if err != nil {
		return domain.Quote{}, fmt.Errorf("exchange.GetQuote %s: %w", ticker, err)
	}
	return q, nil
}
