package exchange

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/alejandrodnm/edgebot/internal/domain"
)

// mapQuote convierte la respuesta del exchange a domain.Quote.
// Los bids ausentes o inválidos quedan en 0 y se infieren del ask contrario.
func mapQuote(r quoteResponse) (domain.Quote, error) {
	yes, err := parsePrice(r.YesAsk)
	if err != nil {
		return domain.Quote{}, fmt.Errorf("yes_ask: %w", err)
	}
	no, err := parsePrice(r.NoAsk)
	if err != nil {
		return domain.Quote{}, fmt.Errorf("no_ask: %w", err)
	}
	q := domain.Quote{
		Ticker:   r.Ticker,
		YesPrice: yes,
		NoPrice:  no,
	}
	if v, err := parsePrice(r.YesBid); err == nil {
		q.YesBid = v
	}
	if v, err := parsePrice(r.NoBid); err == nil {
		q.NoBid = v
	}
	if v, err := r.Volume.Float64(); err == nil {
		q.Volume = v
	}
	if r.UpdatedAt != "" {
		if t, err := time.Parse(time.RFC3339Nano, r.UpdatedAt); err == nil {
			q.Timestamp = t.UTC()
		}
	}
	return q, nil
}

// marketClosed indica si el exchange ya no cotiza el mercado.
func marketClosed(status string) bool {
	switch strings.ToLower(status) {
	case "closed", "settled", "finalized":
		return true
	}
	return false
}

func parsePrice(s string) (float64, error) {
	if s == "" {
		return 0, fmt.Errorf("empty price")
	}
	return strconv.ParseFloat(s, 64)
}

func formatPrice(p float64) string {
	return strconv.FormatFloat(p, 'f', 4, 64)
}

func wireSide(s domain.Side) string {
	return strings.ToLower(string(s))
}

func wireAction(a domain.OrderAction) string {
	return strings.ToLower(string(a))
}
