package ports

import (
	"context"

	"github.com/alejandrodnm/edgebot/internal/domain"
)

// SignalFeed expone la última señal alpha por ticker, refrescada fuera de banda.
type SignalFeed interface {
	Signals(ctx context.Context) (domain.SignalBook, error)
}
