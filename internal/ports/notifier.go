package ports

import (
	"context"

	"github.com/alejandrodnm/edgebot/internal/domain"
)

// Notifier presenta el resultado de cada ciclo al operador.
type Notifier interface {
	NotifyCycle(ctx context.Context, result domain.CycleResult) error
}
