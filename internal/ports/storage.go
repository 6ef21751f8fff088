package ports

import (
	"context"

	"github.com/alejandrodnm/edgebot/internal/domain"
)

// StateStore persiste el EngineState completo.
type StateStore interface {
	// Load devuelve el último estado guardado, o uno vacío si no existe ninguno.
	Load(ctx context.Context) (*domain.EngineState, error)

	// Save reemplaza el estado de forma atómica. Es la única frontera de durabilidad.
	Save(ctx context.Context, state *domain.EngineState) error

	// Close libera los recursos del store.
	Close() error
}
