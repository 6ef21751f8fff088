package engine

import (
	"context"
	"sort"

	"github.com/alejandrodnm/edgebot/internal/application/engine/lifecycle"
	"github.com/alejandrodnm/edgebot/internal/domain"
	"github.com/alejandrodnm/edgebot/internal/ports"
)

// CycleRunner es la interfaz mínima que los loops necesitan del motor de ciclo de vida.
// Desacopla el loop live y el replay de *lifecycle.Engine concreto.
type CycleRunner interface {
	RunCycle(ctx context.Context, in lifecycle.CycleInput, exec ports.OrderExecutor) (domain.CycleResult, error)
	Snapshot() *domain.EngineState
}

var _ CycleRunner = (*lifecycle.Engine)(nil)

// WatchList devuelve los tickers que hay que cotizar en un ciclo:
// posiciones abiertas ∪ tickers con señal. Ordenados y sin duplicados.
func WatchList(state *domain.EngineState, signals domain.SignalBook) []string {
	seen := make(map[string]bool, len(state.OpenPositions)+len(signals))
	out := make([]string, 0, len(seen))
	add := func(t string) {
		if !seen[t] {
			seen[t] = true
			out = append(out, t)
		}
	}
	for _, p := range state.OpenPositions {
		add(p.Ticker)
	}
	for t := range signals {
		add(t)
	}
	sort.Strings(out)
	return out
}
