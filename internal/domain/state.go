package domain

import (
	"fmt"
	"math"
	"slices"
	"time"
)

// StateSchemaVersion se incrementa solo con cambios aditivos: herramientas
// externas de reporting parsean el archivo.
const StateSchemaVersion = 1

// ledgerTolerance absorbe el error de redondeo acumulado de float64.
const ledgerTolerance = 1e-6

// EngineState es el agregado durable del proceso.
type EngineState struct {
	SchemaVersion   int        `json:"schema_version"`
	OpenPositions   []Position `json:"open_positions"`
	ClosedPositions []Position `json:"closed_positions"`
	DailyTradeCount int        `json:"daily_trade_count"`
	TradingDay      string     `json:"trading_day"` // YYYY-MM-DD (UTC)
	CumulativePnL   float64    `json:"cumulative_pnl"`
	CumulativeFees  float64    `json:"cumulative_fees"`
	Cycles          int64      `json:"cycles"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// NewEngineState devuelve un estado vacío listo para usar.
func NewEngineState() *EngineState {
	return &EngineState{
		SchemaVersion:   StateSchemaVersion,
		OpenPositions:   []Position{},
		ClosedPositions: []Position{},
	}
}

// TradingDayOf devuelve el día de trading UTC de t.
func TradingDayOf(t time.Time) string {
	return t.UTC().Format(time.DateOnly)
}

// RollTradingDay resetea el contador diario si now cae en otro día UTC.
// Devuelve true si el día avanzó.
func (s *EngineState) RollTradingDay(now time.Time) bool {
	day := TradingDayOf(now)
	if s.TradingDay == day {
		return false
	}
	s.TradingDay = day
	s.DailyTradeCount = 0
	return true
}

// OpenExposure suma el nocional de todas las posiciones abiertas.
func (s *EngineState) OpenExposure() float64 {
	total := 0.0
	for _, p := range s.OpenPositions {
		total += p.Exposure()
	}
	return total
}

// FindOpen devuelve el índice de la posición abierta con la clave dada, o -1.
func (s *EngineState) FindOpen(key PositionKey) int {
	return slices.IndexFunc(s.OpenPositions, func(p Position) bool {
		return p.Key() == key
	})
}

// HasOpenTicker indica si existe alguna posición abierta en el ticker.
func (s *EngineState) HasOpenTicker(ticker string) bool {
	return slices.ContainsFunc(s.OpenPositions, func(p Position) bool {
		return p.Ticker == ticker
	})
}

// Open añade una posición abierta. Falla si la clave ya está ocupada.
func (s *EngineState) Open(p Position) error {
	if s.FindOpen(p.Key()) >= 0 {
		return fmt.Errorf("open %s: %w: duplicate open position", p.Key(), ErrInvariantViolated)
	}
	s.OpenPositions = append(s.OpenPositions, p)
	s.DailyTradeCount++
	s.CumulativeFees += p.EntryFees
	return nil
}

// CloseAt cierra la posición abierta del índice i y la mueve al histórico.
func (s *EngineState) CloseAt(i int, exitPrice float64, exitTime time.Time, reason ExitReason, exitFees float64) Position {
	p := s.OpenPositions[i]
	p.Close(exitPrice, exitTime, reason, exitFees)
	s.OpenPositions = slices.Delete(s.OpenPositions, i, i+1)
	s.ClosedPositions = append(s.ClosedPositions, p)
	s.CumulativePnL += p.RealizedPnL
	s.CumulativeFees += exitFees
	return p
}

// RealizedPnL recalcula la suma de P&L realizado sobre el histórico.
func (s *EngineState) RealizedPnL() float64 {
	total := 0.0
	for _, p := range s.ClosedPositions {
		total += p.RealizedPnL
	}
	return total
}

// CheckInvariants verifica unicidad de (ticker, side) y consistencia del ledger.
func (s *EngineState) CheckInvariants() error {
	seen := make(map[PositionKey]bool, len(s.OpenPositions))
	for _, p := range s.OpenPositions {
		if p.Status != PositionOpen {
			return fmt.Errorf("position %s in open list with status %s: %w", p.ID, p.Status, ErrInvariantViolated)
		}
		if seen[p.Key()] {
			return fmt.Errorf("duplicate open position %s: %w", p.Key(), ErrInvariantViolated)
		}
		seen[p.Key()] = true
	}
	for _, p := range s.ClosedPositions {
		if p.Status != PositionClosed {
			return fmt.Errorf("position %s in closed list with status %s: %w", p.ID, p.Status, ErrInvariantViolated)
		}
	}
	if sum := s.RealizedPnL(); math.Abs(sum-s.CumulativePnL) > ledgerTolerance {
		return fmt.Errorf("cumulative_pnl %.6f != sum(realized_pnl) %.6f: %w", s.CumulativePnL, sum, ErrInvariantViolated)
	}
	return nil
}

// Clone devuelve una copia profunda, útil para publicar snapshots sin compartir slices.
func (s *EngineState) Clone() *EngineState {
	c := *s
	c.OpenPositions = clonePositions(s.OpenPositions)
	c.ClosedPositions = clonePositions(s.ClosedPositions)
	return &c
}

func clonePositions(in []Position) []Position {
	out := make([]Position, len(in))
	for i, p := range in {
		if p.GrossEdgeAtEntry != nil {
			v := *p.GrossEdgeAtEntry
			p.GrossEdgeAtEntry = &v
		}
		if p.CostEstimateAtEntry != nil {
			v := *p.CostEstimateAtEntry
			p.CostEstimateAtEntry = &v
		}
		if p.ExitTime != nil {
			v := *p.ExitTime
			p.ExitTime = &v
		}
		out[i] = p
	}
	return out
}
