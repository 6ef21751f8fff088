package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// PositionStatus es el ciclo de vida de una posición: OPEN → CLOSED.
type PositionStatus string

const (
	PositionOpen   PositionStatus = "OPEN"
	PositionClosed PositionStatus = "CLOSED"
)

// ExitReason indica qué regla cerró la posición.
type ExitReason string

const (
	ExitTakeProfit   ExitReason = "TAKE_PROFIT"
	ExitStopLoss     ExitReason = "STOP_LOSS"
	ExitTimeStop     ExitReason = "TIME_STOP"
	ExitEdgeReversal ExitReason = "EDGE_REVERSAL"
	ExitUnavailable  ExitReason = "SETTLEMENT_OR_UNAVAILABLE"
)

// positionNamespace genera IDs deterministas: el replay debe producir
// exactamente los mismos IDs en cada ejecución.
var positionNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("edgebot/position"))

// PositionID devuelve el ID estable de una posición abierta en entryTime.
func PositionID(ticker string, side Side, entryTime time.Time) string {
	name := fmt.Sprintf("%s|%s|%d", ticker, side, entryTime.UTC().UnixNano())
	return uuid.NewSHA1(positionNamespace, []byte(name)).String()
}

// PositionKey es la identidad lógica: como mucho una posición OPEN por clave.
type PositionKey struct {
	Ticker string
	Side   Side
}

func (k PositionKey) String() string {
	return k.Ticker + "/" + string(k.Side)
}

// Position es la entidad central. Los precios están en unidades del lado
// que se tiene (una posición NO guarda precios NO).
type Position struct {
	ID     string         `json:"id"`
	Ticker string         `json:"ticker"`
	Side   Side           `json:"side"`
	Status PositionStatus `json:"status"`

	EntryPrice float64   `json:"entry_price"`
	Size       int64     `json:"size"` // contratos
	Notional   float64   `json:"notional"`
	EntryTime  time.Time `json:"entry_time"`
	EntryFees  float64   `json:"entry_fees"`

	// Telemetría de entrada, usada por edge reversal y por el gate de coste.
	FairProbabilityAtEntry float64  `json:"fair_probability_at_entry"`
	NetEdgeAtEntry         float64  `json:"net_edge_at_entry"`
	GrossEdgeAtEntry       *float64 `json:"gross_edge_at_entry,omitempty"`
	CostEstimateAtEntry    *float64 `json:"cost_estimate_at_entry,omitempty"`
	SignalConfidence       float64  `json:"signal_confidence"`
	SignalSource           string   `json:"signal_source,omitempty"`

	LastMarkPrice float64   `json:"last_mark_price"`
	LastMarkAt    time.Time `json:"last_mark_at"`
	MissedQuotes  int       `json:"missed_quotes,omitempty"`

	ExitPrice   float64    `json:"exit_price,omitempty"`
	ExitTime    *time.Time `json:"exit_time,omitempty"`
	ExitReason  ExitReason `json:"exit_reason,omitempty"`
	ExitFees    float64    `json:"exit_fees,omitempty"`
	RealizedPnL float64    `json:"realized_pnl"`
}

// Key devuelve la identidad (ticker, side).
func (p Position) Key() PositionKey {
	return PositionKey{Ticker: p.Ticker, Side: p.Side}
}

// Exposure es el capital comprometido mientras la posición está abierta.
func (p Position) Exposure() float64 {
	if p.Status != PositionOpen {
		return 0
	}
	return p.Notional
}

// MarkReturn devuelve el retorno a mercado (mark - entry) / entry.
func (p Position) MarkReturn(mark float64) float64 {
	if p.EntryPrice <= 0 {
		return 0
	}
	return (mark - p.EntryPrice) / p.EntryPrice
}

// HoldingTime devuelve cuánto lleva abierta la posición en now.
func (p Position) HoldingTime(now time.Time) time.Duration {
	return now.Sub(p.EntryTime)
}

// HasCostTelemetry indica si la posición registró coste estimado al entrar.
func (p Position) HasCostTelemetry() bool {
	return p.CostEstimateAtEntry != nil
}

// Close marca la posición como cerrada y calcula el P&L realizado neto de fees.
// El signo es +1 para ambos lados porque los precios están en unidades del lado.
func (p *Position) Close(exitPrice float64, exitTime time.Time, reason ExitReason, exitFees float64) {
	t := exitTime
	p.Status = PositionClosed
	p.ExitPrice = exitPrice
	p.ExitTime = &t
	p.ExitReason = reason
	p.ExitFees = exitFees
	p.RealizedPnL = (exitPrice-p.EntryPrice)*float64(p.Size) - p.EntryFees - exitFees
	p.MissedQuotes = 0
}
