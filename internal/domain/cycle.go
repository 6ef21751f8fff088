package domain

import "time"

// TickerEvent registra algo que le pasó a un ticker durante un ciclo
// (skip de entrada, error recuperable, orden rechazada).
type TickerEvent struct {
	Ticker string `json:"ticker"`
	Side   Side   `json:"side,omitempty"`
	Reason string `json:"reason"`
}

// CycleResult contiene todo lo que produjo un ciclo del motor.
type CycleResult struct {
	Cycle     int64     `json:"cycle"`
	At        time.Time `json:"at"`
	DayRolled bool      `json:"day_rolled,omitempty"`

	Exits   []Position `json:"exits"`
	Entries []Position `json:"entries"`

	Skips  []TickerEvent `json:"skips,omitempty"`
	Errors []TickerEvent `json:"errors,omitempty"`

	ExpiredSignals int `json:"expired_signals"`
	Candidates     int `json:"candidates"`

	OpenPositions   int     `json:"open_positions"`
	OpenExposure    float64 `json:"open_exposure"`
	CumulativePnL   float64 `json:"cumulative_pnl"`
	CumulativeFees  float64 `json:"cumulative_fees"`
	DailyTradeCount int     `json:"daily_trade_count"`
}

// RealizedPnL suma el P&L de las salidas del ciclo.
func (r CycleResult) RealizedPnL() float64 {
	total := 0.0
	for _, p := range r.Exits {
		total += p.RealizedPnL
	}
	return total
}
