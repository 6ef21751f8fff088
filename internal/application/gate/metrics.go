package gate

import (
	"encoding/json"
	"math"
	"sort"

	"github.com/alejandrodnm/edgebot/internal/domain"
)

// Ratio es un float64 que admite +Inf en JSON (se serializa como "inf").
// El profit factor es +Inf cuando hay beneficio y ninguna pérdida.
type Ratio float64

func (r Ratio) MarshalJSON() ([]byte, error) {
	if math.IsInf(float64(r), 1) {
		return []byte(`"inf"`), nil
	}
	return json.Marshal(float64(r))
}

func (r *Ratio) UnmarshalJSON(b []byte) error {
	if string(b) == `"inf"` {
		*r = Ratio(math.Inf(1))
		return nil
	}
	var v float64
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	*r = Ratio(v)
	return nil
}

// Metrics son las estadísticas de rendimiento sobre posiciones cerradas.
type Metrics struct {
	Trades            int             `json:"trades"`
	Wins              int             `json:"wins"`
	Losses            int             `json:"losses"`
	WinRate           float64         `json:"win_rate"`
	TotalPnL          float64         `json:"total_pnl"`
	GrossProfit       float64         `json:"gross_profit"`
	GrossLoss         float64         `json:"gross_loss"`
	Expectancy        float64         `json:"expectancy"`
	ProfitFactor      Ratio           `json:"profit_factor"`
	MaxDrawdown       float64         `json:"max_drawdown"`     // dólares
	MaxDrawdownPct    float64         `json:"max_drawdown_pct"` // fracción del bankroll
	CostCoverage      float64         `json:"cost_telemetry_coverage"`
	HoldoutExpectancy map[int]float64 `json:"holdout_expectancy,omitempty"`
	MaxTicker         string          `json:"max_ticker,omitempty"`
	MaxTickerShare    float64         `json:"max_single_ticker_pnl_share"`
	AvgHoldingMinutes float64         `json:"avg_holding_minutes"`
}

// ComputeMetrics calcula las métricas en el orden en que se cerraron las posiciones.
// Las ventanas de holdout sin suficientes trades no aparecen en HoldoutExpectancy.
func ComputeMetrics(closed []domain.Position, bankroll float64, windows []int) Metrics {
	m := Metrics{Trades: len(closed)}
	if m.Trades == 0 {
		return m
	}

	var (
		equity, peak float64
		covered      int
		holding      float64
		holdingN     int
		byTicker     = make(map[string]float64)
	)
	for _, p := range closed {
		pnl := p.RealizedPnL
		m.TotalPnL += pnl
		switch {
		case pnl > 0:
			m.Wins++
			m.GrossProfit += pnl
		case pnl < 0:
			m.Losses++
			m.GrossLoss += -pnl
		}

		equity += pnl
		peak = math.Max(peak, equity)
		m.MaxDrawdown = math.Max(m.MaxDrawdown, peak-equity)

		if p.HasCostTelemetry() {
			covered++
		}
		if p.ExitTime != nil && !p.ExitTime.Before(p.EntryTime) {
			holding += p.ExitTime.Sub(p.EntryTime).Minutes()
			holdingN++
		}
		byTicker[p.Ticker] += pnl
	}

	n := float64(m.Trades)
	m.WinRate = float64(m.Wins) / n
	m.Expectancy = m.TotalPnL / n
	m.CostCoverage = float64(covered) / n
	if holdingN > 0 {
		m.AvgHoldingMinutes = holding / float64(holdingN)
	}

	switch {
	case m.GrossLoss > 0:
		m.ProfitFactor = Ratio(m.GrossProfit / m.GrossLoss)
	case m.GrossProfit > 0:
		m.ProfitFactor = Ratio(math.Inf(1))
	}

	if bankroll > 0 {
		m.MaxDrawdownPct = m.MaxDrawdown / bankroll
	}

	m.MaxTicker, m.MaxTickerShare = concentration(byTicker)

	for _, w := range windows {
		if w <= 0 || w > m.Trades {
			continue
		}
		if m.HoldoutExpectancy == nil {
			m.HoldoutExpectancy = make(map[int]float64, len(windows))
		}
		m.HoldoutExpectancy[w] = meanPnL(closed[m.Trades-w:])
	}
	return m
}

// concentration devuelve el ticker con mayor |pnl| y su cuota sobre Σ|pnl|.
// En empate gana el ticker menor alfabéticamente.
func concentration(byTicker map[string]float64) (string, float64) {
	tickers := make([]string, 0, len(byTicker))
	total := 0.0
	for t, pnl := range byTicker {
		tickers = append(tickers, t)
		total += math.Abs(pnl)
	}
	if total == 0 {
		return "", 0
	}
	sort.Strings(tickers)

	best, bestAbs := "", -1.0
	for _, t := range tickers {
		if a := math.Abs(byTicker[t]); a > bestAbs {
			best, bestAbs = t, a
		}
	}
	return best, bestAbs / total
}

func meanPnL(ps []domain.Position) float64 {
	if len(ps) == 0 {
		return 0
	}
	total := 0.0
	for _, p := range ps {
		total += p.RealizedPnL
	}
	return total / float64(len(ps))
}
