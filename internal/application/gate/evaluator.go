// Package gate decide si una estrategia está lista para pasar de paper a live.
package gate

import (
	"fmt"
	"math"

	"github.com/alejandrodnm/edgebot/internal/domain"
)

// Thresholds son los criterios de promoción a live.
type Thresholds struct {
	MinTrades                int
	MinExpectancy            float64 // estrictamente mayor
	MinProfitFactor          float64
	MaxDrawdown              float64 // fracción de Bankroll; dólares si Bankroll <= 0
	Bankroll                 float64
	MinCostTelemetryCoverage float64
	HoldoutWindows           []int
	MaxSingleTickerPnLShare  float64
}

// DefaultThresholds son los valores por defecto del gate.
func DefaultThresholds() Thresholds {
	return Thresholds{
		MinTrades:                300,
		MinExpectancy:            0,
		MinProfitFactor:          1.15,
		MaxDrawdown:              0.25,
		Bankroll:                 250,
		MinCostTelemetryCoverage: 0.95,
		HoldoutWindows:           []int{100, 200},
		MaxSingleTickerPnLShare:  0.25,
	}
}

// Check es el resultado de un criterio individual.
type Check struct {
	Name      string  `json:"name"`
	Passed    bool    `json:"passed"`
	Value     Ratio   `json:"value"`
	Threshold float64 `json:"threshold"`
	Detail    string  `json:"detail,omitempty"`
}

// Report es la salida del gate. FailingReasons lista todos los criterios fallidos.
type Report struct {
	Passed         bool     `json:"passed"`
	FailingReasons []string `json:"failing_reasons"`
	Checks         []Check  `json:"checks"`
	Metrics        Metrics  `json:"metrics"`
}

// Evaluate calcula las métricas sobre las posiciones cerradas y aplica todos
// los umbrales. Nunca se detiene en el primer fallo.
func Evaluate(state *domain.EngineState, th Thresholds) Report {
	m := ComputeMetrics(state.ClosedPositions, th.Bankroll, th.HoldoutWindows)

	drawdown := m.MaxDrawdownPct
	if th.Bankroll <= 0 {
		drawdown = m.MaxDrawdown
	}

	checks := []Check{
		{
			Name:      "min_trades",
			Passed:    m.Trades >= th.MinTrades,
			Value:     Ratio(m.Trades),
			Threshold: float64(th.MinTrades),
		},
		{
			Name:      "min_expectancy",
			Passed:    m.Trades > 0 && m.Expectancy > th.MinExpectancy,
			Value:     Ratio(m.Expectancy),
			Threshold: th.MinExpectancy,
		},
		{
			Name:      "min_profit_factor",
			Passed:    float64(m.ProfitFactor) >= th.MinProfitFactor,
			Value:     m.ProfitFactor,
			Threshold: th.MinProfitFactor,
		},
		{
			Name:      "max_drawdown",
			Passed:    drawdown <= th.MaxDrawdown,
			Value:     Ratio(drawdown),
			Threshold: th.MaxDrawdown,
		},
		{
			Name:      "min_cost_telemetry_coverage",
			Passed:    m.Trades > 0 && m.CostCoverage >= th.MinCostTelemetryCoverage,
			Value:     Ratio(m.CostCoverage),
			Threshold: th.MinCostTelemetryCoverage,
		},
	}

	for _, w := range th.HoldoutWindows {
		c := Check{Name: fmt.Sprintf("holdout_expectancy_%d", w), Threshold: 0}
		if exp, ok := m.HoldoutExpectancy[w]; ok {
			c.Value = Ratio(exp)
			c.Passed = exp > 0
		} else {
			c.Detail = fmt.Sprintf("insufficient trades: %d < %d", m.Trades, w)
		}
		checks = append(checks, c)
	}

	checks = append(checks, Check{
		Name:      "max_single_ticker_pnl_share",
		Passed:    m.MaxTickerShare <= th.MaxSingleTickerPnLShare,
		Value:     Ratio(m.MaxTickerShare),
		Threshold: th.MaxSingleTickerPnLShare,
		Detail:    m.MaxTicker,
	})

	r := Report{Passed: true, FailingReasons: []string{}, Checks: checks, Metrics: m}
	for _, c := range checks {
		if c.Passed {
			continue
		}
		r.Passed = false
		r.FailingReasons = append(r.FailingReasons, reason(c))
	}
	return r
}

func reason(c Check) string {
	if c.Detail != "" && c.Name != "max_single_ticker_pnl_share" {
		return fmt.Sprintf("%s: %s", c.Name, c.Detail)
	}
	v := float64(c.Value)
	if math.IsInf(v, 1) {
		return fmt.Sprintf("%s: value=inf threshold=%.4f", c.Name, c.Threshold)
	}
	return fmt.Sprintf("%s: value=%.4f threshold=%.4f", c.Name, v, c.Threshold)
}
