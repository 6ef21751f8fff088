package domain

import "math"

// SizingLimits son los límites duros de riesgo del sizer.
type SizingLimits struct {
	KellyFraction   float64 // fracción de Kelly aplicada (0.25 = quarter Kelly)
	PerTradeCap     float64 // máximo USD por trade
	MinPosition     float64 // mínimo USD por trade
	MaxExposure     float64 // máximo USD abierto en total
	MaxTradesPerDay int
}

// SizingInput es el contexto de una decisión de tamaño.
type SizingInput struct {
	NetEdge      float64
	Price        float64 // precio del lado a comprar
	Bankroll     float64
	OpenExposure float64 // ya descontadas las salidas del ciclo
	DailyTrades  int
}

// Motivos de skip del sizer.
const (
	SkipNoEdge      = "no_kelly_edge"
	SkipBelowMin    = "below_min_position"
	SkipExposure    = "max_exposure"
	SkipDailyTrades = "max_trades_per_day"
)

// Sizing es el resultado: tamaño o motivo de skip.
type Sizing struct {
	KellyFull    float64
	KellyApplied float64
	Notional     float64
	Contracts    int64
	Skip         string
}

// OK devuelve true si hay que abrir posición.
func (s Sizing) OK() bool {
	return s.Skip == "" && s.Contracts > 0
}

// BinaryKelly devuelve f* = (q - p) / (1 - p) para un contrato binario
// comprado a precio p con probabilidad real q. 0 si no hay edge.
func BinaryKelly(q, p float64) float64 {
	if p <= 0 || p >= 1 {
		return 0
	}
	return math.Max(0, (q-p)/(1-p))
}

// SizePosition decide cuántos contratos comprar.
//
// Orden de clamping: primero el mínimo (skip si no llega), después el cap por trade,
// después el redondeo a contratos enteros (skip si el redondeo cae bajo el mínimo).
// q se ajusta por costes: q = p + net_edge.
func SizePosition(in SizingInput, lim SizingLimits) Sizing {
	var out Sizing
	if lim.MaxTradesPerDay > 0 && in.DailyTrades >= lim.MaxTradesPerDay {
		out.Skip = SkipDailyTrades
		return out
	}

	out.KellyFull = BinaryKelly(in.Price+in.NetEdge, in.Price)
	out.KellyApplied = out.KellyFull * lim.KellyFraction
	if out.KellyApplied <= 0 || in.Bankroll <= 0 {
		out.Skip = SkipNoEdge
		return out
	}

	notional := in.Bankroll * out.KellyApplied
	if notional < lim.MinPosition {
		out.Skip = SkipBelowMin
		return out
	}
	notional = math.Min(notional, lim.PerTradeCap)

	contracts := int64(math.Floor(notional/in.Price + 1e-9))
	notional = float64(contracts) * in.Price
	if contracts <= 0 || notional < lim.MinPosition {
		out.Skip = SkipBelowMin
		return out
	}

	if in.OpenExposure+notional > lim.MaxExposure {
		out.Skip = SkipExposure
		return out
	}

	out.Notional = notional
	out.Contracts = contracts
	return out
}
