package domain

// EdgeParams son los umbrales y costes de la calculadora de edge.
type EdgeParams struct {
	FeeRate        float64 // fee por contrato en unidades de probabilidad
	SlippageFactor float64 // fracción del spread que se paga al cruzar
	MinEdge        float64 // edge bruto mínimo
	MinNetEdge     float64 // edge neto mínimo tras costes
	MaxSpread      float64
	MinConfidence  float64
	MinPrice       float64 // excluye mercados casi resueltos (0¢/100¢)
	MaxPrice       float64
	MinVolume      float64
}

// Motivos por los que un lado no es operable.
const (
	RejectNetEdge    = "net_edge_below_min"
	RejectRawEdge    = "raw_edge_below_min"
	RejectSpread     = "spread_above_max"
	RejectConfidence = "confidence_below_min"
	RejectPrice      = "price_out_of_range"
	RejectVolume     = "volume_below_min"
)

// SideEdge es el edge de un lado de un mercado.
type SideEdge struct {
	Side            Side
	Price           float64
	FairProbability float64
	RawEdge         float64
	Cost            float64
	NetEdge         float64
	Tradeable       bool
	Reject          string // primer criterio que falló; vacío si es operable
}

// Edge agrupa los dos lados.
type Edge struct {
	Ticker string
	Spread float64
	Yes    SideEdge
	No     SideEdge
}

// Side devuelve el edge del lado indicado.
func (e Edge) Side(side Side) SideEdge {
	if side == SideNo {
		return e.No
	}
	return e.Yes
}

// Best devuelve el lado operable con mayor edge neto. En empate gana YES.
func (e Edge) Best() (SideEdge, bool) {
	switch {
	case e.Yes.Tradeable && e.No.Tradeable:
		if e.No.NetEdge > e.Yes.NetEdge {
			return e.No, true
		}
		return e.Yes, true
	case e.Yes.Tradeable:
		return e.Yes, true
	case e.No.Tradeable:
		return e.No, true
	}
	return SideEdge{}, false
}

// TransactionCost estima el coste por contrato: fee + slippage × spread.
func TransactionCost(feeRate, slippageFactor, spread float64) float64 {
	return feeRate + slippageFactor*spread
}

// ComputeEdge convierte señal + cotización en edge neto por lado.
// Función pura: no tiene efectos y es determinista.
//
//	raw_yes = fair - yes_price
//	raw_no  = (1 - fair) - no_price
//	net     = raw - (fee + slippage × spread)
func ComputeEdge(sig AlphaSignal, q Quote, p EdgeParams) Edge {
	spread := q.EffectiveSpread()
	cost := TransactionCost(p.FeeRate, p.SlippageFactor, spread)
	e := Edge{Ticker: q.Ticker, Spread: spread}
	for _, side := range []Side{SideYes, SideNo} {
		price := q.Price(side)
		fair := sig.FairProbability(side)
		se := SideEdge{
			Side:            side,
			Price:           price,
			FairProbability: fair,
			RawEdge:         fair - price,
			Cost:            cost,
		}
		se.NetEdge = se.RawEdge - cost
		se.Reject = rejectReason(se, spread, sig.Confidence, q.Volume, p)
		se.Tradeable = se.Reject == ""
		if side == SideYes {
			e.Yes = se
		} else {
			e.No = se
		}
	}
	return e
}

func rejectReason(se SideEdge, spread, confidence, volume float64, p EdgeParams) string {
	switch {
	case se.NetEdge < p.MinNetEdge:
		return RejectNetEdge
	case se.RawEdge < p.MinEdge:
		return RejectRawEdge
	case spread > p.MaxSpread:
		return RejectSpread
	case confidence < p.MinConfidence:
		return RejectConfidence
	case se.Price < p.MinPrice || se.Price > p.MaxPrice:
		return RejectPrice
	case volume < p.MinVolume:
		return RejectVolume
	}
	return ""
}
