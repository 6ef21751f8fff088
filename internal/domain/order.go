package domain

// OrderAction distingue apertura (BUY) de cierre (SELL).
type OrderAction string

const (
	ActionBuy  OrderAction = "BUY"
	ActionSell OrderAction = "SELL"
)

// OrderRequest es lo que el motor pide al ejecutor.
type OrderRequest struct {
	Ticker string      `json:"ticker"`
	Side   Side        `json:"side"`
	Action OrderAction `json:"action"`
	Price  float64     `json:"price"`
	Size   int64       `json:"size"`
}

// Fill es la ejecución confirmada por el exchange (o el simulador).
type Fill struct {
	OrderID string  `json:"order_id,omitempty"`
	Price   float64 `json:"price"`
	Size    int64   `json:"size"`
}
