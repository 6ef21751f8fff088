package exchange

import "encoding/json"

// DTOs raw del exchange. Solo se usan dentro de este paquete; la conversión
// a domain se hace en mapping.go. Los precios viajan como strings.

// quoteResponse es la respuesta de GET /markets/{ticker}/quote.
type quoteResponse struct {
	Ticker    string      `json:"ticker"`
	Status    string      `json:"status"` // open | closed | settled
	YesAsk    string      `json:"yes_ask"`
	NoAsk     string      `json:"no_ask"`
	YesBid    string      `json:"yes_bid"`
	NoBid     string      `json:"no_bid"`
	Volume    json.Number `json:"volume"`
	UpdatedAt string      `json:"updated_at"`
}

// orderRequest es el body de POST /orders.
type orderRequest struct {
	ClientOrderID string `json:"client_order_id"`
	Ticker        string `json:"ticker"`
	Side          string `json:"side"`   // yes | no
	Action        string `json:"action"` // buy | sell
	Price         string `json:"price"`
	Count         int64  `json:"count"`
	TimeInForce   string `json:"time_in_force"`
}

// orderResponse es la respuesta de POST /orders.
type orderResponse struct {
	OrderID      string `json:"order_id"`
	Status       string `json:"status"` // filled | canceled | rejected
	FilledCount  int64  `json:"filled_count"`
	AvgPrice     string `json:"avg_price"`
	RejectReason string `json:"reject_reason"`
}

// errorResponse es el body de una respuesta 4xx/5xx.
type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
