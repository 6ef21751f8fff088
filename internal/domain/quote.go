package domain

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// Side es el lado de un contrato binario.
type Side string

const (
	SideYes Side = "YES"
	SideNo  Side = "NO"
)

// Valid devuelve true para YES o NO.
func (s Side) Valid() bool {
	return s == SideYes || s == SideNo
}

// Quote es la cotización de un mercado binario en un instante.
// YesPrice/NoPrice son precios de compra (ask). Los bids son opcionales:
// si faltan se infieren del ask contrario (bid YES = 1 - ask NO).
type Quote struct {
	Ticker    string    `json:"ticker"`
	YesPrice  float64   `json:"yes_price"`
	NoPrice   float64   `json:"no_price"`
	YesBid    float64   `json:"yes_bid,omitempty"`
	NoBid     float64   `json:"no_bid,omitempty"`
	Spread    *float64  `json:"spread,omitempty"`
	Volume    float64   `json:"volume"`
	Timestamp time.Time `json:"timestamp"`
}

// Validate rechaza cotizaciones con asks fuera de (0,1), bids fuera de [0,1)
// (0 = no informado) o cualquier valor NaN.
func (q Quote) Validate() error {
	if strings.TrimSpace(q.Ticker) == "" {
		return fmt.Errorf("quote: empty ticker")
	}
	if math.IsNaN(q.YesPrice) || q.YesPrice <= 0 || q.YesPrice >= 1 {
		return fmt.Errorf("quote %s: yes_price %.4f outside (0,1)", q.Ticker, q.YesPrice)
	}
	if math.IsNaN(q.NoPrice) || q.NoPrice <= 0 || q.NoPrice >= 1 {
		return fmt.Errorf("quote %s: no_price %.4f outside (0,1)", q.Ticker, q.NoPrice)
	}
	if math.IsNaN(q.YesBid) || q.YesBid < 0 || q.YesBid >= 1 {
		return fmt.Errorf("quote %s: yes_bid %.4f outside [0,1)", q.Ticker, q.YesBid)
	}
	if math.IsNaN(q.NoBid) || q.NoBid < 0 || q.NoBid >= 1 {
		return fmt.Errorf("quote %s: no_bid %.4f outside [0,1)", q.Ticker, q.NoBid)
	}
	if q.Spread != nil && (math.IsNaN(*q.Spread) || *q.Spread < 0) {
		return fmt.Errorf("quote %s: invalid spread", q.Ticker)
	}
	if math.IsNaN(q.Volume) || q.Volume < 0 {
		return fmt.Errorf("quote %s: invalid volume", q.Ticker)
	}
	return nil
}

// EffectiveSpread devuelve el spread informado o |yes - (1 - no)|.
func (q Quote) EffectiveSpread() float64 {
	if q.Spread != nil {
		return *q.Spread
	}
	return math.Abs(q.YesPrice - (1 - q.NoPrice))
}

// Price devuelve el precio de entrada (ask) del lado.
func (q Quote) Price(side Side) float64 {
	if side == SideNo {
		return q.NoPrice
	}
	return q.YesPrice
}

// MarkPrice devuelve el precio al que se podría vender el lado ahora (bid).
func (q Quote) MarkPrice(side Side) float64 {
	if side == SideNo {
		if q.NoBid > 0 {
			return q.NoBid
		}
		return clampUnit(1 - q.YesPrice)
	}
	if q.YesBid > 0 {
		return q.YesBid
	}
	return clampUnit(1 - q.NoPrice)
}

func clampUnit(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
