package domain

import (
	"fmt"
	"strings"
	"time"
)

// AlphaSignal es una estimación externa de la probabilidad real de YES.
// Inmutable una vez emitida; la más reciente por ticker gana.
type AlphaSignal struct {
	Ticker             string    `json:"ticker"`
	FairYesProbability float64   `json:"fair_yes_probability"`
	Confidence         float64   `json:"confidence"`
	ObservedAt         time.Time `json:"observed_at"`
	Expiry             time.Time `json:"expiry"`
	Source             string    `json:"source,omitempty"`
}

// Validate rechaza la señal en la frontera (al cargarla, no al usarla).
func (s AlphaSignal) Validate() error {
	if strings.TrimSpace(s.Ticker) == "" {
		return fmt.Errorf("signal: empty ticker")
	}
	if !inUnit(s.FairYesProbability) {
		return fmt.Errorf("signal %s: fair_yes_probability %.4f outside [0,1]", s.Ticker, s.FairYesProbability)
	}
	if !inUnit(s.Confidence) {
		return fmt.Errorf("signal %s: confidence %.4f outside [0,1]", s.Ticker, s.Confidence)
	}
	if s.Expiry.IsZero() {
		return fmt.Errorf("signal %s: missing expiry", s.Ticker)
	}
	return nil
}

// Expired devuelve true si la señal ya no es utilizable en now.
func (s AlphaSignal) Expired(now time.Time) bool {
	return !now.Before(s.Expiry)
}

// FairProbability devuelve la probabilidad justa del lado indicado.
func (s AlphaSignal) FairProbability(side Side) float64 {
	if side == SideNo {
		return 1 - s.FairYesProbability
	}
	return s.FairYesProbability
}

// SignalBook mantiene la última señal por ticker.
type SignalBook map[string]AlphaSignal

// Merge incorpora sig si es más reciente que la existente (o si no hay ninguna).
// Devuelve true si la señal reemplazó a la anterior.
func (b SignalBook) Merge(sig AlphaSignal) bool {
	prev, ok := b[sig.Ticker]
	if ok && sig.ObservedAt.Before(prev.ObservedAt) {
		return false
	}
	b[sig.Ticker] = sig
	return true
}

// Active devuelve la señal del ticker solo si sigue vigente en now.
func (b SignalBook) Active(ticker string, now time.Time) (AlphaSignal, error) {
	sig, ok := b[ticker]
	if !ok {
		return AlphaSignal{}, fmt.Errorf("no signal for %s", ticker)
	}
	if sig.Expired(now) {
		return sig, fmt.Errorf("signal for %s expired at %s: %w", ticker, sig.Expiry.Format(time.RFC3339), ErrSignalExpired)
	}
	return sig, nil
}

func inUnit(v float64) bool {
	return v >= 0 && v <= 1
}
