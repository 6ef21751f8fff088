package domain

import (
	"fmt"
	"time"
)

// Snapshot es una foto histórica del mercado para el replay.
type Snapshot struct {
	Timestamp time.Time              `json:"timestamp"`
	Sequence  int64                  `json:"sequence"`
	Quotes    []Quote                `json:"quotes"`
	Signals   map[string]AlphaSignal `json:"signals,omitempty"`
}

// Validate comprueba cotizaciones y señales del snapshot.
// Las señales sin ticker heredan la clave del mapa; una señal cuyo ticker no
// coincide con su clave se rechaza.
func (s *Snapshot) Validate() error {
	if s.Timestamp.IsZero() {
		return fmt.Errorf("snapshot %d: missing timestamp", s.Sequence)
	}
	for i := range s.Quotes {
		if s.Quotes[i].Timestamp.IsZero() {
			s.Quotes[i].Timestamp = s.Timestamp
		}
		if err := s.Quotes[i].Validate(); err != nil {
			return fmt.Errorf("snapshot %d: %w", s.Sequence, err)
		}
	}
	for ticker, sig := range s.Signals {
		if sig.Ticker == "" {
			sig.Ticker = ticker
		}
		if sig.Ticker != ticker {
			return fmt.Errorf("snapshot %d: signal key %q names ticker %q", s.Sequence, ticker, sig.Ticker)
		}
		if sig.ObservedAt.IsZero() {
			sig.ObservedAt = s.Timestamp
		}
		if err := sig.Validate(); err != nil {
			return fmt.Errorf("snapshot %d: %w", s.Sequence, err)
		}
		s.Signals[ticker] = sig
	}
	return nil
}

// QuoteMap indexa las cotizaciones por ticker.
func (s Snapshot) QuoteMap() map[string]Quote {
	out := make(map[string]Quote, len(s.Quotes))
	for _, q := range s.Quotes {
		out[q.Ticker] = q
	}
	return out
}
