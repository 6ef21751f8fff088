// Package signals lee señales alpha generadas fuera de banda.
package signals

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/alejandrodnm/edgebot/internal/domain"
	"github.com/alejandrodnm/edgebot/internal/ports"
)

var _ ports.SignalFeed = (*FileFeed)(nil)

// DefaultTTL es la vigencia de una señal sin expiry ni horizon_minutes.
const DefaultTTL = time.Hour

// signalFile es el formato en disco:
//
//	{"generated_at": "...", "signals": {"TICKER": {"fair_yes_probability": 0.6, ...}}}
type signalFile struct {
	GeneratedAt time.Time                `json:"generated_at"`
	Signals     map[string]signalPayload `json:"signals"`
}

type signalPayload struct {
	FairYesProbability *float64   `json:"fair_yes_probability"`
	Confidence         *float64   `json:"confidence"`
	Source             string     `json:"source"`
	ObservedAt         *time.Time `json:"observed_at"`
	Expiry             *time.Time `json:"expiry"`
	HorizonMinutes     *int       `json:"horizon_minutes"`
}

// FileFeed implementa ports.SignalFeed sobre un archivo JSON. Solo relee el
// archivo cuando cambia su mtime.
type FileFeed struct {
	path string
	ttl  time.Duration

	mu      sync.Mutex
	modTime time.Time
	cached  domain.SignalBook
}

// NewFileFeed crea un feed sobre path. ttl <= 0 usa DefaultTTL.
func NewFileFeed(path string, ttl time.Duration) *FileFeed {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &FileFeed{path: path, ttl: ttl}
}

// Signals devuelve el libro de señales del archivo. Un archivo inexistente es
// un libro vacío; un archivo ilegible es un error (el loop reusa el anterior).
// Las señales inválidas se descartan con un warning.
func (f *FileFeed) Signals(_ context.Context) (domain.SignalBook, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	info, err := os.Stat(f.path)
	if errors.Is(err, fs.ErrNotExist) {
		return domain.SignalBook{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("signals.Signals: stat %q: %w", f.path, err)
	}
	if f.cached != nil && info.ModTime().Equal(f.modTime) {
		return cloneBook(f.cached), nil
	}

	data, err := os.ReadFile(f.path)
	if err != nil {
		return nil, fmt.Errorf("signals.Signals: read %q: %w", f.path, err)
	}
	book, err := Parse(data, info.ModTime(), f.ttl)
	if err != nil {
		return nil, fmt.Errorf("signals.Signals: %w", err)
	}

	f.cached = book
	f.modTime = info.ModTime()
	slog.Debug("signals loaded", "path", f.path, "count", len(book))
	return cloneBook(book), nil
}

// Parse decodifica el formato de archivo de señales. fallback se usa como
// generated_at cuando el archivo no lo trae.
func Parse(data []byte, fallback time.Time, ttl time.Duration) (domain.SignalBook, error) {
	var file signalFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse signal file: %w", err)
	}
	generated := file.GeneratedAt
	if generated.IsZero() {
		generated = fallback
	}
	generated = generated.UTC()

	book := make(domain.SignalBook, len(file.Signals))
	for ticker, raw := range file.Signals {
		sig, err := raw.toSignal(ticker, generated, ttl)
		if err != nil {
			slog.Warn("signal discarded", "ticker", ticker, "err", err)
			continue
		}
		book.Merge(sig)
	}
	return book, nil
}

func (p signalPayload) toSignal(ticker string, generated time.Time, ttl time.Duration) (domain.AlphaSignal, error) {
	if p.FairYesProbability == nil {
		return domain.AlphaSignal{}, fmt.Errorf("missing fair_yes_probability")
	}
	sig := domain.AlphaSignal{
		Ticker:             ticker,
		FairYesProbability: *p.FairYesProbability,
		Confidence:         0.5,
		Source:             p.Source,
		ObservedAt:         generated,
	}
	if p.Confidence != nil {
		sig.Confidence = *p.Confidence
	}
	if p.ObservedAt != nil {
		sig.ObservedAt = p.ObservedAt.UTC()
	}
	switch {
	case p.Expiry != nil:
		sig.Expiry = p.Expiry.UTC()
	case p.HorizonMinutes != nil && *p.HorizonMinutes > 0:
		sig.Expiry = sig.ObservedAt.Add(time.Duration(*p.HorizonMinutes) * time.Minute)
	default:
		sig.Expiry = sig.ObservedAt.Add(ttl)
	}
	return sig, sig.Validate()
}

func cloneBook(b domain.SignalBook) domain.SignalBook {
	out := make(domain.SignalBook, len(b))
	for k, v := range b {
		out[k] = v
	}
	return out
}
