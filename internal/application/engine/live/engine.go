package live

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/alejandrodnm/edgebot/internal/application/engine"
	"github.com/alejandrodnm/edgebot/internal/application/engine/lifecycle"
	"github.com/alejandrodnm/edgebot/internal/domain"
	"github.com/alejandrodnm/edgebot/internal/ports"
	"golang.org/x/sync/errgroup"
)

const (
	defaultInterval     = 60 * time.Second
	defaultFetchWorkers = 8
	defaultStopFile     = "STOP"
)

// Config holds configuration for the trading loop.
type Config struct {
	Interval     time.Duration
	MaxCycles    int64 // 0 = run until cancelled
	FetchWorkers int
	StopFile     string
}

// Recorder receives per-cycle observations (metrics).
type Recorder interface {
	ObserveCycle(res domain.CycleResult, took time.Duration)
	ObserveFatal(err error)
}

// Loop drives the lifecycle engine against live quotes and signals.
type Loop struct {
	engine   engine.CycleRunner
	quotes   ports.QuoteSource
	signals  ports.SignalFeed
	executor ports.OrderExecutor
	store    ports.StateStore
	notifier ports.Notifier
	recorder Recorder
	clock    func() time.Time
	cfg      Config

	lastSignals domain.SignalBook
	cycles      int64
}

// Option customizes a Loop.
type Option func(*Loop)

// WithNotifier sends every cycle result to n.
func WithNotifier(n ports.Notifier) Option {
	return func(l *Loop) { l.notifier = n }
}

// WithRecorder records metrics for every cycle.
func WithRecorder(r Recorder) Option {
	return func(l *Loop) { l.recorder = r }
}

// WithClock overrides the wall clock (tests).
func WithClock(clock func() time.Time) Option {
	return func(l *Loop) { l.clock = clock }
}

// New creates a trading loop.
func New(
	eng engine.CycleRunner,
	quotes ports.QuoteSource,
	signals ports.SignalFeed,
	executor ports.OrderExecutor,
	store ports.StateStore,
	cfg Config,
	opts ...Option,
) *Loop {
	if cfg.Interval <= 0 {
		cfg.Interval = defaultInterval
	}
	if cfg.FetchWorkers <= 0 {
		cfg.FetchWorkers = defaultFetchWorkers
	}
	if cfg.StopFile == "" {
		cfg.StopFile = defaultStopFile
	}
	l := &Loop{
		engine:      eng,
		quotes:      quotes,
		signals:     signals,
		executor:    executor,
		store:       store,
		cfg:         cfg,
		clock:       time.Now,
		lastSignals: domain.SignalBook{},
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Run executes cycles until the context is cancelled, max_cycles is reached,
// the STOP file appears or a fatal error occurs. A graceful stop returns nil.
func (l *Loop) Run(ctx context.Context) error {
	slog.Info("live: loop started, press Ctrl+C or create STOP file to exit",
		"interval", l.cfg.Interval,
		"max_cycles", l.cfg.MaxCycles,
	)

	if err := l.step(ctx); err != nil {
		return err
	}
	if l.done() {
		return nil
	}

	ticker := time.NewTicker(l.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("live: loop stopped (signal)", "total_cycles", l.cycles)
			return nil
		case <-ticker.C:
			if _, err := os.Stat(l.cfg.StopFile); err == nil {
				slog.Info("STOP file detected, shutting down trading loop", "total_cycles", l.cycles)
				os.Remove(l.cfg.StopFile)
				return nil
			}
			if err := l.step(ctx); err != nil {
				return err
			}
			if l.done() {
				return nil
			}
		}
	}
}

func (l *Loop) step(ctx context.Context) error {
	_, err := l.RunOnce(ctx)
	if err != nil {
		slog.Error("live: cycle failed, stopping", "cycle", l.cycles, "err", err)
		if l.recorder != nil {
			l.recorder.ObserveFatal(err)
		}
	}
	return err
}

func (l *Loop) done() bool {
	if l.cfg.MaxCycles > 0 && l.cycles >= l.cfg.MaxCycles {
		slog.Info("live: max cycles reached", "total_cycles", l.cycles)
		return true
	}
	return false
}

// RunOnce executes exactly one cycle: signals → quotes → engine → save → report.
// Only invariant violations and persistence failures are returned.
func (l *Loop) RunOnce(ctx context.Context) (*domain.CycleResult, error) {
	start := l.clock()

	signals := l.refreshSignals(ctx)
	tickers := engine.WatchList(l.engine.Snapshot(), signals)
	quotes, unavailable := l.fetchQuotes(ctx, tickers)

	// Desde aquí el ciclo es una unidad: decisiones, órdenes y save no se
	// interrumpen aunque llegue SIGINT, o una orden ejecutada no quedaría en disco.
	unitCtx := context.WithoutCancel(ctx)

	res, err := l.engine.RunCycle(unitCtx, lifecycle.CycleInput{
		Now:         start.UTC(),
		Quotes:      quotes,
		Unavailable: unavailable,
		Signals:     signals,
	}, l.executor)
	if err != nil {
		return nil, fmt.Errorf("live.RunOnce: %w", err)
	}
	l.cycles++

	if err := l.store.Save(unitCtx, l.engine.Snapshot()); err != nil {
		return nil, fmt.Errorf("live.RunOnce: %w: %w", domain.ErrStatePersist, err)
	}

	if l.recorder != nil {
		l.recorder.ObserveCycle(res, l.clock().Sub(start))
	}
	if l.notifier != nil {
		if err := l.notifier.NotifyCycle(ctx, res); err != nil {
			slog.Warn("live: notify failed", "err", err)
		}
	}
	return &res, nil
}

// refreshSignals reads the feed and merges it into the last known book.
// On failure the previous book is reused so open positions keep their thesis.
func (l *Loop) refreshSignals(ctx context.Context) domain.SignalBook {
	fresh, err := l.signals.Signals(ctx)
	if err != nil {
		slog.Warn("live: signal feed failed, reusing previous signals", "err", err)
		return l.lastSignals
	}
	for _, sig := range fresh {
		l.lastSignals.Merge(sig)
	}
	return l.lastSignals
}

// fetchQuotes pide las cotizaciones en paralelo con un límite de workers.
// Un fallo por ticker nunca aborta el ciclo.
func (l *Loop) fetchQuotes(ctx context.Context, tickers []string) (map[string]domain.Quote, map[string]bool) {
	var (
		mu          sync.Mutex
		quotes      = make(map[string]domain.Quote, len(tickers))
		unavailable = make(map[string]bool)
	)

	var g errgroup.Group
	g.SetLimit(l.cfg.FetchWorkers)
	for _, ticker := range tickers {
		g.Go(func() error {
			q, err := l.quotes.GetQuote(ctx, ticker)
			if err == nil {
				err = q.Validate()
			}

			mu.Lock()
			defer mu.Unlock()
			switch {
			case errors.Is(err, domain.ErrQuoteUnavailable):
				unavailable[ticker] = true
			case err != nil:
				slog.Warn("live: quote fetch failed", "ticker", ticker, "err", err)
			default:
				quotes[ticker] = q
			}
			return nil
		})
	}
	_ = g.Wait()
	return quotes, unavailable
}
