package live_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/alejandrodnm/edgebot/internal/application/engine/lifecycle"
	"github.com/alejandrodnm/edgebot/internal/application/engine/live"
	"github.com/alejandrodnm/edgebot/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- mocks ---

type mockQuotes struct {
	mu          sync.Mutex
	quotes      map[string]domain.Quote
	unavailable map[string]bool
	calls       []string
}

func (m *mockQuotes) GetQuote(_ context.Context, ticker string) (domain.Quote, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, ticker)
	if m.unavailable[ticker] {
		return domain.Quote{}, domain.ErrQuoteUnavailable
	}
	q, ok := m.quotes[ticker]
	if !ok {
		return domain.Quote{}, errors.New("timeout")
	}
	return q, nil
}

type mockFeed struct {
	book domain.SignalBook
	err  error
}

func (m *mockFeed) Signals(_ context.Context) (domain.SignalBook, error) {
	return m.book, m.err
}

type mockExecutor struct{}

func (mockExecutor) PlaceOrder(_ context.Context, req domain.OrderRequest) (domain.Fill, error) {
	return domain.Fill{Price: req.Price, Size: req.Size}, nil
}

// cancelAfterFill llena la orden y cancela el contexto del loop, como un
// SIGINT que llega a mitad de ciclo.
type cancelAfterFill struct {
	cancel context.CancelFunc
}

func (c cancelAfterFill) PlaceOrder(_ context.Context, req domain.OrderRequest) (domain.Fill, error) {
	c.cancel()
	return domain.Fill{Price: req.Price, Size: req.Size}, nil
}

// ctxStore falla con un contexto cancelado, igual que BeginTx en SQLite.
type ctxStore struct {
	mockStore
}

func (m *ctxStore) Save(ctx context.Context, st *domain.EngineState) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return m.mockStore.Save(ctx, st)
}

type mockStore struct {
	saved []*domain.EngineState
	err   error
}

func (m *mockStore) Load(_ context.Context) (*domain.EngineState, error) {
	return domain.NewEngineState(), nil
}

func (m *mockStore) Save(_ context.Context, st *domain.EngineState) error {
	if m.err != nil {
		return m.err
	}
	m.saved = append(m.saved, st)
	return nil
}

func (m *mockStore) Close() error { return nil }

type mockNotifier struct {
	results []domain.CycleResult
	err     error
}

func (m *mockNotifier) NotifyCycle(_ context.Context, res domain.CycleResult) error {
	m.results = append(m.results, res)
	return m.err
}

type mockRecorder struct {
	cycles int
	fatal  error
}

func (m *mockRecorder) ObserveCycle(domain.CycleResult, time.Duration) { m.cycles++ }
func (m *mockRecorder) ObserveFatal(err error)                         { m.fatal = err }

// --- helpers ---

var now = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func makeEngine() *lifecycle.Engine {
	return lifecycle.New(lifecycle.Config{
		Edge: domain.EdgeParams{
			FeeRate:        0.01,
			SlippageFactor: 0.2,
			MinEdge:        0.03,
			MinNetEdge:     0.015,
			MaxSpread:      0.08,
			MinConfidence:  0.6,
			MinPrice:       0.02,
			MaxPrice:       0.98,
		},
		Sizing: domain.SizingLimits{
			KellyFraction:   0.25,
			PerTradeCap:     20,
			MinPosition:     5,
			MaxExposure:     150,
			MaxTradesPerDay: 50,
		},
		Bankroll:   250,
		TakeProfit: 0.2,
		StopLoss:   0.12,
		MaxHolding: 4 * time.Hour,
	}, nil)
}

func makeFeed(tickers ...string) *mockFeed {
	book := domain.SignalBook{}
	for _, t := range tickers {
		book[t] = domain.AlphaSignal{
			Ticker:             t,
			FairYesProbability: 0.7,
			Confidence:         0.9,
			ObservedAt:         now,
			Expiry:             now.Add(time.Hour),
		}
	}
	return &mockFeed{book: book}
}

func fixedClock() time.Time { return now }

// --- tests ---

func TestLoop_RunOnceFetchesSavesAndNotifies(t *testing.T) {
	quotes := &mockQuotes{
		quotes: map[string]domain.Quote{
			"A": {Ticker: "A", YesPrice: 0.5, NoPrice: 0.52},
		},
		unavailable: map[string]bool{"B": true},
	}
	store := &mockStore{}
	notifier := &mockNotifier{}
	rec := &mockRecorder{}

	loop := live.New(makeEngine(), quotes, makeFeed("A", "B", "C"), mockExecutor{}, store,
		live.Config{FetchWorkers: 2},
		live.WithNotifier(notifier), live.WithRecorder(rec), live.WithClock(fixedClock))

	res, err := loop.RunOnce(context.Background())
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{"A", "B", "C"}, quotes.calls)
	require.Len(t, res.Entries, 1)
	assert.Equal(t, "A", res.Entries[0].Ticker)
	assert.Equal(t, now, res.At)

	require.Len(t, store.saved, 1)
	assert.Len(t, store.saved[0].OpenPositions, 1)
	assert.Len(t, notifier.results, 1)
	assert.Equal(t, 1, rec.cycles)
}

func TestLoop_SaveFailureIsFatal(t *testing.T) {
	quotes := &mockQuotes{quotes: map[string]domain.Quote{}}
	store := &mockStore{err: errors.New("disk full")}
	rec := &mockRecorder{}

	loop := live.New(makeEngine(), quotes, makeFeed(), mockExecutor{}, store,
		live.Config{Interval: time.Millisecond}, live.WithRecorder(rec), live.WithClock(fixedClock))

	err := loop.Run(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrStatePersist)
	assert.ErrorIs(t, rec.fatal, domain.ErrStatePersist)
}

func TestLoop_StopsAtMaxCycles(t *testing.T) {
	quotes := &mockQuotes{quotes: map[string]domain.Quote{}}
	store := &mockStore{}

	loop := live.New(makeEngine(), quotes, makeFeed(), mockExecutor{}, store,
		live.Config{Interval: time.Millisecond, MaxCycles: 3}, live.WithClock(fixedClock))

	require.NoError(t, loop.Run(context.Background()))
	assert.Len(t, store.saved, 3)
}

func TestLoop_StopsOnContextCancel(t *testing.T) {
	quotes := &mockQuotes{quotes: map[string]domain.Quote{}}
	store := &mockStore{}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	loop := live.New(makeEngine(), quotes, makeFeed(), mockExecutor{}, store,
		live.Config{Interval: time.Hour}, live.WithClock(fixedClock))

	require.NoError(t, loop.Run(ctx))
	assert.Len(t, store.saved, 1, "first cycle runs before waiting")
}

func TestLoop_StopFile(t *testing.T) {
	stop := filepath.Join(t.TempDir(), "STOP")
	require.NoError(t, os.WriteFile(stop, nil, 0o644))

	store := &mockStore{}
	loop := live.New(makeEngine(), &mockQuotes{quotes: map[string]domain.Quote{}}, makeFeed(), mockExecutor{}, store,
		live.Config{Interval: time.Millisecond, StopFile: stop}, live.WithClock(fixedClock))

	require.NoError(t, loop.Run(context.Background()))
	assert.Len(t, store.saved, 1)
	assert.NoFileExists(t, stop)
}

func TestLoop_FeedFailureReusesPreviousSignals(t *testing.T) {
	quotes := &mockQuotes{quotes: map[string]domain.Quote{
		"A": {Ticker: "A", YesPrice: 0.5, NoPrice: 0.52},
	}}
	feed := makeFeed("A")
	loop := live.New(makeEngine(), quotes, feed, mockExecutor{}, &mockStore{}, live.Config{}, live.WithClock(fixedClock))

	_, err := loop.RunOnce(context.Background())
	require.NoError(t, err)

	feed.err = errors.New("file locked")
	quotes.calls = nil
	res, err := loop.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"A"}, quotes.calls)
	assert.Equal(t, 1, res.OpenPositions)
}

func TestLoop_CancelAfterFillStillPersistsCycle(t *testing.T) {
	quotes := &mockQuotes{quotes: map[string]domain.Quote{
		"A": {Ticker: "A", YesPrice: 0.5, NoPrice: 0.52},
	}}
	store := &ctxStore{}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	loop := live.New(makeEngine(), quotes, makeFeed("A"), cancelAfterFill{cancel: cancel}, store,
		live.Config{Interval: time.Hour}, live.WithClock(fixedClock))

	res, err := loop.RunOnce(ctx)
	require.NoError(t, err)
	require.Len(t, res.Entries, 1)
	require.Error(t, ctx.Err())

	require.Len(t, store.saved, 1)
	require.Len(t, store.saved[0].OpenPositions, 1)
	assert.Equal(t, "A", store.saved[0].OpenPositions[0].Ticker)
}

func TestLoop_RunStopsCleanlyAfterMidCycleCancel(t *testing.T) {
	quotes := &mockQuotes{quotes: map[string]domain.Quote{
		"A": {Ticker: "A", YesPrice: 0.5, NoPrice: 0.52},
	}}
	store := &ctxStore{}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	loop := live.New(makeEngine(), quotes, makeFeed("A"), cancelAfterFill{cancel: cancel}, store,
		live.Config{Interval: time.Hour}, live.WithClock(fixedClock))

	require.NoError(t, loop.Run(ctx))
	require.Len(t, store.saved, 1)
	assert.Len(t, store.saved[0].OpenPositions, 1)
}
