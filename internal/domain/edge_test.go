package domain_test

import (
	"math"
	"testing"
	"time"

	"github.com/alejandrodnm/edgebot/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr(v float64) *float64 { return &v }

func makeParams() domain.EdgeParams {
	return domain.EdgeParams{
		FeeRate:        0.01,
		SlippageFactor: 0.2,
		MinEdge:        0.03,
		MinNetEdge:     0.015,
		MaxSpread:      0.08,
		MinConfidence:  0.6,
		MinPrice:       0.02,
		MaxPrice:       0.98,
		MinVolume:      0,
	}
}

func makeSignal(ticker string, fair, conf float64) domain.AlphaSignal {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	return domain.AlphaSignal{
		Ticker:             ticker,
		FairYesProbability: fair,
		Confidence:         conf,
		ObservedAt:         now,
		Expiry:             now.Add(time.Hour),
	}
}

func TestComputeEdge_ScenarioYesTradeable(t *testing.T) {
	sig := makeSignal("X", 0.70, 0.9)
	q := domain.Quote{Ticker: "X", YesPrice: 0.50, NoPrice: 0.52, Spread: ptr(0.02)}

	e := domain.ComputeEdge(sig, q, makeParams())

	assert.InDelta(t, 0.20, e.Yes.RawEdge, 1e-9)
	assert.InDelta(t, 0.014, e.Yes.Cost, 1e-9)
	assert.InDelta(t, 0.186, e.Yes.NetEdge, 1e-9)
	assert.True(t, e.Yes.Tradeable)
	assert.Empty(t, e.Yes.Reject)

	// NO: 0.30 - 0.52 < 0
	assert.False(t, e.No.Tradeable)
	assert.Equal(t, domain.RejectNetEdge, e.No.Reject)

	best, ok := e.Best()
	require.True(t, ok)
	assert.Equal(t, domain.SideYes, best.Side)
}

func TestComputeEdge_NetNeverExceedsRaw(t *testing.T) {
	p := makeParams()
	for _, fair := range []float64{0.05, 0.3, 0.5, 0.71, 0.99} {
		for _, yes := range []float64{0.1, 0.4, 0.6, 0.9} {
			q := domain.Quote{Ticker: "X", YesPrice: yes, NoPrice: 1 - yes + 0.03}
			e := domain.ComputeEdge(makeSignal("X", fair, 1), q, p)
			assert.LessOrEqual(t, e.Yes.NetEdge, e.Yes.RawEdge)
			assert.LessOrEqual(t, e.No.NetEdge, e.No.RawEdge)
		}
	}
}

func TestComputeEdge_DerivedSpread(t *testing.T) {
	q := domain.Quote{Ticker: "X", YesPrice: 0.55, NoPrice: 0.50}
	assert.InDelta(t, 0.05, q.EffectiveSpread(), 1e-9)

	e := domain.ComputeEdge(makeSignal("X", 0.8, 0.9), q, makeParams())
	assert.InDelta(t, 0.05, e.Spread, 1e-9)
	assert.InDelta(t, 0.01+0.2*0.05, e.Yes.Cost, 1e-9)
}

func TestComputeEdge_RejectReasons(t *testing.T) {
	tests := []struct {
		name   string
		sig    domain.AlphaSignal
		quote  domain.Quote
		mutate func(*domain.EdgeParams)
		want   string
	}{
		{
			name:  "wide spread",
			sig:   makeSignal("X", 0.8, 0.9),
			quote: domain.Quote{Ticker: "X", YesPrice: 0.5, NoPrice: 0.4, Spread: ptr(0.10)},
			mutate: func(p *domain.EdgeParams) {
				p.SlippageFactor = 0
			},
			want: domain.RejectSpread,
		},
		{
			name:  "low confidence",
			sig:   makeSignal("X", 0.8, 0.3),
			quote: domain.Quote{Ticker: "X", YesPrice: 0.5, NoPrice: 0.52},
			want:  domain.RejectConfidence,
		},
		{
			name:  "price near resolution",
			sig:   makeSignal("X", 0.5, 0.9),
			quote: domain.Quote{Ticker: "X", YesPrice: 0.01, NoPrice: 0.98},
			want:  domain.RejectPrice,
		},
		{
			name:  "thin market",
			sig:   makeSignal("X", 0.8, 0.9),
			quote: domain.Quote{Ticker: "X", YesPrice: 0.5, NoPrice: 0.52, Volume: 10},
			mutate: func(p *domain.EdgeParams) {
				p.MinVolume = 500
			},
			want: domain.RejectVolume,
		},
		{
			name:  "raw edge below min with zero costs",
			sig:   makeSignal("X", 0.52, 0.9),
			quote: domain.Quote{Ticker: "X", YesPrice: 0.5, NoPrice: 0.5, Spread: ptr(0)},
			mutate: func(p *domain.EdgeParams) {
				p.FeeRate = 0
				p.MinNetEdge = 0
			},
			want: domain.RejectRawEdge,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := makeParams()
			if tt.mutate != nil {
				tt.mutate(&p)
			}
			e := domain.ComputeEdge(tt.sig, tt.quote, p)
			assert.False(t, e.Yes.Tradeable)
			assert.Equal(t, tt.want, e.Yes.Reject)
		})
	}
}

func TestEdge_BestPrefersHigherNet(t *testing.T) {
	e := domain.Edge{
		Yes: domain.SideEdge{Side: domain.SideYes, NetEdge: 0.02, Tradeable: true},
		No:  domain.SideEdge{Side: domain.SideNo, NetEdge: 0.05, Tradeable: true},
	}
	best, ok := e.Best()
	require.True(t, ok)
	assert.Equal(t, domain.SideNo, best.Side)

	e.No.NetEdge = 0.02
	best, _ = e.Best()
	assert.Equal(t, domain.SideYes, best.Side, "ties go to YES")

	_, ok = domain.Edge{}.Best()
	assert.False(t, ok)
}

func TestQuote_MarkPrice(t *testing.T) {
	q := domain.Quote{Ticker: "X", YesPrice: 0.40, NoPrice: 0.62}
	assert.InDelta(t, 0.38, q.MarkPrice(domain.SideYes), 1e-9)
	assert.InDelta(t, 0.60, q.MarkPrice(domain.SideNo), 1e-9)

	q.YesBid = 0.39
	assert.InDelta(t, 0.39, q.MarkPrice(domain.SideYes), 1e-9)
}

func TestQuote_Validate(t *testing.T) {
	assert.NoError(t, domain.Quote{Ticker: "X", YesPrice: 0.4, NoPrice: 0.6}.Validate())
	assert.Error(t, domain.Quote{Ticker: "X", YesPrice: 0, NoPrice: 0.6}.Validate())
	assert.Error(t, domain.Quote{Ticker: "X", YesPrice: 0.4, NoPrice: 1}.Validate())
	assert.Error(t, domain.Quote{YesPrice: 0.4, NoPrice: 0.6}.Validate())
	assert.Error(t, domain.Quote{Ticker: "X", YesPrice: 0.4, NoPrice: 0.6, Spread: ptr(-0.1)}.Validate())
}

func TestQuote_ValidateBidsAndNaN(t *testing.T) {
	nan := math.NaN()
	tests := []struct {
		name string
		q    domain.Quote
		ok   bool
	}{
		{"bids set", domain.Quote{Ticker: "X", YesPrice: 0.4, NoPrice: 0.62, YesBid: 0.38, NoBid: 0.59}, true},
		{"bids unset", domain.Quote{Ticker: "X", YesPrice: 0.4, NoPrice: 0.62}, true},
		{"yes bid above one", domain.Quote{Ticker: "X", YesPrice: 0.5, NoPrice: 0.52, YesBid: 1.5}, false},
		{"no bid at one", domain.Quote{Ticker: "X", YesPrice: 0.5, NoPrice: 0.52, NoBid: 1}, false},
		{"negative bid", domain.Quote{Ticker: "X", YesPrice: 0.5, NoPrice: 0.52, YesBid: -0.1}, false},
		{"nan yes price", domain.Quote{Ticker: "X", YesPrice: nan, NoPrice: 0.52}, false},
		{"nan no price", domain.Quote{Ticker: "X", YesPrice: 0.5, NoPrice: nan}, false},
		{"nan bid", domain.Quote{Ticker: "X", YesPrice: 0.5, NoPrice: 0.52, NoBid: nan}, false},
		{"nan spread", domain.Quote{Ticker: "X", YesPrice: 0.5, NoPrice: 0.52, Spread: ptr(nan)}, false},
		{"nan volume", domain.Quote{Ticker: "X", YesPrice: 0.5, NoPrice: 0.52, Volume: nan}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.q.Validate()
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}
