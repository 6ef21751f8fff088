package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/alejandrodnm/edgebot/internal/domain"
	"github.com/alejandrodnm/edgebot/internal/ports"
)

type candidate struct {
	signal domain.AlphaSignal
	quote  domain.Quote
	edge   domain.SideEdge
}

// scanEntries evaluates every active signal, ranks tradeable sides by net
// edge and opens positions until limits are reached. Only invariant
// violations are returned; everything else is recorded on res.
func (e *Engine) scanEntries(ctx context.Context, in CycleInput, exec ports.OrderExecutor, res *domain.CycleResult) error {
	st := e.state

	tickers := make([]string, 0, len(in.Signals))
	for t := range in.Signals {
		tickers = append(tickers, t)
	}
	sort.Strings(tickers)

	var cands []candidate
	for _, ticker := range tickers {
		sig := in.Signals[ticker]
		if sig.Expired(in.Now) {
			res.ExpiredSignals++
			continue
		}
		if st.HasOpenTicker(ticker) {
			continue
		}
		q, ok := in.Quotes[ticker]
		if !ok {
			res.Skips = append(res.Skips, domain.TickerEvent{Ticker: ticker, Reason: "no_quote"})
			continue
		}
		edge := domain.ComputeEdge(sig, q, e.cfg.Edge)
		best, ok := edge.Best()
		if !ok {
			res.Skips = append(res.Skips, domain.TickerEvent{Ticker: ticker, Reason: rejectOf(edge)})
			continue
		}
		cands = append(cands, candidate{signal: sig, quote: q, edge: best})
	}

	sort.SliceStable(cands, func(i, j int) bool {
		if cands[i].edge.NetEdge != cands[j].edge.NetEdge {
			return cands[i].edge.NetEdge > cands[j].edge.NetEdge
		}
		return cands[i].quote.Ticker < cands[j].quote.Ticker
	})
	res.Candidates = len(cands)

	opened := 0
	for _, c := range cands {
		if e.cfg.MaxEntriesPerCycle > 0 && opened >= e.cfg.MaxEntriesPerCycle {
			break
		}
		ticker, side := c.quote.Ticker, c.edge.Side

		sz := domain.SizePosition(domain.SizingInput{
			NetEdge:      c.edge.NetEdge,
			Price:        c.edge.Price,
			Bankroll:     e.bankroll(),
			OpenExposure: st.OpenExposure(),
			DailyTrades:  st.DailyTradeCount,
		}, e.cfg.Sizing)
		if !sz.OK() {
			res.Skips = append(res.Skips, domain.TickerEvent{Ticker: ticker, Side: side, Reason: sz.Skip})
			continue
		}

		fill, err := exec.PlaceOrder(ctx, domain.OrderRequest{
			Ticker: ticker,
			Side:   side,
			Action: domain.ActionBuy,
			Price:  c.edge.Price,
			Size:   sz.Contracts,
		})
		if err != nil {
			kind := "entry_order_failed"
			if errors.Is(err, domain.ErrOrderRejected) {
				kind = "entry_order_rejected"
			}
			res.Errors = append(res.Errors, domain.TickerEvent{Ticker: ticker, Side: side, Reason: kind})
			slog.Warn("lifecycle: entry order failed", "ticker", ticker, "side", side, "err", err)
			continue
		}

		pos := e.newPosition(c, fill, in)
		if err := st.Open(pos); err != nil {
			return fmt.Errorf("open %s: %w", pos.Key(), err)
		}
		res.Entries = append(res.Entries, pos)
		opened++

		slog.Info("lifecycle: position opened",
			"ticker", ticker,
			"side", side,
			"price", pos.EntryPrice,
			"contracts", pos.Size,
			"notional", fmt.Sprintf("$%.2f", pos.Notional),
			"net_edge", fmt.Sprintf("%.4f", c.edge.NetEdge),
		)
	}
	return nil
}

func (e *Engine) newPosition(c candidate, fill domain.Fill, in CycleInput) domain.Position {
	gross := c.edge.RawEdge
	cost := c.edge.Cost
	return domain.Position{
		ID:                     domain.PositionID(c.quote.Ticker, c.edge.Side, in.Now),
		Ticker:                 c.quote.Ticker,
		Side:                   c.edge.Side,
		Status:                 domain.PositionOpen,
		EntryPrice:             fill.Price,
		Size:                   fill.Size,
		Notional:               fill.Price * float64(fill.Size),
		EntryTime:              in.Now,
		EntryFees:              e.fees(fill.Size),
		FairProbabilityAtEntry: c.edge.FairProbability,
		NetEdgeAtEntry:         c.edge.NetEdge,
		GrossEdgeAtEntry:       &gross,
		CostEstimateAtEntry:    &cost,
		SignalConfidence:       c.signal.Confidence,
		SignalSource:           c.signal.Source,
		LastMarkPrice:          c.quote.MarkPrice(c.edge.Side),
		LastMarkAt:             in.Now,
	}
}

// rejectOf picks the reason reported for a ticker with no tradeable side:
// the one from the side closer to passing.
func rejectOf(edge domain.Edge) string {
	if edge.No.NetEdge > edge.Yes.NetEdge {
		return edge.No.Reject
	}
	return edge.Yes.Reject
}
