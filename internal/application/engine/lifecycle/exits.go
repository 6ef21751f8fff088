package lifecycle

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/alejandrodnm/edgebot/internal/domain"
	"github.com/alejandrodnm/edgebot/internal/ports"
)

// exitInput is the single snapshot of position + market that every rule sees.
type exitInput struct {
	pos    domain.Position
	quote  domain.Quote
	mark   float64
	ret    float64
	now    time.Time
	signal *domain.AlphaSignal // nil when there is no active signal
}

type exitRule struct {
	reason domain.ExitReason
	hit    func(cfg Config, in exitInput) bool
}

// exitRules in priority order. The first rule that hits wins; ties resolve by
// list order.
var exitRules = []exitRule{
	{domain.ExitTakeProfit, func(cfg Config, in exitInput) bool {
		return in.ret >= cfg.TakeProfit
	}},
	{domain.ExitStopLoss, func(cfg Config, in exitInput) bool {
		return in.ret <= -cfg.StopLoss
	}},
	{domain.ExitTimeStop, func(cfg Config, in exitInput) bool {
		return cfg.MaxHolding > 0 && in.pos.HoldingTime(in.now) >= cfg.MaxHolding
	}},
	{domain.ExitEdgeReversal, edgeReversed},
}

// edgeReversed recomputes the net edge of the held side against the latest
// signal and compares it with the entry-time edge. Without an active signal
// the thesis is unknown, not invalidated.
func edgeReversed(cfg Config, in exitInput) bool {
	if in.signal == nil {
		return false
	}
	now := domain.ComputeEdge(*in.signal, in.quote, cfg.Edge).Side(in.pos.Side).NetEdge
	entry := in.pos.NetEdgeAtEntry
	flipped := (entry > 0 && now < 0) || (entry < 0 && now > 0)
	return flipped || now < cfg.MinContinuationEdge
}

// decideExit evaluates the rule list against one snapshot.
func decideExit(cfg Config, in exitInput) (domain.ExitReason, bool) {
	for _, rule := range exitRules {
		if rule.hit(cfg, in) {
			return rule.reason, true
		}
	}
	return "", false
}

// evaluateExits walks every open position once. Positions are visited by key
// because closing one mutates the open slice.
func (e *Engine) evaluateExits(ctx context.Context, in CycleInput, exec ports.OrderExecutor, res *domain.CycleResult) {
	st := e.state
	keys := make([]domain.PositionKey, len(st.OpenPositions))
	for i, p := range st.OpenPositions {
		keys[i] = p.Key()
	}

	for _, key := range keys {
		i := st.FindOpen(key)
		if i < 0 {
			continue
		}
		pos := &st.OpenPositions[i]

		quote, ok := in.Quotes[key.Ticker]
		if !ok {
			if !in.Unavailable[key.Ticker] {
				res.Errors = append(res.Errors, domain.TickerEvent{Ticker: key.Ticker, Side: key.Side, Reason: "quote_fetch_failed"})
				continue
			}
			pos.MissedQuotes++
			if pos.MissedQuotes < e.cfg.UnavailableGraceCycles {
				res.Skips = append(res.Skips, domain.TickerEvent{Ticker: key.Ticker, Side: key.Side, Reason: "quote_unavailable_grace"})
				continue
			}
			// No market to sell into: close at the last known mark without an order.
			closed := st.CloseAt(i, pos.LastMarkPrice, in.Now, domain.ExitUnavailable, 0)
			res.Exits = append(res.Exits, closed)
			slog.Warn("lifecycle: force-closed position without quote",
				"ticker", key.Ticker, "side", key.Side,
				"last_mark", closed.ExitPrice, "pnl", closed.RealizedPnL)
			continue
		}

		mark := quote.MarkPrice(key.Side)
		pos.LastMarkPrice = mark
		pos.LastMarkAt = in.Now
		pos.MissedQuotes = 0

		xin := exitInput{
			pos:   *pos,
			quote: quote,
			mark:  mark,
			ret:   pos.MarkReturn(mark),
			now:   in.Now,
		}
		if sig, err := in.Signals.Active(key.Ticker, in.Now); err == nil {
			xin.signal = &sig
		}

		reason, exit := decideExit(e.cfg, xin)
		if !exit {
			continue
		}

		fill, err := exec.PlaceOrder(ctx, domain.OrderRequest{
			Ticker: key.Ticker,
			Side:   key.Side,
			Action: domain.ActionSell,
			Price:  mark,
			Size:   pos.Size,
		})
		if err != nil {
			kind := "exit_order_failed"
			if errors.Is(err, domain.ErrOrderRejected) {
				kind = "exit_order_rejected"
			}
			res.Errors = append(res.Errors, domain.TickerEvent{Ticker: key.Ticker, Side: key.Side, Reason: kind})
			slog.Warn("lifecycle: exit order failed, retrying next cycle",
				"ticker", key.Ticker, "side", key.Side, "reason", reason, "err", err)
			continue
		}

		closed := st.CloseAt(i, fill.Price, in.Now, reason, e.fees(pos.Size))
		res.Exits = append(res.Exits, closed)
		slog.Info("lifecycle: position closed",
			"ticker", closed.Ticker,
			"side", closed.Side,
			"reason", closed.ExitReason,
			"entry", closed.EntryPrice,
			"exit", closed.ExitPrice,
			"pnl", closed.RealizedPnL,
		)
	}
}
