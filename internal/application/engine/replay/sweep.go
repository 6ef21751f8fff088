package replay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"slices"
	"sort"
	"time"

	"github.com/alejandrodnm/edgebot/internal/application/engine/lifecycle"
	"github.com/alejandrodnm/edgebot/internal/application/gate"
	"github.com/alejandrodnm/edgebot/internal/domain"
	"golang.org/x/sync/errgroup"
)

// Grid lists the candidate values per parameter. An empty axis keeps the
// base config value.
type Grid struct {
	MinNetEdge        []float64 `yaml:"min_net_edge" json:"min_net_edge"`
	MaxSpread         []float64 `yaml:"max_spread" json:"max_spread"`
	MinConfidence     []float64 `yaml:"min_confidence" json:"min_confidence"`
	SlippageFactor    []float64 `yaml:"slippage_factor" json:"slippage_factor"`
	FeeRate           []float64 `yaml:"fee_rate" json:"fee_rate"`
	TakeProfit        []float64 `yaml:"take_profit" json:"take_profit"`
	StopLoss          []float64 `yaml:"stop_loss" json:"stop_loss"`
	MaxHoldingMinutes []int     `yaml:"max_holding_minutes" json:"max_holding_minutes"`
}

// Validate aplica a cada valor del grid las mismas reglas que al config base.
// max_holding_minutes 0 se acepta y Combinations lo descarta.
func (g Grid) Validate() error {
	var errs []error
	axis := func(name string, vals []float64, ok func(float64) bool, rule string) {
		for _, v := range vals {
			if !ok(v) {
				errs = append(errs, fmt.Errorf("%s: value %v must be %s", name, v, rule))
			}
		}
	}
	nonNeg := func(v float64) bool { return v >= 0 }
	positive := func(v float64) bool { return v > 0 }
	unit := func(v float64) bool { return v >= 0 && v <= 1 }

	axis("min_net_edge", g.MinNetEdge, nonNeg, ">= 0")
	axis("max_spread", g.MaxSpread, positive, "> 0")
	axis("min_confidence", g.MinConfidence, unit, "in [0,1]")
	axis("slippage_factor", g.SlippageFactor, unit, "in [0,1]")
	axis("fee_rate", g.FeeRate, nonNeg, ">= 0")
	axis("take_profit", g.TakeProfit, positive, "> 0")
	axis("stop_loss", g.StopLoss, positive, "> 0")
	for _, v := range g.MaxHoldingMinutes {
		if v < 0 {
			errs = append(errs, fmt.Errorf("max_holding_minutes: value %d must be >= 0", v))
		}
	}
	return errors.Join(errs...)
}

// SweepConfig controls the train/holdout split and the search budget.
type SweepConfig struct {
	Grid         Grid
	HoldoutRatio float64
	MinHoldout   int
	MaxRuns      int
	TopN         int
	Workers      int
	Windows      []int
}

// Params is one grid point.
type Params struct {
	MinNetEdge        float64 `json:"min_net_edge"`
	MaxSpread         float64 `json:"max_spread"`
	MinConfidence     float64 `json:"min_confidence"`
	SlippageFactor    float64 `json:"slippage_factor"`
	FeeRate           float64 `json:"fee_rate"`
	TakeProfit        float64 `json:"take_profit"`
	StopLoss          float64 `json:"stop_loss"`
	MaxHoldingMinutes int     `json:"max_holding_minutes"`
}

// Apply returns base with the grid point applied.
func (p Params) Apply(base lifecycle.Config) lifecycle.Config {
	cfg := base
	cfg.Edge.MinNetEdge = p.MinNetEdge
	cfg.Edge.MaxSpread = p.MaxSpread
	cfg.Edge.MinConfidence = p.MinConfidence
	cfg.Edge.SlippageFactor = p.SlippageFactor
	cfg.Edge.FeeRate = p.FeeRate
	cfg.TakeProfit = p.TakeProfit
	cfg.StopLoss = p.StopLoss
	cfg.MaxHolding = time.Duration(p.MaxHoldingMinutes) * time.Minute
	return cfg
}

// RunResult is the score of one grid point.
type RunResult struct {
	RunID         int          `json:"run_id"`
	Params        Params       `json:"params"`
	Train         gate.Metrics `json:"train"`
	Holdout       gate.Metrics `json:"holdout"`
	TrainCycles   int          `json:"train_cycles"`
	HoldoutCycles int          `json:"holdout_cycles"`
}

// SweepResult agrupa el ranking completo de un sweep.
type SweepResult struct {
	Runs             int         `json:"runs"`
	TrainSnapshots   int         `json:"train_snapshots"`
	HoldoutSnapshots int         `json:"holdout_snapshots"`
	Top              []RunResult `json:"top"`
}

// SplitTrainHoldout keeps the most recent snapshots for holdout:
// max(min_holdout, round(n × ratio)), leaving at least one for training.
func SplitTrainHoldout(snaps []domain.Snapshot, ratio float64, minHoldout int) (train, holdout []domain.Snapshot, err error) {
	n := len(snaps)
	if n < 3 {
		return nil, nil, fmt.Errorf("replay.SplitTrainHoldout: need at least 3 snapshots, got %d", n)
	}
	k := int(math.Round(float64(n) * ratio))
	k = max(k, minHoldout)
	k = min(k, n-1)
	if k <= 0 {
		return nil, nil, fmt.Errorf("replay.SplitTrainHoldout: empty holdout (ratio %.2f)", ratio)
	}
	return snaps[:n-k], snaps[n-k:], nil
}

// Combinations expands the grid in axis order, capped at maxRuns (0 = no cap).
// Axis values are deduplicated and sorted.
func Combinations(base lifecycle.Config, g Grid, maxRuns int) []Params {
	axis := func(vals []float64, def float64) []float64 {
		if len(vals) == 0 {
			return []float64{def}
		}
		out := slices.Clone(vals)
		slices.Sort(out)
		return slices.Compact(out)
	}
	holdings := slices.Clone(g.MaxHoldingMinutes)
	slices.Sort(holdings)
	holdings = slices.Compact(holdings)
	holdings = slices.DeleteFunc(holdings, func(v int) bool { return v <= 0 })
	if len(holdings) == 0 {
		holdings = []int{int(base.MaxHolding / time.Minute)}
	}

	var out []Params
	for _, ne := range axis(g.MinNetEdge, base.Edge.MinNetEdge) {
		for _, sp := range axis(g.MaxSpread, base.Edge.MaxSpread) {
			for _, mc := range axis(g.MinConfidence, base.Edge.MinConfidence) {
				for _, sl := range axis(g.SlippageFactor, base.Edge.SlippageFactor) {
					for _, fee := range axis(g.FeeRate, base.Edge.FeeRate) {
						for _, tp := range axis(g.TakeProfit, base.TakeProfit) {
							for _, st := range axis(g.StopLoss, base.StopLoss) {
								for _, mh := range holdings {
									if maxRuns > 0 && len(out) >= maxRuns {
										return out
									}
									out = append(out, Params{
										MinNetEdge:        ne,
										MaxSpread:         sp,
										MinConfidence:     mc,
										SlippageFactor:    sl,
										FeeRate:           fee,
										TakeProfit:        tp,
										StopLoss:          st,
										MaxHoldingMinutes: mh,
									})
								}
							}
						}
					}
				}
			}
		}
	}
	return out
}

// Sweep replays every grid point independently on the train and holdout
// splits. Runs share no state, so they execute in parallel.
func Sweep(ctx context.Context, base lifecycle.Config, snaps []domain.Snapshot, cfg SweepConfig) (*SweepResult, error) {
	if err := cfg.Grid.Validate(); err != nil {
		return nil, fmt.Errorf("replay.Sweep: %w: %w", domain.ErrConfigurationInvalid, err)
	}
	train, holdout, err := SplitTrainHoldout(snaps, cfg.HoldoutRatio, cfg.MinHoldout)
	if err != nil {
		return nil, err
	}
	grid := Combinations(base, cfg.Grid, cfg.MaxRuns)
	slog.Info("replay: sweep started",
		"runs", len(grid),
		"train_snapshots", len(train),
		"holdout_snapshots", len(holdout),
	)

	results := make([]RunResult, len(grid))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(1, cfg.Workers))
	for i, p := range grid {
		g.Go(func() error {
			runCfg := p.Apply(base)
			tr, err := Run(gctx, runCfg, train, cfg.Windows)
			if err != nil {
				return fmt.Errorf("run %d train: %w", i+1, err)
			}
			ho, err := Run(gctx, runCfg, holdout, cfg.Windows)
			if err != nil {
				return fmt.Errorf("run %d holdout: %w", i+1, err)
			}
			results[i] = RunResult{
				RunID:         i + 1,
				Params:        p,
				Train:         tr.Metrics,
				Holdout:       ho.Metrics,
				TrainCycles:   tr.Cycles,
				HoldoutCycles: ho.Cycles,
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("replay.Sweep: %w", err)
	}

	Rank(results)
	top := results
	if cfg.TopN > 0 && len(top) > cfg.TopN {
		top = top[:cfg.TopN]
	}
	return &SweepResult{
		Runs:             len(results),
		TrainSnapshots:   len(train),
		HoldoutSnapshots: len(holdout),
		Top:              top,
	}, nil
}

// Rank ordena por expectancy de holdout, profit factor, drawdown ascendente
// y run id.
func Rank(runs []RunResult) {
	sort.SliceStable(runs, func(i, j int) bool {
		a, b := runs[i].Holdout, runs[j].Holdout
		if a.Expectancy != b.Expectancy {
			return a.Expectancy > b.Expectancy
		}
		if a.ProfitFactor != b.ProfitFactor {
			return a.ProfitFactor > b.ProfitFactor
		}
		if a.MaxDrawdown != b.MaxDrawdown {
			return a.MaxDrawdown < b.MaxDrawdown
		}
		return runs[i].RunID < runs[j].RunID
	})
}
