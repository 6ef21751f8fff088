package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/alejandrodnm/edgebot/internal/adapters/notify"
	"github.com/alejandrodnm/edgebot/internal/adapters/snapshots"
	"github.com/alejandrodnm/edgebot/internal/adapters/storage"
	"github.com/alejandrodnm/edgebot/internal/application/engine/replay"
	"github.com/spf13/cobra"
)

var (
	sweepSnapshots string
	sweepOutDB     string
	sweepTopN      int
	sweepWorkers   int
)

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Search entry/exit parameters with a train/holdout split",
	Long: `Ejecuta un replay por cada combinación del grid (sección sweep del config)
sobre la parte de train y otro sobre la de holdout (los snapshots más recientes),
y ordena por expectancy de holdout.

Ejemplos:
  edgebot sweep --snapshots data/snapshots.jsonl
  edgebot sweep --snapshots data/snapshots.jsonl --top-n 5 --out-db data/sweeps.db`,
	RunE: runSweep,
}

func init() {
	rootCmd.AddCommand(sweepCmd)

	sweepCmd.Flags().StringVar(&sweepSnapshots, "snapshots", "", "snapshot file (.json array or .jsonl)")
	sweepCmd.Flags().StringVar(&sweepOutDB, "out-db", "", "SQLite file where the ranking is stored")
	sweepCmd.Flags().IntVar(&sweepTopN, "top-n", 0, "keep the N best runs (overrides config)")
	sweepCmd.Flags().IntVar(&sweepWorkers, "workers", 0, "parallel replays (overrides config)")
	_ = sweepCmd.MarkFlagRequired("snapshots")
}

func runSweep(_ *cobra.Command, _ []string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	snaps, err := snapshots.LoadFile(sweepSnapshots)
	if err != nil {
		slog.Error("failed to load snapshots", "err", err, "path", sweepSnapshots)
		return err
	}

	params := cfg.SweepParams()
	if sweepTopN > 0 {
		params.TopN = sweepTopN
	}
	if sweepWorkers > 0 {
		params.Workers = sweepWorkers
	}

	start := time.Now()
	res, err := replay.Sweep(ctx, cfg.EngineConfig(), snaps, params)
	if err != nil {
		slog.Error("sweep failed", "err", err)
		return err
	}
	slog.Info("sweep complete", "runs", res.Runs, "took", time.Since(start).Round(time.Millisecond))

	notify.NewConsole(false).PrintSweep(res)

	if sweepOutDB == "" {
		return nil
	}
	sum, err := sweepSummary(res, time.Now().UTC())
	if err != nil {
		return err
	}
	db, err := storage.NewSQLiteStore(sweepOutDB)
	if err != nil {
		slog.Error("failed to open sweep db", "err", err, "path", sweepOutDB)
		return err
	}
	defer db.Close()

	id, err := db.SaveSweep(ctx, sum)
	if err != nil {
		slog.Error("failed to save sweep", "err", err, "path", sweepOutDB)
		return err
	}
	slog.Info("sweep saved", "id", id, "path", sweepOutDB, "rows", len(sum.Top))
	return nil
}

// sweepSummary convierte el ranking en filas persistibles; Data es el RunResult completo.
func sweepSummary(res *replay.SweepResult, now time.Time) (storage.SweepSummary, error) {
	sum := storage.SweepSummary{
		CreatedAt:        now,
		Runs:             res.Runs,
		TrainSnapshots:   res.TrainSnapshots,
		HoldoutSnapshots: res.HoldoutSnapshots,
		Top:              make([]storage.SweepRow, 0, len(res.Top)),
	}
	for i, r := range res.Top {
		data, err := json.Marshal(r)
		if err != nil {
			return storage.SweepSummary{}, fmt.Errorf("sweep: marshal run %d: %w", r.RunID, err)
		}
		sum.Top = append(sum.Top, storage.SweepRow{
			Rank:              i + 1,
			RunID:             r.RunID,
			HoldoutExpectancy: r.Holdout.Expectancy,
			HoldoutDrawdown:   r.Holdout.MaxDrawdown,
			Data:              data,
		})
	}
	return sum, nil
}
