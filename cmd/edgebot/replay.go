package main

import (
	"context"
	"errors"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/alejandrodnm/edgebot/internal/adapters/notify"
	"github.com/alejandrodnm/edgebot/internal/adapters/snapshots"
	"github.com/alejandrodnm/edgebot/internal/application/engine/replay"
	"github.com/spf13/cobra"
)

var (
	replaySnapshots string
	replayStateOut  string
)

var replayCmd = &cobra.Command{
	Use:   "replay",
	Short: "Replay historical snapshots through the engine",
	Long: `Ejecuta el motor sobre snapshots históricos (.json o .jsonl) con el
tiempo simulado de cada snapshot. El resultado es determinista: los mismos
snapshots y la misma config producen el mismo estado.

Ejemplos:
  edgebot replay --snapshots data/snapshots.jsonl
  edgebot replay --snapshots data/snapshots.jsonl --state-out data/replay_state.json
  edgebot gate --state data/replay_state.json`,
	RunE: runReplay,
}

func init() {
	rootCmd.AddCommand(replayCmd)

	replayCmd.Flags().StringVar(&replaySnapshots, "snapshots", "", "snapshot file (.json array or .jsonl)")
	replayCmd.Flags().StringVar(&replayStateOut, "state-out", "", "write the final state here (.json, or .db for sqlite)")
	_ = replayCmd.MarkFlagRequired("snapshots")
}

func runReplay(_ *cobra.Command, _ []string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	snaps, err := snapshots.LoadFile(replaySnapshots)
	if err != nil {
		slog.Error("failed to load snapshots", "err", err, "path", replaySnapshots)
		return err
	}
	slog.Info("replay starting", "snapshots", len(snaps), "from", snaps[0].Timestamp, "to", snaps[len(snaps)-1].Timestamp)

	res, err := replay.Run(ctx, cfg.EngineConfig(), snaps, cfg.Gate.HoldoutWindows)
	if err != nil {
		slog.Error("replay failed", "err", err)
		return err
	}

	notify.NewConsole(false).PrintReplaySummary(res)

	if replayStateOut != "" {
		if err := saveState(ctx, replayStateOut, res); err != nil {
			return err
		}
		slog.Info("replay state saved", "path", replayStateOut, "closed_positions", len(res.State.ClosedPositions))
	}
	return nil
}

func saveState(ctx context.Context, path string, res *replay.Result) (err error) {
	store, err := openStore(storageFor(path))
	if err != nil {
		return err
	}
	defer func() { err = errors.Join(err, store.Close()) }()

	if err := store.Save(ctx, res.State); err != nil {
		slog.Error("failed to save replay state", "err", err, "path", path)
		return err
	}
	return nil
}
