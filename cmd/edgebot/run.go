package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/alejandrodnm/edgebot/config"
	"github.com/alejandrodnm/edgebot/internal/adapters/exchange"
	"github.com/alejandrodnm/edgebot/internal/adapters/metrics"
	"github.com/alejandrodnm/edgebot/internal/adapters/notify"
	"github.com/alejandrodnm/edgebot/internal/adapters/signals"
	"github.com/alejandrodnm/edgebot/internal/adapters/status"
	"github.com/alejandrodnm/edgebot/internal/adapters/storage"
	"github.com/alejandrodnm/edgebot/internal/application/engine/lifecycle"
	"github.com/alejandrodnm/edgebot/internal/application/engine/live"
	"github.com/alejandrodnm/edgebot/internal/application/engine/paper"
	"github.com/alejandrodnm/edgebot/internal/domain"
	"github.com/alejandrodnm/edgebot/internal/ports"
	"github.com/spf13/cobra"
)

var (
	runOnce      bool
	runMaxCycles int64
	runTable     bool
	runStopFile  string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the trading loop",
	Long: `Ejecuta el loop de trading: señales → quotes → salidas → entradas → save.
En modo paper las órdenes se simulan al precio pedido; en modo live se envían
al exchange. El loop se detiene con Ctrl+C, con el archivo STOP o al llegar a
max_cycles.

Ejemplos:
  edgebot run --once
  edgebot run --max-cycles 30 --table`,
	RunE: runTrading,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().BoolVar(&runOnce, "once", false, "run one cycle and exit")
	runCmd.Flags().Int64Var(&runMaxCycles, "max-cycles", -1, "stop after N cycles (overrides config, 0 = unlimited)")
	runCmd.Flags().BoolVar(&runTable, "table", false, "print a positions table per cycle (default: compact 1-line)")
	runCmd.Flags().StringVar(&runStopFile, "stop-file", "STOP", "file whose presence stops the loop")
}

func runTrading(_ *cobra.Command, _ []string) error {
	if cfg.API.BaseURL == "" {
		return fmt.Errorf("%w: api.base_url is required to fetch quotes", domain.ErrConfigurationInvalid)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, err := openStore(cfg.Storage)
	if err != nil {
		return err
	}
	defer store.Close()

	state, err := store.Load(ctx)
	if err != nil {
		slog.Error("failed to load state", "err", err, "driver", cfg.Storage.Driver, "path", cfg.Storage.Path)
		return err
	}

	client := exchange.NewClient(exchange.Options{
		BaseURL:    cfg.API.BaseURL,
		APIKey:     cfg.API.APIKey,
		Timeout:    cfg.APITimeout(),
		RatePerSec: cfg.API.RatePerSec,
	})

	var executor ports.OrderExecutor = client
	if cfg.Trading.Mode == config.ModePaper {
		executor = paper.NewExecutor()
	}

	eng := lifecycle.New(cfg.EngineConfig(), state)
	collector := metrics.NewCollector()

	loopCfg := cfg.LoopConfig()
	loopCfg.StopFile = runStopFile
	if runMaxCycles >= 0 {
		loopCfg.MaxCycles = runMaxCycles
	}
	if runOnce {
		loopCfg.MaxCycles = 1
	}

	loop := live.New(
		eng,
		client,
		signals.NewFileFeed(cfg.Signals.Path, cfg.SignalTTL()),
		executor,
		store,
		loopCfg,
		live.WithNotifier(notify.NewConsole(runTable)),
		live.WithRecorder(collector),
	)

	slog.Info("edgebot starting",
		"mode", cfg.Trading.Mode,
		"interval", loopCfg.Interval,
		"max_cycles", loopCfg.MaxCycles,
		"bankroll", cfg.Trading.Bankroll,
		"open_positions", len(state.OpenPositions),
		"closed_positions", len(state.ClosedPositions),
		"signals", cfg.Signals.Path,
	)

	if cfg.Status.Addr != "" {
		srv := status.NewServer(status.Options{
			Addr:         cfg.Status.Addr,
			Mode:         cfg.Trading.Mode,
			Metrics:      collector.Handler(),
			Snapshot:     eng.Snapshot,
			MaxStaleness: 3 * loopCfg.Interval,
		})
		go func() {
			if err := srv.Run(ctx); err != nil {
				slog.Warn("status server stopped", "err", err)
			}
		}()
	}

	if err := loop.Run(ctx); err != nil {
		slog.Error("trading loop exited with error", "err", err)
		return err
	}

	final := eng.Snapshot()
	slog.Info("edgebot stopped cleanly",
		"cycles", final.Cycles,
		"open_positions", len(final.OpenPositions),
		"cumulative_pnl", fmt.Sprintf("$%.4f", final.CumulativePnL),
	)
	return nil
}

// openStore abre el StateStore configurado.
func openStore(sc config.StorageConfig) (ports.StateStore, error) {
	switch sc.Driver {
	case config.DriverSQLite:
		s, err := storage.NewSQLiteStore(sc.Path)
		if err != nil {
			slog.Error("failed to open storage", "err", err, "path", sc.Path)
			return nil, err
		}
		return s, nil
	case config.DriverJSON:
		return storage.NewJSONFileStore(sc.Path), nil
	default:
		return nil, errors.New("unknown storage driver " + sc.Driver)
	}
}
