package main

import (
	"context"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/alejandrodnm/edgebot/config"
	"github.com/alejandrodnm/edgebot/internal/adapters/notify"
	"github.com/alejandrodnm/edgebot/internal/application/gate"
	"github.com/spf13/cobra"
)

var gateStatePath string

var gateCmd = &cobra.Command{
	Use:   "gate",
	Short: "Evaluate the promotion gate over a persisted state",
	Long: `Calcula las métricas sobre las posiciones cerradas y aplica todos los
umbrales del gate. Sale con código 0 si pasa y 1 si falla algún criterio.

Ejemplos:
  edgebot gate                              # estado configurado en storage
  edgebot gate --state data/replay_state.json`,
	RunE: runGate,
}

func init() {
	rootCmd.AddCommand(gateCmd)

	gateCmd.Flags().StringVar(&gateStatePath, "state", "", "state file to evaluate (default: storage.path)")
}

func runGate(_ *cobra.Command, _ []string) error {
	sc := cfg.Storage
	if gateStatePath != "" {
		sc = storageFor(gateStatePath)
	}

	store, err := openStore(sc)
	if err != nil {
		return err
	}
	defer store.Close()

	state, err := store.Load(context.Background())
	if err != nil {
		slog.Error("failed to load state", "err", err, "path", sc.Path)
		return err
	}

	report := gate.Evaluate(state, cfg.Thresholds())
	notify.NewConsole(false).PrintGateReport(report)

	slog.Info("gate evaluated",
		"passed", report.Passed,
		"trades", report.Metrics.Trades,
		"failing", len(report.FailingReasons),
	)
	if !report.Passed {
		return exitCodeError{code: 1}
	}
	return nil
}

// storageFor elige el driver por la extensión del archivo.
func storageFor(path string) config.StorageConfig {
	if isSQLitePath(path) {
		return config.StorageConfig{Driver: config.DriverSQLite, Path: path}
	}
	return config.StorageConfig{Driver: config.DriverJSON, Path: path}
}

func isSQLitePath(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".db", ".sqlite", ".sqlite3":
		return true
	}
	return false
}
