package main

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"

	"github.com/alejandrodnm/edgebot/config"
	"github.com/spf13/cobra"
)

var (
	configPath string
	verbose    bool
	logFormat  string

	cfg *config.Config
)

var rootCmd = &cobra.Command{
	Use:   "edgebot",
	Short: "Edge-driven trading bot for binary prediction markets",
	Long: `edgebot compra contratos YES/NO cuando una señal externa de probabilidad
supera al precio de mercado después de costes, gestiona las salidas y
persiste el estado tras cada ciclo.

Subcomandos:
  edgebot run                 # loop de trading (paper o live según config)
  edgebot replay              # simulación determinista sobre snapshots
  edgebot sweep               # búsqueda de parámetros con holdout
  edgebot gate                # criterios de promoción a live`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: loadConfig,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "config/config.yaml", "path to config file")
	rootCmd.PersistentFlags().BoolVar(&verbose, "verbose", false, "set log level to debug")
	rootCmd.PersistentFlags().StringVar(&logFormat, "format", "", "log format: text|json (overrides config)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		var exit exitCodeError
		if errors.As(err, &exit) {
			os.Exit(exit.code)
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// exitCodeError termina el proceso con un código concreto sin imprimir nada más.
type exitCodeError struct {
	code int
}

func (e exitCodeError) Error() string {
	return fmt.Sprintf("exit code %d", e.code)
}

// loadConfig carga la configuración antes de cualquier subcomando. Si el path
// por defecto no existe se usan los defaults.
func loadConfig(cmd *cobra.Command, _ []string) error {
	path := configPath
	if !cmd.Flags().Changed("config") {
		if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
			path = ""
		}
	}

	loaded, err := config.Load(path)
	if err != nil {
		slog.Error("failed to load config", "err", err, "path", path)
		return err
	}
	if verbose {
		loaded.Log.Level = "debug"
	}
	if logFormat != "" {
		loaded.Log.Format = logFormat
	}
	setupLogger(loaded.Log)
	cfg = loaded

	slog.Debug("config loaded", "path", path, "mode", cfg.Trading.Mode, "storage", cfg.Storage.Driver)
	return nil
}

func setupLogger(cfg config.LogConfig) {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(handler))
}
