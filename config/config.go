package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/alejandrodnm/edgebot/internal/application/engine/lifecycle"
	"github.com/alejandrodnm/edgebot/internal/application/engine/live"
	"github.com/alejandrodnm/edgebot/internal/application/engine/replay"
	"github.com/alejandrodnm/edgebot/internal/application/gate"
	"github.com/alejandrodnm/edgebot/internal/domain"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	ModePaper = "paper"
	ModeLive  = "live"

	DriverJSON   = "json"
	DriverSQLite = "sqlite"
)

// Config es la configuración completa del bot.
type Config struct {
	Trading TradingConfig `yaml:"trading"`
	Edge    EdgeConfig    `yaml:"edge"`
	Exits   ExitsConfig   `yaml:"exits"`
	Gate    GateConfig    `yaml:"gate"`
	Sweep   SweepConfig   `yaml:"sweep"`
	API     APIConfig     `yaml:"api"`
	Signals SignalsConfig `yaml:"signals"`
	Storage StorageConfig `yaml:"storage"`
	Status  StatusConfig  `yaml:"status"`
	Log     LogConfig     `yaml:"log"`
}

// TradingConfig controla el loop, el sizing y los límites de riesgo.
type TradingConfig struct {
	Mode                   string  `yaml:"mode"` // paper | live
	CycleIntervalSeconds   int     `yaml:"cycle_interval_seconds"`
	MaxCycles              int64   `yaml:"max_cycles"` // 0 = sin límite
	Bankroll               float64 `yaml:"bankroll"`
	KellyFraction          float64 `yaml:"kelly_fraction"`
	PerTradeCap            float64 `yaml:"per_trade_cap"`
	MinPosition            float64 `yaml:"min_position"`
	MaxExposure            float64 `yaml:"max_exposure"`
	MaxTradesPerDay        int     `yaml:"max_trades_per_day"`
	MaxEntriesPerCycle     int     `yaml:"max_entries_per_cycle"` // 0 = sin límite
	UnavailableGraceCycles int     `yaml:"unavailable_grace_cycles"`
	FetchWorkers           int     `yaml:"fetch_workers"`
}

// EdgeConfig son los filtros de entrada y el modelo de costes.
type EdgeConfig struct {
	MinConfidence  float64 `yaml:"min_confidence"`
	MinEdge        float64 `yaml:"min_edge"`
	MinNetEdge     float64 `yaml:"min_net_edge"`
	MaxSpread      float64 `yaml:"max_spread"`
	FeeRate        float64 `yaml:"fee_rate"`
	SlippageFactor float64 `yaml:"slippage_factor"`
	MinPrice       float64 `yaml:"min_price"`
	MaxPrice       float64 `yaml:"max_price"`
	MinVolume      float64 `yaml:"min_volume"`
}

// ExitsConfig son las reglas de salida.
type ExitsConfig struct {
	TakeProfitThreshold float64 `yaml:"take_profit_threshold"`
	StopLossThreshold   float64 `yaml:"stop_loss_threshold"`
	MaxHoldingMinutes   int     `yaml:"max_holding_minutes"` // 0 desactiva el time stop
	MinContinuationEdge float64 `yaml:"min_continuation_edge"`
}

// GateConfig son los umbrales de promoción a live.
type GateConfig struct {
	MinTrades                int     `yaml:"min_trades"`
	MinExpectancy            float64 `yaml:"min_expectancy"`
	MinProfitFactor          float64 `yaml:"min_profit_factor"`
	MaxDrawdown              float64 `yaml:"max_drawdown"`
	MinCostTelemetryCoverage float64 `yaml:"min_cost_telemetry_coverage"`
	HoldoutWindows           []int   `yaml:"holdout_windows"`
	MaxSingleTickerPnLShare  float64 `yaml:"max_single_ticker_pnl_share"`
}

// SweepConfig controla la búsqueda de parámetros sobre snapshots.
type SweepConfig struct {
	Grid         replay.Grid `yaml:"grid"`
	HoldoutRatio float64     `yaml:"holdout_ratio"`
	MinHoldout   int         `yaml:"min_holdout"`
	MaxRuns      int         `yaml:"max_runs"`
	TopN         int         `yaml:"top_n"`
	Workers      int         `yaml:"workers"`
}

// APIConfig es la conexión al exchange.
type APIConfig struct {
	BaseURL        string  `yaml:"base_url"`
	APIKey         string  `yaml:"api_key"`
	TimeoutSeconds int     `yaml:"timeout_seconds"`
	RatePerSec     float64 `yaml:"rate_per_sec"`
}

// SignalsConfig indica de dónde leer las señales alpha.
type SignalsConfig struct {
	Path       string `yaml:"path"`
	TTLMinutes int    `yaml:"ttl_minutes"`
}

// StorageConfig controla dónde se persiste el estado.
type StorageConfig struct {
	Driver string `yaml:"driver"` // json | sqlite
	Path   string `yaml:"path"`   // archivo JSON o SQLite (":memory:" para tests)
}

// StatusConfig controla el HTTP server de estado. Addr vacío lo desactiva.
type StatusConfig struct {
	Addr string `yaml:"addr"`
}

// LogConfig controla el formato y nivel de logging.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug | info | warn | error
	Format string `yaml:"format"` // text | json
}

// Default devuelve la configuración por defecto. Load la usa como base antes
// de aplicar el YAML, así los ceros explícitos del archivo se respetan.
func Default() Config {
	th := gate.DefaultThresholds()
	return Config{
		Trading: TradingConfig{
			Mode:                   ModePaper,
			CycleIntervalSeconds:   60,
			Bankroll:               th.Bankroll,
			KellyFraction:          0.25,
			PerTradeCap:            20,
			MinPosition:            5,
			MaxExposure:            150,
			MaxTradesPerDay:        50,
			UnavailableGraceCycles: 1,
			FetchWorkers:           8,
		},
		Edge: EdgeConfig{
			MinConfidence:  0.6,
			MinEdge:        0.03,
			MinNetEdge:     0.015,
			MaxSpread:      0.08,
			FeeRate:        0.01,
			SlippageFactor: 0.2,
			MinPrice:       0.02,
			MaxPrice:       0.98,
		},
		Exits: ExitsConfig{
			TakeProfitThreshold: 0.20,
			StopLossThreshold:   0.12,
			MaxHoldingMinutes:   240,
		},
		Gate: GateConfig{
			MinTrades:                th.MinTrades,
			MinExpectancy:            th.MinExpectancy,
			MinProfitFactor:          th.MinProfitFactor,
			MaxDrawdown:              th.MaxDrawdown,
			MinCostTelemetryCoverage: th.MinCostTelemetryCoverage,
			HoldoutWindows:           th.HoldoutWindows,
			MaxSingleTickerPnLShare:  th.MaxSingleTickerPnLShare,
		},
		Sweep: SweepConfig{
			HoldoutRatio: 0.3,
			MinHoldout:   20,
			MaxRuns:      500,
			TopN:         10,
			Workers:      4,
		},
		API: APIConfig{
			TimeoutSeconds: 10,
			RatePerSec:     10,
		},
		Signals: SignalsConfig{
			Path:       "data/alpha_signals.json",
			TTLMinutes: 60,
		},
		Storage: StorageConfig{
			Driver: DriverJSON,
			Path:   "data/engine_state.json",
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load carga la configuración desde el archivo YAML y el archivo .env si existe.
// Con path vacío se usan solo los defaults y el entorno. El resultado ya está validado.
func Load(path string) (*Config, error) {
	// Cargar .env si existe (silencia error si no hay archivo)
	_ = godotenv.Load()

	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config.Load: read %q: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("config.Load: parse YAML: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	setDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}
	return &cfg, nil
}

// applyEnvOverrides sobreescribe valores con variables de entorno si están presentes.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
	if v := os.Getenv("EDGEBOT_MODE"); v != "" {
		cfg.Trading.Mode = v
	}
	if v := os.Getenv("EXCHANGE_API_KEY"); v != "" {
		cfg.API.APIKey = v
	}
	if v := os.Getenv("EXCHANGE_BASE_URL"); v != "" {
		cfg.API.BaseURL = v
	}
}

// setDefaults normaliza strings y completa valores que no admiten cero.
func setDefaults(cfg *Config) {
	cfg.Trading.Mode = strings.ToLower(strings.TrimSpace(cfg.Trading.Mode))
	cfg.Storage.Driver = strings.ToLower(strings.TrimSpace(cfg.Storage.Driver))
	cfg.Log.Level = strings.ToLower(cfg.Log.Level)
	cfg.Log.Format = strings.ToLower(cfg.Log.Format)

	if cfg.Trading.FetchWorkers <= 0 {
		cfg.Trading.FetchWorkers = 8
	}
	if cfg.Trading.UnavailableGraceCycles <= 0 {
		cfg.Trading.UnavailableGraceCycles = 1
	}
	if cfg.API.TimeoutSeconds <= 0 {
		cfg.API.TimeoutSeconds = 10
	}
	if cfg.Sweep.Workers <= 0 {
		cfg.Sweep.Workers = 1
	}
	if cfg.Storage.Driver == "" {
		cfg.Storage.Driver = DriverJSON
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}
}

// Validate reúne todos los problemas en un único error ErrConfigurationInvalid.
func (c *Config) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf(format, args...))
		}
	}

	t := c.Trading
	check(t.Mode == ModePaper || t.Mode == ModeLive, "trading.mode %q must be paper or live", t.Mode)
	check(t.CycleIntervalSeconds > 0, "trading.cycle_interval_seconds must be > 0")
	check(t.MaxCycles >= 0, "trading.max_cycles must be >= 0")
	check(t.Bankroll > 0, "trading.bankroll must be > 0")
	check(t.KellyFraction > 0 && t.KellyFraction <= 1, "trading.kelly_fraction %.4f must be in (0,1]", t.KellyFraction)
	check(t.PerTradeCap > 0, "trading.per_trade_cap must be > 0")
	check(t.MinPosition >= 0, "trading.min_position must be >= 0")
	check(t.MinPosition <= t.PerTradeCap, "trading.min_position %.2f exceeds per_trade_cap %.2f", t.MinPosition, t.PerTradeCap)
	check(t.MaxExposure > 0, "trading.max_exposure must be > 0")
	check(t.MaxTradesPerDay > 0, "trading.max_trades_per_day must be > 0")
	check(t.MaxEntriesPerCycle >= 0, "trading.max_entries_per_cycle must be >= 0")

	e := c.Edge
	check(inUnit(e.MinConfidence), "edge.min_confidence %.4f must be in [0,1]", e.MinConfidence)
	check(e.MinEdge >= 0, "edge.min_edge must be >= 0")
	check(e.MinNetEdge >= 0, "edge.min_net_edge must be >= 0")
	check(e.MaxSpread > 0, "edge.max_spread must be > 0")
	check(e.FeeRate >= 0, "edge.fee_rate must be >= 0")
	check(inUnit(e.SlippageFactor), "edge.slippage_factor %.4f must be in [0,1]", e.SlippageFactor)
	check(inUnit(e.MinPrice) && inUnit(e.MaxPrice) && e.MinPrice < e.MaxPrice,
		"edge.min_price %.4f / max_price %.4f must satisfy 0 <= min < max <= 1", e.MinPrice, e.MaxPrice)
	check(e.MinVolume >= 0, "edge.min_volume must be >= 0")

	x := c.Exits
	check(x.TakeProfitThreshold > 0, "exits.take_profit_threshold must be > 0")
	check(x.StopLossThreshold > 0, "exits.stop_loss_threshold must be > 0")
	check(x.MaxHoldingMinutes >= 0, "exits.max_holding_minutes must be >= 0")
	check(x.MinContinuationEdge >= 0, "exits.min_continuation_edge must be >= 0")

	g := c.Gate
	check(g.MinTrades >= 0, "gate.min_trades must be >= 0")
	check(g.MinProfitFactor >= 0, "gate.min_profit_factor must be >= 0")
	check(g.MaxDrawdown >= 0, "gate.max_drawdown must be >= 0")
	check(inUnit(g.MinCostTelemetryCoverage), "gate.min_cost_telemetry_coverage must be in [0,1]")
	check(inUnit(g.MaxSingleTickerPnLShare), "gate.max_single_ticker_pnl_share must be in [0,1]")
	for _, w := range g.HoldoutWindows {
		check(w > 0, "gate.holdout_windows: window %d must be > 0", w)
	}

	s := c.Sweep
	check(s.HoldoutRatio > 0 && s.HoldoutRatio < 1, "sweep.holdout_ratio %.4f must be in (0,1)", s.HoldoutRatio)
	check(s.MinHoldout >= 1, "sweep.min_holdout must be >= 1")
	check(s.MaxRuns >= 0, "sweep.max_runs must be >= 0")
	check(s.TopN >= 0, "sweep.top_n must be >= 0")
	if err := s.Grid.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("sweep.grid: %w", err))
	}

	if t.Mode == ModeLive {
		check(c.API.BaseURL != "", "api.base_url is required in live mode")
		check(c.API.APIKey != "", "api.api_key (or EXCHANGE_API_KEY) is required in live mode")
	}
	check(c.API.RatePerSec >= 0, "api.rate_per_sec must be >= 0")

	check(c.Storage.Driver == DriverJSON || c.Storage.Driver == DriverSQLite,
		"storage.driver %q must be json or sqlite", c.Storage.Driver)
	check(c.Storage.Path != "", "storage.path is required")

	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		check(false, "log.level %q must be debug, info, warn or error", c.Log.Level)
	}
	check(c.Log.Format == "text" || c.Log.Format == "json", "log.format %q must be text or json", c.Log.Format)

	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", domain.ErrConfigurationInvalid, errors.Join(errs...))
}

// CycleInterval devuelve el intervalo entre ciclos como time.Duration.
func (c *Config) CycleInterval() time.Duration {
	return time.Duration(c.Trading.CycleIntervalSeconds) * time.Second
}

// EngineConfig traduce la configuración al motor de ciclo de vida.
func (c *Config) EngineConfig() lifecycle.Config {
	return lifecycle.Config{
		Edge: domain.EdgeParams{
			FeeRate:        c.Edge.FeeRate,
			SlippageFactor: c.Edge.SlippageFactor,
			MinEdge:        c.Edge.MinEdge,
			MinNetEdge:     c.Edge.MinNetEdge,
			MaxSpread:      c.Edge.MaxSpread,
			MinConfidence:  c.Edge.MinConfidence,
			MinPrice:       c.Edge.MinPrice,
			MaxPrice:       c.Edge.MaxPrice,
			MinVolume:      c.Edge.MinVolume,
		},
		Sizing: domain.SizingLimits{
			KellyFraction:   c.Trading.KellyFraction,
			PerTradeCap:     c.Trading.PerTradeCap,
			MinPosition:     c.Trading.MinPosition,
			MaxExposure:     c.Trading.MaxExposure,
			MaxTradesPerDay: c.Trading.MaxTradesPerDay,
		},
		Bankroll:               c.Trading.Bankroll,
		TakeProfit:             c.Exits.TakeProfitThreshold,
		StopLoss:               c.Exits.StopLossThreshold,
		MaxHolding:             time.Duration(c.Exits.MaxHoldingMinutes) * time.Minute,
		MinContinuationEdge:    c.Exits.MinContinuationEdge,
		MaxEntriesPerCycle:     c.Trading.MaxEntriesPerCycle,
		UnavailableGraceCycles: c.Trading.UnavailableGraceCycles,
	}
}

// LoopConfig traduce la configuración al trading loop.
func (c *Config) LoopConfig() live.Config {
	return live.Config{
		Interval:     c.CycleInterval(),
		MaxCycles:    c.Trading.MaxCycles,
		FetchWorkers: c.Trading.FetchWorkers,
	}
}

// Thresholds traduce la sección gate. El bankroll es el de trading.
func (c *Config) Thresholds() gate.Thresholds {
	return gate.Thresholds{
		MinTrades:                c.Gate.MinTrades,
		MinExpectancy:            c.Gate.MinExpectancy,
		MinProfitFactor:          c.Gate.MinProfitFactor,
		MaxDrawdown:              c.Gate.MaxDrawdown,
		Bankroll:                 c.Trading.Bankroll,
		MinCostTelemetryCoverage: c.Gate.MinCostTelemetryCoverage,
		HoldoutWindows:           c.Gate.HoldoutWindows,
		MaxSingleTickerPnLShare:  c.Gate.MaxSingleTickerPnLShare,
	}
}

// SweepParams traduce la sección sweep. Las ventanas de holdout son las del gate.
func (c *Config) SweepParams() replay.SweepConfig {
	return replay.SweepConfig{
		Grid:         c.Sweep.Grid,
		HoldoutRatio: c.Sweep.HoldoutRatio,
		MinHoldout:   c.Sweep.MinHoldout,
		MaxRuns:      c.Sweep.MaxRuns,
		TopN:         c.Sweep.TopN,
		Workers:      c.Sweep.Workers,
		Windows:      c.Gate.HoldoutWindows,
	}
}

// SignalTTL devuelve la vigencia por defecto de las señales.
func (c *Config) SignalTTL() time.Duration {
	return time.Duration(c.Signals.TTLMinutes) * time.Minute
}

// APITimeout devuelve el timeout HTTP del exchange.
func (c *Config) APITimeout() time.Duration {
	return time.Duration(c.API.TimeoutSeconds) * time.Second
}

func inUnit(v float64) bool {
	return v >= 0 && v <= 1
}
