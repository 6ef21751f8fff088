// Package status sirve el estado del proceso por HTTP: métricas Prometheus,
// health check y un snapshot JSON del EngineState. Es de solo lectura.
package status

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/alejandrodnm/edgebot/internal/domain"
	"github.com/gorilla/mux"
)

// SnapshotFunc devuelve una copia del estado actual.
type SnapshotFunc func() *domain.EngineState

// Options configura el Server.
type Options struct {
	Addr string
	Mode string
	// Metrics se monta en /metrics si no es nil.
	Metrics http.Handler
	// Snapshot alimenta /status y /healthz.
	Snapshot SnapshotFunc
	// MaxStaleness: /healthz devuelve 503 si el último ciclo es más antiguo. 0 desactiva el chequeo.
	MaxStaleness time.Duration
	Clock        func() time.Time
}

// Server es el HTTP server de estado.
type Server struct {
	router *mux.Router
	server *http.Server
	opts   Options
}

// statusResponse es el cuerpo de GET /status.
type statusResponse struct {
	Mode            string            `json:"mode,omitempty"`
	Cycles          int64             `json:"cycles"`
	UpdatedAt       time.Time         `json:"updated_at"`
	TradingDay      string            `json:"trading_day"`
	DailyTradeCount int               `json:"daily_trade_count"`
	OpenExposure    float64           `json:"open_exposure"`
	CumulativePnL   float64           `json:"cumulative_pnl"`
	CumulativeFees  float64           `json:"cumulative_fees"`
	ClosedCount     int               `json:"closed_count"`
	OpenPositions   []domain.Position `json:"open_positions"`
}

type healthResponse struct {
	Status  string `json:"status"`
	Detail  string `json:"detail,omitempty"`
	Cycles  int64  `json:"cycles"`
	AgeSecs int64  `json:"age_seconds"`
}

// NewServer crea el server y registra las rutas.
func NewServer(opts Options) *Server {
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	s := &Server{router: mux.NewRouter(), opts: opts}
	s.setupRoutes()
	s.server = &http.Server{
		Addr:         opts.Addr,
		Handler:      s.router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

func (s *Server) setupRoutes() {
	if s.opts.Metrics != nil {
		s.router.Handle("/metrics", s.opts.Metrics).Methods(http.MethodGet)
	}

	api := s.router.PathPrefix("/").Subrouter()
	api.Use(jsonContentType)
	api.HandleFunc("/healthz", s.health).Methods(http.MethodGet)
	api.HandleFunc("/status", s.status).Methods(http.MethodGet)
	api.HandleFunc("/status/positions/{ticker}", s.positions).Methods(http.MethodGet)
}

// Handler expone el router, útil para tests con httptest.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run sirve hasta que ctx se cancela y luego hace shutdown ordenado.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		slog.Info("status server listening", "addr", s.opts.Addr)
		errCh <- s.server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return s.server.Shutdown(shutdownCtx)
	}
}

func (s *Server) snapshot() *domain.EngineState {
	if s.opts.Snapshot == nil {
		return domain.NewEngineState()
	}
	if st := s.opts.Snapshot(); st != nil {
		return st
	}
	return domain.NewEngineState()
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	st := s.snapshot()
	resp := healthResponse{Status: "ok", Cycles: st.Cycles}
	code := http.StatusOK

	if !st.UpdatedAt.IsZero() {
		age := s.opts.Clock().Sub(st.UpdatedAt)
		resp.AgeSecs = int64(age / time.Second)
		if s.opts.MaxStaleness > 0 && age > s.opts.MaxStaleness {
			resp.Status = "stale"
			resp.Detail = "last cycle older than " + s.opts.MaxStaleness.String()
			code = http.StatusServiceUnavailable
		}
	}
	writeJSON(w, code, resp)
}

func (s *Server) status(w http.ResponseWriter, _ *http.Request) {
	st := s.snapshot()
	writeJSON(w, http.StatusOK, statusResponse{
		Mode:            s.opts.Mode,
		Cycles:          st.Cycles,
		UpdatedAt:       st.UpdatedAt,
		TradingDay:      st.TradingDay,
		DailyTradeCount: st.DailyTradeCount,
		OpenExposure:    st.OpenExposure(),
		CumulativePnL:   st.CumulativePnL,
		CumulativeFees:  st.CumulativeFees,
		ClosedCount:     len(st.ClosedPositions),
		OpenPositions:   st.OpenPositions,
	})
}

// positions devuelve las posiciones (abiertas y cerradas) de un ticker.
func (s *Server) positions(w http.ResponseWriter, r *http.Request) {
	ticker := mux.Vars(r)["ticker"]
	st := s.snapshot()

	out := []domain.Position{}
	for _, p := range st.OpenPositions {
		if p.Ticker == ticker {
			out = append(out, p)
		}
	}
	for _, p := range st.ClosedPositions {
		if p.Ticker == ticker {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "no positions for " + ticker})
		return
	}
	writeJSON(w, http.StatusOK, out)
}

func jsonContentType(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("status: encode response", "err", err)
	}
}
