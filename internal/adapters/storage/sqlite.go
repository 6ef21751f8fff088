package storage

// sqlite.go: alternativa al archivo JSON para el EngineState, más los
// resultados de sweeps de parámetros.
//
// Estrategia:
//   - `engine_meta`: una única fila con los contadores del ledger.
//   - `positions`: una fila por posición (abierta o cerrada). El JSON completo
//     va en `data`; ticker/status/pnl se duplican en columnas para consultas.
//   - Save reemplaza todo en una transacción: o se ve el ciclo entero o nada.
//   - `sweeps` + `sweep_results`: histórico de sweeps con su ranking.

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/alejandrodnm/edgebot/internal/domain"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS engine_meta (
    id                INTEGER PRIMARY KEY CHECK (id = 1),
    schema_version    INTEGER NOT NULL,
    daily_trade_count INTEGER NOT NULL DEFAULT 0,
    trading_day       TEXT    NOT NULL DEFAULT '',
    cumulative_pnl    REAL    NOT NULL DEFAULT 0,
    cumulative_fees   REAL    NOT NULL DEFAULT 0,
    cycles            INTEGER NOT NULL DEFAULT 0,
    updated_at        DATETIME
);

CREATE TABLE IF NOT EXISTS positions (
    id           TEXT PRIMARY KEY,
    ordinal      INTEGER NOT NULL,
    ticker       TEXT    NOT NULL,
    side         TEXT    NOT NULL,
    status       TEXT    NOT NULL,
    realized_pnl REAL    NOT NULL DEFAULT 0,
    exit_reason  TEXT,
    data         TEXT    NOT NULL
);

CREATE TABLE IF NOT EXISTS sweeps (
    id                INTEGER PRIMARY KEY AUTOINCREMENT,
    created_at        DATETIME NOT NULL,
    runs              INTEGER  NOT NULL,
    train_snapshots   INTEGER  NOT NULL,
    holdout_snapshots INTEGER  NOT NULL
);

CREATE TABLE IF NOT EXISTS sweep_results (
    sweep_id              INTEGER NOT NULL REFERENCES sweeps(id),
    rank                  INTEGER NOT NULL,
    run_id                INTEGER NOT NULL,
    holdout_expectancy    REAL    NOT NULL DEFAULT 0,
    holdout_drawdown      REAL    NOT NULL DEFAULT 0,
    data                  TEXT    NOT NULL,
    PRIMARY KEY (sweep_id, rank)
);

CREATE INDEX IF NOT EXISTS idx_positions_status ON positions(status, ordinal);
CREATE INDEX IF NOT EXISTS idx_positions_ticker ON positions(ticker);
`

// SQLiteStore implementa ports.StateStore usando SQLite (pure Go, sin CGo).
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore abre (o crea) la base de datos en la ruta dada y aplica el schema.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("storage.NewSQLiteStore: open %q: %w", path, err)
	}
	db.SetMaxOpenConns(1) // SQLite es single-writer
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage.NewSQLiteStore: apply schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Load reconstruye el estado. Sin fila en engine_meta devuelve un estado vacío.
func (s *SQLiteStore) Load(ctx context.Context) (*domain.EngineState, error) {
	st := domain.NewEngineState()

	var updatedAt sql.NullTime
	err := s.db.QueryRowContext(ctx, `
		SELECT schema_version, daily_trade_count, trading_day,
		       cumulative_pnl, cumulative_fees, cycles, updated_at
		FROM engine_meta WHERE id = 1
	`).Scan(
		&st.SchemaVersion,
		&st.DailyTradeCount,
		&st.TradingDay,
		&st.CumulativePnL,
		&st.CumulativeFees,
		&st.Cycles,
		&updatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return st, nil
	}
	if err != nil {
		return nil, fmt.Errorf("storage.Load: meta: %w", err)
	}
	if updatedAt.Valid {
		st.UpdatedAt = updatedAt.Time.UTC()
	}
	if st.SchemaVersion > domain.StateSchemaVersion {
		return nil, fmt.Errorf("storage.Load: %w: schema_version %d newer than supported %d",
			domain.ErrStateCorrupt, st.SchemaVersion, domain.StateSchemaVersion)
	}

	rows, err := s.db.QueryContext(ctx, `SELECT id, data FROM positions ORDER BY ordinal`)
	if err != nil {
		return nil, fmt.Errorf("storage.Load: positions: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id, data string
		if err := rows.Scan(&id, &data); err != nil {
			return nil, fmt.Errorf("storage.Load: scan row: %w", err)
		}
		var p domain.Position
		if err := json.Unmarshal([]byte(data), &p); err != nil {
			return nil, fmt.Errorf("storage.Load: %w: position %s: %v", domain.ErrStateCorrupt, id, err)
		}
		switch p.Status {
		case domain.PositionOpen:
			st.OpenPositions = append(st.OpenPositions, p)
		case domain.PositionClosed:
			st.ClosedPositions = append(st.ClosedPositions, p)
		default:
			return nil, fmt.Errorf("storage.Load: %w: position %s has status %q", domain.ErrStateCorrupt, id, p.Status)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("storage.Load: %w", err)
	}

	if err := st.CheckInvariants(); err != nil {
		return nil, fmt.Errorf("storage.Load: %w: %v", domain.ErrStateCorrupt, err)
	}
	return st, nil
}

// Save reemplaza el estado persistido en una sola transacción.
func (s *SQLiteStore) Save(ctx context.Context, state *domain.EngineState) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("storage.Save: begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO engine_meta
			(id, schema_version, daily_trade_count, trading_day,
			 cumulative_pnl, cumulative_fees, cycles, updated_at)
		VALUES (1, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			schema_version    = excluded.schema_version,
			daily_trade_count = excluded.daily_trade_count,
			trading_day       = excluded.trading_day,
			cumulative_pnl    = excluded.cumulative_pnl,
			cumulative_fees   = excluded.cumulative_fees,
			cycles            = excluded.cycles,
			updated_at        = excluded.updated_at
	`,
		state.SchemaVersion,
		state.DailyTradeCount,
		state.TradingDay,
		state.CumulativePnL,
		state.CumulativeFees,
		state.Cycles,
		state.UpdatedAt.UTC(),
	); err != nil {
		return fmt.Errorf("storage.Save: meta: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM positions`); err != nil {
		return fmt.Errorf("storage.Save: clear positions: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO positions (id, ordinal, ticker, side, status, realized_pnl, exit_reason, data)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("storage.Save: prepare: %w", err)
	}
	defer stmt.Close()

	ordinal := 0
	write := func(p domain.Position) error {
		data, err := json.Marshal(p)
		if err != nil {
			return fmt.Errorf("storage.Save: marshal %s: %w", p.ID, err)
		}
		var reason *string
		if p.ExitReason != "" {
			r := string(p.ExitReason)
			reason = &r
		}
		ordinal++
		if _, err := stmt.ExecContext(ctx,
			p.ID, ordinal, p.Ticker, string(p.Side), string(p.Status), p.RealizedPnL, reason, string(data),
		); err != nil {
			return fmt.Errorf("storage.Save: insert %s: %w", p.ID, err)
		}
		return nil
	}
	// Cerradas primero: al recargar conservan su orden cronológico.
	for _, p := range state.ClosedPositions {
		if err := write(p); err != nil {
			return err
		}
	}
	for _, p := range state.OpenPositions {
		if err := write(p); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("storage.Save: commit: %w", err)
	}
	return nil
}

// SweepRow es una fila del ranking de un sweep. Data es el resultado completo en JSON.
type SweepRow struct {
	Rank              int
	RunID             int
	HoldoutExpectancy float64
	HoldoutDrawdown   float64
	Data              json.RawMessage
}

// SweepSummary resume un sweep guardado.
type SweepSummary struct {
	ID               int64
	CreatedAt        time.Time
	Runs             int
	TrainSnapshots   int
	HoldoutSnapshots int
	Top              []SweepRow
}

// SaveSweep guarda un sweep y su ranking. Devuelve el id asignado.
func (s *SQLiteStore) SaveSweep(ctx context.Context, sum SweepSummary) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("storage.SaveSweep: begin tx: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`INSERT INTO sweeps (created_at, runs, train_snapshots, holdout_snapshots) VALUES (?, ?, ?, ?)`,
		sum.CreatedAt.UTC(), sum.Runs, sum.TrainSnapshots, sum.HoldoutSnapshots,
	)
	if err != nil {
		return 0, fmt.Errorf("storage.SaveSweep: insert sweep: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("storage.SaveSweep: last id: %w", err)
	}

	for _, row := range sum.Top {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO sweep_results (sweep_id, rank, run_id, holdout_expectancy, holdout_drawdown, data)
			VALUES (?, ?, ?, ?, ?, ?)
		`, id, row.Rank, row.RunID, row.HoldoutExpectancy, row.HoldoutDrawdown, string(row.Data)); err != nil {
			return 0, fmt.Errorf("storage.SaveSweep: insert rank %d: %w", row.Rank, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("storage.SaveSweep: commit: %w", err)
	}
	return id, nil
}

// ListSweeps devuelve los últimos limit sweeps, del más reciente al más antiguo,
// con su ranking ordenado.
func (s *SQLiteStore) ListSweeps(ctx context.Context, limit int) ([]SweepSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, created_at, runs, train_snapshots, holdout_snapshots
		FROM sweeps ORDER BY id DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("storage.ListSweeps: query: %w", err)
	}

	var out []SweepSummary
	for rows.Next() {
		var sum SweepSummary
		if err := rows.Scan(&sum.ID, &sum.CreatedAt, &sum.Runs, &sum.TrainSnapshots, &sum.HoldoutSnapshots); err != nil {
			rows.Close()
			return nil, fmt.Errorf("storage.ListSweeps: scan: %w", err)
		}
		out = append(out, sum)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("storage.ListSweeps: %w", err)
	}

	// Con una sola conexión, las filas de detalle se leen después de cerrar el cursor anterior.
	for i := range out {
		top, err := s.sweepRows(ctx, out[i].ID)
		if err != nil {
			return nil, err
		}
		out[i].Top = top
	}
	return out, nil
}

func (s *SQLiteStore) sweepRows(ctx context.Context, sweepID int64) ([]SweepRow, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT rank, run_id, holdout_expectancy, holdout_drawdown, data
		FROM sweep_results WHERE sweep_id = ? ORDER BY rank
	`, sweepID)
	if err != nil {
		return nil, fmt.Errorf("storage.ListSweeps: results %d: %w", sweepID, err)
	}
	defer rows.Close()

	var out []SweepRow
	for rows.Next() {
		var r SweepRow
		var data string
		if err := rows.Scan(&r.Rank, &r.RunID, &r.HoldoutExpectancy, &r.HoldoutDrawdown, &data); err != nil {
			return nil, fmt.Errorf("storage.ListSweeps: scan result: %w", err)
		}
		r.Data = json.RawMessage(data)
		out = append(out, r)
	}
	return out, rows.Err()
}

// Close cierra la conexión a la base de datos.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
