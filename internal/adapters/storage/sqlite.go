package storage

// sqlite.go — persistencia del ledger de trades y del shadow audit.
//
// Estrategia:
//   - `trades`: una fila por orden. Los campos de resolución son NULL hasta
//     que el mercado resuelve; el UPDATE solo toca filas con outcome IS NULL,
//     lo que hace la resolución idempotente a nivel de SQL.
//   - `shadow_markets`: una fila por mercado expirado. Los trails y los skips
//     se guardan como columnas JSON — son datos de análisis offline, no se
//     consultan por campo.
//   - Prune automático al arrancar: shadow_markets > 30d.
//   - Un fichero corrupto se elimina y se recrea vacío: perder histórico es
//     preferible a no poder arrancar el bot.

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/amezcua/tightbot/internal/domain"
	"github.com/amezcua/tightbot/internal/ports"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS trades (
    id            TEXT PRIMARY KEY,   -- UUID local
    condition_id  TEXT NOT NULL,
    question      TEXT,
    asset         TEXT NOT NULL,
    side          TEXT NOT NULL,      -- YES / NO
    ask           REAL NOT NULL,
    stake         REAL NOT NULL,
    strike        REAL NOT NULL DEFAULT 0,
    spot_at_entry REAL NOT NULL DEFAULT 0,
    model_prob    REAL NOT NULL DEFAULT 0,
    market_prob   REAL NOT NULL DEFAULT 0,
    edge          REAL NOT NULL DEFAULT 0,
    volatility    REAL NOT NULL DEFAULT 0,
    order_id      TEXT NOT NULL DEFAULT '',
    success       INTEGER NOT NULL DEFAULT 0,
    error         TEXT NOT NULL DEFAULT '',
    dry_run       INTEGER NOT NULL DEFAULT 0,
    placed_at     DATETIME NOT NULL,

    -- Resolución: NULL hasta que el mercado resuelve
    outcome       TEXT,
    final_price   REAL,
    payout        REAL,
    net_return    REAL,
    resolved_at   DATETIME
);

CREATE INDEX IF NOT EXISTS trades_condition ON trades(condition_id);
CREATE INDEX IF NOT EXISTS trades_placed    ON trades(placed_at DESC);

CREATE TABLE IF NOT EXISTS shadow_markets (
    id                  INTEGER PRIMARY KEY AUTOINCREMENT,
    condition_id        TEXT NOT NULL,
    question            TEXT,
    asset               TEXT NOT NULL,
    strike              REAL,
    final_price         REAL,
    outcome             TEXT,
    was_traded          INTEGER NOT NULL DEFAULT 0,
    total_snapshots     INTEGER NOT NULL DEFAULT 0,
    tight_ratio         REAL NOT NULL DEFAULT 0,
    final_yes           REAL NOT NULL DEFAULT 0,
    final_no            REAL NOT NULL DEFAULT 0,
    volatility          REAL,
    expected_move_exec  REAL,
    price_at_exec_start REAL,
    crossed_strike      INTEGER NOT NULL DEFAULT 0,
    min_distance        REAL,
    max_distance        REAL,
    momentum_last_3s    REAL,
    reversal_detected   INTEGER NOT NULL DEFAULT 0,
    majority_exec_start TEXT,
    price_trail_exec    TEXT,   -- JSON
    price_trail_entry   TEXT,   -- JSON
    odds_trail_exec     TEXT,   -- JSON
    odds_trail_entry    TEXT,   -- JSON
    skips               TEXT,   -- JSON
    created_at          DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS shadow_condition ON shadow_markets(condition_id);
CREATE INDEX IF NOT EXISTS shadow_created   ON shadow_markets(created_at DESC);
`

const retentionShadow = 30 * 24 * time.Hour

// SQLiteStorage implementa ports.Storage usando SQLite (pure Go, sin CGo).
type SQLiteStorage struct {
	db  *sql.DB
	log *slog.Logger
}

var _ ports.Storage = (*SQLiteStorage)(nil)

// NewSQLiteStorage abre (o crea) la base de datos en la ruta dada. Si el
// fichero existe pero está corrupto, lo elimina y lo recrea vacío.
func NewSQLiteStorage(path string, log *slog.Logger) (*SQLiteStorage, error) {
	db, err := open(path)
	if err != nil {
		if path == "" || path == ":memory:" {
			return nil, err
		}
		log.Warn("trade database unusable, recreating", "path", path, "err", err)
		if rmErr := os.Remove(path); rmErr != nil {
			return nil, fmt.Errorf("storage.NewSQLiteStorage: remove corrupt db: %w", rmErr)
		}
		db, err = open(path)
		if err != nil {
			return nil, err
		}
	}

	s := &SQLiteStorage{db: db, log: log}
	s.pruneOld(context.Background())
	return s, nil
}

func open(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("storage.NewSQLiteStorage: open %q: %w", path, err)
	}
	db.SetMaxOpenConns(1) // SQLite es single-writer
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage.NewSQLiteStorage: apply schema: %w", err)
	}
	return db, nil
}

// SaveTrade inserta una entrada del ledger.
func (s *SQLiteStorage) SaveTrade(ctx context.Context, e domain.LedgerEntry) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO trades
			(id, condition_id, question, asset, side, ask, stake, strike,
			 spot_at_entry, model_prob, market_prob, edge, volatility,
			 order_id, success, error, dry_run, placed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		e.ID, e.ConditionID, e.Question, e.Asset, string(e.Side),
		e.Ask, e.Stake, e.Strike, e.SpotAtEntry,
		e.ModelProb, e.MarketProb, e.Edge, e.Volatility,
		e.OrderID, boolInt(e.Success), e.Error, boolInt(e.DryRun),
		e.PlacedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("storage.SaveTrade: insert %s: %w", e.ID, err)
	}
	return nil
}

// ResolveTrades enriquece las entradas sin resolver del mercado y devuelve
// las que resolvió en esta llamada. Las ya resueltas no se tocan.
func (s *SQLiteStorage) ResolveTrades(ctx context.Context, conditionID string, outcome domain.Side, finalPrice float64) ([]domain.LedgerEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, condition_id, question, asset, side, ask, stake, strike,
		       spot_at_entry, model_prob, market_prob, edge, volatility,
		       order_id, success, error, dry_run, placed_at
		FROM trades
		WHERE condition_id = ? AND outcome IS NULL
	`, conditionID)
	if err != nil {
		return nil, fmt.Errorf("storage.ResolveTrades: query: %w", err)
	}

	var entries []domain.LedgerEntry
	for rows.Next() {
		e, err := scanTrade(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("storage.ResolveTrades: scan row: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("storage.ResolveTrades: rows: %w", err)
	}
	rows.Close()

	if len(entries) == 0 {
		return nil, nil
	}

	now := time.Now().UTC()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("storage.ResolveTrades: begin tx: %w", err)
	}
	defer tx.Rollback()

	for i := range entries {
		entries[i].Settle(outcome, finalPrice, now)
		e := entries[i]
		if _, err := tx.ExecContext(ctx, `
			UPDATE trades
			SET outcome = ?, final_price = ?, payout = ?, net_return = ?, resolved_at = ?
			WHERE id = ? AND outcome IS NULL
		`, string(*e.Outcome), *e.FinalPrice, *e.Payout, *e.NetReturn, *e.ResolvedAt,
			e.ID,
		); err != nil {
			return nil, fmt.Errorf("storage.ResolveTrades: update %s: %w", e.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("storage.ResolveTrades: commit: %w", err)
	}
	return entries, nil
}

// SaveShadow persiste el registro de auditoría de un mercado expirado.
func (s *SQLiteStorage) SaveShadow(ctx context.Context, r domain.ShadowRecord) error {
	var majority *string
	if r.MajorityAtExecStart != nil {
		m := string(*r.MajorityAtExecStart)
		majority = &m
	}
	var outcome *string
	if r.Outcome != nil {
		o := string(*r.Outcome)
		outcome = &o
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO shadow_markets
			(condition_id, question, asset, strike, final_price, outcome,
			 was_traded, total_snapshots, tight_ratio, final_yes, final_no,
			 volatility, expected_move_exec, price_at_exec_start,
			 crossed_strike, min_distance, max_distance, momentum_last_3s,
			 reversal_detected, majority_exec_start,
			 price_trail_exec, price_trail_entry, odds_trail_exec,
			 odds_trail_entry, skips, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		r.ConditionID, r.Question, r.Asset, r.Strike, r.FinalPrice, outcome,
		boolInt(r.WasTraded), r.TotalSnapshots, r.TightRatio, r.FinalYes, r.FinalNo,
		r.Volatility, r.ExpectedMoveExec, r.PriceAtExecStart,
		boolInt(r.CrossedStrike), r.MinDistance, r.MaxDistance, r.MomentumLast3s,
		boolInt(r.ReversalDetected), majority,
		marshalJSON(r.PriceTrailExec), marshalJSON(r.PriceTrailEntry),
		marshalJSON(r.OddsTrailExec), marshalJSON(r.OddsTrailEntry),
		marshalJSON(r.Skips),
		r.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("storage.SaveShadow: insert %s: %w", r.ConditionID, err)
	}
	return nil
}

// TradeStats devuelve el agregado del ledger para el report de consola.
func (s *SQLiteStorage) TradeStats(ctx context.Context) (domain.TradeStats, error) {
	var st domain.TradeStats
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
		       COALESCE(SUM(CASE WHEN success = 1 AND outcome IS NULL THEN 1 ELSE 0 END), 0),
		       COALESCE(SUM(CASE WHEN outcome IS NOT NULL AND net_return > 0 THEN 1 ELSE 0 END), 0),
		       COALESCE(SUM(CASE WHEN outcome IS NOT NULL AND success = 1 AND net_return <= 0 THEN 1 ELSE 0 END), 0),
		       COALESCE(SUM(CASE WHEN success = 0 THEN 1 ELSE 0 END), 0),
		       COALESCE(SUM(CASE WHEN success = 1 THEN stake ELSE 0 END), 0),
		       COALESCE(SUM(CASE WHEN net_return IS NOT NULL THEN net_return ELSE 0 END), 0)
		FROM trades
	`).Scan(&st.Total, &st.Open, &st.Wins, &st.Losses, &st.Failed, &st.TotalStake, &st.NetReturn)
	if err != nil {
		return domain.TradeStats{}, fmt.Errorf("storage.TradeStats: %w", err)
	}
	return st, nil
}

// Close cierra la conexión a la base de datos.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// --- helpers internos ---

// scanTrade lee una fila de trades sin campos de resolución.
func scanTrade(rows *sql.Rows) (domain.LedgerEntry, error) {
	var e domain.LedgerEntry
	var side string
	var success, dryRun int
	var placedAt time.Time

	if err := rows.Scan(
		&e.ID, &e.ConditionID, &e.Question, &e.Asset, &side,
		&e.Ask, &e.Stake, &e.Strike, &e.SpotAtEntry,
		&e.ModelProb, &e.MarketProb, &e.Edge, &e.Volatility,
		&e.OrderID, &success, &e.Error, &dryRun, &placedAt,
	); err != nil {
		return domain.LedgerEntry{}, err
	}

	e.Side = domain.Side(side)
	e.Success = success == 1
	e.DryRun = dryRun == 1
	e.PlacedAt = placedAt.UTC()
	return e, nil
}

// pruneOld elimina shadow records antiguos para mantener la DB ligera.
func (s *SQLiteStorage) pruneOld(ctx context.Context) {
	cutoff := time.Now().UTC().Add(-retentionShadow)
	if _, err := s.db.ExecContext(ctx, `DELETE FROM shadow_markets WHERE created_at < ?`, cutoff); err != nil {
		s.log.Warn("shadow prune failed", "err", err)
	}
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// marshalJSON serializa a texto JSON; nunca falla para nuestros tipos.
func marshalJSON(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return "null"
	}
	return string(b)
}
