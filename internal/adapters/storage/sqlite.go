package storage

// sqlite.go — persistencia del watcher sobre SQLite (pure Go, sin CGo).
//
// Estrategia:
//   - `ticks`: append-only, insert multi-fila por batch, retención por horas.
//   - `book_snapshots` + `book_levels`: una fila agregada por captura más
//     hasta 10 niveles L2 por lado, enlazados por snapshot_id. Batches
//     best-effort: no atómicos entre tablas.
//   - `trades`: trades simulados con ciclo de vida open → closed (upsert por id).
//   - `assertions`: último estado de cada invariante (upsert por nombre).

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/alejandrodnm/polywatch/internal/domain"
	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS ticks (
    id      INTEGER PRIMARY KEY AUTOINCREMENT,
    venue   TEXT     NOT NULL,
    symbol  TEXT     NOT NULL,
    price   REAL     NOT NULL,
    bid     REAL     NOT NULL DEFAULT 0,
    ask     REAL     NOT NULL DEFAULT 0,
    volume  REAL     NOT NULL DEFAULT 0,
    at      DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS book_snapshots (
    id             TEXT PRIMARY KEY,
    token_id       TEXT     NOT NULL,
    best_bid       REAL     NOT NULL DEFAULT 0,
    best_ask       REAL     NOT NULL DEFAULT 0,
    spread         REAL     NOT NULL DEFAULT 0,
    mid            REAL     NOT NULL DEFAULT 0,
    bid_depth_1pct REAL     NOT NULL DEFAULT 0,
    bid_depth_5pct REAL     NOT NULL DEFAULT 0,
    ask_depth_1pct REAL     NOT NULL DEFAULT 0,
    ask_depth_5pct REAL     NOT NULL DEFAULT 0,
    bid_levels     INTEGER  NOT NULL DEFAULT 0,
    ask_levels     INTEGER  NOT NULL DEFAULT 0,
    at             DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS book_levels (
    snapshot_id TEXT     NOT NULL,
    token_id    TEXT     NOT NULL,
    side        TEXT     NOT NULL,
    rank        INTEGER  NOT NULL,
    price       REAL     NOT NULL,
    size        REAL     NOT NULL,
    at          DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS trades (
    id          TEXT PRIMARY KEY,
    strategy    TEXT     NOT NULL,
    variation   TEXT     NOT NULL,
    symbol      TEXT     NOT NULL,
    slug        TEXT,
    side        TEXT     NOT NULL,
    token_id    TEXT     NOT NULL,
    open_epoch  INTEGER  NOT NULL,
    shares      REAL     NOT NULL,
    entry_price REAL     NOT NULL,
    cost        REAL     NOT NULL,
    entry_fee   REAL     NOT NULL DEFAULT 0,
    exit_fee    REAL     NOT NULL DEFAULT 0,
    opened_at   DATETIME NOT NULL,
    closed_at   DATETIME,
    exit_price  REAL     NOT NULL DEFAULT 0,
    exit_reason TEXT,
    realized    REAL     NOT NULL DEFAULT 0,
    won         INTEGER  NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS assertions (
    name     TEXT PRIMARY KEY,
    passed   INTEGER,
    message  TEXT,
    last_run DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_ticks_at        ON ticks(at);
CREATE INDEX IF NOT EXISTS idx_ticks_symbol    ON ticks(symbol, venue, at DESC);
CREATE INDEX IF NOT EXISTS idx_snapshots_token ON book_snapshots(token_id, at DESC);
CREATE INDEX IF NOT EXISTS idx_levels_snapshot ON book_levels(snapshot_id);
CREATE INDEX IF NOT EXISTS idx_trades_open     ON trades(closed_at) WHERE closed_at IS NULL;
`

// SQLiteStorage implementa ports.Storage usando SQLite.
type SQLiteStorage struct {
	db *sql.DB
}

// NewSQLiteStorage abre (o crea) la base de datos en la ruta dada y
// aplica el schema.
func NewSQLiteStorage(path string) (*SQLiteStorage, error) {
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

	return &SQLiteStorage{db: db}, nil
}

// SaveTicks inserta el batch en una sola sentencia multi-fila.
func (s *SQLiteStorage) SaveTicks(ctx context.Context, ticks []domain.PriceTick) error {
	if len(ticks) == 0 {
		return nil
	}

	var sb strings.Builder
	sb.WriteString(`INSERT INTO ticks (venue, symbol, price, bid, ask, volume, at) VALUES `)
	args := make([]any, 0, len(ticks)*7)
	for i, t := range ticks {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString("(?, ?, ?, ?, ?, ?, ?)")
		args = append(args, t.Venue, t.Symbol, t.Price, t.Bid, t.Ask, t.Volume, t.At.UTC())
	}

	if _, err := s.db.ExecContext(ctx, sb.String(), args...); err != nil {
		return fmt.Errorf("storage.SaveTicks: insert %d ticks: %w", len(ticks), err)
	}
	return nil
}

// DeleteTicksBefore borra los ticks anteriores al corte.
func (s *SQLiteStorage) DeleteTicksBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM ticks WHERE at < ?`, cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("storage.DeleteTicksBefore: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// RecentTicks devuelve los ticks del símbolo desde el corte, en orden
// ascendente por tiempo. Usado para reconstruir el composite de
// apertura de una ventana tras un reinicio.
func (s *SQLiteStorage) RecentTicks(ctx context.Context, symbol string, since time.Time, limit int) ([]domain.PriceTick, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT venue, symbol, price, bid, ask, volume, at
		FROM ticks
		WHERE symbol = ? AND at >= ?
		ORDER BY at ASC
		LIMIT ?`, symbol, since.UTC(), limit)
	if err != nil {
		return nil, fmt.Errorf("storage.RecentTicks: %w", err)
	}
	defer rows.Close()

	var out []domain.PriceTick
	for rows.Next() {
		var t domain.PriceTick
		if err := rows.Scan(&t.Venue, &t.Symbol, &t.Price, &t.Bid, &t.Ask, &t.Volume, &t.At); err != nil {
			return nil, fmt.Errorf("storage.RecentTicks: scan: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// SaveBookSnapshot inserta el snapshot agregado y sus filas L2.
// Los dos inserts son best-effort independientes, no una transacción.
func (s *SQLiteStorage) SaveBookSnapshot(ctx context.Context, snap domain.BookSnapshot, levels []domain.BookLevelRow) error {
	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO book_snapshots
			(id, token_id, best_bid, best_ask, spread, mid,
			 bid_depth_1pct, bid_depth_5pct, ask_depth_1pct, ask_depth_5pct,
			 bid_levels, ask_levels, at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		snap.ID, snap.TokenID, snap.BestBid, snap.BestAsk, snap.Spread, snap.Mid,
		snap.BidDepth1Pct, snap.BidDepth5Pct, snap.AskDepth1Pct, snap.AskDepth5Pct,
		snap.BidLevels, snap.AskLevels, snap.At.UTC(),
	); err != nil {
		return fmt.Errorf("storage.SaveBookSnapshot: insert snapshot: %w", err)
	}

	if len(levels) == 0 {
		return nil
	}

	var sb strings.Builder
	sb.WriteString(`INSERT INTO book_levels (snapshot_id, token_id, side, rank, price, size, at) VALUES `)
	args := make([]any, 0, len(levels)*7)
	for i, l := range levels {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString("(?, ?, ?, ?, ?, ?, ?)")
		args = append(args, l.SnapshotID, l.TokenID, l.Side, l.Rank, l.Price, l.Size, l.At.UTC())
	}

	if _, err := s.db.ExecContext(ctx, sb.String(), args...); err != nil {
		return fmt.Errorf("storage.SaveBookSnapshot: insert %d levels: %w", len(levels), err)
	}
	return nil
}

// SaveTrade inserta un trade simulado recién abierto.
func (s *SQLiteStorage) SaveTrade(ctx context.Context, t domain.SimulatedTrade) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO trades
			(id, strategy, variation, symbol, slug, side, token_id, open_epoch,
			 shares, entry_price, cost, entry_fee, opened_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.Strategy, t.Variation, t.Symbol, t.Slug, string(t.Side), t.TokenID,
		t.OpenEpoch, t.Shares, t.EntryPrice, t.Cost, t.EntryFee, t.OpenedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("storage.SaveTrade: %w", err)
	}
	return nil
}

// CloseTrade actualiza el trade con su resultado de cierre.
func (s *SQLiteStorage) CloseTrade(ctx context.Context, t domain.SimulatedTrade) error {
	if t.ClosedAt == nil {
		return fmt.Errorf("storage.CloseTrade: trade %s has no close time", t.ID)
	}
	won := 0
	if t.Won {
		won = 1
	}
	_, err := s.db.ExecContext(ctx, `
		UPDATE trades
		SET closed_at = ?, exit_price = ?, exit_reason = ?, exit_fee = ?, realized = ?, won = ?
		WHERE id = ?`,
		t.ClosedAt.UTC(), t.ExitPrice, t.ExitReason, t.ExitFee, t.Realized, won, t.ID,
	)
	if err != nil {
		return fmt.Errorf("storage.CloseTrade: %w", err)
	}
	return nil
}

// GetOpenTrades devuelve los trades simulados aún abiertos.
func (s *SQLiteStorage) GetOpenTrades(ctx context.Context) ([]domain.SimulatedTrade, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, strategy, variation, symbol, slug, side, token_id, open_epoch,
		       shares, entry_price, cost, entry_fee, opened_at
		FROM trades
		WHERE closed_at IS NULL
		ORDER BY opened_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("storage.GetOpenTrades: %w", err)
	}
	defer rows.Close()

	var trades []domain.SimulatedTrade
	for rows.Next() {
		var t domain.SimulatedTrade
		var side string
		var slug sql.NullString
		if err := rows.Scan(&t.ID, &t.Strategy, &t.Variation, &t.Symbol, &slug, &side,
			&t.TokenID, &t.OpenEpoch, &t.Shares, &t.EntryPrice, &t.Cost, &t.EntryFee,
			&t.OpenedAt); err != nil {
			return nil, fmt.Errorf("storage.GetOpenTrades: scan: %w", err)
		}
		t.Side = domain.TradeSide(side)
		t.Slug = slug.String
		trades = append(trades, t)
	}
	return trades, rows.Err()
}

// RealizedPnLSince devuelve el pnl realizado y el número de trades
// cerrados desde el instante dado.
func (s *SQLiteStorage) RealizedPnLSince(ctx context.Context, since time.Time) (float64, int, error) {
	var pnl sql.NullFloat64
	var count int
	err := s.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(realized), 0), COUNT(*)
		FROM trades
		WHERE closed_at IS NOT NULL AND closed_at >= ?`,
		since.UTC(),
	).Scan(&pnl, &count)
	if err != nil {
		return 0, 0, fmt.Errorf("storage.RealizedPnLSince: %w", err)
	}
	return pnl.Float64, count, nil
}

// SaveAssertion hace upsert del último estado de una invariante.
func (s *SQLiteStorage) SaveAssertion(ctx context.Context, a domain.Assertion) error {
	var passed any // NULL mientras la assertion está pendiente
	if a.Passed != nil {
		if *a.Passed {
			passed = 1
		} else {
			passed = 0
		}
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO assertions (name, passed, message, last_run)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			passed   = excluded.passed,
			message  = excluded.message,
			last_run = excluded.last_run`,
		a.Name, passed, a.Message, a.LastRun.UTC(),
	)
	if err != nil {
		return fmt.Errorf("storage.SaveAssertion: %w", err)
	}
	return nil
}

// Close cierra la conexión a la base de datos.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}
