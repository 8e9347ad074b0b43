package cache

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/gridtrading/gridbot/market"
)

// SymbolRange is the per-symbol coverage record: the contiguous span of
// days already cached, the earliest day upstream has data for, and the
// split history the cached bars were adjusted with. One row per symbol,
// mutated only under the reconciler's per-symbol lock.
type SymbolRange struct {
	Symbol         string
	HaveFrom       market.Date
	HaveTo         market.Date
	FirstDay       market.Date
	Splits         []market.SplitInfo
	LastSplitCheck time.Time
}

// Covers reports whether [from, to] lies inside the cached span.
func (r *SymbolRange) Covers(from, to market.Date) bool {
	if r == nil || r.HaveFrom.IsZero() || r.HaveTo.IsZero() {
		return false
	}
	return !from.Before(r.HaveFrom) && !to.After(r.HaveTo)
}

// Store is the persistence contract for symbol coverage and per-day blobs.
type Store interface {
	// ReadSymbolRange returns nil (no error) when the symbol is unknown.
	ReadSymbolRange(ctx context.Context, symbol string) (*SymbolRange, error)
	UpsertSymbolRange(ctx context.Context, r *SymbolRange) error
	SaveDay(ctx context.Context, blob market.DayBlob) error
	LoadDays(ctx context.Context, symbol string, from, to market.Date) ([]market.DayBlob, error)
	DeleteSymbolBars(ctx context.Context, symbol string) error
	Close() error
}

const schema = `
CREATE TABLE IF NOT EXISTS symbol_ranges (
	symbol TEXT PRIMARY KEY,
	have_from TEXT NOT NULL,
	have_to TEXT NOT NULL,
	first_day TEXT NOT NULL,
	splits TEXT NOT NULL,
	last_split_check DATETIME
);

CREATE TABLE IF NOT EXISTS day_bars (
	symbol TEXT NOT NULL,
	day TEXT NOT NULL,
	records INTEGER NOT NULL,
	start_ts INTEGER NOT NULL,
	end_ts INTEGER NOT NULL,
	payload BLOB NOT NULL,
	PRIMARY KEY (symbol, day)
);
`

// SQLiteStore persists the cache in a local SQLite database. ISO dates as
// TEXT keep range queries plain string comparisons.
type SQLiteStore struct {
	db *sql.DB
}

func NewSQLite(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) ReadSymbolRange(ctx context.Context, symbol string) (*SymbolRange, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT have_from, have_to, first_day, splits, last_split_check
		FROM symbol_ranges WHERE symbol = ?`, symbol)

	var haveFrom, haveTo, firstDay, splitsJSON string
	var lastCheck sql.NullTime
	err := row.Scan(&haveFrom, &haveTo, &firstDay, &splitsJSON, &lastCheck)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read symbol range %s: %w", symbol, err)
	}

	r := &SymbolRange{
		Symbol:   symbol,
		HaveFrom: market.Date(haveFrom),
		HaveTo:   market.Date(haveTo),
		FirstDay: market.Date(firstDay),
	}
	if lastCheck.Valid {
		r.LastSplitCheck = lastCheck.Time
	}
	if splitsJSON != "" && splitsJSON != "null" {
		if err := json.Unmarshal([]byte(splitsJSON), &r.Splits); err != nil {
			return nil, fmt.Errorf("decode splits for %s: %w", symbol, err)
		}
	}
	return r, nil
}

func (s *SQLiteStore) UpsertSymbolRange(ctx context.Context, r *SymbolRange) error {
	splitsJSON, err := json.Marshal(r.Splits)
	if err != nil {
		return fmt.Errorf("encode splits for %s: %w", r.Symbol, err)
	}

	var lastCheck interface{}
	if !r.LastSplitCheck.IsZero() {
		lastCheck = r.LastSplitCheck.UTC()
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO symbol_ranges (symbol, have_from, have_to, first_day, splits, last_split_check)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(symbol) DO UPDATE SET
			have_from = excluded.have_from,
			have_to = excluded.have_to,
			first_day = excluded.first_day,
			splits = excluded.splits,
			last_split_check = excluded.last_split_check`,
		r.Symbol, string(r.HaveFrom), string(r.HaveTo), string(r.FirstDay),
		string(splitsJSON), lastCheck,
	)
	if err != nil {
		return fmt.Errorf("upsert symbol range %s: %w", r.Symbol, err)
	}
	return nil
}

func (s *SQLiteStore) SaveDay(ctx context.Context, blob market.DayBlob) error {
	payload, err := encodePayload(blob.Points)
	if err != nil {
		return fmt.Errorf("encode day %s %s: %w", blob.Symbol, blob.Day, err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO day_bars (symbol, day, records, start_ts, end_ts, payload)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(symbol, day) DO UPDATE SET
			records = excluded.records,
			start_ts = excluded.start_ts,
			end_ts = excluded.end_ts,
			payload = excluded.payload`,
		blob.Symbol, string(blob.Day), blob.Records, blob.StartTS, blob.EndTS, payload,
	)
	if err != nil {
		return fmt.Errorf("save day %s %s: %w", blob.Symbol, blob.Day, err)
	}
	return nil
}

func (s *SQLiteStore) LoadDays(ctx context.Context, symbol string, from, to market.Date) ([]market.DayBlob, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT day, records, start_ts, end_ts, payload
		FROM day_bars
		WHERE symbol = ? AND day >= ? AND day <= ?
		ORDER BY day`, symbol, string(from), string(to))
	if err != nil {
		return nil, fmt.Errorf("load days %s [%s, %s]: %w", symbol, from, to, err)
	}
	defer rows.Close()

	var blobs []market.DayBlob
	for rows.Next() {
		var day string
		var payload []byte
		blob := market.DayBlob{Symbol: symbol}
		if err := rows.Scan(&day, &blob.Records, &blob.StartTS, &blob.EndTS, &payload); err != nil {
			return nil, err
		}
		blob.Day = market.Date(day)
		if blob.Points, err = decodePayload(payload); err != nil {
			return nil, fmt.Errorf("decode day %s %s: %w", symbol, day, err)
		}
		blobs = append(blobs, blob)
	}
	return blobs, rows.Err()
}

func (s *SQLiteStore) DeleteSymbolBars(ctx context.Context, symbol string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM day_bars WHERE symbol = ?`, symbol); err != nil {
		return fmt.Errorf("delete bars %s: %w", symbol, err)
	}
	return nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
