package sqlite

import (
	"database/sql"
	"fmt"
	"log"
	"time"

	"statarb-systemv1/internal/model"

	_ "github.com/mattn/go-sqlite3"
)

// Reader provides read-only access to the tick store for the analytics
// service and the replayer.
type Reader struct {
	db *sql.DB
}

// NewReader opens a SQLite connection for reading.
func NewReader(dbPath string) (*Reader, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("sqlite open reader: %w", err)
	}
	db.SetMaxOpenConns(2)
	db.SetMaxIdleConns(2)

	log.Printf("[sqlite-reader] opened %s", dbPath)
	return &Reader{db: db}, nil
}

// DB returns the underlying sql.DB for health checks.
func (r *Reader) DB() *sql.DB { return r.db }

// ReadLatestTicks returns the most recent `limit` ticks for a symbol in
// ascending timestamp order. The query selects the newest rows and the result
// is reversed so callers get chronological input.
func (r *Reader) ReadLatestTicks(symbol string, limit int) ([]model.Tick, error) {
	rows, err := r.db.Query(`
		SELECT symbol, timestamp, price, qty
		FROM ticks
		WHERE symbol = ?
		ORDER BY timestamp DESC
		LIMIT ?
	`, symbol, limit)
	if err != nil {
		return nil, fmt.Errorf("sqlite query latest ticks: %w", err)
	}
	defer rows.Close()

	ticks, err := scanTicks(rows)
	if err != nil {
		return nil, err
	}

	// Newest-first from the query; flip to ascending.
	for i, j := 0, len(ticks)-1; i < j; i, j = i+1, j-1 {
		ticks[i], ticks[j] = ticks[j], ticks[i]
	}
	return ticks, nil
}

// ReadTicksAfter returns all ticks for a symbol after the given timestamp
// (exclusive), ordered ascending. afterMs is epoch milliseconds; 0 = all.
func (r *Reader) ReadTicksAfter(symbol string, afterMs int64) ([]model.Tick, error) {
	rows, err := r.db.Query(`
		SELECT symbol, timestamp, price, qty
		FROM ticks
		WHERE symbol = ? AND timestamp > ?
		ORDER BY timestamp ASC
	`, symbol, afterMs)
	if err != nil {
		return nil, fmt.Errorf("sqlite query ticks after: %w", err)
	}
	defer rows.Close()

	return scanTicks(rows)
}

func scanTicks(rows *sql.Rows) ([]model.Tick, error) {
	var ticks []model.Tick
	for rows.Next() {
		var t model.Tick
		var tsMs int64
		if err := rows.Scan(&t.Symbol, &tsMs, &t.Price, &t.Qty); err != nil {
			return nil, fmt.Errorf("sqlite scan tick: %w", err)
		}
		t.TS = time.UnixMilli(tsMs).UTC()
		ticks = append(ticks, t)
	}
	return ticks, rows.Err()
}

// Close closes the reader.
func (r *Reader) Close() error {
	return r.db.Close()
}
