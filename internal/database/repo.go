// Package database owns the Postgres gateway for quote rows: table
// creation, inserts, read-back and the end-of-session flush.
package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/sirupsen/logrus"

	"suptrading/internal/market"
)

type Repo struct {
	db  *sqlx.DB
	log *logrus.Logger
}

func New(db *sqlx.DB, log *logrus.Logger) *Repo {
	return &Repo{db: db, log: log}
}

// Connect opens and pings a Postgres connection. The caller owns closing it.
func Connect(dsn string) (*sqlx.DB, error) {
	db, err := sqlx.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, err
	}
	db.SetMaxOpenConns(5)
	db.SetMaxIdleConns(2)
	return db, nil
}

// EnsureTable creates the nine-column quote table with a synthetic primary
// key if it does not exist yet.
func (r *Repo) EnsureTable(ctx context.Context, name string) error {
	q := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		id SERIAL PRIMARY KEY,
		date TIMESTAMP,
		share VARCHAR(255),
		symbol VARCHAR(255),
		open NUMERIC,
		high NUMERIC,
		low NUMERIC,
		close NUMERIC,
		adj_close NUMERIC,
		volume BIGINT
	)`, pq.QuoteIdentifier(name))
	if _, err := r.db.ExecContext(ctx, q); err != nil {
		return fmt.Errorf("ensure table %s: %w", name, err)
	}
	r.log.Infof("table %s ready", name)
	return nil
}

// Insert writes one quote row, committed immediately. One transaction per
// row is fine at one row per symbol per tick.
func (r *Repo) Insert(ctx context.Context, name string, row market.Row) error {
	q := fmt.Sprintf(`INSERT INTO %s (date, share, symbol, open, high, low, close, adj_close, volume)
		VALUES ($1, $2, $3, $4::numeric, $5::numeric, $6::numeric, $7::numeric, $8::numeric, $9)`,
		pq.QuoteIdentifier(name))
	_, err := r.db.ExecContext(ctx, q,
		row.Date, row.Share, row.Symbol,
		row.Open.String(), row.High.String(), row.Low.String(),
		row.Close.String(), row.AdjClose.String(), row.Volume)
	if err != nil {
		return fmt.Errorf("insert into %s: %w", name, err)
	}
	return nil
}

// SelectAll reads back every stored row ordered by id.
func (r *Repo) SelectAll(ctx context.Context, name string) ([]StoredRow, error) {
	q := fmt.Sprintf(`SELECT id, date, share, symbol, open, high, low, close, adj_close, volume FROM %s ORDER BY id`,
		pq.QuoteIdentifier(name))
	rows, err := r.db.QueryxContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("select from %s: %w", name, err)
	}
	defer rows.Close()

	res := []StoredRow{}
	for rows.Next() {
		var s StoredRow
		if err := rows.StructScan(&s); err != nil {
			return nil, fmt.Errorf("scan row from %s: %w", name, err)
		}
		res = append(res, s)
	}
	return res, rows.Err()
}

// Flush archives every daily row into the history table and empties the
// daily table, restarting its identity sequence, in one transaction.
func (r *Repo) Flush(ctx context.Context, daily, history string) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin flush: %w", err)
	}
	defer tx.Rollback()

	archive := fmt.Sprintf(`INSERT INTO %s (date, share, symbol, open, high, low, close, adj_close, volume)
		SELECT date, share, symbol, open, high, low, close, adj_close, volume FROM %s ORDER BY id`,
		pq.QuoteIdentifier(history), pq.QuoteIdentifier(daily))
	if _, err := tx.ExecContext(ctx, archive); err != nil {
		return fmt.Errorf("archive %s into %s: %w", daily, history, err)
	}

	truncate := fmt.Sprintf("TRUNCATE TABLE %s RESTART IDENTITY", pq.QuoteIdentifier(daily))
	if _, err := tx.ExecContext(ctx, truncate); err != nil {
		return fmt.Errorf("truncate %s: %w", daily, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit flush: %w", err)
	}
	r.log.Infof("table %s archived and emptied", daily)
	return nil
}
