// Package pg archives completed engine runs in Postgres: one row per
// run plus the final account snapshot. The engine itself stays
// in-memory; the archive is for reporting and replay comparison.
package pg

import (
	"context"
	"database/sql"
	"errors"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/shopspring/decimal"

	"paystream.org/internal/engine"
)

// ErrNotFound indicates the requested run does not exist.
var ErrNotFound = errors.New("pg: run not found")

// Run describes one completed engine pass over a transaction stream.
type Run struct {
	ID        string    `json:"id"`
	Source    string    `json:"source"`
	Processed int       `json:"processed"`
	Rejected  int       `json:"rejected"`
	CreatedAt time.Time `json:"created_at"`
}

// Store wraps the runs archive.
type Store struct {
	db *sql.DB
}

// Open connects to Postgres via the pgx stdlib driver.
func Open(dsn string) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)
	return &Store{db: db}, nil
}

// NewWithDB wraps an existing handle; used by tests.
func NewWithDB(db *sql.DB) *Store { return &Store{db: db} }

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) DB() *sql.DB { return s.db }

// SaveRun archives the run header and its final account snapshot in
// one transaction.
func (s *Store) SaveRun(ctx context.Context, run Run, accounts []engine.Account) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `
		insert into runs(id, source, processed, rejected, created_at)
		values ($1,$2,$3,$4,now())
	`, run.ID, run.Source, run.Processed, run.Rejected); err != nil {
		return err
	}

	for _, acc := range accounts {
		if _, err := tx.ExecContext(ctx, `
			insert into run_accounts(run_id, client_id, available, held, total, locked)
			values ($1,$2,$3,$4,$5,$6)
		`, run.ID, int64(acc.Client), acc.Available.String(), acc.Held.String(), acc.Total().String(), acc.Locked); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// GetRun loads a run header and its account snapshot.
func (s *Store) GetRun(ctx context.Context, id string) (Run, []engine.Account, error) {
	var run Run
	err := s.db.QueryRowContext(ctx, `
		select id, source, processed, rejected, created_at from runs where id=$1
	`, id).Scan(&run.ID, &run.Source, &run.Processed, &run.Rejected, &run.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, nil, ErrNotFound
	}
	if err != nil {
		return Run{}, nil, err
	}

	rows, err := s.db.QueryContext(ctx, `
		select client_id, available, held, locked
		from run_accounts where run_id=$1 order by client_id
	`, id)
	if err != nil {
		return Run{}, nil, err
	}
	defer rows.Close()

	var accounts []engine.Account
	for rows.Next() {
		var (
			client    int64
			available string
			held      string
			locked    bool
		)
		if err := rows.Scan(&client, &available, &held, &locked); err != nil {
			return Run{}, nil, err
		}
		acc := engine.Account{Client: engine.ClientID(client), Locked: locked}
		if acc.Available, err = decimal.NewFromString(available); err != nil {
			return Run{}, nil, err
		}
		if acc.Held, err = decimal.NewFromString(held); err != nil {
			return Run{}, nil, err
		}
		accounts = append(accounts, acc)
	}
	return run, accounts, rows.Err()
}

// ListRuns returns the most recent runs, newest first.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		select id, source, processed, rejected, created_at
		from runs order by created_at desc limit $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var run Run
		if err := rows.Scan(&run.ID, &run.Source, &run.Processed, &run.Rejected, &run.CreatedAt); err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}
