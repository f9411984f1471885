// Package postgres provides a PostgreSQL persistence backend mirroring the
// sqlite store's row layout: one records table keyed by (entity_type, id)
// with the payload stored as JSONB and the optimistic concurrency version in
// its own column.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"wellcore/pkg/domain"

	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as a database/sql driver
)

// Compile-time contract assertion.
var _ domain.Store = (*Store)(nil)

const (
	defaultDriver = "pgx"
	defaultDSN    = "postgres://localhost/wellcore?sslmode=disable"
)

var (
	sqlOpen = sql.Open
	openMu  sync.Mutex
)

const schema = `CREATE TABLE IF NOT EXISTS records (
	entity_type TEXT NOT NULL,
	id TEXT NOT NULL,
	operator_id TEXT NOT NULL,
	version BIGINT NOT NULL,
	payload JSONB NOT NULL,
	PRIMARY KEY (entity_type, id)
)`

// Store is the Postgres-backed persistent store.
type Store struct {
	db *sql.DB
}

// NewStore opens a Postgres-backed store using the provided DSN (falls back
// to defaultDSN), verifies connectivity, and bootstraps the schema.
func NewStore(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		dsn = defaultDSN
	}
	openMu.Lock()
	db, err := sqlOpen(defaultDriver, dsn)
	openMu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return nil, fmt.Errorf("create records table: %w", err)
	}
	return &Store{db: db}, nil
}

// Tx wraps the driver transaction handle.
type Tx struct {
	tx *sql.Tx
}

// Driver implements domain.Tx.
func (t *Tx) Driver() string { return "postgres" }

// RunInTx executes fn within one database transaction, rolling back on any
// error from fn and committing otherwise.
func (s *Store) RunInTx(ctx context.Context, fn func(tx domain.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(&Tx{tx: tx}); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Find returns the committed entity or a NotFoundError.
func (s *Store) Find(ctx context.Context, kind domain.EntityType, id string) (domain.Entity, error) {
	var payload []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT payload FROM records WHERE entity_type = $1 AND id = $2`, string(kind), id).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NotFoundError{Identity: domain.Identity{Kind: kind, ID: id}}
	}
	if err != nil {
		return nil, fmt.Errorf("select %s/%s: %w", kind, id, err)
	}
	return decode(kind, id, payload)
}

// List returns all committed entities of kind owned by operator, ordered by ID.
func (s *Store) List(ctx context.Context, kind domain.EntityType, operator string) ([]domain.Entity, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, payload FROM records WHERE entity_type = $1 AND operator_id = $2 ORDER BY id`,
		string(kind), operator)
	if err != nil {
		return nil, fmt.Errorf("select %s list: %w", kind, err)
	}
	defer func() { _ = rows.Close() }()
	var out []domain.Entity
	for rows.Next() {
		var id string
		var payload []byte
		if err := rows.Scan(&id, &payload); err != nil {
			return nil, fmt.Errorf("scan %s row: %w", kind, err)
		}
		e, err := decode(kind, id, payload)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate %s rows: %w", kind, err)
	}
	return out, nil
}

// Factories returns one repository factory per entity kind.
func (s *Store) Factories() map[domain.EntityType]domain.RepositoryFactory {
	out := make(map[domain.EntityType]domain.RepositoryFactory, len(domain.EntityTypes()))
	for _, kind := range domain.EntityTypes() {
		kind := kind
		out[kind] = func(tx domain.Tx) (domain.Repository, error) {
			pt, ok := tx.(*Tx)
			if !ok {
				return nil, fmt.Errorf("postgres: unexpected transaction handle %T", tx)
			}
			return &repo{tx: pt.tx, kind: kind}, nil
		}
	}
	return out
}

// Close releases the database handle.
func (s *Store) Close() error { return s.db.Close() }

// DB exposes the underlying sql.DB for integration testing hooks.
func (s *Store) DB() *sql.DB { return s.db }

type repo struct {
	tx   *sql.Tx
	kind domain.EntityType
}

func (r *repo) Insert(ctx context.Context, e domain.Entity) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode %s: %w", domain.IdentityOf(e), err)
	}
	_, err = r.tx.ExecContext(ctx,
		`INSERT INTO records(entity_type, id, operator_id, version, payload) VALUES($1,$2,$3,$4,$5)`,
		string(r.kind), e.EntityID(), e.Operator(), e.EntityVersion(), payload)
	if err != nil {
		return fmt.Errorf("insert %s: %w", domain.IdentityOf(e), err)
	}
	return nil
}

func (r *repo) Update(ctx context.Context, e domain.Entity) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode %s: %w", domain.IdentityOf(e), err)
	}
	res, err := r.tx.ExecContext(ctx,
		`UPDATE records SET operator_id = $1, version = $2, payload = $3 WHERE entity_type = $4 AND id = $5`,
		e.Operator(), e.EntityVersion(), payload, string(r.kind), e.EntityID())
	if err != nil {
		return fmt.Errorf("update %s: %w", domain.IdentityOf(e), err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update %s: rows affected: %w", domain.IdentityOf(e), err)
	}
	if affected == 0 {
		return domain.NotFoundError{Identity: domain.IdentityOf(e)}
	}
	return nil
}

func (r *repo) Delete(ctx context.Context, id string) error {
	res, err := r.tx.ExecContext(ctx,
		`DELETE FROM records WHERE entity_type = $1 AND id = $2`, string(r.kind), id)
	if err != nil {
		return fmt.Errorf("delete %s/%s: %w", r.kind, id, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete %s/%s: rows affected: %w", r.kind, id, err)
	}
	if affected == 0 {
		return domain.NotFoundError{Identity: domain.Identity{Kind: r.kind, ID: id}}
	}
	return nil
}

func (r *repo) FindByID(ctx context.Context, id string) (domain.Entity, error) {
	var payload []byte
	err := r.tx.QueryRowContext(ctx,
		`SELECT payload FROM records WHERE entity_type = $1 AND id = $2`, string(r.kind), id).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NotFoundError{Identity: domain.Identity{Kind: r.kind, ID: id}}
	}
	if err != nil {
		return nil, fmt.Errorf("select %s/%s: %w", r.kind, id, err)
	}
	return decode(r.kind, id, payload)
}

func decode(kind domain.EntityType, id string, payload []byte) (domain.Entity, error) {
	e, err := domain.NewEntity(kind)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(payload, e); err != nil {
		return nil, fmt.Errorf("decode %s/%s: %w", kind, id, err)
	}
	return e, nil
}

// OverrideSQLOpen swaps the sqlOpen function for tests and returns a restore
// function.
func OverrideSQLOpen(fn func(driverName, dataSourceName string) (*sql.DB, error)) func() {
	openMu.Lock()
	defer openMu.Unlock()
	prev := sqlOpen
	sqlOpen = fn
	return func() {
		openMu.Lock()
		defer openMu.Unlock()
		sqlOpen = prev
	}
}
