package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"salon-service/internal/models"

	"github.com/jackc/pgerrcode"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

var (
	// ErrNotFound is returned when a record does not exist
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned when a unique constraint rejects a write
	ErrConflict = errors.New("conflict")
)

type Store struct {
	db *sqlx.DB
}

// Options tunes the connection pool
type Options struct {
	MaxOpenConns  int
	MaxIdleConns  int
	RunMigrations bool
}

// NewStore creates a new database store
func NewStore(databaseURL string, opts Options) (*Store, error) {
	db, err := sqlx.Connect("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if opts.MaxOpenConns > 0 {
		db.SetMaxOpenConns(opts.MaxOpenConns)
	}
	if opts.MaxIdleConns > 0 {
		db.SetMaxIdleConns(opts.MaxIdleConns)
	}
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s := &Store{db: db}

	if opts.RunMigrations {
		if err := s.Migrate(context.Background()); err != nil {
			db.Close()
			return nil, err
		}
	}

	return s, nil
}

// Migrate applies the embedded goose migrations
func (s *Store) Migrate(ctx context.Context) error {
	goose.SetBaseFS(migrationsFS)

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set dialect: %w", err)
	}

	if err := goose.UpContext(ctx, s.db.DB, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	return nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the connection
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// withTx runs fn inside a transaction, rolling back when fn or the commit fails
func withTx(ctx context.Context, db *sqlx.DB, fn func(tx *sqlx.Tx) error) (txErr error) {
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	defer func() {
		if txErr != nil {
			if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
				txErr = errors.Join(txErr, fmt.Errorf("tx.Rollback: %w", rbErr))
			}
		}
	}()

	if err := fn(tx); err != nil {
		return err
	}

	return tx.Commit()
}

// mapError converts driver errors into store sentinels
func mapError(err error, what string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%s: %w", what, ErrNotFound)
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) && string(pqErr.Code) == pgerrcode.UniqueViolation {
		return fmt.Errorf("%s: %w", what, ErrConflict)
	}

	return fmt.Errorf("%s: %w", what, err)
}

func expectOneRow(res sql.Result, what string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", what, ErrNotFound)
	}
	return nil
}

// CreateTenant inserts a tenant
func (s *Store) CreateTenant(ctx context.Context, t *models.Tenant) error {
	err := s.db.QueryRowxContext(ctx,
		"INSERT INTO tenants (name, slug) VALUES ($1, $2) RETURNING id, active, created_at",
		t.Name, t.Slug,
	).Scan(&t.ID, &t.Active, &t.CreatedAt)
	return mapError(err, "create tenant")
}
