package storage

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/eugenenazirov/coffee-shop/internal/drinks"
)

const (
	dirPermissions    = 0o750
	connectionTimeout = 5 * time.Second
	connMaxIdleTime   = 30 * time.Minute
)

//go:embed schema.sql
var schemaSQL string

// SQLiteConfig maps to the database section of the service configuration.
type SQLiteConfig struct {
	// Path is the database file. The parent directory is created if missing.
	Path string
	// WALMode enables write-ahead logging so reads proceed during writes.
	WALMode bool
	// BusyTimeout is how long a statement waits for a lock.
	BusyTimeout time.Duration
}

// SQLiteStorage persists drinks in a single SQLite file.
type SQLiteStorage struct {
	db   *sql.DB
	path string
}

var _ Storage = (*SQLiteStorage)(nil)

// OpenSQLite opens (creating if needed) the database at cfg.Path and applies the schema.
func OpenSQLite(ctx context.Context, cfg SQLiteConfig) (*SQLiteStorage, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("database path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Path), dirPermissions); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// See https://github.com/mattn/go-sqlite3#connection-string
	dsn := fmt.Sprintf("file:%s?_busy_timeout=%d&_foreign_keys=on", cfg.Path, cfg.BusyTimeout.Milliseconds())
	if cfg.WALMode {
		dsn += "&_journal_mode=WAL&_synchronous=NORMAL"
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// SQLite has a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)
	db.SetConnMaxIdleTime(connMaxIdleTime)

	pingCtx, cancel := context.WithTimeout(ctx, connectionTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("verify database connection: %w", err)
	}

	if _, err := db.ExecContext(ctx, schemaSQL); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &SQLiteStorage{db: db, path: cfg.Path}, nil
}

// Path returns the database file location.
func (s *SQLiteStorage) Path() string {
	return s.path
}

// HealthCheck runs a trivial query against the database.
func (s *SQLiteStorage) HealthCheck(ctx context.Context) error {
	var one int
	if err := s.db.QueryRowContext(ctx, "SELECT 1").Scan(&one); err != nil {
		return fmt.Errorf("database health check: %w", err)
	}
	return nil
}

// List returns all drinks ordered by id.
func (s *SQLiteStorage) List(ctx context.Context) ([]drinks.Drink, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT id, title, recipe FROM drinks ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("query drinks: %w", err)
	}
	defer rows.Close()

	out := []drinks.Drink{}
	for rows.Next() {
		d, err := scanDrink(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate drinks: %w", err)
	}
	return out, nil
}

// Get returns the drink with the given id.
func (s *SQLiteStorage) Get(ctx context.Context, id int64) (drinks.Drink, error) {
	row := s.db.QueryRowContext(ctx, "SELECT id, title, recipe FROM drinks WHERE id = ?", id)
	d, err := scanDrink(row)
	if errors.Is(err, sql.ErrNoRows) {
		return drinks.Drink{}, drinks.ErrNotFound
	}
	return d, err
}

// Create validates and inserts drink.
func (s *SQLiteStorage) Create(ctx context.Context, drink drinks.Drink) (drinks.Drink, error) {
	if err := drink.Validate(); err != nil {
		return drinks.Drink{}, err
	}
	recipe, err := json.Marshal(drink.Recipe)
	if err != nil {
		return drinks.Drink{}, fmt.Errorf("encode recipe: %w", err)
	}

	title := strings.TrimSpace(drink.Title)
	res, err := s.db.ExecContext(ctx, "INSERT INTO drinks (title, recipe) VALUES (?, ?)", title, string(recipe))
	if err != nil {
		return drinks.Drink{}, translateError("insert drink", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return drinks.Drink{}, fmt.Errorf("read drink id: %w", err)
	}

	return drinks.Drink{ID: id, Title: title, Recipe: drink.Recipe.Clone()}, nil
}

// Update replaces the title and recipe of an existing drink.
func (s *SQLiteStorage) Update(ctx context.Context, drink drinks.Drink) (drinks.Drink, error) {
	if err := drink.Validate(); err != nil {
		return drinks.Drink{}, err
	}
	recipe, err := json.Marshal(drink.Recipe)
	if err != nil {
		return drinks.Drink{}, fmt.Errorf("encode recipe: %w", err)
	}

	title := strings.TrimSpace(drink.Title)
	res, err := s.db.ExecContext(ctx, "UPDATE drinks SET title = ?, recipe = ? WHERE id = ?", title, string(recipe), drink.ID)
	if err != nil {
		return drinks.Drink{}, translateError("update drink", err)
	}
	if err := requireAffected(res); err != nil {
		return drinks.Drink{}, err
	}

	return drinks.Drink{ID: drink.ID, Title: title, Recipe: drink.Recipe.Clone()}, nil
}

// Delete removes the drink with the given id.
func (s *SQLiteStorage) Delete(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM drinks WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete drink: %w", err)
	}
	return requireAffected(res)
}

// Reset empties the table, restarts id allocation and seeds drinks.Sample.
func (s *SQLiteStorage) Reset(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin reset: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	if _, err := tx.ExecContext(ctx, "DELETE FROM drinks"); err != nil {
		return fmt.Errorf("clear drinks: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM sqlite_sequence WHERE name = 'drinks'"); err != nil {
		return fmt.Errorf("reset drink ids: %w", err)
	}

	sample := drinks.Sample()
	recipe, err := json.Marshal(sample.Recipe)
	if err != nil {
		return fmt.Errorf("encode recipe: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "INSERT INTO drinks (title, recipe) VALUES (?, ?)", sample.Title, string(recipe)); err != nil {
		return fmt.Errorf("seed drinks: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit reset: %w", err)
	}
	return nil
}

// Close closes the underlying database handle.
func (s *SQLiteStorage) Close() error {
	if s.db == nil {
		return nil
	}
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDrink(row rowScanner) (drinks.Drink, error) {
	var (
		d      drinks.Drink
		recipe string
	)
	if err := row.Scan(&d.ID, &d.Title, &recipe); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return drinks.Drink{}, err
		}
		return drinks.Drink{}, fmt.Errorf("scan drink: %w", err)
	}
	if err := json.Unmarshal([]byte(recipe), &d.Recipe); err != nil {
		return drinks.Drink{}, fmt.Errorf("decode recipe of drink %d: %w", d.ID, err)
	}
	return d, nil
}

func requireAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("read affected rows: %w", err)
	}
	if n == 0 {
		return drinks.ErrNotFound
	}
	return nil
}

func translateError(op string, err error) error {
	var sqliteErr sqlite3.Error
	if errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique {
		return drinks.ErrDuplicateTitle
	}
	return fmt.Errorf("%s: %w", op, err)
}
