// Package pgstore keeps the coordinate table in PostgreSQL so that several
// hosts can share one resolved-city list.
package pgstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/couchcryptid/ens-meteogram/internal/domain"
	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" driver
)

const (
	table = "city_coordinates"
	path  = "postgres:" + table

	// advisoryLockKey identifies the coordinate table lock across sessions.
	advisoryLockKey int64 = 0x6d6574656f // "meteo"
)

// Open connects to databaseURL with the pgx driver and verifies the
// connection.
func Open(ctx context.Context, databaseURL string) (*sql.DB, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open postgres database: %w", err)
	}

	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(4)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("verify postgres connection: %w", err)
	}
	return db, nil
}

// Store implements domain.CoordinateStore and domain.StoreLocker.
type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// EnsureSchema creates the coordinate table when missing.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if s.db == nil {
		return errors.New("coordinate store: db is nil")
	}
	_, err := s.db.ExecContext(ctx, `
	CREATE TABLE IF NOT EXISTS `+table+` (
		city       TEXT PRIMARY KEY,
		lon        DOUBLE PRECISION NOT NULL,
		lat        DOUBLE PRECISION NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	);`)
	if err != nil {
		return fmt.Errorf("create %s table: %w", table, err)
	}
	return nil
}

// Load returns every stored city.
func (s *Store) Load(ctx context.Context) (map[string]domain.Coordinates, error) {
	if s.db == nil {
		return nil, ioError("read", errors.New("db is nil"))
	}

	rows, err := s.db.QueryContext(ctx, `SELECT city, lon, lat FROM `+table)
	if err != nil {
		return nil, ioError("read", fmt.Errorf("query: %w", err))
	}
	defer rows.Close()

	out := make(map[string]domain.Coordinates)
	for rows.Next() {
		var city string
		var c domain.Coordinates
		if err := rows.Scan(&city, &c.Lon, &c.Lat); err != nil {
			return nil, ioError("read", fmt.Errorf("scan rows: %w", err))
		}
		out[city] = c
	}
	if err := rows.Err(); err != nil {
		return nil, ioError("read", fmt.Errorf("row iteration: %w", err))
	}
	return out, nil
}

// Append inserts entry. A city that is already stored keeps its first
// coordinates.
func (s *Store) Append(ctx context.Context, entry domain.CoordinateEntry) error {
	if s.db == nil {
		return ioError("write", errors.New("db is nil"))
	}
	if strings.TrimSpace(entry.City) == "" {
		return ioError("write", errors.New("empty city"))
	}

	_, err := s.db.ExecContext(ctx, `
	INSERT INTO `+table+` (city, lon, lat)
	VALUES ($1, $2, $3)
	ON CONFLICT (city) DO NOTHING;`,
		entry.City, entry.Lon, entry.Lat)
	if err != nil {
		return ioError("write", fmt.Errorf("insert %q: %w", entry.City, err))
	}
	return nil
}

// Lock takes a session-level advisory lock on a dedicated connection. The
// returned func releases the lock and returns the connection to the pool.
func (s *Store) Lock(ctx context.Context) (func() error, error) {
	if s.db == nil {
		return nil, ioError("lock", errors.New("db is nil"))
	}
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return nil, ioError("lock", err)
	}
	if _, err := conn.ExecContext(ctx, `SELECT pg_advisory_lock($1)`, advisoryLockKey); err != nil {
		_ = conn.Close()
		return nil, ioError("lock", err)
	}

	return func() error {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_, err := conn.ExecContext(ctx, `SELECT pg_advisory_unlock($1)`, advisoryLockKey)
		return errors.Join(err, conn.Close())
	}, nil
}

func ioError(op string, err error) error {
	return &domain.CacheIOError{Op: op, Path: path, Err: err}
}
