// Package postgres provides Postgres-backed persistence for extracted
// job records and crawl run history.
package postgres

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/careermap/jobradar/internal/jobs"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Config controls the connection pool behind the record store.
type Config struct {
	DSN             string        `mapstructure:"dsn"`
	Table           string        `mapstructure:"table"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
}

// execCloser is the slice of pgxpool.Pool the store needs. pgxmock
// satisfies it, which keeps the tests off a live database.
type execCloser interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Close()
}

// RecordStore writes job records into a single Postgres table. Records
// are keyed by their content hash, so re-crawling the same posting
// refreshes the row instead of duplicating it.
//
// Expected schema:
//
//	CREATE TABLE job_records (
//	    id          TEXT PRIMARY KEY,
//	    title       TEXT NOT NULL,
//	    company     TEXT NOT NULL,
//	    location    TEXT,
//	    description TEXT,
//	    skills      TEXT[],
//	    source      TEXT NOT NULL,
//	    source_url  TEXT,
//	    scraped_at  TEXT NOT NULL
//	);
type RecordStore struct {
	pool  execCloser
	table string
}

// NewRecordStore connects a pool according to cfg. An empty table name
// defaults to "job_records".
func NewRecordStore(ctx context.Context, cfg Config) (*RecordStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("postgres dsn is required")
	}
	table := cfg.Table
	if table == "" {
		table = "job_records"
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parsing postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connecting to postgres: %w", err)
	}

	return NewRecordStoreWithPool(pool, table)
}

// NewRecordStoreWithPool wraps an existing pool. Used by tests.
func NewRecordStoreWithPool(pool execCloser, table string) (*RecordStore, error) {
	if !validTableName.MatchString(table) {
		return nil, fmt.Errorf("invalid table name %q", table)
	}
	return &RecordStore{pool: pool, table: table}, nil
}

// Close releases the underlying pool.
func (s *RecordStore) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// StoreRecord upserts a single record.
func (s *RecordStore) StoreRecord(ctx context.Context, rec jobs.Record) error {
	// The table name is validated against validTableName at
	// construction, so interpolating it here is safe.
	query := fmt.Sprintf(`
		INSERT INTO %s (
			id, title, company, location, description,
			skills, source, source_url, scraped_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			location    = EXCLUDED.location,
			description = EXCLUDED.description,
			skills      = EXCLUDED.skills,
			source_url  = EXCLUDED.source_url,
			scraped_at  = EXCLUDED.scraped_at
	`, s.table)

	_, err := s.pool.Exec(ctx, query,
		rec.ID,
		rec.Title,
		rec.Company,
		rec.Location,
		rec.Description,
		rec.Skills,
		rec.Source,
		rec.SourceURL,
		rec.ScrapedAt,
	)
	if err != nil {
		return fmt.Errorf("storing job record %s: %w", rec.ID, err)
	}
	return nil
}

// StoreBatch upserts every record in order, stopping at the first
// failure.
func (s *RecordStore) StoreBatch(ctx context.Context, records []jobs.Record) error {
	for _, rec := range records {
		if err := s.StoreRecord(ctx, rec); err != nil {
			return err
		}
	}
	return nil
}
