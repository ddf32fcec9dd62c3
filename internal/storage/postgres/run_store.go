package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/careermap/jobradar/internal/store"
)

// querier is the slice of pgxpool.Pool the run store needs. pgxmock
// satisfies it.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// RunStore implements store.RunRepository on the crawl_runs and
// crawl_site_stats tables.
//
// Expected schema:
//
//	CREATE TABLE crawl_runs (
//	    id            UUID PRIMARY KEY,
//	    started_at    TIMESTAMPTZ NOT NULL,
//	    finished_at   TIMESTAMPTZ,
//	    status        TEXT NOT NULL,
//	    error_message TEXT
//	);
//
//	CREATE TABLE crawl_site_stats (
//	    run_id      UUID NOT NULL,
//	    site        TEXT NOT NULL,
//	    last_update TIMESTAMPTZ NOT NULL,
//	    pages       BIGINT NOT NULL DEFAULT 0,
//	    records     BIGINT NOT NULL DEFAULT 0,
//	    bytes_total BIGINT NOT NULL DEFAULT 0,
//	    fetch_2xx   BIGINT NOT NULL DEFAULT 0,
//	    fetch_3xx   BIGINT NOT NULL DEFAULT 0,
//	    fetch_4xx   BIGINT NOT NULL DEFAULT 0,
//	    fetch_5xx   BIGINT NOT NULL DEFAULT 0,
//	    fetch_other BIGINT NOT NULL DEFAULT 0,
//	    PRIMARY KEY (run_id, site)
//	);
type RunStore struct {
	pool querier
}

// NewRunStore connects a pool for the given DSN.
func NewRunStore(ctx context.Context, dsn string) (*RunStore, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}
	return &RunStore{pool: pool}, nil
}

// NewRunStoreWithPool wraps an existing pool. Used by tests.
func NewRunStoreWithPool(pool querier) *RunStore {
	return &RunStore{pool: pool}
}

// Close releases the underlying pool.
func (s *RunStore) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// UpsertRunStart marks the run as running. Replays of the same start
// event are idempotent.
func (s *RunStore) UpsertRunStart(ctx context.Context, runID uuid.UUID, startedAt time.Time) error {
	query := `
		INSERT INTO crawl_runs (id, started_at, status)
		VALUES ($1, $2, $3)
		ON CONFLICT (id) DO NOTHING;
	`
	_, err := s.pool.Exec(ctx, query, runID, startedAt, store.RunRunning)
	if err != nil {
		return fmt.Errorf("upserting run start: %w", err)
	}
	return nil
}

// CompleteRun marks a run as finished with a status and optional error message.
func (s *RunStore) CompleteRun(
	ctx context.Context,
	runID uuid.UUID,
	finishedAt time.Time,
	status store.RunStatus,
	errMsg *string,
) error {
	query := `
		UPDATE crawl_runs
		SET finished_at = $1, status = $2, error_message = $3
		WHERE id = $4;
	`
	_, err := s.pool.Exec(ctx, query, finishedAt, status, errMsg, runID)
	if err != nil {
		return fmt.Errorf("completing run: %w", err)
	}
	return nil
}

// UpsertSiteStats folds page/record/byte deltas into the per-site row.
// A single upsert keeps concurrent writers from losing deltas.
func (s *RunStore) UpsertSiteStats(
	ctx context.Context,
	runID uuid.UUID,
	site string,
	deltaPages int64,
	deltaRecords int64,
	deltaBytes int64,
	statusClass string,
	at time.Time,
) error {
	var f2xx, f3xx, f4xx, f5xx, fOther int64
	switch statusClass {
	case "2xx":
		f2xx = deltaPages
	case "3xx":
		f3xx = deltaPages
	case "4xx":
		f4xx = deltaPages
	case "5xx":
		f5xx = deltaPages
	case "other":
		fOther = deltaPages
	default:
		return fmt.Errorf("unknown status class: %s", statusClass)
	}

	query := `
		INSERT INTO crawl_site_stats (
			run_id, site, last_update, pages, records, bytes_total,
			fetch_2xx, fetch_3xx, fetch_4xx, fetch_5xx, fetch_other
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (run_id, site) DO UPDATE SET
			pages       = crawl_site_stats.pages + EXCLUDED.pages,
			records     = crawl_site_stats.records + EXCLUDED.records,
			bytes_total = crawl_site_stats.bytes_total + EXCLUDED.bytes_total,
			fetch_2xx   = crawl_site_stats.fetch_2xx + EXCLUDED.fetch_2xx,
			fetch_3xx   = crawl_site_stats.fetch_3xx + EXCLUDED.fetch_3xx,
			fetch_4xx   = crawl_site_stats.fetch_4xx + EXCLUDED.fetch_4xx,
			fetch_5xx   = crawl_site_stats.fetch_5xx + EXCLUDED.fetch_5xx,
			fetch_other = crawl_site_stats.fetch_other + EXCLUDED.fetch_other,
			last_update = GREATEST(crawl_site_stats.last_update, EXCLUDED.last_update);
	`
	_, err := s.pool.Exec(ctx, query,
		runID, site, at, deltaPages, deltaRecords, deltaBytes,
		f2xx, f3xx, f4xx, f5xx, fOther,
	)
	if err != nil {
		return fmt.Errorf("upserting site stats: %w", err)
	}
	return nil
}

// GetRun retrieves a single crawl run by its ID.
func (s *RunStore) GetRun(ctx context.Context, runID uuid.UUID) (store.Run, error) {
	query := `
		SELECT id, started_at, finished_at, status, error_message
		FROM crawl_runs
		WHERE id = $1;
	`
	var (
		run    store.Run
		status string
	)
	err := s.pool.QueryRow(ctx, query, runID).Scan(
		&run.ID,
		&run.StartedAt,
		&run.FinishedAt,
		&status,
		&run.ErrorMessage,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return store.Run{}, store.ErrNotFound
		}
		return store.Run{}, fmt.Errorf("getting run: %w", err)
	}
	run.Status = store.RunStatus(status)
	return run, nil
}

// ListRuns retrieves crawl runs, newest first, with optional status filtering.
func (s *RunStore) ListRuns(
	ctx context.Context,
	status *store.RunStatus,
	limit,
	offset int,
) ([]store.Run, error) {
	query := `
		SELECT id, started_at, finished_at, status, error_message
		FROM crawl_runs
		WHERE ($1::text IS NULL OR status = $1)
		ORDER BY started_at DESC
		LIMIT $2 OFFSET $3;
	`
	rows, err := s.pool.Query(ctx, query, status, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	defer rows.Close()

	var runs []store.Run
	for rows.Next() {
		var (
			run       store.Run
			rawStatus string
		)
		err := rows.Scan(
			&run.ID,
			&run.StartedAt,
			&run.FinishedAt,
			&rawStatus,
			&run.ErrorMessage,
		)
		if err != nil {
			return nil, fmt.Errorf("scanning run row: %w", err)
		}
		run.Status = store.RunStatus(rawStatus)
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating run rows: %w", err)
	}
	return runs, nil
}

// ListRunSites retrieves aggregated site statistics for a given run.
func (s *RunStore) ListRunSites(
	ctx context.Context,
	runID uuid.UUID,
	limit,
	offset int,
) ([]store.SiteStats, error) {
	query := `
		SELECT run_id, site, last_update, pages, records, bytes_total,
			fetch_2xx, fetch_3xx, fetch_4xx, fetch_5xx, fetch_other
		FROM crawl_site_stats
		WHERE run_id = $1
		ORDER BY last_update DESC
		LIMIT $2 OFFSET $3;
	`
	rows, err := s.pool.Query(ctx, query, runID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("listing run sites: %w", err)
	}
	defer rows.Close()

	var stats []store.SiteStats
	for rows.Next() {
		var stat store.SiteStats
		err := rows.Scan(
			&stat.RunID,
			&stat.Site,
			&stat.LastUpdate,
			&stat.Pages,
			&stat.Records,
			&stat.BytesTotal,
			&stat.Fetch2xx,
			&stat.Fetch3xx,
			&stat.Fetch4xx,
			&stat.Fetch5xx,
			&stat.FetchOther,
		)
		if err != nil {
			return nil, fmt.Errorf("scanning site stats row: %w", err)
		}
		stats = append(stats, stat)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating site stats rows: %w", err)
	}
	return stats, nil
}
