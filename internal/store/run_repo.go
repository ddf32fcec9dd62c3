// Package store declares interfaces for persisting crawl run history.
// Implementations live in other packages; this package must not import
// database drivers or concrete clients.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound signals that the requested run does not exist.
var ErrNotFound = errors.New("run not found")

// RunStatus mirrors the crawl_runs status column.
type RunStatus string

// Run statuses persisted in crawl_runs.status.
const (
	RunRunning RunStatus = "running"
	RunSuccess RunStatus = "success"
	RunError   RunStatus = "error"
)

// Run models one crawl cycle for API responses.
type Run struct {
	// ID is the primary key of crawl_runs.
	ID uuid.UUID
	// StartedAt captures when the run was first marked running.
	StartedAt time.Time
	// FinishedAt is nil until the run is marked success/error.
	FinishedAt *time.Time
	// Status is running/success/error.
	Status RunStatus
	// ErrorMessage optionally stores the final failure reason.
	ErrorMessage *string
}

// SiteStats captures per-board aggregation for one run.
type SiteStats struct {
	// RunID is the owning crawl run.
	RunID uuid.UUID
	// Site is the board name from the descriptor (e.g. "indeed").
	Site string
	// LastUpdate captures the timestamp of the most recent aggregate.
	LastUpdate time.Time
	// Pages counts completed page fetches for the site.
	Pages int64
	// Records counts job records kept from the site.
	Records int64
	// BytesTotal accumulates response bytes.
	BytesTotal int64
	// Fetch2xx-Other hold per-status-class counts for diagnostics.
	Fetch2xx   int64
	Fetch3xx   int64
	Fetch4xx   int64
	Fetch5xx   int64
	FetchOther int64
}

// RunRepository persists incremental crawl run progress.
type RunRepository interface {
	// UpsertRunStart inserts (or idempotently updates) the started_at timestamp.
	UpsertRunStart(ctx context.Context, runID uuid.UUID, startedAt time.Time) error
	// CompleteRun marks the run finished with the provided status and error.
	CompleteRun(ctx context.Context, runID uuid.UUID, finishedAt time.Time, status RunStatus, errMsg *string) error
	// UpsertSiteStats applies page/record/byte deltas per (run, site, statusClass).
	UpsertSiteStats(
		ctx context.Context,
		runID uuid.UUID,
		site string,
		deltaPages int64,
		deltaRecords int64,
		deltaBytes int64,
		statusClass string,
		at time.Time,
	) error

	// GetRun loads a single run or returns ErrNotFound.
	GetRun(ctx context.Context, runID uuid.UUID) (Run, error)
	// ListRuns returns runs filtered by optional status plus limit/offset.
	ListRuns(ctx context.Context, status *RunStatus, limit, offset int) ([]Run, error)
	// ListRunSites returns aggregated site stats for one run.
	ListRunSites(ctx context.Context, runID uuid.UUID, limit, offset int) ([]SiteStats, error)
}
