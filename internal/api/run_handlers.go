package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/careermap/jobradar/internal/store"
)

const (
	defaultRunLimit   = 50
	maxRunLimit       = 500
	defaultSitesLimit = 100
	maxSitesLimit     = 1000
	historyTimeout    = 3 * time.Second
)

// RunHandler exposes read-only crawl run history endpoints.
type RunHandler struct {
	repo    store.RunRepository
	timeout time.Duration
	logger  *zap.Logger
}

// NewRunHandler wires the repository and logger.
func NewRunHandler(repo store.RunRepository, logger *zap.Logger) *RunHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RunHandler{
		repo:    repo,
		timeout: historyTimeout,
		logger:  logger,
	}
}

// ListRuns handles GET /v1/runs?status=&limit=&offset=. It returns a JSON
// object {"runs": [...]} on success, 400 for invalid filters, 503 when run
// history is not configured, or 500 if the repository call fails.
func (h *RunHandler) ListRuns(w http.ResponseWriter, r *http.Request) {
	if h.repo == nil {
		writeError(w, http.StatusServiceUnavailable, "run history unavailable")
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	limit, offset, err := parseLimitOffset(r, defaultRunLimit, maxRunLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	statusParam := strings.TrimSpace(r.URL.Query().Get("status"))
	var status *store.RunStatus
	if statusParam != "" {
		statusVal, parseErr := parseStatus(statusParam)
		if parseErr != nil {
			writeError(w, http.StatusBadRequest, parseErr.Error())
			return
		}
		status = &statusVal
	}
	runs, err := h.repo.ListRuns(ctx, status, limit, offset)
	if err != nil {
		h.logger.Error("list runs failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list runs")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"runs": toRunDTOs(runs),
	})
}

// GetRun handles GET /v1/runs/{run_id}. It returns {"run": {...}} on success,
// 400 for malformed IDs, 404 when the repository reports store.ErrNotFound,
// 503 if run history is not configured, or 500 otherwise.
func (h *RunHandler) GetRun(w http.ResponseWriter, r *http.Request) {
	if h.repo == nil {
		writeError(w, http.StatusServiceUnavailable, "run history unavailable")
		return
	}
	runID, err := parseRunID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	run, err := h.repo.GetRun(ctx, runID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			writeError(w, http.StatusNotFound, "run not found")
			return
		}
		h.logger.Error("get run failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load run")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"run": toRunDTO(run)})
}

// ListRunSites handles GET /v1/runs/{run_id}/sites?limit=&offset=. It returns
// {"sites": [...]} on success, 400 for invalid query parameters, 503 when run
// history is not configured, or 500 for repository errors.
func (h *RunHandler) ListRunSites(w http.ResponseWriter, r *http.Request) {
	if h.repo == nil {
		writeError(w, http.StatusServiceUnavailable, "run history unavailable")
		return
	}
	runID, err := parseRunID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	limit, offset, err := parseLimitOffset(r, defaultSitesLimit, maxSitesLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	stats, err := h.repo.ListRunSites(ctx, runID, limit, offset)
	if err != nil {
		h.logger.Error("list run sites failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list run sites")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"sites": toSiteDTOs(stats),
	})
}

func parseRunID(r *http.Request) (uuid.UUID, error) {
	runIDStr := chi.URLParam(r, "run_id")
	if runIDStr == "" {
		return uuid.UUID{}, errors.New("run_id is required")
	}
	runID, err := uuid.Parse(runIDStr)
	if err != nil {
		return uuid.UUID{}, errors.New("invalid run_id")
	}
	return runID, nil
}

func parseLimitOffset(r *http.Request, def, maxLimit int) (int, int, error) {
	q := r.URL.Query()
	limit := def
	if limStr := q.Get("limit"); limStr != "" {
		val, err := strconv.Atoi(limStr)
		if err != nil || val <= 0 {
			return 0, 0, errors.New("invalid limit")
		}
		if val > maxLimit {
			val = maxLimit
		}
		limit = val
	}
	offset := 0
	if offStr := q.Get("offset"); offStr != "" {
		val, err := strconv.Atoi(offStr)
		if err != nil || val < 0 {
			return 0, 0, errors.New("invalid offset")
		}
		offset = val
	}
	return limit, offset, nil
}

func parseStatus(input string) (store.RunStatus, error) {
	switch strings.ToLower(input) {
	case "running":
		return store.RunRunning, nil
	case "success":
		return store.RunSuccess, nil
	case "error", "failed", "failure":
		return store.RunError, nil
	default:
		return "", errors.New("invalid status")
	}
}

func toRunDTOs(in []store.Run) []runDTO {
	out := make([]runDTO, 0, len(in))
	for _, run := range in {
		out = append(out, toRunDTO(run))
	}
	return out
}

func toRunDTO(run store.Run) runDTO {
	return runDTO{
		ID:         run.ID.String(),
		StartedAt:  run.StartedAt,
		FinishedAt: run.FinishedAt,
		Status:     string(run.Status),
		Error:      run.ErrorMessage,
	}
}

func toSiteDTOs(in []store.SiteStats) []siteDTO {
	out := make([]siteDTO, 0, len(in))
	for _, s := range in {
		out = append(out, siteDTO{
			Site:       s.Site,
			LastUpdate: s.LastUpdate,
			Pages:      s.Pages,
			Records:    s.Records,
			BytesTotal: s.BytesTotal,
			Fetch2xx:   s.Fetch2xx,
			Fetch3xx:   s.Fetch3xx,
			Fetch4xx:   s.Fetch4xx,
			Fetch5xx:   s.Fetch5xx,
			FetchOther: s.FetchOther,
		})
	}
	return out
}

type runDTO struct {
	ID         string     `json:"id"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	Status     string     `json:"status"`
	Error      *string    `json:"error,omitempty"`
}

type siteDTO struct {
	Site       string    `json:"site"`
	LastUpdate time.Time `json:"last_update"`
	Pages      int64     `json:"pages"`
	Records    int64     `json:"records"`
	BytesTotal int64     `json:"bytes_total"`
	Fetch2xx   int64     `json:"fetch_2xx"`
	Fetch3xx   int64     `json:"fetch_3xx"`
	Fetch4xx   int64     `json:"fetch_4xx"`
	Fetch5xx   int64     `json:"fetch_5xx"`
	FetchOther int64     `json:"fetch_other"`
}
