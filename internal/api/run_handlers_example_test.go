package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/careermap/jobradar/internal/store"
)

type exampleRunRepo struct {
	runs []store.Run
}

func (e *exampleRunRepo) UpsertRunStart(context.Context, uuid.UUID, time.Time) error {
	return nil
}

func (e *exampleRunRepo) CompleteRun(context.Context, uuid.UUID, time.Time, store.RunStatus, *string) error {
	return nil
}

func (e *exampleRunRepo) UpsertSiteStats(
	context.Context,
	uuid.UUID,
	string,
	int64,
	int64,
	int64,
	string,
	time.Time,
) error {
	return nil
}

func (e *exampleRunRepo) GetRun(context.Context, uuid.UUID) (store.Run, error) {
	return e.runs[0], nil
}

func (e *exampleRunRepo) ListRuns(context.Context, *store.RunStatus, int, int) ([]store.Run, error) {
	return e.runs, nil
}

func (e *exampleRunRepo) ListRunSites(context.Context, uuid.UUID, int, int) ([]store.SiteStats, error) {
	return nil, nil
}

// ExampleRunHandler_ListRuns shows how to serve the /v1/runs endpoint.
func ExampleRunHandler_ListRuns() {
	runID := uuid.MustParse("00000000-0000-0000-0000-0000000000aa")
	repo := &exampleRunRepo{
		runs: []store.Run{{
			ID:        runID,
			Status:    store.RunSuccess,
			StartedAt: time.Unix(0, 0),
		}},
	}
	handler := NewRunHandler(repo, zap.NewNop())

	req := httptest.NewRequest(http.MethodGet, "/v1/runs?limit=1", nil)
	rec := httptest.NewRecorder()
	handler.ListRuns(rec, req)

	var payload struct {
		Runs []map[string]any `json:"runs"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		panic(err)
	}
	fmt.Printf("returned runs: %d\n", len(payload.Runs))
	// Output:
	// returned runs: 1
}
