package sinks

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/careermap/jobradar/internal/progress"
	"github.com/careermap/jobradar/internal/store"
)

// StoreSink persists progress deltas via a store.RunRepository. It
// collapses site-level counters per batch to reduce write amplification.
type StoreSink struct {
	repo   store.RunRepository
	logger *zap.Logger
}

// NewStoreSink constructs a StoreSink for the provided repository.
func NewStoreSink(repo store.RunRepository, logger *zap.Logger) *StoreSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StoreSink{repo: repo, logger: logger}
}

// Consume collapses site deltas and forwards them to the repository. It
// respects ctx deadlines and returns any repository errors verbatim.
func (s *StoreSink) Consume(ctx context.Context, batch []progress.Event) error {
	if s == nil || s.repo == nil {
		return nil
	}
	stats := make(map[statsKey]*statsDelta)

	for _, evt := range batch {
		runID := evt.RunUUID()
		switch evt.Stage {
		case progress.StageRunStart, progress.StageRunDone, progress.StageRunError:
			if err := s.handleRunEvent(ctx, runID, evt); err != nil {
				return err
			}
		case progress.StageFetchDone, progress.StagePageDone:
			s.recordSiteStats(stats, runID, evt)
		}
	}

	for key, delta := range stats {
		if delta.pages == 0 && delta.records == 0 && delta.bytes == 0 {
			continue
		}
		if err := s.repo.UpsertSiteStats(
			ctx,
			key.runID,
			key.site,
			delta.pages,
			delta.records,
			delta.bytes,
			key.statusClass,
			delta.at,
		); err != nil {
			return fmt.Errorf("upsert site stats: %w", err)
		}
	}
	return nil
}

func (s *StoreSink) handleRunEvent(ctx context.Context, runID uuid.UUID, evt progress.Event) error {
	switch evt.Stage {
	case progress.StageRunStart:
		if err := s.repo.UpsertRunStart(ctx, runID, evt.TS); err != nil {
			return fmt.Errorf("upsert run start: %w", err)
		}
	case progress.StageRunDone:
		if err := s.repo.CompleteRun(ctx, runID, evt.TS, store.RunSuccess, nil); err != nil {
			return fmt.Errorf("complete run: %w", err)
		}
	case progress.StageRunError:
		var note *string
		if evt.Note != "" {
			note = &evt.Note
		}
		if err := s.repo.CompleteRun(ctx, runID, evt.TS, store.RunError, note); err != nil {
			return fmt.Errorf("complete run: %w", err)
		}
	}
	return nil
}

// recordSiteStats folds one event into the per-(run, site, class)
// accumulator. Extraction events carry no status class; the page they
// came from necessarily fetched with a 2xx, so they fold in there.
func (s *StoreSink) recordSiteStats(stats map[statsKey]*statsDelta, runID uuid.UUID, evt progress.Event) {
	if evt.Site == "" {
		return
	}
	statusClass := string(evt.StatusClass)
	if evt.Stage == progress.StagePageDone {
		statusClass = string(progress.Status2xx)
	}
	key := statsKey{
		runID:       runID,
		site:        evt.Site,
		statusClass: statusClass,
	}
	stat := stats[key]
	if stat == nil {
		stat = &statsDelta{}
		stats[key] = stat
	}
	stat.pages += evt.Pages
	stat.records += evt.Records
	stat.bytes += evt.Bytes
	if evt.TS.After(stat.at) || stat.at.IsZero() {
		stat.at = evt.TS
	}
}

// Close implements the Sink interface; it performs no action.
func (s *StoreSink) Close(context.Context) error {
	return nil
}

type statsKey struct {
	runID       uuid.UUID
	site        string
	statusClass string
}

type statsDelta struct {
	pages   int64
	records int64
	bytes   int64
	at      time.Time
}
