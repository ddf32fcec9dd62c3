// Package progress defines the event structures emitted while a crawl
// run executes.
package progress

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Stage denotes the type of milestone represented by an Event.
type Stage string

// Supported progress stages.
const (
	StageRunStart  Stage = "RUN_START"
	StageRunDone   Stage = "RUN_DONE"
	StageRunError  Stage = "RUN_ERROR"
	StageFetchDone Stage = "FETCH_DONE"
	StagePageDone  Stage = "PAGE_DONE"
)

// StatusClass is a coarse HTTP response grouping.
type StatusClass string

// Supported HTTP status classes tracked for fetch completions.
const (
	Status2xx   StatusClass = "2xx"
	Status3xx   StatusClass = "3xx"
	Status4xx   StatusClass = "4xx"
	Status5xx   StatusClass = "5xx"
	StatusOther StatusClass = "other"
)

// Event captures a single milestone of crawl progress.
type Event struct {
	// RunID uniquely identifies a crawl run using the 16-byte UUID form.
	RunID [16]byte
	// TS is the timestamp recorded by the emitter.
	TS time.Time
	// Stage denotes which lifecycle, fetch, or extraction milestone occurred.
	Stage Stage
	// Site scopes fetch and page events to a board name.
	Site string
	// URL is the optional page URL.
	URL string
	// Bytes carries the response size for a fetch completion.
	Bytes int64
	// Pages increments by one for each completed page fetch.
	Pages int64
	// Records carries the number of records kept from an extracted page.
	Records int64
	// StatusClass groups HTTP response codes (2xx, 4xx, etc).
	StatusClass StatusClass
	// Dur captures execution latency for fetches and run completions.
	Dur time.Duration
	// Note lets emitters attach low-volume context such as error text.
	Note string
}

// Validate performs coarse validation on Event payloads.
func (e Event) Validate() error {
	if e.RunID == [16]byte{} {
		return errors.New("run id is required")
	}
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	switch e.Stage {
	case StageRunStart, StageRunDone, StageRunError:
	case StageFetchDone:
		if e.Site == "" {
			return errors.New("fetch done requires site")
		}
		if e.StatusClass == "" {
			return errors.New("fetch done requires status class")
		}
	case StagePageDone:
		if e.Site == "" {
			return errors.New("page done requires site")
		}
	default:
		return fmt.Errorf("unknown stage %q", e.Stage)
	}
	if e.Dur < 0 {
		return errors.New("duration must be >= 0")
	}
	return nil
}

// RunUUID converts the binary run ID to uuid.UUID for repositories.
func (e Event) RunUUID() uuid.UUID {
	return uuid.UUID(e.RunID)
}

// UUIDToBytes encodes a uuid.UUID into the Event form.
func UUIDToBytes(id uuid.UUID) [16]byte {
	var dest [16]byte
	copy(dest[:], id[:])
	return dest
}

// ClassifyStatus groups HTTP status codes for fetch events. LinkedIn
// replies 999 when it suspects automation, so that code counts with the
// 4xx family.
func ClassifyStatus(code int) StatusClass {
	switch {
	case code >= 200 && code < 300:
		return Status2xx
	case code >= 300 && code < 400:
		return Status3xx
	case code >= 400 && code < 500, code == 999:
		return Status4xx
	case code >= 500 && code < 600:
		return Status5xx
	default:
		return StatusOther
	}
}
