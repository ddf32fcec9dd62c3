package crawl

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// RunState labels a tracked run's lifecycle.
type RunState string

// Tracked run states. The vocabulary matches the persisted run history
// so status readers see one set of words.
const (
	RunActive    RunState = "running"
	RunSucceeded RunState = "success"
	RunFailed    RunState = "error"
)

// RunView is a point-in-time snapshot of a run for status readers.
type RunView struct {
	RunID      uuid.UUID  `json:"run_id"`
	Started    time.Time  `json:"started_at"`
	Finished   *time.Time `json:"finished_at,omitempty"`
	Status     RunState   `json:"status"`
	Query      string     `json:"query"`
	Location   string     `json:"location,omitempty"`
	Sites      []string   `json:"sites"`
	Pages      int        `json:"pages"`
	Records    int        `json:"records"`
	Duplicates int        `json:"duplicates"`
}

// Tracker keeps the current and most recently finished run in memory
// for the status API. All methods tolerate a nil receiver, so the
// controller can run without one.
type Tracker struct {
	mu      sync.Mutex
	current *RunView
	last    *RunView
}

// NewTracker creates an empty Tracker.
func NewTracker() *Tracker {
	return &Tracker{}
}

// Begin installs v as the in-flight run.
func (t *Tracker) Begin(v RunView) {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.current = &v
}

// Update folds one page's results into the in-flight run.
func (t *Tracker) Update(site string, pages, records int) {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.current == nil {
		return
	}
	t.current.Pages += pages
	t.current.Records += records
}

// End finishes the in-flight run and makes it the last one. The final
// record count replaces the running total, which counted pre-dedupe.
func (t *Tracker) End(status RunState, records, duplicates int, finished time.Time) {
	if t == nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.current == nil {
		return
	}
	t.current.Status = status
	t.current.Records = records
	t.current.Duplicates = duplicates
	t.current.Finished = &finished
	t.last = t.current
	t.current = nil
}

// Current returns the in-flight run, if any.
func (t *Tracker) Current() (RunView, bool) {
	if t == nil {
		return RunView{}, false
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.current == nil {
		return RunView{}, false
	}
	return *t.current, true
}

// Last returns the most recently finished run, if any.
func (t *Tracker) Last() (RunView, bool) {
	if t == nil {
		return RunView{}, false
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.last == nil {
		return RunView{}, false
	}
	return *t.last, true
}
