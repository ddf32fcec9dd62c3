package crawl

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/careermap/jobradar/internal/clock"
	"github.com/careermap/jobradar/internal/dom"
	"github.com/careermap/jobradar/internal/fetch"
	"github.com/careermap/jobradar/internal/metrics"
	"github.com/careermap/jobradar/internal/progress"
	"github.com/careermap/jobradar/internal/randsrc"
	"github.com/careermap/jobradar/internal/ratelimit"
	"github.com/careermap/jobradar/internal/sites"
)

func boardDescriptor(name string) sites.Descriptor {
	return sites.Descriptor{
		Name:      name,
		Enabled:   true,
		BaseURL:   "https://" + name + ".example.com",
		SearchURL: "https://" + name + ".example.com/search?q={job_title}&l={location}",
		PageParam: "page",
		PageStart: 1,
		PageStep:  1,
		MaxPages:  3,
		Container: dom.Selector{Tag: "div", Match: "job"},
		Fields: map[string]dom.Selector{
			sites.FieldTitle:       {Tag: "h2", Match: "title"},
			sites.FieldCompany:     {Tag: "span", Match: "company"},
			sites.FieldDescription: {Tag: "p", Match: "summary"},
		},
		BaseDelay: 2 * time.Second,
	}
}

func card(title, company, href string) string {
	return `<div class="job"><h2 class="title"><a href="` + href + `">` + title +
		`</a></h2><span class="company">` + company + `</span><p class="summary">teaser</p></div>`
}

// recordingFetcher answers from fn and remembers every request.
type recordingFetcher struct {
	mu    sync.Mutex
	calls []fetch.Request
	fn    func(req fetch.Request) ([]byte, error)
}

func (f *recordingFetcher) Fetch(_ context.Context, req fetch.Request) ([]byte, error) {
	f.mu.Lock()
	f.calls = append(f.calls, req)
	f.mu.Unlock()
	return f.fn(req)
}

func (f *recordingFetcher) urls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.calls))
	for i, c := range f.calls {
		out[i] = c.URL
	}
	return out
}

type captureEmitter struct {
	mu     sync.Mutex
	events []progress.Event
}

func (c *captureEmitter) Emit(ev progress.Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, ev)
}

func (c *captureEmitter) Events() []progress.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]progress.Event, len(c.events))
	copy(out, c.events)
	return out
}

type stubPacer struct {
	mu         sync.Mutex
	registered map[string]time.Duration
}

func (p *stubPacer) Register(site string, base time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.registered == nil {
		p.registered = make(map[string]time.Duration)
	}
	p.registered[site] = base
}

func (p *stubPacer) State(string) (ratelimit.Stats, bool) {
	return ratelimit.Stats{}, false
}

// newTestDeps wires a controller onto fakes: instant clock, zero
// randomness, captured events.
func newTestDeps(f Fetcher) (Deps, *captureEmitter, *clock.Fake, *stubPacer) {
	metrics.Init()
	emitter := &captureEmitter{}
	clk := clock.NewFake(time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC))
	pacer := &stubPacer{}
	deps := Deps{
		Fetcher: f,
		Pacing:  pacer,
		Emitter: emitter,
		Tracker: NewTracker(),
		Clock:   clk,
		Rand:    randsrc.Zero{},
	}
	return deps, emitter, clk, pacer
}

func TestRunCrawlsPagesInOrder(t *testing.T) {
	t.Parallel()

	desc := boardDescriptor("alpha")
	search := "https://alpha.example.com/search?q=Go%20Developer&l=Remote"
	pages := map[string]string{
		search + "&page=1": card("First", "A", "/jobs/1") + card("Second", "B", "/jobs/2"),
		search + "&page=2": card("Third", "C", "/jobs/3") + card("Fourth", "D", "/jobs/4"),
		search + "&page=3": `<p>No more results</p>`,
	}
	fetcher := &recordingFetcher{fn: func(req fetch.Request) ([]byte, error) {
		body, ok := pages[req.URL]
		if !ok {
			t.Errorf("unexpected fetch %s", req.URL)
			return nil, &fetch.HTTPError{URL: req.URL, Status: 404}
		}
		return []byte(body), nil
	}}

	deps, _, _, pacer := newTestDeps(fetcher)
	sum, err := New(deps).Run(context.Background(), Params{
		Query:    "Go Developer",
		Location: "Remote",
		Sites:    []sites.Descriptor{desc},
	})
	require.NoError(t, err)

	require.Equal(t, []string{search + "&page=1", search + "&page=2", search + "&page=3"}, fetcher.urls())
	require.Len(t, sum.Records, 4)
	require.Equal(t, "First", sum.Records[0].Title, "single-site records keep page order")
	require.Zero(t, sum.Duplicates)
	require.NotEqual(t, uuid.Nil, sum.RunID)

	require.Len(t, sum.Sites, 1)
	require.Equal(t, 3, sum.Sites[0].Pages)
	require.Equal(t, 4, sum.Sites[0].Records)
	require.NoError(t, sum.Sites[0].Err)

	require.Equal(t, map[string]time.Duration{"alpha": 2 * time.Second}, pacer.registered)
}

func TestRunStopsSiteOnFetchFailure(t *testing.T) {
	t.Parallel()

	desc := boardDescriptor("alpha")
	search := "https://alpha.example.com/search?q=dev&l="
	fetcher := &recordingFetcher{fn: func(req fetch.Request) ([]byte, error) {
		if req.URL == search+"&page=1" {
			return []byte(card("Engineer", "Acme", "/jobs/1")), nil
		}
		return nil, &fetch.HTTPError{URL: req.URL, Status: 500}
	}}

	deps, _, _, _ := newTestDeps(fetcher)
	sum, err := New(deps).Run(context.Background(), Params{
		Query: "dev",
		Sites: []sites.Descriptor{desc},
	})
	require.NoError(t, err, "a failed site never fails the run")

	require.Len(t, fetcher.urls(), 2, "remaining pages are skipped after a fetch failure")
	require.Len(t, sum.Records, 1, "records from earlier pages survive")
	require.Error(t, sum.Sites[0].Err)
	require.Equal(t, 1, sum.Sites[0].Pages)
}

func TestRunHonorsMaxJobs(t *testing.T) {
	t.Parallel()

	desc := boardDescriptor("alpha")
	listing := card("One", "A", "/1") + card("Two", "B", "/2") + card("Three", "C", "/3") +
		card("Four", "D", "/4") + card("Five", "E", "/5")
	fetcher := &recordingFetcher{fn: func(fetch.Request) ([]byte, error) {
		return []byte(listing), nil
	}}

	deps, _, _, _ := newTestDeps(fetcher)
	sum, err := New(deps).Run(context.Background(), Params{
		Query:   "dev",
		Sites:   []sites.Descriptor{desc},
		MaxJobs: 3,
	})
	require.NoError(t, err)

	require.Len(t, sum.Records, 3)
	require.Equal(t, []string{"One", "Two", "Three"}, []string{
		sum.Records[0].Title, sum.Records[1].Title, sum.Records[2].Title,
	})
	require.Len(t, fetcher.urls(), 1, "pagination ends once the budget is spent")
}

func TestRunContinuesPastFullyFilteredPage(t *testing.T) {
	t.Parallel()

	desc := boardDescriptor("alpha")
	desc.MaxPages = 2
	search := "https://alpha.example.com/search?q=dev&l="
	fetcher := &recordingFetcher{fn: func(req fetch.Request) ([]byte, error) {
		if req.URL == search+"&page=1" {
			// Cards exist but none mention the keyword.
			return []byte(card("Java Engineer", "A", "/1")), nil
		}
		return []byte(card("Python Engineer", "B", "/2")), nil
	}}

	deps, _, _, _ := newTestDeps(fetcher)
	sum, err := New(deps).Run(context.Background(), Params{
		Query:    "dev",
		Sites:    []sites.Descriptor{desc},
		Keywords: []string{"python"},
	})
	require.NoError(t, err)

	require.Len(t, fetcher.urls(), 2, "a filtered-out page does not end pagination")
	require.Len(t, sum.Records, 1)
	require.Equal(t, "Python Engineer", sum.Records[0].Title)
}

func TestRunStopsPaginationWhenNoContainers(t *testing.T) {
	t.Parallel()

	desc := boardDescriptor("alpha")
	desc.MaxPages = 5
	search := "https://alpha.example.com/search?q=dev&l="
	fetcher := &recordingFetcher{fn: func(req fetch.Request) ([]byte, error) {
		if req.URL == search+"&page=1" {
			return []byte(card("Engineer", "Acme", "/1")), nil
		}
		return []byte(`<p>Nothing here</p>`), nil
	}}

	deps, _, _, _ := newTestDeps(fetcher)
	sum, err := New(deps).Run(context.Background(), Params{
		Query: "dev",
		Sites: []sites.Descriptor{desc},
	})
	require.NoError(t, err)

	require.Len(t, fetcher.urls(), 2, "an empty results page ends pagination")
	require.Len(t, sum.Records, 1)
	require.Equal(t, 2, sum.Sites[0].Pages)
}

func TestRunDeduplicatesAcrossSites(t *testing.T) {
	t.Parallel()

	alpha := boardDescriptor("alpha")
	alpha.MaxPages = 1
	beta := boardDescriptor("beta")
	beta.MaxPages = 1
	fetcher := &recordingFetcher{fn: func(req fetch.Request) ([]byte, error) {
		if req.Site == "alpha" {
			return []byte(card("Engineer", "Acme", "/1")), nil
		}
		return []byte(card("ENGINEER", "acme", "/2")), nil
	}}

	deps, _, clk, _ := newTestDeps(fetcher)
	sum, err := New(deps).Run(context.Background(), Params{
		Query: "dev",
		Sites: []sites.Descriptor{alpha, beta},
	})
	require.NoError(t, err)

	require.Len(t, sum.Records, 1, "case-insensitive title|company fingerprints collapse")
	require.Equal(t, "alpha", sum.Records[0].Source, "first seen survives")
	require.Equal(t, 1, sum.Duplicates)

	require.Contains(t, clk.Slept(), interSiteDelay, "sequential sites are spaced apart")
}

func TestRunEmitsProgressEvents(t *testing.T) {
	t.Parallel()

	desc := boardDescriptor("alpha")
	desc.MaxPages = 1
	listing := card("First", "A", "/1") + card("Second", "B", "/2")
	fetcher := &recordingFetcher{fn: func(fetch.Request) ([]byte, error) {
		return []byte(listing), nil
	}}

	deps, emitter, _, _ := newTestDeps(fetcher)
	tracker := deps.Tracker
	sum, err := New(deps).Run(context.Background(), Params{Query: "dev", Sites: []sites.Descriptor{desc}})
	require.NoError(t, err)

	events := emitter.Events()
	require.Len(t, events, 4)
	require.Equal(t, progress.StageRunStart, events[0].Stage)
	require.Equal(t, progress.StageFetchDone, events[1].Stage)
	require.Equal(t, progress.StagePageDone, events[2].Stage)
	require.Equal(t, progress.StageRunDone, events[3].Stage)

	runID := progress.UUIDToBytes(sum.RunID)
	for _, ev := range events {
		require.Equal(t, runID, ev.RunID)
		require.NoError(t, ev.Validate())
	}

	fetchEv := events[1]
	require.Equal(t, "alpha", fetchEv.Site)
	require.Equal(t, progress.Status2xx, fetchEv.StatusClass)
	require.Equal(t, int64(1), fetchEv.Pages)
	require.Equal(t, int64(len(listing)), fetchEv.Bytes)

	require.Equal(t, int64(2), events[2].Records)
	require.Equal(t, int64(2), events[3].Records)

	_, running := tracker.Current()
	require.False(t, running)
	last, ok := tracker.Last()
	require.True(t, ok)
	require.Equal(t, RunSucceeded, last.Status)
	require.Equal(t, 2, last.Records)
	require.Equal(t, 1, last.Pages)
}

func TestRunReportsErrorWhenEverySiteFails(t *testing.T) {
	t.Parallel()

	desc := boardDescriptor("alpha")
	fetcher := &recordingFetcher{fn: func(req fetch.Request) ([]byte, error) {
		return nil, &fetch.TransportError{URL: req.URL, Err: errors.New("connection refused")}
	}}

	deps, emitter, _, _ := newTestDeps(fetcher)
	sum, err := New(deps).Run(context.Background(), Params{Query: "dev", Sites: []sites.Descriptor{desc}})
	require.NoError(t, err, "partial results beat no results, even when partial is empty")

	require.Empty(t, sum.Records)
	require.Error(t, sum.Sites[0].Err)

	events := emitter.Events()
	final := events[len(events)-1]
	require.Equal(t, progress.StageRunError, final.Stage)
	require.Equal(t, "every site failed", final.Note)

	last, ok := deps.Tracker.Last()
	require.True(t, ok)
	require.Equal(t, RunFailed, last.Status)
}

func TestRunDetailEnrichment(t *testing.T) {
	t.Parallel()

	desc := boardDescriptor("alpha")
	desc.MaxPages = 1
	desc.Detail = &sites.DetailStrategy{
		Selectors:  []dom.Selector{{Tag: "div", Match: "full"}},
		MaxFetches: 1,
		Referer:    "https://alpha.example.com/jobs",
	}
	fullText := "A long posting body with responsibilities, requirements and compensation details for the role."
	search := "https://alpha.example.com/search?q=dev&l="
	fetcher := &recordingFetcher{fn: func(req fetch.Request) ([]byte, error) {
		if req.URL == search+"&page=1" {
			return []byte(card("First", "A", "/jobs/1") + card("Second", "B", "/jobs/2")), nil
		}
		return []byte(`<div class="full">` + fullText + `</div>`), nil
	}}

	deps, _, _, _ := newTestDeps(fetcher)
	sum, err := New(deps).Run(context.Background(), Params{Query: "dev", Sites: []sites.Descriptor{desc}})
	require.NoError(t, err)

	require.Equal(t, []string{
		search + "&page=1",
		"https://alpha.example.com/jobs/1",
	}, fetcher.urls(), "the fetch cap stops enrichment after one detail page")

	require.Len(t, sum.Records, 2)
	require.Equal(t, fullText, sum.Records[0].Description)
	require.Equal(t, "teaser", sum.Records[1].Description)
	require.Equal(t, 1, sum.Sites[0].Details)

	detailReq := fetcher.calls[1]
	require.Equal(t, "https://alpha.example.com/jobs", detailReq.Referer, "detail requests use the strategy overrides")
}

func TestRunSkipsEnrichmentForLongDescriptions(t *testing.T) {
	t.Parallel()

	desc := boardDescriptor("alpha")
	desc.MaxPages = 1
	desc.Detail = &sites.DetailStrategy{
		Selectors: []dom.Selector{{Tag: "div", Match: "full"}},
		MinLength: 10,
	}
	listing := `<div class="job"><h2 class="title"><a href="/jobs/1">Dev</a></h2>` +
		`<span class="company">Acme</span><p class="summary">already a complete description</p></div>`
	fetcher := &recordingFetcher{fn: func(fetch.Request) ([]byte, error) {
		return []byte(listing), nil
	}}

	deps, _, _, _ := newTestDeps(fetcher)
	sum, err := New(deps).Run(context.Background(), Params{Query: "dev", Sites: []sites.Descriptor{desc}})
	require.NoError(t, err)

	require.Len(t, fetcher.urls(), 1, "descriptions above the threshold are left alone")
	require.Zero(t, sum.Sites[0].Details)
}

func TestRunBoundedWorkers(t *testing.T) {
	t.Parallel()

	descs := []sites.Descriptor{boardDescriptor("alpha"), boardDescriptor("beta"), boardDescriptor("gamma")}
	for i := range descs {
		descs[i].MaxPages = 1
	}

	var inFlight, peak atomic.Int32
	fetcher := &recordingFetcher{fn: func(req fetch.Request) ([]byte, error) {
		n := inFlight.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(5 * time.Millisecond)
		inFlight.Add(-1)
		return []byte(card("Dev "+req.Site, req.Site, "/1")), nil
	}}

	deps, _, clk, _ := newTestDeps(fetcher)
	sum, err := New(deps).Run(context.Background(), Params{
		Query:   "dev",
		Sites:   descs,
		Workers: 2,
	})
	require.NoError(t, err)

	require.Len(t, sum.Records, 3)
	require.Len(t, sum.Sites, 3)
	require.LessOrEqual(t, peak.Load(), int32(2))
	require.Empty(t, clk.Slept(), "workers are not spaced like sequential sites")
}

func TestRunCanceledContext(t *testing.T) {
	t.Parallel()

	desc := boardDescriptor("alpha")
	ctx, cancel := context.WithCancel(context.Background())
	fetcher := &recordingFetcher{fn: func(fetch.Request) ([]byte, error) {
		cancel()
		return []byte(card("Engineer", "Acme", "/1")), nil
	}}

	deps, emitter, _, _ := newTestDeps(fetcher)
	sum, err := New(deps).Run(ctx, Params{Query: "dev", Sites: []sites.Descriptor{desc}})
	require.ErrorIs(t, err, context.Canceled)
	require.Len(t, sum.Records, 1, "records gathered before cancellation are returned")

	events := emitter.Events()
	require.Equal(t, progress.StageRunError, events[len(events)-1].Stage)
}

func TestRunValidatesParams(t *testing.T) {
	t.Parallel()

	okFetcher := &recordingFetcher{fn: func(fetch.Request) ([]byte, error) { return nil, nil }}
	tests := []struct {
		name    string
		deps    Deps
		params  Params
		wantErr string
	}{
		{
			name:    "missing fetcher",
			deps:    Deps{},
			params:  Params{Query: "dev", Sites: []sites.Descriptor{boardDescriptor("alpha")}},
			wantErr: "fetcher is required",
		},
		{
			name:    "missing query",
			deps:    Deps{Fetcher: okFetcher},
			params:  Params{Sites: []sites.Descriptor{boardDescriptor("alpha")}},
			wantErr: "query is required",
		},
		{
			name:    "no sites",
			deps:    Deps{Fetcher: okFetcher},
			params:  Params{Query: "dev"},
			wantErr: "no sites selected",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			_, err := New(tc.deps).Run(context.Background(), tc.params)
			require.ErrorContains(t, err, tc.wantErr)
		})
	}
}

func TestFetchOutcome(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		err       error
		outcome   string
		wantClass progress.StatusClass
	}{
		{"success", nil, "success", progress.Status2xx},
		{"throttled", &fetch.RateLimitedError{URL: "u"}, "throttled", progress.Status4xx},
		{"blocked 403", &fetch.BlockedError{URL: "u", Status: 403}, "blocked", progress.Status4xx},
		{"blocked 999", &fetch.BlockedError{URL: "u", Status: 999}, "blocked", progress.Status4xx},
		{"server error", &fetch.HTTPError{URL: "u", Status: 502}, "http_error", progress.Status5xx},
		{"client error", &fetch.HTTPError{URL: "u", Status: 404}, "http_error", progress.Status4xx},
		{"transport", &fetch.TransportError{URL: "u", Err: errors.New("dial")}, "transport_error", progress.StatusOther},
		{"unclassified", errors.New("boom"), "error", progress.StatusOther},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			outcome, class := fetchOutcome(tc.err)
			require.Equal(t, tc.outcome, outcome)
			require.Equal(t, tc.wantClass, class)
		})
	}
}

func TestBudget(t *testing.T) {
	t.Parallel()

	unlimited := newBudget(0)
	require.Equal(t, 7, unlimited.take(7))
	require.False(t, unlimited.exhausted())

	b := newBudget(10)
	require.Equal(t, 6, b.take(6))
	require.Equal(t, 4, b.take(6), "only the remainder is granted")
	require.True(t, b.exhausted())
	require.Zero(t, b.take(1))
}
