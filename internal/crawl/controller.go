// Package crawl runs the whole engine end to end: sites are shuffled
// and crawled page by page under job budgets, records extracted and
// enriched from detail pages, then deduplicated. Site failures never
// fail the run; whatever the healthy sites produced is the result.
package crawl

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/careermap/jobradar/internal/clock"
	"github.com/careermap/jobradar/internal/dom"
	"github.com/careermap/jobradar/internal/extract"
	"github.com/careermap/jobradar/internal/fetch"
	idgen "github.com/careermap/jobradar/internal/id/uuid"
	"github.com/careermap/jobradar/internal/jobs"
	"github.com/careermap/jobradar/internal/metrics"
	"github.com/careermap/jobradar/internal/progress"
	"github.com/careermap/jobradar/internal/randsrc"
	"github.com/careermap/jobradar/internal/ratelimit"
	"github.com/careermap/jobradar/internal/sites"
	"github.com/careermap/jobradar/internal/urlutil"
)

const (
	// minSiteShare keeps small MaxJobs values from starving sites.
	minSiteShare = 5

	// interSiteDelay spaces sequential site crawls; a random
	// 0..interSiteJitterSec seconds is added on top.
	interSiteDelay     = 15 * time.Second
	interSiteJitterSec = 15

	// defaultDetailFetches caps detail-page enrichment for descriptors
	// that do not set their own limit.
	defaultDetailFetches = 10

	// defaultDetailThreshold marks a listing description as a teaser
	// worth enriching when the strategy sets no minimum length.
	defaultDetailThreshold = 100
)

// Fetcher retrieves one page. *fetch.Client satisfies this.
type Fetcher interface {
	Fetch(ctx context.Context, req fetch.Request) ([]byte, error)
}

// Pacing seeds per-site delays and exposes pacing state. *ratelimit.Limiter
// satisfies this; the fetcher consults the same limiter before every request.
type Pacing interface {
	Register(site string, base time.Duration)
	State(site string) (ratelimit.Stats, bool)
}

// IDSource allocates run identifiers.
type IDSource interface {
	NewRawID() (uuid.UUID, error)
}

// Params describes one crawl cycle.
type Params struct {
	// Query fills the {job_title} search placeholder.
	Query string
	// Location fills the {location} placeholder and backfills records
	// without one.
	Location string
	// Sites are the descriptors to crawl.
	Sites []sites.Descriptor
	// MaxJobs caps kept records across the whole run. Zero is unlimited.
	MaxJobs int
	// MaxPages lowers every site's page count when positive.
	MaxPages int
	// Keywords filters records: one must appear in title or description.
	Keywords []string
	// SkillScan enables vocabulary matching against descriptions for
	// sites without a skills selector.
	SkillScan bool
	// Workers bounds how many sites crawl at once. Values below two run
	// sites sequentially with a long delay between them.
	Workers int
}

// Deps wires the controller to the rest of the engine. Only Fetcher is
// required; every other field has a working default.
type Deps struct {
	Fetcher Fetcher
	Extract *extract.Extractor
	Pacing  Pacing
	IDs     IDSource
	Emitter progress.Emitter
	Tracker *Tracker
	Clock   clock.Clock
	Rand    randsrc.Source
	Logger  *zap.Logger
}

func (d Deps) withDefaults() Deps {
	if d.Clock == nil {
		d.Clock = clock.NewSystem()
	}
	if d.Rand == nil {
		d.Rand = randsrc.NewWallSeeded()
	}
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	if d.Extract == nil {
		d.Extract = extract.New(d.Clock, d.Logger)
	}
	if d.IDs == nil {
		d.IDs = idgen.New()
	}
	if d.Emitter == nil {
		d.Emitter = progress.Discard{}
	}
	return d
}

// SiteSummary reports one site's share of a run.
type SiteSummary struct {
	Site    string `json:"site"`
	Pages   int    `json:"pages"`
	Records int    `json:"records"`
	Details int    `json:"detail_fetches"`
	Bytes   int64  `json:"bytes"`
	// Err is the fetch failure that ended pagination early, if any.
	Err error `json:"-"`
}

// Summary is the outcome of one crawl cycle. Records are deduplicated;
// site summaries keep the pre-dedupe counts.
type Summary struct {
	RunID      uuid.UUID
	Started    time.Time
	Dur        time.Duration
	Records    []jobs.Record
	Duplicates int
	Sites      []SiteSummary
}

// Controller owns the run loop.
type Controller struct {
	deps Deps
}

// New creates a Controller. Missing optional deps get defaults.
func New(deps Deps) *Controller {
	return &Controller{deps: deps.withDefaults()}
}

// Run executes one crawl cycle and returns the deduplicated records.
// Site-level failures are absorbed into the summary; the returned error
// reports only unusable parameters or cancellation.
func (c *Controller) Run(ctx context.Context, params Params) (*Summary, error) {
	if c.deps.Fetcher == nil {
		return nil, errors.New("crawl: fetcher is required")
	}
	if params.Query == "" {
		return nil, errors.New("crawl: query is required")
	}
	if len(params.Sites) == 0 {
		return nil, errors.New("crawl: no sites selected")
	}

	rawID, err := c.deps.IDs.NewRawID()
	if err != nil {
		return nil, fmt.Errorf("allocating run id: %w", err)
	}
	runID := progress.UUIDToBytes(rawID)
	started := c.deps.Clock.Now()

	descs := make([]sites.Descriptor, len(params.Sites))
	copy(descs, params.Sites)
	c.deps.Rand.Shuffle(len(descs), func(i, j int) {
		descs[i], descs[j] = descs[j], descs[i]
	})

	if c.deps.Pacing != nil {
		for _, d := range descs {
			c.deps.Pacing.Register(d.Name, d.BaseDelay)
		}
	}

	siteCap := 0
	if params.MaxJobs > 0 {
		siteCap = params.MaxJobs / len(descs)
		if siteCap < minSiteShare {
			siteCap = minSiteShare
		}
	}
	global := newBudget(params.MaxJobs)

	names := make([]string, len(descs))
	for i, d := range descs {
		names[i] = d.Name
	}
	c.deps.Tracker.Begin(RunView{
		RunID:    rawID,
		Started:  started,
		Status:   RunActive,
		Query:    params.Query,
		Location: params.Location,
		Sites:    names,
	})
	c.emit(progress.Event{RunID: runID, TS: started, Stage: progress.StageRunStart,
		Note: fmt.Sprintf("query=%s sites=%d", params.Query, len(descs))})
	c.deps.Logger.Info("crawl started",
		zap.String("run_id", rawID.String()),
		zap.String("query", params.Query),
		zap.String("location", params.Location),
		zap.Strings("sites", names),
		zap.Int("max_jobs", params.MaxJobs))

	var (
		mu        sync.Mutex
		all       []jobs.Record
		summaries []SiteSummary
	)
	collect := func(sum SiteSummary, recs []jobs.Record) {
		mu.Lock()
		defer mu.Unlock()
		all = append(all, recs...)
		summaries = append(summaries, sum)
	}

	if params.Workers <= 1 {
		for i, desc := range descs {
			sum, recs := c.crawlSite(ctx, runID, desc, params, global, siteCap)
			collect(sum, recs)
			if ctx.Err() != nil || global.exhausted() {
				break
			}
			if i < len(descs)-1 {
				wait := interSiteDelay + time.Duration(c.deps.Rand.Intn(interSiteJitterSec))*time.Second
				if err := c.deps.Clock.Sleep(ctx, wait); err != nil {
					break
				}
			}
		}
	} else {
		sem := make(chan struct{}, params.Workers)
		var wg sync.WaitGroup
		for _, desc := range descs {
			wg.Add(1)
			go func(desc sites.Descriptor) {
				defer wg.Done()
				select {
				case sem <- struct{}{}:
					defer func() { <-sem }()
				case <-ctx.Done():
					collect(SiteSummary{Site: desc.Name, Err: ctx.Err()}, nil)
					return
				}
				metrics.IncActiveWorkers()
				defer metrics.DecActiveWorkers()
				sum, recs := c.crawlSite(ctx, runID, desc, params, global, siteCap)
				collect(sum, recs)
			}(desc)
		}
		wg.Wait()
	}

	deduped := jobs.Dedupe(all)
	dups := len(all) - len(deduped)
	metrics.ObserveDuplicates(dups)

	finished := c.deps.Clock.Now()
	summary := &Summary{
		RunID:      rawID,
		Started:    started,
		Dur:        finished.Sub(started),
		Records:    deduped,
		Duplicates: dups,
		Sites:      summaries,
	}

	failed := 0
	for _, s := range summaries {
		if s.Err != nil {
			failed++
		}
	}

	end := progress.Event{RunID: runID, TS: finished, Stage: progress.StageRunDone,
		Records: int64(len(deduped)), Dur: summary.Dur}
	status := RunSucceeded
	switch {
	case ctx.Err() != nil:
		end.Stage = progress.StageRunError
		end.Note = "run canceled"
		status = RunFailed
	case failed == len(summaries):
		end.Stage = progress.StageRunError
		end.Note = "every site failed"
		status = RunFailed
	}
	c.emit(end)
	c.deps.Tracker.End(status, len(deduped), dups, finished)
	c.deps.Logger.Info("crawl finished",
		zap.String("run_id", rawID.String()),
		zap.Int("records", len(deduped)),
		zap.Int("duplicates", dups),
		zap.Int("sites_failed", failed),
		zap.Duration("dur", summary.Dur))

	return summary, ctx.Err()
}

// crawlSite walks one site's pages until the descriptor's page count,
// a budget, or a fetch failure ends it.
func (c *Controller) crawlSite(ctx context.Context, runID [16]byte, desc sites.Descriptor, params Params, global *budget, siteCap int) (SiteSummary, []jobs.Record) {
	sum := SiteSummary{Site: desc.Name}
	var out []jobs.Record

	maxPages := desc.MaxPages
	if maxPages <= 0 {
		maxPages = 1
	}
	if params.MaxPages > 0 && params.MaxPages < maxPages {
		maxPages = params.MaxPages
	}
	detailLeft := 0
	if desc.Detail != nil {
		detailLeft = desc.Detail.MaxFetches
		if detailLeft <= 0 {
			detailLeft = defaultDetailFetches
		}
	}
	extractParams := extract.Params{
		Location: params.Location,
		Keywords: params.Keywords,
		Skills:   params.SkillScan,
	}

	search := urlutil.SearchURL(desc.SearchURL, params.Query, params.Location)
	for page := 0; page < maxPages; page++ {
		if ctx.Err() != nil {
			sum.Err = ctx.Err()
			break
		}
		pageURL := urlutil.PageURL(search, desc.PageParam, desc.PageValue(page))

		body, err := c.fetchPage(ctx, runID, desc, pageURL)
		if err != nil {
			sum.Err = err
			c.deps.Logger.Warn("fetch failed, abandoning site",
				zap.String("site", desc.Name),
				zap.String("url", pageURL),
				zap.Int("pages_done", sum.Pages),
				zap.Error(err))
			break
		}
		sum.Pages++
		sum.Bytes += int64(len(body))

		doc, err := dom.Parse(bytes.NewReader(body))
		if err != nil {
			c.deps.Logger.Warn("page skipped, body would not parse",
				zap.String("site", desc.Name),
				zap.Error(&fetch.ParseError{URL: pageURL, Err: err}))
			continue
		}

		recs := c.deps.Extract.Page(doc, desc, extractParams)
		if len(recs) == 0 {
			if len(doc.Find(dom.Root, desc.Container)) == 0 {
				// Ran off the end of the results.
				c.deps.Logger.Debug("no containers, ending pagination",
					zap.String("site", desc.Name),
					zap.Int("page", page+1))
				break
			}
			continue
		}

		if siteCap > 0 {
			if left := siteCap - sum.Records; len(recs) > left {
				recs = recs[:left]
			}
		}
		recs = recs[:global.take(len(recs))]

		used := c.enrich(ctx, runID, desc, recs, detailLeft)
		detailLeft -= used
		sum.Details += used

		sum.Records += len(recs)
		out = append(out, recs...)
		metrics.ObserveRecords(desc.Name, len(recs))
		c.emit(progress.Event{RunID: runID, TS: c.deps.Clock.Now(), Stage: progress.StagePageDone,
			Site: desc.Name, URL: pageURL, Records: int64(len(recs))})
		c.deps.Tracker.Update(desc.Name, 1, len(recs))

		if global.exhausted() || (siteCap > 0 && sum.Records >= siteCap) {
			break
		}
	}
	return sum, out
}

// fetchPage fetches one listing page and reports the outcome to metrics
// and the event stream.
func (c *Controller) fetchPage(ctx context.Context, runID [16]byte, desc sites.Descriptor, url string) ([]byte, error) {
	start := c.deps.Clock.Now()
	body, err := c.deps.Fetcher.Fetch(ctx, fetch.Request{
		Site:       desc.Name,
		URL:        url,
		Referer:    desc.Referer,
		Cookies:    desc.Cookies,
		UserAgents: desc.UserAgents,
	})
	dur := c.deps.Clock.Now().Sub(start)

	outcome, class := fetchOutcome(err)
	metrics.ObserveCrawl(desc.Name, outcome, len(body))
	if c.deps.Pacing != nil {
		if st, ok := c.deps.Pacing.State(desc.Name); ok {
			metrics.ObserveRateLimitDelay(desc.Name, st.Delay)
		}
	}
	ev := progress.Event{RunID: runID, TS: c.deps.Clock.Now(), Stage: progress.StageFetchDone,
		Site: desc.Name, URL: url, Bytes: int64(len(body)), StatusClass: class, Dur: dur}
	if err != nil {
		ev.Note = outcome
	} else {
		ev.Pages = 1
	}
	c.emit(ev)
	return body, err
}

// enrich replaces teaser descriptions with detail-page text for up to
// allowance records. It returns how many detail fetches were spent.
// Detail failures cost a fetch but never end the site's pagination.
func (c *Controller) enrich(ctx context.Context, runID [16]byte, desc sites.Descriptor, recs []jobs.Record, allowance int) int {
	if desc.Detail == nil || allowance <= 0 {
		return 0
	}
	strat := *desc.Detail
	threshold := strat.MinLength
	if threshold <= 0 {
		threshold = defaultDetailThreshold
	}

	used := 0
	for i := range recs {
		if used >= allowance {
			break
		}
		if ctx.Err() != nil {
			break
		}
		r := &recs[i]
		if len(r.Description) >= threshold || r.SourceURL == "" {
			continue
		}
		used++

		req := fetch.Request{
			Site:       desc.Name,
			URL:        r.SourceURL,
			Referer:    strat.Referer,
			Cookies:    strat.Cookies,
			UserAgents: strat.UserAgents,
		}
		if req.Referer == "" {
			req.Referer = desc.Referer
		}
		if len(req.Cookies) == 0 {
			req.Cookies = desc.Cookies
		}
		if len(req.UserAgents) == 0 {
			req.UserAgents = desc.UserAgents
		}

		start := c.deps.Clock.Now()
		body, err := c.deps.Fetcher.Fetch(ctx, req)
		dur := c.deps.Clock.Now().Sub(start)
		metrics.ObserveDetailFetch(desc.Name)
		outcome, class := fetchOutcome(err)
		ev := progress.Event{RunID: runID, TS: c.deps.Clock.Now(), Stage: progress.StageFetchDone,
			Site: desc.Name, URL: r.SourceURL, Bytes: int64(len(body)), StatusClass: class, Dur: dur}
		if err != nil {
			ev.Note = outcome
		}
		c.emit(ev)
		if err != nil {
			c.deps.Logger.Debug("detail fetch failed",
				zap.String("site", desc.Name),
				zap.String("url", r.SourceURL),
				zap.Error(err))
			continue
		}

		doc, err := dom.Parse(bytes.NewReader(body))
		if err != nil {
			c.deps.Logger.Debug("detail page would not parse",
				zap.String("site", desc.Name),
				zap.Error(&fetch.ParseError{URL: r.SourceURL, Err: err}))
			continue
		}
		if text := c.deps.Extract.Detail(doc, strat); len(text) > len(r.Description) {
			r.Description = text
		}
	}
	return used
}

// fetchOutcome maps a fetch result onto a metrics outcome label and a
// status class for the event stream.
func fetchOutcome(err error) (string, progress.StatusClass) {
	if err == nil {
		return "success", progress.Status2xx
	}
	var (
		throttled *fetch.RateLimitedError
		blocked   *fetch.BlockedError
		httpErr   *fetch.HTTPError
		transport *fetch.TransportError
	)
	switch {
	case errors.As(err, &throttled):
		return "throttled", progress.Status4xx
	case errors.As(err, &blocked):
		return "blocked", progress.ClassifyStatus(blocked.Status)
	case errors.As(err, &httpErr):
		return "http_error", progress.ClassifyStatus(httpErr.Status)
	case errors.As(err, &transport):
		return "transport_error", progress.StatusOther
	}
	return "error", progress.StatusOther
}

func (c *Controller) emit(ev progress.Event) {
	c.deps.Emitter.Emit(ev)
}

// budget is the run-wide record cap, shared across site workers.
type budget struct {
	mu   sync.Mutex
	max  int
	used int
}

// newBudget creates a budget. max of zero or below means unlimited.
func newBudget(max int) *budget {
	return &budget{max: max}
}

// take claims up to n slots and returns how many were granted.
func (b *budget) take(n int) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.max > 0 {
		if left := b.max - b.used; n > left {
			n = left
		}
	}
	if n < 0 {
		n = 0
	}
	b.used += n
	return n
}

func (b *budget) exhausted() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.max > 0 && b.used >= b.max
}
