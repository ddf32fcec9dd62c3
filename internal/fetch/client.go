// Package fetch retrieves listing pages from hostile job boards. Every
// request wears a rotating user agent, a browser header profile, and
// the site's synthetic cookies; failures walk a status-aware retry
// ladder that backs off hardest on throttling and bot blocks.
package fetch

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"

	"github.com/careermap/jobradar/internal/clock"
	"github.com/careermap/jobradar/internal/headers"
	"github.com/careermap/jobradar/internal/randsrc"
	"github.com/careermap/jobradar/internal/sites"
)

// Config tunes the retry ladder. Zero values pick the defaults.
type Config struct {
	MaxAttempts  int           `mapstructure:"max_attempts"`
	Timeout      time.Duration `mapstructure:"timeout"`
	RetryBase    time.Duration `mapstructure:"retry_base"`
	ThrottleWait time.Duration `mapstructure:"throttle_wait"`
	BlockWait    time.Duration `mapstructure:"block_wait"`
	BlockStep    time.Duration `mapstructure:"block_step"`
}

func (c Config) withDefaults() Config {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	if c.RetryBase <= 0 {
		c.RetryBase = 3 * time.Second
	}
	if c.ThrottleWait <= 0 {
		c.ThrottleWait = time.Minute
	}
	if c.BlockWait <= 0 {
		c.BlockWait = 2 * time.Minute
	}
	if c.BlockStep <= 0 {
		c.BlockStep = time.Minute
	}
	return c
}

// Pacer gates requests per site and hears how they went.
type Pacer interface {
	Wait(ctx context.Context, site string) error
	Success(site string)
	Failure(site string, status int)
}

// Snapshotter receives page bodies worth keeping for offline debugging.
// Implementations must tolerate concurrent calls.
type Snapshotter interface {
	Save(label string, body []byte)
}

// Request describes one page fetch on behalf of a site descriptor.
type Request struct {
	Site       string
	URL        string
	Referer    string
	Cookies    []sites.CookieSpec
	UserAgents []string
}

// Client is a retrying, impersonating page fetcher. It is safe for
// concurrent use; each fetch runs on a clone of the base collector.
type Client struct {
	cfg   Config
	base  *colly.Collector
	pacer Pacer
	clk   clock.Clock
	rnd   randsrc.Source
	snaps Snapshotter
	log   *zap.Logger
}

// New builds a Client. snaps may be nil to disable debug snapshots.
func New(cfg Config, pacer Pacer, clk clock.Clock, rnd randsrc.Source, snaps Snapshotter, log *zap.Logger) *Client {
	cfg = cfg.withDefaults()
	base := colly.NewCollector(
		colly.Async(false),
		colly.AllowURLRevisit(),
		colly.ParseHTTPErrorResponse(),
		colly.DetectCharset(),
	)
	base.IgnoreRobotsTxt = true
	base.SetRequestTimeout(cfg.Timeout)
	base.WithTransport(newHTTPTransport())

	return &Client{
		cfg:   cfg,
		base:  base,
		pacer: pacer,
		clk:   clk,
		rnd:   rnd,
		snaps: snaps,
		log:   log,
	}
}

// Fetch retrieves one page. It waits for the site's pacing slot, then
// walks the retry ladder: 429 waits a growing minute multiple, 403 and
// 999 rotate the user agent and wait longest, transport errors retry
// with plain content encoding. The returned error carries the final
// attempt's classification.
func (c *Client) Fetch(ctx context.Context, req Request) ([]byte, error) {
	if err := c.pacer.Wait(ctx, req.Site); err != nil {
		return nil, fmt.Errorf("pacing %s: %w", req.Site, err)
	}

	agent, agentIdx := headers.PickAgent(c.rnd, req.UserAgents)
	plainEncoding := false
	var lastErr error

	for attempt := 0; attempt < c.cfg.MaxAttempts; attempt++ {
		body, status, err := c.do(ctx, req, agent, plainEncoding)
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		// wait is the category-specific delay taken on top of the
		// between-attempt backoff. The final attempt skips both.
		var wait time.Duration
		switch {
		case err != nil:
			lastErr = &TransportError{URL: req.URL, Err: err}
			c.log.Warn("transport error",
				zap.String("site", req.Site),
				zap.String("url", req.URL),
				zap.Int("attempt", attempt+1),
				zap.Error(err))
			plainEncoding = true

		case status >= 200 && status < 300:
			c.pacer.Success(req.Site)
			return body, nil

		case status == http.StatusTooManyRequests:
			c.pacer.Failure(req.Site, status)
			lastErr = &RateLimitedError{URL: req.URL}
			wait = time.Duration(attempt+1) * c.cfg.ThrottleWait
			c.log.Warn("rate limited",
				zap.String("site", req.Site),
				zap.Int("attempt", attempt+1),
				zap.Duration("wait", wait))

		case status == http.StatusForbidden || status == StatusBotDetected:
			c.pacer.Failure(req.Site, status)
			lastErr = &BlockedError{URL: req.URL, Status: status}
			if c.snaps != nil {
				c.snaps.Save(fmt.Sprintf("blocked_%d_%s", status, req.Site), body)
			}
			agent, agentIdx = headers.NextAgent(req.UserAgents, agentIdx)
			wait = c.cfg.BlockWait + time.Duration(attempt)*c.cfg.BlockStep
			c.log.Warn("blocked",
				zap.String("site", req.Site),
				zap.Int("status", status),
				zap.Int("attempt", attempt+1),
				zap.Duration("wait", wait))

		default:
			c.pacer.Failure(req.Site, status)
			lastErr = &HTTPError{URL: req.URL, Status: status}
			c.log.Warn("http error",
				zap.String("site", req.Site),
				zap.Int("status", status),
				zap.Int("attempt", attempt+1))
		}

		if attempt == c.cfg.MaxAttempts-1 {
			break
		}
		if wait > 0 {
			if err := c.clk.Sleep(ctx, wait); err != nil {
				return nil, err
			}
		}
		backoff := time.Duration(attempt+1)*c.cfg.RetryBase +
			time.Duration(c.rnd.Intn(5))*time.Second
		if err := c.clk.Sleep(ctx, backoff); err != nil {
			return nil, err
		}
	}
	return nil, lastErr
}

// do executes a single attempt on a collector clone.
func (c *Client) do(ctx context.Context, req Request, agent string, plainEncoding bool) ([]byte, int, error) {
	col := c.base.Clone()
	col.UserAgent = agent

	var (
		body     []byte
		status   int
		fetchErr error
	)
	col.OnRequest(func(r *colly.Request) {
		headers.Apply(*r.Headers, c.rnd)
		if cookie := headers.CookieHeader(c.rnd, c.clk.Now().Unix(), req.Cookies); cookie != "" {
			r.Headers.Set("Cookie", cookie)
		}
		if ref := refererFor(req); ref != "" {
			r.Headers.Set("Referer", ref)
		}
		if plainEncoding {
			r.Headers.Set("Accept-Encoding", "identity")
		}
	})
	col.OnResponse(func(r *colly.Response) {
		status = r.StatusCode
		body = append([]byte(nil), r.Body...)
	})
	// Error pages flow through OnResponse because the collector parses
	// HTTP error responses; OnError only sees transport failures.
	col.OnError(func(_ *colly.Response, err error) {
		fetchErr = err
	})

	done := make(chan error, 1)
	go func() {
		done <- col.Visit(req.URL)
	}()
	select {
	case <-ctx.Done():
		return nil, 0, ctx.Err()
	case visitErr := <-done:
		if fetchErr != nil {
			return nil, 0, fetchErr
		}
		if status == 0 && visitErr != nil {
			return nil, 0, visitErr
		}
		return body, status, nil
	}
}

// refererFor falls back to the page's own origin when the descriptor
// does not name a referer.
func refererFor(req Request) string {
	if req.Referer != "" {
		return req.Referer
	}
	u, err := url.Parse(req.URL)
	if err != nil || u.Host == "" {
		return req.URL
	}
	return u.Scheme + "://" + u.Host
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   15 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}
