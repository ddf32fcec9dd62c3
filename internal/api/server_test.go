package api

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/careermap/jobradar/internal/crawl"
	"github.com/careermap/jobradar/internal/dom"
	"github.com/careermap/jobradar/internal/metrics"
	"github.com/careermap/jobradar/internal/ratelimit"
	"github.com/careermap/jobradar/internal/sites"
)

func testCatalog() []sites.Descriptor {
	return []sites.Descriptor{
		{
			Name:      "alpha",
			Enabled:   true,
			BaseURL:   "https://alpha.example.com",
			SearchURL: "https://alpha.example.com/search?q={job_title}&l={location}",
			MaxPages:  3,
			BaseDelay: 5 * time.Second,
			Container: dom.Selector{Tag: "div", Match: "job"},
			Detail:    &sites.DetailStrategy{Selectors: []dom.Selector{{Tag: "div", Match: "full"}}},
		},
		{
			Name:      "beta",
			Enabled:   false,
			BaseURL:   "https://beta.example.com",
			SearchURL: "https://beta.example.com/search?q={job_title}",
			MaxPages:  2,
			BaseDelay: 3 * time.Second,
			Container: dom.Selector{Tag: "div", Match: "job"},
		},
	}
}

type stubPacing struct {
	stats map[string]ratelimit.Stats
}

func (s stubPacing) State(site string) (ratelimit.Stats, bool) {
	st, ok := s.stats[site]
	return st, ok
}

func newTestServer(opts Options) *Server {
	metrics.Init()
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	pacing := stubPacing{stats: map[string]ratelimit.Stats{
		"alpha": {Delay: 10 * time.Second, InBackoff: true, Failures: 2},
	}}
	return NewServer(NewRunHandler(&mockRunRepo{}, opts.Logger), crawl.NewTracker(), testCatalog(), pacing, opts)
}

func TestServerProbes(t *testing.T) {
	t.Parallel()

	server := newTestServer(Options{})
	for path, want := range map[string]string{
		"/healthz": "ok",
		"/readyz":  "ready",
	} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		rec := httptest.NewRecorder()
		server.Handler().ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)
		require.Contains(t, rec.Body.String(), want)
	}
}

func TestServerMetricsEndpoint(t *testing.T) {
	t.Parallel()

	server := newTestServer(Options{})
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestServerAPIKeyGuardsV1Only(t *testing.T) {
	t.Parallel()

	server := newTestServer(Options{APIKey: "secret"})

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, "probes stay open")

	req = httptest.NewRequest(http.MethodGet, "/v1/stats", nil)
	rec = httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusForbidden, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/v1/stats", nil)
	req.Header.Set("X-API-Key", "secret")
	rec = httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/v1/stats?api_key=secret", nil)
	rec = httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, "the key may ride the query string")
}

func TestServerListSites(t *testing.T) {
	t.Parallel()

	server := newTestServer(Options{})
	req := httptest.NewRequest(http.MethodGet, "/v1/sites", nil)
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Sites []siteInfoDTO `json:"sites"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Sites, 2)

	alpha := body.Sites[0]
	require.Equal(t, "alpha", alpha.Site)
	require.True(t, alpha.Enabled)
	require.True(t, alpha.Detail)
	require.Equal(t, 5.0, alpha.BaseDelay)
	require.NotNil(t, alpha.Pacing, "live pacing state rides along when the pacer knows the site")
	require.True(t, alpha.Pacing.InBackoff)
	require.Equal(t, 10.0, alpha.Pacing.DelaySeconds)

	beta := body.Sites[1]
	require.False(t, beta.Enabled)
	require.False(t, beta.Detail)
	require.Nil(t, beta.Pacing)
}

func TestServerStats(t *testing.T) {
	t.Parallel()

	metrics.Init()
	tracker := crawl.NewTracker()
	server := NewServer(nil, tracker, nil, nil, Options{})

	req := httptest.NewRequest(http.MethodGet, "/v1/stats", nil)
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, "{}", rec.Body.String(), "no runs yet")

	started := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	tracker.Begin(crawl.RunView{
		Started: started,
		Status:  crawl.RunActive,
		Query:   "golang",
		Sites:   []string{"alpha"},
	})
	tracker.Update("alpha", 2, 8)

	rec = httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/stats", nil))
	var body struct {
		Current *crawl.RunView `json:"current"`
		Last    *crawl.RunView `json:"last"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.NotNil(t, body.Current)
	require.Nil(t, body.Last)
	require.Equal(t, "golang", body.Current.Query)
	require.Equal(t, 8, body.Current.Records)

	tracker.End(crawl.RunSucceeded, 7, 1, started.Add(time.Minute))

	rec = httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/stats", nil))
	body.Current, body.Last = nil, nil
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Nil(t, body.Current)
	require.NotNil(t, body.Last)
	require.Equal(t, crawl.RunSucceeded, body.Last.Status)
	require.Equal(t, 7, body.Last.Records)
}

func TestServerRunsRouteWiring(t *testing.T) {
	t.Parallel()

	server := newTestServer(Options{})
	req := httptest.NewRequest(http.MethodGet, "/v1/runs?limit=5", nil)
	rec := httptest.NewRecorder()
	server.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "runs")
}

func TestRequestIDMiddlewareSetsHeader(t *testing.T) {
	t.Parallel()

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	newTestServer(Options{}).Handler().ServeHTTP(rec, req)

	require.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestResponseWriterHijackBehavior(t *testing.T) {
	t.Parallel()

	rw := &responseWriter{ResponseWriter: httptest.NewRecorder()}
	if _, _, err := rw.Hijack(); err == nil || err.Error() != "hijacker not supported" {
		t.Fatalf("expected unsupported hijacker error, got %v", err)
	}

	h := &hijackableRecorder{ResponseRecorder: httptest.NewRecorder()}
	rw = &responseWriter{ResponseWriter: h}
	conn, buf, err := rw.Hijack()
	if err != nil {
		t.Fatalf("expected successful hijack, got %v", err)
	}
	if err := conn.Close(); err != nil {
		t.Fatalf("close hijacked conn: %v", err)
	}
	if err := h.CloseClient(); err != nil {
		t.Fatalf("close hijacked client: %v", err)
	}
	if buf == nil {
		t.Fatal("expected buf to be non-nil")
	}
}

type hijackableRecorder struct {
	*httptest.ResponseRecorder
	client net.Conn
}

func (h *hijackableRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	server, client := net.Pipe()
	h.client = client
	return server, bufio.NewReadWriter(bufio.NewReader(client), bufio.NewWriter(client)), nil
}

func (h *hijackableRecorder) CloseClient() error {
	if h.client != nil {
		if err := h.client.Close(); err != nil {
			return fmt.Errorf("close hijacker client: %w", err)
		}
	}
	return nil
}
