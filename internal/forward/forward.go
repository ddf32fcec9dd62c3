// Package forward posts crawl results to a downstream HTTP API, the
// boundary where records leave this process for indexing or alerting.
package forward

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/careermap/jobradar/internal/jobs"
)

// Config locates the downstream API. An empty endpoint disables
// forwarding.
type Config struct {
	Endpoint string        `mapstructure:"endpoint"`
	Token    string        `mapstructure:"token"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// Client posts record batches as a JSON array.
type Client struct {
	cfg  Config
	http *http.Client
	log  *zap.Logger
}

// New creates a Client.
func New(cfg Config, log *zap.Logger) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: cfg.Timeout},
		log:  log,
	}
}

// Enabled reports whether an endpoint is configured.
func (c *Client) Enabled() bool { return c.cfg.Endpoint != "" }

// Send posts records downstream. Disabled clients and empty batches
// are no-ops.
func (c *Client) Send(ctx context.Context, records []jobs.Record) error {
	if !c.Enabled() || len(records) == 0 {
		return nil
	}
	payload, err := json.Marshal(records)
	if err != nil {
		return fmt.Errorf("marshal records: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.Endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build forward request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.cfg.Token != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.Token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("forward records: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 200))
		return fmt.Errorf("forward rejected with status %d: %s", resp.StatusCode, snippet)
	}
	c.log.Info("forwarded records",
		zap.Int("records", len(records)),
		zap.String("endpoint", c.cfg.Endpoint))
	return nil
}
