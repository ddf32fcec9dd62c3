// Package jobs defines the job Record produced by a crawl and the
// fingerprinting used to deduplicate listings across sites and pages.
package jobs

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"
)

// TimeFormat is the layout used for the ScrapedAt field.
const TimeFormat = "2006-01-02 15:04:05"

// Record is one extracted job posting.
type Record struct {
	ID          string   `json:"job_id"`
	Title       string   `json:"title"`
	Company     string   `json:"company"`
	Location    string   `json:"location"`
	Description string   `json:"description"`
	Skills      []string `json:"skills,omitempty"`
	Source      string   `json:"source"`
	SourceURL   string   `json:"source_url"`
	ScrapedAt   string   `json:"scraped_at"`
}

// ID derives the stable record identifier from site, title and company.
func ID(site, title, company string) string {
	sum := sha256.Sum256([]byte(site + ":" + title + ":" + company))
	return hex.EncodeToString(sum[:])
}

// Stamp formats t for the ScrapedAt field.
func Stamp(t time.Time) string {
	return t.Format(TimeFormat)
}

// Fingerprint is the dedupe key for a posting: lowercased title and
// company joined with a pipe. Postings reposted with different
// capitalization collapse to one key.
func Fingerprint(title, company string) string {
	return strings.ToLower(title) + "|" + strings.ToLower(company)
}
