// Package output writes crawl results to local sinks: timestamped JSON
// and CSV files, plus raw page snapshots for offline debugging of
// blocked or misparsed fetches.
package output

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/careermap/jobradar/internal/clock"
	"github.com/careermap/jobradar/internal/jobs"
)

// csvHeader is the column order of the CSV sink.
var csvHeader = []string{
	"job_id", "title", "company", "location", "description",
	"skills", "source", "source_url", "scraped_at",
}

// Writer persists record batches under a directory, one timestamped
// file per crawl run.
type Writer struct {
	dir string
	clk clock.Clock
	log *zap.Logger
}

// NewWriter creates a Writer rooted at dir.
func NewWriter(dir string, clk clock.Clock, log *zap.Logger) *Writer {
	return &Writer{dir: dir, clk: clk, log: log}
}

func (w *Writer) runFile(ext string) (string, error) {
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}
	name := "jobs_" + w.clk.Now().Format("20060102_150405") + ext
	return filepath.Join(w.dir, name), nil
}

// WriteJSON saves records as an indented JSON array and returns the
// path written.
func (w *Writer) WriteJSON(records []jobs.Record) (string, error) {
	path, err := w.runFile(".json")
	if err != nil {
		return "", err
	}
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal records: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write json: %w", err)
	}
	w.log.Info("wrote json", zap.String("path", path), zap.Int("records", len(records)))
	return path, nil
}

// WriteCSV saves records as CSV with a header row and returns the path
// written. Skills are joined with semicolons inside their cell.
func (w *Writer) WriteCSV(records []jobs.Record) (string, error) {
	path, err := w.runFile(".csv")
	if err != nil {
		return "", err
	}
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("create csv: %w", err)
	}
	defer f.Close()

	cw := csv.NewWriter(f)
	if err := cw.Write(csvHeader); err != nil {
		return "", fmt.Errorf("write csv header: %w", err)
	}
	for _, r := range records {
		row := []string{
			r.ID, r.Title, r.Company, r.Location, r.Description,
			strings.Join(r.Skills, ";"), r.Source, r.SourceURL, r.ScrapedAt,
		}
		if err := cw.Write(row); err != nil {
			return "", fmt.Errorf("write csv row: %w", err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return "", fmt.Errorf("flush csv: %w", err)
	}
	w.log.Info("wrote csv", zap.String("path", path), zap.Int("records", len(records)))
	return path, nil
}

var unsafeName = regexp.MustCompile(`[^a-zA-Z0-9._-]+`)

// Snapshots saves raw page bodies. Failures are logged, never fatal;
// snapshots are best-effort debugging aids.
type Snapshots struct {
	dir string
	clk clock.Clock
	log *zap.Logger
}

// NewSnapshots creates a Snapshots store rooted at dir.
func NewSnapshots(dir string, clk clock.Clock, log *zap.Logger) *Snapshots {
	return &Snapshots{dir: dir, clk: clk, log: log}
}

// Save writes body under a sanitized, timestamped name.
func (s *Snapshots) Save(label string, body []byte) {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		s.log.Warn("snapshot dir", zap.Error(err))
		return
	}
	name := fmt.Sprintf("debug_%s_%d.html",
		unsafeName.ReplaceAllString(label, "_"),
		s.clk.Now().UnixNano())
	path := filepath.Join(s.dir, name)
	if err := os.WriteFile(path, body, 0o644); err != nil {
		s.log.Warn("snapshot write", zap.String("path", path), zap.Error(err))
		return
	}
	s.log.Debug("saved snapshot", zap.String("path", path), zap.Int("bytes", len(body)))
}
