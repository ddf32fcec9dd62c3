package output

import (
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/careermap/jobradar/internal/clock"
	"github.com/careermap/jobradar/internal/jobs"
)

func testRecords() []jobs.Record {
	return []jobs.Record{
		{
			ID:          "abc",
			Title:       "Go Engineer",
			Company:     "Acme",
			Location:    "Remote",
			Description: `Ship "reliable" systems, fast`,
			Skills:      []string{"Go", "Kubernetes"},
			Source:      "dice",
			SourceURL:   "https://www.dice.com/jobs/1",
			ScrapedAt:   "2025-06-01 10:00:00",
		},
		{ID: "def", Title: "Analyst", Company: "Globex", Source: "indeed"},
	}
}

func newTestWriter(t *testing.T) (*Writer, string) {
	t.Helper()
	dir := t.TempDir()
	clk := clock.NewFake(time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC))
	return NewWriter(dir, clk, zap.NewNop()), dir
}

func TestWriteJSONRoundTrips(t *testing.T) {
	t.Parallel()

	w, _ := newTestWriter(t)
	path, err := w.WriteJSON(testRecords())
	require.NoError(t, err)
	require.Equal(t, "jobs_20250601_100000.json", filepath.Base(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var got []jobs.Record
	require.NoError(t, json.Unmarshal(data, &got))
	require.Equal(t, testRecords(), got)
}

func TestWriteCSV(t *testing.T) {
	t.Parallel()

	w, _ := newTestWriter(t)
	path, err := w.WriteCSV(testRecords())
	require.NoError(t, err)
	require.Equal(t, "jobs_20250601_100000.csv", filepath.Base(path))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3)
	require.Equal(t, csvHeader, rows[0])
	require.Equal(t, "Go Engineer", rows[1][1])
	require.Equal(t, "Go;Kubernetes", rows[1][5])
	require.Equal(t, `Ship "reliable" systems, fast`, rows[1][4], "quoting survives the round trip")
}

func TestSnapshotsSanitizeLabels(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	clk := clock.NewFake(time.Unix(0, 42))
	s := NewSnapshots(dir, clk, zap.NewNop())

	s.Save("blocked_403_my board/v2", []byte("<html>denied</html>"))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "debug_blocked_403_my_board_v2_42.html", entries[0].Name())

	data, err := os.ReadFile(filepath.Join(dir, entries[0].Name()))
	require.NoError(t, err)
	require.Equal(t, "<html>denied</html>", string(data))
}
