package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNormalizeSite(t *testing.T) {
	testCases := []struct {
		name     string
		input    string
		expected string
	}{
		{"lowercase passthrough", "indeed", "indeed"},
		{"mixed case", "LinkedIn", "linkedin"},
		{"surrounding space", "  dice ", "dice"},
		{"empty string", "", "unknown"},
		{"only space", "   ", "unknown"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := NormalizeSite(tc.input); got != tc.expected {
				t.Errorf("NormalizeSite(%q) = %q; want %q", tc.input, got, tc.expected)
			}
		})
	}
}

func TestInit(t *testing.T) {
	// Call Init multiple times to test idempotency.
	Init()
	Init()

	if crawlPagesTotal == nil || crawlBytesTotal == nil ||
		crawlRecordsTotal == nil || httpRequestsTotal == nil ||
		httpRequestDurationSeconds == nil {
		t.Fatal("Init() did not initialize metrics collectors")
	}

	// A simple check to see if a metric can be used.
	ObserveCrawl("TestBoard", "success", 2048)
	if val := testutil.ToFloat64(crawlPagesTotal.WithLabelValues("testboard", "success")); val != 1 {
		t.Errorf("Expected crawlPagesTotal to be 1, got %f", val)
	}
	if val := testutil.ToFloat64(crawlBytesTotal.WithLabelValues("testboard")); val != 2048 {
		t.Errorf("Expected crawlBytesTotal to be 2048, got %f", val)
	}

	ObserveRecords("testboard", 5)
	if val := testutil.ToFloat64(crawlRecordsTotal.WithLabelValues("testboard")); val != 5 {
		t.Errorf("Expected crawlRecordsTotal to be 5, got %f", val)
	}
}

// Fuzz test for NormalizeSite.
func FuzzNormalizeSite(f *testing.F) {
	testcases := []string{"indeed", "LinkedIn", "  dice ", ""}
	for _, tc := range testcases {
		f.Add(tc)
	}
	f.Fuzz(func(t *testing.T, orig string) {
		normalized := NormalizeSite(orig)
		if normalized == "" {
			t.Errorf("NormalizeSite(%q) returned an empty string", orig)
		}
	})
}
