package jobs

import "sync"

// Deduper tracks posting fingerprints already seen during a crawl. The
// first record carrying a fingerprint wins; later ones are dropped.
type Deduper struct {
	mu   sync.Mutex
	seen map[string]struct{}
}

// NewDeduper creates an empty Deduper.
func NewDeduper() *Deduper {
	return &Deduper{seen: make(map[string]struct{})}
}

// Add records r's fingerprint and reports whether it was new.
func (d *Deduper) Add(r Record) bool {
	fp := Fingerprint(r.Title, r.Company)
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, dup := d.seen[fp]; dup {
		return false
	}
	d.seen[fp] = struct{}{}
	return true
}

// Len returns the number of distinct fingerprints seen so far.
func (d *Deduper) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.seen)
}

// Dedupe returns records with duplicates removed, preserving the first
// occurrence of each fingerprint in input order.
func Dedupe(records []Record) []Record {
	d := NewDeduper()
	out := make([]Record, 0, len(records))
	for _, r := range records {
		if d.Add(r) {
			out = append(out, r)
		}
	}
	return out
}
