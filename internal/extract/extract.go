// Package extract turns parsed listing pages into job records, driven
// entirely by a site descriptor's selectors. A card that yields no
// title is a miss, not an error; the page keeps going.
package extract

import (
	"strings"

	"go.uber.org/zap"

	"github.com/careermap/jobradar/internal/clock"
	"github.com/careermap/jobradar/internal/dom"
	"github.com/careermap/jobradar/internal/jobs"
	"github.com/careermap/jobradar/internal/sites"
	"github.com/careermap/jobradar/internal/urlutil"
)

// Params carries the search context extraction needs beyond the
// descriptor itself.
type Params struct {
	// Location backfills records whose card shows no location.
	Location string
	// Keywords filters records: at least one must appear in the title
	// or description, case-insensitively. Empty admits everything.
	Keywords []string
	// Skills enables the vocabulary scan of descriptions for sites
	// without a dedicated skills selector.
	Skills bool
}

// Extractor builds records from parsed documents.
type Extractor struct {
	clk clock.Clock
	log *zap.Logger
}

// New creates an Extractor.
func New(clk clock.Clock, log *zap.Logger) *Extractor {
	return &Extractor{clk: clk, log: log}
}

// Page extracts every record on a listing page, in document order.
func (e *Extractor) Page(doc *dom.Document, desc sites.Descriptor, params Params) []jobs.Record {
	containers := doc.Find(dom.Root, desc.Container)
	records := make([]jobs.Record, 0, len(containers))
	for _, c := range containers {
		rec, ok := e.card(doc, c, desc, params)
		if !ok {
			continue
		}
		records = append(records, rec)
	}
	if len(containers) > 0 && len(records) == 0 {
		e.log.Debug("no cards survived extraction",
			zap.String("site", desc.Name),
			zap.Int("containers", len(containers)))
	}
	return records
}

// card extracts one result container. ok is false for misses and
// keyword-filtered records.
func (e *Extractor) card(doc *dom.Document, c int, desc sites.Descriptor, params Params) (jobs.Record, bool) {
	rec := jobs.Record{
		Source:    desc.Name,
		Location:  params.Location,
		ScrapedAt: jobs.Stamp(e.clk.Now()),
	}

	rec.Title = e.fieldText(doc, c, desc, sites.FieldTitle)
	rec.Company = e.fieldText(doc, c, desc, sites.FieldCompany)
	if loc := e.fieldText(doc, c, desc, sites.FieldLocation); loc != "" {
		rec.Location = loc
	}
	rec.Description = e.fieldText(doc, c, desc, sites.FieldDescription)
	rec.SourceURL = e.sourceURL(doc, c, desc)

	if rec.Title == "" {
		e.log.Debug("card yielded no title", zap.String("site", desc.Name))
		return jobs.Record{}, false
	}

	rec.Skills = e.skills(doc, c, desc, params, rec.Description)

	if !matchesKeywords(rec.Title, rec.Description, params.Keywords) {
		return jobs.Record{}, false
	}

	rec.ID = jobs.ID(desc.Name, rec.Title, rec.Company)
	return rec, true
}

func (e *Extractor) fieldText(doc *dom.Document, c int, desc sites.Descriptor, field string) string {
	sel, ok := desc.Field(field)
	if !ok {
		return ""
	}
	n := doc.FindFirst(c, sel)
	if n == -1 {
		return ""
	}
	return doc.Text(n)
}

// sourceURL resolves the posting link: the configured url selector
// first, then the title element, then any anchor in the card.
func (e *Extractor) sourceURL(doc *dom.Document, c int, desc sites.Descriptor) string {
	if sel, ok := desc.Field(sites.FieldURL); ok {
		if n := doc.FindFirst(c, sel); n != -1 {
			if u := anchorURL(doc, n, desc.BaseURL); u != "" {
				return u
			}
		}
	}
	if sel, ok := desc.Field(sites.FieldTitle); ok {
		if n := doc.FindFirst(c, sel); n != -1 {
			if u := anchorURL(doc, n, desc.BaseURL); u != "" {
				return u
			}
		}
	}
	return anchorURL(doc, c, desc.BaseURL)
}

// anchorURL returns n's own href, or the first descendant anchor's,
// resolved against base.
func anchorURL(doc *dom.Document, n int, base string) string {
	if href, ok := doc.Attr(n, "href"); ok && href != "" {
		return urlutil.Resolve(base, href)
	}
	if a := doc.FindFirst(n, dom.Selector{Tag: "a"}); a != -1 {
		if href, ok := doc.Attr(a, "href"); ok && href != "" {
			return urlutil.Resolve(base, href)
		}
	}
	return ""
}

func (e *Extractor) skills(doc *dom.Document, c int, desc sites.Descriptor, params Params, description string) []string {
	if sel, ok := desc.Field(sites.FieldSkills); ok {
		if n := doc.FindFirst(c, sel); n != -1 {
			if listed := splitSkills(doc.Text(n)); len(listed) > 0 {
				return listed
			}
		}
	}
	if params.Skills {
		return skillsFromDescription(description)
	}
	return nil
}

// splitSkills tokenizes a dedicated skills field on commas.
func splitSkills(text string) []string {
	parts := strings.Split(text, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func matchesKeywords(title, description string, keywords []string) bool {
	if len(keywords) == 0 {
		return true
	}
	t := strings.ToLower(title)
	d := strings.ToLower(description)
	for _, k := range keywords {
		k = strings.ToLower(k)
		if strings.Contains(t, k) || strings.Contains(d, k) {
			return true
		}
	}
	return false
}

// Detail extracts the posting description from a detail page: the
// first selector on the ladder with text wins, then optionally the
// largest text block on the page.
func (e *Extractor) Detail(doc *dom.Document, strat sites.DetailStrategy) string {
	for _, sel := range strat.Selectors {
		if n := doc.FindFirst(dom.Root, sel); n != -1 {
			if text := doc.Text(n); text != "" {
				return text
			}
		}
	}
	if !strat.LargestBlockFallback {
		return ""
	}
	minLen := strat.MinLength
	if minLen <= 0 {
		minLen = 100
	}
	best := ""
	for _, div := range doc.Find(dom.Root, dom.Selector{Tag: "div"}) {
		if t := doc.Text(div); len(t) > len(best) && len(t) > minLen {
			best = t
		}
	}
	return best
}
