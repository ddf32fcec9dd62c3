// Package sites holds the descriptors that drive a crawl: where a job
// board is searched, how its results paginate, which selectors locate
// each field, and the header profile the site expects. Adding a board
// is a catalog entry or a config stanza, not new code.
package sites

import (
	"fmt"
	"strings"
	"time"

	"github.com/careermap/jobradar/internal/dom"
)

// Field names used as keys in a Descriptor's selector map.
const (
	FieldTitle       = "title"
	FieldCompany     = "company"
	FieldLocation    = "location"
	FieldDescription = "description"
	FieldSkills      = "skills"
	FieldURL         = "url"
)

// CookieSpec describes one synthetic session cookie. The value is
// assembled as Prefix + random alphanumeric run + unix timestamp (when
// Stamp is set) + Suffix.
type CookieSpec struct {
	Name    string `mapstructure:"name"`
	Prefix  string `mapstructure:"prefix"`
	RandLen int    `mapstructure:"rand_len"`
	Stamp   bool   `mapstructure:"stamp"`
	Suffix  string `mapstructure:"suffix"`
}

// DetailStrategy configures posting-page enrichment for sites whose
// listing cards carry only a teaser description.
type DetailStrategy struct {
	Selectors []dom.Selector `mapstructure:"selectors"`
	// LargestBlockFallback scans every div for the longest text run
	// when no selector hits.
	LargestBlockFallback bool `mapstructure:"largest_block_fallback"`
	// MinLength is the smallest text run the fallback accepts.
	MinLength int `mapstructure:"min_length"`
	// MaxFetches caps detail-page requests per site per crawl.
	MaxFetches int `mapstructure:"max_fetches"`
	// Overrides for the detail request; empty values inherit from the
	// listing descriptor.
	UserAgents []string     `mapstructure:"user_agents"`
	Cookies    []CookieSpec `mapstructure:"cookies"`
	Referer    string       `mapstructure:"referer"`
}

// Descriptor defines one job board.
type Descriptor struct {
	Name      string `mapstructure:"name"`
	Enabled   bool   `mapstructure:"enabled"`
	BaseURL   string `mapstructure:"base_url"`
	SearchURL string `mapstructure:"search_url"`

	PageParam string `mapstructure:"page_param"`
	PageStart int    `mapstructure:"page_start"`
	PageStep  int    `mapstructure:"page_step"`
	MaxPages  int    `mapstructure:"max_pages"`

	Container dom.Selector            `mapstructure:"container"`
	Fields    map[string]dom.Selector `mapstructure:"fields"`

	Referer    string          `mapstructure:"referer"`
	Cookies    []CookieSpec    `mapstructure:"cookies"`
	UserAgents []string        `mapstructure:"user_agents"`
	BaseDelay  time.Duration   `mapstructure:"base_delay"`
	Detail     *DetailStrategy `mapstructure:"detail"`
}

// Field returns the selector for a named field, if configured.
func (d Descriptor) Field(name string) (dom.Selector, bool) {
	sel, ok := d.Fields[name]
	if !ok || sel.IsZero() {
		return dom.Selector{}, false
	}
	return sel, true
}

// PageValue maps a zero-based page index onto the site's pagination
// parameter value.
func (d Descriptor) PageValue(i int) int {
	step := d.PageStep
	if step <= 0 {
		step = 1
	}
	return d.PageStart + i*step
}

// Validate reports descriptor problems that would break a crawl.
func (d Descriptor) Validate() error {
	if d.Name == "" {
		return fmt.Errorf("descriptor missing name")
	}
	if d.BaseURL == "" {
		return fmt.Errorf("site %s: missing base_url", d.Name)
	}
	if d.SearchURL == "" {
		return fmt.Errorf("site %s: missing search_url", d.Name)
	}
	if d.Container.IsZero() {
		return fmt.Errorf("site %s: missing container selector", d.Name)
	}
	if _, ok := d.Field(FieldTitle); !ok {
		return fmt.Errorf("site %s: missing title selector", d.Name)
	}
	return nil
}

// Select filters descriptors by name, case-insensitively. An empty name
// list keeps every enabled descriptor; explicit names also admit
// disabled ones.
func Select(all []Descriptor, names []string) ([]Descriptor, error) {
	if len(names) == 0 {
		out := make([]Descriptor, 0, len(all))
		for _, d := range all {
			if d.Enabled {
				out = append(out, d)
			}
		}
		return out, nil
	}
	byName := make(map[string]Descriptor, len(all))
	for _, d := range all {
		byName[strings.ToLower(d.Name)] = d
	}
	out := make([]Descriptor, 0, len(names))
	for _, n := range names {
		d, ok := byName[strings.ToLower(n)]
		if !ok {
			return nil, fmt.Errorf("unknown site %q", n)
		}
		out = append(out, d)
	}
	return out, nil
}
