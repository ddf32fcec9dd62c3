// Package urlutil implements the URL conventions of listing crawls:
// resolving scraped hrefs against a site base, filling search templates,
// and appending pagination parameters.
package urlutil

import (
	"net/url"
	"strconv"
	"strings"
)

// Resolve turns an href scraped from a page into an absolute URL.
// Absolute hrefs pass through untouched, root-relative hrefs join the
// scheme and host of base, and bare-relative hrefs join base truncated
// at its last path segment.
func Resolve(base, href string) string {
	if href == "" {
		return ""
	}
	if strings.HasPrefix(href, "http") {
		return href
	}
	if strings.HasPrefix(href, "/") {
		i := strings.Index(base, "://")
		if i == -1 {
			return base + href
		}
		if j := strings.IndexByte(base[i+3:], '/'); j != -1 {
			return base[:i+3+j] + href
		}
		return base + href
	}
	// Past index 8 a slash is part of the path, not the scheme
	// separator.
	if i := strings.LastIndexByte(base, '/'); i > 8 {
		return base[:i+1] + href
	}
	if !strings.HasSuffix(base, "/") {
		return base + "/" + href
	}
	return base + href
}

// Escape percent-encodes a value for use inside a query string, with
// spaces as %20.
func Escape(s string) string {
	return strings.ReplaceAll(url.QueryEscape(s), "+", "%20")
}

// SearchURL fills the {job_title} and {location} placeholders of a
// search template with percent-encoded values.
func SearchURL(tmpl, title, location string) string {
	r := strings.NewReplacer(
		"{job_title}", Escape(title),
		"{location}", Escape(location),
	)
	return r.Replace(tmpl)
}

// PageURL appends the pagination parameter for page to a search URL,
// choosing ? or & based on the existing query. An empty param returns
// the URL unchanged.
func PageURL(u, param string, page int) string {
	if param == "" {
		return u
	}
	sep := "?"
	if strings.ContainsRune(u, '?') {
		sep = "&"
	}
	return u + sep + param + "=" + strconv.Itoa(page)
}

// Host extracts the hostname of a URL, or "" when it cannot be parsed.
func Host(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return ""
	}
	return u.Hostname()
}
