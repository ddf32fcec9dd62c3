// Package headers assembles the browser impersonation surface of a
// request: rotating user agents, client-hint headers, and the synthetic
// session cookies some boards require before serving real markup.
package headers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/careermap/jobradar/internal/randsrc"
	"github.com/careermap/jobradar/internal/sites"
)

// GenericAgents is the default user-agent pool for sites without a
// dedicated one.
var GenericAgents = []string{
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
	"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.0 Safari/605.1.15",
	"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:122.0) Gecko/20100101 Firefox/122.0",
	"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/119.0.0.0 Safari/537.36",
	"Mozilla/5.0 (iPad; CPU OS 16_6 like Mac OS X) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/16.6 Mobile/15E148 Safari/604.1",
}

// Agents returns pool when non-empty, else the generic pool.
func Agents(pool []string) []string {
	if len(pool) > 0 {
		return pool
	}
	return GenericAgents
}

// PickAgent draws a random agent from pool and returns it with its
// index, so a caller can rotate away from it after a block.
func PickAgent(src randsrc.Source, pool []string) (string, int) {
	pool = Agents(pool)
	i := src.Intn(len(pool))
	return pool[i], i
}

// NextAgent returns the agent after index i, wrapping around.
func NextAgent(pool []string, i int) (string, int) {
	pool = Agents(pool)
	i = (i + 1) % len(pool)
	return pool[i], i
}

// Apply sets the standard document-navigation headers with lightly
// randomized fingerprint values.
func Apply(h http.Header, src randsrc.Source) {
	h.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,*/*;q=0.8")
	h.Set("Accept-Language", "en-US,en;q=0.5")
	h.Set("Connection", "keep-alive")
	h.Set("Upgrade-Insecure-Requests", "1")
	h.Set("Sec-Fetch-Dest", "document")
	h.Set("Sec-Fetch-Mode", "navigate")
	h.Set("Sec-Fetch-Site", "none")
	h.Set("Sec-Fetch-User", "?1")
	h.Set("Cache-Control", "max-age=0")
	h.Set("Viewport-Width", strconv.Itoa(1200+src.Intn(400)))
	h.Set("DPR", strconv.Itoa(1+src.Intn(2)))
	h.Set("Sec-CH-UA", `"Chromium";v="110"`)
	h.Set("Sec-CH-UA-Mobile", "?0")
	h.Set("Sec-CH-UA-Platform", `"Windows"`)
}

const alphanum = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"

// RandString returns n random alphanumeric characters.
func RandString(src randsrc.Source, n int) string {
	var b strings.Builder
	b.Grow(n)
	for i := 0; i < n; i++ {
		b.WriteByte(alphanum[src.Intn(len(alphanum))])
	}
	return b.String()
}

// CookieHeader renders the specs into a Cookie header value. now is the
// unix-seconds timestamp substituted for stamped cookies.
func CookieHeader(src randsrc.Source, now int64, specs []sites.CookieSpec) string {
	if len(specs) == 0 {
		return ""
	}
	parts := make([]string, 0, len(specs))
	for _, c := range specs {
		var v strings.Builder
		v.WriteString(c.Prefix)
		if c.RandLen > 0 {
			v.WriteString(RandString(src, c.RandLen))
		}
		if c.Stamp {
			v.WriteString(strconv.FormatInt(now, 10))
		}
		v.WriteString(c.Suffix)
		parts = append(parts, c.Name+"="+v.String())
	}
	return strings.Join(parts, "; ")
}
