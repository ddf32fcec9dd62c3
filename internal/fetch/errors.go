package fetch

import "fmt"

// StatusBotDetected is the nonstandard status LinkedIn serves instead
// of 403 when it decides a client is automated.
const StatusBotDetected = 999

// TransportError reports a network-level failure: DNS, dial, TLS, or a
// broken body read.
type TransportError struct {
	URL string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport error fetching %s: %v", e.URL, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// RateLimitedError reports a 429 that survived every retry.
type RateLimitedError struct {
	URL string
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("rate limited fetching %s", e.URL)
}

// BlockedError reports a bot block: 403, or 999 on LinkedIn.
type BlockedError struct {
	URL    string
	Status int
}

func (e *BlockedError) Error() string {
	return fmt.Sprintf("blocked with status %d fetching %s", e.Status, e.URL)
}

// HTTPError reports any other non-2xx status.
type HTTPError struct {
	URL    string
	Status int
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("http status %d fetching %s", e.Status, e.URL)
}

// ParseError reports a response body that could not be parsed into a
// document. The page is skipped, not retried.
type ParseError struct {
	URL string
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("unparseable response from %s: %v", e.URL, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }
