package http1

import "net/url"

// URL is the collaborator interface the client state machine consumes
// when it finalizes a request, per spec.md §6. Parsing and formatting
// are explicitly out of this package's scope; a caller supplies any
// implementation it likes.
type URL interface {
	// Hostname returns the percent-decoded host, used to fill the Host
	// header when the caller hasn't set one explicitly.
	Hostname() string
	// PathAndQueryAndFragment returns the percent-encoded request
	// target, or "" when absent (the writer substitutes "/").
	PathAndQueryAndFragment() string
	// Valid reports whether the URL is usable at all.
	Valid() bool
}

// URLAdapter satisfies URL using the standard library's net/url.URL, so
// callers don't need to hand-write the three accessor methods. It
// reintroduces no parsing logic of its own.
type URLAdapter struct {
	*url.URL
}

// NewURLAdapter parses raw with net/url.Parse and wraps the result. An
// unparseable raw yields an adapter whose Valid() returns false.
func NewURLAdapter(raw string) URLAdapter {
	u, err := url.Parse(raw)
	if err != nil {
		return URLAdapter{URL: &url.URL{}}
	}
	return URLAdapter{URL: u}
}

func (a URLAdapter) Hostname() string {
	if a.URL == nil {
		return ""
	}
	return a.URL.Hostname()
}

func (a URLAdapter) PathAndQueryAndFragment() string {
	if a.URL == nil {
		return ""
	}
	out := a.URL.EscapedPath()
	if a.URL.RawQuery != "" {
		out += "?" + a.URL.RawQuery
	}
	if a.URL.Fragment != "" {
		out += "#" + a.URL.EscapedFragment()
	}
	return out
}

func (a URLAdapter) Valid() bool {
	return a.URL != nil && a.URL.Host != ""
}
