package playback

import (
	"net/http"
	"net/url"

	"github.com/ideamans/go-http-playback-proxy/internal/domain"
)

// Key identifies a transaction by method, authority and URI, matching
// spec.md §4.7: "(method, host, path, query)".
type Key struct {
	Method string
	Host   string // empty string means "no authority known"
	Path   string
	Query string
}

// KeyForRequest derives a Key from an inbound playback request, preferring
// the Host header, then falling back to the request URL's authority, per
// spec.md §4.7's "host = Host header if present, else authority from the
// request URI, else ∅".
func KeyForRequest(r *http.Request) Key {
	host := r.Host
	if host == "" && r.URL != nil {
		host = r.URL.Host
	}
	return Key{Method: r.Method, Host: host, Path: r.URL.Path, Query: r.URL.RawQuery}
}

// KeyForRecordedURL derives a Key from a Resource's recorded method+URL
// pair, used to index the Matcher's table.
func KeyForRecordedURL(method, rawURL string) Key {
	u, err := url.Parse(rawURL)
	if err != nil {
		return Key{Method: method}
	}
	return Key{Method: method, Host: u.Host, Path: u.Path, Query: u.RawQuery}
}

// entry pairs a Key with the transaction insertion index, so ties break in
// recording order.
type entry struct {
	key   Key
	index int
	tx    *domain.Transaction
}

// Matcher implements spec.md §4.7's matching rule deterministically: try
// exact key equality first; if nothing matches and one side's host is
// empty, retry with host ignored on that side. The first match in
// insertion order wins.
type Matcher struct {
	entries []entry
}

// NewMatcher builds a Matcher over txs, indexed by recorded method+URL, in
// the order they were loaded from the inventory (spec.md's "insertion
// order of the inventory").
func NewMatcher(txs []*domain.Transaction) *Matcher {
	m := &Matcher{entries: make([]entry, 0, len(txs))}
	for i, tx := range txs {
		m.entries = append(m.entries, entry{key: KeyForRecordedURL(tx.Method, tx.URL), index: i, tx: tx})
	}
	return m
}

// Match finds the transaction for an inbound request's key, implementing
// the two-phase exact-then-host-ignored-fallback algorithm (Open Question
// decision 5 in DESIGN.md: the original Rust implementation instead tries
// the fallback unconditionally in a single pass, which can match a
// request that should have failed exactly because the recording happened
// to have exactly one resource for that method+path+query across
// different hosts — we only fall back when host is genuinely absent on
// one side, per spec.md's literal wording).
func (m *Matcher) Match(k Key) (*domain.Transaction, bool) {
	for _, e := range m.entries {
		if e.key == k {
			return e.tx, true
		}
	}
	if k.Host != "" {
		for _, e := range m.entries {
			if e.key.Host == "" && e.key.Method == k.Method && e.key.Path == k.Path && e.key.Query == k.Query {
				return e.tx, true
			}
		}
		return nil, false
	}
	for _, e := range m.entries {
		if e.key.Method == k.Method && e.key.Path == k.Path && e.key.Query == k.Query {
			return e.tx, true
		}
	}
	return nil, false
}
