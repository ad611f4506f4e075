// Package inventory implements the on-disk inventory format: an index.json
// document plus a content tree, with atomic save and validating load (C1).
package inventory

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"net/url"
	"path"
	"strings"
)

// maxQuerySuffixLen is the verbatim-keepable length of the appended query
// suffix before it is truncated to a SHA-1 digest, per spec.md §4.1 and
// original_source/src/utils.rs::generate_file_path_from_url.
const maxQuerySuffixLen = 32

// ContentPath computes the relative path, inside contents/, at which a
// resource's body should be stored, given its method and absolute URL.
// Layout: <method-lower>/<scheme>/<host>/<path-components>[~query-suffix].
func ContentPath(method, rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("inventory: parse url %q: %w", rawURL, err)
	}
	scheme := u.Scheme
	if scheme == "" {
		scheme = "http"
	}
	host := u.Host
	if host == "" {
		host = "unknown-host"
	}

	segments := splitPathSegments(u.EscapedPath())
	segments = appendQuerySuffix(segments, u.RawQuery)

	parts := append([]string{sanitizeSegment(strings.ToLower(method)), sanitizeSegment(scheme), sanitizeSegment(host)}, segments...)
	rel := path.Join(parts...)
	return safeJoin(rel)
}

// splitPathSegments mirrors generate_file_path_from_url's handling of "/"
// and trailing-slash paths: "/" alone becomes "index.html", and any path
// ending in "/" gets "index.html" appended.
func splitPathSegments(p string) []string {
	if p == "" || p == "/" {
		return []string{"index.html"}
	}
	trailingSlash := strings.HasSuffix(p, "/")
	trimmed := strings.Trim(p, "/")
	var segs []string
	if trimmed != "" {
		for _, s := range strings.Split(trimmed, "/") {
			segs = append(segs, sanitizeSegment(s))
		}
	}
	if trailingSlash || len(segs) == 0 {
		segs = append(segs, "index.html")
	}
	return segs
}

// appendQuerySuffix appends the query-string suffix to the last path
// segment, splitting it from the file extension when present.
func appendQuerySuffix(segments []string, rawQuery string) []string {
	if rawQuery == "" {
		return segments
	}
	last := segments[len(segments)-1]
	suffix := querySuffix(rawQuery)

	ext := path.Ext(last)
	base := strings.TrimSuffix(last, ext)
	segments[len(segments)-1] = base + suffix + ext
	return segments
}

// querySuffix implements the ~k=v[&k2=v2]/~<first32>.~<sha1hex> rule.
func querySuffix(rawQuery string) string {
	encoded := "~" + sanitizeQueryForFilename(rawQuery)
	if len(encoded) <= maxQuerySuffixLen+1 { // +1 for the leading '~'
		return encoded
	}
	keep := encoded[:maxQuerySuffixLen+1]
	remainder := encoded[maxQuerySuffixLen+1:]
	sum := sha1.Sum([]byte(remainder))
	return keep + ".~" + hex.EncodeToString(sum[:])
}

// sanitizeQueryForFilename keeps the raw query mostly verbatim (matching
// the original's behavior of URL-encoding it for filesystem safety) while
// replacing the handful of characters that are unsafe on common
// filesystems.
func sanitizeQueryForFilename(q string) string {
	var b strings.Builder
	for _, r := range q {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|':
			b.WriteByte('_')
		default:
			b.WriteRune(r)
		}
	}
	return b.String()
}

// sanitizeSegment makes one path segment filesystem-safe: percent-decodes
// where possible, collapses ".." to avoid traversal, and replaces reserved
// characters.
func sanitizeSegment(seg string) string {
	if decoded, err := url.PathUnescape(seg); err == nil {
		seg = decoded
	}
	if seg == ".." || seg == "." {
		return "_"
	}
	var b strings.Builder
	for _, r := range seg {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|':
			b.WriteByte('_')
		default:
			b.WriteRune(r)
		}
	}
	out := b.String()
	if out == "" {
		out = "_"
	}
	return out
}

// safeJoin collapses any residual ".." traversal and asserts the resulting
// path is relative and stays inside the content tree root, satisfying P7.
func safeJoin(rel string) (string, error) {
	cleaned := path.Clean("/" + rel)
	cleaned = strings.TrimPrefix(cleaned, "/")
	if cleaned == "" || cleaned == "." {
		return "", fmt.Errorf("inventory: empty content path")
	}
	if strings.HasPrefix(cleaned, "../") || cleaned == ".." {
		return "", fmt.Errorf("inventory: content path escapes content root: %q", rel)
	}
	return cleaned, nil
}
