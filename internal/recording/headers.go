package recording

import (
	"net/http"
	"strings"

	"github.com/ideamans/go-http-playback-proxy/internal/domain"
)

// hopByHopHeaders is the exact list spec.md §4.8 and the teacher's
// httpproxy.go::removeHopHeaders name.
var hopByHopHeaders = []string{
	"Connection", "Proxy-Connection", "Keep-Alive", "Proxy-Authenticate",
	"Proxy-Authorization", "Te", "Trailer", "Transfer-Encoding", "Upgrade",
}

// RemoveHopHeaders strips hop-by-hop headers from h in place.
func RemoveHopHeaders(h http.Header) {
	// Connection may additionally name extra headers to strip (RFC 7230
	// §6.1), e.g. "Connection: X-Custom"; these are read before Connection
	// itself is deleted below.
	for _, v := range h.Values("Connection") {
		for _, tok := range strings.Split(v, ",") {
			h.Del(strings.TrimSpace(tok))
		}
	}
	for _, name := range hopByHopHeaders {
		h.Del(name)
	}
}

// CaptureHeaders converts an http.Header into domain.Headers, lowercasing
// names and preserving multi-value order, matching
// original_source/src/recording/hudsucker_handler.rs's HeaderValue
// widening-on-second-occurrence behavior.
func CaptureHeaders(h http.Header) domain.Headers {
	out := domain.Headers{}
	for name, values := range h {
		lower := strings.ToLower(name)
		for _, v := range values {
			out.Add(lower, v)
		}
	}
	return out
}
