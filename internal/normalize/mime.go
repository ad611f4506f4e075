// Package normalize implements the response normaliser (C2): decompress,
// classify, charset-detect and transcode, beautify, and decide the minify
// flag and persistence representation for a recorded response body.
package normalize

import "strings"

// IsTextMime classifies a MIME type as text per spec.md §4.2 step 2: text
// iff MIME ∈ text/* ∪ application/{json,xml,javascript,xhtml+xml} ∪
// subtypes ending in +json/+xml ∪ image/svg+xml.
func IsTextMime(mime string) bool {
	mime = strings.ToLower(strings.TrimSpace(mime))
	if mime == "" {
		return false
	}
	if strings.HasPrefix(mime, "text/") {
		return true
	}
	switch mime {
	case "application/json", "application/xml", "application/javascript", "application/xhtml+xml", "image/svg+xml":
		return true
	}
	if strings.HasSuffix(mime, "+json") || strings.HasSuffix(mime, "+xml") {
		return true
	}
	return false
}

// BaseMime strips any parameters (e.g. "; charset=utf-8") from a
// content-type header value.
func BaseMime(contentType string) string {
	mime := contentType
	if idx := strings.Index(mime, ";"); idx >= 0 {
		mime = mime[:idx]
	}
	return strings.ToLower(strings.TrimSpace(mime))
}

// ContentTypeParam returns the value of param (e.g. "charset") from a
// content-type header, if present.
func ContentTypeParam(contentType, param string) (string, bool) {
	parts := strings.Split(contentType, ";")
	if len(parts) < 2 {
		return "", false
	}
	param = strings.ToLower(param)
	for _, p := range parts[1:] {
		p = strings.TrimSpace(p)
		kv := strings.SplitN(p, "=", 2)
		if len(kv) != 2 {
			continue
		}
		if strings.ToLower(strings.TrimSpace(kv[0])) == param {
			return strings.Trim(strings.TrimSpace(kv[1]), `"'`), true
		}
	}
	return "", false
}
