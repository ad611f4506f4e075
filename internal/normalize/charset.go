package normalize

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"golang.org/x/net/html/charset"
	"golang.org/x/text/encoding/htmlindex"
)

// htmlMetaScanWindow and cssAtCharsetScanWindow bound how far into the body
// we scan for an in-content charset declaration, matching
// original_source/src/utils.rs::extract_charset_from_html (8KB) and
// extract_charset_from_css (1KB).
const (
	htmlMetaScanWindow     = 8 * 1024
	cssAtCharsetScanWindow = 1024
)

var (
	metaCharsetRe     = regexp.MustCompile(`(?is)<meta[^>]+charset\s*=\s*["']?([a-zA-Z0-9_\-]+)["']?`)
	metaHTTPEquivRe   = regexp.MustCompile(`(?is)<meta[^>]+http-equiv\s*=\s*["']?content-type["']?[^>]*content\s*=\s*["']?[^"'>]*charset=([a-zA-Z0-9_\-]+)`)
	xmlDeclCharsetRe  = regexp.MustCompile(`(?is)<\?xml[^>]+encoding\s*=\s*["']([a-zA-Z0-9_\-]+)["']`)
	cssAtCharsetRe    = regexp.MustCompile(`(?is)^\s*@charset\s+["']([a-zA-Z0-9_\-]+)["']\s*;`)
)

// DetectCharset implements spec.md §4.2 step 3's priority chain:
// content-type parameter → <meta charset>/XML declaration → BOM → heuristic.
func DetectCharset(contentType string, body []byte, isHTML, isCSS, isXML bool) string {
	if cs, ok := ContentTypeParam(contentType, "charset"); ok && cs != "" {
		return strings.ToLower(cs)
	}
	if isHTML {
		window := body
		if len(window) > htmlMetaScanWindow {
			window = window[:htmlMetaScanWindow]
		}
		if m := metaCharsetRe.FindSubmatch(window); m != nil {
			return strings.ToLower(string(m[1]))
		}
		if m := metaHTTPEquivRe.FindSubmatch(window); m != nil {
			return strings.ToLower(string(m[1]))
		}
	}
	if isXML {
		window := body
		if len(window) > htmlMetaScanWindow {
			window = window[:htmlMetaScanWindow]
		}
		if m := xmlDeclCharsetRe.FindSubmatch(window); m != nil {
			return strings.ToLower(string(m[1]))
		}
	}
	if isCSS {
		window := body
		if len(window) > cssAtCharsetScanWindow {
			window = window[:cssAtCharsetScanWindow]
		}
		if m := cssAtCharsetRe.FindSubmatch(window); m != nil {
			return strings.ToLower(string(m[1]))
		}
	}
	if cs, ok := detectBOM(body); ok {
		return cs
	}
	// Heuristic fallback: golang.org/x/net/html/charset's whole-document
	// sniffer (meta-tag + byte-frequency based), the same library the
	// teacher's module (golang.org/x/net) already ships.
	_, name, ok := charset.DetermineEncoding(body, contentType)
	if ok && name != "" {
		return strings.ToLower(name)
	}
	if utf8.Valid(body) {
		return "utf-8"
	}
	return "windows-1252"
}

func detectBOM(body []byte) (string, bool) {
	switch {
	case len(body) >= 3 && body[0] == 0xEF && body[1] == 0xBB && body[2] == 0xBF:
		return "utf-8", true
	case len(body) >= 2 && body[0] == 0xFE && body[1] == 0xFF:
		return "utf-16be", true
	case len(body) >= 2 && body[0] == 0xFF && body[1] == 0xFE:
		return "utf-16le", true
	}
	return "", false
}

// ToUTF8 transcodes body from the named charset to UTF-8. If the charset is
// already utf-8 (or unrecognised), body is returned unchanged.
func ToUTF8(body []byte, charsetName string) ([]byte, error) {
	name := strings.ToLower(strings.TrimSpace(charsetName))
	if name == "" || name == "utf-8" || name == "utf8" {
		return body, nil
	}
	enc, err := htmlindex.Get(name)
	if err != nil {
		return body, err
	}
	out, err := enc.NewDecoder().Bytes(body)
	if err != nil {
		return body, err
	}
	return out, nil
}

// RewriteCharsetDeclarations rewrites an in-content <meta charset>,
// http-equiv content-type, XML declaration, or @charset rule to utf-8,
// matching spec.md §4.2 step 3's "rewrite any in-content charset
// declaration to UTF-8".
func RewriteCharsetDeclarations(body string, isHTML, isCSS, isXML bool) string {
	if isHTML {
		body = metaCharsetRe.ReplaceAllString(body, `<meta charset="utf-8"`)
		body = metaHTTPEquivRe.ReplaceAllStringFunc(body, func(m string) string {
			return metaHTTPEquivRe.ReplaceAllString(m, `<meta http-equiv="content-type" content="text/html; charset=utf-8`)
		})
	}
	if isXML {
		body = xmlDeclCharsetRe.ReplaceAllString(body, `<?xml encoding="utf-8"`)
	}
	if isCSS {
		body = cssAtCharsetRe.ReplaceAllString(body, `@charset "utf-8";`)
	}
	return body
}
