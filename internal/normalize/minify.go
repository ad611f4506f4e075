package normalize

import "strings"

// Minify re-minifies body for mime on playback, matching
// original_source/src/playback/transaction.rs::minify_content. Hand-rolled
// whitespace stripping, not a general-purpose minifier: the spec's
// Non-goal (b) explicitly accepts that playback minification is lossy and
// need not reproduce the original minified bytes, so a simple deterministic
// pass (the same approach the Rust original takes) is sufficient and
// keeps chunk sizes/content-length internally consistent.
func Minify(mime string, body string) string {
	switch mime {
	case "text/html", "application/xhtml+xml":
		return minifyHTML(body)
	case "text/css":
		return minifyCSS(body)
	case "application/javascript", "text/javascript":
		return minifyJS(body)
	default:
		return body
	}
}

// minifyHTML collapses runs of whitespace outside tags to a single space.
func minifyHTML(body string) string {
	var out strings.Builder
	inTag := false
	lastWasSpace := false
	for _, r := range body {
		switch {
		case r == '<':
			inTag = true
			out.WriteRune(r)
			lastWasSpace = false
		case r == '>':
			inTag = false
			out.WriteRune(r)
			lastWasSpace = false
		case inTag:
			out.WriteRune(r)
		case r == ' ' || r == '\t' || r == '\n' || r == '\r':
			if !lastWasSpace {
				out.WriteRune(' ')
				lastWasSpace = true
			}
		default:
			out.WriteRune(r)
			lastWasSpace = false
		}
	}
	return strings.TrimSpace(out.String())
}

// minifyCSS trims each line and joins non-empty lines with no separator.
func minifyCSS(body string) string {
	var b strings.Builder
	for _, line := range strings.Split(body, "\n") {
		t := strings.TrimSpace(line)
		if t == "" {
			continue
		}
		b.WriteString(t)
	}
	return b.String()
}

// minifyJS trims each line, drops whole-line "//" comments, and joins with
// a newline to remain syntactically safe for ASI (automatic semicolon
// insertion).
func minifyJS(body string) string {
	var b strings.Builder
	first := true
	for _, line := range strings.Split(body, "\n") {
		t := strings.TrimSpace(line)
		if t == "" || strings.HasPrefix(t, "//") {
			continue
		}
		if !first {
			b.WriteString("\n")
		}
		b.WriteString(t)
		first = false
	}
	return b.String()
}
