package normalize

import (
	"strings"

	"github.com/alecthomas/chroma/v2"
	"github.com/alecthomas/chroma/v2/lexers"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// voidElements is the exact list original_source/src/beautify.rs::
// pretty_html special-cases as self-closing with no children to indent.
var voidElements = map[string]bool{
	"area": true, "base": true, "br": true, "col": true, "embed": true,
	"hr": true, "img": true, "input": true, "link": true, "meta": true,
	"param": true, "source": true, "track": true, "wbr": true,
}

// Beautify dispatches to the MIME-appropriate beautifier, matching
// original_source/src/recording/processor.rs::beautify_content's exact
// string dispatch. Unrecognised MIME types pass through unchanged.
func Beautify(mime string, body string) string {
	switch mime {
	case "text/html", "application/xhtml+xml":
		return BeautifyHTML(body)
	case "application/javascript", "text/javascript":
		return BeautifyJS(body)
	case "text/css":
		return BeautifyCSS(body)
	default:
		return body
	}
}

// BeautifyHTML parses body and re-renders it as an indented tree,
// mirroring original_source/src/beautify.rs::pretty_html.
func BeautifyHTML(body string) string {
	doc, err := html.Parse(strings.NewReader(body))
	if err != nil {
		return body
	}
	var out strings.Builder
	prettyHTMLNode(&out, doc, 0)
	return strings.TrimSpace(out.String())
}

func prettyHTMLNode(out *strings.Builder, n *html.Node, depth int) {
	switch n.Type {
	case html.DocumentNode:
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			prettyHTMLNode(out, c, depth)
		}
	case html.DoctypeNode:
		indent(out, depth)
		out.WriteString("<!DOCTYPE " + n.Data + ">\n")
	case html.CommentNode:
		indent(out, depth)
		out.WriteString("<!--" + n.Data + "-->\n")
	case html.TextNode:
		text := strings.TrimSpace(n.Data)
		if text != "" {
			indent(out, depth)
			out.WriteString(escapeText(text) + "\n")
		}
	case html.ElementNode:
		indent(out, depth)
		out.WriteString("<" + n.Data)
		for _, a := range n.Attr {
			out.WriteString(" " + a.Key + `="` + escapeAttr(a.Val) + `"`)
		}
		if voidElements[n.Data] || n.DataAtom != 0 && isVoidAtom(n.DataAtom) {
			out.WriteString(">\n")
			return
		}
		out.WriteString(">\n")
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			prettyHTMLNode(out, c, depth+1)
		}
		indent(out, depth)
		out.WriteString("</" + n.Data + ">\n")
	default:
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			prettyHTMLNode(out, c, depth)
		}
	}
}

func isVoidAtom(a atom.Atom) bool { return voidElements[a.String()] }

func indent(out *strings.Builder, depth int) {
	for i := 0; i < depth; i++ {
		out.WriteString("  ")
	}
}

func escapeText(s string) string {
	s = strings.ReplaceAll(s, "&", "&amp;")
	s = strings.ReplaceAll(s, "<", "&lt;")
	s = strings.ReplaceAll(s, ">", "&gt;")
	return s
}

func escapeAttr(s string) string {
	s = strings.ReplaceAll(s, "&", "&amp;")
	s = strings.ReplaceAll(s, `"`, "&quot;")
	return s
}

// BeautifyCSS tokenizes body with chroma's CSS lexer and re-emits it with
// one declaration/rule per line and brace-depth indentation, a heuristic
// stand-in for lightningcss's full-AST pretty printer (original_source/src/
// beautify.rs::format_css).
func BeautifyCSS(body string) string {
	lexer := lexers.Get("css")
	if lexer == nil {
		return body
	}
	return beautifyWithLexer(lexer, body)
}

// BeautifyJS tokenizes body with chroma's JavaScript lexer and re-emits it
// with one statement per line and brace-depth indentation, a heuristic
// stand-in for swc's full-AST pretty printer (original_source/src/
// beautify.rs::format_javascript).
func BeautifyJS(body string) string {
	lexer := lexers.Get("javascript")
	if lexer == nil {
		return body
	}
	return beautifyWithLexer(lexer, body)
}

// beautifyWithLexer drives the shared brace/semicolon-aware re-emission
// used by both BeautifyCSS and BeautifyJS.
func beautifyWithLexer(lexer chroma.Lexer, body string) string {
	iter, err := lexer.Tokenise(nil, body)
	if err != nil {
		return body
	}
	var out strings.Builder
	depth := 0
	atLineStart := true
	writeIndent := func() {
		for i := 0; i < depth; i++ {
			out.WriteString("  ")
		}
		atLineStart = false
	}
	for _, tok := range iter.Tokens() {
		val := tok.Value
		for _, piece := range splitKeepingPunct(val) {
			piece = strings.TrimSpace(piece)
			if piece == "" {
				continue
			}
			switch piece {
			case "{":
				if atLineStart {
					writeIndent()
				} else {
					out.WriteString(" ")
				}
				out.WriteString("{\n")
				depth++
				atLineStart = true
			case "}":
				depth--
				if depth < 0 {
					depth = 0
				}
				if atLineStart {
					writeIndent()
				}
				out.WriteString("}\n")
				atLineStart = true
			case ";":
				out.WriteString(";\n")
				atLineStart = true
			default:
				if atLineStart {
					writeIndent()
				} else {
					out.WriteString(" ")
				}
				out.WriteString(piece)
			}
		}
	}
	return strings.TrimSpace(out.String())
}

// splitKeepingPunct splits a token's raw value on the brace/semicolon
// punctuation that drives line breaks, keeping the punctuation characters
// as their own pieces.
func splitKeepingPunct(s string) []string {
	var pieces []string
	var cur strings.Builder
	flush := func() {
		if cur.Len() > 0 {
			pieces = append(pieces, cur.String())
			cur.Reset()
		}
	}
	for _, r := range s {
		switch r {
		case '{', '}', ';':
			flush()
			pieces = append(pieces, string(r))
		default:
			cur.WriteRune(r)
		}
	}
	flush()
	return pieces
}

// CountLines counts non-empty lines, used to compare beautified vs
// original line counts for the minify heuristic (spec.md §4.2 step 4). A
// non-empty string made only of blank lines counts as 1.
func CountLines(s string) int {
	if s == "" {
		return 0
	}
	lines := strings.Split(s, "\n")
	n := 0
	for _, l := range lines {
		if strings.TrimSpace(l) != "" {
			n++
		}
	}
	if n == 0 {
		return 1
	}
	return n
}
