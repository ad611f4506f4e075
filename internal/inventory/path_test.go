package inventory

import (
	"strings"
	"testing"
)

func TestContentPathRoot(t *testing.T) {
	p, err := ContentPath("GET", "https://example.com/")
	if err != nil {
		t.Fatal(err)
	}
	if p != "get/https/example.com/index.html" {
		t.Fatalf("got %q", p)
	}
}

func TestContentPathNestedNoTrailingSlash(t *testing.T) {
	p, err := ContentPath("GET", "https://example.com/a/b/style.css")
	if err != nil {
		t.Fatal(err)
	}
	if p != "get/https/example.com/a/b/style.css" {
		t.Fatalf("got %q", p)
	}
}

func TestContentPathTrailingSlashGetsIndexHTML(t *testing.T) {
	p, err := ContentPath("GET", "https://example.com/a/b/")
	if err != nil {
		t.Fatal(err)
	}
	if p != "get/https/example.com/a/b/index.html" {
		t.Fatalf("got %q", p)
	}
}

func TestContentPathShortQuerySuffix(t *testing.T) {
	p, err := ContentPath("GET", "https://example.com/api?x=1")
	if err != nil {
		t.Fatal(err)
	}
	if p != "get/https/example.com/api~x=1" {
		t.Fatalf("got %q", p)
	}
}

func TestContentPathShortQuerySuffixWithExtension(t *testing.T) {
	p, err := ContentPath("GET", "https://example.com/script.js?v=2")
	if err != nil {
		t.Fatal(err)
	}
	if p != "get/https/example.com/script~v=2.js" {
		t.Fatalf("got %q", p)
	}
}

func TestContentPathLongQuerySuffixUsesSHA1(t *testing.T) {
	longQuery := strings.Repeat("a", 100)
	p, err := ContentPath("GET", "https://example.com/api?"+longQuery)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(p, ".~") {
		t.Fatalf("expected sha1 suffix marker, got %q", p)
	}
	// First 32 chars of "~"+query must appear verbatim.
	if !strings.Contains(p, "~"+longQuery[:31]) {
		t.Fatalf("expected truncated verbatim prefix, got %q", p)
	}
}

func TestContentPathTraversalIsCollapsed(t *testing.T) {
	p, err := ContentPath("GET", "https://example.com/../../etc/passwd")
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(p, "..") {
		t.Fatalf("traversal survived sanitisation: %q", p)
	}
	if strings.HasPrefix(p, "/") {
		t.Fatalf("path must be relative: %q", p)
	}
}

func TestContentPathDifferentMethodsDoNotCollide(t *testing.T) {
	g, _ := ContentPath("GET", "https://example.com/api")
	p, _ := ContentPath("POST", "https://example.com/api")
	if g == p {
		t.Fatalf("expected distinct paths for GET vs POST, got %q for both", g)
	}
}
