package normalize

import (
	"testing"

	"github.com/ideamans/go-http-playback-proxy/internal/domain"
)

func TestIsTextMime(t *testing.T) {
	cases := map[string]bool{
		"text/html":                 true,
		"text/css":                  true,
		"application/json":          true,
		"application/javascript":    true,
		"image/svg+xml":             true,
		"application/vnd.api+json":  true,
		"application/octet-stream":  false,
		"image/png":                 false,
		"":                          false,
	}
	for mime, want := range cases {
		if got := IsTextMime(mime); got != want {
			t.Errorf("IsTextMime(%q) = %v, want %v", mime, got, want)
		}
	}
}

func TestBaseMimeStripsParams(t *testing.T) {
	if got := BaseMime("text/html; charset=utf-8"); got != "text/html" {
		t.Fatalf("got %q", got)
	}
}

func TestContentTypeParam(t *testing.T) {
	if v, ok := ContentTypeParam("text/html; charset=UTF-8", "charset"); !ok || v != "UTF-8" {
		t.Fatalf("got %q %v", v, ok)
	}
	if _, ok := ContentTypeParam("text/html", "charset"); ok {
		t.Fatal("expected no charset param")
	}
}

func TestApplySmallHTMLInlinesAsUTF8(t *testing.T) {
	r := domain.NewResource("GET", "https://example.com/")
	Apply(nil, nil, &r, []byte("<html><body>hi</body></html>"), "text/html; charset=utf-8")
	if r.ContentUTF8 == nil {
		t.Fatal("expected small text body to be inlined")
	}
	if r.ContentCharset == nil || *r.ContentCharset != "utf-8" {
		t.Fatalf("expected charset utf-8, got %v", r.ContentCharset)
	}
	if r.Minify {
		t.Fatal("did not expect minify=true for a body under minifyByteFloor")
	}
}

func TestApplyDetectsMinifiedJS(t *testing.T) {
	minified := "var a=1;function f(){return a;}"
	// Pad the body so it clears the minifyByteFloor.
	padded := minified + "\n// " + string(make([]byte, minifyByteFloor))
	r := domain.NewResource("GET", "https://example.com/script.js")
	Apply(nil, nil, &r, []byte(padded), "application/javascript")
	if r.ContentTypeMime == nil || *r.ContentTypeMime != "application/javascript" {
		t.Fatalf("expected mime to be recorded, got %v", r.ContentTypeMime)
	}
	if !r.Minify {
		t.Fatal("expected minify=true for a minified JS body above minifyByteFloor")
	}
}

func TestApplyBinaryGoesToBase64WhenSmall(t *testing.T) {
	r := domain.NewResource("GET", "https://example.com/x.bin")
	Apply(nil, nil, &r, []byte{0x00, 0x01, 0x02, 0x03}, "application/octet-stream")
	if r.ContentBase64 == nil {
		t.Fatal("expected small binary body to be base64-inlined")
	}
}

func TestApplyEmptyBodyIsBinaryAndUnset(t *testing.T) {
	r := domain.NewResource("GET", "https://example.com/empty")
	Apply(nil, nil, &r, []byte{}, "text/plain")
	if r.ContentBase64 != nil || r.ContentFilePath != nil || r.ContentUTF8 != nil {
		t.Fatal("expected no content representation for an empty body")
	}
}

func TestApplyLargeTextGoesToFile(t *testing.T) {
	big := make([]byte, inlineTextThreshold+100)
	for i := range big {
		big[i] = 'a'
	}
	r := domain.NewResource("GET", "https://example.com/big.txt")
	Apply(nil, nil, &r, big, "text/plain")
	if r.ContentFilePath == nil {
		t.Fatal("expected large text body to spill to a file")
	}
	if len(r.PendingBytes) == 0 {
		t.Fatal("expected PendingBytes to carry the body for Store.Save")
	}
}
