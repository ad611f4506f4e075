package playback

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ideamans/go-http-playback-proxy/internal/domain"
)

func tx(method, url string) *domain.Transaction {
	return &domain.Transaction{Method: method, URL: url}
}

func TestMatcherExactMatch(t *testing.T) {
	m := NewMatcher([]*domain.Transaction{
		tx("GET", "https://a.example/page?x=1"),
		tx("GET", "https://b.example/page?x=1"),
	})
	req := httptest.NewRequest(http.MethodGet, "https://b.example/page?x=1", nil)
	req.Host = "b.example"
	got, ok := m.Match(KeyForRequest(req))
	if !ok || got.URL != "https://b.example/page?x=1" {
		t.Fatalf("expected exact match on b.example, got %+v ok=%v", got, ok)
	}
}

func TestMatcherFallsBackWhenRecordedHostAbsent(t *testing.T) {
	m := NewMatcher([]*domain.Transaction{
		tx("GET", "/shared/asset.js"), // parses with empty host
	})
	req := httptest.NewRequest(http.MethodGet, "https://any.example/shared/asset.js", nil)
	req.Host = "any.example"
	got, ok := m.Match(KeyForRequest(req))
	if !ok || got.URL != "/shared/asset.js" {
		t.Fatalf("expected host-ignored fallback match, got %+v ok=%v", got, ok)
	}
}

func TestMatcherMultiOriginDoesNotCrossMatch(t *testing.T) {
	m := NewMatcher([]*domain.Transaction{
		tx("GET", "https://cdn-a.example/lib.js"),
		tx("GET", "https://cdn-b.example/lib.js"),
	})
	req := httptest.NewRequest(http.MethodGet, "https://cdn-b.example/lib.js", nil)
	req.Host = "cdn-b.example"
	got, ok := m.Match(KeyForRequest(req))
	if !ok || got.URL != "https://cdn-b.example/lib.js" {
		t.Fatalf("expected cdn-b match, got %+v ok=%v", got, ok)
	}
}

func TestMatcherNotFound(t *testing.T) {
	m := NewMatcher([]*domain.Transaction{
		tx("GET", "https://a.example/page"),
	})
	req := httptest.NewRequest(http.MethodGet, "https://a.example/missing", nil)
	req.Host = "a.example"
	_, ok := m.Match(KeyForRequest(req))
	if ok {
		t.Fatal("expected no match for an unrecorded path")
	}
}
