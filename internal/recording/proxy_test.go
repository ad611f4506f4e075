package recording

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ideamans/go-http-playback-proxy/internal/inventory"
	"github.com/ideamans/go-http-playback-proxy/internal/observability"
)

func TestHandleForwardRecordsResourceAndProxiesResponse(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("hello from upstream"))
	}))
	defer upstream.Close()

	store := inventory.NewStore()
	logger := observability.NewLogger("error")
	p := NewProxy(nil, store, logger, observability.NewMetrics(), true)

	req := httptest.NewRequest(http.MethodGet, upstream.URL+"/widget", nil)
	req.RequestURI = ""
	rec := httptest.NewRecorder()

	p.handleForward(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	body, _ := io.ReadAll(rec.Body)
	if string(body) != "hello from upstream" {
		t.Fatalf("unexpected body: %q", body)
	}

	if store.Len() != 1 {
		t.Fatalf("expected one recorded resource, got %d", store.Len())
	}
	snap := store.Snapshot()
	got := snap.Resources[0]
	if got.StatusCode == nil || *got.StatusCode != http.StatusOK {
		t.Fatalf("expected recorded status 200, got %+v", got.StatusCode)
	}
	if got.ContentUTF8 == nil || *got.ContentUTF8 != "hello from upstream" {
		t.Fatalf("expected inlined utf8 content, got %+v", got)
	}
}

func TestHandleForwardRecordsUpstreamFailureAsBadGateway(t *testing.T) {
	store := inventory.NewStore()
	logger := observability.NewLogger("error")
	p := NewProxy(nil, store, logger, observability.NewMetrics(), true)

	req := httptest.NewRequest(http.MethodGet, "http://127.0.0.1:1/unreachable", nil)
	req.RequestURI = ""
	rec := httptest.NewRecorder()

	p.handleForward(rec, req)

	if rec.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", rec.Code)
	}
	if store.Len() != 1 {
		t.Fatalf("expected one error resource recorded on upstream failure, got %d", store.Len())
	}
	got := store.Snapshot().Resources[0]
	if got.ErrorMessage == nil || *got.ErrorMessage == "" {
		t.Fatalf("expected error_message to be set, got %+v", got)
	}
	if got.StatusCode != nil {
		t.Fatalf("expected no status code on a failed upstream resource, got %+v", got.StatusCode)
	}
}

// TestForwardAndRecordUsesDescriptorAsRecordedIdentity proves the
// correlator's dequeued Descriptor (C4), not req's own method/URL, is what
// ends up in the recorded Resource: runTunnelLoop passes req already
// rewritten to an absolute https:// form, while desc carries the
// pre-rewrite identity the correlator FIFO-queued it under.
func TestForwardAndRecordUsesDescriptorAsRecordedIdentity(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}))
	defer upstream.Close()

	store := inventory.NewStore()
	logger := observability.NewLogger("error")
	p := NewProxy(nil, store, logger, observability.NewMetrics(), true)

	req := httptest.NewRequest(http.MethodGet, upstream.URL+"/rewritten-path", nil)
	req.RequestURI = ""
	desc := Descriptor{Method: "POST", URL: "https://original.example.com/original-path"}

	if _, _, err := p.forwardAndRecord(req, nil, desc); err != nil {
		t.Fatal(err)
	}

	got := store.Snapshot().Resources[0]
	if got.Method != "POST" || got.URL != "https://original.example.com/original-path" {
		t.Fatalf("expected the recorded resource to carry the descriptor's identity, got method=%q url=%q", got.Method, got.URL)
	}
}
