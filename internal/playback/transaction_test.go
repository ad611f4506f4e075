package playback

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/ideamans/go-http-playback-proxy/internal/domain"
)

func strPtr(s string) *string { return &s }
func intPtr(i int) *int       { return &i }
func i64Ptr(i int64) *int64   { return &i }

func TestBuildZeroLengthBodyClosesAtTTFB(t *testing.T) {
	r := domain.NewResource("GET", "http://example.com/empty")
	r.TTFBMs = 42
	r.StatusCode = intPtr(204)

	tx, err := Build(t.TempDir(), r)
	if err != nil {
		t.Fatal(err)
	}
	if len(tx.Chunks) != 0 {
		t.Fatalf("expected no chunks, got %d", len(tx.Chunks))
	}
	if tx.TargetCloseTime != 42 {
		t.Fatalf("expected target close time 42, got %d", tx.TargetCloseTime)
	}
}

func TestBuildLastChunkLandsOnTransferEnd(t *testing.T) {
	dir := t.TempDir()
	content := make([]byte, 20000)
	for i := range content {
		content[i] = byte('a' + i%26)
	}
	contentPath := "get/http/example.com/big.bin"
	full := filepath.Join(dir, "contents", contentPath)
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(full, content, 0o644); err != nil {
		t.Fatal(err)
	}

	r := domain.NewResource("GET", "http://example.com/big.bin")
	r.TTFBMs = 100
	r.DownloadEndMs = i64Ptr(600)
	r.StatusCode = intPtr(200)
	r.ContentFilePath = strPtr(contentPath)
	identity := domain.ContentEncodingIdentity
	r.ContentEncoding = &identity

	tx, err := Build(dir, r)
	if err != nil {
		t.Fatal(err)
	}
	if len(tx.Chunks) == 0 {
		t.Fatal("expected at least one chunk")
	}
	last := tx.Chunks[len(tx.Chunks)-1]
	if last.TargetTimeMs != 600 {
		t.Fatalf("expected last chunk target 600ms (ttfb+transfer_duration), got %d", last.TargetTimeMs)
	}
	if tx.TargetCloseTime != 600 {
		t.Fatalf("expected close time 600, got %d", tx.TargetCloseTime)
	}

	// Chunk target times must be non-decreasing, so cumulative-fraction
	// timing never regresses mid-stream.
	for i := 1; i < len(tx.Chunks); i++ {
		if tx.Chunks[i].TargetTimeMs < tx.Chunks[i-1].TargetTimeMs {
			t.Fatalf("chunk %d target time regressed: %d < %d", i, tx.Chunks[i].TargetTimeMs, tx.Chunks[i-1].TargetTimeMs)
		}
	}
}

func TestBuildDerivesTransferDurationFromMbpsWhenDownloadEndMissing(t *testing.T) {
	dir := t.TempDir()
	content := make([]byte, 125000) // 1,000,000 bits at 8 bits/byte
	for i := range content {
		content[i] = byte('a' + i%26)
	}
	contentPath := "get/http/example.com/nodeend.bin"
	full := filepath.Join(dir, "contents", contentPath)
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(full, content, 0o644); err != nil {
		t.Fatal(err)
	}

	r := domain.NewResource("GET", "http://example.com/nodeend.bin")
	r.TTFBMs = 50
	r.StatusCode = intPtr(200)
	r.ContentFilePath = strPtr(contentPath)
	identity := domain.ContentEncodingIdentity
	r.ContentEncoding = &identity
	mbps := 1.0 // 1,000,000 bits/sec -> 1,000ms transfer for 125,000 bytes
	r.Mbps = &mbps

	tx, err := Build(dir, r)
	if err != nil {
		t.Fatal(err)
	}
	last := tx.Chunks[len(tx.Chunks)-1]
	// transfer_duration_ms = bytes*8/(1000*mbps) = 125000*8/1000 = 1000ms
	wantClose := r.TTFBMs + 1000
	if tx.TargetCloseTime != wantClose {
		t.Fatalf("expected close time %d derived from mbps, got %d", wantClose, tx.TargetCloseTime)
	}
	if last.TargetTimeMs != wantClose {
		t.Fatalf("expected last chunk target %d, got %d", wantClose, last.TargetTimeMs)
	}
}

func TestBuildFallsBackToTargetMbpsWhenNeitherDownloadEndNorMbpsRecorded(t *testing.T) {
	dir := t.TempDir()
	content := make([]byte, 125) // tiny body, target_mbps=1.0 -> 1ms transfer
	contentPath := "get/http/example.com/tiny.bin"
	full := filepath.Join(dir, "contents", contentPath)
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(full, content, 0o644); err != nil {
		t.Fatal(err)
	}

	r := domain.NewResource("GET", "http://example.com/tiny.bin")
	r.TTFBMs = 10
	r.StatusCode = intPtr(200)
	r.ContentFilePath = strPtr(contentPath)
	identity := domain.ContentEncodingIdentity
	r.ContentEncoding = &identity

	tx, err := Build(dir, r)
	if err != nil {
		t.Fatal(err)
	}
	if tx.TargetCloseTime < r.TTFBMs {
		t.Fatalf("expected close time at or after ttfb, got %d", tx.TargetCloseTime)
	}
}

func TestBuildMinifiesWhenRecordedAsMinified(t *testing.T) {
	dir := t.TempDir()
	r := domain.NewResource("GET", "http://example.com/app.js")
	r.TTFBMs = 10
	r.DownloadEndMs = i64Ptr(20)
	r.Minify = true
	mime := "application/javascript"
	r.ContentTypeMime = &mime
	r.ContentUTF8 = strPtr("function f() {\n  return 1;\n}\n")
	identity := domain.ContentEncodingIdentity
	r.ContentEncoding = &identity

	tx, err := Build(dir, r)
	if err != nil {
		t.Fatal(err)
	}
	if tx.TotalBytes() == 0 {
		t.Fatal("expected a non-empty body")
	}
	var got []byte
	for _, c := range tx.Chunks {
		got = append(got, c.Bytes...)
	}
	if string(got) != "function f() {\nreturn 1;\n}" {
		t.Fatalf("expected re-minified body, got %q", got)
	}
}
