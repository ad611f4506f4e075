// Package playback implements the playback engine: the transaction
// builder (C6), matcher (C7) and timed streamer (C8).
package playback

import (
	"fmt"

	"github.com/ideamans/go-http-playback-proxy/internal/domain"
	"github.com/ideamans/go-http-playback-proxy/internal/inventory"
	"github.com/ideamans/go-http-playback-proxy/internal/normalize"
)

// defaultChunkSize is the implementation-defined chunk size spec.md
// §4.6 step 4 leaves open ("e.g. 4–16 KiB"); chosen at the middle of
// that range.
const defaultChunkSize = 8 * 1024

// targetMbps is the assumed transfer speed used to derive a transfer
// duration when a resource has neither download_end_ms nor its own mbps
// recorded, matching original_source/src/playback/transaction.rs's
// TARGET_MBPS fallback-of-a-fallback.
const targetMbps = 1.0

// Build turns a recorded Resource into a playback-ready Transaction,
// implementing spec.md §4.6 exactly: resolve body bytes, re-minify,
// re-compress, chunk, and compute each chunk's target_time_ms from
// cumulative byte fractions (Open Question decision 4 in DESIGN.md:
// the original Rust implementation instead accumulates per-chunk deltas,
// which drifts under rounding — we use cumulative fractions as spec.md's
// prose requires).
func Build(cacheDir string, r domain.Resource) (*domain.Transaction, error) {
	body, err := inventory.LoadResourceBody(cacheDir, r)
	if err != nil {
		return nil, fmt.Errorf("playback: resolve body for %s %s: %w", r.Method, r.URL, err)
	}

	text := string(body)
	if r.Minify {
		mime := ""
		if r.ContentTypeMime != nil {
			mime = *r.ContentTypeMime
		}
		text = normalize.Minify(mime, text)
	}
	reMinified := []byte(text)
	// Binary content never round-trips through the string conversion
	// above in a way that matters: Minify is only ever applied when the
	// resource was textual to begin with (normalize.Apply never sets
	// Minify=true for binary bodies), so reMinified == body whenever the
	// content was not both textual and minified.
	if !r.Minify {
		reMinified = body
	}

	enc := domain.ContentEncodingIdentity
	if r.ContentEncoding != nil {
		enc = *r.ContentEncoding
	}
	encoded, err := normalize.Compress(reMinified, enc)
	if err != nil {
		return nil, fmt.Errorf("playback: re-compress body for %s %s: %w", r.Method, r.URL, err)
	}

	tx := &domain.Transaction{
		Method:       r.Method,
		URL:          r.URL,
		TTFBMs:       r.TTFBMs,
		StatusCode:   r.StatusCode,
		ErrorMessage: r.ErrorMessage,
		RawHeaders:   r.RawHeaders,
	}

	totalBytes := len(encoded)
	if totalBytes == 0 {
		tx.Chunks = nil
		tx.TargetCloseTime = r.TTFBMs
		return tx, nil
	}

	// spec.md §4.6 step 5: prefer the recorded wall-clock duration; when
	// download_end_ms is absent (e.g. an upstream error truncated the
	// recording) recompute it from the encoded length and mbps instead of
	// collapsing to zero, per original_source/src/playback/transaction.rs:
	// transfer_duration_ms = total_size * 8 / (1000 * mbps).
	var transferDuration int64
	if r.DownloadEndMs != nil {
		transferDuration = *r.DownloadEndMs - r.TTFBMs
	} else {
		mbps := targetMbps
		if r.Mbps != nil && *r.Mbps > 0 {
			mbps = *r.Mbps
		}
		transferDuration = int64((float64(totalBytes) * 8.0) / (1000.0 * mbps))
	}
	if transferDuration < 1 {
		transferDuration = 1
	}

	chunks := chunkBytes(encoded, defaultChunkSize)
	cumulative := 0
	out := make([]domain.BodyChunk, 0, len(chunks))
	for _, c := range chunks {
		cumulative += len(c)
		offset := (transferDuration * int64(cumulative)) / int64(totalBytes)
		out = append(out, domain.BodyChunk{
			Bytes:        c,
			TargetTimeMs: r.TTFBMs + offset,
		})
	}
	tx.Chunks = out

	lastTarget := out[len(out)-1].TargetTimeMs
	idleAfterBody := int64(0)
	closeTime := lastTarget
	if r.TTFBMs+idleAfterBody > closeTime {
		closeTime = r.TTFBMs + idleAfterBody
	}
	tx.TargetCloseTime = closeTime

	return tx, nil
}

// chunkBytes slices body into consecutive pieces of at most size bytes
// each, preserving order.
func chunkBytes(body []byte, size int) [][]byte {
	if len(body) == 0 {
		return nil
	}
	var out [][]byte
	for i := 0; i < len(body); i += size {
		end := i + size
		if end > len(body) {
			end = len(body)
		}
		out = append(out, body[i:end])
	}
	return out
}
