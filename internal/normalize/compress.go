package normalize

import (
	"bytes"
	"fmt"
	"io"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/gzip"

	"github.com/ideamans/go-http-playback-proxy/internal/domain"
)

// Decompress reverses enc on body, matching
// original_source/src/recording/processor.rs::decompress_body. Unknown or
// identity encodings pass the body through unchanged, per spec.md §4.2
// step 1.
func Decompress(body []byte, enc domain.ContentEncoding) ([]byte, error) {
	switch enc {
	case domain.ContentEncodingGzip:
		r, err := gzip.NewReader(bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("normalize: gzip reader: %w", err)
		}
		defer r.Close()
		return io.ReadAll(r)
	case domain.ContentEncodingDeflate:
		r := flate.NewReader(bytes.NewReader(body))
		defer r.Close()
		return io.ReadAll(r)
	case domain.ContentEncodingBr:
		r := brotli.NewReader(bytes.NewReader(body))
		return io.ReadAll(r)
	case domain.ContentEncodingCompress:
		// "compress" (LZW/Unix compress) has no maintained Go decoder in
		// the ecosystem; treat as opaque, matching spec.md §4.2 step 1's
		// "unknown encodings: store raw bytes ... do not transcode".
		return body, nil
	default:
		return body, nil
	}
}

// Compress re-applies enc to body, the playback-side counterpart used by
// the transaction builder (C6) to restore the wire form the recorded
// headers advertise, matching
// original_source/src/playback/transaction.rs::compress_content.
func Compress(body []byte, enc domain.ContentEncoding) ([]byte, error) {
	switch enc {
	case domain.ContentEncodingGzip:
		var buf bytes.Buffer
		w := gzip.NewWriter(&buf)
		if _, err := w.Write(body); err != nil {
			return nil, err
		}
		if err := w.Close(); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	case domain.ContentEncodingDeflate:
		var buf bytes.Buffer
		w, err := flate.NewWriter(&buf, flate.DefaultCompression)
		if err != nil {
			return nil, err
		}
		if _, err := w.Write(body); err != nil {
			return nil, err
		}
		if err := w.Close(); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	case domain.ContentEncodingBr:
		var buf bytes.Buffer
		w := brotli.NewWriter(&buf)
		if _, err := w.Write(body); err != nil {
			return nil, err
		}
		if err := w.Close(); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	default:
		return body, nil
	}
}
