package normalize

import (
	"encoding/base64"

	"github.com/rs/zerolog"

	"github.com/ideamans/go-http-playback-proxy/internal/domain"
	"github.com/ideamans/go-http-playback-proxy/internal/inventory"
	"github.com/ideamans/go-http-playback-proxy/internal/observability"
)

func encodeBase64(b []byte) string { return base64.StdEncoding.EncodeToString(b) }

// inlineTextThreshold and inlineBinaryThreshold decide, per Open Question
// decision 2 in DESIGN.md, when a body is small enough to inline rather
// than spill to a content file.
const (
	inlineTextThreshold   = 1024
	inlineBinaryThreshold = 256
	minifyByteFloor       = 512 // spec.md §4.2 step 4's "N around 512"
)

// Apply runs the full C2 algorithm against r in place: decompress,
// classify, charset-detect/transcode, beautify, decide minify, and choose
// the persistence representation. contentType is the raw Content-Type
// header value (including any charset parameter); r.ContentEncoding must
// already be set from the Content-Encoding header. Failures are logged and
// never propagated: per spec.md §4.2/§7, normalisation failure leaves the
// resource in the best available representation.
func Apply(logger *zerolog.Logger, metrics *observability.Metrics, r *domain.Resource, rawBody []byte, contentType string) {
	enc := domain.ContentEncodingIdentity
	if r.ContentEncoding != nil {
		enc = *r.ContentEncoding
	}

	decompressed, err := Decompress(rawBody, enc)
	if err != nil {
		if logger != nil {
			logger.Warn().Err(err).Str("url", r.URL).Msg("normalize: decompress failed, storing raw bytes as binary")
		}
		if metrics != nil {
			metrics.NormalisationErrorTotal.Inc()
		}
		persistBinary(r, rawBody)
		return
	}

	mime := BaseMime(contentType)
	if mime != "" {
		r.ContentTypeMime = &mime
	}

	if enc == domain.ContentEncodingCompress {
		// Decompress passes "compress" bodies through still encoded; they
		// are stored as raw bytes and never transcoded or beautified.
		persistBinary(r, rawBody)
		return
	}

	if len(decompressed) == 0 {
		// Empty-body responses are binary, per spec.md §4.2 step 2.
		persistBinary(r, decompressed)
		return
	}

	if !IsTextMime(mime) {
		persistBinary(r, decompressed)
		return
	}

	isHTML := mime == "text/html" || mime == "application/xhtml+xml"
	isCSS := mime == "text/css"
	isXML := mime == "application/xml" || isSuffixXML(mime)

	charsetName := DetectCharset(contentType, decompressed, isHTML, isCSS, isXML)
	utf8Bytes, cerr := ToUTF8(decompressed, charsetName)
	if cerr != nil {
		if logger != nil {
			logger.Warn().Err(cerr).Str("url", r.URL).Str("charset", charsetName).Msg("normalize: transcode failed, storing decompressed bytes as binary")
		}
		if metrics != nil {
			metrics.NormalisationErrorTotal.Inc()
		}
		persistBinary(r, decompressed)
		return
	}

	text := string(utf8Bytes)
	text = RewriteCharsetDeclarations(text, isHTML, isCSS, isXML)
	utf8Name := "utf-8"
	r.ContentCharset = &utf8Name

	originalLines := CountLines(text)
	beautified := Beautify(mime, text)
	beautifiedLines := CountLines(beautified)

	if beautifiedLines >= originalLines*2 && len(decompressed) >= minifyByteFloor {
		r.Minify = true
	}

	persistText(r, beautified)
}

func isSuffixXML(mime string) bool {
	return len(mime) > 4 && mime[len(mime)-4:] == "+xml"
}

// persistText chooses between content_utf8 (small) and content_file_path
// (large), per Open Question decision 2.
func persistText(r *domain.Resource, text string) {
	if len(text) <= inlineTextThreshold {
		r.ContentUTF8 = &text
		r.ContentFilePath = nil
		r.ContentBase64 = nil
		return
	}
	path, err := inventory.ContentPath(r.Method, r.URL)
	if err != nil {
		// Path generation should not fail for a well-formed URL; fall back
		// to inline storage rather than dropping the body.
		r.ContentUTF8 = &text
		return
	}
	r.ContentFilePath = &path
	r.PendingBytes = []byte(text)
	r.ContentUTF8 = nil
	r.ContentBase64 = nil
}

// persistBinary chooses between content_base64 (small) and
// content_file_path (large), per Open Question decision 2.
func persistBinary(r *domain.Resource, body []byte) {
	if len(body) == 0 {
		return
	}
	if len(body) <= inlineBinaryThreshold {
		b64 := encodeBase64(body)
		r.ContentBase64 = &b64
		r.ContentFilePath = nil
		r.ContentUTF8 = nil
		return
	}
	path, err := inventory.ContentPath(r.Method, r.URL)
	if err != nil {
		b64 := encodeBase64(body)
		r.ContentBase64 = &b64
		return
	}
	r.ContentFilePath = &path
	r.PendingBytes = body
	r.ContentBase64 = nil
	r.ContentUTF8 = nil
}
