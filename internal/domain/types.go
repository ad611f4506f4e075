// Package domain holds the shared entities that cross the recording/playback
// boundary: the inventory document, its resources, and the runtime-only
// transaction objects built from them.
package domain

import (
	"encoding/json"
	"fmt"
)

// ContentEncoding is the wire content-encoding a Resource's body was
// captured under, or will be re-applied under during playback.
type ContentEncoding string

const (
	ContentEncodingGzip     ContentEncoding = "gzip"
	ContentEncodingCompress ContentEncoding = "compress"
	ContentEncodingDeflate  ContentEncoding = "deflate"
	ContentEncodingBr       ContentEncoding = "br"
	ContentEncodingIdentity ContentEncoding = "identity"
)

// ParseContentEncoding maps a raw content-encoding token to a known
// ContentEncoding, defaulting to identity for anything unrecognised.
func ParseContentEncoding(s string) ContentEncoding {
	switch s {
	case string(ContentEncodingGzip), string(ContentEncodingCompress), string(ContentEncodingDeflate), string(ContentEncodingBr):
		return ContentEncoding(s)
	default:
		return ContentEncodingIdentity
	}
}

// DeviceType classifies the recorded session's assumed client device.
type DeviceType string

const (
	DeviceTypeDesktop DeviceType = "desktop"
	DeviceTypeMobile  DeviceType = "mobile"
)

// HeaderValue is either a single string or an ordered list of strings. It
// serialises untagged: a bare JSON string for the single case, a JSON array
// for the multi-valued case. This is the Go equivalent of the original
// implementation's `#[serde(untagged)] enum HeaderValue`.
type HeaderValue struct {
	values []string
}

// SingleHeaderValue builds a HeaderValue holding exactly one string.
func SingleHeaderValue(v string) HeaderValue { return HeaderValue{values: []string{v}} }

// MultiHeaderValue builds a HeaderValue holding an ordered list of strings.
func MultiHeaderValue(vs []string) HeaderValue {
	cp := make([]string, len(vs))
	copy(cp, vs)
	return HeaderValue{values: cp}
}

// Append returns a new HeaderValue with v appended, used when a second
// occurrence of a header name is observed and the value must widen from
// single to multi.
func (h HeaderValue) Append(v string) HeaderValue {
	return HeaderValue{values: append(append([]string{}, h.values...), v)}
}

// First returns the first (or only) value, and whether any value exists.
func (h HeaderValue) First() (string, bool) {
	if len(h.values) == 0 {
		return "", false
	}
	return h.values[0], true
}

// AsSlice returns all values in order.
func (h HeaderValue) AsSlice() []string {
	cp := make([]string, len(h.values))
	copy(cp, h.values)
	return cp
}

// IsMulti reports whether this header carries more than one value.
func (h HeaderValue) IsMulti() bool { return len(h.values) > 1 }

func (h HeaderValue) MarshalJSON() ([]byte, error) {
	if len(h.values) == 1 {
		return json.Marshal(h.values[0])
	}
	return json.Marshal(h.values)
}

func (h *HeaderValue) UnmarshalJSON(data []byte) error {
	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		h.values = []string{single}
		return nil
	}
	var multi []string
	if err := json.Unmarshal(data, &multi); err == nil {
		h.values = multi
		return nil
	}
	return fmt.Errorf("domain: header value is neither a string nor an array of strings: %s", string(data))
}

// Headers maps a lowercase header name to its HeaderValue. Insertion order
// across distinct keys is not significant; order *within* a HeaderValue is.
type Headers map[string]HeaderValue

// Set assigns a single value for name, replacing any prior value.
func (h Headers) Set(name, value string) { h[name] = SingleHeaderValue(value) }

// Add appends value to any existing values for name, widening to multi as
// needed, preserving the order headers were observed on the wire.
func (h Headers) Add(name, value string) {
	if existing, ok := h[name]; ok {
		h[name] = existing.Append(value)
		return
	}
	h[name] = SingleHeaderValue(value)
}

// Get returns the first value for name, if any.
func (h Headers) Get(name string) (string, bool) {
	v, ok := h[name]
	if !ok {
		return "", false
	}
	return v.First()
}

// Resource is one recorded HTTP exchange inside an inventory.
type Resource struct {
	Method string `json:"method"`
	URL    string `json:"url"`

	TTFBMs int64    `json:"ttfbMs"`
	Mbps   *float64 `json:"mbps,omitempty"`

	// DownloadEndMs is the offset, from session zero, at which the body
	// finished downloading. Not named explicitly in spec.md's prose but
	// required to recompute transfer_duration_ms deterministically on
	// playback (see original_source/src/types.rs::Resource.download_end_ms).
	DownloadEndMs *int64 `json:"downloadEndMs,omitempty"`

	StatusCode   *int    `json:"statusCode,omitempty"`
	ErrorMessage *string `json:"errorMessage,omitempty"`

	RawHeaders Headers `json:"rawHeaders,omitempty"`

	ContentFilePath *string          `json:"contentFilePath,omitempty"`
	ContentBase64   *string          `json:"contentBase64,omitempty"`
	ContentUTF8     *string          `json:"contentUtf8,omitempty"`
	ContentEncoding *ContentEncoding `json:"contentEncoding,omitempty"`
	ContentTypeMime *string          `json:"contentTypeMime,omitempty"`
	ContentCharset  *string          `json:"contentCharset,omitempty"`
	Minify          bool             `json:"minify,omitempty"`

	// PendingBytes ferries the body that ContentFilePath names from the
	// normaliser to the inventory store's Save; it is never serialised.
	PendingBytes []byte `json:"-"`
}

// NewResource returns a zeroed Resource for method/url, matching
// original_source/src/types.rs::Resource::new.
func NewResource(method, url string) Resource {
	return Resource{Method: method, URL: url}
}

// ApproxContentBytes estimates the on-wire size of r's persisted body,
// whichever representation holds it, for human-readable shutdown/progress
// logging. Exact to the byte for PendingBytes and content_utf8; for
// content_base64 it is three quarters of the encoded length, which can
// overcount by the padding. A content_file_path whose bytes are no longer
// pending (e.g. after Load) counts as 0.
func (r Resource) ApproxContentBytes() int {
	if r.PendingBytes != nil {
		return len(r.PendingBytes)
	}
	if r.ContentBase64 != nil {
		return len(*r.ContentBase64) * 3 / 4
	}
	if r.ContentUTF8 != nil {
		return len(*r.ContentUTF8)
	}
	return 0
}

// Inventory is the persisted record of one recording session.
type Inventory struct {
	EntryURL   *string     `json:"entryUrl,omitempty"`
	DeviceType *DeviceType `json:"deviceType,omitempty"`
	Resources  []Resource  `json:"resources"`
}

// NewInventory returns an empty Inventory ready to be appended to.
func NewInventory() Inventory {
	return Inventory{Resources: []Resource{}}
}

// BodyChunk is a runtime-only slice of a transaction's body with the wall
// clock offset, relative to the inbound request's arrival, at which it
// should be written.
type BodyChunk struct {
	Bytes        []byte
	TargetTimeMs int64
}

// Transaction is a runtime-only, playback-ready derivation of a Resource.
type Transaction struct {
	Method          string
	URL             string
	TTFBMs          int64
	StatusCode      *int
	ErrorMessage    *string
	RawHeaders      Headers
	Chunks          []BodyChunk
	TargetCloseTime int64
}

// TotalBytes sums the length of every chunk's payload.
func (t *Transaction) TotalBytes() int64 {
	var n int64
	for _, c := range t.Chunks {
		n += int64(len(c.Bytes))
	}
	return n
}
