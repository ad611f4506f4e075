package recording

import (
	"bytes"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/ideamans/go-http-playback-proxy/internal/domain"
	"github.com/ideamans/go-http-playback-proxy/internal/inventory"
	"github.com/ideamans/go-http-playback-proxy/internal/mitm"
	"github.com/ideamans/go-http-playback-proxy/internal/normalize"
	"github.com/ideamans/go-http-playback-proxy/internal/observability"
)

// Proxy is the recording engine's MITM/forward-proxy listener (C3),
// wiring together the correlator (C4), upstream client (C5), normaliser
// (C2) and inventory store (C1). Grounded on the teacher's
// infrastructure/httpapi/forwardproxy.go, generalised from a
// logging-only forward proxy into one that records byte/timing-faithful
// Resources rather than truncated previews.
//
// Unlike the teacher, which only intercepts hosts on an explicit
// allowlist (Deps.MITM.shouldIntercept), every CONNECT tunnel is
// intercepted here: spec.md's recording engine exists specifically to
// capture full-fidelity transactions, so there is no pass-through mode.
type Proxy struct {
	CA         *mitm.CertAuthority
	Store      *inventory.Store
	Upstream   *UpstreamClient
	Correlator *Correlator
	Clock      *SessionClock
	Logger     *zerolog.Logger
	Metrics    *observability.Metrics
}

// NewProxy builds a recording Proxy ready to be used as an http.Handler.
func NewProxy(ca *mitm.CertAuthority, store *inventory.Store, logger *zerolog.Logger, metrics *observability.Metrics, insecureUpstream bool) *Proxy {
	return &Proxy{
		CA:         ca,
		Store:      store,
		Upstream:   NewUpstreamClient(insecureUpstream),
		Correlator: NewCorrelator(),
		Clock:      NewSessionClock(),
		Logger:     logger,
		Metrics:    metrics,
	}
}

// ServeHTTP implements http.Handler, matching spec.md §4.3's "every
// inbound connection is either a CONNECT tunnel to be intercepted, or a
// plain absolute-URI forward request".
func (p *Proxy) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodConnect {
		p.handleConnect(w, r)
		return
	}
	p.handleForward(w, r)
}

// handleForward proxies a plain (non-CONNECT) absolute-URI request. Since
// net/http's Server already pairs this request with this single handler
// invocation's response, the correlator (scoped to the MITM tunnel's raw
// read loop in connect.go) is not needed here.
func (p *Proxy) handleForward(w http.ResponseWriter, r *http.Request) {
	startedAt := time.Now()
	p.Clock.Mark(startedAt)

	var reqBody []byte
	if r.Body != nil {
		reqBody, _ = io.ReadAll(r.Body)
		_ = r.Body.Close()
	}

	desc := Descriptor{Method: r.Method, URL: r.URL.String(), StartedAt: startedAt}
	resp, body, err := p.forwardAndRecord(r, reqBody, desc)
	if err != nil {
		if p.Metrics != nil {
			p.Metrics.UpstreamErrorsTotal.WithLabelValues("forward").Inc()
		}
		http.Error(w, "upstream request failed: "+err.Error(), http.StatusBadGateway)
		return
	}

	RemoveHopHeaders(resp.Header)
	for name, values := range resp.Header {
		for _, v := range values {
			w.Header().Add(name, v)
		}
	}
	w.WriteHeader(resp.StatusCode)
	_, _ = w.Write(body)
}

// forwardAndRecord issues req upstream, records the resulting exchange as
// a domain.Resource (running it through the normaliser), appends it to
// the Store, and returns the upstream response (with its body restored
// for the caller to forward to the client) plus the raw body bytes.
// desc.Method/desc.URL are the recorded Resource's authoritative identity
// (spec.md §4.4): on the tunnel path this is the descriptor the correlator
// (C4) dequeued in FIFO order, captured before req's URL was rewritten to
// an absolute https:// form, not req's own (possibly already-rewritten)
// fields.
func (p *Proxy) forwardAndRecord(req *http.Request, reqBody []byte, desc Descriptor) (*http.Response, []byte, error) {
	if p.Logger != nil {
		ev := p.Logger.Debug().Str("method", req.Method).Str("url", req.URL.String())
		for name, values := range req.Header {
			for _, v := range values {
				ev = ev.Str(name, RedactHeaderValue(name, v))
			}
		}
		ev.Msg("recording: forwarding request")
	}

	outReq := req.Clone(req.Context())
	outReq.Header = req.Header.Clone()
	RemoveHopHeaders(outReq.Header)
	outReq.RequestURI = ""
	if len(reqBody) > 0 {
		outReq.Body = io.NopCloser(bytes.NewReader(reqBody))
		outReq.ContentLength = int64(len(reqBody))
	} else {
		outReq.Body = nil
		outReq.ContentLength = 0
	}

	result, err := p.Upstream.Do(outReq)
	if err != nil {
		// spec.md §7 UpstreamNetworkError/BodyReadFailed: emit a Resource
		// carrying error_message and no body rather than dropping the
		// exchange from the inventory entirely.
		ttfbMs := p.Clock.OffsetMs(time.Now())
		res := domain.NewResource(desc.Method, desc.URL)
		res.TTFBMs = ttfbMs
		msg := err.Error()
		res.ErrorMessage = &msg
		p.Store.Append(res)
		if p.Metrics != nil {
			p.Metrics.ResourcesRecordedTotal.WithLabelValues("error").Inc()
		}
		return nil, nil, err
	}
	resp := result.Response

	ttfbMs := p.Clock.OffsetMs(result.TTFBAt)
	downloadEndMs := p.Clock.OffsetMs(result.DownloadEndAt)

	res := domain.NewResource(desc.Method, desc.URL)
	res.TTFBMs = ttfbMs
	res.DownloadEndMs = &downloadEndMs
	status := resp.StatusCode
	res.StatusCode = &status
	res.RawHeaders = CaptureHeaders(resp.Header)
	enc := domain.ParseContentEncoding(resp.Header.Get("Content-Encoding"))
	res.ContentEncoding = &enc
	res.Mbps = Mbps(len(result.Body), ttfbMs, downloadEndMs)

	normalize.Apply(p.Logger, p.Metrics, &res, result.Body, resp.Header.Get("Content-Type"))

	p.Store.Append(res)
	if p.Metrics != nil {
		p.Metrics.ResourcesRecordedTotal.WithLabelValues("recorded").Inc()
	}

	resp.Body = io.NopCloser(bytes.NewReader(result.Body))
	return resp, result.Body, nil
}
