package recording

import (
	"bufio"
	"bytes"
	"crypto/tls"
	"io"
	"net"
	"net/http"
	"time"
)

// dialTimeout bounds the upstream TCP dial inside a CONNECT tunnel,
// matching the teacher's handleConnectTunnel/handleConnectMITM.
const dialTimeout = 10 * time.Second

// handleConnect answers a CONNECT request by hijacking the client
// connection, terminating TLS against a leaf certificate minted for the
// requested host (C3), and looping request/response pairs through the
// decrypted tunnel until the client disconnects, matching spec.md §4.3's
// "the MITM listener terminates TLS using a host-specific leaf
// certificate issued by the session's root CA".
func (p *Proxy) handleConnect(w http.ResponseWriter, r *http.Request) {
	hj, ok := w.(http.Hijacker)
	if !ok {
		http.Error(w, "proxy: hijacking not supported", http.StatusInternalServerError)
		return
	}
	clientConn, bufrw, err := hj.Hijack()
	if err != nil {
		return
	}

	host := r.Host
	leaf, err := p.CA.IssueFor(host)
	if err != nil {
		if p.Logger != nil {
			p.Logger.Warn().Err(err).Str("host", host).Msg("recording: leaf certificate issuance failed")
		}
		_, _ = bufrw.WriteString("HTTP/1.1 502 Bad Gateway\r\n\r\n")
		_ = bufrw.Flush()
		_ = clientConn.Close()
		return
	}

	if _, err := bufrw.WriteString("HTTP/1.1 200 Connection Established\r\n\r\n"); err != nil {
		_ = clientConn.Close()
		return
	}
	if err := bufrw.Flush(); err != nil {
		_ = clientConn.Close()
		return
	}

	tlsSrv := tls.Server(clientConn, &tls.Config{
		Certificates: []tls.Certificate{leaf},
		NextProtos:   []string{"http/1.1"}, // spec.md Non-goal (d): no HTTP/2
	})
	if err := tlsSrv.Handshake(); err != nil {
		// spec.md §7 TlsHandshakeFailed: close connection, no record — the
		// client aborted or rejected the minted leaf before any request
		// reached us, so there is nothing to append to the inventory.
		if p.Logger != nil {
			p.Logger.Warn().Err(err).Str("host", host).Msg("recording: TLS handshake with client failed")
		}
		_ = tlsSrv.Close()
		return
	}
	if p.Metrics != nil {
		p.Metrics.ActiveConnections.Inc()
	}
	defer func() {
		p.Correlator.Forget(tlsSrv)
		_ = tlsSrv.Close()
		if p.Metrics != nil {
			p.Metrics.ActiveConnections.Dec()
		}
	}()

	p.runTunnelLoop(tlsSrv, host)
}

// runTunnelLoop reads HTTP/1.1 requests off conn (the decrypted client
// side of the MITM tunnel), forwards each upstream, records it, and
// writes the response back, repeating for as long as the client keeps
// the connection open. conn's own identity keys the correlator's FIFO
// queue, per spec.md §4.4.
func (p *Proxy) runTunnelLoop(conn net.Conn, host string) {
	clientBR := bufio.NewReader(conn)
	for {
		req, err := http.ReadRequest(clientBR)
		if err != nil {
			return
		}

		startedAt := time.Now()
		p.Clock.Mark(startedAt)
		// Captured from req before the rewrite below replaces its relative
		// URL with an absolute https:// one, so the queue genuinely holds
		// the only copy of this exchange's pre-rewrite identity.
		p.Correlator.Push(conn, Descriptor{Method: req.Method, URL: "https://" + host + req.URL.String(), StartedAt: startedAt})

		req.URL.Scheme = "https"
		req.URL.Host = host
		req.RequestURI = ""

		var reqBody []byte
		if req.Body != nil {
			reqBody, _ = io.ReadAll(req.Body)
			_ = req.Body.Close()
		}

		// The loop is strictly synchronous (one in-flight request per
		// tunnel), so the descriptor popped here is always the one just
		// pushed above — but it is the dequeued value, not req's own
		// (already rewritten) fields, that forwardAndRecord treats as the
		// recorded Resource's authoritative method/url, per spec.md §4.4.
		desc, ok := p.Correlator.Pop(conn)
		if !ok {
			// Cannot happen given the Push immediately above, but fall
			// back to req's own identity rather than recording an empty
			// method/url.
			desc = Descriptor{Method: req.Method, URL: "https://" + host + req.URL.Path, StartedAt: startedAt}
		}

		resp, body, err := p.forwardAndRecord(req, reqBody, desc)
		if err != nil {
			if p.Metrics != nil {
				p.Metrics.UpstreamErrorsTotal.WithLabelValues("tunnel").Inc()
			}
			return
		}

		RemoveHopHeaders(resp.Header)
		resp.Body = io.NopCloser(bytes.NewReader(body))
		resp.ContentLength = int64(len(body))
		if err := resp.Write(conn); err != nil {
			return
		}

		if resp.StatusCode == http.StatusSwitchingProtocols {
			// No further HTTP framing after a protocol upgrade; spec.md
			// Non-goal (e) excludes WebSocket recording, so just let the
			// raw bytes flow until either side closes.
			return
		}
	}
}
