package playback

import (
	"bufio"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"
)

// handleConnect answers a CONNECT request by hijacking the client
// connection and terminating TLS against a leaf certificate minted for
// the requested host (C3), the same shape as internal/recording/
// connect.go's handleConnect. Unlike the recorder, which loops reading
// requests off the tunnel for as long as the client keeps it open, the
// playback tunnel serves exactly one request: the timed streamer (C8)
// always answers with Connection: close, so a second request never
// arrives on the same tunnel.
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

	if p.CA == nil {
		if p.Logger != nil {
			p.Logger.Warn().Str("host", r.Host).Msg("playback: CONNECT received but no CA configured")
		}
		_, _ = bufrw.WriteString("HTTP/1.1 502 Bad Gateway\r\n\r\n")
		_ = bufrw.Flush()
		_ = clientConn.Close()
		return
	}

	host := r.Host
	leaf, err := p.CA.IssueFor(host)
	if err != nil {
		if p.Logger != nil {
			p.Logger.Warn().Err(err).Str("host", host).Msg("playback: leaf certificate issuance failed")
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
		// spec.md §7 TlsHandshakeFailed: close connection, no record (and
		// there is nothing to record on the playback side regardless).
		if p.Logger != nil {
			p.Logger.Warn().Err(err).Str("host", host).Msg("playback: TLS handshake with client failed")
		}
		_ = tlsSrv.Close()
		return
	}
	if p.Metrics != nil {
		p.Metrics.ActiveConnections.Inc()
	}
	defer func() {
		_ = tlsSrv.Close()
		if p.Metrics != nil {
			p.Metrics.ActiveConnections.Dec()
		}
	}()

	p.runTunnelRequest(tlsSrv, host)
}

// runTunnelRequest reads the single HTTP/1.1 request off conn (the
// decrypted client side of the MITM tunnel), rewrites it to the https://
// URL the matcher expects, and serves it exactly like a plain forward
// request.
func (p *Proxy) runTunnelRequest(conn net.Conn, host string) {
	arrivedAt := time.Now()
	clientBR := bufio.NewReader(conn)
	req, err := http.ReadRequest(clientBR)
	if err != nil {
		return
	}

	req.URL.Scheme = "https"
	req.URL.Host = host
	req.Host = host // matches the authority internal/recording/connect.go recorded the resource's URL under, which may differ from this request's own Host header
	req.RequestURI = ""
	if req.Body != nil {
		_, _ = io.Copy(io.Discard, req.Body)
		_ = req.Body.Close()
	}

	p.serve(newConnResponseWriter(conn), req, arrivedAt)
}

// connResponseWriter implements http.ResponseWriter (and http.Flusher, so
// Stream's per-chunk flush is a no-op rather than a type-assertion
// failure) directly over a hijacked net.Conn, since there is no
// net/http.Server framing a response once the tunnel is TLS-terminated.
type connResponseWriter struct {
	conn        net.Conn
	header      http.Header
	wroteHeader bool
}

func newConnResponseWriter(conn net.Conn) *connResponseWriter {
	return &connResponseWriter{conn: conn, header: http.Header{}}
}

func (c *connResponseWriter) Header() http.Header { return c.header }

func (c *connResponseWriter) WriteHeader(status int) {
	if c.wroteHeader {
		return
	}
	c.wroteHeader = true
	fmt.Fprintf(c.conn, "HTTP/1.1 %d %s\r\n", status, http.StatusText(status))
	_ = c.header.Write(c.conn)
	_, _ = io.WriteString(c.conn, "\r\n")
}

func (c *connResponseWriter) Write(b []byte) (int, error) {
	if !c.wroteHeader {
		c.WriteHeader(http.StatusOK)
	}
	return c.conn.Write(b)
}

// Flush satisfies http.Flusher. Every Write already goes straight to the
// socket, so there is nothing to buffer and flush.
func (c *connResponseWriter) Flush() {}
