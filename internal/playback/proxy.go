package playback

import (
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/ideamans/go-http-playback-proxy/internal/domain"
	"github.com/ideamans/go-http-playback-proxy/internal/mitm"
	"github.com/ideamans/go-http-playback-proxy/internal/observability"
)

// Proxy is the playback engine's HTTP listener, wiring the matcher (C7)
// and the timed streamer (C8) together. Grounded on the teacher's
// infrastructure/httpapi/forwardproxy.go request-handling shape, replayed
// against an in-memory Matcher instead of an upstream round trip.
//
// Every resource recorded through a CONNECT tunnel is stored under an
// https:// URL (internal/recording/connect.go), so the playback listener
// needs the same MITM capability as the recorder (C3) to ever serve one:
// CA is the session's own root CA, minting leaf certificates for whatever
// host the replaying client CONNECTs to, exactly as internal/recording/
// connect.go does on the record side.
type Proxy struct {
	Matcher *Matcher
	CA      *mitm.CertAuthority
	Logger  *zerolog.Logger
	Metrics *observability.Metrics
}

// NewProxy builds a playback Proxy over the transactions built from an
// inventory's resources. ca may be nil, in which case CONNECT requests
// (any recorded https:// resource) fail with 502 while plain HTTP
// resources still replay.
func NewProxy(matcher *Matcher, ca *mitm.CertAuthority, logger *zerolog.Logger, metrics *observability.Metrics) *Proxy {
	return &Proxy{Matcher: matcher, CA: ca, Logger: logger, Metrics: metrics}
}

// ServeHTTP dispatches a CONNECT tunnel to handleConnect (C3) or serves a
// plain absolute-URI request directly, matching internal/recording/
// proxy.go's ServeHTTP shape.
func (p *Proxy) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodConnect {
		p.handleConnect(w, r)
		return
	}
	p.serve(w, r, time.Now())
}

// serve looks up the matching transaction for r and streams it, replying
// 404 with a diagnostic body on a matcher miss, per spec.md §4.7's
// "Absence of a match returns NotFound, reported to the client as 404
// with a diagnostic body". arrivedAt anchors the streamer's deadlines at
// this request's arrival (spec.md §4.8's `T0`).
func (p *Proxy) serve(w http.ResponseWriter, r *http.Request, arrivedAt time.Time) {
	key := KeyForRequest(r)

	tx, ok := p.Matcher.Match(key)
	if !ok {
		if p.Metrics != nil {
			p.Metrics.MatchNotFoundTotal.Inc()
		}
		if p.Logger != nil {
			p.Logger.Warn().Str("method", key.Method).Str("host", key.Host).Str("path", key.Path).Msg("playback: no matching transaction")
		}
		http.Error(w, fmt.Sprintf("playback-proxy: no recorded transaction for %s %s%s", key.Method, key.Host, key.Path), http.StatusNotFound)
		return
	}

	if p.Metrics != nil {
		p.Metrics.ActiveStreamedTransfers.Inc()
		defer p.Metrics.ActiveStreamedTransfers.Dec()
	}
	Stream(w, tx, arrivedAt, RealSleeper{}, p.Logger, p.Metrics)
	if p.Metrics != nil {
		p.Metrics.BytesStreamedTotal.Add(float64(tx.TotalBytes()))
	}
}

// BuildMatcher resolves every resource in inv into a Transaction via
// Build, skipping (and logging) any that fail to resolve rather than
// aborting the whole playback session.
func BuildMatcher(logger *zerolog.Logger, cacheDir string, inv domain.Inventory) *Matcher {
	txs := make([]*domain.Transaction, 0, len(inv.Resources))
	for _, r := range inv.Resources {
		tx, err := Build(cacheDir, r)
		if err != nil {
			if logger != nil {
				logger.Warn().Err(err).Str("url", r.URL).Msg("playback: failed to build transaction, skipping")
			}
			continue
		}
		txs = append(txs, tx)
	}
	return NewMatcher(txs)
}
