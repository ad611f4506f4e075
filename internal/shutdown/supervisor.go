// Package shutdown implements the shutdown supervisor (C9): a single
// abstract shutdown future that stops accepting connections, drains
// in-flight work, persists the recording inventory, and exits.
package shutdown

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog"
	"go.uber.org/multierr"

	"github.com/ideamans/go-http-playback-proxy/internal/domain"
	"github.com/ideamans/go-http-playback-proxy/internal/inventory"
)

// drainGrace bounds how long the supervisor waits for in-flight upstream
// responses to complete before forcing the listener closed, matching
// spec.md §4.9 step 2's "wait briefly (seconds, bounded)".
const drainGrace = 5 * time.Second

// PersistFunc returns a snapshot of a recording session's inventory, which
// the Supervisor then writes with inventory.Save. Wired to
// inventory.Store.Snapshot by the recording engine; left nil for playback,
// which never persists.
type PersistFunc func() (domain.Inventory, error)

// Supervisor owns one *http.Server and the shutdown sequencing around it,
// grounded on the teacher's cmd/network-debugger/main.go signal-handling
// block, generalised from a two-server (plain+TLS) shutdown into the
// spec's single abstract "shutdown future" with an explicit persist step.
type Supervisor struct {
	Server   *http.Server
	Logger   *zerolog.Logger
	CacheDir string
	Persist  PersistFunc // nil for playback sessions
}

// New returns a Supervisor guarding server.
func New(server *http.Server, logger *zerolog.Logger, cacheDir string, persist PersistFunc) *Supervisor {
	return &Supervisor{Server: server, Logger: logger, CacheDir: cacheDir, Persist: persist}
}

// Run starts the server in the background and blocks until SIGINT/SIGTERM
// fires, then executes spec.md §4.9's four shutdown steps in order:
// stop accepting, drain, persist (recording only), join. Returns every
// error encountered across the steps, combined via multierr so a persist
// failure is never masked by a later join failure or vice versa.
func (s *Supervisor) Run() error {
	serveErrCh := make(chan error, 1)
	go func() {
		if err := s.Server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErrCh <- err
			return
		}
		serveErrCh <- nil
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	var shutdownErr error
	select {
	case <-stop:
		shutdownErr = s.shutdown()
	case err := <-serveErrCh:
		// The listener died on its own (e.g. BindFailed surfaced late);
		// there is nothing left to drain.
		return err
	}

	joinErr := <-serveErrCh
	return multierr.Combine(shutdownErr, joinErr)
}

// shutdown runs steps 1–3 of spec.md §4.9. The supervisor never holds the
// inventory store's lock while awaiting I/O: Persist is expected to
// snapshot under lock and return immediately, with the file write
// happening against the returned copy.
func (s *Supervisor) shutdown() error {
	if s.Logger != nil {
		s.Logger.Info().Msg("shutdown: stopping listener and draining in-flight requests")
	}

	ctx, cancel := context.WithTimeout(context.Background(), drainGrace)
	defer cancel()

	var err error
	if shutErr := s.Server.Shutdown(ctx); shutErr != nil {
		err = multierr.Append(err, shutErr)
	}

	if s.Persist != nil {
		inv, snapErr := s.Persist()
		if snapErr != nil {
			err = multierr.Append(err, snapErr)
		} else if saveErr := inventory.Save(s.CacheDir, inv); saveErr != nil {
			// spec.md §7 PersistenceFailed: log; a content-file write
			// failure returns before index.json is touched, so any
			// previously saved index.json is left intact.
			if s.Logger != nil {
				s.Logger.Error().Err(saveErr).Str("dir", s.CacheDir).Msg("shutdown: inventory persistence failed")
			}
			err = multierr.Append(err, saveErr)
		} else if s.Logger != nil {
			var totalBytes int
			for _, r := range inv.Resources {
				totalBytes += r.ApproxContentBytes()
			}
			s.Logger.Info().
				Str("resources", humanize.Comma(int64(len(inv.Resources)))).
				Str("bytes", humanize.Bytes(uint64(totalBytes))).
				Str("dir", s.CacheDir).
				Msg("shutdown: inventory persisted")
		}
	}

	return err
}
