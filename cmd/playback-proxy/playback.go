package main

import (
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/ideamans/go-http-playback-proxy/internal/config"
	"github.com/ideamans/go-http-playback-proxy/internal/inventory"
	"github.com/ideamans/go-http-playback-proxy/internal/mitm"
	"github.com/ideamans/go-http-playback-proxy/internal/observability"
	"github.com/ideamans/go-http-playback-proxy/internal/playback"
	"github.com/ideamans/go-http-playback-proxy/internal/shutdown"
)

var playbackFlags struct {
	bindAddr string
	port     int
	dir      string
	logLevel string
}

var playbackCmd = &cobra.Command{
	Use:   "playback",
	Short: "Serve a previously recorded inventory back with original timing",
	RunE:  runPlayback,
}

func init() {
	cfg := config.PlaybackFromEnv()
	playbackCmd.Flags().StringVar(&playbackFlags.bindAddr, "bind", cfg.BindAddr, "address to bind the proxy listener on")
	playbackCmd.Flags().IntVar(&playbackFlags.port, "port", cfg.Port, "port to bind the proxy listener on (auto-scanned upward on conflict)")
	playbackCmd.Flags().StringVar(&playbackFlags.dir, "dir", cfg.InventoryDir, "inventory directory to read from")
	playbackCmd.Flags().StringVar(&playbackFlags.logLevel, "log-level", cfg.LogLevel, "zerolog level")
}

func runPlayback(cmd *cobra.Command, args []string) error {
	sessionLogger := observability.NewLogger(playbackFlags.logLevel).With().Str("session_id", uuid.NewString()).Logger()
	logger := &sessionLogger
	metrics := observability.NewMetrics()

	if cacheDir, ok := config.CacheDir(); ok {
		playbackFlags.dir = cacheDir
	}

	inv, err := inventory.Load(playbackFlags.dir)
	if err != nil {
		return err // already a *inventory.MalformedInventoryError
	}

	matcher := playback.BuildMatcher(logger, playbackFlags.dir, inv)
	logger.Info().Int("resources", len(inv.Resources)).Msg("playback: transactions built")

	// Recorded https:// resources were only ever reachable through a
	// CONNECT tunnel (internal/recording/connect.go), so the playback
	// listener needs its own MITM CA (C3) to terminate TLS and serve them
	// back, exactly as the recording engine does.
	ca, err := mitm.GenerateCA("playback-proxy playback session")
	if err != nil {
		return &CAGenerationFailedError{Err: err}
	}
	if err := ca.WritePEM(playbackFlags.dir, inventory.CAFileName); err != nil {
		return &CAGenerationFailedError{Err: err}
	}

	port, err := config.FindAvailablePort(playbackFlags.bindAddr, playbackFlags.port)
	if err != nil {
		return &BindFailedError{Err: err}
	}

	proxy := playback.NewProxy(matcher, ca, logger, metrics)
	addr := fmt.Sprintf("%s:%d", playbackFlags.bindAddr, port)
	server := &http.Server{
		Addr:              addr,
		Handler:           proxy,
		ReadHeaderTimeout: 10 * time.Second,
	}

	fmt.Printf("proxy listening on %s\n", addr)
	logger.Info().Str("addr", addr).Str("dir", playbackFlags.dir).Msg("playback engine started")

	sup := shutdown.New(server, logger, playbackFlags.dir, nil)
	return sup.Run()
}
