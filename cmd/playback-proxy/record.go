package main

import (
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/ideamans/go-http-playback-proxy/internal/config"
	"github.com/ideamans/go-http-playback-proxy/internal/domain"
	"github.com/ideamans/go-http-playback-proxy/internal/inventory"
	"github.com/ideamans/go-http-playback-proxy/internal/mitm"
	"github.com/ideamans/go-http-playback-proxy/internal/observability"
	"github.com/ideamans/go-http-playback-proxy/internal/recording"
	"github.com/ideamans/go-http-playback-proxy/internal/shutdown"
)

var recordFlags struct {
	bindAddr string
	port     int
	entryURL string
	device   string
	dir      string
	logLevel string
}

var recordCmd = &cobra.Command{
	Use:   "record",
	Short: "Capture live traffic through this proxy into an inventory directory",
	RunE:  runRecord,
}

func init() {
	cfg := config.RecordingFromEnv()
	recordCmd.Flags().StringVar(&recordFlags.bindAddr, "bind", cfg.BindAddr, "address to bind the proxy listener on")
	recordCmd.Flags().IntVar(&recordFlags.port, "port", cfg.Port, "port to bind the proxy listener on (auto-scanned upward on conflict)")
	recordCmd.Flags().StringVar(&recordFlags.entryURL, "entry-url", cfg.EntryURL, "optional entry URL recorded alongside the inventory")
	recordCmd.Flags().StringVar(&recordFlags.device, "device", cfg.DeviceType, "device type recorded alongside the inventory: desktop|mobile")
	recordCmd.Flags().StringVar(&recordFlags.dir, "dir", cfg.InventoryDir, "inventory directory to write to")
	recordCmd.Flags().StringVar(&recordFlags.logLevel, "log-level", cfg.LogLevel, "zerolog level")
}

func runRecord(cmd *cobra.Command, args []string) error {
	sessionLogger := observability.NewLogger(recordFlags.logLevel).With().Str("session_id", uuid.NewString()).Logger()
	logger := &sessionLogger
	metrics := observability.NewMetrics()

	if cacheDir, ok := config.CacheDir(); ok {
		recordFlags.dir = cacheDir
	}

	port, err := config.FindAvailablePort(recordFlags.bindAddr, recordFlags.port)
	if err != nil {
		return &BindFailedError{Err: err}
	}

	ca, err := mitm.GenerateCA("playback-proxy recording session")
	if err != nil {
		return &CAGenerationFailedError{Err: err}
	}
	if err := ca.WritePEM(recordFlags.dir, inventory.CAFileName); err != nil {
		return &CAGenerationFailedError{Err: err}
	}

	store := inventory.NewStore()
	if recordFlags.entryURL != "" {
		store.SetEntryURL(recordFlags.entryURL)
	}
	if recordFlags.device != "" {
		store.SetDeviceType(domain.DeviceType(recordFlags.device))
	}

	proxy := recording.NewProxy(ca, store, logger, metrics, false)
	addr := fmt.Sprintf("%s:%d", recordFlags.bindAddr, port)
	server := &http.Server{
		Addr:              addr,
		Handler:           proxy,
		ReadHeaderTimeout: 10 * time.Second,
	}

	fmt.Printf("proxy listening on %s\n", addr)
	logger.Info().Str("addr", addr).Str("dir", recordFlags.dir).Msg("recording engine started")

	sup := shutdown.New(server, logger, recordFlags.dir, func() (domain.Inventory, error) {
		return store.Snapshot(), nil
	})
	return sup.Run()
}
