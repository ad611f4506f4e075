// Command playback-proxy is the entrypoint for both the recording and
// playback engines, wired with cobra the way
// rsclarke-oastrix/cmd/oastrix/{root,server}.go structures its own
// subcommands.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ideamans/go-http-playback-proxy/internal/config"
)

var rootCmd = &cobra.Command{
	Use:   "playback-proxy",
	Short: "Byte- and timing-faithful HTTP/HTTPS recording and replay proxy",
	Long: `playback-proxy is a MITM forward proxy with two modes:

  record    captures every request/response passing through it into a
            self-contained inventory directory.
  playback  serves recorded responses back with the original status,
            headers, and chunk-by-chunk timing.`,
}

func main() {
	if dir, ok := config.CacheDir(); ok {
		_ = os.MkdirAll(dir, 0o755)
	}
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(exitCodeFor(err))
	}
}

func init() {
	rootCmd.AddCommand(recordCmd)
	rootCmd.AddCommand(playbackCmd)
}
