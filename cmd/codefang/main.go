// Package main provides the entry point for the codefang upload-processing worker.
package main

import (
	"fmt"
	"net/http"
	nethttppprof "net/http/pprof"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/Sumatoshi-tech/codefang/cmd/codefang/commands"
	"github.com/Sumatoshi-tech/codefang/pkg/version"
)

// pprofReadHeaderTimeout is the read header timeout for the pprof HTTP server.
const pprofReadHeaderTimeout = 10 * time.Second

var (
	verbose bool
	quiet   bool
)

func main() {
	// Start pprof HTTP server on localhost:6060 with explicit handler
	// registration (avoids gosec G108: DefaultServeMux exposure) and
	// read header timeout (avoids gosec G114: no timeouts).
	go func() {
		mux := http.NewServeMux()
		mux.HandleFunc("/debug/pprof/", nethttppprof.Index)
		mux.HandleFunc("/debug/pprof/cmdline", nethttppprof.Cmdline)
		mux.HandleFunc("/debug/pprof/profile", nethttppprof.Profile)
		mux.HandleFunc("/debug/pprof/symbol", nethttppprof.Symbol)
		mux.HandleFunc("/debug/pprof/trace", nethttppprof.Trace)
		server := &http.Server{
			Addr:              "localhost:6060",
			Handler:           mux,
			ReadHeaderTimeout: pprofReadHeaderTimeout,
		}
		server.ListenAndServe() //nolint:errcheck // best-effort diagnostics server.
	}()

	version.InitBinaryVersion()

	rootCmd := &cobra.Command{
		Use:   "codefang",
		Short: "Codefang upload-processing worker",
		Long: `Codefang drains queued coverage/bundle/test-result uploads for a commit,
merges them into a master report, and notifies once the commit settles.

Commands:
  upload-worker  Process queued uploads for one (repo, commit, report_type)`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "suppress output")

	rootCmd.AddCommand(commands.NewWorkerCommand())
	rootCmd.AddCommand(versionCmd())

	err := rootCmd.Execute()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(_ *cobra.Command, _ []string) {
			fmt.Fprintf(os.Stdout, "codefang %s (commit: %s, built: %s)\n", version.Version, version.Commit, version.Date)
		},
	}
}
