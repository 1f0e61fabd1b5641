// Printgate is a print gateway for local CUPS queues and network printers.
//
// It exposes the print server and printers discovered over mDNS through a
// small HTTP API, with a live WebSocket feed of the printer list.
//
// Usage:
//
//	printgate serve [flags]
//
// See 'printgate --help' for available commands.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/muurk/printgate/internal/version"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "printgate",
	Short: "Printgate print gateway",
	Long: `A print gateway that puts the local CUPS server and printers discovered
over mDNS behind a single HTTP API.

Clients upload PDFs with POST /print, follow jobs with GET /job_status and
watch the printer list live on /events.

Note: For a command-line client, use the separate 'printgate-client' utility.`,
	Version:       version.Version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Global flags
var (
	configPath string
	envFiles   []string
)

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to config file (default: OS config dir)")
	rootCmd.PersistentFlags().StringSliceVar(&envFiles, "env-file", nil, "Load environment variables from these files (default: .env)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(scanCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("printgate %s\n", version.Full())
	},
}
