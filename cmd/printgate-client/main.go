// Printgate-client is the command-line client for a printgate gateway.
//
// It lists printers, adds network printers as local queues, uploads PDFs
// and follows print jobs. Run without a command on a terminal to pick a
// printer interactively.
//
// Usage:
//
//	printgate-client [command] [flags]
//
// See 'printgate-client --help' for available commands.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/muurk/printgate/internal/version"
)

// errReported marks failures that were already shown to the user.
var errReported = errors.New("reported")

func main() {
	if err := rootCmd.Execute(); err != nil {
		if !errors.Is(err, errReported) {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "printgate-client",
	Short: "Printgate command-line client",
	Long: `A client for the printgate print gateway.

Lists local and discovered printers, adds network printers to the print
server, uploads PDFs and follows print jobs.

If no command is specified on a terminal, an interactive printer picker
is shown.`,
	Version:       version.Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	Example: `  # Pick a printer interactively
  printgate-client

  # List printers on a remote gateway
  printgate-client printers --gateway http://printgate.lan:3000

  # Print two copies and wait for the job to finish
  printgate-client print report.pdf --printer office --option copies=2 --wait`,
	RunE: runPicker,
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("printgate-client %s\n", version.Full())
	},
}
