// Package cmd implements CLI commands using cobra framework.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	configFile string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = newRootCmd()

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "flowstat",
		Short: "flowstat - offline TCP/UDP flow statistics from packet traces",
		Long: `flowstat reads a captured Ethernet trace (pcap or pcapng), rebuilds the
TCP and UDP flows it contains and writes per-direction statistics for each
flow: packet and payload byte counts, TCP flag counts, first-seen and close
timestamps.

TCP flows are keyed by the host that sent the opening SYN. UDP flows are
keyed by the first sender and close after an idle timeout.`,
		Version:       "0.1.0",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Global flags
	root.PersistentFlags().StringVarP(&configFile, "config", "c", "",
		"config file path (defaults apply when empty)")

	// Add subcommands
	root.AddCommand(newAnalyzeCmd())
	root.AddCommand(newValidateCmd())
	return root
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

// exitWithError prints error message and exits with code 1
func exitWithError(msg string, err error) {
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s: %v\n", msg, err)
	} else {
		fmt.Fprintf(os.Stderr, "Error: %s\n", msg)
	}
	os.Exit(1)
}
