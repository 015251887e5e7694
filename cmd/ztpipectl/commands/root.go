// Package commands implements the ztpipectl CLI commands.
package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ztpipe/ztpipe/internal/adminapi"
)

var (
	// client is the admin API client, initialized in PersistentPreRunE.
	client *adminapi.Client

	// outputFormat controls the output format for all commands (table or json).
	outputFormat string

	// serverAddr is the daemon's admin API address (host:port).
	serverAddr string
)

// rootCmd is the top-level cobra command for ztpipectl.
var rootCmd = &cobra.Command{
	Use:   "ztpipectl",
	Short: "CLI client for the ztpiped overlay transport adapter",
	Long:  "ztpipectl talks to the ztpiped daemon's admin API to inspect endpoints and pipes and to drive dials and listens.",
	PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
		client = adminapi.NewClient("http://" + serverAddr)
		return nil
	},
	// Silence cobra's built-in usage/error printing so we control it.
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverAddr, "addr", "localhost:7700",
		"ztpiped admin API address (host:port)")
	rootCmd.PersistentFlags().StringVar(&outputFormat, "format", "table",
		"output format: table, json")

	rootCmd.AddCommand(statusCmd())
	rootCmd.AddCommand(endpointsCmd())
	rootCmd.AddCommand(pipesCmd())
	rootCmd.AddCommand(dialCmd())
	rootCmd.AddCommand(listenCmd())
	rootCmd.AddCommand(versionCmd())
	rootCmd.AddCommand(shellCmd())
}

// Execute runs the root command and exits with code 1 on error.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
