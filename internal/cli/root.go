// Package cli implements the gridd command-line interface using Cobra.
// Subcommands either run the node (serve) or talk to a running node's
// HTTP API with extrinsics signed by the local keypair.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "gridd",
	Short: "gridd — compute resource marketplace node",
	Long: `gridd runs a single-node compute resource marketplace chain.
Users reserve disk capacity on grid nodes, an off-chain oracle prices
reservations from the public explorer, and farmers collect payment for
the time their capacity is consumed.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// nodeURL is where client subcommands reach the running node.
var nodeURL string

func init() {
	rootCmd.PersistentFlags().StringVar(&nodeURL, "node", "http://127.0.0.1:8451", "Node API base URL")
}

// Execute runs the root command. Called from main.go.
func Execute(version string) {
	rootCmd.Version = version

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
