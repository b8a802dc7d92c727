package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	keysCmd.AddCommand(keysInitCmd)
	keysCmd.AddCommand(keysShowCmd)
	rootCmd.AddCommand(keysCmd)
}

var keysCmd = &cobra.Command{
	Use:   "keys",
	Short: "Manage the local account keypair",
}

var keysInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create the local keypair if it does not exist",
	RunE: func(cmd *cobra.Command, args []string) error {
		kp, err := loadKeypair()
		if err != nil {
			return err
		}
		fmt.Printf("Account: %s\n", kp.AccountID())
		fmt.Printf("Node ID: %s\n", kp.NodeID())
		return nil
	},
}

var keysShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the local account and node identifiers",
	RunE: func(cmd *cobra.Command, args []string) error {
		kp, err := loadKeypair()
		if err != nil {
			return err
		}
		fmt.Printf("Account: %s\n", kp.AccountID())
		fmt.Printf("Node ID: %s\n", kp.NodeID())
		return nil
	},
}
