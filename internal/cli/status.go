package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(statusCmd)
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the running node's chain status",
	RunE:  runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	var resp struct {
		Height    uint64 `json:"height"`
		NextID    uint64 `json:"next_reservation_id"`
		PoolDepth int    `json:"pool_depth"`
	}
	if err := getJSON("/api/status", &resp); err != nil {
		return err
	}

	fmt.Printf("Height:       %d\n", resp.Height)
	fmt.Printf("Reservations: %d\n", resp.NextID)
	fmt.Printf("Pool depth:   %d\n", resp.PoolDepth)
	return nil
}
