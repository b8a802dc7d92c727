package cli

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/threefoldtech/substrate-research/internal/chain"
	"github.com/threefoldtech/substrate-research/internal/domain"
)

func init() {
	contractCreateCmd.Flags().StringVar(&createDisk, "disk", "ssd", "Disk type: ssd or hdd")
	contractCreateCmd.Flags().Uint64Var(&createSize, "size", 0, "Volume size")
	contractCreateCmd.MarkFlagRequired("size")

	contractSetPriceCmd.Flags().Uint64Var(&priceSRU, "sru", 0, "SSD price per unit per hour")
	contractSetPriceCmd.Flags().Uint64Var(&priceHRU, "hru", 0, "HDD price per unit per hour")
	contractSetPriceCmd.Flags().Uint64Var(&priceCRU, "cru", 0, "CPU price per unit per hour")
	contractSetPriceCmd.Flags().Uint64Var(&priceMRU, "mru", 0, "Memory price per unit per hour")
	contractSetPriceCmd.Flags().Uint64Var(&priceNRU, "nru", 0, "Network price per unit per hour")
	contractSetPriceCmd.Flags().StringVar(&priceFarmer, "farmer", "", "Farmer account to pay")
	contractSetPriceCmd.MarkFlagRequired("farmer")

	contractCmd.AddCommand(contractCreateCmd)
	contractCmd.AddCommand(contractSetPriceCmd)
	contractCmd.AddCommand(contractAcceptCmd)
	contractCmd.AddCommand(contractPayCmd)
	contractCmd.AddCommand(contractDeployCmd)
	contractCmd.AddCommand(contractCancelCmd)
	contractCmd.AddCommand(contractClaimCmd)
	contractCmd.AddCommand(contractShowCmd)
	rootCmd.AddCommand(contractCmd)
}

var (
	createDisk  string
	createSize  uint64
	priceSRU    uint64
	priceHRU    uint64
	priceCRU    uint64
	priceMRU    uint64
	priceNRU    uint64
	priceFarmer string
)

var contractCmd = &cobra.Command{
	Use:   "contract",
	Short: "Create and manage capacity contracts",
}

func parseReservationID(arg string) (uint64, error) {
	id, err := strconv.ParseUint(arg, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid reservation id %q", arg)
	}
	return id, nil
}

var contractCreateCmd = &cobra.Command{
	Use:   "create NODE_ID",
	Short: "Reserve a disk volume on a grid node",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var disk uint8
		switch createDisk {
		case "hdd":
			disk = domain.DiskHDD
		case "ssd":
			disk = domain.DiskSSD
		default:
			return fmt.Errorf("unknown disk type %q", createDisk)
		}

		return submitCall(chain.CallCreateContract, chain.CreateContractArgs{
			NodeID: args[0],
			Volume: domain.VolumeType{DiskType: disk, Size: createSize},
		})
	},
}

var contractSetPriceCmd = &cobra.Command{
	Use:   "set-price RESERVATION_ID",
	Short: "Set resource prices for a contract (oracle accounts only)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseReservationID(args[0])
		if err != nil {
			return err
		}
		return submitCall(chain.CallSetContractPrice, chain.SetContractPriceArgs{
			ReservationID: id,
			Prices: domain.ResourcePrice{
				SRU: priceSRU,
				HRU: priceHRU,
				CRU: priceCRU,
				MRU: priceMRU,
				NRU: priceNRU,
			},
			FarmerAccount: domain.AccountID(priceFarmer),
		})
	},
}

var contractAcceptCmd = &cobra.Command{
	Use:   "accept RESERVATION_ID",
	Short: "Accept a priced contract (farmer)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseReservationID(args[0])
		if err != nil {
			return err
		}
		return submitCall(chain.CallAcceptContract, chain.AcceptContractArgs{ReservationID: id})
	},
}

var contractPayCmd = &cobra.Command{
	Use:   "pay RESERVATION_ID AMOUNT",
	Short: "Fund a contract's escrow",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseReservationID(args[0])
		if err != nil {
			return err
		}
		amount, err := strconv.ParseUint(args[1], 10, 64)
		if err != nil {
			return fmt.Errorf("invalid amount %q", args[1])
		}
		return submitCall(chain.CallPay, chain.PayArgs{ReservationID: id, Amount: amount})
	},
}

var contractDeployCmd = &cobra.Command{
	Use:   "deploy RESERVATION_ID",
	Short: "Report a workload as deployed (node)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseReservationID(args[0])
		if err != nil {
			return err
		}
		return submitCall(chain.CallContractDeployed, chain.ReservationArgs{ReservationID: id})
	},
}

var contractCancelCmd = &cobra.Command{
	Use:   "cancel RESERVATION_ID",
	Short: "Cancel a contract and refund its escrow (user)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseReservationID(args[0])
		if err != nil {
			return err
		}
		return submitCall(chain.CallCancelContract, chain.ReservationArgs{ReservationID: id})
	},
}

var contractClaimCmd = &cobra.Command{
	Use:   "claim RESERVATION_ID",
	Short: "Claim accrued funds from a deployed contract (farmer)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseReservationID(args[0])
		if err != nil {
			return err
		}
		return submitCall(chain.CallClaimFunds, chain.ReservationArgs{ReservationID: id})
	},
}

var contractShowCmd = &cobra.Command{
	Use:   "show RESERVATION_ID",
	Short: "Show a contract",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := parseReservationID(args[0])
		if err != nil {
			return err
		}

		var resp struct {
			Contract domain.Contract   `json:"contract"`
			Volume   domain.VolumeType `json:"volume"`
		}
		if err := getJSON("/api/contracts/"+strconv.FormatUint(id, 10), &resp); err != nil {
			return err
		}
		c := resp.Contract

		fmt.Printf("Reservation:  %d\n", c.ReservationID)
		fmt.Printf("State:        %s\n", c.WorkloadState)
		fmt.Printf("Accepted:     %v\n", c.Accepted)
		fmt.Printf("User:         %s\n", c.UserAccount)
		fmt.Printf("Farmer:       %s\n", c.FarmerAccount)
		fmt.Printf("Node:         %s\n", c.NodeID)
		fmt.Printf("Escrow:       %s\n", c.EscrowAccount)
		fmt.Printf("Volume:       %d (disk type %d)\n", resp.Volume.Size, resp.Volume.DiskType)
		if c.ExpiresAt > 0 {
			fmt.Printf("Expires:      %s\n", time.Unix(int64(c.ExpiresAt), 0).UTC().Format("2006-01-02 15:04:05"))
		}
		return nil
	},
}
