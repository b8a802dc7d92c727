// Package domain holds the core marketplace types shared by every layer.
// Domain types are pure — no infrastructure dependency.
package domain

// AccountID is the hex form of a 32-byte account: either an Ed25519
// public key or an escrow sub-account derived from a reservation ID.
type AccountID string

// WorkloadState tracks the lifecycle of a reserved workload.
// Transitions are monotone: Created → Deployed → Cancelled.
type WorkloadState string

const (
	StateCreated   WorkloadState = "Created"
	StateDeployed  WorkloadState = "Deployed"
	StateCancelled WorkloadState = "Cancelled"
)

// Disk types accepted in a VolumeType. Anything else is invalid.
const (
	DiskHDD uint8 = 1
	DiskSSD uint8 = 2
)

// VolumeType describes the storage a user reserves on a node.
type VolumeType struct {
	DiskType uint8  `json:"disk_type"`
	Size     uint64 `json:"size"`
}

// ResourcePrice is a farmer's published pricing: token smallest-units
// per resource unit per hour, in a fixed currency code.
type ResourcePrice struct {
	Currency uint64 `json:"currency"`
	SRU      uint64 `json:"sru"`
	HRU      uint64 `json:"hru"`
	CRU      uint64 `json:"cru"`
	NRU      uint64 `json:"nru"`
	MRU      uint64 `json:"mru"`
}

// Contract is a user's prepaid reservation on a specific node.
//
// ExpiresAt is unix seconds, 0 while no payment has been made.
// LastClaimed is unix milliseconds, set on deploy and on every claim.
type Contract struct {
	ReservationID  uint64        `json:"reservation_id"`
	EscrowAccount  AccountID     `json:"escrow_account"`
	UserAccount    AccountID     `json:"user_account"`
	FarmerAccount  AccountID     `json:"farmer_account"`
	NodeID         string        `json:"node_id"`
	ResourcePrices ResourcePrice `json:"resource_prices"`
	WorkloadState  WorkloadState `json:"workload_state"`
	Accepted       bool          `json:"accepted"`
	ExpiresAt      uint64        `json:"expires_at"`
	LastClaimed    uint64        `json:"last_claimed"`
}

// Validate checks the volume's disk type.
func (v VolumeType) Validate() error {
	if v.DiskType != DiskHDD && v.DiskType != DiskSSD {
		return ErrInvalidVolume
	}
	return nil
}
