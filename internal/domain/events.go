package domain

// Event names deposited by the dispatch handlers and the sweeper.
const (
	EventContractAdded        = "ContractAdded"
	EventContractPaid         = "ContractPaid"
	EventContractUpdated      = "ContractUpdated"
	EventContractAccepted     = "ContractAccepted"
	EventContractDeployed     = "ContractDeployed"
	EventContractCancelled    = "ContractCancelled"
	EventContractFundsClaimed = "ContractFundsClaimed"
)

// Event is a state-transition notification recorded per block.
// Account carries the user account for ContractAdded and the escrow
// account for ContractPaid/ContractUpdated; NodeID is set where the
// event concerns a node.
type Event struct {
	Height        uint64    `json:"height"`
	Name          string    `json:"name"`
	Account       AccountID `json:"account,omitempty"`
	NodeID        string    `json:"node_id,omitempty"`
	ReservationID uint64    `json:"reservation_id"`
}
