// Package pallet implements the contract state machine: authenticated
// dispatch handlers, escrowed payment streaming, and the expiration
// sweeper. All handlers run inside the host's per-dispatch transaction
// and read time only from the block environment, never the system
// clock, so every replica computes identical state from identical
// inputs.
package pallet

import (
	"fmt"
	"math"

	"github.com/threefoldtech/substrate-research/internal/domain"
	"github.com/threefoldtech/substrate-research/internal/infra/metrics"
	"github.com/threefoldtech/substrate-research/internal/infra/sqlite"
	"github.com/threefoldtech/substrate-research/internal/pricing"
	"github.com/threefoldtech/substrate-research/internal/security"
)

// DefaultMinimumBalance is the existential deposit seeded into every
// escrow account so it exists before receiving transfers.
const DefaultMinimumBalance uint64 = 1_000

// Pallet holds the static configuration of the state machine.
type Pallet struct {
	// MinimumBalance seeds new escrow accounts.
	MinimumBalance uint64

	// OracleAccounts is the allow-list for set_contract_price. Empty
	// means any signed origin is accepted (the original, unhardened
	// behavior).
	OracleAccounts []domain.AccountID
}

// New returns a pallet with the default minimum balance.
func New() *Pallet {
	return &Pallet{MinimumBalance: DefaultMinimumBalance}
}

// Env is the host environment of one dispatch: the transaction every
// state write goes through, the block height, and the block timestamp
// in unix milliseconds.
type Env struct {
	Tx     *sqlite.Tx
	Height uint64
	NowMS  uint64
}

func (e Env) nowSec() uint64 { return e.NowMS / 1000 }

func (e Env) deposit(name string, account domain.AccountID, nodeID string, id uint64) error {
	return e.Tx.AppendEvent(domain.Event{
		Height:        e.Height,
		Name:          name,
		Account:       account,
		NodeID:        nodeID,
		ReservationID: id,
	})
}

// ─── Dispatchables ──────────────────────────────────────────────────────────

// CreateContract allocates the next reservation ID, derives and seeds
// its escrow account, and stores the new contract in Created state.
func (p *Pallet) CreateContract(env Env, user domain.AccountID, nodeID string, vol domain.VolumeType) error {
	if err := vol.Validate(); err != nil {
		return err
	}

	id, err := env.Tx.ReservationID()
	if err != nil {
		return err
	}
	if existing, err := env.Tx.Contract(id); err != nil {
		return err
	} else if existing != nil {
		return domain.ErrContractExists
	}

	escrow := security.DeriveEscrowAccount(id)
	if err := makeFreeBalanceBe(env.Tx, escrow, p.MinimumBalance); err != nil {
		return err
	}

	contract := &domain.Contract{
		ReservationID: id,
		EscrowAccount: escrow,
		UserAccount:   user,
		NodeID:        nodeID,
		WorkloadState: domain.StateCreated,
	}
	if err := env.Tx.PutContract(contract); err != nil {
		return err
	}
	if err := env.Tx.PutVolume(id, vol); err != nil {
		return err
	}
	if err := env.Tx.SetReservationState(id, domain.StateCreated); err != nil {
		return err
	}
	if err := env.Tx.AppendAccountReservation(user, id); err != nil {
		return err
	}
	if err := env.Tx.SetReservationID(id + 1); err != nil {
		return err
	}

	return env.deposit(domain.EventContractAdded, user, nodeID, id)
}

// SetContractPrice binds the farmer account and resource prices to a
// contract. Intended for the oracle worker; when an allow-list is
// configured the origin must be on it.
func (p *Pallet) SetContractPrice(env Env, origin domain.AccountID, id uint64, prices domain.ResourcePrice, farmer domain.AccountID) error {
	if len(p.OracleAccounts) > 0 {
		allowed := false
		for _, a := range p.OracleAccounts {
			if a == origin {
				allowed = true
				break
			}
		}
		if !allowed {
			return domain.ErrUnauthorizedOracle
		}
	}

	contract, err := env.Tx.Contract(id)
	if err != nil {
		return err
	}
	if contract == nil {
		return domain.ErrContractNotExists
	}

	contract.ResourcePrices = prices
	contract.FarmerAccount = farmer
	if err := env.Tx.PutContract(contract); err != nil {
		return err
	}

	return env.deposit(domain.EventContractUpdated, contract.EscrowAccount, "", id)
}

// AcceptContract marks the contract accepted by its bound farmer.
func (p *Pallet) AcceptContract(env Env, farmer domain.AccountID, id uint64) error {
	contract, err := env.Tx.Contract(id)
	if err != nil {
		return err
	}
	if contract == nil {
		return domain.ErrContractNotExists
	}
	if farmer != contract.FarmerAccount {
		return domain.ErrUnauthorizedFarmer
	}

	contract.Accepted = true
	if err := env.Tx.PutContract(contract); err != nil {
		return err
	}

	return env.deposit(domain.EventContractAccepted, "", contract.NodeID, id)
}

// Pay deposits tokens into the contract escrow and extends the
// expiration horizon. The first payment anchors expires_at to the
// solvency of the whole escrow balance; later payments extend it by
// the horizon of the amount paid.
func (p *Pallet) Pay(env Env, payer domain.AccountID, id uint64, amount uint64) error {
	contract, err := env.Tx.Contract(id)
	if err != nil {
		return err
	}
	if contract == nil {
		return domain.ErrContractNotExists
	}
	if !contract.Accepted {
		return domain.ErrContractNotAccepted
	}
	if contract.WorkloadState == domain.StateCancelled {
		return domain.ErrContractCancelled
	}

	if err := transfer(env.Tx, payer, contract.EscrowAccount, amount); err != nil {
		return err
	}

	pps, err := contractRate(env.Tx, contract)
	if err != nil {
		return err
	}

	if contract.ExpiresAt > 0 {
		if err := env.Tx.RemoveExpiration(contract.ExpiresAt, id); err != nil {
			return err
		}
		contract.ExpiresAt = satAdd(contract.ExpiresAt, pricing.SolvencySeconds(amount, pps))
	} else {
		balance, err := env.Tx.Balance(contract.EscrowAccount)
		if err != nil {
			return err
		}
		contract.ExpiresAt = satAdd(env.nowSec(), pricing.SolvencySeconds(balance, pps))
	}

	if err := env.Tx.AddExpiration(contract.ExpiresAt, id); err != nil {
		return err
	}
	if err := env.Tx.PutContract(contract); err != nil {
		return err
	}

	return env.deposit(domain.EventContractPaid, contract.EscrowAccount, "", id)
}

// ContractDeployed is the node's signal that the workload is running.
// Metering starts here: the horizon is recomputed from the current
// escrow balance and last_claimed is anchored to now.
func (p *Pallet) ContractDeployed(env Env, node domain.AccountID, id uint64) error {
	contract, err := env.Tx.Contract(id)
	if err != nil {
		return err
	}
	if contract == nil {
		return domain.ErrContractNotExists
	}
	if err := authorizeNode(contract, node); err != nil {
		return err
	}
	if contract.WorkloadState == domain.StateCancelled {
		return domain.ErrContractCancelled
	}

	pps, err := contractRate(env.Tx, contract)
	if err != nil {
		return err
	}
	balance, err := env.Tx.Balance(contract.EscrowAccount)
	if err != nil {
		return err
	}

	if contract.ExpiresAt > 0 {
		if err := env.Tx.RemoveExpiration(contract.ExpiresAt, id); err != nil {
			return err
		}
	}
	contract.ExpiresAt = satAdd(env.nowSec(), pricing.SolvencySeconds(balance, pps))
	if err := env.Tx.AddExpiration(contract.ExpiresAt, id); err != nil {
		return err
	}

	contract.WorkloadState = domain.StateDeployed
	contract.LastClaimed = env.NowMS
	if err := env.Tx.PutContract(contract); err != nil {
		return err
	}
	if err := env.Tx.SetReservationState(id, domain.StateDeployed); err != nil {
		return err
	}

	return env.deposit(domain.EventContractDeployed, "", contract.NodeID, id)
}

// ContractCancelled is the node's signal that the workload stopped.
// The escrow is not refunded here; the user cancel path or the
// sweeper handles funds.
func (p *Pallet) ContractCancelled(env Env, node domain.AccountID, id uint64) error {
	contract, err := env.Tx.Contract(id)
	if err != nil {
		return err
	}
	if contract == nil {
		return domain.ErrContractNotExists
	}
	if err := authorizeNode(contract, node); err != nil {
		return err
	}
	if contract.WorkloadState == domain.StateCancelled {
		return nil
	}

	return cancel(env, contract)
}

// CancelContract is the user's exit: the full escrow balance is
// refunded and the contract decommissioned.
func (p *Pallet) CancelContract(env Env, user domain.AccountID, id uint64) error {
	contract, err := env.Tx.Contract(id)
	if err != nil {
		return err
	}
	if contract == nil {
		return domain.ErrContractNotExists
	}
	if user != contract.UserAccount {
		return domain.ErrUnauthorizedUser
	}

	balance, err := env.Tx.Balance(contract.EscrowAccount)
	if err != nil {
		return err
	}
	if err := transfer(env.Tx, contract.EscrowAccount, user, balance); err != nil {
		return err
	}

	if contract.WorkloadState == domain.StateCancelled {
		return nil
	}
	return cancel(env, contract)
}

// ClaimFunds pays the farmer for the seconds elapsed since the last
// claim, clamped to the escrow balance. The remainder keeps funding
// the horizon.
func (p *Pallet) ClaimFunds(env Env, farmer domain.AccountID, id uint64) error {
	contract, err := env.Tx.Contract(id)
	if err != nil {
		return err
	}
	if contract == nil {
		return domain.ErrContractNotExists
	}
	if contract.WorkloadState != domain.StateDeployed {
		return domain.ErrContractNotDeployed
	}
	if farmer != contract.FarmerAccount {
		return domain.ErrUnauthorizedFarmer
	}

	if env.NowMS < contract.LastClaimed {
		return domain.ErrClaim
	}
	elapsedSec := (env.NowMS - contract.LastClaimed) / 1000
	if elapsedSec == 0 {
		return domain.ErrClaim
	}

	pps, err := contractRate(env.Tx, contract)
	if err != nil {
		return err
	}
	owed := pricing.Owed(elapsedSec, pps)

	balance, err := env.Tx.Balance(contract.EscrowAccount)
	if err != nil {
		return err
	}
	if owed > balance {
		owed = balance
	}
	if err := transfer(env.Tx, contract.EscrowAccount, farmer, owed); err != nil {
		return err
	}

	contract.LastClaimed = env.NowMS
	if err := env.Tx.PutContract(contract); err != nil {
		return err
	}

	return env.deposit(domain.EventContractFundsClaimed, "", "", id)
}

// ─── Shared transitions ─────────────────────────────────────────────────────

// cancel performs the common decommission bookkeeping: terminal state,
// expiration index cleanup, cancellation event.
func cancel(env Env, contract *domain.Contract) error {
	if contract.ExpiresAt > 0 {
		if err := env.Tx.RemoveExpiration(contract.ExpiresAt, contract.ReservationID); err != nil {
			return err
		}
	}

	contract.WorkloadState = domain.StateCancelled
	if err := env.Tx.PutContract(contract); err != nil {
		return err
	}
	if err := env.Tx.SetReservationState(contract.ReservationID, domain.StateCancelled); err != nil {
		return err
	}
	metrics.ContractsCancelled.Inc()

	return env.deposit(domain.EventContractCancelled, "", contract.NodeID, contract.ReservationID)
}

// authorizeNode checks that the signer is the key encoded in the
// contract's base58 node ID.
func authorizeNode(contract *domain.Contract, signer domain.AccountID) error {
	nodeAccount, err := security.AccountFromNodeID(contract.NodeID)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrUnauthorizedNode, err)
	}
	if signer != nodeAccount {
		return domain.ErrUnauthorizedNode
	}
	return nil
}

// contractRate computes the contract's per-second price from its
// stored prices and reserved volume.
func contractRate(tx *sqlite.Tx, contract *domain.Contract) (pricing.Q64, error) {
	vol, ok, err := tx.Volume(contract.ReservationID)
	if err != nil {
		return pricing.Q64{}, err
	}
	if !ok {
		return pricing.Q64{}, domain.ErrContractNotExists
	}
	rsu, err := pricing.VolumeRSU(vol)
	if err != nil {
		return pricing.Q64{}, err
	}
	return pricing.PricePerSecond(pricing.PricePerHour(contract.ResourcePrices, rsu)), nil
}

// satAdd adds unix seconds with saturation. The ceiling is MaxInt64
// because the store keeps timestamps in signed 64-bit columns.
func satAdd(a, b uint64) uint64 {
	if b > math.MaxInt64-a {
		return math.MaxInt64
	}
	return a + b
}
