package pallet

import (
	"log"

	"github.com/threefoldtech/substrate-research/internal/domain"
	"github.com/threefoldtech/substrate-research/internal/infra/metrics"
)

// OnFinalize runs the expiration sweep at block finalization: every
// contract whose expiration second falls in [LastBlockTime, now) is
// decommissioned with its remaining escrow paid to the farmer. The
// interval covers all seconds since the previous block, so expirations
// are not lost across missed blocks.
//
// A failed decommission is logged and skipped; it never aborts the
// block.
func (p *Pallet) OnFinalize(env Env) error {
	now := env.nowSec()

	last, err := env.Tx.LastBlockTime()
	if err != nil {
		return err
	}
	if env.Height <= 1 || last == 0 {
		return env.Tx.SetLastBlockTime(now)
	}

	if now > last {
		// Snapshot before mutating the index.
		expirations, err := env.Tx.ExpirationsBetween(last, now)
		if err != nil {
			return err
		}
		for _, e := range expirations {
			if err := p.decommission(env, e.ReservationID, e.Second); err != nil {
				log.Printf("[pallet] decommission of contract %d at %d failed: %v",
					e.ReservationID, e.Second, err)
				continue
			}
			metrics.SweepDecommissions.Inc()
		}
	}

	return env.Tx.SetLastBlockTime(now)
}

// decommission pays the remaining escrow to the farmer and cancels the
// contract.
func (p *Pallet) decommission(env Env, id, second uint64) error {
	contract, err := env.Tx.Contract(id)
	if err != nil {
		return err
	}
	if contract == nil || contract.WorkloadState == domain.StateCancelled {
		// Stale enrollment; drop it so the bucket empties out.
		return env.Tx.RemoveExpiration(second, id)
	}

	balance, err := env.Tx.Balance(contract.EscrowAccount)
	if err != nil {
		return err
	}
	if contract.FarmerAccount == "" {
		// Never priced: nothing to pay out, still decommission.
		log.Printf("[pallet] contract %d expired without a farmer, escrow %d retained", id, balance)
	} else if err := transfer(env.Tx, contract.EscrowAccount, contract.FarmerAccount, balance); err != nil {
		return err
	}

	return cancel(env, contract)
}
