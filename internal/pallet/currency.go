package pallet

import (
	"math"

	"github.com/threefoldtech/substrate-research/internal/domain"
	"github.com/threefoldtech/substrate-research/internal/infra/sqlite"
)

// Host currency primitives, scoped to the dispatch transaction.
// Escrow accounts are mutated only through these and only from the
// handlers in this package.

// transfer moves amount between accounts, AllowDeath semantics: the
// source may drop to zero. A zero amount is a no-op.
func transfer(tx *sqlite.Tx, from, to domain.AccountID, amount uint64) error {
	if amount == 0 {
		return nil
	}

	fromBal, err := tx.Balance(from)
	if err != nil {
		return err
	}
	if fromBal < amount {
		return domain.ErrCantMakeTransfer
	}
	toBal, err := tx.Balance(to)
	if err != nil {
		return err
	}
	if toBal > math.MaxInt64-amount {
		return domain.ErrCantMakeTransfer
	}

	if err := tx.SetBalance(from, fromBal-amount); err != nil {
		return err
	}
	return tx.SetBalance(to, toBal+amount)
}

// makeFreeBalanceBe forces an account's balance to amount, creating
// the account if needed.
func makeFreeBalanceBe(tx *sqlite.Tx, account domain.AccountID, amount uint64) error {
	return tx.SetBalance(account, amount)
}
