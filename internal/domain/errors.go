package domain

import "errors"

// ─── Sentinel Errors ────────────────────────────────────────────────────────

var (
	// Authorization
	ErrUnauthorizedUser   = errors.New("signer is not the contract user")
	ErrUnauthorizedFarmer = errors.New("signer is not the contract farmer")
	ErrUnauthorizedNode   = errors.New("signer does not match the contract node key")
	ErrUnauthorizedOracle = errors.New("signer is not an allowed oracle account")

	// Preconditions
	ErrContractExists      = errors.New("contract already exists")
	ErrContractNotExists   = errors.New("contract does not exist")
	ErrContractNotAccepted = errors.New("contract has not been accepted by the farmer")
	ErrContractNotDeployed = errors.New("contract workload is not deployed")
	ErrContractCancelled   = errors.New("contract is cancelled")
	ErrClaim               = errors.New("no claimable time has elapsed")
	ErrInvalidVolume       = errors.New("invalid volume disk type")

	// Economic
	ErrNotEnoughBalanceToClaim = errors.New("escrow balance too low to claim")
	ErrCantMakeTransfer        = errors.New("can't make transfer")

	// Oracle worker
	ErrHTTPFetching     = errors.New("explorer fetch failed")
	ErrOffchainSignedTx = errors.New("off-chain signed transaction failed")
	ErrNoLocalAccount   = errors.New("no local account available for signing")
	ErrUnknownOffchain  = errors.New("unknown off-chain worker state")
)
