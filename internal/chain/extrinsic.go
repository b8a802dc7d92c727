// Package chain runs the single-node block loop: signed extrinsics are
// pooled, applied in order inside one storage transaction each, and every
// block finishes with the pallet's finalization hook.
package chain

import (
	"crypto/ed25519"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/threefoldtech/substrate-research/internal/domain"
	"github.com/threefoldtech/substrate-research/internal/security"
)

// Dispatch method names. These are the wire-level call identifiers and
// must stay stable across releases.
const (
	CallCreateContract    = "create_contract"
	CallSetContractPrice  = "set_contract_price"
	CallAcceptContract    = "accept_contract"
	CallPay               = "pay"
	CallContractDeployed  = "contract_deployed"
	CallContractCancelled = "contract_cancelled"
	CallCancelContract    = "cancel_contract"
	CallClaimFunds        = "claim_funds"
)

// Call is a dispatchable pallet call: a method name plus its
// method-specific JSON arguments.
type Call struct {
	Method string          `json:"method"`
	Args   json.RawMessage `json:"args"`
}

// Argument payloads, one per method.

type CreateContractArgs struct {
	NodeID string            `json:"node_id"`
	Volume domain.VolumeType `json:"volume"`
}

type SetContractPriceArgs struct {
	ReservationID uint64               `json:"reservation_id"`
	Prices        domain.ResourcePrice `json:"resource_prices"`
	FarmerAccount domain.AccountID     `json:"farmer_account"`
}

type AcceptContractArgs struct {
	ReservationID uint64 `json:"reservation_id"`
}

type PayArgs struct {
	ReservationID uint64 `json:"reservation_id"`
	Amount        uint64 `json:"amount"`
}

type ReservationArgs struct {
	ReservationID uint64 `json:"reservation_id"`
}

// Extrinsic is a signed call from an account. The signature covers the
// ID, origin and call so a pooled extrinsic cannot be replayed under a
// different identity or payload.
type Extrinsic struct {
	ID        string           `json:"id"`
	Origin    domain.AccountID `json:"origin"`
	Call      Call             `json:"call"`
	Signature string           `json:"signature"`
}

// signingPayload is the canonical byte form covered by the signature.
type signingPayload struct {
	ID     string           `json:"id"`
	Origin domain.AccountID `json:"origin"`
	Call   Call             `json:"call"`
}

func signingBytes(id string, origin domain.AccountID, call Call) ([]byte, error) {
	return json.Marshal(signingPayload{ID: id, Origin: origin, Call: call})
}

// NewCall marshals args into a Call for the given method.
func NewCall(method string, args any) (Call, error) {
	raw, err := json.Marshal(args)
	if err != nil {
		return Call{}, fmt.Errorf("encode %s args: %w", method, err)
	}
	return Call{Method: method, Args: raw}, nil
}

// Sign builds a signed extrinsic from the keypair's account.
func Sign(kp *security.Keypair, call Call) (*Extrinsic, error) {
	id := uuid.NewString()
	origin := kp.AccountID()

	payload, err := signingBytes(id, origin, call)
	if err != nil {
		return nil, err
	}
	return &Extrinsic{
		ID:        id,
		Origin:    origin,
		Call:      call,
		Signature: hex.EncodeToString(kp.Sign(payload)),
	}, nil
}

// Verify checks the extrinsic signature against its origin account.
func (e *Extrinsic) Verify() error {
	pub, err := security.PublicKeyFromAccount(e.Origin)
	if err != nil {
		return fmt.Errorf("extrinsic %s: %w", e.ID, err)
	}
	sig, err := hex.DecodeString(e.Signature)
	if err != nil || len(sig) != ed25519.SignatureSize {
		return fmt.Errorf("extrinsic %s: malformed signature", e.ID)
	}
	payload, err := signingBytes(e.ID, e.Origin, e.Call)
	if err != nil {
		return err
	}
	if !ed25519.Verify(pub, payload, sig) {
		return fmt.Errorf("extrinsic %s: bad signature", e.ID)
	}
	return nil
}
