// Package security provides cryptographic identity for the chain:
// Ed25519 keypairs, account IDs, base58 node IDs, and the derivation
// of per-contract escrow sub-accounts.
package security

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"

	"github.com/mr-tron/base58"

	"github.com/threefoldtech/substrate-research/internal/domain"
)

// PalletID is the fixed 8-byte identifier seeding escrow sub-account
// derivation. Distinct reservation IDs yield distinct accounts.
var PalletID = [8]byte{'g', 'r', 'i', 'd', 'm', 'k', 't', '!'}

// Keypair holds an Ed25519 signing identity.
type Keypair struct {
	Public  ed25519.PublicKey
	Private ed25519.PrivateKey
}

// GenerateKeypair creates a new Ed25519 keypair.
func GenerateKeypair() (*Keypair, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate ed25519 keypair: %w", err)
	}
	return &Keypair{Public: pub, Private: priv}, nil
}

// LoadOrCreateKeypair loads the keypair stored under home/keys, or
// generates and persists a new one on first run.
func LoadOrCreateKeypair(home string) (*Keypair, error) {
	keyDir := filepath.Join(home, "keys")
	pubPath := filepath.Join(keyDir, "account.pub")
	privPath := filepath.Join(keyDir, "account.key")

	pubBytes, pubErr := os.ReadFile(pubPath)
	privBytes, privErr := os.ReadFile(privPath)

	if pubErr == nil && privErr == nil {
		pub, err := hex.DecodeString(string(pubBytes))
		if err != nil {
			return nil, fmt.Errorf("decode public key: %w", err)
		}
		priv, err := hex.DecodeString(string(privBytes))
		if err != nil {
			return nil, fmt.Errorf("decode private key: %w", err)
		}
		if len(pub) != ed25519.PublicKeySize || len(priv) != ed25519.PrivateKeySize {
			return nil, fmt.Errorf("key files under %s are corrupt", keyDir)
		}
		return &Keypair{
			Public:  ed25519.PublicKey(pub),
			Private: ed25519.PrivateKey(priv),
		}, nil
	}

	kp, err := GenerateKeypair()
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(keyDir, 0700); err != nil {
		return nil, fmt.Errorf("create key dir: %w", err)
	}
	if err := os.WriteFile(pubPath, []byte(hex.EncodeToString(kp.Public)), 0644); err != nil {
		return nil, fmt.Errorf("write public key: %w", err)
	}
	if err := os.WriteFile(privPath, []byte(hex.EncodeToString(kp.Private)), 0600); err != nil {
		return nil, fmt.Errorf("write private key: %w", err)
	}

	return kp, nil
}

// AccountID returns the account this keypair signs for.
func (kp *Keypair) AccountID() domain.AccountID {
	return AccountFromPublicKey(kp.Public)
}

// NodeID returns the base58 node identifier for this keypair.
func (kp *Keypair) NodeID() string {
	return base58.Encode(kp.Public)
}

// Sign signs a message with the private key.
func (kp *Keypair) Sign(message []byte) []byte {
	return ed25519.Sign(kp.Private, message)
}

// Verify checks a signature against a public key.
func Verify(message, signature []byte, publicKey ed25519.PublicKey) bool {
	return len(publicKey) == ed25519.PublicKeySize &&
		ed25519.Verify(publicKey, message, signature)
}

// AccountFromPublicKey maps an Ed25519 public key to its account ID.
func AccountFromPublicKey(pub ed25519.PublicKey) domain.AccountID {
	return domain.AccountID(hex.EncodeToString(pub))
}

// PublicKeyFromAccount recovers the raw public key behind an account
// ID. Derived escrow accounts decode too but never verify a signature.
func PublicKeyFromAccount(id domain.AccountID) (ed25519.PublicKey, error) {
	raw, err := hex.DecodeString(string(id))
	if err != nil {
		return nil, fmt.Errorf("decode account id: %w", err)
	}
	if len(raw) != ed25519.PublicKeySize {
		return nil, fmt.Errorf("account id is %d bytes, want %d", len(raw), ed25519.PublicKeySize)
	}
	return ed25519.PublicKey(raw), nil
}

// AccountFromNodeID decodes a base58 node ID into the node's account.
// The decoded bytes must be an Ed25519 public key.
func AccountFromNodeID(nodeID string) (domain.AccountID, error) {
	raw, err := base58.Decode(nodeID)
	if err != nil {
		return "", fmt.Errorf("decode node id: %w", err)
	}
	if len(raw) != ed25519.PublicKeySize {
		return "", fmt.Errorf("node id decodes to %d bytes, want %d", len(raw), ed25519.PublicKeySize)
	}
	return AccountFromPublicKey(ed25519.PublicKey(raw)), nil
}

// AccountFromHexPubkey decodes a 32-byte hex public key (as served by
// the explorer's user records) into an account ID.
func AccountFromHexPubkey(hexKey string) (domain.AccountID, error) {
	raw, err := hex.DecodeString(hexKey)
	if err != nil {
		return "", fmt.Errorf("decode pubkey hex: %w", err)
	}
	if len(raw) != ed25519.PublicKeySize {
		return "", fmt.Errorf("pubkey is %d bytes, want %d", len(raw), ed25519.PublicKeySize)
	}
	return AccountFromPublicKey(ed25519.PublicKey(raw)), nil
}

// DeriveEscrowAccount derives the deterministic escrow sub-account for
// a reservation: sha256(PalletID ‖ reservation_id_le).
func DeriveEscrowAccount(reservationID uint64) domain.AccountID {
	var salt [8]byte
	binary.LittleEndian.PutUint64(salt[:], reservationID)

	h := sha256.New()
	h.Write(PalletID[:])
	h.Write(salt[:])
	return domain.AccountID(hex.EncodeToString(h.Sum(nil)))
}
