// Package ws bridges browser clients and the executor: a hub fans state
// updates out to every connected client and funnels signed player commands
// in. Signatures are pre-checked at the edge so garbage never reaches the
// executor loop; the authoritative check still happens in the signature
// verifier contract when the transaction settles.
package ws

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/google/uuid"

	"github.com/hyli-org/degen-party/x/contract"
)

// AuthenticatedMessage is the envelope every inbound client message arrives
// in. SignedData is the exact string the client signed; MessageID is the
// action UUID and doubles as the replay guard inside the contracts.
type AuthenticatedMessage struct {
	Message    json.RawMessage `json:"message"`
	Signature  string          `json:"signature"`
	PublicKey  string          `json:"public_key"`
	MessageID  string          `json:"message_id"`
	SignedData string          `json:"signed_data"`
}

// Verify checks the envelope's signature and returns the sender identity and
// action UUID. The signed data must open with the message ID so a captured
// signature cannot be replayed under a different action.
func (m *AuthenticatedMessage) Verify() (contract.Identity, uuid.UUID, error) {
	id, err := uuid.Parse(m.MessageID)
	if err != nil {
		return "", uuid.UUID{}, fmt.Errorf("%w: bad message id: %v", contract.ErrValidation, err)
	}
	if len(m.SignedData) < len(m.MessageID) || m.SignedData[:len(m.MessageID)] != m.MessageID {
		return "", uuid.UUID{}, fmt.Errorf("%w: signed data does not open with message id", contract.ErrValidation)
	}

	pub, err := hex.DecodeString(m.PublicKey)
	if err != nil {
		return "", uuid.UUID{}, fmt.Errorf("%w: bad public key hex: %v", contract.ErrValidation, err)
	}
	sig, err := hex.DecodeString(m.Signature)
	if err != nil {
		return "", uuid.UUID{}, fmt.Errorf("%w: bad signature hex: %v", contract.ErrValidation, err)
	}
	if len(sig) < 64 {
		return "", uuid.UUID{}, fmt.Errorf("%w: signature too short", contract.ErrValidation)
	}

	digest := sha256.Sum256([]byte(m.SignedData))
	if !ethcrypto.VerifySignature(pub, digest[:], sig[:64]) {
		return "", uuid.UUID{}, fmt.Errorf("%w: signature verification failed", contract.ErrValidation)
	}
	return contract.NewIdentity(m.PublicKey, "secp256k1"), id, nil
}

// Inbound is one verified client message handed to the executor.
type Inbound struct {
	Identity contract.Identity
	UUID     uuid.UUID
	Envelope AuthenticatedMessage
}
