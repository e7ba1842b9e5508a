// Package secp implements the secp256k1 native verifier contract: a
// stateless executor whose blobs carry an identity signature over arbitrary
// data. It lets signature checks participate in transaction atomicity
// without holding any provable state.
package secp

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"

	"github.com/hyli-org/degen-party/x/contract"
)

// Name is the conventional contract name for the native verifier.
const Name = contract.ContractName("secp256k1")

// IdentityBlob is the decoded payload of a verifier blob.
type IdentityBlob struct {
	Identity contract.Identity
	// Data is the signed message, conventionally "<uuid>:<action>".
	Data []byte
	// PublicKey is the hex-encoded compressed secp256k1 public key.
	PublicKey string
	// Signature is the hex-encoded 64-byte compact signature over
	// sha256(Data).
	Signature string
}

// Encode renders the blob payload with the deterministic codec.
func (b *IdentityBlob) Encode() []byte {
	enc := contract.NewEncoder()
	enc.WriteString(string(b.Identity))
	enc.WriteBytes(b.Data)
	enc.WriteString(b.PublicKey)
	enc.WriteString(b.Signature)
	return enc.Bytes()
}

// DecodeIdentityBlob parses a verifier blob payload.
func DecodeIdentityBlob(payload []byte) (*IdentityBlob, error) {
	dec := contract.NewDecoder(payload)
	out := &IdentityBlob{}
	id, err := dec.ReadString()
	if err != nil {
		return nil, err
	}
	out.Identity = contract.Identity(id)
	if out.Data, err = dec.ReadByteSlice(); err != nil {
		return nil, err
	}
	if out.PublicKey, err = dec.ReadString(); err != nil {
		return nil, err
	}
	if out.Signature, err = dec.ReadString(); err != nil {
		return nil, err
	}
	return out, dec.Finish()
}

// Verifier is the stateless executor.
type Verifier struct{}

func New() *Verifier { return &Verifier{} }

// Handle verifies the signature carried by the blob. The blob identity must
// match the transaction identity, and the pubkey must be the one the
// identity names.
func (v *Verifier) Handle(cd *contract.Calldata) (contract.Output, error) {
	blob, err := cd.Blob()
	if err != nil {
		return contract.Output{}, err
	}
	sb, err := contract.DecodeStructuredBlob(blob.Data)
	if err != nil {
		return contract.Output{}, err
	}
	ib, err := DecodeIdentityBlob(sb.Payload)
	if err != nil {
		return contract.Output{}, err
	}

	if ib.Identity != cd.Identity {
		return contract.Output{}, fmt.Errorf("%w: identity blob for %s inside tx from %s",
			contract.ErrValidation, ib.Identity, cd.Identity)
	}
	if want := contract.NewIdentity(ib.PublicKey, "secp256k1"); want != ib.Identity {
		return contract.Output{}, fmt.Errorf("%w: public key does not match identity", contract.ErrValidation)
	}

	pub, err := hex.DecodeString(ib.PublicKey)
	if err != nil {
		return contract.Output{}, fmt.Errorf("%w: bad public key hex: %v", contract.ErrValidation, err)
	}
	sig, err := hex.DecodeString(ib.Signature)
	if err != nil {
		return contract.Output{}, fmt.Errorf("%w: bad signature hex: %v", contract.ErrValidation, err)
	}
	if len(sig) < 64 {
		return contract.Output{}, fmt.Errorf("%w: signature too short", contract.ErrValidation)
	}

	digest := sha256.Sum256(ib.Data)
	if !ethcrypto.VerifySignature(pub, digest[:], sig[:64]) {
		return contract.Output{}, fmt.Errorf("%w: signature verification failed", contract.ErrValidation)
	}
	return contract.Output{Success: true}, nil
}

// Commit returns an empty commitment: the verifier holds no provable state.
func (v *Verifier) Commit() []byte { return []byte{} }

func (v *Verifier) Clone() contract.Executor { return &Verifier{} }

func (v *Verifier) MarshalBinary() ([]byte, error) { return []byte{}, nil }

// Restore rebuilds a verifier from snapshot bytes.
func Restore([]byte) (contract.Executor, error) { return &Verifier{}, nil }
