// Package contract defines the transaction model shared by every state
// machine hosted in the rollup executor: contract-addressed blobs, blob
// transactions, execution contexts and the executor interface.
//
// Everything that ends up inside a state commitment is encoded with the
// deterministic codec in this package; the byte layout is the compatibility
// contract between speculative execution and the proving environment.
package contract

import (
	"crypto/sha256"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// ContractName identifies one state machine instance. Compared by value.
type ContractName string

func (c ContractName) String() string { return string(c) }

// Identity is a "<pubkey>@<scheme>"-shaped signer identity, or a well-known
// backend identity.
type Identity string

func (i Identity) String() string { return string(i) }

// Scheme returns the part after '@', or "" when the identity is not
// pubkey-shaped.
func (i Identity) Scheme() string {
	if idx := strings.LastIndexByte(string(i), '@'); idx >= 0 {
		return string(i)[idx+1:]
	}
	return ""
}

// NewIdentity builds a "<pubkey>@<scheme>" identity.
func NewIdentity(pubkey, scheme string) Identity {
	return Identity(fmt.Sprintf("%s@%s", pubkey, scheme))
}

// LaneID identifies the sequencing authority that produced a transaction.
type LaneID string

// BlockHeight is a ledger block height.
type BlockHeight uint64

// BlobIndex is the position of a blob within its transaction.
type BlobIndex uint32

// Blob is one contract-addressed action payload within a transaction. Data
// carries an encoded StructuredBlob.
type Blob struct {
	ContractName ContractName `json:"contract_name"`
	Data         []byte       `json:"data"`
}

// Transaction is an atomic group of blobs signed by one identity. Either
// every blob's contract accepts it or the whole transaction is void.
type Transaction struct {
	Identity Identity `json:"identity"`
	Blobs    []Blob   `json:"blobs"`
}

// Hash returns the content-addressed hash of the transaction.
func (tx *Transaction) Hash() common.Hash {
	enc := NewEncoder()
	enc.WriteString(string(tx.Identity))
	enc.WriteU32(uint32(len(tx.Blobs)))
	for _, b := range tx.Blobs {
		enc.WriteString(string(b.ContractName))
		enc.WriteBytes(b.Data)
	}
	return sha256.Sum256(enc.Bytes())
}

// TxContext carries the sequencing metadata a contract transition may depend
// on: submission timestamp (unix ms), producing lane and block height.
type TxContext struct {
	Timestamp   uint64      `json:"timestamp"`
	LaneID      LaneID      `json:"lane_id"`
	BlockHeight BlockHeight `json:"block_height"`
}

// Calldata is the per-blob execution input threaded into Executor.Handle.
type Calldata struct {
	Identity    Identity
	TxHash      common.Hash
	Blobs       []Blob
	Index       BlobIndex
	TxCtx       *TxContext
	TxBlobCount int
}

// Blob returns the blob Calldata.Index points at.
func (cd *Calldata) Blob() (*Blob, error) {
	if int(cd.Index) >= len(cd.Blobs) {
		return nil, fmt.Errorf("%w: blob index %d out of range (%d blobs)", ErrValidation, cd.Index, len(cd.Blobs))
	}
	return &cd.Blobs[cd.Index], nil
}

// Output is the result of executing one blob against its contract.
type Output struct {
	Success bool
	// Data is the contract's deterministic program output (encoded events).
	Data []byte
}
