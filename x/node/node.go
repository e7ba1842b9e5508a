// Package node is the ledger collaborator: a client for submitting
// transactions and fetching chain state, plus a polling feed of block and
// mempool events. The rollup executor treats the ledger as authoritative but
// asynchronous, possibly out of order relative to its own optimistic
// application.
package node

import (
	"context"

	"github.com/ethereum/go-ethereum/common"

	"github.com/hyli-org/degen-party/x/contract"
)

// BlockTx is one transaction carried by a block, with the sequencing
// metadata the block assigns to it.
type BlockTx struct {
	Tx        contract.Transaction `json:"tx"`
	LaneID    contract.LaneID      `json:"lane_id"`
	Timestamp uint64               `json:"timestamp"`
}

// NewBlock reports one sequenced block: the transaction bodies that are
// available, plus the hashes the block marks as settled one way or another.
type NewBlock struct {
	Height        contract.BlockHeight `json:"height"`
	Txs           []BlockTx            `json:"txs"`
	SuccessfulTxs []common.Hash        `json:"successful_txs"`
	FailedTxs     []common.Hash        `json:"failed_txs"`
	TimedOutTxs   []common.Hash        `json:"timed_out_txs"`
}

// MempoolStatus reports a transaction waiting for dissemination.
type MempoolStatus struct {
	Tx contract.Transaction `json:"tx"`
}

// Event is one item of the subscription feed.
type Event struct {
	Block   *NewBlock
	Mempool *MempoolStatus
}

// Client is the ledger node API surface the executor depends on.
type Client interface {
	// SubmitTransaction sends a blob transaction to the node and returns
	// its content hash.
	SubmitTransaction(ctx context.Context, tx contract.Transaction) (common.Hash, error)

	// GetContractState fetches the registered contract's current on-chain
	// state commitment.
	GetContractState(ctx context.Context, name contract.ContractName) ([]byte, error)

	// GetChainHeight returns the node's current block height.
	GetChainHeight(ctx context.Context) (contract.BlockHeight, error)

	// GetBlock fetches a block by height.
	GetBlock(ctx context.Context, height contract.BlockHeight) (*NewBlock, error)

	// RegisterContract registers a contract with its genesis commitment.
	// No-op when the contract is already registered.
	RegisterContract(ctx context.Context, name contract.ContractName, commitment []byte) error

	// ContractRegistered reports whether a contract is known to the node.
	ContractRegistered(ctx context.Context, name contract.ContractName) (bool, error)
}
