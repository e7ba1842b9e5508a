package node

import (
	"context"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/common"

	"github.com/hyli-org/degen-party/x/contract"
)

// MemoryClient is an in-process Client for tests and local runs. Submitted
// transactions are sequenced into one block per Seal call.
type MemoryClient struct {
	mu        sync.Mutex
	contracts map[contract.ContractName][]byte
	blocks    []*NewBlock
	pending   []BlockTx
	lane      contract.LaneID
	now       func() uint64
}

// NewMemoryClient builds an empty in-memory ledger. now supplies block
// timestamps in unix milliseconds.
func NewMemoryClient(lane contract.LaneID, now func() uint64) *MemoryClient {
	return &MemoryClient{
		contracts: make(map[contract.ContractName][]byte),
		lane:      lane,
		now:       now,
	}
}

func (m *MemoryClient) SubmitTransaction(_ context.Context, tx contract.Transaction) (common.Hash, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pending = append(m.pending, BlockTx{Tx: tx, LaneID: m.lane, Timestamp: m.now()})
	return tx.Hash(), nil
}

func (m *MemoryClient) GetContractState(_ context.Context, name contract.ContractName) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	commitment, ok := m.contracts[name]
	if !ok {
		return nil, fmt.Errorf("contract %q not registered", name)
	}
	return append([]byte(nil), commitment...), nil
}

func (m *MemoryClient) GetChainHeight(_ context.Context) (contract.BlockHeight, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return contract.BlockHeight(len(m.blocks)), nil
}

func (m *MemoryClient) GetBlock(_ context.Context, height contract.BlockHeight) (*NewBlock, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if height == 0 || int(height) > len(m.blocks) {
		return nil, fmt.Errorf("no block at height %d", height)
	}
	return m.blocks[height-1], nil
}

func (m *MemoryClient) RegisterContract(_ context.Context, name contract.ContractName, commitment []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.contracts[name]; ok {
		return nil
	}
	m.contracts[name] = append([]byte(nil), commitment...)
	return nil
}

func (m *MemoryClient) ContractRegistered(_ context.Context, name contract.ContractName) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.contracts[name]
	return ok, nil
}

// PendingCount reports how many submitted transactions await sealing.
func (m *MemoryClient) PendingCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pending)
}

// Seal sequences all pending transactions into a new block, marking every
// transaction in it as settled successfully, and returns the block.
func (m *MemoryClient) Seal() *NewBlock {
	m.mu.Lock()
	defer m.mu.Unlock()

	block := &NewBlock{
		Height: contract.BlockHeight(len(m.blocks) + 1),
		Txs:    m.pending,
	}
	for i := range m.pending {
		block.SuccessfulTxs = append(block.SuccessfulTxs, m.pending[i].Tx.Hash())
	}
	m.pending = nil
	m.blocks = append(m.blocks, block)
	return block
}

var _ Client = (*MemoryClient)(nil)
