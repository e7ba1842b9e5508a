package rollup

import (
	"fmt"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/hyli-org/degen-party/x/contract"
	"github.com/hyli-org/degen-party/x/node"
)

// counterExec is a minimal hosted contract for store tests: blobs carry a
// u64 increment, and the running total may never exceed the cap.
type counterExec struct {
	total uint64
}

const counterCap = 100

func (c *counterExec) Handle(cd *contract.Calldata) (contract.Output, error) {
	payload, err := cd.Payload()
	if err != nil {
		return contract.Output{}, err
	}
	dec := contract.NewDecoder(payload)
	amount, err := dec.ReadU64()
	if err != nil {
		return contract.Output{}, err
	}
	if err := dec.Finish(); err != nil {
		return contract.Output{}, err
	}
	if c.total+amount > counterCap {
		return contract.Output{}, fmt.Errorf("%w: cap exceeded", contract.ErrValidation)
	}
	c.total += amount
	return contract.Output{Success: true, Data: payload}, nil
}

func (c *counterExec) Commit() []byte {
	enc := contract.NewEncoder()
	enc.WriteU64(c.total)
	return enc.Bytes()
}

func (c *counterExec) Clone() contract.Executor {
	return &counterExec{total: c.total}
}

func (c *counterExec) MarshalBinary() ([]byte, error) {
	return c.Commit(), nil
}

func restoreCounter(data []byte) (contract.Executor, error) {
	dec := contract.NewDecoder(data)
	total, err := dec.ReadU64()
	if err != nil {
		return nil, err
	}
	return &counterExec{total: total}, nil
}

const counterName contract.ContractName = "counter"

func addTx(identity contract.Identity, amounts ...uint64) contract.Transaction {
	tx := contract.Transaction{Identity: identity}
	for _, amount := range amounts {
		enc := contract.NewEncoder()
		enc.WriteU64(amount)
		tx.Blobs = append(tx.Blobs, contract.NewBlob(counterName, nil, nil, enc.Bytes()))
	}
	return tx
}

func newCounterStore(t *testing.T) *Store {
	t.Helper()
	return NewStore(map[contract.ContractName]contract.Executor{
		counterName: &counterExec{},
	}, func() uint64 { return 1000 })
}

func counterTotal(t *testing.T, exec contract.Executor) uint64 {
	t.Helper()
	c, ok := exec.(*counterExec)
	require.True(t, ok)
	return c.total
}

func TestOptimisticExecutionAndSettlement(t *testing.T) {
	t.Parallel()
	s := newCounterStore(t)

	tx := addTx("alice@secp256k1", 10)
	results, err := s.HandleOptimisticTx("lane-1", tx, nil, SourceInternal)
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, uint64(10), counterTotal(t, s.Optimistic(counterName)))
	require.Equal(t, uint64(0), counterTotal(t, s.Settled(counterName)))
	require.Len(t, s.Unsettled(), 1)

	settled := s.SettleSuccessful([]common.Hash{tx.Hash()})
	require.Equal(t, 1, settled)
	require.Equal(t, uint64(10), counterTotal(t, s.Settled(counterName)))
	require.Empty(t, s.Unsettled())

	s.RerunNow()
	require.Equal(t, uint64(10), counterTotal(t, s.Optimistic(counterName)))
}

func TestMultiBlobTxIsAtomic(t *testing.T) {
	t.Parallel()
	s := newCounterStore(t)

	// Second blob overflows the cap, so the first must not stick either.
	_, err := s.HandleOptimisticTx("", addTx("alice@secp256k1", 40, 80), nil, SourceInternal)
	require.Error(t, err)
	require.Equal(t, uint64(0), counterTotal(t, s.Optimistic(counterName)))

	// The transaction is still retained: it may become valid on replay.
	require.Len(t, s.Unsettled(), 1)
}

func TestCancellationMakesLaterTxValid(t *testing.T) {
	t.Parallel()
	s := newCounterStore(t)

	tx1 := addTx("alice@secp256k1", 60)
	tx2 := addTx("bob@secp256k1", 60)

	_, err := s.HandleOptimisticTx("", tx1, nil, SourceInternal)
	require.NoError(t, err)
	_, err = s.HandleOptimisticTx("", tx2, nil, SourceInternal)
	require.Error(t, err)
	require.Len(t, s.Unsettled(), 2)

	removed := s.CancelTxs([]common.Hash{tx1.Hash()})
	require.Equal(t, 1, removed)
	s.RerunNow()

	require.Equal(t, uint64(60), counterTotal(t, s.Optimistic(counterName)))
	require.Len(t, s.Unsettled(), 1)
}

func TestDuplicateObservations(t *testing.T) {
	t.Parallel()
	s := newCounterStore(t)

	tx := addTx("alice@secp256k1", 10)
	_, err := s.HandleOptimisticTx("", tx, nil, SourceInternal)
	require.NoError(t, err)

	// A mempool duplicate is a no-op.
	results, err := s.HandleOptimisticTx("", tx, nil, SourceMempool)
	require.NoError(t, err)
	require.Nil(t, results)
	require.Len(t, s.Unsettled(), 1)
	require.Equal(t, uint64(10), counterTotal(t, s.Optimistic(counterName)))

	// A consensus duplicate adopts the ledger context and forces a replay,
	// but never double-applies.
	ctx := contract.TxContext{Timestamp: 2000, LaneID: "lane-9", BlockHeight: 7}
	results, err = s.HandleOptimisticTx("lane-9", tx, &ctx, SourceConsensus)
	require.NoError(t, err)
	require.Nil(t, results)
	require.Equal(t, ctx, s.Unsettled()[0].Ctx)

	s.RerunNow()
	require.Equal(t, uint64(10), counterTotal(t, s.Optimistic(counterName)))
}

func TestIrrelevantTxIgnored(t *testing.T) {
	t.Parallel()
	s := newCounterStore(t)

	tx := contract.Transaction{
		Identity: "alice@secp256k1",
		Blobs:    []contract.Blob{contract.NewBlob("wallet", nil, nil, []byte{1})},
	}
	results, err := s.HandleOptimisticTx("", tx, nil, SourceConsensus)
	require.NoError(t, err)
	require.Nil(t, results)
	require.Empty(t, s.Unsettled())
}

func TestSkippableBlobsExecutePartially(t *testing.T) {
	t.Parallel()
	s := newCounterStore(t)

	enc := contract.NewEncoder()
	enc.WriteU64(10)
	tx := contract.Transaction{
		Identity: "alice@secp256k1",
		Blobs: []contract.Blob{
			contract.NewBlob(counterName, nil, nil, enc.Bytes()),
			contract.NewBlob("faucet", nil, nil, []byte{1}),
		},
	}
	results, err := s.HandleOptimisticTx("", tx, nil, SourceInternal)
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, uint64(10), counterTotal(t, s.Optimistic(counterName)))

	// An unskippable unknown blob from a regular identity voids execution.
	tx2 := contract.Transaction{
		Identity: "bob@secp256k1",
		Blobs: []contract.Blob{
			contract.NewBlob(counterName, nil, nil, enc.Bytes()),
			contract.NewBlob("mystery", nil, nil, []byte{1}),
		},
	}
	_, err = s.HandleOptimisticTx("", tx2, nil, SourceInternal)
	require.ErrorIs(t, err, contract.ErrUnknownContract)
	require.Equal(t, uint64(10), counterTotal(t, s.Optimistic(counterName)))
}

func TestPrivilegedIdentitySkipsUnknownBlobs(t *testing.T) {
	t.Parallel()
	s := newCounterStore(t)

	enc := contract.NewEncoder()
	enc.WriteU64(5)
	tx := contract.Transaction{
		Identity: "hyli@wallet",
		Blobs: []contract.Blob{
			contract.NewBlob("wallet", nil, nil, []byte{1}),
			contract.NewBlob(counterName, nil, nil, enc.Bytes()),
		},
	}
	results, err := s.HandleOptimisticTx("", tx, nil, SourceConsensus)
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, uint64(5), counterTotal(t, s.Optimistic(counterName)))
}

func TestStaleReplayGenerationsDiscarded(t *testing.T) {
	t.Parallel()
	s := newCounterStore(t)

	tx1 := addTx("alice@secp256k1", 10)
	tx2 := addTx("bob@secp256k1", 20)
	_, err := s.HandleOptimisticTx("", tx1, nil, SourceInternal)
	require.NoError(t, err)
	_, err = s.HandleOptimisticTx("", tx2, nil, SourceInternal)
	require.NoError(t, err)

	s.CancelTxs([]common.Hash{tx1.Hash()})
	job1 := s.BeginRerun()
	require.NotNil(t, job1)
	require.Nil(t, s.BeginRerun())

	// A newer invalidation supersedes the in-flight job.
	s.CancelTxs([]common.Hash{tx2.Hash()})
	job2 := s.BeginRerun()
	require.NotNil(t, job2)

	require.False(t, s.ApplyRerun(job1.Generation(), job1.Run()))
	require.True(t, s.ApplyRerun(job2.Generation(), job2.Run()))
	require.Equal(t, uint64(0), counterTotal(t, s.Optimistic(counterName)))
}

func TestHandleBlockSettlesAndCancels(t *testing.T) {
	t.Parallel()
	s := newCounterStore(t)

	good := addTx("alice@secp256k1", 10)
	bad := addTx("bob@secp256k1", 20)
	_, err := s.HandleOptimisticTx("", good, nil, SourceInternal)
	require.NoError(t, err)
	_, err = s.HandleOptimisticTx("", bad, nil, SourceInternal)
	require.NoError(t, err)

	block := &node.NewBlock{
		Height:        1,
		SuccessfulTxs: []common.Hash{good.Hash()},
		FailedTxs:     []common.Hash{bad.Hash()},
	}
	s.HandleBlock(block)
	s.RerunNow()

	require.Equal(t, contract.BlockHeight(1), s.LastProcessedBlock())
	require.Empty(t, s.Unsettled())
	require.Equal(t, uint64(10), counterTotal(t, s.Settled(counterName)))
	require.Equal(t, uint64(10), counterTotal(t, s.Optimistic(counterName)))

	// Stale blocks are ignored.
	s.HandleBlock(&node.NewBlock{Height: 1})
	require.Equal(t, contract.BlockHeight(1), s.LastProcessedBlock())
}

func TestCatchUpQueuesWithoutExecuting(t *testing.T) {
	t.Parallel()
	s := newCounterStore(t)
	s.StartCatchUp(2)
	require.True(t, s.CatchingUp())

	tx := addTx("alice@secp256k1", 10)
	results, err := s.HandleOptimisticTx("", tx, nil, SourceConsensus)
	require.NoError(t, err)
	require.Nil(t, results)
	require.Equal(t, uint64(0), counterTotal(t, s.Optimistic(counterName)))
	require.Len(t, s.Unsettled(), 1)

	s.HandleBlock(&node.NewBlock{Height: 1})
	require.True(t, s.CatchingUp())
	s.HandleBlock(&node.NewBlock{Height: 2})
	require.False(t, s.CatchingUp())

	// Completion forces a replay that absorbs the queued transactions.
	s.RerunNow()
	require.Equal(t, uint64(10), counterTotal(t, s.Optimistic(counterName)))
}

func TestSnapshotRoundTrip(t *testing.T) {
	t.Parallel()
	s := newCounterStore(t)

	tx1 := addTx("alice@secp256k1", 10)
	tx2 := addTx("bob@secp256k1", 20)
	_, err := s.HandleOptimisticTx("lane-1", tx1, nil, SourceInternal)
	require.NoError(t, err)
	_, err = s.HandleOptimisticTx("lane-1", tx2, nil, SourceInternal)
	require.NoError(t, err)
	s.HandleBlock(&node.NewBlock{Height: 3, SuccessfulTxs: []common.Hash{tx1.Hash()}})

	data, err := s.Snapshot()
	require.NoError(t, err)

	registry := contract.NewRegistry()
	registry.Register(counterName, restoreCounter)
	restored, err := RestoreStore(data, registry, func() uint64 { return 1000 })
	require.NoError(t, err)

	require.Equal(t, s.LastProcessedBlock(), restored.LastProcessedBlock())
	require.Equal(t, s.Unsettled(), restored.Unsettled())
	require.Equal(t, counterTotal(t, s.Optimistic(counterName)), counterTotal(t, restored.Optimistic(counterName)))
	require.Equal(t, counterTotal(t, s.Settled(counterName)), counterTotal(t, restored.Settled(counterName)))

	_, err = RestoreStore([]byte("garbage"), registry, nil)
	require.Error(t, err)
}
