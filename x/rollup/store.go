// Package rollup implements the optimistic execution core: contracts are run
// speculatively as transactions are observed, the ledger's settlement
// decisions are replayed onto a settled baseline, and the speculative view is
// rebuilt from that baseline whenever settlement contradicts it.
package rollup

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"

	"github.com/hyli-org/degen-party/log"
	"github.com/hyli-org/degen-party/x/contract"
	"github.com/hyli-org/degen-party/x/node"
)

// Source grades how trustworthy a transaction observation is.
type Source int

const (
	// SourceInternal marks transactions this process built and submitted.
	SourceInternal Source = iota
	// SourceMempool marks transactions seen waiting for dissemination.
	SourceMempool
	// SourceConsensus marks transactions carried by a sequenced block.
	SourceConsensus
)

func (s Source) String() string {
	switch s {
	case SourceInternal:
		return "internal"
	case SourceMempool:
		return "mempool"
	case SourceConsensus:
		return "consensus"
	default:
		return fmt.Sprintf("source(%d)", int(s))
	}
}

// UnsettledTx is a transaction applied optimistically but not yet settled.
type UnsettledTx struct {
	Tx  contract.Transaction
	Ctx contract.TxContext
}

// BlobResult is one blob's program output, tagged with its contract.
type BlobResult struct {
	Contract contract.ContractName
	Output   []byte
}

// Identities and contract names whose blobs may be skipped without voiding
// the transaction: we cannot verify them locally but assume they settle.
const privilegedIdentity contract.Identity = "hyli@wallet"

var skipContracts = map[contract.ContractName]bool{
	"check_secret": true,
	"faucet":       true,
}

// Store holds both views of every hosted contract. The optimistic view has
// all unsettled transactions applied on top of the settled one; it is
// disposable and rebuilt by replay whenever the two diverge.
//
// Store is not safe for concurrent use. The executor module drives it from a
// single goroutine; replay jobs run on cloned state (see BeginRerun).
type Store struct {
	optimistic map[contract.ContractName]contract.Executor
	settled    map[contract.ContractName]contract.Executor
	unsettled  []UnsettledTx

	lastProcessedBlock contract.BlockHeight
	catchUpTarget      contract.BlockHeight
	catchingUp         bool

	rerunWanted bool
	rerunGen    uint64

	now    func() uint64
	logger zerolog.Logger
}

// NewStore seeds both views with the given genesis executors. now supplies
// fallback timestamps (unix ms) for observations without a ledger context.
func NewStore(genesis map[contract.ContractName]contract.Executor, now func() uint64) *Store {
	s := &Store{
		optimistic: make(map[contract.ContractName]contract.Executor, len(genesis)),
		settled:    make(map[contract.ContractName]contract.Executor, len(genesis)),
		now:        now,
		logger:     log.Logger.With().Str("component", "rollup-store").Logger(),
	}
	for name, exec := range genesis {
		s.optimistic[name] = exec.Clone()
		s.settled[name] = exec.Clone()
	}
	return s
}

// Optimistic returns the speculative view of a contract, or nil.
func (s *Store) Optimistic(name contract.ContractName) contract.Executor {
	return s.optimistic[name]
}

// Settled returns the settled view of a contract, or nil.
func (s *Store) Settled(name contract.ContractName) contract.Executor {
	return s.settled[name]
}

// LastProcessedBlock returns the height of the last block applied.
func (s *Store) LastProcessedBlock() contract.BlockHeight {
	return s.lastProcessedBlock
}

// Unsettled returns a copy of the unsettled transaction log.
func (s *Store) Unsettled() []UnsettledTx {
	return append([]UnsettledTx(nil), s.unsettled...)
}

// executeBlobTx runs every blob of tx against the given contract set,
// snapshotting touched contracts first and committing them only if every
// blob succeeds. Blobs addressed to unknown contracts void the transaction
// unless they are skippable, the sender is privileged, or forcePartial is
// set. A (nil, nil) return means no hosted contract was addressed at all.
func executeBlobTx(
	contracts map[contract.ContractName]contract.Executor,
	tx *contract.Transaction,
	txCtx *contract.TxContext,
	forcePartial bool,
) ([]BlobResult, error) {
	scratch := make(map[contract.ContractName]contract.Executor)
	skipped := 0
	partialOK := true
	for _, blob := range tx.Blobs {
		if exec, ok := contracts[blob.ContractName]; ok {
			if _, seen := scratch[blob.ContractName]; !seen {
				scratch[blob.ContractName] = exec.Clone()
			}
			continue
		}
		skippable := skipContracts[blob.ContractName] || tx.Identity == privilegedIdentity
		partialOK = partialOK && skippable
		skipped++
	}
	if len(scratch) == 0 {
		return nil, nil
	}
	if skipped > 0 && !forcePartial && !partialOK {
		return nil, fmt.Errorf("%w: tx %s addresses %d unhandled blobs", contract.ErrUnknownContract, tx.Hash(), skipped)
	}

	txHash := tx.Hash()
	var results []BlobResult
	for i, blob := range tx.Blobs {
		exec, ok := scratch[blob.ContractName]
		if !ok {
			continue
		}
		out, err := exec.Handle(&contract.Calldata{
			Identity:    tx.Identity,
			TxHash:      txHash,
			Blobs:       tx.Blobs,
			Index:       contract.BlobIndex(i),
			TxCtx:       txCtx,
			TxBlobCount: len(tx.Blobs),
		})
		if err != nil {
			return nil, fmt.Errorf("executing tx %s blob %d on %s: %w", txHash, i, blob.ContractName, err)
		}
		if !out.Success {
			return nil, fmt.Errorf("tx %s blob %d on %s reported failure", txHash, i, blob.ContractName)
		}
		results = append(results, BlobResult{Contract: blob.ContractName, Output: out.Data})
	}

	for name, exec := range scratch {
		contracts[name] = exec
	}
	return results, nil
}

func (s *Store) findUnsettled(hash common.Hash) int {
	for i := range s.unsettled {
		if s.unsettled[i].Tx.Hash() == hash {
			return i
		}
	}
	return -1
}

func (s *Store) defaultCtx(lane contract.LaneID) contract.TxContext {
	return contract.TxContext{
		Timestamp:   s.now(),
		LaneID:      lane,
		BlockHeight: s.lastProcessedBlock,
	}
}

// HandleOptimisticTx applies one observed transaction to the speculative
// view and records it as unsettled. Duplicates are no-ops; a consensus
// duplicate additionally overwrites the stored context (the ledger's
// sequencing metadata is authoritative) and forces a replay. Transactions
// that fail execution are still recorded: a later cancellation upstream may
// make them valid on replay.
//
// The returned results are nil when the transaction is irrelevant, already
// known, or deferred because a catch-up is in progress.
func (s *Store) HandleOptimisticTx(lane contract.LaneID, tx contract.Transaction, txCtx *contract.TxContext, source Source) ([]BlobResult, error) {
	if s.catchingUp {
		ctx := s.defaultCtx(lane)
		if txCtx != nil {
			ctx = *txCtx
		}
		s.unsettled = append(s.unsettled, UnsettledTx{Tx: tx, Ctx: ctx})
		return nil, nil
	}

	hash := tx.Hash()
	if i := s.findUnsettled(hash); i >= 0 {
		if source == SourceConsensus {
			s.unsettled[i].Tx = tx
			if txCtx != nil {
				s.logger.Info().Stringer("tx", hash).Msg("unsettled transaction sequenced, adopting ledger context")
				s.unsettled[i].Ctx = *txCtx
			}
			s.rerunWanted = true
			return nil, nil
		}
		s.logger.Debug().Stringer("tx", hash).Str("source", source.String()).Msg("transaction already unsettled")
		return nil, nil
	}

	ctx := s.defaultCtx(lane)
	if txCtx != nil {
		ctx = *txCtx
	}

	results, err := executeBlobTx(s.optimistic, &tx, &ctx, false)
	if err == nil && results == nil {
		return nil, nil
	}

	s.unsettled = append(s.unsettled, UnsettledTx{Tx: tx, Ctx: ctx})

	if err != nil {
		return nil, err
	}
	s.logger.Info().Stringer("tx", hash).Str("source", source.String()).Msg("optimistically executed transaction")
	return results, nil
}

// SettleSuccessful removes the given transactions from the unsettled log and
// applies them to the settled baseline. A failure there means the baseline
// no longer matches the chain; it is logged as a desync and never swallowed
// silently into the baseline. Returns the number of transactions settled.
func (s *Store) SettleSuccessful(hashes []common.Hash) int {
	settled := 0
	for _, hash := range hashes {
		i := s.findUnsettled(hash)
		if i < 0 {
			continue
		}
		utx := s.unsettled[i]
		s.unsettled = append(s.unsettled[:i], s.unsettled[i+1:]...)
		settled++
		if _, err := executeBlobTx(s.settled, &utx.Tx, &utx.Ctx, true); err != nil {
			s.logger.Error().Err(fmt.Errorf("%w: %w", contract.ErrStateDesync, err)).
				Stringer("tx", hash).
				Msg("settled transaction failed on settled baseline")
		}
	}
	if settled > 0 {
		s.rerunWanted = true
	}
	return settled
}

// CancelTxs drops transactions the ledger rejected or timed out. Any actual
// removal invalidates the speculative view and forces a replay.
func (s *Store) CancelTxs(hashes []common.Hash) int {
	removed := 0
	for _, hash := range hashes {
		i := s.findUnsettled(hash)
		if i < 0 {
			continue
		}
		s.logger.Debug().Stringer("tx", hash).Int("position", i).Msg("cancelling transaction")
		s.unsettled = append(s.unsettled[:i], s.unsettled[i+1:]...)
		removed++
	}
	if removed > 0 {
		s.rerunWanted = true
	}
	return removed
}

// HandleBlock applies one sequenced block: its transactions at consensus
// quality, then its settlement verdicts. Stale blocks are ignored; a gap in
// heights is tolerated with a warning, the per-transaction replay converges
// regardless. The aggregated blob outputs of newly executed transactions
// are returned for broadcasting.
func (s *Store) HandleBlock(block *node.NewBlock) []BlobResult {
	if s.lastProcessedBlock > 0 && block.Height != s.lastProcessedBlock+1 {
		if block.Height < s.lastProcessedBlock+1 {
			s.logger.Warn().
				Uint64("height", uint64(block.Height)).
				Uint64("expected", uint64(s.lastProcessedBlock+1)).
				Msg("stale block, ignoring")
			return nil
		}
		s.logger.Warn().
			Uint64("height", uint64(block.Height)).
			Uint64("expected", uint64(s.lastProcessedBlock+1)).
			Msg("block height gap")
	}
	s.lastProcessedBlock = block.Height

	var results []BlobResult
	for i := range block.Txs {
		btx := block.Txs[i]
		ctx := contract.TxContext{
			Timestamp:   btx.Timestamp,
			LaneID:      btx.LaneID,
			BlockHeight: block.Height,
		}
		res, err := s.HandleOptimisticTx(btx.LaneID, btx.Tx, &ctx, SourceConsensus)
		if err != nil {
			s.logger.Info().Err(err).Stringer("tx", btx.Tx.Hash()).Msg("sequenced transaction failed optimistic execution")
			continue
		}
		results = append(results, res...)
	}

	s.SettleSuccessful(block.SuccessfulTxs)

	cancelled := make([]common.Hash, 0, len(block.FailedTxs)+len(block.TimedOutTxs))
	cancelled = append(cancelled, block.FailedTxs...)
	cancelled = append(cancelled, block.TimedOutTxs...)
	s.CancelTxs(cancelled)

	return results
}

// StartCatchUp defers optimistic execution until the given height has been
// replayed. Observed transactions are queued as unsettled in the meantime.
func (s *Store) StartCatchUp(to contract.BlockHeight) {
	s.catchingUp = true
	s.catchUpTarget = to
	s.logger.Info().
		Uint64("target", uint64(to)).
		Uint64("at", uint64(s.lastProcessedBlock)).
		Msg("catching up")
}

// CatchingUp reports whether a catch-up is still in progress, clearing it
// once the target height has been reached. Completion forces a replay so the
// speculative view absorbs everything queued while catching up.
func (s *Store) CatchingUp() bool {
	if !s.catchingUp {
		return false
	}
	if s.lastProcessedBlock >= s.catchUpTarget {
		s.catchingUp = false
		s.rerunWanted = true
		s.logger.Info().Uint64("height", uint64(s.lastProcessedBlock)).Msg("caught up")
	}
	return s.catchingUp
}

// RerunJob replays the unsettled log on a clone of the settled baseline.
// Run is safe to call off the driving goroutine: it touches only cloned
// state. Feed the result back with ApplyRerun.
type RerunJob struct {
	gen       uint64
	contracts map[contract.ContractName]contract.Executor
	txs       []UnsettledTx
}

// Generation identifies the store revision this job was built from.
func (j *RerunJob) Generation() uint64 { return j.gen }

// Run replays every unsettled transaction in order. Individual failures are
// expected (that is what made the replay necessary) and skipped.
func (j *RerunJob) Run() map[contract.ContractName]contract.Executor {
	for i := range j.txs {
		_, _ = executeBlobTx(j.contracts, &j.txs[i].Tx, &j.txs[i].Ctx, false)
	}
	return j.contracts
}

// BeginRerun returns a replay job when one is pending, nil otherwise.
// Starting a new job supersedes any in-flight one: its generation is the
// only one ApplyRerun will accept.
func (s *Store) BeginRerun() *RerunJob {
	if !s.rerunWanted || s.catchingUp {
		return nil
	}
	s.rerunWanted = false
	s.rerunGen++

	job := &RerunJob{
		gen:       s.rerunGen,
		contracts: make(map[contract.ContractName]contract.Executor, len(s.settled)),
		txs:       s.Unsettled(),
	}
	for name, exec := range s.settled {
		job.contracts[name] = exec.Clone()
	}
	return job
}

// ApplyRerun installs a finished replay as the new speculative view. Results
// from superseded jobs are discarded.
func (s *Store) ApplyRerun(gen uint64, contracts map[contract.ContractName]contract.Executor) bool {
	if gen != s.rerunGen {
		s.logger.Debug().Uint64("generation", gen).Uint64("current", s.rerunGen).Msg("discarding stale replay")
		return false
	}
	s.optimistic = contracts
	s.logger.Info().Uint64("generation", gen).Msg("replay finished, speculative view rebuilt")
	return true
}

// RerunNow performs any pending replay synchronously.
func (s *Store) RerunNow() {
	if job := s.BeginRerun(); job != nil {
		s.ApplyRerun(job.Generation(), job.Run())
	}
}
