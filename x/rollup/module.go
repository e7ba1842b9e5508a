package rollup

import (
	"context"
	"crypto/ecdsa"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/rand"
	"sync/atomic"
	"time"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/hyli-org/degen-party/log"
	"github.com/hyli-org/degen-party/x/boardgame"
	"github.com/hyli-org/degen-party/x/contract"
	"github.com/hyli-org/degen-party/x/contract/secp"
	"github.com/hyli-org/degen-party/x/crashgame"
	"github.com/hyli-org/degen-party/x/node"
	"github.com/hyli-org/degen-party/x/prover"
	"github.com/hyli-org/degen-party/x/storage"
	"github.com/hyli-org/degen-party/x/tick"
	"github.com/hyli-org/degen-party/x/ws"
)

// DefaultSnapshotName is the store snapshot file name.
const DefaultSnapshotName = "rollup_executor.bin"

// Config parameterizes the executor module.
type Config struct {
	BoardContract contract.ContractName
	CrashContract contract.ContractName
	// PrivateKey signs backend-initiated transactions.
	PrivateKey   *ecdsa.PrivateKey
	SnapshotName string
	TickInterval time.Duration
	// Now and Rand are injectable for tests.
	Now  func() time.Time
	Rand func() float64
}

// PublishedState is an immutable view of the optimistic state, refreshed
// after every loop iteration. The HTTP API reads it without touching the
// live store.
type PublishedState struct {
	Board  *boardgame.Game      `json:"board"`
	Crash  *crashgame.Game      `json:"crash"`
	Height contract.BlockHeight `json:"height"`
}

type rerunResult struct {
	gen       uint64
	contracts map[contract.ContractName]contract.Executor
}

// Module drives the store from a single goroutine: client commands, ledger
// events, replay results and the periodic tick all funnel into one loop, so
// the store itself needs no locking.
type Module struct {
	cfg       Config
	store     *Store
	client    node.Client
	events    <-chan node.Event
	inbound   <-chan ws.Inbound
	sink      Broadcaster
	snapshots storage.Store
	proofs    *prover.Service
	metrics   *executorMetrics

	ticker *tick.Ticker
	ticks  chan tick.Info
	reruns chan rerunResult

	published atomic.Pointer[PublishedState]

	identity  contract.Identity
	pubKeyHex string
	logger    zerolog.Logger
}

// NewModule wires the executor. proofs may be nil to disable proving.
func NewModule(
	cfg Config,
	store *Store,
	client node.Client,
	events <-chan node.Event,
	inbound <-chan ws.Inbound,
	sink Broadcaster,
	snapshots storage.Store,
	proofs *prover.Service,
	reg prometheus.Registerer,
) *Module {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Rand == nil {
		cfg.Rand = rand.Float64
	}
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = tick.DefaultInterval
	}
	if cfg.SnapshotName == "" {
		cfg.SnapshotName = DefaultSnapshotName
	}

	pubKeyHex := hex.EncodeToString(ethcrypto.CompressPubkey(&cfg.PrivateKey.PublicKey))
	m := &Module{
		cfg:       cfg,
		store:     store,
		client:    client,
		events:    events,
		inbound:   inbound,
		sink:      sink,
		snapshots: snapshots,
		proofs:    proofs,
		metrics:   newExecutorMetrics(reg),
		ticks:     make(chan tick.Info, 1),
		reruns:    make(chan rerunResult, 1),
		identity:  contract.NewIdentity(pubKeyHex, "secp256k1"),
		pubKeyHex: pubKeyHex,
		logger:    log.Logger.With().Str("component", "rollup-executor").Logger(),
	}
	m.publish()
	return m
}

// BackendIdentity is the identity the module signs backend actions with.
func (m *Module) BackendIdentity() contract.Identity {
	return m.identity
}

// Published returns the latest immutable state view.
func (m *Module) Published() *PublishedState {
	return m.published.Load()
}

func (m *Module) nowMs() uint64 {
	return uint64(m.cfg.Now().UnixMilli())
}

func (m *Module) boardGame() *boardgame.Game {
	if e, ok := m.store.Optimistic(m.cfg.BoardContract).(*boardgame.Executor); ok {
		return e.Game
	}
	return nil
}

func (m *Module) crashGame() *crashgame.Game {
	if e, ok := m.store.Optimistic(m.cfg.CrashContract).(*crashgame.Executor); ok {
		return e.Game
	}
	return nil
}

// Run catches up with the chain, then serves until ctx is cancelled.
func (m *Module) Run(ctx context.Context) error {
	if height, err := m.client.GetChainHeight(ctx); err != nil {
		m.logger.Warn().Err(err).Msg("chain height unavailable, skipping catch-up")
	} else if height > m.store.LastProcessedBlock() {
		m.store.StartCatchUp(height)
		for m.store.CatchingUp() {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case ev, ok := <-m.events:
				if !ok {
					return fmt.Errorf("ledger event feed closed during catch-up")
				}
				if ev.Block != nil {
					m.store.HandleBlock(ev.Block)
					m.metrics.blocksProcessed.Inc()
				}
			}
		}
		m.store.RerunNow()
		m.metrics.replays.Inc()
	}

	m.publish()
	m.broadcastBoard(nil)
	m.broadcastCrash(nil)

	m.ticker = tick.New(tick.Config{
		Interval: m.cfg.TickInterval,
		Now:      m.cfg.Now,
		Logger:   m.logger,
		Handler: func(ctx context.Context, info tick.Info) error {
			select {
			case m.ticks <- info:
			case <-ctx.Done():
			default:
				// Loop busy, skip.
			}
			return nil
		},
	})
	if err := m.ticker.Start(ctx); err != nil {
		return err
	}
	defer func() { _ = m.ticker.Stop(context.Background()) }()

	events := m.events
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case in := <-m.inbound:
			m.handleCommand(ctx, in)
		case ev, ok := <-events:
			if !ok {
				events = nil
				continue
			}
			m.handleNodeEvent(ev)
		case res := <-m.reruns:
			if m.store.ApplyRerun(res.gen, res.contracts) {
				m.metrics.replays.Inc()
				m.broadcastBoard(nil)
				m.broadcastCrash(nil)
			}
		case info := <-m.ticks:
			m.onTick(ctx, info)
		}

		m.maybeRerun(ctx)
		m.publish()
		m.persist()
	}
}

func (m *Module) maybeRerun(ctx context.Context) {
	job := m.store.BeginRerun()
	if job == nil {
		return
	}
	go func() {
		result := rerunResult{gen: job.Generation(), contracts: job.Run()}
		select {
		case m.reruns <- result:
		case <-ctx.Done():
		}
	}()
}

func (m *Module) publish() {
	state := &PublishedState{Height: m.store.LastProcessedBlock()}
	if e, ok := m.store.Optimistic(m.cfg.BoardContract).(*boardgame.Executor); ok {
		state.Board = e.Clone().(*boardgame.Executor).Game
	}
	if e, ok := m.store.Optimistic(m.cfg.CrashContract).(*crashgame.Executor); ok {
		state.Crash = e.Clone().(*crashgame.Executor).Game
	}
	m.published.Store(state)
	m.metrics.unsettledDepth.Set(float64(len(m.store.unsettled)))
}

func (m *Module) persist() {
	data, err := m.store.Snapshot()
	if err != nil {
		m.logger.Error().Err(err).Msg("snapshot serialization failed")
		return
	}
	if err := m.snapshots.Save(m.cfg.SnapshotName, data); err != nil {
		m.logger.Error().Err(err).Msg("snapshot save failed")
	}
}

// handleNodeEvent applies one ledger observation and broadcasts whatever it
// changed.
func (m *Module) handleNodeEvent(ev node.Event) {
	switch {
	case ev.Block != nil:
		jobs := m.captureProofJobs(ev.Block)
		results := m.store.HandleBlock(ev.Block)
		m.metrics.blocksProcessed.Inc()
		m.metrics.txsSettled.Add(float64(len(jobs)))
		m.metrics.txsCancelled.Add(float64(len(ev.Block.FailedTxs) + len(ev.Block.TimedOutTxs)))
		m.submitProofJobs(jobs)
		m.broadcastResults(results)
	case ev.Mempool != nil:
		results, err := m.store.HandleOptimisticTx("", ev.Mempool.Tx, nil, SourceMempool)
		if err != nil {
			m.logger.Info().Err(err).Msg("mempool transaction failed optimistic execution")
			return
		}
		m.metrics.txsExecuted.WithLabelValues(SourceMempool.String()).Inc()
		m.broadcastResults(results)
	}
}

// captureProofJobs snapshots, for every transaction the block settles, the
// pre-state commitments of the hosted contracts it touches. Jobs are
// completed with post-state commitments after settlement is applied.
func (m *Module) captureProofJobs(block *node.NewBlock) []prover.Job {
	if m.proofs == nil || len(block.SuccessfulTxs) == 0 {
		return nil
	}
	var jobs []prover.Job
	for _, hash := range block.SuccessfulTxs {
		i := m.store.findUnsettled(hash)
		if i < 0 {
			continue
		}
		utx := m.store.unsettled[i]
		seen := make(map[contract.ContractName]bool)
		for _, blob := range utx.Tx.Blobs {
			exec := m.store.Settled(blob.ContractName)
			if exec == nil || seen[blob.ContractName] {
				continue
			}
			seen[blob.ContractName] = true
			jobs = append(jobs, prover.Job{
				Contract: blob.ContractName,
				PreState: exec.Commit(),
				Tx:       utx.Tx,
				TxCtx:    utx.Ctx,
			})
		}
	}
	return jobs
}

func (m *Module) submitProofJobs(jobs []prover.Job) {
	for i := range jobs {
		if exec := m.store.Settled(jobs[i].Contract); exec != nil {
			jobs[i].PostState = exec.Commit()
		}
		m.proofs.Submit(jobs[i])
	}
}

func (m *Module) broadcastResults(results []BlobResult) {
	for _, res := range results {
		switch res.Contract {
		case m.cfg.BoardContract:
			events, err := boardgame.DecodeEvents(res.Output)
			if err != nil {
				m.logger.Warn().Err(err).Msg("undecodable board event output")
				continue
			}
			m.broadcastBoard(events)
		case m.cfg.CrashContract:
			events, err := crashgame.DecodeEvents(res.Output)
			if err != nil {
				m.logger.Warn().Err(err).Msg("undecodable crash event output")
				continue
			}
			m.broadcastCrash(events)
		}
	}
}

func (m *Module) broadcastBoard(events []boardgame.Event) {
	if events == nil {
		events = []boardgame.Event{}
	}
	if err := m.sink.Broadcast(boardStateUpdated{
		Type:          msgBoardStateUpdated,
		State:         m.boardGame(),
		Events:        events,
		BoardContract: m.cfg.BoardContract,
		CrashContract: m.cfg.CrashContract,
	}); err != nil {
		m.logger.Warn().Err(err).Msg("board state broadcast failed")
	}
}

func (m *Module) broadcastCrash(events []crashgame.Event) {
	if events == nil {
		events = []crashgame.Event{}
	}
	if err := m.sink.Broadcast(crashStateUpdated{
		Type:   msgCrashStateUpdated,
		State:  m.crashGame(),
		Events: events,
	}); err != nil {
		m.logger.Warn().Err(err).Msg("crash state broadcast failed")
	}
}

func (m *Module) rejectAction(game string, id uuid.UUID, err error) {
	m.logger.Info().Err(err).Str("game", game).Stringer("uuid", id).Msg("rejected action")
	if berr := m.sink.Broadcast(actionRejected{
		Type:   msgActionRejected,
		Game:   game,
		UUID:   id.String(),
		Reason: err.Error(),
	}); berr != nil {
		m.logger.Warn().Err(berr).Msg("rejection broadcast failed")
	}
}

// handleCommand turns one verified client message into a transaction.
func (m *Module) handleCommand(ctx context.Context, in ws.Inbound) {
	var cmd Command
	if err := json.Unmarshal(in.Envelope.Message, &cmd); err != nil {
		m.rejectAction("", in.UUID, fmt.Errorf("%w: malformed command: %v", contract.ErrValidation, err))
		return
	}

	var (
		blobs []contract.Blob
		err   error
	)
	switch cmd.Game {
	case commandGameBoard:
		if cmd.Type == "send_state" {
			m.broadcastBoard(nil)
			return
		}
		blobs, err = m.boardCommandBlobs(ctx, cmd, in)
	case commandGameCrash:
		blobs, err = m.crashCommandBlobs(cmd, in)
	default:
		err = fmt.Errorf("%w: unknown game %q", contract.ErrValidation, cmd.Game)
	}
	if err != nil {
		m.rejectAction(cmd.Game, in.UUID, err)
		return
	}
	if blobs == nil {
		// Handled out of band (backend transaction path).
		return
	}

	blobs = append(blobs, clientIdentityBlob(in))
	m.submitTx(ctx, contract.Transaction{Identity: in.Identity, Blobs: blobs}, cmd.Game, in.UUID)
}

func (m *Module) boardCommandBlobs(ctx context.Context, cmd Command, in ws.Inbound) ([]contract.Blob, error) {
	if cmd.Type != "submit_action" {
		return nil, fmt.Errorf("%w: unknown board command %q", contract.ErrValidation, cmd.Type)
	}
	action, err := decodeBoardAction(cmd.Action)
	if err != nil {
		return nil, err
	}

	switch a := action.(type) {
	case boardgame.EndMinigame:
		return nil, fmt.Errorf("%w: EndMinigame cannot be submitted directly", contract.ErrValidation)

	case boardgame.EndGame:
		// Ending the game is a backend privilege; the client merely asks.
		m.submitBackendBoardTx(ctx, boardgame.EndGame{}, "EndGame")
		return nil, nil

	case boardgame.StartMinigame:
		board := m.boardGame()
		if board == nil {
			return nil, fmt.Errorf("%w: board game not hosted", contract.ErrUnknownContract)
		}
		if board.Phase != boardgame.PhaseStartMinigame && board.Phase != boardgame.PhaseFinalMinigame {
			return nil, fmt.Errorf("%w: not ready to start a minigame", contract.ErrValidation)
		}
		if board.PhaseMinigame != m.cfg.CrashContract {
			return nil, fmt.Errorf("%w: unsupported minigame %q", contract.ErrValidation, board.PhaseMinigame)
		}
		setup := board.MinigameSetup()
		crashIdx := contract.BlobIndex(1)
		return []contract.Blob{
			contract.NewBlob(m.cfg.BoardContract, &crashIdx, nil,
				boardgame.EncodeActionBlob(in.UUID, boardgame.StartMinigame{Minigame: m.cfg.CrashContract, Players: setup})),
			contract.NewBlob(m.cfg.CrashContract, nil, []contract.BlobIndex{0},
				crashgame.EncodeActionBlob(in.UUID, crashgame.InitMinigame{Players: setup})),
		}, nil

	case boardgame.Initialize:
		// The executor decides the minigame roster and derives the RNG seed
		// from the action UUID; clients cannot pick either.
		a.Minigames = []string{string(m.cfg.CrashContract)}
		a.RandomSeed = binary.BigEndian.Uint64(in.UUID[8:])
		return []contract.Blob{
			contract.NewBlob(m.cfg.BoardContract, nil, nil, boardgame.EncodeActionBlob(in.UUID, a)),
		}, nil

	default:
		return []contract.Blob{
			contract.NewBlob(m.cfg.BoardContract, nil, nil, boardgame.EncodeActionBlob(in.UUID, action)),
		}, nil
	}
}

func (m *Module) crashCommandBlobs(cmd Command, in ws.Inbound) ([]contract.Blob, error) {
	crash := m.crashGame()
	if crash == nil {
		return nil, fmt.Errorf("%w: crash game not hosted", contract.ErrUnknownContract)
	}

	switch cmd.Type {
	case "place_bet":
		return []contract.Blob{
			contract.NewBlob(m.cfg.CrashContract, nil, nil,
				crashgame.EncodeActionBlob(in.UUID, crashgame.PlaceBet{PlayerID: in.Identity, Amount: cmd.Amount})),
		}, nil

	case "cash_out":
		// The multiplier is read from the live backend state at submission
		// time; the contract trusts it as part of the backend boundary.
		return []contract.Blob{
			contract.NewBlob(m.cfg.CrashContract, nil, nil,
				crashgame.EncodeActionBlob(in.UUID, crashgame.CashOut{
					PlayerID:   in.Identity,
					Multiplier: crash.Backend.Multiplier,
				})),
		}, nil

	case "end":
		if crash.Verifiable.Phase != crashgame.PhaseCrashed {
			return nil, fmt.Errorf("%w: game is still running", contract.ErrValidation)
		}
		return m.endMinigameBlobs(in.UUID), nil

	default:
		return nil, fmt.Errorf("%w: unknown crash command %q", contract.ErrValidation, cmd.Type)
	}
}

// endMinigameBlobs builds the composed Done + EndMinigame pair from the
// crash game's final results.
func (m *Module) endMinigameBlobs(id uuid.UUID) []contract.Blob {
	results := m.crashGame().FinalResults()
	boardIdx := contract.BlobIndex(0)
	return []contract.Blob{
		contract.NewBlob(m.cfg.CrashContract, nil, []contract.BlobIndex{1},
			crashgame.EncodeActionBlob(id, crashgame.Done{})),
		contract.NewBlob(m.cfg.BoardContract, &boardIdx, nil,
			boardgame.EncodeActionBlob(id, boardgame.EndMinigame{Result: boardgame.MinigameResult{
				ContractName:  m.cfg.CrashContract,
				PlayerResults: results,
			}})),
	}
}

func clientIdentityBlob(in ws.Inbound) contract.Blob {
	ib := secp.IdentityBlob{
		Identity:  in.Identity,
		Data:      []byte(in.Envelope.SignedData),
		PublicKey: in.Envelope.PublicKey,
		Signature: in.Envelope.Signature,
	}
	return contract.NewBlob(secp.Name, nil, nil, ib.Encode())
}

// backendIdentityBlob signs "<uuid>:<action>" with the backend key.
func (m *Module) backendIdentityBlob(id uuid.UUID, actionName string) (contract.Blob, error) {
	data := []byte(fmt.Sprintf("%s:%s", id, actionName))
	digest := sha256.Sum256(data)
	sig, err := ethcrypto.Sign(digest[:], m.cfg.PrivateKey)
	if err != nil {
		return contract.Blob{}, fmt.Errorf("signing backend action: %w", err)
	}
	ib := secp.IdentityBlob{
		Identity:  m.identity,
		Data:      data,
		PublicKey: m.pubKeyHex,
		Signature: hex.EncodeToString(sig[:64]),
	}
	return contract.NewBlob(secp.Name, nil, nil, ib.Encode()), nil
}

func (m *Module) submitBackendBoardTx(ctx context.Context, action boardgame.Action, actionName string) {
	id := uuid.New()
	identityBlob, err := m.backendIdentityBlob(id, actionName)
	if err != nil {
		m.logger.Error().Err(err).Msg("backend board transaction failed")
		return
	}
	tx := contract.Transaction{
		Identity: m.identity,
		Blobs: []contract.Blob{
			identityBlob,
			contract.NewBlob(m.cfg.BoardContract, nil, nil, boardgame.EncodeActionBlob(id, action)),
		},
	}
	m.submitTx(ctx, tx, commandGameBoard, id)
}

func (m *Module) submitBackendCrashTx(ctx context.Context, action crashgame.Action, actionName string) {
	id := uuid.New()
	identityBlob, err := m.backendIdentityBlob(id, actionName)
	if err != nil {
		m.logger.Error().Err(err).Msg("backend crash transaction failed")
		return
	}
	tx := contract.Transaction{
		Identity: m.identity,
		Blobs: []contract.Blob{
			identityBlob,
			contract.NewBlob(m.cfg.CrashContract, nil, nil, crashgame.EncodeActionBlob(id, action)),
		},
	}
	m.submitTx(ctx, tx, commandGameCrash, id)
}

// submitTx applies the transaction optimistically and ships it to the
// ledger. A local failure is reported to the UI but the transaction is
// submitted regardless; the ledger has the final word.
func (m *Module) submitTx(ctx context.Context, tx contract.Transaction, game string, id uuid.UUID) {
	results, err := m.store.HandleOptimisticTx("", tx, nil, SourceInternal)
	if err != nil {
		m.rejectAction(game, id, err)
	} else {
		m.metrics.txsExecuted.WithLabelValues(SourceInternal.String()).Inc()
		m.broadcastResults(results)
	}

	go func() {
		if _, err := m.client.SubmitTransaction(ctx, tx); err != nil {
			m.logger.Error().Err(err).Stringer("tx", tx.Hash()).Msg("transaction submission failed")
		}
	}()
}

// onTick runs the backend automation: forcing stalled board rounds forward
// and driving the crash game's life cycle.
func (m *Module) onTick(ctx context.Context, info tick.Info) {
	started := m.cfg.Now()
	now := m.nowMs()

	if board := m.boardGame(); board != nil && board.BettingStalled(now) {
		m.submitBackendBoardTx(ctx, boardgame.SpinWheel{}, "SpinWheel")
	}
	m.crashTick(ctx, now, info)

	m.metrics.tickDuration.Observe(m.cfg.Now().Sub(started).Seconds())
}

func (m *Module) crashTick(ctx context.Context, now uint64, info tick.Info) {
	crash := m.crashGame()
	if crash == nil {
		return
	}

	switch crash.Verifiable.Phase {
	case crashgame.PhasePlacingBets:
		if now > crash.Backend.SetupTime && now-crash.Backend.SetupTime > crashgame.AutoStartMs {
			m.submitBackendCrashTx(ctx, crashgame.Start{}, "Start")
		}

	case crashgame.PhaseCrashed:
		// Unstick abandoned rounds.
		if now > crash.Backend.StartTime && now-crash.Backend.StartTime > crashgame.AutoDoneMs {
			m.submitBackendEnd(ctx)
		}

	case crashgame.PhaseRunning:
		delta := info.Delta.Seconds()
		if _, ok := crash.UpdateMultiplier(now); !ok {
			return
		}
		elapsedSecs := float64(now-crash.Backend.StartTime) / 1000.0

		// Crash probability ramps from 1% to 50% per second over the first
		// eight seconds, scaled to the instantaneous tick delta.
		ramp := elapsedSecs / 8.0
		if ramp > 1.0 {
			ramp = 1.0
		}
		probability := (0.01 + 0.49*ramp) * delta

		if m.cfg.Rand() < probability {
			m.submitBackendCrashTx(ctx, crashgame.Crash{FinalMultiplier: crash.Backend.Multiplier}, "Crash")
			return
		}
		m.broadcastCrash(nil)
	}
}

// submitBackendEnd builds the composed Done + EndMinigame transaction under
// the backend identity.
func (m *Module) submitBackendEnd(ctx context.Context) {
	id := uuid.New()
	identityBlob, err := m.backendIdentityBlob(id, "EndMinigame")
	if err != nil {
		m.logger.Error().Err(err).Msg("backend end transaction failed")
		return
	}
	blobs := append(m.endMinigameBlobs(id), identityBlob)
	m.submitTx(ctx, contract.Transaction{Identity: m.identity, Blobs: blobs}, commandGameCrash, id)
}
