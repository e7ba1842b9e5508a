package main

import (
	"context"
	"crypto/ecdsa"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/hyli-org/degen-party/degen-party-app/config"
	apisrv "github.com/hyli-org/degen-party/server/api"
	apimw "github.com/hyli-org/degen-party/server/api/middleware"
	"github.com/hyli-org/degen-party/x/boardgame"
	"github.com/hyli-org/degen-party/x/contract"
	"github.com/hyli-org/degen-party/x/contract/secp"
	"github.com/hyli-org/degen-party/x/crashgame"
	"github.com/hyli-org/degen-party/x/node"
	"github.com/hyli-org/degen-party/x/prover"
	"github.com/hyli-org/degen-party/x/rollup"
	rolluphttp "github.com/hyli-org/degen-party/x/rollup/http"
	"github.com/hyli-org/degen-party/x/storage"
	"github.com/hyli-org/degen-party/x/ws"
)

// App wires the executor module to the ledger node, the websocket hub and the
// HTTP API, and owns their lifecycles.
type App struct {
	cfg *config.Config
	log zerolog.Logger

	client   node.Client
	memory   *node.MemoryClient
	poller   *node.BlockPoller
	hub      *ws.Hub
	proofSvc *prover.Service
	module   *rollup.Module

	apiServer *apisrv.Server

	cancel context.CancelFunc
}

// NewApp creates a new application instance
func NewApp(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*App, error) {
	app := &App{
		cfg: cfg,
		log: log.With().Str("component", "app").Logger(),
	}

	if err := app.initialize(ctx); err != nil {
		return nil, fmt.Errorf("failed to initialize app: %w", err)
	}

	return app, nil
}

// initialize sets up the application components
func (a *App) initialize(ctx context.Context) error {
	key, err := a.loadPrivateKey()
	if err != nil {
		return err
	}

	if err := a.initializeNodeClient(); err != nil {
		return err
	}

	store, snapshots, err := a.initializeStore(key)
	if err != nil {
		return err
	}

	if err := a.ensureRegistration(ctx, key); err != nil {
		return err
	}

	a.initializeProver()

	a.hub = ws.NewHub()
	a.poller = node.NewBlockPoller(
		a.client,
		store.LastProcessedBlock()+1,
		node.WithPollInterval(a.cfg.Node.PollInterval),
	)

	a.module = rollup.NewModule(rollup.Config{
		BoardContract: contract.ContractName(a.cfg.Executor.BoardContract),
		CrashContract: contract.ContractName(a.cfg.Executor.CrashContract),
		PrivateKey:    key,
		SnapshotName:  a.cfg.Executor.SnapshotName,
		TickInterval:  a.cfg.Executor.TickInterval,
	}, store, a.client, a.poller.Events(), a.hub.Inbound(), a.hub, snapshots, a.proofSvc, nil)

	return a.initializeAPIServer()
}

// loadPrivateKey parses the configured backend key, generating an ephemeral
// one when none is set.
func (a *App) loadPrivateKey() (*ecdsa.PrivateKey, error) {
	raw := strings.TrimSpace(a.cfg.Executor.PrivateKey)
	if raw == "" {
		key, err := ethcrypto.GenerateKey()
		if err != nil {
			return nil, fmt.Errorf("failed to generate backend key: %w", err)
		}
		a.log.Warn().Msg("No backend private key configured, generated an ephemeral one")
		return key, nil
	}

	key, err := ethcrypto.HexToECDSA(strings.TrimPrefix(raw, "0x"))
	if err != nil {
		return nil, fmt.Errorf("invalid executor.private_key: %w", err)
	}
	return key, nil
}

// initializeNodeClient picks the ledger backend. Without a configured node
// URL the app runs an in-process ledger that seals pending transactions on a
// timer.
func (a *App) initializeNodeClient() error {
	if strings.TrimSpace(a.cfg.Node.BaseURL) == "" {
		a.memory = node.NewMemoryClient(
			contract.LaneID(a.cfg.Node.LaneID),
			func() uint64 { return uint64(time.Now().UnixMilli()) },
		)
		a.client = a.memory
		a.log.Info().Str("lane", a.cfg.Node.LaneID).Msg("Running against the in-process ledger")
		return nil
	}

	client, err := node.NewHTTPClient(a.cfg.Node.BaseURL)
	if err != nil {
		return fmt.Errorf("failed to create node client: %w", err)
	}
	a.client = client
	return nil
}

// initializeStore restores the executor store from the last snapshot, or
// seeds it from genesis when none exists.
func (a *App) initializeStore(key *ecdsa.PrivateKey) (*rollup.Store, storage.Store, error) {
	snapshots, err := storage.NewFileStore(a.cfg.Executor.DataDir)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open data dir: %w", err)
	}

	board := contract.ContractName(a.cfg.Executor.BoardContract)
	crash := contract.ContractName(a.cfg.Executor.CrashContract)

	registry := contract.NewRegistry()
	registry.Register(board, boardgame.Restore)
	registry.Register(crash, crashgame.Restore)
	registry.Register(secp.Name, secp.Restore)

	nowMs := func() uint64 { return uint64(time.Now().UnixMilli()) }

	data, err := snapshots.Load(a.cfg.Executor.SnapshotName)
	switch {
	case err == nil:
		store, err := rollup.RestoreStore(data, registry, nowMs)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to restore snapshot: %w", err)
		}
		a.log.Info().
			Uint64("height", uint64(store.LastProcessedBlock())).
			Msg("Restored executor state from snapshot")
		return store, snapshots, nil
	case errors.Is(err, storage.ErrNotFound):
		store := rollup.NewStore(a.genesis(key), nowMs)
		a.log.Info().Msg("No snapshot found, starting from genesis")
		return store, snapshots, nil
	default:
		return nil, nil, fmt.Errorf("failed to load snapshot: %w", err)
	}
}

func (a *App) genesis(key *ecdsa.PrivateKey) map[contract.ContractName]contract.Executor {
	backend := contract.NewIdentity(
		hex.EncodeToString(ethcrypto.CompressPubkey(&key.PublicKey)),
		"secp256k1",
	)
	board := contract.ContractName(a.cfg.Executor.BoardContract)
	crash := contract.ContractName(a.cfg.Executor.CrashContract)
	return map[contract.ContractName]contract.Executor{
		board:     boardgame.NewExecutor(backend),
		crash:     crashgame.NewExecutor(board, backend),
		secp.Name: secp.New(),
	}
}

// ensureRegistration registers the hosted contracts on the ledger when they
// are not known yet.
func (a *App) ensureRegistration(ctx context.Context, key *ecdsa.PrivateKey) error {
	for name, exec := range a.genesis(key) {
		registered, err := a.client.ContractRegistered(ctx, name)
		if err != nil {
			return fmt.Errorf("failed to check registration of %q: %w", name, err)
		}
		if registered {
			continue
		}
		if err := a.client.RegisterContract(ctx, name, exec.Commit()); err != nil {
			return fmt.Errorf("failed to register contract %q: %w", name, err)
		}
		a.log.Info().Str("contract", string(name)).Msg("Registered contract on the ledger")
	}
	return nil
}

// initializeProver sets up proof generation if enabled
func (a *App) initializeProver() {
	if !a.cfg.Prover.Enabled {
		return
	}

	var p prover.Prover = prover.TestProver{}
	if strings.TrimSpace(a.cfg.Prover.BaseURL) != "" {
		client, err := prover.NewHTTPClient(a.cfg.Prover.BaseURL)
		if err != nil {
			a.log.Error().Err(err).Msg("Failed to create prover client, proving disabled")
			return
		}
		p = client
	} else {
		a.log.Warn().Msg("No prover base_url configured, using the in-process test prover")
	}

	a.proofSvc = prover.NewService(p, a.cfg.Prover.QueueDepth)
}

// initializeAPIServer sets up the HTTP API server with all endpoints
func (a *App) initializeAPIServer() error {
	apiCfg := apisrv.Config{
		ListenAddr:        a.cfg.API.ListenAddr,
		ReadHeaderTimeout: a.cfg.API.ReadHeaderTimeout,
		ReadTimeout:       a.cfg.API.ReadTimeout,
		WriteTimeout:      a.cfg.API.WriteTimeout,
		IdleTimeout:       a.cfg.API.IdleTimeout,
		MaxHeaderBytes:    a.cfg.API.MaxHeaderBytes,
	}
	s := apisrv.NewServer(apiCfg, a.log)
	s.Use(apimw.Recover(a.log))
	s.Use(apimw.RequestID())
	s.Use(apimw.Logger(a.log))
	s.EnableCORS()

	// State API
	stateHandler := rolluphttp.NewHandler(a.module, a.log)
	stateHandler.RegisterMux(s.Router)

	// Game client websocket
	s.Router.Handle("/ws", a.hub)

	// Metrics
	if a.cfg.Metrics.Enabled {
		s.Router.Handle(a.cfg.Metrics.Path, promhttp.Handler()).
			Methods(http.MethodGet)
	}

	a.apiServer = s
	return nil
}

// Run starts the application and blocks until shutdown.
func (a *App) Run(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	a.cancel = cancel

	go a.hub.Run(runCtx)

	go func() {
		if err := a.poller.Run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
			a.log.Error().Err(err).Msg("Block poller error")
		}
	}()

	if a.memory != nil {
		go a.sealLoop(runCtx)
	}

	if a.proofSvc != nil {
		go func() {
			if err := a.proofSvc.Run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
				a.log.Error().Err(err).Msg("Prover service error")
			}
		}()
		go a.drainProofs(runCtx)
	}

	go func() {
		if err := a.apiServer.Start(runCtx); err != nil {
			a.log.Error().Err(err).Msg("API server error")
		}
	}()

	moduleErr := make(chan error, 1)
	go func() {
		moduleErr <- a.module.Run(runCtx)
	}()

	return a.runWithGracefulShutdown(runCtx, moduleErr)
}

// runWithGracefulShutdown handles shutdown signals.
func (a *App) runWithGracefulShutdown(ctx context.Context, moduleErr <-chan error) error {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	a.log.Info().Msg("Degen Party executor started successfully")

	var runErr error
	select {
	case <-ctx.Done():
		a.log.Info().Msg("Context canceled, initiating shutdown")
	case sig := <-sigCh:
		a.log.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
	case err := <-moduleErr:
		if err != nil && !errors.Is(err, context.Canceled) {
			a.log.Error().Err(err).Msg("Executor module stopped with error")
			runErr = err
		}
	}

	if a.cancel != nil {
		a.cancel()
	}

	a.log.Info().Msg("Graceful shutdown complete")
	return runErr
}

// sealLoop sequences pending in-process ledger transactions into blocks, so
// local runs settle without an external node.
func (a *App) sealLoop(ctx context.Context) {
	ticker := time.NewTicker(a.cfg.Node.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if a.memory.PendingCount() > 0 {
				block := a.memory.Seal()
				a.log.Debug().
					Uint64("height", uint64(block.Height)).
					Int("txs", len(block.Txs)).
					Msg("Sealed in-process block")
			}
		}
	}
}

// drainProofs consumes prover artifacts. The ledger node fetches proofs from
// the prover directly, so the executor only logs them.
func (a *App) drainProofs(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case artifact, ok := <-a.proofSvc.Results():
			if !ok {
				return
			}
			a.log.Debug().
				Stringer("tx", artifact.TxHash).
				Int("proof_bytes", len(artifact.Proof)).
				Msg("Proof generated")
		}
	}
}
