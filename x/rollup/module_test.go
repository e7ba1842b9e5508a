package rollup

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"testing"
	"time"

	ethcrypto "github.com/ethereum/go-ethereum/crypto"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/hyli-org/degen-party/x/boardgame"
	"github.com/hyli-org/degen-party/x/contract"
	"github.com/hyli-org/degen-party/x/contract/secp"
	"github.com/hyli-org/degen-party/x/crashgame"
	"github.com/hyli-org/degen-party/x/node"
	"github.com/hyli-org/degen-party/x/storage"
	"github.com/hyli-org/degen-party/x/tick"
	"github.com/hyli-org/degen-party/x/ws"
)

type fakeSink struct {
	messages []any
}

func (f *fakeSink) Broadcast(v any) error {
	f.messages = append(f.messages, v)
	return nil
}

type moduleFixture struct {
	m      *Module
	sink   *fakeSink
	client *node.MemoryClient
	now    *uint64
}

func newModuleFixture(t *testing.T) *moduleFixture {
	t.Helper()

	key, err := ethcrypto.GenerateKey()
	require.NoError(t, err)

	now := uint64(1_000_000)
	nowFn := func() time.Time { return time.UnixMilli(int64(now)) }

	pubKeyHex := hex.EncodeToString(ethcrypto.CompressPubkey(&key.PublicKey))
	backend := contract.NewIdentity(pubKeyHex, "secp256k1")

	store := NewStore(map[contract.ContractName]contract.Executor{
		boardgame.Name: boardgame.NewExecutor(backend),
		crashgame.Name: crashgame.NewExecutor(boardgame.Name, backend),
		secp.Name:      secp.New(),
	}, func() uint64 { return now })

	client := node.NewMemoryClient("lane-1", func() uint64 { return now })
	sink := &fakeSink{}

	m := NewModule(Config{
		BoardContract: boardgame.Name,
		CrashContract: crashgame.Name,
		PrivateKey:    key,
		Now:           nowFn,
		Rand:          func() float64 { return 1.0 },
	}, store, client, nil, nil, sink, storage.NewMemoryStore(), nil, prometheus.NewRegistry())

	return &moduleFixture{m: m, sink: sink, client: client, now: &now}
}

func signedCommand(t *testing.T, key []byte, cmd Command) ws.Inbound {
	t.Helper()
	priv, err := ethcrypto.ToECDSA(key)
	require.NoError(t, err)

	id := uuid.New()
	body, err := json.Marshal(cmd)
	require.NoError(t, err)

	signed := id.String() + ":command"
	digest := sha256.Sum256([]byte(signed))
	sig, err := ethcrypto.Sign(digest[:], priv)
	require.NoError(t, err)

	env := ws.AuthenticatedMessage{
		Message:    body,
		Signature:  hex.EncodeToString(sig[:64]),
		PublicKey:  hex.EncodeToString(ethcrypto.CompressPubkey(&priv.PublicKey)),
		MessageID:  id.String(),
		SignedData: signed,
	}
	identity, parsed, err := env.Verify()
	require.NoError(t, err)
	require.Equal(t, id, parsed)
	return ws.Inbound{Identity: identity, UUID: id, Envelope: env}
}

func playerKey(t *testing.T) []byte {
	t.Helper()
	key, err := ethcrypto.GenerateKey()
	require.NoError(t, err)
	return ethcrypto.FromECDSA(key)
}

func lastBoardUpdate(t *testing.T, sink *fakeSink) boardStateUpdated {
	t.Helper()
	for i := len(sink.messages) - 1; i >= 0; i-- {
		if upd, ok := sink.messages[i].(boardStateUpdated); ok {
			return upd
		}
	}
	t.Fatal("no board state update broadcast")
	return boardStateUpdated{}
}

func TestBackendIdentityBlobVerifies(t *testing.T) {
	t.Parallel()
	fx := newModuleFixture(t)

	id := uuid.New()
	blob, err := fx.m.backendIdentityBlob(id, "SpinWheel")
	require.NoError(t, err)
	require.Equal(t, secp.Name, blob.ContractName)

	verifier := secp.New()
	out, err := verifier.Handle(&contract.Calldata{
		Identity: fx.m.BackendIdentity(),
		Blobs:    []contract.Blob{blob},
		Index:    0,
	})
	require.NoError(t, err)
	require.True(t, out.Success)
}

func TestClientCommandBecomesTransaction(t *testing.T) {
	t.Parallel()
	fx := newModuleFixture(t)
	key := playerKey(t)
	ctx := context.Background()

	raw, err := json.Marshal(boardActionBody{Type: "initialize", PlayerCount: 2})
	require.NoError(t, err)
	fx.m.handleCommand(ctx, signedCommand(t, key, Command{Game: "board", Type: "submit_action", Action: raw}))

	raw, err = json.Marshal(boardActionBody{Type: "register_player", Name: "alice"})
	require.NoError(t, err)
	fx.m.handleCommand(ctx, signedCommand(t, key, Command{Game: "board", Type: "submit_action", Action: raw}))

	upd := lastBoardUpdate(t, fx.sink)
	require.Equal(t, boardgame.PhaseRegistration, upd.State.Phase)
	require.Len(t, upd.State.Players, 1)
	require.Equal(t, "alice", upd.State.Players[0].Name)

	// Submission to the ledger happens off the loop goroutine.
	require.Eventually(t, func() bool { return fx.client.PendingCount() == 2 }, time.Second, 10*time.Millisecond)
	require.Len(t, fx.client.Seal().Txs, 2)
}

func TestRejectedCommandEmitsActionRejected(t *testing.T) {
	t.Parallel()
	fx := newModuleFixture(t)
	key := playerKey(t)

	// Betting before the game is initialized fails in the contract.
	raw, err := json.Marshal(boardActionBody{Type: "place_bet", Amount: 10})
	require.NoError(t, err)
	fx.m.handleCommand(context.Background(), signedCommand(t, key, Command{Game: "board", Type: "submit_action", Action: raw}))

	var found bool
	for _, msg := range fx.sink.messages {
		if rej, ok := msg.(actionRejected); ok {
			found = true
			require.Equal(t, "board", rej.Game)
			require.NotEmpty(t, rej.Reason)
		}
	}
	require.True(t, found)
}

func TestEndMinigameCannotBeSubmittedDirectly(t *testing.T) {
	t.Parallel()
	fx := newModuleFixture(t)
	key := playerKey(t)

	raw := json.RawMessage(`{"type":"end_game"}`)
	action, err := decodeBoardAction(raw)
	require.NoError(t, err)
	require.IsType(t, boardgame.EndGame{}, action)

	_, err = decodeBoardAction(json.RawMessage(`{"type":"bogus"}`))
	require.ErrorIs(t, err, contract.ErrValidation)

	in := signedCommand(t, key, Command{Game: "board", Type: "submit_action", Action: json.RawMessage(`{"type":"end_minigame"}`)})
	fx.m.handleCommand(context.Background(), in)
	require.Empty(t, fx.client.Seal().Txs)
}

func TestTickAutoStartsCrashRound(t *testing.T) {
	t.Parallel()
	fx := newModuleFixture(t)

	crash := fx.m.crashGame()
	crash.Verifiable.Phase = crashgame.PhasePlacingBets
	crash.Backend.SetupTime = *fx.now - crashgame.AutoStartMs - 1

	fx.m.onTick(context.Background(), tick.Info{At: fx.m.cfg.Now(), Delta: 50 * time.Millisecond})

	require.Equal(t, crashgame.PhaseRunning, fx.m.crashGame().Verifiable.Phase)
	require.Eventually(t, func() bool { return fx.client.PendingCount() == 1 }, time.Second, 10*time.Millisecond)
}

func TestPublishedStateIsDetached(t *testing.T) {
	t.Parallel()
	fx := newModuleFixture(t)

	fx.m.publish()
	published := fx.m.Published()
	require.NotNil(t, published.Board)
	require.NotNil(t, published.Crash)

	// Mutating the live state must not leak into the published view.
	fx.m.boardGame().Round = 9
	require.NotEqual(t, uint32(9), published.Board.Round)
}
