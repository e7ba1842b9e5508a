package crashgame

import (
	"bytes"
	"math"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/hyli-org/degen-party/x/boardgame"
	"github.com/hyli-org/degen-party/x/contract"
)

const (
	backend = contract.Identity("hyli@wallet")
	alice   = contract.Identity("alice@secp256k1")
	bob     = contract.Identity("bob@secp256k1")
)

func roster() boardgame.MinigameSetup {
	return boardgame.MinigameSetup{
		{ID: alice, Name: "alice", Bet: 10},
		{ID: bob, Name: "bob", Bet: 10},
	}
}

// placingGame builds a two-player round in the PlacingBets phase.
func placingGame(t *testing.T) *Game {
	t.Helper()
	g := NewGame("board_game", backend)
	_, err := g.ProcessChainAction(backend, InitMinigame{Players: roster()}, 1000)
	require.NoError(t, err)
	require.Equal(t, PhasePlacingBets, g.Verifiable.Phase)
	require.Equal(t, uint64(StartingCoins), g.Verifiable.Players[alice].Coins)
	return g
}

func TestMultiplierCurve(t *testing.T) {
	t.Parallel()

	require.Equal(t, 1.0, MultiplierAt(0))
	require.InDelta(t, math.Exp(3.0*(0.02+3000*0.000015)), MultiplierAt(3000), 1e-12)

	prev := 1.0
	for ms := uint64(500); ms < 20_000; ms += 500 {
		m := MultiplierAt(ms)
		require.Greater(t, m, prev)
		prev = m
	}
	require.Equal(t, MaxMultiplier, MultiplierAt(10_000_000), "curve is capped")
}

func TestCrashRoundLifecycle(t *testing.T) {
	t.Parallel()

	g := placingGame(t)

	_, err := g.ProcessChainAction(alice, PlaceBet{PlayerID: alice, Amount: 20}, 2000)
	require.NoError(t, err)
	require.Equal(t, uint64(80), g.Verifiable.Players[alice].Coins)
	_, err = g.ProcessChainAction(bob, PlaceBet{PlayerID: bob, Amount: 20}, 2100)
	require.NoError(t, err)

	_, err = g.ProcessChainAction(backend, Start{}, 3000)
	require.NoError(t, err)
	require.Equal(t, PhaseRunning, g.Verifiable.Phase)
	require.Equal(t, uint64(3000), g.Backend.StartTime)

	m, running := g.UpdateMultiplier(6000)
	require.True(t, running)
	require.InDelta(t, MultiplierAt(3000), m, 1e-12)

	events, err := g.ProcessChainAction(alice, CashOut{PlayerID: alice, Multiplier: m}, 6000)
	require.NoError(t, err)
	require.Equal(t, EventPlayerCashedOut, events[0].Kind)
	require.Equal(t, Winnings(20, m), events[0].Winnings)

	_, err = g.ProcessChainAction(backend, Crash{FinalMultiplier: m}, 6500)
	require.NoError(t, err)
	require.Equal(t, PhaseCrashed, g.Verifiable.Phase)

	results := g.FinalResults()
	require.Equal(t, []boardgame.PlayerResult{
		{PlayerID: alice, CoinsDelta: int64(Winnings(20, m)) - 20},
		{PlayerID: bob, CoinsDelta: -20},
	}, results)

	_, err = g.ProcessChainAction(backend, Done{}, 7000)
	require.NoError(t, err)
	require.Equal(t, PhaseIdle, g.Verifiable.Phase)
	require.Empty(t, g.Verifiable.Players)
	require.Empty(t, g.Verifiable.Bets)
}

func TestPlaceBetValidation(t *testing.T) {
	t.Parallel()

	g := placingGame(t)

	_, err := g.ProcessChainAction(bob, PlaceBet{PlayerID: alice, Amount: 10}, 2000)
	require.ErrorIs(t, err, contract.ErrValidation, "no betting on another player's behalf")
	_, err = g.ProcessChainAction(alice, PlaceBet{PlayerID: alice, Amount: 0}, 2000)
	require.ErrorIs(t, err, contract.ErrValidation)
	_, err = g.ProcessChainAction(alice, PlaceBet{PlayerID: alice, Amount: MaxBet + 1}, 2000)
	require.ErrorIs(t, err, contract.ErrValidation)

	_, err = g.ProcessChainAction(alice, PlaceBet{PlayerID: alice, Amount: 60}, 2000)
	require.NoError(t, err)
	_, err = g.ProcessChainAction(alice, PlaceBet{PlayerID: alice, Amount: 10}, 2100)
	require.ErrorIs(t, err, contract.ErrValidation, "one bet per player")

	// Balance was debited to 40.
	_, err = g.ProcessChainAction(bob, PlaceBet{PlayerID: bob, Amount: 90}, 2200)
	require.NoError(t, err)
	require.Equal(t, uint64(10), g.Verifiable.Players[bob].Coins)
}

func TestOnlyBackendStartsAndCrashes(t *testing.T) {
	t.Parallel()

	g := placingGame(t)
	_, err := g.ProcessChainAction(alice, Start{}, 2000)
	require.ErrorIs(t, err, contract.ErrValidation)
	_, err = g.ProcessChainAction(backend, Start{}, 2000)
	require.NoError(t, err)

	_, err = g.ProcessChainAction(alice, Crash{FinalMultiplier: 2.0}, 3000)
	require.ErrorIs(t, err, contract.ErrValidation)
	_, err = g.ProcessChainAction(backend, Crash{FinalMultiplier: 2.0}, 3000)
	require.NoError(t, err)

	_, err = g.ProcessChainAction(alice, CashOut{PlayerID: alice, Multiplier: 2.0}, 3100)
	require.ErrorIs(t, err, contract.ErrValidation, "round already crashed")
}

func TestCommitmentStableWhileRunning(t *testing.T) {
	t.Parallel()

	g := placingGame(t)
	_, err := g.ProcessChainAction(alice, PlaceBet{PlayerID: alice, Amount: 20}, 2000)
	require.NoError(t, err)
	_, err = g.ProcessChainAction(backend, Start{}, 3000)
	require.NoError(t, err)

	first := CommitState(g)
	g.UpdateMultiplier(9000)
	second := CommitState(g)
	require.True(t, bytes.Equal(first, second), "live commitments exclude timers")

	_, err = g.ProcessChainAction(backend, Crash{FinalMultiplier: g.Backend.Multiplier}, 9100)
	require.NoError(t, err)
	require.False(t, bytes.Equal(first, CommitState(g)), "terminal commitment includes the backend sub-state")
}

func TestStateRoundTrip(t *testing.T) {
	t.Parallel()

	g := placingGame(t)
	_, err := g.ProcessChainAction(alice, PlaceBet{PlayerID: alice, Amount: 20}, 2000)
	require.NoError(t, err)
	_, err = g.ProcessChainAction(backend, Start{}, 3000)
	require.NoError(t, err)
	_, err = g.ProcessChainAction(alice, CashOut{PlayerID: alice, Multiplier: 1.5}, 4000)
	require.NoError(t, err)
	g.LastInteraction = 4000
	g.LaneID = "lane-1"

	data := MarshalState(g)
	restored, err := UnmarshalState(data)
	require.NoError(t, err)
	require.Equal(t, g, restored)
	require.True(t, bytes.Equal(data, MarshalState(restored)))
}

func TestActionBlobRoundTrip(t *testing.T) {
	t.Parallel()

	id := uuid.New()
	for _, action := range []Action{
		InitMinigame{Players: roster()},
		PlaceBet{PlayerID: alice, Amount: 42},
		Start{},
		CashOut{PlayerID: bob, Multiplier: 2.25},
		Crash{FinalMultiplier: 3.5},
		Done{},
	} {
		payload := EncodeActionBlob(id, action)
		gotID, gotAction, err := DecodeActionBlob(payload)
		require.NoError(t, err)
		require.Equal(t, id, gotID)
		require.Equal(t, action, gotAction)
	}
}

// composedCalldata builds a two-blob transaction pairing a crash action with
// its board counterpart.
func composedCalldata(id uuid.UUID, crashAction Action, boardPayload []byte) *contract.Calldata {
	callee := contract.BlobIndex(1)
	caller := contract.BlobIndex(0)
	blobs := []contract.Blob{
		contract.NewBlob(Name, nil, []contract.BlobIndex{callee}, EncodeActionBlob(id, crashAction)),
		contract.NewBlob("board_game", &caller, nil, boardPayload),
	}
	return &contract.Calldata{
		Identity:    backend,
		Blobs:       blobs,
		Index:       0,
		TxCtx:       &contract.TxContext{Timestamp: 5000, LaneID: "lane-1"},
		TxBlobCount: len(blobs),
	}
}

func TestInitMinigameRequiresMatchingBoardBlob(t *testing.T) {
	t.Parallel()

	e := NewExecutor("board_game", backend)
	id := uuid.New()

	good := boardgame.EncodeActionBlob(id, boardgame.StartMinigame{Minigame: Name, Players: roster()})
	out, err := e.Handle(composedCalldata(id, InitMinigame{Players: roster()}, good))
	require.NoError(t, err)
	require.True(t, out.Success)

	// A divergent roster on the board side must be rejected.
	e2 := NewExecutor("board_game", backend)
	tampered := roster()
	tampered[0].Bet = 999
	bad := boardgame.EncodeActionBlob(id, boardgame.StartMinigame{Minigame: Name, Players: tampered})
	_, err = e2.Handle(composedCalldata(id, InitMinigame{Players: roster()}, bad))
	require.ErrorIs(t, err, contract.ErrCompositionMismatch)
}

func TestDoneRequiresExactDeltasOnBoardBlob(t *testing.T) {
	t.Parallel()

	e := NewExecutor("board_game", backend)
	g := e.Game
	_, err := g.ProcessChainAction(backend, InitMinigame{Players: roster()}, 1000)
	require.NoError(t, err)
	_, err = g.ProcessChainAction(alice, PlaceBet{PlayerID: alice, Amount: 20}, 2000)
	require.NoError(t, err)
	_, err = g.ProcessChainAction(backend, Start{}, 3000)
	require.NoError(t, err)
	_, err = g.ProcessChainAction(backend, Crash{FinalMultiplier: 2.0}, 4000)
	require.NoError(t, err)

	id := uuid.New()
	good := boardgame.EncodeActionBlob(id, boardgame.EndMinigame{Result: boardgame.MinigameResult{
		ContractName:  Name,
		PlayerResults: g.FinalResults(),
	}})
	out, err := e.Handle(composedCalldata(id, Done{}, good))
	require.NoError(t, err)
	require.True(t, out.Success)

	// Rebuild the same terminal state and try settling with wrong deltas.
	e2 := NewExecutor("board_game", backend)
	g2 := e2.Game
	_, err = g2.ProcessChainAction(backend, InitMinigame{Players: roster()}, 1000)
	require.NoError(t, err)
	_, err = g2.ProcessChainAction(alice, PlaceBet{PlayerID: alice, Amount: 20}, 2000)
	require.NoError(t, err)
	_, err = g2.ProcessChainAction(backend, Start{}, 3000)
	require.NoError(t, err)
	_, err = g2.ProcessChainAction(backend, Crash{FinalMultiplier: 2.0}, 4000)
	require.NoError(t, err)

	wrong := boardgame.EncodeActionBlob(id, boardgame.EndMinigame{Result: boardgame.MinigameResult{
		ContractName:  Name,
		PlayerResults: []boardgame.PlayerResult{{PlayerID: alice, CoinsDelta: 9999}},
	}})
	_, err = e2.Handle(composedCalldata(id, Done{}, wrong))
	require.ErrorIs(t, err, contract.ErrCompositionMismatch)
}
