package boardgame

import (
	"bytes"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/hyli-org/degen-party/x/contract"
)

const (
	backend = contract.Identity("hyli@wallet")
	alice   = contract.Identity("alice@secp256k1")
	bob     = contract.Identity("bob@secp256k1")
)

func uid(n byte) uuid.UUID {
	var u uuid.UUID
	u[15] = n
	return u
}

// startedGame builds a two-player game in the Betting phase.
func startedGame(t *testing.T, seed uint64) *Game {
	t.Helper()
	g := NewGame(backend)
	_, err := g.ProcessAction(backend, uid(1), Initialize{PlayerCount: 2, Minigames: []string{"crash_game"}, RandomSeed: seed}, 1000)
	require.NoError(t, err)
	_, err = g.ProcessAction(alice, uid(2), RegisterPlayer{Name: "alice"}, 2000)
	require.NoError(t, err)
	_, err = g.ProcessAction(bob, uid(3), RegisterPlayer{Name: "bob"}, 3000)
	require.NoError(t, err)
	_, err = g.ProcessAction(alice, uid(4), StartGame{}, 4000)
	require.NoError(t, err)
	require.Equal(t, PhaseBetting, g.Phase)
	return g
}

func TestDiceDeterminism(t *testing.T) {
	t.Parallel()

	a := NewDice(1, 10, 42)
	b := NewDice(1, 10, 42)
	for i := 0; i < 100; i++ {
		ra, rb := a.Roll(), b.Roll()
		require.Equal(t, ra, rb)
		require.GreaterOrEqual(t, ra, uint8(1))
		require.LessOrEqual(t, ra, uint8(10))
	}
}

func TestFullBettingRoundAdvancesOnce(t *testing.T) {
	t.Parallel()

	// Seed 3 makes the first wheel spin land on outcome 0.
	g := startedGame(t, 3)

	_, err := g.ProcessAction(alice, uid(5), PlaceBet{Amount: 10}, 5000)
	require.NoError(t, err)
	require.Equal(t, PhaseBetting, g.Phase)
	_, err = g.ProcessAction(bob, uid(6), PlaceBet{Amount: 10}, 5500)
	require.NoError(t, err)
	require.Equal(t, PhaseWheelSpin, g.Phase)

	events, err := g.ProcessAction(backend, uid(7), SpinWheel{}, 6000)
	require.NoError(t, err)
	require.Equal(t, EventWheelSpun, events[0].Kind)
	require.Equal(t, uint8(0), events[0].Outcome)

	require.Equal(t, uint32(1), g.Round)
	require.Equal(t, PhaseBetting, g.Phase)
	require.Empty(t, g.Bets)
	require.Equal(t, int64(90), g.Players[0].Coins)
	require.Equal(t, int64(90), g.Players[1].Coins)
}

func TestDuplicateActionUUIDRejected(t *testing.T) {
	t.Parallel()

	g := startedGame(t, 3)
	_, err := g.ProcessAction(alice, uid(5), PlaceBet{Amount: 10}, 5000)
	require.NoError(t, err)
	_, err = g.ProcessAction(alice, uid(5), PlaceBet{Amount: 10}, 5100)
	require.ErrorIs(t, err, contract.ErrDuplicateAction)
}

func TestActionsGatedByPhase(t *testing.T) {
	t.Parallel()

	g := NewGame(backend)
	_, err := g.ProcessAction(backend, uid(1), Initialize{PlayerCount: 2, Minigames: []string{"crash_game"}, RandomSeed: 1}, 1000)
	require.NoError(t, err)

	_, err = g.ProcessAction(alice, uid(2), PlaceBet{Amount: 10}, 2000)
	require.ErrorIs(t, err, contract.ErrValidation)
	_, err = g.ProcessAction(alice, uid(3), SpinWheel{}, 2000)
	require.ErrorIs(t, err, contract.ErrValidation)
	_, err = g.ProcessAction(alice, uid(4), Initialize{PlayerCount: 2, Minigames: []string{"x"}, RandomSeed: 1}, 2000)
	require.ErrorIs(t, err, contract.ErrValidation)
}

func TestRegistrationRules(t *testing.T) {
	t.Parallel()

	g := NewGame(backend)
	_, err := g.ProcessAction(backend, uid(1), Initialize{PlayerCount: 1, Minigames: []string{"crash_game"}, RandomSeed: 1}, 1000)
	require.NoError(t, err)

	_, err = g.ProcessAction(alice, uid(2), RegisterPlayer{Name: "alice"}, 2000)
	require.NoError(t, err)
	require.Equal(t, int64(StartingCoins), g.Players[0].Coins)

	_, err = g.ProcessAction(alice, uid(3), RegisterPlayer{Name: "alice2"}, 2100)
	require.ErrorIs(t, err, contract.ErrValidation)
	_, err = g.ProcessAction(bob, uid(4), RegisterPlayer{Name: "bob"}, 2200)
	require.ErrorIs(t, err, contract.ErrValidation, "roster is full")
}

func TestStartGameNeedsFullRosterOrElapsedWindow(t *testing.T) {
	t.Parallel()

	g := NewGame(backend)
	_, err := g.ProcessAction(backend, uid(1), Initialize{PlayerCount: 2, Minigames: []string{"crash_game"}, RandomSeed: 1}, 1000)
	require.NoError(t, err)
	_, err = g.ProcessAction(alice, uid(2), RegisterPlayer{Name: "alice"}, 2000)
	require.NoError(t, err)

	_, err = g.ProcessAction(alice, uid(3), StartGame{}, 3000)
	require.ErrorIs(t, err, contract.ErrValidation)

	_, err = g.ProcessAction(alice, uid(4), StartGame{}, RegistrationWindowMs+5000)
	require.NoError(t, err)
	require.Equal(t, PhaseBetting, g.Phase)
}

func TestAllOrNothingForcesFullBalanceBet(t *testing.T) {
	t.Parallel()

	// Seed 5 makes the first wheel spin land on outcome 2.
	g := startedGame(t, 5)
	_, err := g.ProcessAction(alice, uid(5), PlaceBet{Amount: 10}, 5000)
	require.NoError(t, err)
	_, err = g.ProcessAction(bob, uid(6), PlaceBet{Amount: 10}, 5100)
	require.NoError(t, err)

	events, err := g.ProcessAction(backend, uid(7), SpinWheel{}, 6000)
	require.NoError(t, err)
	require.Equal(t, uint8(2), events[0].Outcome)
	require.True(t, g.AllOrNothing)

	_, err = g.ProcessAction(alice, uid(8), PlaceBet{Amount: 50}, 7000)
	require.ErrorIs(t, err, contract.ErrValidation)
	_, err = g.ProcessAction(alice, uid(9), PlaceBet{Amount: 100}, 7100)
	require.NoError(t, err)
	_, err = g.ProcessAction(bob, uid(10), PlaceBet{Amount: 100}, 7200)
	require.NoError(t, err)
	require.Equal(t, PhaseWheelSpin, g.Phase)
	require.False(t, g.AllOrNothing)
}

func TestBetRedistributionConservesCoins(t *testing.T) {
	t.Parallel()

	// Seed 0 makes the first wheel spin land on outcome 1.
	run := func() *Game {
		g := startedGame(t, 0)
		_, err := g.ProcessAction(alice, uid(5), PlaceBet{Amount: 30}, 5000)
		require.NoError(t, err)
		_, err = g.ProcessAction(bob, uid(6), PlaceBet{Amount: 20}, 5100)
		require.NoError(t, err)
		events, err := g.ProcessAction(backend, uid(7), SpinWheel{}, 6000)
		require.NoError(t, err)
		require.Equal(t, uint8(1), events[0].Outcome)
		return g
	}

	g := run()
	total := g.Players[0].Coins + g.Players[1].Coins
	require.Equal(t, int64(200), total)
	require.Equal(t, uint32(1), g.Round)
	require.Equal(t, PhaseBetting, g.Phase)

	// Identical input sequences must yield identical state bytes.
	require.True(t, bytes.Equal(MarshalGame(run()), MarshalGame(g)))
}

func TestWheelRoutesToMinigame(t *testing.T) {
	t.Parallel()

	// Seed 1 makes the first wheel spin land on outcome 3.
	g := startedGame(t, 1)
	_, err := g.ProcessAction(alice, uid(5), PlaceBet{Amount: 30}, 5000)
	require.NoError(t, err)
	_, err = g.ProcessAction(bob, uid(6), PlaceBet{Amount: 20}, 5100)
	require.NoError(t, err)

	events, err := g.ProcessAction(backend, uid(7), SpinWheel{}, 6000)
	require.NoError(t, err)
	require.Equal(t, EventMinigameReady, events[1].Kind)
	require.Equal(t, PhaseStartMinigame, g.Phase)
	require.Equal(t, contract.ContractName("crash_game"), g.PhaseMinigame)

	// The roster must be exactly the server-computed one.
	wrong := MinigameSetup{{ID: alice, Name: "alice", Bet: 99}}
	_, err = g.ProcessAction(backend, uid(8), StartMinigame{Minigame: "crash_game", Players: wrong}, 6500)
	require.ErrorIs(t, err, contract.ErrValidation)

	_, err = g.ProcessAction(backend, uid(9), StartMinigame{Minigame: "crash_game", Players: g.MinigameSetup()}, 7000)
	require.NoError(t, err)
	require.Equal(t, PhaseInMinigame, g.Phase)
}

func TestEndMinigameAppliesDeltasAndClampsAtZero(t *testing.T) {
	t.Parallel()

	g := startedGame(t, 1)
	_, err := g.ProcessAction(alice, uid(5), PlaceBet{Amount: 30}, 5000)
	require.NoError(t, err)
	_, err = g.ProcessAction(bob, uid(6), PlaceBet{Amount: 20}, 5100)
	require.NoError(t, err)
	_, err = g.ProcessAction(backend, uid(7), SpinWheel{}, 6000)
	require.NoError(t, err)
	_, err = g.ProcessAction(backend, uid(8), StartMinigame{Minigame: "crash_game", Players: g.MinigameSetup()}, 7000)
	require.NoError(t, err)

	result := MinigameResult{
		ContractName: "crash_game",
		PlayerResults: []PlayerResult{
			{PlayerID: alice, CoinsDelta: 45},
			{PlayerID: bob, CoinsDelta: -500},
		},
	}
	_, err = g.ProcessAction(backend, uid(9), EndMinigame{Result: result}, 8000)
	require.NoError(t, err)
	require.Equal(t, int64(145), g.Players[0].Coins)
	require.Equal(t, int64(0), g.Players[1].Coins, "debits clamp at zero")
	require.Equal(t, uint32(1), g.Round)
	require.Equal(t, PhaseBetting, g.Phase)
}

func TestEndGameAuthorization(t *testing.T) {
	t.Parallel()

	g := startedGame(t, 3)
	g.LastInteraction = 5000

	_, err := g.ProcessAction(alice, uid(5), EndGame{}, 6000)
	require.ErrorIs(t, err, contract.ErrValidation)

	// Anyone may end a game idle past the timeout.
	_, err = g.ProcessAction(alice, uid(6), EndGame{}, 5000+IdleTimeoutMs+1)
	require.NoError(t, err)
	require.Equal(t, PhaseGameOver, g.Phase)

	g2 := startedGame(t, 3)
	g2.LastInteraction = 5000
	_, err = g2.ProcessAction(backend, uid(7), EndGame{}, 6000)
	require.NoError(t, err)
	require.Equal(t, PhaseGameOver, g2.Phase)
}

func TestBackendMayForceSpinStalledRound(t *testing.T) {
	t.Parallel()

	g := startedGame(t, 3)
	_, err := g.ProcessAction(alice, uid(5), PlaceBet{Amount: 10}, 5000)
	require.NoError(t, err)

	// Not stalled yet, and never forceable by a player.
	_, err = g.ProcessAction(backend, uid(6), SpinWheel{}, 6000)
	require.ErrorIs(t, err, contract.ErrValidation)
	stalledAt := g.RoundStartedAt + BettingRoundMs + 1
	_, err = g.ProcessAction(alice, uid(7), SpinWheel{}, stalledAt)
	require.ErrorIs(t, err, contract.ErrValidation)

	_, err = g.ProcessAction(backend, uid(8), SpinWheel{}, stalledAt)
	require.NoError(t, err)
}

func TestGameStateRoundTrip(t *testing.T) {
	t.Parallel()

	g := startedGame(t, 7)
	_, err := g.ProcessAction(alice, uid(5), PlaceBet{Amount: 12}, 5000)
	require.NoError(t, err)
	g.LastInteraction = 5000
	g.LaneID = contract.LaneID("lane-1")

	data := MarshalGame(g)
	restored, err := UnmarshalGame(data)
	require.NoError(t, err)
	require.Equal(t, g, restored)
	require.True(t, bytes.Equal(data, MarshalGame(restored)))
}

func TestEventsRoundTrip(t *testing.T) {
	t.Parallel()

	events := []Event{
		{Kind: EventGameInitialized, PlayerCount: 4, RandomSeed: 99},
		{Kind: EventBetPlaced, PlayerID: alice, Amount: 25},
		{Kind: EventMinigameEnded, Result: &MinigameResult{
			ContractName:  "crash_game",
			PlayerResults: []PlayerResult{{PlayerID: bob, CoinsDelta: -25}},
		}},
		{Kind: EventGameEnded, PlayerID: alice, FinalCoins: 180},
	}
	decoded, err := DecodeEvents(EncodeEvents(events))
	require.NoError(t, err)
	require.Equal(t, events, decoded)
}
