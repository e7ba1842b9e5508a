package crashgame

import (
	"fmt"
	"math"
	"sort"

	"github.com/hyli-org/degen-party/x/boardgame"
	"github.com/hyli-org/degen-party/x/contract"
)

const (
	// BaseSpeed and Acceleration parametrize the multiplier curve. They are
	// part of the provable commitment's semantics and must never drift from
	// the proving environment.
	BaseSpeed    = 0.02
	Acceleration = 0.000015
	// MaxMultiplier caps the curve.
	MaxMultiplier = 25.0

	MinBet = 1
	MaxBet = 100
	// StartingCoins is each player's balance when a round is set up.
	StartingCoins = 100

	// AutoStartMs is how long after setup the backend starts the round.
	AutoStartMs = 10_000
	// AutoDoneMs is how long after start a crashed round is force-ended.
	AutoDoneMs = 60_000
)

// Phase is the crash round's lifecycle stage.
type Phase uint8

const (
	PhaseIdle Phase = iota
	PhasePlacingBets
	PhaseRunning
	PhaseCrashed
)

var phaseNames = map[Phase]string{
	PhaseIdle:        "Idle",
	PhasePlacingBets: "PlacingBets",
	PhaseRunning:     "Running",
	PhaseCrashed:     "Crashed",
}

func (p Phase) String() string {
	if n, ok := phaseNames[p]; ok {
		return n
	}
	return fmt.Sprintf("Phase(%d)", p)
}

// MarshalText renders the phase name into JSON state snapshots.
func (p Phase) MarshalText() ([]byte, error) { return []byte(p.String()), nil }

// PlayerAccount is a participant's display name and spendable balance for
// the current round.
type PlayerAccount struct {
	Name  string `json:"name"`
	Coins uint64 `json:"coins"`
}

// Bet is one player's active wager. CashedOutAt records the exit multiplier
// once the player cashes out.
type Bet struct {
	Amount      uint64   `json:"amount"`
	CashedOutAt *float64 `json:"cashed_out_at,omitempty"`
}

// VerifiableState is the provable sub-state: everything here is always part
// of the commitment.
type VerifiableState struct {
	Phase   Phase                                `json:"phase"`
	Players map[contract.Identity]PlayerAccount  `json:"players"`
	Bets    map[contract.Identity]Bet            `json:"bets"`
}

// BackendState is the fast-changing sub-state driven by the backend tick.
// It is excluded from the commitment while a round is live because it
// changes every tick and would be prohibitively expensive to re-prove.
// Timestamps are unix ms, zero when unset.
type BackendState struct {
	Multiplier  float64 `json:"current_multiplier"`
	SetupTime   uint64  `json:"game_setup_time"`
	StartTime   uint64  `json:"game_start_time"`
	CurrentTime uint64  `json:"current_time"`
}

// Game is the crash minigame state.
type Game struct {
	Verifiable VerifiableState `json:"verifiable"`
	Backend    BackendState    `json:"backend"`

	BoardContract   contract.ContractName `json:"board_contract"`
	BackendIdentity contract.Identity     `json:"backend_identity"`
	LastInteraction uint64                `json:"last_interaction_time"`
	LaneID          contract.LaneID       `json:"lane_id"`
}

// NewGame returns an idle crash game paired with the given board contract.
func NewGame(board contract.ContractName, backend contract.Identity) *Game {
	return &Game{
		Verifiable: VerifiableState{
			Phase:   PhaseIdle,
			Players: map[contract.Identity]PlayerAccount{},
			Bets:    map[contract.Identity]Bet{},
		},
		BoardContract:   board,
		BackendIdentity: backend,
	}
}

// MultiplierAt computes the multiplier after elapsedMs of running time. The
// curve is recomputed from elapsed time rather than accumulated per tick so
// the result is independent of tick rate.
func MultiplierAt(elapsedMs uint64) float64 {
	secs := float64(elapsedMs) / 1000.0
	speed := BaseSpeed + float64(elapsedMs)*Acceleration
	m := math.Exp(secs * speed)
	if m > MaxMultiplier {
		return MaxMultiplier
	}
	return m
}

// Winnings is the payout for a bet cashed out at the given multiplier.
func Winnings(bet uint64, multiplier float64) uint64 {
	return uint64(float64(bet) * multiplier)
}

// sortedPlayers returns the round's player identities in stable order.
func (g *Game) sortedPlayers() []contract.Identity {
	ids := make([]contract.Identity, 0, len(g.Verifiable.Players))
	for id := range g.Verifiable.Players {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// FinalResults computes each player's coin delta for the board game:
// cashed-out bets win floor(bet*multiplier)-bet, unclaimed bets are lost,
// players who never bet break even. Identity-sorted.
func (g *Game) FinalResults() []boardgame.PlayerResult {
	results := make([]boardgame.PlayerResult, 0, len(g.Verifiable.Players))
	for _, id := range g.sortedPlayers() {
		var delta int64
		if bet, ok := g.Verifiable.Bets[id]; ok {
			if bet.CashedOutAt != nil {
				delta = int64(Winnings(bet.Amount, *bet.CashedOutAt)) - int64(bet.Amount)
			} else {
				delta = -int64(bet.Amount)
			}
		}
		results = append(results, boardgame.PlayerResult{PlayerID: id, CoinsDelta: delta})
	}
	return results
}

// UpdateMultiplier recomputes the live multiplier from elapsed time. No-op
// unless the round is running.
func (g *Game) UpdateMultiplier(now uint64) (float64, bool) {
	if g.Verifiable.Phase != PhaseRunning {
		return 0, false
	}
	g.Backend.CurrentTime = now
	var elapsed uint64
	if now > g.Backend.StartTime {
		elapsed = now - g.Backend.StartTime
	}
	g.Backend.Multiplier = MultiplierAt(elapsed)
	return g.Backend.Multiplier, true
}

// ProcessChainAction runs one on-chain transition. Composition checks
// against the paired board blob happen in the executor wrapper; this is the
// pure state machine.
func (g *Game) ProcessChainAction(caller contract.Identity, action Action, timestamp uint64) ([]Event, error) {
	var events []Event

	switch a := action.(type) {
	case InitMinigame:
		if g.Verifiable.Phase != PhaseIdle {
			return nil, fmt.Errorf("%w: a round is already in progress", contract.ErrValidation)
		}
		g.Verifiable.Players = make(map[contract.Identity]PlayerAccount, len(a.Players))
		g.Verifiable.Bets = map[contract.Identity]Bet{}
		for _, p := range a.Players {
			g.Verifiable.Players[p.ID] = PlayerAccount{Name: p.Name, Coins: StartingCoins}
		}
		g.Verifiable.Phase = PhasePlacingBets
		g.Backend = BackendState{Multiplier: 1.0, SetupTime: timestamp}
		events = append(events, Event{Kind: EventMinigameInitialized, PlayerCount: uint32(len(a.Players))})

	case PlaceBet:
		if g.Verifiable.Phase != PhasePlacingBets {
			return nil, fmt.Errorf("%w: bets are closed", contract.ErrValidation)
		}
		if caller != a.PlayerID {
			return nil, fmt.Errorf("%w: cannot bet on behalf of %s", contract.ErrValidation, a.PlayerID)
		}
		player, ok := g.Verifiable.Players[a.PlayerID]
		if !ok {
			return nil, fmt.Errorf("%w: %s is not in this round", contract.ErrValidation, a.PlayerID)
		}
		if _, dup := g.Verifiable.Bets[a.PlayerID]; dup {
			return nil, fmt.Errorf("%w: %s already placed a bet", contract.ErrValidation, a.PlayerID)
		}
		if a.Amount < MinBet || a.Amount > MaxBet {
			return nil, fmt.Errorf("%w: bet %d outside [%d, %d]", contract.ErrValidation, a.Amount, MinBet, MaxBet)
		}
		if a.Amount > player.Coins {
			return nil, fmt.Errorf("%w: %s has %d coins, bet %d", contract.ErrValidation, a.PlayerID, player.Coins, a.Amount)
		}
		player.Coins -= a.Amount
		g.Verifiable.Players[a.PlayerID] = player
		g.Verifiable.Bets[a.PlayerID] = Bet{Amount: a.Amount}
		events = append(events, Event{Kind: EventBetPlaced, PlayerID: a.PlayerID, Amount: a.Amount})

	case Start:
		if caller != g.BackendIdentity {
			return nil, fmt.Errorf("%w: only the backend can start the round", contract.ErrValidation)
		}
		if g.Verifiable.Phase != PhasePlacingBets {
			return nil, fmt.Errorf("%w: round is not waiting for start", contract.ErrValidation)
		}
		g.Verifiable.Phase = PhaseRunning
		g.Backend.Multiplier = 1.0
		g.Backend.StartTime = timestamp
		g.Backend.CurrentTime = timestamp
		events = append(events, Event{Kind: EventGameStarted})

	case CashOut:
		if g.Verifiable.Phase != PhaseRunning {
			return nil, fmt.Errorf("%w: round is not running", contract.ErrValidation)
		}
		if caller != a.PlayerID {
			return nil, fmt.Errorf("%w: cannot cash out on behalf of %s", contract.ErrValidation, a.PlayerID)
		}
		bet, ok := g.Verifiable.Bets[a.PlayerID]
		if !ok {
			return nil, fmt.Errorf("%w: no bet for %s", contract.ErrValidation, a.PlayerID)
		}
		if bet.CashedOutAt != nil {
			return nil, fmt.Errorf("%w: bet already cashed out", contract.ErrValidation)
		}
		// The multiplier is caller-supplied by design: the curve is public
		// and deterministic, the backend cross-checks before submission and
		// only the backend can trigger Crash, so a discrepancy is
		// attributable rather than exploitable.
		m := a.Multiplier
		bet.CashedOutAt = &m
		g.Verifiable.Bets[a.PlayerID] = bet
		events = append(events, Event{
			Kind:       EventPlayerCashedOut,
			PlayerID:   a.PlayerID,
			Multiplier: a.Multiplier,
			Winnings:   Winnings(bet.Amount, a.Multiplier),
		})

	case Crash:
		if caller != g.BackendIdentity {
			return nil, fmt.Errorf("%w: only the backend can crash the round", contract.ErrValidation)
		}
		if g.Verifiable.Phase != PhaseRunning {
			return nil, fmt.Errorf("%w: round is not running", contract.ErrValidation)
		}
		g.Verifiable.Phase = PhaseCrashed
		g.Backend.Multiplier = a.FinalMultiplier
		events = append(events, Event{Kind: EventGameCrashed, Multiplier: a.FinalMultiplier})

	case Done:
		if g.Verifiable.Phase != PhaseCrashed {
			return nil, fmt.Errorf("%w: cannot end a round that has not crashed", contract.ErrValidation)
		}
		results := g.FinalResults()
		g.Verifiable = VerifiableState{
			Phase:   PhaseIdle,
			Players: map[contract.Identity]PlayerAccount{},
			Bets:    map[contract.Identity]Bet{},
		}
		g.Backend = BackendState{}
		events = append(events, Event{Kind: EventMinigameEnded, FinalResults: results})

	default:
		return nil, fmt.Errorf("%w: unknown crash action %T", contract.ErrValidation, action)
	}

	return events, nil
}
