package boardgame

import (
	"fmt"
	"math"
	"sort"

	"github.com/google/uuid"

	"github.com/hyli-org/degen-party/x/contract"
)

const (
	// Rounds is the number of betting rounds before the final minigame.
	Rounds = 10
	// StartingCoins is the balance granted on registration.
	StartingCoins = 100
	// MinBet is the smallest wager accepted during a betting round.
	MinBet = 1
	// DefaultMaxPlayers is the roster size used when resetting a finished game.
	DefaultMaxPlayers = 4

	// RegistrationWindowMs lets StartGame proceed with a partial roster.
	RegistrationWindowMs = 2 * 60 * 1000
	// IdleTimeoutMs lets anyone end a game nobody is playing.
	IdleTimeoutMs = 10 * 60 * 1000
	// BettingRoundMs bounds how long a betting round may stall before the
	// backend force-advances it.
	BettingRoundMs = 40 * 1000
)

// GamePhase is the board game's current stage.
type GamePhase uint8

const (
	PhaseRegistration GamePhase = iota
	PhaseBetting
	PhaseWheelSpin
	PhaseStartMinigame
	PhaseInMinigame
	PhaseFinalMinigame
	PhaseGameOver
)

var phaseNames = map[GamePhase]string{
	PhaseRegistration:  "Registration",
	PhaseBetting:       "Betting",
	PhaseWheelSpin:     "WheelSpin",
	PhaseStartMinigame: "StartMinigame",
	PhaseInMinigame:    "InMinigame",
	PhaseFinalMinigame: "FinalMinigame",
	PhaseGameOver:      "GameOver",
}

func (p GamePhase) String() string {
	if n, ok := phaseNames[p]; ok {
		return n
	}
	return fmt.Sprintf("GamePhase(%d)", p)
}

// MarshalText renders the phase name into JSON state snapshots.
func (p GamePhase) MarshalText() ([]byte, error) { return []byte(p.String()), nil }

// Player is one registered participant.
type Player struct {
	ID        contract.Identity `json:"id"`
	Name      string            `json:"name"`
	Coins     int64             `json:"coins"`
	UsedUUIDs []uuid.UUID       `json:"used_uuids"`
}

// Game is the board game state. It is created once and reset in place by
// EndGame and Initialize, never reallocated, so the backend identity and
// the bound lane survive across games.
type Game struct {
	Players []Player `json:"players"`
	Phase   GamePhase `json:"phase"`
	// PhaseMinigame qualifies StartMinigame, InMinigame and FinalMinigame.
	PhaseMinigame contract.ContractName          `json:"phase_minigame,omitempty"`
	MaxPlayers    uint32                         `json:"max_players"`
	Minigames     []contract.ContractName        `json:"minigames"`
	Dice          Dice                           `json:"dice"`
	Round         uint32                         `json:"round"`
	Bets          map[contract.Identity]uint64   `json:"bets"`
	AllOrNothing  bool                           `json:"all_or_nothing"`

	BackendIdentity contract.Identity `json:"backend_identity"`
	LastInteraction uint64            `json:"last_interaction_time"`
	RoundStartedAt  uint64            `json:"round_started_at"`
	LaneID          contract.LaneID   `json:"lane_id"`
}

// NewGame returns a fresh, uninitialized game trusting the given backend.
func NewGame(backend contract.Identity) *Game {
	return &Game{
		Phase:           PhaseGameOver,
		MaxPlayers:      DefaultMaxPlayers,
		Dice:            NewDice(1, 10, 0),
		Bets:            map[contract.Identity]uint64{},
		BackendIdentity: backend,
	}
}

// reset rebuilds the per-game fields in place, keeping the trust and lane
// metadata.
func (g *Game) reset(playerCount uint32, minigames []contract.ContractName, seed uint64) {
	g.Players = make([]Player, 0, playerCount)
	g.Phase = PhaseGameOver
	g.PhaseMinigame = ""
	g.MaxPlayers = playerCount
	g.Minigames = minigames
	g.Dice = NewDice(1, 10, seed)
	g.AllOrNothing = false
}

func (g *Game) playerIndex(id contract.Identity) int {
	for i := range g.Players {
		if g.Players[i].ID == id {
			return i
		}
	}
	return -1
}

// updateCoins applies a signed delta to a player's balance, clamping at
// zero, and records the matching event. Additions that would wrap are an
// error rather than a silent truncation.
func (g *Game) updateCoins(idx int, delta int64, events *[]Event) error {
	if idx < 0 || idx >= len(g.Players) {
		return fmt.Errorf("%w: player not found", contract.ErrValidation)
	}
	p := &g.Players[idx]
	next, ok := checkedAdd(p.Coins, delta)
	if !ok {
		return fmt.Errorf("%w: coin balance for %s", contract.ErrOverflow, p.ID)
	}
	if next < 0 {
		next = 0
	}
	p.Coins = next
	*events = append(*events, Event{Kind: EventCoinsChanged, PlayerID: p.ID, Amount: delta})
	return nil
}

func checkedAdd(a, b int64) (int64, bool) {
	if b > 0 && a > math.MaxInt64-b {
		return 0, false
	}
	if b < 0 && a < math.MinInt64-b {
		return 0, false
	}
	return a + b, true
}

// sortedBettors returns the identities holding a bet this round in a stable
// order. Map iteration order must never leak into state transitions.
func (g *Game) sortedBettors() []contract.Identity {
	ids := make([]contract.Identity, 0, len(g.Bets))
	for id := range g.Bets {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// MinigameSetup computes the bet roster handed to the minigame contract.
// Identity-sorted so both contracts derive the exact same bytes.
func (g *Game) MinigameSetup() MinigameSetup {
	setup := make(MinigameSetup, 0, len(g.Bets))
	for _, id := range g.sortedBettors() {
		idx := g.playerIndex(id)
		if idx < 0 {
			continue
		}
		setup = append(setup, SetupPlayer{ID: id, Name: g.Players[idx].Name, Bet: g.Bets[id]})
	}
	return setup
}

func setupEqual(a, b MinigameSetup) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// ProcessAction runs one transition. All mutation is committed only by the
// caller keeping the returned state; on error the receiver may be partially
// advanced and must be discarded (the rollup engine executes on a clone).
func (g *Game) ProcessAction(caller contract.Identity, actionUUID uuid.UUID, action Action, timestamp uint64) ([]Event, error) {
	var events []Event

	if idx := g.playerIndex(caller); idx >= 0 {
		p := &g.Players[idx]
		for _, used := range p.UsedUUIDs {
			if used == actionUUID {
				return nil, fmt.Errorf("%w: uuid %s already used by %s", contract.ErrDuplicateAction, actionUUID, caller)
			}
		}
		p.UsedUUIDs = append(p.UsedUUIDs, actionUUID)
	}

	switch a := action.(type) {
	case EndGame:
		isBackend := caller == g.BackendIdentity
		timedOut := timestamp > g.LastInteraction+IdleTimeoutMs
		if !isBackend && !timedOut {
			return nil, fmt.Errorf("%w: only the backend can end a live game", contract.ErrValidation)
		}
		events = append(events, Event{Kind: EventGameEnded})
		g.reset(DefaultMaxPlayers, g.Minigames, g.Dice.Seed)

	case Initialize:
		if g.Phase != PhaseGameOver {
			return nil, g.invalidPhase(action)
		}
		if len(a.Minigames) == 0 {
			return nil, fmt.Errorf("%w: minigames cannot be empty", contract.ErrValidation)
		}
		if a.PlayerCount == 0 {
			return nil, fmt.Errorf("%w: player count cannot be zero", contract.ErrValidation)
		}
		minigames := make([]contract.ContractName, len(a.Minigames))
		for i, m := range a.Minigames {
			minigames[i] = contract.ContractName(m)
		}
		g.reset(a.PlayerCount, minigames, a.RandomSeed)
		g.Round = 0
		g.Bets = map[contract.Identity]uint64{}
		g.Phase = PhaseRegistration
		events = append(events, Event{Kind: EventGameInitialized, PlayerCount: a.PlayerCount, RandomSeed: a.RandomSeed})

	case RegisterPlayer:
		if g.Phase != PhaseRegistration {
			return nil, g.invalidPhase(action)
		}
		if uint32(len(g.Players)) >= g.MaxPlayers {
			return nil, fmt.Errorf("%w: game is full", contract.ErrValidation)
		}
		if g.playerIndex(caller) >= 0 {
			return nil, fmt.Errorf("%w: identity %s already registered", contract.ErrValidation, caller)
		}
		for _, p := range g.Players {
			if p.Name == a.Name {
				return nil, fmt.Errorf("%w: name %q already taken", contract.ErrValidation, a.Name)
			}
		}
		g.Players = append(g.Players, Player{ID: caller, Name: a.Name, Coins: StartingCoins, UsedUUIDs: []uuid.UUID{actionUUID}})
		events = append(events, Event{Kind: EventPlayerRegistered, PlayerID: caller, Name: a.Name})

	case StartGame:
		if g.Phase != PhaseRegistration {
			return nil, g.invalidPhase(action)
		}
		full := uint32(len(g.Players)) == g.MaxPlayers
		windowDone := g.LastInteraction+RegistrationWindowMs < timestamp
		if !full && !windowDone {
			return nil, fmt.Errorf("%w: roster not full and registration window still open", contract.ErrValidation)
		}
		if len(g.Players) == 0 {
			return nil, fmt.Errorf("%w: no players registered", contract.ErrValidation)
		}
		g.Phase = PhaseBetting
		g.RoundStartedAt = timestamp
		events = append(events, Event{Kind: EventGameStarted})

	case PlaceBet:
		if g.Phase != PhaseBetting {
			return nil, g.invalidPhase(action)
		}
		if _, dup := g.Bets[caller]; dup {
			return nil, fmt.Errorf("%w: %s already placed a bet this round", contract.ErrValidation, caller)
		}
		idx := g.playerIndex(caller)
		if idx < 0 {
			return nil, fmt.Errorf("%w: %s is not a registered player", contract.ErrValidation, caller)
		}
		player := g.Players[idx]
		if g.AllOrNothing {
			if int64(a.Amount) != player.Coins {
				return nil, fmt.Errorf("%w: all-or-nothing round, must bet the full balance", contract.ErrValidation)
			}
		} else {
			if a.Amount < MinBet {
				return nil, fmt.Errorf("%w: bet below minimum", contract.ErrValidation)
			}
			if a.Amount > math.MaxInt64 || int64(a.Amount) > player.Coins {
				return nil, fmt.Errorf("%w: %s cannot cover a bet of %d", contract.ErrValidation, caller, a.Amount)
			}
		}
		g.Bets[caller] = a.Amount
		events = append(events, Event{Kind: EventBetPlaced, PlayerID: caller, Amount: int64(a.Amount)})
		if len(g.Bets) == len(g.Players) {
			if g.Round >= Rounds {
				if len(g.Minigames) == 0 {
					return nil, fmt.Errorf("%w: no final minigame available", contract.ErrValidation)
				}
				g.Phase = PhaseFinalMinigame
				g.PhaseMinigame = g.Minigames[0]
			} else {
				g.Phase = PhaseWheelSpin
			}
			g.AllOrNothing = false
		}

	case SpinWheel:
		// The backend may force-spin a betting round that stalled past its
		// window; players without a bet sit this round out.
		forced := g.Phase == PhaseBetting && caller == g.BackendIdentity && g.BettingStalled(timestamp)
		if g.Phase != PhaseWheelSpin && !forced {
			return nil, g.invalidPhase(action)
		}
		outcome := g.Dice.Roll() % 6
		events = append(events, Event{Kind: EventWheelSpun, Round: g.Round, Outcome: outcome})
		switch outcome {
		case 0:
			// Stakes are forfeited, nothing else happens.
			for _, bettor := range g.sortedBettors() {
				amount := g.Bets[bettor]
				if amount > math.MaxInt64 {
					return nil, fmt.Errorf("%w: bet amount for %s", contract.ErrOverflow, bettor)
				}
				idx := g.playerIndex(bettor)
				if idx < 0 {
					return nil, fmt.Errorf("%w: bettor %s not found", contract.ErrValidation, bettor)
				}
				if err := g.updateCoins(idx, -int64(amount), &events); err != nil {
					return nil, err
				}
			}
			g.nextRound(timestamp)
		case 1:
			// Every bettor forfeits their stake and a shuffled player
			// receives it.
			bettors := g.sortedBettors()
			order := make([]int, len(g.Players))
			for i := range order {
				order[i] = i
			}
			g.Dice.Shuffle(len(order), func(i, j int) { order[i], order[j] = order[j], order[i] })
			for i, bettor := range bettors {
				amount := g.Bets[bettor]
				if amount > math.MaxInt64 {
					return nil, fmt.Errorf("%w: bet amount for %s", contract.ErrOverflow, bettor)
				}
				bettorIdx := g.playerIndex(bettor)
				if bettorIdx < 0 {
					return nil, fmt.Errorf("%w: bettor %s not found", contract.ErrValidation, bettor)
				}
				if err := g.updateCoins(bettorIdx, -int64(amount), &events); err != nil {
					return nil, err
				}
				if err := g.updateCoins(order[i%len(order)], int64(amount), &events); err != nil {
					return nil, err
				}
			}
			g.nextRound(timestamp)
		case 2:
			g.AllOrNothing = true
			events = append(events, Event{Kind: EventAllOrNothingActivated})
			g.nextRound(timestamp)
		default:
			if len(g.Minigames) == 0 {
				return nil, fmt.Errorf("%w: no minigame available", contract.ErrValidation)
			}
			minigame := g.Minigames[0]
			events = append(events, Event{Kind: EventMinigameReady, Minigame: minigame})
			g.Phase = PhaseStartMinigame
			g.PhaseMinigame = minigame
		}

	case StartMinigame:
		if g.Phase != PhaseStartMinigame && g.Phase != PhaseFinalMinigame {
			return nil, g.invalidPhase(action)
		}
		if a.Minigame != g.PhaseMinigame {
			return nil, fmt.Errorf("%w: expected minigame %s, got %s", contract.ErrValidation, g.PhaseMinigame, a.Minigame)
		}
		if !setupEqual(g.MinigameSetup(), a.Players) {
			return nil, fmt.Errorf("%w: minigame roster does not match placed bets", contract.ErrValidation)
		}
		events = append(events, Event{Kind: EventMinigameStarted, Minigame: a.Minigame})
		g.Phase = PhaseInMinigame

	case EndMinigame:
		if g.Phase != PhaseInMinigame {
			return nil, g.invalidPhase(action)
		}
		for _, r := range a.Result.PlayerResults {
			idx := g.playerIndex(r.PlayerID)
			if idx < 0 {
				return nil, fmt.Errorf("%w: result for unknown player %s", contract.ErrValidation, r.PlayerID)
			}
			if r.CoinsDelta == 0 {
				continue
			}
			if err := g.updateCoins(idx, r.CoinsDelta, &events); err != nil {
				return nil, err
			}
		}
		result := a.Result
		events = append(events, Event{Kind: EventMinigameEnded, Result: &result})
		if g.Round >= Rounds {
			winner := g.Players[0]
			for _, p := range g.Players[1:] {
				if p.Coins > winner.Coins {
					winner = p
				}
			}
			events = append(events, Event{Kind: EventGameEnded, PlayerID: winner.ID, FinalCoins: winner.Coins})
			g.Phase = PhaseGameOver
			g.PhaseMinigame = ""
		} else {
			g.nextRound(timestamp)
		}

	default:
		return nil, g.invalidPhase(action)
	}

	return events, nil
}

// nextRound advances the round counter and reopens betting.
func (g *Game) nextRound(timestamp uint64) {
	g.Round++
	g.Bets = map[contract.Identity]uint64{}
	g.Phase = PhaseBetting
	g.PhaseMinigame = ""
	g.RoundStartedAt = timestamp
}

func (g *Game) invalidPhase(action Action) error {
	return fmt.Errorf("%w: action %T not valid in phase %s", contract.ErrValidation, action, g.Phase)
}

// BettingStalled reports whether the current betting round has been open
// longer than the allowed window with bets still missing.
func (g *Game) BettingStalled(now uint64) bool {
	if g.Phase != PhaseBetting || len(g.Bets) == 0 {
		return false
	}
	return now > g.RoundStartedAt+BettingRoundMs
}
