package boardgame

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/hyli-org/degen-party/x/contract"
)

// Name is the contract name the board game is registered under.
const Name contract.ContractName = "board_game"

// LaneRebindMs is the inactivity window after which a different lane may
// take over sequencing for this game.
const LaneRebindMs = 24 * 60 * 60 * 1000

// Executor hosts the board game behind the generic contract interface. It
// owns the protocol-layer concerns the pure state machine does not see:
// caller verification for composed minigame blobs, lane binding and
// last-interaction bookkeeping.
type Executor struct {
	Game *Game
}

func NewExecutor(backend contract.Identity) *Executor {
	return &Executor{Game: NewGame(backend)}
}

func (e *Executor) Handle(cd *contract.Calldata) (contract.Output, error) {
	payload, err := cd.Payload()
	if err != nil {
		return contract.Output{}, err
	}
	actionUUID, action, err := DecodeActionBlob(payload)
	if err != nil {
		return contract.Output{}, err
	}
	if cd.TxCtx == nil {
		return contract.Output{}, fmt.Errorf("%w: missing transaction context", contract.ErrValidation)
	}

	// Minigame actions must be issued by the minigame contract itself,
	// through a caller blob in the same transaction carrying the same
	// action uuid. The roster and delta payloads are verified by
	// ProcessAction; the minigame side independently re-checks ours.
	switch a := action.(type) {
	case StartMinigame:
		if g := e.Game; g.Phase != PhaseStartMinigame && g.Phase != PhaseFinalMinigame {
			return contract.Output{}, fmt.Errorf("%w: no minigame expected in phase %s", contract.ErrValidation, g.Phase)
		}
		if err := e.requireMinigameCaller(cd, e.Game.PhaseMinigame, actionUUID); err != nil {
			return contract.Output{}, err
		}
	case EndMinigame:
		if err := e.requireMinigameCaller(cd, a.Result.ContractName, actionUUID); err != nil {
			return contract.Output{}, err
		}
	}

	ts := cd.TxCtx.Timestamp
	switch {
	case e.Game.LaneID == "" || ts > e.Game.LastInteraction+LaneRebindMs:
		e.Game.LaneID = cd.TxCtx.LaneID
	case e.Game.LaneID != cd.TxCtx.LaneID:
		return contract.Output{}, fmt.Errorf("%w: transaction from lane %s but game is bound to lane %s",
			contract.ErrValidation, cd.TxCtx.LaneID, e.Game.LaneID)
	}

	events, err := e.Game.ProcessAction(cd.Identity, actionUUID, action, ts)
	if err != nil {
		return contract.Output{}, err
	}
	e.Game.LastInteraction = ts

	return contract.Output{Success: true, Data: EncodeEvents(events)}, nil
}

// requireMinigameCaller checks that the caller blob belongs to the given
// minigame contract and leads with the same action uuid as ours.
func (e *Executor) requireMinigameCaller(cd *contract.Calldata, minigame contract.ContractName, want uuid.UUID) error {
	callerName, callerPayload, err := cd.CallerBlob()
	if err != nil {
		return err
	}
	if callerName != minigame {
		return fmt.Errorf("%w: caller blob is %s, want %s", contract.ErrCompositionMismatch, callerName, minigame)
	}
	got, err := PayloadUUID(callerPayload)
	if err != nil {
		return err
	}
	if got != want {
		return fmt.Errorf("%w: caller blob uuid does not match", contract.ErrCompositionMismatch)
	}
	return nil
}

func (e *Executor) Commit() []byte {
	return MarshalGame(e.Game)
}

func (e *Executor) Clone() contract.Executor {
	g := *e.Game
	g.Players = make([]Player, len(e.Game.Players))
	for i, p := range e.Game.Players {
		g.Players[i] = p
		g.Players[i].UsedUUIDs = append([]uuid.UUID(nil), p.UsedUUIDs...)
	}
	g.Minigames = append([]contract.ContractName(nil), e.Game.Minigames...)
	g.Bets = make(map[contract.Identity]uint64, len(e.Game.Bets))
	for id, amount := range e.Game.Bets {
		g.Bets[id] = amount
	}
	return &Executor{Game: &g}
}

func (e *Executor) MarshalBinary() ([]byte, error) {
	return MarshalGame(e.Game), nil
}

// Restore rebuilds a board executor from snapshot bytes. Registered in the
// contract registry at startup.
func Restore(data []byte) (contract.Executor, error) {
	g, err := UnmarshalGame(data)
	if err != nil {
		return nil, err
	}
	return &Executor{Game: g}, nil
}
