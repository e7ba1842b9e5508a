package crashgame

import (
	"fmt"
	"strings"

	"github.com/hyli-org/degen-party/x/boardgame"
	"github.com/hyli-org/degen-party/x/contract"
)

// Name is the contract name the crash game is registered under.
const Name contract.ContractName = "crash_game"

// LaneRebindMs mirrors the board game's lane takeover window.
const LaneRebindMs = boardgame.LaneRebindMs

// Executor hosts the crash game behind the generic contract interface. The
// round's setup and settlement only exist composed with the board game: the
// executor independently rebuilds the exact board blob bytes it expects to
// find as a callee in the same transaction.
type Executor struct {
	Game *Game
}

func NewExecutor(board contract.ContractName, backend contract.Identity) *Executor {
	return &Executor{Game: NewGame(board, backend)}
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
	if strings.HasSuffix(string(cd.Identity), string(Name)) {
		return contract.Output{}, fmt.Errorf("%w: contract cannot be its own identity provider", contract.ErrValidation)
	}
	if cd.TxCtx == nil {
		return contract.Output{}, fmt.Errorf("%w: missing transaction context", contract.ErrValidation)
	}

	// Composed actions must carry the matching board blob in the same
	// transaction, byte-identical to what this contract would build itself.
	switch a := action.(type) {
	case InitMinigame:
		expected := boardgame.EncodeActionBlob(actionUUID, boardgame.StartMinigame{
			Minigame: Name,
			Players:  a.Players,
		})
		if err := cd.RequireCallee(e.Game.BoardContract, expected); err != nil {
			return contract.Output{}, err
		}
	case Done:
		expected := boardgame.EncodeActionBlob(actionUUID, boardgame.EndMinigame{
			Result: boardgame.MinigameResult{
				ContractName:  Name,
				PlayerResults: e.Game.FinalResults(),
			},
		})
		if err := cd.RequireCallee(e.Game.BoardContract, expected); err != nil {
			return contract.Output{}, err
		}
	}

	ts := cd.TxCtx.Timestamp
	switch {
	case e.Game.LaneID == "" || ts > e.Game.LastInteraction+LaneRebindMs:
		e.Game.LaneID = cd.TxCtx.LaneID
	case e.Game.LaneID != cd.TxCtx.LaneID:
		return contract.Output{}, fmt.Errorf("%w: transaction from lane %s but round is bound to lane %s",
			contract.ErrValidation, cd.TxCtx.LaneID, e.Game.LaneID)
	}

	events, err := e.Game.ProcessChainAction(cd.Identity, action, ts)
	if err != nil {
		return contract.Output{}, err
	}
	e.Game.LastInteraction = ts

	return contract.Output{Success: true, Data: EncodeEvents(events)}, nil
}

func (e *Executor) Commit() []byte {
	return CommitState(e.Game)
}

func (e *Executor) Clone() contract.Executor {
	g := *e.Game
	g.Verifiable.Players = make(map[contract.Identity]PlayerAccount, len(e.Game.Verifiable.Players))
	for id, p := range e.Game.Verifiable.Players {
		g.Verifiable.Players[id] = p
	}
	g.Verifiable.Bets = make(map[contract.Identity]Bet, len(e.Game.Verifiable.Bets))
	for id, b := range e.Game.Verifiable.Bets {
		if b.CashedOutAt != nil {
			m := *b.CashedOutAt
			b.CashedOutAt = &m
		}
		g.Verifiable.Bets[id] = b
	}
	return &Executor{Game: &g}
}

func (e *Executor) MarshalBinary() ([]byte, error) {
	return MarshalState(e.Game), nil
}

// Restore rebuilds a crash executor from snapshot bytes. Registered in the
// contract registry at startup.
func Restore(data []byte) (contract.Executor, error) {
	g, err := UnmarshalState(data)
	if err != nil {
		return nil, err
	}
	return &Executor{Game: g}, nil
}
