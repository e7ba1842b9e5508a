package crashgame

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/hyli-org/degen-party/x/boardgame"
	"github.com/hyli-org/degen-party/x/contract"
)

// Action is one crash-game transition request.
type Action interface {
	isAction()
	actionTag() uint8
}

type InitMinigame struct {
	Players boardgame.MinigameSetup `json:"players"`
}

type PlaceBet struct {
	PlayerID contract.Identity `json:"player_id"`
	Amount   uint64            `json:"amount"`
}

type Start struct{}

type CashOut struct {
	PlayerID   contract.Identity `json:"player_id"`
	Multiplier float64           `json:"multiplier"`
}

type Crash struct {
	FinalMultiplier float64 `json:"final_multiplier"`
}

type Done struct{}

func (InitMinigame) isAction() {}
func (PlaceBet) isAction()     {}
func (Start) isAction()        {}
func (CashOut) isAction()      {}
func (Crash) isAction()        {}
func (Done) isAction()         {}

func (InitMinigame) actionTag() uint8 { return 0 }
func (PlaceBet) actionTag() uint8     { return 1 }
func (Start) actionTag() uint8        { return 2 }
func (CashOut) actionTag() uint8      { return 3 }
func (Crash) actionTag() uint8        { return 4 }
func (Done) actionTag() uint8         { return 5 }

// EncodeActionBlob renders the (uuid, action) payload carried inside a blob,
// uuid first so peers can pair blobs without decoding the action.
func EncodeActionBlob(id uuid.UUID, action Action) []byte {
	enc := contract.NewEncoder()
	for _, b := range id {
		enc.WriteU8(b)
	}
	enc.WriteU8(action.actionTag())
	switch a := action.(type) {
	case Start, Done:
	case InitMinigame:
		enc.WriteU32(uint32(len(a.Players)))
		for _, p := range a.Players {
			enc.WriteString(string(p.ID))
			enc.WriteString(p.Name)
			enc.WriteU64(p.Bet)
		}
	case PlaceBet:
		enc.WriteString(string(a.PlayerID))
		enc.WriteU64(a.Amount)
	case CashOut:
		enc.WriteString(string(a.PlayerID))
		enc.WriteF64(a.Multiplier)
	case Crash:
		enc.WriteF64(a.FinalMultiplier)
	}
	return enc.Bytes()
}

// DecodeActionBlob parses an action payload back into its uuid and action.
func DecodeActionBlob(payload []byte) (uuid.UUID, Action, error) {
	var id uuid.UUID
	dec := contract.NewDecoder(payload)
	for i := range id {
		b, err := dec.ReadU8()
		if err != nil {
			return id, nil, err
		}
		id[i] = b
	}
	tag, err := dec.ReadU8()
	if err != nil {
		return id, nil, err
	}

	var action Action
	switch tag {
	case 0:
		a := InitMinigame{}
		n, err := dec.ReadU32()
		if err != nil {
			return id, nil, err
		}
		for i := uint32(0); i < n; i++ {
			var p boardgame.SetupPlayer
			pid, err := dec.ReadString()
			if err != nil {
				return id, nil, err
			}
			p.ID = contract.Identity(pid)
			if p.Name, err = dec.ReadString(); err != nil {
				return id, nil, err
			}
			if p.Bet, err = dec.ReadU64(); err != nil {
				return id, nil, err
			}
			a.Players = append(a.Players, p)
		}
		action = a
	case 1:
		a := PlaceBet{}
		pid, err := dec.ReadString()
		if err != nil {
			return id, nil, err
		}
		a.PlayerID = contract.Identity(pid)
		if a.Amount, err = dec.ReadU64(); err != nil {
			return id, nil, err
		}
		action = a
	case 2:
		action = Start{}
	case 3:
		a := CashOut{}
		pid, err := dec.ReadString()
		if err != nil {
			return id, nil, err
		}
		a.PlayerID = contract.Identity(pid)
		if a.Multiplier, err = dec.ReadF64(); err != nil {
			return id, nil, err
		}
		action = a
	case 4:
		a := Crash{}
		if a.FinalMultiplier, err = dec.ReadF64(); err != nil {
			return id, nil, err
		}
		action = a
	case 5:
		action = Done{}
	default:
		return id, nil, fmt.Errorf("%w: unknown crash action tag %d", contract.ErrValidation, tag)
	}
	return id, action, dec.Finish()
}
