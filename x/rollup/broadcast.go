package rollup

import (
	"github.com/hyli-org/degen-party/x/boardgame"
	"github.com/hyli-org/degen-party/x/contract"
	"github.com/hyli-org/degen-party/x/crashgame"
)

// Outbound UI envelopes. Every message carries a type discriminator so one
// socket serves both games.

type boardStateUpdated struct {
	Type          string                `json:"type"`
	State         *boardgame.Game       `json:"state"`
	Events        []boardgame.Event     `json:"events"`
	BoardContract contract.ContractName `json:"board_game"`
	CrashContract contract.ContractName `json:"crash_game"`
}

type crashStateUpdated struct {
	Type   string            `json:"type"`
	State  *crashgame.Game   `json:"state"`
	Events []crashgame.Event `json:"events"`
}

type actionRejected struct {
	Type   string `json:"type"`
	Game   string `json:"game"`
	UUID   string `json:"uuid"`
	Reason string `json:"reason"`
}

const (
	msgBoardStateUpdated = "board_state_updated"
	msgCrashStateUpdated = "crash_state_updated"
	msgActionRejected    = "action_rejected"
)

// Broadcaster is the outbound UI sink. Satisfied by *ws.Hub.
type Broadcaster interface {
	Broadcast(v any) error
}
