package rollup

import (
	"encoding/json"
	"fmt"

	"github.com/hyli-org/degen-party/x/boardgame"
	"github.com/hyli-org/degen-party/x/contract"
)

// Command is the JSON body of an authenticated client message.
//
// Board commands: {"game":"board","type":"submit_action","action":{...}} and
// {"game":"board","type":"send_state"}. Crash commands:
// {"game":"crash","type":"place_bet","amount":N}, "cash_out" and "end".
type Command struct {
	Game   string          `json:"game"`
	Type   string          `json:"type"`
	Action json.RawMessage `json:"action,omitempty"`
	Amount uint64          `json:"amount,omitempty"`
}

const (
	commandGameBoard = "board"
	commandGameCrash = "crash"
)

type boardActionBody struct {
	Type        string `json:"type"`
	Name        string `json:"name,omitempty"`
	Amount      uint64 `json:"amount,omitempty"`
	PlayerCount uint32 `json:"player_count,omitempty"`
}

// decodeBoardAction maps a client action body onto a board action. The
// client never picks minigames or RNG seeds; Initialize gets those filled in
// by the executor from its own configuration and the action UUID.
func decodeBoardAction(raw json.RawMessage) (boardgame.Action, error) {
	var body boardActionBody
	if err := json.Unmarshal(raw, &body); err != nil {
		return nil, fmt.Errorf("%w: malformed action body: %v", contract.ErrValidation, err)
	}
	switch body.Type {
	case "initialize":
		return boardgame.Initialize{PlayerCount: body.PlayerCount}, nil
	case "register_player":
		if body.Name == "" {
			return nil, fmt.Errorf("%w: register_player requires a name", contract.ErrValidation)
		}
		return boardgame.RegisterPlayer{Name: body.Name}, nil
	case "start_game":
		return boardgame.StartGame{}, nil
	case "place_bet":
		return boardgame.PlaceBet{Amount: body.Amount}, nil
	case "spin_wheel":
		return boardgame.SpinWheel{}, nil
	case "start_minigame":
		return boardgame.StartMinigame{}, nil
	case "end_game":
		return boardgame.EndGame{}, nil
	default:
		return nil, fmt.Errorf("%w: unknown board action %q", contract.ErrValidation, body.Type)
	}
}
