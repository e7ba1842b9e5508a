package boardgame

import (
	"fmt"

	"github.com/hyli-org/degen-party/x/contract"
)

// EventKind discriminates board-game events.
type EventKind uint8

const (
	EventGameInitialized EventKind = iota
	EventPlayerRegistered
	EventGameStarted
	EventBetPlaced
	EventWheelSpun
	EventCoinsChanged
	EventAllOrNothingActivated
	EventMinigameReady
	EventMinigameStarted
	EventMinigameEnded
	EventGameEnded
)

var eventKindNames = map[EventKind]string{
	EventGameInitialized:       "GameInitialized",
	EventPlayerRegistered:      "PlayerRegistered",
	EventGameStarted:           "GameStarted",
	EventBetPlaced:             "BetPlaced",
	EventWheelSpun:             "WheelSpun",
	EventCoinsChanged:          "CoinsChanged",
	EventAllOrNothingActivated: "AllOrNothingActivated",
	EventMinigameReady:         "MinigameReady",
	EventMinigameStarted:       "MinigameStarted",
	EventMinigameEnded:         "MinigameEnded",
	EventGameEnded:             "GameEnded",
}

func (k EventKind) String() string {
	if n, ok := eventKindNames[k]; ok {
		return n
	}
	return fmt.Sprintf("EventKind(%d)", k)
}

// MarshalText renders the kind name into JSON for the UI sink.
func (k EventKind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

// Event is one board-game occurrence emitted by a transition. The populated
// fields depend on Kind.
type Event struct {
	Kind        EventKind             `json:"type"`
	PlayerID    contract.Identity     `json:"player_id,omitempty"`
	Name        string                `json:"name,omitempty"`
	Amount      int64                 `json:"amount,omitempty"`
	Round       uint32                `json:"round,omitempty"`
	Outcome     uint8                 `json:"outcome,omitempty"`
	Minigame    contract.ContractName `json:"minigame,omitempty"`
	Result      *MinigameResult       `json:"result,omitempty"`
	PlayerCount uint32                `json:"player_count,omitempty"`
	RandomSeed  uint64                `json:"random_seed,omitempty"`
	FinalCoins  int64                 `json:"final_coins,omitempty"`
}

func (e Event) String() string {
	switch e.Kind {
	case EventGameInitialized:
		return fmt.Sprintf("Game initialized for %d players, seed %d", e.PlayerCount, e.RandomSeed)
	case EventPlayerRegistered:
		return fmt.Sprintf("Player %s registered as %s", e.Name, e.PlayerID)
	case EventGameStarted:
		return "Game started"
	case EventBetPlaced:
		return fmt.Sprintf("Player %s placed a bet of %d", e.PlayerID, e.Amount)
	case EventWheelSpun:
		return fmt.Sprintf("Wheel spun for round %d, outcome %d", e.Round, e.Outcome)
	case EventCoinsChanged:
		if e.Amount >= 0 {
			return fmt.Sprintf("Player %s gained %d coins", e.PlayerID, e.Amount)
		}
		return fmt.Sprintf("Player %s lost %d coins", e.PlayerID, -e.Amount)
	case EventAllOrNothingActivated:
		return "All-or-nothing round activated"
	case EventMinigameReady:
		return fmt.Sprintf("Minigame %s is ready", e.Minigame)
	case EventMinigameStarted:
		return fmt.Sprintf("Minigame %s started", e.Minigame)
	case EventMinigameEnded:
		return fmt.Sprintf("Minigame %s ended", e.Result.ContractName)
	case EventGameEnded:
		return fmt.Sprintf("Game ended, winner %s with %d coins", e.PlayerID, e.FinalCoins)
	}
	return "unknown event"
}

// EncodeEvents renders the event list as deterministic program output.
func EncodeEvents(events []Event) []byte {
	enc := contract.NewEncoder()
	enc.WriteU32(uint32(len(events)))
	for _, e := range events {
		enc.WriteU8(uint8(e.Kind))
		enc.WriteString(string(e.PlayerID))
		enc.WriteString(e.Name)
		enc.WriteI64(e.Amount)
		enc.WriteU32(e.Round)
		enc.WriteU8(e.Outcome)
		enc.WriteString(string(e.Minigame))
		if e.Result != nil {
			enc.WriteU8(1)
			enc.WriteString(string(e.Result.ContractName))
			enc.WriteU32(uint32(len(e.Result.PlayerResults)))
			for _, r := range e.Result.PlayerResults {
				enc.WriteString(string(r.PlayerID))
				enc.WriteI64(r.CoinsDelta)
			}
		} else {
			enc.WriteU8(0)
		}
		enc.WriteU32(e.PlayerCount)
		enc.WriteU64(e.RandomSeed)
		enc.WriteI64(e.FinalCoins)
	}
	return enc.Bytes()
}

// DecodeEvents parses program output back into events.
func DecodeEvents(data []byte) ([]Event, error) {
	dec := contract.NewDecoder(data)
	n, err := dec.ReadU32()
	if err != nil {
		return nil, err
	}
	events := make([]Event, 0, n)
	for i := uint32(0); i < n; i++ {
		var e Event
		kind, err := dec.ReadU8()
		if err != nil {
			return nil, err
		}
		e.Kind = EventKind(kind)
		pid, err := dec.ReadString()
		if err != nil {
			return nil, err
		}
		e.PlayerID = contract.Identity(pid)
		if e.Name, err = dec.ReadString(); err != nil {
			return nil, err
		}
		if e.Amount, err = dec.ReadI64(); err != nil {
			return nil, err
		}
		if e.Round, err = dec.ReadU32(); err != nil {
			return nil, err
		}
		if e.Outcome, err = dec.ReadU8(); err != nil {
			return nil, err
		}
		mg, err := dec.ReadString()
		if err != nil {
			return nil, err
		}
		e.Minigame = contract.ContractName(mg)
		hasResult, err := dec.ReadBool()
		if err != nil {
			return nil, err
		}
		if hasResult {
			res := &MinigameResult{}
			name, err := dec.ReadString()
			if err != nil {
				return nil, err
			}
			res.ContractName = contract.ContractName(name)
			rn, err := dec.ReadU32()
			if err != nil {
				return nil, err
			}
			for j := uint32(0); j < rn; j++ {
				var r PlayerResult
				rpid, err := dec.ReadString()
				if err != nil {
					return nil, err
				}
				r.PlayerID = contract.Identity(rpid)
				if r.CoinsDelta, err = dec.ReadI64(); err != nil {
					return nil, err
				}
				res.PlayerResults = append(res.PlayerResults, r)
			}
			e.Result = res
		}
		if e.PlayerCount, err = dec.ReadU32(); err != nil {
			return nil, err
		}
		if e.RandomSeed, err = dec.ReadU64(); err != nil {
			return nil, err
		}
		if e.FinalCoins, err = dec.ReadI64(); err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, dec.Finish()
}
