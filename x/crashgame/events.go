package crashgame

import (
	"fmt"

	"github.com/hyli-org/degen-party/x/boardgame"
	"github.com/hyli-org/degen-party/x/contract"
)

// EventKind discriminates crash-game events.
type EventKind uint8

const (
	EventMinigameInitialized EventKind = iota
	EventBetPlaced
	EventGameStarted
	EventPlayerCashedOut
	EventGameCrashed
	EventMinigameEnded
)

var eventKindNames = map[EventKind]string{
	EventMinigameInitialized: "MinigameInitialized",
	EventBetPlaced:           "BetPlaced",
	EventGameStarted:         "GameStarted",
	EventPlayerCashedOut:     "PlayerCashedOut",
	EventGameCrashed:         "GameCrashed",
	EventMinigameEnded:       "MinigameEnded",
}

func (k EventKind) String() string {
	if n, ok := eventKindNames[k]; ok {
		return n
	}
	return fmt.Sprintf("EventKind(%d)", k)
}

// MarshalText renders the kind name into JSON for the UI sink.
func (k EventKind) MarshalText() ([]byte, error) { return []byte(k.String()), nil }

// Event is one crash-game occurrence. The populated fields depend on Kind.
type Event struct {
	Kind         EventKind                `json:"type"`
	PlayerCount  uint32                   `json:"player_count,omitempty"`
	PlayerID     contract.Identity        `json:"player_id,omitempty"`
	Amount       uint64                   `json:"amount,omitempty"`
	Multiplier   float64                  `json:"multiplier,omitempty"`
	Winnings     uint64                   `json:"winnings,omitempty"`
	FinalResults []boardgame.PlayerResult `json:"final_results,omitempty"`
}

func (e Event) String() string {
	switch e.Kind {
	case EventMinigameInitialized:
		return fmt.Sprintf("Crash round set up for %d players", e.PlayerCount)
	case EventBetPlaced:
		return fmt.Sprintf("Player %s bet %d", e.PlayerID, e.Amount)
	case EventGameStarted:
		return "Crash round started"
	case EventPlayerCashedOut:
		return fmt.Sprintf("Player %s cashed out at x%.2f for %d", e.PlayerID, e.Multiplier, e.Winnings)
	case EventGameCrashed:
		return fmt.Sprintf("Crashed at x%.2f", e.Multiplier)
	case EventMinigameEnded:
		return fmt.Sprintf("Crash round ended with %d results", len(e.FinalResults))
	}
	return "unknown event"
}

// EncodeEvents renders the event list as deterministic program output.
func EncodeEvents(events []Event) []byte {
	enc := contract.NewEncoder()
	enc.WriteU32(uint32(len(events)))
	for _, e := range events {
		enc.WriteU8(uint8(e.Kind))
		enc.WriteU32(e.PlayerCount)
		enc.WriteString(string(e.PlayerID))
		enc.WriteU64(e.Amount)
		enc.WriteF64(e.Multiplier)
		enc.WriteU64(e.Winnings)
		enc.WriteU32(uint32(len(e.FinalResults)))
		for _, r := range e.FinalResults {
			enc.WriteString(string(r.PlayerID))
			enc.WriteI64(r.CoinsDelta)
		}
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
		if e.PlayerCount, err = dec.ReadU32(); err != nil {
			return nil, err
		}
		pid, err := dec.ReadString()
		if err != nil {
			return nil, err
		}
		e.PlayerID = contract.Identity(pid)
		if e.Amount, err = dec.ReadU64(); err != nil {
			return nil, err
		}
		if e.Multiplier, err = dec.ReadF64(); err != nil {
			return nil, err
		}
		if e.Winnings, err = dec.ReadU64(); err != nil {
			return nil, err
		}
		rn, err := dec.ReadU32()
		if err != nil {
			return nil, err
		}
		for j := uint32(0); j < rn; j++ {
			var r boardgame.PlayerResult
			rpid, err := dec.ReadString()
			if err != nil {
				return nil, err
			}
			r.PlayerID = contract.Identity(rpid)
			if r.CoinsDelta, err = dec.ReadI64(); err != nil {
				return nil, err
			}
			e.FinalResults = append(e.FinalResults, r)
		}
		events = append(events, e)
	}
	return events, dec.Finish()
}
