package boardgame

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/hyli-org/degen-party/x/contract"
)

// Action is one board-game transition request.
type Action interface {
	isAction()
	actionTag() uint8
}

type EndGame struct{}

type Initialize struct {
	PlayerCount uint32   `json:"player_count"`
	Minigames   []string `json:"minigames"`
	RandomSeed  uint64   `json:"random_seed"`
}

type RegisterPlayer struct {
	Name string `json:"name"`
}

type StartGame struct{}

type PlaceBet struct {
	Amount uint64 `json:"amount"`
}

type SpinWheel struct{}

type StartMinigame struct {
	Minigame contract.ContractName `json:"minigame"`
	Players  MinigameSetup         `json:"players"`
}

type EndMinigame struct {
	Result MinigameResult `json:"result"`
}

func (EndGame) isAction()        {}
func (Initialize) isAction()     {}
func (RegisterPlayer) isAction() {}
func (StartGame) isAction()      {}
func (PlaceBet) isAction()       {}
func (SpinWheel) isAction()      {}
func (StartMinigame) isAction()  {}
func (EndMinigame) isAction()    {}

func (EndGame) actionTag() uint8        { return 0 }
func (Initialize) actionTag() uint8     { return 1 }
func (RegisterPlayer) actionTag() uint8 { return 2 }
func (StartGame) actionTag() uint8      { return 3 }
func (PlaceBet) actionTag() uint8       { return 4 }
func (SpinWheel) actionTag() uint8      { return 5 }
func (StartMinigame) actionTag() uint8  { return 6 }
func (EndMinigame) actionTag() uint8    { return 7 }

// MinigameSetup is the bet roster handed to a minigame: one entry per
// betting player, identity-sorted.
type MinigameSetup []SetupPlayer

type SetupPlayer struct {
	ID   contract.Identity `json:"id"`
	Name string            `json:"name"`
	Bet  uint64            `json:"bet"`
}

// MinigameResult carries each player's coin delta out of a finished
// minigame.
type MinigameResult struct {
	ContractName  contract.ContractName `json:"contract_name"`
	PlayerResults []PlayerResult        `json:"player_results"`
}

type PlayerResult struct {
	PlayerID   contract.Identity `json:"player_id"`
	CoinsDelta int64             `json:"coins_delta"`
}

// EncodeActionBlob renders the (uuid, action) payload carried inside a blob.
// The uuid always leads so peers can pair blobs without decoding the action.
func EncodeActionBlob(id uuid.UUID, action Action) []byte {
	enc := contract.NewEncoder()
	for _, b := range id {
		enc.WriteU8(b)
	}
	enc.WriteU8(action.actionTag())
	switch a := action.(type) {
	case EndGame, StartGame, SpinWheel:
	case Initialize:
		enc.WriteU32(a.PlayerCount)
		enc.WriteU32(uint32(len(a.Minigames)))
		for _, m := range a.Minigames {
			enc.WriteString(m)
		}
		enc.WriteU64(a.RandomSeed)
	case RegisterPlayer:
		enc.WriteString(a.Name)
	case PlaceBet:
		enc.WriteU64(a.Amount)
	case StartMinigame:
		enc.WriteString(string(a.Minigame))
		encodeSetup(enc, a.Players)
	case EndMinigame:
		enc.WriteString(string(a.Result.ContractName))
		enc.WriteU32(uint32(len(a.Result.PlayerResults)))
		for _, r := range a.Result.PlayerResults {
			enc.WriteString(string(r.PlayerID))
			enc.WriteI64(r.CoinsDelta)
		}
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
		action = EndGame{}
	case 1:
		a := Initialize{}
		if a.PlayerCount, err = dec.ReadU32(); err != nil {
			return id, nil, err
		}
		n, err := dec.ReadU32()
		if err != nil {
			return id, nil, err
		}
		for i := uint32(0); i < n; i++ {
			m, err := dec.ReadString()
			if err != nil {
				return id, nil, err
			}
			a.Minigames = append(a.Minigames, m)
		}
		if a.RandomSeed, err = dec.ReadU64(); err != nil {
			return id, nil, err
		}
		action = a
	case 2:
		a := RegisterPlayer{}
		if a.Name, err = dec.ReadString(); err != nil {
			return id, nil, err
		}
		action = a
	case 3:
		action = StartGame{}
	case 4:
		a := PlaceBet{}
		if a.Amount, err = dec.ReadU64(); err != nil {
			return id, nil, err
		}
		action = a
	case 5:
		action = SpinWheel{}
	case 6:
		a := StartMinigame{}
		name, err := dec.ReadString()
		if err != nil {
			return id, nil, err
		}
		a.Minigame = contract.ContractName(name)
		if a.Players, err = decodeSetup(dec); err != nil {
			return id, nil, err
		}
		action = a
	case 7:
		a := EndMinigame{}
		name, err := dec.ReadString()
		if err != nil {
			return id, nil, err
		}
		a.Result.ContractName = contract.ContractName(name)
		n, err := dec.ReadU32()
		if err != nil {
			return id, nil, err
		}
		for i := uint32(0); i < n; i++ {
			var r PlayerResult
			pid, err := dec.ReadString()
			if err != nil {
				return id, nil, err
			}
			r.PlayerID = contract.Identity(pid)
			if r.CoinsDelta, err = dec.ReadI64(); err != nil {
				return id, nil, err
			}
			a.Result.PlayerResults = append(a.Result.PlayerResults, r)
		}
		action = a
	default:
		return id, nil, fmt.Errorf("%w: unknown board action tag %d", contract.ErrValidation, tag)
	}
	return id, action, dec.Finish()
}

func encodeSetup(enc *contract.Encoder, setup MinigameSetup) {
	enc.WriteU32(uint32(len(setup)))
	for _, p := range setup {
		enc.WriteString(string(p.ID))
		enc.WriteString(p.Name)
		enc.WriteU64(p.Bet)
	}
}

func decodeSetup(dec *contract.Decoder) (MinigameSetup, error) {
	n, err := dec.ReadU32()
	if err != nil {
		return nil, err
	}
	setup := make(MinigameSetup, 0, n)
	for i := uint32(0); i < n; i++ {
		var p SetupPlayer
		id, err := dec.ReadString()
		if err != nil {
			return nil, err
		}
		p.ID = contract.Identity(id)
		if p.Name, err = dec.ReadString(); err != nil {
			return nil, err
		}
		if p.Bet, err = dec.ReadU64(); err != nil {
			return nil, err
		}
		setup = append(setup, p)
	}
	return setup, nil
}

// PayloadUUID extracts the leading uuid of any action payload without
// decoding the action itself. Used for pairing checks across contracts.
func PayloadUUID(payload []byte) (uuid.UUID, error) {
	var id uuid.UUID
	if len(payload) < len(id) {
		return id, fmt.Errorf("%w: payload shorter than uuid", contract.ErrValidation)
	}
	copy(id[:], payload[:len(id)])
	return id, nil
}
