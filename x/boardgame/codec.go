package boardgame

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/hyli-org/degen-party/x/contract"
)

// gameStateVersion tags the serialized Game layout.
const gameStateVersion uint8 = 1

// MarshalGame serializes the full game state deterministically. Bets are
// written identity-sorted so the same logical state always yields the same
// bytes. This serialization is also the state commitment.
func MarshalGame(g *Game) []byte {
	enc := contract.NewEncoder()
	enc.WriteU8(gameStateVersion)
	enc.WriteU32(uint32(len(g.Players)))
	for _, p := range g.Players {
		enc.WriteString(string(p.ID))
		enc.WriteString(p.Name)
		enc.WriteI64(p.Coins)
		enc.WriteU32(uint32(len(p.UsedUUIDs)))
		for _, u := range p.UsedUUIDs {
			writeUUID(enc, u)
		}
	}
	enc.WriteU8(uint8(g.Phase))
	enc.WriteString(string(g.PhaseMinigame))
	enc.WriteU32(g.MaxPlayers)
	enc.WriteU32(uint32(len(g.Minigames)))
	for _, m := range g.Minigames {
		enc.WriteString(string(m))
	}
	enc.WriteU8(g.Dice.Min)
	enc.WriteU8(g.Dice.Max)
	enc.WriteU64(g.Dice.Seed)
	enc.WriteU32(g.Round)
	bettors := g.sortedBettors()
	enc.WriteU32(uint32(len(bettors)))
	for _, id := range bettors {
		enc.WriteString(string(id))
		enc.WriteU64(g.Bets[id])
	}
	enc.WriteBool(g.AllOrNothing)
	enc.WriteString(string(g.BackendIdentity))
	enc.WriteU64(g.LastInteraction)
	enc.WriteU64(g.RoundStartedAt)
	enc.WriteString(string(g.LaneID))
	return enc.Bytes()
}

// UnmarshalGame parses MarshalGame output.
func UnmarshalGame(data []byte) (*Game, error) {
	dec := contract.NewDecoder(data)
	version, err := dec.ReadU8()
	if err != nil {
		return nil, err
	}
	if version != gameStateVersion {
		return nil, fmt.Errorf("%w: unsupported game state version %d", contract.ErrValidation, version)
	}

	g := &Game{Bets: map[contract.Identity]uint64{}}
	np, err := dec.ReadU32()
	if err != nil {
		return nil, err
	}
	for i := uint32(0); i < np; i++ {
		var p Player
		id, err := dec.ReadString()
		if err != nil {
			return nil, err
		}
		p.ID = contract.Identity(id)
		if p.Name, err = dec.ReadString(); err != nil {
			return nil, err
		}
		if p.Coins, err = dec.ReadI64(); err != nil {
			return nil, err
		}
		nu, err := dec.ReadU32()
		if err != nil {
			return nil, err
		}
		for j := uint32(0); j < nu; j++ {
			u, err := readUUID(dec)
			if err != nil {
				return nil, err
			}
			p.UsedUUIDs = append(p.UsedUUIDs, u)
		}
		g.Players = append(g.Players, p)
	}

	phase, err := dec.ReadU8()
	if err != nil {
		return nil, err
	}
	g.Phase = GamePhase(phase)
	pm, err := dec.ReadString()
	if err != nil {
		return nil, err
	}
	g.PhaseMinigame = contract.ContractName(pm)
	if g.MaxPlayers, err = dec.ReadU32(); err != nil {
		return nil, err
	}
	nm, err := dec.ReadU32()
	if err != nil {
		return nil, err
	}
	for i := uint32(0); i < nm; i++ {
		m, err := dec.ReadString()
		if err != nil {
			return nil, err
		}
		g.Minigames = append(g.Minigames, contract.ContractName(m))
	}
	if g.Dice.Min, err = dec.ReadU8(); err != nil {
		return nil, err
	}
	if g.Dice.Max, err = dec.ReadU8(); err != nil {
		return nil, err
	}
	if g.Dice.Seed, err = dec.ReadU64(); err != nil {
		return nil, err
	}
	if g.Round, err = dec.ReadU32(); err != nil {
		return nil, err
	}
	nb, err := dec.ReadU32()
	if err != nil {
		return nil, err
	}
	for i := uint32(0); i < nb; i++ {
		id, err := dec.ReadString()
		if err != nil {
			return nil, err
		}
		amount, err := dec.ReadU64()
		if err != nil {
			return nil, err
		}
		g.Bets[contract.Identity(id)] = amount
	}
	if g.AllOrNothing, err = dec.ReadBool(); err != nil {
		return nil, err
	}
	bi, err := dec.ReadString()
	if err != nil {
		return nil, err
	}
	g.BackendIdentity = contract.Identity(bi)
	if g.LastInteraction, err = dec.ReadU64(); err != nil {
		return nil, err
	}
	if g.RoundStartedAt, err = dec.ReadU64(); err != nil {
		return nil, err
	}
	lane, err := dec.ReadString()
	if err != nil {
		return nil, err
	}
	g.LaneID = contract.LaneID(lane)
	return g, dec.Finish()
}

func writeUUID(enc *contract.Encoder, u uuid.UUID) {
	for _, b := range u {
		enc.WriteU8(b)
	}
}

func readUUID(dec *contract.Decoder) (uuid.UUID, error) {
	var u uuid.UUID
	for i := range u {
		b, err := dec.ReadU8()
		if err != nil {
			return u, err
		}
		u[i] = b
	}
	return u, nil
}
