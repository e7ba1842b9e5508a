package crashgame

import (
	"fmt"
	"sort"

	"github.com/hyli-org/degen-party/x/contract"
)

// crashStateMagic leads every serialized crash-game state so commitments
// from different contracts can never collide byte-wise.
var crashStateMagic = [4]byte{'C', 'R', 'S', 'H'}

const crashStateVersion uint8 = 1

// MarshalState serializes the full game state deterministically, maps in
// identity-sorted order.
func MarshalState(g *Game) []byte {
	return marshalState(g, true)
}

// CommitState serializes the provable subset: while a round is live the
// backend sub-state (multiplier, timers) is zeroed out of the bytes, so
// committing twice across ticks yields identical output. Once the round is
// terminal the backend sub-state is included.
func CommitState(g *Game) []byte {
	live := g.Verifiable.Phase == PhaseRunning || g.Verifiable.Phase == PhasePlacingBets
	return marshalState(g, !live)
}

func marshalState(g *Game, withBackend bool) []byte {
	enc := contract.NewEncoder()
	for _, b := range crashStateMagic {
		enc.WriteU8(b)
	}
	enc.WriteU8(crashStateVersion)

	enc.WriteU8(uint8(g.Verifiable.Phase))
	players := g.sortedPlayers()
	enc.WriteU32(uint32(len(players)))
	for _, id := range players {
		p := g.Verifiable.Players[id]
		enc.WriteString(string(id))
		enc.WriteString(p.Name)
		enc.WriteU64(p.Coins)
	}
	bettors := make([]contract.Identity, 0, len(g.Verifiable.Bets))
	for id := range g.Verifiable.Bets {
		bettors = append(bettors, id)
	}
	sort.Slice(bettors, func(i, j int) bool { return bettors[i] < bettors[j] })
	enc.WriteU32(uint32(len(bettors)))
	for _, id := range bettors {
		b := g.Verifiable.Bets[id]
		enc.WriteString(string(id))
		enc.WriteU64(b.Amount)
		if b.CashedOutAt != nil {
			enc.WriteU8(1)
			enc.WriteF64(*b.CashedOutAt)
		} else {
			enc.WriteU8(0)
		}
	}

	backend := g.Backend
	if !withBackend {
		backend = BackendState{}
	}
	enc.WriteF64(backend.Multiplier)
	enc.WriteU64(backend.SetupTime)
	enc.WriteU64(backend.StartTime)
	enc.WriteU64(backend.CurrentTime)

	enc.WriteString(string(g.BoardContract))
	enc.WriteString(string(g.BackendIdentity))
	enc.WriteU64(g.LastInteraction)
	enc.WriteString(string(g.LaneID))
	return enc.Bytes()
}

// UnmarshalState parses MarshalState output.
func UnmarshalState(data []byte) (*Game, error) {
	dec := contract.NewDecoder(data)
	for _, want := range crashStateMagic {
		b, err := dec.ReadU8()
		if err != nil {
			return nil, err
		}
		if b != want {
			return nil, fmt.Errorf("%w: bad crash state magic", contract.ErrValidation)
		}
	}
	version, err := dec.ReadU8()
	if err != nil {
		return nil, err
	}
	if version != crashStateVersion {
		return nil, fmt.Errorf("%w: unsupported crash state version %d", contract.ErrValidation, version)
	}

	g := &Game{Verifiable: VerifiableState{
		Players: map[contract.Identity]PlayerAccount{},
		Bets:    map[contract.Identity]Bet{},
	}}
	phase, err := dec.ReadU8()
	if err != nil {
		return nil, err
	}
	g.Verifiable.Phase = Phase(phase)
	np, err := dec.ReadU32()
	if err != nil {
		return nil, err
	}
	for i := uint32(0); i < np; i++ {
		id, err := dec.ReadString()
		if err != nil {
			return nil, err
		}
		var p PlayerAccount
		if p.Name, err = dec.ReadString(); err != nil {
			return nil, err
		}
		if p.Coins, err = dec.ReadU64(); err != nil {
			return nil, err
		}
		g.Verifiable.Players[contract.Identity(id)] = p
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
		var b Bet
		if b.Amount, err = dec.ReadU64(); err != nil {
			return nil, err
		}
		cashed, err := dec.ReadBool()
		if err != nil {
			return nil, err
		}
		if cashed {
			m, err := dec.ReadF64()
			if err != nil {
				return nil, err
			}
			b.CashedOutAt = &m
		}
		g.Verifiable.Bets[contract.Identity(id)] = b
	}

	if g.Backend.Multiplier, err = dec.ReadF64(); err != nil {
		return nil, err
	}
	if g.Backend.SetupTime, err = dec.ReadU64(); err != nil {
		return nil, err
	}
	if g.Backend.StartTime, err = dec.ReadU64(); err != nil {
		return nil, err
	}
	if g.Backend.CurrentTime, err = dec.ReadU64(); err != nil {
		return nil, err
	}

	board, err := dec.ReadString()
	if err != nil {
		return nil, err
	}
	g.BoardContract = contract.ContractName(board)
	backend, err := dec.ReadString()
	if err != nil {
		return nil, err
	}
	g.BackendIdentity = contract.Identity(backend)
	if g.LastInteraction, err = dec.ReadU64(); err != nil {
		return nil, err
	}
	lane, err := dec.ReadString()
	if err != nil {
		return nil, err
	}
	g.LaneID = contract.LaneID(lane)
	return g, dec.Finish()
}
