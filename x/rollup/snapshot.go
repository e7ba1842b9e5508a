package rollup

import (
	"fmt"
	"sort"

	"github.com/hyli-org/degen-party/x/contract"
)

const (
	snapshotMagic   = "RXST"
	snapshotVersion = 1
)

// Snapshot serializes the store for crash recovery: the settled baseline,
// the speculative view, the unsettled log and the last processed height.
// Contract states go through each executor's own MarshalBinary; restoring
// them needs the matching Registry.
func (s *Store) Snapshot() ([]byte, error) {
	enc := contract.NewEncoder()
	enc.WriteBytes([]byte(snapshotMagic))
	enc.WriteU8(snapshotVersion)
	enc.WriteU64(uint64(s.lastProcessedBlock))

	enc.WriteU32(uint32(len(s.unsettled)))
	for i := range s.unsettled {
		utx := &s.unsettled[i]
		encodeTx(enc, &utx.Tx)
		enc.WriteU64(utx.Ctx.Timestamp)
		enc.WriteString(string(utx.Ctx.LaneID))
		enc.WriteU64(uint64(utx.Ctx.BlockHeight))
	}

	if err := encodeContracts(enc, s.optimistic); err != nil {
		return nil, err
	}
	if err := encodeContracts(enc, s.settled); err != nil {
		return nil, err
	}
	return enc.Bytes(), nil
}

func encodeTx(enc *contract.Encoder, tx *contract.Transaction) {
	enc.WriteString(string(tx.Identity))
	enc.WriteU32(uint32(len(tx.Blobs)))
	for _, b := range tx.Blobs {
		enc.WriteString(string(b.ContractName))
		enc.WriteBytes(b.Data)
	}
}

func encodeContracts(enc *contract.Encoder, contracts map[contract.ContractName]contract.Executor) error {
	names := make([]string, 0, len(contracts))
	for name := range contracts {
		names = append(names, string(name))
	}
	sort.Strings(names)

	enc.WriteU32(uint32(len(names)))
	for _, name := range names {
		data, err := contracts[contract.ContractName(name)].MarshalBinary()
		if err != nil {
			return fmt.Errorf("serializing contract %q: %w", name, err)
		}
		enc.WriteString(name)
		enc.WriteBytes(data)
	}
	return nil
}

// RestoreStore rebuilds a store from Snapshot output. Contracts present in
// the snapshot but absent from the registry fail the restore rather than
// silently dropping state.
func RestoreStore(data []byte, registry *contract.Registry, now func() uint64) (*Store, error) {
	dec := contract.NewDecoder(data)
	magic, err := dec.ReadByteSlice()
	if err != nil || string(magic) != snapshotMagic {
		return nil, fmt.Errorf("%w: bad snapshot magic", contract.ErrValidation)
	}
	version, err := dec.ReadU8()
	if err != nil {
		return nil, err
	}
	if version != snapshotVersion {
		return nil, fmt.Errorf("%w: unsupported snapshot version %d", contract.ErrValidation, version)
	}

	s := NewStore(nil, now)
	height, err := dec.ReadU64()
	if err != nil {
		return nil, err
	}
	s.lastProcessedBlock = contract.BlockHeight(height)

	count, err := dec.ReadU32()
	if err != nil {
		return nil, err
	}
	for i := uint32(0); i < count; i++ {
		var utx UnsettledTx
		if err := decodeTx(dec, &utx.Tx); err != nil {
			return nil, err
		}
		if utx.Ctx.Timestamp, err = dec.ReadU64(); err != nil {
			return nil, err
		}
		lane, err := dec.ReadString()
		if err != nil {
			return nil, err
		}
		utx.Ctx.LaneID = contract.LaneID(lane)
		h, err := dec.ReadU64()
		if err != nil {
			return nil, err
		}
		utx.Ctx.BlockHeight = contract.BlockHeight(h)
		s.unsettled = append(s.unsettled, utx)
	}

	if s.optimistic, err = decodeContracts(dec, registry); err != nil {
		return nil, err
	}
	if s.settled, err = decodeContracts(dec, registry); err != nil {
		return nil, err
	}
	if err := dec.Finish(); err != nil {
		return nil, err
	}
	return s, nil
}

func decodeTx(dec *contract.Decoder, tx *contract.Transaction) error {
	identity, err := dec.ReadString()
	if err != nil {
		return err
	}
	tx.Identity = contract.Identity(identity)
	count, err := dec.ReadU32()
	if err != nil {
		return err
	}
	tx.Blobs = make([]contract.Blob, count)
	for i := range tx.Blobs {
		name, err := dec.ReadString()
		if err != nil {
			return err
		}
		data, err := dec.ReadByteSlice()
		if err != nil {
			return err
		}
		tx.Blobs[i] = contract.Blob{ContractName: contract.ContractName(name), Data: data}
	}
	return nil
}

func decodeContracts(dec *contract.Decoder, registry *contract.Registry) (map[contract.ContractName]contract.Executor, error) {
	count, err := dec.ReadU32()
	if err != nil {
		return nil, err
	}
	contracts := make(map[contract.ContractName]contract.Executor, count)
	for i := uint32(0); i < count; i++ {
		name, err := dec.ReadString()
		if err != nil {
			return nil, err
		}
		data, err := dec.ReadByteSlice()
		if err != nil {
			return nil, err
		}
		exec, err := registry.Restore(contract.ContractName(name), data)
		if err != nil {
			return nil, fmt.Errorf("restoring contract %q: %w", name, err)
		}
		contracts[contract.ContractName(name)] = exec
	}
	return contracts, nil
}
