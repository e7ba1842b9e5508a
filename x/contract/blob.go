package contract

import (
	"bytes"
	"fmt"
)

// structuredBlobVersion tags the StructuredBlob wire layout so the format can
// evolve without breaking commitment hashing.
const structuredBlobVersion uint8 = 1

// StructuredBlob is the decoded form of Blob.Data: optional caller/callee
// blob-index cross-references for composed transactions, plus the opaque
// contract-specific action payload.
type StructuredBlob struct {
	Caller  *BlobIndex
	Callees []BlobIndex
	Payload []byte
}

// Encode renders the blob data. The layout must round-trip byte-for-byte for
// commitment hashing to be meaningful across implementations.
func (s *StructuredBlob) Encode() []byte {
	enc := NewEncoder()
	enc.WriteU8(structuredBlobVersion)
	if s.Caller != nil {
		enc.WriteU8(1)
		enc.WriteU32(uint32(*s.Caller))
	} else {
		enc.WriteU8(0)
	}
	if s.Callees != nil {
		enc.WriteU8(1)
		enc.WriteU32(uint32(len(s.Callees)))
		for _, c := range s.Callees {
			enc.WriteU32(uint32(c))
		}
	} else {
		enc.WriteU8(0)
	}
	enc.WriteBytes(s.Payload)
	return enc.Bytes()
}

// DecodeStructuredBlob parses Blob.Data. Rejects unknown versions and
// trailing bytes.
func DecodeStructuredBlob(data []byte) (*StructuredBlob, error) {
	dec := NewDecoder(data)
	version, err := dec.ReadU8()
	if err != nil {
		return nil, err
	}
	if version != structuredBlobVersion {
		return nil, fmt.Errorf("%w: unsupported blob version %d", ErrValidation, version)
	}

	out := &StructuredBlob{}
	hasCaller, err := dec.ReadBool()
	if err != nil {
		return nil, err
	}
	if hasCaller {
		v, err := dec.ReadU32()
		if err != nil {
			return nil, err
		}
		idx := BlobIndex(v)
		out.Caller = &idx
	}

	hasCallees, err := dec.ReadBool()
	if err != nil {
		return nil, err
	}
	if hasCallees {
		n, err := dec.ReadU32()
		if err != nil {
			return nil, err
		}
		if int(n) > dec.Remaining()/4 {
			return nil, fmt.Errorf("%w: callee count %d exceeds payload", ErrValidation, n)
		}
		out.Callees = make([]BlobIndex, 0, n)
		for i := uint32(0); i < n; i++ {
			v, err := dec.ReadU32()
			if err != nil {
				return nil, err
			}
			out.Callees = append(out.Callees, BlobIndex(v))
		}
	}

	if out.Payload, err = dec.ReadByteSlice(); err != nil {
		return nil, err
	}
	return out, dec.Finish()
}

// NewBlob wraps an action payload for the named contract.
func NewBlob(name ContractName, caller *BlobIndex, callees []BlobIndex, payload []byte) Blob {
	sb := StructuredBlob{Caller: caller, Callees: callees, Payload: payload}
	return Blob{ContractName: name, Data: sb.Encode()}
}

// RequireCallee verifies that the current blob lists a callee blob addressed
// to the given contract whose payload is byte-identical to expected. This is
// the cross-contract composition check: each side independently reads the
// counterpart blob out of the same transaction.
func (cd *Calldata) RequireCallee(name ContractName, expected []byte) error {
	self, err := cd.Blob()
	if err != nil {
		return err
	}
	sb, err := DecodeStructuredBlob(self.Data)
	if err != nil {
		return err
	}
	for _, idx := range sb.Callees {
		other, ok := cd.blobAt(idx)
		if !ok || other.ContractName != name {
			continue
		}
		osb, err := DecodeStructuredBlob(other.Data)
		if err != nil {
			continue
		}
		if bytes.Equal(osb.Payload, expected) {
			return nil
		}
	}
	return fmt.Errorf("%w: no callee blob for %s matching expected payload", ErrCompositionMismatch, name)
}

// RequireCaller verifies that the current blob's caller reference points at a
// blob addressed to the given contract whose payload is byte-identical to
// expected.
func (cd *Calldata) RequireCaller(name ContractName, expected []byte) error {
	self, err := cd.Blob()
	if err != nil {
		return err
	}
	sb, err := DecodeStructuredBlob(self.Data)
	if err != nil {
		return err
	}
	if sb.Caller == nil {
		return fmt.Errorf("%w: blob has no caller reference", ErrCompositionMismatch)
	}
	other, ok := cd.blobAt(*sb.Caller)
	if !ok {
		return fmt.Errorf("%w: caller index %d out of range", ErrCompositionMismatch, *sb.Caller)
	}
	if other.ContractName != name {
		return fmt.Errorf("%w: caller blob is %s, want %s", ErrCompositionMismatch, other.ContractName, name)
	}
	osb, err := DecodeStructuredBlob(other.Data)
	if err != nil {
		return err
	}
	if !bytes.Equal(osb.Payload, expected) {
		return fmt.Errorf("%w: caller blob payload differs from expected", ErrCompositionMismatch)
	}
	return nil
}

// Payload returns the action payload of the blob under execution.
func (cd *Calldata) Payload() ([]byte, error) {
	self, err := cd.Blob()
	if err != nil {
		return nil, err
	}
	sb, err := DecodeStructuredBlob(self.Data)
	if err != nil {
		return nil, err
	}
	return sb.Payload, nil
}

// CallerBlob resolves the blob the current blob names as its caller and
// returns its contract name and payload.
func (cd *Calldata) CallerBlob() (ContractName, []byte, error) {
	self, err := cd.Blob()
	if err != nil {
		return "", nil, err
	}
	sb, err := DecodeStructuredBlob(self.Data)
	if err != nil {
		return "", nil, err
	}
	if sb.Caller == nil {
		return "", nil, fmt.Errorf("%w: blob has no caller reference", ErrCompositionMismatch)
	}
	other, ok := cd.blobAt(*sb.Caller)
	if !ok {
		return "", nil, fmt.Errorf("%w: caller index %d out of range", ErrCompositionMismatch, *sb.Caller)
	}
	osb, err := DecodeStructuredBlob(other.Data)
	if err != nil {
		return "", nil, err
	}
	return other.ContractName, osb.Payload, nil
}

func (cd *Calldata) blobAt(idx BlobIndex) (*Blob, bool) {
	if int(idx) >= len(cd.Blobs) {
		return nil, false
	}
	return &cd.Blobs[idx], true
}
