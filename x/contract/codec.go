package contract

import (
	"encoding/binary"
	"fmt"
	"math"
)

// The codec is a fixed little-endian tagged binary format. Encoding the same
// value always yields the same bytes, and decoding is total: malformed input
// returns ErrValidation, never panics. Layout rules:
//
//	u8/bool      1 byte (bool is 0 or 1)
//	u32/i32      4 bytes LE
//	u64/i64      8 bytes LE
//	u128         16 bytes LE
//	f64          8 bytes LE (IEEE-754 bits)
//	string/bytes u32 length prefix + raw bytes
//	option<T>    u8 tag (0 absent, 1 present) + T
//	vec<T>       u32 count + elements

// Encoder accumulates a deterministic binary encoding.
type Encoder struct {
	buf []byte
}

func NewEncoder() *Encoder { return &Encoder{} }

func (e *Encoder) Bytes() []byte { return e.buf }

func (e *Encoder) WriteU8(v uint8) { e.buf = append(e.buf, v) }

func (e *Encoder) WriteBool(v bool) {
	if v {
		e.WriteU8(1)
		return
	}
	e.WriteU8(0)
}

func (e *Encoder) WriteU32(v uint32) {
	e.buf = binary.LittleEndian.AppendUint32(e.buf, v)
}

func (e *Encoder) WriteU64(v uint64) {
	e.buf = binary.LittleEndian.AppendUint64(e.buf, v)
}

// WriteU128 writes the low and high 64-bit halves, low first.
func (e *Encoder) WriteU128(lo, hi uint64) {
	e.WriteU64(lo)
	e.WriteU64(hi)
}

func (e *Encoder) WriteI32(v int32) { e.WriteU32(uint32(v)) }

func (e *Encoder) WriteI64(v int64) { e.WriteU64(uint64(v)) }

func (e *Encoder) WriteF64(v float64) { e.WriteU64(math.Float64bits(v)) }

func (e *Encoder) WriteString(s string) {
	e.WriteU32(uint32(len(s)))
	e.buf = append(e.buf, s...)
}

func (e *Encoder) WriteBytes(b []byte) {
	e.WriteU32(uint32(len(b)))
	e.buf = append(e.buf, b...)
}

// Decoder reads values back in the order they were written.
type Decoder struct {
	buf []byte
	off int
}

func NewDecoder(b []byte) *Decoder { return &Decoder{buf: b} }

// Remaining reports how many undecoded bytes are left.
func (d *Decoder) Remaining() int { return len(d.buf) - d.off }

func (d *Decoder) take(n int) ([]byte, error) {
	if n < 0 || d.Remaining() < n {
		return nil, fmt.Errorf("%w: truncated input (want %d bytes, have %d)", ErrValidation, n, d.Remaining())
	}
	b := d.buf[d.off : d.off+n]
	d.off += n
	return b, nil
}

func (d *Decoder) ReadU8() (uint8, error) {
	b, err := d.take(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (d *Decoder) ReadBool() (bool, error) {
	v, err := d.ReadU8()
	if err != nil {
		return false, err
	}
	switch v {
	case 0:
		return false, nil
	case 1:
		return true, nil
	}
	return false, fmt.Errorf("%w: invalid bool byte %d", ErrValidation, v)
}

func (d *Decoder) ReadU32() (uint32, error) {
	b, err := d.take(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

func (d *Decoder) ReadU64() (uint64, error) {
	b, err := d.take(8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}

func (d *Decoder) ReadU128() (lo, hi uint64, err error) {
	if lo, err = d.ReadU64(); err != nil {
		return 0, 0, err
	}
	if hi, err = d.ReadU64(); err != nil {
		return 0, 0, err
	}
	return lo, hi, nil
}

func (d *Decoder) ReadI32() (int32, error) {
	v, err := d.ReadU32()
	return int32(v), err
}

func (d *Decoder) ReadI64() (int64, error) {
	v, err := d.ReadU64()
	return int64(v), err
}

func (d *Decoder) ReadF64() (float64, error) {
	v, err := d.ReadU64()
	return math.Float64frombits(v), err
}

func (d *Decoder) ReadString() (string, error) {
	b, err := d.ReadByteSlice()
	return string(b), err
}

func (d *Decoder) ReadByteSlice() ([]byte, error) {
	n, err := d.ReadU32()
	if err != nil {
		return nil, err
	}
	b, err := d.take(int(n))
	if err != nil {
		return nil, err
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out, nil
}

// Finish errors when trailing bytes remain, catching payloads that decode to
// a valid prefix but carry extra data.
func (d *Decoder) Finish() error {
	if d.Remaining() != 0 {
		return fmt.Errorf("%w: %d trailing bytes", ErrValidation, d.Remaining())
	}
	return nil
}
