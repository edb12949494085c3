package bitstream

import (
	"encoding/binary"

	"github.com/pkg/errors"
)

const (
	// MaxReadBits is the widest field a single Peek/Read may return.
	MaxReadBits = 32

	accumulatorBits = 64
	refillGranule   = 16
)

// ErrUnexpectedEOF is returned when a read would go past the declared input.
var ErrUnexpectedEOF = errors.New("bitstream: unexpected end of input")

// Reader is a little-endian, LSB-first bit cursor over a byte slice.
//
// Bits are held in a 64-bit accumulator refilled 16 bits at a time while
// whole granules remain, then one byte at a time at the tail. The first
// bit returned is the least-significant bit of the first byte.
type Reader struct {
	src   []byte
	pos   int    // next byte of src to load
	bits  uint64 // buffered bits, next bit in bit 0
	count uint   // number of valid bits in bits
}

// NewReader returns a cursor positioned at the first bit of src.
func NewReader(src []byte) *Reader {
	br := &Reader{src: src}
	br.refill()
	return br
}

func (br *Reader) refill() {
	for br.count <= accumulatorBits-refillGranule && br.pos+2 <= len(br.src) {
		br.bits |= uint64(binary.LittleEndian.Uint16(br.src[br.pos:])) << br.count
		br.pos += 2
		br.count += refillGranule
	}
	for br.count <= accumulatorBits-8 && br.pos < len(br.src) {
		br.bits |= uint64(br.src[br.pos]) << br.count
		br.pos++
		br.count += 8
	}
}

// Available reports how many bits remain, buffered or not yet loaded.
func (br *Reader) Available() uint {
	return br.count + uint(len(br.src)-br.pos)*8
}

// PeekBits returns the next n bits without consuming them. Bits beyond the
// end of input read as zero; callers that need strictness use Peek.
func (br *Reader) PeekBits(n uint) uint32 {
	if br.count < n {
		br.refill()
	}
	return uint32(br.bits & mask(n))
}

// Peek returns the next n bits without consuming them.
func (br *Reader) Peek(n uint) (uint32, error) {
	if n > MaxReadBits {
		return 0, errors.Errorf("bitstream: peek of %d bits exceeds %d", n, MaxReadBits)
	}
	if br.count < n {
		br.refill()
		if br.count < n {
			return 0, ErrUnexpectedEOF
		}
	}
	return uint32(br.bits & mask(n)), nil
}

// Consume drops the next n bits.
func (br *Reader) Consume(n uint) error {
	if n > MaxReadBits {
		return errors.Errorf("bitstream: consume of %d bits exceeds %d", n, MaxReadBits)
	}
	if br.count < n {
		br.refill()
		if br.count < n {
			return ErrUnexpectedEOF
		}
	}
	br.bits >>= n
	br.count -= n
	return nil
}

// Read returns the next n bits and consumes them.
func (br *Reader) Read(n uint) (uint32, error) {
	v, err := br.Peek(n)
	if err != nil {
		return 0, err
	}
	br.bits >>= n
	br.count -= n
	return v, nil
}

// AlignToByte drops the bits left over from a partially read byte.
func (br *Reader) AlignToByte() {
	drop := br.count % 8
	br.bits >>= drop
	br.count -= drop
}

// Aligned reports whether the cursor sits on a byte boundary.
func (br *Reader) Aligned() bool {
	return br.count%8 == 0
}

// BytesConsumed returns the number of whole input bytes consumed so far.
// A partially consumed byte counts as consumed.
func (br *Reader) BytesConsumed() int {
	return br.pos - int(br.count/8)
}

// Remaining returns the number of whole bytes not yet touched by the cursor.
func (br *Reader) Remaining() int {
	return len(br.src) - br.BytesConsumed()
}

func mask(n uint) uint64 {
	return (uint64(1) << n) - 1
}
