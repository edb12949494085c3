package bitstream

import (
	"io"

	"github.com/pkg/errors"
)

const (
	wordBits       = 16
	flushThreshold = 4096
)

// syncMarker is the LEN/NLEN pair of an empty stored block.
var syncMarker = [4]byte{0x00, 0x00, 0xff, 0xff}

// Writer packs variable-length codes LSB-first and emits completed 16-bit
// words in little-endian order.
type Writer struct {
	w       io.Writer
	bits    uint64
	count   uint
	buf     []byte
	written int64
	err     error
}

// NewWriter returns a bit packer writing to w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{
		w:   w,
		buf: make([]byte, 0, flushThreshold+8),
	}
}

// WriteBits appends the low n bits of v, least-significant bit first.
func (bw *Writer) WriteBits(v uint32, n uint) {
	if bw.err != nil || n == 0 {
		return
	}
	if n > MaxReadBits {
		bw.err = errors.Errorf("bitstream: write of %d bits exceeds %d", n, MaxReadBits)
		return
	}
	bw.bits |= (uint64(v) & mask(n)) << bw.count
	bw.count += n
	for bw.count >= wordBits {
		bw.buf = append(bw.buf, byte(bw.bits), byte(bw.bits>>8))
		bw.bits >>= wordBits
		bw.count -= wordBits
	}
	if len(bw.buf) >= flushThreshold {
		bw.flushBuf()
	}
}

// AlignToByte pads with zero bits up to the next byte boundary.
func (bw *Writer) AlignToByte() {
	if rem := bw.count % 8; rem != 0 {
		bw.WriteBits(0, 8-rem)
	}
}

// WriteBytes aligns to a byte boundary and appends p verbatim.
func (bw *Writer) WriteBytes(p []byte) {
	bw.AlignToByte()
	bw.drainBytes()
	if bw.err != nil {
		return
	}
	bw.buf = append(bw.buf, p...)
	if len(bw.buf) >= flushThreshold {
		bw.flushBuf()
	}
}

// Sync terminates the bit stream with an empty non-final stored block:
// a 3-bit 000 header, zero padding to the byte boundary, then
// 00 00 FF FF. The result is byte aligned and decodable by any standard
// inflater. Remaining bytes are flushed to the underlying writer.
func (bw *Writer) Sync() error {
	bw.WriteBits(0, 3)
	bw.WriteBytes(syncMarker[:])
	return bw.Flush()
}

// Flush pads the final partial byte with zeros and writes every pending
// byte to the underlying writer.
func (bw *Writer) Flush() error {
	bw.AlignToByte()
	bw.drainBytes()
	bw.flushBuf()
	return bw.err
}

// Pending reports the number of bits not yet packed into a whole word.
func (bw *Writer) Pending() uint {
	return bw.count
}

// Written returns the number of bytes produced so far, including bytes
// still buffered inside the packer.
func (bw *Writer) Written() int64 {
	return bw.written + int64(len(bw.buf))
}

// Err returns the first error encountered.
func (bw *Writer) Err() error {
	return bw.err
}

func (bw *Writer) drainBytes() {
	for bw.count >= 8 {
		bw.buf = append(bw.buf, byte(bw.bits))
		bw.bits >>= 8
		bw.count -= 8
	}
}

func (bw *Writer) flushBuf() {
	if bw.err != nil || len(bw.buf) == 0 {
		return
	}
	n, err := bw.w.Write(bw.buf)
	bw.written += int64(n)
	if err != nil {
		bw.err = errors.Wrap(err, "bitstream: unable to write packed bytes")
		return
	}
	bw.buf = bw.buf[:0]
}
