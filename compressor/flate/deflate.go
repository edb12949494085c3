package flate

import (
	"bytes"
	"io"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/FitrahHaque/flate-engine/compressor/bitstream"
	"github.com/FitrahHaque/flate-engine/compressor/huffman"
)

// FinalBlock is an empty stored block with the final bit set. Appending it
// to a run of non-final blocks terminates the stream.
var FinalBlock = []byte{0x01, 0x00, 0x00, 0xff, 0xff}

type encodeState uint8

const (
	writeToken encodeState = iota
	litRep
	matchDistRep
	matchExtra
	distRep
	distExtra
)

type EncoderOption func(*Encoder)

// WithFinal sets the final bit on the encoded block. A final block ends in
// zero padding instead of a sync trailer.
func WithFinal() EncoderOption {
	return func(e *Encoder) {
		e.final = true
	}
}

// WithEncoderLogger replaces the encoder's logger.
func WithEncoderLogger(log *logrus.Entry) EncoderOption {
	return func(e *Encoder) {
		e.log = log
	}
}

// Encoder writes tokens as a single dynamic Huffman block using the trees
// it was created with. The block header goes out with the first token.
type Encoder struct {
	bw    *bitstream.Writer
	trees *Trees
	final bool

	state   encodeState
	current Token
	code    int
	extra   uint8
	offset  uint32

	headerDone bool
	tokens     int
	closed     bool

	err error
	log *logrus.Entry
}

// NewEncoder returns an encoder writing to w.
func NewEncoder(w io.Writer, trees *Trees, opts ...EncoderOption) *Encoder {
	e := &Encoder{
		bw:    bitstream.NewWriter(w),
		trees: trees,
		log:   logrus.WithField("pkg", "flate"),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// WriteToken encodes one token. A token the trees cannot express is rejected
// without writing anything; write errors are sticky.
func (e *Encoder) WriteToken(t Token) error {
	if e.err != nil {
		return e.err
	}
	if e.closed {
		return errors.New("flate: write to closed encoder")
	}
	if err := e.checkToken(t); err != nil {
		return err
	}
	if !e.headerDone {
		if err := e.writeHeader(); err != nil {
			e.err = err
			return err
		}
	}

	e.current = t
	if t.Kind == LiteralToken {
		e.state = litRep
	} else {
		e.state = matchDistRep
	}
	for e.state != writeToken {
		e.step()
	}
	e.tokens++

	if err := e.bw.Err(); err != nil {
		e.err = err
	}
	return e.err
}

func (e *Encoder) step() {
	switch e.state {
	case litRep:
		e.emit(e.trees.LitLen[e.current.Value])
		e.state = writeToken
	case matchDistRep:
		e.code, e.extra, e.offset = lengthToCode(int(e.current.Length))
		e.emit(e.trees.LitLen[firstLengthCode+e.code])
		e.state = matchExtra
	case matchExtra:
		e.bw.WriteBits(e.offset, uint(e.extra))
		e.state = distRep
	case distRep:
		e.code, e.extra, e.offset = distanceToCode(int(e.current.Distance))
		e.emit(e.trees.Dist[e.code])
		e.state = distExtra
	case distExtra:
		e.bw.WriteBits(e.offset, uint(e.extra))
		e.state = writeToken
	}
}

func (e *Encoder) emit(c huffman.Code) {
	e.bw.WriteBits(uint32(c.Bits), uint(c.Len))
}

func (e *Encoder) checkToken(t Token) error {
	if err := t.validate(); err != nil {
		return err
	}
	if t.Kind == LiteralToken {
		if codeLen(e.trees.LitLen, int(t.Value)) == 0 {
			return errors.Wrapf(ErrInvalidToken, "literal %#02x has no code", t.Value)
		}
		return nil
	}
	lc, _, _ := lengthToCode(int(t.Length))
	if codeLen(e.trees.LitLen, firstLengthCode+lc) == 0 {
		return errors.Wrapf(ErrInvalidToken, "length code %d has no code", firstLengthCode+lc)
	}
	dc, _, _ := distanceToCode(int(t.Distance))
	if codeLen(e.trees.Dist, dc) == 0 {
		return errors.Wrapf(ErrInvalidToken, "distance code %d has no code", dc)
	}
	return nil
}

func (e *Encoder) writeHeader() error {
	h, err := e.trees.header()
	if err != nil {
		return err
	}
	e.headerDone = true

	var bfinal uint32
	if e.final {
		bfinal = 1
	}
	e.bw.WriteBits(bfinal|2<<1, 3)
	e.bw.WriteBits(uint32(h.nlen-firstLengthCode), 5)
	e.bw.WriteBits(uint32(h.ndist-1), 5)
	e.bw.WriteBits(uint32(h.ncode-4), 4)
	for i := 0; i < h.ncode; i++ {
		e.bw.WriteBits(uint32(codeLen(e.trees.CodeLen, codeLengthOrder[i])), 3)
	}
	for _, s := range h.rle {
		e.emit(e.trees.CodeLen[s.Symbol])
		if n := extraBitsOf(s.Symbol); n > 0 {
			e.bw.WriteBits(uint32(s.Extra), n)
		}
	}

	e.log.WithFields(logrus.Fields{
		"method": "writeHeader",
		"final":  e.final,
		"hlit":   h.nlen,
		"hdist":  h.ndist,
		"hclen":  h.ncode,
	}).Debug("dynamic block header written")
	return nil
}

// Close ends the block and flushes every pending byte. A non-final block is
// followed by an empty stored block so the output ends on a byte boundary
// any inflater can resume from. An encoder that saw no tokens writes no
// Huffman block at all: just the trailer, or FinalBlock when final.
func (e *Encoder) Close() error {
	if e.closed {
		return e.err
	}
	e.closed = true
	if e.err != nil {
		return e.err
	}

	switch {
	case !e.headerDone && e.final:
		e.bw.WriteBits(1, 3)
		e.bw.WriteBytes(FinalBlock[1:])
		e.err = e.bw.Flush()
	case !e.headerDone:
		e.err = e.bw.Sync()
	default:
		e.emit(e.trees.LitLen[endOfBlock])
		if e.final {
			e.err = e.bw.Flush()
		} else {
			e.err = e.bw.Sync()
		}
	}

	e.log.WithFields(logrus.Fields{
		"method":  "Close",
		"tokens":  e.tokens,
		"written": e.bw.Written(),
	}).Debug("block closed")
	return e.err
}

// Written returns the number of bytes produced. After Close it is the
// block's compressed size.
func (e *Encoder) Written() int64 {
	return e.bw.Written()
}

// EncodeTokens builds trees for tokens and writes them to w as one dynamic
// block. It returns the compressed size.
func EncodeTokens(w io.Writer, tokens []Token, opts ...EncoderOption) (int64, error) {
	trees, err := BuildTrees(tokens)
	if err != nil {
		return 0, errors.Wrap(err, "unable to build trees")
	}
	enc := NewEncoder(w, trees, opts...)
	for i, t := range tokens {
		if err := enc.WriteToken(t); err != nil {
			return enc.Written(), errors.Wrapf(err, "token %d", i)
		}
	}
	if err := enc.Close(); err != nil {
		return enc.Written(), err
	}
	return enc.Written(), nil
}

// EncodeStored returns data as a run of stored blocks of at most 65535
// bytes each. Only the last block carries the final bit, and only when
// final is set. Empty data yields a single empty stored block.
func EncodeStored(data []byte, final bool) []byte {
	var buf bytes.Buffer
	buf.Grow(len(data) + 5*(len(data)/maxStoredBlockLength+1))
	bw := bitstream.NewWriter(&buf)
	for {
		n := min(len(data), maxStoredBlockLength)
		var bfinal uint32
		if final && n == len(data) {
			bfinal = 1
		}
		bw.WriteBits(bfinal, 3)
		bw.WriteBytes([]byte{byte(n), byte(n >> 8), ^byte(n), ^byte(n >> 8)})
		bw.WriteBytes(data[:n])
		data = data[n:]
		if len(data) == 0 {
			break
		}
	}
	// bytes.Buffer never fails a write.
	_ = bw.Flush()
	return buf.Bytes()
}
