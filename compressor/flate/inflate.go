package flate

import (
	"io"
	"sync"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/FitrahHaque/flate-engine/compressor/bitstream"
	"github.com/FitrahHaque/flate-engine/compressor/huffman"
)

// State is the block-level state of a Decoder.
type State uint8

const (
	StateHeader State = iota
	StateBlockPreamble
	StateStored
	StateDynamic
	StateStaticReserved
	StateByteGen
	StateComplete
)

func (s State) String() string {
	switch s {
	case StateHeader:
		return "header"
	case StateBlockPreamble:
		return "block-preamble"
	case StateStored:
		return "stored"
	case StateDynamic:
		return "dynamic"
	case StateStaticReserved:
		return "static"
	case StateByteGen:
		return "bytegen"
	case StateComplete:
		return "complete"
	default:
		return "unknown"
	}
}

// stage is the position inside ByteGen. Only literalStage and
// matchDistanceWriteStage emit tokens.
type stage uint8

const (
	literalStage stage = iota
	matchLengthStage
	matchDistanceStage
	matchDistanceWriteStage
)

type DecoderOption func(*Decoder)

// WithZlibHeader makes the decoder validate and skip a 2-byte zlib header.
func WithZlibHeader() DecoderOption {
	return func(d *Decoder) {
		d.zlib = true
	}
}

// WithStaticBlocks enables decoding of fixed Huffman blocks.
func WithStaticBlocks() DecoderOption {
	return func(d *Decoder) {
		d.static = true
	}
}

// WithUnterminated lets a stream that runs out of input exactly at a block
// boundary complete normally instead of failing with ErrUnexpectedEOF.
func WithUnterminated() DecoderOption {
	return func(d *Decoder) {
		d.unterminated = true
	}
}

// WithDecoderLogger replaces the decoder's logger.
func WithDecoderLogger(log *logrus.Entry) DecoderOption {
	return func(d *Decoder) {
		d.log = log
	}
}

// Decoder turns a raw DEFLATE stream into tokens, one Next call at a time.
type Decoder struct {
	br    *bitstream.Reader
	state State
	stage stage
	final bool

	litLen *huffman.DecodeTable
	dist   *huffman.DecodeTable

	current     huffman.Entry
	matchLength int

	storedHeader bool
	storedLeft   int

	blocks int

	zlib         bool
	static       bool
	unterminated bool

	err error
	log *logrus.Entry
}

// NewDecoder returns a decoder reading the stream in src.
func NewDecoder(src []byte, opts ...DecoderOption) *Decoder {
	d := &Decoder{
		br:    bitstream.NewReader(src),
		state: StateHeader,
		log:   logrus.WithField("pkg", "flate"),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// State returns the decoder's current block-level state.
func (d *Decoder) State() State {
	return d.state
}

// Blocks returns the number of blocks fully decoded.
func (d *Decoder) Blocks() int {
	return d.blocks
}

// BytesConsumed returns how many input bytes the decoder has read.
func (d *Decoder) BytesConsumed() int {
	return d.br.BytesConsumed()
}

// Next returns the next token. It returns io.EOF once the final block has
// been decoded. Any other error is fatal: the decoder does not resynchronize
// and every later call returns the same error.
func (d *Decoder) Next() (Token, error) {
	if d.err != nil {
		return Token{}, d.err
	}
	for {
		var (
			tok     Token
			emitted bool
			err     error
		)
		switch d.state {
		case StateHeader:
			err = d.readHeader()
		case StateBlockPreamble:
			err = d.readPreamble()
		case StateStored:
			tok, emitted, err = d.storedByte()
		case StateDynamic:
			err = d.readDynamicTables()
		case StateStaticReserved:
			err = d.loadStaticTables()
		case StateByteGen:
			tok, emitted, err = d.byteGen()
		case StateComplete:
			return Token{}, io.EOF
		}
		if err != nil {
			d.err = err
			return Token{}, err
		}
		if emitted {
			return tok, nil
		}
	}
}

// Tokens decodes the rest of the stream. On failure it returns the tokens
// produced before the error alongside it.
func (d *Decoder) Tokens() ([]Token, error) {
	var tokens []Token
	for {
		tok, err := d.Next()
		if err == io.EOF {
			return tokens, nil
		}
		if err != nil {
			return tokens, err
		}
		tokens = append(tokens, tok)
	}
}

func (d *Decoder) readHeader() error {
	d.state = StateBlockPreamble
	if !d.zlib {
		return nil
	}
	v, err := d.br.Read(16)
	if err != nil {
		return errors.Wrap(err, "unable to read zlib header")
	}
	cmf, flg := v&0xff, v>>8
	switch {
	case cmf&0x0f != 8:
		return errors.Wrapf(ErrBadHeader, "compression method %d", cmf&0x0f)
	case cmf>>4 > 7:
		return errors.Wrapf(ErrBadHeader, "window size exponent %d", cmf>>4)
	case (cmf<<8|flg)%31 != 0:
		return errors.Wrap(ErrBadHeader, "header check bits")
	case flg&0x20 != 0:
		return errors.Wrap(ErrBadHeader, "preset dictionary not supported")
	}
	return nil
}

func (d *Decoder) readPreamble() error {
	if d.unterminated && d.blocks > 0 && d.br.Remaining() == 0 {
		d.state = StateComplete
		return nil
	}
	v, err := d.br.Read(3)
	if err != nil {
		return errors.Wrap(err, "unable to read block header")
	}
	d.final = v&1 == 1
	btype := v >> 1

	d.log.WithFields(logrus.Fields{
		"method": "readPreamble",
		"block":  d.blocks,
		"final":  d.final,
		"type":   btype,
	}).Debug("block header")

	switch btype {
	case 0:
		d.state = StateStored
		d.storedHeader = false
	case 1:
		d.state = StateStaticReserved
	case 2:
		d.state = StateDynamic
	default:
		return errors.Wrap(ErrUnsupportedBlockType, "reserved block type 3")
	}
	return nil
}

func (d *Decoder) storedByte() (Token, bool, error) {
	if !d.storedHeader {
		d.br.AlignToByte()
		v, err := d.br.Read(32)
		if err != nil {
			return Token{}, false, errors.Wrap(err, "unable to read stored block length")
		}
		length, complement := v&0xffff, v>>16
		if length != ^complement&0xffff {
			return Token{}, false, errors.Wrapf(ErrCorruptStored, "LEN %#04x NLEN %#04x", length, complement)
		}
		d.storedHeader = true
		d.storedLeft = int(length)
	}
	if d.storedLeft == 0 {
		d.endBlock()
		return Token{}, false, nil
	}
	b, err := d.br.Read(8)
	if err != nil {
		return Token{}, false, errors.Wrap(err, "stored block truncated")
	}
	d.storedLeft--
	return Literal(byte(b)), true, nil
}

func (d *Decoder) readDynamicTables() error {
	v, err := d.br.Read(14)
	if err != nil {
		return errors.Wrap(err, "unable to read dynamic block counts")
	}
	nlen := int(v&0x1f) + firstLengthCode
	ndist := int(v>>5&0x1f) + 1
	ncode := int(v>>10) + 4

	var clLens [numCodeLenCodes]uint8
	for i := 0; i < ncode; i++ {
		l, err := d.br.Read(3)
		if err != nil {
			return errors.Wrap(err, "unable to read code length code lengths")
		}
		clLens[codeLengthOrder[i]] = uint8(l)
	}
	clTable, err := huffman.BuildDecodeTable(clLens[:], codeLenRootBits, codeLenMapper)
	if err != nil {
		return errors.Wrap(err, "code length table")
	}

	total := nlen + ndist
	lengths := make([]uint8, 0, total)
	for len(lengths) < total {
		e, err := clTable.Decode(d.br)
		if err != nil {
			return errors.Wrap(err, "unable to read code lengths")
		}
		if e.Kind == huffman.Invalid {
			return errors.Wrap(ErrInvalidCode, "code length symbol")
		}
		sym := uint8(e.Base)
		var extra uint32
		if n := extraBitsOf(sym); n > 0 {
			if extra, err = d.br.Read(n); err != nil {
				return errors.Wrap(err, "unable to read code length repeat")
			}
		}
		if lengths, err = expandRLE(lengths, sym, uint8(extra), total); err != nil {
			return err
		}
	}
	if lengths[endOfBlock] == 0 {
		return errors.Wrap(ErrInvalidCode, "missing end-of-block code")
	}

	if d.litLen, err = huffman.BuildSparseDecodeTable(lengths[:nlen], litLenRootBits, litLenMapper); err != nil {
		return errors.Wrap(err, "literal/length table")
	}
	if d.dist, err = huffman.BuildSparseDecodeTable(lengths[nlen:], distRootBits, distMapper); err != nil {
		return errors.Wrap(err, "distance table")
	}

	d.log.WithFields(logrus.Fields{
		"method": "readDynamicTables",
		"hlit":   nlen,
		"hdist":  ndist,
		"hclen":  ncode,
	}).Debug("dynamic tables built")

	d.state = StateByteGen
	d.stage = literalStage
	return nil
}

var (
	fixedOnce   sync.Once
	fixedLitLen *huffman.DecodeTable
	fixedDist   *huffman.DecodeTable
	fixedErr    error
)

func (d *Decoder) loadStaticTables() error {
	if !d.static {
		return errors.Wrap(ErrUnsupportedBlockType, "static Huffman block")
	}
	fixedOnce.Do(func() {
		lit, dist := fixedLengths()
		if fixedLitLen, fixedErr = huffman.BuildDecodeTable(lit, litLenRootBits, litLenMapper); fixedErr != nil {
			return
		}
		fixedDist, fixedErr = huffman.BuildDecodeTable(dist, distRootBits, distMapper)
	})
	if fixedErr != nil {
		return errors.Wrap(fixedErr, "static tables")
	}
	d.litLen, d.dist = fixedLitLen, fixedDist
	d.state = StateByteGen
	d.stage = literalStage
	return nil
}

func (d *Decoder) byteGen() (Token, bool, error) {
	switch d.stage {
	case literalStage:
		e, err := d.litLen.Decode(d.br)
		if err != nil {
			return Token{}, false, errors.Wrap(err, "unable to read literal/length code")
		}
		switch e.Kind {
		case huffman.Literal:
			return Literal(byte(e.Base)), true, nil
		case huffman.EndOfBlock:
			d.endBlock()
			return Token{}, false, nil
		case huffman.Length:
			d.current = e
			d.stage = matchLengthStage
			return Token{}, false, nil
		default:
			return Token{}, false, errors.Wrap(ErrInvalidCode, "literal/length symbol")
		}

	case matchLengthStage:
		extra, err := d.br.Read(uint(d.current.Extra))
		if err != nil {
			return Token{}, false, errors.Wrap(err, "unable to read length extra bits")
		}
		d.matchLength = int(d.current.Base) + int(extra)
		d.stage = matchDistanceStage
		return Token{}, false, nil

	case matchDistanceStage:
		e, err := d.dist.Decode(d.br)
		if err != nil {
			return Token{}, false, errors.Wrap(err, "unable to read distance code")
		}
		if e.Kind != huffman.Distance {
			return Token{}, false, errors.Wrap(ErrInvalidCode, "distance symbol")
		}
		d.current = e
		d.stage = matchDistanceWriteStage
		return Token{}, false, nil

	default:
		extra, err := d.br.Read(uint(d.current.Extra))
		if err != nil {
			return Token{}, false, errors.Wrap(err, "unable to read distance extra bits")
		}
		d.stage = literalStage
		return Match(d.matchLength, int(d.current.Base)+int(extra)), true, nil
	}
}

func (d *Decoder) endBlock() {
	d.blocks++
	d.litLen, d.dist = nil, nil
	if d.final {
		d.state = StateComplete
		return
	}
	d.state = StateBlockPreamble
}
