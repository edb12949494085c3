package huffman

import (
	"math/bits"

	"github.com/pkg/errors"

	"github.com/FitrahHaque/flate-engine/compressor/bitstream"
)

// MaxCodeLength is the longest code DEFLATE allows.
const MaxCodeLength = 15

// Kind classifies a decode table entry.
type Kind uint8

const (
	Invalid Kind = iota
	Literal
	Length
	Distance
	EndOfBlock
	Link
)

func (k Kind) String() string {
	switch k {
	case Literal:
		return "literal"
	case Length:
		return "length"
	case Distance:
		return "distance"
	case EndOfBlock:
		return "end-of-block"
	case Link:
		return "link"
	default:
		return "invalid"
	}
}

// Entry is one slot of a DecodeTable.
//
// Bits is the number of code bits resolved at the entry's level: the whole
// code length in the root table, the remainder past the root in a subtable.
// For a Link, Bits is the width of the subtable and Base its offset.
type Entry struct {
	Kind  Kind
	Bits  uint8
	Extra uint8
	Base  uint16
}

// SymbolMapper describes what a symbol decodes to. The builder fills in Bits.
type SymbolMapper func(symbol int) Entry

// BitSource is the cursor a DecodeTable reads codes from.
type BitSource interface {
	PeekBits(n uint) uint32
	Available() uint
	Consume(n uint) error
}

// DecodeTable is a two-level lookup table addressed by the next RootBits
// bits of the stream. Entries holds the root table followed by every
// subtable; Link entries refer to subtables by offset.
type DecodeTable struct {
	RootBits int
	Symbols  int
	Entries  []Entry
}

// BuildDecodeTable builds a table for a complete canonical code.
// Incomplete and over-subscribed length sets are rejected.
func BuildDecodeTable(lengths []uint8, rootBits int, mapper SymbolMapper) (*DecodeTable, error) {
	return buildDecodeTable(lengths, rootBits, mapper, false)
}

// BuildSparseDecodeTable is BuildDecodeTable but also accepts the two
// incomplete shapes DEFLATE streams legitimately carry: no codes at all,
// and a single code of length one. Unused bit patterns decode as Invalid.
func BuildSparseDecodeTable(lengths []uint8, rootBits int, mapper SymbolMapper) (*DecodeTable, error) {
	return buildDecodeTable(lengths, rootBits, mapper, true)
}

func buildDecodeTable(lengths []uint8, rootBits int, mapper SymbolMapper, sparse bool) (*DecodeTable, error) {
	if rootBits < 1 || rootBits > MaxCodeLength {
		return nil, errors.Errorf("huffman: root width %d out of range", rootBits)
	}

	count, err := histogram(lengths)
	if err != nil {
		return nil, err
	}
	used := 0
	maxLen := 0
	for l := 1; l <= MaxCodeLength; l++ {
		used += count[l]
		if count[l] > 0 {
			maxLen = l
		}
	}
	if err := kraft(count, used, sparse); err != nil {
		return nil, err
	}

	root := rootBits
	if maxLen > 0 && maxLen < root {
		root = maxLen
	}
	if maxLen == 0 {
		root = 1
	}
	rootSize := 1 << root

	codes := assign(lengths, count)

	// Subtable width per root prefix is set by the longest code sharing it.
	var subMax []uint8
	for sym, l := range lengths {
		if int(l) <= root {
			continue
		}
		if subMax == nil {
			subMax = make([]uint8, rootSize)
		}
		prefix := codes[sym] & uint16(rootSize-1)
		if l > subMax[prefix] {
			subMax[prefix] = l
		}
	}

	total := rootSize
	offsets := make([]int, len(subMax))
	for prefix, l := range subMax {
		if l == 0 {
			continue
		}
		offsets[prefix] = total
		total += 1 << (int(l) - root)
	}
	if total > 1<<16 {
		return nil, errors.Errorf("huffman: table of %d entries exceeds addressable range", total)
	}

	entries := make([]Entry, total)
	for prefix, l := range subMax {
		if l == 0 {
			continue
		}
		entries[prefix] = Entry{Kind: Link, Bits: l - uint8(root), Base: uint16(offsets[prefix])}
	}

	for sym, l := range lengths {
		if l == 0 {
			continue
		}
		e := mapper(sym)
		rev := int(codes[sym])
		if int(l) <= root {
			e.Bits = l
			for i := rev; i < rootSize; i += 1 << l {
				entries[i] = e
			}
			continue
		}
		prefix := rev & (rootSize - 1)
		width := int(subMax[prefix]) - root
		e.Bits = l - uint8(root)
		base := offsets[prefix]
		for i := rev >> root; i < 1<<width; i += 1 << (int(l) - root) {
			entries[base+i] = e
		}
	}

	return &DecodeTable{
		RootBits: root,
		Symbols:  used,
		Entries:  entries,
	}, nil
}

// Lookup resolves a bit window (next bits of the stream, LSB first) to an
// entry and the total code length it spans. Invalid entries report 0.
func (t *DecodeTable) Lookup(window uint32) (Entry, int) {
	e := t.Entries[window&(1<<t.RootBits-1)]
	if e.Kind != Link {
		if e.Kind == Invalid {
			return e, 0
		}
		return e, int(e.Bits)
	}
	idx := int(e.Base) + int((window>>t.RootBits)&(1<<e.Bits-1))
	sub := t.Entries[idx]
	if sub.Kind == Invalid {
		return sub, 0
	}
	return sub, t.RootBits + int(sub.Bits)
}

// Decode reads one code from src. An Invalid entry is returned without
// consuming input so the caller can report where decoding stopped.
func (t *DecodeTable) Decode(src BitSource) (Entry, error) {
	e, n := t.Lookup(src.PeekBits(MaxCodeLength))
	if n == 0 {
		return e, nil
	}
	if uint(n) > src.Available() {
		return Entry{}, bitstream.ErrUnexpectedEOF
	}
	if err := src.Consume(uint(n)); err != nil {
		return Entry{}, err
	}
	return e, nil
}

// Code is an encode table entry: the canonical code already bit-reversed
// for LSB-first packing, and its length.
type Code struct {
	Bits uint16
	Len  uint8
}

// CanonicalCodes assigns canonical codes to lengths in symbol order within
// each length class. Over-subscribed sets are rejected; incomplete sets are
// accepted only in the sparse shapes BuildSparseDecodeTable accepts.
func CanonicalCodes(lengths []uint8) ([]Code, error) {
	count, err := histogram(lengths)
	if err != nil {
		return nil, err
	}
	used := 0
	for l := 1; l <= MaxCodeLength; l++ {
		used += count[l]
	}
	if err := kraft(count, used, true); err != nil {
		return nil, err
	}
	rev := assign(lengths, count)
	codes := make([]Code, len(lengths))
	for sym, l := range lengths {
		if l == 0 {
			continue
		}
		codes[sym] = Code{Bits: rev[sym], Len: l}
	}
	return codes, nil
}

// Kraft checks that lengths describe a complete prefix code.
func Kraft(lengths []uint8) error {
	count, err := histogram(lengths)
	if err != nil {
		return err
	}
	used := 0
	for l := 1; l <= MaxCodeLength; l++ {
		used += count[l]
	}
	return kraft(count, used, false)
}

func histogram(lengths []uint8) ([MaxCodeLength + 1]int, error) {
	var count [MaxCodeLength + 1]int
	for sym, l := range lengths {
		if l > MaxCodeLength {
			return count, errors.Wrapf(ErrInvalidLength, "symbol %d has length %d", sym, l)
		}
		count[l]++
	}
	count[0] = 0
	return count, nil
}

func kraft(count [MaxCodeLength + 1]int, used int, sparse bool) error {
	left := 1
	for l := 1; l <= MaxCodeLength; l++ {
		left <<= 1
		left -= count[l]
		if left < 0 {
			return Oversubscribed
		}
	}
	if left == 0 {
		return nil
	}
	if sparse && (used == 0 || (used == 1 && count[1] == 1)) {
		return nil
	}
	return Incomplete
}

// assign returns each symbol's canonical code, bit-reversed to its length.
func assign(lengths []uint8, count [MaxCodeLength + 1]int) []uint16 {
	var next [MaxCodeLength + 1]int
	code := 0
	for l := 1; l <= MaxCodeLength; l++ {
		code = (code + count[l-1]) << 1
		next[l] = code
	}
	rev := make([]uint16, len(lengths))
	for sym, l := range lengths {
		if l == 0 {
			continue
		}
		rev[sym] = bits.Reverse16(uint16(next[l])) >> (16 - l)
		next[l]++
	}
	return rev
}
