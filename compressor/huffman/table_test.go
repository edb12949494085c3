package huffman

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FitrahHaque/flate-engine/compressor/bitstream"
)

func identity(sym int) Entry {
	return Entry{Kind: Literal, Base: uint16(sym)}
}

// fixedLitLen is the literal/length length set of static DEFLATE blocks.
func fixedLitLen() []uint8 {
	lengths := make([]uint8, 288)
	for i := range lengths {
		switch {
		case i < 144:
			lengths[i] = 8
		case i < 256:
			lengths[i] = 9
		case i < 280:
			lengths[i] = 7
		default:
			lengths[i] = 8
		}
	}
	return lengths
}

func TestCanonicalCodesRFCExample(t *testing.T) {
	// A..H from RFC 1951 section 3.2.2.
	codes, err := CanonicalCodes([]uint8{3, 3, 3, 3, 3, 2, 4, 4})
	require.NoError(t, err)

	want := []Code{
		{Bits: 0b010, Len: 3}, // 010
		{Bits: 0b110, Len: 3}, // 011
		{Bits: 0b001, Len: 3}, // 100
		{Bits: 0b101, Len: 3}, // 101
		{Bits: 0b011, Len: 3}, // 110
		{Bits: 0b00, Len: 2},  // 00
		{Bits: 0b0111, Len: 4},
		{Bits: 0b1111, Len: 4},
	}
	assert.Equal(t, want, codes)
}

func TestKraft(t *testing.T) {
	tests := []struct {
		name    string
		lengths []uint8
		want    error
	}{
		{"complete", []uint8{1, 2, 3, 3}, nil},
		{"complete with unused", []uint8{0, 2, 2, 0, 2, 2}, nil},
		{"incomplete", []uint8{1, 2}, Incomplete},
		{"single code", []uint8{1}, Incomplete},
		{"empty", []uint8{0, 0, 0}, Incomplete},
		{"oversubscribed", []uint8{1, 1, 1}, Oversubscribed},
		{"deep oversubscribed", []uint8{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 15, 15}, Oversubscribed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Kraft(tt.lengths)
			if tt.want == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestBuildDecodeTableRejectsBadLengths(t *testing.T) {
	_, err := BuildDecodeTable([]uint8{1, 2}, 9, identity)
	assert.ErrorIs(t, err, Incomplete)

	_, err = BuildDecodeTable([]uint8{1, 1, 2}, 9, identity)
	assert.ErrorIs(t, err, Oversubscribed)

	_, err = BuildDecodeTable([]uint8{1, 16}, 9, identity)
	assert.ErrorIs(t, err, ErrInvalidLength)

	_, err = BuildDecodeTable([]uint8{1, 1}, 0, identity)
	assert.Error(t, err)
}

func TestBuildSparseDecodeTable(t *testing.T) {
	table, err := BuildSparseDecodeTable([]uint8{0, 0, 0}, 6, identity)
	require.NoError(t, err)
	assert.Equal(t, 0, table.Symbols)
	assert.Equal(t, 1, table.RootBits)

	table, err = BuildSparseDecodeTable([]uint8{0, 1}, 6, identity)
	require.NoError(t, err)
	assert.Equal(t, 1, table.Symbols)

	e, n := table.Lookup(0)
	assert.Equal(t, Literal, e.Kind)
	assert.Equal(t, uint16(1), e.Base)
	assert.Equal(t, 1, n)

	e, n = table.Lookup(1)
	assert.Equal(t, Invalid, e.Kind)
	assert.Equal(t, 0, n)

	_, err = BuildDecodeTable([]uint8{0, 1}, 6, identity)
	assert.ErrorIs(t, err, Incomplete)

	_, err = BuildSparseDecodeTable([]uint8{2, 2, 0}, 6, identity)
	assert.ErrorIs(t, err, Incomplete)
}

func TestBuildDecodeTableShrinksRoot(t *testing.T) {
	table, err := BuildDecodeTable([]uint8{1, 2, 2}, 9, identity)
	require.NoError(t, err)
	assert.Equal(t, 2, table.RootBits)
	assert.Len(t, table.Entries, 4)
	assert.Equal(t, 3, table.Symbols)
}

func TestBuildDecodeTableDeterministic(t *testing.T) {
	lengths := fixedLitLen()
	a, err := BuildDecodeTable(lengths, 7, identity)
	require.NoError(t, err)
	b, err := BuildDecodeTable(lengths, 7, identity)
	require.NoError(t, err)
	assert.Equal(t, a, b)

	ca, err := CanonicalCodes(lengths)
	require.NoError(t, err)
	cb, err := CanonicalCodes(lengths)
	require.NoError(t, err)
	assert.Equal(t, ca, cb)
}

func TestDecodeRoundTrip(t *testing.T) {
	tests := []struct {
		name     string
		lengths  []uint8
		rootBits int
	}{
		{"fixed single level", fixedLitLen(), 9},
		{"fixed with subtables", fixedLitLen(), 7},
		{"skewed", []uint8{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 15}, 9},
		{"skewed narrow root", []uint8{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 15}, 4},
		{"code length alphabet", []uint8{3, 0, 4, 4, 3, 3, 3, 0, 4, 0, 4, 0, 4, 5, 0, 5, 5, 5, 4}, 7},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			codes, err := CanonicalCodes(tt.lengths)
			require.NoError(t, err)
			table, err := BuildDecodeTable(tt.lengths, tt.rootBits, identity)
			require.NoError(t, err)

			var symbols []int
			for round := 0; round < 3; round++ {
				for sym, l := range tt.lengths {
					if l > 0 {
						symbols = append(symbols, sym)
					}
				}
			}

			var buf bytes.Buffer
			bw := bitstream.NewWriter(&buf)
			for _, sym := range symbols {
				bw.WriteBits(uint32(codes[sym].Bits), uint(codes[sym].Len))
			}
			require.NoError(t, bw.Flush())

			br := bitstream.NewReader(buf.Bytes())
			for i, sym := range symbols {
				e, err := table.Decode(br)
				require.NoError(t, err, "symbol %d", i)
				require.Equal(t, Literal, e.Kind, "symbol %d", i)
				require.Equal(t, uint16(sym), e.Base, "symbol %d", i)
			}
		})
	}
}

func TestDecodeTruncatedCode(t *testing.T) {
	table, err := BuildDecodeTable([]uint8{1, 2, 2}, 9, identity)
	require.NoError(t, err)

	// The last bit is a 1, the first bit of a two-bit code.
	br := bitstream.NewReader([]byte{0x80})
	require.NoError(t, br.Consume(7))

	_, err = table.Decode(br)
	assert.ErrorIs(t, err, bitstream.ErrUnexpectedEOF)
}

func TestKindString(t *testing.T) {
	assert.Equal(t, "literal", Literal.String())
	assert.Equal(t, "end-of-block", EndOfBlock.String())
	assert.Equal(t, "invalid", Kind(200).String())
	assert.Equal(t, "huffman: incomplete code length set", Incomplete.Error())
}
