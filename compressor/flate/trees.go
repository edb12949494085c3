package flate

import (
	"github.com/pkg/errors"

	"github.com/FitrahHaque/flate-engine/compressor/huffman"
)

// Trees holds the encode tables of one dynamic block. CodeLen codes the
// run-length coded lengths of LitLen and Dist in the block header.
type Trees struct {
	LitLen  []huffman.Code
	Dist    []huffman.Code
	CodeLen []huffman.Code
}

type treeHeader struct {
	nlen  int
	ndist int
	ncode int
	rle   []RLESymbol
}

// BuildTrees derives length-limited Huffman trees from the symbol
// frequencies of tokens. The end-of-block symbol always gets a code.
func BuildTrees(tokens []Token) (*Trees, error) {
	litFreq := make([]int, maxLitLenCodes)
	distFreq := make([]int, numDistCodes)
	litFreq[endOfBlock] = 1
	for i, t := range tokens {
		if err := t.validate(); err != nil {
			return nil, errors.Wrapf(err, "token %d", i)
		}
		if t.Kind == LiteralToken {
			litFreq[t.Value]++
			continue
		}
		lc, _, _ := lengthToCode(int(t.Length))
		litFreq[firstLengthCode+lc]++
		dc, _, _ := distanceToCode(int(t.Distance))
		distFreq[dc]++
	}

	litLens, err := huffman.Lengths(litFreq, huffman.MaxCodeLength)
	if err != nil {
		return nil, errors.Wrap(err, "literal/length lengths")
	}
	distLens, err := huffman.Lengths(distFreq, huffman.MaxCodeLength)
	if err != nil {
		return nil, errors.Wrap(err, "distance lengths")
	}
	return NewTrees(litLens, distLens)
}

// NewTrees builds encode tables from code lengths computed elsewhere: at
// most 286 literal/length and 30 distance lengths. The code-length tree is
// derived from the lengths' run-length coding.
func NewTrees(litLens, distLens []uint8) (*Trees, error) {
	if len(litLens) <= endOfBlock || len(litLens) > maxLitLenCodes {
		return nil, errors.Errorf("flate: %d literal/length code lengths", len(litLens))
	}
	if len(distLens) == 0 || len(distLens) > numDistCodes {
		return nil, errors.Errorf("flate: %d distance code lengths", len(distLens))
	}
	if litLens[endOfBlock] == 0 {
		return nil, errors.Wrap(ErrInvalidToken, "end-of-block symbol has no code")
	}

	lit, err := huffman.CanonicalCodes(litLens)
	if err != nil {
		return nil, errors.Wrap(err, "literal/length tree")
	}
	dist, err := huffman.CanonicalCodes(distLens)
	if err != nil {
		return nil, errors.Wrap(err, "distance tree")
	}
	t := &Trees{LitLen: lit, Dist: dist}

	freq := make([]int, numCodeLenCodes)
	for _, s := range t.rle() {
		freq[s.Symbol]++
	}
	clLens, err := huffman.Lengths(freq, maxCodeLenLength)
	if err != nil {
		return nil, errors.Wrap(err, "code length lengths")
	}
	if t.CodeLen, err = huffman.CanonicalCodes(clLens); err != nil {
		return nil, errors.Wrap(err, "code length tree")
	}
	return t, nil
}

// counts returns HLIT and HDIST before their bias is removed.
func (t *Trees) counts() (nlen, ndist int) {
	nlen = firstLengthCode
	for i := min(len(t.LitLen), maxLitLenCodes) - 1; i >= firstLengthCode; i-- {
		if t.LitLen[i].Len > 0 {
			nlen = i + 1
			break
		}
	}
	ndist = 1
	for i := min(len(t.Dist), numDistCodes) - 1; i >= 1; i-- {
		if t.Dist[i].Len > 0 {
			ndist = i + 1
			break
		}
	}
	return nlen, ndist
}

// rle returns the literal/length lengths and the distance lengths, each run
// length coded on its own.
func (t *Trees) rle() []RLESymbol {
	nlen, ndist := t.counts()
	syms := RLEEncode(codeLengths(t.LitLen, nlen))
	return append(syms, RLEEncode(codeLengths(t.Dist, ndist))...)
}

func (t *Trees) header() (*treeHeader, error) {
	if codeLen(t.LitLen, endOfBlock) == 0 {
		return nil, errors.Wrap(ErrInvalidToken, "end-of-block symbol has no code")
	}
	for sym := 0; sym < len(t.CodeLen); sym++ {
		if t.CodeLen[sym].Len > maxCodeLenLength {
			return nil, errors.Wrapf(huffman.ErrInvalidLength, "code length symbol %d has length %d", sym, t.CodeLen[sym].Len)
		}
	}
	h := &treeHeader{rle: t.rle()}
	h.nlen, h.ndist = t.counts()
	for _, s := range h.rle {
		if codeLen(t.CodeLen, int(s.Symbol)) == 0 {
			return nil, errors.Wrapf(ErrInvalidToken, "code length symbol %d has no code", s.Symbol)
		}
	}
	h.ncode = 4
	for i := numCodeLenCodes - 1; i >= 4; i-- {
		if codeLen(t.CodeLen, codeLengthOrder[i]) > 0 {
			h.ncode = i + 1
			break
		}
	}
	return h, nil
}

func codeLen(codes []huffman.Code, sym int) uint8 {
	if sym >= len(codes) {
		return 0
	}
	return codes[sym].Len
}

func codeLengths(codes []huffman.Code, n int) []uint8 {
	lengths := make([]uint8, n)
	for i := range lengths {
		lengths[i] = codeLen(codes, i)
	}
	return lengths
}
