package flate

import "github.com/FitrahHaque/flate-engine/compressor/huffman"

const (
	endOfBlock       = 256
	firstLengthCode  = 257
	numLengthCodes   = 29
	numLitLenSymbols = 288 // 286 and 287 are placeholders
	numDistCodes     = 30
	numDistSymbols   = 32 // 30 and 31 are placeholders
	numCodeLenCodes  = 19

	maxLitLenCodes = 286

	litLenRootBits  = 9
	distRootBits    = 6
	codeLenRootBits = 7

	maxCodeLenLength = 7

	maxAllowedMatchLength      = 258
	minAllowedMatchLength      = 3
	maxAllowedBackwardDistance = 32768
	maxStoredBlockLength       = 65535
)

type alphabet struct {
	extraBits uint8
	base      uint16
}

// lenAlphabets is indexed by length code - 257.
var lenAlphabets = [numLengthCodes]alphabet{
	{0, 3}, {0, 4}, {0, 5}, {0, 6}, {0, 7}, {0, 8}, {0, 9}, {0, 10},
	{1, 11}, {1, 13}, {1, 15}, {1, 17},
	{2, 19}, {2, 23}, {2, 27}, {2, 31},
	{3, 35}, {3, 43}, {3, 51}, {3, 59},
	{4, 67}, {4, 83}, {4, 99}, {4, 115},
	{5, 131}, {5, 163}, {5, 195}, {5, 227},
	{0, 258},
}

var distAlphabets = [numDistCodes]alphabet{
	{0, 1}, {0, 2}, {0, 3}, {0, 4},
	{1, 5}, {1, 7}, {2, 9}, {2, 13},
	{3, 17}, {3, 25}, {4, 33}, {4, 49},
	{5, 65}, {5, 97}, {6, 129}, {6, 193},
	{7, 257}, {7, 385}, {8, 513}, {8, 769},
	{9, 1025}, {9, 1537}, {10, 2049}, {10, 3073},
	{11, 4097}, {11, 6145}, {12, 8193}, {12, 12289},
	{13, 16385}, {13, 24577},
}

// rleAlphabets is indexed by code-length symbol - 16.
var rleAlphabets = [3]struct {
	extraBits uint8
	minRepeat int
	maxRepeat int
}{
	{2, 3, 6},
	{3, 3, 10},
	{7, 11, 138},
}

// codeLengthOrder is the order code-length code lengths are transmitted in.
var codeLengthOrder = [numCodeLenCodes]int{16, 17, 18, 0, 8, 7, 9, 6, 10, 5, 11, 4, 12, 3, 13, 2, 14, 1, 15}

var (
	// lengthCode maps match length - 3 to a length code - 257.
	lengthCode [maxAllowedMatchLength - minAllowedMatchLength + 1]uint8
	// distCode maps distance - 1 below 256 directly, and (distance - 1) >> 7
	// at offset 256 above it.
	distCode [512]uint8
)

func init() {
	for code, a := range lenAlphabets {
		span := 1 << a.extraBits
		for i := 0; i < span; i++ {
			l := int(a.base) + i - minAllowedMatchLength
			if l < len(lengthCode) {
				lengthCode[l] = uint8(code)
			}
		}
	}
	for code, a := range distAlphabets {
		span := 1 << a.extraBits
		for i := 0; i < span; i++ {
			d := int(a.base) + i - 1
			if d < 256 {
				distCode[d] = uint8(code)
			} else {
				distCode[256+(d>>7)] = uint8(code)
			}
		}
	}
}

func lengthToCode(length int) (code int, extra uint8, offset uint32) {
	code = int(lengthCode[length-minAllowedMatchLength])
	a := lenAlphabets[code]
	return code, a.extraBits, uint32(length - int(a.base))
}

func distanceToCode(distance int) (code int, extra uint8, offset uint32) {
	d := distance - 1
	if d < 256 {
		code = int(distCode[d])
	} else {
		code = int(distCode[256+(d>>7)])
	}
	a := distAlphabets[code]
	return code, a.extraBits, uint32(distance - int(a.base))
}

func litLenMapper(sym int) huffman.Entry {
	switch {
	case sym < endOfBlock:
		return huffman.Entry{Kind: huffman.Literal, Base: uint16(sym)}
	case sym == endOfBlock:
		return huffman.Entry{Kind: huffman.EndOfBlock, Base: endOfBlock}
	case sym < firstLengthCode+numLengthCodes:
		a := lenAlphabets[sym-firstLengthCode]
		return huffman.Entry{Kind: huffman.Length, Extra: a.extraBits, Base: a.base}
	default:
		return huffman.Entry{Kind: huffman.Invalid}
	}
}

func distMapper(sym int) huffman.Entry {
	if sym < numDistCodes {
		a := distAlphabets[sym]
		return huffman.Entry{Kind: huffman.Distance, Extra: a.extraBits, Base: a.base}
	}
	return huffman.Entry{Kind: huffman.Invalid}
}

func codeLenMapper(sym int) huffman.Entry {
	return huffman.Entry{Kind: huffman.Literal, Base: uint16(sym)}
}

// fixedLengths returns the literal/length and distance lengths of the
// static Huffman block type.
func fixedLengths() (lit, dist []uint8) {
	lit = make([]uint8, numLitLenSymbols)
	for i := range lit {
		switch {
		case i < 144:
			lit[i] = 8
		case i < 256:
			lit[i] = 9
		case i < 280:
			lit[i] = 7
		default:
			lit[i] = 8
		}
	}
	dist = make([]uint8, numDistSymbols)
	for i := range dist {
		dist[i] = 5
	}
	return lit, dist
}
