package flate

import (
	"math"

	"github.com/pkg/errors"
)

const (
	repeatPrevious = 16
	repeatZero     = 17
	repeatZeroLong = 18
)

// RLESymbol is one code-length alphabet symbol and the value of its extra
// bits (zero for plain lengths 0..15).
type RLESymbol struct {
	Symbol uint8
	Extra  uint8
}

// RLEEncode run-length codes a code length array with the repeat symbols
// 16, 17 and 18. A non-zero length is sent once before its repeats unless
// it continues the previous run, and runs shorter than the minimum repeat
// are sent literally.
func RLEEncode(lengths []uint8) []RLESymbol {
	var out []RLESymbol
	if len(lengths) == 0 {
		return out
	}
	prevLen := -1
	nextLen := int(lengths[0])
	count := 0
	maxCount, minCount := 7, 4
	if nextLen == 0 {
		maxCount, minCount = 138, 3
	}

	for n := range lengths {
		curLen := nextLen
		if n+1 < len(lengths) {
			nextLen = int(lengths[n+1])
		} else {
			nextLen = -1
		}

		count++
		if count < maxCount && curLen == nextLen {
			continue
		}

		switch {
		case count < minCount:
			for ; count > 0; count-- {
				out = append(out, RLESymbol{Symbol: uint8(curLen)})
			}
		case curLen != 0:
			if curLen != prevLen {
				out = append(out, RLESymbol{Symbol: uint8(curLen)})
				count--
			}
			out = append(out, RLESymbol{Symbol: repeatPrevious, Extra: uint8(count - 3)})
		case count <= 10:
			out = append(out, RLESymbol{Symbol: repeatZero, Extra: uint8(count - 3)})
		default:
			out = append(out, RLESymbol{Symbol: repeatZeroLong, Extra: uint8(count - 11)})
		}

		count = 0
		prevLen = curLen
		switch {
		case nextLen == 0:
			maxCount, minCount = 138, 3
		case curLen == nextLen:
			maxCount, minCount = 6, 3
		default:
			maxCount, minCount = 7, 4
		}
	}
	return out
}

// RLEDecode expands a symbol sequence produced by RLEEncode.
func RLEDecode(symbols []RLESymbol) ([]uint8, error) {
	var lengths []uint8
	var err error
	for _, s := range symbols {
		if lengths, err = expandRLE(lengths, s.Symbol, s.Extra, math.MaxInt); err != nil {
			return lengths, err
		}
	}
	return lengths, nil
}

// extraBitsOf returns how many raw bits follow a code-length symbol.
func extraBitsOf(sym uint8) uint {
	if sym < repeatPrevious {
		return 0
	}
	return uint(rleAlphabets[sym-repeatPrevious].extraBits)
}

// expandRLE appends the lengths one code-length symbol stands for, never
// growing dst past limit entries.
func expandRLE(dst []uint8, sym, extra uint8, limit int) ([]uint8, error) {
	if sym < repeatPrevious {
		if len(dst) >= limit {
			return dst, errors.Wrap(ErrRLEProtocol, "code lengths overrun the declared count")
		}
		return append(dst, sym), nil
	}
	if int(sym) > repeatZeroLong {
		return dst, errors.Wrapf(ErrRLEProtocol, "unknown code length symbol %d", sym)
	}
	a := rleAlphabets[sym-repeatPrevious]
	n := a.minRepeat + int(extra)
	if n > a.maxRepeat {
		return dst, errors.Wrapf(ErrRLEProtocol, "repeat count %d exceeds %d", n, a.maxRepeat)
	}
	var value uint8
	if sym == repeatPrevious {
		if len(dst) == 0 {
			return dst, errors.Wrap(ErrRLEProtocol, "repeat of previous length with no previous length")
		}
		value = dst[len(dst)-1]
	}
	if len(dst)+n > limit {
		return dst, errors.Wrapf(ErrRLEProtocol, "repeat of %d overruns the declared count", n)
	}
	for i := 0; i < n; i++ {
		dst = append(dst, value)
	}
	return dst, nil
}
