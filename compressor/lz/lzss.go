package lz

import (
	"github.com/FitrahHaque/flate-engine/compressor/flate"
)

const (
	hashBits = 15
	hashSize = 1 << hashBits
	hashMul  = uint32(0x1e35a7bd)

	minMatch = 3
	maxMatch = 258

	// MaxWindowSize is the farthest back a DEFLATE match may reach.
	MaxWindowSize = 32768
)

// Options bounds the match search.
type Options struct {
	// WindowSize is the largest distance considered, at most MaxWindowSize.
	WindowSize int
	// MaxChain is the number of earlier positions probed per hash bucket.
	MaxChain int
}

func DefaultOptions() Options {
	return Options{
		WindowSize: MaxWindowSize,
		MaxChain:   64,
	}
}

func hash3(b []byte) uint32 {
	key := uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16
	return (key * hashMul) >> (32 - hashBits)
}

func matchLength(earlier, current []byte, limit int) int {
	n := 0
	for n < limit && earlier[n] == current[n] {
		n++
	}
	return n
}

// Tokenize greedily splits data into literals and back-references using a
// hash chain over 3-byte prefixes. Matches never reach before data[0], so
// every block tokenized on its own starts with a fresh window.
func Tokenize(data []byte, opts Options) []flate.Token {
	window := opts.WindowSize
	if window <= 0 || window > MaxWindowSize {
		window = MaxWindowSize
	}
	chain := max(opts.MaxChain, 1)

	tokens := make([]flate.Token, 0, len(data)/2+1)
	head := make([]int32, hashSize)
	for i := range head {
		head[i] = -1
	}
	prev := make([]int32, len(data))

	insert := func(i int) {
		if i+minMatch > len(data) {
			return
		}
		h := hash3(data[i:])
		prev[i] = head[h]
		head[h] = int32(i)
	}

	for i := 0; i < len(data); {
		bestLen, bestDist := 0, 0
		if i+minMatch <= len(data) {
			limit := min(maxMatch, len(data)-i)
			probes := 0
			for cand := head[hash3(data[i:])]; cand >= 0 && probes < chain; cand = prev[cand] {
				probes++
				dist := i - int(cand)
				if dist > window {
					break
				}
				if l := matchLength(data[cand:], data[i:], limit); l > bestLen {
					bestLen, bestDist = l, dist
					if l == limit {
						break
					}
				}
			}
		}

		if bestLen < minMatch {
			tokens = append(tokens, flate.Literal(data[i]))
			insert(i)
			i++
			continue
		}
		tokens = append(tokens, flate.Match(bestLen, bestDist))
		for end := i + bestLen; i < end; i++ {
			insert(i)
		}
	}
	return tokens
}
