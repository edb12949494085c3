package huffman

import "github.com/pkg/errors"

// TreeError reports a length set that does not describe a prefix code.
type TreeError int

const (
	// Incomplete means the lengths leave part of the code space unused.
	Incomplete TreeError = iota + 1
	// Oversubscribed means the lengths claim more code space than exists.
	Oversubscribed
)

func (e TreeError) Error() string {
	switch e {
	case Incomplete:
		return "huffman: incomplete code length set"
	case Oversubscribed:
		return "huffman: over-subscribed code length set"
	default:
		return "huffman: invalid code length set"
	}
}

var (
	// ErrInvalidLength is returned for a code length above MaxCodeLength.
	ErrInvalidLength = errors.New("huffman: code length out of range")
	// ErrTooManySymbols is returned when a length limit cannot fit every symbol.
	ErrTooManySymbols = errors.New("huffman: too many symbols for length limit")
	// ErrTooFewSymbols is returned for an alphabet smaller than two symbols.
	ErrTooFewSymbols = errors.New("huffman: alphabet needs at least two symbols")
)
