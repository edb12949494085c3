package flate

import (
	"fmt"

	"github.com/pkg/errors"
)

type TokenKind uint8

const (
	LiteralToken TokenKind = iota
	MatchToken
)

// Token is one LZ77 symbol: a literal byte or a back-reference of Length
// bytes starting Distance bytes behind the current output position.
type Token struct {
	Kind     TokenKind
	Value    byte
	Length   uint16
	Distance uint16
}

// Literal returns a literal token.
func Literal(b byte) Token {
	return Token{Kind: LiteralToken, Value: b}
}

// Match returns a back-reference token.
func Match(length, distance int) Token {
	return Token{Kind: MatchToken, Length: uint16(length), Distance: uint16(distance)}
}

func (t Token) String() string {
	if t.Kind == LiteralToken {
		return fmt.Sprintf("lit(%#02x)", t.Value)
	}
	return fmt.Sprintf("match(%d,%d)", t.Length, t.Distance)
}

func (t Token) validate() error {
	if t.Kind == LiteralToken {
		return nil
	}
	if t.Kind != MatchToken {
		return errors.Wrapf(ErrInvalidToken, "unknown token kind %d", t.Kind)
	}
	if t.Length < minAllowedMatchLength || t.Length > maxAllowedMatchLength {
		return errors.Wrapf(ErrInvalidToken, "match length %d out of range", t.Length)
	}
	if t.Distance < 1 || int(t.Distance) > maxAllowedBackwardDistance {
		return errors.Wrapf(ErrInvalidToken, "match distance %d out of range", t.Distance)
	}
	return nil
}
