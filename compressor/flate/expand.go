package flate

import (
	"io"

	"github.com/pkg/errors"
)

// Expand appends the bytes tokens stand for to dst. Matches may only reach
// back into bytes produced by this call.
func Expand(dst []byte, tokens []Token) ([]byte, error) {
	base := len(dst)
	var err error
	for _, t := range tokens {
		if dst, err = expandToken(dst, base, t); err != nil {
			return dst, err
		}
	}
	return dst, nil
}

// Inflate decodes a raw DEFLATE stream to bytes. On error it returns the
// output produced so far.
func Inflate(src []byte, opts ...DecoderOption) ([]byte, error) {
	d := NewDecoder(src, opts...)
	var out []byte
	for {
		t, err := d.Next()
		if err == io.EOF {
			return out, nil
		}
		if err != nil {
			return out, err
		}
		if out, err = expandToken(out, 0, t); err != nil {
			return out, err
		}
	}
}

func expandToken(dst []byte, base int, t Token) ([]byte, error) {
	if t.Kind == LiteralToken {
		return append(dst, t.Value), nil
	}
	d := int(t.Distance)
	if d < 1 || d > len(dst)-base {
		return dst, errors.Wrapf(ErrDistanceTooFar, "distance %d with %d bytes of output", d, len(dst)-base)
	}
	// Copy forward byte by byte so overlapping matches repeat their source.
	start := len(dst) - d
	for i := 0; i < int(t.Length); i++ {
		dst = append(dst, dst[start+i])
	}
	return dst, nil
}
