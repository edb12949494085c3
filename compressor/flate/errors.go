package flate

import (
	"github.com/pkg/errors"

	"github.com/FitrahHaque/flate-engine/compressor/bitstream"
)

var (
	// ErrUnexpectedEOF is returned when the stream ends inside a block.
	ErrUnexpectedEOF = bitstream.ErrUnexpectedEOF
	// ErrInvalidCode is returned when a code decodes to a reserved symbol.
	ErrInvalidCode = errors.New("flate: invalid code")
	// ErrUnsupportedBlockType is returned for block types the decoder does not handle.
	ErrUnsupportedBlockType = errors.New("flate: unsupported block type")
	// ErrRLEProtocol is returned for a malformed code-length sequence.
	ErrRLEProtocol = errors.New("flate: code length repeat protocol violation")
	// ErrCorruptStored is returned when a stored block's length check fails.
	ErrCorruptStored = errors.New("flate: stored block length mismatch")
	// ErrBadHeader is returned for an invalid zlib stream header.
	ErrBadHeader = errors.New("flate: invalid zlib header")
	// ErrDistanceTooFar is returned when a match reaches before the output start.
	ErrDistanceTooFar = errors.New("flate: match distance exceeds output")
	// ErrInvalidToken is returned when a token cannot be encoded.
	ErrInvalidToken = errors.New("flate: token cannot be encoded")
)
