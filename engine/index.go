package engine

import (
	"io"

	"github.com/pkg/errors"
	"github.com/ugorji/go/codec"
)

const (
	IndexVersion = 1
	IndexSuffix  = ".idx"
)

var msgpackHandle = &codec.MsgpackHandle{}

// BlockInfo locates one engine block in both the raw input and the
// compressed stream.
type BlockInfo struct {
	RawOffset      int64 `codec:"raw_offset"`
	RawSize        int   `codec:"raw_size"`
	Offset         int64 `codec:"offset"`
	CompressedSize int   `codec:"compressed_size"`
	Stored         bool  `codec:"stored"`
}

// Index is the block layout of a stream produced by Engine.Compress.
type Index struct {
	Version   int         `codec:"version"`
	BlockSize int         `codec:"block_size"`
	RawSize   int64       `codec:"raw_size"`
	Blocks    []BlockInfo `codec:"blocks"`
}

// CompressedSize returns the total size of all blocks, without the
// terminating final block.
func (idx *Index) CompressedSize() int64 {
	var n int64
	for _, b := range idx.Blocks {
		n += int64(b.CompressedSize)
	}
	return n
}

// Encode writes idx to w as msgpack.
func (idx *Index) Encode(w io.Writer) error {
	if err := codec.NewEncoder(w, msgpackHandle).Encode(idx); err != nil {
		return errors.Wrap(err, "unable to encode index")
	}
	return nil
}

// DecodeIndex reads a msgpack index written by Index.Encode.
func DecodeIndex(r io.Reader) (*Index, error) {
	idx := &Index{}
	if err := codec.NewDecoder(r, msgpackHandle).Decode(idx); err != nil {
		return nil, errors.Wrap(err, "unable to decode index")
	}
	if idx.Version != IndexVersion {
		return nil, errors.Errorf("unsupported index version %d", idx.Version)
	}
	return idx, nil
}

// validate checks that blocks tile both the raw output and the first part
// of a compressed stream of size streamSize.
func (idx *Index) validate(streamSize int64) error {
	if idx == nil {
		return errors.New("index cannot be nil")
	}
	var raw, offset int64
	for i, b := range idx.Blocks {
		if b.RawOffset != raw {
			return errors.Errorf("block %d: raw offset %d, expected %d", i, b.RawOffset, raw)
		}
		if b.Offset != offset {
			return errors.Errorf("block %d: offset %d, expected %d", i, b.Offset, offset)
		}
		if b.RawSize < 0 || b.CompressedSize <= 0 {
			return errors.Errorf("block %d: invalid sizes %d/%d", i, b.RawSize, b.CompressedSize)
		}
		raw += int64(b.RawSize)
		offset += int64(b.CompressedSize)
	}
	if raw != idx.RawSize {
		return errors.Errorf("blocks cover %d raw bytes, index says %d", raw, idx.RawSize)
	}
	if offset > streamSize {
		return errors.Errorf("blocks need %d bytes, stream has %d", offset, streamSize)
	}
	return nil
}
