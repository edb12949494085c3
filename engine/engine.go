package engine

import (
	"bytes"
	"context"
	"sync/atomic"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/FitrahHaque/flate-engine/compressor/flate"
	"github.com/FitrahHaque/flate-engine/compressor/lz"
)

const (
	DefaultBlockSize    = 64 * 1024
	DefaultWorkers      = 4
	DefaultMinBlockSize = 116
	DefaultStrategy     = "dynamic"
)

var Strategies = [...]string{
	"dynamic",
	"stored",
}

// blockEncoder compresses one block into a byte-aligned, non-final run of
// DEFLATE blocks and reports whether it fell back to stored blocks.
type blockEncoder func(block []byte, opts Options) ([]byte, bool, error)

var encoders = map[string]blockEncoder{
	"dynamic": encodeDynamic,
	"stored":  encodeStored,
}

type Options struct {
	BlockSize    int
	Workers      int
	MinBlockSize int
	Strategy     string
	LZ           lz.Options

	// Progress is called once per finished block, possibly from several
	// goroutines at once.
	Progress func(done, total int)
}

func DefaultOptions() Options {
	return Options{
		BlockSize:    DefaultBlockSize,
		Workers:      DefaultWorkers,
		MinBlockSize: DefaultMinBlockSize,
		Strategy:     DefaultStrategy,
		LZ:           lz.DefaultOptions(),
	}
}

// Engine splits input into independently compressed blocks and compresses
// them in parallel. Every block starts with a fresh LZ77 window, so blocks
// can also be decoded in parallel given an Index.
type Engine struct {
	opts Options
	log  *logrus.Entry
}

// Result is a compressed stream and the layout of its blocks.
type Result struct {
	Data  []byte
	Index *Index
}

func New(opts Options) (*Engine, error) {
	if opts.BlockSize < 1 {
		return nil, errors.Errorf("block size must be positive, got %d", opts.BlockSize)
	}
	if opts.Workers < 1 {
		return nil, errors.Errorf("workers must be positive, got %d", opts.Workers)
	}
	if opts.MinBlockSize < 0 {
		return nil, errors.Errorf("min block size cannot be negative, got %d", opts.MinBlockSize)
	}
	if opts.Strategy == "" {
		opts.Strategy = DefaultStrategy
	}
	if _, ok := encoders[opts.Strategy]; !ok {
		return nil, errors.Errorf("unknown strategy %q", opts.Strategy)
	}

	return &Engine{
		opts: opts,
		log:  logrus.WithField("pkg", "engine"),
	}, nil
}

// Compress returns data as a complete raw DEFLATE stream: one run of
// non-final blocks per input block, in input order, closed by
// flate.FinalBlock.
func (e *Engine) Compress(ctx context.Context, data []byte) (*Result, error) {
	blocks := split(data, e.opts.BlockSize)
	encoded := make([][]byte, len(blocks))
	stored := make([]bool, len(blocks))
	encode := encoders[e.opts.Strategy]

	var done atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.opts.Workers)

	for i, block := range blocks {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			out, isStored, err := encode(block, e.opts)
			if err != nil {
				return errors.Wrapf(err, "block %d", i)
			}
			encoded[i], stored[i] = out, isStored

			e.log.WithFields(logrus.Fields{
				"method":          "Compress",
				"block":           i,
				"raw_size":        len(block),
				"compressed_size": len(out),
				"stored":          isStored,
			}).Debug("block compressed")

			if e.opts.Progress != nil {
				e.opts.Progress(int(done.Add(1)), len(blocks))
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	// Output positions come from block order, not completion order.
	idx := &Index{
		Version:   IndexVersion,
		BlockSize: e.opts.BlockSize,
		Blocks:    make([]BlockInfo, len(blocks)),
	}
	total := len(flate.FinalBlock)
	for _, b := range encoded {
		total += len(b)
	}
	out := make([]byte, 0, total)
	var rawOffset int64
	for i, b := range encoded {
		idx.Blocks[i] = BlockInfo{
			RawOffset:      rawOffset,
			RawSize:        len(blocks[i]),
			Offset:         int64(len(out)),
			CompressedSize: len(b),
			Stored:         stored[i],
		}
		rawOffset += int64(len(blocks[i]))
		out = append(out, b...)
	}
	out = append(out, flate.FinalBlock...)
	idx.RawSize = rawOffset

	return &Result{Data: out, Index: idx}, nil
}

// Decompress decodes a complete raw DEFLATE stream sequentially. It does
// not need an Index and accepts streams from any DEFLATE encoder that uses
// only stored and dynamic blocks.
func (e *Engine) Decompress(ctx context.Context, data []byte) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out, err := flate.Inflate(data)
	if err != nil {
		return nil, errors.Wrap(err, "unable to inflate stream")
	}
	return out, nil
}

// DecompressIndexed decodes every block listed in idx in parallel and
// places each block's output at its raw offset.
func (e *Engine) DecompressIndexed(ctx context.Context, data []byte, idx *Index) ([]byte, error) {
	if err := idx.validate(int64(len(data))); err != nil {
		return nil, errors.Wrap(err, "invalid index")
	}
	out := make([]byte, idx.RawSize)

	var done atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.opts.Workers)

	for i, b := range idx.Blocks {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			seg := data[b.Offset : b.Offset+int64(b.CompressedSize)]
			raw, err := flate.Inflate(seg, flate.WithUnterminated())
			if err != nil {
				return errors.Wrapf(err, "block %d", i)
			}
			if len(raw) != b.RawSize {
				return errors.Errorf("block %d: decoded %d bytes, index says %d", i, len(raw), b.RawSize)
			}
			copy(out[b.RawOffset:], raw)

			if e.opts.Progress != nil {
				e.opts.Progress(int(done.Add(1)), len(idx.Blocks))
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func split(data []byte, size int) [][]byte {
	var blocks [][]byte
	for len(data) > 0 {
		n := min(len(data), size)
		blocks = append(blocks, data[:n])
		data = data[n:]
	}
	return blocks
}

func encodeStored(block []byte, _ Options) ([]byte, bool, error) {
	return flate.EncodeStored(block, false), true, nil
}

// encodeDynamic writes a dynamic Huffman block, falling back to stored
// blocks for tiny input and for input the dynamic block does not shrink.
func encodeDynamic(block []byte, opts Options) ([]byte, bool, error) {
	if len(block) < opts.MinBlockSize {
		return encodeStored(block, opts)
	}
	tokens := lz.Tokenize(block, opts.LZ)
	var buf bytes.Buffer
	if _, err := flate.EncodeTokens(&buf, tokens); err != nil {
		return nil, false, err
	}
	stored := flate.EncodeStored(block, false)
	if buf.Len() >= len(stored) {
		return stored, true, nil
	}
	return buf.Bytes(), false, nil
}
