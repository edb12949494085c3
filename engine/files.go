package engine

import (
	"bytes"
	"context"
	"os"
	"time"

	"github.com/pkg/errors"
)

// Stats describes one file operation.
type Stats struct {
	Input      string
	Output     string
	RawSize    int64
	Compressed int64
	Blocks     int
	Stored     int
	Duration   time.Duration
}

// Ratio returns compressed size as a percentage of raw size.
func (s *Stats) Ratio() float64 {
	if s.RawSize == 0 {
		return 0
	}
	return float64(s.Compressed) / float64(s.RawSize) * 100
}

// CompressFiles compresses each file to file+ext, writing an index sidecar
// next to each output when withIndex is set.
func (e *Engine) CompressFiles(ctx context.Context, files []string, ext string, withIndex bool) ([]*Stats, error) {
	var all []*Stats
	for _, file := range files {
		st, err := e.CompressFile(ctx, file, file+ext, withIndex)
		if err != nil {
			return all, errors.Wrapf(err, "unable to compress %s", file)
		}
		all = append(all, st)
	}
	return all, nil
}

func (e *Engine) CompressFile(ctx context.Context, in, out string, withIndex bool) (*Stats, error) {
	content, err := os.ReadFile(in)
	if err != nil {
		return nil, errors.Wrap(err, "unable to read input")
	}

	start := time.Now()
	res, err := e.Compress(ctx, content)
	if err != nil {
		return nil, err
	}
	elapsed := time.Since(start)

	if err := os.WriteFile(out, res.Data, 0644); err != nil {
		return nil, errors.Wrap(err, "unable to write output")
	}
	if withIndex {
		var buf bytes.Buffer
		if err := res.Index.Encode(&buf); err != nil {
			return nil, err
		}
		if err := os.WriteFile(out+IndexSuffix, buf.Bytes(), 0644); err != nil {
			return nil, errors.Wrap(err, "unable to write index")
		}
	}

	st := &Stats{
		Input:      in,
		Output:     out,
		RawSize:    int64(len(content)),
		Compressed: int64(len(res.Data)),
		Blocks:     len(res.Index.Blocks),
		Duration:   elapsed,
	}
	for _, b := range res.Index.Blocks {
		if b.Stored {
			st.Stored++
		}
	}
	return st, nil
}

// DecompressFile decodes in to out. When an index sidecar exists next to
// in and useIndex is set, blocks are decoded in parallel.
func (e *Engine) DecompressFile(ctx context.Context, in, out string, useIndex bool) (*Stats, error) {
	content, err := os.ReadFile(in)
	if err != nil {
		return nil, errors.Wrap(err, "unable to read input")
	}

	var idx *Index
	if useIndex {
		f, err := os.Open(in + IndexSuffix)
		switch {
		case err == nil:
			idx, err = DecodeIndex(f)
			f.Close()
			if err != nil {
				return nil, err
			}
		case !os.IsNotExist(err):
			return nil, errors.Wrap(err, "unable to open index")
		}
	}

	start := time.Now()
	var raw []byte
	if idx != nil {
		raw, err = e.DecompressIndexed(ctx, content, idx)
	} else {
		raw, err = e.Decompress(ctx, content)
	}
	if err != nil {
		return nil, err
	}
	elapsed := time.Since(start)

	if err := os.WriteFile(out, raw, 0644); err != nil {
		return nil, errors.Wrap(err, "unable to write output")
	}

	st := &Stats{
		Input:      in,
		Output:     out,
		RawSize:    int64(len(raw)),
		Compressed: int64(len(content)),
		Duration:   elapsed,
	}
	if idx != nil {
		st.Blocks = len(idx.Blocks)
	}
	return st, nil
}
