package engine

import (
	"bytes"
	"context"
	"io"
	"sync"

	"github.com/pkg/errors"
)

// Writer buffers everything written to it and compresses it on Close.
type Writer struct {
	lock   sync.Mutex
	engine *Engine
	dst    io.Writer
	buf    bytes.Buffer
	index  *Index
	closed bool
}

// NewWriter returns an io.WriteCloser that writes a compressed stream to w
// when closed.
func NewWriter(w io.Writer, opts Options) (*Writer, error) {
	e, err := New(opts)
	if err != nil {
		return nil, err
	}
	return &Writer{engine: e, dst: w}, nil
}

func (cw *Writer) Write(data []byte) (int, error) {
	cw.lock.Lock()
	defer cw.lock.Unlock()
	if cw.closed {
		return 0, errors.New("write to closed writer")
	}
	return cw.buf.Write(data)
}

func (cw *Writer) Close() error {
	cw.lock.Lock()
	defer cw.lock.Unlock()
	if cw.closed {
		return nil
	}
	cw.closed = true

	res, err := cw.engine.Compress(context.Background(), cw.buf.Bytes())
	if err != nil {
		return errors.Wrap(err, "compression failed")
	}
	cw.buf.Reset()
	cw.index = res.Index
	if _, err := cw.dst.Write(res.Data); err != nil {
		return errors.Wrap(err, "unable to write compressed stream")
	}
	return nil
}

// Index returns the block layout of the written stream, or nil before Close.
func (cw *Writer) Index() *Index {
	cw.lock.Lock()
	defer cw.lock.Unlock()
	return cw.index
}

// Reader decompresses a raw DEFLATE stream read from an underlying reader.
// The whole stream is read and decoded on the first Read.
type Reader struct {
	lock   sync.Mutex
	engine *Engine
	src    io.Reader
	out    *bytes.Reader
	err    error
}

func NewReader(r io.Reader) *Reader {
	// DefaultOptions always passes New's validation.
	e, _ := New(DefaultOptions())
	return &Reader{engine: e, src: r}
}

func (cr *Reader) Read(data []byte) (int, error) {
	cr.lock.Lock()
	defer cr.lock.Unlock()
	if cr.err != nil {
		return 0, cr.err
	}
	if cr.out == nil {
		compressed, err := io.ReadAll(cr.src)
		if err != nil {
			cr.err = errors.Wrap(err, "unable to read compressed stream")
			return 0, cr.err
		}
		raw, err := cr.engine.Decompress(context.Background(), compressed)
		if err != nil {
			cr.err = err
			return 0, cr.err
		}
		cr.out = bytes.NewReader(raw)
	}
	return cr.out.Read(data)
}

func (cr *Reader) Close() error {
	cr.lock.Lock()
	defer cr.lock.Unlock()
	cr.out = nil
	cr.err = errors.New("read from closed reader")
	return nil
}
