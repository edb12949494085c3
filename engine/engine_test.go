package engine

import (
	"bytes"
	"context"
	stdflate "compress/flate"
	"io"
	"math/rand/v2"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FitrahHaque/flate-engine/compressor/flate"
)

func testData(n int) []byte {
	rng := rand.New(rand.NewPCG(uint64(n), 42))
	phrases := [][]byte{
		[]byte("blocks are compressed in parallel "),
		[]byte("and written out in input order. "),
		[]byte("every block starts a fresh window\n"),
	}
	out := make([]byte, 0, n)
	for len(out) < n {
		if rng.IntN(10) == 0 {
			out = append(out, byte(rng.Uint32()))
			continue
		}
		out = append(out, phrases[rng.IntN(len(phrases))]...)
	}
	return out[:n]
}

func randomData(n int) []byte {
	rng := rand.New(rand.NewPCG(7, uint64(n)))
	out := make([]byte, n)
	for i := range out {
		out[i] = byte(rng.Uint32())
	}
	return out
}

func newTestEngine(t *testing.T, mutate func(*Options)) *Engine {
	t.Helper()
	opts := DefaultOptions()
	opts.BlockSize = 4096
	if mutate != nil {
		mutate(&opts)
	}
	e, err := New(opts)
	require.NoError(t, err)
	return e
}

func stdInflate(t *testing.T, src []byte) []byte {
	t.Helper()
	out, err := io.ReadAll(stdflate.NewReader(bytes.NewReader(src)))
	require.NoError(t, err)
	return out
}

func TestNewValidatesOptions(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Options)
	}{
		{"zero block size", func(o *Options) { o.BlockSize = 0 }},
		{"zero workers", func(o *Options) { o.Workers = 0 }},
		{"negative min block size", func(o *Options) { o.MinBlockSize = -1 }},
		{"unknown strategy", func(o *Options) { o.Strategy = "fixed" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := DefaultOptions()
			tt.mutate(&opts)
			_, err := New(opts)
			assert.Error(t, err)
		})
	}

	opts := DefaultOptions()
	opts.Strategy = ""
	e, err := New(opts)
	require.NoError(t, err)
	assert.Equal(t, DefaultStrategy, e.opts.Strategy)
}

func TestCompressRoundTrip(t *testing.T) {
	ctx := context.Background()
	for _, n := range []int{1, 100, 4095, 4096, 4097, 50000, 300000} {
		data := testData(n)
		for _, strategy := range Strategies {
			e := newTestEngine(t, func(o *Options) { o.Strategy = strategy })
			res, err := e.Compress(ctx, data)
			require.NoError(t, err, "n=%d %s", n, strategy)

			assert.True(t, bytes.HasSuffix(res.Data, flate.FinalBlock))
			assert.Equal(t, int64(n), res.Index.RawSize)
			assert.Len(t, res.Index.Blocks, (n+4095)/4096)
			assert.Equal(t, int64(len(res.Data)-len(flate.FinalBlock)), res.Index.CompressedSize())

			got, err := e.Decompress(ctx, res.Data)
			require.NoError(t, err)
			require.True(t, bytes.Equal(data, got), "n=%d %s", n, strategy)

			got, err = e.DecompressIndexed(ctx, res.Data, res.Index)
			require.NoError(t, err)
			require.True(t, bytes.Equal(data, got), "n=%d %s", n, strategy)

			require.True(t, bytes.Equal(data, stdInflate(t, res.Data)), "n=%d %s", n, strategy)
		}
	}
}

func TestCompressEmpty(t *testing.T) {
	e := newTestEngine(t, nil)
	res, err := e.Compress(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, flate.FinalBlock, res.Data)
	assert.Empty(t, res.Index.Blocks)

	got, err := e.Decompress(context.Background(), res.Data)
	require.NoError(t, err)
	assert.Empty(t, got)

	got, err = e.DecompressIndexed(context.Background(), res.Data, res.Index)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestCompressKeepsBlockOrder(t *testing.T) {
	data := testData(200000)
	single := newTestEngine(t, func(o *Options) { o.Workers = 1; o.BlockSize = 1024 })
	many := newTestEngine(t, func(o *Options) { o.Workers = 16; o.BlockSize = 1024 })

	a, err := single.Compress(context.Background(), data)
	require.NoError(t, err)
	b, err := many.Compress(context.Background(), data)
	require.NoError(t, err)
	assert.Equal(t, a.Data, b.Data)
	assert.Equal(t, a.Index, b.Index)
}

func TestCompressStoredFallback(t *testing.T) {
	e := newTestEngine(t, nil)

	res, err := e.Compress(context.Background(), randomData(10000))
	require.NoError(t, err)
	for i, b := range res.Index.Blocks {
		assert.True(t, b.Stored, "block %d", i)
		// One stored block header per block.
		assert.Equal(t, b.RawSize+5, b.CompressedSize, "block %d", i)
	}

	res, err = e.Compress(context.Background(), []byte("tiny input"))
	require.NoError(t, err)
	require.Len(t, res.Index.Blocks, 1)
	assert.True(t, res.Index.Blocks[0].Stored)

	res, err = e.Compress(context.Background(), testData(4096))
	require.NoError(t, err)
	require.Len(t, res.Index.Blocks, 1)
	assert.False(t, res.Index.Blocks[0].Stored)
	assert.Less(t, res.Index.Blocks[0].CompressedSize, 4096)
}

func TestCompressProgress(t *testing.T) {
	var (
		mu    sync.Mutex
		calls []int
		total int
	)
	e := newTestEngine(t, func(o *Options) {
		o.BlockSize = 1000
		o.Progress = func(done, n int) {
			mu.Lock()
			defer mu.Unlock()
			calls = append(calls, done)
			total = n
		}
	})
	_, err := e.Compress(context.Background(), testData(10500))
	require.NoError(t, err)
	assert.Equal(t, 11, total)
	assert.ElementsMatch(t, []int{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11}, calls)
}

func TestCompressCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	e := newTestEngine(t, nil)
	_, err := e.Compress(ctx, testData(50000))
	assert.ErrorIs(t, err, context.Canceled)

	_, err = e.Decompress(ctx, flate.FinalBlock)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDecompressCorrupt(t *testing.T) {
	e := newTestEngine(t, nil)
	res, err := e.Compress(context.Background(), testData(20000))
	require.NoError(t, err)

	_, err = e.Decompress(context.Background(), res.Data[:len(res.Data)/2])
	assert.ErrorIs(t, err, flate.ErrUnexpectedEOF)

	_, err = e.Decompress(context.Background(), []byte{0x07})
	assert.ErrorIs(t, err, flate.ErrUnsupportedBlockType)
}

func TestDecompressIndexedRejectsBadIndex(t *testing.T) {
	e := newTestEngine(t, nil)
	res, err := e.Compress(context.Background(), testData(20000))
	require.NoError(t, err)
	require.Greater(t, len(res.Index.Blocks), 2)

	clone := func() *Index {
		idx := *res.Index
		idx.Blocks = append([]BlockInfo(nil), res.Index.Blocks...)
		return &idx
	}
	tests := []struct {
		name   string
		mutate func(*Index)
	}{
		{"gap in raw offsets", func(idx *Index) { idx.Blocks[1].RawOffset++ }},
		{"gap in offsets", func(idx *Index) { idx.Blocks[2].Offset-- }},
		{"raw size mismatch", func(idx *Index) { idx.RawSize++ }},
		{"empty block", func(idx *Index) { idx.Blocks[0].CompressedSize = 0 }},
		{"past end of stream", func(idx *Index) {
			last := &idx.Blocks[len(idx.Blocks)-1]
			last.CompressedSize += 1000
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			idx := clone()
			tt.mutate(idx)
			_, err := e.DecompressIndexed(context.Background(), res.Data, idx)
			assert.Error(t, err)
		})
	}

	_, err = e.DecompressIndexed(context.Background(), res.Data, nil)
	assert.Error(t, err)

	idx := clone()
	idx.Blocks[0].RawSize++
	idx.Blocks[1].RawOffset++
	idx.Blocks[1].RawSize--
	_, err = e.DecompressIndexed(context.Background(), res.Data, idx)
	assert.Error(t, err)
}

func TestIndexEncodeDecode(t *testing.T) {
	e := newTestEngine(t, nil)
	res, err := e.Compress(context.Background(), testData(30000))
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, res.Index.Encode(&buf))
	idx, err := DecodeIndex(&buf)
	require.NoError(t, err)
	assert.Equal(t, res.Index, idx)

	bad := *res.Index
	bad.Version = IndexVersion + 1
	buf.Reset()
	require.NoError(t, bad.Encode(&buf))
	_, err = DecodeIndex(&buf)
	assert.Error(t, err)

	_, err = DecodeIndex(bytes.NewReader(nil))
	assert.Error(t, err)
}

func TestWriterReader(t *testing.T) {
	data := testData(40000)

	var compressed bytes.Buffer
	w, err := NewWriter(&compressed, DefaultOptions())
	require.NoError(t, err)
	for chunk := data; len(chunk) > 0; {
		n := min(len(chunk), 777)
		_, err := w.Write(chunk[:n])
		require.NoError(t, err)
		chunk = chunk[n:]
	}
	assert.Nil(t, w.Index())
	require.NoError(t, w.Close())
	require.NoError(t, w.Close())
	require.NotNil(t, w.Index())
	assert.Equal(t, int64(len(data)), w.Index().RawSize)

	_, err = w.Write([]byte("late"))
	assert.Error(t, err)

	r := NewReader(bytes.NewReader(compressed.Bytes()))
	got, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, data, got)

	require.NoError(t, r.Close())
	_, err = r.Read(make([]byte, 1))
	assert.Error(t, err)

	_, err = NewWriter(&compressed, Options{})
	assert.Error(t, err)
}

func TestCompressDecompressFile(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "input.txt")
	data := testData(150000)
	require.NoError(t, os.WriteFile(in, data, 0644))

	e := newTestEngine(t, nil)
	ctx := context.Background()

	stats, err := e.CompressFiles(ctx, []string{in}, ".rsn", true)
	require.NoError(t, err)
	require.Len(t, stats, 1)
	st := stats[0]
	assert.Equal(t, in+".rsn", st.Output)
	assert.Equal(t, int64(len(data)), st.RawSize)
	assert.Equal(t, (len(data)+4095)/4096, st.Blocks)
	assert.Less(t, st.Ratio(), 100.0)
	assert.FileExists(t, st.Output+IndexSuffix)

	for _, useIndex := range []bool{true, false} {
		out := filepath.Join(dir, "output.txt")
		dst, err := e.DecompressFile(ctx, st.Output, out, useIndex)
		require.NoError(t, err)
		assert.Equal(t, int64(len(data)), dst.RawSize)
		if useIndex {
			assert.Equal(t, st.Blocks, dst.Blocks)
		} else {
			assert.Zero(t, dst.Blocks)
		}
		got, err := os.ReadFile(out)
		require.NoError(t, err)
		assert.Equal(t, data, got)
	}

	// Without a sidecar the stream is decoded sequentially.
	plain := filepath.Join(dir, "plain.rsn")
	_, err = e.CompressFile(ctx, in, plain, false)
	require.NoError(t, err)
	assert.NoFileExists(t, plain+IndexSuffix)
	dst, err := e.DecompressFile(ctx, plain, filepath.Join(dir, "plain.out"), true)
	require.NoError(t, err)
	assert.Zero(t, dst.Blocks)

	_, err = e.CompressFiles(ctx, []string{filepath.Join(dir, "missing")}, ".rsn", false)
	assert.Error(t, err)
}

func TestStatsRatio(t *testing.T) {
	assert.Zero(t, (&Stats{}).Ratio())
	assert.InDelta(t, 25.0, (&Stats{RawSize: 400, Compressed: 100}).Ratio(), 1e-9)
}
