package bitstream

import (
	"bytes"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReaderBitOrder(t *testing.T) {
	br := NewReader([]byte{0b10110100, 0xff})

	v, err := br.Read(3)
	require.NoError(t, err)
	assert.Equal(t, uint32(0b100), v)

	v, err = br.Read(5)
	require.NoError(t, err)
	assert.Equal(t, uint32(0b10110), v)

	v, err = br.Read(8)
	require.NoError(t, err)
	assert.Equal(t, uint32(0xff), v)

	_, err = br.Read(1)
	assert.ErrorIs(t, err, ErrUnexpectedEOF)
}

func TestReaderPeekDoesNotConsume(t *testing.T) {
	br := NewReader([]byte{0x5a, 0xc3})

	v, err := br.Peek(12)
	require.NoError(t, err)
	assert.Equal(t, uint32(0x35a), v)
	assert.Equal(t, uint(16), br.Available())

	require.NoError(t, br.Consume(4))
	v, err = br.Read(12)
	require.NoError(t, err)
	assert.Equal(t, uint32(0xc35), v)
	assert.Equal(t, uint(0), br.Available())
}

func TestReaderPeekBitsPadsWithZeros(t *testing.T) {
	br := NewReader([]byte{0xff})
	assert.Equal(t, uint32(0xff), br.PeekBits(15))

	_, err := br.Peek(9)
	assert.ErrorIs(t, err, ErrUnexpectedEOF)
}

func TestReaderRejectsWideReads(t *testing.T) {
	br := NewReader(make([]byte, 8))
	_, err := br.Read(33)
	assert.Error(t, err)
	assert.Error(t, br.Consume(40))
}

func TestReaderNeverReadsPastEnd(t *testing.T) {
	src := []byte{1, 2, 3, 4, 5, 6, 7}
	br := NewReader(src)
	for i := 0; i < len(src)*8; i++ {
		_, err := br.Read(1)
		require.NoError(t, err)
	}
	_, err := br.Read(1)
	assert.ErrorIs(t, err, ErrUnexpectedEOF)
	assert.Equal(t, len(src), br.BytesConsumed())
	assert.Equal(t, 0, br.Remaining())
}

func TestReaderAlignToByte(t *testing.T) {
	br := NewReader([]byte{0xff, 0x42, 0x17})

	_, err := br.Read(3)
	require.NoError(t, err)
	assert.False(t, br.Aligned())
	assert.Equal(t, 1, br.BytesConsumed())

	br.AlignToByte()
	assert.True(t, br.Aligned())

	v, err := br.Read(8)
	require.NoError(t, err)
	assert.Equal(t, uint32(0x42), v)
	assert.Equal(t, 2, br.BytesConsumed())
	assert.Equal(t, 1, br.Remaining())

	// Already aligned: nothing is dropped.
	br.AlignToByte()
	v, err = br.Read(8)
	require.NoError(t, err)
	assert.Equal(t, uint32(0x17), v)
}

func TestWriterPacksLSBFirst(t *testing.T) {
	var buf bytes.Buffer
	bw := NewWriter(&buf)

	bw.WriteBits(0b100, 3)
	bw.WriteBits(0b10110, 5)
	bw.WriteBits(0x1ff, 9)
	require.NoError(t, bw.Flush())

	assert.Equal(t, []byte{0b10110100, 0xff, 0x01}, buf.Bytes())
	assert.Equal(t, int64(3), bw.Written())
}

func TestWriterReaderRoundTrip(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))

	type field struct {
		v uint32
		n uint
	}
	fields := make([]field, 5000)
	for i := range fields {
		n := uint(rng.IntN(MaxReadBits + 1))
		fields[i] = field{v: rng.Uint32() & uint32(mask(n)), n: n}
	}

	var buf bytes.Buffer
	bw := NewWriter(&buf)
	for _, f := range fields {
		bw.WriteBits(f.v, f.n)
	}
	require.NoError(t, bw.Flush())

	br := NewReader(buf.Bytes())
	for i, f := range fields {
		v, err := br.Read(f.n)
		require.NoError(t, err, "field %d", i)
		require.Equal(t, f.v, v, "field %d", i)
	}
	assert.Less(t, br.Available(), uint(8))
}

func TestWriterWriteBytesAligns(t *testing.T) {
	var buf bytes.Buffer
	bw := NewWriter(&buf)

	bw.WriteBits(1, 1)
	bw.WriteBytes([]byte{0xaa, 0xbb})
	require.NoError(t, bw.Flush())

	assert.Equal(t, []byte{0x01, 0xaa, 0xbb}, buf.Bytes())
}

func TestWriterSync(t *testing.T) {
	tests := []struct {
		name string
		bits uint
		want []byte
	}{
		{"empty", 0, []byte{0x00, 0x00, 0x00, 0xff, 0xff}},
		{"five bits", 5, []byte{0x1f, 0x00, 0x00, 0xff, 0xff}},
		{"six bits", 6, []byte{0x3f, 0x00, 0x00, 0x00, 0xff, 0xff}},
		{"one word", 16, []byte{0xff, 0xff, 0x00, 0x00, 0x00, 0xff, 0xff}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			bw := NewWriter(&buf)
			bw.WriteBits(uint32(mask(tt.bits)), tt.bits)
			require.NoError(t, bw.Sync())
			assert.Equal(t, tt.want, buf.Bytes())
			assert.Equal(t, uint(0), bw.Pending())
		})
	}
}

func TestWriterFlushesLargeOutput(t *testing.T) {
	var buf bytes.Buffer
	bw := NewWriter(&buf)
	for i := 0; i < flushThreshold; i++ {
		bw.WriteBits(uint32(i), 16)
	}
	assert.NotZero(t, buf.Len())
	assert.Equal(t, int64(flushThreshold*2), bw.Written())
	require.NoError(t, bw.Flush())
	assert.Equal(t, flushThreshold*2, buf.Len())
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) {
	return 0, assert.AnError
}

func TestWriterStickyError(t *testing.T) {
	bw := NewWriter(failingWriter{})
	bw.WriteBits(0xff, 8)
	err := bw.Flush()
	require.ErrorIs(t, err, assert.AnError)
	bw.WriteBits(1, 1)
	assert.ErrorIs(t, bw.Err(), assert.AnError)
}
