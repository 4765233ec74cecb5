package persistence

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var allCompressions = []Compression{CompressionNone, CompressionLZ4, CompressionZSTD}

func TestHeaderSize(t *testing.T) {
	assert.Equal(t, HeaderSize, binary.Size(FileHeader{}))
}

func TestWriterReader_RoundTrip(t *testing.T) {
	floats := make([]float32, 4096)
	for i := range floats {
		floats[i] = float32(i%17) * 0.25
	}
	ids := []uint64{0, 5, 1 << 40}
	ints := []int32{-3, 0, 42}

	for _, c := range allCompressions {
		t.Run(c.String(), func(t *testing.T) {
			var buf bytes.Buffer
			w, err := NewWriter(&buf, FileHeader{
				Kind:        KindIndex,
				Compression: c,
				Dimension:   16,
				Count:       3,
				Params:      [2]uint32{4, 2},
			})
			require.NoError(t, err)

			require.NoError(t, w.WriteUint32(7))
			require.NoError(t, w.WriteUint64(1<<33))
			require.NoError(t, w.WriteFloat32s(floats))
			require.NoError(t, w.WriteUint64s(ids))
			require.NoError(t, w.WriteInt32s(ints))
			require.NoError(t, w.WriteFloat32s(nil))
			require.NoError(t, w.Close())
			require.NoError(t, w.Close())

			assert.Equal(t, int64(buf.Len()), w.Size())

			r, err := NewReader(buf.Bytes())
			require.NoError(t, err)
			require.NoError(t, r.Expect(KindIndex))
			assert.Equal(t, w.Checksum(), r.Checksum())

			h := r.Header()
			assert.Equal(t, uint32(MagicNumber), h.Magic)
			assert.Equal(t, c, h.Compression)
			assert.Equal(t, uint32(16), h.Dimension)
			assert.Equal(t, [2]uint32{4, 2}, h.Params)

			u32, err := r.ReadUint32()
			require.NoError(t, err)
			assert.Equal(t, uint32(7), u32)

			u64, err := r.ReadUint64()
			require.NoError(t, err)
			assert.Equal(t, uint64(1<<33), u64)

			gotFloats, err := r.ReadFloat32s(len(floats))
			require.NoError(t, err)
			assert.Equal(t, floats, gotFloats)

			gotIDs, err := r.ReadUint64s(len(ids))
			require.NoError(t, err)
			assert.Equal(t, ids, gotIDs)

			gotInts, err := r.ReadInt32s(len(ints))
			require.NoError(t, err)
			assert.Equal(t, ints, gotInts)

			assert.NoError(t, r.Done())

			_, err = r.ReadUint32()
			assert.ErrorIs(t, err, ErrTruncated)
		})
	}
}

func TestCompressionShrinksRepetitivePayload(t *testing.T) {
	values := make([]int32, 1<<14)

	var plain, packed bytes.Buffer
	_, err := WriteInt32Array(&plain, values, CompressionNone)
	require.NoError(t, err)
	_, err = WriteInt32Array(&packed, values, CompressionZSTD)
	require.NoError(t, err)

	assert.Less(t, packed.Len(), plain.Len()/10)
}

func TestReader_Corruption(t *testing.T) {
	var buf bytes.Buffer
	_, err := WriteInt32Array(&buf, []int32{1, 2, 3}, CompressionNone)
	require.NoError(t, err)
	data := buf.Bytes()

	t.Run("Truncated", func(t *testing.T) {
		_, err := NewReader(data[:HeaderSize])
		assert.ErrorIs(t, err, ErrTruncated)
	})

	t.Run("FlippedPayloadBit", func(t *testing.T) {
		bad := bytes.Clone(data)
		bad[HeaderSize] ^= 0x01
		_, err := NewReader(bad)
		var mismatch *ChecksumMismatchError
		assert.ErrorAs(t, err, &mismatch)
	})

	t.Run("BadMagic", func(t *testing.T) {
		bad := bytes.Clone(data)
		bad[0] ^= 0xff
		_, err := NewReader(bad)
		assert.ErrorIs(t, err, ErrInvalidMagic)
	})

	t.Run("BadVersion", func(t *testing.T) {
		bad := bytes.Clone(data)
		bad[4] ^= 0xff
		_, err := NewReader(bad)
		assert.ErrorIs(t, err, ErrInvalidVersion)
	})

	t.Run("WrongKind", func(t *testing.T) {
		r, err := NewReader(data)
		require.NoError(t, err)
		assert.ErrorIs(t, r.Expect(KindMatrix), ErrInvalidKind)
	})
}

func TestParseCompression(t *testing.T) {
	for _, c := range allCompressions {
		got, err := ParseCompression(c.String())
		require.NoError(t, err)
		assert.Equal(t, c, got)
	}

	got, err := ParseCompression("ZSTD")
	require.NoError(t, err)
	assert.Equal(t, CompressionZSTD, got)

	_, err = ParseCompression("brotli")
	assert.Error(t, err)
}

func TestChecksumWriter(t *testing.T) {
	data := []byte("inverted lists")

	var sink bytes.Buffer
	cw := NewChecksumWriter(&sink)
	_, err := cw.Write(data)
	require.NoError(t, err)
	assert.Equal(t, int64(len(data)), cw.Written())
	assert.Equal(t, CalculateChecksum(data), cw.Sum())

	var mismatch *ChecksumMismatchError
	assert.ErrorAs(t, verify(cw.Sum(), cw.Sum()+1), &mismatch)
	assert.NoError(t, verify(cw.Sum(), cw.Sum()))
}

func TestAsBytes(t *testing.T) {
	b, err := asBytes([]int32{1, 2})
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 0, 0, 0, 2, 0, 0, 0}, b)

	b, err = asBytes[float32](nil)
	require.NoError(t, err)
	assert.Nil(t, b)
}
