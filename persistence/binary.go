package persistence

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
)

var byteOrder = binary.LittleEndian

// Writer writes one framed artifact.
//
// The header is written uncompressed by NewWriter. Payload writes go through
// the configured compressor. Close flushes the payload and appends the CRC32
// trailer; it does not close the underlying writer.
type Writer struct {
	w       io.Writer
	cw      *ChecksumWriter
	payload io.WriteCloser
	header  FileHeader
	scratch [8]byte
	closed  bool
}

// NewWriter writes header to w and prepares a payload writer. Magic and
// Version are filled in.
func NewWriter(w io.Writer, header FileHeader) (*Writer, error) {
	header.Magic = MagicNumber
	header.Version = Version

	cw := NewChecksumWriter(w)
	if err := binary.Write(cw, byteOrder, &header); err != nil {
		return nil, err
	}

	payload, err := compressor(cw, header.Compression)
	if err != nil {
		return nil, err
	}

	return &Writer{
		w:       w,
		cw:      cw,
		payload: payload,
		header:  header,
	}, nil
}

// Header returns the header as written.
func (bw *Writer) Header() FileHeader {
	return bw.header
}

// WriteUint32 writes a single value.
func (bw *Writer) WriteUint32(v uint32) error {
	byteOrder.PutUint32(bw.scratch[:4], v)
	_, err := bw.payload.Write(bw.scratch[:4])
	return err
}

// WriteUint64 writes a single value.
func (bw *Writer) WriteUint64(v uint64) error {
	byteOrder.PutUint64(bw.scratch[:8], v)
	_, err := bw.payload.Write(bw.scratch[:8])
	return err
}

// WriteFloat32s writes a float32 slice as raw bytes.
func (bw *Writer) WriteFloat32s(s []float32) error {
	return writeSlice(bw.payload, s)
}

// WriteInt32s writes an int32 slice as raw bytes.
func (bw *Writer) WriteInt32s(s []int32) error {
	return writeSlice(bw.payload, s)
}

// WriteUint64s writes a uint64 slice as raw bytes.
func (bw *Writer) WriteUint64s(s []uint64) error {
	return writeSlice(bw.payload, s)
}

func writeSlice[T float32 | int32 | uint32 | uint64](w io.Writer, s []T) error {
	b, err := asBytes(s)
	if err != nil {
		return err
	}
	if len(b) == 0 {
		return nil
	}
	_, err = w.Write(b)
	return err
}

// Close finishes the payload and writes the trailer.
func (bw *Writer) Close() error {
	if bw.closed {
		return nil
	}
	bw.closed = true

	if err := bw.payload.Close(); err != nil {
		return err
	}

	var trailer [TrailerSize]byte
	byteOrder.PutUint32(trailer[:], bw.cw.Sum())
	_, err := bw.w.Write(trailer[:])
	return err
}

// Checksum returns the CRC32 of header and payload. Valid after Close.
func (bw *Writer) Checksum() uint32 {
	return bw.cw.Sum()
}

// Size returns the total artifact size including the trailer. Valid after
// Close.
func (bw *Writer) Size() int64 {
	return bw.cw.Written() + TrailerSize
}

// Reader decodes one framed artifact held in memory.
type Reader struct {
	header   FileHeader
	checksum uint32
	buf      []byte
	off      int
}

// NewReader verifies the frame in data and decodes its payload. The returned
// reader copies every value it returns, so data may be released afterwards.
func NewReader(data []byte) (*Reader, error) {
	if len(data) < HeaderSize+TrailerSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrTruncated, len(data))
	}

	body := data[:len(data)-TrailerSize]
	expected := byteOrder.Uint32(data[len(data)-TrailerSize:])

	var header FileHeader
	if err := binary.Read(bytes.NewReader(body[:HeaderSize]), byteOrder, &header); err != nil {
		return nil, err
	}
	if header.Magic != MagicNumber {
		return nil, fmt.Errorf("%w: got 0x%08x", ErrInvalidMagic, header.Magic)
	}
	if header.Version != Version {
		return nil, fmt.Errorf("%w: got 0x%08x", ErrInvalidVersion, header.Version)
	}

	actual := CalculateChecksum(body)
	if err := verify(expected, actual); err != nil {
		return nil, err
	}

	buf, err := decompress(body[HeaderSize:], header.Compression)
	if err != nil {
		return nil, fmt.Errorf("persistence: decompress %s payload: %w", header.Compression, err)
	}

	return &Reader{
		header:   header,
		checksum: actual,
		buf:      buf,
	}, nil
}

// Header returns the artifact header.
func (br *Reader) Header() FileHeader {
	return br.header
}

// Checksum returns the verified CRC32.
func (br *Reader) Checksum() uint32 {
	return br.checksum
}

// Expect checks the artifact kind.
func (br *Reader) Expect(kind Kind) error {
	if br.header.Kind != kind {
		return fmt.Errorf("%w: got %s, want %s", ErrInvalidKind, br.header.Kind, kind)
	}
	return nil
}

func (br *Reader) next(n int) ([]byte, error) {
	if n < 0 || len(br.buf)-br.off < n {
		return nil, fmt.Errorf("%w: need %d bytes, have %d", ErrTruncated, n, len(br.buf)-br.off)
	}
	b := br.buf[br.off : br.off+n]
	br.off += n
	return b, nil
}

// ReadUint32 reads a single value.
func (br *Reader) ReadUint32() (uint32, error) {
	b, err := br.next(4)
	if err != nil {
		return 0, err
	}
	return byteOrder.Uint32(b), nil
}

// ReadUint64 reads a single value.
func (br *Reader) ReadUint64() (uint64, error) {
	b, err := br.next(8)
	if err != nil {
		return 0, err
	}
	return byteOrder.Uint64(b), nil
}

// ReadFloat32s reads count float32 values.
func (br *Reader) ReadFloat32s(count int) ([]float32, error) {
	return readSlice[float32](br, count, 4)
}

// ReadInt32s reads count int32 values.
func (br *Reader) ReadInt32s(count int) ([]int32, error) {
	return readSlice[int32](br, count, 4)
}

// ReadUint64s reads count uint64 values.
func (br *Reader) ReadUint64s(count int) ([]uint64, error) {
	return readSlice[uint64](br, count, 8)
}

func readSlice[T float32 | int32 | uint32 | uint64](br *Reader, count, size int) ([]T, error) {
	if count == 0 {
		return nil, nil
	}
	if count < 0 || count > (len(br.buf)-br.off)/size {
		return nil, fmt.Errorf("%w: %d values requested", ErrTruncated, count)
	}
	src, err := br.next(count * size)
	if err != nil {
		return nil, err
	}

	out := make([]T, count)
	dst, err := asBytes(out)
	if err != nil {
		return nil, err
	}
	copy(dst, src)
	return out, nil
}

// Remaining returns the number of undecoded payload bytes.
func (br *Reader) Remaining() int {
	return len(br.buf) - br.off
}

// Done reports ErrTrailingData when payload bytes are left.
func (br *Reader) Done() error {
	if n := br.Remaining(); n > 0 {
		return fmt.Errorf("%w: %d bytes", ErrTrailingData, n)
	}
	return nil
}
