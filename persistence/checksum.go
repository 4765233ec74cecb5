package persistence

import (
	"fmt"
	"hash"
	"hash/crc32"
	"io"
)

// Artifacts end with a CRC32 (IEEE) of header and payload. It catches torn
// writes and bit rot, not tampering.
var crcTable = crc32.MakeTable(crc32.IEEE)

// CalculateChecksum returns the CRC32 of data as stored in artifact trailers.
func CalculateChecksum(data []byte) uint32 {
	return crc32.Checksum(data, crcTable)
}

// ChecksumWriter counts and hashes what passes through to w.
type ChecksumWriter struct {
	w    io.Writer
	hash hash.Hash32
	n    int64
}

// NewChecksumWriter creates a new checksumming writer.
func NewChecksumWriter(w io.Writer) *ChecksumWriter {
	return &ChecksumWriter{
		w:    w,
		hash: crc32.New(crcTable),
	}
}

// Write implements io.Writer. Bytes rejected by w are not hashed.
func (cw *ChecksumWriter) Write(p []byte) (int, error) {
	n, err := cw.w.Write(p)
	if n > 0 {
		_, _ = cw.hash.Write(p[:n])
		cw.n += int64(n)
	}
	return n, err
}

// Sum returns the current checksum value.
func (cw *ChecksumWriter) Sum() uint32 {
	return cw.hash.Sum32()
}

// Written returns the number of bytes written so far.
func (cw *ChecksumWriter) Written() int64 {
	return cw.n
}

func verify(expected, actual uint32) error {
	if actual != expected {
		return &ChecksumMismatchError{
			Expected: expected,
			Actual:   actual,
		}
	}
	return nil
}

// ChecksumMismatchError reports a trailer that does not match the artifact.
type ChecksumMismatchError struct {
	Expected uint32
	Actual   uint32
}

func (e *ChecksumMismatchError) Error() string {
	return fmt.Sprintf("persistence: crc32 0x%08x does not match stored 0x%08x", e.Actual, e.Expected)
}
