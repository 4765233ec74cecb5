//go:build amd64 || arm64

// Package persistence implements the binary artifact format of a datastore.
//
// Every artifact is a frame:
//
//	[FileHeader (32 bytes)][payload][CRC32 (4 bytes)]
//
// The payload may be compressed with LZ4 or ZSTD as recorded in the header.
// The trailing CRC32 (IEEE) covers the header and the stored payload bytes.
//
// PLATFORM REQUIREMENTS:
// - Architecture: amd64 or arm64 only
// - Endianness: Little-endian (native on x86_64 and ARM64)
// - Alignment: 4-byte for float32/int32, 8-byte for uint64
//
// Numeric slices are written and read through unsafe byte views. The views
// are verified at runtime with alignment checks and platform validation. See
// safety.go for details.
package persistence
