package persistence

import (
	"errors"
	"fmt"
)

const (
	// MagicNumber identifies datastore artifacts (ASCII: "KNN0").
	MagicNumber = 0x4b4e4e30
	// Version is the current frame format version (v1.0.0).
	Version = 0x00010000

	// HeaderSize is the encoded size of FileHeader.
	HeaderSize = 32
	// TrailerSize is the size of the trailing CRC32.
	TrailerSize = 4
)

// Kind identifies what an artifact holds.
type Kind uint8

const (
	// KindIndex is a trained IVF index: centroids followed by inverted lists.
	// Params[0] is nlist and Params[1] is the default nprobe.
	KindIndex Kind = 1
	// KindInt32Array is a flat array of int32 values indexed by vector id.
	KindInt32Array Kind = 2
	// KindWhitening is a whitening transform. Params[0] is the output
	// dimension and Params[1] the reduction order.
	KindWhitening Kind = 3
	// KindMatrix is a row-major float32 matrix of Count rows of Dim values.
	KindMatrix Kind = 4
)

func (k Kind) String() string {
	switch k {
	case KindIndex:
		return "index"
	case KindInt32Array:
		return "int32-array"
	case KindWhitening:
		return "whitening"
	case KindMatrix:
		return "matrix"
	default:
		return fmt.Sprintf("Kind(%d)", k)
	}
}

var (
	ErrInvalidMagic   = errors.New("invalid magic number")
	ErrInvalidVersion = errors.New("unsupported version")
	ErrInvalidKind    = errors.New("unexpected artifact kind")
	ErrTruncated      = errors.New("truncated artifact")
	ErrTrailingData   = errors.New("unexpected data after payload")
)

// FileHeader is the fixed-size header at the start of every artifact.
type FileHeader struct {
	Magic       uint32      // 0x4b4e4e30 ("KNN0")
	Version     uint32      // Frame format version
	Kind        Kind        // Artifact kind
	Compression Compression // Payload compression
	Flags       uint16      // Reserved, zero
	Dimension   uint32      // Vector dimensionality, zero when not applicable
	Count       uint64      // Number of rows or values
	Params      [2]uint32   // Kind-specific parameters
}
