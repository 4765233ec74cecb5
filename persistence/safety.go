package persistence

import (
	"errors"
	"fmt"
	"runtime"
	"unsafe"
)

// Artifacts are little-endian and read through unsafe slice views, so the
// package refuses to run elsewhere.
var (
	ErrUnsupportedArchitecture = errors.New("persistence: only amd64 and arm64 are supported")
	ErrBigEndian               = errors.New("persistence: big-endian hosts are not supported")
	ErrUnalignedAccess         = errors.New("persistence: unaligned slice")
)

func init() {
	if err := validatePlatform(); err != nil {
		panic(fmt.Sprintf("knnstore/persistence: %v", err))
	}
}

func validatePlatform() error {
	arch := runtime.GOARCH
	if arch != "amd64" && arch != "arm64" {
		return fmt.Errorf("%w: %s", ErrUnsupportedArchitecture, arch)
	}
	if !isLittleEndian() {
		return ErrBigEndian
	}
	return nil
}

func isLittleEndian() bool {
	x := uint16(1)
	return *(*byte)(unsafe.Pointer(&x)) == 1
}

// asBytes returns a byte view of a numeric slice after checking that its
// first element is aligned to the element size.
func asBytes[T float32 | int32 | uint32 | uint64](s []T) ([]byte, error) {
	if len(s) == 0 {
		return nil, nil
	}

	size := int(unsafe.Sizeof(s[0]))
	ptr := uintptr(unsafe.Pointer(&s[0]))
	if ptr%uintptr(size) != 0 {
		return nil, fmt.Errorf("%w: %T at address 0x%x", ErrUnalignedAccess, s, ptr)
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(&s[0])), len(s)*size), nil
}
