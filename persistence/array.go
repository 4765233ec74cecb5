package persistence

import (
	"fmt"
	"io"
)

// Summary describes a written artifact.
type Summary struct {
	Size     int64
	Checksum uint32
}

// WriteInt32Array writes values as a KindInt32Array artifact.
func WriteInt32Array(w io.Writer, values []int32, c Compression) (Summary, error) {
	fw, err := NewWriter(w, FileHeader{
		Kind:        KindInt32Array,
		Compression: c,
		Count:       uint64(len(values)),
	})
	if err != nil {
		return Summary{}, err
	}
	if err := fw.WriteInt32s(values); err != nil {
		return Summary{}, err
	}
	if err := fw.Close(); err != nil {
		return Summary{}, err
	}
	return Summary{Size: fw.Size(), Checksum: fw.Checksum()}, nil
}

// ReadInt32Array decodes a KindInt32Array artifact.
func ReadInt32Array(data []byte) ([]int32, error) {
	r, err := NewReader(data)
	if err != nil {
		return nil, err
	}
	if err := r.Expect(KindInt32Array); err != nil {
		return nil, err
	}
	values, err := r.ReadInt32s(int(r.Header().Count))
	if err != nil {
		return nil, err
	}
	if err := r.Done(); err != nil {
		return nil, err
	}
	if values == nil {
		values = []int32{}
	}
	return values, nil
}

// WriteMatrix writes rows of equal length dim as a KindMatrix artifact.
func WriteMatrix(w io.Writer, rows [][]float32, dim int, c Compression) (Summary, error) {
	if dim <= 0 {
		return Summary{}, fmt.Errorf("persistence: invalid dimension %d", dim)
	}
	for i, row := range rows {
		if len(row) != dim {
			return Summary{}, fmt.Errorf("persistence: row %d has %d values, want %d", i, len(row), dim)
		}
	}

	fw, err := NewWriter(w, FileHeader{
		Kind:        KindMatrix,
		Compression: c,
		Dimension:   uint32(dim),
		Count:       uint64(len(rows)),
	})
	if err != nil {
		return Summary{}, err
	}
	for _, row := range rows {
		if err := fw.WriteFloat32s(row); err != nil {
			return Summary{}, err
		}
	}
	if err := fw.Close(); err != nil {
		return Summary{}, err
	}
	return Summary{Size: fw.Size(), Checksum: fw.Checksum()}, nil
}

// ReadMatrix decodes a KindMatrix artifact into rows sharing one backing array.
func ReadMatrix(data []byte) ([][]float32, int, error) {
	r, err := NewReader(data)
	if err != nil {
		return nil, 0, err
	}
	if err := r.Expect(KindMatrix); err != nil {
		return nil, 0, err
	}

	h := r.Header()
	dim := int(h.Dimension)
	if dim <= 0 {
		return nil, 0, fmt.Errorf("%w: matrix dimension %d", ErrTruncated, dim)
	}
	n := int(h.Count)
	if uint64(n) != h.Count || n > r.Remaining()/(4*dim) {
		return nil, 0, fmt.Errorf("%w: %d rows of %d values", ErrTruncated, h.Count, dim)
	}

	flat, err := r.ReadFloat32s(n * dim)
	if err != nil {
		return nil, 0, err
	}
	if err := r.Done(); err != nil {
		return nil, 0, err
	}

	rows := make([][]float32, n)
	for i := range rows {
		rows[i] = flat[i*dim : (i+1)*dim : (i+1)*dim]
	}
	return rows, dim, nil
}
