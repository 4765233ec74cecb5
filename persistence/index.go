package persistence

import (
	"fmt"
	"io"

	"github.com/hupe1980/knnstore/ivf"
	"github.com/hupe1980/knnstore/whiten"
)

// WriteIndex writes idx as a KindIndex artifact: the centroids, then for
// every list its length, ids and vectors.
func WriteIndex(w io.Writer, idx *ivf.Index, nprobe int, c Compression) (Summary, error) {
	nlist := idx.NList()
	fw, err := NewWriter(w, FileHeader{
		Kind:        KindIndex,
		Compression: c,
		Dimension:   uint32(idx.Dim()),
		Count:       uint64(idx.Len()),
		Params:      [2]uint32{uint32(nlist), uint32(nprobe)},
	})
	if err != nil {
		return Summary{}, err
	}

	if err := fw.WriteFloat32s(idx.Centroids()); err != nil {
		return Summary{}, err
	}

	err = idx.ForEachList(func(_ int, l ivf.List) error {
		if err := fw.WriteUint64(uint64(len(l.IDs))); err != nil {
			return err
		}
		if err := fw.WriteUint64s(l.IDs); err != nil {
			return err
		}
		return fw.WriteFloat32s(l.Vectors)
	})
	if err != nil {
		return Summary{}, err
	}

	if err := fw.Close(); err != nil {
		return Summary{}, err
	}
	return Summary{Size: fw.Size(), Checksum: fw.Checksum()}, nil
}

// ReadIndex decodes a KindIndex artifact. It returns the index and the
// nprobe it was saved with.
func ReadIndex(data []byte, optFns ...func(o *ivf.Options)) (*ivf.Index, int, error) {
	r, err := NewReader(data)
	if err != nil {
		return nil, 0, err
	}
	if err := r.Expect(KindIndex); err != nil {
		return nil, 0, err
	}

	h := r.Header()
	dim := int(h.Dimension)
	nlist := int(h.Params[0])
	nprobe := int(h.Params[1])
	if dim <= 0 || nlist <= 0 {
		return nil, 0, fmt.Errorf("%w: dimension %d, %d lists", ErrTruncated, dim, nlist)
	}
	if nprobe <= 0 || nprobe > nlist {
		return nil, 0, fmt.Errorf("%w: nprobe %d with %d lists", ivf.ErrInvalidNProbe, nprobe, nlist)
	}
	// Bound both factors by the payload before multiplying.
	if dim > r.Remaining()/4 || nlist > r.Remaining()/4/dim {
		return nil, 0, fmt.Errorf("%w: %d centroids of dimension %d", ErrTruncated, nlist, dim)
	}

	centroids, err := r.ReadFloat32s(nlist * dim)
	if err != nil {
		return nil, 0, err
	}

	lists := make([]ivf.List, nlist)
	var total uint64
	for i := range lists {
		n, err := r.ReadUint64()
		if err != nil {
			return nil, 0, err
		}
		if n > uint64(r.Remaining()/(8+4*dim)) {
			return nil, 0, fmt.Errorf("%w: list %d claims %d entries", ErrTruncated, i, n)
		}
		ids, err := r.ReadUint64s(int(n))
		if err != nil {
			return nil, 0, err
		}
		vectors, err := r.ReadFloat32s(int(n) * dim)
		if err != nil {
			return nil, 0, err
		}
		lists[i] = ivf.List{IDs: ids, Vectors: vectors}
		total += n
	}
	if err := r.Done(); err != nil {
		return nil, 0, err
	}
	if total != h.Count {
		return nil, 0, fmt.Errorf("%w: lists hold %d entries, header says %d", ivf.ErrCorruptLists, total, h.Count)
	}

	idx, err := ivf.Restore(centroids, dim, lists, optFns...)
	if err != nil {
		return nil, 0, err
	}
	return idx, nprobe, nil
}

// WriteWhitening writes t as a KindWhitening artifact: the kernel followed
// by the bias.
func WriteWhitening(w io.Writer, t *whiten.Transform, c Compression) (Summary, error) {
	fw, err := NewWriter(w, FileHeader{
		Kind:        KindWhitening,
		Compression: c,
		Dimension:   uint32(t.InDim()),
		Count:       uint64(t.InDim()),
		Params:      [2]uint32{uint32(t.OutDim()), uint32(t.Order())},
	})
	if err != nil {
		return Summary{}, err
	}
	if err := fw.WriteFloat32s(t.Kernel()); err != nil {
		return Summary{}, err
	}
	if err := fw.WriteFloat32s(t.Bias()); err != nil {
		return Summary{}, err
	}
	if err := fw.Close(); err != nil {
		return Summary{}, err
	}
	return Summary{Size: fw.Size(), Checksum: fw.Checksum()}, nil
}

// ReadWhitening decodes a KindWhitening artifact.
func ReadWhitening(data []byte) (*whiten.Transform, error) {
	r, err := NewReader(data)
	if err != nil {
		return nil, err
	}
	if err := r.Expect(KindWhitening); err != nil {
		return nil, err
	}

	h := r.Header()
	dim := int(h.Dimension)
	if dim <= 0 || uint64(dim) != h.Count || dim > r.Remaining()/4/dim {
		return nil, fmt.Errorf("%w: whitening dimension %d", ErrTruncated, dim)
	}

	kernel, err := r.ReadFloat32s(dim * dim)
	if err != nil {
		return nil, err
	}
	bias, err := r.ReadFloat32s(dim)
	if err != nil {
		return nil, err
	}
	if err := r.Done(); err != nil {
		return nil, err
	}

	if h.Params[1] > uint32(whiten.NormalizeThenReduce) {
		return nil, fmt.Errorf("persistence: unknown whitening order %d", h.Params[1])
	}
	return whiten.New(kernel, bias, int(h.Params[0]), whiten.Order(h.Params[1]))
}
