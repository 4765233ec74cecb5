package knnstore

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/hupe1980/knnstore/blobstore"
	"github.com/hupe1980/knnstore/codec"
	"github.com/hupe1980/knnstore/ivf"
	"github.com/hupe1980/knnstore/labelstore"
	"github.com/hupe1980/knnstore/persistence"
	"github.com/hupe1980/knnstore/resource"
	"github.com/hupe1980/knnstore/whiten"
)

// Artifact names within a datastore directory or blob prefix.
const (
	IndexFile     = "index.trained"
	TokenIDFile   = "token_ids.bin"
	InputIDFile   = "input_ids.bin"
	WhiteningFile = "whitening.bin"
	ManifestFile  = "manifest.json"
)

// ManifestVersion is the current manifest format version.
const ManifestVersion = 1

// Manifest describes a saved datastore. It is written last, so a directory
// without a manifest holds no complete datastore.
type Manifest struct {
	Version     int            `json:"version"`
	Codec       string         `json:"codec"`
	State       string         `json:"state"`
	Dim         int            `json:"dim"`
	IndexDim    int            `json:"index_dim"`
	NCentroids  int            `json:"n_centroids"`
	NProbe      int            `json:"nprobe"`
	Count       int            `json:"count"`
	VocabSize   int            `json:"vocab_size,omitempty"`
	Compression string         `json:"compression"`
	CreatedAt   time.Time      `json:"created_at"`
	Artifacts   []ArtifactInfo `json:"artifacts"`
}

// ArtifactInfo records the size and checksum of one artifact.
type ArtifactInfo struct {
	Name  string `json:"name"`
	Size  int64  `json:"size"`
	CRC32 uint32 `json:"crc32"`
}

// Artifact returns the entry for name.
func (m *Manifest) Artifact(name string) (ArtifactInfo, bool) {
	for _, a := range m.Artifacts {
		if a.Name == name {
			return a, true
		}
	}
	return ArtifactInfo{}, false
}

func location(store blobstore.BlobStore, name string) string {
	if ls, ok := store.(*blobstore.LocalStore); ok {
		return filepath.Join(ls.Root(), name)
	}
	return name
}

// Save writes the datastore to store. The manifest is removed first and
// written last.
func (ds *Datastore) Save(ctx context.Context, store blobstore.BlobStore) (err error) {
	start := time.Now()
	var written int64
	defer func() {
		ds.opts.logger.LogSave(ctx, location(store, ""), written, time.Since(start), err)
		ds.opts.metricsCollector.RecordSave(written, time.Since(start), err)
	}()

	ds.mu.RLock()
	defer ds.mu.RUnlock()

	if ds.state == StateUntrained {
		return ErrNotTrained
	}

	if err := store.Delete(ctx, ManifestFile); err != nil {
		return &PersistenceError{Artifact: ManifestFile, Location: location(store, ManifestFile), Err: err}
	}

	c := ds.opts.compression
	type artifact struct {
		name  string
		write func(w io.Writer) (persistence.Summary, error)
	}
	artifacts := []artifact{
		{IndexFile, func(w io.Writer) (persistence.Summary, error) {
			return persistence.WriteIndex(w, ds.index, ds.nprobe, c)
		}},
		{TokenIDFile, func(w io.Writer) (persistence.Summary, error) {
			return persistence.WriteInt32Array(w, ds.labels.Labels(), c)
		}},
		{InputIDFile, func(w io.Writer) (persistence.Summary, error) {
			return persistence.WriteInt32Array(w, ds.labels.Inputs(), c)
		}},
	}
	if ds.whitening != nil {
		artifacts = append(artifacts, artifact{WhiteningFile, func(w io.Writer) (persistence.Summary, error) {
			return persistence.WriteWhitening(w, ds.whitening, c)
		}})
	} else if err := store.Delete(ctx, WhiteningFile); err != nil {
		return &PersistenceError{Artifact: WhiteningFile, Location: location(store, WhiteningFile), Err: err}
	}

	m := Manifest{
		Version:     ManifestVersion,
		Codec:       ds.opts.codec.Name(),
		State:       ds.state.String(),
		Dim:         ds.inDim,
		IndexDim:    ds.dim,
		NCentroids:  ds.index.NList(),
		NProbe:      ds.nprobe,
		Count:       ds.labels.Len(),
		VocabSize:   ds.vocabSize,
		Compression: c.String(),
		CreatedAt:   time.Now().UTC(),
	}

	for _, a := range artifacts {
		var sum persistence.Summary
		err := blobstore.WriteTo(ctx, store, a.name, func(w io.Writer) error {
			var err error
			sum, err = a.write(resource.NewRateLimitedWriter(ctx, w, ds.opts.resources))
			return err
		})
		if err != nil {
			return &PersistenceError{Artifact: a.name, Location: location(store, a.name), Err: err}
		}
		written += sum.Size
		m.Artifacts = append(m.Artifacts, ArtifactInfo{Name: a.name, Size: sum.Size, CRC32: sum.Checksum})
	}

	data, err := ds.opts.codec.Marshal(&m)
	if err != nil {
		return &PersistenceError{Artifact: ManifestFile, Location: location(store, ManifestFile), Err: err}
	}
	if err := store.Put(ctx, ManifestFile, data); err != nil {
		return &PersistenceError{Artifact: ManifestFile, Location: location(store, ManifestFile), Err: err}
	}
	written += int64(len(data))

	return nil
}

// SaveDir saves the datastore into a local directory, creating it if needed.
func (ds *Datastore) SaveDir(ctx context.Context, dir string) error {
	return ds.Save(ctx, blobstore.NewLocalStore(dir))
}

// ReadManifest reads and decodes the manifest in store.
func ReadManifest(ctx context.Context, store blobstore.BlobStore) (*Manifest, error) {
	data, err := blobstore.ReadAll(ctx, store, ManifestFile)
	if err != nil {
		return nil, &PersistenceError{Artifact: ManifestFile, Location: location(store, ManifestFile), Err: err}
	}

	// Every built-in codec reads JSON, so the manifest is decoded before its
	// codec name is known and checked afterwards.
	var m Manifest
	if err := codec.Default.Unmarshal(data, &m); err != nil {
		return nil, &PersistenceError{Artifact: ManifestFile, Location: location(store, ManifestFile), Err: err}
	}
	if m.Version != ManifestVersion {
		return nil, &PersistenceError{
			Artifact: ManifestFile,
			Location: location(store, ManifestFile),
			Err:      fmt.Errorf("%w: manifest version %d", persistence.ErrInvalidVersion, m.Version),
		}
	}
	if _, ok := codec.ByName(m.Codec); !ok {
		return nil, &PersistenceError{
			Artifact: ManifestFile,
			Location: location(store, ManifestFile),
			Err:      fmt.Errorf("unknown codec %q", m.Codec),
		}
	}
	return &m, nil
}

// Load reads a datastore saved by Save. Options configure runtime behavior
// such as workers, logging and limits; the trained parameters come from
// the store.
func Load(ctx context.Context, store blobstore.BlobStore, optFns ...Option) (_ *Datastore, err error) {
	ds := New(optFns...)

	start := time.Now()
	var read int64
	defer func() {
		count := 0
		if err == nil {
			count = ds.labels.Len()
		}
		ds.opts.logger.LogLoad(ctx, location(store, ""), count, time.Since(start), err)
		ds.opts.metricsCollector.RecordLoad(read, time.Since(start), err)
	}()

	m, err := ReadManifest(ctx, store)
	if err != nil {
		return nil, err
	}
	state, err := parseState(m.State)
	if err != nil || state == StateUntrained {
		return nil, &PersistenceError{
			Artifact: ManifestFile,
			Location: location(store, ManifestFile),
			Err:      fmt.Errorf("%w: state %q", ErrCorruptDatastore, m.State),
		}
	}

	var total int64
	for _, a := range m.Artifacts {
		total += a.Size
	}
	if err := ds.opts.resources.AcquireMemory(ctx, total); err != nil {
		return nil, err
	}
	ds.reserved = total
	defer func() {
		if err != nil {
			ds.opts.resources.ReleaseMemory(total)
		}
	}()

	// view verifies an artifact against the manifest before decoding it.
	view := func(name string, decode func(data []byte) error) error {
		info, ok := m.Artifact(name)
		if !ok {
			return &PersistenceError{Artifact: name, Location: location(store, name), Err: fmt.Errorf("%w: not in manifest", ErrCorruptDatastore)}
		}
		err := blobstore.View(ctx, store, name, func(data []byte) error {
			if int64(len(data)) != info.Size {
				return fmt.Errorf("%w: size %d, manifest says %d", ErrCorruptDatastore, len(data), info.Size)
			}
			if err := ds.opts.resources.AcquireIO(ctx, len(data)); err != nil {
				return err
			}
			if err := decode(data); err != nil {
				return err
			}
			read += info.Size
			return nil
		})
		if err != nil {
			return &PersistenceError{Artifact: name, Location: location(store, name), Err: err}
		}
		return nil
	}

	var (
		index  *ivf.Index
		nprobe int
		labels []int32
		inputs []int32
		white  *whiten.Transform
	)

	err = view(IndexFile, func(data []byte) error {
		var err error
		index, nprobe, err = persistence.ReadIndex(data, ds.ivfOptions)
		if err == nil {
			err = checkCRC(data, m, IndexFile)
		}
		return err
	})
	if err != nil {
		return nil, err
	}

	err = view(TokenIDFile, func(data []byte) error {
		var err error
		if labels, err = persistence.ReadInt32Array(data); err == nil {
			err = checkCRC(data, m, TokenIDFile)
		}
		return err
	})
	if err != nil {
		return nil, err
	}

	err = view(InputIDFile, func(data []byte) error {
		var err error
		if inputs, err = persistence.ReadInt32Array(data); err == nil {
			err = checkCRC(data, m, InputIDFile)
		}
		return err
	})
	if err != nil {
		return nil, err
	}

	if _, ok := m.Artifact(WhiteningFile); ok {
		err = view(WhiteningFile, func(data []byte) error {
			var err error
			if white, err = persistence.ReadWhitening(data); err == nil {
				err = checkCRC(data, m, WhiteningFile)
			}
			return err
		})
		if err != nil {
			return nil, err
		}
	}

	ls, err := labelstore.FromArrays(labels, inputs)
	if err != nil {
		return nil, &PersistenceError{Artifact: InputIDFile, Location: location(store, InputIDFile), Err: err}
	}
	if ls.Len() != index.Len() || index.Len() != m.Count {
		return nil, &PersistenceError{
			Artifact: TokenIDFile,
			Location: location(store, TokenIDFile),
			Err:      fmt.Errorf("%w: %d labels for %d vectors, manifest says %d", ErrCorruptDatastore, ls.Len(), index.Len(), m.Count),
		}
	}

	inDim := index.Dim()
	if white != nil {
		if white.OutDim() != index.Dim() {
			return nil, &PersistenceError{
				Artifact: WhiteningFile,
				Location: location(store, WhiteningFile),
				Err:      fmt.Errorf("%w: whitening yields %d values, index holds %d", ErrCorruptDatastore, white.OutDim(), index.Dim()),
			}
		}
		inDim = white.InDim()
	}

	ds.index = index
	ds.labels = ls
	ds.nextID = uint64(ls.Len())
	ds.whitening = white
	ds.inDim = inDim
	ds.dim = index.Dim()
	ds.nprobe = nprobe
	ds.vocabSize = m.VocabSize
	ds.state = StateTrained
	if index.Len() > 0 {
		ds.state = StatePopulated
	}

	return ds, nil
}

func checkCRC(data []byte, m *Manifest, name string) error {
	info, _ := m.Artifact(name)
	// The trailer was verified against the content while decoding.
	if got := binary.LittleEndian.Uint32(data[len(data)-persistence.TrailerSize:]); got != info.CRC32 {
		return &persistence.ChecksumMismatchError{Expected: info.CRC32, Actual: got}
	}
	return nil
}

// LoadDir loads a datastore from a local directory.
func LoadDir(ctx context.Context, dir string, optFns ...Option) (*Datastore, error) {
	return Load(ctx, blobstore.NewLocalStore(dir), optFns...)
}

// IsNotFound reports whether err means the datastore or one of its
// artifacts does not exist.
func IsNotFound(err error) bool {
	return errors.Is(err, blobstore.ErrNotFound)
}
