package main

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"

	"github.com/kelseyhightower/envconfig"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/knnstore/blobstore"
	"github.com/hupe1980/knnstore/features"
	"github.com/hupe1980/knnstore/persistence"
	"github.com/hupe1980/knnstore/testutil"
	"github.com/hupe1980/knnstore/whiten"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()

	var cfg Config
	require.NoError(t, envconfig.Process("KNNSTORE_TEST_RUN", &cfg))
	cfg.LogLevel = "error"

	var out bytes.Buffer
	cmd := newRootCmd(&cfg)
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)

	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func writeFeatures(t *testing.T, dir string) {
	t.Helper()

	rng := testutil.NewRNG(9)
	store := blobstore.NewLocalStore(dir)
	for s, name := range []string{"train_0", "train_1"} {
		keys := rng.ClusteredVectors(30, 4, 3, 0.05)
		labels := make([]int32, len(keys))
		inputs := make([]int32, len(keys))
		for i := range keys {
			labels[i] = int32((s*len(keys) + i) % 5)
			inputs[i] = int32(s*len(keys) + i)
		}
		require.NoError(t, features.WriteShard(context.Background(), store, name, keys, labels, inputs, persistence.CompressionLZ4))
	}
}

func TestBuildInfoSearch(t *testing.T) {
	featureDir := t.TempDir()
	outputDir := filepath.Join(t.TempDir(), "datastore")
	writeFeatures(t, featureDir)

	out, err := run(t, "build",
		"--feature-dir", featureDir,
		"--output-dir", outputDir,
		"--n-centroids", "4",
		"--nprobe", "4",
		"--seed", "7",
		"--compression", "zstd",
	)
	require.NoError(t, err, out)
	assert.Contains(t, out, "60 keys")
	assert.Contains(t, out, "4 centroids")

	out, err = run(t, "info", "--dir", outputDir, "--load")
	require.NoError(t, err, out)
	assert.Contains(t, out, "populated")
	assert.Contains(t, out, "zstd")
	assert.Contains(t, out, "lists: min")
	assert.Contains(t, out, "max label: 4")

	// Every query is a stored key, so its own label wins with k=1.
	out, err = run(t, "search",
		"--dir", outputDir,
		"--queries", featureDir,
		"--queries-shard", "train_1",
		"--k", "1",
		"--vocab-size", "5",
		"--top", "2",
	)
	require.NoError(t, err, out)
	assert.Contains(t, out, "top-1 accuracy: 1.0000 (30/30)")
}

func TestBuildWhiteningDefaultDim(t *testing.T) {
	featureDir := t.TempDir()
	writeFeatures(t, featureDir)

	// The 768 default is capped at the 4-dimensional keys.
	out, err := run(t, "build",
		"--feature-dir", featureDir,
		"--output-dir", t.TempDir(),
		"--n-centroids", "2",
		"--nprobe", "2",
		"--whitening",
	)
	require.NoError(t, err, out)
	assert.Contains(t, out, "dim 4 -> 4")

	out, err = run(t, "build",
		"--feature-dir", featureDir,
		"--output-dir", t.TempDir(),
		"--n-centroids", "2",
		"--nprobe", "2",
		"--whitening",
		"--dim-reduction", "3",
	)
	require.NoError(t, err, out)
	assert.Contains(t, out, "dim 4 -> 3")

	_, err = run(t, "build",
		"--feature-dir", featureDir,
		"--output-dir", t.TempDir(),
		"--n-centroids", "2",
		"--nprobe", "2",
		"--whitening",
		"--dim-reduction", "768",
	)
	assert.ErrorIs(t, err, whiten.ErrInvalidOutDim)
}

func TestBuildRequiresFlags(t *testing.T) {
	_, err := run(t, "build", "--feature-dir", t.TempDir())
	assert.Error(t, err)
}

func TestBuildNoShards(t *testing.T) {
	_, err := run(t, "build", "--feature-dir", t.TempDir(), "--output-dir", t.TempDir(), "--n-centroids", "2", "--nprobe", "1")
	assert.ErrorIs(t, err, features.ErrNoShards)
}

func TestSearchWithoutVocab(t *testing.T) {
	featureDir := t.TempDir()
	outputDir := t.TempDir()
	writeFeatures(t, featureDir)

	_, err := run(t, "build", "--feature-dir", featureDir, "--output-dir", outputDir, "--n-centroids", "2", "--nprobe", "2")
	require.NoError(t, err)

	_, err = run(t, "search", "--dir", outputDir, "--queries", featureDir, "--queries-shard", "train_0", "--k", "3")
	assert.Error(t, err)
}

func TestTopTokens(t *testing.T) {
	scores := []float32{0.1, 0.4, 0.1, 0.4, 0}

	assert.Equal(t, []int{1, 3, 0}, topTokens(scores, 3))
	assert.Equal(t, []int{1, 3, 0, 2, 4}, topTokens(scores, 10))
	assert.Empty(t, topTokens(nil, 3))
}
