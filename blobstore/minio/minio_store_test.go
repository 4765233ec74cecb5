package minio

import (
	"context"
	"errors"
	"io"
	"os"
	"testing"

	"github.com/minio/minio-go/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/knnstore/blobstore"
)

func TestDial(t *testing.T) {
	store, err := Dial("localhost:9000", "bucket",
		WithCredentials("minioadmin", "minioadmin"),
		WithRegion("us-east-1"),
		WithPrefix("datastores/wiki/"),
	)
	require.NoError(t, err)

	assert.Equal(t, "datastores/wiki/index.trained", store.key("index.trained"))
	assert.Equal(t, "index.trained", store.relative("datastores/wiki/index.trained"))

	_, err = Dial("", "bucket")
	assert.Error(t, err)
}

func TestIsNotFound(t *testing.T) {
	assert.True(t, isNotFound(minio.ErrorResponse{Code: "NoSuchKey"}))
	assert.True(t, isNotFound(minio.ErrorResponse{Code: "NotFound"}))
	assert.False(t, isNotFound(minio.ErrorResponse{Code: "AccessDenied"}))
	assert.False(t, isNotFound(errors.New("boom")))
}

// TestMinioStore_Integration requires a running MinIO instance.
// Set MINIO_ENDPOINT to run it.
func TestMinioStore_Integration(t *testing.T) {
	endpoint := os.Getenv("MINIO_ENDPOINT")
	if endpoint == "" {
		t.Skip("Skipping MinIO integration test: MINIO_ENDPOINT not set")
	}

	store, err := Dial(endpoint, "test-knnstore",
		WithCredentials("minioadmin", "minioadmin"),
		WithPrefix("test-prefix/"),
	)
	require.NoError(t, err)

	ctx := context.Background()

	exists, err := store.client.BucketExists(ctx, store.bucket)
	require.NoError(t, err)
	if !exists {
		require.NoError(t, store.client.MakeBucket(ctx, store.bucket, minio.MakeBucketOptions{}))
	}

	data := []byte("hello minio world")
	require.NoError(t, store.Put(ctx, "test.txt", data))

	got, err := blobstore.ReadAll(ctx, store, "test.txt")
	require.NoError(t, err)
	assert.Equal(t, data, got)

	err = blobstore.WriteTo(ctx, store, "stream.bin", func(w io.Writer) error {
		_, err := w.Write(data)
		return err
	})
	require.NoError(t, err)

	names, err := store.List(ctx, "")
	require.NoError(t, err)
	assert.Contains(t, names, "stream.bin")

	require.NoError(t, store.Delete(ctx, "test.txt"))
	require.NoError(t, store.Delete(ctx, "stream.bin"))

	_, err = store.Open(ctx, "test.txt")
	assert.ErrorIs(t, err, blobstore.ErrNotFound)
}
