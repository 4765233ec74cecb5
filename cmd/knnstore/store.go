package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/hupe1980/knnstore/blobstore"
	"github.com/hupe1980/knnstore/blobstore/minio"
	"github.com/hupe1980/knnstore/blobstore/s3"
)

// location is a parsed store address.
type location struct {
	Scheme string // "file", "s3" or "minio"
	Bucket string
	Prefix string // key prefix, or the directory for "file"
}

func parseLocation(s string) (location, error) {
	if s == "" {
		return location{}, errors.New("empty location")
	}

	scheme, rest, ok := strings.Cut(s, "://")
	if !ok {
		return location{Scheme: "file", Prefix: s}, nil
	}

	switch scheme {
	case "file":
		return location{Scheme: "file", Prefix: rest}, nil
	case "s3", "minio":
		bucket, prefix, _ := strings.Cut(rest, "/")
		if bucket == "" {
			return location{}, fmt.Errorf("missing bucket in %q", s)
		}
		prefix = strings.Trim(prefix, "/")
		if prefix != "" {
			prefix += "/"
		}
		return location{Scheme: scheme, Bucket: bucket, Prefix: prefix}, nil
	default:
		return location{}, fmt.Errorf("unsupported scheme %q in %q", scheme, s)
	}
}

// openStore resolves a location string to a blob store.
func openStore(ctx context.Context, cfg *Config, s string) (blobstore.BlobStore, error) {
	loc, err := parseLocation(s)
	if err != nil {
		return nil, err
	}

	switch loc.Scheme {
	case "s3":
		return s3.New(ctx, loc.Bucket, s3.WithPrefix(loc.Prefix), s3.WithRegion(cfg.S3Region))
	case "minio":
		if cfg.MinioEndpoint == "" {
			return nil, fmt.Errorf("%s requires %s_MINIO_ENDPOINT", s, envPrefix)
		}
		optFns := []func(o *minio.DialOptions){
			minio.WithCredentials(cfg.MinioAccessKey, cfg.MinioSecretKey),
			minio.WithPrefix(loc.Prefix),
		}
		if cfg.MinioSecure {
			optFns = append(optFns, minio.WithTLS())
		}
		if cfg.S3Region != "" {
			optFns = append(optFns, minio.WithRegion(cfg.S3Region))
		}
		return minio.Dial(cfg.MinioEndpoint, loc.Bucket, optFns...)
	default:
		return blobstore.NewLocalStore(loc.Prefix), nil
	}
}
