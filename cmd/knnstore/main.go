// Command knnstore builds, inspects and queries kNN-LM datastores.
//
// Usage:
//
//	knnstore build  --feature-dir ./features --output-dir ./datastore
//	knnstore info   --dir ./datastore
//	knnstore search --dir ./datastore --queries ./features --queries-shard valid_0 --vocab-size 50257
//
// Defaults are read from KNNSTORE_* environment variables, optionally from a
// .env file (KNNSTORE_ENV_FILE). Flags override both.
//
// Locations are local directories or s3://bucket/prefix and
// minio://bucket/prefix URLs.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd(cfg).ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		stop()
		os.Exit(1)
	}
}
