package main

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"github.com/hupe1980/knnstore"
	"github.com/hupe1980/knnstore/codec"
	"github.com/hupe1980/knnstore/persistence"
	"github.com/hupe1980/knnstore/resource"
	"github.com/hupe1980/knnstore/whiten"
)

const envPrefix = "KNNSTORE"

// Config holds the CLI settings. Every field can be set through a
// KNNSTORE_* environment variable and most through a flag.
type Config struct {
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`
	LogFormat   string `envconfig:"LOG_FORMAT" default:"text"`
	MetricsAddr string `envconfig:"METRICS_ADDR" default:""`

	// Index
	NCentroids    int     `envconfig:"N_CENTROIDS" default:"4096"`
	NProbe        int     `envconfig:"NPROBE" default:"32"`
	Seed          int64   `envconfig:"SEED" default:"0"`
	MaxIterations int     `envconfig:"MAX_ITERATIONS" default:"0"`
	Workers       int     `envconfig:"WORKERS" default:"0"`
	TrainSample   float64 `envconfig:"TRAIN_SAMPLE" default:"1"`

	// Whitening
	Whitening      bool   `envconfig:"WHITENING" default:"false"`
	DimReduction   int    `envconfig:"DIM_REDUCTION" default:"768"`
	WhiteningOrder string `envconfig:"WHITENING_ORDER" default:"reduce-then-normalize"`

	// DimReductionSet reports whether DimReduction was given explicitly.
	// The default is capped at the key dimension; an explicit value is not.
	DimReductionSet bool `ignored:"true"`

	// Build
	SamplePercentage float64 `envconfig:"SAMPLE_PERCENTAGE" default:"100"`
	Compression      string  `envconfig:"COMPRESSION" default:"none"`
	Codec            string  `envconfig:"CODEC" default:"go-json"`

	// Search
	K           int     `envconfig:"K" default:"1024"`
	Temperature float64 `envconfig:"TEMPERATURE" default:"1"`
	VocabSize   int     `envconfig:"VOCAB_SIZE" default:"0"`

	// Resource limits
	MemoryLimitBytes      int64 `envconfig:"MEMORY_LIMIT_BYTES" default:"0"`
	MaxConcurrentSearches int64 `envconfig:"MAX_CONCURRENT_SEARCHES" default:"0"`
	IOLimitBytesPerSec    int64 `envconfig:"IO_LIMIT_BYTES_PER_SEC" default:"0"`

	// Object storage
	S3Region       string `envconfig:"S3_REGION" default:""`
	MinioEndpoint  string `envconfig:"MINIO_ENDPOINT" default:""`
	MinioAccessKey string `envconfig:"MINIO_ACCESS_KEY" default:""`
	MinioSecretKey string `envconfig:"MINIO_SECRET_KEY" default:""`
	MinioSecure    bool   `envconfig:"MINIO_SECURE" default:"false"`
}

// loadConfig reads the optional env file and then the environment.
// Variables already set in the environment win over the file.
func loadConfig() (*Config, error) {
	envFile := os.Getenv(envPrefix + "_ENV_FILE")
	if envFile == "" {
		envFile = ".env"
	}
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load %s: %w", envFile, err)
	}

	var cfg Config
	if err := envconfig.Process(envPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("process config: %w", err)
	}
	_, cfg.DimReductionSet = os.LookupEnv(envPrefix + "_DIM_REDUCTION")
	return &cfg, nil
}

func (c *Config) logger() (*knnstore.Logger, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", c.LogLevel, err)
	}

	switch strings.ToLower(c.LogFormat) {
	case "text", "":
		return knnstore.NewTextLogger(level), nil
	case "json":
		return knnstore.NewJSONLogger(level), nil
	default:
		return nil, fmt.Errorf("invalid log format %q", c.LogFormat)
	}
}

func (c *Config) resources() *resource.Controller {
	if c.MemoryLimitBytes == 0 && c.MaxConcurrentSearches == 0 && c.IOLimitBytesPerSec == 0 {
		return nil
	}
	return resource.NewController(resource.Config{
		MemoryLimitBytes:      c.MemoryLimitBytes,
		MaxConcurrentSearches: c.MaxConcurrentSearches,
		IOLimitBytesPerSec:    c.IOLimitBytesPerSec,
	})
}

// options translates the config into datastore options.
func (c *Config) options() ([]knnstore.Option, error) {
	comp, err := persistence.ParseCompression(c.Compression)
	if err != nil {
		return nil, err
	}
	cd, ok := codec.ByName(c.Codec)
	if !ok {
		return nil, fmt.Errorf("unknown codec %q", c.Codec)
	}

	opts := []knnstore.Option{
		knnstore.WithNCentroids(c.NCentroids),
		knnstore.WithNProbe(c.NProbe),
		knnstore.WithSeed(c.Seed),
		knnstore.WithTrainSample(c.TrainSample),
		knnstore.WithCompression(comp),
		knnstore.WithCodec(cd),
		knnstore.WithResourceController(c.resources()),
	}
	if c.MaxIterations > 0 {
		opts = append(opts, knnstore.WithMaxIterations(c.MaxIterations))
	}
	if c.Workers > 0 {
		opts = append(opts, knnstore.WithWorkers(c.Workers))
	}
	if c.Whitening {
		order, err := whiten.ParseOrder(c.WhiteningOrder)
		if err != nil {
			return nil, err
		}
		if c.DimReductionSet {
			opts = append(opts, knnstore.WithWhitening(c.DimReduction, order))
		} else {
			opts = append(opts, knnstore.WithWhiteningAtMost(c.DimReduction, order))
		}
	}

	return opts, nil
}
