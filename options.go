package knnstore

import (
	"log/slog"
	"runtime"

	"github.com/hupe1980/knnstore/codec"
	"github.com/hupe1980/knnstore/internal/kmeans"
	"github.com/hupe1980/knnstore/persistence"
	"github.com/hupe1980/knnstore/resource"
	"github.com/hupe1980/knnstore/whiten"
)

// Defaults follow the kNN-LM datastore setup.
const (
	DefaultNCentroids = 4096
	DefaultNProbe     = 32
)

type options struct {
	nCentroids       int
	nprobe           int
	seed             int64
	maxIter          int
	workers          int
	whitening        bool
	whiteningDim     int
	whiteningClamp   bool // cap whiteningDim at the key dimension
	whiteningOrder   whiten.Order
	trainSample      float64
	codec            codec.Codec
	compression      persistence.Compression
	metricsCollector MetricsCollector
	logger           *Logger
	resources        *resource.Controller
}

// Option configures a Datastore.
type Option func(*options)

// WithNCentroids sets the number of coarse centroids (inverted lists).
func WithNCentroids(n int) Option {
	return func(o *options) {
		o.nCentroids = n
	}
}

// WithNProbe sets how many lists a search scans.
func WithNProbe(n int) Option {
	return func(o *options) {
		o.nprobe = n
	}
}

// WithSeed sets the seed for centroid initialization and training-sample
// selection.
func WithSeed(seed int64) Option {
	return func(o *options) {
		o.seed = seed
	}
}

// WithMaxIterations caps the number of k-means iterations.
func WithMaxIterations(n int) Option {
	return func(o *options) {
		o.maxIter = n
	}
}

// WithWorkers bounds the goroutines used for training, insertion and search.
func WithWorkers(n int) Option {
	return func(o *options) {
		o.workers = n
	}
}

// WithWhitening fits a whitening transform during Train and applies it to
// every added key and query. dim of zero keeps the full dimension; a smaller
// value keeps the leading components.
//
// Example:
//
//	ds := knnstore.New(knnstore.WithWhitening(256, whiten.ReduceThenNormalize))
func WithWhitening(dim int, order whiten.Order) Option {
	return func(o *options) {
		o.whitening = true
		o.whiteningDim = dim
		o.whiteningClamp = false
		o.whiteningOrder = order
	}
}

// WithWhiteningAtMost is WithWhitening with dim capped at the dimension of
// the training keys, so a default target never exceeds smaller inputs.
func WithWhiteningAtMost(dim int, order whiten.Order) Option {
	return func(o *options) {
		WithWhitening(dim, order)(o)
		o.whiteningClamp = true
	}
}

// WithTrainSample sets the fraction of keys, in (0, 1], used to train the
// quantizer. All keys are still added.
func WithTrainSample(fraction float64) Option {
	return func(o *options) {
		o.trainSample = fraction
	}
}

// WithCodec configures the codec used for the manifest.
//
// If nil is passed, codec.Default is used.
func WithCodec(c codec.Codec) Option {
	return func(o *options) {
		if c == nil {
			c = codec.Default
		}
		o.codec = c
	}
}

// WithCompression selects the compression of binary artifacts on Save.
func WithCompression(c persistence.Compression) Option {
	return func(o *options) {
		o.compression = c
	}
}

// WithMetricsCollector configures a metrics collector for monitoring operations.
// Pass nil to disable metrics collection.
//
// Example with BasicMetricsCollector:
//
//	metrics := &knnstore.BasicMetricsCollector{}
//	ds := knnstore.New(knnstore.WithMetricsCollector(metrics))
//	// ... use ds ...
//	stats := metrics.GetStats()
//	fmt.Printf("Searches: %d, Avg latency: %dns\n", stats.SearchCount, stats.SearchAvgNanos)
func WithMetricsCollector(mc MetricsCollector) Option {
	return func(o *options) {
		if mc == nil {
			mc = NoopMetricsCollector{}
		}
		o.metricsCollector = mc
	}
}

// WithLogger configures structured logging for operations.
// Pass nil to disable logging.
func WithLogger(logger *Logger) Option {
	return func(o *options) {
		if logger == nil {
			logger = NoopLogger()
		}
		o.logger = logger
	}
}

// WithLogLevel creates a text logger with the specified level and sets it.
// Convenience wrapper for WithLogger(NewTextLogger(level)).
func WithLogLevel(level slog.Level) Option {
	return func(o *options) {
		o.logger = NewTextLogger(level)
	}
}

// WithResourceController shares memory, search and I/O limits between
// datastores.
func WithResourceController(rc *resource.Controller) Option {
	return func(o *options) {
		o.resources = rc
	}
}

func applyOptions(optFns []Option) options {
	o := options{
		nCentroids:       DefaultNCentroids,
		nprobe:           DefaultNProbe,
		maxIter:          kmeans.DefaultMaxIter,
		workers:          runtime.GOMAXPROCS(0),
		trainSample:      1,
		codec:            codec.Default,
		compression:      persistence.CompressionNone,
		metricsCollector: NoopMetricsCollector{},
		logger:           NoopLogger(),
	}
	for _, fn := range optFns {
		if fn != nil {
			fn(&o)
		}
	}
	if o.workers <= 0 {
		o.workers = 1
	}
	return o
}
