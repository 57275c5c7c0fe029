package pixfunc

import (
	"io"
	"os"
)

// Option configures a Realizer during creation.
// Use functional options to customize realization behavior.
//
// Example:
//
//	// Defaults: GOMAXPROCS workers, CPU vector width, no tracing
//	r, err := pixfunc.NewRealizer()
//
//	// Four workers, trace every store to stdout
//	r, err := pixfunc.NewRealizer(pixfunc.WithWorkers(4), pixfunc.WithTraceStores(true))
type Option func(*options)

// options holds optional configuration for Realizer creation.
type options struct {
	cfg  Config
	hook func(TraceEvent)
	out  io.Writer
}

// defaultOptions returns the default realizer options.
func defaultOptions() options {
	return options{
		cfg: DefaultConfig(),
		out: os.Stderr,
	}
}

// WithConfig replaces the whole configuration, for example one read by
// LoadConfig. Options after it still apply on top.
func WithConfig(cfg Config) Option {
	return func(o *options) {
		o.cfg = cfg
	}
}

// WithWorkers sets the worker pool size. Zero means GOMAXPROCS.
func WithWorkers(n int) Option {
	return func(o *options) {
		o.cfg.Workers = n
	}
}

// WithStageConcurrency sets how many independent producer stages may be
// materialized at the same time.
func WithStageConcurrency(n int) Option {
	return func(o *options) {
		o.cfg.StageConcurrency = n
	}
}

// WithVectorWidth sets the number of lanes per batch in vectorized loops.
func WithVectorWidth(n int) Option {
	return func(o *options) {
		o.cfg.VectorWidth = n
	}
}

// WithTraceStores enables a "Store f(x, y) = v" line per stored value on
// the output writer.
func WithTraceStores(enabled bool) Option {
	return func(o *options) {
		o.cfg.TraceStores = enabled
	}
}

// WithDumpLoopNest writes each stage's lowered loop nest to the output
// writer before it runs.
func WithDumpLoopNest(enabled bool) Option {
	return func(o *options) {
		o.cfg.DumpLoopNest = enabled
	}
}

// WithStoreHook installs a callback invoked for every value a stage
// produces. Under parallel loops it is called concurrently, in no
// particular order, so it must be safe for concurrent use.
func WithStoreHook(fn func(TraceEvent)) Option {
	return func(o *options) {
		o.hook = fn
	}
}

// WithOutput sets the writer for store traces, loop nest dumps and Print
// expressions. The default is os.Stderr; nil discards the output.
func WithOutput(w io.Writer) Option {
	return func(o *options) {
		o.out = w
	}
}
