package pixfunc

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/gogpu/pixfunc/internal/simd"
)

// Config holds the tunables of a Realizer. It can be loaded from YAML:
//
//	workers: 8
//	stage_concurrency: 2
//	vector_width: 8
//	trace_stores: false
//	dump_loop_nest: true
type Config struct {
	// Workers is the size of the worker pool for parallel loops.
	// Zero means GOMAXPROCS.
	Workers int `yaml:"workers"`

	// StageConcurrency is how many independent producer stages may be
	// materialized at once. Zero means one.
	StageConcurrency int `yaml:"stage_concurrency"`

	// VectorWidth is the number of lanes evaluated per batch in vectorized
	// loops. Zero selects the width from the CPU.
	VectorWidth int `yaml:"vector_width"`

	// TraceStores writes a "Store f(x, y) = v" line per stored value.
	TraceStores bool `yaml:"trace_stores"`

	// DumpLoopNest writes each stage's lowered loop nest before it runs.
	DumpLoopNest bool `yaml:"dump_loop_nest"`
}

// DefaultConfig returns the configuration used when no options are given.
func DefaultConfig() Config {
	return Config{
		StageConcurrency: 1,
		VectorWidth:      simd.Lanes(4),
	}
}

// Validate reports negative settings.
func (c Config) Validate() error {
	switch {
	case c.Workers < 0:
		return fmt.Errorf("%w: workers = %d", ErrInvalidConfig, c.Workers)
	case c.StageConcurrency < 0:
		return fmt.Errorf("%w: stage_concurrency = %d", ErrInvalidConfig, c.StageConcurrency)
	case c.VectorWidth < 0:
		return fmt.Errorf("%w: vector_width = %d", ErrInvalidConfig, c.VectorWidth)
	}
	return nil
}

// normalized replaces zero settings with their defaults.
func (c Config) normalized() Config {
	if c.StageConcurrency == 0 {
		c.StageConcurrency = 1
	}
	if c.VectorWidth == 0 {
		c.VectorWidth = simd.Lanes(4)
	}
	return c
}

// ParseConfig decodes YAML over DefaultConfig. Unknown keys are rejected.
func ParseConfig(data []byte) (Config, error) {
	return decodeConfig(bytes.NewReader(data))
}

// LoadConfig reads a YAML configuration file.
func LoadConfig(path string) (Config, error) {
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return Config{}, fmt.Errorf("pixfunc: open config: %w", err)
	}
	defer func() { _ = f.Close() }()
	return decodeConfig(f)
}

func decodeConfig(r io.Reader) (Config, error) {
	cfg := DefaultConfig()
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
