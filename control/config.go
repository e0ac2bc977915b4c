// control/config.go
// Author: momentics <momentics@gmail.com>
//
// Runtime configuration with defaults and TOML file loading.

package control

import (
	"fmt"
	"strings"

	"github.com/BurntSushi/toml"
)

// Config tunes the runtime. Zero values are replaced by defaults in Normalize.
type Config struct {
	// Workers is the number of completion workers; zero means one per core.
	Workers int `toml:"workers"`

	// MaxCompletionsPerWait caps the entries harvested by one wait call.
	MaxCompletionsPerWait int `toml:"max_completions_per_wait"`

	// MinBufferBucket is the smallest scratch buffer handed to the native layer.
	MinBufferBucket int `toml:"min_buffer_bucket"`

	// PoolCapacity bounds the idle items of each context and buffer pool.
	PoolCapacity int `toml:"pool_capacity"`

	// ListenBacklog is used by Listener.TryListen when no backlog is given.
	ListenBacklog int `toml:"listen_backlog"`

	// PinWorkers binds each completion worker to one CPU.
	PinWorkers bool `toml:"pin_workers"`

	// AdjustMaxProcs aligns GOMAXPROCS with the container CPU quota at startup.
	AdjustMaxProcs bool `toml:"adjust_maxprocs"`

	// MetricsNamespace prefixes every exported metric.
	MetricsNamespace string `toml:"metrics_namespace"`

	// LogLevel is the zap level name used when the runtime builds its own logger.
	LogLevel string `toml:"log_level"`
}

// DefaultConfig returns the default runtime configuration.
func DefaultConfig() Config {
	return Config{
		Workers:               0,
		MaxCompletionsPerWait: 4096,
		MinBufferBucket:       64,
		PoolCapacity:          4096,
		ListenBacklog:         128,
		PinWorkers:            false,
		AdjustMaxProcs:        false,
		MetricsNamespace:      "hioload_net",
		LogLevel:              "info",
	}
}

// Normalize fills unset fields from DefaultConfig.
func (c Config) Normalize() Config {
	def := DefaultConfig()
	if c.MaxCompletionsPerWait <= 0 {
		c.MaxCompletionsPerWait = def.MaxCompletionsPerWait
	}
	if c.MinBufferBucket <= 0 {
		c.MinBufferBucket = def.MinBufferBucket
	}
	if c.PoolCapacity <= 0 {
		c.PoolCapacity = def.PoolCapacity
	}
	if c.ListenBacklog <= 0 {
		c.ListenBacklog = def.ListenBacklog
	}
	if c.MetricsNamespace == "" {
		c.MetricsNamespace = def.MetricsNamespace
	}
	if c.LogLevel == "" {
		c.LogLevel = def.LogLevel
	}
	return c
}

// Validate rejects settings no runtime can start with.
func (c Config) Validate() error {
	if c.Workers < 0 {
		return fmt.Errorf("control: workers must not be negative, got %d", c.Workers)
	}
	if c.MaxCompletionsPerWait < 0 {
		return fmt.Errorf("control: max_completions_per_wait must not be negative, got %d", c.MaxCompletionsPerWait)
	}
	if c.MinBufferBucket&(c.MinBufferBucket-1) != 0 {
		return fmt.Errorf("control: min_buffer_bucket must be a power of two, got %d", c.MinBufferBucket)
	}
	return nil
}

// LoadConfig reads a TOML file over DefaultConfig. Unknown keys are errors.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	md, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return Config{}, fmt.Errorf("control: load %s: %w", path, err)
	}
	return finish(cfg, md)
}

// ParseConfig decodes TOML text over DefaultConfig.
func ParseConfig(text string) (Config, error) {
	cfg := DefaultConfig()
	md, err := toml.Decode(text, &cfg)
	if err != nil {
		return Config{}, fmt.Errorf("control: parse config: %w", err)
	}
	return finish(cfg, md)
}

func finish(cfg Config, md toml.MetaData) (Config, error) {
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return Config{}, fmt.Errorf("control: unknown config keys: %s", strings.Join(keys, ", "))
	}
	cfg = cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
