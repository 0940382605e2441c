package main

import (
	"errors"
	"fmt"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// Config describes one benchmark run. It can be loaded from a TOML file;
// flags set on the command line override file values.
type Config struct {
	Cache    CacheConfig    `toml:"cache"`
	Workload WorkloadConfig `toml:"workload"`
	Serve    ServeConfig    `toml:"serve"`
}

type CacheConfig struct {
	Capacity int `toml:"capacity"`
	Shards   int `toml:"shards"` // 0/1 strict, >1 sharded, -1 auto
}

type WorkloadConfig struct {
	Workers  int           `toml:"workers"`
	Duration time.Duration `toml:"duration"`
	ReadPct  int           `toml:"read_pct"`
	Keys     int           `toml:"keys"`
	ZipfS    float64       `toml:"zipf_s"`
	ZipfV    float64       `toml:"zipf_v"`
	Seed     int64         `toml:"seed"`
	Preload  int           `toml:"preload"`  // 0 = capacity/2
	RateOps  float64       `toml:"rate_ops"` // aggregate ops/s cap; 0 = unlimited
}

type ServeConfig struct {
	Metrics string `toml:"metrics"` // empty = disabled
	Pprof   string `toml:"pprof"`   // empty = disabled
}

// DefaultConfig returns the settings used when neither a file nor flags
// say otherwise.
func DefaultConfig() Config {
	return Config{
		Cache: CacheConfig{
			Capacity: 100_000,
			Shards:   1,
		},
		Workload: WorkloadConfig{
			Workers:  2 * runtime.GOMAXPROCS(0),
			Duration: 10 * time.Second,
			ReadPct:  80,
			Keys:     1_000_000,
			ZipfS:    1.1,
			ZipfV:    1.0,
			Seed:     time.Now().UnixNano(),
		},
		Serve: ServeConfig{
			Metrics: ":8080",
		},
	}
}

// LoadConfig decodes path over the defaults. Keys absent from the file
// keep their default values; unknown keys are rejected.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	md, err := toml.Decode(string(data), &cfg)
	if err != nil {
		return cfg, fmt.Errorf("parse %s: %w", path, err)
	}
	if undec := md.Undecoded(); len(undec) > 0 {
		keys := make([]string, len(undec))
		for i, k := range undec {
			keys[i] = k.String()
		}
		return cfg, fmt.Errorf("parse %s: unknown keys: %s", path, strings.Join(keys, ", "))
	}
	return cfg, nil
}

// applyDefaults fills derived values left at zero.
func (c *Config) applyDefaults() {
	if c.Workload.Preload == 0 {
		c.Workload.Preload = c.Cache.Capacity / 2
	}
	if c.Workload.Workers <= 0 {
		c.Workload.Workers = 1
	}
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error
	if c.Cache.Capacity < 0 {
		errs = append(errs, errors.New("cache.capacity must be >= 0"))
	}
	if c.Cache.Shards < -1 {
		errs = append(errs, errors.New("cache.shards must be >= -1"))
	}
	if c.Workload.Duration <= 0 {
		errs = append(errs, errors.New("workload.duration must be positive"))
	}
	if c.Workload.ReadPct < 0 || c.Workload.ReadPct > 100 {
		errs = append(errs, errors.New("workload.read_pct must be in [0, 100]"))
	}
	if c.Workload.Keys < 1 {
		errs = append(errs, errors.New("workload.keys must be >= 1"))
	}
	if c.Workload.ZipfS <= 1 {
		errs = append(errs, errors.New("workload.zipf_s must be > 1"))
	}
	if c.Workload.ZipfV < 1 {
		errs = append(errs, errors.New("workload.zipf_v must be >= 1"))
	}
	if c.Workload.Preload < 0 {
		errs = append(errs, errors.New("workload.preload must be >= 0"))
	}
	if c.Workload.RateOps < 0 {
		errs = append(errs, errors.New("workload.rate_ops must be >= 0"))
	}
	return errors.Join(errs...)
}
