package cli

import (
	"github.com/kelseyhightower/envconfig"
	"github.com/spf13/pflag"

	"github.com/vnykmshr/webstreams/pkg/common/validation"
)

// Config holds settings shared by every command. Values come from
// WEBSTREAMS_* environment variables and are overridden by flags.
type Config struct {
	HighWaterMark float64 `envconfig:"high_water_mark" default:"65536"`
	ChunkSize     int     `envconfig:"chunk_size" default:"32768"`
	MetricsAddr   string  `envconfig:"metrics_addr"`
	RedisAddr     string  `envconfig:"redis_addr"`
	Verbose       bool    `envconfig:"verbose"`
}

func readEnvConfig() (Config, error) {
	var conf Config
	err := envconfig.Process("webstreams", &conf)
	return conf, err
}

func (c *Config) bindFlags(flags *pflag.FlagSet) {
	flags.Float64Var(&c.HighWaterMark, "high-water-mark", 65536, "bytes buffered per stream before backpressure applies")
	flags.IntVar(&c.ChunkSize, "chunk-size", 32768, "size of chunks read from the input")
	flags.StringVar(&c.MetricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")
	flags.StringVar(&c.RedisAddr, "redis-addr", "", "Redis address for distributed rate limiting")
	flags.BoolVarP(&c.Verbose, "verbose", "v", false, "enable debug logging")
}

// applyFlags overrides env with every flag the user set explicitly.
func (c Config) applyFlags(env Config, flags *pflag.FlagSet) Config {
	out := env
	if flags.Changed("high-water-mark") {
		out.HighWaterMark = c.HighWaterMark
	}
	if flags.Changed("chunk-size") {
		out.ChunkSize = c.ChunkSize
	}
	if flags.Changed("metrics-addr") {
		out.MetricsAddr = c.MetricsAddr
	}
	if flags.Changed("redis-addr") {
		out.RedisAddr = c.RedisAddr
	}
	if flags.Changed("verbose") {
		out.Verbose = c.Verbose
	}
	return out
}

func (c Config) validate() error {
	if err := validation.ValidateNonNegative("cli", "high-water-mark", c.HighWaterMark); err != nil {
		return err
	}
	if err := validation.ValidateFinite("cli", "high-water-mark", c.HighWaterMark); err != nil {
		return err
	}
	return validation.ValidatePositive("cli", "chunk-size", c.ChunkSize)
}
