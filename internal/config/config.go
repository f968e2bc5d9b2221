package config

import (
	"fmt"
	"runtime"
	"strings"

	"github.com/spf13/viper"
)

// Config holds all configuration for calyx
type Config struct {
	Unpack UnpackConfig
	Codec  CodecConfig
	Log    LogConfig
}

type UnpackConfig struct {
	TimeField     string   // Bucket time field name
	MetaField     string   // Bucket meta field name (empty = schema has no meta)
	Behavior      string   // Projection mode: "include" or "exclude"
	Fields        []string // Projection field set
	Workers       int      // Concurrent input files (default: number of CPUs)
	SkipMalformed bool     // Log and skip malformed buckets instead of aborting
}

type CodecConfig struct {
	CompressionLevel int // zstd level for compressed column blobs (1-22)
}

type LogConfig struct {
	Level  string
	Format string
}

// Load loads configuration from environment and config file
func Load() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	// Environment variables
	v.SetEnvPrefix("CALYX")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Config file (optional)
	v.SetConfigName("calyx")
	v.SetConfigType("toml")
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/calyx/")
	v.AddConfigPath("$HOME/.calyx/")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		// Config file not found is OK, use defaults
	}

	cfg := &Config{
		Unpack: UnpackConfig{
			TimeField:     v.GetString("unpack.time_field"),
			MetaField:     v.GetString("unpack.meta_field"),
			Behavior:      v.GetString("unpack.behavior"),
			Fields:        v.GetStringSlice("unpack.fields"),
			Workers:       v.GetInt("unpack.workers"),
			SkipMalformed: v.GetBool("unpack.skip_malformed"),
		},
		Codec: CodecConfig{
			CompressionLevel: v.GetInt("codec.compression_level"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints that viper cannot express.
func (c *Config) Validate() error {
	switch c.Unpack.Behavior {
	case "include", "exclude":
	default:
		return fmt.Errorf("invalid unpack.behavior %q: must be include or exclude", c.Unpack.Behavior)
	}
	if c.Unpack.TimeField == "" {
		return fmt.Errorf("unpack.time_field must not be empty")
	}
	if c.Unpack.Workers < 1 {
		return fmt.Errorf("unpack.workers must be at least 1, got %d", c.Unpack.Workers)
	}
	if l := c.Codec.CompressionLevel; l < 1 || l > 22 {
		return fmt.Errorf("codec.compression_level must be in [1, 22], got %d", l)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	// Unpack defaults
	v.SetDefault("unpack.time_field", "time")
	v.SetDefault("unpack.meta_field", "")
	v.SetDefault("unpack.behavior", "exclude")
	v.SetDefault("unpack.fields", []string{})
	v.SetDefault("unpack.workers", runtime.NumCPU())
	v.SetDefault("unpack.skip_malformed", false)

	// Codec defaults
	v.SetDefault("codec.compression_level", 3)

	// Log defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
}
