// Package config loads jarstrings settings from a config file, the
// environment and a .env file, in that order of increasing precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. JARSTRINGS_SCAN_WORKERS.
const EnvPrefix = "JARSTRINGS"

type Config struct {
	Log     LogConfig     `mapstructure:"log"`
	Scan    ScanConfig    `mapstructure:"scan"`
	Patch   PatchConfig   `mapstructure:"patch"`
	Catalog CatalogConfig `mapstructure:"catalog"`

	// File is the config file that was read, empty when none was found.
	File string `mapstructure:"-"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // text or json
}

type ScanConfig struct {
	Workers          int  `mapstructure:"workers"` // 0 = one per CPU
	ProgressInterval int  `mapstructure:"progress_interval"`
	Strict           bool `mapstructure:"strict"`
}

type PatchConfig struct {
	Workers          int    `mapstructure:"workers"`
	CompressionLevel int    `mapstructure:"compression_level"` // -2 (huffman only) to 9
	Method           string `mapstructure:"method"`            // deflate or store
	RefuseShared     bool   `mapstructure:"refuse_shared"`     // fail edits to literals sharing a Utf8 slot
}

type CatalogConfig struct {
	Path string `mapstructure:"path"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "warn")
	v.SetDefault("log.format", "text")
	v.SetDefault("scan.workers", 0)
	v.SetDefault("scan.progress_interval", 100)
	v.SetDefault("scan.strict", false)
	v.SetDefault("patch.workers", 0)
	v.SetDefault("patch.compression_level", -1)
	v.SetDefault("patch.method", "deflate")
	v.SetDefault("patch.refuse_shared", false)
	v.SetDefault("catalog.path", "jarstrings.db")
}

// Default returns the built-in settings.
func Default() *Config {
	v := viper.New()
	setDefaults(v)
	var cfg Config
	_ = v.Unmarshal(&cfg)
	return &cfg
}

// Load reads settings. When path is empty, jarstrings.{yaml,toml,json} is
// looked up in the working directory and then in ~/.config/jarstrings; a
// missing file is not an error. An explicit path must exist.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("jarstrings")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".config", "jarstrings"))
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	cfg.File = v.ConfigFileUsed()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	switch {
	case c.Scan.Workers < 0:
		return &ConfigError{Field: "scan.workers", Message: "must not be negative"}
	case c.Scan.ProgressInterval < 1:
		return &ConfigError{Field: "scan.progress_interval", Message: "must be at least 1"}
	case c.Patch.Workers < 0:
		return &ConfigError{Field: "patch.workers", Message: "must not be negative"}
	case c.Patch.CompressionLevel < -2 || c.Patch.CompressionLevel > 9:
		return &ConfigError{Field: "patch.compression_level", Message: "must be between -2 and 9"}
	}
	switch strings.ToLower(c.Patch.Method) {
	case "deflate", "store":
	default:
		return &ConfigError{Field: "patch.method", Message: "must be deflate or store"}
	}
	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		return &ConfigError{Field: "log.format", Message: "must be text or json"}
	}
	return nil
}

// ConfigError reports an invalid setting.
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("config: %s: %s", e.Field, e.Message)
}
