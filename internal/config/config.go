package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Global configuration structure.
type Global struct {
	Addr     string `mapstructure:"addr" yaml:"addr"`
	LogLevel string `mapstructure:"log_level" yaml:"log_level"`
	// Warm loads every table in the background at startup.
	Warm bool `mapstructure:"warm" yaml:"warm"`

	// Per client request rate; 0 disables limiting.
	RateLimit float64 `mapstructure:"rate_limit" yaml:"rate_limit"`
	RateBurst int     `mapstructure:"rate_burst" yaml:"rate_burst"`

	Source Source `mapstructure:"source" yaml:"source"`
}

// Source selects the backing store for the four tables.
type Source struct {
	// Driver is one of files, sqlite, postgres, s3.
	Driver string `mapstructure:"driver" yaml:"driver"`
	Dir    string `mapstructure:"dir" yaml:"dir"`
	DSN    string `mapstructure:"dsn" yaml:"dsn"`
	S3     S3     `mapstructure:"s3" yaml:"s3"`
}

type S3 struct {
	Bucket    string `mapstructure:"bucket" yaml:"bucket"`
	Prefix    string `mapstructure:"prefix" yaml:"prefix"`
	Region    string `mapstructure:"region" yaml:"region"`
	Endpoint  string `mapstructure:"endpoint" yaml:"endpoint"`
	PathStyle bool   `mapstructure:"path_style" yaml:"path_style"`
}

var defaults = map[string]any{
	"addr":                 ":8080",
	"log_level":            "info",
	"warm":                 true,
	"rate_limit":           0.0,
	"rate_burst":           20,
	"source.driver":        "files",
	"source.dir":           "data",
	"source.dsn":           "",
	"source.s3.bucket":     "",
	"source.s3.prefix":     "",
	"source.s3.region":     "us-east-1",
	"source.s3.endpoint":   "",
	"source.s3.path_style": false,
}

// Default returns the configuration used when nothing is set.
func Default() *Global {
	return &Global{
		Addr:      ":8080",
		LogLevel:  "info",
		Warm:      true,
		RateBurst: 20,
		Source: Source{
			Driver: "files",
			Dir:    "data",
			S3:     S3{Region: "us-east-1"},
		},
	}
}

// Save writes the given configuration to path as YAML, creating parent
// directories as needed.
func Save(c *Global, path string) error {
	if path == "" {
		path = "agridash.yaml"
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("mkdir config dir: %w", err)
		}
	}
	b, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal yaml: %w", err)
	}
	if err := os.WriteFile(path, b, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// Load loads configuration from file, env, and defaults.
// Precedence: env > config file > defaults. Nested keys map to env names
// with underscores, e.g. AGRIDASH_SOURCE_DRIVER.
//
// With an empty cfgFile, agridash.yaml is looked up in the working directory
// and in ~/.agridash; a missing file is not an error. An explicit cfgFile
// must exist.
func Load(cfgFile string) (*Global, error) {
	v := viper.New()
	v.SetEnvPrefix("AGRIDASH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for k, d := range defaults {
		v.SetDefault(k, d)
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", cfgFile, err)
		}
	} else {
		v.SetConfigName("agridash")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".agridash"))
		}
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}

	var c Global
	if err := v.Unmarshal(&c); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Validate checks the source settings needed by the selected driver.
func (c *Global) Validate() error {
	switch c.Source.Driver {
	case "files":
		if c.Source.Dir == "" {
			return errors.New("config: source.dir required for files driver")
		}
	case "sqlite", "postgres":
		if c.Source.DSN == "" {
			return fmt.Errorf("config: source.dsn required for %s driver", c.Source.Driver)
		}
	case "s3":
		if c.Source.S3.Bucket == "" {
			return errors.New("config: source.s3.bucket required for s3 driver")
		}
	default:
		return fmt.Errorf("config: unknown source driver %q", c.Source.Driver)
	}
	if c.RateLimit < 0 {
		return errors.New("config: rate_limit must not be negative")
	}
	return nil
}
