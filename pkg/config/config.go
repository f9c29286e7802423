// Package config loads CLI defaults from a YAML file and PIPECALL_ environment
// variables. Command-line flags override both.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// DefaultFile is read when present and no file is given explicitly.
const DefaultFile = "pipecall.yaml"

const envPrefix = "PIPECALL_"

type Config struct {
	Pipeline      string        `koanf:"pipeline"`
	Dir           string        `koanf:"dir"`
	Pattern       string        `koanf:"pattern"`
	SharedSession bool          `koanf:"shared_session"`
	Seed          string        `koanf:"seed"`
	Output        string        `koanf:"output"`
	Report        string        `koanf:"report"`
	MetricsFile   string        `koanf:"metrics_file"`
	Trace         bool          `koanf:"trace"`
	UserAgent     string        `koanf:"user_agent"`
	Logging       LoggingConfig `koanf:"logging"`
}

type LoggingConfig struct {
	Type  string `koanf:"type"`
	Level string `koanf:"level"`
}

var defaults = map[string]any{
	"pattern":       "**/*.pipeline.{json,yaml,yml}",
	"output":        "json",
	"logging.type":  "tint",
	"logging.level": "info",
}

// Load reads path, then environment variables such as
// PIPECALL_LOGGING__LEVEL=debug (double underscore separates levels).
// An empty path reads DefaultFile if it exists; an explicit path must exist.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	explicit := path != ""
	if !explicit {
		path = DefaultFile
	}

	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		if explicit || !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("loading config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(envPrefix, ".", func(s string) string {
		return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, envPrefix)), "__", ".")
	}), nil); err != nil {
		return nil, fmt.Errorf("loading environment: %w", err)
	}

	for key, value := range defaults {
		if !k.Exists(key) {
			if err := k.Set(key, value); err != nil {
				return nil, fmt.Errorf("setting default %s: %w", key, err)
			}
		}
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	return &cfg, nil
}
