package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/urfave/cli/v3"
	"gopkg.in/yaml.v3"
)

const envConfig = "DNGSTAGE_CONFIG"

// Config represents the dngstage configuration file (~/.config/dngstage/config.yaml).
// All switches are pointers so we can distinguish "not set" from false.
type Config struct {
	Backend    string   `yaml:"backend"`
	Categories []string `yaml:"categories"`

	// Stage selection
	Stage2          *bool `yaml:"stage2"`
	Stage3          *bool `yaml:"stage3"`
	Stage2IfPresent *bool `yaml:"stage2_if_present"`
	Stage3IfPresent *bool `yaml:"stage3_if_present"`
	AddPreviews     *bool `yaml:"add_previews"`

	// Publication
	AllowSizeChange *bool `yaml:"allow_size_change"`
	ZeroCopy        *bool `yaml:"zero_copy"`
	FloatToInt      *bool `yaml:"float_to_int"`

	// Output
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`

	// Server
	ServerAddress string `yaml:"server_address"`
}

func configPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "dngstage", "config.yaml")
}

// LoadConfig reads the config file at path, or at the default location when
// path is empty. A missing file yields a zero Config.
func LoadConfig(path string) (Config, error) {
	if path == "" {
		path = configPath()
	}
	if path == "" {
		return Config{}, nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Config{}, nil
	}
	if err != nil {
		return Config{}, err
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("config %s: %w", path, err)
	}
	return cfg, nil
}

// applyGlobalConfig applies config file defaults to the root flags when the
// corresponding flag was not explicitly set.
func applyGlobalConfig(c *cli.Command, cfg Config) {
	if cfg.Backend != "" && !c.IsSet("backend") {
		backendName = cfg.Backend
	}
	if cfg.LogLevel != "" && !c.IsSet("log-level") {
		logLevel = cfg.LogLevel
	}
	if cfg.LogFormat != "" && !c.IsSet("log-format") {
		logFormat = cfg.LogFormat
	}
}

// applyServeConfig applies config file defaults to serve command variables.
func applyServeConfig(c *cli.Command, cfg Config, addr *string) {
	if cfg.ServerAddress != "" && !c.IsSet("addr") {
		*addr = cfg.ServerAddress
	}
}
