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

// Config is the goldmem configuration file (~/.config/goldmem/config.yaml).
// Seed is a pointer so an explicit zero is distinguishable from unset.
type Config struct {
	OutDir        string `yaml:"out_dir"`
	Seed          *int64 `yaml:"seed"`
	LogLevel      string `yaml:"log_level"`
	LogFormat     string `yaml:"log_format"`
	ServerAddress string `yaml:"server_address"`
}

// cfg is loaded once by the root Before hook.
var cfg Config

func configPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "goldmem", "config.yaml")
}

// loadConfig reads the config file at path. A missing file yields a zero
// Config; a malformed one is an error.
func loadConfig(path string) (Config, error) {
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
	var c Config
	if err := yaml.Unmarshal(data, &c); err != nil {
		return Config{}, fmt.Errorf("config %s: %w", path, err)
	}
	return c, nil
}

// applyLoggingConfig fills logging flags the user did not set.
func applyLoggingConfig(c *cli.Command, conf Config) {
	if conf.LogLevel != "" && !c.IsSet("log-level") {
		logLevel = conf.LogLevel
	}
	if conf.LogFormat != "" && !c.IsSet("log-format") {
		logFormat = conf.LogFormat
	}
}

// applyOutputConfig fills --out and --seed from the config file when the
// command did not set them.
func applyOutputConfig(c *cli.Command, conf Config) {
	if conf.OutDir != "" && !c.IsSet("out") {
		outDir = conf.OutDir
	}
	if conf.Seed != nil && !c.IsSet("seed") {
		seed = *conf.Seed
	}
}

func applyServeConfig(c *cli.Command, conf Config, addr *string) {
	if conf.ServerAddress != "" && !c.IsSet("addr") {
		*addr = conf.ServerAddress
	}
}
