// Package config loads termtools settings from defaults, YAML files and the
// environment, in that order of precedence.
package config

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// EnvPrefix namespaces every environment override, e.g. TERMTOOLS_COMMAND_TIMEOUT.
const EnvPrefix = "TERMTOOLS"

const (
	dirName  = ".termtools"
	fileName = "config.yaml"
)

type Config struct {
	// Shell is used when a request does not name one. Empty means $SHELL.
	Shell            string        `yaml:"shell" envconfig:"SHELL_PATH"`
	WorkingDir       string        `yaml:"working_dir" envconfig:"WORKING_DIR"`
	ShellIntegration bool          `yaml:"shell_integration" envconfig:"SHELL_INTEGRATION"`
	CommandTimeout   time.Duration `yaml:"command_timeout" envconfig:"COMMAND_TIMEOUT"`
	// MaxOutput caps the in-memory transcript of each terminal, e.g. "10MB".
	MaxOutput string `yaml:"max_output" envconfig:"MAX_OUTPUT"`
	// TranscriptDir switches transcripts to files under this directory.
	TranscriptDir string    `yaml:"transcript_dir" envconfig:"TRANSCRIPT_DIR"`
	SocketDir     string    `yaml:"socket_dir" envconfig:"SOCKET_DIR"`
	MetricsAddr   string    `yaml:"metrics_addr" envconfig:"METRICS_ADDR"`
	Log           LogConfig `yaml:"log" envconfig:"LOG"`
}

type LogConfig struct {
	Level       string `yaml:"level" envconfig:"LEVEL"`
	Development bool   `yaml:"development" envconfig:"DEVELOPMENT"`
}

func Default() *Config {
	socketDir := dirName
	if home, err := os.UserHomeDir(); err == nil {
		socketDir = filepath.Join(home, dirName)
	}
	return &Config{
		ShellIntegration: true,
		CommandTimeout:   60 * time.Second,
		MaxOutput:        "10MB",
		SocketDir:        socketDir,
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load applies ~/.termtools/config.yaml, then ./.termtools/config.yaml, then
// TERMTOOLS_* environment variables on top of Default.
func Load() (*Config, error) {
	var paths []string
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, dirName, fileName))
	}
	if wd, err := os.Getwd(); err == nil {
		paths = append(paths, filepath.Join(wd, dirName, fileName))
	}
	return LoadFrom(paths...)
}

// LoadFrom is Load with explicit YAML paths. Missing files are skipped.
func LoadFrom(paths ...string) (*Config, error) {
	cfg := Default()
	for _, path := range paths {
		if err := loadFile(path, cfg); err != nil {
			return nil, err
		}
	}
	if err := envconfig.Process(EnvPrefix, cfg); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	// Fields present in the file replace earlier values; absent ones are kept.
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

func (c *Config) Validate() error {
	if c.CommandTimeout <= 0 {
		return fmt.Errorf("command_timeout must be positive, got %s", c.CommandTimeout)
	}
	if _, err := c.MaxOutputBytes(); err != nil {
		return fmt.Errorf("invalid max_output: %w", err)
	}
	if c.SocketDir == "" {
		return fmt.Errorf("socket_dir must not be empty")
	}
	return nil
}

func (c *Config) MaxOutputBytes() (int, error) {
	return ParseSize(c.MaxOutput)
}

var sizePattern = regexp.MustCompile(`^(\d+(?:\.\d+)?)\s*(B|KB|MB|GB)?$`)

// ParseSize converts sizes like "512KB" or "1.5MB" to bytes.
func ParseSize(s string) (int, error) {
	s = strings.TrimSpace(strings.ToUpper(s))
	if s == "" {
		return 0, fmt.Errorf("empty size")
	}

	matches := sizePattern.FindStringSubmatch(s)
	if matches == nil {
		return 0, fmt.Errorf("invalid format: %s", s)
	}

	val, err := strconv.ParseFloat(matches[1], 64)
	if err != nil {
		return 0, err
	}

	multiplier := 1.0
	switch matches[2] {
	case "KB":
		multiplier = 1024
	case "MB":
		multiplier = 1024 * 1024
	case "GB":
		multiplier = 1024 * 1024 * 1024
	}

	bytes := val * multiplier
	if bytes >= float64(math.MaxInt) {
		return 0, fmt.Errorf("size too large: %s", s)
	}
	return int(bytes), nil
}
