// Package config handles realmproxy.toml host configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	"github.com/caarlos0/env/v11"
	"github.com/tliron/commonlog"
)

// FileName is the configuration file looked up by FindAndLoad.
const FileName = "realmproxy.toml"

// EnvPrefix prefixes every environment override.
const EnvPrefix = "REALMPROXY_"

// Config is the host configuration. Values come from realmproxy.toml, then
// REALMPROXY_* environment variables override them.
type Config struct {
	// Marshal is the policy for shared reference types: "identity" or "copy".
	Marshal string `toml:"marshal" env:"MARSHAL"`

	// Journal is the path of the sqlite lifecycle journal. Empty disables it.
	Journal string `toml:"journal" env:"JOURNAL"`

	// ModulePath lists directories searched for relative module paths.
	ModulePath []string `toml:"module-path" env:"MODULE_PATH" envSeparator:":"`

	// Verbosity is the commonlog verbosity; 0 logs warnings and above.
	Verbosity int `toml:"verbosity" env:"VERBOSITY"`

	// LogFile is where logs go. Empty means stderr.
	LogFile string `toml:"log-file" env:"LOG_FILE"`

	// Dir is the directory containing the config file (set at load time).
	Dir string `toml:"-"`
}

// Default returns a configuration with default values and environment
// overrides applied.
func Default() (*Config, error) {
	cfg := defaults()
	if err := ApplyEnv(cfg, nil); err != nil {
		return nil, err
	}
	return cfg, nil
}

func defaults() *Config {
	return &Config{
		Marshal: "identity",
	}
}

// Load reads realmproxy.toml from dir and applies environment overrides.
func Load(dir string) (*Config, error) {
	path := filepath.Join(dir, FileName)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	cfg := defaults()
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}

	cfg.Dir, err = filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", dir, err)
	}

	if err := ApplyEnv(cfg, nil); err != nil {
		return nil, err
	}
	cfg.resolvePaths()
	return cfg, nil
}

// FindAndLoad walks up from startDir to find realmproxy.toml, then loads it.
// With no file found it returns Default().
func FindAndLoad(startDir string) (*Config, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, err
	}

	for {
		if _, err := os.Stat(filepath.Join(dir, FileName)); err == nil {
			return Load(dir)
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return Default()
		}
		dir = parent
	}
}

// ApplyEnv overlays REALMPROXY_* variables onto cfg. A nil environ reads the
// process environment.
func ApplyEnv(cfg *Config, environ map[string]string) error {
	opts := env.Options{Prefix: EnvPrefix}
	if environ != nil {
		opts.Environment = environ
	}
	if err := env.ParseWithOptions(cfg, opts); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// resolvePaths makes relative journal and module paths relative to Dir.
func (c *Config) resolvePaths() {
	if c.Dir == "" {
		return
	}
	if c.Journal != "" && !filepath.IsAbs(c.Journal) {
		c.Journal = filepath.Join(c.Dir, c.Journal)
	}
	for i, p := range c.ModulePath {
		if !filepath.IsAbs(p) {
			c.ModulePath[i] = filepath.Join(c.Dir, p)
		}
	}
}

// ConfigureLogging sets up commonlog from the verbosity and log file.
func (c *Config) ConfigureLogging() {
	var path *string
	if c.LogFile != "" {
		path = &c.LogFile
	}
	commonlog.Configure(c.Verbosity, path)
}
