// Package config handles avmcore.toml engine configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"

	"github.com/chazu/avmcore/vm"
)

// FileName is the configuration file looked up by Load and FindAndLoad.
const FileName = "avmcore.toml"

// Config represents an avmcore.toml file.
type Config struct {
	Engine Engine `toml:"engine"`
	Log    Log    `toml:"log"`
	Memory Memory `toml:"memory"`

	// Dir is the directory containing the avmcore.toml file (set at load time).
	Dir string `toml:"-"`
}

// Engine configures the execution core.
type Engine struct {
	MaxRecursion      int   `toml:"max-recursion"`
	UseInterpreter    bool  `toml:"use-interpreter"`
	UseJIT            bool  `toml:"use-jit"`
	JITThreshold      int64 `toml:"jit-threshold"`
	ReusableFunctions bool  `toml:"reusable-functions"`
}

// Log configures commonlog.
type Log struct {
	Verbosity int    `toml:"verbosity"`
	File      string `toml:"file"`
}

// Memory configures per-class memory accounting.
type Memory struct {
	Accounting bool `toml:"accounting"`
}

// Default returns the configuration used when no file is present.
func Default() *Config {
	opts := vm.DefaultOptions()
	return &Config{
		Engine: Engine{
			MaxRecursion:      opts.MaxRecursion,
			UseInterpreter:    opts.UseInterpreter,
			UseJIT:            opts.UseJIT,
			JITThreshold:      opts.JITThreshold,
			ReusableFunctions: opts.ReusableFunctions,
		},
		Memory: Memory{Accounting: opts.MemoryAccounting},
	}
}

// Load parses an avmcore.toml file from the given directory. Keys the file
// leaves out keep their default.
func Load(dir string) (*Config, error) {
	path := filepath.Join(dir, FileName)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	c := Default()
	if err := toml.Unmarshal(data, c); err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}

	c.Dir, err = filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", dir, err)
	}

	if c.Engine.MaxRecursion < 0 {
		return nil, fmt.Errorf("%s: engine.max-recursion must not be negative", path)
	}
	if c.Engine.JITThreshold < 0 {
		return nil, fmt.Errorf("%s: engine.jit-threshold must not be negative", path)
	}
	if c.Log.File != "" && !filepath.IsAbs(c.Log.File) {
		c.Log.File = filepath.Join(c.Dir, c.Log.File)
	}
	return c, nil
}

// FindAndLoad walks up from startDir to find an avmcore.toml file, then
// loads and returns it. Returns nil if no file is found.
func FindAndLoad(startDir string) (*Config, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, err
	}

	for {
		path := filepath.Join(dir, FileName)
		if _, err := os.Stat(path); err == nil {
			return Load(dir)
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			// Reached root
			return nil, nil
		}
		dir = parent
	}
}

// Options converts the configuration into engine options.
func (c *Config) Options() vm.Options {
	return vm.Options{
		MaxRecursion:      c.Engine.MaxRecursion,
		UseInterpreter:    c.Engine.UseInterpreter,
		UseJIT:            c.Engine.UseJIT,
		JITThreshold:      c.Engine.JITThreshold,
		ReusableFunctions: c.Engine.ReusableFunctions,
		MemoryAccounting:  c.Memory.Accounting,
	}
}

// LogFile returns the configured log path, or nil to log to stderr.
func (c *Config) LogFile() *string {
	if c.Log.File == "" {
		return nil
	}
	return &c.Log.File
}
