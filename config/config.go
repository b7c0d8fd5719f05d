// Package config handles tagval.toml runtime configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/chazu/tagval/vm"
	"github.com/tliron/commonlog"
)

// FileName is the configuration file looked up by Load and FindAndLoad.
const FileName = "tagval.toml"

// Config represents a tagval.toml file.
type Config struct {
	Heap    Heap    `toml:"heap"`
	GC      GC      `toml:"gc"`
	Log     Log     `toml:"log"`
	Journal Journal `toml:"journal"`

	// Dir is the directory containing the tagval.toml file (set at load time).
	Dir string `toml:"-"`
}

// Heap configures allocation limits.
type Heap struct {
	MaxBytes     int64 `toml:"max-bytes"`
	TriggerBytes int64 `toml:"trigger-bytes"`
}

// GC configures collection.
type GC struct {
	Interval   Duration `toml:"interval"`
	Zeal       bool     `toml:"zeal"`
	Background bool     `toml:"background"`
}

// Log configures commonlog output.
type Log struct {
	Verbosity int    `toml:"verbosity"`
	Path      string `toml:"path"`
}

// Journal configures the collection journal.
type Journal struct {
	Path string `toml:"path"`
}

// Duration is a time.Duration written as a Go duration string ("30s").
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", text, err)
	}
	if v < 0 {
		return fmt.Errorf("invalid duration %q: negative", text)
	}
	d.Duration = v
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// Default returns the configuration used when no tagval.toml exists.
func Default() *Config {
	return &Config{
		Heap: Heap{TriggerBytes: vm.DefaultTriggerBytes},
		GC:   GC{Interval: Duration{vm.DefaultGCInterval}},
	}
}

// Load parses a tagval.toml file from the given directory.
func Load(dir string) (*Config, error) {
	path := filepath.Join(dir, FileName)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	c := Default()
	md, err := toml.Decode(string(data), c)
	if err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("%s: unknown key %s", path, undecoded[0])
	}

	c.Dir, err = filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", dir, err)
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if c.Journal.Path != "" && !filepath.IsAbs(c.Journal.Path) {
		c.Journal.Path = filepath.Join(c.Dir, c.Journal.Path)
	}
	return c, nil
}

// FindAndLoad walks up from startDir to find a tagval.toml file,
// then loads and returns it. Returns nil if no file is found.
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

// Validate checks the heap limits for consistency.
func (c *Config) Validate() error {
	if c.Heap.MaxBytes < 0 {
		return fmt.Errorf("heap.max-bytes must not be negative")
	}
	if c.Heap.TriggerBytes < 0 {
		return fmt.Errorf("heap.trigger-bytes must not be negative")
	}
	if c.Heap.MaxBytes > 0 && c.Heap.TriggerBytes > c.Heap.MaxBytes {
		return fmt.Errorf("heap.trigger-bytes (%d) exceeds heap.max-bytes (%d)",
			c.Heap.TriggerBytes, c.Heap.MaxBytes)
	}
	return nil
}

// Options converts the heap and gc sections to runtime options.
func (c *Config) Options() vm.Options {
	return vm.Options{
		MaxBytes:     c.Heap.MaxBytes,
		TriggerBytes: c.Heap.TriggerBytes,
		Zeal:         c.GC.Zeal,
	}
}

// NewRuntime creates a runtime from the configuration. When background
// collection is enabled the returned scheduler is already started and
// the caller must Stop it; otherwise it is nil.
func (c *Config) NewRuntime() (*vm.Runtime, *vm.GCScheduler) {
	rt := vm.NewRuntime(c.Options())
	if !c.GC.Background {
		return rt, nil
	}
	s := vm.NewGCScheduler(rt, c.GC.Interval.Duration)
	s.Start()
	return rt, s
}

// ConfigureLogging applies the log section to commonlog. A backend must
// already be registered, e.g. by importing commonlog/simple.
func (c *Config) ConfigureLogging() {
	if c.Log.Path == "" {
		commonlog.Configure(c.Log.Verbosity, nil)
		return
	}
	path := c.Log.Path
	commonlog.Configure(c.Log.Verbosity, &path)
}
