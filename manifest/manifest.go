// Package manifest handles trash.toml / trash.yaml project configuration.
package manifest

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/chazu/trashdsl/pkg/value"
)

// FileNames lists the manifest file names Load looks for, in order.
var FileNames = []string{"trash.toml", "trash.yaml", "trash.yml"}

// Manifest represents a trashdsl project configuration.
type Manifest struct {
	Project   Project        `toml:"project" yaml:"project"`
	Source    Source         `toml:"source" yaml:"source"`
	Constants map[string]any `toml:"constants" yaml:"constants"`
	Run       RunConfig      `toml:"run" yaml:"run"`
	Cache     CacheConfig    `toml:"cache" yaml:"cache"`
	Log       LogConfig      `toml:"log" yaml:"log"`

	// Dir is the directory containing the manifest file (set at load time).
	Dir string `toml:"-" yaml:"-"`
	// Path is the manifest file that was loaded.
	Path string `toml:"-" yaml:"-"`
}

// Project contains project metadata.
type Project struct {
	Name    string `toml:"name" yaml:"name"`
	Version string `toml:"version" yaml:"version"`
}

// Source configures the program entry file.
type Source struct {
	Entry string `toml:"entry" yaml:"entry"`
}

// RunConfig holds execution settings. Command-line flags override them.
type RunConfig struct {
	Trace        bool `toml:"trace" yaml:"trace"`
	TraceAll     bool `toml:"trace-all" yaml:"trace-all"`
	MaxCallDepth int  `toml:"max-call-depth" yaml:"max-call-depth"`
	Disassemble  bool `toml:"disassemble" yaml:"disassemble"`
}

// CacheConfig configures the compiled-program cache.
type CacheConfig struct {
	Enabled bool   `toml:"enabled" yaml:"enabled"`
	Path    string `toml:"path" yaml:"path"`
}

// LogConfig configures log output.
type LogConfig struct {
	Verbosity int `toml:"verbosity" yaml:"verbosity"`
}

// Load parses the manifest file found in the given directory.
func Load(dir string) (*Manifest, error) {
	for _, name := range FileNames {
		path := filepath.Join(dir, name)
		if _, err := os.Stat(path); err == nil {
			return LoadFile(path)
		}
	}
	return nil, fmt.Errorf("no manifest in %s (looked for %v)", dir, FileNames)
}

// LoadFile parses and validates one manifest file. The format follows the
// file extension.
func LoadFile(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	var (
		raw map[string]any
		m   Manifest
	)
	switch filepath.Ext(path) {
	case ".toml":
		if err := toml.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("parse error in %s: %w", path, err)
		}
		if err := toml.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("parse error in %s: %w", path, err)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return nil, fmt.Errorf("parse error in %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("parse error in %s: %w", path, err)
		}
	default:
		return nil, fmt.Errorf("unsupported manifest format %q", filepath.Ext(path))
	}

	if err := Validate(raw); err != nil {
		return nil, fmt.Errorf("invalid manifest %s: %w", path, err)
	}

	m.Path = path
	m.Dir, err = filepath.Abs(filepath.Dir(path))
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", path, err)
	}

	// Defaults
	if m.Source.Entry == "" {
		m.Source.Entry = "main.trash"
	}
	if m.Cache.Path == "" {
		m.Cache.Path = filepath.Join(".trash", "cache.db")
	}

	return &m, nil
}

// FindAndLoad walks up from startDir to find a manifest file, then loads
// and returns it. Returns nil if no manifest is found.
func FindAndLoad(startDir string) (*Manifest, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, err
	}

	for {
		for _, name := range FileNames {
			path := filepath.Join(dir, name)
			if _, err := os.Stat(path); err == nil {
				return LoadFile(path)
			}
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			// Reached root
			return nil, nil
		}
		dir = parent
	}
}

// EntryPath returns the absolute path of the entry source file.
func (m *Manifest) EntryPath() string {
	return m.resolve(m.Source.Entry)
}

// CachePath returns the absolute path of the cache database.
func (m *Manifest) CachePath() string {
	return m.resolve(m.Cache.Path)
}

func (m *Manifest) resolve(p string) string {
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(m.Dir, p)
}

// ConstantNames returns the configured constant names, sorted.
func (m *Manifest) ConstantNames() []string {
	names := make([]string, 0, len(m.Constants))
	for name := range m.Constants {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ConstantValue converts the named constant to a script value.
func (m *Manifest) ConstantValue(name string) value.Value {
	return value.FromNative(m.Constants[name])
}
