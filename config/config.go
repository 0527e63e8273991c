// Package config handles probecov.toml project configuration.
package config

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"github.com/BurntSushi/toml"
)

// FileName is the name of the configuration file.
const FileName = "probecov.toml"

//go:embed schema.cue
var schemaSource string

// Config represents a probecov.toml file.
type Config struct {
	Project  Project  `toml:"project"`
	Exec     Exec     `toml:"exec"`
	Analysis Analysis `toml:"analysis"`
	Archive  Archive  `toml:"archive"`
	Summary  Summary  `toml:"summary"`

	// Dir is the directory containing the probecov.toml file (set at load time).
	Dir string `toml:"-"`
}

// Project contains project metadata.
type Project struct {
	Name string `toml:"name"`
}

// Exec configures exec file locations and the runtime session.
type Exec struct {
	Files     []string `toml:"files"`
	Output    string   `toml:"output"`
	Append    bool     `toml:"append"`
	SessionID string   `toml:"session-id"`
}

// Analysis configures coverage analysis.
type Analysis struct {
	Name      string   `toml:"name"`
	Classes   []string `toml:"classes"`
	Sources   []string `toml:"sources"`
	TabWidth  int      `toml:"tab-width"`
	MaxDepth  int      `toml:"max-depth"`
	Selection string   `toml:"selection"`
	Diff      string   `toml:"diff"`
	Filters   []string `toml:"filters"`
}

// Archive configures the execution archive database.
type Archive struct {
	Path string `toml:"path"`
}

// Summary configures summary snapshots.
type Summary struct {
	Output string `toml:"output"`
}

// Default returns the configuration used when no file is present.
func Default(dir string) *Config {
	c := &Config{Dir: dir}
	c.applyDefaults()
	return c
}

func (c *Config) applyDefaults() {
	if c.Exec.Output == "" {
		c.Exec.Output = filepath.Join("build", "probecov.exec")
	}
	if len(c.Exec.Files) == 0 {
		c.Exec.Files = []string{c.Exec.Output}
	}
	if c.Analysis.Name == "" {
		c.Analysis.Name = c.Project.Name
	}
	if c.Analysis.Name == "" {
		c.Analysis.Name = "coverage"
	}
	if len(c.Analysis.Classes) == 0 {
		c.Analysis.Classes = []string{"classes"}
	}
	if len(c.Analysis.Sources) == 0 {
		c.Analysis.Sources = []string{"src"}
	}
	if c.Analysis.TabWidth == 0 {
		c.Analysis.TabWidth = 4
	}
	if c.Analysis.MaxDepth == 0 {
		c.Analysis.MaxDepth = 8
	}
	if c.Analysis.Filters == nil {
		c.Analysis.Filters = []string{"synthetic", "finally", "switch-trampoline"}
	}
	if c.Archive.Path == "" {
		c.Archive.Path = filepath.Join(".probecov", "archive.db")
	}
}

// Load parses a probecov.toml file from the given directory.
func Load(dir string) (*Config, error) {
	path := filepath.Join(dir, FileName)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}
	c, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	c.Dir, err = filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", dir, err)
	}
	return c, nil
}

// Parse decodes and validates configuration text.
func Parse(data []byte) (*Config, error) {
	var raw map[string]any
	if err := toml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse error: %w", err)
	}
	if err := validate(raw); err != nil {
		return nil, err
	}
	var c Config
	if err := toml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parse error: %w", err)
	}
	c.applyDefaults()
	return &c, nil
}

// validate checks decoded TOML against the embedded CUE schema.
func validate(raw map[string]any) error {
	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaSource, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return fmt.Errorf("schema: %w", err)
	}
	def := schema.LookupPath(cue.ParsePath("#Config"))
	v := def.Unify(ctx.Encode(raw))
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// FindAndLoad walks up from startDir to find a probecov.toml file,
// then loads and returns the configuration. Returns nil if none is found.
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
			return nil, nil
		}
		dir = parent
	}
}

// Path resolves p against the configuration directory.
func (c *Config) Path(p string) string {
	if p == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(c.Dir, p)
}

// Paths resolves every element of ps.
func (c *Config) Paths(ps []string) []string {
	out := make([]string, len(ps))
	for i, p := range ps {
		out[i] = c.Path(p)
	}
	return out
}
