// Package manifest handles grotto.toml project configuration.
package manifest

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// ManifestName is the file the CLI looks for.
const ManifestName = "grotto.toml"

// Manifest represents a grotto.toml project configuration.
type Manifest struct {
	Project Project `toml:"project"`
	Target  Target  `toml:"target"`
	Input   Input   `toml:"input"`
	Output  Output  `toml:"output"`

	// Dir is the directory containing the grotto.toml file (set at load time).
	Dir string `toml:"-"`
}

// Project contains project metadata.
type Project struct {
	Name    string `toml:"name"`
	Author  string `toml:"author"`
	Version string `toml:"version"`
}

// Target selects the story file format and identity fields.
type Target struct {
	// ZVersion is the target machine version: 3, 4 or 5.
	ZVersion int `toml:"zversion"`
	// Release is the release number stamped into the header.
	Release int `toml:"release"`
	// Serial is the six-character serial stamped into the header. Builds are
	// reproducible, so the serial comes from here rather than the clock.
	Serial string `toml:"serial"`
}

// Input configures where the compiled IR comes from.
type Input struct {
	// IR is the path to the serialized program, relative to Dir.
	IR string `toml:"ir"`
}

// Output configures story file output.
type Output struct {
	// Path is where the story file is written, relative to Dir.
	Path string `toml:"path"`
}

// Load parses a grotto.toml file from the given directory.
func Load(dir string) (*Manifest, error) {
	path := filepath.Join(dir, ManifestName)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}

	var m Manifest
	if err := toml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}

	m.Dir, err = filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("cannot resolve path %s: %w", dir, err)
	}
	applyDefaults(&m)
	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &m, nil
}

// FindAndLoad walks up from startDir to find a grotto.toml file, then loads
// and returns the manifest. Returns nil if no manifest is found.
func FindAndLoad(startDir string) (*Manifest, error) {
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return nil, err
	}

	for {
		path := filepath.Join(dir, ManifestName)
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

func applyDefaults(m *Manifest) {
	if m.Target.ZVersion == 0 {
		m.Target.ZVersion = 3
	}
	if m.Target.Release == 0 {
		m.Target.Release = 1
	}
	if m.Input.IR == "" {
		m.Input.IR = "build/program.zir"
	}
	if m.Output.Path == "" {
		m.Output.Path = fmt.Sprintf("build/%s.z%d", defaultName(m), m.Target.ZVersion)
	}
}

func defaultName(m *Manifest) string {
	if m.Project.Name != "" {
		return m.Project.Name
	}
	return "story"
}

// Validate rejects manifests the compiler could not honor.
func (m *Manifest) Validate() error {
	switch m.Target.ZVersion {
	case 3, 4, 5:
	default:
		return fmt.Errorf("target.zversion must be 3, 4 or 5, got %d", m.Target.ZVersion)
	}
	if m.Target.Release < 0 || m.Target.Release > 0xFFFF {
		return fmt.Errorf("target.release %d out of range 0-65535", m.Target.Release)
	}
	if m.Target.Serial != "" && len(m.Target.Serial) != 6 {
		return fmt.Errorf("target.serial %q must be exactly 6 characters", m.Target.Serial)
	}
	return nil
}

// IRPath returns the absolute path of the input IR file.
func (m *Manifest) IRPath() string {
	return filepath.Join(m.Dir, m.Input.IR)
}

// OutputPath returns the absolute path of the story file to write.
func (m *Manifest) OutputPath() string {
	return filepath.Join(m.Dir, m.Output.Path)
}
