package workspace

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config controls which artifacts the registration pass considers.
type Config struct {
	KnownArtifacts []string `json:"known_artifacts" yaml:"known_artifacts"`
	ExcludeGlobs   []string `json:"exclude_globs" yaml:"exclude_globs"`
}

// DefaultConfig is the config used when no file exists: discover everything
// under the canon directory except the tools tree.
func DefaultConfig() Config {
	return Config{ExcludeGlobs: []string{ToolsExcludeGlob}}
}

// LoadConfig reads a register config (YAML or JSON). A missing file yields
// DefaultConfig.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return DefaultConfig(), nil
	}
	if err != nil {
		return Config{}, fmt.Errorf("read register config: %w", err)
	}
	return ParseConfig(data, filepath.Ext(path))
}

// ParseConfig parses config bytes. ext is the file extension (e.g. ".json",
// ".yaml") for format hint; empty = detect from content. An absent
// exclude_globs key keeps the default exclusion; an explicit empty list
// disables it.
func ParseConfig(data []byte, ext string) (Config, error) {
	var raw struct {
		KnownArtifacts []string  `json:"known_artifacts" yaml:"known_artifacts"`
		ExcludeGlobs   *[]string `json:"exclude_globs" yaml:"exclude_globs"`
	}
	ext = strings.ToLower(ext)
	if ext == ".yml" {
		ext = ".yaml"
	}
	if ext == "" {
		// Detect: JSON starts with {, else YAML.
		if strings.HasPrefix(strings.TrimSpace(string(data)), "{") {
			ext = ".json"
		} else {
			ext = ".yaml"
		}
	}
	switch ext {
	case ".yaml":
		if err := yaml.Unmarshal(data, &raw); err != nil {
			return Config{}, fmt.Errorf("parse register config yaml: %w", err)
		}
	default:
		if err := json.Unmarshal(data, &raw); err != nil {
			return Config{}, fmt.Errorf("parse register config json: %w", err)
		}
	}
	cfg := Config{KnownArtifacts: raw.KnownArtifacts}
	if raw.ExcludeGlobs != nil {
		cfg.ExcludeGlobs = *raw.ExcludeGlobs
	} else {
		cfg.ExcludeGlobs = []string{ToolsExcludeGlob}
	}
	return cfg, nil
}
