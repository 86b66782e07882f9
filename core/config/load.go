package config

import (
	"fmt"
	"os"
	"path/filepath"

	"sigs.k8s.io/yaml"
)

// Load reads and validates a configuration from a file or a directory
// containing one.
func Load(path string) (*Configuration, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if info.IsDir() {
		path = filepath.Join(path, ConfigurationName)
	}

	contents, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	out := Default()
	if err := yaml.UnmarshalStrict(contents, out); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if err := out.Validate(); err != nil {
		return nil, fmt.Errorf("invalid %s: %w", path, err)
	}
	return out, nil
}

// Initialize writes the default configuration into dir, refusing to
// overwrite an existing file.
func Initialize(dir string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	path := filepath.Join(dir, ConfigurationName)
	if _, err := os.Stat(path); err == nil {
		return "", fmt.Errorf("%s already exists", path)
	}
	if err := os.WriteFile(path, DefaultYAML(), 0o644); err != nil {
		return "", err
	}
	return path, nil
}
