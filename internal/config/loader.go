package config

import (
	"fmt"
	"os"
)

// LoadOrDefault loads path when it exists. A missing file yields the
// defaults, overridden by environment variables, so the CLI can run from
// flags alone.
func LoadOrDefault(path string) (*GlobalConfig, error) {
	if path != "" {
		if _, err := os.Stat(path); err == nil {
			return Load(path)
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to stat config file %s: %w", path, err)
		}
	}
	return Default()
}

// Default returns the built-in defaults with GROUNDVIEW_* overrides applied.
func Default() (*GlobalConfig, error) {
	return unmarshal(newViper())
}
