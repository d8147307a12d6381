package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

const maxIncludeDepth = 5

// processIncludes overlays the files listed in cfg.Includes onto cfg, in
// order. Patterns are resolved against baseDir and may be globs; visited
// holds absolute paths already loaded so cycles fail instead of recursing.
func processIncludes(cfg *Config, baseDir string, visited map[string]bool, depth int) error {
	if depth > maxIncludeDepth {
		return fmt.Errorf("config includes: nesting deeper than %d", maxIncludeDepth)
	}
	if visited == nil {
		visited = make(map[string]bool)
	}

	patterns := cfg.Includes
	cfg.Includes = nil
	for _, pattern := range patterns {
		paths, err := expandInclude(pattern, baseDir)
		if err != nil {
			return err
		}
		for _, p := range paths {
			if visited[p] {
				return fmt.Errorf("config includes: %q is included twice (cycle?)", p)
			}
			visited[p] = true
			if err := overlayFile(cfg, p, visited, depth+1); err != nil {
				return err
			}
		}
	}
	return nil
}

// expandInclude returns the absolute paths a pattern names. Paths outside
// baseDir are rejected. A literal path is returned even when missing so the
// read reports it; a glob matching nothing yields no paths.
func expandInclude(pattern, baseDir string) ([]string, error) {
	if !filepath.IsAbs(pattern) {
		pattern = filepath.Join(baseDir, pattern)
	}
	pattern = filepath.Clean(pattern)

	if rel, err := filepath.Rel(baseDir, pattern); err == nil && strings.HasPrefix(rel, "..") {
		return nil, fmt.Errorf("config includes: %q is outside %q", pattern, baseDir)
	}

	if !strings.ContainsAny(pattern, "*?[") {
		return []string{pattern}, nil
	}
	matches, err := filepath.Glob(pattern)
	if err != nil {
		return nil, fmt.Errorf("config includes: glob %q: %w", pattern, err)
	}
	for i, m := range matches {
		if abs, err := filepath.Abs(m); err == nil {
			matches[i] = abs
		}
	}
	return matches, nil
}

// overlayFile unmarshals one YAML file onto cfg and follows its own includes.
func overlayFile(cfg *Config, path string, visited map[string]bool, depth int) error {
	if err := validatePermissions(path); err != nil {
		return fmt.Errorf("config includes: %w", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config includes: read %q: %w", path, err)
	}
	if len(data) == 0 {
		return nil
	}

	cfg.Includes = nil
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("config includes: parse %q: %w", path, err)
	}
	if len(cfg.Includes) > 0 {
		return processIncludes(cfg, filepath.Dir(path), visited, depth)
	}
	return nil
}
