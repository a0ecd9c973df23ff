// Package approval implements the per-session approval gate: a small set
// of categories (file_operations, package_installation, system_operations),
// each backed by regex detectors that flag a tool invocation as needing the
// client's explicit consent before the worker bridge runs it.
package approval

import "fmt"

// Category groups a set of detector patterns under one elicitation prompt.
// A tool invocation matching any pattern in a category requires that
// category's decision before it proceeds.
type Category struct {
	ID          string   `koanf:"id"`
	Description string   `koanf:"description"`
	Level       string   `koanf:"level"` // "medium" or "high"
	Patterns    []string `koanf:"patterns"`
}

// Config is the top-level shape of patterns.toml.
type Config struct {
	Categories []Category `koanf:"categories"`
}

// Validate checks that every category has a non-empty id and at least one
// pattern; it does not compile patterns (compilation happens in matcher.go,
// where the first pattern that fails to compile rejects the whole set).
func (c *Config) Validate() error {
	seen := make(map[string]bool, len(c.Categories))
	for _, cat := range c.Categories {
		if cat.ID == "" {
			return fmt.Errorf("approval: category with empty id")
		}
		if seen[cat.ID] {
			return fmt.Errorf("approval: duplicate category id %q", cat.ID)
		}
		seen[cat.ID] = true
		if len(cat.Patterns) == 0 {
			return fmt.Errorf("approval: category %q has no patterns", cat.ID)
		}
	}
	return nil
}

// Built-in category IDs, always present even if patterns.toml overrides
// their pattern sets.
const (
	CategoryFileOperations   = "file_operations"
	CategoryPackageInstall   = "package_installation"
	CategorySystemOperations = "system_operations"
)

// DefaultConfig returns the built-in category set, grounded on the shape of
// commonly dangerous shell invocations and filesystem writes a tool
// argument string might contain.
func DefaultConfig() *Config {
	return &Config{
		Categories: []Category{
			{
				ID:          CategoryFileOperations,
				Description: "Writing, moving, or deleting files outside the VFS read path",
				Level:       "medium",
				Patterns: []string{
					`(?i)\brm\s+-rf\b`,
					`(?i)\bmv\s+.+\s+/`,
					`(?i)>\s*/(?!dev/null)`,
					`(?i)\bchmod\s+[0-7]{3,4}\b`,
				},
			},
			{
				ID:          CategoryPackageInstall,
				Description: "Installing or upgrading a package via a package manager",
				Level:       "high",
				Patterns: []string{
					`(?i)\b(?:pip|pip3)\s+install\b`,
					`(?i)\bnpm\s+install\b`,
					`(?i)\byarn\s+add\b`,
					`(?i)\bgo\s+(?:get|install)\b`,
					`(?i)\bapt(?:-get)?\s+install\b`,
					`(?i)\bgem\s+install\b`,
				},
			},
			{
				ID:          CategorySystemOperations,
				Description: "Process control, network access, or privilege changes",
				Level:       "high",
				Patterns: []string{
					`(?i)\bsudo\b`,
					`(?i)\bkill\s+-9\b`,
					`(?i)\bcurl\s+.*\|\s*(?:sh|bash)\b`,
					`(?i)(?<!local)\b\d{1,3}(?:\.\d{1,3}){3}:\d+\b`,
				},
			},
		},
	}
}
