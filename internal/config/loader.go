package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

const envPrefix = "STATMCP_"

// Load resolves the runtime Config from, in increasing priority: built-in
// defaults, an optional YAML file, then STATMCP_* environment variables.
//
// configPath may be empty, in which case only the default search paths
// (~/.config/statmcp/config.yaml, /etc/statmcp/config.yaml) are tried; a
// missing file at any of those paths is not an error.
func Load(configPath string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(Defaults(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("config: load defaults: %w", err)
	}

	for _, path := range candidatePaths(configPath) {
		if path == "" {
			continue
		}
		if err := validateConfigFile(path); err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, err
		}
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("config: load %s: %w", path, err)
		}
		break
	}

	if err := k.Load(env.Provider(envPrefix, ".", envKeyReplacer), nil); err != nil {
		return nil, fmt.Errorf("config: load environment: %w", err)
	}

	cfg := Defaults()
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: invalid: %w", err)
	}

	return cfg, nil
}

// candidatePaths returns configPath (if set) followed by the default
// search locations, in priority order (first found wins).
func candidatePaths(configPath string) []string {
	if configPath != "" {
		return []string{configPath}
	}
	paths := []string{filepath.Join("/etc", "statmcp", "config.yaml")}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append([]string{filepath.Join(home, ".config", "statmcp", "config.yaml")}, paths...)
	}
	return paths
}

// validateConfigFile rejects world/group-readable config files and
// confirms the path is a regular file.
func validateConfigFile(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if info.IsDir() {
		return fmt.Errorf("config: %s is a directory, expected a file", path)
	}
	if info.Mode().Perm()&0077 != 0 {
		return fmt.Errorf("config: %s has overly permissive mode %s, expected 0600 or 0400", path, info.Mode().Perm())
	}
	return nil
}

// envKeyReplacer turns STATMCP_SERVER_PORT into server.port.
func envKeyReplacer(s string) string {
	s = s[len(envPrefix):]
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '_':
			out = append(out, '.')
		case c >= 'A' && c <= 'Z':
			out = append(out, c-'A'+'a')
		default:
			out = append(out, c)
		}
	}
	return string(out)
}
