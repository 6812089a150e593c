package config

import (
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/agentctl/agentctl/errors"
	"github.com/agentctl/agentctl/pkg/paths"
	"github.com/pelletier/go-toml/v2"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

// coreConfigKeys lists the known top-level keys that belong to Config.
// Parsing is done twice (once typed, once into a raw map) so that
// everything else can be captured into Extensions.
var coreConfigKeys = map[string]bool{
	"socket_path":           true,
	"config_dir":            true,
	"adapter_timeout":       true,
	"rpc_timeout":           true,
	"fuse_default_ttl":      true,
	"grace_period":          true,
	"dead_sweep_interval":   true,
	"pending_sweep_interval": true,
	"flush_debounce":        true,
	"supervisor":            true,
	"log_level":             true,
	"log_format":            true,
}

// configNames are the recognized file names, checked in order, both in
// the cwd-upward search and in the XDG config directory.
var configNames = []string{"agentctl.yaml", "agentctl.yml", "agentctl.toml"}

// unmarshalConfig parses config data based on file extension, capturing
// any key this struct doesn't recognize into Extensions.
func unmarshalConfig(path string, data []byte) (*Config, error) {
	var cfg Config

	if strings.HasSuffix(path, ".toml") {
		if err := toml.Unmarshal(data, &cfg); err != nil {
			return nil, err
		}
		var raw map[string]interface{}
		if err := toml.Unmarshal(data, &raw); err == nil {
			extensions := make(map[string]interface{})
			for k, v := range raw {
				if !coreConfigKeys[k] {
					extensions[k] = v
				}
			}
			if len(extensions) > 0 {
				cfg.Extensions = extensions
			}
		}
		return &cfg, nil
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	var raw map[string]interface{}
	if err := yaml.Unmarshal(data, &raw); err == nil {
		extensions := make(map[string]interface{})
		for k, v := range raw {
			if !coreConfigKeys[k] {
				extensions[k] = v
			}
		}
		if len(extensions) > 0 {
			cfg.Extensions = extensions
		}
	}
	return &cfg, nil
}

// Load reads, env-expands, and parses a single config file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.ConfigNotFound(path)
		}
		return nil, errors.Wrap(err, errors.ErrCodeConfigInvalid, "failed to read config file").
			WithDetail("path", path)
	}

	expanded := expandEnvVars(string(data))
	cfg, err := unmarshalConfig(path, []byte(expanded))
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeConfigInvalid, "failed to parse config file").
			WithDetail("path", path)
	}
	return cfg, nil
}

// LoadDefault finds the daemon's config file — searching the current
// directory upward, then the XDG config directory — and loads it. If no
// file exists anywhere, it returns a zero Config (not an error): the
// daemon runs on defaults alone. A malformed file that IS found is a
// ConfigInvalid error for the caller to handle per its own fail-open
// policy (see SetDefaults and §4.8's "malformed config logs a warning
// and the process continues with defaults").
func LoadDefault() (*Config, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeConfigInvalid, "failed to get current directory")
	}

	path, err := FindConfigFile(cwd)
	if err != nil {
		return &Config{}, nil
	}
	return Load(path)
}

// LoadDefaultWithLogger behaves like LoadDefault but never returns an
// error: a malformed config is logged as a warning and defaults are
// used instead, matching the state store's fail-open philosophy.
func LoadDefaultWithLogger(log *logrus.Entry) *Config {
	cfg, err := LoadDefault()
	if err != nil {
		log.WithError(err).Warn("failed to load config, continuing with defaults")
		cfg = &Config{}
	}
	cfg.SetDefaults()
	return cfg
}

// FindConfigFile searches for agentctl's config file with the following
// precedence: current directory up to the filesystem root, then the
// XDG config directory. Unlike the teacher's grove.yml search, there is
// no git-root or ecosystem fallback — agentctl has exactly one global
// config, not a per-project one.
func FindConfigFile(startDir string) (string, error) {
	dir := startDir
	for {
		for _, name := range configNames {
			p := filepath.Join(dir, name)
			if info, err := os.Stat(p); err == nil && !info.IsDir() {
				return p, nil
			}
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	if xdgPath := getXDGConfigPath(); xdgPath != "" {
		if info, err := os.Stat(xdgPath); err == nil && !info.IsDir() {
			return xdgPath, nil
		}
	}

	return "", errors.ConfigNotFound(startDir).WithDetail("searchPath", startDir)
}

// getXDGConfigPath returns the first recognized config file name found
// in agentctl's XDG config directory, or "" if none exists.
func getXDGConfigPath() string {
	configDir := paths.ConfigDir()
	if configDir == "" {
		return ""
	}
	for _, name := range configNames {
		p := filepath.Join(configDir, name)
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// expandEnvVars replaces ${VAR} and ${VAR:-default} with environment
// variable values before the config is parsed.
func expandEnvVars(content string) string {
	return envVarRegex.ReplaceAllStringFunc(content, func(match string) string {
		varName := envVarRegex.FindStringSubmatch(match)[1]

		parts := strings.SplitN(varName, ":-", 2)
		varName = parts[0]
		defaultValue := ""
		if len(parts) > 1 {
			defaultValue = parts[1]
		}

		if value := os.Getenv(varName); value != "" {
			return value
		}
		return defaultValue
	})
}
