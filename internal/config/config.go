// Package config loads indicator settings from YAML, .env files and the environment.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/lordvcs/ccusage_indicator/internal/logger"
)

const (
	appDirName  = "ccusage-indicator"
	fileName    = "config.yaml"
	envFileName = ".env"

	// PathEnv overrides the config file location.
	PathEnv = "CCUSAGE_INDICATOR_CONFIG"

	MinRefreshInterval = 1
	MaxRefreshInterval = 60
	MinCommandTimeout  = 5
	MaxCommandTimeout  = 120
)

// Config mirrors the indicator settings schema. Intervals are whole minutes,
// timeouts whole seconds.
type Config struct {
	RefreshInterval  int    `yaml:"refresh-interval"`
	ShowDetailedTime bool   `yaml:"show-detailed-time"`
	CcusageCommand   string `yaml:"ccusage-command"`
	CommandTimeout   int    `yaml:"command-timeout"`
	TokenLimitLookup bool   `yaml:"token-limit-lookup"`
	Notifications    bool   `yaml:"notifications"`
	LogLevel         string `yaml:"log-level"`

	// Path is the file the config was loaded from, empty for pure defaults.
	Path string `yaml:"-"`
}

func Default() Config {
	return Config{
		RefreshInterval:  5,
		ShowDetailedTime: false,
		CcusageCommand:   "npx ccusage",
		CommandTimeout:   30,
		TokenLimitLookup: true,
		Notifications:    false,
		LogLevel:         "info",
	}
}

func (c Config) Interval() time.Duration {
	return time.Duration(c.RefreshInterval) * time.Minute
}

func (c Config) Timeout() time.Duration {
	return time.Duration(c.CommandTimeout) * time.Second
}

// Validate checks the configuration for correctness.
func (c Config) Validate() error {
	if c.RefreshInterval < MinRefreshInterval || c.RefreshInterval > MaxRefreshInterval {
		return fmt.Errorf("refresh-interval must be between %d and %d minutes, got %d",
			MinRefreshInterval, MaxRefreshInterval, c.RefreshInterval)
	}
	if c.CommandTimeout < MinCommandTimeout || c.CommandTimeout > MaxCommandTimeout {
		return fmt.Errorf("command-timeout must be between %d and %d seconds, got %d",
			MinCommandTimeout, MaxCommandTimeout, c.CommandTimeout)
	}
	if strings.TrimSpace(c.CcusageCommand) == "" {
		return errors.New("ccusage-command is required")
	}
	if !logger.ValidLevel(c.LogLevel) {
		return fmt.Errorf("log-level must be one of debug, info, warn, error, got %q", c.LogLevel)
	}
	return nil
}

// DefaultPath returns $XDG_CONFIG_HOME/ccusage-indicator/config.yaml, falling
// back to ~/.config when XDG_CONFIG_HOME is unset.
func DefaultPath() (string, error) {
	if xdg := strings.TrimSpace(os.Getenv("XDG_CONFIG_HOME")); xdg != "" {
		return filepath.Join(xdg, appDirName, fileName), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	return filepath.Join(home, ".config", appDirName, fileName), nil
}

// ResolvePath picks the explicit path, then $CCUSAGE_INDICATOR_CONFIG, then
// DefaultPath.
func ResolvePath(explicit string) (string, error) {
	if p := strings.TrimSpace(explicit); p != "" {
		return p, nil
	}
	if p := strings.TrimSpace(os.Getenv(PathEnv)); p != "" {
		return p, nil
	}
	return DefaultPath()
}

// Load reads the config file at path (resolved with ResolvePath). A missing
// file yields defaults. Values from .env files are visible to ${VAR}
// expansion and overrides without being exported to the process environment.
func Load(path string) (Config, error) {
	path, err := ResolvePath(path)
	if err != nil {
		return Config{}, err
	}

	lookup := newLookup(dotenvValues(filepath.Dir(path)))
	cfg := Default()

	data, err := os.ReadFile(filepath.Clean(path))
	switch {
	case err == nil:
		data = expandEnvVars(data, lookup)
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
		cfg.Path = path
	case errors.Is(err, fs.ErrNotExist):
	default:
		return Config{}, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	if err := cfg.applyEnv(lookup); err != nil {
		return Config{}, err
	}
	cfg.CcusageCommand = strings.TrimSpace(cfg.CcusageCommand)
	cfg.LogLevel = strings.ToLower(strings.TrimSpace(cfg.LogLevel))

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	if v, ok := lookup("CCUSAGE_COMMAND"); ok && strings.TrimSpace(v) != "" {
		c.CcusageCommand = v
	}
	if v, ok := lookup("CCUSAGE_LOG_LEVEL"); ok && strings.TrimSpace(v) != "" {
		c.LogLevel = v
	}
	ints := []struct {
		key string
		dst *int
	}{
		{key: "CCUSAGE_REFRESH_INTERVAL", dst: &c.RefreshInterval},
		{key: "CCUSAGE_COMMAND_TIMEOUT", dst: &c.CommandTimeout},
	}
	for _, it := range ints {
		v, ok := lookup(it.key)
		if !ok || strings.TrimSpace(v) == "" {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("%s: invalid integer %q", it.key, v)
		}
		*it.dst = n
	}
	bools := []struct {
		key string
		dst *bool
	}{
		{key: "CCUSAGE_SHOW_DETAILED_TIME", dst: &c.ShowDetailedTime},
		{key: "CCUSAGE_TOKEN_LIMIT_LOOKUP", dst: &c.TokenLimitLookup},
		{key: "CCUSAGE_NOTIFICATIONS", dst: &c.Notifications},
	}
	for _, it := range bools {
		v, ok := lookup(it.key)
		if !ok || strings.TrimSpace(v) == "" {
			continue
		}
		b, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("%s: invalid boolean %q", it.key, v)
		}
		*it.dst = b
	}
	return nil
}

// dotenvValues merges .env from the working directory and the config
// directory; the working directory wins.
func dotenvValues(configDir string) map[string]string {
	out := map[string]string{}
	var paths []string
	if cwd, err := os.Getwd(); err == nil {
		paths = append(paths, filepath.Join(cwd, envFileName))
	}
	paths = append(paths, filepath.Join(configDir, envFileName))

	for _, p := range paths {
		if _, err := os.Stat(p); err != nil {
			continue
		}
		values, err := godotenv.Read(p)
		if err != nil {
			continue
		}
		for k, v := range values {
			if _, seen := out[k]; !seen {
				out[k] = v
			}
		}
	}
	return out
}

// newLookup prefers the process environment over .env values.
func newLookup(dotenv map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		if v, ok := os.LookupEnv(key); ok {
			return v, true
		}
		v, ok := dotenv[key]
		return v, ok
	}
}

var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars replaces ${VAR} and ${VAR:-default}.
func expandEnvVars(data []byte, lookup func(string) (string, bool)) []byte {
	return envVarRegex.ReplaceAllFunc(data, func(match []byte) []byte {
		expr := string(match[2 : len(match)-1])
		varName, defaultVal, hasDefault := strings.Cut(expr, ":-")
		val, _ := lookup(varName)
		if val == "" && hasDefault {
			val = defaultVal
		}
		return []byte(val)
	})
}
