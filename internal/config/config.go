package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	common "github.com/bobmcallan/elida-portal/internal/common"
	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
	"github.com/robfig/cron/v3"
)

// Config represents the application configuration.
type Config struct {
	Environment string               `toml:"environment"`
	Server      ServerConfig         `toml:"server"`
	API         APIConfig            `toml:"api"`
	Storage     StorageConfig        `toml:"storage"`
	Scan        ScanConfig           `toml:"scan"`
	Logging     common.LoggingConfig `toml:"logging"`
}

// ServerConfig contains local daemon settings.
type ServerConfig struct {
	Port int    `toml:"port"`
	Host string `toml:"host"`
}

// APIConfig points at the ELIDA backend.
type APIConfig struct {
	URL            string `toml:"url"`
	Timeout        string `toml:"timeout"`
	AnalyzeTimeout string `toml:"analyze_timeout"`
	QuoteTTL       string `toml:"quote_ttl"`
}

// StorageConfig contains storage layer settings.
type StorageConfig struct {
	Badger BadgerConfig `toml:"badger"`
}

// BadgerConfig contains BadgerDB-specific settings.
type BadgerConfig struct {
	Path string `toml:"path"`
}

// ScanConfig tunes the portfolio scan poller.
type ScanConfig struct {
	PollInterval string `toml:"poll_interval"`
	MaxBackoff   string `toml:"max_backoff"`
	MaxAttempts  int    `toml:"max_attempts"`
	MaxDuration  string `toml:"max_duration"`
	Schedule     string `toml:"schedule"`
}

// GetTimeout returns the default request timeout.
func (c *APIConfig) GetTimeout() time.Duration {
	return parseDuration(c.Timeout, 30*time.Second)
}

// GetAnalyzeTimeout returns the timeout for the long-running analysis call.
func (c *APIConfig) GetAnalyzeTimeout() time.Duration {
	return parseDuration(c.AnalyzeTimeout, 300*time.Second)
}

// GetQuoteTTL returns how long market quotes are cached.
func (c *APIConfig) GetQuoteTTL() time.Duration {
	return parseDuration(c.QuoteTTL, 15*time.Minute)
}

// GetPollInterval returns the scan poll period.
func (c *ScanConfig) GetPollInterval() time.Duration {
	return parseDuration(c.PollInterval, 2*time.Second)
}

// GetMaxBackoff returns the cap for retry delays after failed polls.
func (c *ScanConfig) GetMaxBackoff() time.Duration {
	return parseDuration(c.MaxBackoff, 30*time.Second)
}

// GetMaxDuration returns the overall scan deadline; zero means none.
func (c *ScanConfig) GetMaxDuration() time.Duration {
	return parseDuration(c.MaxDuration, 0)
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil || d < 0 {
		return fallback
	}
	return d
}

// FileName is the config file both binaries look for.
const FileName = "elida-portal.toml"

// SearchPaths returns the locations checked for FileName, first match wins:
// next to the binary, the working directory, then the user config directory.
func SearchPaths() []string {
	var paths []string
	if exe, err := os.Executable(); err == nil {
		binDir := filepath.Dir(exe)
		paths = append(paths, filepath.Join(binDir, FileName), filepath.Join(binDir, "config", FileName))
	}
	paths = append(paths, FileName, filepath.Join("config", FileName))
	if dir, err := os.UserConfigDir(); err == nil {
		paths = append(paths, filepath.Join(dir, "elida", FileName))
	}
	return paths
}

// FindFile returns the first existing path from SearchPaths, or "".
func FindFile() string {
	for _, p := range SearchPaths() {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// LoadFromFile loads configuration with priority: defaults -> file -> env.
func LoadFromFile(path string) (*Config, error) {
	if path == "" {
		return LoadFromFiles()
	}
	return LoadFromFiles(path)
}

// LoadFromFiles loads configuration from multiple files with priority:
// defaults -> file1 -> file2 -> ... -> .env -> env.
// Later files override earlier files.
func LoadFromFiles(paths ...string) (*Config, error) {
	config := NewDefaultConfig()

	for i, path := range paths {
		if path == "" {
			continue
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}

		if err := toml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s (file %d of %d): %w", path, i+1, len(paths), err)
		}
	}

	if err := loadDotEnv(".env"); err != nil {
		return nil, err
	}
	applyEnvOverrides(config)
	config.Environment = normalizeEnvironment(config.Environment)

	return config, nil
}

// loadDotEnv populates unset environment variables from a .env file.
// A missing file is not an error.
func loadDotEnv(path string) error {
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

// applyEnvOverrides applies ELIDA_* environment variable overrides to config.
func applyEnvOverrides(config *Config) {
	if env := os.Getenv("ELIDA_ENV"); env != "" {
		config.Environment = env
	}
	if port := os.Getenv("ELIDA_SERVER_PORT"); port != "" {
		if p, err := strconv.Atoi(port); err == nil {
			config.Server.Port = p
		}
	}
	if host := os.Getenv("ELIDA_SERVER_HOST"); host != "" {
		config.Server.Host = host
	}
	if apiURL := os.Getenv("ELIDA_API_URL"); apiURL != "" {
		config.API.URL = apiURL
	}
	if timeout := os.Getenv("ELIDA_API_TIMEOUT"); timeout != "" {
		config.API.Timeout = timeout
	}
	if badgerPath := os.Getenv("ELIDA_BADGER_PATH"); badgerPath != "" {
		config.Storage.Badger.Path = badgerPath
	}
	if interval := os.Getenv("ELIDA_SCAN_POLL_INTERVAL"); interval != "" {
		config.Scan.PollInterval = interval
	}
	if schedule := os.Getenv("ELIDA_SCAN_SCHEDULE"); schedule != "" {
		config.Scan.Schedule = schedule
	}
	if level := os.Getenv("ELIDA_LOG_LEVEL"); level != "" {
		config.Logging.Level = level
	}
}

// ApplyFlagOverrides applies command-line flag overrides to config.
func ApplyFlagOverrides(config *Config, port int, host string) {
	if port > 0 {
		config.Server.Port = port
	}
	if host != "" {
		config.Server.Host = host
	}
}

// normalizeEnvironment maps "development" to "dev" and "production" to "prod".
func normalizeEnvironment(env string) string {
	switch strings.ToLower(strings.TrimSpace(env)) {
	case "development", "dev":
		return "dev"
	case "production", "prod", "":
		return "prod"
	default:
		return env
	}
}

// IsDevMode returns true when running in the dev environment.
func (c *Config) IsDevMode() bool {
	return c.Environment == "dev"
}

// BaseURL returns the local daemon URL.
func (c *Config) BaseURL() string {
	return fmt.Sprintf("http://%s:%d", c.Server.Host, c.Server.Port)
}

// Validate reports mandatory fields that are missing or invalid.
func (c *Config) Validate() []string {
	var issues []string

	if c.API.URL == "" {
		issues = append(issues, "api.url is required (ELIDA_API_URL)")
	} else if u, err := url.Parse(c.API.URL); err != nil || u.Scheme == "" || u.Host == "" {
		issues = append(issues, fmt.Sprintf("api.url %q is not an absolute URL", c.API.URL))
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		issues = append(issues, fmt.Sprintf("server.port %d is out of range", c.Server.Port))
	}
	if c.Storage.Badger.Path == "" {
		issues = append(issues, "storage.badger.path is required (ELIDA_BADGER_PATH)")
	}
	if c.Scan.MaxAttempts < 1 {
		issues = append(issues, "scan.max_attempts must be at least 1")
	}
	if spec := strings.TrimSpace(c.Scan.Schedule); spec != "" {
		if _, err := cron.ParseStandard(spec); err != nil {
			issues = append(issues, fmt.Sprintf("scan.schedule %q is not a cron spec: %v", spec, err))
		}
	}
	for name, value := range map[string]string{
		"api.timeout":         c.API.Timeout,
		"api.analyze_timeout": c.API.AnalyzeTimeout,
		"api.quote_ttl":       c.API.QuoteTTL,
		"scan.poll_interval":  c.Scan.PollInterval,
		"scan.max_backoff":    c.Scan.MaxBackoff,
		"scan.max_duration":   c.Scan.MaxDuration,
	} {
		if value == "" {
			continue
		}
		if _, err := time.ParseDuration(value); err != nil {
			issues = append(issues, fmt.Sprintf("%s %q is not a duration", name, value))
		}
	}

	return issues
}
