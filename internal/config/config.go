package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	amerrors "github.com/Aman-CERP/amanindex/internal/errors"
)

// Project config file names, in order of precedence.
const (
	ProjectConfigFile    = ".amanindex.yaml"
	ProjectConfigFileAlt = ".amanindex.yml"
)

// Index store providers.
const (
	ProviderNone   = "none"
	ProviderBleve  = "bleve"
	ProviderSQLite = "sqlite"
	ProviderMemory = "memory"
)

// Status record backends.
const (
	StatusBackendFile  = "file"
	StatusBackendMinio = "minio"
)

// ScopeTypeFilesystem is the only built-in collector type.
const ScopeTypeFilesystem = "filesystem"

// Defaults applied to scopes that leave fields empty.
const (
	DefaultSegmentSize       = 100
	DefaultMaxFileSize int64 = 10 * 1024 * 1024
)

// Config represents the complete amanindex configuration.
type Config struct {
	Version int `yaml:"version" json:"version"`

	// Environment distinguishes status records and locks of different
	// machines or deployments sharing one data directory. Defaults to the hostname.
	Environment string `yaml:"environment" json:"environment"`

	// DataDir holds status records, lock files, manifests and file-backed
	// indexes. Relative paths resolve against the project root.
	DataDir string `yaml:"data_dir" json:"data_dir"`

	// Provider selects the index store: bleve, sqlite, memory or none.
	// "none" turns every build operation into a no-op.
	Provider string `yaml:"provider" json:"provider"`

	// StoreOpenTimeout bounds how long opening a bleve index waits for
	// another process to let go of it.
	StoreOpenTimeout time.Duration `yaml:"store_open_timeout" json:"store_open_timeout"`

	// Parallelism caps how many scopes the CLI builds at once.
	Parallelism int `yaml:"parallelism" json:"parallelism"`

	LogLevel string `yaml:"log_level" json:"log_level"`

	Status StatusConfig  `yaml:"status" json:"status"`
	Scopes []ScopeConfig `yaml:"scopes" json:"scopes"`
}

// StatusConfig selects where status records live.
type StatusConfig struct {
	// Backend is "file" (default) or "minio".
	Backend string      `yaml:"backend" json:"backend"`
	Minio   MinioConfig `yaml:"minio" json:"minio"`
}

// MinioConfig configures the S3-compatible status backend.
type MinioConfig struct {
	Endpoint  string `yaml:"endpoint" json:"endpoint"`
	Bucket    string `yaml:"bucket" json:"bucket"`
	Prefix    string `yaml:"prefix" json:"prefix"`
	AccessKey string `yaml:"access_key" json:"-"`
	SecretKey string `yaml:"secret_key" json:"-"`
	UseSSL    bool   `yaml:"use_ssl" json:"use_ssl"`
}

// ScopeConfig declares one index and the collector feeding it.
type ScopeConfig struct {
	Name string `yaml:"name" json:"name"`
	// Type is the collector type. Only "filesystem" is built in.
	Type string `yaml:"type" json:"type"`
	// Root is the directory the filesystem collector walks.
	// Relative paths resolve against the project root.
	Root        string   `yaml:"root" json:"root"`
	Include     []string `yaml:"include" json:"include"`
	Exclude     []string `yaml:"exclude" json:"exclude"`
	SegmentSize int      `yaml:"segment_size" json:"segment_size"`
	MaxFileSize int64    `yaml:"max_file_size" json:"max_file_size"`
	// NoGitignore disables .gitignore handling under Root.
	NoGitignore bool `yaml:"no_gitignore" json:"no_gitignore"`
}

// defaultExcludePatterns are always excluded from filesystem scopes.
var defaultExcludePatterns = []string{
	"**/.git/**",
	"**/.amanindex/**",
	"**/node_modules/**",
	"**/vendor/**",
	"**/__pycache__/**",
	"**/*.min.js",
	"**/*.min.css",
}

// NewConfig creates a new Config with defaults.
func NewConfig() *Config {
	return &Config{
		Version:          1,
		Environment:      defaultEnvironment(),
		DataDir:          ".amanindex",
		Provider:         ProviderBleve,
		StoreOpenTimeout: 2 * time.Second,
		Parallelism:      4,
		LogLevel:         "info",
		Status: StatusConfig{
			Backend: StatusBackendFile,
			Minio: MinioConfig{
				Prefix: "amanindex/status",
				UseSSL: true,
			},
		},
	}
}

// defaultEnvironment returns the hostname, or "default" if it is unknown.
func defaultEnvironment() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		return "default"
	}
	return host
}

// WithDefaults returns a copy of s with empty fields filled in.
func (s ScopeConfig) WithDefaults() ScopeConfig {
	if s.Type == "" {
		s.Type = ScopeTypeFilesystem
	}
	if s.Root == "" {
		s.Root = "."
	}
	if s.SegmentSize == 0 {
		s.SegmentSize = DefaultSegmentSize
	}
	if s.MaxFileSize == 0 {
		s.MaxFileSize = DefaultMaxFileSize
	}
	s.Exclude = append(append([]string{}, defaultExcludePatterns...), s.Exclude...)
	return s
}

// ResolveDataDir returns DataDir as an absolute path, resolving relative
// paths against root.
func (c *Config) ResolveDataDir(root string) string {
	if filepath.IsAbs(c.DataDir) {
		return c.DataDir
	}
	return filepath.Join(root, c.DataDir)
}

// Scope returns the scope config with the given name (case-insensitive).
func (c *Config) Scope(name string) (ScopeConfig, bool) {
	for _, s := range c.Scopes {
		if strings.EqualFold(s.Name, name) {
			return s, true
		}
	}
	return ScopeConfig{}, false
}

// GetUserConfigPath returns the path to the user/global configuration file.
// It follows the XDG Base Directory specification:
//   - $XDG_CONFIG_HOME/amanindex/config.yaml (if XDG_CONFIG_HOME is set)
//   - ~/.config/amanindex/config.yaml (default)
func GetUserConfigPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "amanindex", "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".config", "amanindex", "config.yaml")
	}
	return filepath.Join(home, ".config", "amanindex", "config.yaml")
}

// loadUserConfig loads the user configuration file if it exists.
// Returns nil config and nil error if the file doesn't exist.
func loadUserConfig() (*Config, error) {
	configPath := GetUserConfigPath()
	if !fileExists(configPath) {
		return nil, nil
	}

	var parsed Config
	if err := parseYAML(configPath, &parsed); err != nil {
		return nil, err
	}
	return &parsed, nil
}

// Load loads configuration for the project in dir.
// Precedence, lowest to highest:
//  1. Hardcoded defaults
//  2. User config (~/.config/amanindex/config.yaml)
//  3. Project config (.amanindex.yaml in dir)
//  4. Environment variables (AMANINDEX_*)
func Load(dir string) (*Config, error) {
	cfg := NewConfig()

	userCfg, err := loadUserConfig()
	if err != nil {
		return nil, amerrors.ConfigError("failed to load user config", err)
	}
	if userCfg != nil {
		cfg.mergeWith(userCfg)
	}

	if err := cfg.loadFromFile(dir); err != nil {
		return nil, amerrors.ConfigError("failed to load project config", err)
	}

	cfg.applyEnvOverrides()
	cfg.normalize()

	if err := cfg.Validate(); err != nil {
		return nil, amerrors.ConfigError("invalid configuration", err).
			WithSuggestion("Fix " + ProjectConfigFile + " or the AMANINDEX_* environment variables")
	}

	return cfg, nil
}

// loadFromFile merges .amanindex.yaml (or .yml) from dir, if present.
func (c *Config) loadFromFile(dir string) error {
	for _, name := range []string{ProjectConfigFile, ProjectConfigFileAlt} {
		path := filepath.Join(dir, name)
		if !fileExists(path) {
			continue
		}
		var parsed Config
		if err := parseYAML(path, &parsed); err != nil {
			return err
		}
		c.mergeWith(&parsed)
		return nil
	}
	return nil
}

func parseYAML(path string, into *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, into); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

// mergeWith merges non-zero values from other into c.
func (c *Config) mergeWith(other *Config) {
	if other.Version != 0 {
		c.Version = other.Version
	}
	if other.Environment != "" {
		c.Environment = other.Environment
	}
	if other.DataDir != "" {
		c.DataDir = other.DataDir
	}
	if other.Provider != "" {
		c.Provider = other.Provider
	}
	if other.StoreOpenTimeout != 0 {
		c.StoreOpenTimeout = other.StoreOpenTimeout
	}
	if other.Parallelism != 0 {
		c.Parallelism = other.Parallelism
	}
	if other.LogLevel != "" {
		c.LogLevel = other.LogLevel
	}

	if other.Status.Backend != "" {
		c.Status.Backend = other.Status.Backend
	}
	m := other.Status.Minio
	if m.Endpoint != "" {
		c.Status.Minio.Endpoint = m.Endpoint
	}
	if m.Bucket != "" {
		c.Status.Minio.Bucket = m.Bucket
	}
	if m.Prefix != "" {
		c.Status.Minio.Prefix = m.Prefix
	}
	if m.AccessKey != "" {
		c.Status.Minio.AccessKey = m.AccessKey
	}
	if m.SecretKey != "" {
		c.Status.Minio.SecretKey = m.SecretKey
	}
	if m.Endpoint != "" {
		// use_ssl only means something next to an endpoint
		c.Status.Minio.UseSSL = m.UseSSL
	}

	// Scopes replace rather than merge: a project declares its own indexes
	if len(other.Scopes) > 0 {
		c.Scopes = other.Scopes
	}
}

// applyEnvOverrides applies AMANINDEX_* environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("AMANINDEX_ENVIRONMENT"); v != "" {
		c.Environment = v
	}
	if v := os.Getenv("AMANINDEX_DATA_DIR"); v != "" {
		c.DataDir = v
	}
	if v := os.Getenv("AMANINDEX_PROVIDER"); v != "" {
		c.Provider = v
	}
	if v := os.Getenv("AMANINDEX_STATUS_BACKEND"); v != "" {
		c.Status.Backend = v
	}
	if v := os.Getenv("AMANINDEX_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv("AMANINDEX_PARALLELISM"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Parallelism = n
		}
	}
	if v := os.Getenv("AMANINDEX_MINIO_ENDPOINT"); v != "" {
		c.Status.Minio.Endpoint = v
	}
	if v := os.Getenv("AMANINDEX_MINIO_BUCKET"); v != "" {
		c.Status.Minio.Bucket = v
	}
	if v := os.Getenv("AMANINDEX_MINIO_ACCESS_KEY"); v != "" {
		c.Status.Minio.AccessKey = v
	}
	if v := os.Getenv("AMANINDEX_MINIO_SECRET_KEY"); v != "" {
		c.Status.Minio.SecretKey = v
	}
	if v := os.Getenv("AMANINDEX_MINIO_USE_SSL"); v != "" {
		c.Status.Minio.UseSSL = strings.ToLower(v) == "true" || v == "1"
	}
}

// normalize lowercases enum-like fields so later comparisons are exact.
func (c *Config) normalize() {
	c.Provider = strings.ToLower(strings.TrimSpace(c.Provider))
	c.Status.Backend = strings.ToLower(strings.TrimSpace(c.Status.Backend))
	c.LogLevel = strings.ToLower(strings.TrimSpace(c.LogLevel))
}

// Validate validates the configuration and returns an error if invalid.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Environment) == "" {
		return fmt.Errorf("environment must not be empty")
	}

	switch strings.ToLower(c.Provider) {
	case ProviderNone, ProviderBleve, ProviderSQLite, ProviderMemory:
	default:
		return fmt.Errorf("provider must be 'bleve', 'sqlite', 'memory' or 'none', got %q", c.Provider)
	}

	switch strings.ToLower(c.Status.Backend) {
	case StatusBackendFile:
	case StatusBackendMinio:
		if c.Status.Minio.Endpoint == "" || c.Status.Minio.Bucket == "" {
			return fmt.Errorf("status.minio.endpoint and status.minio.bucket are required for the minio backend")
		}
	default:
		return fmt.Errorf("status.backend must be 'file' or 'minio', got %q", c.Status.Backend)
	}

	if c.StoreOpenTimeout < 0 {
		return fmt.Errorf("store_open_timeout must be non-negative, got %s", c.StoreOpenTimeout)
	}
	if c.Parallelism < 0 {
		return fmt.Errorf("parallelism must be non-negative, got %d", c.Parallelism)
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.LogLevel)] {
		return fmt.Errorf("log_level must be 'debug', 'info', 'warn', or 'error', got %s", c.LogLevel)
	}

	seen := make(map[string]bool, len(c.Scopes))
	for i, s := range c.Scopes {
		name := strings.ToLower(strings.TrimSpace(s.Name))
		if name == "" {
			return fmt.Errorf("scopes[%d].name must not be empty", i)
		}
		if seen[name] {
			return fmt.Errorf("scope %q is declared more than once", s.Name)
		}
		seen[name] = true

		if s.Type != "" && s.Type != ScopeTypeFilesystem {
			return fmt.Errorf("scope %q: unknown type %q", s.Name, s.Type)
		}
		if s.SegmentSize < 0 {
			return fmt.Errorf("scope %q: segment_size must be positive, got %d", s.Name, s.SegmentSize)
		}
		if s.MaxFileSize < 0 {
			return fmt.Errorf("scope %q: max_file_size must be non-negative, got %d", s.Name, s.MaxFileSize)
		}
	}

	return nil
}

// WriteYAML writes the configuration to a YAML file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// FindProjectRoot walks up from startDir looking for a project config file
// or a .git directory. Falls back to startDir.
func FindProjectRoot(startDir string) (string, error) {
	absDir, err := filepath.Abs(startDir)
	if err != nil {
		return "", fmt.Errorf("failed to get absolute path: %w", err)
	}

	currentDir := absDir
	for {
		if fileExists(filepath.Join(currentDir, ProjectConfigFile)) ||
			fileExists(filepath.Join(currentDir, ProjectConfigFileAlt)) {
			return currentDir, nil
		}
		if dirExists(filepath.Join(currentDir, ".git")) {
			return currentDir, nil
		}

		parentDir := filepath.Dir(currentDir)
		if parentDir == currentDir {
			return absDir, nil
		}
		currentDir = parentDir
	}
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

func dirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
