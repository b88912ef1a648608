package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Environment variables that override file values. Secrets are expected to
// come from here or from a .env file rather than from config.yaml.
const (
	EnvRemoteURL    = "INVSYNC_REMOTE_URL"
	EnvAPIToken     = "INVSYNC_API_TOKEN"
	EnvDataDir      = "INVSYNC_DATA_DIR"
	EnvDatabase     = "INVSYNC_DATABASE"
	EnvLogLevel     = "INVSYNC_LOG_LEVEL"
	EnvRetention    = "INVSYNC_CHECKPOINT_RETENTION"
	EnvServerAddr   = "INVSYNC_SERVER_ADDR"
	EnvMachineID    = "INVSYNC_MACHINE_ID"
	EnvRemoteDriver = "INVSYNC_REMOTE_DRIVER"
)

// Loader handles loading configuration from files and the environment.
type Loader struct {
	configDir string
	getenv    func(string) string
}

// NewLoader creates a new configuration loader.
// If configDir is empty, it defaults to ~/.invsync.
func NewLoader(configDir string) (*Loader, error) {
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		configDir = filepath.Join(homeDir, ".invsync")
	}

	return &Loader{configDir: configDir, getenv: os.Getenv}, nil
}

// Load loads configuration from the specified file or default location,
// then applies environment overrides. A missing file yields the defaults.
// A .env file in the config directory or the working directory is loaded
// first; variables already set in the process win.
func (l *Loader) Load(configPath string) (*Config, error) {
	if configPath == "" {
		configPath = l.DefaultConfigPath()
	}

	l.loadDotEnv()

	cfg := NewDefaultConfig()

	data, err := os.ReadFile(configPath)
	switch {
	case os.IsNotExist(err):
	case err != nil:
		return nil, fmt.Errorf("failed to read config file: %w", err)
	default:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	if err := l.applyEnv(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromFile loads configuration from a specific file path.
// Returns an error if the file doesn't exist.
func (l *Loader) LoadFromFile(configPath string) (*Config, error) {
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("config file not found: %s", configPath)
	}
	return l.Load(configPath)
}

func (l *Loader) loadDotEnv() {
	for _, path := range []string{filepath.Join(l.configDir, ".env"), ".env"} {
		if _, err := os.Stat(path); err == nil {
			_ = godotenv.Load(path)
		}
	}
}

func (l *Loader) applyEnv(cfg *Config) error {
	if v := l.getenv(EnvRemoteURL); v != "" {
		cfg.Remote.BaseURL = v
	}
	if v := l.getenv(EnvAPIToken); v != "" {
		cfg.Remote.APIToken = v
	}
	if v := l.getenv(EnvRemoteDriver); v != "" {
		cfg.Remote.Driver = strings.ToLower(v)
	}
	if v := l.getenv(EnvDataDir); v != "" {
		cfg.Data.Directory = v
	}
	if v := l.getenv(EnvDatabase); v != "" {
		cfg.Data.Database = v
	}
	if v := l.getenv(EnvMachineID); v != "" {
		cfg.Data.MachineID = v
	}
	if v := l.getenv(EnvLogLevel); v != "" {
		cfg.Logging.Level = strings.ToLower(v)
	}
	if v := l.getenv(EnvServerAddr); v != "" {
		cfg.Server.Addr = v
	}
	if v := l.getenv(EnvRetention); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", EnvRetention, err)
		}
		cfg.Sync.CheckpointRetention = n
	}
	return nil
}

// Save saves configuration to the specified file or default location.
// The API token is never written; it belongs in the environment.
func (l *Loader) Save(cfg *Config, configPath string) error {
	if configPath == "" {
		configPath = l.DefaultConfigPath()
	}

	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	out := *cfg
	out.Remote.APIToken = ""

	data, err := yaml.Marshal(&out)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	header := `# invsync configuration
# Secrets: set INVSYNC_API_TOKEN in the environment or in ~/.invsync/.env
#
`
	content := header + string(data)

	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// ConfigDir returns the configuration directory path.
func (l *Loader) ConfigDir() string {
	return l.configDir
}

// DefaultConfigPath returns the default configuration file path.
func (l *Loader) DefaultConfigPath() string {
	return filepath.Join(l.configDir, "config.yaml")
}
