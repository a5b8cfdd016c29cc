package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	CurrentVersion = 1
	FileName       = ".whiteboard.yaml"

	StoreSQLite   = "sqlite"
	StoreHTTP     = "http"
	StoreAzTables = "aztables"
)

var ErrInvalid = errors.New("invalid config")

// Config is the on-disk ~/.whiteboard.yaml, after env overrides.
type Config struct {
	Version int    `yaml:"version"`
	Board   string `yaml:"board"`

	// Store selects the Block Store backend: sqlite, http or aztables.
	Store     string `yaml:"store"`
	DataDir   string `yaml:"data_dir"`
	ServerURL string `yaml:"server_url"`

	ListenAddr string        `yaml:"listen_addr"`
	RedisURL   string        `yaml:"redis_url"`
	CacheTTL   time.Duration `yaml:"cache_ttl"`

	AzureConnectionString string `yaml:"azure_connection_string"`
	AzureTable            string `yaml:"azure_table"`

	MediaDir     string `yaml:"media_dir"`
	MediaBaseURL string `yaml:"media_base_url"`

	SyncWorkers  int           `yaml:"sync_workers"`
	Debounce     time.Duration `yaml:"debounce"`
	HistoryLimit int           `yaml:"history_limit"`

	LogLevel string `yaml:"log_level"`
	LogFile  string `yaml:"log_file"`
}

func Default() Config {
	dataDir := ".whiteboard"
	if home, err := os.UserHomeDir(); err == nil {
		dataDir = filepath.Join(home, ".whiteboard")
	}
	return Config{
		Version:      CurrentVersion,
		Board:        "default",
		Store:        StoreSQLite,
		DataDir:      dataDir,
		ServerURL:    "http://localhost:8080",
		ListenAddr:   ":8080",
		CacheTTL:     30 * time.Second,
		AzureTable:   "blocks",
		MediaDir:     filepath.Join(dataDir, "media"),
		MediaBaseURL: "/media",
		SyncWorkers:  4,
		Debounce:     600 * time.Millisecond,
		HistoryLimit: 100,
		LogLevel:     "info",
		LogFile:      filepath.Join(dataDir, "whiteboard.log"),
	}
}

// DefaultPath returns ~/.whiteboard.yaml, or FileName when there is no home.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return FileName
	}
	return filepath.Join(home, FileName)
}

// Load reads path over the defaults. A missing file is not an error.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(filepath.Clean(path))
	if errors.Is(err, os.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return cfg, fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config file: %w", err)
	}
	if cfg.Version == 0 {
		cfg.Version = CurrentVersion
	}
	cfg.expandPaths()
	return cfg, nil
}

// ApplyEnv overrides fields from WHITEBOARD_* variables read through getenv.
func (c *Config) ApplyEnv(getenv func(string) string) error {
	str := func(key string, dst *string) {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			*dst = v
		}
	}
	str("WHITEBOARD_BOARD", &c.Board)
	str("WHITEBOARD_STORE", &c.Store)
	str("WHITEBOARD_DATA_DIR", &c.DataDir)
	str("WHITEBOARD_SERVER_URL", &c.ServerURL)
	str("WHITEBOARD_LISTEN_ADDR", &c.ListenAddr)
	str("WHITEBOARD_REDIS_URL", &c.RedisURL)
	str("WHITEBOARD_AZURE_CONNECTION_STRING", &c.AzureConnectionString)
	str("WHITEBOARD_AZURE_TABLE", &c.AzureTable)
	str("WHITEBOARD_MEDIA_DIR", &c.MediaDir)
	str("WHITEBOARD_MEDIA_BASE_URL", &c.MediaBaseURL)
	str("WHITEBOARD_LOG_LEVEL", &c.LogLevel)
	str("WHITEBOARD_LOG_FILE", &c.LogFile)

	ints := map[string]*int{
		"WHITEBOARD_SYNC_WORKERS":  &c.SyncWorkers,
		"WHITEBOARD_HISTORY_LIMIT": &c.HistoryLimit,
	}
	for key, dst := range ints {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("%w: %s: %v", ErrInvalid, key, err)
			}
			*dst = n
		}
	}
	durs := map[string]*time.Duration{
		"WHITEBOARD_CACHE_TTL": &c.CacheTTL,
		"WHITEBOARD_DEBOUNCE":  &c.Debounce,
	}
	for key, dst := range durs {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				return fmt.Errorf("%w: %s: %v", ErrInvalid, key, err)
			}
			*dst = d
		}
	}
	if getenv("DEBUG") == "1" {
		c.LogLevel = "debug"
	}
	c.expandPaths()
	return nil
}

func (c *Config) Validate() error {
	if c.Version != CurrentVersion {
		return fmt.Errorf("%w: unsupported version %d", ErrInvalid, c.Version)
	}
	if strings.TrimSpace(c.Board) == "" {
		return fmt.Errorf("%w: board is required", ErrInvalid)
	}
	switch c.Store {
	case StoreSQLite:
		if c.DataDir == "" {
			return fmt.Errorf("%w: data_dir is required for sqlite", ErrInvalid)
		}
	case StoreHTTP:
		if c.ServerURL == "" {
			return fmt.Errorf("%w: server_url is required for http", ErrInvalid)
		}
	case StoreAzTables:
		if c.AzureConnectionString == "" {
			return fmt.Errorf("%w: azure_connection_string is required for aztables", ErrInvalid)
		}
	default:
		return fmt.Errorf("%w: unknown store %q", ErrInvalid, c.Store)
	}
	if c.SyncWorkers < 0 || c.HistoryLimit < 0 || c.Debounce < 0 || c.CacheTTL < 0 {
		return fmt.Errorf("%w: negative worker, history, debounce or ttl value", ErrInvalid)
	}
	return nil
}

func (c *Config) expandPaths() {
	c.DataDir = expandPath(c.DataDir)
	c.MediaDir = expandPath(c.MediaDir)
	c.LogFile = expandPath(c.LogFile)
}

func expandPath(p string) string {
	if p == "" {
		return p
	}
	if strings.HasPrefix(p, "~") {
		if home, err := os.UserHomeDir(); err == nil {
			p = filepath.Join(home, strings.TrimPrefix(p, "~"))
		}
	}
	if !filepath.IsAbs(p) {
		if abs, err := filepath.Abs(p); err == nil {
			p = abs
		}
	}
	return p
}

// Save writes c to path as YAML.
func (c Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}
