package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// Config represents the font-manager configuration file.
type Config struct {
	DataDir       string   `toml:"data_dir"`
	LogDir        string   `toml:"log_dir"`
	LogLevel      string   `toml:"log_level"`
	Database      Database `toml:"database"`
	FcList        string   `toml:"fc_list,omitempty"`
	FcCache       string   `toml:"fc_cache,omitempty"`
	Workers       int      `toml:"workers,omitempty"`        // metadata extraction workers, 0 = NumCPU
	WatchDebounce Duration `toml:"watch_debounce,omitempty"` // delay between a directory event and a sync
}

// Database represents configuration for the metadata cache.
// The Type field determines which other fields are relevant.
type Database struct {
	Type string `toml:"type"`           // "sqlite" or "memory"
	Path string `toml:"path,omitempty"` // only used for type=sqlite; defaults to <data_dir>/font-manager.sqlite
}

// Duration is a time.Duration encoded as a string ("2s") in TOML.
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return fmt.Errorf("parsing duration %q: %w", text, err)
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Default returns the configuration used when no file exists.
func Default(dataDir string) *Config {
	return &Config{
		DataDir:       dataDir,
		LogDir:        filepath.Join(dataDir, "log"),
		LogLevel:      "info",
		Database:      Database{Type: "sqlite"},
		WatchDebounce: Duration{2 * time.Second},
	}
}

// DatabasePath resolves the cache location.
func (c *Config) DatabasePath() (string, error) {
	switch c.Database.Type {
	case "", "sqlite":
		if c.Database.Path != "" {
			return c.Database.Path, nil
		}
		if c.DataDir == "" {
			return "", fmt.Errorf("data_dir required for sqlite database")
		}
		return filepath.Join(c.DataDir, "font-manager.sqlite"), nil
	case "memory":
		return ":memory:", nil
	default:
		return "", fmt.Errorf("unknown database type: %s", c.Database.Type)
	}
}

// Read decodes a Config from r on top of the defaults in base.
func Read(r io.Reader, base *Config) (*Config, error) {
	cfg := *base
	if _, err := toml.NewDecoder(r).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decoding config: %w", err)
	}
	return &cfg, nil
}

// Write encodes cfg to w.
func Write(w io.Writer, cfg *Config) error {
	if err := toml.NewEncoder(w).Encode(cfg); err != nil {
		return fmt.Errorf("encoding config: %w", err)
	}
	return nil
}

// Load reads the config file at path. A missing file yields base.
func Load(path string, base *Config) (*Config, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return base, nil
	}
	if err != nil {
		return nil, fmt.Errorf("opening config file: %w", err)
	}
	defer f.Close()

	cfg, err := Read(f, base)
	if err != nil {
		return nil, fmt.Errorf("reading config from %s: %w", path, err)
	}
	return cfg, nil
}

// Init writes cfg to path. It refuses to overwrite an existing file.
func Init(path string, cfg *Config) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating config file: %w", err)
	}
	defer f.Close()

	if err := Write(f, cfg); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}
	return nil
}
