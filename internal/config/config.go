package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Storage backends.
const (
	StorageFile     = "file"
	StorageSQLite   = "sqlite"
	StoragePostgres = "postgres"
)

// Config represents the application configuration.
type Config struct {
	ListenAddr     string   `json:"listen_addr" yaml:"listen_addr"`
	AllowOrigins   []string `json:"allow_origins" yaml:"allow_origins"`
	MealDBURL      string   `json:"mealdb_url" yaml:"mealdb_url"`
	HTTPTimeout    Duration `json:"http_timeout" yaml:"http_timeout"`
	FetchLimit     int      `json:"fetch_limit" yaml:"fetch_limit"`
	Storage        string   `json:"storage" yaml:"storage"`
	DataDir        string   `json:"data_dir" yaml:"data_dir"`
	DatabaseURL    string   `json:"DATABASE_URL" yaml:"database_url"`
	ImageDir       string   `json:"image_dir" yaml:"image_dir"`
	ThumbnailWidth uint     `json:"thumbnail_width" yaml:"thumbnail_width"`
	Debounce       Duration `json:"debounce" yaml:"debounce"`
	LogLevel       string   `json:"log_level" yaml:"log_level"`
}

// Duration is a time.Duration read from strings like "500ms".
type Duration time.Duration

// UnmarshalJSON accepts a duration string or a number of nanoseconds.
func (d *Duration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		v, err := time.ParseDuration(s)
		if err != nil {
			return err
		}
		*d = Duration(v)
		return nil
	}
	var n int64
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("invalid duration %s", string(b))
	}
	*d = Duration(n)
	return nil
}

// UnmarshalYAML accepts a duration string.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	v, err := time.ParseDuration(node.Value)
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	dataDir := ".mealweek"
	if home, err := os.UserHomeDir(); err == nil && home != "" {
		dataDir = filepath.Join(home, ".mealweek")
	}
	return &Config{
		ListenAddr:     ":8080",
		AllowOrigins:   []string{"http://localhost:5173"},
		MealDBURL:      "https://www.themealdb.com/api/json/v1/1",
		HTTPTimeout:    Duration(15 * time.Second),
		FetchLimit:     8,
		Storage:        StorageFile,
		DataDir:        dataDir,
		ThumbnailWidth: 320,
		Debounce:       Duration(500 * time.Millisecond),
		LogLevel:       "info",
	}
}

// Load builds the configuration from defaults, then the file at path (if
// path is non-empty), then MEALWEEK_* environment variables.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		if err := cfg.readFile(path); err != nil {
			return nil, err
		}
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) readFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, c); err != nil {
			return fmt.Errorf("failed to unmarshal %s: %w", path, err)
		}
	default:
		if err := json.Unmarshal(data, c); err != nil {
			return fmt.Errorf("failed to unmarshal %s: %w", path, err)
		}
	}
	return nil
}

func (c *Config) applyEnv() error {
	setString := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}

	setString("MEALWEEK_LISTEN_ADDR", &c.ListenAddr)
	setString("MEALWEEK_MEALDB_URL", &c.MealDBURL)
	setString("MEALWEEK_STORAGE", &c.Storage)
	setString("MEALWEEK_DATA_DIR", &c.DataDir)
	setString("MEALWEEK_IMAGE_DIR", &c.ImageDir)
	setString("MEALWEEK_LOG_LEVEL", &c.LogLevel)
	setString("DATABASE_URL", &c.DatabaseURL)
	setString("MEALWEEK_DATABASE_URL", &c.DatabaseURL)

	if v := os.Getenv("MEALWEEK_ALLOW_ORIGINS"); v != "" {
		c.AllowOrigins = strings.Split(v, ",")
	}
	if v := os.Getenv("MEALWEEK_HTTP_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("MEALWEEK_HTTP_TIMEOUT: %w", err)
		}
		c.HTTPTimeout = Duration(d)
	}
	if v := os.Getenv("MEALWEEK_DEBOUNCE"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("MEALWEEK_DEBOUNCE: %w", err)
		}
		c.Debounce = Duration(d)
	}
	if v := os.Getenv("MEALWEEK_FETCH_LIMIT"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("MEALWEEK_FETCH_LIMIT: %w", err)
		}
		c.FetchLimit = n
	}
	if v := os.Getenv("MEALWEEK_THUMBNAIL_WIDTH"); v != "" {
		n, err := strconv.ParseUint(v, 10, 32)
		if err != nil {
			return fmt.Errorf("MEALWEEK_THUMBNAIL_WIDTH: %w", err)
		}
		c.ThumbnailWidth = uint(n)
	}
	return nil
}

// Validate checks the configuration for missing or inconsistent values.
func (c *Config) Validate() error {
	var errs []error

	switch c.Storage {
	case StorageFile, StorageSQLite:
	case StoragePostgres:
		if c.DatabaseURL == "" {
			errs = append(errs, errors.New("DATABASE_URL is required for postgres storage"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown storage backend %q", c.Storage))
	}
	if c.MealDBURL == "" {
		errs = append(errs, errors.New("mealdb_url must not be empty"))
	}
	if c.DataDir == "" {
		errs = append(errs, errors.New("data_dir must not be empty"))
	}
	if c.ThumbnailWidth == 0 {
		errs = append(errs, errors.New("thumbnail_width must be positive"))
	}
	if c.HTTPTimeout <= 0 {
		errs = append(errs, errors.New("http_timeout must be positive"))
	}
	if c.Debounce < 0 {
		errs = append(errs, errors.New("debounce must not be negative"))
	}
	if len(c.AllowOrigins) == 0 {
		errs = append(errs, errors.New("allow_origins must not be empty"))
	}
	for _, origin := range c.AllowOrigins {
		if !strings.HasPrefix(origin, "http://") && !strings.HasPrefix(origin, "https://") {
			errs = append(errs, fmt.Errorf("allow_origins: %q must start with http:// or https://", origin))
		}
	}

	return errors.Join(errs...)
}

// ThumbnailDir is where resized thumbnails are cached. It defaults to an
// images directory inside DataDir.
func (c *Config) ThumbnailDir() string {
	if c.ImageDir != "" {
		return c.ImageDir
	}
	return filepath.Join(c.DataDir, "images")
}

// SQLitePath is the database file used by the sqlite backend.
func (c *Config) SQLitePath() string {
	return filepath.Join(c.DataDir, "mealweek.db")
}
