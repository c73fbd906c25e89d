package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds the application configuration
type Config struct {
	Canvas      CanvasConfig `json:"canvas"`
	Export      ExportConfig `json:"export"`
	Loader      LoaderConfig `json:"loader"`
	Oracle      OracleConfig `json:"oracle"`
	Cache       CacheConfig  `json:"cache"`
	Server      ServerConfig `json:"server"`
	Log         LogConfig    `json:"log"`
	Output      OutputConfig `json:"output"`
	CatalogPath string       `json:"catalog_path,omitempty"`
}

// CanvasConfig holds the preview buffer settings
type CanvasConfig struct {
	Width         int    `json:"width"`
	Height        int    `json:"height"`
	Interpolation string `json:"interpolation"`
}

// ExportConfig holds the clean export encoding
type ExportConfig struct {
	Format   string `json:"format"`
	Quality  int    `json:"quality"`
	Lossless bool   `json:"lossless"`
}

// LoaderConfig holds configuration for source image loading
type LoaderConfig struct {
	SupportedFormats []string `json:"supported_formats"`
	MinImageSize     int      `json:"min_image_size"`
	MaxDownloadBytes int64    `json:"max_download_bytes"`
	TimeoutSeconds   int      `json:"timeout_seconds"`
}

// OracleConfig selects the vision backend
type OracleConfig struct {
	Backend        string `json:"backend"`
	URL            string `json:"url"`
	Model          string `json:"model"`
	APIKey         string `json:"-"`
	TimeoutSeconds int    `json:"timeout_seconds"`
}

// CacheConfig holds verdict cache settings
type CacheConfig struct {
	Backend       string `json:"backend"`
	RedisAddr     string `json:"redis_addr"`
	RedisPassword string `json:"-"`
	RedisDB       int    `json:"redis_db"`
	TTLSeconds    int    `json:"ttl_seconds"`
}

// ServerConfig holds HTTP API settings
type ServerConfig struct {
	Addr string `json:"addr"`
}

// LogConfig holds logger settings
type LogConfig struct {
	Level       string `json:"level"`
	Development bool   `json:"development"`
}

// OutputConfig holds configuration for CLI output files
type OutputConfig struct {
	OutputDir string `json:"output_dir"`
	Prefix    string `json:"prefix"`
}

// Backends
const (
	BackendOllama = "ollama"
	BackendOpenAI = "openai"

	CacheNone   = "none"
	CacheMemory = "memory"
	CacheRedis  = "redis"
)

// Default returns a configuration with default values
func Default() *Config {
	return &Config{
		Canvas: CanvasConfig{
			Width:         500,
			Height:        500,
			Interpolation: "bilinear",
		},
		Export: ExportConfig{
			Format:  "jpg",
			Quality: 80,
		},
		Loader: LoaderConfig{
			SupportedFormats: []string{"jpeg", "png", "gif", "webp"},
			MinImageSize:     16,
			MaxDownloadBytes: 20 << 20,
			TimeoutSeconds:   30,
		},
		Oracle: OracleConfig{
			Backend:        BackendOllama,
			URL:            "http://localhost:11434",
			Model:          "llava",
			TimeoutSeconds: 120,
		},
		Cache: CacheConfig{
			Backend:    CacheMemory,
			RedisAddr:  "localhost:6379",
			TTLSeconds: 3600,
		},
		Server: ServerConfig{
			Addr: ":8080",
		},
		Log: LogConfig{
			Level: "info",
		},
		Output: OutputConfig{
			OutputDir: "./output",
		},
	}
}

// LoadFromFile loads configuration from a JSON file on top of the defaults
func LoadFromFile(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := Default()
	if err := json.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return config, nil
}

// SaveToFile saves configuration to a JSON file. Secrets are not written.
func (c *Config) SaveToFile(filename string) error {
	dir := filepath.Dir(filename)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// ApplyEnv overrides fields from EDGELAB_* variables. envFile, if it exists,
// is read with godotenv; real environment variables take precedence over it.
// API_KEY is accepted when EDGELAB_ORACLE_API_KEY is unset.
func (c *Config) ApplyEnv(envFile string) error {
	fileVars := map[string]string{}
	if envFile != "" {
		vars, err := godotenv.Read(envFile)
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("failed to read env file: %w", err)
		}
		if vars != nil {
			fileVars = vars
		}
	}

	lookup := func(key string) (string, bool) {
		if v, ok := os.LookupEnv(key); ok {
			return v, true
		}
		v, ok := fileVars[key]
		return v, ok
	}

	setString := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	setInt := func(key string, dst *int) error {
		v, ok := lookup(key)
		if !ok || v == "" {
			return nil
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		*dst = n
		return nil
	}
	setBool := func(key string, dst *bool) error {
		v, ok := lookup(key)
		if !ok || v == "" {
			return nil
		}
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		*dst = b
		return nil
	}

	setString("API_KEY", &c.Oracle.APIKey)
	setString("EDGELAB_ORACLE_API_KEY", &c.Oracle.APIKey)
	setString("EDGELAB_ORACLE_BACKEND", &c.Oracle.Backend)
	setString("EDGELAB_ORACLE_URL", &c.Oracle.URL)
	setString("EDGELAB_ORACLE_MODEL", &c.Oracle.Model)
	setString("EDGELAB_CACHE_BACKEND", &c.Cache.Backend)
	setString("EDGELAB_REDIS_ADDR", &c.Cache.RedisAddr)
	setString("EDGELAB_REDIS_PASSWORD", &c.Cache.RedisPassword)
	setString("EDGELAB_SERVER_ADDR", &c.Server.Addr)
	setString("EDGELAB_LOG_LEVEL", &c.Log.Level)
	setString("EDGELAB_CATALOG", &c.CatalogPath)
	setString("EDGELAB_OUTPUT_DIR", &c.Output.OutputDir)

	return errors.Join(
		setInt("EDGELAB_ORACLE_TIMEOUT", &c.Oracle.TimeoutSeconds),
		setInt("EDGELAB_REDIS_DB", &c.Cache.RedisDB),
		setInt("EDGELAB_CACHE_TTL", &c.Cache.TTLSeconds),
		setInt("EDGELAB_EXPORT_QUALITY", &c.Export.Quality),
		setBool("EDGELAB_LOG_DEV", &c.Log.Development),
	)
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Canvas.Width < 1 || c.Canvas.Height < 1 {
		return fmt.Errorf("canvas.width and canvas.height must be positive")
	}

	switch c.Export.Format {
	case "jpg", "jpeg", "png", "webp":
	default:
		return fmt.Errorf("export.format %q is not supported", c.Export.Format)
	}

	if c.Export.Quality < 1 || c.Export.Quality > 100 {
		return fmt.Errorf("export.quality must be between 1 and 100")
	}

	if c.Loader.MinImageSize < 1 {
		return fmt.Errorf("loader.min_image_size must be positive")
	}

	if len(c.Loader.SupportedFormats) == 0 {
		return fmt.Errorf("loader.supported_formats cannot be empty")
	}

	if c.Oracle.Backend != BackendOllama && c.Oracle.Backend != BackendOpenAI {
		return fmt.Errorf("oracle.backend must be %q or %q", BackendOllama, BackendOpenAI)
	}

	if c.Oracle.Model == "" {
		return fmt.Errorf("oracle.model cannot be empty")
	}

	if c.Oracle.TimeoutSeconds < 1 {
		return fmt.Errorf("oracle.timeout_seconds must be positive")
	}

	switch c.Cache.Backend {
	case CacheNone, CacheMemory:
	case CacheRedis:
		if c.Cache.RedisAddr == "" {
			return fmt.Errorf("cache.redis_addr is required for the redis backend")
		}
	default:
		return fmt.Errorf("cache.backend %q is not supported", c.Cache.Backend)
	}

	if c.Cache.TTLSeconds < 0 {
		return fmt.Errorf("cache.ttl_seconds cannot be negative")
	}

	return nil
}

// OracleTimeout returns the per-call oracle deadline
func (c *Config) OracleTimeout() time.Duration {
	return time.Duration(c.Oracle.TimeoutSeconds) * time.Second
}

// LoaderTimeout returns the download deadline for source images
func (c *Config) LoaderTimeout() time.Duration {
	return time.Duration(c.Loader.TimeoutSeconds) * time.Second
}

// CacheTTL returns how long verdicts stay cached
func (c *Config) CacheTTL() time.Duration {
	return time.Duration(c.Cache.TTLSeconds) * time.Second
}

// GetConfigPath returns the default configuration file path
func GetConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "./config.json"
	}
	return filepath.Join(home, ".config", "edgecase-lab", "config.json")
}
