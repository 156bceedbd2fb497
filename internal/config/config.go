package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"gopkg.in/yaml.v3"
)

// Поддерживаемые бэкенды хранилища.
const (
	BackendFS       = "fs"
	BackendMemory   = "memory"
	BackendPostgres = "postgres"
	BackendBadger   = "badger"
)

type Config struct {
	ListenAddr       string        `yaml:"listen_addr" json:"listen_addr"`
	BasePath         string        `yaml:"base_path" json:"base_path"`
	Backend          string        `yaml:"backend" json:"backend"`
	DataDir          string        `yaml:"data_dir" json:"data_dir"`
	PostgresDSN      string        `yaml:"postgres_dsn" json:"-"`
	BadgerDir        string        `yaml:"badger_dir" json:"badger_dir"`
	MaxChunkSize     string        `yaml:"max_chunk_size" json:"max_chunk_size"`
	MergeParallelism int           `yaml:"merge_parallelism" json:"merge_parallelism"`
	GCTTL            time.Duration `yaml:"gc_ttl" json:"gc_ttl"`
	GCInterval       time.Duration `yaml:"gc_interval" json:"gc_interval"`
	LogLevel         string        `yaml:"log_level" json:"log_level"`
	LogFormat        string        `yaml:"log_format" json:"log_format"`
}

// Default возвращает конфигурацию, с которой сервис стартует без config.yaml.
func Default() *Config {
	return &Config{
		ListenAddr:       ":4000",
		BasePath:         "/api/big-file",
		Backend:          BackendFS,
		DataDir:          "./data/big-files",
		MaxChunkSize:     "64MiB",
		MergeParallelism: 8,
		GCTTL:            24 * time.Hour,
		GCInterval:       30 * time.Minute,
		LogLevel:         "info",
		LogFormat:        "text",
	}
}

// Load читает YAML-конфигурацию, применяет ENV-переопределения и возвращает актуальную структуру.
// Отсутствующий файл не ошибка: используются значения по умолчанию.
func Load() (*Config, error) {
	c := Default()

	path := getenv("CONFIG_PATH", "./config.yaml")
	b, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(b, c); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	case errors.Is(err, fs.ErrNotExist):
	default:
		return nil, err
	}

	// ENV override
	if v := os.Getenv("LISTEN_ADDR"); v != "" {
		c.ListenAddr = v
	}
	if v := os.Getenv("BASE_PATH"); v != "" {
		c.BasePath = v
	}
	if v := os.Getenv("BACKEND"); v != "" {
		c.Backend = v
	}
	if v := os.Getenv("DATA_DIR"); v != "" {
		c.DataDir = v
	}
	if v := os.Getenv("POSTGRES_DSN"); v != "" {
		c.PostgresDSN = v
	}
	if v := os.Getenv("BADGER_DIR"); v != "" {
		c.BadgerDir = v
	}
	if v := os.Getenv("MAX_CHUNK_SIZE"); v != "" {
		c.MaxChunkSize = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		c.LogFormat = v
	}
	if c.GCTTL, err = envDuration("GC_TTL", c.GCTTL); err != nil {
		return nil, err
	}
	if c.GCInterval, err = envDuration("GC_INTERVAL", c.GCInterval); err != nil {
		return nil, err
	}

	if err := c.Validate(); err != nil {
		return nil, err
	}

	return c, nil
}

// Validate проверяет согласованность настроек бэкенда.
func (c *Config) Validate() error {
	switch c.Backend {
	case BackendFS:
		if strings.TrimSpace(c.DataDir) == "" {
			return fmt.Errorf("data_dir is required for %q backend", c.Backend)
		}
	case BackendMemory:
	case BackendPostgres:
		if strings.TrimSpace(c.PostgresDSN) == "" {
			return fmt.Errorf("postgres_dsn is required for %q backend", c.Backend)
		}
	case BackendBadger:
		if strings.TrimSpace(c.BadgerDir) == "" {
			return fmt.Errorf("badger_dir is required for %q backend", c.Backend)
		}
	default:
		return fmt.Errorf("unknown backend %q", c.Backend)
	}

	if _, err := c.MaxChunkBytes(); err != nil {
		return err
	}
	if c.BasePath != "" && !strings.HasPrefix(c.BasePath, "/") {
		return fmt.Errorf("base_path must start with '/': %q", c.BasePath)
	}

	return nil
}

// MaxChunkBytes разбирает max_chunk_size ("64MiB", "4 MB", "1048576"). 0 означает без ограничения.
func (c *Config) MaxChunkBytes() (int64, error) {
	if strings.TrimSpace(c.MaxChunkSize) == "" {
		return 0, nil
	}
	n, err := humanize.ParseBytes(c.MaxChunkSize)
	if err != nil {
		return 0, fmt.Errorf("invalid max_chunk_size %q: %w", c.MaxChunkSize, err)
	}

	return int64(n), nil
}

func envDuration(k string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(k)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", k, err)
	}

	return d, nil
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}

	return def
}
