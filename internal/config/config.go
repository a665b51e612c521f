// Package config loads and validates collector configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/classic-hero/classichero/internal/book"
	"github.com/classic-hero/classichero/internal/logging"
	"github.com/classic-hero/classichero/internal/storage"
)

// EnvPrefix prefixes every environment override, e.g. CLASSICHERO_DB_DSN.
const EnvPrefix = "CLASSICHERO"

// Config captures all configuration knobs loaded via Viper.
type Config struct {
	Heroes      []book.Hero         `mapstructure:"heroes"`
	CoverColors map[string][]string `mapstructure:"cover_colors"`
	Gutenberg   GutenbergConfig     `mapstructure:"gutenberg"`
	HTTP        HTTPConfig          `mapstructure:"http"`
	Splitter    SplitterConfig      `mapstructure:"splitter"`
	Storage     StorageConfig       `mapstructure:"storage"`
	DB          DBConfig            `mapstructure:"db"`
	Server      ServerConfig        `mapstructure:"server"`
	Merge       MergeConfig         `mapstructure:"merge"`
	Notify      NotifyConfig        `mapstructure:"notify"`
	Logging     logging.Config      `mapstructure:"logging"`
}

// GutenbergConfig locates the upstream services.
type GutenbergConfig struct {
	MetadataBaseURL string `mapstructure:"metadata_base_url"`
	TextBaseURL     string `mapstructure:"text_base_url"`
	UserAgent       string `mapstructure:"user_agent"`
	RespectRobots   bool   `mapstructure:"respect_robots"`

	// RequestsPerSecond paces requests per host; 0 disables pacing.
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	Burst             int     `mapstructure:"burst"`
}

// NotifyConfig selects the Pub/Sub topic that receives run notifications.
// Notifications are off when PubSubTopic is empty.
type NotifyConfig struct {
	PubSubProject string `mapstructure:"pubsub_project"`
	PubSubTopic   string `mapstructure:"pubsub_topic"`
}

// HTTPConfig configures HTTP client retry behavior.
type HTTPConfig struct {
	TimeoutSeconds   int `mapstructure:"timeout_seconds"`
	MaxRetries       int `mapstructure:"max_retries"`
	BackoffInitialMs int `mapstructure:"backoff_initial_ms"`
	BackoffMaxMs     int `mapstructure:"backoff_max_ms"`
	MaxBodyBytes     int `mapstructure:"max_body_bytes"`
}

// SplitterConfig tunes chapter post-processing.
type SplitterConfig struct {
	SplitLong         bool `mapstructure:"split_long"`
	MaxLength         int  `mapstructure:"max_length"`
	MergeShort        bool `mapstructure:"merge_short"`
	MinLength         int  `mapstructure:"min_length"`
	MaxChapters       int  `mapstructure:"max_chapters"`
	RemovePageNumbers bool `mapstructure:"remove_page_numbers"`
}

// StorageConfig selects where artifacts are written.
type StorageConfig struct {
	Backend   string `mapstructure:"backend"`
	BaseDir   string `mapstructure:"base_dir"`
	GCSBucket string `mapstructure:"gcs_bucket"`
	Prefix    string `mapstructure:"prefix"`
	KeepRaw   bool   `mapstructure:"keep_raw"`
}

// DBConfig controls access to the relational book store.
type DBConfig struct {
	DSN      string `mapstructure:"dsn"`
	MaxConns int32  `mapstructure:"max_conns"`
	MinConns int32  `mapstructure:"min_conns"`
	Migrate  bool   `mapstructure:"migrate"`
}

// ServerConfig controls the catalog API.
type ServerConfig struct {
	Port                  int    `mapstructure:"port"`
	DatasetPath           string `mapstructure:"dataset_path"`
	RequestTimeoutSeconds int    `mapstructure:"request_timeout_seconds"`
}

// MergeConfig locates the files combined by the merge command.
type MergeConfig struct {
	DatasetPath   string `mapstructure:"dataset_path"`
	CollectedPath string `mapstructure:"collected_path"`
	BackupPath    string `mapstructure:"backup_path"`
	Mode          string `mapstructure:"mode"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("gutenberg.metadata_base_url", "https://gutendex.com")
	v.SetDefault("gutenberg.text_base_url", "https://www.gutenberg.org")
	v.SetDefault("gutenberg.user_agent", "classichero-collector/1.0")
	v.SetDefault("gutenberg.respect_robots", false)
	v.SetDefault("gutenberg.requests_per_second", 2.0)
	v.SetDefault("gutenberg.burst", 1)
	v.SetDefault("http.timeout_seconds", 30)
	v.SetDefault("http.max_retries", 3)
	v.SetDefault("http.backoff_initial_ms", 1000)
	v.SetDefault("http.backoff_max_ms", 30000)
	v.SetDefault("http.max_body_bytes", 32<<20)
	v.SetDefault("splitter.split_long", true)
	v.SetDefault("splitter.max_length", 8000)
	v.SetDefault("splitter.merge_short", false)
	v.SetDefault("splitter.min_length", 500)
	v.SetDefault("splitter.max_chapters", 20)
	v.SetDefault("splitter.remove_page_numbers", false)
	v.SetDefault("storage.backend", storage.BackendLocal)
	v.SetDefault("storage.base_dir", "output")
	v.SetDefault("storage.keep_raw", false)
	v.SetDefault("db.dsn", "")
	v.SetDefault("db.max_conns", 4)
	v.SetDefault("db.migrate", true)
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.dataset_path", "data/books.json")
	v.SetDefault("server.request_timeout_seconds", 30)
	v.SetDefault("merge.dataset_path", "data/books.json")
	v.SetDefault("merge.collected_path", "output/collected_books.json")
	v.SetDefault("merge.backup_path", "data/books_backup.json")
	v.SetDefault("merge.mode", "append")
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.HTTP.TimeoutSeconds <= 0 {
		return fmt.Errorf("http.timeout_seconds must be > 0")
	}
	if c.HTTP.MaxRetries <= 0 {
		return fmt.Errorf("http.max_retries must be > 0")
	}
	if c.HTTP.BackoffInitialMs < 0 || c.HTTP.BackoffMaxMs < c.HTTP.BackoffInitialMs {
		return fmt.Errorf("http backoff must satisfy 0 <= backoff_initial_ms <= backoff_max_ms")
	}
	if c.Gutenberg.RequestsPerSecond < 0 || c.Gutenberg.Burst < 0 {
		return fmt.Errorf("gutenberg.requests_per_second and gutenberg.burst must be >= 0")
	}
	if c.Notify.PubSubTopic != "" && c.Notify.PubSubProject == "" {
		return fmt.Errorf("notify.pubsub_project is required when notify.pubsub_topic is set")
	}
	if c.Splitter.MaxLength <= 0 || c.Splitter.MinLength <= 0 {
		return fmt.Errorf("splitter.max_length and splitter.min_length must be > 0")
	}
	if c.Splitter.MaxChapters < 0 {
		return fmt.Errorf("splitter.max_chapters must be >= 0")
	}
	switch c.Storage.Backend {
	case storage.BackendLocal:
		if strings.TrimSpace(c.Storage.BaseDir) == "" {
			return fmt.Errorf("storage.base_dir is required for the local backend")
		}
	case storage.BackendGCS:
		if c.Storage.GCSBucket == "" {
			return fmt.Errorf("storage.gcs_bucket is required for the gcs backend")
		}
	case storage.BackendMemory:
	default:
		return fmt.Errorf("unknown storage.backend %q", c.Storage.Backend)
	}
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	switch c.Merge.Mode {
	case "append", "replace":
	default:
		return fmt.Errorf("merge.mode must be append or replace, got %q", c.Merge.Mode)
	}
	return c.validateHeroes()
}

// ValidateCollect additionally requires at least one hero with books.
func (c Config) ValidateCollect() error {
	for _, h := range c.Heroes {
		if len(h.Books) > 0 {
			return nil
		}
	}
	return errors.New("heroes: at least one hero with books is required")
}

func (c Config) validateHeroes() error {
	seen := make(map[string]struct{})
	for i, h := range c.Heroes {
		if strings.TrimSpace(h.ID) == "" {
			return fmt.Errorf("heroes[%d].id is required", i)
		}
		for j, b := range h.Books {
			if b.ID <= 0 {
				return fmt.Errorf("heroes[%d].books[%d].id must be > 0", i, j)
			}
			if b.Title == "" || b.Genre == "" {
				return fmt.Errorf("heroes[%d].books[%d]: title and genre are required", i, j)
			}
			if !b.Difficulty.Valid() {
				return fmt.Errorf("heroes[%d].books[%d]: unknown difficulty %q", i, j, b.Difficulty)
			}
			key := fmt.Sprintf("%s-%d", h.ID, b.ID)
			if _, dup := seen[key]; dup {
				return fmt.Errorf("heroes[%d].books[%d]: duplicate book %s", i, j, key)
			}
			seen[key] = struct{}{}
		}
	}
	return nil
}

// Timeout returns the per-request HTTP timeout.
func (c HTTPConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// BackoffInitial returns the first retry delay.
func (c HTTPConfig) BackoffInitial() time.Duration {
	return time.Duration(c.BackoffInitialMs) * time.Millisecond
}

// BackoffMax returns the retry delay cap.
func (c HTTPConfig) BackoffMax() time.Duration {
	return time.Duration(c.BackoffMaxMs) * time.Millisecond
}

// RequestTimeout returns the catalog API handler timeout.
func (c ServerConfig) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutSeconds) * time.Second
}
