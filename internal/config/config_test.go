package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/classic-hero/classichero/internal/book"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

func TestLoadWithFileOverrides(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, `
heroes:
  - id: franklin
    name: Benjamin Franklin
    books:
      - id: 148
        title: The Autobiography of Benjamin Franklin
        genre: Biography
        difficulty: medium
cover_colors:
  Biography: ["#111111", "#222222"]
http:
  timeout_seconds: 45
  max_retries: 4
  backoff_initial_ms: 100
  backoff_max_ms: 500
splitter:
  max_chapters: 0
  merge_short: true
storage:
  backend: memory
  keep_raw: true
server:
  port: 9090
merge:
  mode: replace
logging:
  development: false
  level: warn
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if len(cfg.Heroes) != 1 || cfg.Heroes[0].ID != "franklin" {
		t.Fatalf("unexpected heroes %+v", cfg.Heroes)
	}
	src := cfg.Heroes[0].Books[0]
	if src.ID != 148 || src.Difficulty != book.DifficultyMedium || src.Genre != "Biography" {
		t.Fatalf("unexpected source %+v", src)
	}
	// Viper lowercases map keys.
	if got := cfg.CoverColors["biography"]; len(got) != 2 {
		t.Fatalf("cover colors = %v", cfg.CoverColors)
	}
	if cfg.HTTP.Timeout() != 45*time.Second {
		t.Fatalf("timeout = %v", cfg.HTTP.Timeout())
	}
	if cfg.HTTP.BackoffInitial() != 100*time.Millisecond || cfg.HTTP.BackoffMax() != 500*time.Millisecond {
		t.Fatalf("backoff = %v/%v", cfg.HTTP.BackoffInitial(), cfg.HTTP.BackoffMax())
	}
	if cfg.Splitter.MaxChapters != 0 || !cfg.Splitter.MergeShort || !cfg.Splitter.SplitLong {
		t.Fatalf("splitter = %+v", cfg.Splitter)
	}
	if cfg.Storage.Backend != "memory" || !cfg.Storage.KeepRaw {
		t.Fatalf("storage = %+v", cfg.Storage)
	}
	if cfg.Server.Port != 9090 || cfg.Merge.Mode != "replace" {
		t.Fatalf("server/merge = %+v %+v", cfg.Server, cfg.Merge)
	}
	if cfg.Logging.Development || cfg.Logging.Level != "warn" {
		t.Fatalf("logging = %+v", cfg.Logging)
	}
	if err := cfg.ValidateCollect(); err != nil {
		t.Fatalf("ValidateCollect() error = %v", err)
	}
}

func TestLoadDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Gutenberg.MetadataBaseURL != "https://gutendex.com" {
		t.Fatalf("metadata url = %q", cfg.Gutenberg.MetadataBaseURL)
	}
	if cfg.Gutenberg.RequestsPerSecond != 2 || cfg.Gutenberg.Burst != 1 {
		t.Fatalf("gutenberg pacing = %v/%d", cfg.Gutenberg.RequestsPerSecond, cfg.Gutenberg.Burst)
	}
	if cfg.HTTP.MaxRetries != 3 || cfg.HTTP.BackoffInitial() != time.Second {
		t.Fatalf("http = %+v", cfg.HTTP)
	}
	if cfg.Splitter.MaxLength != 8000 || cfg.Splitter.MinLength != 500 || cfg.Splitter.MaxChapters != 20 {
		t.Fatalf("splitter = %+v", cfg.Splitter)
	}
	if cfg.Storage.Backend != "local" || cfg.Storage.BaseDir != "output" {
		t.Fatalf("storage = %+v", cfg.Storage)
	}
	if cfg.Merge.CollectedPath != "output/collected_books.json" || cfg.Merge.Mode != "append" {
		t.Fatalf("merge = %+v", cfg.Merge)
	}
	if cfg.Server.RequestTimeout() != 30*time.Second {
		t.Fatalf("request timeout = %v", cfg.Server.RequestTimeout())
	}
	if err := cfg.ValidateCollect(); err == nil {
		t.Fatal("expected ValidateCollect to reject a config without heroes")
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("CLASSICHERO_DB_DSN", "postgres://localhost/classichero")
	t.Setenv("CLASSICHERO_SERVER_PORT", "7070")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.DB.DSN != "postgres://localhost/classichero" {
		t.Fatalf("dsn = %q", cfg.DB.DSN)
	}
	if cfg.Server.Port != 7070 {
		t.Fatalf("port = %d", cfg.Server.Port)
	}
}

func TestLoadMissingFile(t *testing.T) {
	t.Parallel()

	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestValidateRejects(t *testing.T) {
	t.Parallel()

	base, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	good := book.Source{ID: 21, Title: "Aesop's Fables", Genre: "Fable", Difficulty: book.DifficultyEasy}

	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"timeout", func(c *Config) { c.HTTP.TimeoutSeconds = 0 }, "timeout_seconds"},
		{"retries", func(c *Config) { c.HTTP.MaxRetries = 0 }, "max_retries"},
		{"backoff", func(c *Config) { c.HTTP.BackoffMaxMs = 10; c.HTTP.BackoffInitialMs = 20 }, "backoff"},
		{"pacing", func(c *Config) { c.Gutenberg.RequestsPerSecond = -1 }, "requests_per_second"},
		{"notify project", func(c *Config) { c.Notify.PubSubTopic = "runs" }, "notify.pubsub_project"},
		{"max length", func(c *Config) { c.Splitter.MaxLength = 0 }, "max_length"},
		{"max chapters", func(c *Config) { c.Splitter.MaxChapters = -1 }, "max_chapters"},
		{"backend", func(c *Config) { c.Storage.Backend = "s3" }, "unknown storage.backend"},
		{"gcs bucket", func(c *Config) { c.Storage.Backend = "gcs" }, "gcs_bucket"},
		{"port", func(c *Config) { c.Server.Port = 0 }, "server.port"},
		{"merge mode", func(c *Config) { c.Merge.Mode = "upsert" }, "merge.mode"},
		{"hero id", func(c *Config) {
			c.Heroes = []book.Hero{{Books: []book.Source{good}}}
		}, "heroes[0].id"},
		{"difficulty", func(c *Config) {
			bad := good
			bad.Difficulty = "expert"
			c.Heroes = []book.Hero{{ID: "aesop", Books: []book.Source{bad}}}
		}, "unknown difficulty"},
		{"book id", func(c *Config) {
			bad := good
			bad.ID = 0
			c.Heroes = []book.Hero{{ID: "aesop", Books: []book.Source{bad}}}
		}, "must be > 0"},
		{"duplicate", func(c *Config) {
			c.Heroes = []book.Hero{{ID: "aesop", Books: []book.Source{good, good}}}
		}, "duplicate book aesop-21"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			cfg := base
			tc.mutate(&cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("Validate() error = %v, want substring %q", err, tc.want)
			}
		})
	}
}

func TestExampleConfigIsValid(t *testing.T) {
	t.Parallel()

	cfg, err := Load(filepath.Join("..", "..", "config.example.yaml"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if err := cfg.ValidateCollect(); err != nil {
		t.Fatalf("ValidateCollect() error = %v", err)
	}
	if len(cfg.Heroes) != 3 || cfg.Heroes[1].Books[0].ID != 148 {
		t.Fatalf("heroes = %+v", cfg.Heroes)
	}
	if got := cfg.CoverColors["fable"]; len(got) != 3 {
		t.Fatalf("fable palette = %v", got)
	}
}
