package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

var ErrMissingRequired = errors.New("missing required configuration")

type Config struct {
	DBHost string `envconfig:"DB_HOST" default:"postgres"`
	DBPort int    `envconfig:"DB_PORT" default:"5432"`
	DBUser string `envconfig:"DB_USER" default:"pdc"`
	DBPass string `envconfig:"DB_PASS" default:"password"`
	DBName string `envconfig:"DB_NAME" default:"pdc"`

	WeaviateHost   string `envconfig:"WEAVIATE_HOST" default:"localhost:8080"`
	WeaviateScheme string `envconfig:"WEAVIATE_SCHEME" default:"http"`

	NSQLookupd string `envconfig:"NSQ_LOOKUPD" default:"nsqlookupd:4161"`
	NSQDHost   string `envconfig:"NSQD_HOST" default:"nsqd:4150"`

	// Embedding provider
	GeminiAPIKey     string `envconfig:"GEMINI_API_KEY"`
	EmbeddingModel   string `envconfig:"EMBEDDING_MODEL" default:"text-embedding-004"`
	EmbeddingDim     int    `envconfig:"EMBEDDING_DIM" default:"768"`
	EmbedMaxChars    int    `envconfig:"EMBED_MAX_CHARS" default:"32000"`
	EmbedMaxRetries  int    `envconfig:"EMBED_MAX_RETRIES" default:"3"`
	EmbedBaseDelayMS int    `envconfig:"EMBED_BASE_DELAY_MS" default:"1000"`

	// Capture limits
	MaxUploadSizeMB int64 `envconfig:"MAX_UPLOAD_SIZE_MB" default:"10"`

	ServerPort        int    `envconfig:"SERVER_PORT" default:"8081"`
	MigrationPath     string `envconfig:"MIGRATION_PATH" default:"file://migrations"`
	EnableIndexWorker bool   `envconfig:"ENABLE_INDEX_WORKER" default:"true"`

	// Resilience
	BootstrapRetryAttempts     int `envconfig:"BOOTSTRAP_RETRY_ATTEMPTS" default:"10"`
	BootstrapRetryDelaySeconds int `envconfig:"BOOTSTRAP_RETRY_DELAY_SECONDS" default:"2"`
}

func Load() (*Config, error) {
	// Env vars may come from the shell instead, so .env load errors are ignored.
	_ = godotenv.Load(".env")

	cwd, _ := os.Getwd()
	rootEnv := filepath.Join(cwd, "../../.env")
	_ = godotenv.Load(rootEnv)

	var cfg Config
	err := envconfig.Process("", &cfg)
	if err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.DBHost == "" {
		return fmt.Errorf("%w: DB_HOST", ErrMissingRequired)
	}
	if c.DBUser == "" {
		return fmt.Errorf("%w: DB_USER", ErrMissingRequired)
	}
	if c.DBName == "" {
		return fmt.Errorf("%w: DB_NAME", ErrMissingRequired)
	}
	if c.EmbeddingModel == "" {
		return fmt.Errorf("%w: EMBEDDING_MODEL", ErrMissingRequired)
	}
	if c.EmbeddingDim <= 0 {
		return fmt.Errorf("%w: EMBEDDING_DIM must be positive", ErrMissingRequired)
	}
	if c.EmbedMaxRetries <= 0 {
		return fmt.Errorf("%w: EMBED_MAX_RETRIES must be positive", ErrMissingRequired)
	}
	if c.MaxUploadSizeMB <= 0 {
		return fmt.Errorf("%w: MAX_UPLOAD_SIZE_MB must be positive", ErrMissingRequired)
	}
	return nil
}
