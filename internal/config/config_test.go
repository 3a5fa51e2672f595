package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.DBHost)
	assert.Equal(t, 5432, cfg.DBPort)
	assert.Equal(t, "text-embedding-004", cfg.EmbeddingModel)
	assert.Equal(t, 768, cfg.EmbeddingDim)
	assert.Equal(t, 32000, cfg.EmbedMaxChars)
	assert.Equal(t, 3, cfg.EmbedMaxRetries)
	assert.Equal(t, 1000, cfg.EmbedBaseDelayMS)
	assert.Equal(t, int64(10), cfg.MaxUploadSizeMB)
	assert.True(t, cfg.EnableIndexWorker)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("DB_HOST", "db.internal")
	t.Setenv("EMBEDDING_MODEL", "text-embedding-005")
	t.Setenv("EMBEDDING_DIM", "1536")
	t.Setenv("EMBED_MAX_RETRIES", "5")
	t.Setenv("ENABLE_INDEX_WORKER", "false")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "db.internal", cfg.DBHost)
	assert.Equal(t, "text-embedding-005", cfg.EmbeddingModel)
	assert.Equal(t, 1536, cfg.EmbeddingDim)
	assert.Equal(t, 5, cfg.EmbedMaxRetries)
	assert.False(t, cfg.EnableIndexWorker)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			DBHost:          "postgres",
			DBUser:          "pdc",
			DBName:          "pdc",
			EmbeddingModel:  "text-embedding-004",
			EmbeddingDim:    768,
			EmbedMaxRetries: 3,
			MaxUploadSizeMB: 10,
		}
	}

	t.Run("Valid", func(t *testing.T) {
		assert.NoError(t, valid().Validate())
	})

	t.Run("MissingDBHost", func(t *testing.T) {
		cfg := valid()
		cfg.DBHost = ""
		assert.ErrorIs(t, cfg.Validate(), ErrMissingRequired)
	})

	t.Run("MissingEmbeddingModel", func(t *testing.T) {
		cfg := valid()
		cfg.EmbeddingModel = ""
		assert.ErrorIs(t, cfg.Validate(), ErrMissingRequired)
	})

	t.Run("NonPositiveDimensions", func(t *testing.T) {
		cfg := valid()
		cfg.EmbeddingDim = 0
		assert.ErrorIs(t, cfg.Validate(), ErrMissingRequired)
	})

	t.Run("NonPositiveRetries", func(t *testing.T) {
		cfg := valid()
		cfg.EmbedMaxRetries = 0
		assert.ErrorIs(t, cfg.Validate(), ErrMissingRequired)
	})

	t.Run("NonPositiveUploadLimit", func(t *testing.T) {
		cfg := valid()
		cfg.MaxUploadSizeMB = -1
		assert.ErrorIs(t, cfg.Validate(), ErrMissingRequired)
	})
}

func TestLoad_InvalidValueFails(t *testing.T) {
	t.Setenv("EMBEDDING_DIM", "0")

	_, err := Load()
	assert.ErrorIs(t, err, ErrMissingRequired)
}
