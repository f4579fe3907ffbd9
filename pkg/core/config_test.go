package core_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/recallabs/recallmem-go/pkg/core"
)

// chdir moves the working directory for the duration of one test so a
// developer's own .env file is never picked up.
func chdir(t *testing.T, dir string) {
	t.Helper()
	old, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(old) })
}

func TestDefaultConfig(t *testing.T) {
	cfg := core.DefaultConfig()
	assert.Equal(t, core.ProviderSQLite, cfg.Database.Provider)
	assert.Equal(t, "./recallmem.db", cfg.Database.SQLitePath)
	assert.NoError(t, cfg.Validate())
}

func TestLoadConfigFromEnv(t *testing.T) {
	// Run from an empty directory so a developer's .env is not picked up.
	chdir(t, t.TempDir())

	t.Setenv("DATABASE_PROVIDER", "sqlite")
	t.Setenv("SQLITE_PATH", "/tmp/custom.db")
	t.Setenv("LLM_API_KEY", "sk-test")
	t.Setenv("LLM_MODEL", "qwen-plus")

	cfg, err := core.LoadConfigFromEnv()
	require.NoError(t, err)
	assert.Equal(t, core.ProviderSQLite, cfg.Database.Provider)
	assert.Equal(t, "/tmp/custom.db", cfg.Database.SQLitePath)
	assert.Equal(t, "sk-test", cfg.LLM.APIKey)
	assert.Equal(t, "qwen-plus", cfg.LLM.Model)
}

func TestLoadConfigFromEnvPostgres(t *testing.T) {
	chdir(t, t.TempDir())

	t.Setenv("DATABASE_PROVIDER", "postgres")
	t.Setenv("POSTGRES_USER", "recallmem")
	t.Setenv("POSTGRES_PASSWORD", "secret")
	t.Setenv("POSTGRES_DBNAME", "memories")
	t.Setenv("POSTGRES_PORT", "15432")

	cfg, err := core.LoadConfigFromEnv()
	require.NoError(t, err)
	assert.Equal(t, core.ProviderPostgres, cfg.Database.Provider)
	assert.Equal(t, "localhost", cfg.Database.Host)
	assert.Equal(t, 15432, cfg.Database.Port)
	assert.Equal(t, "recallmem", cfg.Database.User)
	assert.Equal(t, "disable", cfg.Database.SSLMode)
}

func TestLoadConfigFromEnvUnknownProvider(t *testing.T) {
	chdir(t, t.TempDir())

	t.Setenv("DATABASE_PROVIDER", "oracle")

	_, err := core.LoadConfigFromEnv()
	assert.True(t, errors.Is(err, core.ErrInvalidConfig))
}

func TestLoadConfigFromEnvReadsDotEnv(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(envFile,
		[]byte("SQLITE_PATH=/tmp/from_dotenv.db\n"), 0o644))
	chdir(t, dir)

	cfg, err := core.LoadConfigFromEnv()
	require.NoError(t, err)
	assert.Equal(t, "/tmp/from_dotenv.db", cfg.Database.SQLitePath)
}

func TestLoadConfigFromJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"database": {"provider": "sqlite", "sqlite_path": "/tmp/json.db"},
		"llm": {"api_key": "sk-json", "model": "deepseek-chat"}
	}`), 0o644))

	cfg, err := core.LoadConfigFromJSON(path)
	require.NoError(t, err)
	assert.Equal(t, "/tmp/json.db", cfg.Database.SQLitePath)
	assert.Equal(t, "deepseek-chat", cfg.LLM.Model)
}

func TestConfigValidate(t *testing.T) {
	cfg := &core.Config{Database: core.DatabaseConfig{Provider: core.ProviderMySQL}}
	err := cfg.Validate()
	assert.True(t, errors.Is(err, core.ErrInvalidConfig))

	cfg.Database.User = "root"
	cfg.Database.DBName = "memories"
	assert.NoError(t, cfg.Validate())
}
