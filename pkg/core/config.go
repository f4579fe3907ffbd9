package core

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"

	"github.com/recallabs/recallmem-go/pkg/store"
	"github.com/recallabs/recallmem-go/pkg/store/mysql"
	"github.com/recallabs/recallmem-go/pkg/store/postgres"
	"github.com/recallabs/recallmem-go/pkg/store/sqlite"
)

// Supported database providers.
const (
	ProviderSQLite   = "sqlite"
	ProviderPostgres = "postgres"
	ProviderMySQL    = "mysql"
)

// DatabaseConfig selects and configures a storage backend.
type DatabaseConfig struct {
	Provider string `json:"provider"`

	// SQLite.
	SQLitePath string `json:"sqlite_path,omitempty"`

	// PostgreSQL and MySQL.
	Host     string `json:"host,omitempty"`
	Port     int    `json:"port,omitempty"`
	User     string `json:"user,omitempty"`
	Password string `json:"password,omitempty"`
	DBName   string `json:"dbname,omitempty"`
	SSLMode  string `json:"sslmode,omitempty"`
}

// LLMConfig configures the language model provider.
type LLMConfig struct {
	APIKey  string `json:"api_key,omitempty"`
	BaseURL string `json:"base_url,omitempty"`
	Model   string `json:"model,omitempty"`
}

// Config is the full engine configuration.
type Config struct {
	Database DatabaseConfig `json:"database"`
	LLM      LLMConfig      `json:"llm"`
}

// DefaultConfig returns a configuration backed by a local SQLite file.
func DefaultConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			Provider:   ProviderSQLite,
			SQLitePath: "./recallmem.db",
		},
	}
}

// FindEnvFile looks for a .env file in the current directory and its
// parents. It returns an empty string when none is found.
func FindEnvFile() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}
	for {
		candidate := filepath.Join(dir, ".env")
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

// LoadConfigFromEnv builds a configuration from environment variables,
// loading a .env file first when one is found. Missing variables fall back
// to the SQLite defaults.
func LoadConfigFromEnv() (*Config, error) {
	if envFile := FindEnvFile(); envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			return nil, NewMemoryError("LoadConfigFromEnv",
				fmt.Errorf("%w: %v", ErrInvalidConfig, err))
		}
	}

	cfg := DefaultConfig()

	if provider := os.Getenv("DATABASE_PROVIDER"); provider != "" {
		cfg.Database.Provider = provider
	}

	switch cfg.Database.Provider {
	case ProviderSQLite:
		if path := os.Getenv("SQLITE_PATH"); path != "" {
			cfg.Database.SQLitePath = path
		}
	case ProviderPostgres:
		cfg.Database.Host = envOr("POSTGRES_HOST", "localhost")
		cfg.Database.Port = envIntOr("POSTGRES_PORT", 5432)
		cfg.Database.User = os.Getenv("POSTGRES_USER")
		cfg.Database.Password = os.Getenv("POSTGRES_PASSWORD")
		cfg.Database.DBName = os.Getenv("POSTGRES_DBNAME")
		cfg.Database.SSLMode = envOr("POSTGRES_SSLMODE", "disable")
	case ProviderMySQL:
		cfg.Database.Host = envOr("MYSQL_HOST", "localhost")
		cfg.Database.Port = envIntOr("MYSQL_PORT", 3306)
		cfg.Database.User = os.Getenv("MYSQL_USER")
		cfg.Database.Password = os.Getenv("MYSQL_PASSWORD")
		cfg.Database.DBName = os.Getenv("MYSQL_DBNAME")
	}

	cfg.LLM.APIKey = os.Getenv("LLM_API_KEY")
	cfg.LLM.BaseURL = os.Getenv("LLM_BASE_URL")
	cfg.LLM.Model = os.Getenv("LLM_MODEL")

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadConfigFromJSON reads a configuration file.
func LoadConfigFromJSON(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, NewMemoryError("LoadConfigFromJSON",
			fmt.Errorf("%w: %v", ErrInvalidConfig, err))
	}

	cfg := DefaultConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, NewMemoryError("LoadConfigFromJSON",
			fmt.Errorf("%w: %v", ErrInvalidConfig, err))
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that the configuration can open a store.
func (c *Config) Validate() error {
	switch c.Database.Provider {
	case ProviderSQLite:
		if c.Database.SQLitePath == "" {
			return NewMemoryError("Validate",
				fmt.Errorf("%w: sqlite path is required", ErrInvalidConfig))
		}
	case ProviderPostgres, ProviderMySQL:
		if c.Database.User == "" || c.Database.DBName == "" {
			return NewMemoryError("Validate",
				fmt.Errorf("%w: %s user and dbname are required",
					ErrInvalidConfig, c.Database.Provider))
		}
	default:
		return NewMemoryError("Validate",
			fmt.Errorf("%w: unknown database provider %q",
				ErrInvalidConfig, c.Database.Provider))
	}
	return nil
}

// OpenStore opens the storage backend selected by the configuration.
func OpenStore(cfg *Config) (store.MemoryStore, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	switch cfg.Database.Provider {
	case ProviderSQLite:
		return sqlite.NewStore(&sqlite.Config{DBPath: cfg.Database.SQLitePath})
	case ProviderPostgres:
		return postgres.NewStore(&postgres.Config{
			Host:     cfg.Database.Host,
			Port:     cfg.Database.Port,
			User:     cfg.Database.User,
			Password: cfg.Database.Password,
			DBName:   cfg.Database.DBName,
			SSLMode:  cfg.Database.SSLMode,
		})
	case ProviderMySQL:
		return mysql.NewStore(&mysql.Config{
			Host:     cfg.Database.Host,
			Port:     cfg.Database.Port,
			User:     cfg.Database.User,
			Password: cfg.Database.Password,
			DBName:   cfg.Database.DBName,
		})
	}
	return nil, NewMemoryError("OpenStore",
		fmt.Errorf("%w: unknown database provider %q",
			ErrInvalidConfig, cfg.Database.Provider))
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envIntOr(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}
