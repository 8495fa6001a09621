package commands

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/recordkit/recordkit/adapter"
	"github.com/recordkit/recordkit/dialect"
	"github.com/spf13/viper"
)

// Config holds the connection settings the CLI commands run against.
type Config struct {
	Provider    string
	DatabaseURL string
}

// LoadConfig reads settings from a .recordkit.yaml file, RECORDKIT_*
// environment variables and a local .env file, in rising priority.
func LoadConfig() (*Config, error) {
	viper.SetConfigName(".recordkit")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")

	viper.SetEnvPrefix("RECORDKIT")
	viper.AutomaticEnv()

	viper.SetDefault("provider", "postgres")

	// Missing config file is fine; env vars cover everything.
	_ = viper.ReadInConfig()

	if _, err := os.Stat(".env"); err == nil {
		_ = godotenv.Load()
	}

	cfg := &Config{
		Provider:    viper.GetString("provider"),
		DatabaseURL: viper.GetString("database_url"),
	}
	if cfg.DatabaseURL == "" {
		cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	}
	return cfg, nil
}

// openAdapter connects to the configured database.
func openAdapter(cfg *Config) (*adapter.DB, error) {
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("no database URL configured (set DATABASE_URL or database_url in .recordkit.yaml)")
	}
	var d dialect.Dialect
	switch cfg.Provider {
	case "postgres", "postgresql":
		d = dialect.Postgres
	case "mysql":
		d = dialect.MySQL
	case "sqlite", "sqlite3":
		d = dialect.SQLite
	default:
		return nil, fmt.Errorf("unknown provider %q (postgres, mysql and sqlite are supported)", cfg.Provider)
	}
	return adapter.Open(d, cfg.DatabaseURL)
}
