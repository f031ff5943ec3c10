package config

import (
	"fmt"
	"os"
)

type Config struct {
	Env          string
	ListenAddr   string
	DatabaseURL  string
	RedisAddr    string
	RedisPass    string
	RedisDB      int
	ScoreWorkers int
	LogLevel     string
	LogFormat    string
	TablesPath   string
	RegistryPath string
}

// ErrNoDatabase is returned alongside a usable Config when DATABASE_URL is
// unset. Scoring still works; persistence and the report API do not.
var ErrNoDatabase = fmt.Errorf("DATABASE_URL not set")

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func Load() (Config, error) {
	cfg := Config{
		Env:          getenv("APP_ENV", "development"),
		ListenAddr:   getenv("LISTEN_ADDR", ":8080"),
		DatabaseURL:  os.Getenv("DATABASE_URL"),
		RedisAddr:    os.Getenv("REDIS_ADDR"),
		RedisPass:    os.Getenv("REDIS_PASSWORD"),
		RedisDB:      getenvInt("REDIS_DB", 0),
		ScoreWorkers: getenvInt("SCORE_WORKERS", 4),
		LogLevel:     getenv("LOG_LEVEL", "info"),
		LogFormat:    getenv("LOG_FORMAT", "json"),
		TablesPath:   os.Getenv("TABLES_PATH"),
		RegistryPath: os.Getenv("REGISTRY_PATH"),
	}
	if cfg.DatabaseURL == "" {
		return cfg, ErrNoDatabase
	}
	return cfg, nil
}

func getenvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		var out int
		_, err := fmt.Sscanf(v, "%d", &out)
		if err == nil {
			return out
		}
	}
	return def
}
