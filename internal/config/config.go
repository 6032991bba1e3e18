package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

type Config struct {
	PostgresURL  string `yaml:"postgres_url"`
	RedisHost    string `yaml:"redis_host"`
	RedisPort    int    `yaml:"redis_port"`
	IngestionURL string `yaml:"ingestion_url"`

	// Exchange CLOB endpoint
	ClobAPIBase string `yaml:"clob_api_base"`
	ChainID     int    `yaml:"chain_id"`

	// HTTP boundary
	HTTPAddr string `yaml:"http_addr"`
	// Internal API key required on mutating endpoints
	APIKey string `yaml:"api_key"`

	// Secret backend for wallet resolution: env or vault
	VaultAddr  string `yaml:"vault_addr"`
	VaultToken string `yaml:"vault_token"`

	// Static global kill switch override; the persisted toggle is checked too
	GlobalKillSwitch bool `yaml:"global_kill_switch"`

	// Loop intervals in seconds
	EvalInterval      int `yaml:"eval_interval"`
	ReconcileInterval int `yaml:"reconcile_interval"`

	// Evaluation bounds
	MarketsPerCycle    int `yaml:"markets_per_cycle"`
	ActiveMarketsLimit int `yaml:"active_markets_limit"`

	LogLevel string `yaml:"log_level"`
}

// Load builds the config from defaults, an optional YAML file pointed at by
// CONFIG_FILE, and finally environment variable overrides.
func Load() (*Config, error) {
	cfg := &Config{
		PostgresURL:        buildPostgresURL(),
		RedisHost:          "redis",
		RedisPort:          6379,
		IngestionURL:       "http://ingestion:8001",
		ClobAPIBase:        "https://clob.polymarket.com",
		ChainID:            137,
		HTTPAddr:           ":8003",
		APIKey:             "changeme_internal_key",
		EvalInterval:       60,
		ReconcileInterval:  300,
		MarketsPerCycle:    20,
		ActiveMarketsLimit: 50,
		LogLevel:           "info",
	}

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	cfg.PostgresURL = getEnv("POSTGRES_URL", cfg.PostgresURL)
	cfg.RedisHost = getEnv("REDIS_HOST", cfg.RedisHost)
	cfg.RedisPort = getEnvInt("REDIS_PORT", cfg.RedisPort)
	cfg.IngestionURL = getEnv("INGESTION_URL", cfg.IngestionURL)
	cfg.ClobAPIBase = getEnv("CLOB_API_BASE", cfg.ClobAPIBase)
	cfg.ChainID = getEnvInt("CHAIN_ID", cfg.ChainID)
	cfg.HTTPAddr = getEnv("HTTP_ADDR", cfg.HTTPAddr)
	cfg.APIKey = getEnv("EXECUTION_API_KEY", cfg.APIKey)
	cfg.VaultAddr = getEnv("VAULT_ADDR", cfg.VaultAddr)
	cfg.VaultToken = getEnv("VAULT_TOKEN", cfg.VaultToken)
	cfg.GlobalKillSwitch = getEnvBool("GLOBAL_KILL_SWITCH", cfg.GlobalKillSwitch)
	cfg.EvalInterval = getEnvInt("STRATEGY_EVAL_INTERVAL", cfg.EvalInterval)
	cfg.ReconcileInterval = getEnvInt("RECONCILE_INTERVAL", cfg.ReconcileInterval)
	cfg.MarketsPerCycle = getEnvInt("MARKETS_PER_CYCLE", cfg.MarketsPerCycle)
	cfg.ActiveMarketsLimit = getEnvInt("ACTIVE_MARKETS_LIMIT", cfg.ActiveMarketsLimit)
	cfg.LogLevel = getEnv("LOG_LEVEL", cfg.LogLevel)

	return cfg, nil
}

func buildPostgresURL() string {
	host := getEnv("POSTGRES_HOST", "postgres")
	db := getEnv("POSTGRES_DB", "trading_engine")
	user := getEnv("POSTGRES_USER", "trading")
	pass := getEnv("POSTGRES_PASSWORD", "changeme123")

	return fmt.Sprintf("postgres://%s:%s@%s:5432/%s?sslmode=disable", user, pass, host, db)
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return fallback
}
