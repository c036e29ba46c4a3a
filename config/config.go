// Package config provides configuration for the AVS node.
package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds the node configuration.
type Config struct {
	// Server settings
	HTTPPort int

	// Database
	DatabaseURL string

	// Ledger settings
	LedgerRPCURL    string
	LedgerTxTimeout time.Duration
	EventPollEvery  time.Duration

	// Collaborators
	OracleURL  string
	StorageURL string
	StorageKey string

	// Validator identity
	ValidatorPrivateKey string

	// Timeouts
	AgentCallbackTimeout time.Duration

	// Logging
	LogLevel string
}

// Load loads configuration from environment variables.
func Load() *Config {
	cfg := &Config{
		HTTPPort:             getEnvInt("HTTP_PORT", 4003),
		DatabaseURL:          getEnv("DATABASE_URL", "file:wwan-avs.db?cache=shared&mode=rwc"),
		LedgerRPCURL:         getEnv("LEDGER_RPC_URL", "http://localhost:8545"),
		LedgerTxTimeout:      time.Duration(getEnvInt("LEDGER_TX_TIMEOUT_MS", 60000)) * time.Millisecond,
		EventPollEvery:       time.Duration(getEnvInt("EVENT_POLL_MS", 5000)) * time.Millisecond,
		OracleURL:            getEnv("ORACLE_URL", "https://api.binance.com"),
		StorageURL:           getEnv("STORAGE_URL", "http://localhost:5001"),
		StorageKey:           getEnv("STORAGE_API_KEY", ""),
		ValidatorPrivateKey:  getEnv("VALIDATOR_PRIVATE_KEY", ""),
		AgentCallbackTimeout: time.Duration(getEnvInt("AGENT_CALLBACK_TIMEOUT_MS", 30000)) * time.Millisecond,
		LogLevel:             getEnv("LOG_LEVEL", "info"),
	}
	return cfg
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if intVal, err := strconv.Atoi(val); err == nil {
			return intVal
		}
	}
	return defaultVal
}
