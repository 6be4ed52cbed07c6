// Package config loads runtime configuration from the environment, with
// fallbacks suitable for local development (see .env via joho/godotenv in
// cmd/datasetd).
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config is the top-level runtime configuration for the dataset engine.
type Config struct {
	Server  ServerConfig
	Database DatabaseConfig
	Dataset  DatasetConfig
	Bedrock  BedrockConfig
}

// ServerConfig configures the ambient HTTP surface (cmd/datasetd).
type ServerConfig struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// DatabaseConfig configures the Postgres connection backing internal/engine.
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Name     string
	SSLMode  string
	MaxConns int32
	MinConns int32
}

// DSN returns the postgres:// connection string pgxpool.New expects.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.Name, d.SSLMode)
}

// DatasetConfig configures where dataset manifests and signal outputs live.
type DatasetConfig struct {
	// RootDir is the filesystem directory under which every dataset's
	// manifest.json and *.signal_manifest.json files are discovered.
	RootDir string
	// TooManyDistinctThreshold bounds distinct-value cardinality for
	// select_groups when no explicit bins are given.
	TooManyDistinctThreshold int
}

// BedrockConfig configures the AWS Bedrock-backed text embedding signal.
type BedrockConfig struct {
	Region  string
	ModelID string
}

// Load reads configuration from the environment, applying development
// defaults for anything unset.
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Host:         getEnv("SERVER_HOST", "0.0.0.0"),
			Port:         getEnvInt("SERVER_PORT", 8080),
			ReadTimeout:  time.Duration(getEnvInt("SERVER_READ_TIMEOUT_SECS", 30)) * time.Second,
			WriteTimeout: time.Duration(getEnvInt("SERVER_WRITE_TIMEOUT_SECS", 60)) * time.Second,
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnvInt("DB_PORT", 5432),
			User:     getEnv("DB_USER", "dataset"),
			Password: getEnv("DB_PASSWORD", "dataset"),
			Name:     getEnv("DB_NAME", "dataset"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
			MaxConns: int32(getEnvInt("DB_MAX_CONNS", 25)),
			MinConns: int32(getEnvInt("DB_MIN_CONNS", 5)),
		},
		Dataset: DatasetConfig{
			RootDir:                  getEnv("DATASET_ROOT_DIR", "./data"),
			TooManyDistinctThreshold: getEnvInt("DATASET_TOO_MANY_DISTINCT_THRESHOLD", 1000),
		},
		Bedrock: BedrockConfig{
			Region:  getEnv("BEDROCK_REGION", "us-east-1"),
			ModelID: getEnv("BEDROCK_MODEL_ID", "cohere.embed-english-v4"),
		},
	}
	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}
