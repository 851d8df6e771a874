package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	App        AppConfig
	Server     ServerConfig
	Database   DatabaseConfig
	Redis      RedisConfig
	Weaviate   WeaviateConfig
	JWT        JWTConfig
	Experiment ExperimentConfig
	Ranking    RankingConfig
	Tracking   TrackingConfig
}

type AppConfig struct {
	Name        string
	Version     string
	Environment string
}

type ServerConfig struct {
	Port string
}

type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	Name     string
	SSLMode  string
}

type RedisConfig struct {
	RedisHost     string
	RedisPort     string
	RedisPassword string
	RedisDB       int
}

type WeaviateConfig struct {
	Host      string
	Scheme    string
	ClassName string
}

type JWTConfig struct {
	SecretKey string
}

// ExperimentConfig is the A/B experiment surface. Epoch is an opaque label;
// changing it re-buckets every user, which is the only sanctioned way to
// reset assignments.
type ExperimentConfig struct {
	ExperimentID  string
	Epoch         string
	SplitRatio    float64
	Enabled       bool
	MinSampleSize int
}

// RankingConfig holds the enhanced-variant blend weights. They must sum to 1.
type RankingConfig struct {
	WVector   float64
	WColor    float64
	WCategory float64
	WText     float64
}

type TrackingConfig struct {
	BufferCapacity int
	QueryTimeout   time.Duration
	RetentionDays  int
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		App: AppConfig{
			Name:        getEnv("APP_NAME", "omnisearch"),
			Version:     getEnv("APP_VERSION", "0.1.0"),
			Environment: getEnv("APP_ENV", "development"),
		},
		Server: ServerConfig{
			Port: getEnv("PORT", "8080"),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", ""),
			Name:     getEnv("DB_NAME", "omnisearch"),
			SSLMode:  getEnv("DB_SSL_MODE", "disable"),
		},
		Redis: RedisConfig{
			RedisHost:     getEnv("REDIS_HOST", "localhost"),
			RedisPort:     getEnv("REDIS_PORT", "6379"),
			RedisPassword: getEnv("REDIS_PASSWORD", ""),
			RedisDB:       getEnvInt("REDIS_DB", 0),
		},
		Weaviate: WeaviateConfig{
			Host:      getEnv("WEAVIATE_HOST", "localhost:8081"),
			Scheme:    getEnv("WEAVIATE_SCHEME", "http"),
			ClassName: getEnv("WEAVIATE_CLASS", "Product"),
		},
		JWT: JWTConfig{
			SecretKey: getEnv("JWT_SECRET", ""),
		},
		Experiment: ExperimentConfig{
			ExperimentID:  getEnv("EXPERIMENT_ID", "search_ranking"),
			Epoch:         getEnv("EXPERIMENT_EPOCH", "1"),
			SplitRatio:    getEnvFloat("EXPERIMENT_SPLIT_RATIO", 0.5),
			Enabled:       getEnvBool("EXPERIMENT_ENABLED", true),
			MinSampleSize: getEnvInt("EXPERIMENT_MIN_SAMPLE_SIZE", 30),
		},
		Ranking: RankingConfig{
			WVector:   getEnvFloat("RANKING_W_VECTOR", 0.5),
			WColor:    getEnvFloat("RANKING_W_COLOR", 0.2),
			WCategory: getEnvFloat("RANKING_W_CATEGORY", 0.2),
			WText:     getEnvFloat("RANKING_W_TEXT", 0.1),
		},
		Tracking: TrackingConfig{
			BufferCapacity: getEnvInt("TRACKING_BUFFER_CAPACITY", 1000),
			QueryTimeout:   time.Duration(getEnvInt("TRACKING_QUERY_TIMEOUT_SECONDS", 10)) * time.Second,
			RetentionDays:  getEnvInt("TRACKING_RETENTION_DAYS", 365),
		},
	}

	if cfg.JWT.SecretKey == "" {
		return nil, errors.New("missing jwt secret")
	}

	if cfg.Experiment.SplitRatio < 0 || cfg.Experiment.SplitRatio > 1 {
		return nil, errors.New("experiment split ratio must be within [0,1]")
	}

	if cfg.Experiment.MinSampleSize < 1 {
		return nil, errors.New("experiment min sample size must be positive")
	}

	sum := cfg.Ranking.WVector + cfg.Ranking.WColor + cfg.Ranking.WCategory + cfg.Ranking.WText
	if math.Abs(sum-1.0) > 1e-9 {
		return nil, fmt.Errorf("ranking weights must sum to 1.0, got %v", sum)
	}

	if cfg.Tracking.BufferCapacity < 1 {
		return nil, errors.New("tracking buffer capacity must be positive")
	}

	return cfg, nil
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}

	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			return n
		}
	}

	return defaultVal
}

func getEnvFloat(key string, defaultVal float64) float64 {
	if val := os.Getenv(key); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return f
		}
	}

	return defaultVal
}

func getEnvBool(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}

	return defaultVal
}
