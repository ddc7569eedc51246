package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/nkurbanov/campus_registry/internal/models"
)

type Config struct {
	SERVER_PORT int

	DB_HOST     string
	DB_PORT     string
	DB_USER     string
	DB_PASSWORD string
	DB_NAME     string

	JWT_SECRET    string
	JWT_ALGORITHM string
	TOKEN_TTL     time.Duration

	COOKIE_SECURE   bool
	COOKIE_HTTPONLY bool
	CSRF_PROTECT    bool

	KAFKA_ADDRESS string
	ES_URL        string
	ES_USER       string
	ES_PASSWORD   string

	LOG_LEVEL string
}

func LoadConfig() (*Config, error) {
	if err := godotenv.Load(".env"); err != nil {
		log.Printf("Notice: .env file not found: %v. Using system environment variables", err)
	}

	config := &Config{
		SERVER_PORT: envIntDefault("SERVER_PORT", 8080),

		DB_HOST:     os.Getenv("DB_HOST"),
		DB_PORT:     os.Getenv("DB_PORT"),
		DB_USER:     os.Getenv("DB_USER"),
		DB_PASSWORD: os.Getenv("DB_PASSWORD"),
		DB_NAME:     os.Getenv("DB_NAME"),

		JWT_SECRET:    os.Getenv("JWT_SECRET"),
		JWT_ALGORITHM: envDefault("JWT_ALGORITHM", "HS256"),
		TOKEN_TTL:     envDurationDefault("TOKEN_TTL", 2*time.Hour),

		COOKIE_SECURE:   envBoolDefault("COOKIE_SECURE", false),
		COOKIE_HTTPONLY: envBoolDefault("COOKIE_HTTPONLY", true),
		CSRF_PROTECT:    envBoolDefault("CSRF_PROTECT", false),

		KAFKA_ADDRESS: os.Getenv("KAFKA_ADDRESS"),
		ES_URL:        os.Getenv("ES_URL"),
		ES_USER:       os.Getenv("ES_USER"),
		ES_PASSWORD:   os.Getenv("ES_PASSWORD"),

		LOG_LEVEL: envDefault("LOG_LEVEL", "info"),
	}

	if config.JWT_SECRET == "" {
		return nil, fmt.Errorf("missing required env JWT_SECRET")
	}
	// only symmetric HS256 is supported, refuse to start with anything else
	if config.JWT_ALGORITHM != "HS256" {
		return nil, fmt.Errorf("unsupported JWT_ALGORITHM %q", config.JWT_ALGORITHM)
	}

	return config, nil
}

func InitDB(cfg *Config) (*gorm.DB, error) {
	dsn := fmt.Sprintf(
		"postgres://%s:%s@%s:%s/%s?sslmode=disable",
		cfg.DB_USER, cfg.DB_PASSWORD, cfg.DB_HOST, cfg.DB_PORT, cfg.DB_NAME,
	)
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{TranslateError: true})
	if err != nil {
		return nil, fmt.Errorf("cannot connect to db: %w", err)
	}
	if err := db.AutoMigrate(
		&models.User{},
		&models.RevokedToken{},
		&models.Student{},
		&models.Course{},
		&models.Enrollment{},
	); err != nil {
		return nil, fmt.Errorf("cannot run migrations: %w", err)
	}
	return db, nil
}

func envDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envIntDefault(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Printf("Notice: invalid %s=%q: %v. Using default %d", key, v, err, def)
		return def
	}
	return n
}

func envBoolDefault(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		log.Printf("Notice: invalid %s=%q: %v. Using default %t", key, v, err, def)
		return def
	}
	return b
}

func envDurationDefault(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		log.Printf("Notice: invalid %s=%q: %v. Using default %s", key, v, err, def)
		return def
	}
	return d
}
