package config

import (
	"fmt"
	"os"
	"strconv"
	"sync"
	"time"
)

// Config holds all application configuration
type Config struct {
	// Database configuration
	DatabaseURL string
	DBMaxConns  int32

	// HTTP server
	HTTPAddr string

	// Race schedule timezone (post times are wall-clock in this zone)
	RaceTimezone string

	// Economy settings
	StartingBalance  int64
	DailyBonusAmount int64

	// Environment: "development", "production" or "test"
	Environment string
}

var (
	instance *Config
	once     sync.Once
)

// Get returns the global configuration instance
func Get() *Config {
	once.Do(func() {
		var err error
		instance, err = load()
		if err != nil {
			panic(fmt.Sprintf("failed to load config: %v", err))
		}
	})
	return instance
}

// Location resolves the configured race timezone.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.RaceTimezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// load loads configuration from environment variables
func load() (*Config, error) {
	config := &Config{
		DatabaseURL: os.Getenv("DATABASE_URL"),

		// Defaults
		DBMaxConns:       8,
		HTTPAddr:         ":8080",
		RaceTimezone:     "Asia/Tokyo",
		StartingBalance:  10000,
		DailyBonusAmount: 500,

		Environment: os.Getenv("ENVIRONMENT"),
	}

	if conns := os.Getenv("DB_MAX_CONNS"); conns != "" {
		if parsed, err := strconv.ParseInt(conns, 10, 32); err == nil && parsed > 0 {
			config.DBMaxConns = int32(parsed)
		}
	}
	if addr := os.Getenv("HTTP_ADDR"); addr != "" {
		config.HTTPAddr = addr
	}
	if tz := os.Getenv("RACE_TIMEZONE"); tz != "" {
		config.RaceTimezone = tz
	}
	if balance := os.Getenv("STARTING_BALANCE"); balance != "" {
		if parsed, err := strconv.ParseInt(balance, 10, 64); err == nil {
			config.StartingBalance = parsed
		}
	}
	if bonus := os.Getenv("DAILY_BONUS_AMOUNT"); bonus != "" {
		if parsed, err := strconv.ParseInt(bonus, 10, 64); err == nil {
			config.DailyBonusAmount = parsed
		}
	}

	if config.Environment == "" {
		config.Environment = "development"
	}

	if config.Environment != "test" {
		if config.DatabaseURL == "" {
			return nil, fmt.Errorf("DATABASE_URL is required")
		}
	}

	return config, nil
}
