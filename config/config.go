package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	AppPort        string
	DatabaseURL    string // empty runs without durable storage
	MatchWindow    time.Duration
	LatestWindow   time.Duration
	ReconnectDelay time.Duration
	PurgeInterval  time.Duration
	Retention      time.Duration
	MinProfitPct   float64
	MaxResults     int
}

func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("no .env file found, reading from environment directly")
	}

	return &Config{
		AppPort:        getEnv("APP_PORT", "3000"),
		DatabaseURL:    getEnv("DATABASE_URL", ""),
		MatchWindow:    getDuration("MATCH_WINDOW", 2*time.Minute),
		LatestWindow:   getDuration("LATEST_WINDOW", 30*time.Second),
		ReconnectDelay: getDuration("RECONNECT_DELAY", 5*time.Second),
		PurgeInterval:  getDuration("PURGE_INTERVAL", time.Hour),
		Retention:      getDuration("RETENTION", 24*time.Hour),
		MinProfitPct:   getFloat("MIN_PROFIT_PCT", 0.1),
		MaxResults:     getInt("MAX_OPPORTUNITIES", 50),
	}
}

func getEnv(key string, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	if value, exists := os.LookupEnv(key); exists {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
		log.Printf("invalid duration for %s, using default %s", key, fallback)
	}
	return fallback
}

func getFloat(key string, fallback float64) float64 {
	if value, exists := os.LookupEnv(key); exists {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
		log.Printf("invalid number for %s, using default %v", key, fallback)
	}
	return fallback
}

func getInt(key string, fallback int) int {
	if value, exists := os.LookupEnv(key); exists {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
		log.Printf("invalid number for %s, using default %d", key, fallback)
	}
	return fallback
}
