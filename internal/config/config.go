package config

import (
	"os"
	"strconv"
	"time"
)

// defaultEpoch is the instant daily challenge 0 opened.
const defaultEpoch = "2026-01-01T00:00:00Z"

type Config struct {
	Port           string
	DatabaseURL    string
	CountdownSecs  int
	RoomTTLMinutes int
	DailyEpoch     time.Time
	DailyRotation  time.Duration
	DailyGrace     time.Duration
}

func Load() Config {
	cfg := Config{
		Port:           getEnv("PORT", "8080"),
		DatabaseURL:    os.Getenv("DATABASE_URL"),
		CountdownSecs:  getEnvInt("COUNTDOWN_SECS", 10),
		RoomTTLMinutes: getEnvInt("RACE_ROOM_TTL_MINUTES", 120),
		DailyEpoch:     getEnvTime("DAILY_EPOCH", defaultEpoch),
		DailyRotation:  time.Duration(getEnvInt("DAILY_ROTATION_HOURS", 24)) * time.Hour,
		DailyGrace:     time.Duration(getEnvInt("DAILY_GRACE_MINUTES", 60)) * time.Minute,
	}
	return cfg
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

func getEnvTime(key, fallback string) time.Time {
	s := getEnv(key, fallback)
	if ts, err := time.Parse(time.RFC3339, s); err == nil {
		return ts
	}
	ts, _ := time.Parse(time.RFC3339, fallback)
	return ts
}
