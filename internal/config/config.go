package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"tapsync/backend/internal"
)

type Config struct {
	Port      string
	ThemesDir string

	Countdown      time.Duration
	ReconnectGrace time.Duration
	TurnPause      time.Duration
	RoundPause     time.Duration
}

// Load reads configuration from the environment, with an optional .env file.
// A missing .env is fine; missing keys fall back to defaults.
func Load() Config {
	if err := godotenv.Load(); err != nil {
		log.Printf("[config.Load] no .env file loaded: %v", err)
	}

	return Config{
		Port:           getEnv("PORT", "8080"),
		ThemesDir:      getEnv("THEMES_DIR", "themes"),
		Countdown:      getDuration("COUNTDOWN_SECONDS", time.Second, internal.DefaultCountdown),
		ReconnectGrace: getDuration("RECONNECT_GRACE_SECONDS", time.Second, internal.DefaultReconnectGrace),
		TurnPause:      getDuration("TURN_PAUSE_MS", time.Millisecond, internal.DefaultTurnPause),
		RoundPause:     getDuration("ROUND_PAUSE_MS", time.Millisecond, internal.DefaultRoundPause),
	}
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getDuration(key string, unit time.Duration, fallback time.Duration) time.Duration {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		log.Printf("[config.Load] invalid value %q for %s, using default %v", raw, key, fallback)
		return fallback
	}
	return time.Duration(n) * unit
}
