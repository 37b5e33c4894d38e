package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

// Config holds application configuration values.
type Config struct {
	Env  string `validate:"required,oneof=dev prod"`
	HTTP struct {
		Addr string `validate:"required"`
		// RateInterval is the per-client minimum spacing on mutating
		// routes; zero disables limiting.
		RateInterval time.Duration `validate:"gte=0"`
	}
	Log struct {
		ConsoleLevel string `validate:"required,oneof=debug info warn error"`
		FileLevel    string `validate:"required,oneof=debug info warn error"`
		File         string
	}
	Store struct {
		Driver         string `validate:"required,oneof=sqlite postgres"`
		SQLitePath     string `validate:"required_if=Driver sqlite"`
		MigrationsPath string
		PostgresDSN    string `validate:"required_if=Driver postgres"`
	}
	Push struct {
		VAPIDPublicKey  string
		VAPIDPrivateKey string
		Subscriber      string `validate:"required"`
		TTL             int    `validate:"gte=0"`
	}
	Notify struct {
		ThresholdDays int `validate:"gte=0"`
	}
	Schedule struct {
		Timezone string `validate:"required"`
		Cron     string `validate:"required"`
	}
	Vision struct {
		BaseURL string `validate:"required"`
		APIKey  string
	}
}

var validate = validator.New()

// Load reads configuration from environment variables and optional .env file.
func Load() (Config, error) {
	_ = godotenv.Load()

	var c Config
	c.Env = getenv("ENV", "prod")
	c.HTTP.Addr = getenv("HTTP_ADDR", ":4000")
	c.HTTP.RateInterval = getduration("HTTP_RATE_INTERVAL", 100*time.Millisecond)
	c.Log.ConsoleLevel = strings.ToLower(getenv("LOG_CONSOLE_LEVEL", "info"))
	c.Log.FileLevel = strings.ToLower(getenv("LOG_FILE_LEVEL", "debug"))
	c.Log.File = getenv("LOG_FILE", "data/logs/server.log")
	c.Store.Driver = strings.ToLower(getenv("STORE_DRIVER", "sqlite"))
	c.Store.SQLitePath = getenv("SQLITE_PATH", "data/fridgemind.db")
	c.Store.MigrationsPath = getenv("SQLITE_MIGRATIONS", "file://migrations/sqlite")
	c.Store.PostgresDSN = os.Getenv("POSTGRES_DSN")
	c.Push.VAPIDPublicKey = os.Getenv("VAPID_PUBLIC_KEY")
	c.Push.VAPIDPrivateKey = os.Getenv("VAPID_PRIVATE_KEY")
	c.Push.Subscriber = getenv("VAPID_SUBSCRIBER", "mailto:you@example.com")
	c.Push.TTL = getint("PUSH_TTL", 30)
	c.Notify.ThresholdDays = getint("NOTIFY_THRESHOLD_DAYS", 3)
	c.Schedule.Timezone = getenv("SCHEDULE_TIMEZONE", "Asia/Kolkata")
	// Two fixed wall-clock fires per day. Six-field spec, seconds first.
	c.Schedule.Cron = getenv("SCHEDULE_CRON", "0 0 9,18 * * *")
	c.Vision.BaseURL = getenv("VISION_API_BASE", "https://vision.googleapis.com")
	c.Vision.APIKey = os.Getenv("GOOGLE_VISION_API_KEY")

	if err := validate.Struct(c); err != nil {
		return Config{}, err
	}
	return c, nil
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getint(k string, def int) int {
	if v := os.Getenv(k); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getduration(k string, def time.Duration) time.Duration {
	if v := os.Getenv(k); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
