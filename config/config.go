package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config is everything the service reads from the environment.
type Config struct {
	Port           string
	DatabaseURL    string
	GatewayToken   string
	AllowedOrigins string
	Location       *time.Location

	PushRelayURL   string
	PushRelayToken string

	RoundSweepInterval time.Duration
	ReminderInterval   time.Duration

	LogFile string

	R2 R2Config
}

// R2Config holds the S3-compatible object storage settings for completion photos.
type R2Config struct {
	AccountID       string
	AccessKeyID     string
	AccessKeySecret string
	Bucket          string
	CDNBaseURL      string
}

// Enabled reports whether enough settings are present to talk to the bucket.
func (r R2Config) Enabled() bool {
	return r.AccountID != "" && r.Bucket != ""
}

// Load reads a .env file when present and then the process environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("⚠️  No .env file found, reading environment variables directly")
	}
	return FromEnv(os.Getenv)
}

// FromEnv builds a Config from a lookup function.
func FromEnv(getenv func(string) string) (*Config, error) {
	cfg := &Config{
		Port:           valueOr(getenv("PORT"), "5200"),
		DatabaseURL:    getenv("DATABASE_URL"),
		GatewayToken:   getenv("GATEWAY_TOKEN"),
		AllowedOrigins: normalizeOrigins(valueOr(getenv("ALLOWED_ORIGINS"), "http://localhost:3000")),
		PushRelayURL:   getenv("PUSH_RELAY_URL"),
		PushRelayToken: getenv("PUSH_RELAY_TOKEN"),
		LogFile:        getenv("LOG_FILE"),
		R2: R2Config{
			AccountID:       getenv("CLOUDFLARE_ACCOUNT_ID"),
			AccessKeyID:     getenv("R2_ACCESS_KEY_ID"),
			AccessKeySecret: getenv("R2_ACCESS_KEY_SECRET"),
			Bucket:          getenv("R2_BUCKET_NAME"),
			CDNBaseURL:      getenv("CDN_BASE_URL"),
		},
	}

	var errs []error
	if cfg.DatabaseURL == "" {
		errs = append(errs, errors.New("DATABASE_URL environment variable not set"))
	}
	if cfg.GatewayToken == "" {
		errs = append(errs, errors.New("GATEWAY_TOKEN environment variable not set"))
	}

	loc, err := loadLocation(getenv("APP_TIMEZONE"))
	if err != nil {
		errs = append(errs, err)
	}
	cfg.Location = loc

	if cfg.RoundSweepInterval, err = durationOr(getenv("ROUND_SWEEP_INTERVAL"), 5*time.Minute); err != nil {
		errs = append(errs, fmt.Errorf("ROUND_SWEEP_INTERVAL: %w", err))
	}
	if cfg.ReminderInterval, err = durationOr(getenv("REMINDER_INTERVAL"), 10*time.Minute); err != nil {
		errs = append(errs, fmt.Errorf("REMINDER_INTERVAL: %w", err))
	}

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return cfg, nil
}

func loadLocation(name string) (*time.Location, error) {
	if name == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("APP_TIMEZONE %q: %w", name, err)
	}
	return loc, nil
}

func durationOr(raw string, fallback time.Duration) (time.Duration, error) {
	if raw == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return 0, fmt.Errorf("must be positive, got %s", d)
	}
	return d, nil
}

// normalizeOrigins trims the comma separated origin list the way fiber's cors wants it.
func normalizeOrigins(raw string) string {
	parts := strings.Split(raw, ",")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, ",")
}

func valueOr(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}
