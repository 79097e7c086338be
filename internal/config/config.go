package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds the configuration for the application.
type Config struct {
	PlanAPIURL     string
	PlanAPIKey     string // "id:hexsecret", used to sign bearer tokens
	PlanUserID     string
	PlanAPITimeout time.Duration
	Location       *time.Location
	LogLevel       string

	// Telegram Config
	TelegramBotToken       string
	TelegramWebhookURL     string
	TelegramAllowedUserIDs []int64
	AdminTelegramID        int64
	Port                   string
}

const defaultAPITimeout = 30 * time.Second

// NewFromEnv creates a new Config object from environment variables.
// A .env file in the working directory is loaded first if present; variables
// already set in the environment win.
func NewFromEnv() (*Config, error) {
	_ = godotenv.Load()

	planAPIURL := os.Getenv("PLAN_API_URL")
	if planAPIURL == "" {
		return nil, fmt.Errorf("PLAN_API_URL environment variable not set")
	}

	planAPIKey := os.Getenv("PLAN_API_KEY")
	if planAPIKey == "" {
		return nil, fmt.Errorf("PLAN_API_KEY environment variable not set")
	}

	planUserID := os.Getenv("PLAN_USER_ID")
	if planUserID == "" {
		return nil, fmt.Errorf("PLAN_USER_ID environment variable not set")
	}

	timeout := defaultAPITimeout
	if v := os.Getenv("PLAN_API_TIMEOUT"); v != "" {
		secs, err := strconv.Atoi(v)
		if err != nil || secs <= 0 {
			return nil, fmt.Errorf("PLAN_API_TIMEOUT must be a positive number of seconds, got %q", v)
		}
		timeout = time.Duration(secs) * time.Second
	}

	loc := time.Local
	if tz := os.Getenv("PLAN_TIMEZONE"); tz != "" {
		l, err := time.LoadLocation(tz)
		if err != nil {
			return nil, fmt.Errorf("invalid PLAN_TIMEZONE %q: %w", tz, err)
		}
		loc = l
	}

	// Telegram Config (Optional for CLI, required for Bot)
	var allowed []int64
	for _, part := range strings.Split(os.Getenv("TELEGRAM_ALLOWED_USER_IDS"), ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid TELEGRAM_ALLOWED_USER_IDS entry %q: %w", part, err)
		}
		allowed = append(allowed, id)
	}

	var adminID int64
	if v := strings.TrimSpace(os.Getenv("ADMIN_TELEGRAM_ID")); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid ADMIN_TELEGRAM_ID %q: %w", v, err)
		}
		adminID = id
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	return &Config{
		PlanAPIURL:             strings.TrimRight(planAPIURL, "/"),
		PlanAPIKey:             planAPIKey,
		PlanUserID:             planUserID,
		PlanAPITimeout:         timeout,
		Location:               loc,
		LogLevel:               strings.ToLower(os.Getenv("LOG_LEVEL")),
		TelegramBotToken:       os.Getenv("TELEGRAM_BOT_TOKEN"),
		TelegramWebhookURL:     os.Getenv("TELEGRAM_WEBHOOK_URL"),
		TelegramAllowedUserIDs: allowed,
		AdminTelegramID:        adminID,
		Port:                   port,
	}, nil
}

// ValidateBot checks the settings the Telegram bot needs on top of the base config.
func (c *Config) ValidateBot() error {
	if c.TelegramBotToken == "" {
		return fmt.Errorf("TELEGRAM_BOT_TOKEN environment variable not set")
	}
	if c.TelegramWebhookURL == "" {
		return fmt.Errorf("TELEGRAM_WEBHOOK_URL environment variable not set")
	}
	return nil
}

// DebugLogging reports whether verbose projection and client logs are on.
func (c *Config) DebugLogging() bool {
	return c.LogLevel == "debug"
}
