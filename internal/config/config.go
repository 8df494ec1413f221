// Package config provides application configuration.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration. Provider credentials are
// optional: a missing credential degrades the dependent feature to a
// "not configured" status instead of failing startup.
type Config struct {
	Port         string
	FrontendURL  string
	DBPath       string
	DeviceDBPath string

	WhatsApp WhatsAppConfig
	Gemini   GeminiConfig

	AITimeout   time.Duration
	SendTimeout time.Duration
}

// WhatsAppConfig holds WhatsApp Business API credentials.
type WhatsAppConfig struct {
	APIURL        string
	AccessToken   string
	PhoneNumberID string
	VerifyToken   string
	// OwnerUserID selects whose agent configuration answers messages
	// arriving on the Business number. Optional.
	OwnerUserID string
}

// GeminiConfig holds the AI provider credentials.
type GeminiConfig struct {
	APIKey string
	APIURL string
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{
		Port:         getEnv("PORT", "3001"),
		FrontendURL:  getEnv("FRONTEND_URL", ""),
		DBPath:       getEnv("DB_PATH", "./data/zapagent.db"),
		DeviceDBPath: getEnv("DEVICE_DB_PATH", "./data/devices.db"),
		WhatsApp: WhatsAppConfig{
			APIURL:        getEnv("WHATSAPP_API_URL", "https://graph.facebook.com/v18.0"),
			AccessToken:   getEnv("WHATSAPP_ACCESS_TOKEN", ""),
			PhoneNumberID: getEnv("WHATSAPP_PHONE_NUMBER_ID", ""),
			VerifyToken:   getEnv("WHATSAPP_VERIFY_TOKEN", ""),
			OwnerUserID:   getEnv("WHATSAPP_OWNER_USER_ID", ""),
		},
		Gemini: GeminiConfig{
			APIKey: getEnv("GEMINI_API_KEY", ""),
			APIURL: getEnv("GEMINI_API_URL", ""),
		},
		AITimeout:   time.Duration(getEnvInt("AI_TIMEOUT_SECONDS", 20)) * time.Second,
		SendTimeout: time.Duration(getEnvInt("SEND_TIMEOUT_SECONDS", 10)) * time.Second,
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks the fields that must always be set.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}
	if c.DBPath == "" {
		return fmt.Errorf("DB_PATH cannot be empty")
	}
	if c.DeviceDBPath == "" {
		return fmt.Errorf("DEVICE_DB_PATH cannot be empty")
	}
	if c.AITimeout <= 0 || c.SendTimeout <= 0 {
		return fmt.Errorf("provider timeouts must be positive")
	}
	return nil
}

// BusinessConfigured reports whether the WhatsApp Business API credentials
// are present.
func (c *Config) BusinessConfigured() bool {
	return c.WhatsApp.AccessToken != "" && c.WhatsApp.PhoneNumberID != ""
}

// AIConfigured reports whether the AI provider key is present.
func (c *Config) AIConfigured() bool {
	return c.Gemini.APIKey != ""
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.FrontendURL == "" ||
		strings.Contains(c.FrontendURL, "localhost") ||
		strings.Contains(c.FrontendURL, "127.0.0.1")
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}
