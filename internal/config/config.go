// Package config provides application configuration.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Port        string
	DBPath      string
	VerifyToken string

	WhatsApp WhatsAppConfig
	LLM      LLMConfig

	SessionTTL   time.Duration
	ConfirmTTL   time.Duration
	HistoryLimit int

	ConversationLog ConversationLogConfig
}

// WhatsAppConfig holds outbound messaging gateway credentials.
type WhatsAppConfig struct {
	APIBase       string
	AccessToken   string
	PhoneNumberID string
}

// LLMConfig holds completion service settings.
type LLMConfig struct {
	APIBase string
	APIKey  string
	Model   string
	Timeout time.Duration
}

// ConversationLogConfig controls NDJSON conversation logging.
type ConversationLogConfig struct {
	Enabled   bool
	Dir       string
	QueueSize int
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	queueSize := getEnvInt("CONVERSATION_LOG_QUEUE_SIZE", 1000)
	if queueSize <= 0 {
		queueSize = 1000
	}

	cfg := &Config{
		Port:        getEnv("PORT", "8080"),
		DBPath:      getEnv("DB_PATH", "./data/adashi.db"),
		VerifyToken: getEnv("VERIFY_TOKEN", ""),
		WhatsApp: WhatsAppConfig{
			APIBase:       getEnv("WA_API_BASE", "https://graph.facebook.com/v19.0"),
			AccessToken:   getEnv("WA_ACCESS_TOKEN", ""),
			PhoneNumberID: getEnv("WA_PHONE_NUMBER_ID", ""),
		},
		LLM: LLMConfig{
			APIBase: getEnv("LLM_API_BASE", "https://api.openai.com/v1"),
			APIKey:  getEnv("LLM_API_KEY", ""),
			Model:   getEnv("LLM_MODEL", "gpt-4o-mini"),
			Timeout: getEnvDuration("LLM_TIMEOUT", 20*time.Second),
		},
		SessionTTL:   getEnvDuration("SESSION_TTL", 60*time.Minute),
		ConfirmTTL:   getEnvDuration("CONFIRM_TTL", 10*time.Minute),
		HistoryLimit: getEnvInt("HISTORY_LIMIT", 10),
		ConversationLog: ConversationLogConfig{
			Enabled:   getEnvBool("CONVERSATION_LOG_ENABLED", false),
			Dir:       getEnv("CONVERSATION_LOG_DIR", "./data/logs/conversations"),
			QueueSize: queueSize,
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}
	if c.DBPath == "" {
		return fmt.Errorf("DB_PATH cannot be empty")
	}
	if c.VerifyToken == "" {
		return fmt.Errorf("VERIFY_TOKEN cannot be empty")
	}
	if c.ConfirmTTL <= 0 {
		return fmt.Errorf("CONFIRM_TTL must be > 0")
	}
	if c.HistoryLimit <= 0 {
		return fmt.Errorf("HISTORY_LIMIT must be > 0")
	}
	if c.ConversationLog.Enabled && c.ConversationLog.Dir == "" {
		return fmt.Errorf("CONVERSATION_LOG_DIR cannot be empty when logging is enabled")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
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

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return d
}
