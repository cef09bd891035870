package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

type Config struct {
	DBFile         string
	AdminAddr      string
	APIAddr        string
	AllowedOrigins []string
	LogLevel       string
	SendBuffer     int
	EventRate      float64
	EventBurst     int
	AdminUser      string
	AdminPassword  string
}

// Load reads configuration from the environment. Values from an optional
// .env file in the working directory never override the real environment.
func Load() (*Config, error) {
	_ = godotenv.Load(".env")

	sendBuffer, err := strconv.Atoi(getEnv("SEND_BUFFER", "100"))
	if err != nil {
		return nil, fmt.Errorf("SEND_BUFFER: %w", err)
	}
	eventRate, err := strconv.ParseFloat(getEnv("EVENT_RATE", "20"), 64)
	if err != nil {
		return nil, fmt.Errorf("EVENT_RATE: %w", err)
	}
	eventBurst, err := strconv.Atoi(getEnv("EVENT_BURST", "40"))
	if err != nil {
		return nil, fmt.Errorf("EVENT_BURST: %w", err)
	}

	cfg := &Config{
		DBFile:         getEnv("PALAVER_DB", "palaver.db"),
		AdminAddr:      getEnv("ADMIN_ADDR", "localhost:8081"),
		APIAddr:        getEnv("API_ADDR", ":8080"),
		AllowedOrigins: splitList(os.Getenv("ALLOWED_ORIGINS")),
		LogLevel:       getEnv("LOG_LEVEL", "info"),
		SendBuffer:     sendBuffer,
		EventRate:      eventRate,
		EventBurst:     eventBurst,
		AdminUser:      os.Getenv("ADMIN_USER"),
		AdminPassword:  os.Getenv("ADMIN_PASSWORD"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if c.DBFile == "" {
		return fmt.Errorf("PALAVER_DB is required")
	}

	if c.SendBuffer <= 0 {
		return fmt.Errorf("SEND_BUFFER must be greater than 0")
	}

	if c.EventRate <= 0 || c.EventBurst <= 0 {
		return fmt.Errorf("EVENT_RATE and EVENT_BURST must be greater than 0")
	}

	if (c.AdminUser == "") != (c.AdminPassword == "") {
		return fmt.Errorf("ADMIN_USER and ADMIN_PASSWORD must be set together")
	}

	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("unknown LOG_LEVEL %q", c.LogLevel)
	}

	return nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
