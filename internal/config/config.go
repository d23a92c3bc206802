package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	StoreBackend string // sheets | postgres

	SpreadsheetID            string
	GoogleServiceAccountJSON string
	DatabaseURI              string

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	CacheTTL      time.Duration

	PaymentProvider      string // stub | http
	PaymentWebhookSecret string
	PaymentGatewayURL    string
	PaymentGatewayToken  string

	HTTPAddr      string
	BasePublicURL string
	APIJWTSecret  string

	TelegramToken string
	AdminTGIDs    map[int64]bool

	SyncInterval        time.Duration
	SyncChampionshipIDs []string

	LogLevel slog.Level
}

func FromEnv() (Config, error) {
	var c Config
	var err error

	c.StoreBackend = strings.ToLower(env("STORE_BACKEND", "sheets"))
	c.SpreadsheetID = env("GOOGLE_SHEETS_SPREADSHEET_ID", "")
	c.GoogleServiceAccountJSON = env("GOOGLE_SERVICE_ACCOUNT_JSON", "")
	c.DatabaseURI = env("DATABASE_URI", "")

	c.RedisAddr = env("REDIS_URL", "")
	c.RedisPassword = env("REDIS_PASSWORD", "")
	if c.RedisDB, err = strconv.Atoi(env("REDIS_DB", "0")); err != nil {
		return c, fmt.Errorf("REDIS_DB: %w", err)
	}
	if c.CacheTTL, err = time.ParseDuration(env("CACHE_TTL", "2m")); err != nil {
		return c, fmt.Errorf("CACHE_TTL: %w", err)
	}

	c.PaymentProvider = env("PAYMENT_PROVIDER", "stub")
	c.PaymentWebhookSecret = env("PAYMENT_WEBHOOK_SECRET", "change-me")
	c.PaymentGatewayURL = env("PAYMENT_GATEWAY_URL", "")
	c.PaymentGatewayToken = env("PAYMENT_GATEWAY_TOKEN", "")

	c.HTTPAddr = env("HTTP_ADDR", ":8080")
	c.BasePublicURL = strings.TrimRight(env("BASE_PUBLIC_URL", ""), "/")
	c.APIJWTSecret = env("API_JWT_SECRET", "")

	c.TelegramToken = env("TELEGRAM_BOT_TOKEN", "")
	c.AdminTGIDs = parseAdminIDs(os.Getenv("ADMIN_TG_IDS"))

	if c.SyncInterval, err = time.ParseDuration(env("SYNC_INTERVAL", "0s")); err != nil {
		return c, fmt.Errorf("SYNC_INTERVAL: %w", err)
	}
	c.SyncChampionshipIDs = splitCSV(os.Getenv("SYNC_CHAMPIONSHIP_IDS"))

	if err := c.LogLevel.UnmarshalText([]byte(env("LOG_LEVEL", "info"))); err != nil {
		return c, fmt.Errorf("LOG_LEVEL: %w", err)
	}

	switch c.StoreBackend {
	case "sheets":
		if c.SpreadsheetID == "" {
			return c, fmt.Errorf("GOOGLE_SHEETS_SPREADSHEET_ID is empty")
		}
		if c.GoogleServiceAccountJSON == "" {
			return c, fmt.Errorf("GOOGLE_SERVICE_ACCOUNT_JSON is empty")
		}
	case "postgres":
		if c.DatabaseURI == "" {
			return c, fmt.Errorf("DATABASE_URI is empty")
		}
	default:
		return c, fmt.Errorf("unknown STORE_BACKEND: %s", c.StoreBackend)
	}
	if c.APIJWTSecret == "" {
		return c, fmt.Errorf("API_JWT_SECRET is empty")
	}

	return c, nil
}

func env(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func splitCSV(raw string) []string {
	var out []string
	for _, p := range strings.Split(raw, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func parseAdminIDs(raw string) map[int64]bool {
	m := map[int64]bool{}
	for _, p := range splitCSV(raw) {
		v, err := strconv.ParseInt(p, 10, 64)
		if err != nil {
			continue
		}
		m[v] = true
	}
	return m
}
