package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	DatabaseURL string

	// OAuth (外部IdP)
	GoogleClientID     string
	GoogleClientSecret string
	GoogleRedirectURL  string

	// Session
	SessionMaxAge int

	// Token introspection (リソースサーバーとしての認可サーバー接続)
	AuthorityURL      string
	APIResourceID     string
	APIResourceSecret string
	TokenIssuer       string
	TokenAudience     string
	DiscoveryCacheTTL time.Duration

	// Signed URL
	// SignedURLSecret は起動時に1回読み込まれ、以後変更されない。
	// ローテーションは再起動のみで行い、旧キーで署名されたURLは全て無効になる。
	SignedURLSecret string
	SignedURLTTL    time.Duration

	// Rate Limit (req/min/user)
	RateLimitGeneral int
	RateLimitLogin   int

	// Ticket cleanup
	TicketCleanupInterval time.Duration

	// Server
	ServerPort string
	BaseURL    string

	// Cookie
	CookieSecure bool
	CookieDomain string

	// CORS
	CORSAllowedOrigin string
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合はエラーを返す。
func Load() (*Config, error) {
	cfg := &Config{}

	// Required fields
	var missing []string

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}

	cfg.GoogleClientID = os.Getenv("GOOGLE_CLIENT_ID")
	if cfg.GoogleClientID == "" {
		missing = append(missing, "GOOGLE_CLIENT_ID")
	}

	cfg.GoogleClientSecret = os.Getenv("GOOGLE_CLIENT_SECRET")
	if cfg.GoogleClientSecret == "" {
		missing = append(missing, "GOOGLE_CLIENT_SECRET")
	}

	cfg.GoogleRedirectURL = os.Getenv("GOOGLE_REDIRECT_URL")
	if cfg.GoogleRedirectURL == "" {
		missing = append(missing, "GOOGLE_REDIRECT_URL")
	}

	cfg.AuthorityURL = os.Getenv("AUTHORITY_URL")
	if cfg.AuthorityURL == "" {
		missing = append(missing, "AUTHORITY_URL")
	}

	cfg.APIResourceID = os.Getenv("API_RESOURCE_ID")
	if cfg.APIResourceID == "" {
		missing = append(missing, "API_RESOURCE_ID")
	}

	cfg.APIResourceSecret = os.Getenv("API_RESOURCE_SECRET")
	if cfg.APIResourceSecret == "" {
		missing = append(missing, "API_RESOURCE_SECRET")
	}

	cfg.SignedURLSecret = os.Getenv("SIGNED_URL_SECRET")
	if cfg.SignedURLSecret == "" {
		missing = append(missing, "SIGNED_URL_SECRET")
	}

	cfg.BaseURL = os.Getenv("BASE_URL")
	if cfg.BaseURL == "" {
		missing = append(missing, "BASE_URL")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	// Optional fields with defaults
	cfg.SessionMaxAge = getEnvInt("SESSION_MAX_AGE", 86400)
	cfg.TokenIssuer = getEnvString("TOKEN_ISSUER", cfg.AuthorityURL)
	cfg.TokenAudience = getEnvString("TOKEN_AUDIENCE", cfg.APIResourceID)
	cfg.DiscoveryCacheTTL = getEnvDuration("DISCOVERY_CACHE_TTL", 24*time.Hour)
	cfg.SignedURLTTL = getEnvDuration("SIGNED_URL_TTL", 5*time.Minute)
	cfg.RateLimitGeneral = getEnvInt("RATE_LIMIT_GENERAL", 120)
	cfg.RateLimitLogin = getEnvInt("RATE_LIMIT_LOGIN", 10)
	cfg.TicketCleanupInterval = getEnvDuration("TICKET_CLEANUP_INTERVAL", 24*time.Hour)
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.CookieSecure = strings.HasPrefix(cfg.BaseURL, "https://")
	cfg.CookieDomain = getEnvString("COOKIE_DOMAIN", "")
	cfg.CORSAllowedOrigin = getEnvString("CORS_ALLOWED_ORIGIN", "http://localhost:3000")

	return cfg, nil
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
