package infra

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config represents application configuration loaded from environment variables.
type Config struct {
	AppEnv               string
	Port                 string
	DatabaseURL          string
	StoragePath          string
	GeminiAPIKey         string
	GeminiBaseURL        string
	GeminiTextModel      string
	GeminiImageModel     string
	YouTubeUploadBaseURL string
	YouTubeClientID      string
	YouTubeClientSecret  string
	YouTubeRedirectURL   string
	YouTubeCategoryID    string
	YouTubePrivacyStatus string
	MaxUploadBytes       int64
	HTTPReadTimeout      time.Duration
	HTTPWriteTimeout     time.Duration
	HTTPIdleTimeout      time.Duration
	RateLimitPerMin      int
	CORSAllowedOrigins   []string
}

var privacyStatuses = map[string]struct{}{
	"private":  {},
	"unlisted": {},
	"public":   {},
}

// LoadConfig loads configuration from environment variables and applies defaults where needed.
func LoadConfig() (*Config, error) {
	// Missing env files are fine; the process environment still applies.
	_ = godotenv.Load(".env", ".env.local")

	port := getEnv("PORT", "8080")
	cfg := &Config{
		AppEnv:               getEnv("APP_ENV", "development"),
		Port:                 port,
		DatabaseURL:          strings.TrimSpace(os.Getenv("DATABASE_URL")),
		StoragePath:          getEnv("STORAGE_PATH", "./storage"),
		GeminiAPIKey:         strings.TrimSpace(os.Getenv("GEMINI_API_KEY")),
		GeminiBaseURL:        getEnv("GEMINI_BASE_URL", "https://generativelanguage.googleapis.com/v1beta"),
		GeminiTextModel:      getEnv("GEMINI_TEXT_MODEL", "gemini-2.5-flash"),
		GeminiImageModel:     getEnv("GEMINI_IMAGE_MODEL", "gemini-3-pro-image-preview"),
		YouTubeUploadBaseURL: getEnv("YOUTUBE_UPLOAD_BASE_URL", "https://www.googleapis.com/upload/youtube/v3"),
		YouTubeClientID:      strings.TrimSpace(os.Getenv("YOUTUBE_CLIENT_ID")),
		YouTubeClientSecret:  strings.TrimSpace(os.Getenv("YOUTUBE_CLIENT_SECRET")),
		YouTubeRedirectURL:   getEnv("YOUTUBE_REDIRECT_URL", fmt.Sprintf("http://localhost:%s/v1/auth/callback", port)),
		YouTubeCategoryID:    getEnv("YOUTUBE_CATEGORY_ID", "22"),
		YouTubePrivacyStatus: strings.ToLower(getEnv("YOUTUBE_PRIVACY_STATUS", "private")),
		MaxUploadBytes:       int64(getEnvInt("MAX_UPLOAD_MB", 2048)) * 1024 * 1024,
		HTTPReadTimeout:      time.Second * time.Duration(getEnvInt("HTTP_READ_TIMEOUT_SECONDS", 15)),
		HTTPWriteTimeout:     time.Second * time.Duration(getEnvInt("HTTP_WRITE_TIMEOUT_SECONDS", 30)),
		HTTPIdleTimeout:      time.Second * time.Duration(getEnvInt("HTTP_IDLE_TIMEOUT_SECONDS", 60)),
		RateLimitPerMin:      getEnvInt("RATE_LIMIT_PER_MINUTE", 30),
		CORSAllowedOrigins:   getEnvList("CORS_ALLOWED_ORIGINS", []string{"http://localhost:5173", "http://localhost:3000"}),
	}

	if _, ok := privacyStatuses[cfg.YouTubePrivacyStatus]; !ok {
		return nil, fmt.Errorf("YOUTUBE_PRIVACY_STATUS must be private, unlisted or public, got %q", cfg.YouTubePrivacyStatus)
	}

	if cfg.YouTubeClientID != "" && cfg.YouTubeClientSecret == "" {
		return nil, fmt.Errorf("YOUTUBE_CLIENT_SECRET is required when YOUTUBE_CLIENT_ID is set")
	}

	return cfg, nil
}

// OAuthConfigured reports whether the YouTube consent flow can be offered.
func (c *Config) OAuthConfigured() bool {
	return c.YouTubeClientID != "" && c.YouTubeClientSecret != ""
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvList(key string, fallback []string) []string {
	v, ok := os.LookupEnv(key)
	if !ok || strings.TrimSpace(v) == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
