package config

import (
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds everything the server reads from the environment.
type Config struct {
	Addr   string
	DBPath string

	GeminiAPIKey string
	GeminiModel  string
	Temperature  float64

	// MaxHistoryTokens bounds the assembled prompt; 0 disables trimming.
	MaxHistoryTokens int

	CORSOrigins []string
}

// Load reads a .env file if one exists, then builds the config from the
// environment.
func Load() *Config {
	// Same behavior as a missing .env with dotenv: silently skipped.
	_ = godotenv.Load()

	return &Config{
		Addr:             getEnv("ADDR", ":8080"),
		DBPath:           getEnv("DB_PATH", "chatbot.db"),
		GeminiAPIKey:     getEnv("GEMINI_API_KEY", ""),
		GeminiModel:      getEnv("GEMINI_MODEL", "gemini-2.5-flash"),
		Temperature:      getFloatEnv("LLM_TEMPERATURE", 0.7),
		MaxHistoryTokens: getIntEnv("MAX_HISTORY_TOKENS", 0),
		CORSOrigins:      splitOrigins(getEnv("CORS_ORIGINS", "*")),
	}
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getFloatEnv(key string, def float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def
	}
	return f
}

func getIntEnv(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func splitOrigins(s string) []string {
	parts := strings.Split(s, ",")
	origins := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			origins = append(origins, p)
		}
	}
	return origins
}
