package strata

import (
	"os"
	"time"

	"github.com/joho/godotenv"
)

// NewClientFromEnv creates a Client from environment variables, loading a
// .env file from the working directory first if one exists:
//
//	STRATA_URL        base URL of the platform
//	STRATA_WORKSPACE  tenant workspace name
//	STRATA_API_KEY    API key for token acquisition
//	STRATA_TIMEOUT    per-request timeout (Go duration, default 30s)
func NewClientFromEnv() (*Client, error) {
	_ = godotenv.Load()

	return NewClient(Config{
		BaseURL:   envStr("STRATA_URL", ""),
		Workspace: envStr("STRATA_WORKSPACE", ""),
		APIKey:    envStr("STRATA_API_KEY", ""),
		Timeout:   envDuration("STRATA_TIMEOUT", 30*time.Second),
	})
}

func envStr(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envDuration(key string, defaultVal time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultVal
}
