package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Port          string
	DBPath        string
	Timezone      string
	APITokens     map[string]string // token -> user ID
	MonthlyBudget float64

	LLMBaseURL    string
	LLMAPIKey     string
	LLMFallback   string
	LLMTimeout    time.Duration
	CacheSize     int
	CacheTTL      time.Duration
	BatchLimit    int
	SyncStrategy  string
	SyncInterval  time.Duration
	RemoteCalURL  string
	RemoteCalKey  string
	RateLimit     int
}

func Load() (*Config, error) {
	budget, err := getEnvFloat("PHOTOCAL_MONTHLY_BUDGET", 10.0)
	if err != nil {
		return nil, err
	}
	llmTimeout, err := getEnvDuration("PHOTOCAL_LLM_TIMEOUT", 30*time.Second)
	if err != nil {
		return nil, err
	}
	cacheSize, err := getEnvInt("PHOTOCAL_CACHE_SIZE", 1000)
	if err != nil {
		return nil, err
	}
	cacheTTL, err := getEnvDuration("PHOTOCAL_CACHE_TTL", time.Hour)
	if err != nil {
		return nil, err
	}
	batchLimit, err := getEnvInt("PHOTOCAL_BATCH_LIMIT", 10)
	if err != nil {
		return nil, err
	}
	syncInterval, err := getEnvDuration("PHOTOCAL_SYNC_INTERVAL", 15*time.Minute)
	if err != nil {
		return nil, err
	}
	rateLimit, err := getEnvInt("PHOTOCAL_RATE_LIMIT", 60)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Port:          getEnv("PHOTOCAL_PORT", "8080"),
		DBPath:        getEnv("PHOTOCAL_DB_PATH", ""),
		Timezone:      getEnv("PHOTOCAL_TIMEZONE", "Asia/Seoul"),
		APITokens:     parseTokens(getEnv("PHOTOCAL_API_TOKENS", "")),
		MonthlyBudget: budget,
		LLMBaseURL:    getEnv("PHOTOCAL_LLM_URL", "https://api.openai.com"),
		LLMAPIKey:     getEnv("PHOTOCAL_LLM_API_KEY", ""),
		LLMFallback:   getEnv("PHOTOCAL_LLM_FALLBACK_MODEL", "gpt-4o-mini"),
		LLMTimeout:    llmTimeout,
		CacheSize:     cacheSize,
		CacheTTL:      cacheTTL,
		BatchLimit:    batchLimit,
		SyncStrategy:  getEnv("PHOTOCAL_SYNC_STRATEGY", "newest-wins"),
		SyncInterval:  syncInterval,
		RemoteCalURL:  getEnv("PHOTOCAL_REMOTE_CAL_URL", ""),
		RemoteCalKey:  getEnv("PHOTOCAL_REMOTE_CAL_KEY", ""),
		RateLimit:     rateLimit,
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.DBPath == "" {
		return fmt.Errorf("PHOTOCAL_DB_PATH is required")
	}
	if len(c.APITokens) == 0 {
		return fmt.Errorf("PHOTOCAL_API_TOKENS is required")
	}
	if c.MonthlyBudget <= 0 {
		return fmt.Errorf("PHOTOCAL_MONTHLY_BUDGET must be positive")
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		return fmt.Errorf("PHOTOCAL_TIMEZONE %q is invalid: %w", c.Timezone, err)
	}
	switch c.SyncStrategy {
	case "local-wins", "remote-wins", "newest-wins", "manual":
	default:
		return fmt.Errorf("PHOTOCAL_SYNC_STRATEGY %q is not one of local-wins, remote-wins, newest-wins, manual", c.SyncStrategy)
	}
	return nil
}

// UserFromToken maps an API token to its user ID.
func (c *Config) UserFromToken(token string) (string, bool) {
	if token == "" {
		return "", false
	}
	user, ok := c.APITokens[token]
	return user, ok
}

// parseTokens reads "token1:user1,token2:user2".
func parseTokens(raw string) map[string]string {
	tokens := make(map[string]string)
	for _, pair := range strings.Split(raw, ",") {
		token, user, ok := strings.Cut(strings.TrimSpace(pair), ":")
		if !ok || token == "" || user == "" {
			continue
		}
		tokens[token] = user
	}
	return tokens
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) (int, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer: %w", key, err)
	}
	return n, nil
}

func getEnvFloat(key string, defaultVal float64) (float64, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	f, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return 0, fmt.Errorf("%s must be a number: %w", key, err)
	}
	return f, nil
}

func getEnvDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("%s must be a duration like 30s or 15m: %w", key, err)
	}
	return d, nil
}
