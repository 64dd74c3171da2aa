package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config carries everything the adapters and servers need. It is loaded once
// at startup and passed into constructors; nothing reads the environment
// after that.
type Config struct {
	Port   string
	DBPath string

	// Seller API (postings + finance transactions).
	SellerBaseURL  string
	SellerClientID string
	SellerAPIKey   string

	// Performance API (ad-spend reports).
	PerfBaseURL      string
	PerfClientID     string
	PerfClientSecret string

	LookbackDays  int
	ReportTimeout time.Duration
	SyncSchedule  string // cron expression, empty = one-shot

	// Best-effort flags: when false the corresponding step failure aborts
	// the whole run.
	FinanceBestEffort bool
	AdsBestEffort     bool
}

// Load reads .env (if present) and the process environment.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Port:              getenv("PORT", "8080"),
		DBPath:            getenv("DB_PATH", "marginlens.db"),
		SellerBaseURL:     getenv("SELLER_API_URL", "https://api-seller.ozon.ru"),
		SellerClientID:    os.Getenv("SELLER_CLIENT_ID"),
		SellerAPIKey:      os.Getenv("SELLER_API_KEY"),
		PerfBaseURL:       getenv("PERF_API_URL", "https://api-performance.ozon.ru"),
		PerfClientID:      os.Getenv("PERF_CLIENT_ID"),
		PerfClientSecret:  os.Getenv("PERF_CLIENT_SECRET"),
		LookbackDays:      getenvInt("LOOKBACK_DAYS", 30),
		ReportTimeout:     time.Duration(getenvInt("REPORT_TIMEOUT_SEC", 180)) * time.Second,
		SyncSchedule:      os.Getenv("SYNC_SCHEDULE"),
		FinanceBestEffort: getenvBool("FINANCE_BEST_EFFORT", true),
		AdsBestEffort:     getenvBool("ADS_BEST_EFFORT", true),
	}
	return cfg, nil
}

// ValidateSeller checks the credentials required for seller API ingestion.
func (c *Config) ValidateSeller() error {
	if c.SellerClientID == "" || c.SellerAPIKey == "" {
		return fmt.Errorf("SELLER_CLIENT_ID and SELLER_API_KEY must be set")
	}
	return nil
}

// ValidatePerf checks the credentials required for the performance API.
func (c *Config) ValidatePerf() error {
	if c.PerfClientID == "" || c.PerfClientSecret == "" {
		return fmt.Errorf("PERF_CLIENT_ID and PERF_CLIENT_SECRET must be set")
	}
	return nil
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return def
}

func getenvBool(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		return v == "1" || v == "true"
	}
	return def
}
