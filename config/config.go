package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	PostgresHost     string
	PostgresPort     string
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string
	StorePostgres    bool

	Scraper     ScraperConfig
	Consolidate ConsolidateConfig

	LogLevel string
}

// ScraperConfig drives the paginated listing scraper.
type ScraperConfig struct {
	BaseURL        string  `validate:"required,url"`
	PageParam      string  `validate:"required"`
	SizeParam      string  `validate:"required"`
	RecordsKey     string
	StartPage      int     `validate:"gte=0"`
	PageSize       int     `validate:"gte=1"`
	MaxPages       int     `validate:"gte=1"`
	DelaySeconds   float64 `validate:"gte=0"`
	MaxRetries     int     `validate:"gte=0"`
	TimeoutSeconds int     `validate:"gte=1"`
	CSVOutputPath  string  `validate:"required"`
}

// ConsolidateConfig drives the CSV to Parquet consolidation job.
type ConsolidateConfig struct {
	DataDir    string `validate:"required"`
	Pattern    string `validate:"required"`
	OutputPath string `validate:"required"`
	BatchSize  int    `validate:"gte=1"`
}

// Load reads the .env file and returns a populated Config struct.
func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("[config] No .env file found, falling back to system env vars")
	}

	return &Config{
		PostgresHost:     getEnv("POSTGRES_HOST", "localhost"),
		PostgresPort:     getEnv("POSTGRES_PORT", "5432"),
		PostgresUser:     getEnv("POSTGRES_USER", "dvf"),
		PostgresPassword: getEnv("POSTGRES_PASSWORD", "dvf"),
		PostgresDB:       getEnv("POSTGRES_DB", "dvf"),
		PostgresSSLMode:  getEnv("POSTGRES_SSLMODE", "disable"),
		StorePostgres:    getEnvBool("STORE_POSTGRES", false),

		Scraper: ScraperConfig{
			BaseURL:        getEnv("SCRAPER_BASE_URL", ""),
			PageParam:      getEnv("SCRAPER_PAGE_PARAM", "page"),
			SizeParam:      getEnv("SCRAPER_SIZE_PARAM", "page_size"),
			RecordsKey:     getEnv("SCRAPER_RECORDS_KEY", "results"),
			StartPage:      getEnvInt("SCRAPER_START_PAGE", 1),
			PageSize:       getEnvInt("SCRAPER_PAGE_SIZE", 100),
			MaxPages:       getEnvInt("SCRAPER_MAX_PAGES", 10),
			DelaySeconds:   getEnvFloat("SCRAPER_DELAY_SECONDS", 1),
			MaxRetries:     getEnvInt("SCRAPER_MAX_RETRIES", 3),
			TimeoutSeconds: getEnvInt("SCRAPER_TIMEOUT_SECONDS", 30),
			CSVOutputPath:  getEnv("SCRAPER_OUTPUT_PATH", "data/listings.csv"),
		},

		Consolidate: ConsolidateConfig{
			DataDir:    getEnv("DATA_DIR", "data"),
			Pattern:    getEnv("CONSOLIDATE_PATTERN", "*full.csv"),
			OutputPath: getEnv("CONSOLIDATE_OUTPUT_PATH", "data/dvf_2020_2025.parquet"),
			BatchSize:  getEnvInt("CONSOLIDATE_BATCH_SIZE", 100_000),
		},

		LogLevel: strings.ToLower(getEnv("LOG_LEVEL", "info")),
	}
}

// DSN returns the PostgreSQL connection string.
func (c *Config) DSN() string {
	return "host=" + c.PostgresHost +
		" port=" + c.PostgresPort +
		" user=" + c.PostgresUser +
		" password=" + c.PostgresPassword +
		" dbname=" + c.PostgresDB +
		" sslmode=" + c.PostgresSSLMode
}

var validate = validator.New()

// ValidateScraper checks the settings the scraper needs.
func (c *Config) ValidateScraper() error {
	if err := validate.Struct(c.Scraper); err != nil {
		return fmt.Errorf("config: scraper: %w", err)
	}
	return c.validateLogLevel()
}

// ValidateConsolidate checks the settings the consolidator needs.
func (c *Config) ValidateConsolidate() error {
	if err := validate.Struct(c.Consolidate); err != nil {
		return fmt.Errorf("config: consolidate: %w", err)
	}
	return c.validateLogLevel()
}

func (c *Config) validateLogLevel() error {
	if err := validate.Var(c.LogLevel, "oneof=debug info warn error"); err != nil {
		return fmt.Errorf("config: LOG_LEVEL %q: %w", c.LogLevel, err)
	}
	return nil
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		n, err := strconv.Atoi(val)
		if err == nil {
			return n
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if val := os.Getenv(key); val != "" {
		f, err := strconv.ParseFloat(val, 64)
		if err == nil {
			return f
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if val := os.Getenv(key); val != "" {
		b, err := strconv.ParseBool(val)
		if err == nil {
			return b
		}
	}
	return fallback
}
