package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds application configuration
type Config struct {
	Port          string
	Env           string
	PublicBaseURL string
	LogLevel      string

	DatabaseURL string

	RedisAddr     string
	RedisPassword string
	RedisTLS      bool

	// Booking planner job queue
	UseMemoryQueue  bool
	WorkerCount     int
	BookingQueueURL string

	AWSRegion           string
	AWSAccessKeyID      string
	AWSSecretAccessKey  string
	AWSEndpointOverride string

	// Reasoner models
	GeminiAPIKey string
	Stage1Model  string
	Stage2Model  string
	ExtractModel string
	ClerkModel   string

	// Catalog data layout
	BookingDataDir       string
	SecondaryDataDir     string
	CatalogDir           string
	DepartmentsIndexPath string
	HospitalImageDir     string

	// Visit persistence
	OutDir         string
	SaveVisitFiles string // always | final | none

	// Scheduling window
	WorkStart   string
	WorkEnd     string
	SlotMinutes int
	HoldTTL     time.Duration

	// Realtime join tokens
	TokenSecret string
	TokenTTL    time.Duration

	CORSAllowedOrigins []string
	DashboardStaticDir string
	KioskStaticDir     string
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:          getEnv("PORT", "8080"),
		Env:           getEnv("ENV", "development"),
		PublicBaseURL: getEnv("PUBLIC_BASE_URL", ""),
		LogLevel:      getEnv("LOG_LEVEL", "info"),

		DatabaseURL: getEnv("DATABASE_URL", ""),

		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisTLS:      getEnvAsBool("REDIS_TLS", false),

		UseMemoryQueue:  getEnvAsBool("USE_MEMORY_QUEUE", true),
		WorkerCount:     getEnvAsInt("WORKER_COUNT", 2),
		BookingQueueURL: getEnv("BOOKING_QUEUE_URL", ""),

		AWSRegion:           getEnv("AWS_REGION", "us-east-1"),
		AWSAccessKeyID:      getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretAccessKey:  getEnv("AWS_SECRET_ACCESS_KEY", ""),
		AWSEndpointOverride: getEnv("AWS_ENDPOINT_OVERRIDE", ""),

		GeminiAPIKey: getEnv("GEMINI_API_KEY", getEnv("GOOGLE_API_KEY", "")),
		Stage1Model:  getEnv("STAGE1_MODEL", "gemini-2.5-flash"),
		Stage2Model:  getEnv("STAGE2_MODEL", "gemini-2.5-flash"),
		ExtractModel: getEnv("EXTRACT_MODEL", "gemini-2.5-flash"),
		ClerkModel:   getEnv("CLERK_MODEL", "gemini-2.5-flash"),

		BookingDataDir:       getEnv("BOOKING_DATA_DIR", "Booking_data"),
		SecondaryDataDir:     getEnv("SECONDARY_DATA_DIR", "Data"),
		CatalogDir:           getEnv("CATALOG_DIR", "catalog"),
		DepartmentsIndexPath: getEnv("DEPARTMENTS_INDEX_PATH", ""),
		HospitalImageDir:     getEnv("HOSPITAL_IMAGE_DIR", "web/public/images"),

		OutDir:         getEnv("OUT_DIR", "out"),
		SaveVisitFiles: strings.ToLower(strings.TrimSpace(getEnv("SAVE_VISIT_FILES", "always"))),

		WorkStart:   getEnv("WORK_START", "07:40"),
		WorkEnd:     getEnv("WORK_END", "16:40"),
		SlotMinutes: getEnvAsInt("SLOT_MINUTES", 20),
		HoldTTL:     getEnvAsDuration("HOLD_TTL", 5*time.Minute),

		TokenSecret: getEnv("TOKEN_SECRET", ""),
		TokenTTL:    getEnvAsDuration("TOKEN_TTL", 5*time.Minute),

		CORSAllowedOrigins: splitCSV(getEnv("CORS_ALLOWED_ORIGINS", "*")),
		DashboardStaticDir: getEnv("DASHBOARD_STATIC_DIR", "Dashboard/static"),
		KioskStaticDir:     getEnv("KIOSK_STATIC_DIR", "web/static"),
	}
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsBool retrieves an environment variable as a boolean or returns a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func splitCSV(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
