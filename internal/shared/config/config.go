package config

import (
	"log"
	"os"
	"strconv"
	"strings"
)

// Config holds application configuration.
type Config struct {
	Port            string
	Env             string
	DatabaseURL     string
	CORSAllowOrigin []string

	ObjectStoreType string
	LocalStoreDir   string
	AWSRegion       string
	S3Bucket        string
	S3Prefix        string
	S3KMSKeyID      string

	QueueURL string

	GeminiAPIKey   string
	GeminiModel    string
	OracleBaseURL  string
	OracleTimeoutS int

	OracleMaxAttempts    int
	OracleRetryBaseS     int
	OracleRetryMaxS      int
	ValidationMaxOracle  int
	SegmentMaxRetries    int
	RunRetentionDays     int
	MaxExtractedTextSize int

	ArtifactFetchToken    string
	ArtifactFetchTimeoutS int
}

// Load reads configuration from environment variables with sensible defaults.
func Load() Config {
	// Best-effort load of local env files for dev convenience.
	loadEnvFiles(".env", "cmd/.env")

	env := normalizeEnv(getEnv("ENV", "dev"))
	dbURL := os.Getenv("DATABASE_URL")

	if env == "production" && dbURL == "" {
		log.Printf("DATABASE_URL is required in production")
	}
	if env == "production" && os.Getenv("JWT_SECRET") == "" {
		log.Printf("JWT_SECRET is required in production")
	}

	return Config{
		Port:            getEnv("PORT", "8080"),
		Env:             env,
		DatabaseURL:     dbURL,
		CORSAllowOrigin: splitAndTrim(getEnv("CORS_ALLOW_ORIGINS", "http://localhost:5173")),

		ObjectStoreType: normalizeStoreType(getEnv("OBJECT_STORE", "local")),
		LocalStoreDir:   getEnv("LOCAL_STORE_DIR", "./data"),
		AWSRegion:       getEnv("AWS_REGION", ""),
		S3Bucket:        getEnv("S3_BUCKET", ""),
		S3Prefix:        getEnv("S3_PREFIX", ""),
		S3KMSKeyID:      getEnv("S3_KMS_KEY_ID", ""),

		QueueURL: getEnv("QUEUE_URL", ""),

		GeminiAPIKey:   getEnv("GEMINI_API_KEY", ""),
		GeminiModel:    getEnv("GEMINI_MODEL", "gemini-1.5-flash-latest"),
		OracleBaseURL:  getEnv("ORACLE_BASE_URL", ""),
		OracleTimeoutS: getEnvInt("ORACLE_TIMEOUT_SECONDS", 60),

		OracleMaxAttempts:    getEnvInt("ORACLE_MAX_ATTEMPTS", 3),
		OracleRetryBaseS:     getEnvInt("ORACLE_RETRY_BASE_SECONDS", 4),
		OracleRetryMaxS:      getEnvInt("ORACLE_RETRY_MAX_SECONDS", 10),
		ValidationMaxOracle:  getEnvInt("VALIDATION_MAX_CONCURRENT", 5),
		SegmentMaxRetries:    getEnvInt("SEGMENT_MAX_RETRIES", 3),
		RunRetentionDays:     getEnvInt("RUN_RETENTION_DAYS", 30),
		MaxExtractedTextSize: getEnvInt("MAX_EXTRACTED_TEXT_BYTES", 1<<20),

		ArtifactFetchToken:    getEnv("ARTIFACT_FETCH_TOKEN", ""),
		ArtifactFetchTimeoutS: getEnvInt("ARTIFACT_FETCH_TIMEOUT_SECONDS", 30),
	}
}

func getEnv(key, def string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return def
}

func getEnvInt(key string, def int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		log.Printf("invalid %s=%q, using default %d", key, raw, def)
		return def
	}
	return n
}

func splitAndTrim(raw string) []string {
	parts := strings.Split(raw, ",")
	var out []string
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func normalizeEnv(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "production", "prod":
		return "production"
	case "staging":
		return "staging"
	case "local":
		return "local"
	case "development", "dev":
		return "dev"
	default:
		return "dev"
	}
}

func normalizeStoreType(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "s3":
		return "s3"
	default:
		return "local"
	}
}
