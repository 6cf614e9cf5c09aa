package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Env       string
	Port      string
	JWTSecret string

	DatabaseURL string
	SslCertPath string

	LLMProvider     string
	AIAPIKey        string
	GenModel        string
	EmbedModel      string
	EmbedDim        int
	OpenAIAPIKey    string
	OpenAIBaseURL   string
	OpenAIModel     string
	AnthropicAPIKey string
	AnthropicModel  string

	OracleMaxAttempts  int
	OracleBaseDelay    time.Duration
	OracleSystemPrompt string

	StorageBackend string
	StorageDir     string
	UploadDir      string
	AwsAccessKey   string
	AwsSecretKey   string
	AwsRegion      string
	BucketName     string

	SheetMaxRows        int
	SheetMaxCellLen     int
	ChatSheetMaxRows    int
	DefaultTemplateName string
	LearnAllSamples     bool
	MaxSamples          int
	HistoryLimit        int
	CorsOrigins         []string
}

// LoadConfig loads the environment variables and returns the config.
func LoadConfig() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Env:       getEnv("ENV", "development"),
		Port:      getEnv("PORT", "8080"),
		JWTSecret: getEnv("JWT_SECRET", ""),

		DatabaseURL: getEnv("DATABASE_URL", ""),
		SslCertPath: getEnv("SSL_CERT_PATH", ""),

		LLMProvider:     strings.ToLower(getEnv("LLM_PROVIDER", "gemini")),
		AIAPIKey:        getEnv("GEMINI_API_KEY", ""),
		GenModel:        getEnv("GEN_MODEL", "gemini-2.0-flash"),
		EmbedModel:      getEnv("EMBED_MODEL", "text-embedding-004"),
		EmbedDim:        getEnvInt("EMBED_DIM", 768),
		OpenAIAPIKey:    getEnv("OPENAI_API_KEY", ""),
		OpenAIBaseURL:   getEnv("OPENAI_BASE_URL", "https://api.openai.com/v1"),
		OpenAIModel:     getEnv("OPENAI_MODEL", "gpt-4o"),
		AnthropicAPIKey: getEnv("ANTHROPIC_API_KEY", ""),
		AnthropicModel:  getEnv("ANTHROPIC_MODEL", "claude-sonnet-4-5-20250929"),

		OracleMaxAttempts:  getEnvInt("ORACLE_MAX_ATTEMPTS", 3),
		OracleBaseDelay:    getEnvDuration("ORACLE_BASE_DELAY", 2*time.Second),
		OracleSystemPrompt: getEnv("ORACLE_SYSTEM_PROMPT", ""),

		StorageBackend: strings.ToLower(getEnv("STORAGE_BACKEND", "local")),
		StorageDir:     getEnv("STORAGE_DIR", "storage"),
		UploadDir:      getEnv("UPLOAD_DIR", "uploads"),
		AwsAccessKey:   getEnv("AWS_ACCESS_KEY", ""),
		AwsSecretKey:   getEnv("AWS_SECRET_KEY", ""),
		AwsRegion:      getEnv("AWS_REGION", "ap-northeast-2"),
		BucketName:     getEnv("BUCKET_NAME", "ai-server-files"),

		SheetMaxRows:        getEnvInt("SHEET_MAX_ROWS", 40),
		SheetMaxCellLen:     getEnvInt("SHEET_MAX_CELL_LEN", 50),
		ChatSheetMaxRows:    getEnvInt("CHAT_SHEET_MAX_ROWS", 30),
		DefaultTemplateName: getEnv("DEFAULT_TEMPLATE_NAME", ""),
		LearnAllSamples:     getEnvBool("LEARN_ALL_SAMPLES", false),
		MaxSamples:          getEnvInt("MAX_SAMPLES", 10),
		HistoryLimit:        getEnvInt("CHAT_HISTORY_LIMIT", 50),
		CorsOrigins:         splitList(getEnv("CORS_ORIGINS", "http://localhost:5173")),
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL not set")
	}
	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET not set")
	}
	switch cfg.StorageBackend {
	case "local", "s3":
	default:
		return nil, fmt.Errorf("STORAGE_BACKEND must be local or s3, got %q", cfg.StorageBackend)
	}

	return cfg, nil
}

func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Helper to read environment variables with a default fallback
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

func getEnvInt(key string, def int) int {
	v := getEnv(key, "")
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func getEnvBool(key string, def bool) bool {
	v := getEnv(key, "")
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	v := getEnv(key, "")
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}

func splitList(v string) []string {
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
