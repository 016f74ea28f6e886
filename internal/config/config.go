package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for the docpipe server.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Blob     BlobConfig
	Upload   UploadConfig
	Cleaning CleaningConfig
	AI       AIConfig
}

type ServerConfig struct {
	Port int
	Env  string
}

type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type RedisConfig struct {
	URL string
}

type BlobConfig struct {
	Dir string
}

type UploadConfig struct {
	MaxBytes int64
}

// CleaningConfig carries the cleaning engine thresholds. These are
// deliberately configuration rather than constants: the numeric/datetime
// inference ratio, the categorical cardinality cutoff, and the outlier
// policy all vary per deployment.
type CleaningConfig struct {
	InferenceRatio    float64 // share of non-empty cells that must parse
	MaxCategories     int     // cardinality cutoff for categorical columns
	OutlierMethod     string  // "iqr" or "zscore"
	IQRFactor         float64
	ZScoreLimit       float64
}

type AIConfig struct {
	Provider       string
	MaxAttempts    int
	RetryBaseDelay time.Duration
	RetryMaxDelay  time.Duration
	CallTimeout    time.Duration
	JobDeadline    time.Duration
	MaxSampleRows  int
	MaxPromptChars int
	DeepSeek       DeepSeekConfig
	OpenAI         OpenAIConfig
}

type DeepSeekConfig struct {
	APIKey  string
	BaseURL string
	Model   string
}

type OpenAIConfig struct {
	APIKey  string
	BaseURL string
	Model   string
}

var validProviders = map[string]bool{
	"deepseek": true,
	"openai":   true,
	"mock":     true,
}

var validOutlierMethods = map[string]bool{
	"iqr":    true,
	"zscore": true,
}

// Load reads configuration from environment variables and returns a validated Config.
// Returns an error with a descriptive message if any required value is missing or invalid.
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port: envInt("DOCPIPE_PORT", 8080),
			Env:  envString("DOCPIPE_ENV", "development"),
		},
		Database: DatabaseConfig{
			URL:             os.Getenv("DATABASE_URL"),
			MaxOpenConns:    envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    envInt("DATABASE_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: envDuration("DATABASE_CONN_MAX_LIFETIME", 5*time.Minute),
		},
		Redis: RedisConfig{
			URL: os.Getenv("REDIS_URL"),
		},
		Blob: BlobConfig{
			Dir: envString("BLOB_DIR", "data/blobs"),
		},
		Upload: UploadConfig{
			MaxBytes: int64(envInt("UPLOAD_MAX_BYTES", 50*1024*1024)),
		},
		Cleaning: CleaningConfig{
			InferenceRatio: envFloat("CLEANING_INFERENCE_RATIO", 0.9),
			MaxCategories:  envInt("CLEANING_MAX_CATEGORIES", 20),
			OutlierMethod:  envString("CLEANING_OUTLIER_METHOD", "iqr"),
			IQRFactor:      envFloat("CLEANING_IQR_FACTOR", 1.5),
			ZScoreLimit:    envFloat("CLEANING_ZSCORE_LIMIT", 3.0),
		},
		AI: AIConfig{
			Provider:       os.Getenv("AI_PROVIDER"),
			MaxAttempts:    envInt("AI_MAX_ATTEMPTS", 3),
			RetryBaseDelay: envDuration("AI_RETRY_BASE_DELAY", 500*time.Millisecond),
			RetryMaxDelay:  envDuration("AI_RETRY_MAX_DELAY", 10*time.Second),
			CallTimeout:    envDurationSecs("AI_CALL_TIMEOUT_SECS", 60*time.Second),
			JobDeadline:    envDurationSecs("AI_JOB_DEADLINE_SECS", 5*time.Minute),
			MaxSampleRows:  envInt("AI_MAX_SAMPLE_ROWS", 10),
			MaxPromptChars: envInt("AI_MAX_PROMPT_CHARS", 12000),
			DeepSeek: DeepSeekConfig{
				APIKey:  os.Getenv("DEEPSEEK_API_KEY"),
				BaseURL: envString("DEEPSEEK_BASE_URL", "https://api.deepseek.com"),
				Model:   envString("DEEPSEEK_MODEL", "deepseek-chat"),
			},
			OpenAI: OpenAIConfig{
				APIKey:  os.Getenv("OPENAI_API_KEY"),
				BaseURL: envString("OPENAI_BASE_URL", "https://api.openai.com/v1"),
				Model:   envString("OPENAI_MODEL", "gpt-4o-mini"),
			},
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	if c.Redis.URL == "" {
		return fmt.Errorf("REDIS_URL is required")
	}

	if c.Blob.Dir == "" {
		return fmt.Errorf("BLOB_DIR must not be empty")
	}

	if c.AI.Provider == "" {
		return fmt.Errorf("AI_PROVIDER is required")
	}
	if !validProviders[c.AI.Provider] {
		return fmt.Errorf("AI_PROVIDER must be one of deepseek, openai, mock; got %q", c.AI.Provider)
	}
	if c.AI.Provider == "deepseek" && c.AI.DeepSeek.APIKey == "" {
		return fmt.Errorf("DEEPSEEK_API_KEY is required when AI_PROVIDER is deepseek")
	}
	if c.AI.Provider == "openai" && c.AI.OpenAI.APIKey == "" {
		return fmt.Errorf("OPENAI_API_KEY is required when AI_PROVIDER is openai")
	}
	if c.AI.DeepSeek.BaseURL != "" && !hasHTTPScheme(c.AI.DeepSeek.BaseURL) {
		return fmt.Errorf("DEEPSEEK_BASE_URL must start with http:// or https://, got %q", c.AI.DeepSeek.BaseURL)
	}
	if c.AI.MaxAttempts < 1 {
		return fmt.Errorf("AI_MAX_ATTEMPTS must be at least 1, got %d", c.AI.MaxAttempts)
	}

	if c.Cleaning.InferenceRatio <= 0 || c.Cleaning.InferenceRatio > 1 {
		return fmt.Errorf("CLEANING_INFERENCE_RATIO must be in (0, 1], got %g", c.Cleaning.InferenceRatio)
	}
	if !validOutlierMethods[c.Cleaning.OutlierMethod] {
		return fmt.Errorf("CLEANING_OUTLIER_METHOD must be iqr or zscore, got %q", c.Cleaning.OutlierMethod)
	}

	return nil
}

func hasHTTPScheme(u string) bool {
	return strings.HasPrefix(u, "http://") || strings.HasPrefix(u, "https://")
}

func envString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int) int {
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

func envFloat(key string, defaultVal float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return defaultVal
	}
	return f
}

func envDuration(key string, defaultVal time.Duration) time.Duration {
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

func envDurationSecs(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	secs, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return time.Duration(secs) * time.Second
}
