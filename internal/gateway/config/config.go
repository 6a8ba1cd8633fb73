package config

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Port       string           `yaml:"port"`
	Env        string           `yaml:"env"`
	LogLevel   string           `yaml:"log_level"`
	LLM        LLMConfig        `yaml:"llm"`
	Collection CollectionConfig `yaml:"collection"`
	Session    SessionConfig    `yaml:"session"`
	CORS       CORSConfig       `yaml:"cors"`
}

type LLMConfig struct {
	Provider     string        `yaml:"provider"`
	Model        string        `yaml:"model"`
	GeminiAPIKey string        `yaml:"gemini_api_key"`
	OpenAIAPIKey string        `yaml:"openai_api_key"`
	RPS          float64       `yaml:"rps"`
	Burst        int           `yaml:"burst"`
	MaxAttempts  int           `yaml:"max_attempts"`
	Timeout      time.Duration `yaml:"timeout"`
	// PromptDir, when set, receives a log of every prompt and reply.
	PromptDir    string        `yaml:"prompt_dir"`
}

// APIKey returns the credential for the selected provider.
func (c LLMConfig) APIKey() string {
	if strings.EqualFold(c.Provider, "openai") {
		return c.OpenAIAPIKey
	}
	return c.GeminiAPIKey
}

// Collection store backends.
const (
	StoreMemory   = "memory"
	StoreFile     = "file"
	StorePostgres = "postgres"
	StoreS3       = "s3"
)

type CollectionConfig struct {
	// Store is one of memory, file, postgres, s3.
	Store       string        `yaml:"store"`
	Path        string        `yaml:"path"`
	DatabaseURL string        `yaml:"database_url"`
	S3          S3Config      `yaml:"s3"`
	CacheTTL    time.Duration `yaml:"cache_ttl"`
}

type S3Config struct {
	Endpoint  string `yaml:"endpoint"`
	Region    string `yaml:"region"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Bucket    string `yaml:"bucket"`
	UseSSL    bool   `yaml:"use_ssl"`
}

type SessionConfig struct {
	Max           int           `yaml:"max"`
	PacingDelay   time.Duration `yaml:"pacing_delay"`
	ToastDuration time.Duration `yaml:"toast_duration"`
	StampDuration time.Duration `yaml:"stamp_duration"`
}

type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
}

// Load reads .env, the command line and the environment.
func Load() (*Config, error) {
	return LoadArgs(os.Args[1:])
}

// LoadArgs is Load with an explicit argument list. Precedence, lowest
// first: built-in defaults, the YAML file, the environment, flags.
func LoadArgs(args []string) (*Config, error) {
	_ = godotenv.Load()

	fs := flag.NewFlagSet("gateway", flag.ContinueOnError)
	port := fs.String("port", "", "server port")
	configPath := fs.String("config", "", "optional YAML config file")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	cfg := defaults()
	path := firstNonEmpty(strings.TrimSpace(*configPath), strings.TrimSpace(os.Getenv("SHIYIN_CONFIG")))
	if path != "" {
		if err := loadFile(path, &cfg); err != nil {
			return nil, err
		}
	}
	if err := applyEnv(&cfg); err != nil {
		return nil, err
	}
	if *port != "" {
		cfg.Port = *port
	}
	cfg.Port = normalizePort(cfg.Port)
	cfg.Collection.Store = strings.ToLower(strings.TrimSpace(cfg.Collection.Store))
	if strings.EqualFold(cfg.Env, "local") {
		applyLocal(&cfg)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func defaults() Config {
	return Config{
		Port:     ":8081",
		Env:      "local",
		LogLevel: "info",
		LLM: LLMConfig{
			Provider:    "gemini",
			RPS:         1,
			Burst:       2,
			MaxAttempts: 3,
			Timeout:     60 * time.Second,
		},
		Collection: CollectionConfig{
			Store:    StoreMemory,
			Path:     "data/collections",
			CacheTTL: 5 * time.Minute,
			S3: S3Config{
				Region: "us-east-1",
				Bucket: "shiyin-collections",
				UseSSL: true,
			},
		},
		Session: SessionConfig{
			Max:           1024,
			PacingDelay:   2500 * time.Millisecond,
			ToastDuration: 2 * time.Second,
			StampDuration: 600 * time.Millisecond,
		},
	}
}

func loadFile(path string, cfg *Config) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

func applyEnv(cfg *Config) error {
	var errs []error
	str := func(dst *string, keys ...string) {
		for _, k := range keys {
			if v := strings.TrimSpace(os.Getenv(k)); v != "" {
				*dst = v
				return
			}
		}
	}
	dur := func(dst *time.Duration, key string) {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = d
		}
	}
	num := func(dst *int, key string) {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = n
		}
	}

	str(&cfg.Port, "PORT")
	str(&cfg.Env, "APP_ENV")
	str(&cfg.LogLevel, "LOG_LEVEL")

	str(&cfg.LLM.Provider, "LLM_PROVIDER")
	str(&cfg.LLM.Model, "LLM_MODEL")
	str(&cfg.LLM.GeminiAPIKey, "GEMINI_API_KEY", "GOOGLE_API_KEY")
	str(&cfg.LLM.OpenAIAPIKey, "OPENAI_API_KEY")
	if v := strings.TrimSpace(os.Getenv("LLM_RPS")); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("LLM_RPS: %w", err))
		} else {
			cfg.LLM.RPS = f
		}
	}
	num(&cfg.LLM.Burst, "LLM_BURST")
	num(&cfg.LLM.MaxAttempts, "LLM_MAX_ATTEMPTS")
	dur(&cfg.LLM.Timeout, "LLM_TIMEOUT")
	str(&cfg.LLM.PromptDir, "LLM_PROMPT_DIR")

	str(&cfg.Collection.Store, "COLLECTION_STORE")
	str(&cfg.Collection.Path, "COLLECTION_STORE_PATH")
	str(&cfg.Collection.DatabaseURL, "DATABASE_URL")
	dur(&cfg.Collection.CacheTTL, "COLLECTION_CACHE_TTL")
	str(&cfg.Collection.S3.Endpoint, "COLLECTION_S3_ENDPOINT")
	str(&cfg.Collection.S3.Region, "COLLECTION_S3_REGION")
	str(&cfg.Collection.S3.AccessKey, "COLLECTION_S3_ACCESS_KEY", "MINIO_ROOT_USER")
	str(&cfg.Collection.S3.SecretKey, "COLLECTION_S3_SECRET_KEY", "MINIO_ROOT_PASSWORD")
	str(&cfg.Collection.S3.Bucket, "COLLECTION_S3_BUCKET")
	if v := strings.TrimSpace(os.Getenv("COLLECTION_S3_USE_SSL")); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("COLLECTION_S3_USE_SSL: %w", err))
		} else {
			cfg.Collection.S3.UseSSL = b
		}
	}

	num(&cfg.Session.Max, "SESSION_MAX")
	dur(&cfg.Session.PacingDelay, "PACING_DELAY")
	dur(&cfg.Session.ToastDuration, "TOAST_DURATION")
	dur(&cfg.Session.StampDuration, "STAMP_DURATION")

	if v := strings.TrimSpace(os.Getenv("CORS_ALLOWED_ORIGINS")); v != "" {
		cfg.CORS.AllowedOrigins = splitList(v)
	}
	return errors.Join(errs...)
}

func (c Config) validate() error {
	switch c.Collection.Store {
	case StoreMemory, StoreFile, StorePostgres, StoreS3:
	default:
		return fmt.Errorf("unknown collection store %q", c.Collection.Store)
	}
	if c.Collection.Store == StorePostgres && strings.TrimSpace(c.Collection.DatabaseURL) == "" {
		return errors.New("DATABASE_URL is required for the postgres collection store")
	}
	if c.Session.Max <= 0 {
		return fmt.Errorf("session max must be positive, got %d", c.Session.Max)
	}
	return nil
}

func normalizePort(p string) string {
	p = strings.TrimSpace(p)
	if p == "" || strings.Contains(p, ":") {
		return p
	}
	return ":" + p
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
