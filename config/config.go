// Package config loads service configuration from defaults, an optional YAML
// file and environment variables, in that order of precedence (env wins).
package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the full service configuration
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	Storage    StorageConfig    `yaml:"storage"`
	Embedding  EmbeddingConfig  `yaml:"embedding"`
	Index      IndexConfig      `yaml:"index"`
	Chunking   ChunkingConfig   `yaml:"chunking"`
	Generation GenerationConfig `yaml:"generation"`
	Search     SearchConfig     `yaml:"search"`
	Log        LogConfig        `yaml:"log"`
	DataDir    string           `yaml:"data_dir"`
}

type ServerConfig struct {
	Port    string `yaml:"port"`
	GinMode string `yaml:"gin_mode"`
}

type DatabaseConfig struct {
	URL string `yaml:"url"`
}

type StorageConfig struct {
	Type         string `yaml:"type"` // local | s3
	LocalPath    string `yaml:"local_path"`
	S3Bucket     string `yaml:"s3_bucket"`
	S3Region     string `yaml:"s3_region"`
	AWSAccessKey string `yaml:"-"`
	AWSSecretKey string `yaml:"-"`
}

type EmbeddingConfig struct {
	Provider         string        `yaml:"provider"` // gemini | openai | tfidf | hugot
	Model            string        `yaml:"model"`
	Dimensions       int           `yaml:"dimensions"`
	BatchSize        int           `yaml:"batch_size"`
	FailureThreshold int           `yaml:"failure_threshold"`
	Timeout          time.Duration `yaml:"timeout"`
	ModelDir         string        `yaml:"model_dir"` // hugot model cache
	GeminiAPIKey     string        `yaml:"-"`
	OpenAIAPIKey     string        `yaml:"-"`
}

type IndexConfig struct {
	Backend          string `yaml:"backend"` // memory | pgvector | qdrant
	QdrantURL        string `yaml:"qdrant_url"`
	QdrantAPIKey     string `yaml:"-"`
	CollectionPrefix string `yaml:"collection_prefix"`
	BuildOnStart     bool   `yaml:"build_on_start"`
}

type ChunkingConfig struct {
	WindowSize int `yaml:"window_size"`
	Overlap    int `yaml:"overlap"`
}

type GenerationConfig struct {
	Provider          string        `yaml:"provider"` // gemini | openai | none
	Model             string        `yaml:"model"`
	Temperature       float32       `yaml:"temperature"`
	MaxTokens         int           `yaml:"max_tokens"`
	TopK              int           `yaml:"top_k"`
	CallTimeout       time.Duration `yaml:"call_timeout"`
	QueryBudget       time.Duration `yaml:"query_budget"`
	MinStrategyBudget time.Duration `yaml:"min_strategy_budget"`
	GeminiAPIKey      string        `yaml:"-"`
	OpenAIAPIKey      string        `yaml:"-"`
}

type SearchConfig struct {
	DefaultLimit int           `yaml:"default_limit"`
	MaxLimit     int           `yaml:"max_limit"`
	DefaultMode  string        `yaml:"default_mode"` // lexical | semantic | hybrid
	CallTimeout  time.Duration `yaml:"call_timeout"`
	QueryBudget  time.Duration `yaml:"query_budget"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Pretty bool   `yaml:"pretty"`
}

// Default returns the configuration used when nothing is overridden
func Default() *Config {
	return &Config{
		Server: ServerConfig{Port: "8080", GinMode: "debug"},
		Storage: StorageConfig{
			Type:      "local",
			LocalPath: "./storage/snapshots",
			S3Region:  "us-east-1",
		},
		Embedding: EmbeddingConfig{
			Provider:         "tfidf",
			Dimensions:       768,
			BatchSize:        100,
			FailureThreshold: 3,
			Timeout:          30 * time.Second,
			ModelDir:         "./models",
		},
		Index: IndexConfig{
			Backend:          "memory",
			QdrantURL:        "http://localhost:6333",
			CollectionPrefix: "jurisgpt_legal",
			BuildOnStart:     true,
		},
		Chunking: ChunkingConfig{WindowSize: 1000, Overlap: 200},
		Generation: GenerationConfig{
			Provider:          "gemini",
			Temperature:       0.3,
			MaxTokens:         4000,
			TopK:              5,
			CallTimeout:       30 * time.Second,
			QueryBudget:       60 * time.Second,
			MinStrategyBudget: 2 * time.Second,
		},
		Search:  SearchConfig{
			DefaultLimit: 20,
			MaxLimit:     100,
			DefaultMode:  "lexical",
			CallTimeout:  10 * time.Second,
			QueryBudget:  30 * time.Second,
		},
		Log:     LogConfig{Level: "info"},
		DataDir: "./data/datasets",
	}
}

// Load reads .env, the optional CONFIG_FILE and the environment
func Load() (*Config, error) {
	// Try current directory first, then project root (relative to cmd/<tool>/)
	if err := godotenv.Load(); err != nil {
		if err := godotenv.Load("../../.env"); err != nil {
			log.Printf("Warning: No .env file found, using environment variables")
		}
	}

	cfg := Default()
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.MergeFile(path); err != nil {
			return nil, err
		}
	}
	cfg.ApplyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// MergeFile overlays a YAML file onto the current values
func (c *Config) MergeFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

// ApplyEnv overrides values with any environment variables that are set
func (c *Config) ApplyEnv() {
	c.Server.Port = getEnv("PORT", c.Server.Port)
	c.Server.GinMode = getEnv("GIN_MODE", c.Server.GinMode)

	c.Database.URL = getEnv("DATABASE_URL", c.Database.URL)

	c.Storage.Type = getEnv("STORAGE_TYPE", c.Storage.Type)
	c.Storage.LocalPath = getEnv("STORAGE_LOCAL_PATH", c.Storage.LocalPath)
	c.Storage.S3Bucket = getEnv("AWS_S3_BUCKET", c.Storage.S3Bucket)
	c.Storage.S3Region = getEnv("AWS_REGION", c.Storage.S3Region)
	c.Storage.AWSAccessKey = getEnv("AWS_ACCESS_KEY_ID", c.Storage.AWSAccessKey)
	c.Storage.AWSSecretKey = getEnv("AWS_SECRET_ACCESS_KEY", c.Storage.AWSSecretKey)

	c.Embedding.Provider = getEnv("EMBEDDING_PROVIDER", c.Embedding.Provider)
	c.Embedding.Model = getEnv("EMBEDDING_MODEL", c.Embedding.Model)
	c.Embedding.Dimensions = getEnvInt("EMBEDDING_DIMENSIONS", c.Embedding.Dimensions)
	c.Embedding.BatchSize = getEnvInt("EMBEDDING_BATCH_SIZE", c.Embedding.BatchSize)
	c.Embedding.FailureThreshold = getEnvInt("EMBEDDING_FAILURE_THRESHOLD", c.Embedding.FailureThreshold)
	c.Embedding.Timeout = getEnvDuration("EMBEDDING_TIMEOUT", c.Embedding.Timeout)
	c.Embedding.ModelDir = getEnv("EMBEDDING_MODEL_DIR", c.Embedding.ModelDir)
	c.Embedding.GeminiAPIKey = getEnv("GEMINI_API_KEY", c.Embedding.GeminiAPIKey)
	c.Embedding.OpenAIAPIKey = getEnv("OPENAI_API_KEY", c.Embedding.OpenAIAPIKey)

	c.Index.Backend = getEnv("INDEX_BACKEND", c.Index.Backend)
	c.Index.QdrantURL = getEnv("QDRANT_URL", c.Index.QdrantURL)
	c.Index.QdrantAPIKey = getEnv("QDRANT_API_KEY", c.Index.QdrantAPIKey)
	c.Index.CollectionPrefix = getEnv("INDEX_COLLECTION_PREFIX", c.Index.CollectionPrefix)
	c.Index.BuildOnStart = getEnvBool("INDEX_BUILD_ON_START", c.Index.BuildOnStart)

	c.Chunking.WindowSize = getEnvInt("CHUNK_WINDOW_SIZE", c.Chunking.WindowSize)
	c.Chunking.Overlap = getEnvInt("CHUNK_OVERLAP", c.Chunking.Overlap)

	c.Generation.Provider = getEnv("GENERATION_PROVIDER", c.Generation.Provider)
	c.Generation.Model = getEnv("GENERATION_MODEL", c.Generation.Model)
	c.Generation.Temperature = float32(getEnvFloat("GENERATION_TEMPERATURE", float64(c.Generation.Temperature)))
	c.Generation.MaxTokens = getEnvInt("GENERATION_MAX_TOKENS", c.Generation.MaxTokens)
	c.Generation.TopK = getEnvInt("RAG_TOP_K", c.Generation.TopK)
	c.Generation.CallTimeout = getEnvDuration("GENERATION_CALL_TIMEOUT", c.Generation.CallTimeout)
	c.Generation.QueryBudget = getEnvDuration("ANSWER_QUERY_BUDGET", c.Generation.QueryBudget)
	c.Generation.MinStrategyBudget = getEnvDuration("ANSWER_MIN_STRATEGY_BUDGET", c.Generation.MinStrategyBudget)
	c.Generation.GeminiAPIKey = getEnv("GEMINI_API_KEY", c.Generation.GeminiAPIKey)
	c.Generation.OpenAIAPIKey = getEnv("OPENAI_API_KEY", c.Generation.OpenAIAPIKey)

	c.Search.DefaultLimit = getEnvInt("SEARCH_DEFAULT_LIMIT", c.Search.DefaultLimit)
	c.Search.MaxLimit = getEnvInt("SEARCH_MAX_LIMIT", c.Search.MaxLimit)
	c.Search.DefaultMode = getEnv("SEARCH_DEFAULT_MODE", c.Search.DefaultMode)
	c.Search.CallTimeout = getEnvDuration("SEARCH_CALL_TIMEOUT", c.Search.CallTimeout)
	c.Search.QueryBudget = getEnvDuration("SEARCH_QUERY_BUDGET", c.Search.QueryBudget)

	c.Log.Level = getEnv("LOG_LEVEL", c.Log.Level)
	c.Log.Pretty = getEnvBool("LOG_PRETTY", c.Log.Pretty)

	c.DataDir = getEnv("DATA_DIR", c.DataDir)
}

// Validate checks that the configuration is usable
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port == "" {
		errs = append(errs, errors.New("server port is required"))
	}
	if c.Chunking.WindowSize <= 0 || c.Chunking.Overlap < 0 || c.Chunking.Overlap >= c.Chunking.WindowSize {
		errs = append(errs, fmt.Errorf("invalid chunking window %d/%d", c.Chunking.WindowSize, c.Chunking.Overlap))
	}
	if c.Embedding.BatchSize <= 0 {
		errs = append(errs, errors.New("embedding batch size must be positive"))
	}
	if !oneOf(c.Embedding.Provider, "gemini", "openai", "tfidf", "hugot") {
		errs = append(errs, fmt.Errorf("unknown embedding provider: %s", c.Embedding.Provider))
	}
	if !oneOf(c.Generation.Provider, "gemini", "openai", "none") {
		errs = append(errs, fmt.Errorf("unknown generation provider: %s", c.Generation.Provider))
	}
	switch c.Index.Backend {
	case "memory":
	case "pgvector":
		if c.Database.URL == "" {
			errs = append(errs, errors.New("DATABASE_URL is required for the pgvector index backend"))
		}
	case "qdrant":
		if c.Index.QdrantURL == "" {
			errs = append(errs, errors.New("QDRANT_URL is required for the qdrant index backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown index backend: %s", c.Index.Backend))
	}
	switch c.Storage.Type {
	case "local":
	case "s3":
		if c.Storage.S3Bucket == "" {
			errs = append(errs, errors.New("AWS_S3_BUCKET environment variable is required for S3 storage"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown storage type: %s", c.Storage.Type))
	}
	if c.Search.DefaultLimit <= 0 || c.Search.MaxLimit < c.Search.DefaultLimit {
		errs = append(errs, fmt.Errorf("invalid search limits %d/%d", c.Search.DefaultLimit, c.Search.MaxLimit))
	}
	if !oneOf(c.Search.DefaultMode, "lexical", "semantic", "hybrid") {
		errs = append(errs, fmt.Errorf("unknown search mode: %s", c.Search.DefaultMode))
	}

	return errors.Join(errs...)
}

func oneOf(v string, options ...string) bool {
	for _, o := range options {
		if v == o {
			return true
		}
	}
	return false
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
		log.Printf("Warning: invalid integer for %s: %q", key, v)
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
		log.Printf("Warning: invalid float for %s: %q", key, v)
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(strings.TrimSpace(v)); err == nil {
			return b
		}
		log.Printf("Warning: invalid boolean for %s: %q", key, v)
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
		log.Printf("Warning: invalid duration for %s: %q", key, v)
	}
	return fallback
}

// IsPlaceholderKey reports whether an API key is missing or a template value
func IsPlaceholderKey(key string) bool {
	k := strings.ToLower(strings.TrimSpace(key))
	switch {
	case k == "", k == "sk-placeholder", k == "your-api-key":
		return true
	case strings.HasPrefix(k, "your_"), strings.HasPrefix(k, "your-"):
		return true
	}
	return false
}
