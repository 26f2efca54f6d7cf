package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/liliang-cn/ragmentor/internal/llm"
)

// Config holds all configuration for ragmentor
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Storage    StorageConfig    `mapstructure:"storage"`
	RAG        RAGConfig        `mapstructure:"rag"`
	Embedding  EmbeddingConfig  `mapstructure:"embedding"`
	LLM        LLMConfig        `mapstructure:"llm"`
	Auth       AuthConfig       `mapstructure:"auth"`
	Lock       LockConfig       `mapstructure:"lock"`
	RateLimit  RateLimitConfig  `mapstructure:"rate_limit"`
	Statistics StatisticsConfig `mapstructure:"statistics"`
	Topics     TopicsConfig     `mapstructure:"topics"`
	Log        LogConfig        `mapstructure:"log"`
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Host         string   `mapstructure:"host"`
	Port         int      `mapstructure:"port"`
	AllowOrigins []string `mapstructure:"allow_origins"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

// StorageConfig selects where uploaded originals are kept
type StorageConfig struct {
	Backend  string      `mapstructure:"backend"`
	LocalDir string      `mapstructure:"local_dir"`
	Drive    DriveConfig `mapstructure:"drive"`
	GCS      GCSConfig   `mapstructure:"gcs"`
}

// DriveConfig holds Google Drive document store configuration
type DriveConfig struct {
	CredentialsFile string `mapstructure:"credentials_file"`
	FolderName      string `mapstructure:"folder_name"`
	ShareDomain     string `mapstructure:"share_domain"`
}

// GCSConfig holds Cloud Storage document store configuration
type GCSConfig struct {
	Bucket          string `mapstructure:"bucket"`
	Prefix          string `mapstructure:"prefix"`
	CredentialsFile string `mapstructure:"credentials_file"`
}

// RAGConfig holds retrieval configuration
type RAGConfig struct {
	DBPath       string `mapstructure:"db_path"`
	Collection   string `mapstructure:"collection"`
	ChunkSize    int    `mapstructure:"chunk_size"`
	ChunkOverlap int    `mapstructure:"chunk_overlap"`
	TopK         int    `mapstructure:"top_k"`
}

// EmbeddingConfig holds embedding model configuration
type EmbeddingConfig struct {
	Provider  string `mapstructure:"provider"`
	Model     string `mapstructure:"model"`
	BaseURL   string `mapstructure:"base_url"`
	APIKey    string `mapstructure:"api_key"`
	BatchSize int    `mapstructure:"batch_size"`
}

// LLMConfig holds LLM provider configuration
type LLMConfig struct {
	Provider     string          `mapstructure:"provider"`
	SystemPrompt string          `mapstructure:"system_prompt"`
	MaxTokens    int             `mapstructure:"max_tokens"`
	Temperature  float64         `mapstructure:"temperature"`
	Anthropic    ProviderSection `mapstructure:"anthropic"`
	Ollama       ProviderSection `mapstructure:"ollama"`
	OpenAI       ProviderSection `mapstructure:"openai"`
	Gemini       ProviderSection `mapstructure:"gemini"`
}

// ProviderSection holds the settings of one LLM backend
type ProviderSection struct {
	APIKey  string `mapstructure:"api_key"`
	Model   string `mapstructure:"model"`
	BaseURL string `mapstructure:"base_url"`
}

// AuthConfig holds bearer credential verification settings
type AuthConfig struct {
	Mode           string `mapstructure:"mode"`
	GoogleClientID string `mapstructure:"google_client_id"`
	JWTSecret      string `mapstructure:"jwt_secret"`
	AutoProvision  bool   `mapstructure:"auto_provision"`
	// AdminEmails are promoted to the admin role when they sign in
	AdminEmails []string `mapstructure:"admin_emails"`
}

// LockConfig holds per-conversation lock settings
type LockConfig struct {
	Backend       string        `mapstructure:"backend"`
	RedisAddr     string        `mapstructure:"redis_addr"`
	RedisPassword string        `mapstructure:"redis_password"`
	TTL           time.Duration `mapstructure:"ttl"`
}

// RateLimitConfig holds rate limiting configuration
type RateLimitConfig struct {
	Enabled         bool `mapstructure:"enabled"`
	RequestsPerHour int  `mapstructure:"requests_per_hour"`
}

// StatisticsConfig holds usage statistics settings
type StatisticsConfig struct {
	TimezoneOffsetHours int `mapstructure:"timezone_offset_hours"`
}

// TopicsConfig points at an optional topic table overriding the built-in one
type TopicsConfig struct {
	File string `mapstructure:"file"`
}

// LogConfig holds logger settings
type LogConfig struct {
	Development bool `mapstructure:"development"`
}

// Load loads configuration from file and environment
func Load(configPath string) (*Config, error) {
	// .env is optional; values already in the environment win
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	v.SetEnvPrefix("RAGMENTOR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.allow_origins", []string{"*"})

	v.SetDefault("database.path", "./data/ragmentor.db")

	v.SetDefault("storage.backend", "local")
	v.SetDefault("storage.local_dir", "./data/documents")
	v.SetDefault("storage.drive.folder_name", "ragmentor")

	v.SetDefault("rag.db_path", "./data/vectors")
	v.SetDefault("rag.collection", "documents")
	v.SetDefault("rag.chunk_size", 1000)
	v.SetDefault("rag.chunk_overlap", 200)
	v.SetDefault("rag.top_k", 4)

	v.SetDefault("embedding.provider", "ollama")
	v.SetDefault("embedding.model", "nomic-embed-text")
	v.SetDefault("embedding.base_url", "http://localhost:11434")
	v.SetDefault("embedding.batch_size", 64)

	v.SetDefault("llm.provider", "ollama")
	v.SetDefault("llm.system_prompt", "You are a helpful software engineering tutor. Answer clearly and concisely, using the provided context when it is relevant.")
	v.SetDefault("llm.max_tokens", 1000)
	v.SetDefault("llm.temperature", 0.7)
	v.SetDefault("llm.anthropic.model", "claude-3-5-haiku-latest")
	v.SetDefault("llm.ollama.model", "llama3.1")
	v.SetDefault("llm.ollama.base_url", "http://localhost:11434")
	v.SetDefault("llm.openai.model", "gpt-4o-mini")
	v.SetDefault("llm.gemini.model", "gemini-1.5-flash")

	v.SetDefault("auth.mode", "jwt")

	v.SetDefault("lock.backend", "memory")
	v.SetDefault("lock.ttl", 2*time.Minute)

	v.SetDefault("rate_limit.enabled", true)
	v.SetDefault("rate_limit.requests_per_hour", 100)

	v.SetDefault("statistics.timezone_offset_hours", -3)
}

// Validate rejects configurations the service cannot start with
func (c *Config) Validate() error {
	if _, err := llm.ParseProvider(c.LLM.Provider); err != nil {
		return err
	}
	switch c.Auth.Mode {
	case "jwt":
		if c.Auth.JWTSecret == "" {
			return errors.New("auth.jwt_secret is required when auth.mode is jwt")
		}
	case "google":
		if c.Auth.GoogleClientID == "" {
			return errors.New("auth.google_client_id is required when auth.mode is google")
		}
	default:
		return fmt.Errorf("unsupported auth.mode %q", c.Auth.Mode)
	}
	if c.RAG.ChunkOverlap >= c.RAG.ChunkSize {
		return fmt.Errorf("rag.chunk_overlap (%d) must be smaller than rag.chunk_size (%d)", c.RAG.ChunkOverlap, c.RAG.ChunkSize)
	}
	return nil
}

// Settings resolves the active provider section into llm.Settings
func (c LLMConfig) Settings() llm.Settings {
	provider, _ := llm.ParseProvider(c.Provider)
	var section ProviderSection
	switch provider {
	case llm.Anthropic:
		section = c.Anthropic
	case llm.Ollama:
		section = c.Ollama
	case llm.OpenAI:
		section = c.OpenAI
	case llm.Gemini:
		section = c.Gemini
	}
	return llm.Settings{
		Provider:    provider,
		APIKey:      section.APIKey,
		Model:       section.Model,
		BaseURL:     section.BaseURL,
		MaxTokens:   c.MaxTokens,
		Temperature: c.Temperature,
	}
}

// Address returns the server address
func (c *Config) Address() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// Location returns the fixed civil timezone used for statistics
func (s StatisticsConfig) Location() *time.Location {
	return time.FixedZone(fmt.Sprintf("UTC%+d", s.TimezoneOffsetHours), s.TimezoneOffsetHours*3600)
}
