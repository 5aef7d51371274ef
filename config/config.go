package config

import (
	"errors"
	"os"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Log      LogConfig      `yaml:"log"`
	Store    StoreConfig    `yaml:"store"`
	Storage  StorageConfig  `yaml:"storage"`
	Minio    MinioConfig    `yaml:"minio"`
	Mineru   MineruConfig   `yaml:"mineru"`
	AI       AIConfig       `yaml:"ai"`
	Analysis AnalysisConfig `yaml:"analysis"`
	Upload   UploadConfig   `yaml:"upload"`
	Auth     AuthConfig     `yaml:"auth"`
	Users    []User         `yaml:"users"`
}

type ServerConfig struct {
	Port        int      `yaml:"port"`
	CORSOrigins []string `yaml:"cors_origins"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// StoreConfig selects the contract repository
type StoreConfig struct {
	Driver       string `yaml:"driver"` // memory, postgres
	MaxContracts int    `yaml:"max_contracts"`
	DatabaseURL  string `yaml:"database_url"`
}

// StorageConfig selects where uploaded files live
type StorageConfig struct {
	Driver   string `yaml:"driver"` // local, minio
	LocalDir string `yaml:"local_dir"`
}

type MinioConfig struct {
	Endpoint   string `yaml:"endpoint"`
	AccessKey  string `yaml:"access_key"`
	SecretKey  string `yaml:"secret_key"`
	Bucket     string `yaml:"bucket"`
	UseSSL     bool   `yaml:"use_ssl"`
	Region     string `yaml:"region"`
	ExpireDays int    `yaml:"expire_days"`
}

type MineruConfig struct {
	Enabled      bool          `yaml:"enabled"`
	APIURL       string        `yaml:"api_url"`
	APIToken     string        `yaml:"api_token"`
	ModelVersion string        `yaml:"model_version"`
	PollInterval time.Duration `yaml:"poll_interval"`
	MaxPolls     int           `yaml:"max_polls"`
}

// AIConfig configures the completion provider
type AIConfig struct {
	Provider string        `yaml:"provider"` // anthropic, openai
	APIKey   string        `yaml:"api_key"`
	BaseURL  string        `yaml:"base_url"`
	Model    string        `yaml:"model"`
	Timeout  time.Duration `yaml:"timeout"`
}

// AnalysisConfig controls where analysis runs
type AnalysisConfig struct {
	Async     bool `yaml:"async"`
	Workers   int  `yaml:"workers"`
	QueueSize int  `yaml:"queue_size"`
}

type UploadConfig struct {
	MaxSizeMB int `yaml:"max_size_mb"`
	// RatePerMinute limits uploads and reanalyses per tenant
	RatePerMinute int `yaml:"rate_per_minute"`
}

type AuthConfig struct {
	JWTSecret        string `yaml:"jwt_secret"`
	TokenExpireHours int    `yaml:"token_expire_hours"`
}

type User struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Tenant   string `yaml:"tenant"`
}

const (
	ProviderAnthropic = "anthropic"
	ProviderOpenAI    = "openai"
)

var defaultModels = map[string]string{
	ProviderAnthropic: "claude-haiku-4-5-20251001",
	ProviderOpenAI:    "gpt-3.5-turbo",
}

func Load(path string) (*Config, error) {
	// .env is optional, production injects real environment
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	cfg.Analysis.Async = true
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	cfg.applyEnv()
	cfg.applyDefaults()

	return &cfg, nil
}

// applyEnv lets secrets come from the environment instead of the file
func (c *Config) applyEnv() {
	override(&c.Store.DatabaseURL, "DATABASE_URL")
	override(&c.Auth.JWTSecret, "JWT_SECRET")
	override(&c.Minio.AccessKey, "MINIO_ACCESS_KEY")
	override(&c.Minio.SecretKey, "MINIO_SECRET_KEY")
	override(&c.Mineru.APIToken, "MINERU_API_TOKEN")
	override(&c.AI.APIKey, "AI_API_KEY")

	if c.AI.APIKey == "" {
		switch c.AI.Provider {
		case ProviderOpenAI:
			c.AI.APIKey = os.Getenv("OPENAI_API_KEY")
		default:
			c.AI.APIKey = os.Getenv("ANTHROPIC_API_KEY")
		}
	}
}

func override(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
	if c.Store.Driver == "" {
		c.Store.Driver = "memory"
	}
	if c.Storage.Driver == "" {
		c.Storage.Driver = "local"
	}
	if c.Storage.LocalDir == "" {
		c.Storage.LocalDir = "./media"
	}
	if c.Minio.ExpireDays == 0 {
		c.Minio.ExpireDays = 7
	}
	if c.Mineru.ModelVersion == "" {
		c.Mineru.ModelVersion = "vlm"
	}
	if c.Mineru.PollInterval == 0 {
		c.Mineru.PollInterval = 5 * time.Second
	}
	if c.Mineru.MaxPolls == 0 {
		c.Mineru.MaxPolls = 60
	}
	if c.AI.Provider == "" {
		c.AI.Provider = ProviderAnthropic
	}
	if c.AI.Model == "" {
		c.AI.Model = defaultModels[c.AI.Provider]
	}
	if c.AI.BaseURL == "" && c.AI.Provider == ProviderOpenAI {
		c.AI.BaseURL = "https://api.openai.com/v1"
	}
	if c.AI.Timeout == 0 {
		c.AI.Timeout = 60 * time.Second
	}
	if c.Analysis.Workers == 0 {
		c.Analysis.Workers = 2
	}
	if c.Analysis.QueueSize == 0 {
		c.Analysis.QueueSize = 100
	}
	if c.Upload.MaxSizeMB == 0 {
		c.Upload.MaxSizeMB = 10
	}
	if c.Upload.RatePerMinute == 0 {
		c.Upload.RatePerMinute = 20
	}
	if c.Auth.TokenExpireHours == 0 {
		c.Auth.TokenExpireHours = 24
	}
}

// Validate checks the settings that the process cannot start without
func (c *Config) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Store, validation.By(func(any) error {
			return validation.ValidateStruct(&c.Store,
				validation.Field(&c.Store.Driver, validation.Required, validation.In("memory", "postgres")),
				validation.Field(&c.Store.DatabaseURL, validation.When(c.Store.Driver == "postgres", validation.Required)),
			)
		})),
		validation.Field(&c.Storage, validation.By(func(any) error {
			return validation.ValidateStruct(&c.Storage,
				validation.Field(&c.Storage.Driver, validation.Required, validation.In("local", "minio")),
			)
		})),
		validation.Field(&c.Minio, validation.By(func(any) error {
			if c.Storage.Driver != "minio" {
				return nil
			}
			return validation.ValidateStruct(&c.Minio,
				validation.Field(&c.Minio.Endpoint, validation.Required),
				validation.Field(&c.Minio.Bucket, validation.Required),
			)
		})),
		validation.Field(&c.Mineru, validation.By(func(any) error {
			if !c.Mineru.Enabled {
				return nil
			}
			if c.Storage.Driver != "minio" {
				return errors.New("mineru needs minio storage to publish documents")
			}
			return validation.ValidateStruct(&c.Mineru,
				validation.Field(&c.Mineru.APIURL, validation.Required),
				validation.Field(&c.Mineru.APIToken, validation.Required),
			)
		})),
		validation.Field(&c.AI, validation.By(func(any) error {
			return validation.ValidateStruct(&c.AI,
				validation.Field(&c.AI.Provider, validation.Required, validation.In(ProviderAnthropic, ProviderOpenAI)),
				validation.Field(&c.AI.APIKey, validation.Required),
				validation.Field(&c.AI.Model, validation.Required),
			)
		})),
		validation.Field(&c.Auth, validation.By(func(any) error {
			return validation.ValidateStruct(&c.Auth,
				validation.Field(&c.Auth.JWTSecret, validation.Required),
			)
		})),
	)
}

// MaxUploadBytes is the upload size limit in bytes
func (c *Config) MaxUploadBytes() int64 {
	return int64(c.Upload.MaxSizeMB) * 1024 * 1024
}

// FindUser finds a user by username
func (c *Config) FindUser(username string) *User {
	for i := range c.Users {
		if c.Users[i].Username == username {
			return &c.Users[i]
		}
	}
	return nil
}
