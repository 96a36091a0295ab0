package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// ConfigPath is the default config location relative to the working directory.
const ConfigPath = "config.yaml"

// FileConfig represents configuration loaded from YAML.
type FileConfig struct {
	Port     string `yaml:"port"`
	LogLevel string `yaml:"logLevel"`

	DatabaseURL string `yaml:"databaseURL"`

	RedisAddr     string `yaml:"redisAddr"`
	RedisPassword string `yaml:"redisPassword"`

	AIBaseURL string `yaml:"aiBaseURL"`
	AIAPIKey  string `yaml:"aiAPIKey"`
	AIModel   string `yaml:"aiModel"`

	TokenSecret   string `yaml:"tokenSecret"`
	TokenIssuer   string `yaml:"tokenIssuer"`
	TokenAudience string `yaml:"tokenAudience"`

	GeneratePerMinute int `yaml:"generatePerMinute"`
	MaxUploadMB       int `yaml:"maxUploadMB"`

	MinioEndpoint  string `yaml:"minioEndpoint"`
	MinioAccessKey string `yaml:"minioAccessKey"`
	MinioSecretKey string `yaml:"minioSecretKey"`
	MinioBucket    string `yaml:"minioBucket"`
	MinioUseSSL    bool   `yaml:"minioUseSSL"`
}

// Load reads config from path (defaults to config.yaml).
func Load(path string) (FileConfig, error) {
	cfg := FileConfig{}
	if path == "" {
		path = ConfigPath
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	// Override with environment variables
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.DatabaseURL = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.RedisAddr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.RedisPassword = v
	}
	if v := os.Getenv("NOTEWISE_AI_BASE_URL"); v != "" {
		cfg.AIBaseURL = v
	}
	if v := os.Getenv("NOTEWISE_AI_API_KEY"); v != "" {
		cfg.AIAPIKey = v
	}
	if v := os.Getenv("NOTEWISE_AI_MODEL"); v != "" {
		cfg.AIModel = v
	}
	if v := os.Getenv("NOTEWISE_TOKEN_SECRET"); v != "" {
		cfg.TokenSecret = v
	}
	if v := os.Getenv("NOTEWISE_TOKEN_ISSUER"); v != "" {
		cfg.TokenIssuer = v
	}
	if v := os.Getenv("NOTEWISE_TOKEN_AUDIENCE"); v != "" {
		cfg.TokenAudience = v
	}
	if v := os.Getenv("NOTEWISE_GENERATE_PER_MINUTE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.GeneratePerMinute = n
		}
	}
	if v := os.Getenv("NOTEWISE_MAX_UPLOAD_MB"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.MaxUploadMB = n
		}
	}
	if v := os.Getenv("NOTEWISE_MINIO_ENDPOINT"); v != "" {
		cfg.MinioEndpoint = v
	}
	if v := os.Getenv("NOTEWISE_MINIO_ACCESS_KEY"); v != "" {
		cfg.MinioAccessKey = v
	}
	if v := os.Getenv("NOTEWISE_MINIO_SECRET_KEY"); v != "" {
		cfg.MinioSecretKey = v
	}
	if v := os.Getenv("NOTEWISE_MINIO_BUCKET"); v != "" {
		cfg.MinioBucket = v
	}
	if v := os.Getenv("NOTEWISE_MINIO_USE_SSL"); v != "" {
		if enabled, err := strconv.ParseBool(v); err == nil {
			cfg.MinioUseSSL = enabled
		}
	}
	if err := validateConfig(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func validateConfig(cfg FileConfig) error {
	if cfg.Port == "" {
		return errors.New("config: port is required (set in config.yaml)")
	}
	if cfg.DatabaseURL == "" {
		return errors.New("config: databaseURL is required (set in config.yaml or DATABASE_URL)")
	}
	if cfg.RedisAddr == "" {
		return errors.New("config: redisAddr is required (set in config.yaml or REDIS_ADDR)")
	}
	if cfg.AIBaseURL == "" {
		return errors.New("config: aiBaseURL is required (set in config.yaml or NOTEWISE_AI_BASE_URL)")
	}
	if cfg.AIAPIKey == "" {
		return errors.New("config: aiAPIKey is required (set in config.yaml or NOTEWISE_AI_API_KEY)")
	}
	if cfg.AIModel == "" {
		return errors.New("config: aiModel is required (set in config.yaml)")
	}
	if cfg.TokenSecret == "" {
		return errors.New("config: tokenSecret is required (set in config.yaml or NOTEWISE_TOKEN_SECRET)")
	}
	if cfg.GeneratePerMinute < 0 {
		return errors.New("config: generatePerMinute must be >= 0")
	}
	if cfg.MaxUploadMB < 0 {
		return errors.New("config: maxUploadMB must be >= 0")
	}
	if cfg.MinioEndpoint != "" {
		if cfg.MinioAccessKey == "" || cfg.MinioSecretKey == "" || cfg.MinioBucket == "" {
			return errors.New("config: minio requires minioAccessKey, minioSecretKey, and minioBucket")
		}
	}
	return nil
}
