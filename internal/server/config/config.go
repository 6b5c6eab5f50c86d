package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
)

// Storage backends.
const (
	BackendFilesystem = "filesystem"
	BackendS3         = "s3"
)

type Config struct {
	Port        string `env:"PORT" env-default:"8080"`
	DatabaseURL string `env:"DATABASE_URL" env-required:"true"`
	JWTSecret   string `env:"JWT_SECRET" env-required:"true"`
	LogLevel    string `env:"LOG_LEVEL" env-default:"info"`

	StorageBackend string `env:"STORAGE_BACKEND" env-default:"filesystem"`
	StoragePath    string `env:"STORAGE_PATH" env-default:"./uploads"`
	S3             S3Config

	AdminPassword     string        `env:"ADMIN_PASSWORD" env-default:"admin123"`
	UploadRequireAuth bool          `env:"UPLOAD_REQUIRE_AUTH" env-default:"false"`
	MaxUploadBytes    int64         `env:"MAX_UPLOAD_BYTES" env-default:"0"`
	CORSOrigins       []string      `env:"CORS_ORIGINS" env-separator:"," env-default:"http://localhost:5173"`
	RateLimitRPS      float64       `env:"RATE_LIMIT_RPS" env-default:"10"`
	RateLimitBurst    int           `env:"RATE_LIMIT_BURST" env-default:"20"`
	SweepInterval     time.Duration `env:"SWEEP_INTERVAL" env-default:"1h"`
	SweepGrace        time.Duration `env:"SWEEP_GRACE" env-default:"24h"`
}

// S3Config holds settings for the S3-compatible storage backend.
type S3Config struct {
	Bucket    string `env:"S3_BUCKET"`
	Region    string `env:"S3_REGION" env-default:"us-east-1"`
	Endpoint  string `env:"S3_ENDPOINT"`
	AccessKey string `env:"S3_ACCESS_KEY"`
	SecretKey string `env:"S3_SECRET_KEY"`
	Prefix    string `env:"S3_PREFIX" env-default:"uploads/"`
}

// Load reads the optional dotenv files (".env" when none are given) into the
// process environment and then parses the environment into a Config.
// Missing required values are returned as an error.
func Load(envFiles ...string) (*Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to load %s: %w", f, err)
		}
	}

	var cfg Config
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("failed to read environment: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	switch c.StorageBackend {
	case BackendFilesystem:
		if c.StoragePath == "" {
			return errors.New("STORAGE_PATH must not be empty")
		}
	case BackendS3:
		if c.S3.Bucket == "" {
			return errors.New("S3_BUCKET is required for the s3 storage backend")
		}
	default:
		return fmt.Errorf("unknown STORAGE_BACKEND %q", c.StorageBackend)
	}
	if c.MaxUploadBytes < 0 {
		return errors.New("MAX_UPLOAD_BYTES must not be negative")
	}
	if c.RateLimitRPS <= 0 || c.RateLimitBurst <= 0 {
		return errors.New("rate limit settings must be positive")
	}
	return nil
}

// SlogLevel converts LogLevel to a slog.Level, defaulting to info.
func (c *Config) SlogLevel() slog.Level {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return lvl
}

// LogValue keeps secrets out of the logs.
func (c *Config) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("port", c.Port),
		slog.String("storage_backend", c.StorageBackend),
		slog.String("storage_path", c.StoragePath),
		slog.String("s3_bucket", c.S3.Bucket),
		slog.Bool("upload_require_auth", c.UploadRequireAuth),
		slog.Int64("max_upload_bytes", c.MaxUploadBytes),
		slog.Any("cors_origins", c.CORSOrigins),
		slog.Duration("sweep_interval", c.SweepInterval),
		slog.String("log_level", c.LogLevel),
	)
}
