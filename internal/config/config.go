package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"portfolio/internal/util"
)

// ConfigPath is the default config file location, overridable with CONFIG_PATH.
const ConfigPath = "config.yaml"

const (
	defaultPort        = "5000"
	defaultFrontendURL = "http://localhost:3000"
	minJWTSecretLen    = 16
)

// MinioConfig configures post image storage. Images are disabled when
// Endpoint is empty.
type MinioConfig struct {
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"accessKey"`
	SecretKey string `yaml:"secretKey"`
	Bucket    string `yaml:"bucket"`
	UseSSL    bool   `yaml:"useSSL"`
	PublicURL string `yaml:"publicURL"`
}

// FileConfig represents configuration loaded from YAML.
type FileConfig struct {
	Port            string      `yaml:"port"`
	DatabaseURL     string      `yaml:"databaseURL"`
	JWTSecret       string      `yaml:"jwtSecret"`
	SessionTTL      string      `yaml:"sessionTTL"`
	JWTIssuer       string      `yaml:"jwtIssuer"`
	JWTAudience     string      `yaml:"jwtAudience"`
	FrontendURL     string      `yaml:"frontendURL"`
	AdminEmails     []string    `yaml:"adminEmails"`
	RedisAddr       string      `yaml:"redisAddr"`
	RedisPassword   string      `yaml:"redisPassword"`
	ProfileCacheTTL string      `yaml:"profileCacheTTL"`
	Minio           MinioConfig `yaml:"minio"`
	MaxUploadBytes  int64       `yaml:"maxUploadBytes"`
	TrustedProxies  []string    `yaml:"trustedProxies"`
	LogLevel        string      `yaml:"logLevel"`
	LogFormat       string      `yaml:"logFormat"`
}

// Load reads config from path (defaults to config.yaml), applies a .env file
// and environment overrides, then validates. A missing default config file
// is not an error so the service can run from the environment alone.
func Load(path string) (FileConfig, error) {
	cfg := FileConfig{}
	explicit := path != ""
	if !explicit {
		path = ConfigPath
	}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config: %w", err)
		}
	case errors.Is(err, os.ErrNotExist) && !explicit:
	default:
		return cfg, fmt.Errorf("read config: %w", err)
	}

	// Existing environment variables win over .env entries.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return cfg, fmt.Errorf("load .env: %w", err)
	}
	if err := applyEnv(&cfg); err != nil {
		return cfg, err
	}
	applyDefaults(&cfg)
	if err := validateConfig(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnv(cfg *FileConfig) error {
	strs := map[string]*string{
		"PORT":              &cfg.Port,
		"DATABASE_URL":      &cfg.DatabaseURL,
		"JWT_SECRET":        &cfg.JWTSecret,
		"SESSION_TTL":       &cfg.SessionTTL,
		"JWT_ISSUER":        &cfg.JWTIssuer,
		"JWT_AUDIENCE":      &cfg.JWTAudience,
		"FRONTEND_URL":      &cfg.FrontendURL,
		"REDIS_ADDR":        &cfg.RedisAddr,
		"REDIS_PASSWORD":    &cfg.RedisPassword,
		"PROFILE_CACHE_TTL": &cfg.ProfileCacheTTL,
		"MINIO_ENDPOINT":    &cfg.Minio.Endpoint,
		"MINIO_ACCESS_KEY":  &cfg.Minio.AccessKey,
		"MINIO_SECRET_KEY":  &cfg.Minio.SecretKey,
		"MINIO_BUCKET":      &cfg.Minio.Bucket,
		"MINIO_PUBLIC_URL":  &cfg.Minio.PublicURL,
		"LOG_LEVEL":         &cfg.LogLevel,
		"LOG_FORMAT":        &cfg.LogFormat,
	}
	for key, dst := range strs {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	if v := os.Getenv("ADMIN_EMAILS"); v != "" {
		cfg.AdminEmails = SplitList(v)
	}
	if v := os.Getenv("MINIO_USE_SSL"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("config: invalid MINIO_USE_SSL %q", v)
		}
		cfg.Minio.UseSSL = b
	}
	if v := os.Getenv("TRUSTED_PROXIES"); v != "" {
		cfg.TrustedProxies = SplitList(v)
	}
	if v := os.Getenv("MAX_UPLOAD_BYTES"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("config: invalid MAX_UPLOAD_BYTES %q", v)
		}
		cfg.MaxUploadBytes = n
	}
	return nil
}

func applyDefaults(cfg *FileConfig) {
	if cfg.Port == "" {
		cfg.Port = defaultPort
	}
	if cfg.FrontendURL == "" {
		cfg.FrontendURL = defaultFrontendURL
	}
	if cfg.Minio.Endpoint != "" && cfg.Minio.Bucket == "" {
		cfg.Minio.Bucket = "portfolio"
	}
}

func validateConfig(cfg FileConfig) error {
	if _, err := strconv.Atoi(cfg.Port); err != nil {
		return fmt.Errorf("config: invalid port %q", cfg.Port)
	}
	if cfg.DatabaseURL == "" {
		return errors.New("config: databaseURL is required (set DATABASE_URL)")
	}
	if len(cfg.JWTSecret) < minJWTSecretLen {
		return fmt.Errorf("config: jwtSecret must be at least %d bytes (set JWT_SECRET)", minJWTSecretLen)
	}
	if _, err := ParseDuration("sessionTTL", cfg.SessionTTL); err != nil {
		return err
	}
	if _, err := ParseDuration("profileCacheTTL", cfg.ProfileCacheTTL); err != nil {
		return err
	}
	if cfg.Minio.Endpoint != "" && (cfg.Minio.AccessKey == "" || cfg.Minio.SecretKey == "") {
		return errors.New("config: minio accessKey and secretKey are required when endpoint is set")
	}
	if cfg.MaxUploadBytes < 0 {
		return errors.New("config: maxUploadBytes must be >= 0")
	}
	if _, err := util.NewTrustedProxies(cfg.TrustedProxies); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

// ParseDuration parses an optional duration setting; empty means zero.
func ParseDuration(name, raw string) (time.Duration, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	dur, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s duration: %w", name, err)
	}
	if dur < 0 {
		return 0, fmt.Errorf("invalid %s duration: must not be negative", name)
	}
	return dur, nil
}

// SplitList splits a comma separated setting, dropping blanks.
func SplitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
