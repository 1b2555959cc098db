package config

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const envPrefix = "PDFTOXML_"

const (
	QueueLocal = "local"
	QueueNATS  = "nats"
)

type Config struct {
	LogLevel string `yaml:"log_level"`

	HTTP       HTTP       `yaml:"http"`
	GRPC       GRPC       `yaml:"grpc"`
	Storage    Storage    `yaml:"storage"`
	Database   Database   `yaml:"database"`
	Auth       Auth       `yaml:"auth"`
	Conversion Conversion `yaml:"conversion"`
	Queue      Queue      `yaml:"queue"`
	Redis      Redis      `yaml:"redis"`
	RateLimit  RateLimit  `yaml:"rate_limit"`
	MinIO      MinIO      `yaml:"minio"`
	NATS       NATS       `yaml:"nats"`
}

type HTTP struct {
	Addr              string        `yaml:"addr"`
	ReadHeaderTimeout time.Duration `yaml:"read_header_timeout"`
	ShutdownTimeout   time.Duration `yaml:"shutdown_timeout"`
	MaxUploadMB       int64         `yaml:"max_upload_mb"`
	CORSOrigins       []string      `yaml:"cors_origins"`
}

// GRPC serves health checks; an empty addr disables it.
type GRPC struct {
	Addr string `yaml:"addr"`
}

type Storage struct {
	BaseDir string `yaml:"base_dir"`
}

type Database struct {
	Driver          string        `yaml:"driver"`
	DSN             string        `yaml:"dsn"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

type Auth struct {
	JWTSecret  string        `yaml:"jwt_secret"`
	Issuer     string        `yaml:"issuer"`
	TokenTTL   time.Duration `yaml:"token_ttl"`
	BcryptCost int           `yaml:"bcrypt_cost"`
}

type Conversion struct {
	Timeout       time.Duration `yaml:"timeout"`
	StaleAfter    time.Duration `yaml:"stale_after"`
	SweepInterval time.Duration `yaml:"sweep_interval"`
}

type Queue struct {
	Driver   string `yaml:"driver"`
	Capacity int    `yaml:"capacity"`
	Workers  int    `yaml:"workers"`
}

// Redis backs rate limiting and idempotency keys; an empty addr disables both.
type Redis struct {
	Addr           string        `yaml:"addr"`
	Password       string        `yaml:"password"`
	DB             int           `yaml:"db"`
	IdempotencyTTL time.Duration `yaml:"idempotency_ttl"`
}

type RateLimit struct {
	Limit  int           `yaml:"limit"`
	Window time.Duration `yaml:"window"`
}

// MinIO is the optional replica of the file store; an empty endpoint
// keeps files on local disk only.
type MinIO struct {
	Endpoint        string `yaml:"endpoint"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
	UseSSL          bool   `yaml:"use_ssl"`
	Bucket          string `yaml:"bucket"`
	BasePath        string `yaml:"base_path"`
	QueueSize       int    `yaml:"queue_size"`
	Workers         int    `yaml:"workers"`
	MaxRetries      int    `yaml:"max_retries"`
}

type NATS struct {
	URL           string        `yaml:"url"`
	Stream        string        `yaml:"stream"`
	Subject       string        `yaml:"subject"`
	Consumer      string        `yaml:"consumer"`
	MaxReconnects int           `yaml:"max_reconnects"`
	ReconnectWait time.Duration `yaml:"reconnect_wait"`
}

func (c *Config) MaxUploadBytes() int64 {
	return c.HTTP.MaxUploadMB << 20
}

// LoadDotEnv loads env files into the process environment. Missing files
// are skipped and variables already set win.
func LoadDotEnv(files ...string) error {
	for _, f := range files {
		err := godotenv.Load(f)
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("config: load %s: %w", f, err)
		}
	}
	return nil
}

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: cannot read file %q: %w", path, err)
	}

	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("config: cannot unmarshal yaml: %w", err)
	}

	cfg.applyEnv(os.LookupEnv)
	cfg.applyDefaults()

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func MustLoad(path string) *Config {
	cfg, err := Load(path)
	if err != nil {
		log.Fatal(err)
	}
	return cfg
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) {
	set := func(name string, dst *string) {
		if v, ok := lookup(envPrefix + name); ok {
			*dst = v
		}
	}

	set("LOG_LEVEL", &c.LogLevel)
	set("HTTP_ADDR", &c.HTTP.Addr)
	set("GRPC_ADDR", &c.GRPC.Addr)
	set("BASE_DIR", &c.Storage.BaseDir)
	set("DATABASE_DRIVER", &c.Database.Driver)
	set("DATABASE_DSN", &c.Database.DSN)
	set("JWT_SECRET", &c.Auth.JWTSecret)
	set("QUEUE_DRIVER", &c.Queue.Driver)
	set("REDIS_ADDR", &c.Redis.Addr)
	set("REDIS_PASSWORD", &c.Redis.Password)
	set("MINIO_ENDPOINT", &c.MinIO.Endpoint)
	set("MINIO_ACCESS_KEY", &c.MinIO.AccessKeyID)
	set("MINIO_SECRET_KEY", &c.MinIO.SecretAccessKey)
	set("NATS_URL", &c.NATS.URL)
}

func (c *Config) applyDefaults() {
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.HTTP.ReadHeaderTimeout <= 0 {
		c.HTTP.ReadHeaderTimeout = 5 * time.Second
	}
	if c.HTTP.ShutdownTimeout <= 0 {
		c.HTTP.ShutdownTimeout = 10 * time.Second
	}
	if c.HTTP.MaxUploadMB <= 0 {
		c.HTTP.MaxUploadMB = 10
	}
	if c.Database.Driver == "" {
		c.Database.Driver = "sqlite"
	}
	if c.Auth.Issuer == "" {
		c.Auth.Issuer = "pdftoxml"
	}
	if c.Auth.TokenTTL <= 0 {
		c.Auth.TokenTTL = 24 * time.Hour
	}
	if c.Conversion.Timeout <= 0 {
		c.Conversion.Timeout = 2 * time.Minute
	}
	if c.Conversion.StaleAfter <= 0 {
		c.Conversion.StaleAfter = 3 * c.Conversion.Timeout
	}
	if c.Conversion.SweepInterval <= 0 {
		c.Conversion.SweepInterval = time.Minute
	}
	if c.Queue.Driver == "" {
		c.Queue.Driver = QueueLocal
	}
	if c.Queue.Capacity <= 0 {
		c.Queue.Capacity = 64
	}
	if c.Queue.Workers <= 0 {
		c.Queue.Workers = 4
	}
	if c.Redis.IdempotencyTTL <= 0 {
		c.Redis.IdempotencyTTL = 24 * time.Hour
	}
	if c.RateLimit.Limit <= 0 {
		c.RateLimit.Limit = 30
	}
	if c.RateLimit.Window <= 0 {
		c.RateLimit.Window = time.Minute
	}
	if c.NATS.Stream == "" {
		c.NATS.Stream = "PDF_CONVERSION"
	}
	if c.NATS.Subject == "" {
		c.NATS.Subject = "pdftoxml.conversions"
	}
}

func (c *Config) validate() error {
	var errs []error
	if c.HTTP.Addr == "" {
		errs = append(errs, errors.New("http.addr is empty"))
	}
	if c.Storage.BaseDir == "" {
		errs = append(errs, errors.New("storage.base_dir is empty"))
	}
	if c.Database.DSN == "" {
		errs = append(errs, errors.New("database.dsn is empty"))
	}
	if d := c.Database.Driver; d != "sqlite" && d != "postgres" {
		errs = append(errs, fmt.Errorf("database.driver %q is not supported", d))
	}
	if len(c.Auth.JWTSecret) < 16 {
		errs = append(errs, errors.New("auth.jwt_secret must be at least 16 bytes"))
	}
	switch c.Queue.Driver {
	case QueueLocal:
	case QueueNATS:
		if c.NATS.URL == "" {
			errs = append(errs, errors.New("nats.url is empty while queue.driver is nats"))
		}
	default:
		errs = append(errs, fmt.Errorf("queue.driver %q is not supported", c.Queue.Driver))
	}
	if c.MinIO.Endpoint != "" && c.MinIO.Bucket == "" {
		errs = append(errs, errors.New("minio.bucket is empty"))
	}
	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("log_level %q is not supported", c.LogLevel))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config: %w", errors.Join(errs...))
	}
	return nil
}
