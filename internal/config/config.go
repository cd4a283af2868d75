package config

import (
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/hibiken/asynq"
)

type Config struct {
	API      APIConfig      `toml:"api"`
	Queue    QueueConfig    `toml:"queue"`
	Worker   WorkerConfig   `toml:"worker"`
	Storage  StorageConfig  `toml:"storage"`
	Database DatabaseConfig `toml:"database"`
	Raster   RasterConfig   `toml:"raster"`
	Tracing  TracingConfig  `toml:"tracing"`
	Webhook  WebhookConfig  `toml:"webhook"`
	Log      LogConfig      `toml:"log"`
}

type APIConfig struct {
	Addr      string          `toml:"addr"`
	RateLimit RateLimitConfig `toml:"rate_limit"`
}

type RateLimitConfig struct {
	Enabled      bool     `toml:"enabled"`
	Capacity     int      `toml:"capacity"`
	Window       Duration `toml:"window"`
	UserIDHeader string   `toml:"user_id_header"`
}

type QueueConfig struct {
	RedisAddr     string `toml:"redis_addr"`
	RedisPassword string `toml:"redis_password"`
	RedisDB       int    `toml:"redis_db"`
	Name          string `toml:"name"`
	Enabled       bool   `toml:"enabled"`
}

func (q QueueConfig) RedisClientOpt() asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:     q.RedisAddr,
		Password: q.RedisPassword,
		DB:       q.RedisDB,
	}
}

type WorkerConfig struct {
	Concurrency    int    `toml:"concurrency"`
	MaxActiveJobs  int    `toml:"max_active_jobs"`
	LocalOutputDir string `toml:"local_output_dir"`
	MetricsAddr    string `toml:"metrics_addr"`
}

type StorageConfig struct {
	Enabled    bool     `toml:"enabled"`
	Endpoint   string   `toml:"endpoint"`
	AccessKey  string   `toml:"access_key"`
	SecretKey  string   `toml:"secret_key"`
	Bucket     string   `toml:"bucket"`
	UseSSL     bool     `toml:"use_ssl"`
	PresignTTL Duration `toml:"presign_ttl"`
}

type DatabaseConfig struct {
	DSN string `toml:"dsn"`
}

type RasterConfig struct {
	Backend      string   `toml:"backend"`
	Binary       string   `toml:"binary"`
	Timeout      Duration `toml:"timeout"`
	MaxDimension int      `toml:"max_dimension"`
}

type TracingConfig struct {
	Exporter     string `toml:"exporter"`
	OTLPEndpoint string `toml:"otlp_endpoint"`
	OTLPInsecure bool   `toml:"otlp_insecure"`
}

type WebhookConfig struct {
	SigningSecret string   `toml:"signing_secret"`
	Timeout       Duration `toml:"timeout"`
	MaxAttempts   int      `toml:"max_attempts"`
}

type LogConfig struct {
	Level string `toml:"level"`
}

// Duration decodes TOML strings such as "30s".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = parsed
	return nil
}

func Default() Config {
	defaultWorkerSlots := max(1, runtime.NumCPU()/2)

	return Config{
		API: APIConfig{
			Addr: ":8080",
			RateLimit: RateLimitConfig{
				Capacity:     30,
				Window:       Duration{time.Minute},
				UserIDHeader: "X-User-ID",
			},
		},
		Queue: QueueConfig{
			RedisAddr: "localhost:6379",
			Name:      "default",
		},
		Worker: WorkerConfig{
			Concurrency:    max(2, runtime.NumCPU()),
			MaxActiveJobs:  defaultWorkerSlots,
			LocalOutputDir: "./.marble-output",
			MetricsAddr:    ":9091",
		},
		Storage: StorageConfig{
			Endpoint:   "localhost:9000",
			AccessKey:  "minioadmin",
			SecretKey:  "minioadmin",
			Bucket:     "marble-renders",
			PresignTTL: Duration{15 * time.Minute},
		},
		Raster: RasterConfig{
			Backend:      "rsvg",
			Binary:       "rsvg-convert",
			Timeout:      Duration{30 * time.Second},
			MaxDimension: 4096,
		},
		Tracing: TracingConfig{
			Exporter: "none",
		},
		Webhook: WebhookConfig{
			Timeout:     Duration{10 * time.Second},
			MaxAttempts: 3,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load layers defaults, the optional TOML file named by MARBLE_CONFIG and
// environment overrides, in that order.
func Load() (Config, error) {
	cfg := Default()

	if path := env("MARBLE_CONFIG", ""); path != "" {
		if err := loadFile(path, &cfg); err != nil {
			return Config{}, err
		}
	}

	applyEnv(&cfg)
	return cfg, nil
}

func loadFile(path string, cfg *Config) error {
	meta, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return fmt.Errorf("decode config %s: %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, k := range undecoded {
			keys = append(keys, k.String())
		}
		return fmt.Errorf("decode config %s: unknown keys: %s", path, strings.Join(keys, ", "))
	}
	return nil
}

func applyEnv(cfg *Config) {
	cfg.API.Addr = env("MARBLE_API_ADDR", cfg.API.Addr)
	cfg.API.RateLimit.Enabled = envBool("MARBLE_RATE_LIMIT_ENABLED", cfg.API.RateLimit.Enabled)
	cfg.API.RateLimit.Capacity = envInt("MARBLE_RATE_LIMIT_CAPACITY", cfg.API.RateLimit.Capacity)
	cfg.API.RateLimit.Window.Duration = envDuration("MARBLE_RATE_LIMIT_WINDOW", cfg.API.RateLimit.Window.Duration)
	cfg.API.RateLimit.UserIDHeader = env("MARBLE_RATE_LIMIT_USER_HEADER", cfg.API.RateLimit.UserIDHeader)

	cfg.Queue.RedisAddr = env("REDIS_ADDR", cfg.Queue.RedisAddr)
	cfg.Queue.RedisPassword = env("REDIS_PASSWORD", cfg.Queue.RedisPassword)
	cfg.Queue.RedisDB = envInt("REDIS_DB", cfg.Queue.RedisDB)
	cfg.Queue.Name = env("ASYNC_QUEUE", cfg.Queue.Name)
	cfg.Queue.Enabled = envBool("MARBLE_JOBS_ENABLED", cfg.Queue.Enabled)

	cfg.Worker.Concurrency = envInt("WORKER_CONCURRENCY", cfg.Worker.Concurrency)
	cfg.Worker.MaxActiveJobs = envInt("WORKER_MAX_ACTIVE_JOBS", cfg.Worker.MaxActiveJobs)
	cfg.Worker.LocalOutputDir = env("WORKER_LOCAL_OUTPUT_DIR", cfg.Worker.LocalOutputDir)
	cfg.Worker.MetricsAddr = env("WORKER_METRICS_ADDR", cfg.Worker.MetricsAddr)

	cfg.Storage.Enabled = envBool("MINIO_ENABLED", cfg.Storage.Enabled)
	cfg.Storage.Endpoint = env("MINIO_ENDPOINT", cfg.Storage.Endpoint)
	cfg.Storage.AccessKey = env("MINIO_ACCESS_KEY", cfg.Storage.AccessKey)
	cfg.Storage.SecretKey = env("MINIO_SECRET_KEY", cfg.Storage.SecretKey)
	cfg.Storage.Bucket = env("MINIO_BUCKET", cfg.Storage.Bucket)
	cfg.Storage.UseSSL = envBool("MINIO_USE_SSL", cfg.Storage.UseSSL)
	cfg.Storage.PresignTTL.Duration = envDuration("MINIO_PRESIGN_TTL", cfg.Storage.PresignTTL.Duration)

	cfg.Database.DSN = env("POSTGRES_DSN", cfg.Database.DSN)

	cfg.Raster.Backend = env("MARBLE_RASTER_BACKEND", cfg.Raster.Backend)
	cfg.Raster.Binary = env("MARBLE_RSVG_BINARY", cfg.Raster.Binary)
	cfg.Raster.Timeout.Duration = envDuration("MARBLE_RASTER_TIMEOUT", cfg.Raster.Timeout.Duration)
	cfg.Raster.MaxDimension = envInt("MARBLE_RASTER_MAX_DIMENSION", cfg.Raster.MaxDimension)

	cfg.Tracing.Exporter = env("OTEL_TRACES_EXPORTER", cfg.Tracing.Exporter)
	cfg.Tracing.OTLPEndpoint = env("OTEL_EXPORTER_OTLP_ENDPOINT", cfg.Tracing.OTLPEndpoint)
	cfg.Tracing.OTLPInsecure = envBool("OTEL_EXPORTER_OTLP_INSECURE", cfg.Tracing.OTLPInsecure)

	cfg.Webhook.SigningSecret = env("WEBHOOK_SIGNING_SECRET", cfg.Webhook.SigningSecret)
	cfg.Webhook.Timeout.Duration = envDuration("WEBHOOK_TIMEOUT", cfg.Webhook.Timeout.Duration)
	cfg.Webhook.MaxAttempts = envInt("WEBHOOK_MAX_ATTEMPTS", cfg.Webhook.MaxAttempts)

	cfg.Log.Level = env("MARBLE_LOG_LEVEL", cfg.Log.Level)
}

func env(key, fallback string) string {
	value, ok := os.LookupEnv(key)
	if !ok || value == "" {
		return fallback
	}
	return value
}

func envInt(key string, fallback int) int {
	value := env(key, "")
	if value == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func envBool(key string, fallback bool) bool {
	value := env(key, "")
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return parsed
}

func envDuration(key string, fallback time.Duration) time.Duration {
	value := env(key, "")
	if value == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return parsed
}
