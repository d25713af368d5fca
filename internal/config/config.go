package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
)

type Config struct {
	Server    ServerConfig    `toml:"server"`
	Database  DatabaseConfig  `toml:"database"`
	Redis     RedisConfig     `toml:"redis"`
	Auth      AuthConfig      `toml:"auth"`
	Storage   StorageConfig   `toml:"storage"`
	TTS       TTSConfig       `toml:"tts"`
	Voice     VoiceConfig     `toml:"voice"`
	RateLimit RateLimitConfig `toml:"rate_limit"`
	LogLevel  string          `toml:"log_level"`
}

type ServerConfig struct {
	Host        string   `toml:"host"`
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
}

type DatabaseConfig struct {
	URL            string `toml:"url"`
	MaxConns       int    `toml:"max_conns"`
	MinConns       int    `toml:"min_conns"`
	MigrationsPath string `toml:"migrations_path"`
}

type RedisConfig struct {
	Addr     string `toml:"addr"`
	Password string `toml:"password"`
	DB       int    `toml:"db"`
}

type AuthConfig struct {
	JWTSecret       string `toml:"jwt_secret"`
	TokenTTLHours   int    `toml:"token_ttl_hours"` // 0: tokens never expire
	CacheTTLSeconds int    `toml:"cache_ttl_seconds"`
}

type StorageConfig struct {
	Backend     string `toml:"backend"` // "local", "supabase" or "nats"
	LocalRoot   string `toml:"local_root"`
	SupabaseURL string `toml:"supabase_url"`
	SupabaseKey string `toml:"supabase_key"`
	Bucket      string `toml:"bucket"`
	NATSURL     string `toml:"nats_url"`
	NATSBucket  string `toml:"nats_bucket"`
}

type TTSConfig struct {
	Backend        string `toml:"backend"` // "gtts", "openai" or "yandex"
	TimeoutSeconds int    `toml:"timeout_seconds"`
	GTTSBaseURL    string `toml:"gtts_base_url"`
	OpenAIKey      string `toml:"openai_key"`
	OpenAIBaseURL  string `toml:"openai_base_url"`
	OpenAIModel    string `toml:"openai_model"`
	OpenAIVoice    string `toml:"openai_voice"`
	YandexAPIKey   string `toml:"yandex_api_key"`
	YandexFolderID string `toml:"yandex_folder_id"`
	YandexEndpoint string `toml:"yandex_endpoint"`
}

type VoiceConfig struct {
	Dir         string `toml:"dir"`
	ValidateMP3 bool   `toml:"validate_mp3"`
}

type RateLimitConfig struct {
	RPS   float64 `toml:"rps"`
	Burst int     `toml:"burst"`
}

func defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Host:        "0.0.0.0",
			Port:        8080,
			CORSOrigins: []string{"*"},
		},
		Database: DatabaseConfig{
			MaxConns:       20,
			MinConns:       2,
			MigrationsPath: "migrations",
		},
		Redis: RedisConfig{
			Addr: "localhost:6379",
		},
		Auth: AuthConfig{
			CacheTTLSeconds: 300,
		},
		Storage: StorageConfig{
			Backend:    "local",
			LocalRoot:  ".",
			Bucket:     "voices",
			NATSBucket: "VOICES",
		},
		TTS: TTSConfig{
			Backend:        "gtts",
			TimeoutSeconds: 60,
			GTTSBaseURL:    "https://translate.google.com",
			OpenAIModel:    "tts-1",
			OpenAIVoice:    "alloy",
			YandexEndpoint: "tts.api.cloud.yandex.net:443",
		},
		Voice: VoiceConfig{
			Dir: "voice",
		},
		RateLimit: RateLimitConfig{
			RPS:   100,
			Burst: 200,
		},
		LogLevel: "info",
	}
}

// Load builds the configuration from defaults, an optional TOML file named by
// CONFIG_FILE and the environment, in that order of precedence. A .env file in
// the working directory is loaded into the environment first when present.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	cfg := defaults()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) applyEnv() error {
	var err error

	c.Server.Host = getEnv("SERVER_HOST", c.Server.Host)
	if c.Server.Port, err = getEnvInt("SERVER_PORT", c.Server.Port); err != nil {
		return fmt.Errorf("invalid SERVER_PORT: %w", err)
	}
	if v := os.Getenv("CORS_ORIGINS"); v != "" {
		c.Server.CORSOrigins = splitList(v)
	}

	c.Database.URL = getEnv("DATABASE_URL", c.Database.URL)
	if c.Database.MaxConns, err = getEnvInt("DB_MAX_CONNS", c.Database.MaxConns); err != nil {
		return fmt.Errorf("invalid DB_MAX_CONNS: %w", err)
	}
	if c.Database.MinConns, err = getEnvInt("DB_MIN_CONNS", c.Database.MinConns); err != nil {
		return fmt.Errorf("invalid DB_MIN_CONNS: %w", err)
	}
	c.Database.MigrationsPath = getEnv("MIGRATIONS_PATH", c.Database.MigrationsPath)

	c.Redis.Addr = getEnv("REDIS_ADDR", c.Redis.Addr)
	c.Redis.Password = getEnv("REDIS_PASSWORD", c.Redis.Password)
	if c.Redis.DB, err = getEnvInt("REDIS_DB", c.Redis.DB); err != nil {
		return fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	c.Auth.JWTSecret = getEnv("AUTH_JWT_SECRET", c.Auth.JWTSecret)
	if c.Auth.TokenTTLHours, err = getEnvInt("AUTH_TOKEN_TTL_HOURS", c.Auth.TokenTTLHours); err != nil {
		return fmt.Errorf("invalid AUTH_TOKEN_TTL_HOURS: %w", err)
	}
	if c.Auth.CacheTTLSeconds, err = getEnvInt("AUTH_CACHE_TTL_SECONDS", c.Auth.CacheTTLSeconds); err != nil {
		return fmt.Errorf("invalid AUTH_CACHE_TTL_SECONDS: %w", err)
	}

	c.Storage.Backend = getEnv("STORAGE_BACKEND", c.Storage.Backend)
	c.Storage.LocalRoot = getEnv("STORAGE_LOCAL_ROOT", c.Storage.LocalRoot)
	c.Storage.SupabaseURL = getEnv("SUPABASE_URL", c.Storage.SupabaseURL)
	c.Storage.SupabaseKey = getEnv("SUPABASE_SERVICE_KEY", c.Storage.SupabaseKey)
	c.Storage.Bucket = getEnv("STORAGE_BUCKET", c.Storage.Bucket)
	c.Storage.NATSURL = getEnv("NATS_URL", c.Storage.NATSURL)
	c.Storage.NATSBucket = getEnv("NATS_OBJECT_BUCKET", c.Storage.NATSBucket)

	c.TTS.Backend = getEnv("TTS_BACKEND", c.TTS.Backend)
	if c.TTS.TimeoutSeconds, err = getEnvInt("TTS_TIMEOUT_SECONDS", c.TTS.TimeoutSeconds); err != nil {
		return fmt.Errorf("invalid TTS_TIMEOUT_SECONDS: %w", err)
	}
	c.TTS.GTTSBaseURL = getEnv("TTS_GTTS_BASE_URL", c.TTS.GTTSBaseURL)
	c.TTS.OpenAIKey = getEnv("OPENAI_API_KEY", c.TTS.OpenAIKey)
	c.TTS.OpenAIBaseURL = getEnv("TTS_OPENAI_BASE_URL", c.TTS.OpenAIBaseURL)
	c.TTS.OpenAIModel = getEnv("TTS_OPENAI_MODEL", c.TTS.OpenAIModel)
	c.TTS.OpenAIVoice = getEnv("TTS_OPENAI_VOICE", c.TTS.OpenAIVoice)
	c.TTS.YandexAPIKey = getEnv("YANDEX_API_KEY", c.TTS.YandexAPIKey)
	c.TTS.YandexFolderID = getEnv("YANDEX_FOLDER_ID", c.TTS.YandexFolderID)
	c.TTS.YandexEndpoint = getEnv("YANDEX_TTS_ENDPOINT", c.TTS.YandexEndpoint)

	c.Voice.Dir = getEnv("VOICE_DIR", c.Voice.Dir)
	if c.Voice.ValidateMP3, err = getEnvBool("VOICE_VALIDATE_MP3", c.Voice.ValidateMP3); err != nil {
		return fmt.Errorf("invalid VOICE_VALIDATE_MP3: %w", err)
	}

	if c.RateLimit.RPS, err = getEnvFloat("RATE_LIMIT_RPS", c.RateLimit.RPS); err != nil {
		return fmt.Errorf("invalid RATE_LIMIT_RPS: %w", err)
	}
	if c.RateLimit.Burst, err = getEnvInt("RATE_LIMIT_BURST", c.RateLimit.Burst); err != nil {
		return fmt.Errorf("invalid RATE_LIMIT_BURST: %w", err)
	}

	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)
	return nil
}

func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

func (c *Config) TTSTimeout() time.Duration {
	return time.Duration(c.TTS.TimeoutSeconds) * time.Second
}

// WriteTimeout bounds a whole response. It leaves room past the synthesis
// timeout and is zero, meaning no limit, when synthesis is unbounded.
func (c *Config) WriteTimeout() time.Duration {
	if c.TTSTimeout() <= 0 {
		return 0
	}
	return c.TTSTimeout() + 30*time.Second
}

func (c *Config) TokenTTL() time.Duration {
	return time.Duration(c.Auth.TokenTTLHours) * time.Hour
}

func (c *Config) AuthCacheTTL() time.Duration {
	return time.Duration(c.Auth.CacheTTLSeconds) * time.Second
}

// SlogLevel maps LogLevel onto a slog level, defaulting to info.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func (c *Config) Validate() error {
	var missing []string
	if c.Database.URL == "" {
		missing = append(missing, "DATABASE_URL")
	}
	if c.Auth.JWTSecret == "" {
		missing = append(missing, "AUTH_JWT_SECRET")
	}

	switch c.Storage.Backend {
	case "local":
	case "supabase":
		if c.Storage.SupabaseURL == "" {
			missing = append(missing, "SUPABASE_URL")
		}
		if c.Storage.SupabaseKey == "" {
			missing = append(missing, "SUPABASE_SERVICE_KEY")
		}
	case "nats":
		if c.Storage.NATSURL == "" {
			missing = append(missing, "NATS_URL")
		}
	default:
		return fmt.Errorf("unknown STORAGE_BACKEND %q", c.Storage.Backend)
	}

	switch c.TTS.Backend {
	case "gtts":
	case "openai":
		if c.TTS.OpenAIKey == "" {
			missing = append(missing, "OPENAI_API_KEY")
		}
	case "yandex":
		if c.TTS.YandexAPIKey == "" {
			missing = append(missing, "YANDEX_API_KEY")
		}
		if c.TTS.YandexFolderID == "" {
			missing = append(missing, "YANDEX_FOLDER_ID")
		}
	default:
		return fmt.Errorf("unknown TTS_BACKEND %q", c.TTS.Backend)
	}

	if len(missing) > 0 {
		return fmt.Errorf("missing required env vars: %s", strings.Join(missing, ", "))
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	return strconv.Atoi(v)
}

func getEnvFloat(key string, fallback float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	return strconv.ParseFloat(v, 64)
}

func getEnvBool(key string, fallback bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	return strconv.ParseBool(v)
}

func splitList(v string) []string {
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
