// Package config loads application configuration from the environment.
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration loaded from environment.
type Config struct {
	Server  ServerConfig
	Redis   RedisConfig
	Discord DiscordConfig
	YouTube YouTubeConfig
	Upload  UploadConfig
	Worker  WorkerConfig
	Session SessionConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port               string
	ReadTimeout        time.Duration
	WriteTimeout       time.Duration
	CORSAllowedOrigins string // comma-separated, or "*" for all
}

// RedisConfig holds Redis connection settings (session store).
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// DiscordConfig holds the OAuth app, bot token and target guild.
type DiscordConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
	BotToken     string
	GuildID      string
}

// YouTubeConfig holds the channel OAuth credential and upload defaults.
type YouTubeConfig struct {
	ClientID      string
	ClientSecret  string
	RefreshToken  string
	PrivacyStatus string
	TokenNotePath string // side file for rotated refresh tokens
}

// UploadConfig bounds the intake endpoint.
type UploadConfig struct {
	TempDir      string
	MaxFileBytes int64
}

// WorkerConfig paces the background loops.
type WorkerConfig struct {
	Tick            time.Duration
	BackoffBase     time.Duration
	BackoffCap      time.Duration
	RefreshWarmup   time.Duration
	RefreshInterval time.Duration
}

// SessionConfig holds login session settings.
type SessionConfig struct {
	TTL time.Duration
}

// Load reads configuration from environment, with optional .env file.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Server: ServerConfig{
			Port:               getEnv("PORT", "8080"),
			ReadTimeout:        getEnvDuration("READ_TIMEOUT", 5*time.Minute),
			WriteTimeout:       getEnvDuration("WRITE_TIMEOUT", 10*time.Minute),
			CORSAllowedOrigins: getEnv("CORS_ALLOWED_ORIGINS", "http://localhost:3000"),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvInt("REDIS_DB", 0),
		},
		Discord: DiscordConfig{
			ClientID:     getEnv("DISCORD_CLIENT_ID", ""),
			ClientSecret: getEnv("DISCORD_CLIENT_SECRET", ""),
			RedirectURL:  getEnv("DISCORD_REDIRECT_URL", "http://localhost:3000/login"),
			BotToken:     getEnv("DISCORD_BOT_TOKEN", ""),
			GuildID:      getEnv("DISCORD_GUILD_ID", ""),
		},
		YouTube: YouTubeConfig{
			ClientID:      getEnv("YOUTUBE_CLIENT_ID", ""),
			ClientSecret:  getEnv("YOUTUBE_CLIENT_SECRET", ""),
			RefreshToken:  getEnv("YOUTUBE_REFRESH_TOKEN", ""),
			PrivacyStatus: getEnv("YOUTUBE_PRIVACY_STATUS", "unlisted"),
			TokenNotePath: getEnv("YOUTUBE_TOKEN_NOTE_PATH", ""),
		},
		Upload: UploadConfig{
			TempDir:      getEnv("UPLOAD_TEMP_DIR", ""),
			MaxFileBytes: getEnvInt64("UPLOAD_MAX_FILE_BYTES", 2<<30),
		},
		Worker: WorkerConfig{
			Tick:            getEnvDuration("WORKER_TICK", 5*time.Second),
			BackoffBase:     getEnvDuration("WORKER_BACKOFF_BASE", 5*time.Second),
			BackoffCap:      getEnvDuration("WORKER_BACKOFF_CAP", 60*time.Second),
			RefreshWarmup:   getEnvDuration("TOKEN_REFRESH_WARMUP", time.Hour),
			RefreshInterval: getEnvDuration("TOKEN_REFRESH_INTERVAL", 24*time.Hour),
		},
		Session: SessionConfig{
			TTL: getEnvDuration("SESSION_TTL", 30*24*time.Hour),
		},
	}
	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvInt64(key string, fallback int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
