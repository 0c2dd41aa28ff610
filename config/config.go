package config

import (
	"errors"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	DiscordToken  string
	ApplicationID string

	GuildID string

	LogLevel      string
	DefaultVolume int
	MaxQueueSize  int

	RadioURL        string
	StatusDelay     time.Duration
	MusicStorageDir string
	FFmpegPath      string
	YTDLPPath       string

	DBHost     string
	DBPort     int
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string

	RedisHost     string
	RedisPort     int
	RedisPassword string
	RedisDB       int
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		DiscordToken:  os.Getenv("DISCORD_TOKEN"),
		ApplicationID: os.Getenv("DISCORD_APPLICATION_ID"),

		GuildID: os.Getenv("DISCORD_GUILD_ID"),

		LogLevel:      getEnvWithDefault("LOG_LEVEL", "info"),
		DefaultVolume: getEnvAsIntWithDefault("DEFAULT_VOLUME", 100),
		MaxQueueSize:  getEnvAsIntWithDefault("MAX_QUEUE_SIZE", 500),

		RadioURL:        os.Getenv("RADIO_URL"),
		StatusDelay:     time.Duration(getEnvAsIntWithDefault("STATUS_DELAY_MS", 1000)) * time.Millisecond,
		MusicStorageDir: getEnvWithDefault("MUSIC_STORAGE_DIR", "music"),
		FFmpegPath:      getEnvWithDefault("FFMPEG_PATH", "ffmpeg"),
		YTDLPPath:       getEnvWithDefault("YTDLP_PATH", "yt-dlp"),

		DBHost:     os.Getenv("DB_HOST"),
		DBPort:     getEnvAsIntWithDefault("DB_PORT", 5432),
		DBUser:     os.Getenv("DB_USER"),
		DBPassword: os.Getenv("DB_PASSWORD"),
		DBName:     os.Getenv("DB_NAME"),
		DBSSLMode:  getEnvWithDefault("DB_SSLMODE", "disable"),

		RedisHost:     getEnvWithDefault("REDIS_HOST", "localhost"),
		RedisPort:     getEnvAsIntWithDefault("REDIS_PORT", 6379),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		RedisDB:       getEnvAsIntWithDefault("REDIS_DB", 0),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if c.DiscordToken == "" {
		return errors.New("DISCORD_TOKEN is required")
	}

	if c.ApplicationID == "" {
		return errors.New("DISCORD_APPLICATION_ID is required")
	}

	if c.DefaultVolume < 0 || c.DefaultVolume > 100 {
		return errors.New("DEFAULT_VOLUME must be between 0 and 100")
	}

	if c.MaxQueueSize < 1 {
		return errors.New("MAX_QUEUE_SIZE must be at least 1")
	}

	if c.StatusDelay < 0 {
		return errors.New("STATUS_DELAY_MS must not be negative")
	}

	if c.RadioURL != "" {
		u, err := url.Parse(c.RadioURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return errors.New("RADIO_URL must be an http(s) URL")
		}
	}

	return nil
}

func (c *Config) IsDevelopment() bool {
	return c.GuildID != ""
}

func getEnvAsIntWithDefault(key string, defaultValue int) int {
	if value, ok := os.LookupEnv(key); ok {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvWithDefault(key, defaultValue string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return defaultValue
}
