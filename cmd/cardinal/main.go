package main

import (
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hxnx/cardinal/config"
	"github.com/hxnx/cardinal/internal/bot"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})

	cfg, err := config.Load()
	if err != nil {
		log.Error().Err(err).Msg("failed to load configuration")
		log.Info().Msg("required: DISCORD_TOKEN, DISCORD_APPLICATION_ID")
		log.Info().Msg("optional: DISCORD_GUILD_ID, LOG_LEVEL, DEFAULT_VOLUME, MAX_QUEUE_SIZE, RADIO_URL, STATUS_DELAY_MS, MUSIC_STORAGE_DIR, FFMPEG_PATH, YTDLP_PATH")
		log.Info().Msg("database: DB_HOST, DB_PORT, DB_USER, DB_PASSWORD, DB_NAME, DB_SSLMODE")
		log.Info().Msg("redis: REDIS_HOST, REDIS_PORT, REDIS_PASSWORD, REDIS_DB")
		os.Exit(1)
	}

	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	mode := log.Info().Str("log_level", level.String())
	if cfg.IsDevelopment() {
		mode = mode.Str("mode", "development").Str("guild", cfg.GuildID)
	} else {
		mode = mode.Str("mode", "production")
	}
	mode.Msg("configuration loaded")

	log.Info().
		Int("default_volume", cfg.DefaultVolume).
		Int("max_queue_size", cfg.MaxQueueSize).
		Str("radio_url", cfg.RadioURL).
		Dur("status_delay", cfg.StatusDelay).
		Str("music_dir", cfg.MusicStorageDir).
		Msg("player settings")
	log.Info().
		Str("db_host", cfg.DBHost).
		Int("db_port", cfg.DBPort).
		Str("db_name", cfg.DBName).
		Str("redis_host", cfg.RedisHost).
		Int("redis_port", cfg.RedisPort).
		Msg("storage settings")

	b, err := bot.New(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create bot")
	}

	if err := b.Start(); err != nil {
		log.Fatal().Err(err).Msg("failed to start bot")
	}
	log.Info().Msg("bot is running, press CTRL+C to exit")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	log.Info().Msg("shutting down")
	if err := b.Stop(); err != nil {
		log.Error().Err(err).Msg("failed to stop bot")
	}
}
