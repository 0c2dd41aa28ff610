package bot

import (
	"fmt"
	"sync"

	"github.com/bwmarrin/discordgo"
	"github.com/hxnx/cardinal/config"
	"github.com/hxnx/cardinal/internal/database"
	commands "github.com/hxnx/cardinal/internal/features"
	"github.com/hxnx/cardinal/internal/features/shared"
	"github.com/hxnx/cardinal/internal/icy"
	"github.com/hxnx/cardinal/internal/music"
	"github.com/hxnx/cardinal/internal/redis"
	"github.com/hxnx/cardinal/internal/sink"
	"github.com/hxnx/cardinal/internal/voice"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

const restoreConcurrency = 4

type Bot struct {
	config  *config.Config
	session *discordgo.Session

	coordinator *music.Coordinator
	service     *music.Service
	bindings    *radioBindings
	history     *database.HistoryRepository
	supervisor  *voice.Supervisor
	gateway     *voice.GatewaySupervisor

	started bool
	restore sync.Once
}

func New(cfg *config.Config) (*Bot, error) {
	dbConfig := &database.Config{
		Host:     cfg.DBHost,
		Port:     cfg.DBPort,
		User:     cfg.DBUser,
		Password: cfg.DBPassword,
		DBName:   cfg.DBName,
		SSLMode:  cfg.DBSSLMode,
	}
	if dbConfig.Enabled() {
		if err := database.Initialize(dbConfig); err != nil {
			log.Warn().Err(err).Msg("database initialization failed, radio bindings are kept in memory")
		}
	} else {
		log.Info().Msg("database not configured, radio bindings are kept in memory")
	}

	redisClient, err := redis.Init(redis.Config{
		Host:     cfg.RedisHost,
		Port:     cfg.RedisPort,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err != nil {
		return nil, fmt.Errorf("queue store unavailable: %w", err)
	}

	s, err := discordgo.New("Bot " + cfg.DiscordToken)
	if err != nil {
		return nil, err
	}
	s.Identify.Intents = discordgo.IntentsGuilds | discordgo.IntentsGuildVoiceStates
	s.ShouldReconnectOnError = false

	b := &Bot{
		config:   cfg,
		session:  s,
		bindings: newRadioBindings(database.NewBindingRepository(), cfg.RadioURL),
		history:  database.NewHistoryRepository(),
	}

	resolver := music.NewYTDLPResolver(cfg.YTDLPPath)
	b.service = music.NewService(music.NewQueueStore(redisClient, cfg.DefaultVolume), resolver, cfg.MaxQueueSize)
	b.coordinator = music.NewCoordinator(music.CoordinatorOptions{
		Queue: b.service,
		Link:  sink.NewLink(s),
		Session: music.SessionOptions{
			Transcoders: music.NewFFmpegFactory(cfg.FFmpegPath),
			Formats:     music.FormatChain{music.NewYouTubeFormats(nil), resolver},
		},
		Radio:         b.bindings.Radio,
		Status:        b.statusFor,
		StatusDelay:   cfg.StatusDelay,
		DefaultVolume: cfg.DefaultVolume,
	})

	channels := voice.SessionChannels{Session: s}
	b.supervisor = voice.NewSupervisor(voice.Options{
		Joiner:   b.coordinator,
		Resolver: channels,
		OnConnected: func(ref voice.ChannelRef) {
			log.Info().Str("guild", ref.GuildID).Str("channel", ref.ChannelID).Msg("voice link confirmed")
		},
	})
	b.gateway = voice.NewGatewaySupervisor(voice.SessionOpener{Session: s}, voice.GatewayReopenDelay)
	voice.NewHandlers(b.supervisor, b.gateway, b.coordinator, channels).Register(s)

	return b, nil
}

func (b *Bot) statusFor(guildID string) icy.StatusSink {
	return &statusSink{
		guildID:  guildID,
		discord:  b.session,
		bindings: b.bindings,
		history:  b.history,
	}
}

func (b *Bot) Start() error {
	if b.started {
		return nil
	}
	if err := b.service.Validate(); err != nil {
		return err
	}

	b.registerHandlers()
	commands.AddHandlers(b.session, &shared.App{
		Coordinator: b.coordinator,
		Music:       b.service,
		Radio:       b.bindings,
		History:     b.history,
		RadioURL:    b.config.RadioURL,
		StorageDir:  b.config.MusicStorageDir,
	})

	var g errgroup.Group
	g.Go(func() error {
		if _, err := commands.RegisterCommands(b.session, b.config.ApplicationID, b.config.GuildID); err != nil {
			log.Warn().Err(err).Msg("failed to register slash commands")
		}
		return nil
	})
	g.Go(b.session.Open)
	if err := g.Wait(); err != nil {
		return err
	}

	b.started = true
	log.Info().Msg("bot session opened")
	return nil
}

func (b *Bot) registerHandlers() {
	b.session.AddHandler(func(s *discordgo.Session, r *discordgo.Ready) {
		if r.User != nil {
			log.Info().Str("user", r.User.Username).Int("guilds", len(r.Guilds)).Msg("bot ready")
		}
		b.restore.Do(func() { go b.restoreRadio() })
	})
}

// restoreRadio rejoins every bound radio channel after start-up.
func (b *Bot) restoreRadio() {
	bindings := b.bindings.Load()
	if len(bindings) == 0 {
		return
	}

	var g errgroup.Group
	g.SetLimit(restoreConcurrency)
	for _, binding := range bindings {
		g.Go(func() error {
			if err := b.coordinator.Join(binding.GuildID, binding.VoiceChannelID); err != nil {
				log.Warn().Err(err).Str("guild", binding.GuildID).Msg("failed to rejoin radio channel")
			}
			return nil
		})
	}
	_ = g.Wait()
	log.Info().Int("guilds", len(bindings)).Msg("radio channels restored")
}

func (b *Bot) Stop() error {
	if !b.started {
		return nil
	}
	b.started = false

	b.gateway.Shutdown()
	b.supervisor.Close()
	b.coordinator.Close()

	var g errgroup.Group
	b.session.RLock()
	for _, vc := range b.session.VoiceConnections {
		g.Go(vc.Disconnect)
	}
	b.session.RUnlock()
	if err := g.Wait(); err != nil {
		log.Warn().Err(err).Msg("failed to leave voice channel")
	}

	if err := b.session.Close(); err != nil {
		return err
	}

	if err := database.Close(); err != nil {
		log.Warn().Err(err).Msg("failed to close database")
	}
	if err := redis.Close(); err != nil {
		log.Warn().Err(err).Msg("failed to close redis")
	}

	log.Info().Msg("bot session closed")
	return nil
}
