package radio

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/hxnx/cardinal/internal/database"
	"github.com/hxnx/cardinal/internal/features/shared"
	"github.com/hxnx/cardinal/internal/music"
	"github.com/rs/zerolog/log"
)

const historyLimit = 10

// Handlers serves the /라디오 subcommands.
type Handlers struct {
	app *shared.App
}

func New(app *shared.App) *Handlers {
	return &Handlers{app: app}
}

// Start binds the guild's radio to a voice and text channel and joins.
func (h *Handlers) Start(s *discordgo.Session, i *discordgo.InteractionCreate, options []*discordgo.ApplicationCommandInteractionDataOption) {
	voiceID := shared.GetOptionChannelID(options, "음성채널")
	if voiceID == "" {
		voiceID = shared.UserVoiceChannel(s, i.GuildID, shared.GetInteractionUserID(i))
	}
	if voiceID == "" {
		shared.RespondEphemeral(s, i, "음성 채널을 지정하거나 먼저 음성 채널에 입장해 주세요.")
		return
	}

	textID := shared.GetOptionChannelID(options, "채팅채널")
	if textID == "" {
		textID = i.ChannelID
	}

	streamURL := strings.TrimSpace(shared.GetOptionString(options, "주소"))
	if streamURL == "" {
		streamURL = h.app.RadioURL
	}
	if !ValidStreamURL(streamURL) {
		shared.RespondEphemeral(s, i, "재생할 라디오 주소가 없거나 올바르지 않습니다.")
		return
	}

	if err := shared.DeferEphemeral(s, i); err != nil {
		log.Warn().Err(err).Msg("radio: defer failed")
		return
	}

	binding := database.Binding{
		GuildID:        i.GuildID,
		VoiceChannelID: voiceID,
		TextChannelID:  textID,
		StreamURL:      streamURL,
	}
	if err := h.app.Radio.Bind(binding); err != nil {
		log.Warn().Err(err).Str("guild", i.GuildID).Msg("radio: failed to persist binding")
	}

	player := h.app.Coordinator.Get(i.GuildID)
	if err := player.Connect(voiceID); err != nil {
		log.Error().Err(err).Str("guild", i.GuildID).Msg("radio: voice join failed")
		shared.FollowupEphemeral(s, i, "음성 채널에 연결하지 못했습니다.")
		return
	}

	// a live stream already playing restarts with the new address
	if rec, _, ok := player.NowPlaying(); ok && rec.Kind == music.MediaKindLive && rec.URL != streamURL {
		_ = player.Skip()
	}

	shared.FollowupEphemeral(s, i, fmt.Sprintf("📻 <#%s>에서 라디오를 시작합니다.\n곡 정보는 <#%s>에 알려드립니다.", voiceID, textID))
}

// Unbind forgets the guild's radio and leaves voice.
func (h *Handlers) Unbind(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if _, ok := h.app.Radio.Lookup(i.GuildID); !ok {
		shared.RespondEphemeral(s, i, "설정된 라디오가 없습니다.")
		return
	}

	if err := h.app.Radio.Unbind(i.GuildID); err != nil {
		log.Warn().Err(err).Str("guild", i.GuildID).Msg("radio: failed to delete binding")
	}
	if err := h.app.Coordinator.Get(i.GuildID).Stop(false); err != nil {
		log.Warn().Err(err).Str("guild", i.GuildID).Msg("radio: leave failed")
	}

	shared.RespondEphemeral(s, i, "라디오 설정을 해제했습니다.")
}

// History lists the most recent announced titles.
func (h *Handlers) History(s *discordgo.Session, i *discordgo.InteractionCreate) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	entries, err := h.app.History.Recent(ctx, i.GuildID, historyLimit)
	if err != nil {
		log.Error().Err(err).Str("guild", i.GuildID).Msg("radio: history query failed")
		shared.RespondEphemeral(s, i, "재생 기록을 불러오지 못했습니다.")
		return
	}
	if len(entries) == 0 {
		shared.RespondEphemeral(s, i, "아직 재생 기록이 없습니다.")
		return
	}

	shared.RespondEphemeral(s, i, FormatHistory(entries))
}

func FormatHistory(entries []database.Announcement) string {
	lines := make([]string, 0, len(entries)+1)
	lines = append(lines, "🕘 **최근 재생 기록**")
	for _, e := range entries {
		lines = append(lines, fmt.Sprintf("<t:%d:t> %s", e.AnnouncedAt.Unix(), e.Title))
	}
	return strings.Join(lines, "\n")
}

func ValidStreamURL(raw string) bool {
	if raw == "" {
		return false
	}
	u, err := url.Parse(raw)
	return err == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
