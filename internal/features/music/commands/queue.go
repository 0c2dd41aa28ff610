package commands

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/hxnx/cardinal/internal/features/music/queueview"
	"github.com/hxnx/cardinal/internal/features/shared"
	"github.com/hxnx/cardinal/internal/music"
	"github.com/rs/zerolog/log"
)

func (h *Handlers) Queue(s *discordgo.Session, i *discordgo.InteractionCreate, options []*discordgo.ApplicationCommandInteractionDataOption) {
	perPage := queueview.DefaultPerPage
	if limit, ok := shared.GetOptionInt64(options, "limit"); ok && limit > 0 {
		perPage = int(limit)
	}

	components, ok := h.queuePage(s, i, 1, perPage)
	if !ok {
		return
	}

	if err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseChannelMessageWithSource,
		Data: &discordgo.InteractionResponseData{
			Components: components,
			Flags:      discordgo.MessageFlagsIsComponentsV2 | discordgo.MessageFlagsEphemeral,
		},
	}); err != nil {
		log.Warn().Err(err).Msg("queue respond failed")
	}
}

// QueuePage answers the queue pagination buttons.
func (h *Handlers) QueuePage(s *discordgo.Session, i *discordgo.InteractionCreate) bool {
	if i.Type != discordgo.InteractionMessageComponent {
		return false
	}
	customID := i.MessageComponentData().CustomID
	if !strings.HasPrefix(customID, queueview.CustomIDPrefix) {
		return false
	}

	page, perPage, ok := queueview.ParseQueuePageCustomID(customID)
	if !ok {
		shared.RespondEphemeral(s, i, "유효하지 않은 페이지 요청입니다.")
		return true
	}

	components, ok := h.queuePage(s, i, page, perPage)
	if !ok {
		return true
	}

	if err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseUpdateMessage,
		Data: &discordgo.InteractionResponseData{
			Components: components,
			Flags:      discordgo.MessageFlagsIsComponentsV2,
		},
	}); err != nil {
		log.Warn().Err(err).Msg("queue page respond failed")
	}
	return true
}

func (h *Handlers) queuePage(s *discordgo.Session, i *discordgo.InteractionCreate, page, perPage int) ([]discordgo.MessageComponent, bool) {
	if i.GuildID == "" {
		shared.RespondEphemeral(s, i, "이 명령어는 서버에서만 사용할 수 있습니다.")
		return nil, false
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	items, err := h.app.Music.List(ctx, i.GuildID, 0)
	if err != nil {
		log.Error().Err(err).Str("guild", i.GuildID).Msg("queue list failed")
		shared.RespondEphemeral(s, i, "대기열을 불러오지 못했습니다.")
		return nil, false
	}

	var current *queueview.NowPlaying
	player := h.app.Coordinator.Get(i.GuildID)
	if rec, elapsed, ok := player.NowPlaying(); ok {
		current = &queueview.NowPlaying{Record: rec, Elapsed: elapsed, Paused: player.Paused()}
	}

	if len(items) == 0 && current == nil {
		shared.RespondEphemeral(s, i, "대기열이 비어 있습니다.")
		return nil, false
	}

	components, _ := queueview.BuildQueueComponents(current, items, page, perPage)
	return components, true
}

func (h *Handlers) Repeat(s *discordgo.Session, i *discordgo.InteractionCreate, options []*discordgo.ApplicationCommandInteractionDataOption) {
	mode := music.RepeatMode(strings.TrimSpace(shared.GetOptionString(options, "모드")))

	var label string
	switch mode {
	case music.RepeatModeNone:
		label = "꺼짐"
	case music.RepeatModeTrack:
		label = "곡 반복"
	case music.RepeatModeQueue:
		label = "대기열 반복"
	default:
		shared.RespondEphemeral(s, i, "지원하지 않는 반복 모드입니다.")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	settings, err := h.app.Music.GetSettings(ctx, i.GuildID)
	if err != nil {
		shared.RespondEphemeral(s, i, "현재 설정을 불러오지 못했습니다.")
		return
	}
	settings.RepeatMode = mode
	if err := h.app.Music.SetSettings(ctx, i.GuildID, settings); err != nil {
		shared.RespondEphemeral(s, i, "설정 저장에 실패했습니다.")
		return
	}

	shared.RespondEphemeral(s, i, fmt.Sprintf("반복 모드를 %s(으)로 설정했습니다.", label))
}
