package commands

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/hxnx/cardinal/internal/features/music/queueview"
	"github.com/hxnx/cardinal/internal/features/shared"
	"github.com/hxnx/cardinal/internal/music"
	"github.com/rs/zerolog/log"
)

const resolveTimeout = 60 * time.Second

func (h *Handlers) Play(s *discordgo.Session, i *discordgo.InteractionCreate, options []*discordgo.ApplicationCommandInteractionDataOption) {
	userID := shared.GetInteractionUserID(i)
	if userID == "" {
		shared.RespondEphemeral(s, i, "사용자 정보를 확인할 수 없습니다.")
		return
	}

	query := strings.TrimSpace(shared.GetOptionString(options, "검색어"))
	if query == "" {
		shared.RespondEphemeral(s, i, "검색어 또는 URL을 입력해 주세요.")
		return
	}

	channelID := shared.UserVoiceChannel(s, i.GuildID, userID)
	if channelID == "" {
		shared.RespondEphemeral(s, i, "먼저 음성 채널에 입장해 주세요.")
		return
	}

	if err := shared.DeferEphemeral(s, i); err != nil {
		log.Warn().Err(err).Msg("play: defer failed")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), resolveTimeout)
	defer cancel()

	rec, ok := localRecord(h.app.StorageDir, query, userID)
	if !ok {
		var err error
		rec, err = h.app.Music.Resolve(ctx, query, userID)
		if err != nil {
			log.Warn().Err(err).Str("query", query).Msg("play: resolve failed")
			shared.FollowupEphemeral(s, i, "검색에 실패했습니다.")
			return
		}
	}

	player := h.app.Coordinator.Get(i.GuildID)
	if !player.HasVoiceConnection() || player.ChannelID() != channelID {
		if err := player.Connect(channelID); err != nil {
			log.Error().Err(err).Str("guild", i.GuildID).Msg("play: voice join failed")
			shared.FollowupEphemeral(s, i, "음성 채널에 연결하지 못했습니다.")
			return
		}
	}

	item, err := player.Enqueue(ctx, rec, 0)
	if err != nil {
		switch {
		case errors.Is(err, music.ErrQueueFull):
			shared.FollowupEphemeral(s, i, "대기열이 가득 찼습니다.")
		default:
			log.Error().Err(err).Str("guild", i.GuildID).Msg("play: enqueue failed")
			shared.FollowupEphemeral(s, i, "재생 요청에 실패했습니다.")
		}
		return
	}

	shared.FollowupEphemeral(s, i, fmt.Sprintf("🎵 %s\n대기열에 추가했습니다.", queueview.RecordLine(item.Record)))
}
