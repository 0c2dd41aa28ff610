package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/hxnx/cardinal/internal/features/shared"
	"github.com/rs/zerolog/log"
)

func (h *Handlers) Stop(s *discordgo.Session, i *discordgo.InteractionCreate) {
	player := h.app.Coordinator.Get(i.GuildID)
	if !player.HasVoiceConnection() {
		shared.RespondEphemeral(s, i, "정지할 재생이 없습니다.")
		return
	}

	if err := player.Stop(true); err != nil {
		log.Warn().Err(err).Str("guild", i.GuildID).Msg("stop: leave failed")
	}
	shared.RespondEphemeral(s, i, "재생을 정지하고 대기열을 비웠습니다.")
}

func (h *Handlers) Skip(s *discordgo.Session, i *discordgo.InteractionCreate) {
	player := h.app.Coordinator.Get(i.GuildID)
	if err := player.Skip(); err != nil {
		shared.RespondEphemeral(s, i, "스킵할 곡이 없습니다.")
		return
	}

	shared.RespondEphemeral(s, i, "다음 곡으로 넘어갑니다.")
}

func (h *Handlers) Pause(s *discordgo.Session, i *discordgo.InteractionCreate) {
	paused, err := h.app.Coordinator.Get(i.GuildID).TogglePause()
	if err != nil {
		shared.RespondEphemeral(s, i, "재생 중인 곡이 없습니다.")
		return
	}

	if paused {
		shared.RespondEphemeral(s, i, "⏸️ 일시정지했습니다.")
		return
	}
	shared.RespondEphemeral(s, i, "▶️ 다시 재생합니다.")
}

func (h *Handlers) Volume(s *discordgo.Session, i *discordgo.InteractionCreate, options []*discordgo.ApplicationCommandInteractionDataOption) {
	player := h.app.Coordinator.Get(i.GuildID)

	value, ok := shared.GetOptionInt64(options, "크기")
	if !ok {
		shared.RespondEphemeral(s, i, fmt.Sprintf("🔊 현재 볼륨: %d%%", player.Volume()))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	applied, err := player.SetVolume(ctx, int(value))
	if err != nil {
		log.Warn().Err(err).Str("guild", i.GuildID).Msg("volume: failed to save settings")
	}
	shared.RespondEphemeral(s, i, fmt.Sprintf("🔊 볼륨을 %d%%로 설정했습니다.", applied))
}
