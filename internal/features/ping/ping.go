package ping

import (
	"fmt"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog/log"
)

const RefreshCustomID = "ping_refresh"

// Command answers /핑.
func Command(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if i.Type != discordgo.InteractionApplicationCommand {
		return
	}
	RespondPing(s, i, discordgo.InteractionResponseChannelMessageWithSource)
}

// Route handles the refresh button and reports whether it consumed i.
func Route(s *discordgo.Session, i *discordgo.InteractionCreate) bool {
	if i.Type != discordgo.InteractionMessageComponent {
		return false
	}
	if i.MessageComponentData().CustomID != RefreshCustomID {
		return false
	}

	RespondPing(s, i, discordgo.InteractionResponseUpdateMessage)
	return true
}

func BuildPingComponentsV2(s *discordgo.Session) []discordgo.MessageComponent {
	latency := s.HeartbeatLatency().Round(time.Millisecond)

	guilds := 0
	if s.State != nil {
		guilds = len(s.State.Guilds)
	}

	s.RLock()
	voice := len(s.VoiceConnections)
	s.RUnlock()

	colorLilac := 0xC8A2C8
	divider := true
	spacing := discordgo.SeparatorSpacingSizeSmall

	return []discordgo.MessageComponent{
		discordgo.Container{
			AccentColor: &colorLilac,
			Components: []discordgo.MessageComponent{
				discordgo.TextDisplay{Content: "**퐁!**"},
				discordgo.Separator{Divider: &divider, Spacing: &spacing},
				discordgo.Section{
					Components: []discordgo.MessageComponent{
						discordgo.TextDisplay{Content: fmt.Sprintf("**게이트웨이 지연:** %s", latency)},
						discordgo.TextDisplay{Content: fmt.Sprintf("**서버 수:** %d", guilds)},
						discordgo.TextDisplay{Content: fmt.Sprintf("**음성 연결:** %d", voice)},
					},
					Accessory: discordgo.Button{
						Style:    discordgo.PrimaryButton,
						Label:    "새로고침",
						CustomID: RefreshCustomID,
					},
				},
				discordgo.TextDisplay{Content: fmt.Sprintf("갱신됨 <t:%d:R>", time.Now().Unix())},
			},
		},
	}
}

func RespondPing(s *discordgo.Session, i *discordgo.InteractionCreate, respType discordgo.InteractionResponseType) {
	if s == nil || i == nil {
		return
	}

	err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: respType,
		Data: &discordgo.InteractionResponseData{
			Components: BuildPingComponentsV2(s),
			Flags:      discordgo.MessageFlagsIsComponentsV2 | discordgo.MessageFlagsEphemeral,
		},
	})
	if err != nil {
		log.Warn().Err(err).Msg("failed to respond to ping")
	}
}
