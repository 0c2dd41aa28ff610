package bot

import (
	"context"
	"fmt"
	"strings"

	"github.com/bwmarrin/discordgo"
	"github.com/hxnx/cardinal/internal/database"
	"github.com/rs/zerolog/log"
)

const maxPresenceLength = 128

type messenger interface {
	ChannelMessageSend(channelID string, content string, options ...discordgo.RequestOption) (*discordgo.Message, error)
	UpdateListeningStatus(name string) error
}

// statusSink announces a guild's radio titles in its bound text channel
// and mirrors them into the bot's listening status.
type statusSink struct {
	guildID  string
	discord  messenger
	bindings *radioBindings
	history  *database.HistoryRepository
}

func (s *statusSink) AnnounceTitle(ctx context.Context, title string) error {
	channelID := s.bindings.textChannel(s.guildID)
	if channelID == "" {
		return fmt.Errorf("guild %s has no announcement channel", s.guildID)
	}

	if _, err := s.discord.ChannelMessageSend(channelID, nowPlayingMessage(title), discordgo.WithContext(ctx)); err != nil {
		return err
	}

	if err := s.history.Record(ctx, s.guildID, title); err != nil {
		log.Warn().Err(err).Str("guild", s.guildID).Msg("failed to record now playing")
	}
	return nil
}

func (s *statusSink) SetPresence(_ context.Context, title string) error {
	return s.discord.UpdateListeningStatus(presenceText(title))
}

func nowPlayingMessage(title string) string {
	return fmt.Sprintf("📻 **Now playing:** %s", discordEscape(title))
}

func presenceText(title string) string {
	runes := []rune(strings.TrimSpace(title))
	if len(runes) > maxPresenceLength {
		runes = runes[:maxPresenceLength]
	}
	return string(runes)
}

var markdownEscaper = strings.NewReplacer(
	`\`, `\\`,
	"*", `\*`,
	"_", `\_`,
	"~", `\~`,
	"`", "\\`",
	"|", `\|`,
	"@", "@\u200b",
)

func discordEscape(s string) string {
	return markdownEscaper.Replace(s)
}
