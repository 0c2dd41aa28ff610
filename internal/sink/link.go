package sink

import (
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/hxnx/cardinal/internal/music"
)

var ErrNoSession = errors.New("discord session is nil")

const readyTimeout = 10 * time.Second

// Link joins and leaves voice channels through a discordgo session.
type Link struct {
	session *discordgo.Session
}

func NewLink(s *discordgo.Session) *Link {
	return &Link{session: s}
}

func (l *Link) Join(guildID, channelID string) (music.Sink, error) {
	if l.session == nil {
		return nil, ErrNoSession
	}
	if channelID == "" {
		return nil, fmt.Errorf("channel ID is empty")
	}

	vc, err := l.session.ChannelVoiceJoin(guildID, channelID, false, true)
	if err != nil {
		return nil, err
	}
	if err := WaitReady(vc, readyTimeout); err != nil {
		return nil, err
	}
	return NewVoice(vc), nil
}

func (l *Link) Leave(guildID string) error {
	vc := l.connection(guildID)
	if vc == nil {
		return nil
	}
	return vc.Disconnect()
}

func (l *Link) connection(guildID string) *discordgo.VoiceConnection {
	if l.session == nil {
		return nil
	}
	l.session.RLock()
	defer l.session.RUnlock()
	return l.session.VoiceConnections[guildID]
}

// WaitReady polls vc until it reports ready or timeout elapses.
func WaitReady(vc *discordgo.VoiceConnection, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for !isReady(vc) {
		if time.Now().After(deadline) {
			return ErrVoiceNotReady
		}
		time.Sleep(50 * time.Millisecond)
	}
	return nil
}

// isReady reads vc.Ready under the connection lock discordgo writes it with.
func isReady(vc *discordgo.VoiceConnection) bool {
	if vc == nil {
		return false
	}
	vc.RLock()
	defer vc.RUnlock()
	return vc.Ready
}
