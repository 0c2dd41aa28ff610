package voice

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog/log"
)

const endpointTimeout = 10 * time.Second

// Coordinator is the playback side of a voice link.
type Coordinator interface {
	VoiceLost(guildID string)
	ConsumeManualLeave(guildID string) bool
	Connected(guildID string) bool
}

// Handlers turns discordgo voice and gateway events into supervisor input.
type Handlers struct {
	sup      *Supervisor
	gateway  *GatewaySupervisor
	coord    Coordinator
	channels ChannelResolver

	// awaitEndpoint waits for a guild's voice connection to come back
	// after a server update.
	awaitEndpoint func(s *discordgo.Session, guildID string) <-chan error
}

func NewHandlers(sup *Supervisor, gateway *GatewaySupervisor, coord Coordinator, channels ChannelResolver) *Handlers {
	return &Handlers{
		sup:           sup,
		gateway:       gateway,
		coord:         coord,
		channels:      channels,
		awaitEndpoint: awaitReady,
	}
}

func (h *Handlers) Register(s *discordgo.Session) {
	s.AddHandler(h.onVoiceStateUpdate)
	s.AddHandler(h.onVoiceServerUpdate)
	s.AddHandler(func(_ *discordgo.Session, _ *discordgo.Disconnect) {
		if h.gateway != nil {
			h.gateway.HandleDisconnect()
		}
	})
}

func (h *Handlers) onVoiceStateUpdate(s *discordgo.Session, vs *discordgo.VoiceStateUpdate) {
	if s == nil || s.State == nil || s.State.User == nil {
		return
	}
	h.handleVoiceState(s.State.User.ID, vs)
}

func (h *Handlers) handleVoiceState(botID string, vs *discordgo.VoiceStateUpdate) {
	if vs == nil || vs.VoiceState == nil || vs.GuildID == "" || vs.UserID != botID {
		return
	}
	if vs.BeforeUpdate == nil || vs.BeforeUpdate.ChannelID == "" {
		return
	}
	if vs.ChannelID != "" {
		return
	}

	ref := &ChannelRef{GuildID: vs.GuildID, ChannelID: vs.BeforeUpdate.ChannelID}
	if h.coord.ConsumeManualLeave(vs.GuildID) {
		h.sup.Cancel(ref.ChannelID)
		h.sup.HandleDisconnect(DisconnectEvent{Channel: ref, Manual: true})
		return
	}

	h.coord.VoiceLost(vs.GuildID)

	if h.channels != nil {
		exists, err := h.channels.ChannelExists(ref.GuildID, ref.ChannelID)
		if err == nil && !exists {
			ref = nil
		}
	}
	h.sup.HandleDisconnect(DisconnectEvent{Channel: ref})
}

// onVoiceServerUpdate treats a server update on an established link as an
// endpoint migration.
func (h *Handlers) onVoiceServerUpdate(s *discordgo.Session, vu *discordgo.VoiceServerUpdate) {
	if s == nil || vu == nil || vu.GuildID == "" {
		return
	}
	if !h.coord.Connected(vu.GuildID) {
		return
	}

	s.RLock()
	vc := s.VoiceConnections[vu.GuildID]
	s.RUnlock()
	if vc == nil {
		return
	}

	vc.RLock()
	channelID := vc.ChannelID
	vc.RUnlock()

	h.migrate(vu.GuildID, channelID, h.awaitEndpoint(s, vu.GuildID))
}

func (h *Handlers) migrate(guildID, channelID string, await <-chan error) {
	if channelID == "" {
		return
	}

	result := make(chan error, 1)
	go func() {
		err := <-await
		if err != nil {
			h.coord.VoiceLost(guildID)
		}
		result <- err
	}()

	h.sup.HandleDisconnect(DisconnectEvent{
		Channel:       &ChannelRef{GuildID: guildID, ChannelID: channelID},
		EndpointAwait: result,
	})
}

func awaitReady(s *discordgo.Session, guildID string) <-chan error {
	out := make(chan error, 1)
	go func() {
		deadline := time.Now().Add(endpointTimeout)
		for time.Now().Before(deadline) {
			s.RLock()
			vc := s.VoiceConnections[guildID]
			s.RUnlock()
			if vc == nil {
				out <- errors.New("voice connection closed")
				return
			}
			vc.RLock()
			ready := vc.Ready
			vc.RUnlock()
			if ready {
				out <- nil
				return
			}
			time.Sleep(50 * time.Millisecond)
		}
		out <- fmt.Errorf("voice endpoint not ready after %s", endpointTimeout)
	}()
	return out
}

// SessionChannels resolves channels from the session state cache, falling
// back to the REST API.
type SessionChannels struct {
	Session *discordgo.Session
}

func (c SessionChannels) ChannelExists(guildID, channelID string) (bool, error) {
	if c.Session == nil {
		return false, errors.New("discord session is nil")
	}
	if c.Session.State != nil {
		if ch, err := c.Session.State.Channel(channelID); err == nil {
			return ch.GuildID == guildID, nil
		}
	}

	ch, err := c.Session.Channel(channelID)
	if err != nil {
		var restErr *discordgo.RESTError
		if errors.As(err, &restErr) && restErr.Response != nil && restErr.Response.StatusCode == http.StatusNotFound {
			return false, nil
		}
		return false, err
	}
	return ch.GuildID == guildID, nil
}

// SessionOpener reopens a discordgo gateway, treating an already open
// socket as success.
type SessionOpener struct {
	Session *discordgo.Session
}

func (o SessionOpener) Open() error {
	err := o.Session.Open()
	if errors.Is(err, discordgo.ErrWSAlreadyOpen) {
		log.Debug().Msg("gateway already open")
		return nil
	}
	return err
}
