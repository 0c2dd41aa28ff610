package voice

import (
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

var ErrChannelGone = errors.New("voice channel no longer exists")

const (
	DefaultRetryUnit     = time.Second
	EndpointFailureDelay = 5 * time.Second
	RetryCeiling         = 5
)

// ChannelRef identifies a voice channel inside a guild.
type ChannelRef struct {
	GuildID   string
	ChannelID string
}

// DisconnectEvent describes a dropped voice link.
//
// Channel is nil when the channel the bot was in has been deleted.
// EndpointAwait, when set, delivers the outcome of a voice server
// migration already in progress: nil means the link came back on its own.
type DisconnectEvent struct {
	Channel       *ChannelRef
	Manual        bool
	EndpointAwait <-chan error
}

type Joiner interface {
	Join(guildID, channelID string) error
}

// ChannelResolver looks a channel up again before each join attempt.
type ChannelResolver interface {
	ChannelExists(guildID, channelID string) (bool, error)
}

type Options struct {
	Joiner   Joiner
	Resolver ChannelResolver

	// Unit is multiplied by the retry count to get the backoff delay.
	Unit          time.Duration
	EndpointDelay time.Duration
	Ceiling       int

	OnConnected func(ref ChannelRef)
}

type loop struct {
	retryCount int
	quit       chan struct{}
}

// Supervisor restores voice links after involuntary disconnects. At most
// one reconnect loop runs per channel.
type Supervisor struct {
	opts  Options
	after func(time.Duration) <-chan time.Time

	mu     sync.Mutex
	loops  map[string]*loop
	closed bool
	wg     sync.WaitGroup
}

func NewSupervisor(opts Options) *Supervisor {
	if opts.Unit <= 0 {
		opts.Unit = DefaultRetryUnit
	}
	if opts.EndpointDelay <= 0 {
		opts.EndpointDelay = EndpointFailureDelay
	}
	if opts.Ceiling <= 0 {
		opts.Ceiling = RetryCeiling
	}
	return &Supervisor{
		opts:  opts,
		after: time.After,
		loops: make(map[string]*loop),
	}
}

func (s *Supervisor) HandleDisconnect(ev DisconnectEvent) {
	if ev.Channel == nil {
		log.Warn().Msg("voice channel deleted, not reconnecting")
		return
	}
	ref := *ev.Channel
	if ev.Manual {
		log.Debug().Str("guild", ref.GuildID).Str("channel", ref.ChannelID).Msg("manual voice leave")
		return
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	if _, running := s.loops[ref.ChannelID]; running {
		s.mu.Unlock()
		log.Debug().Str("channel", ref.ChannelID).Msg("reconnect already in progress")
		return
	}
	l := &loop{retryCount: 1, quit: make(chan struct{})}
	s.loops[ref.ChannelID] = l
	s.wg.Add(1)
	s.mu.Unlock()

	go s.run(ref, l, ev.EndpointAwait)
}

// Cancel aborts the reconnect loop for channelID, if any.
func (s *Supervisor) Cancel(channelID string) {
	s.mu.Lock()
	l, ok := s.loops[channelID]
	if ok {
		delete(s.loops, channelID)
		close(l.quit)
	}
	s.mu.Unlock()
}

// Reconnecting reports whether a loop is active for channelID.
func (s *Supervisor) Reconnecting(channelID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.loops[channelID]
	return ok
}

// RetryCount returns the retry count of the active loop for channelID, or
// zero when there is none.
func (s *Supervisor) RetryCount(channelID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if l, ok := s.loops[channelID]; ok {
		return l.retryCount
	}
	return 0
}

// Close cancels every loop and waits for them to exit.
func (s *Supervisor) Close() {
	s.mu.Lock()
	s.closed = true
	for id, l := range s.loops {
		delete(s.loops, id)
		close(l.quit)
	}
	s.mu.Unlock()
	s.wg.Wait()
}

func (s *Supervisor) run(ref ChannelRef, l *loop, endpoint <-chan error) {
	defer s.wg.Done()
	logger := log.With().Str("guild", ref.GuildID).Str("channel", ref.ChannelID).Logger()

	if endpoint != nil {
		select {
		case <-l.quit:
			return
		case err := <-endpoint:
			if err == nil {
				logger.Info().Msg("voice endpoint migrated")
				s.connected(ref, l)
				return
			}
			logger.Warn().Err(err).Msg("voice endpoint wait failed")
		}
		if !s.sleep(l, s.opts.EndpointDelay) {
			return
		}
	} else if !s.sleep(l, s.backoff(l)) {
		return
	}

	for {
		err := s.attempt(ref)
		if err == nil {
			logger.Info().Msg("voice link restored")
			s.connected(ref, l)
			return
		}
		if errors.Is(err, ErrChannelGone) {
			logger.Error().Err(err).Msg("giving up voice reconnect")
			s.drop(ref.ChannelID, l)
			return
		}

		s.mu.Lock()
		l.retryCount++
		count := l.retryCount
		s.mu.Unlock()

		if count > s.opts.Ceiling {
			logger.Error().Err(err).Int("attempt", count).Msg("voice reconnect retries exhausted, still retrying")
		} else {
			logger.Warn().Err(err).Int("attempt", count).Msg("voice reconnect failed")
		}

		if !s.sleep(l, s.backoff(l)) {
			return
		}
	}
}

func (s *Supervisor) attempt(ref ChannelRef) error {
	if s.opts.Resolver != nil {
		exists, err := s.opts.Resolver.ChannelExists(ref.GuildID, ref.ChannelID)
		if err != nil {
			return err
		}
		if !exists {
			return ErrChannelGone
		}
	}
	if s.opts.Joiner == nil {
		return errors.New("voice joiner is not configured")
	}
	return s.opts.Joiner.Join(ref.GuildID, ref.ChannelID)
}

func (s *Supervisor) backoff(l *loop) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.opts.Unit * time.Duration(l.retryCount)
}

func (s *Supervisor) sleep(l *loop, d time.Duration) bool {
	select {
	case <-l.quit:
		return false
	case <-s.after(d):
		return true
	}
}

func (s *Supervisor) connected(ref ChannelRef, l *loop) {
	s.mu.Lock()
	l.retryCount = 1
	s.mu.Unlock()
	s.drop(ref.ChannelID, l)

	if s.opts.OnConnected != nil {
		s.opts.OnConnected(ref)
	}
}

func (s *Supervisor) drop(channelID string, l *loop) {
	s.mu.Lock()
	if cur, ok := s.loops[channelID]; ok && cur == l {
		delete(s.loops, channelID)
	}
	s.mu.Unlock()
}
