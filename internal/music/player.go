package music

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/hxnx/cardinal/internal/audio"
	"github.com/hxnx/cardinal/internal/icy"
	"github.com/rs/zerolog/log"
)

var (
	ErrVoiceNotConnected = errors.New("voice connection not established")
	ErrNothingPlaying    = errors.New("nothing is playing")
	ErrLinkNil           = errors.New("voice link is not configured")
)

const defaultIdleDelay = time.Second

// Queue is the storage side the coordinator pulls records from.
type Queue interface {
	Enqueue(ctx context.Context, guildID string, rec Record, priority int) (QueueItem, error)
	Dequeue(ctx context.Context, guildID string) (*QueueItem, error)
	Clear(ctx context.Context, guildID string) error
	GetSettings(ctx context.Context, guildID string) (QueueSettings, error)
	SetSettings(ctx context.Context, guildID string, settings QueueSettings) error
}

// VoiceLink joins a voice channel and hands back a sink for it.
type VoiceLink interface {
	Join(guildID, channelID string) (Sink, error)
	Leave(guildID string) error
}

type CoordinatorOptions struct {
	Queue Queue
	Link  VoiceLink
	// Session carries the transcoder, format and HTTP settings for every
	// session. Volume and OnMetadata are set per guild.
	Session SessionOptions
	// Radio returns the live fallback for a guild with an empty queue.
	Radio func(ctx context.Context, guildID string) (Record, bool)
	// Status returns where a guild's live titles are announced.
	Status        func(guildID string) icy.StatusSink
	StatusDelay   time.Duration
	DefaultVolume int
	IdleDelay     time.Duration
}

// Coordinator owns one Player per guild and receives every session's
// completion.
type Coordinator struct {
	opts CoordinatorOptions

	mu      sync.Mutex
	players map[string]*Player
}

func NewCoordinator(opts CoordinatorOptions) *Coordinator {
	if opts.IdleDelay <= 0 {
		opts.IdleDelay = defaultIdleDelay
	}
	opts.DefaultVolume = ClampVolume(opts.DefaultVolume)
	return &Coordinator{
		opts:    opts,
		players: make(map[string]*Player),
	}
}

func (c *Coordinator) Get(guildID string) *Player {
	c.mu.Lock()
	defer c.mu.Unlock()

	if p, ok := c.players[guildID]; ok {
		return p
	}

	p := &Player{
		guildID: guildID,
		c:       c,
		volume:  audio.NewVolumePercent(c.opts.DefaultVolume),
		percent: c.opts.DefaultVolume,
		wakeCh:  make(chan struct{}, 1),
	}
	if c.opts.Status != nil {
		if sink := c.opts.Status(guildID); sink != nil {
			p.bridge = icy.NewBridge(sink, c.opts.StatusDelay)
		}
	}
	c.players[guildID] = p
	return p
}

func (c *Coordinator) lookup(guildID string) *Player {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.players[guildID]
}

// QueuedDonePlaying routes a session outcome to its guild's worker.
func (c *Coordinator) QueuedDonePlaying(m *QueuedMedia, res Result) {
	p := c.lookup(m.GuildID())
	if p == nil {
		return
	}
	p.mu.Lock()
	done := p.doneCh
	p.mu.Unlock()
	if done == nil {
		return
	}
	select {
	case done <- finished{media: m, result: res}:
	default:
		log.Warn().Str("guild", m.GuildID()).Msg("dropping stale completion")
	}
}

// Join connects a guild to channelID and starts its worker.
func (c *Coordinator) Join(guildID, channelID string) error {
	return c.Get(guildID).Connect(channelID)
}

// VoiceLost detaches a guild's sink after an involuntary disconnect.
func (c *Coordinator) VoiceLost(guildID string) {
	if p := c.lookup(guildID); p != nil {
		p.voiceLost()
	}
}

// Connected reports whether guildID currently has a voice sink.
func (c *Coordinator) Connected(guildID string) bool {
	p := c.lookup(guildID)
	return p != nil && p.HasVoiceConnection()
}

// ConsumeManualLeave reports whether the last disconnect of guildID was
// requested by a command, clearing the mark.
func (c *Coordinator) ConsumeManualLeave(guildID string) bool {
	p := c.lookup(guildID)
	if p == nil {
		return false
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	manual := p.manualLeave
	p.manualLeave = false
	return manual
}

func (c *Coordinator) Close() {
	c.mu.Lock()
	players := make([]*Player, 0, len(c.players))
	for _, p := range c.players {
		players = append(players, p)
	}
	c.mu.Unlock()

	for _, p := range players {
		p.shutdown()
	}
}

type finished struct {
	media  *QueuedMedia
	result Result
}

type stopReason int

const (
	reasonNone stopReason = iota
	reasonSkip
	reasonInterrupt
	reasonVoiceLost
)

type Player struct {
	guildID string
	c       *Coordinator
	volume  *audio.Volume
	bridge  *icy.Bridge

	wakeCh chan struct{}

	mu          sync.Mutex
	doneCh      chan finished
	sink        Sink
	channelID   string
	current     *QueuedMedia
	reason      stopReason
	percent     int
	manualLeave bool
	cancel      context.CancelFunc
}

func (p *Player) GuildID() string { return p.guildID }

func (p *Player) ChannelID() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.channelID
}

func (p *Player) HasVoiceConnection() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.sink != nil
}

// Connect joins channelID through the voice link and (re)arms playback.
func (p *Player) Connect(channelID string) error {
	if p.c.opts.Link == nil {
		return ErrLinkNil
	}
	if channelID == "" {
		return fmt.Errorf("channel ID is empty")
	}

	sink, err := p.c.opts.Link.Join(p.guildID, channelID)
	if err != nil {
		return err
	}

	p.mu.Lock()
	p.sink = sink
	p.channelID = channelID
	p.manualLeave = false
	p.mu.Unlock()

	p.ensureWorker()
	p.signalWake()
	return nil
}

// Enqueue adds rec to the guild queue. A playing live stream yields to it.
func (p *Player) Enqueue(ctx context.Context, rec Record, priority int) (QueueItem, error) {
	if p.c.opts.Queue == nil {
		return QueueItem{}, ErrQueueStoreNil
	}
	item, err := p.c.opts.Queue.Enqueue(ctx, p.guildID, rec, priority)
	if err != nil {
		return QueueItem{}, err
	}

	p.mu.Lock()
	current := p.current
	if current != nil && current.Kind() == MediaKindLive {
		p.reason = reasonInterrupt
	} else {
		current = nil
	}
	p.mu.Unlock()

	if current != nil {
		log.Debug().Str("guild", p.guildID).Msg("interrupting radio for queued item")
		current.Stop()
	}
	p.signalWake()
	return item, nil
}

func (p *Player) Skip() error {
	p.mu.Lock()
	current := p.current
	if current == nil {
		p.mu.Unlock()
		return ErrNothingPlaying
	}
	p.reason = reasonSkip
	p.mu.Unlock()

	current.Stop()
	return nil
}

// Stop ends playback and leaves the voice channel. The resulting
// disconnect is marked manual so it is not reconnected.
func (p *Player) Stop(clearQueue bool) error {
	p.mu.Lock()
	current := p.current
	cancel := p.cancel
	p.cancel = nil
	p.sink = nil
	p.channelID = ""
	p.manualLeave = true
	p.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if current != nil {
		current.Stop()
	}
	if p.bridge != nil {
		p.bridge.Reset()
	}

	if clearQueue && p.c.opts.Queue != nil {
		if err := p.c.opts.Queue.Clear(context.Background(), p.guildID); err != nil {
			log.Warn().Err(err).Str("guild", p.guildID).Msg("failed to clear queue")
		}
	}

	if p.c.opts.Link == nil {
		return nil
	}
	return p.c.opts.Link.Leave(p.guildID)
}

// TogglePause flips the current session's cork state and reports whether
// playback is now paused.
func (p *Player) TogglePause() (bool, error) {
	p.mu.Lock()
	current := p.current
	p.mu.Unlock()

	if current == nil {
		return false, ErrNothingPlaying
	}
	current.Pause()
	return current.Paused(), nil
}

// SetVolume applies percent (clamped to 0..100) to the running stream and
// stores it in the guild settings.
func (p *Player) SetVolume(ctx context.Context, percent int) (int, error) {
	percent = ClampVolume(percent)
	p.volume.SetGain(audio.PercentToGain(percent))

	p.mu.Lock()
	p.percent = percent
	p.mu.Unlock()

	if p.c.opts.Queue == nil {
		return percent, nil
	}
	settings, err := p.c.opts.Queue.GetSettings(ctx, p.guildID)
	if err != nil {
		return percent, err
	}
	settings.Volume = percent
	return percent, p.c.opts.Queue.SetSettings(ctx, p.guildID, settings)
}

func (p *Player) Volume() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.percent
}

// Paused reports whether the current session is corked.
func (p *Player) Paused() bool {
	p.mu.Lock()
	current := p.current
	p.mu.Unlock()
	return current != nil && current.Paused()
}

// NowPlaying returns the current record and its playback clock.
func (p *Player) NowPlaying() (Record, time.Duration, bool) {
	p.mu.Lock()
	current := p.current
	p.mu.Unlock()

	if current == nil {
		return Record{}, 0, false
	}
	clock, _ := current.Clock()
	return current.Record(), clock, true
}

func (p *Player) voiceLost() {
	p.mu.Lock()
	p.sink = nil
	current := p.current
	if current != nil {
		p.reason = reasonVoiceLost
	}
	p.mu.Unlock()

	if current == nil {
		return
	}

	if rec := current.Record(); rec.Kind != MediaKindLive {
		p.requeue(rec)
	}
	current.Stop()
}

// requeue puts rec back at the head of the queue.
func (p *Player) requeue(rec Record) {
	if p.c.opts.Queue == nil {
		return
	}
	rec.Formats = nil
	if _, err := p.c.opts.Queue.Enqueue(context.Background(), p.guildID, rec, RequeuePriority); err != nil {
		log.Warn().Err(err).Str("guild", p.guildID).Msg("failed to requeue interrupted item")
	}
}

func (p *Player) shutdown() {
	p.mu.Lock()
	current := p.current
	cancel := p.cancel
	p.cancel = nil
	p.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if current != nil {
		current.Stop()
	}
	if p.bridge != nil {
		p.bridge.Close()
	}
}

func (p *Player) ensureWorker() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	p.doneCh = make(chan finished, 4)

	go p.workerLoop(ctx, p.doneCh)
}

func (p *Player) signalWake() {
	select {
	case p.wakeCh <- struct{}{}:
	default:
	}
}

func (p *Player) wait(ctx context.Context, d time.Duration) bool {
	var timeout <-chan time.Time
	if d > 0 {
		timer := time.NewTimer(d)
		defer timer.Stop()
		timeout = timer.C
	}
	select {
	case <-ctx.Done():
		return false
	case <-p.wakeCh:
		return true
	case <-timeout:
		return true
	}
}

// workerLoop runs until its context is cancelled by Stop or shutdown.
func (p *Player) workerLoop(ctx context.Context, done <-chan finished) {
	p.loadSettings(ctx)

	for {
		if ctx.Err() != nil {
			return
		}

		if !p.HasVoiceConnection() {
			if !p.wait(ctx, 0) {
				return
			}
			continue
		}

		rec, fromQueue, err := p.next(ctx)
		if err != nil {
			if errors.Is(err, ErrQueueEmpty) {
				if !p.wait(ctx, 0) {
					return
				}
				continue
			}
			log.Error().Err(err).Str("guild", p.guildID).Msg("music worker error")
			if !p.wait(ctx, p.c.opts.IdleDelay) {
				return
			}
			continue
		}

		if !p.playWithRepeat(ctx, done, rec, fromQueue) {
			return
		}
	}
}

// next pops the queue, falling back to the guild's radio stream.
func (p *Player) next(ctx context.Context) (Record, bool, error) {
	if p.c.opts.Queue == nil {
		return Record{}, false, ErrQueueStoreNil
	}

	item, err := p.c.opts.Queue.Dequeue(ctx, p.guildID)
	if err == nil && item != nil {
		return item.Record, true, nil
	}
	if err != nil && !errors.Is(err, ErrQueueEmpty) {
		return Record{}, false, err
	}

	if p.c.opts.Radio != nil {
		if rec, ok := p.c.opts.Radio(ctx, p.guildID); ok {
			rec.GuildID = p.guildID
			return rec, false, nil
		}
	}
	return Record{}, false, ErrQueueEmpty
}

// playWithRepeat plays rec and applies the guild's repeat mode. It returns
// false once the worker should exit.
func (p *Player) playWithRepeat(ctx context.Context, done <-chan finished, rec Record, fromQueue bool) bool {
	for {
		res, reason, ok := p.play(ctx, done, rec)
		if !ok {
			return false
		}

		if errors.Is(res.Err, ErrVoiceNotConnected) {
			if fromQueue {
				p.requeue(rec)
			}
			return true
		}

		if rec.Kind == MediaKindLive {
			if p.bridge != nil {
				p.bridge.Reset()
			}
			if reason == reasonNone {
				// stream dropped; give the station a moment before reconnecting
				return p.wait(ctx, p.c.opts.IdleDelay)
			}
			return true
		}

		if reason != reasonNone || res.Outcome == OutcomeFailed || !fromQueue {
			return true
		}

		settings := p.settings(ctx)
		switch settings.RepeatMode {
		case RepeatModeTrack:
			continue
		case RepeatModeQueue:
			rec.Formats = nil
			if _, err := p.c.opts.Queue.Enqueue(ctx, p.guildID, rec, 0); err != nil {
				log.Warn().Err(err).Str("guild", p.guildID).Msg("failed to repeat queue item")
			}
		}
		return true
	}
}

// play runs one session to its end.
func (p *Player) play(ctx context.Context, done <-chan finished, rec Record) (Result, stopReason, bool) {
	opts := p.c.opts.Session
	opts.Volume = p.volume
	opts.OnMetadata = nil
	if rec.Kind == MediaKindLive && p.bridge != nil {
		opts.OnMetadata = p.bridge.HandleMetadata
	}

	m, err := NewQueuedMedia(p.c, rec, opts)
	if err != nil {
		log.Warn().Err(err).Str("guild", p.guildID).Str("title", rec.Title).Msg("skipping unplayable item")
		return Result{Outcome: OutcomeFailed, Err: err}, reasonNone, true
	}

	p.mu.Lock()
	sink := p.sink
	if sink == nil {
		p.mu.Unlock()
		return Result{Outcome: OutcomeStopped, Err: ErrVoiceNotConnected}, reasonVoiceLost, true
	}
	p.current = m
	p.reason = reasonNone
	p.mu.Unlock()

	log.Info().Str("guild", p.guildID).Str("kind", string(rec.Kind)).Str("title", rec.Title).Msg("now playing")
	m.Play(sink)

	var res Result
	for finishedPlaying := false; !finishedPlaying; {
		select {
		case f := <-done:
			if f.media != m {
				continue
			}
			res = f.result
			finishedPlaying = true
		case <-ctx.Done():
			m.Stop()
			p.clearCurrent(m)
			return Result{Outcome: OutcomeStopped}, reasonNone, false
		}
	}

	reason := p.clearCurrent(m)
	if res.Outcome == OutcomeFailed {
		log.Warn().Err(res.Err).Str("guild", p.guildID).Str("title", rec.Title).Msg("playback failed")
	}
	return res, reason, true
}

func (p *Player) clearCurrent(m *QueuedMedia) stopReason {
	p.mu.Lock()
	defer p.mu.Unlock()
	reason := p.reason
	if p.current == m {
		p.current = nil
	}
	p.reason = reasonNone
	return reason
}

func (p *Player) settings(ctx context.Context) QueueSettings {
	settings := QueueSettings{RepeatMode: RepeatModeNone, Volume: p.Volume()}
	if p.c.opts.Queue == nil {
		return settings
	}
	s, err := p.c.opts.Queue.GetSettings(ctx, p.guildID)
	if err != nil {
		return settings
	}
	return s
}

func (p *Player) loadSettings(ctx context.Context) {
	settings := p.settings(ctx)
	percent := ClampVolume(settings.Volume)
	p.volume.SetGain(audio.PercentToGain(percent))
	p.mu.Lock()
	p.percent = percent
	p.mu.Unlock()
}
