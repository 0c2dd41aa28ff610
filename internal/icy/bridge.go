package icy

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

const (
	// MinAnnounceDelay is the floor applied to the configured status delay.
	MinAnnounceDelay = time.Second

	announceTimeout = 10 * time.Second
)

// StatusSink receives now-playing announcements. The two calls are issued
// concurrently and neither is retried.
type StatusSink interface {
	AnnounceTitle(ctx context.Context, title string) error
	SetPresence(ctx context.Context, title string) error
}

// Bridge turns ICY metadata blocks into debounced status announcements.
// A changed title is announced once it has been stable for delay; titles
// that keep changing inside the window only announce the latest one.
type Bridge struct {
	sink  StatusSink
	delay time.Duration

	mu            sync.Mutex
	lastSeen      string
	lastAnnounced string
	pending       string
	timer         *time.Timer
	gen           uint64
	closed        bool
}

func NewBridge(sink StatusSink, delay time.Duration) *Bridge {
	return &Bridge{
		sink:  sink,
		delay: AnnounceDelay(delay),
	}
}

// AnnounceDelay clamps a configured delay to MinAnnounceDelay.
func AnnounceDelay(configured time.Duration) time.Duration {
	return max(MinAnnounceDelay, configured)
}

func (b *Bridge) Delay() time.Duration {
	return b.delay
}

// HandleMetadata accepts one raw metadata block. Blocks without a title are
// skipped silently.
func (b *Bridge) HandleMetadata(raw []byte) {
	title, ok := Title(raw)
	if !ok || title == "" {
		log.Debug().Msg("icy metadata without stream title, skipping")
		return
	}
	b.Observe(title)
}

// Observe records a parsed title and (re)arms the announcement timer when it
// differs from the previous one.
func (b *Bridge) Observe(title string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed || title == b.lastSeen {
		return
	}
	b.lastSeen = title
	b.pending = title

	if b.timer != nil {
		b.timer.Stop()
	}
	b.gen++
	gen := b.gen
	b.timer = time.AfterFunc(b.delay, func() { b.fire(gen) })
	log.Debug().Str("title", title).Dur("delay", b.delay).Msg("stream title changed")
}

func (b *Bridge) fire(gen uint64) {
	b.mu.Lock()
	if gen != b.gen {
		// superseded by a newer title
		b.mu.Unlock()
		return
	}
	title := b.pending
	b.pending = ""
	b.timer = nil
	if b.closed || title == "" || title == b.lastAnnounced {
		b.mu.Unlock()
		return
	}
	b.lastAnnounced = title
	b.mu.Unlock()

	go b.announce(title)
}

func (b *Bridge) announce(title string) {
	ctx, cancel := context.WithTimeout(context.Background(), announceTimeout)
	defer cancel()

	var g errgroup.Group
	g.Go(func() error {
		if err := b.sink.AnnounceTitle(ctx, title); err != nil {
			log.Warn().Err(err).Str("title", title).Msg("failed to report song status")
			return err
		}
		log.Info().Str("title", title).Msg("reported song status")
		return nil
	})
	g.Go(func() error {
		if err := b.sink.SetPresence(ctx, title); err != nil {
			log.Warn().Err(err).Str("title", title).Msg("failed to set presence")
			return err
		}
		log.Debug().Str("title", title).Msg("set presence to song")
		return nil
	})
	_ = g.Wait()
}

// LastAnnounced returns the most recently announced title.
func (b *Bridge) LastAnnounced() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lastAnnounced
}

// Reset forgets the last seen title and drops a pending announcement. The
// last announced title is kept, so a reconnect that resumes the same song
// does not announce it twice.
func (b *Bridge) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.timer != nil {
		b.timer.Stop()
		b.timer = nil
	}
	b.gen++
	b.pending = ""
	b.lastSeen = ""
}

func (b *Bridge) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.closed = true
	if b.timer != nil {
		b.timer.Stop()
		b.timer = nil
	}
}
