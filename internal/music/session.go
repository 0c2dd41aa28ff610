package music

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/hxnx/cardinal/internal/audio"
	"github.com/hxnx/cardinal/internal/icy"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var (
	ErrUnknownMediaKind = errors.New("unknown media kind")
	ErrMissingLocator   = errors.New("missing media locator")
	ErrNoFormats        = errors.New("no playable formats")
	ErrUpstreamStatus   = errors.New("upstream returned non-success status")
	ErrUpstreamRequest  = errors.New("upstream request failed")
	ErrTranscoder       = errors.New("transcoder failed")
	ErrSinkFailed       = errors.New("voice sink failed")
)

const (
	DefaultRedirectRetryDelay = time.Second
	defaultOutputFormat       = "s16le"
)

type SessionState int

const (
	StateIdle SessionState = iota
	StatePlaying
	StateCompleted
	StateFailed
	StateStopped
)

func (s SessionState) terminal() bool {
	return s >= StateCompleted
}

func (s SessionState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StatePlaying:
		return "playing"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

func stateFor(o Outcome) SessionState {
	switch o {
	case OutcomeCompleted:
		return StateCompleted
	case OutcomeStopped:
		return StateStopped
	default:
		return StateFailed
	}
}

type SessionOptions struct {
	Transcoders TranscoderFactory
	Formats     FormatResolver
	HTTPClient  *http.Client
	Volume      *audio.Volume
	// OnMetadata receives raw ICY metadata blocks of live streams.
	OnMetadata         func([]byte)
	RedirectRetryDelay time.Duration
	// ReadTimeout ends the session when an upstream body goes silent.
	ReadTimeout time.Duration
	OutputArgs  []string
}

// attachment is the transcoder/stream pair of a playing session. Both are
// torn down together.
type attachment struct {
	transcoder Transcoder
	stream     Stream
	body       io.Closer
	quit       chan struct{}
}

func (a *attachment) teardown() {
	close(a.quit)
	a.stream.UnpipeAll()
	if err := a.transcoder.Stop(); err != nil {
		log.Debug().Err(err).Msg("transcoder stop")
	}
	a.transcoder.Destroy()
	if a.body != nil {
		_ = a.body.Close()
	}
}

// QueuedMedia owns the playback of one queued record.
type QueuedMedia struct {
	reporter Reporter
	opts     SessionOptions
	direct   *http.Client
	logger   zerolog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu          sync.Mutex
	rec         Record
	state       SessionState
	att         *attachment
	corked      bool
	clock       time.Duration
	hasClock    bool
	formats     []Format
	formatIndex int
}

func NewQueuedMedia(reporter Reporter, rec Record, opts SessionOptions) (*QueuedMedia, error) {
	if !rec.Kind.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownMediaKind, rec.Kind)
	}
	if err := checkLocator(rec); err != nil {
		return nil, err
	}
	if rec.Duration < 0 {
		rec.Duration = 0
	}
	if opts.Transcoders == nil {
		opts.Transcoders = NewFFmpegFactory("")
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = streamClient
	}
	if opts.Volume == nil {
		opts.Volume = audio.NewVolume(1)
	}
	if opts.RedirectRetryDelay <= 0 {
		opts.RedirectRetryDelay = DefaultRedirectRetryDelay
	}
	if opts.ReadTimeout <= 0 {
		opts.ReadTimeout = DefaultReadTimeout
	}

	ctx, cancel := context.WithCancel(context.Background())
	m := &QueuedMedia{
		reporter: reporter,
		opts:     opts,
		direct:   withoutRedirects(opts.HTTPClient),
		ctx:      ctx,
		cancel:   cancel,
		rec:      rec,
		formats:  append([]Format(nil), rec.Formats...),
	}
	m.logger = log.With().
		Str("guild", rec.GuildID).
		Str("kind", string(rec.Kind)).
		Str("media", rec.label()).
		Logger()
	return m, nil
}

func checkLocator(rec Record) error {
	switch rec.Kind {
	case MediaKindRemote:
		if rec.ID == "" && rec.URL == "" && len(rec.Formats) == 0 {
			return fmt.Errorf("%w: remote item needs an id or url", ErrMissingLocator)
		}
	case MediaKindLocal:
		if rec.Path == "" {
			return fmt.Errorf("%w: local item needs a path", ErrMissingLocator)
		}
	case MediaKindLive:
		if rec.URL == "" {
			return fmt.Errorf("%w: live item needs a url", ErrMissingLocator)
		}
	}
	return nil
}

func (r Record) label() string {
	if r.ID != "" {
		return r.ID
	}
	if r.URL != "" {
		return r.URL
	}
	return r.Path
}

func withoutRedirects(c *http.Client) *http.Client {
	cp := *c
	cp.CheckRedirect = func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}
	return &cp
}

func (m *QueuedMedia) Kind() MediaKind { return m.rec.Kind }

func (m *QueuedMedia) GuildID() string { return m.rec.GuildID }

func (m *QueuedMedia) OwnerID() string { return m.rec.OwnerID }

// Record returns a snapshot; URL and Encoding follow format switches.
func (m *QueuedMedia) Record() Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec := m.rec
	rec.Formats = append([]Format(nil), m.formats...)
	return rec
}

func (m *QueuedMedia) State() SessionState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Clock returns the last timestamp reported by the sink.
func (m *QueuedMedia) Clock() (time.Duration, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.clock, m.hasClock
}

func (m *QueuedMedia) Paused() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.corked
}

// Play starts the source strategy for the record's kind and wires the
// transcoder output through the volume filter into sink. It blocks until
// the stream is attached or the session has terminated; the outcome is
// always delivered through the Reporter.
func (m *QueuedMedia) Play(sink Sink) {
	m.mu.Lock()
	if m.state != StateIdle {
		m.mu.Unlock()
		return
	}
	m.state = StatePlaying
	m.mu.Unlock()

	switch m.rec.Kind {
	case MediaKindRemote:
		m.playRemote(sink)
	case MediaKindLocal:
		m.playLocal(sink)
	case MediaKindLive:
		m.playLive(sink)
	}
}

func (m *QueuedMedia) playLocal(sink Sink) {
	m.logger.Debug().Str("path", m.rec.Path).Msg("playLocal")

	m.attach(sink, TranscoderOptions{
		Source:     m.rec.Path,
		Format:     defaultOutputFormat,
		OutputArgs: m.opts.OutputArgs,
	}, nil)
}

func (m *QueuedMedia) playRemote(sink Sink) {
	if err := m.loadFormats(); err != nil {
		if m.ctx.Err() != nil {
			return
		}
		m.finish(OutcomeFailed, err)
		return
	}

	retried := false
	for {
		format := m.currentFormat()
		m.logger.Debug().Str("encoding", format.Encoding).Bool("retry", retried).Msg("playRemote")

		resp, err := m.get(m.direct, format.URL, nil)
		if err != nil {
			if m.ctx.Err() != nil {
				return
			}
			m.logger.Debug().Err(err).Msg("request error")
			m.finish(OutcomeFailed, fmt.Errorf("%w: %v", ErrUpstreamRequest, err))
			return
		}
		m.logger.Debug().Int("status", resp.StatusCode).Msg("have response")

		if isRedirect(resp.StatusCode) {
			_ = resp.Body.Close()

			if m.advanceFormat() {
				m.logger.Debug().Msg("redirected, switching to next format")
				retried = false
				continue
			}
			if !retried {
				m.logger.Debug().Dur("delay", m.opts.RedirectRetryDelay).Msg("redirected, retrying once")
				retried = true
				if !m.sleep(m.opts.RedirectRetryDelay) {
					return
				}
				continue
			}
		}

		if resp.StatusCode != http.StatusOK {
			_ = resp.Body.Close()
			m.logger.Debug().Int("status", resp.StatusCode).Msg("error playing")
			m.finish(OutcomeFailed, fmt.Errorf("%w: %d", ErrUpstreamStatus, resp.StatusCode))
			return
		}

		body := m.watchBody(resp.Body)
		m.attach(sink, TranscoderOptions{
			Input:      body,
			Format:     defaultOutputFormat,
			OutputArgs: m.opts.OutputArgs,
		}, body)
		return
	}
}

func (m *QueuedMedia) playLive(sink Sink) {
	m.logger.Debug().Str("url", m.rec.URL).Msg("playLive")

	resp, err := m.get(m.opts.HTTPClient, m.rec.URL, http.Header{"Icy-MetaData": []string{"1"}})
	if err != nil {
		if m.ctx.Err() != nil {
			return
		}
		m.finish(OutcomeFailed, fmt.Errorf("%w: %v", ErrUpstreamRequest, err))
		return
	}
	if resp.StatusCode != http.StatusOK {
		_ = resp.Body.Close()
		m.finish(OutcomeFailed, fmt.Errorf("%w: %d", ErrUpstreamStatus, resp.StatusCode))
		return
	}

	metaInt, err := icy.MetaInt(resp.Header)
	if err != nil {
		m.logger.Warn().Err(err).Msg("ignoring stream metadata")
		metaInt = 0
	}
	m.logger.Debug().Int("metaint", metaInt).Str("name", resp.Header.Get("icy-name")).Msg("received icy response")

	body := m.watchBody(resp.Body)
	m.attach(sink, TranscoderOptions{
		Input:      icy.NewReader(body, metaInt, m.opts.OnMetadata),
		Format:     defaultOutputFormat,
		OutputArgs: m.opts.OutputArgs,
	}, body)
}

// watchBody fails the session when the upstream stops sending bytes.
func (m *QueuedMedia) watchBody(body io.ReadCloser) *idleReader {
	return newIdleReader(body, m.opts.ReadTimeout, func() {
		m.logger.Warn().Dur("timeout", m.opts.ReadTimeout).Msg("upstream stalled")
		m.finish(OutcomeFailed, fmt.Errorf("%w: %w", ErrUpstreamRequest, ErrUpstreamStalled))
	})
}

func (m *QueuedMedia) get(client *http.Client, url string, header http.Header) (*http.Response, error) {
	req, err := http.NewRequestWithContext(m.ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	for k, v := range header {
		req.Header[k] = v
	}
	return client.Do(req)
}

func (m *QueuedMedia) sleep(d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-m.ctx.Done():
		return false
	}
}

func isRedirect(status int) bool {
	switch status {
	case http.StatusMovedPermanently, http.StatusFound, http.StatusSeeOther,
		http.StatusTemporaryRedirect, http.StatusPermanentRedirect:
		return true
	default:
		return false
	}
}

func (m *QueuedMedia) loadFormats() error {
	m.mu.Lock()
	have := len(m.formats) > 0
	if have {
		m.rec.URL = m.formats[m.formatIndex].URL
		m.rec.Encoding = m.formats[m.formatIndex].Encoding
	}
	rec := m.rec
	m.mu.Unlock()
	if have {
		return nil
	}

	var formats []Format
	if m.opts.Formats != nil {
		resolved, err := m.opts.Formats.Formats(m.ctx, rec)
		if err != nil {
			return err
		}
		formats = resolved
	} else if rec.URL != "" {
		formats = []Format{{URL: rec.URL, Encoding: rec.Encoding}}
	}
	if len(formats) == 0 {
		return ErrNoFormats
	}

	m.mu.Lock()
	m.formats = formats
	m.formatIndex = 0
	m.rec.URL = formats[0].URL
	m.rec.Encoding = formats[0].Encoding
	m.mu.Unlock()
	return nil
}

func (m *QueuedMedia) currentFormat() Format {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.formats[m.formatIndex]
}

func (m *QueuedMedia) advanceFormat() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.formatIndex+1 >= len(m.formats) {
		return false
	}
	m.formatIndex++
	m.rec.URL = m.formats[m.formatIndex].URL
	m.rec.Encoding = m.formats[m.formatIndex].Encoding
	return true
}

func (m *QueuedMedia) attach(sink Sink, opts TranscoderOptions, body io.Closer) {
	closeBody := func() {
		if body != nil {
			_ = body.Close()
		}
	}

	tc, err := m.opts.Transcoders(opts)
	if err != nil {
		closeBody()
		m.finish(OutcomeFailed, fmt.Errorf("%w: %v", ErrTranscoder, err))
		return
	}

	out, err := tc.Play()
	if err != nil {
		tc.Destroy()
		closeBody()
		m.finish(OutcomeFailed, fmt.Errorf("%w: %v", ErrTranscoder, err))
		return
	}

	stream, err := sink.Play(audio.NewReader(out, m.opts.Volume), audio.Channels)
	if err != nil {
		_ = tc.Stop()
		tc.Destroy()
		closeBody()
		m.finish(OutcomeFailed, fmt.Errorf("%w: %v", ErrSinkFailed, err))
		return
	}

	att := &attachment{
		transcoder: tc,
		stream:     stream,
		body:       body,
		quit:       make(chan struct{}),
	}

	m.mu.Lock()
	if m.state.terminal() {
		m.mu.Unlock()
		att.teardown()
		return
	}
	m.att = att
	m.corked = false
	m.clock = 0
	m.hasClock = false
	m.mu.Unlock()

	go m.watch(att)
}

// watch completes the session once the transcoder has exited cleanly and
// the sink has sent its last frame, in either order.
func (m *QueuedMedia) watch(att *attachment) {
	done := att.transcoder.Done()
	events := att.stream.Events()
	var decoded, drained bool

	for {
		if decoded && drained {
			m.finish(OutcomeCompleted, nil)
			return
		}
		select {
		case <-att.quit:
			return
		case err, ok := <-done:
			if ok && err != nil {
				m.logger.Warn().Err(err).Msg("encoder error")
				m.finish(OutcomeFailed, fmt.Errorf("%w: %v", ErrTranscoder, err))
				return
			}
			m.logger.Debug().Msg("encoder end")
			decoded = true
			done = nil
		case ev, ok := <-events:
			if !ok {
				drained = true
				events = nil
				continue
			}
			switch ev.Kind {
			case StreamTimestamp:
				m.setClock(att, ev.Timestamp)
			case StreamEnd:
				m.logger.Debug().Msg("stream end")
				drained = true
				events = nil
			case StreamUnpipe:
				m.logger.Debug().Msg("stream unpipe")
			case StreamError:
				m.logger.Warn().Err(ev.Err).Msg("stream error")
				m.finish(OutcomeFailed, fmt.Errorf("%w: %v", ErrSinkFailed, ev.Err))
				return
			}
		}
	}
}

func (m *QueuedMedia) setClock(att *attachment, ts time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.att != att {
		return
	}
	m.clock = ts
	m.hasClock = true
}

// Pause toggles cork/uncork on the attached stream. Without a stream it
// does nothing.
func (m *QueuedMedia) Pause() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.att == nil {
		return
	}
	m.logger.Debug().Bool("corked", !m.corked).Msg("pause")
	if m.corked {
		m.corked = false
		m.att.stream.Uncork()
	} else {
		m.corked = true
		m.att.stream.Cork()
	}
}

// Stop tears down the stream and transcoder. The first call on a live
// session reports OutcomeStopped; later calls do nothing.
func (m *QueuedMedia) Stop() {
	m.finish(OutcomeStopped, nil)
}

// finish moves the session to its terminal state, releases the attachment
// and notifies the reporter. State is cleared before reporting so a racing
// end event cannot notify twice.
func (m *QueuedMedia) finish(outcome Outcome, err error) {
	m.mu.Lock()
	if m.state.terminal() {
		m.mu.Unlock()
		return
	}
	m.state = stateFor(outcome)
	att := m.att
	m.att = nil
	m.corked = false
	m.mu.Unlock()

	m.cancel()
	if att != nil {
		att.teardown()
	}

	m.logger.Debug().Str("outcome", outcome.String()).AnErr("cause", err).Msg("donePlaying")
	if m.reporter != nil {
		m.reporter.QueuedDonePlaying(m, Result{Outcome: outcome, Err: err})
	}
}
