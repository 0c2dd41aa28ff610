package music

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hxnx/cardinal/internal/audio"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeTranscoder struct {
	opts    TranscoderOptions
	out     []byte
	playErr error
	done    chan error

	mu        sync.Mutex
	input     []byte
	stopped   int
	destroyed int
}

func (f *fakeTranscoder) Play() (io.Reader, error) {
	if f.playErr != nil {
		return nil, f.playErr
	}
	if f.opts.Input != nil {
		in, _ := io.ReadAll(f.opts.Input)
		f.mu.Lock()
		f.input = in
		f.mu.Unlock()
	}
	return bytes.NewReader(f.out), nil
}

func (f *fakeTranscoder) Stop() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopped++
	return nil
}

func (f *fakeTranscoder) Destroy() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.destroyed++
}

func (f *fakeTranscoder) Done() <-chan error { return f.done }

func (f *fakeTranscoder) counts() (int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stopped, f.destroyed
}

type transcoderRecorder struct {
	mu      sync.Mutex
	made    []*fakeTranscoder
	out     []byte
	playErr error
	makeErr error
}

func (r *transcoderRecorder) factory(opts TranscoderOptions) (Transcoder, error) {
	if r.makeErr != nil {
		return nil, r.makeErr
	}
	tc := &fakeTranscoder{opts: opts, out: r.out, playErr: r.playErr, done: make(chan error, 1)}
	r.mu.Lock()
	r.made = append(r.made, tc)
	r.mu.Unlock()
	return tc, nil
}

func (r *transcoderRecorder) last(t *testing.T) *fakeTranscoder {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	require.NotEmpty(t, r.made)
	return r.made[len(r.made)-1]
}

type fakeStream struct {
	events chan StreamEvent

	mu       sync.Mutex
	corks    int
	uncorks  int
	unpipes  int
	corked   bool
	received []byte
}

func (s *fakeStream) Cork() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.corks++
	s.corked = true
}

func (s *fakeStream) Uncork() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.uncorks++
	s.corked = false
}

func (s *fakeStream) UnpipeAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.unpipes++
}

func (s *fakeStream) Events() <-chan StreamEvent { return s.events }

func (s *fakeStream) unpipeCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.unpipes
}

// fakeSink drains the reader inside Play, so its streams have already
// ended unless holdEnd is set.
type fakeSink struct {
	mu       sync.Mutex
	streams  []*fakeStream
	channels int
	err      error
	holdEnd  bool
}

func (s *fakeSink) Play(r io.Reader, channels int) (Stream, error) {
	if s.err != nil {
		return nil, s.err
	}
	data, _ := io.ReadAll(r)
	st := &fakeStream{events: make(chan StreamEvent, 8), received: data}
	if !s.holdEnd {
		st.events <- StreamEvent{Kind: StreamEnd}
	}
	s.mu.Lock()
	s.streams = append(s.streams, st)
	s.channels = channels
	s.mu.Unlock()
	return st, nil
}

func (s *fakeSink) stream(t *testing.T) *fakeStream {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	require.Len(t, s.streams, 1)
	return s.streams[0]
}

type report struct {
	media  *QueuedMedia
	result Result
}

type fakeReporter struct {
	ch chan report
}

func newFakeReporter() *fakeReporter {
	return &fakeReporter{ch: make(chan report, 8)}
}

func (r *fakeReporter) QueuedDonePlaying(m *QueuedMedia, res Result) {
	r.ch <- report{media: m, result: res}
}

func (r *fakeReporter) wait(t *testing.T) Result {
	t.Helper()
	select {
	case rep := <-r.ch:
		return rep.result
	case <-time.After(2 * time.Second):
		t.Fatal("no completion reported")
		return Result{}
	}
}

func (r *fakeReporter) assertNoMore(t *testing.T) {
	t.Helper()
	select {
	case rep := <-r.ch:
		t.Fatalf("unexpected extra report: %+v", rep.result)
	case <-time.After(50 * time.Millisecond):
	}
}

type staticFormats struct {
	formats []Format
	err     error
}

func (s staticFormats) Formats(_ context.Context, _ Record) ([]Format, error) {
	return s.formats, s.err
}

func newSession(t *testing.T, rec Record, rep Reporter, tr *transcoderRecorder, opts SessionOptions) *QueuedMedia {
	t.Helper()
	opts.Transcoders = tr.factory
	if opts.RedirectRetryDelay == 0 {
		opts.RedirectRetryDelay = 10 * time.Millisecond
	}
	m, err := NewQueuedMedia(rep, rec, opts)
	require.NoError(t, err)
	return m
}

func TestNewQueuedMediaValidation(t *testing.T) {
	tests := []struct {
		name string
		rec  Record
		want error
	}{
		{"unknown kind", Record{Kind: "vinyl", Path: "x"}, ErrUnknownMediaKind},
		{"empty kind", Record{Path: "x"}, ErrUnknownMediaKind},
		{"local without path", Record{Kind: MediaKindLocal}, ErrMissingLocator},
		{"remote without id or url", Record{Kind: MediaKindRemote}, ErrMissingLocator},
		{"live without url", Record{Kind: MediaKindLive}, ErrMissingLocator},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewQueuedMedia(newFakeReporter(), tt.rec, SessionOptions{})
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestNewQueuedMediaClampsDuration(t *testing.T) {
	m, err := NewQueuedMedia(nil, Record{Kind: MediaKindLocal, Path: "a.mp3", Duration: -time.Second}, SessionOptions{})
	require.NoError(t, err)
	assert.Equal(t, time.Duration(0), m.Record().Duration)
	assert.Equal(t, StateIdle, m.State())

	_, ok := m.Clock()
	assert.False(t, ok)
}

func TestLocalPlaybackCompletes(t *testing.T) {
	rep := newFakeReporter()
	tr := &transcoderRecorder{out: []byte{0x00, 0x40, 0x00, 0xC0}}
	sink := &fakeSink{}
	vol := audio.NewVolume(0.5)

	m := newSession(t, Record{Kind: MediaKindLocal, GuildID: "g1", Path: "/music/a.flac"}, rep, tr, SessionOptions{Volume: vol})
	m.Play(sink)

	tc := tr.last(t)
	assert.Equal(t, "/music/a.flac", tc.opts.Source)
	assert.Equal(t, "s16le", tc.opts.Format)
	assert.Equal(t, audio.Channels, sink.channels)
	assert.Equal(t, []byte{0x00, 0x20, 0x00, 0xE0}, sink.stream(t).received)
	assert.Equal(t, StatePlaying, m.State())

	tc.done <- nil
	res := rep.wait(t)
	assert.Equal(t, OutcomeCompleted, res.Outcome)
	assert.NoError(t, res.Err)
	assert.Equal(t, StateCompleted, m.State())

	stopped, destroyed := tc.counts()
	assert.Equal(t, 1, stopped)
	assert.Equal(t, 1, destroyed)

	m.Stop()
	rep.assertNoMore(t)
}

func TestCompletionWaitsForSinkDrain(t *testing.T) {
	rep := newFakeReporter()
	tr := &transcoderRecorder{out: []byte{0x00, 0x40}}
	sink := &fakeSink{holdEnd: true}

	m := newSession(t, Record{Kind: MediaKindLocal, Path: "a.flac"}, rep, tr, SessionOptions{})
	m.Play(sink)
	st := sink.stream(t)

	tr.last(t).done <- nil
	rep.assertNoMore(t)
	assert.Equal(t, StatePlaying, m.State())
	assert.Zero(t, st.unpipeCount())

	st.events <- StreamEvent{Kind: StreamEnd}
	assert.Equal(t, OutcomeCompleted, rep.wait(t).Outcome)
	assert.Equal(t, 1, st.unpipeCount())
}

func TestCompletionAfterSinkDrainsFirst(t *testing.T) {
	rep := newFakeReporter()
	tr := &transcoderRecorder{}
	sink := &fakeSink{holdEnd: true}

	m := newSession(t, Record{Kind: MediaKindLocal, Path: "a.flac"}, rep, tr, SessionOptions{})
	m.Play(sink)

	sink.stream(t).events <- StreamEvent{Kind: StreamEnd}
	rep.assertNoMore(t)

	tr.last(t).done <- nil
	assert.Equal(t, OutcomeCompleted, rep.wait(t).Outcome)
}

func TestStopTwiceReportsOnce(t *testing.T) {
	rep := newFakeReporter()
	tr := &transcoderRecorder{}
	sink := &fakeSink{}

	m := newSession(t, Record{Kind: MediaKindLocal, Path: "a.ogg"}, rep, tr, SessionOptions{})
	m.Play(sink)

	m.Stop()
	m.Stop()

	res := rep.wait(t)
	assert.Equal(t, OutcomeStopped, res.Outcome)
	rep.assertNoMore(t)

	stopped, destroyed := tr.last(t).counts()
	assert.Equal(t, 1, stopped)
	assert.Equal(t, 1, destroyed)
	assert.Equal(t, 1, sink.stream(t).unpipes)
	assert.Equal(t, StateStopped, m.State())

	// a late natural end from the transcoder is ignored
	tr.last(t).done <- nil
	rep.assertNoMore(t)
}

func TestStopBeforePlay(t *testing.T) {
	rep := newFakeReporter()
	tr := &transcoderRecorder{}

	m := newSession(t, Record{Kind: MediaKindLocal, Path: "a.ogg"}, rep, tr, SessionOptions{})
	m.Stop()
	assert.Equal(t, OutcomeStopped, rep.wait(t).Outcome)

	m.Play(&fakeSink{})
	assert.Empty(t, tr.made)
	rep.assertNoMore(t)
}

func TestPauseTogglesCork(t *testing.T) {
	rep := newFakeReporter()
	tr := &transcoderRecorder{}
	sink := &fakeSink{}

	m := newSession(t, Record{Kind: MediaKindLocal, Path: "a.ogg"}, rep, tr, SessionOptions{})

	// no stream yet
	m.Pause()
	assert.False(t, m.Paused())

	m.Play(sink)
	st := sink.stream(t)

	m.Pause()
	assert.True(t, m.Paused())
	m.Pause()
	assert.False(t, m.Paused())

	assert.Equal(t, 1, st.corks)
	assert.Equal(t, 1, st.uncorks)

	m.Stop()
	rep.wait(t)
	m.Pause()
	assert.Equal(t, 1, st.corks)
}

func TestTranscoderErrorFails(t *testing.T) {
	rep := newFakeReporter()
	tr := &transcoderRecorder{}

	m := newSession(t, Record{Kind: MediaKindLocal, Path: "a.ogg"}, rep, tr, SessionOptions{})
	m.Play(&fakeSink{})

	tr.last(t).done <- errors.New("exit status 1")
	res := rep.wait(t)
	assert.Equal(t, OutcomeFailed, res.Outcome)
	assert.ErrorIs(t, res.Err, ErrTranscoder)
	assert.Equal(t, StateFailed, m.State())
}

func TestTranscoderConstructionFails(t *testing.T) {
	rep := newFakeReporter()
	tr := &transcoderRecorder{makeErr: errors.New("ffmpeg missing")}

	m := newSession(t, Record{Kind: MediaKindLocal, Path: "a.ogg"}, rep, tr, SessionOptions{})
	m.Play(&fakeSink{})

	res := rep.wait(t)
	assert.Equal(t, OutcomeFailed, res.Outcome)
	assert.ErrorIs(t, res.Err, ErrTranscoder)
	rep.assertNoMore(t)
}

func TestTranscoderStartFailsIsDestroyed(t *testing.T) {
	rep := newFakeReporter()
	tr := &transcoderRecorder{playErr: errors.New("spawn failed")}

	m := newSession(t, Record{Kind: MediaKindLocal, Path: "a.ogg"}, rep, tr, SessionOptions{})
	m.Play(&fakeSink{})

	assert.Equal(t, OutcomeFailed, rep.wait(t).Outcome)
	_, destroyed := tr.last(t).counts()
	assert.Equal(t, 1, destroyed)
}

func TestSinkErrorFails(t *testing.T) {
	rep := newFakeReporter()
	tr := &transcoderRecorder{}

	m := newSession(t, Record{Kind: MediaKindLocal, Path: "a.ogg"}, rep, tr, SessionOptions{})
	m.Play(&fakeSink{err: errors.New("voice gone")})

	res := rep.wait(t)
	assert.Equal(t, OutcomeFailed, res.Outcome)
	assert.ErrorIs(t, res.Err, ErrSinkFailed)
	stopped, destroyed := tr.last(t).counts()
	assert.Equal(t, 1, stopped)
	assert.Equal(t, 1, destroyed)
}

func TestStreamEvents(t *testing.T) {
	rep := newFakeReporter()
	tr := &transcoderRecorder{}
	sink := &fakeSink{}

	m := newSession(t, Record{Kind: MediaKindLocal, Path: "a.ogg"}, rep, tr, SessionOptions{})
	m.Play(sink)
	st := sink.stream(t)

	st.events <- StreamEvent{Kind: StreamTimestamp, Timestamp: 1500 * time.Millisecond}
	require.Eventually(t, func() bool {
		clock, ok := m.Clock()
		return ok && clock == 1500*time.Millisecond
	}, time.Second, 5*time.Millisecond)

	st.events <- StreamEvent{Kind: StreamError, Err: errors.New("udp closed")}
	res := rep.wait(t)
	assert.Equal(t, OutcomeFailed, res.Outcome)
	assert.ErrorIs(t, res.Err, ErrSinkFailed)
}

func TestRemoteRedirectSwitchesFormat(t *testing.T) {
	var hitsA, hitsB atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/a":
			hitsA.Add(1)
			http.Redirect(w, r, "/elsewhere", http.StatusFound)
		case "/b":
			hitsB.Add(1)
			_, _ = w.Write([]byte("opus-bytes"))
		default:
			t.Errorf("unexpected request %s", r.URL.Path)
		}
	}))
	defer srv.Close()

	rep := newFakeReporter()
	tr := &transcoderRecorder{}
	rec := Record{
		Kind: MediaKindRemote,
		ID:   "abc",
		Formats: []Format{
			{URL: srv.URL + "/a", Encoding: "opus"},
			{URL: srv.URL + "/b", Encoding: "webm"},
		},
	}

	m := newSession(t, rec, rep, tr, SessionOptions{RedirectRetryDelay: time.Hour})
	start := time.Now()
	m.Play(&fakeSink{})

	assert.Less(t, time.Since(start), time.Second)
	assert.Equal(t, int32(1), hitsA.Load())
	assert.Equal(t, int32(1), hitsB.Load())
	assert.Equal(t, []byte("opus-bytes"), tr.last(t).input)
	assert.Equal(t, srv.URL+"/b", m.Record().URL)
	assert.Equal(t, "webm", m.Record().Encoding)

	tr.last(t).done <- nil
	assert.Equal(t, OutcomeCompleted, rep.wait(t).Outcome)
}

func TestRemoteRedirectRetriesOnce(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) == 1 {
			http.Redirect(w, r, "/moved", http.StatusTemporaryRedirect)
			return
		}
		_, _ = w.Write([]byte("audio"))
	}))
	defer srv.Close()

	rep := newFakeReporter()
	tr := &transcoderRecorder{}
	delay := 40 * time.Millisecond

	m := newSession(t, Record{Kind: MediaKindRemote, URL: srv.URL + "/track"}, rep, tr, SessionOptions{RedirectRetryDelay: delay})
	start := time.Now()
	m.Play(&fakeSink{})

	assert.GreaterOrEqual(t, time.Since(start), delay)
	assert.Equal(t, int32(2), hits.Load())
	assert.Equal(t, []byte("audio"), tr.last(t).input)

	tr.last(t).done <- nil
	assert.Equal(t, OutcomeCompleted, rep.wait(t).Outcome)
}

func TestRemoteRedirectExhausted(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		http.Redirect(w, r, "/moved", http.StatusMovedPermanently)
	}))
	defer srv.Close()

	rep := newFakeReporter()
	tr := &transcoderRecorder{}

	m := newSession(t, Record{Kind: MediaKindRemote, URL: srv.URL}, rep, tr, SessionOptions{})
	m.Play(&fakeSink{})

	res := rep.wait(t)
	assert.Equal(t, OutcomeFailed, res.Outcome)
	assert.ErrorIs(t, res.Err, ErrUpstreamStatus)
	assert.Equal(t, int32(2), hits.Load())
	assert.Empty(t, tr.made)
}

func TestRemoteErrorStatusEndsSession(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	rep := newFakeReporter()
	tr := &transcoderRecorder{}

	m := newSession(t, Record{Kind: MediaKindRemote, URL: srv.URL}, rep, tr, SessionOptions{})
	m.Play(&fakeSink{})

	res := rep.wait(t)
	assert.Equal(t, OutcomeFailed, res.Outcome)
	assert.ErrorIs(t, res.Err, ErrUpstreamStatus)
	assert.Equal(t, int32(1), hits.Load())
	rep.assertNoMore(t)
}

func TestRemoteTransportError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	rep := newFakeReporter()
	m := newSession(t, Record{Kind: MediaKindRemote, URL: url}, rep, &transcoderRecorder{}, SessionOptions{})
	m.Play(&fakeSink{})

	res := rep.wait(t)
	assert.Equal(t, OutcomeFailed, res.Outcome)
	assert.ErrorIs(t, res.Err, ErrUpstreamRequest)
}

func TestRemoteFormatsFromResolver(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("resolved"))
	}))
	defer srv.Close()

	rep := newFakeReporter()
	tr := &transcoderRecorder{}
	formats := staticFormats{formats: []Format{{URL: srv.URL + "/x", Encoding: "opus"}}}

	m := newSession(t, Record{Kind: MediaKindRemote, ID: "vid"}, rep, tr, SessionOptions{Formats: formats})
	m.Play(&fakeSink{})

	assert.Equal(t, []byte("resolved"), tr.last(t).input)
	assert.Equal(t, srv.URL+"/x", m.Record().URL)
	m.Stop()
	assert.Equal(t, OutcomeStopped, rep.wait(t).Outcome)
}

func TestRemoteWithoutFormats(t *testing.T) {
	rep := newFakeReporter()
	m := newSession(t, Record{Kind: MediaKindRemote, ID: "vid"}, rep, &transcoderRecorder{}, SessionOptions{})
	m.Play(&fakeSink{})

	res := rep.wait(t)
	assert.Equal(t, OutcomeFailed, res.Outcome)
	assert.ErrorIs(t, res.Err, ErrNoFormats)
}

func TestStopDuringRedirectWait(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		http.Redirect(w, r, "/moved", http.StatusFound)
	}))
	defer srv.Close()

	rep := newFakeReporter()
	tr := &transcoderRecorder{}
	m := newSession(t, Record{Kind: MediaKindRemote, URL: srv.URL}, rep, tr, SessionOptions{RedirectRetryDelay: time.Hour})

	done := make(chan struct{})
	go func() {
		m.Play(&fakeSink{})
		close(done)
	}()

	require.Eventually(t, func() bool { return hits.Load() == 1 }, time.Second, 5*time.Millisecond)
	m.Stop()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("play did not return after stop")
	}
	assert.Equal(t, OutcomeStopped, rep.wait(t).Outcome)
	rep.assertNoMore(t)
	assert.Equal(t, int32(1), hits.Load())
	assert.Empty(t, tr.made)
}

func TestLiveStripsMetadata(t *testing.T) {
	audioBytes := []byte("abcdefgh")
	meta := []byte("StreamTitle='Song A';")
	block := make([]byte, 1+32)
	block[0] = 2
	copy(block[1:], meta)

	gotHeader := make(chan string, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotHeader <- r.Header.Get("Icy-MetaData")
		w.Header().Set("icy-metaint", "4")
		_, _ = w.Write(audioBytes[:4])
		_, _ = w.Write(block)
		_, _ = w.Write(audioBytes[4:])
	}))
	defer srv.Close()

	var (
		mu     sync.Mutex
		frames [][]byte
	)
	rep := newFakeReporter()
	tr := &transcoderRecorder{}
	m := newSession(t, Record{Kind: MediaKindLive, URL: srv.URL}, rep, tr, SessionOptions{
		OnMetadata: func(raw []byte) {
			mu.Lock()
			frames = append(frames, append([]byte(nil), raw...))
			mu.Unlock()
		},
	})
	m.Play(&fakeSink{})

	assert.Equal(t, "1", <-gotHeader)
	assert.Equal(t, audioBytes, tr.last(t).input)

	mu.Lock()
	require.Len(t, frames, 1)
	assert.Contains(t, string(frames[0]), "Song A")
	mu.Unlock()

	m.Stop()
	assert.Equal(t, OutcomeStopped, rep.wait(t).Outcome)
}

// stallingServer sends the response headers and an optional prefix, then
// goes silent until the test ends.
func stallingServer(t *testing.T, header http.Header, prefix []byte) *httptest.Server {
	t.Helper()
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		for k, v := range header {
			w.Header()[k] = v
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(prefix)
		w.(http.Flusher).Flush()
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	t.Cleanup(func() {
		close(release)
		srv.Close()
	})
	return srv
}

func TestStalledUpstreamFails(t *testing.T) {
	tests := []struct {
		name   string
		rec    func(url string) Record
		header http.Header
		prefix []byte
	}{
		{
			name: "remote headers only",
			rec: func(url string) Record {
				return Record{Kind: MediaKindRemote, ID: "abc", Formats: []Format{{URL: url, Encoding: "opus"}}}
			},
		},
		{
			name:   "live after some audio",
			rec:    func(url string) Record { return Record{Kind: MediaKindLive, URL: url} },
			header: http.Header{"Icy-Metaint": []string{"16"}},
			prefix: []byte("12345678"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := stallingServer(t, tt.header, tt.prefix)

			rep := newFakeReporter()
			tr := &transcoderRecorder{}
			m := newSession(t, tt.rec(srv.URL), rep, tr, SessionOptions{ReadTimeout: 50 * time.Millisecond})

			start := time.Now()
			m.Play(&fakeSink{})

			res := rep.wait(t)
			assert.Less(t, time.Since(start), time.Second)
			assert.Equal(t, OutcomeFailed, res.Outcome)
			assert.ErrorIs(t, res.Err, ErrUpstreamRequest)
			assert.ErrorIs(t, res.Err, ErrUpstreamStalled)
			assert.Equal(t, StateFailed, m.State())
			assert.Equal(t, string(tt.prefix), string(tr.last(t).input))

			stopped, destroyed := tr.last(t).counts()
			assert.Equal(t, 1, stopped)
			assert.Equal(t, 1, destroyed)
			rep.assertNoMore(t)
		})
	}
}

func TestIdleReaderPassesSteadyData(t *testing.T) {
	stalled := false
	r := newIdleReader(io.NopCloser(bytes.NewReader([]byte("abcdef"))), time.Second, func() { stalled = true })

	data, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, []byte("abcdef"), data)
	assert.False(t, stalled)
}
